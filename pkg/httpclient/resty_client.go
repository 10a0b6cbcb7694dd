package httpclient

import (
	"time"

	"github.com/go-resty/resty/v2"
)

// New returns a resty.Client tuned with the given request timeout.
// Callers layer their own base URLs, auth, and retry policies on top.
func New(timeout time.Duration) *resty.Client {
	c := resty.New()
	c.SetTimeout(timeout)
	c.SetHeader("Accept", "application/json")
	return c
}
