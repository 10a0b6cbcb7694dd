package events

import (
	"context"

	"github.com/entraops/azuregraph/internal/logger"
)

// Publisher sends events to a downstream sink (HTTP, SQS, SNS, Pub/Sub).
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

func ensureLogger(log logger.Logger) logger.Logger {
	if log == nil {
		return &logger.NopLogger{}
	}
	return log
}
