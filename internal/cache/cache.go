// Package cache provides local storage for Graph API responses so repeated
// reads do not hit the network.
package cache

import (
	"fmt"
	"strings"
	"time"
)

// Store persists HTTP response bodies keyed by request fingerprint.
type Store interface {
	Close() error
	// Get returns the cached body for key, or false when absent or expired.
	Get(key string) ([]byte, bool, error)
	// Set stores the body under key with the configured TTL.
	Set(key string, body []byte) error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

const (
	defaultTTL             = time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore creates the configured cache backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt cache requires a path")
		}
		return openBolt(path, opts)
	case "sqlite":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("sqlite cache requires a path")
		}
		return openSQLite(path, opts)
	default:
		return nil, fmt.Errorf("unsupported cache type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopStore struct{}

func (noopStore) Close() error                     { return nil }
func (noopStore) Get(string) ([]byte, bool, error) { return nil, false, nil }
func (noopStore) Set(string, []byte) error         { return nil }
