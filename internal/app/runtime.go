package app

import (
	"context"
	"fmt"
	"time"

	"github.com/entraops/azuregraph/internal/cache"
	"github.com/entraops/azuregraph/internal/config"
	"github.com/entraops/azuregraph/internal/events"
	"github.com/entraops/azuregraph/internal/logger"
	"github.com/entraops/azuregraph/pkg/b2c"
	"github.com/entraops/azuregraph/pkg/graph"
	"golang.org/x/oauth2"
)

// Runtime wires together config, auth, the Graph client, the B2C user
// service, and lifecycle event sinks.
type Runtime struct {
	cfg    *config.Config
	log    logger.Logger
	store  cache.Store
	client *graph.Client
	users  *b2c.Service
	fanout *events.Fanout
}

// DevicePrompt shows the device code to the user during the devicecode flow.
// Required when auth_flow is devicecode; ignored otherwise.
type DevicePrompt = graph.DeviceCodePrompt

// NewRuntime builds a runtime from config. It acquires a token eagerly, so a
// misconfigured tenant or secret fails here rather than on first use.
func NewRuntime(ctx context.Context, cfg *config.Config, log logger.Logger, prompt DevicePrompt) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := cache.NewStore(cfg.CacheType, cfg.CachePath, cache.Options{
		TTL:             cfg.CacheTTL,
		CleanupInterval: cfg.CacheCleanupInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("init response cache: %w", err)
	}
	log.InfoObj("response cache initialized", "cache_config", map[string]any{
		"type":        cfg.CacheType,
		"path":        cfg.CachePath,
		"ttl_seconds": int(cfg.CacheTTL.Seconds()),
	})

	tokens, err := tokenSource(ctx, cfg, prompt)
	if err != nil {
		store.Close()
		return nil, err
	}

	client := graph.NewClient(tokens,
		graph.WithBaseURL(cfg.GraphAPIURL),
		graph.WithTimeout(cfg.RequestTimeout),
		graph.WithRateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		graph.WithCache(store),
		graph.WithLogger(log),
	)

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	rt := &Runtime{
		cfg:    cfg,
		log:    log,
		store:  store,
		client: client,
		fanout: fanout,
	}
	return rt, nil
}

// tokenSource selects the auth flow from config.
func tokenSource(ctx context.Context, cfg *config.Config, prompt DevicePrompt) (oauth2.TokenSource, error) {
	creds := graph.Credentials{
		TenantID:     cfg.TenantID,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes(),
	}

	switch cfg.AuthFlow {
	case config.FlowApplication:
		ts, err := graph.ApplicationTokenSource(ctx, creds)
		if err != nil {
			return nil, fmt.Errorf("connect with application permissions: %w", err)
		}
		return ts, nil
	case config.FlowDeviceCode:
		ts, err := graph.DeviceTokenSource(ctx, creds, prompt)
		if err != nil {
			return nil, fmt.Errorf("connect with device code: %w", err)
		}
		return ts, nil
	default:
		return nil, fmt.Errorf("unsupported auth flow %q", cfg.AuthFlow)
	}
}

// buildFanout assembles lifecycle event publishers when an events file is configured.
func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*events.Fanout, error) {
	if cfg.EventsFile == "" {
		return nil, nil
	}

	sinkReg, err := events.LoadRegistry(cfg.EventsFile)
	if err != nil {
		return nil, fmt.Errorf("load event sinks registry: %w", err)
	}

	enabled := sinkReg.Enabled()
	pubs, err := events.BuildAll(ctx, events.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build event sinks: %w", err)
	}

	sinkSummaries := make([]map[string]string, 0, len(enabled))
	for _, sinkCfg := range enabled {
		sinkSummaries = append(sinkSummaries, map[string]string{
			"id":   sinkCfg.ID,
			"type": sinkCfg.Type,
		})
	}
	log.InfoObj("event sinks registry loaded", "sinks_meta", map[string]any{
		"count": len(sinkSummaries),
		"sinks": sinkSummaries,
	})

	return events.NewFanout(pubs), nil
}

// Users lazily constructs the B2C user service; the first call discovers the
// tenant's user-flow attributes.
func (r *Runtime) Users(ctx context.Context) (*b2c.Service, error) {
	if r.users != nil {
		return r.users, nil
	}

	opts := []b2c.ServiceOption{b2c.WithLogger(r.log)}
	if r.fanout != nil && r.fanout.Size() > 0 {
		opts = append(opts, b2c.WithEventSink(r.fanout))
	}

	users, err := b2c.NewService(ctx, r.client, r.cfg.TenantName, opts...)
	if err != nil {
		return nil, fmt.Errorf("init user service: %w", err)
	}
	r.users = users
	return users, nil
}

// Client exposes the underlying Graph client for ad-hoc calls.
func (r *Runtime) Client() *graph.Client {
	return r.client
}

// Close releases the cache store.
func (r *Runtime) Close() {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.Close(); err != nil {
		r.log.ErrorObj("cache close failed", "error", err)
	}
}

// Timeout returns the configured request timeout, for callers that derive
// their own contexts.
func (r *Runtime) Timeout() time.Duration {
	return r.cfg.RequestTimeout
}
