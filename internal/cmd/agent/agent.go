// Package agent implements the node-local runtime: the HTTP API
// server, the Docker event pump, and the periodic storage reclaim
// loop, all run in parallel via transport.Serve.
package agent

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/authn"

	"github.com/bucket-xv/ImageCache/internal/core"
	"github.com/bucket-xv/ImageCache/internal/handler"
	"github.com/bucket-xv/ImageCache/internal/providers/docker"
	"github.com/bucket-xv/ImageCache/internal/telemetry"
	"github.com/bucket-xv/ImageCache/internal/transport"
	transporthttp "github.com/bucket-xv/ImageCache/internal/transport/http"
)

// Config holds the runtime parameters for an Agent.
type Config struct {
	Address         string
	AllowedOrigins  []string
	AuthToken       string
	ReclaimEnabled  bool
	ReclaimInterval time.Duration
}

// Agent binds the HTTP API, the container event pump, and the reclaim
// loop to one Docker daemon.
type Agent struct {
	api     *handler.API
	docker  *docker.Client
	cache   *core.ImageCache
	reclaim *core.ReclaimUseCase
	metrics *telemetry.Metrics
	log     *slog.Logger
}

// NewAgent returns an Agent wired to the given collaborators.
func NewAgent(
	api *handler.API,
	dockerClient *docker.Client,
	cache *core.ImageCache,
	reclaim *core.ReclaimUseCase,
	metrics *telemetry.Metrics,
) *Agent {
	return &Agent{
		api:     api,
		docker:  dockerClient,
		cache:   cache,
		reclaim: reclaim,
		metrics: metrics,
		log:     slog.Default().With("component", "agent"),
	}
}

// Run starts all agent components and blocks until ctx is cancelled
// or one of them fails. The health and metrics endpoints stay public
// even when token authentication is enabled.
func (a *Agent) Run(ctx context.Context, cfg Config) error {
	if err := a.docker.EnsureCompatible(ctx); err != nil {
		return fmt.Errorf("docker daemon check: %w", err)
	}

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddress(cfg.Address),
		transporthttp.WithAllowedOrigins(cfg.AllowedOrigins),
		transporthttp.WithMount(a.api.Mount),
	}
	if cfg.AuthToken != "" {
		opts = append(opts,
			transporthttp.WithAuthMiddleware(staticTokenMiddleware(cfg.AuthToken)),
			transporthttp.WithPublicPaths([]string{"/healthz", "/metrics"}),
		)
	}

	httpSrv, err := transporthttp.NewServer(opts...)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	listeners := []transport.Listener{
		httpSrv,
		newEventPump(a.cache, a.docker, a.metrics),
	}
	if cfg.ReclaimEnabled {
		listeners = append(listeners, newReclaimLoop(a.reclaim, a.metrics, cfg.ReclaimInterval))
	} else {
		a.log.Info("reclaim loop disabled")
	}

	return transport.Serve(ctx, listeners...)
}

// staticTokenMiddleware authenticates requests against a single
// pre-shared bearer token. Hashing both sides keeps the comparison
// constant-time regardless of token length.
func staticTokenMiddleware(token string) *authn.Middleware {
	want := sha256.Sum256([]byte(token))
	return authn.NewMiddleware(func(_ context.Context, r *http.Request) (any, error) {
		got, ok := authn.BearerToken(r)
		if !ok {
			return nil, authn.Errorf("missing bearer token")
		}
		sum := sha256.Sum256([]byte(got))
		if subtle.ConstantTimeCompare(want[:], sum[:]) != 1 {
			return nil, authn.Errorf("invalid bearer token")
		}
		return "agent", nil
	})
}
