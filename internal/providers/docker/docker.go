// Package docker adapts the Docker Engine API to the runtime
// interfaces defined in internal/core. It lives in the providers
// layer so the domain stays free of SDK types: the core sees
// container events, image removal, and layer usage, never the Docker
// client.
package docker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Masterminds/semver/v3"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"github.com/bucket-xv/ImageCache/internal/config"
)

// minAPIVersion is the oldest Engine API this agent supports. Older
// daemons lack the DiskUsage object filters the reclaim loop relies
// on.
const minAPIVersion = "1.41"

// Client wraps a Docker API client and implements
// core.ContainerWatcher, core.ImageRemover, and core.StorageUsage.
type Client struct {
	api client.APIClient
	log *slog.Logger
}

// New connects to the Docker daemon. An explicit host in the
// configuration wins over DOCKER_HOST and the platform default
// socket. The returned cleanup closes the underlying client.
func New(conf *config.Config) (*Client, func(), error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host := conf.AgentDockerHost(); host != "" {
		opts = append(opts, client.WithHost(host))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create docker client: %w", err)
	}

	c := newClient(api)
	return c, func() { _ = api.Close() }, nil
}

// newClient wraps an existing API client. Tests use this with a
// client pointed at a fake daemon.
func newClient(api client.APIClient) *Client {
	return &Client{
		api: api,
		log: slog.Default().With("component", "docker"),
	}
}

// EnsureCompatible pings the daemon and rejects Engine API versions
// older than minAPIVersion.
func (c *Client) EnsureCompatible(ctx context.Context) error {
	ping, err := c.api.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping docker daemon: %w", err)
	}

	got, err := semver.NewVersion(ping.APIVersion)
	if err != nil {
		return fmt.Errorf("parse daemon API version %q: %w", ping.APIVersion, err)
	}
	min := semver.MustParse(minAPIVersion)
	if got.LessThan(min) {
		return fmt.Errorf("docker API version %s is older than required %s", ping.APIVersion, minAPIVersion)
	}

	c.log.Info("connected to docker daemon", "api_version", ping.APIVersion)
	return nil
}

// RemoveImage deletes the image from the daemon's local store,
// pruning dependent layers.
func (c *Client) RemoveImage(ctx context.Context, imageID string) error {
	deleted, err := c.api.ImageRemove(ctx, imageID, image.RemoveOptions{PruneChildren: true})
	if err != nil {
		return fmt.Errorf("remove image %s: %w", imageID, err)
	}
	c.log.Debug("removed image", "image_id", imageID, "entries", len(deleted))
	return nil
}

// LayerBytes reports how much local storage image layers occupy.
func (c *Client) LayerBytes(ctx context.Context) (int64, error) {
	du, err := c.api.DiskUsage(ctx, types.DiskUsageOptions{
		Types: []types.DiskUsageObject{types.ImageObject},
	})
	if err != nil {
		return 0, fmt.Errorf("query disk usage: %w", err)
	}
	return du.LayersSize, nil
}
