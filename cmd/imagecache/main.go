// Package main is the entry point for the imagecache binary. The
// single subcommand, agent, runs next to a Docker daemon, tracks
// which images running containers use, and reclaims layer storage
// under pressure.
//
// Dependencies are assembled via Google Wire; see wire.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bucket-xv/ImageCache/internal/cmd"
	"github.com/bucket-xv/ImageCache/internal/cmd/agent"
	"github.com/bucket-xv/ImageCache/internal/config"
	"github.com/bucket-xv/ImageCache/internal/core"
)

// version is injected at build time via -ldflags
// (e.g. -ldflags "-X main.version=v1.2.3").
var version = "devel"

func main() {
	// Cancel on SIGINT (Ctrl+C) or SIGTERM (container runtime).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		// Cobra is configured with SilenceErrors: true, so we
		// print the error here for consistent formatting.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires all dependencies and executes the root Cobra command.
func run(ctx context.Context) error {
	rootCmd, cleanup, err := wireCmd()
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer cleanup()

	return rootCmd.ExecuteContext(ctx)
}

// newCmd is a Wire provider that constructs the root Cobra command
// and registers the agent subcommand. The version is captured by the
// closure passed to the Wire injector so that the Injector type
// signature stays free of build-time detail.
func newCmd(conf *config.Config) (*cobra.Command, error) {
	c := &cobra.Command{
		Use:           "imagecache",
		Short:         "ImageCache: usage-aware eviction for a node-local Docker image cache.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	v := core.Version(version)

	agentCmd, err := cmd.NewAgentCommand(conf, func() (*agent.Agent, func(), error) {
		return wireAgent(v, conf)
	})
	if err != nil {
		return nil, err
	}

	c.AddCommand(agentCmd)

	return c, nil
}

// provideCache is a Wire provider that builds the image cache from
// the configured window and policy.
func provideCache(conf *config.Config) (*core.ImageCache, error) {
	policy, err := core.ParsePolicy(conf.CachePolicy())
	if err != nil {
		return nil, err
	}

	window := conf.CacheTimeWindow()
	if window <= 0 {
		return nil, fmt.Errorf("cache time window must be positive, got %v", window)
	}

	return core.NewImageCache(window, policy), nil
}

// provideReclaimConfig is a Wire provider that parses the watermark
// quantities from configuration.
func provideReclaimConfig(conf *config.Config) (core.ReclaimConfig, error) {
	high, err := conf.ReclaimHighWatermarkBytes()
	if err != nil {
		return core.ReclaimConfig{}, err
	}
	low, err := conf.ReclaimLowWatermarkBytes()
	if err != nil {
		return core.ReclaimConfig{}, err
	}
	return core.ReclaimConfig{
		HighWatermarkBytes: high,
		LowWatermarkBytes:  low,
	}, nil
}
