//go:build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/spf13/cobra"

	"github.com/bucket-xv/ImageCache/internal/cmd"
	"github.com/bucket-xv/ImageCache/internal/cmd/agent"
	"github.com/bucket-xv/ImageCache/internal/config"
	"github.com/bucket-xv/ImageCache/internal/core"
	"github.com/bucket-xv/ImageCache/internal/handler"
	"github.com/bucket-xv/ImageCache/internal/providers/docker"
	"github.com/bucket-xv/ImageCache/internal/telemetry"
)

func wireCmd() (*cobra.Command, func(), error) {
	panic(wire.Build(
		newCmd,
		config.ProviderSet,
	))
}

func wireAgent(core.Version, *config.Config) (*agent.Agent, func(), error) {
	panic(wire.Build(
		provideCache,
		provideReclaimConfig,
		cmd.ProviderSet,
		core.ProviderSet,
		docker.ProviderSet,
		handler.ProviderSet,
		telemetry.ProviderSet,
	))
}
