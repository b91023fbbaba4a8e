// Package cmd defines the Cobra subcommands and bridges
// configuration, dependency injection, and the agent runtime.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bucket-xv/ImageCache/internal/cmd/agent"
	"github.com/bucket-xv/ImageCache/internal/config"
)

// AgentInjector builds a fully wired Agent. Indirection through a
// function keeps Wire's generated injector out of this package.
type AgentInjector func() (*agent.Agent, func(), error)

// NewAgentCommand returns the "agent" subcommand.
func NewAgentCommand(conf *config.Config, newAgent AgentInjector) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:     "agent",
		Short:   "Start the node agent that tracks image usage and reclaims storage",
		Example: "imagecache agent --address=:8377 --cache-policy=least-total-time-used --reclaim-high-watermark=20Gi",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ag, cleanup, err := newAgent()
			if err != nil {
				return fmt.Errorf("failed to initialize agent: %w", err)
			}
			defer cleanup()

			cfg := agent.Config{
				Address:         conf.AgentAddress(),
				AllowedOrigins:  conf.AgentAllowedOrigins(),
				AuthToken:       conf.AgentAuthToken(),
				ReclaimEnabled:  conf.ReclaimEnabled(),
				ReclaimInterval: conf.ReclaimInterval(),
			}

			return ag.Run(cmd.Context(), cfg)
		},
	}

	if err := conf.BindFlags(cmd.Flags(), config.AgentOptions); err != nil {
		return nil, err
	}

	return cmd, nil
}
