package cmd

import (
	"github.com/google/wire"

	"github.com/bucket-xv/ImageCache/internal/cmd/agent"
)

// ProviderSet is the Wire provider set for the CLI layer.
var ProviderSet = wire.NewSet(agent.NewAgent)
