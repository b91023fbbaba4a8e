package docker

import (
	"github.com/google/wire"

	"github.com/bucket-xv/ImageCache/internal/core"
)

// ProviderSet is the Wire provider set for the Docker runtime
// adapter. The client satisfies all three core runtime interfaces.
var ProviderSet = wire.NewSet(
	New,
	wire.Bind(new(core.ContainerWatcher), new(*Client)),
	wire.Bind(new(core.ImageRemover), new(*Client)),
	wire.Bind(new(core.StorageUsage), new(*Client)),
)
