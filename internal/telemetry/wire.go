package telemetry

import "github.com/google/wire"

// ProviderSet is the Wire provider set for telemetry.
var ProviderSet = wire.NewSet(NewMetrics)
