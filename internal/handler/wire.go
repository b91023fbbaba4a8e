package handler

import "github.com/google/wire"

// ProviderSet is the Wire provider set for the HTTP API.
var ProviderSet = wire.NewSet(NewAPI)
