package registry

import "github.com/vocdoni/zkparams/params"

// defaultRegistry is the process-wide registry used by the package level
// functions. It reads local files until Configure is called.
var defaultRegistry = New(params.NewStore(params.Config{}))

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Configure sets the store settings of the process-wide registry. It must be
// called before Initialize.
func Configure(cfg params.Config) error {
	return defaultRegistry.SetLoader(params.NewStore(cfg))
}

// Initialize loads the process-wide bundle, see Registry.Initialize.
func Initialize(mint, spend, output string) (bool, error) {
	return defaultRegistry.Initialize(mint, spend, output)
}

// Global returns the process-wide bundle, see Registry.Global.
func Global() *Bundle {
	return defaultRegistry.Global()
}
