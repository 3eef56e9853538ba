// Package config provides the default locations of the shielded circuit
// parameter files.
package config

import (
	"fmt"

	"github.com/vocdoni/zkparams/circuits"
)

const (
	// DefaultParamsBaseURL is the base URL for remotely published parameters
	DefaultParamsBaseURL = "https://circuits.ams3.cdn.digitaloceanspaces.com"
	// DefaultParamsRelease is the release folder of the published parameters
	DefaultParamsRelease = "sapling"
	// DefaultParamsDir is the directory name, inside the data dir, where
	// parameter files live.
	DefaultParamsDir = "params"
)

// ParamsFileNames maps each circuit to the file name of its parameters.
var ParamsFileNames = map[circuits.Kind]string{
	circuits.Spend:  "sapling-spend.params",
	circuits.Output: "sapling-output.params",
	circuits.Mint:   "sapling-mint.params",
}

// ParamsFileName returns the file name of the parameters of kind. It panics on
// an unknown kind.
func ParamsFileName(kind circuits.Kind) string {
	name, ok := ParamsFileNames[kind]
	if !ok {
		panic(fmt.Sprintf("no parameters file for circuit %s", kind))
	}
	return name
}

// ParamsURL returns the remote location of the parameters of kind under the
// given base URL and release.
func ParamsURL(baseURL, release string, kind circuits.Kind) string {
	return fmt.Sprintf("%s/%s/%s", baseURL, release, ParamsFileName(kind))
}
