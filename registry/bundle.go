package registry

import (
	"fmt"

	"github.com/vocdoni/zkparams/circuits"
	"github.com/vocdoni/zkparams/params"
)

// Locations holds the parameters file location of each circuit.
type Locations struct {
	Mint   string
	Spend  string
	Output string
}

// For returns the location of the given circuit.
func (l Locations) For(kind circuits.Kind) string {
	switch kind {
	case circuits.Spend:
		return l.Spend
	case circuits.Output:
		return l.Output
	case circuits.Mint:
		return l.Mint
	default:
		panic(fmt.Sprintf("no location for circuit %s", kind))
	}
}

// Keys pairs the proving parameters of a circuit with its prepared
// verifying key. Both always come from the same parameters file.
type Keys struct {
	Params       *params.ProvingParameters
	VerifyingKey *params.PreparedVerifyingKey
}

// Bundle holds the keys of every circuit. It is only built once all of them
// loaded, and is read-only afterwards, so it can be shared freely.
type Bundle struct {
	locations Locations
	keys      map[circuits.Kind]Keys
}

func newBundle(locations Locations, keys map[circuits.Kind]Keys) (*Bundle, error) {
	for _, kind := range circuits.Kinds {
		k, ok := keys[kind]
		if !ok || k.Params == nil || k.VerifyingKey == nil {
			return nil, fmt.Errorf("missing %s keys", kind)
		}
	}
	return &Bundle{locations: locations, keys: keys}, nil
}

// Keys returns the keys of kind. It panics on an unknown kind.
func (b *Bundle) Keys(kind circuits.Kind) Keys {
	k, ok := b.keys[kind]
	if !ok {
		panic(fmt.Sprintf("no keys for circuit %s", kind))
	}
	return k
}

// Params returns the proving parameters of kind.
func (b *Bundle) Params(kind circuits.Kind) *params.ProvingParameters {
	return b.Keys(kind).Params
}

// VerifyingKey returns the prepared verifying key of kind.
func (b *Bundle) VerifyingKey(kind circuits.Kind) *params.PreparedVerifyingKey {
	return b.Keys(kind).VerifyingKey
}

// Locations returns where the bundle was loaded from.
func (b *Bundle) Locations() Locations {
	return b.locations
}
