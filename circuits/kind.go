// Package circuits names the shielded transaction circuits whose trusted
// setup parameters are managed by this module.
package circuits

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
)

// ParamsCurve is the pairing curve the shielded circuits are defined over.
var ParamsCurve = ecc.BLS12_381

// Kind identifies one of the shielded transaction circuits. Each kind has its
// own independently generated parameters; they are never interchangeable.
type Kind uint8

const (
	// Spend proves ownership and validity of a spent note.
	Spend Kind = iota + 1
	// Output proves a newly created note is well formed.
	Output
	// Mint proves a valid asset-mint description.
	Mint
)

// Kinds lists every circuit kind, in a fixed order.
var Kinds = []Kind{Spend, Output, Mint}

// String returns the lowercase name of the circuit kind.
func (k Kind) String() string {
	switch k {
	case Spend:
		return "spend"
	case Output:
		return "output"
	case Mint:
		return "mint"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the known circuit kinds.
func (k Kind) Valid() bool {
	return k == Spend || k == Output || k == Mint
}

// ParseKind returns the Kind with the given name.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown circuit kind %q", name)
}
