// Package testutil provides small circuits and parameters files for the
// tests of the module. The circuits only stand in for the shielded ones: they
// have the same public/secret split but trivial constraints.
package testutil

import (
	"fmt"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/vocdoni/zkparams/circuits"
	"github.com/vocdoni/zkparams/config"
	"github.com/vocdoni/zkparams/params"
	"github.com/vocdoni/zkparams/types"
)

// SpendCircuit proves knowledge of value and randomness behind a commitment.
type SpendCircuit struct {
	Value      frontend.Variable
	Randomness frontend.Variable
	Commitment frontend.Variable `gnark:",public"`
}

func (c *SpendCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.Commitment, api.Add(api.Mul(c.Value, c.Value), api.Mul(7, c.Randomness)))
	return nil
}

// OutputCircuit proves a note commitment is well formed.
type OutputCircuit struct {
	Value      frontend.Variable
	Randomness frontend.Variable
	Commitment frontend.Variable `gnark:",public"`
}

func (c *OutputCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.Commitment, api.Add(c.Value, api.Mul(c.Randomness, c.Randomness)))
	return nil
}

// MintCircuit proves the total minted for an asset.
type MintCircuit struct {
	Amount  frontend.Variable
	AssetID frontend.Variable `gnark:",public"`
	Total   frontend.Variable `gnark:",public"`
}

func (c *MintCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.Total, api.Mul(c.Amount, c.AssetID))
	return nil
}

// Placeholder returns an empty circuit definition of kind, for compilation.
func Placeholder(kind circuits.Kind) frontend.Circuit {
	switch kind {
	case circuits.Spend:
		return &SpendCircuit{}
	case circuits.Output:
		return &OutputCircuit{}
	case circuits.Mint:
		return &MintCircuit{}
	default:
		panic(fmt.Sprintf("no test circuit for %s", kind))
	}
}

// Assignment returns a satisfying full assignment of kind derived from seed.
func Assignment(kind circuits.Kind, seed uint64) frontend.Circuit {
	a, b := seed+3, seed+5
	switch kind {
	case circuits.Spend:
		return &SpendCircuit{Value: a, Randomness: b, Commitment: a*a + 7*b}
	case circuits.Output:
		return &OutputCircuit{Value: a, Randomness: b, Commitment: a + b*b}
	case circuits.Mint:
		return &MintCircuit{Amount: a, AssetID: b, Total: a * b}
	default:
		panic(fmt.Sprintf("no test circuit for %s", kind))
	}
}

// PublicAssignment returns only the public inputs of Assignment(kind, seed).
func PublicAssignment(kind circuits.Kind, seed uint64) frontend.Circuit {
	switch a := Assignment(kind, seed).(type) {
	case *SpendCircuit:
		return &SpendCircuit{Commitment: a.Commitment}
	case *OutputCircuit:
		return &OutputCircuit{Commitment: a.Commitment}
	case *MintCircuit:
		return &MintCircuit{AssetID: a.AssetID, Total: a.Total}
	default:
		panic("unreachable")
	}
}

// Compile compiles the test circuit of kind over curve.
func Compile(curve ecc.ID, kind circuits.Kind) (constraint.ConstraintSystem, error) {
	ccs, err := frontend.Compile(curve.ScalarField(), r1cs.NewBuilder, Placeholder(kind))
	if err != nil {
		return nil, fmt.Errorf("compile %s circuit: %w", kind, err)
	}
	return ccs, nil
}

// CircuitParams is a compiled test circuit with the keys of one setup and
// the parameters file holding them.
type CircuitParams struct {
	Kind   circuits.Kind
	CCS    constraint.ConstraintSystem
	PK     groth16.ProvingKey
	VK     groth16.VerifyingKey
	Path   string
	Digest types.HexBytes
}

// Fixture holds the parameters of every circuit, written to Dir.
type Fixture struct {
	Curve    ecc.ID
	Dir      string
	Circuits map[circuits.Kind]*CircuitParams
}

// Path returns the parameters file of kind.
func (f *Fixture) Path(kind circuits.Kind) string {
	return f.Circuits[kind].Path
}

// Setup compiles kind over curve and runs a fresh Groth16 setup.
func Setup(curve ecc.ID, kind circuits.Kind) (*CircuitParams, error) {
	ccs, err := Compile(curve, kind)
	if err != nil {
		return nil, err
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("setup %s circuit: %w", kind, err)
	}
	return &CircuitParams{Kind: kind, CCS: ccs, PK: pk, VK: vk}, nil
}

// GenerateParams runs a setup for every circuit over curve and writes the
// parameters files to dir, named as the published ones.
func GenerateParams(curve ecc.ID, dir string) (*Fixture, error) {
	f := &Fixture{Curve: curve, Dir: dir, Circuits: make(map[circuits.Kind]*CircuitParams)}
	for _, kind := range circuits.Kinds {
		cp, err := Setup(curve, kind)
		if err != nil {
			return nil, err
		}
		cp.Path = filepath.Join(dir, config.ParamsFileName(kind))
		if cp.Digest, err = params.WriteParametersFile(cp.Path, kind, cp.PK, cp.VK); err != nil {
			return nil, fmt.Errorf("write %s parameters: %w", kind, err)
		}
		f.Circuits[kind] = cp
	}
	return f, nil
}
