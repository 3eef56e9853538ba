// Package prover lets the shielded circuits prove and verify with the keys
// published in the registry.
package prover

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zkparams/circuits"
	"github.com/vocdoni/zkparams/log"
	"github.com/vocdoni/zkparams/params"
	"github.com/vocdoni/zkparams/registry"
)

// KeySource gives access to the keys of each circuit. *registry.Bundle
// implements it.
type KeySource interface {
	Params(kind circuits.Kind) *params.ProvingParameters
	VerifyingKey(kind circuits.Kind) *params.PreparedVerifyingKey
}

var _ KeySource = (*registry.Bundle)(nil)

// CPUProver is the standard implementation that simply calls groth16.Prove directly.
func CPUProver(
	curve ecc.ID,
	ccs constraint.ConstraintSystem,
	pk groth16.ProvingKey,
	assignment frontend.Circuit,
	opts ...backend.ProverOption,
) (groth16.Proof, error) {
	w, err := frontend.NewWitness(assignment, curve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("failed to create witness: %w", err)
	}
	return groth16.Prove(ccs, pk, w, opts...)
}

// Prove builds a proof for the circuit kind with the proving key from keys.
// ccs must be the compiled constraint system the parameters were set up for.
func Prove(
	keys KeySource,
	kind circuits.Kind,
	ccs constraint.ConstraintSystem,
	assignment frontend.Circuit,
	opts ...backend.ProverOption,
) (groth16.Proof, error) {
	pp := keys.Params(kind)
	proof, err := CPUProver(pp.Curve, ccs, pp.ProvingKey, assignment, opts...)
	if err != nil {
		return nil, fmt.Errorf("prove %s: %w", kind, err)
	}
	return proof, nil
}

// ProveGlobal is Prove with the process-wide bundle. It panics if the
// registry is not initialized.
func ProveGlobal(
	kind circuits.Kind,
	ccs constraint.ConstraintSystem,
	assignment frontend.Circuit,
	opts ...backend.ProverOption,
) (groth16.Proof, error) {
	return Prove(registry.Global(), kind, ccs, assignment, opts...)
}

// PublicWitness extracts the public part of assignment for the given curve.
func PublicWitness(curve ecc.ID, assignment frontend.Circuit) (witness.Witness, error) {
	w, err := frontend.NewWitness(assignment, curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to create public witness: %w", err)
	}
	return w, nil
}

// Verify reports whether proof is valid for the circuit kind and the public
// inputs of publicAssignment.
func Verify(keys KeySource, kind circuits.Kind, proof groth16.Proof, publicAssignment frontend.Circuit) bool {
	vk := keys.VerifyingKey(kind)
	w, err := PublicWitness(vk.Curve(), publicAssignment)
	if err != nil {
		log.Debugw("proof rejected", "circuit", kind.String(), "error", err.Error())
		return false
	}
	return vk.Verify(proof, w)
}

// VerifyGlobal is Verify with the process-wide bundle. It panics if the
// registry is not initialized.
func VerifyGlobal(kind circuits.Kind, proof groth16.Proof, publicAssignment frontend.Circuit) bool {
	return Verify(registry.Global(), kind, proof, publicAssignment)
}
