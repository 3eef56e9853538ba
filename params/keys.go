package params

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bls12381 "github.com/consensys/gnark/backend/groth16/bls12-381"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/backend/witness"
	"github.com/vocdoni/zkparams/circuits"
	"github.com/vocdoni/zkparams/log"
	"github.com/vocdoni/zkparams/types"
)

// ProvingParameters holds the Groth16 proving key of one circuit together
// with the unprocessed verifying key shipped in the same parameters file.
// It is never modified after ParseParameters returns it.
type ProvingParameters struct {
	Kind         circuits.Kind
	Curve        ecc.ID
	ProvingKey   groth16.ProvingKey
	VerifyingKey groth16.VerifyingKey
	// Digest is the SHA256 of the whole parameters file.
	Digest types.HexBytes
	// Size is the length in bytes of the parameters file.
	Size int
}

// PreparedVerifyingKey is a verifying key with the pairing terms
// e(α,β), -[γ]₂ and -[δ]₂ precomputed, ready for repeated verification.
type PreparedVerifyingKey struct {
	kind circuits.Kind
	vk   groth16.VerifyingKey
}

// PrepareVerifyingKey copies vk and runs the pairing precomputation on the
// copy, so the raw key stays untouched. It only fails for curves without
// Groth16 support in this package.
func PrepareVerifyingKey(kind circuits.Kind, vk groth16.VerifyingKey) (*PreparedVerifyingKey, error) {
	switch v := vk.(type) {
	case *groth16_bls12381.VerifyingKey:
		prepared := *v
		if err := prepared.Precompute(); err != nil {
			return nil, fmt.Errorf("precompute %s verifying key: %w", kind, err)
		}
		return &PreparedVerifyingKey{kind: kind, vk: &prepared}, nil
	case *groth16_bn254.VerifyingKey:
		prepared := *v
		if err := prepared.Precompute(); err != nil {
			return nil, fmt.Errorf("precompute %s verifying key: %w", kind, err)
		}
		return &PreparedVerifyingKey{kind: kind, vk: &prepared}, nil
	default:
		return nil, fmt.Errorf("unsupported verifying key type %T", vk)
	}
}

// Kind returns the circuit the key was prepared for.
func (p *PreparedVerifyingKey) Kind() circuits.Kind {
	return p.kind
}

// Curve returns the curve of the verifying key.
func (p *PreparedVerifyingKey) Curve() ecc.ID {
	return p.vk.CurveID()
}

// NbPublicWitness returns the number of public inputs the circuit expects.
func (p *PreparedVerifyingKey) NbPublicWitness() int {
	return p.vk.NbPublicWitness()
}

// Key returns the underlying gnark verifying key. Callers must not modify it.
func (p *PreparedVerifyingKey) Key() groth16.VerifyingKey {
	return p.vk
}

// VerifyErr checks proof against the public witness and returns the reason
// of a rejection.
func (p *PreparedVerifyingKey) VerifyErr(proof groth16.Proof, publicWitness witness.Witness, opts ...backend.VerifierOption) error {
	if proof == nil || publicWitness == nil {
		return fmt.Errorf("nil proof or public witness")
	}
	// groth16.Verify type-asserts the key to the proof curve, so a
	// mismatch must be caught before.
	if proof.CurveID() != p.vk.CurveID() {
		return fmt.Errorf("proof curve %s does not match %s verifying key curve %s",
			proof.CurveID(), p.kind, p.vk.CurveID())
	}
	return groth16.Verify(proof, p.vk, publicWitness, opts...)
}

// Verify reports whether proof is valid for this circuit and public witness.
func (p *PreparedVerifyingKey) Verify(proof groth16.Proof, publicWitness witness.Witness, opts ...backend.VerifierOption) bool {
	if err := p.VerifyErr(proof, publicWitness, opts...); err != nil {
		log.Debugw("proof rejected", "circuit", p.kind.String(), "error", err.Error())
		return false
	}
	return true
}

// checkKeyPair ensures pk and vk come from the same setup by comparing the
// α, β and δ elements both keys carry.
func checkKeyPair(pk groth16.ProvingKey, vk groth16.VerifyingKey) error {
	switch p := pk.(type) {
	case *groth16_bls12381.ProvingKey:
		v, ok := vk.(*groth16_bls12381.VerifyingKey)
		if !ok {
			return fmt.Errorf("verifying key type %T does not match proving key type %T", vk, pk)
		}
		if !p.G1.Alpha.Equal(&v.G1.Alpha) || !p.G1.Beta.Equal(&v.G1.Beta) || !p.G1.Delta.Equal(&v.G1.Delta) ||
			!p.G2.Beta.Equal(&v.G2.Beta) || !p.G2.Delta.Equal(&v.G2.Delta) {
			return fmt.Errorf("proving key and verifying key come from different setups")
		}
	case *groth16_bn254.ProvingKey:
		v, ok := vk.(*groth16_bn254.VerifyingKey)
		if !ok {
			return fmt.Errorf("verifying key type %T does not match proving key type %T", vk, pk)
		}
		if !p.G1.Alpha.Equal(&v.G1.Alpha) || !p.G1.Beta.Equal(&v.G1.Beta) || !p.G1.Delta.Equal(&v.G1.Delta) ||
			!p.G2.Beta.Equal(&v.G2.Beta) || !p.G2.Delta.Equal(&v.G2.Delta) {
			return fmt.Errorf("proving key and verifying key come from different setups")
		}
	default:
		return fmt.Errorf("unsupported proving key type %T", pk)
	}
	return nil
}
