// issue.go - Issuance transaction builder.
//
// An issuance mints the chain's first note at step 0. The builder derives
// every hash off-circuit with the native hasher, signs the transcript and
// assembles the full witness for proving.

package issue

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"

	"ivcnotes/internal/gadgets/eddsa"
	"ivcnotes/internal/notes"
)

// Result is a proved issuance plus the minted note's opening. The opening
// stays with the issuer; only the Tx goes on chain.
type Result struct {
	Tx      *notes.Tx
	Opening *notes.Opening
}

// BuildWitness assembles the issuance assignment and public input.
// Exposed separately so circuit tests can exercise the witness without
// proving.
func BuildWitness(auth *notes.Auth, assetHash fr.Element, value uint64) (*notes.Circuit, *notes.PublicInput, *notes.Opening, error) {
	var h notes.Hasher

	blind, err := notes.RandomBlind()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("blind sampling failed: %w", err)
	}

	// Step 1: Build the minted note. It enters state on the right-hand
	// side, so its sibling for a later spend is zero.
	opening := &notes.Opening{
		Note: notes.Note{
			AssetHash: assetHash,
			Owner:     auth.Address(),
			Value:     value,
			Step:      0,
			Slot:      notes.SlotIssue,
		},
		Blind: blind,
	}
	cI := opening.Commitment(h)
	bI := opening.BlindedCommitment(h)

	// Step 2: Derive the public wires and the transcript.
	var zero fr.Element
	stateOut := h.State(&zero, &bI)
	sighash := h.Sighash(&zero, &zero, &cI)

	// Step 3: Sign the transcript.
	sig, err := auth.Sign(&sighash)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("transcript signing failed: %w", err)
	}

	pi := &notes.PublicInput{
		Step:      0,
		AssetHash: assetHash,
		Sender:    auth.Address(),
		StateIn:   assetHash,
		StateOut:  stateOut,
	}

	// Step 4: Assemble the assignment. ValueIn mirrors ValueOut so the
	// unconditional ordering gates hold with a zero remainder, and the
	// input slot sits on the Out1 side like the minted note itself.
	assignment := &notes.Circuit{
		ValueIn:      value,
		ValueOut:     value,
		BlindIn:      0,
		BlindOut0:    blind,
		BlindOut1:    0,
		Sibling:      0,
		ParentNote:   0,
		InputSlot:    uint64(notes.SlotIssue),
		NullifierKey: auth.NullifierKey(),
		Receiver:     0,
		PublicKey:    eddsa.AssignPublicKey(auth.PublicKey()),
		Signature:    eddsa.AssignSignature(sig),
	}
	pi.Assign(assignment)
	return assignment, pi, opening, nil
}

// Issue mints value units of the asset and proves the step.
func Issue(auth *notes.Auth, asset *notes.Asset, value uint64, ccs constraint.ConstraintSystem, pk groth16.ProvingKey) (*Result, error) {
	assetHash, err := asset.Hash()
	if err != nil {
		return nil, fmt.Errorf("asset hash derivation failed: %w", err)
	}
	assignment, pi, opening, err := BuildWitness(auth, assetHash, value)
	if err != nil {
		return nil, err
	}
	tx, err := notes.Prove(pi, assignment, ccs, pk)
	if err != nil {
		return nil, err
	}
	return &Result{Tx: tx, Opening: opening}, nil
}
