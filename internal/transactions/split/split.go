// split.go - Split transaction builder.
//
// A split consumes one owned note and produces two: the paid amount for
// the receiver and the remaining change for the sender. Impossible splits
// are rejected natively before any proving work starts.

package split

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"

	"ivcnotes/internal/gadgets/eddsa"
	"ivcnotes/internal/notes"
)

// Request describes one split: spend the opened note, pay Amount to
// Receiver, keep the change.
type Request struct {
	Auth     *notes.Auth
	Spent    *notes.Opening
	Receiver fr.Element
	Amount   uint64
}

// Result is a proved split plus both output openings. The receiver
// opening travels to the payee; the change opening stays in the sender's
// wallet and carries the spendable Out1 line forward.
type Result struct {
	Tx              *notes.Tx
	ReceiverOpening *notes.Opening
	ChangeOpening   *notes.Opening
}

// BuildWitness assembles the split assignment, public input and both
// output openings without proving.
func BuildWitness(req *Request) (*notes.Circuit, *notes.PublicInput, *Result, error) {
	var h notes.Hasher

	valueIn := req.Spent.Note.Value
	if req.Amount > valueIn {
		return nil, nil, nil, fmt.Errorf("overdraw: amount %d exceeds note value %d", req.Amount, valueIn)
	}
	change := valueIn - req.Amount
	if req.Amount > change {
		return nil, nil, nil, fmt.Errorf("amount %d exceeds change %d", req.Amount, change)
	}
	if req.Spent.Note.Slot != notes.SlotOut0 && req.Spent.Note.Slot != notes.SlotOut1 {
		return nil, nil, nil, errors.New("spent note has an invalid slot")
	}

	step := req.Spent.Note.Step + 1
	sender := req.Auth.Address()
	if !req.Spent.Note.Owner.Equal(&sender) {
		return nil, nil, nil, errors.New("spent note is not owned by the signer")
	}

	// Step 1: Rebuild the consumed note's commitments and the state it
	// was accumulated into. The spent side of the pair is named by the
	// note's slot, the sibling fills the other.
	cIn := req.Spent.Commitment(h)
	bIn := req.Spent.BlindedCommitment(h)
	var stateIn fr.Element
	if req.Spent.Note.Slot == notes.SlotOut0 {
		stateIn = h.State(&bIn, &req.Spent.Sibling)
	} else {
		stateIn = h.State(&req.Spent.Sibling, &bIn)
	}
	nullifierKey := req.Auth.NullifierKey()
	nullifier := h.Nullifier(&cIn, &nullifierKey)

	// Step 2: Build both outputs. Out1 keeps the change on the sender's
	// line, Out0 pays the receiver.
	blind0, err := notes.RandomBlind()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("blind sampling failed: %w", err)
	}
	blind1, err := notes.RandomBlind()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("blind sampling failed: %w", err)
	}

	out1 := notes.Note{
		AssetHash: req.Spent.Note.AssetHash,
		Owner:     sender,
		Value:     change,
		Step:      step,
		Parent:    bIn,
		Slot:      notes.SlotOut1,
	}
	c1 := h.Note(&out1)
	b1 := h.BlindNote(&c1, &blind1)

	out0 := notes.Note{
		AssetHash: req.Spent.Note.AssetHash,
		Owner:     req.Receiver,
		Value:     req.Amount,
		Step:      step,
		Parent:    bIn,
		Slot:      notes.SlotOut0,
	}
	c0 := h.Note(&out0)
	// Out0's blinding covers c1, matching the in-circuit derivation.
	b0 := h.BlindNote(&c1, &blind0)

	// Step 3: Public wires and signed transcript.
	stateOut := h.State(&b0, &b1)
	sighash := h.Sighash(&cIn, &c0, &c1)
	sig, err := req.Auth.Sign(&sighash)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("transcript signing failed: %w", err)
	}

	pi := &notes.PublicInput{
		Step:      step,
		AssetHash: req.Spent.Note.AssetHash,
		Sender:    sender,
		StateIn:   stateIn,
		StateOut:  stateOut,
		Nullifier: nullifier,
	}

	assignment := &notes.Circuit{
		ValueIn:      valueIn,
		ValueOut:     change,
		BlindIn:      req.Spent.Blind,
		BlindOut0:    blind0,
		BlindOut1:    blind1,
		Sibling:      req.Spent.Sibling,
		ParentNote:   req.Spent.Note.Parent,
		InputSlot:    uint64(req.Spent.Note.Slot),
		NullifierKey: nullifierKey,
		Receiver:     req.Receiver,
		PublicKey:    eddsa.AssignPublicKey(req.Auth.PublicKey()),
		Signature:    eddsa.AssignSignature(sig),
	}
	pi.Assign(assignment)

	result := &Result{
		ReceiverOpening: &notes.Opening{Note: out0, Blind: blind0, Sibling: b1},
		ChangeOpening:   &notes.Opening{Note: out1, Blind: blind1, Sibling: b0},
	}
	return assignment, pi, result, nil
}

// Split spends the opened note and proves the step.
func Split(req *Request, ccs constraint.ConstraintSystem, pk groth16.ProvingKey) (*Result, error) {
	assignment, pi, result, err := BuildWitness(req)
	if err != nil {
		return nil, err
	}
	tx, err := notes.Prove(pi, assignment, ccs, pk)
	if err != nil {
		return nil, err
	}
	result.Tx = tx
	return result, nil
}
