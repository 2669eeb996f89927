// circuit.go - Single-step transfer circuit.
//
// One proof covers one ledger step: either an issuance (step 0, mint one
// note) or a split (step >= 1, consume one note, produce two). Both legs
// are always evaluated so the circuit shape is static; conditional
// equality gates bind exactly one leg's equations to the public input.

package notes

import (
	"math"
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"

	"ivcnotes/internal/gadgets/eddsa"
)

// Circuit proves one valid ledger step.
type Circuit struct {
	// Public inputs, in wire order.
	Step      frontend.Variable `gnark:",public"`
	AssetHash frontend.Variable `gnark:",public"`
	Sender    frontend.Variable `gnark:",public"`
	StateIn   frontend.Variable `gnark:",public"`
	StateOut  frontend.Variable `gnark:",public"`
	Nullifier frontend.Variable `gnark:",public"`

	// Private witness.
	ValueIn      frontend.Variable
	ValueOut     frontend.Variable
	BlindIn      frontend.Variable
	BlindOut0    frontend.Variable
	BlindOut1    frontend.Variable
	Sibling      frontend.Variable
	ParentNote   frontend.Variable
	InputSlot    frontend.Variable
	NullifierKey frontend.Variable
	Receiver     frontend.Variable
	PublicKey    eddsa.PublicKey
	Signature    eddsa.Signature
}

// noteVar mirrors Note as circuit variables.
type noteVar struct {
	assetHash frontend.Variable
	owner     frontend.Variable
	value     frontend.Variable
	step      frontend.Variable
	parent    frontend.Variable
	slot      frontend.Variable
}

// hashVars is the in-circuit counterpart of hashElems.
func hashVars(h *mimc.MiMC, elems ...frontend.Variable) frontend.Variable {
	h.Reset()
	h.Write(elems...)
	return h.Sum()
}

func noteHash(h *mimc.MiMC, n noteVar) frontend.Variable {
	return hashVars(h, n.assetHash, n.owner, n.value, n.step, n.parent, n.slot)
}

// conditionalEqual binds a == b only when flag is 1. flag must be boolean.
func conditionalEqual(api frontend.API, flag, a, b frontend.Variable) {
	api.AssertIsEqual(api.Mul(flag, api.Sub(a, b)), 0)
}

func (c *Circuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	// 1. The public sender address binds the witnessed keys.
	address := hashVars(&h, c.NullifierKey, c.PublicKey.A.X, c.PublicKey.A.Y)
	api.AssertIsEqual(c.Sender, address)

	// 2. Branch selector.
	isIssue := api.IsZero(c.Step)
	isSplit := api.Sub(1, isIssue)

	// 3. Issue leg: the minted note enters state on the right-hand side
	// and the prior state is the bare asset hash.
	issueNote := noteVar{c.AssetHash, c.Sender, c.ValueOut, c.Step, 0, uint64(SlotIssue)}
	cI := noteHash(&h, issueNote)
	bI := hashVars(&h, cI, c.BlindOut0)
	conditionalEqual(api, isIssue, c.StateIn, c.AssetHash)
	conditionalEqual(api, isIssue, c.StateOut, hashVars(&h, 0, bI))
	sighashIssue := hashVars(&h, 0, 0, cI)

	// 4. Split input leg. The consumed note must sit in one of the two
	// output slots of the previous step.
	isOut0 := api.IsZero(c.InputSlot)
	isOut1 := api.IsZero(api.Sub(c.InputSlot, 1))
	api.AssertIsEqual(api.Or(isOut0, isOut1), 1)

	// State holds only the previous step's outputs, so the consumed note
	// was minted at step-1.
	spentNote := noteVar{c.AssetHash, c.Sender, c.ValueIn, api.Sub(c.Step, 1), c.ParentNote, c.InputSlot}
	cIn := noteHash(&h, spentNote)
	bIn := hashVars(&h, cIn, c.BlindIn)

	// The spent commitment occupies the slot named by InputSlot, the
	// sibling the other one.
	left := api.Select(isOut0, bIn, c.Sibling)
	right := api.Select(isOut1, bIn, c.Sibling)
	conditionalEqual(api, isSplit, c.StateIn, hashVars(&h, left, right))

	// 5. Nullifier ties the spend to the owner's secret.
	conditionalEqual(api, isSplit, c.Nullifier, hashVars(&h, cIn, c.NullifierKey))

	// 6. Split output leg. Out1 keeps the sender's change, Out0 pays the
	// receiver the remainder; conservation is structural.
	out1 := noteVar{c.AssetHash, c.Sender, c.ValueOut, c.Step, bIn, uint64(SlotOut1)}
	c1 := noteHash(&h, out1)
	b1 := hashVars(&h, c1, c.BlindOut1)

	valueOut0 := api.Sub(c.ValueIn, c.ValueOut)
	api.AssertIsLessOrEqual(valueOut0, c.ValueOut)
	api.AssertIsLessOrEqual(c.ValueOut, new(big.Int).SetUint64(math.MaxUint64))

	out0 := noteVar{c.AssetHash, c.Receiver, valueOut0, c.Step, bIn, uint64(SlotOut0)}
	c0 := noteHash(&h, out0)
	// TODO(protocol v2): blind b0 over c0 instead of c1. Out0 notes cannot
	// currently re-enter the membership equation, so value chains continue
	// through the Out1 line only. Changing the derivation breaks every
	// existing chain and needs a coordinated version bump.
	b0 := hashVars(&h, c1, c.BlindOut0)

	conditionalEqual(api, isSplit, c.StateOut, hashVars(&h, b0, b1))
	sighashSplit := hashVars(&h, cIn, c0, c1)

	// 7. The witnessed signature must cover the selected transcript.
	sighash := api.Select(isIssue, sighashIssue, sighashSplit)
	return eddsa.Verify(api, c.Signature, sighash, c.PublicKey, &h)
}
