// hasher.go - The six algebraic hash derivations of the note protocol.
//
// Every commitment, state digest, nullifier, sighash and identity address in
// the system is a MiMC hash over BN254 scalar field elements. The in-circuit
// mirror of each derivation lives in circuit.go; the two must agree bit for
// bit, which is why every input is written as a canonical 32-byte field block.

package notes

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
)

// Hasher exposes the fixed hash derivations shared by provers and verifiers.
// It carries no state of its own; the MiMC round constants are process-wide
// and read-only, so one value can be shared across goroutines freely.
type Hasher struct{}

// hashElems hashes field elements as canonical 32-byte blocks.
func hashElems(elems ...*fr.Element) fr.Element {
	h := mimcNative.NewMiMC()
	for _, e := range elems {
		b := e.Bytes()
		h.Write(b[:])
	}
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}

// Note derives the hiding commitment of a note.
func (Hasher) Note(n *Note) fr.Element {
	var value, step, slot fr.Element
	value.SetUint64(n.Value)
	step.SetUint64(n.Step)
	slot.SetUint64(uint64(n.Slot))
	return hashElems(&n.AssetHash, &n.Owner, &value, &step, &n.Parent, &slot)
}

// BlindNote randomizes a commitment before it enters state.
func (Hasher) BlindNote(commitment, blind *fr.Element) fr.Element {
	return hashElems(commitment, blind)
}

// State accumulates the two output slots of a step into one digest.
func (Hasher) State(left, right *fr.Element) fr.Element {
	return hashElems(left, right)
}

// Nullifier ties a spent commitment to its owner's spend secret.
func (Hasher) Nullifier(commitment, nullifierKey *fr.Element) fr.Element {
	return hashElems(commitment, nullifierKey)
}

// Sighash derives the transcript digest a step's signature must cover.
func (Hasher) Sighash(in, out0, out1 *fr.Element) fr.Element {
	return hashElems(in, out0, out1)
}

// IDCommitment derives the public address of an identity.
func (Hasher) IDCommitment(nullifierKey *fr.Element, pub *eddsa.PublicKey) fr.Element {
	return hashElems(nullifierKey, &pub.A.X, &pub.A.Y)
}
