// note.go - Note and opening types for the confidential transfer protocol.
//
// A Note is the unit of value. Verifiers only ever see its commitment and
// blinded commitment; the note itself travels encrypted between owners.

package notes

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// OutSlot discriminates where a note entered its creating step's state.
type OutSlot uint8

const (
	// SlotOut0 is the receiver side of a split.
	SlotOut0 OutSlot = 0
	// SlotOut1 is the change side of a split.
	SlotOut1 OutSlot = 1
	// SlotIssue marks the sole output of a mint. It shares Out1's value: the
	// minted note occupies the right state slot, and spending it later must
	// pass the input gate, which only admits the two split discriminators.
	SlotIssue OutSlot = 1
)

// Note is a value-bearing record: asset, owner, amount, the step that
// created it, a link to its parent input and the slot it occupies.
type Note struct {
	AssetHash fr.Element `json:"asset_hash"`
	Owner     fr.Element `json:"owner"`
	Value     uint64     `json:"value"`
	Step      uint64     `json:"step"`
	Parent    fr.Element `json:"parent"`
	Slot      OutSlot    `json:"slot"`
}

// Opening is the private data the owner needs to spend a note: the note
// itself, its blinding factor, and the sibling entry its state digest was
// built with.
type Opening struct {
	Note    Note       `json:"note"`
	Blind   fr.Element `json:"blind"`
	Sibling fr.Element `json:"sibling"`
}

// Commitment returns the note's commitment under h.
func (o *Opening) Commitment(h Hasher) fr.Element {
	return h.Note(&o.Note)
}

// BlindedCommitment returns the blinded form the input leg of a spend
// derives from this opening.
func (o *Opening) BlindedCommitment(h Hasher) fr.Element {
	cm := h.Note(&o.Note)
	return h.BlindNote(&cm, &o.Blind)
}

// RandomBlind samples a blinding factor.
func RandomBlind() (fr.Element, error) {
	var b fr.Element
	if _, err := b.SetRandom(); err != nil {
		return b, err
	}
	return b, nil
}
