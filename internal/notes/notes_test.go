// notes_test.go - Native primitive tests: hashing, identities, assets,
// opening encryption.

package notes

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"
)

func TestHasherDeterministic(t *testing.T) {
	var h Hasher
	n := Note{Value: 42, Step: 3, Slot: SlotOut1}
	n.AssetHash.SetUint64(7)
	n.Owner.SetUint64(9)
	n.Parent.SetUint64(11)

	first := h.Note(&n)
	second := h.Note(&n)
	require.True(t, first.Equal(&second), "note hash must be deterministic")

	n.Value = 43
	third := h.Note(&n)
	require.False(t, first.Equal(&third), "value change must change the hash")
}

func TestDerivationsDistinct(t *testing.T) {
	var h Hasher
	var a, b fr.Element
	a.SetUint64(1)
	b.SetUint64(2)

	blinded := h.BlindNote(&a, &b)
	state := h.State(&a, &b)
	nullifier := h.Nullifier(&a, &b)
	// All two-input derivations share the hash, so equal inputs collide
	// by construction; distinct inputs must not.
	require.True(t, blinded.Equal(&state))
	require.True(t, state.Equal(&nullifier))

	other := h.State(&b, &a)
	require.False(t, state.Equal(&other), "state must be order sensitive")
}

func TestAssetHash(t *testing.T) {
	var issuer fr.Element
	issuer.SetUint64(77)
	asset := &Asset{Symbol: "NOTE", Decimals: 6, Issuer: issuer}

	first, err := asset.Hash()
	require.NoError(t, err)
	second, err := asset.Hash()
	require.NoError(t, err)
	require.True(t, first.Equal(&second))

	asset.Decimals = 8
	third, err := asset.Hash()
	require.NoError(t, err)
	require.False(t, first.Equal(&third))

	long := &Asset{Symbol: "THIRTYTWOBYTESYMBOLISFARTOOLONGX", Issuer: issuer}
	_, err = long.Hash()
	require.Error(t, err, "over-long symbols must be rejected")
}

func TestAuthSignVerify(t *testing.T) {
	auth, err := GenerateAuth(nil)
	require.NoError(t, err)

	var msg fr.Element
	msg.SetUint64(1234)
	sig, err := auth.Sign(&msg)
	require.NoError(t, err)

	ok, err := auth.Verify(sig, &msg)
	require.NoError(t, err)
	require.True(t, ok)

	var other fr.Element
	other.SetUint64(1235)
	ok, err = auth.Verify(sig, &other)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAuthExportRestore(t *testing.T) {
	auth, err := GenerateAuth(nil)
	require.NoError(t, err)

	restored, err := RestoreAuth(auth.Export())
	require.NoError(t, err)

	origAddr, restAddr := auth.Address(), restored.Address()
	require.True(t, origAddr.Equal(&restAddr), "restored identity must keep its address")

	// A restored key must produce signatures the original accepts.
	var msg fr.Element
	msg.SetUint64(5)
	sig, err := restored.Sign(&msg)
	require.NoError(t, err)
	ok, err := auth.Verify(sig, &msg)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOpeningEncryptionRoundtrip(t *testing.T) {
	alice, err := GenerateDHKeyPair()
	require.NoError(t, err)
	bob, err := GenerateDHKeyPair()
	require.NoError(t, err)

	sharedA := ComputeDHShared(alice.Sk, bob.Pk)
	sharedB := ComputeDHShared(bob.Sk, alice.Pk)
	require.True(t, sharedA.Equal(sharedB), "DH shared points must agree")

	blind, err := RandomBlind()
	require.NoError(t, err)
	opening := &Opening{
		Note: Note{Value: 30, Step: 1, Slot: SlotOut0},
		Blind: blind,
	}
	opening.Note.AssetHash.SetUint64(7)
	opening.Note.Owner.SetUint64(9)
	opening.Note.Parent.SetUint64(11)
	opening.Sibling.SetUint64(13)

	enc := EncryptOpening(opening, sharedA)
	dec, err := DecryptOpening(&enc, sharedB)
	require.NoError(t, err)
	require.Equal(t, opening.Note.Value, dec.Note.Value)
	require.Equal(t, opening.Note.Step, dec.Note.Step)
	require.Equal(t, opening.Note.Slot, dec.Note.Slot)
	require.True(t, opening.Blind.Equal(&dec.Blind))
	require.True(t, opening.Sibling.Equal(&dec.Sibling))
}

func TestRecognizeOpening(t *testing.T) {
	alice, err := GenerateDHKeyPair()
	require.NoError(t, err)
	bob, err := GenerateDHKeyPair()
	require.NoError(t, err)
	eve, err := GenerateDHKeyPair()
	require.NoError(t, err)

	opening := &Opening{Note: Note{Value: 30, Step: 1, Slot: SlotOut0}}
	opening.Note.Owner.SetUint64(42)

	shared := ComputeDHShared(alice.Sk, bob.Pk)
	enc := EncryptOpening(opening, shared)

	var owner fr.Element
	owner.SetUint64(42)
	ok, dec, err := RecognizeOpening(&enc, ComputeDHShared(bob.Sk, alice.Pk), &owner)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(30), dec.Note.Value)

	// The wrong shared point either garbles the fields or yields a
	// foreign owner; it must never claim the note.
	wrongShared := ComputeDHShared(eve.Sk, alice.Pk)
	ok, _, err = RecognizeOpening(&enc, wrongShared, &owner)
	if err == nil {
		require.False(t, ok)
	}
}

func TestWalletSpendTracking(t *testing.T) {
	w := &Wallet{Name: "alice"}
	blind, err := RandomBlind()
	require.NoError(t, err)
	w.AddNote(&Opening{Note: Note{Value: 100, Slot: SlotIssue}, Blind: blind})
	w.AddNote(&Opening{Note: Note{Value: 70, Step: 1, Slot: SlotOut1}, Blind: blind})

	require.Len(t, w.UnspentNotes(), 2)
	require.NoError(t, w.MarkSpent(0))
	require.Len(t, w.UnspentNotes(), 1)
	require.Error(t, w.MarkSpent(5))
}

func TestWalletDetectSpent(t *testing.T) {
	auth, err := GenerateAuth(nil)
	require.NoError(t, err)

	blind, err := RandomBlind()
	require.NoError(t, err)
	opening := &Opening{Note: Note{Value: 100, Slot: SlotIssue, Owner: auth.Address()}, Blind: blind}

	w := &Wallet{Name: "alice", Auth: auth.Export()}
	w.AddNote(opening)

	var h Hasher
	c := opening.Commitment(h)
	nk := auth.NullifierKey()
	nf := h.Nullifier(&c, &nk)

	chain := &Chain{AssetHash: "1", Txs: []*Tx{
		{Step: 0, AssetHash: "1"},
		{Step: 1, AssetHash: "1", Nullifier: nf.String()},
	}}
	require.Equal(t, 1, w.DetectSpent(auth, chain))
	require.Empty(t, w.UnspentNotes())
	// A second pass finds nothing new.
	require.Equal(t, 0, w.DetectSpent(auth, chain))
}

func TestWalletSaveLoad(t *testing.T) {
	auth, err := GenerateAuth(nil)
	require.NoError(t, err)
	dh, err := GenerateDHKeyPair()
	require.NoError(t, err)

	blind, err := RandomBlind()
	require.NoError(t, err)
	w := &Wallet{Name: "alice", Auth: auth.Export(), DHSecret: *dh.Sk}
	w.AddNote(&Opening{Note: Note{Value: 100, Slot: SlotIssue, Owner: auth.Address()}, Blind: blind})

	path := t.TempDir() + "/alice_wallet.json"
	require.NoError(t, w.Save(path))

	loaded, err := LoadWallet(path)
	require.NoError(t, err)
	require.Equal(t, "alice", loaded.Name)
	require.Len(t, loaded.Notes, 1)
	require.Equal(t, uint64(100), loaded.Notes[0].Opening.Note.Value)
	require.True(t, w.DHSecret.Equal(&loaded.DHSecret))

	restored, err := RestoreAuth(loaded.Auth)
	require.NoError(t, err)
	origAddr, restAddr := auth.Address(), restored.Address()
	require.True(t, origAddr.Equal(&restAddr))
}
