package split

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/test"
	"github.com/stretchr/testify/require"

	"ivcnotes/internal/notes"
	"ivcnotes/internal/transactions/issue"
)

func issuedNote(t *testing.T, auth *notes.Auth, value uint64) *notes.Opening {
	t.Helper()
	var assetHash fr.Element
	_, err := assetHash.SetRandom()
	require.NoError(t, err)
	_, _, opening, err := issue.BuildWitness(auth, assetHash, value)
	require.NoError(t, err)
	return opening
}

func TestBuildWitnessSatisfiable(t *testing.T) {
	auth, err := notes.GenerateAuth(nil)
	require.NoError(t, err)
	receiver, err := notes.GenerateAuth(nil)
	require.NoError(t, err)
	spent := issuedNote(t, auth, 100)

	assignment, pi, result, err := BuildWitness(&Request{
		Auth:     auth,
		Spent:    spent,
		Receiver: receiver.Address(),
		Amount:   30,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), pi.Step)
	require.Equal(t, uint64(30), result.ReceiverOpening.Note.Value)
	require.Equal(t, uint64(70), result.ChangeOpening.Note.Value)
	require.Equal(t, notes.SlotOut0, result.ReceiverOpening.Note.Slot)
	require.Equal(t, notes.SlotOut1, result.ChangeOpening.Note.Slot)

	require.NoError(t, test.IsSolved(&notes.Circuit{}, assignment, ecc.BN254.ScalarField()))
}

func TestChangeOpeningSpendable(t *testing.T) {
	auth, err := notes.GenerateAuth(nil)
	require.NoError(t, err)
	receiver, err := notes.GenerateAuth(nil)
	require.NoError(t, err)
	spent := issuedNote(t, auth, 100)

	_, _, first, err := BuildWitness(&Request{Auth: auth, Spent: spent, Receiver: receiver.Address(), Amount: 30})
	require.NoError(t, err)

	// The value chain continues through the change note: 70 -> 20/50.
	assignment, pi, second, err := BuildWitness(&Request{
		Auth:     auth,
		Spent:    first.ChangeOpening,
		Receiver: receiver.Address(),
		Amount:   20,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), pi.Step)
	require.Equal(t, uint64(50), second.ChangeOpening.Note.Value)
	require.NoError(t, test.IsSolved(&notes.Circuit{}, assignment, ecc.BN254.ScalarField()))
}

func TestChangeStateLinksForward(t *testing.T) {
	auth, err := notes.GenerateAuth(nil)
	require.NoError(t, err)
	receiver, err := notes.GenerateAuth(nil)
	require.NoError(t, err)
	spent := issuedNote(t, auth, 100)

	_, pi1, first, err := BuildWitness(&Request{Auth: auth, Spent: spent, Receiver: receiver.Address(), Amount: 30})
	require.NoError(t, err)
	_, pi2, _, err := BuildWitness(&Request{Auth: auth, Spent: first.ChangeOpening, Receiver: receiver.Address(), Amount: 20})
	require.NoError(t, err)
	require.True(t, pi2.StateIn.Equal(&pi1.StateOut), "consecutive steps must chain through state")
}

func TestPrechecks(t *testing.T) {
	auth, err := notes.GenerateAuth(nil)
	require.NoError(t, err)
	other, err := notes.GenerateAuth(nil)
	require.NoError(t, err)
	spent := issuedNote(t, auth, 100)

	_, _, _, err = BuildWitness(&Request{Auth: auth, Spent: spent, Receiver: other.Address(), Amount: 101})
	require.ErrorContains(t, err, "overdraw")

	_, _, _, err = BuildWitness(&Request{Auth: auth, Spent: spent, Receiver: other.Address(), Amount: 60})
	require.ErrorContains(t, err, "exceeds change")

	_, _, _, err = BuildWitness(&Request{Auth: other, Spent: spent, Receiver: other.Address(), Amount: 30})
	require.ErrorContains(t, err, "not owned")
}

func TestHalfSplitAllowed(t *testing.T) {
	auth, err := notes.GenerateAuth(nil)
	require.NoError(t, err)
	receiver, err := notes.GenerateAuth(nil)
	require.NoError(t, err)
	spent := issuedNote(t, auth, 100)

	// Equal halves sit exactly on the allow-equal boundary.
	assignment, _, _, err := BuildWitness(&Request{Auth: auth, Spent: spent, Receiver: receiver.Address(), Amount: 50})
	require.NoError(t, err)
	require.NoError(t, test.IsSolved(&notes.Circuit{}, assignment, ecc.BN254.ScalarField()))
}
