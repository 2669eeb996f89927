package issue

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/test"
	"github.com/stretchr/testify/require"

	"ivcnotes/internal/notes"
)

func TestBuildWitnessSatisfiable(t *testing.T) {
	auth, err := notes.GenerateAuth(nil)
	require.NoError(t, err)
	var assetHash fr.Element
	_, err = assetHash.SetRandom()
	require.NoError(t, err)

	assignment, pi, opening, err := BuildWitness(auth, assetHash, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(0), pi.Step)
	require.True(t, pi.StateIn.Equal(&assetHash))
	require.Equal(t, uint64(100), opening.Note.Value)
	require.Equal(t, notes.SlotIssue, opening.Note.Slot)
	require.True(t, opening.Sibling.IsZero(), "the minted note's sibling slot is empty")

	require.NoError(t, test.IsSolved(&notes.Circuit{}, assignment, ecc.BN254.ScalarField()))
}

func TestMintedOpeningMatchesState(t *testing.T) {
	auth, err := notes.GenerateAuth(nil)
	require.NoError(t, err)
	var assetHash fr.Element
	_, err = assetHash.SetRandom()
	require.NoError(t, err)

	_, pi, opening, err := BuildWitness(auth, assetHash, 42)
	require.NoError(t, err)

	// The returned opening must reconstruct the published stateOut, or
	// the note could never be spent later.
	var h notes.Hasher
	b := opening.BlindedCommitment(h)
	var zero fr.Element
	state := h.State(&zero, &b)
	require.True(t, pi.StateOut.Equal(&state))
}
