// chain_test.go - Continuity and persistence tests for the chain.
//
// Proof verification is covered by the protocol tests; these use bare
// transactions to exercise the append rules cheaply.

package notes

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func tx(step uint64, asset, stateIn, stateOut, nullifier string) *Tx {
	return &Tx{Step: step, AssetHash: asset, StateIn: stateIn, StateOut: stateOut, Nullifier: nullifier}
}

func TestChainAppendRules(t *testing.T) {
	c := NewChain("asset")

	require.Error(t, c.Append(tx(1, "asset", "asset", "s1", "")), "genesis must be step 0")
	require.Error(t, c.Append(tx(0, "asset", "other", "s1", "")), "genesis stateIn must be the asset hash")
	require.Error(t, c.Append(tx(0, "wrong", "wrong", "s1", "")), "asset must match")

	require.NoError(t, c.Append(tx(0, "asset", "asset", "s1", "0")))
	require.Equal(t, 1, c.Len())

	require.Error(t, c.Append(tx(2, "asset", "s1", "s2", "n1")), "steps must be contiguous")
	require.Error(t, c.Append(tx(1, "asset", "bogus", "s2", "n1")), "stateIn must chain")

	require.NoError(t, c.Append(tx(1, "asset", "s1", "s2", "n1")))
	require.Equal(t, "s2", c.Head().StateOut)
}

func TestChainNullifierLookup(t *testing.T) {
	c := NewChain("asset")
	require.NoError(t, c.Append(tx(0, "asset", "asset", "s1", "0")))
	require.NoError(t, c.Append(tx(1, "asset", "s1", "s2", "n1")))

	require.True(t, c.HasNullifier("n1"))
	require.False(t, c.HasNullifier("n2"))
	// The issuance step's nullifier field carries no spend.
	require.False(t, c.HasNullifier("0"))
}

func TestChainSaveLoad(t *testing.T) {
	c := NewChain("asset")
	require.NoError(t, c.Append(tx(0, "asset", "asset", "s1", "0")))
	require.NoError(t, c.Append(tx(1, "asset", "s1", "s2", "n1")))

	path := filepath.Join(t.TempDir(), "chain.json")
	require.NoError(t, c.SaveToFile(path))

	loaded, err := LoadChainFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "asset", loaded.AssetHash)
	require.Equal(t, 2, loaded.Len())
	require.Equal(t, "s2", loaded.Head().StateOut)

	// A loaded chain keeps enforcing the append rules.
	require.Error(t, loaded.Append(tx(5, "asset", "s2", "s3", "n2")))
	require.NoError(t, loaded.Append(tx(2, "asset", "s2", "s3", "n2")))
}
