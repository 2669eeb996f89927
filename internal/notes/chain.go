// chain.go - Append-only transaction chain for one asset.
//
// The chain records every accepted step in order and is persisted as a
// single JSON file. Continuity (step numbering and state linkage) is
// enforced on append; Verify additionally replays proof verification.
//
// NOTE: Chain methods take the internal mutex; callers never lock it.

package notes

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/consensys/gnark/backend/groth16"
)

// Chain is the ordered list of accepted steps for one asset.
type Chain struct {
	AssetHash string `json:"assetHash"`
	Txs       []*Tx  `json:"txs"`

	mu sync.Mutex
}

// NewChain creates an empty chain rooted at the given asset hash.
func NewChain(assetHash string) *Chain {
	return &Chain{AssetHash: assetHash, Txs: make([]*Tx, 0)}
}

// Append accepts a transaction if it extends the chain:
// the first tx has step 0 and stateIn equal to the asset hash, every
// later tx increments step by one and chains stateIn to the predecessor's
// stateOut, and the asset hash never changes.
func (c *Chain) Append(tx *Tx) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tx.AssetHash != c.AssetHash {
		return fmt.Errorf("asset mismatch: chain %s, tx %s", c.AssetHash, tx.AssetHash)
	}
	if len(c.Txs) == 0 {
		if tx.Step != 0 {
			return fmt.Errorf("genesis step must be 0, got %d", tx.Step)
		}
		if tx.StateIn != c.AssetHash {
			return errors.New("genesis stateIn must equal the asset hash")
		}
		c.Txs = append(c.Txs, tx)
		return nil
	}
	head := c.Txs[len(c.Txs)-1]
	if tx.Step != head.Step+1 {
		return fmt.Errorf("step discontinuity: head %d, tx %d", head.Step, tx.Step)
	}
	if tx.StateIn != head.StateOut {
		return errors.New("stateIn does not match head stateOut")
	}
	c.Txs = append(c.Txs, tx)
	return nil
}

// Head returns the latest accepted transaction, or nil for an empty chain.
func (c *Chain) Head() *Tx {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Txs) == 0 {
		return nil
	}
	return c.Txs[len(c.Txs)-1]
}

// Len returns the number of accepted steps.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Txs)
}

// HasNullifier reports whether a nullifier already appears in a split
// step. Issuance steps carry no meaningful nullifier and are skipped.
func (c *Chain) HasNullifier(nullifier string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tx := range c.Txs {
		if tx.Step > 0 && tx.Nullifier == nullifier {
			return true
		}
	}
	return false
}

// Verify replays the continuity checks and every transaction's proof.
func (c *Chain) Verify(vk groth16.VerifyingKey) error {
	c.mu.Lock()
	txs := make([]*Tx, len(c.Txs))
	copy(txs, c.Txs)
	c.mu.Unlock()

	for i, tx := range txs {
		if tx.AssetHash != c.AssetHash {
			return fmt.Errorf("tx %d: asset mismatch", i)
		}
		if uint64(i) != tx.Step {
			return fmt.Errorf("tx %d: step %d out of order", i, tx.Step)
		}
		if i == 0 {
			if tx.StateIn != c.AssetHash {
				return errors.New("genesis stateIn must equal the asset hash")
			}
		} else if tx.StateIn != txs[i-1].StateOut {
			return fmt.Errorf("tx %d: stateIn does not match predecessor", i)
		}
		if err := VerifyTx(tx, vk); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}
	return nil
}

// SaveToFile persists the chain as JSON.
func (c *Chain) SaveToFile(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("chain marshaling failed: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadChainFromFile reads a chain back from JSON.
func LoadChainFromFile(path string) (*Chain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Chain
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("chain unmarshaling failed: %w", err)
	}
	return &c, nil
}
