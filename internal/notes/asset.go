// asset.go - Asset identity derivation.
//
// An asset is identified by the Poseidon hash of its issuance terms. The
// circuit only ever sees the hash, which doubles as the genesis state of the
// asset's note chains.

package notes

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/iden3/go-iden3-crypto/poseidon"
)

// Asset describes an issuable asset.
type Asset struct {
	Symbol   string     `json:"symbol"`
	Decimals uint8      `json:"decimals"`
	Issuer   fr.Element `json:"issuer"` // address of the issuing identity
}

// Hash derives the asset identifier from the terms.
func (a *Asset) Hash() (fr.Element, error) {
	var out fr.Element
	if len(a.Symbol) == 0 || len(a.Symbol) > 31 {
		return out, fmt.Errorf("asset symbol must be 1..31 bytes, got %d", len(a.Symbol))
	}
	h, err := poseidon.Hash([]*big.Int{
		new(big.Int).SetBytes([]byte(a.Symbol)),
		new(big.Int).SetUint64(uint64(a.Decimals)),
		a.Issuer.BigInt(new(big.Int)),
	})
	if err != nil {
		return out, fmt.Errorf("asset hash failed: %w", err)
	}
	out.SetBigInt(h)
	return out, nil
}
