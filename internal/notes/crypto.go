// crypto.go - BN254 Diffie-Hellman key exchange and opening encryption.
//
// Note openings travel to receivers over untrusted channels. The sender
// derives a shared G1 point with the receiver, expands it into a MiMC
// keystream and XORs each opening field as a canonical 32-byte block.

package notes

import (
	"errors"
	"math/big"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// OpeningCipherBlocks is the number of 32-byte blocks in an encrypted opening.
const OpeningCipherBlocks = 8

// DHKeyPair is a BN254 G1 keypair for deriving transfer encryption keys.
type DHKeyPair struct {
	Sk *fr.Element
	Pk *bn254.G1Affine
}

// GenerateDHKeyPair samples a fresh keypair.
func GenerateDHKeyPair() (*DHKeyPair, error) {
	var sk fr.Element
	if _, err := sk.SetRandom(); err != nil {
		return nil, err
	}
	g1Jac, _, _, _ := bn254.Generators()
	var pk bn254.G1Affine
	pk.FromJacobian(&g1Jac)
	pk.ScalarMultiplication(&pk, sk.BigInt(new(big.Int)))
	return &DHKeyPair{Sk: &sk, Pk: &pk}, nil
}

// DHKeyPairFromSecret rebuilds a keypair from a persisted secret.
func DHKeyPairFromSecret(sk *fr.Element) *DHKeyPair {
	g1Jac, _, _, _ := bn254.Generators()
	var pk bn254.G1Affine
	pk.FromJacobian(&g1Jac)
	pk.ScalarMultiplication(&pk, sk.BigInt(new(big.Int)))
	secret := *sk
	return &DHKeyPair{Sk: &secret, Pk: &pk}
}

// ComputeDHShared computes the shared point from our secret and their public key.
func ComputeDHShared(sk *fr.Element, pk *bn254.G1Affine) *bn254.G1Affine {
	var shared bn254.G1Affine
	shared.ScalarMultiplication(pk, sk.BigInt(new(big.Int)))
	return &shared
}

// keystream expands a shared point into n MiMC masks of 32 bytes each. The
// point coordinates are reduced into fr first so every block the hash sees
// is canonical.
func keystream(shared *bn254.G1Affine, n int) [][]byte {
	var x, y fr.Element
	xRaw, yRaw := shared.X.Bytes(), shared.Y.Bytes()
	x.SetBytes(xRaw[:])
	y.SetBytes(yRaw[:])

	h := mimcNative.NewMiMC()
	xb, yb := x.Bytes(), y.Bytes()
	h.Write(xb[:])
	h.Write(yb[:])
	masks := make([][]byte, n)
	prev := h.Sum(nil)
	masks[0] = prev
	for i := 1; i < n; i++ {
		h.Reset()
		h.Write(prev)
		prev = h.Sum(nil)
		masks[i] = prev
	}
	return masks
}

// EncryptedOpening is the wire form of an opening: one masked 32-byte block
// per field, in the order asset, owner, value, step, parent, slot, blind,
// sibling.
type EncryptedOpening [OpeningCipherBlocks][]byte

// openingBlocks flattens an opening into canonical field blocks.
func openingBlocks(o *Opening) [OpeningCipherBlocks][32]byte {
	var value, step, slot fr.Element
	value.SetUint64(o.Note.Value)
	step.SetUint64(o.Note.Step)
	slot.SetUint64(uint64(o.Note.Slot))
	return [OpeningCipherBlocks][32]byte{
		o.Note.AssetHash.Bytes(),
		o.Note.Owner.Bytes(),
		value.Bytes(),
		step.Bytes(),
		o.Note.Parent.Bytes(),
		slot.Bytes(),
		o.Blind.Bytes(),
		o.Sibling.Bytes(),
	}
}

// EncryptOpening masks an opening under the shared point.
func EncryptOpening(o *Opening, shared *bn254.G1Affine) EncryptedOpening {
	blocks := openingBlocks(o)
	masks := keystream(shared, OpeningCipherBlocks)
	var enc EncryptedOpening
	for i := range blocks {
		enc[i] = xorPad(blocks[i][:], masks[i])
	}
	return enc
}

// DecryptOpening reverses EncryptOpening.
func DecryptOpening(enc *EncryptedOpening, shared *bn254.G1Affine) (*Opening, error) {
	masks := keystream(shared, OpeningCipherBlocks)
	var fields [OpeningCipherBlocks][]byte
	for i := range enc {
		fields[i] = xorPad(enc[i], masks[i])
	}

	var o Opening
	o.Note.AssetHash.SetBytes(fields[0])
	o.Note.Owner.SetBytes(fields[1])

	var tmp fr.Element
	value := tmp.SetBytes(fields[2]).BigInt(new(big.Int))
	if !value.IsUint64() {
		return nil, errors.New("opening decryption failed: value out of range")
	}
	o.Note.Value = value.Uint64()
	step := tmp.SetBytes(fields[3]).BigInt(new(big.Int))
	if !step.IsUint64() {
		return nil, errors.New("opening decryption failed: step out of range")
	}
	o.Note.Step = step.Uint64()
	o.Note.Parent.SetBytes(fields[4])
	slot := tmp.SetBytes(fields[5]).BigInt(new(big.Int))
	if !slot.IsUint64() || slot.Uint64() > uint64(SlotOut1) {
		return nil, errors.New("opening decryption failed: invalid slot")
	}
	o.Note.Slot = OutSlot(slot.Uint64())
	o.Blind.SetBytes(fields[6])
	o.Sibling.SetBytes(fields[7])
	return &o, nil
}

// RecognizeOpening decrypts a transferred opening and reports whether the
// note belongs to the given address. Used by receivers to claim notes.
func RecognizeOpening(enc *EncryptedOpening, shared *bn254.G1Affine, owner *fr.Element) (bool, *Opening, error) {
	o, err := DecryptOpening(enc, shared)
	if err != nil {
		return false, nil, err
	}
	if !o.Note.Owner.Equal(owner) {
		return false, nil, nil
	}
	return true, o, nil
}

// xorPad xors two byte slices, padding the shorter one with zeros.
func xorPad(a, b []byte) []byte {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	out := make([]byte, maxLen)
	for i := 0; i < maxLen; i++ {
		var ab, bb byte
		if i < len(a) {
			ab = a[i]
		}
		if i < len(b) {
			bb = b[i]
		}
		out[i] = ab ^ bb
	}
	return out
}
