// Package eddsa verifies EdDSA signatures over the BN254 twisted Edwards
// curve inside a BN254 circuit.
//
// The scalar S lives in the curve's subgroup order field, not the snark
// field, so it is carried as an emulated element and recombined into a
// native variable before the double-base scalar multiplication. The
// subgroup order is 251 bits, below the snark field size, so the
// recombination cannot wrap.
package eddsa

import (
	"math/big"

	curveNative "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	eddsaNative "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	tedwards "github.com/consensys/gnark-crypto/ecc/twistededwards"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/algebra/native/twistededwards"
	"github.com/consensys/gnark/std/hash"
	"github.com/consensys/gnark/std/math/bits"
	"github.com/consensys/gnark/std/math/emulated"
)

// scalarBits is the bit length of the twisted Edwards subgroup order.
const scalarBits = 251

// ScalarField is the emulated scalar field of the curve's prime subgroup.
type ScalarField struct{}

func (ScalarField) NbLimbs() uint     { return 4 }
func (ScalarField) BitsPerLimb() uint { return 64 }
func (ScalarField) IsPrime() bool     { return true }
func (ScalarField) Modulus() *big.Int {
	order := curveNative.GetEdwardsCurve().Order
	return new(big.Int).Set(&order)
}

// PublicKey is an in-circuit EdDSA public key.
type PublicKey struct {
	A twistededwards.Point
}

// Signature is an in-circuit EdDSA signature. S is an element of the
// subgroup order field.
type Signature struct {
	R twistededwards.Point
	S emulated.Element[ScalarField]
}

// Verify asserts sig is a valid signature on msg under pub. The hash
// function must match the one used by the native signer.
func Verify(api frontend.API, sig Signature, msg frontend.Variable, pub PublicKey, hFunc hash.FieldHasher) error {
	curve, err := twistededwards.NewEdCurve(api, tedwards.BN254)
	if err != nil {
		return err
	}

	// 1. Recombine S from its emulated limbs. The high five bits of the
	// 256-bit decomposition must be zero for the value to fit the order.
	field, err := emulated.NewField[ScalarField](api)
	if err != nil {
		return err
	}
	sBits := field.ToBits(&sig.S)
	for i := scalarBits; i < len(sBits); i++ {
		api.AssertIsEqual(sBits[i], 0)
	}
	s := bits.FromBinary(api, sBits[:scalarBits])

	// 2. hRAM = H(R, A, M).
	hFunc.Reset()
	hFunc.Write(sig.R.X, sig.R.Y, pub.A.X, pub.A.Y, msg)
	hRAM := hFunc.Sum()

	// 3. [S]G - [hRAM]A - R must vanish on the prime subgroup.
	base := twistededwards.Point{
		X: curve.Params().Base[0],
		Y: curve.Params().Base[1],
	}
	negA := curve.Neg(pub.A)
	q := curve.DoubleBaseScalarMul(base, negA, s, hRAM)
	curve.AssertIsOnCurve(q)
	q = curve.Add(q, curve.Neg(sig.R))

	// 4. Clear the cofactor (8) before the identity check.
	q = curve.Double(curve.Double(curve.Double(q)))
	api.AssertIsEqual(q.X, 0)
	api.AssertIsEqual(q.Y, 1)
	return nil
}

// AssignPublicKey converts a native public key into witness form.
func AssignPublicKey(pub *eddsaNative.PublicKey) PublicKey {
	return PublicKey{
		A: twistededwards.Point{X: pub.A.X, Y: pub.A.Y},
	}
}

// AssignSignature converts a native signature into witness form.
func AssignSignature(sig *eddsaNative.Signature) Signature {
	return Signature{
		R: twistededwards.Point{X: sig.R.X, Y: sig.R.Y},
		S: emulated.ValueOf[ScalarField](new(big.Int).SetBytes(sig.S[:])),
	}
}
