// eddsa_test.go - Gadget tests against the native signer.

package eddsa

import (
	"crypto/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	eddsaNative "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/consensys/gnark/test"
)

type verifyCircuit struct {
	Message   frontend.Variable `gnark:",public"`
	PublicKey PublicKey
	Signature Signature
}

func (c *verifyCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	return Verify(api, c.Signature, c.Message, c.PublicKey, &h)
}

func signMessage(t *testing.T, msg *fr.Element) (*eddsaNative.PrivateKey, *eddsaNative.Signature) {
	t.Helper()
	sk, err := eddsaNative.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("key generation: %v", err)
	}
	msgBytes := msg.Bytes()
	sigBytes, err := sk.Sign(msgBytes[:], mimcNative.NewMiMC())
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	var sig eddsaNative.Signature
	if _, err := sig.SetBytes(sigBytes); err != nil {
		t.Fatalf("signature decode: %v", err)
	}
	return sk, &sig
}

func TestVerifyValidSignature(t *testing.T) {
	var msg fr.Element
	msg.SetUint64(424242)
	sk, sig := signMessage(t, &msg)

	assignment := &verifyCircuit{
		Message:   msg,
		PublicKey: AssignPublicKey(&sk.PublicKey),
		Signature: AssignSignature(sig),
	}
	if err := test.IsSolved(&verifyCircuit{}, assignment, ecc.BN254.ScalarField()); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	var msg, other fr.Element
	msg.SetUint64(7)
	other.SetUint64(8)
	sk, sig := signMessage(t, &msg)

	assignment := &verifyCircuit{
		Message:   other,
		PublicKey: AssignPublicKey(&sk.PublicKey),
		Signature: AssignSignature(sig),
	}
	if err := test.IsSolved(&verifyCircuit{}, assignment, ecc.BN254.ScalarField()); err == nil {
		t.Fatal("tampered message accepted")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	var msg fr.Element
	msg.SetUint64(99)
	_, sig := signMessage(t, &msg)
	otherSk, err := eddsaNative.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("key generation: %v", err)
	}

	assignment := &verifyCircuit{
		Message:   msg,
		PublicKey: AssignPublicKey(&otherSk.PublicKey),
		Signature: AssignSignature(sig),
	}
	if err := test.IsSolved(&verifyCircuit{}, assignment, ecc.BN254.ScalarField()); err == nil {
		t.Fatal("signature accepted under wrong key")
	}
}
