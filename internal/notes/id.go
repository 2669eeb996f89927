// id.go - Identities: EdDSA signing key, nullifier key and public address.
//
// The address is the hash commitment to (nullifier key, verification key);
// it is what appears as "sender" in a step's public input. The circuit only
// ever consumes the public key and a signature as witnesses; key generation
// and signing stay out here.

package notes

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
)

// Auth holds one identity's secrets.
type Auth struct {
	signingKey   *eddsa.PrivateKey
	nullifierKey fr.Element
	address      fr.Element
}

// GenerateAuth creates a fresh identity. A nil rng falls back to crypto/rand.
func GenerateAuth(rng io.Reader) (*Auth, error) {
	if rng == nil {
		rng = rand.Reader
	}
	sk, err := eddsa.GenerateKey(rng)
	if err != nil {
		return nil, fmt.Errorf("eddsa keygen failed: %w", err)
	}
	var nk fr.Element
	if _, err := nk.SetRandom(); err != nil {
		return nil, fmt.Errorf("nullifier key sampling failed: %w", err)
	}
	var h Hasher
	return &Auth{
		signingKey:   sk,
		nullifierKey: nk,
		address:      h.IDCommitment(&nk, &sk.PublicKey),
	}, nil
}

// Address returns the public identity commitment.
func (a *Auth) Address() fr.Element { return a.address }

// NullifierKey returns the spend secret.
func (a *Auth) NullifierKey() fr.Element { return a.nullifierKey }

// PublicKey returns the EdDSA verification key.
func (a *Auth) PublicKey() *eddsa.PublicKey { return &a.signingKey.PublicKey }

// Sign signs a sighash. The MiMC instance matches what the circuit uses to
// recompute the H(R, A, M) transcript hash.
func (a *Auth) Sign(sighash *fr.Element) (*eddsa.Signature, error) {
	msg := sighash.Bytes()
	sigBytes, err := a.signingKey.Sign(msg[:], mimcNative.NewMiMC())
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}
	sig := new(eddsa.Signature)
	if _, err := sig.SetBytes(sigBytes); err != nil {
		return nil, fmt.Errorf("signature decoding failed: %w", err)
	}
	return sig, nil
}

// Verify checks a signature over a sighash outside the circuit.
func (a *Auth) Verify(sig *eddsa.Signature, sighash *fr.Element) (bool, error) {
	msg := sighash.Bytes()
	return a.signingKey.PublicKey.Verify(sig.Bytes(), msg[:], mimcNative.NewMiMC())
}

// AuthData is the serializable form of an identity for wallet storage.
type AuthData struct {
	SigningKey   []byte     `json:"signing_key"`
	NullifierKey fr.Element `json:"nullifier_key"`
}

// Export returns the wallet representation of the identity.
func (a *Auth) Export() AuthData {
	return AuthData{
		SigningKey:   a.signingKey.Bytes(),
		NullifierKey: a.nullifierKey,
	}
}

// RestoreAuth rebuilds an identity from its wallet representation.
func RestoreAuth(data AuthData) (*Auth, error) {
	sk := new(eddsa.PrivateKey)
	if _, err := sk.SetBytes(data.SigningKey); err != nil {
		return nil, fmt.Errorf("signing key decoding failed: %w", err)
	}
	var h Hasher
	return &Auth{
		signingKey:   sk,
		nullifierKey: data.NullifierKey,
		address:      h.IDCommitment(&data.NullifierKey, &sk.PublicKey),
	}, nil
}
