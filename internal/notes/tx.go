// tx.go - Proof generation and verification for single ledger steps.
//
// A Tx carries the six public inputs as decimal strings plus the opaque
// Groth16 proof. Verifiers rebuild the public witness from the strings
// alone; no private data ever leaves the prover.

package notes

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Tx is one ledger step in wire form.
type Tx struct {
	Step      uint64 `json:"step"`
	AssetHash string `json:"assetHash"`
	Sender    string `json:"sender"`
	StateIn   string `json:"stateIn"`
	StateOut  string `json:"stateOut"`
	Nullifier string `json:"nullifier"`
	Proof     []byte `json:"proof"`
}

// PublicInput is the native-field view of a step's public wires.
type PublicInput struct {
	Step      uint64
	AssetHash fr.Element
	Sender    fr.Element
	StateIn   fr.Element
	StateOut  fr.Element
	Nullifier fr.Element
}

// Tx packages the public input with a serialized proof.
func (pi *PublicInput) Tx(proof []byte) *Tx {
	return &Tx{
		Step:      pi.Step,
		AssetHash: pi.AssetHash.String(),
		Sender:    pi.Sender.String(),
		StateIn:   pi.StateIn.String(),
		StateOut:  pi.StateOut.String(),
		Nullifier: pi.Nullifier.String(),
		Proof:     proof,
	}
}

// Assign copies the public wires into a circuit assignment.
func (pi *PublicInput) Assign(c *Circuit) {
	c.Step = pi.Step
	c.AssetHash = pi.AssetHash
	c.Sender = pi.Sender
	c.StateIn = pi.StateIn
	c.StateOut = pi.StateOut
	c.Nullifier = pi.Nullifier
}

// Compile builds the R1CS for the step circuit on BN254.
func Compile() (constraint.ConstraintSystem, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &Circuit{})
	if err != nil {
		return nil, fmt.Errorf("circuit compilation failed: %w", err)
	}
	return ccs, nil
}

// Prove generates a Groth16 proof for a full witness assignment.
func Prove(pi *PublicInput, assignment *Circuit, ccs constraint.ConstraintSystem, pk groth16.ProvingKey) (*Tx, error) {
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(ccs, pk, w)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("proof marshaling failed: %w", err)
	}
	return pi.Tx(buf.Bytes()), nil
}

// VerifyTx checks a transaction's proof against its public inputs.
// Steps:
//  1. Rebuild the public witness from the wire strings
//  2. Unmarshal the proof
//  3. Verify the Groth16 proof
func VerifyTx(tx *Tx, vk groth16.VerifyingKey) error {
	pi, err := tx.PublicInput()
	if err != nil {
		return err
	}
	var assignment Circuit
	pi.Assign(&assignment)
	w, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness creation failed: %w", err)
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(tx.Proof)); err != nil {
		return fmt.Errorf("proof unmarshaling failed: %w", err)
	}

	if err := groth16.Verify(proof, vk, w); err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}
	return nil
}

// PublicInput parses the wire strings back into field elements.
func (tx *Tx) PublicInput() (*PublicInput, error) {
	pi := &PublicInput{Step: tx.Step}
	fields := []struct {
		name string
		s    string
		dst  *fr.Element
	}{
		{"assetHash", tx.AssetHash, &pi.AssetHash},
		{"sender", tx.Sender, &pi.Sender},
		{"stateIn", tx.StateIn, &pi.StateIn},
		{"stateOut", tx.StateOut, &pi.StateOut},
		{"nullifier", tx.Nullifier, &pi.Nullifier},
	}
	for _, f := range fields {
		if err := parseElement(f.s, f.dst); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", f.name, err)
		}
	}
	return pi, nil
}

func parseElement(s string, dst *fr.Element) error {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("not a decimal field element: %q", s)
	}
	dst.SetBigInt(v)
	return nil
}

// SaveProvingKey saves a Groth16 proving key to disk.
func SaveProvingKey(path string, pk groth16.ProvingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = pk.WriteTo(f)
	return err
}

// SaveVerifyingKey saves a Groth16 verifying key to disk.
func SaveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = vk.WriteTo(f)
	return err
}

// LoadProvingKey loads a Groth16 proving key from disk.
func LoadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BN254)
	_, err = pk.ReadFrom(f)
	return pk, err
}

// LoadVerifyingKey loads a Groth16 verifying key from disk.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BN254)
	_, err = vk.ReadFrom(f)
	return vk, err
}

// SetupOrLoadKeys loads Groth16 keys from disk if both exist, otherwise
// runs the setup and persists the fresh pair.
func SetupOrLoadKeys(ccs constraint.ConstraintSystem, pkPath, vkPath string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	pk, pkErr := LoadProvingKey(pkPath)
	vk, vkErr := LoadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return pk, vk, nil
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, fmt.Errorf("groth16 setup failed: %w", err)
	}
	for _, path := range []string{pkPath, vkPath} {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("key directory creation failed: %w", err)
			}
		}
	}
	if err := SaveProvingKey(pkPath, pk); err != nil {
		return nil, nil, fmt.Errorf("proving key save failed: %w", err)
	}
	if err := SaveVerifyingKey(vkPath, vk); err != nil {
		return nil, nil, fmt.Errorf("verifying key save failed: %w", err)
	}
	return pk, vk, nil
}
