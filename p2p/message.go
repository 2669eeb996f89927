// message.go - Wire envelopes and payloads for the note-transfer network.

package p2p

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// G1AffineJSON wraps bn254.G1Affine with base64 JSON marshaling.
type G1AffineJSON struct {
	bn254.G1Affine
}

// MarshalJSON implements the json.Marshaler interface.
func (p G1AffineJSON) MarshalJSON() ([]byte, error) {
	bytes := p.G1Affine.Marshal()
	return []byte(`"` + base64.StdEncoding.EncodeToString(bytes) + `"`), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (p *G1AffineJSON) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid JSON string for G1AffineJSON")
	}
	b, err := base64.StdEncoding.DecodeString(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	return p.G1Affine.Unmarshal(b)
}

// Message is the generic envelope for anything sent between nodes. The
// payload stays raw until a registered handler decodes it.
type Message struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"`
}

// DHState holds the state of a single Diffie-Hellman exchange.
type DHState struct {
	OurSecret    fr.Element
	OurPublic    bn254.G1Affine
	TheirPublic  bn254.G1Affine
	SharedSecret bn254.G1Affine
	Status       string // "initiated" or "completed"
}

// DHInitiatePayload carries the initiator's public key.
type DHInitiatePayload struct {
	SenderID  string       `json:"senderId"`
	PublicKey G1AffineJSON `json:"publicKey"`
}

// DHResponsePayload carries the responder's public key back.
type DHResponsePayload struct {
	SenderID  string       `json:"senderId"`
	PublicKey G1AffineJSON `json:"publicKey"`
}

// NoteTransferPayload moves a proved ledger step plus the encrypted
// opening blocks for the receiver. The transaction stays raw JSON so the
// network layer needs no knowledge of its structure.
type NoteTransferPayload struct {
	SenderID  string          `json:"senderId"`
	SenderPub G1AffineJSON    `json:"senderPub"`
	Tx        json.RawMessage `json:"tx"`
	Opening   [][]byte        `json:"opening"`
}

// SimpleTextMessage is a plain text payload, mostly for tests.
type SimpleTextMessage struct {
	Content string `json:"content"`
}
