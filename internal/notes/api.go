// api.go - Wallet persistence, participant orchestration and the REST surface.
//
// Each participant keeps a wallet file (e.g. bob_wallet.json) holding its
// identity material and recognized note openings, and serves two
// endpoints: /address exposes the identity, /transfer accepts a proved
// step plus an encrypted opening addressed to this participant.

package notes

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/rs/zerolog/log"
)

// WalletNote is one owned opening plus its spend status.
type WalletNote struct {
	Opening *Opening `json:"opening"`
	Spent   bool     `json:"spent"`
}

// Wallet stores a participant's identity material and recognized notes.
type Wallet struct {
	Name     string        `json:"name"`
	Auth     AuthData      `json:"auth"`
	DHSecret fr.Element    `json:"dhSecret"`
	Notes    []*WalletNote `json:"notes"`
}

// LoadWallet loads a wallet from a JSON file.
func LoadWallet(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var w Wallet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("wallet unmarshaling failed: %w", err)
	}
	return &w, nil
}

// Save persists the wallet as JSON.
func (w *Wallet) Save(path string) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("wallet marshaling failed: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// AddNote records a recognized opening.
func (w *Wallet) AddNote(o *Opening) {
	w.Notes = append(w.Notes, &WalletNote{Opening: o})
}

// MarkSpent flags the note at index as consumed.
func (w *Wallet) MarkSpent(index int) error {
	if index < 0 || index >= len(w.Notes) {
		return fmt.Errorf("note index %d out of range", index)
	}
	w.Notes[index].Spent = true
	return nil
}

// UnspentNotes returns the openings still available for spending.
func (w *Wallet) UnspentNotes() []*WalletNote {
	var out []*WalletNote
	for _, n := range w.Notes {
		if !n.Spent {
			out = append(out, n)
		}
	}
	return out
}

// DetectSpent recomputes this wallet's own nullifiers and marks any note
// whose nullifier already appears on the chain. Catches spends performed
// from another device against the same identity.
func (w *Wallet) DetectSpent(auth *Auth, chain *Chain) int {
	var h Hasher
	nk := auth.NullifierKey()
	marked := 0
	for _, n := range w.Notes {
		if n.Spent {
			continue
		}
		c := n.Opening.Commitment(h)
		nf := h.Nullifier(&c, &nk)
		if chain.HasNullifier(nf.String()) {
			n.Spent = true
			marked++
		}
	}
	return marked
}

// PubKeyResponse is the REST view of a participant's identity: the
// ledger address plus the hex-encoded Diffie-Hellman point.
type PubKeyResponse struct {
	Address string `json:"address"`
	X       string `json:"x"`
	Y       string `json:"y"`
}

// TransferRequest carries a proved step plus an opening encrypted to the
// receiving participant.
type TransferRequest struct {
	SenderPub PubKeyResponse   `json:"senderPub"`
	Tx        *Tx              `json:"tx"`
	Opening   EncryptedOpening `json:"opening"`
}

// Participant manages keys, wallet, chain and proving artifacts for one
// identity.
type Participant struct {
	Name   string
	Auth   *Auth
	DH     *DHKeyPair
	Wallet *Wallet
	CCS    constraint.ConstraintSystem
	PK     groth16.ProvingKey
	VK     groth16.VerifyingKey
	Chain  *Chain
	Mu     sync.Mutex
}

// NewParticipant loads the participant's wallet from <name>_wallet.json,
// creating a fresh identity if no wallet exists yet.
func NewParticipant(name string, ccs constraint.ConstraintSystem, pk groth16.ProvingKey, vk groth16.VerifyingKey, chain *Chain) (*Participant, error) {
	walletPath := fmt.Sprintf("%s_wallet.json", name)
	p := &Participant{Name: name, CCS: ccs, PK: pk, VK: vk, Chain: chain}

	if w, err := LoadWallet(walletPath); err == nil {
		auth, err := RestoreAuth(w.Auth)
		if err != nil {
			return nil, fmt.Errorf("wallet %s: %w", walletPath, err)
		}
		p.Auth = auth
		p.DH = DHKeyPairFromSecret(&w.DHSecret)
		p.Wallet = w
		return p, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("wallet %s: %w", walletPath, err)
	}

	auth, err := GenerateAuth(nil)
	if err != nil {
		return nil, fmt.Errorf("identity generation failed: %w", err)
	}
	dh, err := GenerateDHKeyPair()
	if err != nil {
		return nil, fmt.Errorf("key exchange setup failed: %w", err)
	}
	p.Auth = auth
	p.DH = dh
	p.Wallet = &Wallet{Name: name, Auth: auth.Export(), DHSecret: *dh.Sk}
	if err := p.Wallet.Save(walletPath); err != nil {
		return nil, err
	}
	return p, nil
}

// PubKeyResponse builds the identity payload served at /address.
func (p *Participant) PubKeyResponse() PubKeyResponse {
	addr := p.Auth.Address()
	xBytes, yBytes := p.DH.Pk.X.Bytes(), p.DH.Pk.Y.Bytes()
	return PubKeyResponse{
		Address: addr.String(),
		X:       hex.EncodeToString(xBytes[:]),
		Y:       hex.EncodeToString(yBytes[:]),
	}
}

// SharedSecret computes the DH shared point with another public key.
func (p *Participant) SharedSecret(otherPub *bn254.G1Affine) *bn254.G1Affine {
	return ComputeDHShared(p.DH.Sk, otherPub)
}

// RunServer starts the participant's REST server in the background.
func (p *Participant) RunServer(port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/address", p.handleAddress)
	mux.HandleFunc("/transfer", p.handleTransfer)
	go func() {
		log.Info().Str("participant", p.Name).Int("port", port).Msg("listening")
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			log.Fatal().Err(err).Str("participant", p.Name).Msg("server error")
		}
	}()
}

// AddressHandler exposes the /address handler for external routers.
func (p *Participant) AddressHandler() http.HandlerFunc { return p.handleAddress }

// TransferHandler exposes the /transfer handler for external routers.
func (p *Participant) TransferHandler() http.HandlerFunc { return p.handleTransfer }

func (p *Participant) handleAddress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p.PubKeyResponse())
}

// handleTransfer verifies an incoming step, decrypts the opening and, if
// the note is addressed to this participant, extends the chain and wallet.
func (p *Participant) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	senderPub, err := parseDHPoint(req.SenderPub.X, req.SenderPub.Y)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid sender pubkey: %v", err), http.StatusBadRequest)
		return
	}
	if req.Tx == nil {
		http.Error(w, "missing tx", http.StatusBadRequest)
		return
	}
	if err := VerifyTx(req.Tx, p.VK); err != nil {
		http.Error(w, fmt.Sprintf("invalid tx: %v", err), http.StatusBadRequest)
		return
	}

	shared := p.SharedSecret(senderPub)
	owner := p.Auth.Address()
	ok, opening, err := RecognizeOpening(&req.Opening, shared, &owner)
	if err != nil {
		http.Error(w, fmt.Sprintf("decryption failed: %v", err), http.StatusBadRequest)
		return
	}
	if !ok {
		fmt.Fprint(w, "note not addressed to this participant")
		return
	}

	p.Mu.Lock()
	defer p.Mu.Unlock()
	if p.Chain.HasNullifier(req.Tx.Nullifier) {
		http.Error(w, "nullifier already on chain", http.StatusConflict)
		return
	}
	if err := p.Chain.Append(req.Tx); err != nil {
		http.Error(w, fmt.Sprintf("chain append failed: %v", err), http.StatusConflict)
		return
	}
	if err := p.Chain.SaveToFile(fmt.Sprintf("%s_chain.json", p.Name)); err != nil {
		http.Error(w, fmt.Sprintf("chain save failed: %v", err), http.StatusInternalServerError)
		return
	}
	p.Wallet.AddNote(opening)
	if err := p.Wallet.Save(fmt.Sprintf("%s_wallet.json", p.Name)); err != nil {
		http.Error(w, fmt.Sprintf("wallet save failed: %v", err), http.StatusInternalServerError)
		return
	}
	log.Info().
		Str("participant", p.Name).
		Uint64("value", opening.Note.Value).
		Uint64("step", opening.Note.Step).
		Msg("note received")
	fmt.Fprintf(w, "note received: value=%d", opening.Note.Value)
}

// FetchPeerAddress fetches a peer's identity from its REST endpoint.
func FetchPeerAddress(addr string) (*PubKeyResponse, *bn254.G1Affine, error) {
	resp, err := http.Get(fmt.Sprintf("http://%s/address", addr))
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	var pkResp PubKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&pkResp); err != nil {
		return nil, nil, err
	}
	point, err := parseDHPoint(pkResp.X, pkResp.Y)
	if err != nil {
		return nil, nil, err
	}
	return &pkResp, point, nil
}

// SendTransfer posts a proved step and encrypted opening to a peer.
func SendTransfer(addr string, senderPub *bn254.G1Affine, tx *Tx, opening EncryptedOpening) error {
	xBytes, yBytes := senderPub.X.Bytes(), senderPub.Y.Bytes()
	req := TransferRequest{
		SenderPub: PubKeyResponse{
			X: hex.EncodeToString(xBytes[:]),
			Y: hex.EncodeToString(yBytes[:]),
		},
		Tx:      tx,
		Opening: opening,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := http.Post(fmt.Sprintf("http://%s/transfer", addr), "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer rejected transfer: %s", string(body))
	}
	log.Info().Str("peer", addr).Str("response", string(body)).Msg("transfer delivered")
	return nil
}

func parseDHPoint(xHex, yHex string) (*bn254.G1Affine, error) {
	xBytes, err := hex.DecodeString(xHex)
	if err != nil || len(xBytes) != 32 {
		return nil, errors.New("invalid point X")
	}
	yBytes, err := hex.DecodeString(yHex)
	if err != nil || len(yBytes) != 32 {
		return nil, errors.New("invalid point Y")
	}
	var p bn254.G1Affine
	p.X.SetBytes(xBytes)
	p.Y.SetBytes(yBytes)
	if !p.IsOnCurve() {
		return nil, errors.New("point not on curve")
	}
	return &p, nil
}
