// node.go - HTTP-JSON message node for peer-to-peer note delivery.
//
// Every node serves a single /message endpoint. Envelopes are routed by
// type: Diffie-Hellman exchange and ping/pong are built in, everything
// else goes through registered handlers.

package p2p

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/rs/zerolog/log"
)

// HandlerFunc processes one received message on the node's behalf.
type HandlerFunc func(n *Node, msg Message)

// Node represents one peer in the network.
type Node struct {
	ID        string
	Address   string
	Peers     map[string]string // peer ID -> address
	server    *http.Server
	waitGroup *sync.WaitGroup

	handlersMutex sync.RWMutex
	handlers      map[string]HandlerFunc

	dhMutex              sync.Mutex
	DHKeys               map[string]*DHState
	dhCompletionChannels map[string]chan error

	healthMutex sync.Mutex
	health      map[string]bool
}

// NewNode creates and initializes a new Node.
func NewNode(id, address string, peers map[string]string, wg *sync.WaitGroup) *Node {
	return &Node{
		ID:                   id,
		Address:              address,
		Peers:                peers,
		waitGroup:            wg,
		handlers:             make(map[string]HandlerFunc),
		DHKeys:               make(map[string]*DHState),
		dhCompletionChannels: make(map[string]chan error),
		health:               make(map[string]bool),
	}
}

// RegisterHandler routes messages of the given type to fn.
func (n *Node) RegisterHandler(messageType string, fn HandlerFunc) {
	n.handlersMutex.Lock()
	defer n.handlersMutex.Unlock()
	n.handlers[messageType] = fn
}

// messageHandler decodes the envelope and dispatches on its type.
func (n *Node) messageHandler(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		log.Warn().Str("node", n.ID).Err(err).Msg("bad request")
		return
	}

	log.Debug().Str("node", n.ID).Str("type", msg.Type).Str("from", msg.SenderID).Msg("message received")

	switch msg.Type {
	case "dh_initiate":
		var payload DHInitiatePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Error().Str("node", n.ID).Err(err).Msg("bad dh_initiate payload")
			break
		}
		n.handleDHInitiate(payload)

	case "dh_response":
		var payload DHResponsePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Error().Str("node", n.ID).Err(err).Msg("bad dh_response payload")
			break
		}
		n.handleDHResponse(payload)

	case "ping":
		// Reply asynchronously so the sender's request completes first.
		go func(target string) {
			if err := n.SendMessage(target, "pong", SimpleTextMessage{Content: "pong"}); err != nil {
				log.Warn().Str("node", n.ID).Str("peer", target).Err(err).Msg("pong failed")
			}
		}(msg.SenderID)

	case "pong":
		n.healthMutex.Lock()
		n.health[msg.SenderID] = true
		n.healthMutex.Unlock()

	default:
		n.handlersMutex.RLock()
		fn, ok := n.handlers[msg.Type]
		n.handlersMutex.RUnlock()
		if ok {
			fn(n, msg)
		} else {
			log.Warn().Str("node", n.ID).Str("type", msg.Type).Msg("unknown message type")
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Message received")
}

// handleDHInitiate runs on the responder: generate our key, compute the
// shared point and send our public key back.
func (n *Node) handleDHInitiate(payload DHInitiatePayload) {
	n.dhMutex.Lock()
	defer n.dhMutex.Unlock()

	var secret fr.Element
	if _, err := secret.SetRandom(); err != nil {
		log.Error().Str("node", n.ID).Err(err).Msg("secret sampling failed")
		return
	}

	g1Jac, _, _, _ := bn254.Generators()
	var g1Gen bn254.G1Affine
	g1Gen.FromJacobian(&g1Jac)

	var public bn254.G1Affine
	public.ScalarMultiplication(&g1Gen, secret.BigInt(new(big.Int)))

	var shared bn254.G1Affine
	shared.ScalarMultiplication(&payload.PublicKey.G1Affine, secret.BigInt(new(big.Int)))

	n.DHKeys[payload.SenderID] = &DHState{
		OurSecret:    secret,
		OurPublic:    public,
		TheirPublic:  payload.PublicKey.G1Affine,
		SharedSecret: shared,
		Status:       "completed",
	}

	response := DHResponsePayload{
		SenderID:  n.ID,
		PublicKey: G1AffineJSON{public},
	}
	// Reply outside the handler so we never block the HTTP request.
	go func() {
		if err := n.SendMessage(payload.SenderID, "dh_response", response); err != nil {
			log.Error().Str("node", n.ID).Str("peer", payload.SenderID).Err(err).Msg("dh_response failed")
		}
	}()
}

// handleDHResponse runs on the initiator once the responder's key is back.
func (n *Node) handleDHResponse(payload DHResponsePayload) {
	n.dhMutex.Lock()
	defer n.dhMutex.Unlock()

	state, ok := n.DHKeys[payload.SenderID]
	if !ok || state.Status != "initiated" {
		log.Warn().Str("node", n.ID).Str("peer", payload.SenderID).Msg("unexpected dh_response")
		return
	}

	var shared bn254.G1Affine
	shared.ScalarMultiplication(&payload.PublicKey.G1Affine, state.OurSecret.BigInt(new(big.Int)))

	state.TheirPublic = payload.PublicKey.G1Affine
	state.SharedSecret = shared
	state.Status = "completed"

	if ch, ok := n.dhCompletionChannels[payload.SenderID]; ok {
		ch <- nil
		close(ch)
		delete(n.dhCompletionChannels, payload.SenderID)
	}
}

// InitiateDHExchange starts a key exchange with a peer. The returned
// channel receives nil on completion or an error.
func (n *Node) InitiateDHExchange(targetID string) <-chan error {
	doneCh := make(chan error)

	go func() {
		n.dhMutex.Lock()
		defer n.dhMutex.Unlock()

		var secret fr.Element
		if _, err := secret.SetRandom(); err != nil {
			doneCh <- fmt.Errorf("secret sampling failed: %w", err)
			close(doneCh)
			return
		}

		g1Jac, _, _, _ := bn254.Generators()
		var g1Gen bn254.G1Affine
		g1Gen.FromJacobian(&g1Jac)

		var public bn254.G1Affine
		public.ScalarMultiplication(&g1Gen, secret.BigInt(new(big.Int)))

		n.DHKeys[targetID] = &DHState{
			OurSecret: secret,
			OurPublic: public,
			Status:    "initiated",
		}
		n.dhCompletionChannels[targetID] = doneCh

		payload := DHInitiatePayload{
			SenderID:  n.ID,
			PublicKey: G1AffineJSON{public},
		}
		if err := n.SendMessage(targetID, "dh_initiate", payload); err != nil {
			doneCh <- fmt.Errorf("dh_initiate send failed: %w", err)
			close(doneCh)
			delete(n.dhCompletionChannels, targetID)
		}
	}()

	return doneCh
}

// StartServer starts the node's HTTP server in a new goroutine and
// signals on ready once the listener is up.
func (n *Node) StartServer(ready chan<- struct{}) {
	mux := http.NewServeMux()
	mux.HandleFunc("/message", n.messageHandler)

	n.server = &http.Server{
		Addr:    n.Address,
		Handler: mux,
	}

	listener, err := net.Listen("tcp", n.Address)
	if err != nil {
		log.Fatal().Str("node", n.ID).Err(err).Msg("listen failed")
	}

	n.waitGroup.Add(1)
	go func() {
		defer n.waitGroup.Done()
		log.Info().Str("node", n.ID).Str("address", n.Address).Msg("server starting")

		ready <- struct{}{}

		if err := n.server.Serve(listener); err != http.ErrServerClosed {
			log.Fatal().Str("node", n.ID).Err(err).Msg("server failed")
		}
		log.Info().Str("node", n.ID).Msg("server stopped")
	}()
}

// SendMessage sends a typed payload to one peer.
func (n *Node) SendMessage(targetID, messageType string, payload interface{}) error {
	targetAddress, ok := n.Peers[targetID]
	if !ok {
		return fmt.Errorf("peer '%s' not found in directory", targetID)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("payload marshaling failed: %w", err)
	}

	msg := Message{
		Type:     messageType,
		Payload:  payloadBytes,
		SenderID: n.ID,
	}
	messageBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("envelope marshaling failed: %w", err)
	}

	req, err := http.NewRequest("POST", "http://"+targetAddress+"/message", bytes.NewBuffer(messageBytes))
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("message send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer returned non-OK status: %s", resp.Status)
	}
	return nil
}

// Broadcast sends a typed payload to every known peer.
func (n *Node) Broadcast(messageType string, payload interface{}) {
	for id := range n.Peers {
		if id == n.ID {
			continue
		}
		go func(target string) {
			if err := n.SendMessage(target, messageType, payload); err != nil {
				log.Warn().Str("node", n.ID).Str("peer", target).Err(err).Msg("broadcast send failed")
			}
		}(id)
	}
}

// HealthCheck pings every peer; pong replies mark peers healthy.
func (n *Node) HealthCheck() {
	n.healthMutex.Lock()
	n.health = make(map[string]bool)
	n.healthMutex.Unlock()

	for id := range n.Peers {
		if id == n.ID {
			continue
		}
		go func(target string) {
			if err := n.SendMessage(target, "ping", SimpleTextMessage{Content: "ping"}); err != nil {
				log.Warn().Str("node", n.ID).Str("peer", target).Err(err).Msg("ping failed")
			}
		}(id)
	}
}

// Healthy reports the last recorded health status for a peer.
func (n *Node) Healthy(peerID string) bool {
	n.healthMutex.Lock()
	defer n.healthMutex.Unlock()
	return n.health[peerID]
}
