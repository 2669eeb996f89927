// main.go - End-to-end scenario for the confidential note ledger.
//
// Runs the full protocol between two identities:
//   - Alice issues 100 units of a fresh asset to herself (step 0)
//   - Alice splits 30 to Bob, keeping 70 as change (step 1)
//   - Alice splits 20 more to Bob from the change, keeping 50 (step 2)
//   - The chain is verified end to end with Groth16
//   - Bob's opening for the first payment is delivered over the p2p layer
//
// Usage:
//   go run main.go

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ivcnotes/internal/notes"
	"ivcnotes/internal/transactions/issue"
	"ivcnotes/internal/transactions/split"
	"ivcnotes/p2p"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	log.Info().Msg("=== Confidential Note Ledger: issue/split/split scenario ===")

	// 1. Compile the step circuit and load or generate the Groth16 keys.
	log.Info().Msg("1. compiling circuit")
	start := time.Now()
	ccs, err := notes.Compile()
	if err != nil {
		log.Fatal().Err(err).Msg("circuit compilation failed")
	}
	log.Info().Dur("elapsed", time.Since(start)).Int("constraints", ccs.GetNbConstraints()).Msg("circuit compiled")

	pk, vk, err := notes.SetupOrLoadKeys(ccs, "keys/step_pk.bin", "keys/step_vk.bin")
	if err != nil {
		log.Fatal().Err(err).Msg("key setup failed")
	}

	// 2. Two identities. Alice issues and pays, Bob receives.
	log.Info().Msg("2. creating identities")
	alice, err := notes.NewParticipant("alice", ccs, pk, vk, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("alice setup failed")
	}
	bob, err := notes.NewParticipant("bob", ccs, pk, vk, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("bob setup failed")
	}

	asset := &notes.Asset{Symbol: "NOTE", Decimals: 6, Issuer: alice.Auth.Address()}
	assetHash, err := asset.Hash()
	if err != nil {
		log.Fatal().Err(err).Msg("asset hash derivation failed")
	}
	chain := notes.NewChain(assetHash.String())
	alice.Chain = chain
	bob.Chain = chain

	// 3. Step 0: Alice mints 100.
	log.Info().Msg("3. issuing 100")
	start = time.Now()
	issued, err := issue.Issue(alice.Auth, asset, 100, ccs, pk)
	if err != nil {
		log.Fatal().Err(err).Msg("issuance failed")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("issuance proved")
	if err := chain.Append(issued.Tx); err != nil {
		log.Fatal().Err(err).Msg("chain append failed")
	}
	alice.Wallet.AddNote(issued.Opening)

	// 4. Step 1: Alice pays Bob 30, keeps 70.
	log.Info().Msg("4. splitting 30/70")
	start = time.Now()
	first, err := split.Split(&split.Request{
		Auth:     alice.Auth,
		Spent:    issued.Opening,
		Receiver: bob.Auth.Address(),
		Amount:   30,
	}, ccs, pk)
	if err != nil {
		log.Fatal().Err(err).Msg("first split failed")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("first split proved")
	if err := chain.Append(first.Tx); err != nil {
		log.Fatal().Err(err).Msg("chain append failed")
	}
	if err := alice.Wallet.MarkSpent(0); err != nil {
		log.Fatal().Err(err).Msg("wallet update failed")
	}
	alice.Wallet.AddNote(first.ChangeOpening)
	bob.Wallet.AddNote(first.ReceiverOpening)

	// 5. Step 2: Alice pays Bob 20 more from the change, keeps 50.
	log.Info().Msg("5. splitting 20/50 from the change")
	start = time.Now()
	second, err := split.Split(&split.Request{
		Auth:     alice.Auth,
		Spent:    first.ChangeOpening,
		Receiver: bob.Auth.Address(),
		Amount:   20,
	}, ccs, pk)
	if err != nil {
		log.Fatal().Err(err).Msg("second split failed")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("second split proved")
	if err := chain.Append(second.Tx); err != nil {
		log.Fatal().Err(err).Msg("chain append failed")
	}
	if err := alice.Wallet.MarkSpent(1); err != nil {
		log.Fatal().Err(err).Msg("wallet update failed")
	}
	alice.Wallet.AddNote(second.ChangeOpening)
	bob.Wallet.AddNote(second.ReceiverOpening)

	// 6. Replay the whole chain through the verifier.
	log.Info().Msg("6. verifying chain")
	start = time.Now()
	if err := chain.Verify(vk); err != nil {
		log.Fatal().Err(err).Msg("chain verification failed")
	}
	log.Info().Dur("elapsed", time.Since(start)).Int("height", chain.Len()).Msg("chain verified")

	// 7. Deliver Bob's first opening over the p2p layer, encrypted under
	// the DH shared point.
	log.Info().Msg("7. delivering opening over p2p")
	if err := deliverOverP2P(alice, bob, first.Tx, first.ReceiverOpening); err != nil {
		log.Fatal().Err(err).Msg("p2p delivery failed")
	}

	// 8. Persist everything.
	log.Info().Msg("8. persisting chain and wallets")
	if err := chain.SaveToFile("chain.json"); err != nil {
		log.Fatal().Err(err).Msg("chain save failed")
	}
	if err := alice.Wallet.Save("alice_wallet.json"); err != nil {
		log.Fatal().Err(err).Msg("wallet save failed")
	}
	if err := bob.Wallet.Save("bob_wallet.json"); err != nil {
		log.Fatal().Err(err).Msg("wallet save failed")
	}

	log.Info().
		Int("alice_unspent", len(alice.Wallet.UnspentNotes())).
		Int("bob_unspent", len(bob.Wallet.UnspentNotes())).
		Msg("scenario complete")
}

// deliverOverP2P sends the receiver's encrypted opening through the
// message network and waits until the receiving node has claimed it.
func deliverOverP2P(alice, bob *notes.Participant, tx *notes.Tx, opening *notes.Opening) error {
	peers := map[string]string{
		"alice": "localhost:9600",
		"bob":   "localhost:9601",
	}
	var wg sync.WaitGroup
	ready := make(chan struct{})
	aliceNode := p2p.NewNode("alice", peers["alice"], peers, &wg)
	bobNode := p2p.NewNode("bob", peers["bob"], peers, &wg)

	claimed := make(chan error, 1)
	bobNode.RegisterHandler("note_transfer", func(n *p2p.Node, msg p2p.Message) {
		var payload p2p.NoteTransferPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			claimed <- fmt.Errorf("payload decode failed: %w", err)
			return
		}
		var enc notes.EncryptedOpening
		if len(payload.Opening) != notes.OpeningCipherBlocks {
			claimed <- fmt.Errorf("expected %d opening blocks, got %d", notes.OpeningCipherBlocks, len(payload.Opening))
			return
		}
		copy(enc[:], payload.Opening)
		shared := bob.SharedSecret(&payload.SenderPub.G1Affine)
		owner := bob.Auth.Address()
		ok, dec, err := notes.RecognizeOpening(&enc, shared, &owner)
		if err != nil {
			claimed <- err
			return
		}
		if !ok {
			claimed <- fmt.Errorf("opening not addressed to bob")
			return
		}
		log.Info().Uint64("value", dec.Note.Value).Msg("bob claimed the delivered opening")
		claimed <- nil
	})

	aliceNode.StartServer(ready)
	bobNode.StartServer(ready)
	<-ready
	<-ready

	shared := alice.SharedSecret(bob.DH.Pk)
	enc := notes.EncryptOpening(opening, shared)
	txJSON, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	payload := p2p.NoteTransferPayload{
		SenderID:  "alice",
		SenderPub: p2p.G1AffineJSON{G1Affine: *alice.DH.Pk},
		Tx:        txJSON,
		Opening:   enc[:],
	}
	if err := aliceNode.SendMessage("bob", "note_transfer", payload); err != nil {
		return err
	}

	select {
	case err := <-claimed:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for bob to claim the opening")
	}
}
