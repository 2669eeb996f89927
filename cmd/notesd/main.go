// main.go - Note-ledger daemon.
//
// Serves one identity's ledger surface over HTTP:
//   - /healthz  component health (circuit keys, chain file, wallet)
//   - /metrics  counters, gauges and proving-time histograms
//   - /chain    the current transaction chain
//   - /address  this identity, for peers preparing a transfer
//   - /transfer proved steps with encrypted openings, rate limited per peer
//
// With -demo the daemon first runs the issue/split/split scenario against
// its own chain before serving.
//
// Usage:
//   notesd [-config notesd.json] [-demo]

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"ivcnotes/internal/notes"
	"ivcnotes/internal/transactions/issue"
	"ivcnotes/internal/transactions/split"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "notesd.json", "path to the config file")
	demo := flag.Bool("demo", false, "run the issue/split/split scenario before serving")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	closer, err := SetupLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}

	metrics := NewMetricsCollector()

	// 1. Compile the circuit and load or generate the Groth16 keys.
	log.Info().Msg("compiling step circuit")
	compileStart := time.Now()
	ccs, err := notes.Compile()
	if err != nil {
		log.Fatal().Err(err).Msg("circuit compilation failed")
	}
	metrics.RecordCircuitCompile(time.Since(compileStart))

	pkPath := filepath.Join(cfg.KeyDir, "step_pk.bin")
	vkPath := filepath.Join(cfg.KeyDir, "step_vk.bin")
	pk, vk, err := notes.SetupOrLoadKeys(ccs, pkPath, vkPath)
	if err != nil {
		log.Fatal().Err(err).Msg("key setup failed")
	}

	// 2. Load or create this daemon's identity.
	participant, err := notes.NewParticipant("daemon", ccs, pk, vk, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("participant setup failed")
	}

	// 3. Open the chain for the configured asset. The daemon issues the
	// asset, so its address is the issuer term of the asset hash.
	asset := &notes.Asset{
		Symbol:   cfg.AssetSymbol,
		Decimals: cfg.AssetDecimals,
		Issuer:   participant.Auth.Address(),
	}
	assetHash, err := asset.Hash()
	if err != nil {
		log.Fatal().Err(err).Msg("asset hash derivation failed")
	}
	chain, err := notes.LoadChainFromFile(cfg.ChainPath)
	if err != nil {
		chain = notes.NewChain(assetHash.String())
	}
	participant.Chain = chain
	metrics.RecordChainHeight(chain.Len())

	if *demo {
		if err := runScenario(cfg, participant, asset, metrics); err != nil {
			log.Fatal().Err(err).Msg("demo scenario failed")
		}
	}

	// 4. Health checks over the daemon's persistent artifacts.
	health := NewHealthChecker(version)
	health.RegisterComponent("circuit-keys", func() error {
		if _, err := os.Stat(pkPath); err != nil {
			return fmt.Errorf("proving key: %w", err)
		}
		if _, err := os.Stat(vkPath); err != nil {
			return fmt.Errorf("verifying key: %w", err)
		}
		return nil
	})
	health.RegisterComponent("chain", func() error {
		if chain.Len() == 0 {
			return nil
		}
		_, err := os.Stat(cfg.ChainPath)
		return err
	})
	health.RegisterComponent("wallet", func() error {
		_, err := os.Stat("daemon_wallet.json")
		return err
	})

	// 5. HTTP surface.
	limiter := NewPeerRateLimiter(cfg.RateLimitBurst, cfg.RateLimitRefill, time.Second)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := health.CheckHealth()
		w.Header().Set("Content-Type", "application/json")
		if status.OverallStatus != Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordChainHeight(chain.Len())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metrics.GetMetricsSummary())
	})
	mux.HandleFunc("/chain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chain)
	})
	mux.HandleFunc("/address", participant.AddressHandler())
	mux.HandleFunc("/transfer", func(w http.ResponseWriter, r *http.Request) {
		peer, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			peer = r.RemoteAddr
		}
		if !limiter.Allow(peer) {
			metrics.RecordTransfer(false)
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		before := chain.Len()
		participant.TransferHandler()(w, r)
		metrics.RecordTransfer(chain.Len() > before)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
	log.Info().Int("port", cfg.Port).Str("asset", cfg.AssetSymbol).Msg("notesd listening")
	if err := server.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// runScenario issues the configured amount to the daemon's own identity,
// splits twice along the change line and verifies the resulting chain.
func runScenario(cfg *Config, p *notes.Participant, asset *notes.Asset, metrics *MetricsCollector) error {
	receiver, err := notes.GenerateAuth(nil)
	if err != nil {
		return fmt.Errorf("receiver identity generation failed: %w", err)
	}

	log.Info().Uint64("value", cfg.IssueAmount).Msg("issuing")
	start := time.Now()
	issued, err := issue.Issue(p.Auth, asset, cfg.IssueAmount, p.CCS, p.PK)
	if err != nil {
		return err
	}
	metrics.RecordProofGeneration(time.Since(start))
	metrics.RecordIssue()
	if err := p.Chain.Append(issued.Tx); err != nil {
		return err
	}
	p.Wallet.AddNote(issued.Opening)

	spent := issued.Opening
	for i, amount := range []uint64{cfg.FirstSplitAmount, cfg.SecondSplitAmount} {
		log.Info().Int("round", i+1).Uint64("amount", amount).Msg("splitting")
		start = time.Now()
		result, err := split.Split(&split.Request{
			Auth:     p.Auth,
			Spent:    spent,
			Receiver: receiver.Address(),
			Amount:   amount,
		}, p.CCS, p.PK)
		if err != nil {
			return err
		}
		metrics.RecordProofGeneration(time.Since(start))
		metrics.RecordSplit()
		if err := p.Chain.Append(result.Tx); err != nil {
			return err
		}
		p.Wallet.AddNote(result.ChangeOpening)
		spent = result.ChangeOpening
	}

	if err := p.Chain.Verify(p.VK); err != nil {
		return fmt.Errorf("chain verification failed: %w", err)
	}
	if err := p.Chain.SaveToFile(cfg.ChainPath); err != nil {
		return err
	}
	if err := p.Wallet.Save("daemon_wallet.json"); err != nil {
		return err
	}
	metrics.RecordChainHeight(p.Chain.Len())
	log.Info().Int("height", p.Chain.Len()).Msg("demo scenario complete")
	return nil
}
