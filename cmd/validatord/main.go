// Command validatord runs a single DAG-consensus validator: it loads the
// process configuration, opens storage, and wires together the committee,
// mempool, safety-rules, DAG, quorum driver, executor, and authority façade
// via the usual flag-parse / logging.Setup / config.Load / storage-open
// entrypoint sequence.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/objectledger/valcore/authority"
	"github.com/objectledger/valcore/checkpoint"
	"github.com/objectledger/valcore/committee"
	"github.com/objectledger/valcore/config"
	"github.com/objectledger/valcore/crypto"
	"github.com/objectledger/valcore/dag"
	"github.com/objectledger/valcore/executor"
	"github.com/objectledger/valcore/mempool"
	"github.com/objectledger/valcore/object"
	"github.com/objectledger/valcore/observability/logging"
	"github.com/objectledger/valcore/quorum"
	"github.com/objectledger/valcore/safety"
	"github.com/objectledger/valcore/storage"
	"github.com/objectledger/valcore/types"
)

func main() {
	configFile := flag.String("config", "./valcore.toml", "Path to the configuration file")
	metricsAddr := flag.String("metrics", ":9464", "Address the Prometheus /metrics endpoint listens on")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VALCORE_ENV"))
	logger := logging.Setup("validatord", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		fmt.Fprintf(os.Stderr, "validatord: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Info("config loaded",
		logging.MaskField("validator_key", cfg.ValidatorKey),
		"genesis_file", cfg.GenesisFile,
	)

	validatorKey, err := crypto.PrivateKeyFromBytes(mustHexDecode(cfg.ValidatorKey))
	if err != nil {
		logger.Error("invalid validator key", "err", err)
		os.Exit(1)
	}

	genesis, err := loadOrSelfGenesis(cfg, validatorKey)
	if err != nil {
		logger.Error("failed to resolve genesis committee", "err", err)
		os.Exit(1)
	}

	db, err := openStorage(cfg.Storage)
	if err != nil {
		logger.Error("failed to open storage", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	comm := committee.New(types.Epoch(genesis.Epoch), genesisValidators(genesis))
	epochs, err := committee.NewEpochManager(db, comm)
	if err != nil {
		logger.Error("failed to load committee state", "err", err)
		os.Exit(1)
	}

	d := dag.New(epochs.Current())
	q := quorum.New(epochs.Current(), cfg.Consensus.MaxPendingCertificates, cfg.Consensus.QuorumTimeout)
	safetyRules, err := safety.Load(db, validatorKey.PubKey().Address().Bytes())
	if err != nil {
		logger.Error("failed to load safety-rules state", "err", err)
		os.Exit(1)
	}
	objectStore := object.NewStore(db)
	vm := executor.NoopVM{}
	ex := executor.New(db, objectStore, vm)
	checkpoints := checkpoint.NewStore(db)

	pool := mempool.New(mempool.Config{
		MaxEntries:   cfg.Mempool.MaxEntries,
		MaxPerSender: cfg.Mempool.MaxPerSender,
		TTL:          cfg.Mempool.TTL,
	})
	_ = pool // wired in by the submission path once a transport is attached

	auth := authority.New(epochs, d, q, safetyRules, ex, checkpoints, validatorKey.PubKey().Address())
	_ = auth

	logger.Info("validator started",
		"validator", validatorKey.PubKey().Address().String(),
		"epoch", epochs.Current().Epoch,
		"committee_size", len(epochs.Current().Validators),
	)

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	// Block forever; a real deployment drives auth/pool from a transport
	// layer, which is out of scope for this single-process entrypoint.
	select {}
}

func mustHexDecode(s string) []byte {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return b
}

// loadOrSelfGenesis resolves the initial committee: the configured
// genesis.yaml bootstrap file if set, or a single-validator committee
// seeded from this node's own key as a dev convenience.
func loadOrSelfGenesis(cfg *config.Config, key *crypto.PrivateKey) (*config.Genesis, error) {
	if strings.TrimSpace(cfg.GenesisFile) != "" {
		return config.LoadGenesis(cfg.GenesisFile)
	}
	return &config.Genesis{
		Epoch: 0,
		Validators: []config.GenesisValidator{
			{PublicKeyHex: hex.EncodeToString(key.PubKey().Bytes()), Stake: 1, NetworkAddr: cfg.ListenAddress},
		},
	}, nil
}

func genesisValidators(g *config.Genesis) []committee.Validator {
	validators := make([]committee.Validator, 0, len(g.Validators))
	for _, gv := range g.Validators {
		pubBytes, err := hex.DecodeString(strings.TrimSpace(gv.PublicKeyHex))
		if err != nil {
			continue
		}
		pub, err := crypto.PublicKeyFromBytes(pubBytes)
		if err != nil {
			continue
		}
		validators = append(validators, committee.Validator{
			PublicKey:   pub,
			Address:     pub.Address(),
			Stake:       types.Stake(gv.Stake),
			NetworkAddr: gv.NetworkAddr,
		})
	}
	return validators
}

func openStorage(cfg config.Storage) (storage.Database, error) {
	if cfg.InMemory {
		return storage.NewMemDB(), nil
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return nil, fmt.Errorf("storage: data_dir required unless in_memory")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	return storage.NewLevelDB(cfg.DataDir)
}
