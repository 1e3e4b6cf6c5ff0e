package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/codachain/node/app/services/node/handlers"
	"github.com/codachain/node/foundation/chain/consensus"
	"github.com/codachain/node/foundation/chain/genesis"
	"github.com/codachain/node/foundation/chain/ledger"
	"github.com/codachain/node/foundation/chain/prover"
	"github.com/codachain/node/foundation/chain/state"
	"github.com/codachain/node/foundation/events"
	"github.com/codachain/node/foundation/logger"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
		}
		State struct {
			GenesisPath    string `conf:"default:zchain/genesis.json"`
			ArchivePath    string `conf:"default:zchain/archive"`
			PrivateKeyPath string `conf:"default:zchain/accounts/node.ecdsa"`
			SelectStrategy string `conf:"default:fee"`
		}
		Consensus struct {
			Mechanism                       string        `conf:"default:PROOF_OF_SIGNATURE"`
			ProposalInterval                time.Duration `conf:"default:10s"`
			SlotInterval                    time.Duration `conf:"default:3s"`
			UnforkableTransitionCount       uint64        `conf:"default:290"`
			ProbableSlotsPerTransitionCount uint64        `conf:"default:8"`
			ExpectedNetworkDelay            time.Duration `conf:"default:2s"`
			ApproximateNetworkDiameter      uint64        `conf:"default:3"`
		}
		Prover struct {
			Key string `conf:"default:coda-development-proving-key,mask"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "CODA"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// The mechanism registry only knows these two names. Fail startup with
	// the exact variable the operator needs to fix.
	switch cfg.Consensus.Mechanism {
	case consensus.ProofOfSignature, consensus.ProofOfStake:
	default:
		return fmt.Errorf("CODA_CONSENSUS_MECHANISM=%q: unknown mechanism, expect %q or %q",
			cfg.Consensus.Mechanism, consensus.ProofOfSignature, consensus.ProofOfStake)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Chain Support

	// The genesis file fixes the chain identity. Everything consensus needs
	// at startup derives from it.
	gen, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis file: %w", err)
	}

	// Need to load the private key file for this node so its account can be
	// credited with fees and the coinbase.
	privateKey, err := crypto.LoadECDSA(cfg.State.PrivateKeyPath)
	if err != nil {
		return fmt.Errorf("unable to load private key for node: %w", err)
	}

	// The chain packages accept a function of this signature to allow the
	// application to log. For now, these raw messages are sent to any
	// websocket client that is connected into the system through the events
	// package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	// The state value represents the chain node. It owns the tip, the
	// ledger and the archive, and coordinates the miner.
	st, err := state.New(state.Config{
		PrivateKey:     privateKey,
		ArchivePath:    cfg.State.ArchivePath,
		SelectStrategy: cfg.State.SelectStrategy,
		Genesis:        gen,
		Consensus: consensus.Params{
			ProposalInterval:                cfg.Consensus.ProposalInterval,
			SlotInterval:                    cfg.Consensus.SlotInterval,
			UnforkableTransitionCount:       cfg.Consensus.UnforkableTransitionCount,
			ProbableSlotsPerTransitionCount: cfg.Consensus.ProbableSlotsPerTransitionCount,
			ExpectedNetworkDelay:            cfg.Consensus.ExpectedNetworkDelay,
			ApproximateNetworkDiameter:      cfg.Consensus.ApproximateNetworkDiameter,
			GenesisStateTimestamp:           gen.Date,
			Coinbase:                        gen.Coinbase,
			GenesisLedgerHash:               ledger.New(gen.Balances).Hash(),
			InitialDifficulty:               consensus.Difficulty{Target: gen.InitialTarget},
			TotalCurrency:                   gen.TotalCurrency(),
			Proposer:                        gen.Proposer,
		},
		Mechanism:   cfg.Consensus.Mechanism,
		Prover:      prover.NewDevProver([]byte(cfg.Prover.Key)),
		TxPerBundle: int(gen.TxPerBundle),
		EvHandler:   ev,
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	// Run the mining coordinator and the adoption loop until shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stateErrors := make(chan error, 1)
	go func() {
		stateErrors <- st.Run(ctx)
	}()

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		Evts:     evts,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	// Construct the mux for the private API calls.
	privateMux := handlers.PrivateMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
	})

	// Construct a server to service the requests against the mux.
	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      privateMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case err := <-stateErrors:
		return fmt.Errorf("chain state error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Stop the mining coordinator and the adoption loop.
		cancel()

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancelPri := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPri()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		// Give outstanding requests a deadline for completion.
		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}
