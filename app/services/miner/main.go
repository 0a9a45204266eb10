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
	"github.com/ardanlabs/hashledger/app/services/miner/handlers"
	"github.com/ardanlabs/hashledger/business/ledger"
	"github.com/ardanlabs/hashledger/foundation/blockchain/worker"
	"github.com/ardanlabs/hashledger/foundation/events"
	"github.com/ardanlabs/hashledger/foundation/logger"
	"github.com/ardanlabs/hashledger/foundation/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("MINER")
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
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
		}
		Chain struct {
			Hasher     string `conf:"default:sha256"`
			Validator  string `conf:"default:magnitude"`
			Difficulty int    `conf:"default:2"`
			Workers    int    `conf:"default:0"`
			Genesis    string `conf:"default:This is a Genesis Block on SSY Blockchain!"`
		}
		Store struct {
			Kind string `conf:"default:file"`
			Path string `conf:"default:zblock/chain.bin"`
		}
		Mining struct {
			Interval  time.Duration `conf:"default:10s"`
			MaxBlocks int           `conf:"default:0"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "MINER"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
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
	// Metrics Support

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mtr, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	// =========================================================================
	// Blockchain Support

	// The blockchain packages accept a function of this signature to allow the
	// application to log. Every run of the service gets its own trace id so
	// the logs of different runs against the same store can be told apart.
	traceID := uuid.NewString()
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", traceID)
		evts.Send(s)
	}

	chainCfg, err := ledger.ChainConfig(ledger.Config{
		Hasher:     cfg.Chain.Hasher,
		Validator:  cfg.Chain.Validator,
		Difficulty: cfg.Chain.Difficulty,
		Workers:    cfg.Chain.Workers,
		Metrics:    mtr,
		EvHandler:  ev,
	})
	if err != nil {
		return err
	}

	store, err := ledger.Open(cfg.Store.Kind, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Loading an empty store mines the genesis block, which can take a while
	// at higher difficulties. Allow a signal to interrupt it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	c, created, err := store.LoadOrCreate(ctx, chainCfg, cfg.Chain.Genesis)
	if err != nil {
		return fmt.Errorf("loading chain: %w", err)
	}
	log.Infow("startup", "status", "chain loaded", "created", created, "blocks", c.Size(), "tail", c.Tail().Header().HashHex())

	// The worker mines submitted values into the chain and saves the chain
	// after every block.
	w, err := worker.Run(worker.Config[string]{
		Chain:     c,
		Persist:   store.Save,
		Metrics:   mtr,
		EvHandler: ev,
	})
	if err != nil {
		return err
	}
	defer w.Shutdown()

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.
	debugMux := handlers.DebugMux(handlers.DebugConfig{
		Build:    build,
		Log:      log,
		Gatherer: reg,
		Size:     c.Size,
	})

	debug := http.Server{
		Addr:     cfg.Web.DebugHost,
		Handler:  debugMux,
		ErrorLog: zap.NewStdLog(log.Desugar()),
	}

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	go func() {
		serverErrors <- debug.ListenAndServe()
	}()

	// =========================================================================
	// Mining

	// A value is submitted on every tick until the configured number of
	// blocks has been submitted.
	ticker := time.NewTicker(cfg.Mining.Interval)
	defer ticker.Stop()

	go func() {
		for submitted := 0; cfg.Mining.MaxBlocks == 0 || submitted < cfg.Mining.MaxBlocks; submitted++ {
			select {
			case t := <-ticker.C:
				w.Submit(fmt.Sprintf("block submitted at %s by run %s", t.UTC().Format(time.RFC3339), traceID))
			case <-ctx.Done():
				return
			}
		}
		ev("miner: submitted %d blocks", cfg.Mining.MaxBlocks)
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		log.Infow("shutdown", "status", "shutdown started", "pending", w.Pending())
		defer log.Infow("shutdown", "status", "shutdown complete")

		// Release any receivers that are currently active.
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		sctx, scancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer scancel()

		if err := debug.Shutdown(sctx); err != nil {
			debug.Close()
			return fmt.Errorf("could not stop debug service gracefully: %w", err)
		}
	}

	return nil
}
