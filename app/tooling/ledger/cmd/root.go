// Package cmd contains the ledger app commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/ardanlabs/hashledger/business/ledger"
	"github.com/ardanlabs/hashledger/foundation/blockchain/chain"
	"github.com/ardanlabs/hashledger/foundation/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	storeKind     string
	storePath     string
	hasherName    string
	validatorName string
	difficulty    int
	workers       int
	verbose       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "ledger",
	Short:         "Mine, inspect and prune a local hash chained ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&storeKind, "store-kind", "k", ledger.KindFile, "Kind of store: file, disk or leveldb.")
	rootCmd.PersistentFlags().StringVarP(&storePath, "store", "s", "zblock/chain.bin", "Path to the chain file or store directory.")
	rootCmd.PersistentFlags().StringVar(&hasherName, "hasher", "sha256", "Hash function: sha256, double-sha256 or keccak256.")
	rootCmd.PersistentFlags().StringVar(&validatorName, "validator", ledger.ValidatorMagnitude, "Admission rule: magnitude or target.")
	rootCmd.PersistentFlags().IntVarP(&difficulty, "difficulty", "d", 2, "Number of leading zero bytes required.")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "Number of mining goroutines, zero means one per CPU.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log mining events.")
}

// env holds what every command needs to work with the ledger.
type env struct {
	log   *zap.SugaredLogger
	cfg   chain.Config[string]
	store *ledger.Store
}

// newEnv opens the store and builds the chain configuration from the flags.
// The handler receives the mining events in addition to the logger.
func newEnv(handler func(string)) (*env, error) {
	var log *zap.SugaredLogger
	if verbose {
		l, err := logger.New("LEDGER")
		if err != nil {
			return nil, err
		}
		log = l
	}

	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		if log != nil {
			log.Infow(s)
		}
		if handler != nil {
			handler(s)
		}
	}

	cfg, err := ledger.ChainConfig(ledger.Config{
		Hasher:     hasherName,
		Validator:  validatorName,
		Difficulty: difficulty,
		Workers:    workers,
		EvHandler:  ev,
	})
	if err != nil {
		return nil, err
	}

	store, err := ledger.Open(storeKind, storePath)
	if err != nil {
		return nil, err
	}

	e := env{
		log:   log,
		cfg:   cfg,
		store: store,
	}

	return &e, nil
}

// close releases the store and flushes the logger.
func (e *env) close() {
	e.store.Close()
	if e.log != nil {
		e.log.Sync()
	}
}
