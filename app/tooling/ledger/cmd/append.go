package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/hashledger/business/ledger"
	"github.com/ardanlabs/hashledger/foundation/events"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// genesisCmd represents the genesis command
var genesisCmd = &cobra.Command{
	Use:   "genesis [value]",
	Short: "Mine the genesis block of a new chain.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  genesisRun,
}

// appendCmd represents the append command
var appendCmd = &cobra.Command{
	Use:   "append value...",
	Short: "Mine a block for every value and append it to the chain.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  appendRun,
}

func init() {
	rootCmd.AddCommand(genesisCmd)
	rootCmd.AddCommand(appendCmd)
}

const defaultGenesis = "This is a Genesis Block on SSY Blockchain!"

func genesisRun(cmd *cobra.Command, args []string) error {
	value := defaultGenesis
	if len(args) == 1 {
		value = args[0]
	}

	return mine(cmd.Context(), func(ctx context.Context, e *env) error {
		c, created, err := e.store.LoadOrCreate(ctx, e.cfg, value)
		if err != nil {
			return err
		}
		if !created {
			return fmt.Errorf("%s already holds a chain of %d blocks", storePath, c.Size())
		}

		fmt.Printf("genesis: %s\n", c.Genesis().Header().HashHex())
		return nil
	})
}

func appendRun(cmd *cobra.Command, args []string) error {
	return mine(cmd.Context(), func(ctx context.Context, e *env) error {
		c, err := e.store.Load(e.cfg)
		if err != nil {
			if errors.Is(err, ledger.ErrEmpty) {
				return fmt.Errorf("%s holds no chain, run genesis first", storePath)
			}
			return err
		}

		for _, value := range args {
			ok, err := c.AppendValue(ctx, value)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("mined block for %q was rejected", value)
			}

			if err := e.store.Save(c); err != nil {
				return err
			}

			tail := c.Tail().Header()
			fmt.Printf("block[%d]: %s\n", tail.Index(), tail.HashHex())
		}

		return nil
	})
}

// mine runs the function with a spinner that moves on every mining event.
// An interrupt signal cancels the mining in progress.
func mine(parent context.Context, f func(ctx context.Context, e *env) error) error {
	if parent == nil {
		parent = context.Background()
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	evts := events.New()
	_, ch := evts.Acquire()

	e, err := newEnv(evts.Send)
	if err != nil {
		return err
	}
	defer e.close()

	bar := progressbar.NewOptions64(
		-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("mining..."),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ch {
			bar.Describe(msg)
			bar.Add(1)
		}
	}()

	err = f(ctx, e)

	evts.Shutdown()
	<-done
	bar.Finish()

	return err
}
