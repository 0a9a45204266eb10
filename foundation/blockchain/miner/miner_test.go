package miner_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ardanlabs/hashledger/foundation/blockchain/block"
	"github.com/ardanlabs/hashledger/foundation/blockchain/codec"
	"github.com/ardanlabs/hashledger/foundation/blockchain/hasher"
	"github.com/ardanlabs/hashledger/foundation/blockchain/miner"
	"github.com/ardanlabs/hashledger/foundation/blockchain/validator"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// never rejects every hash so mining only stops when cancelled.
type never struct{}

func (never) IsValidGenesisHash([]byte) bool         { return false }
func (never) IsValidAppendHash([]byte, []byte) bool { return false }

// always accepts every hash.
type always struct{}

func (always) IsValidGenesisHash([]byte) bool         { return true }
func (always) IsValidAppendHash([]byte, []byte) bool { return true }

// admits accepts only the hashes it holds.
type admits map[string]bool

func (a admits) IsValidGenesisHash(hash []byte) bool          { return a[string(hash)] }
func (a admits) IsValidAppendHash(_ []byte, hash []byte) bool { return a[string(hash)] }

// counter records the metrics reported by the miner.
type counter struct {
	attempts atomic.Uint64
	solved   atomic.Uint64
}

func (c *counter) AddAttempts(n uint64)          { c.attempts.Add(n) }
func (c *counter) ObserveSolved(d time.Duration) { c.solved.Add(1) }

func genesisCandidate(t *testing.T, h hasher.Hasher, value string) block.Block[string] {
	content, err := block.NewContent[string](h, codec.String{}, value)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create content: %v", failed, err)
	}

	hdr, err := block.NewHeader(h, 1, 0, content.Hash(), h.GenesisPreviousHash(), time.Now().Unix(), 0)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create header: %v", failed, err)
	}

	b, err := block.New(hdr, content)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create block: %v", failed, err)
	}

	return b
}

func nextCandidate(t *testing.T, prev block.Block[string], value string) block.Block[string] {
	h := prev.Header().Hasher()

	content, err := block.NewContent[string](h, codec.String{}, value)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create content: %v", failed, err)
	}

	hdr, err := block.NewHeader(h, 1, prev.Header().Index()+1, content.Hash(), prev.Header().Hash(), prev.Header().Timestamp()+1, 0)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create header: %v", failed, err)
	}

	b, err := block.New(hdr, content)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create block: %v", failed, err)
	}

	return b
}

// =============================================================================

func Test_MineBlocks(t *testing.T) {
	h := hasher.SHA256{}
	v := validator.Magnitude{Difficulty: 1}

	seq, err := miner.NewSequential(miner.Config{Hasher: h, Validator: v})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a sequential miner: %v", failed, err)
	}

	metrics := counter{}
	con, err := miner.NewConcurrent(miner.Config{Hasher: h, Validator: v, Workers: 4, Metrics: &metrics})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a concurrent miner: %v", failed, err)
	}

	type table struct {
		name  string
		miner miner.Miner
	}

	tt := []table{
		{name: "sequential", miner: seq},
		{name: "concurrent", miner: con},
	}

	t.Log("Given the need to mine blocks.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				ctx := context.Background()

				genesis, err := miner.MineGenesisBlock(ctx, tst.miner, v, genesisCandidate(t, h, "genesis"))
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to mine a genesis block: %v", failed, testID, err)
				}
				if !validator.IsValidGenesisBlock(v, h, genesis) {
					t.Fatalf("\t%s\tTest %d:\tShould produce a valid genesis block.", failed, testID)
				}
				if genesis.Header().Hash()[0] != 0 {
					t.Fatalf("\t%s\tTest %d:\tShould produce a hash with a leading zero byte: %s", failed, testID, genesis.Header().HashHex())
				}
				t.Logf("\t%s\tTest %d:\tShould mine a genesis block.", success, testID)

				next, err := miner.MineAppendBlock(ctx, tst.miner, v, genesis, nextCandidate(t, genesis, "second"))
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to mine the next block: %v", failed, testID, err)
				}
				if !validator.IsValidToAppend(v, genesis, next) {
					t.Fatalf("\t%s\tTest %d:\tShould produce a block that can be appended.", failed, testID)
				}
				if validator.Compare(next.Header().Hash(), genesis.Header().Hash()) >= 0 {
					t.Fatalf("\t%s\tTest %d:\tShould produce a smaller hash than the parent.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould mine the next block.", success, testID)

				content, err := next.Content()
				if err != nil || content.Value() != "second" {
					t.Fatalf("\t%s\tTest %d:\tShould keep the original content: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould keep the original content.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}

	if metrics.attempts.Load() == 0 || metrics.solved.Load() == 0 {
		t.Fatalf("\t%s\tShould record mining metrics: attempts[%d] solved[%d]", failed, metrics.attempts.Load(), metrics.solved.Load())
	}
	t.Logf("\t%s\tShould record mining metrics.", success)
}

func Test_AlreadySolved(t *testing.T) {
	t.Log("Given a header that is already admissible.")
	{
		h := hasher.SHA256{}
		m, err := miner.NewConcurrent(miner.Config{Hasher: h, Validator: always{}})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the miner: %v", failed, err)
		}

		b := genesisCandidate(t, h, "lucky")
		hdr := b.Header().WithMinedResult(b.Header().Timestamp(), 12345)

		res, err := m.MineGenesis(context.Background(), hdr.Binary())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine: %v", failed, err)
		}
		if res.Nonce != 12345 || res.Timestamp != hdr.Timestamp() {
			t.Fatalf("\t%s\tShould return the current timestamp and nonce: %+v", failed, res)
		}
		t.Logf("\t%s\tShould return the current timestamp and nonce.", success)
	}
}

func Test_NonceWraparound(t *testing.T) {
	t.Log("Given the need to solve a header only after the nonce range wraps.")
	{
		h := hasher.SHA256{}
		b := genesisCandidate(t, h, "wraparound")
		hdr := b.Header()

		const nonceMax = 4

		// Only the hashes reachable one second after the candidate's
		// timestamp are admissible, so no nonce at the original timestamp
		// can win.
		v := admits{}
		for nonce := range uint64(nonceMax) {
			v[string(hdr.WithMinedResult(hdr.Timestamp()+1, nonce).Hash())] = true
		}

		seq, err := miner.NewSequential(miner.Config{Hasher: h, Validator: v, NonceMax: nonceMax})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a sequential miner: %v", failed, err)
		}
		con, err := miner.NewConcurrent(miner.Config{Hasher: h, Validator: v, Workers: 2, NonceMax: nonceMax})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a concurrent miner: %v", failed, err)
		}

		for testID, m := range []miner.Miner{seq, con} {
			t.Logf("\tTest %d:\tWhen mining with a range of %d nonces.", testID, nonceMax)
			{
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				mined, err := miner.MineGenesisBlock(ctx, m, v, b)
				cancel()

				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to mine after the wrap: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould be able to mine after the wrap.", success, testID)

				got := mined.Header()
				if got.Timestamp() <= hdr.Timestamp() {
					t.Fatalf("\t%s\tTest %d:\tShould move the timestamp forward: got %d, candidate %d", failed, testID, got.Timestamp(), hdr.Timestamp())
				}
				if got.Nonce() >= nonceMax {
					t.Fatalf("\t%s\tTest %d:\tShould keep the nonce inside the range: %d", failed, testID, got.Nonce())
				}
				t.Logf("\t%s\tTest %d:\tShould move the timestamp forward.", success, testID)

				if !validator.IsValidGenesisBlock(v, h, mined) {
					t.Fatalf("\t%s\tTest %d:\tShould produce a header that validates.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould produce a header that validates.", success, testID)
			}
		}
	}
}

func Test_Cancellation(t *testing.T) {
	h := hasher.SHA256{}

	seq, _ := miner.NewSequential(miner.Config{Hasher: h, Validator: never{}})
	con, _ := miner.NewConcurrent(miner.Config{Hasher: h, Validator: never{}, Workers: 3, NonceMax: 10})

	t.Log("Given the need to stop a mining call that cannot succeed.")
	{
		for testID, m := range []miner.Miner{seq, con} {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)

			b := genesisCandidate(t, h, "impossible")
			_, err := m.MineGenesis(ctx, b.Header().Binary())
			cancel()

			if !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("\t%s\tTest %d:\tShould return the context error: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould return the context error.", success, testID)
		}
	}
}

func Test_IndependentCalls(t *testing.T) {
	t.Log("Given the need to run mining calls at the same time.")
	{
		h := hasher.SHA256{}
		v := validator.Magnitude{Difficulty: 1}
		m, _ := miner.NewConcurrent(miner.Config{Hasher: h, Validator: v, Workers: 2})

		const calls = 4
		var wg sync.WaitGroup
		results := make([]block.Block[string], calls)
		errs := make([]error, calls)

		for i := range calls {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b := genesisCandidate(t, h, string(rune('a'+i)))
				results[i], errs[i] = miner.MineGenesisBlock(context.Background(), m, v, b)
			}()
		}
		wg.Wait()

		for i := range calls {
			if errs[i] != nil {
				t.Fatalf("\t%s\tShould mine call %d: %v", failed, i, errs[i])
			}
			if !validator.IsValidGenesisBlock(v, h, results[i]) {
				t.Fatalf("\t%s\tShould produce a valid block for call %d.", failed, i)
			}
		}
		t.Logf("\t%s\tShould mine every call independently.", success)
	}
}

func Test_Preconditions(t *testing.T) {
	t.Log("Given blocks that are not mining candidates.")
	{
		h := hasher.SHA256{}
		v := validator.Magnitude{Difficulty: 1}
		m, _ := miner.NewSequential(miner.Config{Hasher: h, Validator: v})
		ctx := context.Background()

		genesis := genesisCandidate(t, h, "genesis")
		second := nextCandidate(t, genesis, "second")

		if _, err := miner.MineGenesisBlock(ctx, m, v, second); !errors.Is(err, miner.ErrInvalidGenesisPreconditions) {
			t.Fatalf("\t%s\tShould reject a genesis candidate at index 1: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a genesis candidate at index 1.", success)

		if _, err := miner.MineAppendBlock(ctx, m, v, second, second); !errors.Is(err, miner.ErrNotPostAdjacent) {
			t.Fatalf("\t%s\tShould reject a block that does not link to the previous block: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a block that does not link to the previous block.", success)

		if _, err := miner.NewConcurrent(miner.Config{Validator: v}); err == nil {
			t.Fatalf("\t%s\tShould reject a config without a hasher.", failed)
		}
		t.Logf("\t%s\tShould reject a config without a hasher.", success)

		if !bytes.Equal(second.Header().PreviousHash(), genesis.Header().Hash()) {
			t.Fatalf("\t%s\tShould link the candidate to its parent.", failed)
		}
	}
}
