package chain_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardanlabs/hashledger/foundation/blockchain/block"
	"github.com/ardanlabs/hashledger/foundation/blockchain/chain"
	"github.com/ardanlabs/hashledger/foundation/blockchain/codec"
	"github.com/ardanlabs/hashledger/foundation/blockchain/hasher"
	"github.com/ardanlabs/hashledger/foundation/blockchain/miner"
	"github.com/ardanlabs/hashledger/foundation/blockchain/storage"
	"github.com/ardanlabs/hashledger/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/hashledger/foundation/blockchain/validator"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const genesisValue = "This is a Genesis Block on SSY Blockchain!"

// never rejects every hash so mining only stops when cancelled.
type never struct{}

func (never) IsValidGenesisHash([]byte) bool         { return false }
func (never) IsValidAppendHash([]byte, []byte) bool { return false }

func testConfig() chain.Config[string] {
	cfg := chain.DefaultConfig()
	cfg.Validator = validator.Magnitude{Difficulty: 1}
	return cfg
}

func newChain(t *testing.T, cfg chain.Config[string], values ...string) *chain.Chain[string] {
	ctx := context.Background()

	c, err := chain.NewWithValue(ctx, cfg, genesisValue)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create the chain: %v", failed, err)
	}

	for _, v := range values {
		ok, err := c.AppendValue(ctx, v)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine %q: %v", failed, v, err)
		}
		if !ok {
			t.Fatalf("\t%s\tShould be able to append %q.", failed, v)
		}
	}

	return c
}

func at(t *testing.T, c *chain.Chain[string], i int) block.Block[string] {
	b, err := c.At(i)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to get block %d: %v", failed, i, err)
	}
	return b
}

// =============================================================================

func Test_Scenarios(t *testing.T) {
	t.Log("Given the need to build a chain with the default configuration.")
	{
		c := newChain(t, chain.DefaultConfig())

		genesis := c.Genesis().Header()
		if genesis.Index() != 0 {
			t.Fatalf("\t%s\tShould have a genesis block at index 0: %d", failed, genesis.Index())
		}
		if !bytes.Equal(genesis.PreviousHash(), make([]byte, 32)) {
			t.Fatalf("\t%s\tShould have an all zero previous hash: %x", failed, genesis.PreviousHash())
		}
		if h := genesis.Hash(); h[0] != 0 || h[1] != 0 {
			t.Fatalf("\t%s\tShould have two leading zero bytes: %s", failed, genesis.HashHex())
		}
		t.Logf("\t%s\tShould mine a genesis block with difficulty 2.", success)

		ctx := context.Background()
		for _, v := range []string{"The second block...", "Third block..."} {
			ok, err := c.AppendValue(ctx, v)
			if err != nil || !ok {
				t.Fatalf("\t%s\tShould be able to append %q: %v", failed, v, err)
			}
		}

		tail := c.Tail().Header()
		if tail.Index() != 2 {
			t.Fatalf("\t%s\tShould have a tail at index 2: %d", failed, tail.Index())
		}
		if !bytes.Equal(tail.PreviousHash(), at(t, c, 1).Header().Hash()) {
			t.Fatalf("\t%s\tShould link the tail to block 1.", failed)
		}
		t.Logf("\t%s\tShould append two mined blocks.", success)

		content, err := c.Tail().Content()
		if err != nil || content.Value() != "Third block..." {
			t.Fatalf("\t%s\tShould keep the tail content: %v", failed, err)
		}
		t.Logf("\t%s\tShould keep the tail content.", success)
	}
}

func Test_ChainInvariants(t *testing.T) {
	t.Log("Given a chain of mined blocks.")
	{
		cfg := testConfig()
		c := newChain(t, cfg, "one", "two", "three", "four")

		if c.Size() != 5 {
			t.Fatalf("\t%s\tShould have 5 blocks: %d", failed, c.Size())
		}

		if !cfg.Validator.IsValidGenesisHash(c.Genesis().Header().Hash()) {
			t.Fatalf("\t%s\tShould have an admissible genesis hash.", failed)
		}

		for i, b := range c.All() {
			hdr := b.Header()

			content, err := b.Content()
			if err != nil || !bytes.Equal(content.Hash(), hdr.ContentHash()) {
				t.Fatalf("\t%s\tShould match the content hash of block %d: %v", failed, i, err)
			}

			if i == 0 {
				continue
			}

			prev := at(t, c, i-1).Header()
			if !bytes.Equal(hdr.PreviousHash(), prev.Hash()) {
				t.Fatalf("\t%s\tShould link block %d to block %d.", failed, i, i-1)
			}
			if validator.Compare(hdr.Hash(), prev.Hash()) >= 0 {
				t.Fatalf("\t%s\tShould have a smaller hash at block %d.", failed, i)
			}
			if hdr.Timestamp() <= prev.Timestamp() {
				t.Fatalf("\t%s\tShould have a later timestamp at block %d.", failed, i)
			}
		}
		t.Logf("\t%s\tShould link and order every block.", success)
	}
}

func Test_Indexing(t *testing.T) {
	t.Log("Given the need to look up blocks.")
	{
		c := newChain(t, testConfig(), "one", "two")
		n := c.Size()

		if !at(t, c, -1).Equal(at(t, c, n-1)) || !at(t, c, -1).Equal(c.Tail()) {
			t.Fatalf("\t%s\tShould return the tail for -1.", failed)
		}
		if !at(t, c, -n).Equal(c.Genesis()) {
			t.Fatalf("\t%s\tShould return the genesis block for -size.", failed)
		}
		t.Logf("\t%s\tShould support negative indexes.", success)

		for _, i := range []int{n, -n - 1, 100} {
			if _, err := c.At(i); !errors.Is(err, chain.ErrIndexOutOfBounds) {
				t.Fatalf("\t%s\tShould reject index %d: %v", failed, i, err)
			}
		}
		t.Logf("\t%s\tShould reject out of range indexes.", success)

		tail := c.Tail()

		b, err := c.ByHash(tail.Header().Hash())
		if err != nil || !b.Equal(tail) {
			t.Fatalf("\t%s\tShould find the tail by hash: %v", failed, err)
		}

		hexHash := tail.Header().HashHex()
		for _, key := range []string{hexHash, strings.TrimPrefix(hexHash, "0x"), strings.ToUpper(strings.TrimPrefix(hexHash, "0x"))} {
			b, err := c.ByHashHex(key)
			if err != nil || !b.Equal(tail) {
				t.Fatalf("\t%s\tShould find the tail by hex %q: %v", failed, key, err)
			}
		}
		t.Logf("\t%s\tShould find blocks by hash.", success)

		if _, err := c.ByHash(make([]byte, 32)); !errors.Is(err, chain.ErrHashNotFound) {
			t.Fatalf("\t%s\tShould report an unknown hash: %v", failed, err)
		}
		t.Logf("\t%s\tShould report an unknown hash.", success)
	}
}

func Test_AppendRejected(t *testing.T) {
	t.Log("Given blocks that do not follow the tail.")
	{
		c := newChain(t, testConfig(), "one", "two")
		size := c.Size()
		tail := c.Tail()

		tt := []struct {
			name string
			b    block.Block[string]
		}{
			{name: "genesis", b: c.Genesis()},
			{name: "tail", b: tail},
			{name: "middle", b: at(t, c, 1)},
			{name: "header-only-tail", b: tail.HeaderOnly()},
		}

		for testID, tst := range tt {
			if c.Append(tst.b) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the %s block.", failed, testID, tst.name)
			}
			if c.Size() != size || !c.Tail().Equal(tail) {
				t.Fatalf("\t%s\tTest %d:\tShould leave the chain unchanged.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the %s block.", success, testID, tst.name)
		}
	}
}

func Test_InvalidGenesis(t *testing.T) {
	t.Log("Given a genesis block the validator does not admit.")
	{
		c := newChain(t, testConfig(), "one")

		cfg := testConfig()
		cfg.Validator = validator.Magnitude{Difficulty: 32}

		if _, err := chain.New(cfg, c.Genesis()); !errors.Is(err, chain.ErrInvalidGenesisBlock) {
			t.Fatalf("\t%s\tShould reject the genesis block: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a genesis block that fails the difficulty.", success)

		if _, err := chain.New(testConfig(), at(t, c, 1)); !errors.Is(err, chain.ErrInvalidGenesisBlock) {
			t.Fatalf("\t%s\tShould reject a block at index 1: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a block at index 1.", success)

		if _, err := chain.New(chain.Config[string]{}, c.Genesis()); err == nil {
			t.Fatalf("\t%s\tShould reject an empty config.", failed)
		}
		t.Logf("\t%s\tShould reject an empty config.", success)
	}
}

func Test_BinaryRoundTrip(t *testing.T) {
	t.Log("Given the need to serialize a chain.")
	{
		cfg := testConfig()
		c := newChain(t, cfg, "one", "two", "three")

		got, err := chain.FromBinary(cfg, c.Binary())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to reconstruct the chain: %v", failed, err)
		}
		if !got.Equal(c) || !bytes.Equal(got.Binary(), c.Binary()) {
			t.Fatalf("\t%s\tShould reconstruct an equal chain.", failed)
		}
		t.Logf("\t%s\tShould reconstruct an equal chain.", success)

		headers, err := c.HeadersOnly()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to project the headers: %v", failed, err)
		}

		data, err := c.BinaryHeadersOnly()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to serialize the headers: %v", failed, err)
		}

		got, err = chain.FromBinary(cfg, data)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to reconstruct the headers: %v", failed, err)
		}
		if !got.Equal(headers) || !got.Equal(c) {
			t.Fatalf("\t%s\tShould reconstruct the headers only projection.", failed)
		}
		for i, b := range got.All() {
			if !b.IsHeaderOnly() {
				t.Fatalf("\t%s\tShould hold no content at block %d.", failed, i)
			}
		}
		t.Logf("\t%s\tShould reconstruct the headers only projection.", success)

		if _, err := chain.FromBinary(cfg, nil); !errors.Is(err, block.ErrMalformedBinary) {
			t.Fatalf("\t%s\tShould reject empty input: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject empty input.", success)
	}
}

func Test_ReconstructionFailures(t *testing.T) {
	t.Log("Given binaries that do not form a valid chain.")
	{
		cfg := testConfig()
		c := newChain(t, cfg, "one", "two")

		var skipped []byte
		skipped = append(skipped, c.Genesis().Binary()...)
		skipped = append(skipped, c.Tail().Binary()...)

		if _, err := chain.FromBinary(cfg, skipped); !errors.Is(err, chain.ErrReconstructionFailed) {
			t.Fatalf("\t%s\tShould reject a missing block: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a missing block.", success)

		if _, err := chain.FromBinary(cfg, at(t, c, 1).Binary()); !errors.Is(err, chain.ErrInvalidGenesisBlock) {
			t.Fatalf("\t%s\tShould reject a chain that does not start at genesis: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a chain that does not start at genesis.", success)

		data := c.Binary()
		if _, err := chain.FromBinary(cfg, data[:len(data)-1]); !errors.Is(err, block.ErrMalformedBinary) {
			t.Fatalf("\t%s\tShould reject a truncated chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a truncated chain.", success)
	}
}

func Test_Files(t *testing.T) {
	t.Log("Given the need to persist a chain to a file.")
	{
		cfg := testConfig()
		c := newChain(t, cfg, "The second block...", "Third block...")
		dir := t.TempDir()

		path := filepath.Join(dir, "chain.bin")
		if err := c.SaveToFile(path); err != nil {
			t.Fatalf("\t%s\tShould be able to save the chain: %v", failed, err)
		}

		got, err := chain.LoadFromFile(cfg, path)
		if err != nil || !got.Equal(c) {
			t.Fatalf("\t%s\tShould load an equal chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould load an equal chain.", success)

		hpath := filepath.Join(dir, "headers.bin")
		if err := c.SaveHeadersOnlyToFile(hpath); err != nil {
			t.Fatalf("\t%s\tShould be able to save the headers: %v", failed, err)
		}
		got, err = chain.LoadFromFile(cfg, hpath)
		if err != nil || !got.Equal(c) || !got.Tail().IsHeaderOnly() {
			t.Fatalf("\t%s\tShould load the headers only chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould load the headers only chain.", success)

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to read the file: %v", failed, err)
		}

		// The last byte of the file belongs to the tail block's content. The
		// high bit also leaves the string content as invalid utf-8.
		for _, mask := range []byte{0x01, 0x80} {
			bad := bytes.Clone(data)
			bad[len(bad)-1] ^= mask
			if err := os.WriteFile(path, bad, 0600); err != nil {
				t.Fatalf("\t%s\tShould be able to write the file: %v", failed, err)
			}

			if _, err := chain.LoadFromFile(cfg, path); !errors.Is(err, block.ErrContentHashMismatch) {
				t.Fatalf("\t%s\tShould detect the flipped content byte with mask %#x: %v", failed, mask, err)
			}
		}
		t.Logf("\t%s\tShould detect the flipped content byte.", success)

		if _, err := chain.LoadFromFile(cfg, filepath.Join(dir, "missing.bin")); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("\t%s\tShould report a missing file: %v", failed, err)
		}
		t.Logf("\t%s\tShould report a missing file.", success)
	}
}

func Test_HeadersOnlyDescription(t *testing.T) {
	t.Log("Given a headers only projection.")
	{
		c := newChain(t, testConfig(), "one", "two")

		headers, err := c.HeadersOnly()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to project the headers: %v", failed, err)
		}

		desc := headers.Description("")
		if strings.Count(desc, "<header only>") != c.Size() {
			t.Logf("\t%s\tgot:\n%s", failed, desc)
			t.Fatalf("\t%s\tShould show a placeholder for every block.", failed)
		}
		t.Logf("\t%s\tShould show a placeholder for every block.", success)

		for i, b := range headers.All() {
			hdr := b.Header()
			orig := at(t, c, i).Header()

			if hdr.Index() != orig.Index() || hdr.Nonce() != orig.Nonce() || hdr.Timestamp() != orig.Timestamp() || !bytes.Equal(hdr.Hash(), orig.Hash()) {
				t.Fatalf("\t%s\tShould keep the header of block %d.", failed, i)
			}
			if !strings.Contains(desc, hdr.HashHex()) {
				t.Fatalf("\t%s\tShould render the hash of block %d.", failed, i)
			}
		}
		t.Logf("\t%s\tShould keep every header.", success)

		if !strings.Contains(c.String(), "two") {
			t.Fatalf("\t%s\tShould render the content of the full chain.", failed)
		}
		t.Logf("\t%s\tShould render the content of the full chain.", success)
	}
}

func Test_Storage(t *testing.T) {
	t.Log("Given the need to persist a chain block by block.")
	{
		cfg := testConfig()
		c := newChain(t, cfg, "one")
		s := memory.New()

		if err := c.SaveToStorage(s); err != nil {
			t.Fatalf("\t%s\tShould be able to save the chain: %v", failed, err)
		}

		if ok, err := c.AppendValue(context.Background(), "two"); err != nil || !ok {
			t.Fatalf("\t%s\tShould be able to append: %v", failed, err)
		}

		if err := c.SaveToStorage(s); err != nil {
			t.Fatalf("\t%s\tShould be able to save only the new block: %v", failed, err)
		}

		got, err := chain.LoadFromStorage(cfg, s)
		if err != nil || !got.Equal(c) {
			t.Fatalf("\t%s\tShould load an equal chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould load an equal chain.", success)

		other, err := chain.NewWithValue(context.Background(), cfg, "another genesis")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create another chain: %v", failed, err)
		}
		if err := other.SaveToStorage(s); !errors.Is(err, chain.ErrReconstructionFailed) {
			t.Fatalf("\t%s\tShould reject a storage holding another chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a storage holding another chain.", success)

		if _, err := chain.LoadFromStorage(cfg, memory.New()); !errors.Is(err, chain.ErrInvalidGenesisBlock) {
			t.Fatalf("\t%s\tShould reject an empty storage: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject an empty storage.", success)

		var _ storage.Storage = s
	}
}

func Test_Miners(t *testing.T) {
	t.Log("Given the need to mine with a specific miner.")
	{
		cfg := testConfig()
		c := newChain(t, cfg)

		seq, err := miner.NewSequential(miner.Config{Hasher: cfg.Hasher, Validator: cfg.Validator})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the miner: %v", failed, err)
		}

		ok, err := c.AppendValueWithMiner(context.Background(), "sequential", seq)
		if err != nil || !ok {
			t.Fatalf("\t%s\tShould append with the sequential miner: %v", failed, err)
		}
		t.Logf("\t%s\tShould append with the sequential miner.", success)

		stuck, _ := miner.NewConcurrent(miner.Config{Hasher: cfg.Hasher, Validator: never{}, Workers: 2})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		size := c.Size()
		if _, err := c.AppendValueWithMiner(ctx, "cancelled", stuck); !errors.Is(err, context.Canceled) {
			t.Fatalf("\t%s\tShould return the cancellation: %v", failed, err)
		}
		if c.Size() != size {
			t.Fatalf("\t%s\tShould leave the chain unchanged.", failed)
		}
		t.Logf("\t%s\tShould stop mining when cancelled.", success)
	}
}

func Test_JSONContent(t *testing.T) {
	type entry struct {
		Account string `json:"account"`
		Amount  uint64 `json:"amount"`
	}

	t.Log("Given a chain of JSON encoded values.")
	{
		cfg := chain.Config[entry]{
			Hasher:    hasher.Keccak256{},
			Codec:     codec.JSON[entry]{},
			Validator: validator.Magnitude{Difficulty: 1},
		}

		ctx := context.Background()
		c, err := chain.NewWithValue(ctx, cfg, entry{Account: "genesis"})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the chain: %v", failed, err)
		}
		if ok, err := c.AppendValue(ctx, entry{Account: "bill", Amount: 10}); err != nil || !ok {
			t.Fatalf("\t%s\tShould be able to append: %v", failed, err)
		}

		got, err := chain.FromBinary(cfg, c.Binary())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to reconstruct the chain: %v", failed, err)
		}

		content, err := got.Tail().Content()
		if err != nil || content.Value() != (entry{Account: "bill", Amount: 10}) {
			t.Fatalf("\t%s\tShould decode the tail value: %v", failed, err)
		}
		if got.Tail().Header().Version() != chain.DefaultVersion {
			t.Fatalf("\t%s\tShould write the default version.", failed)
		}
		t.Logf("\t%s\tShould round trip JSON values with Keccak256 hashes.", success)
	}
}
