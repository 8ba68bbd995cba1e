package chain

import (
	"os"
	"strings"
	"testing"

	"github.com/distli-mesh/aggregator/pkg/types"
)

func tempChain(t *testing.T, validatorID string, stake uint64) *Chain {
	t.Helper()
	dir := t.TempDir()
	return New(validatorID, dir, stake)
}

func TestNewChainCreatesGenesis(t *testing.T) {
	c := tempChain(t, "v1", 100)
	if c.Height() != 0 {
		t.Fatalf("expected genesis height 0, got %d", c.Height())
	}
	if c.chain[0].Hash != ZeroHash {
		t.Fatalf("expected genesis hash to be zero hash")
	}
}

func TestMineBlockRequiresPending(t *testing.T) {
	c := tempChain(t, "v1", 100)
	if _, ok := c.MineBlock(); ok {
		t.Fatalf("expected MineBlock to fail with empty pending set")
	}
}

func TestMineBlockProducesValidatableBlock(t *testing.T) {
	c := tempChain(t, "v1", 100)
	c.AddTransaction("alice", "bob", 10)

	block, ok := c.MineBlock()
	if !ok {
		t.Fatalf("expected MineBlock to succeed")
	}
	if !strings.HasPrefix(block.Hash, MiningPrefix) {
		t.Fatalf("block hash %q missing mining prefix", block.Hash)
	}
	if !c.ValidateBlock(block) {
		t.Fatalf("expected freshly mined block to validate")
	}
	if block.Height != 1 {
		t.Fatalf("expected height 1, got %d", block.Height)
	}
	if block.PreviousHash != ZeroHash {
		t.Fatalf("expected previous_hash to be genesis hash")
	}
}

func TestMineBlockChainsPreviousHash(t *testing.T) {
	c := tempChain(t, "v1", 100)
	c.AddTransaction("a", "b", 1)
	first, _ := c.MineBlock()

	c.AddTransaction("c", "d", 2)
	second, ok := c.MineBlock()
	if !ok {
		t.Fatalf("expected second MineBlock to succeed")
	}
	if second.PreviousHash != first.Hash {
		t.Fatalf("expected second block's previous_hash to equal first block's hash")
	}
	if second.Height != first.Height+1 {
		t.Fatalf("expected monotonically increasing height")
	}
}

func TestMineBlockNoActiveValidatorFails(t *testing.T) {
	dir := t.TempDir()
	c := New("v1", dir, 0)
	c.validators["v1"].Active = false
	c.AddTransaction("a", "b", 1)
	if _, ok := c.MineBlock(); ok {
		t.Fatalf("expected MineBlock to fail with no active validator")
	}
}

func TestValidateBlockRejectsWrongHeight(t *testing.T) {
	c := tempChain(t, "v1", 100)
	c.AddTransaction("a", "b", 1)
	block, _ := c.MineBlock()
	block.Height = 99
	if c.ValidateBlock(block) {
		t.Fatalf("expected wrong-height block to be rejected")
	}
}

func TestValidateBlockRejectsTamperedHash(t *testing.T) {
	c := tempChain(t, "v1", 100)
	c.AddTransaction("a", "b", 1)
	block, _ := c.MineBlock()
	block.Validator = "someone-else"
	if c.ValidateBlock(block) {
		t.Fatalf("expected tampered block to fail hash check")
	}
}

func TestAddTenantBlocksDeduplicatesByNetworkAndID(t *testing.T) {
	c := tempChain(t, "v1", 100)
	update := types.TenantBlockchainUpdate{
		NetworkID: "net-a",
		PeerID:    "peer-1",
		NewBlocks: []types.TenantBlock{
			{NetworkID: "net-a", BlockID: 1, BlockHash: "h1", Transactions: []string{`{"id":"tx1"}`}},
		},
	}
	c.AddTenantBlocks(update)
	c.AddTenantBlocks(update) // replay

	blocks := c.GetRecentTenantBlocks(10)
	if len(blocks) != 1 {
		t.Fatalf("expected replayed block to be deduplicated, got %d blocks", len(blocks))
	}
	if c.GetPendingCount() != 1 {
		t.Fatalf("expected exactly one pending tx from the single accepted block, got %d", c.GetPendingCount())
	}
}

func TestAddTenantBlocksDedupeByHashAcrossDifferentIDs(t *testing.T) {
	c := tempChain(t, "v1", 100)
	c.AddTenantBlocks(types.TenantBlockchainUpdate{
		NetworkID: "net-a",
		NewBlocks: []types.TenantBlock{{NetworkID: "net-a", BlockID: 1, BlockHash: "dup"}},
	})
	c.AddTenantBlocks(types.TenantBlockchainUpdate{
		NetworkID: "net-a",
		NewBlocks: []types.TenantBlock{{NetworkID: "net-a", BlockID: 2, BlockHash: "dup"}},
	})
	if len(c.GetRecentTenantBlocks(10)) != 1 {
		t.Fatalf("expected hash-duplicate block under a new id to be dropped")
	}
}

func TestAddMessageRejectsExactDuplicate(t *testing.T) {
	c := tempChain(t, "v1", 100)
	if !c.AddMessage("hello", "alice") {
		t.Fatalf("expected first message to be accepted")
	}
	if c.AddMessage("hello", "alice") {
		t.Fatalf("expected exact duplicate (content, sender) to be rejected")
	}
	if !c.AddMessage("hello", "bob") {
		t.Fatalf("expected same content from a different sender to be accepted")
	}
}

func TestCleanupStaleValidatorsDeactivatesWithoutDeleting(t *testing.T) {
	c := tempChain(t, "v1", 100)
	c.validators["stale"] = &types.Validator{Address: "stale", Stake: 50, Active: true, LastHeartbeat: 0}
	c.CleanupStaleValidators()

	v := c.validators["stale"]
	if v.Active {
		t.Fatalf("expected stale validator to be deactivated")
	}
	if v.Stake != 50 {
		t.Fatalf("expected stake to be preserved after deactivation, got %d", v.Stake)
	}
	if _, ok := c.validators["stale"]; !ok {
		t.Fatalf("expected stale validator record to be kept, not deleted")
	}
}

func TestSaveAndReloadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	c1 := New("v1", dir, 100)
	c1.AddTransaction("a", "b", 1)
	c1.MineBlock()
	c1.AddTenantBlocks(types.TenantBlockchainUpdate{
		NetworkID: "net-a",
		NewBlocks: []types.TenantBlock{{NetworkID: "net-a", BlockID: 1, BlockHash: "h1"}},
	})

	if _, err := os.Stat(c1.filePath()); err != nil {
		t.Fatalf("expected state file to exist after save: %v", err)
	}

	c2 := New("v1", dir, 100)
	if c2.Height() != c1.Height() {
		t.Fatalf("expected reloaded chain height %d, got %d", c1.Height(), c2.Height())
	}
	if len(c2.GetRecentTenantBlocks(10)) != 1 {
		t.Fatalf("expected reloaded tenant block history to survive restart")
	}
}

func TestMissingStateFileStartsFromGenesis(t *testing.T) {
	dir := t.TempDir()
	c := New("brand-new", dir, 10)
	if c.Height() != 0 {
		t.Fatalf("expected a fresh validator with no state file to start at genesis")
	}
}
