package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/distli-mesh/aggregator/pkg/types"
)

const retainedTenantBlocks = 100

// Chain is the enterprise aggregator blockchain: one per validator
// process. All mutation goes through a single write lock (spec.md §5);
// readers take a read lock.
type Chain struct {
	mu sync.RWMutex

	validatorID string
	dataDir     string

	chain   []EnterpriseBlock
	pending []EnterpriseTransaction

	validators map[string]*types.Validator

	// recentTenantBlocks is the rolling window of the last
	// retainedTenantBlocks tenant blocks — both the in-memory working set
	// and, per the original tenant-block retention routine this is
	// grounded on, exactly what gets persisted to disk: there is no
	// separate unbounded history kept anywhere. seenBlockIDs/
	// seenBlockHashes are persisted independently of the window (they're
	// just ids/hashes, not full block payloads) and are what actually
	// enforce the (network_id, block_id)/(network_id, block_hash)
	// idempotence invariant across the chain's entire lifetime, not just
	// within the retained window.
	recentTenantBlocks []types.TenantBlock
	seenBlockIDs       map[string]map[uint64]struct{}
	seenBlockHashes    map[string]map[string]struct{}

	contracts map[string]string

	now func() time.Time
}

// New constructs a Chain for validatorID, loading persisted state from
// dataDir if present and creating a genesis block otherwise.
func New(validatorID, dataDir string, selfStake uint64) *Chain {
	c := &Chain{
		validatorID:     validatorID,
		dataDir:         dataDir,
		validators:      make(map[string]*types.Validator),
		seenBlockIDs:    make(map[string]map[uint64]struct{}),
		seenBlockHashes: make(map[string]map[string]struct{}),
		contracts:       make(map[string]string),
		now:             time.Now,
	}

	if err := c.load(); err != nil {
		// Missing or corrupt file: fall through to an empty state and
		// create genesis. Nothing from a corrupt file is recovered.
	}

	if len(c.chain) == 0 {
		c.chain = []EnterpriseBlock{genesisBlock()}
	}
	if _, ok := c.validators[validatorID]; !ok {
		c.validators[validatorID] = &types.Validator{
			Address:       validatorID,
			Stake:         selfStake,
			Active:        true,
			LastHeartbeat: uint64(c.now().Unix()),
		}
	}
	if len(c.seenBlockIDs) == 0 && len(c.seenBlockHashes) == 0 {
		// Fresh chain, or a persisted file from before the seen-index was
		// persisted directly: rebuild from the retained window (the best
		// we can do for a legacy file — anything that had already
		// scrolled out of the window is simply not recoverable).
		c.rebuildSeenSets()
	}
	c.save()
	return c
}

func genesisBlock() EnterpriseBlock {
	return EnterpriseBlock{
		Height:       0,
		Hash:         ZeroHash,
		PreviousHash: ZeroHash,
		Timestamp:    uint64(time.Now().Unix()),
		Validator:    "genesis",
		MerkleRoot:   ZeroHash,
	}
}

func (c *Chain) rebuildSeenSets() {
	for _, b := range c.recentTenantBlocks {
		c.markSeenLocked(b)
	}
}

func (c *Chain) markSeenLocked(b types.TenantBlock) {
	if c.seenBlockIDs[b.NetworkID] == nil {
		c.seenBlockIDs[b.NetworkID] = make(map[uint64]struct{})
	}
	c.seenBlockIDs[b.NetworkID][b.BlockID] = struct{}{}
	if c.seenBlockHashes[b.NetworkID] == nil {
		c.seenBlockHashes[b.NetworkID] = make(map[string]struct{})
	}
	c.seenBlockHashes[b.NetworkID][b.BlockHash] = struct{}{}
}

// AddTenantBlocks ingests a tenant-block update, appending each not-yet-seen
// block to the tenant side-log and enqueuing its transactions as pending
// enterprise transactions. Blocks whose (network_id, block_id) or
// (network_id, block_hash) was already recorded are dropped — this, plus
// C1's own processed-transaction set, is what makes replayed/out-of-order
// forwards safe (spec.md §9). The side-log itself retains only the most
// recent retainedTenantBlocks entries; seenBlockIDs/seenBlockHashes, not
// the side-log, are what enforce the uniqueness invariant, so dropping
// old entries from the log never lets a duplicate back in.
func (c *Chain) AddTenantBlocks(update types.TenantBlockchainUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, block := range update.NewBlocks {
		if _, ok := c.seenBlockIDs[block.NetworkID][block.BlockID]; ok {
			continue
		}
		if _, ok := c.seenBlockHashes[block.NetworkID][block.BlockHash]; ok {
			continue
		}

		c.recentTenantBlocks = append(c.recentTenantBlocks, block)
		if len(c.recentTenantBlocks) > retainedTenantBlocks {
			c.recentTenantBlocks = c.recentTenantBlocks[len(c.recentTenantBlocks)-retainedTenantBlocks:]
		}
		c.markSeenLocked(block)

		for i, data := range block.Transactions {
			c.pending = append(c.pending, EnterpriseTransaction{
				TxID:            fmt.Sprintf("%s_%d_%d_%d", update.NetworkID, block.BlockID, i, c.now().Unix()),
				TenantNetwork:   update.NetworkID,
				TenantBlockID:   block.BlockID,
				TenantBlockHash: block.BlockHash,
				TransactionData: data,
				Timestamp:       block.Timestamp,
				FromPeer:        update.PeerID,
			})
		}
	}

	c.save()
}

// AddTransaction appends a bare transfer to pending.
func (c *Chain) AddTransaction(from, to string, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, EnterpriseTransaction{
		TxID:            fmt.Sprintf("transfer_%d_%d", c.now().Unix(), len(c.pending)),
		TransactionData: fmt.Sprintf(`{"from":%q,"to":%q,"amount":%d}`, from, to, amount),
		Timestamp:       uint64(c.now().Unix()),
		FromPeer:        from,
	})
	c.save()
}

// AddMessage appends a chat message to pending, rejecting an exact
// (content, sender) duplicate already pending.
func (c *Chain) AddMessage(content, sender string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tx := range c.pending {
		if tx.TransactionData == content && tx.FromPeer == sender {
			return false
		}
	}
	c.pending = append(c.pending, EnterpriseTransaction{
		TxID:            fmt.Sprintf("msg_%d_%d", c.now().Unix(), len(c.pending)),
		TransactionData: content,
		Timestamp:       uint64(c.now().Unix()),
		FromPeer:        sender,
	})
	c.save()
	return true
}

// RegisterValidator adds or updates a validator's stake.
func (c *Chain) RegisterValidator(address string, stake uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validators[address] = &types.Validator{Address: address, Stake: stake, Active: true, LastHeartbeat: uint64(c.now().Unix())}
	c.save()
}

// UpdateValidatorHeartbeat marks a validator active and records the
// current time as its last heartbeat.
func (c *Chain) UpdateValidatorHeartbeat(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.validators[address]
	if !ok {
		v = &types.Validator{Address: address}
		c.validators[address] = v
	}
	v.Active = true
	v.LastHeartbeat = uint64(c.now().Unix())
	c.save()
}

// CleanupStaleValidators deactivates validators whose last heartbeat is
// older than 120s.
func (c *Chain) CleanupStaleValidators() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := uint64(c.now().Unix())
	for _, v := range c.validators {
		if v.Active && now-v.LastHeartbeat > staleHeartbeatSecs {
			v.Active = false
		}
	}
	c.save()
}

// selectValidator performs the stake-weighted pseudo-random proposer
// selection from spec.md §4.2: seed = now_secs mod total_stake, walk
// validators by cumulative stake (in a fixed, sorted order for
// determinism) until the seed falls in range.
func (c *Chain) selectValidator() (string, bool) {
	var ids []string
	var total uint64
	for id, v := range c.validators {
		if v.Active {
			ids = append(ids, id)
			total += v.Stake
		}
	}
	if total == 0 {
		return "", false
	}
	sort.Strings(ids)

	seed := uint64(c.now().Unix()) % total
	var cumulative uint64
	for _, id := range ids {
		cumulative += c.validators[id].Stake
		if seed < cumulative {
			return id, true
		}
	}
	return ids[len(ids)-1], true
}

// MineBlock produces and appends a new block over the pending transaction
// set, or returns (EnterpriseBlock{}, false) if pending is empty or no
// validator is active.
func (c *Chain) MineBlock() (EnterpriseBlock, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return EnterpriseBlock{}, false
	}
	proposer, ok := c.selectValidator()
	if !ok {
		return EnterpriseBlock{}, false
	}

	last := c.chain[len(c.chain)-1]
	txs := append([]EnterpriseTransaction(nil), c.pending...)

	block := EnterpriseBlock{
		Height:       last.Height + 1,
		PreviousHash: last.Hash,
		Timestamp:    uint64(c.now().Unix()),
		Validator:    proposer,
		Transactions: txs,
		MerkleRoot:   merkleRoot(txs),
	}
	mine(&block)

	c.chain = append(c.chain, block)
	c.pending = nil
	c.save()
	return block, true
}

// ValidateBlock checks a candidate block against the current chain tip.
// A block that is itself the current tip (for example one just returned
// by MineBlock) is checked against its predecessor instead.
func (c *Chain) ValidateBlock(block EnterpriseBlock) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validateBlockLocked(block)
}

func (c *Chain) validateBlockLocked(block EnterpriseBlock) bool {
	last := c.chain[len(c.chain)-1]
	if len(c.chain) > 1 && block.Height == last.Height && block.Hash == last.Hash {
		last = c.chain[len(c.chain)-2]
	}
	if block.Height != last.Height+1 {
		return false
	}
	if block.PreviousHash != last.Hash {
		return false
	}
	if block.Hash != blockHash(block) {
		return false
	}
	return strings.HasPrefix(block.Hash, MiningPrefix)
}

// mine increments nonce from 0 until the recomputed hash carries the
// required mining prefix.
func mine(block *EnterpriseBlock) {
	for {
		block.Hash = blockHash(*block)
		if strings.HasPrefix(block.Hash, MiningPrefix) {
			return
		}
		block.Nonce++
	}
}

// blockHash is a SHA-256 over the decimal/string concatenation of
// (height, previous_hash, timestamp, validator, merkle_root, nonce),
// hex-encoded — matching spec.md §3's EnterpriseBlock invariant exactly.
func blockHash(block EnterpriseBlock) string {
	data := fmt.Sprintf("%d%s%d%s%s%d",
		block.Height, block.PreviousHash, block.Timestamp, block.Validator, block.MerkleRoot, block.Nonce)
	return hashHex(data)
}

// merkleRoot is a single-level hash of concatenated per-transaction
// hashes — not a binary Merkle tree (spec.md §9 open question 1).
func merkleRoot(txs []EnterpriseTransaction) string {
	if len(txs) == 0 {
		return ZeroHash
	}
	var b strings.Builder
	for _, tx := range txs {
		b.WriteString(hashHex(fmt.Sprintf("%s%s%d", tx.TxID, tx.TransactionData, tx.Timestamp)))
	}
	return hashHex(b.String())
}

func hashHex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// Height returns the current chain height.
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chain[len(c.chain)-1].Height
}

func (c *Chain) GetPendingCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending)
}

func (c *Chain) GetValidatorCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.validators)
}

// GetRecentTenantBlocks returns the last limit tenant blocks retained
// (at most retainedTenantBlocks are ever held, regardless of limit).
func (c *Chain) GetRecentTenantBlocks(limit int) []types.TenantBlock {
	c.mu.RLock()
	defer c.mu.RUnlock()
	all := c.recentTenantBlocks
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	start := len(all) - limit
	return append([]types.TenantBlock(nil), all[start:]...)
}

// GetTenantSummaries computes per-network aggregates over the retained
// window.
func (c *Chain) GetTenantSummaries() []TenantSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	type agg struct {
		blocks, txs  int
		lastActivity uint64
	}
	byNetwork := make(map[string]*agg)
	var order []string

	for _, b := range c.recentTenantBlocks {
		a, ok := byNetwork[b.NetworkID]
		if !ok {
			a = &agg{}
			byNetwork[b.NetworkID] = a
			order = append(order, b.NetworkID)
		}
		a.blocks++
		a.txs += len(b.Transactions)
		if b.Timestamp > a.lastActivity {
			a.lastActivity = b.Timestamp
		}
	}

	sort.Strings(order)
	out := make([]TenantSummary, 0, len(order))
	for _, id := range order {
		a := byNetwork[id]
		out = append(out, TenantSummary{
			NetworkID:        id,
			BlockCount:       a.blocks,
			TransactionCount: a.txs,
			LastActivity:     a.lastActivity,
		})
	}
	return out
}

// Status returns the aggregate snapshot served by GET /api/status.
func (c *Chain) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	last := c.chain[len(c.chain)-1]
	totalTxs := 0
	for _, b := range c.chain {
		totalTxs += len(b.Transactions)
	}
	tenants := make(map[string]struct{})
	for _, b := range c.recentTenantBlocks {
		tenants[b.NetworkID] = struct{}{}
	}
	active := 0
	for _, v := range c.validators {
		if v.Active {
			active++
		}
	}

	return Status{
		Height:              last.Height,
		LatestHash:          last.Hash,
		ValidatorID:         c.validatorID,
		PendingTransactions: len(c.pending),
		TotalBlocks:         len(c.chain),
		TotalTransactions:   totalTxs,
		ActiveValidators:    active,
		ActiveTenants:       len(tenants),
		ChainHealth:         "healthy",
		LatestBlockTime:     last.Timestamp,
	}
}
