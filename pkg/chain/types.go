// Package chain implements C2: the enterprise aggregator blockchain — a
// durable append-only log of aggregator blocks over tenant-block-derived
// transactions, a stake-weighted PoS producer, validator heartbeats, and
// whole-state JSON persistence.
package chain

import (
	"strings"

	"github.com/distli-mesh/aggregator/pkg/types"
)

// ZeroHash is the 64-char zero-hash used by the genesis block's hash and
// previous_hash, and by an empty merkle root.
var ZeroHash = strings.Repeat("0", 64)

// MiningPrefix is the required prefix of every mined block hash.
const MiningPrefix = "00"

// staleHeartbeatSecs is the liveness timeout: a validator that hasn't sent a
// heartbeat in this long is dropped from the active set.
const staleHeartbeatSecs = 120

// EnterpriseBlock is one aggregator block.
type EnterpriseBlock struct {
	Height       uint64                `json:"height"`
	Hash         string                `json:"hash"`
	PreviousHash string                `json:"previous_hash"`
	Timestamp    uint64                `json:"timestamp"`
	Validator    string                `json:"validator"`
	Transactions []EnterpriseTransaction `json:"transactions"`
	// MerkleRoot is a flat hash of concatenated per-transaction hashes,
	// NOT a binary Merkle tree — there is no proof structure here, only
	// a commitment to the transaction set. Documented explicitly
	// (spec.md §9 open question 1) so callers don't mistake this for a
	// verifiable Merkle proof root.
	MerkleRoot string `json:"merkle_root"`
	Nonce      uint64 `json:"nonce"`
}

// EnterpriseTransaction wraps one tenant-block transaction (or a directly
// submitted transfer/message) as recorded on the enterprise chain.
type EnterpriseTransaction struct {
	TxID             string  `json:"tx_id"`
	TenantNetwork    string  `json:"tenant_network"`
	TenantBlockID    uint64  `json:"tenant_block_id"`
	TenantBlockHash  string  `json:"tenant_block_hash"`
	TransactionData  string  `json:"transaction_data"`
	Timestamp        uint64  `json:"timestamp"`
	FromPeer         string  `json:"from_peer"`

	// ContractAddress/GasUsed/ExecutionResult are carried for wire
	// compatibility with a smart-contract-capable sibling (see
	// SPEC_FULL.md §4) but never populated by this core: contract
	// execution is out of scope.
	ContractAddress *string `json:"contract_address,omitempty"`
	GasUsed         *uint64 `json:"gas_used,omitempty"`
	ExecutionResult *string `json:"execution_result,omitempty"`
}

// persistedState is the exact shape written to
// data/enterprise_blockchain_{validator_id}.json. TenantBlocks is the
// rolling window of at most retainedTenantBlocks entries — the same
// window held in memory, not an unbounded history (see Chain.recentTenantBlocks).
// SeenBlockIDs/SeenBlockHashes are the (network_id, block_id)/
// (network_id, block_hash) uniqueness indices, which DO cover every
// block ever accepted, not just the retained window, so the
// add_tenant_blocks idempotence invariant survives a restart even once
// history has scrolled past the window.
type persistedState struct {
	Chain           []EnterpriseBlock           `json:"chain"`
	Pending         []EnterpriseTransaction     `json:"pending"`
	Validators      map[string]*types.Validator `json:"validators"`
	TenantBlocks    []types.TenantBlock         `json:"tenant_blocks"`
	Contracts       map[string]string           `json:"contracts"`
	SeenBlockIDs    map[string][]uint64         `json:"seen_block_ids,omitempty"`
	SeenBlockHashes map[string][]string         `json:"seen_block_hashes,omitempty"`
}

// TenantSummary is the per-network aggregate returned by GetTenantSummaries.
type TenantSummary struct {
	NetworkID        string `json:"network_id"`
	BlockCount       int    `json:"block_count"`
	TransactionCount int    `json:"transaction_count"`
	LastActivity     uint64 `json:"last_activity"`
}

// Status is the aggregate returned by GET /api/status.
type Status struct {
	Height              uint64 `json:"height"`
	LatestHash          string `json:"latest_hash"`
	ValidatorID         string `json:"validator"`
	PendingTransactions int    `json:"pending_transactions"`
	TotalBlocks         int    `json:"total_blocks"`
	TotalTransactions   int    `json:"total_transactions"`
	ActiveValidators    int    `json:"active_validators"`
	ActiveTenants       int    `json:"active_tenants"`
	ChainHealth         string `json:"chain_health"`
	LatestBlockTime     uint64 `json:"latest_block_time"`
}
