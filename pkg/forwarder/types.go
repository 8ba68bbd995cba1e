// Package forwarder implements C5: the integration forwarder that
// watermarks per-network tenant-block delivery to the enterprise chain
// and periodically re-scans for anything that fell behind.
package forwarder

import "github.com/distli-mesh/aggregator/pkg/types"

// RescanInterval is how often the periodic re-scan tick runs (spec.md
// §4.5: "a periodic ticker (10s)").
const RescanInterval = 10

// lastReported is the per-network watermark record.
type lastReported struct {
	LastReportedBlockID uint64 `json:"last_reported_block_id"`
	LastUpdate          uint64 `json:"last_update"`
}

// networkState is the per-network retained block history used to drive
// re-scans.
type networkState struct {
	Blocks      []types.TenantBlock `json:"blocks"`
	LastBlockID uint64              `json:"last_block_id"`
	LastUpdate  uint64              `json:"last_update"`
}

// persistedState is the exact shape written to tracker_integration.json.
type persistedState struct {
	LastReportedState      map[string]lastReported `json:"last_reported_state"`
	NetworkBlockchainState map[string]networkState `json:"network_blockchain_state"`
}
