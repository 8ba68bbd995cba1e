package forwarder

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/distli-mesh/aggregator/pkg/types"
)

const integrationFileName = "tracker_integration.json"

func (f *Forwarder) filePath() string {
	return filepath.Join(f.dataDir, integrationFileName)
}

// load reads tracker_integration.json if present. A missing file starts
// from an empty watermark table; a corrupt file is treated the same way
// (spec.md §7: corrupt JSON ⇒ partial/empty state, never a crash).
func (f *Forwarder) load() error {
	raw, err := os.ReadFile(f.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var state persistedState
	if err := json.Unmarshal(raw, &state); err != nil {
		return err
	}

	for network, lr := range state.LastReportedState {
		f.watermark[network] = lr.LastReportedBlockID
	}
	for network, ns := range state.NetworkBlockchainState {
		f.retained[network] = append([]types.TenantBlock(nil), ns.Blocks...)
	}
	return nil
}

// save persists the full watermark + retained-block state, rewriting
// the file atomically. Caller must hold f.mu.
func (f *Forwarder) save() {
	now := uint64(f.clock.Now().Unix())

	state := persistedState{
		LastReportedState:      make(map[string]lastReported, len(f.watermark)),
		NetworkBlockchainState: make(map[string]networkState, len(f.retained)),
	}
	for network, wm := range f.watermark {
		state.LastReportedState[network] = lastReported{LastReportedBlockID: wm, LastUpdate: now}
	}
	for network, blocks := range f.retained {
		var last uint64
		if len(blocks) > 0 {
			last = blocks[len(blocks)-1].BlockID
		}
		state.NetworkBlockchainState[network] = networkState{
			Blocks:      blocks,
			LastBlockID: last,
			LastUpdate:  now,
		}
	}

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		f.log.Warnw("failed to marshal forwarder state", "err", err)
		return
	}
	if err := os.MkdirAll(f.dataDir, 0o755); err != nil {
		f.log.Warnw("failed to create data dir", "err", err)
		return
	}

	tmp := f.filePath() + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		f.log.Warnw("failed to write forwarder state", "err", err)
		return
	}
	if err := os.Rename(tmp, f.filePath()); err != nil {
		f.log.Warnw("failed to finalize forwarder state write", "err", err)
	}
}
