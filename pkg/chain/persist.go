package chain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func (c *Chain) filePath() string {
	return filepath.Join(c.dataDir, fmt.Sprintf("enterprise_blockchain_%s.json", c.validatorID))
}

// load reads the whole-state JSON file for this validator, if present.
// A missing file is not an error — the caller falls back to genesis. A
// corrupt file returns its unmarshal error before any field is applied,
// so none of its contents are recovered: the caller starts from genesis,
// without crashing.
func (c *Chain) load() error {
	raw, err := os.ReadFile(c.filePath())
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

	c.chain = state.Chain
	c.pending = state.Pending
	if state.Validators != nil {
		c.validators = state.Validators
	}
	c.recentTenantBlocks = state.TenantBlocks
	if state.Contracts != nil {
		c.contracts = state.Contracts
	}

	for networkID, ids := range state.SeenBlockIDs {
		set := make(map[uint64]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		c.seenBlockIDs[networkID] = set
	}
	for networkID, hashes := range state.SeenBlockHashes {
		set := make(map[string]struct{}, len(hashes))
		for _, h := range hashes {
			set[h] = struct{}{}
		}
		c.seenBlockHashes[networkID] = set
	}
	return nil
}

// save persists the full chain state, rewriting the file atomically via
// a temp-file-then-rename so a crash mid-write never leaves a truncated
// file behind (spec.md §6). Marshal, mkdir and write errors are swallowed
// silently; nothing is logged. Caller must hold c.mu.
func (c *Chain) save() {
	seenIDs := make(map[string][]uint64, len(c.seenBlockIDs))
	for networkID, ids := range c.seenBlockIDs {
		list := make([]uint64, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		seenIDs[networkID] = list
	}
	seenHashes := make(map[string][]string, len(c.seenBlockHashes))
	for networkID, hashes := range c.seenBlockHashes {
		list := make([]string, 0, len(hashes))
		for h := range hashes {
			list = append(list, h)
		}
		seenHashes[networkID] = list
	}

	state := persistedState{
		Chain:           c.chain,
		Pending:         c.pending,
		Validators:      c.validators,
		TenantBlocks:    c.recentTenantBlocks,
		Contracts:       c.contracts,
		SeenBlockIDs:    seenIDs,
		SeenBlockHashes: seenHashes,
	}

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return
	}

	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return
	}

	tmp := c.filePath() + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, c.filePath())
}
