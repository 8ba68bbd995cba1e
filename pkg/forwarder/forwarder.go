package forwarder

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/distli-mesh/aggregator/pkg/types"
	"github.com/distli-mesh/aggregator/pkg/util"
)

const retainedBlocksPerNetwork = 100

// Forwarder is C5: it holds, per tenant network, the highest block_id
// already forwarded to the enterprise chain, and only ever forwards
// blocks above that watermark — making a re-delivered or replayed
// update a no-op downstream.
type Forwarder struct {
	mu sync.Mutex

	dataDir       string
	enterpriseURL string
	http          *resty.Client
	log           *zap.SugaredLogger
	clock         util.Clock

	rescanInterval time.Duration
	watermark      map[string]uint64
	retained       map[string][]types.TenantBlock
}

// New builds a Forwarder. rescanIntervalSecs configures the periodic
// re-scan tick (params.Tracker.ForwardInterval / FORWARD_INTERVAL_SECS);
// a value <= 0 falls back to RescanInterval.
func New(dataDir, enterpriseURL string, log *zap.SugaredLogger, clock util.Clock, rescanIntervalSecs int) *Forwarder {
	if rescanIntervalSecs <= 0 {
		rescanIntervalSecs = RescanInterval
	}
	f := &Forwarder{
		dataDir:        dataDir,
		enterpriseURL:  enterpriseURL,
		http:           resty.New().SetTimeout(5 * time.Second),
		log:            log,
		clock:          clock,
		rescanInterval: time.Duration(rescanIntervalSecs) * time.Second,
		watermark:      make(map[string]uint64),
		retained:       make(map[string][]types.TenantBlock),
	}
	if err := f.load(); err != nil {
		f.log.Warnw("forwarder state load failed, starting empty", "err", err)
	}
	return f
}

// HandleUpdate accepts an incoming tenant-block update, retains its
// blocks, forwards only those above the current watermark (preserving
// order), and advances the watermark on a successful forward.
func (f *Forwarder) HandleUpdate(update types.TenantBlockchainUpdate) {
	f.mu.Lock()
	wm := f.watermark[update.NetworkID]

	var fresh []types.TenantBlock
	for _, b := range update.NewBlocks {
		if b.BlockID > wm {
			fresh = append(fresh, b)
		}
	}

	f.retain(update.NetworkID, update.NewBlocks)
	f.mu.Unlock()

	if len(fresh) == 0 {
		return
	}
	f.forward(update.NetworkID, update.PeerID, fresh)
}

// retain appends blocks to the per-network history, capped to the most
// recent retainedBlocksPerNetwork, sorted by block_id so re-scans walk
// them in order regardless of arrival order (spec.md Scenario D).
// Caller must hold f.mu.
func (f *Forwarder) retain(networkID string, blocks []types.TenantBlock) {
	existing := f.retained[networkID]
	existing = append(existing, blocks...)
	sort.SliceStable(existing, func(i, j int) bool { return existing[i].BlockID < existing[j].BlockID })

	if len(existing) > retainedBlocksPerNetwork {
		existing = existing[len(existing)-retainedBlocksPerNetwork:]
	}
	f.retained[networkID] = existing
}

// forward POSTs blocks to the enterprise ingest endpoint as a single
// update, in the order given (ascending block_id from rescan, arrival
// order from HandleUpdate), advancing the watermark to the highest
// block_id among them only on a 2xx response.
func (f *Forwarder) forward(networkID, peerID string, blocks []types.TenantBlock) {
	update := types.TenantBlockchainUpdate{
		NetworkID: networkID,
		PeerID:    peerID,
		Timestamp: uint64(f.clock.Now().Unix()),
		NewBlocks: blocks,
	}

	resp, err := f.http.R().SetBody(update).Post(f.enterpriseURL + "/api/tenant-blockchain-update")
	if err != nil {
		f.log.Warnw("forward to enterprise failed, watermark unchanged", "network_id", networkID, "err", err)
		return
	}
	if resp.IsError() {
		f.log.Warnw("forward to enterprise rejected, watermark unchanged", "network_id", networkID, "status", resp.StatusCode())
		return
	}

	highest := blocks[0].BlockID
	for _, b := range blocks[1:] {
		if b.BlockID > highest {
			highest = b.BlockID
		}
	}
	f.mu.Lock()
	if highest > f.watermark[networkID] {
		f.watermark[networkID] = highest
	}
	f.save()
	f.mu.Unlock()

	f.log.Infow("forwarded tenant blocks", "network_id", networkID, "count", len(blocks), "watermark", f.watermark[networkID])
}

// rescan walks every retained network's blocks and re-forwards anything
// still above the network's last acknowledged watermark, recovering
// from a forward that failed or crashed mid-flight.
func (f *Forwarder) rescan() {
	f.mu.Lock()
	type pending struct {
		networkID string
		blocks    []types.TenantBlock
	}
	var work []pending
	for networkID, blocks := range f.retained {
		wm := f.watermark[networkID]
		var stale []types.TenantBlock
		for _, b := range blocks {
			if b.BlockID > wm {
				stale = append(stale, b)
			}
		}
		if len(stale) > 0 {
			work = append(work, pending{networkID, stale})
		}
	}
	f.mu.Unlock()

	for _, w := range work {
		f.forward(w.networkID, "rescan", w.blocks)
	}
}

// Run blocks, re-scanning every rescanInterval (via the injected Clock,
// so tests can drive it without sleeping) until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.clock.After(f.rescanInterval):
			f.rescan()
		}
	}
}
