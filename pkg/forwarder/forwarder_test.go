package forwarder

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/distli-mesh/aggregator/pkg/types"
	"github.com/distli-mesh/aggregator/pkg/util"
)

func testForwarder(t *testing.T, enterpriseURL string) *Forwarder {
	t.Helper()
	return New(t.TempDir(), enterpriseURL, zap.NewNop().Sugar(), util.RealClock{}, 10)
}

func TestHandleUpdateForwardsOnlyAboveWatermark(t *testing.T) {
	var received []types.TenantBlockchainUpdate
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var u types.TenantBlockchainUpdate
		json.NewDecoder(r.Body).Decode(&u)
		received = append(received, u)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := testForwarder(t, srv.URL)
	f.HandleUpdate(types.TenantBlockchainUpdate{
		NetworkID: "net-a",
		NewBlocks: []types.TenantBlock{
			{NetworkID: "net-a", BlockID: 1},
			{NetworkID: "net-a", BlockID: 2},
		},
	})

	if len(received) != 1 || len(received[0].NewBlocks) != 2 {
		t.Fatalf("expected one forward carrying both fresh blocks, got %+v", received)
	}

	// Re-delivering the same update should forward nothing new.
	f.HandleUpdate(types.TenantBlockchainUpdate{
		NetworkID: "net-a",
		NewBlocks: []types.TenantBlock{
			{NetworkID: "net-a", BlockID: 1},
			{NetworkID: "net-a", BlockID: 2},
		},
	})
	if len(received) != 1 {
		t.Fatalf("expected replayed update to forward nothing, got %d total forwards", len(received))
	}

	// A genuinely new block above the watermark should forward alone.
	f.HandleUpdate(types.TenantBlockchainUpdate{
		NetworkID: "net-a",
		NewBlocks: []types.TenantBlock{{NetworkID: "net-a", BlockID: 3}},
	})
	if len(received) != 2 || len(received[1].NewBlocks) != 1 || received[1].NewBlocks[0].BlockID != 3 {
		t.Fatalf("expected second forward with only block 3, got %+v", received)
	}
}

func TestForwardFailureLeavesWatermarkUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := testForwarder(t, srv.URL)
	f.HandleUpdate(types.TenantBlockchainUpdate{
		NetworkID: "net-a",
		NewBlocks: []types.TenantBlock{{NetworkID: "net-a", BlockID: 1}},
	})

	f.mu.Lock()
	wm := f.watermark["net-a"]
	f.mu.Unlock()
	if wm != 0 {
		t.Fatalf("expected watermark to remain 0 after a failed forward, got %d", wm)
	}
}

func TestRescanRecoversFromFailedForward(t *testing.T) {
	var callCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := testForwarder(t, srv.URL)
	f.HandleUpdate(types.TenantBlockchainUpdate{
		NetworkID: "net-a",
		NewBlocks: []types.TenantBlock{{NetworkID: "net-a", BlockID: 1}},
	})

	f.mu.Lock()
	wm := f.watermark["net-a"]
	f.mu.Unlock()
	if wm != 0 {
		t.Fatalf("expected watermark still 0 after the first failed attempt")
	}

	f.rescan()

	f.mu.Lock()
	wm = f.watermark["net-a"]
	f.mu.Unlock()
	if wm != 1 {
		t.Fatalf("expected rescan to succeed and advance watermark to 1, got %d", wm)
	}
}

func TestSaveAndReloadWatermarkRoundTrips(t *testing.T) {
	dir := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f1 := New(dir, srv.URL, zap.NewNop().Sugar(), util.RealClock{}, 10)
	f1.HandleUpdate(types.TenantBlockchainUpdate{
		NetworkID: "net-a",
		NewBlocks: []types.TenantBlock{{NetworkID: "net-a", BlockID: 5}},
	})

	f2 := New(dir, srv.URL, zap.NewNop().Sugar(), util.RealClock{}, 10)
	f2.mu.Lock()
	wm := f2.watermark["net-a"]
	f2.mu.Unlock()
	if wm != 5 {
		t.Fatalf("expected reloaded watermark 5, got %d", wm)
	}
}
