package tracker

import (
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// egressClient owns the outbound HTTP path from the tracker to the
// enterprise chain that isn't watermarked block forwarding — peer-
// initiated delta syncs. Fire-and-forget: failures are logged, never
// retried (there is no watermark to recover from for this path).
//
// Watermarked tenant-block delivery instead goes through a
// BlockForwarder (pkg/forwarder.Forwarder in production) so a block
// dedup'd at the hub is only forwarded once and survives a failed POST
// via its periodic re-scan.
type egressClient struct {
	http          *resty.Client
	enterpriseURL string
	log           *zap.SugaredLogger
}

func newEgressClient(enterpriseURL string, log *zap.SugaredLogger) *egressClient {
	return &egressClient{
		http:          resty.New().SetTimeout(5 * time.Second),
		enterpriseURL: enterpriseURL,
		log:           log,
	}
}

// deltaSync forwards a peer-initiated enterprise_sync request.
func (e *egressClient) deltaSync(networkID, peerID string, syncData interface{}) {
	payload := map[string]interface{}{
		"type":       "delta_sync",
		"network_id": networkID,
		"peer_id":    peerID,
		"sync_data":  syncData,
		"timestamp":  uint64(time.Now().Unix()),
	}

	resp, err := e.http.R().SetBody(payload).Post(e.enterpriseURL + "/api/delta-sync")
	if err != nil {
		e.log.Warnw("delta sync forward failed", "network_id", networkID, "err", err)
		return
	}
	if resp.IsError() {
		e.log.Warnw("delta sync forward rejected", "network_id", networkID, "status", resp.StatusCode())
	}
}
