package enterprise

import (
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/distli-mesh/aggregator/pkg/orderbook"
)

// settleDelay is the pause before a book broadcast that follows at least
// one trade, giving downstream state stores time to quiesce (spec.md
// §4.3 "book broadcast").
const settleDelay = 200 * time.Millisecond

// broadcastTrades POSTs each trade to the tracker's cross-network-trade
// endpoint. Failures are logged and swallowed — outbound broadcast is
// best-effort (spec.md §7 taxonomy item 3).
func (s *Server) broadcastTrades(trades []orderbook.Trade) {
	for _, trade := range trades {
		resp, err := s.http.R().
			SetBody(crossNetworkTrade{trade}).
			Post(s.trackerURL + "/api/cross-network-trade")
		if err != nil {
			s.log.Warnw("trade broadcast failed", "trade_id", trade.TradeID, "err", err)
			continue
		}
		if resp.IsError() {
			s.log.Warnw("trade broadcast rejected", "trade_id", trade.TradeID, "status", resp.StatusCode())
		}
	}
}

// broadcastBook POSTs the current book snapshot to the tracker. When
// tradesOccurred, the settle delay runs first.
func (s *Server) broadcastBook(tradesOccurred bool) {
	if tradesOccurred {
		time.Sleep(settleDelay)
	}

	snap := s.book.Snapshot()
	resp, err := s.http.R().
		SetBody(bookBroadcast{
			Type:      "order_book_broadcast",
			Orders:    snap,
			Timestamp: uint64(time.Now().Unix()),
		}).
		Post(s.trackerURL + "/api/order-book-broadcast")
	if err != nil {
		s.log.Warnw("book broadcast failed", "err", err)
		return
	}
	if resp.IsError() {
		s.log.Warnw("book broadcast rejected", "status", resp.StatusCode())
	}
}

func newHTTPClient() *resty.Client {
	return resty.New().SetTimeout(5 * time.Second)
}
