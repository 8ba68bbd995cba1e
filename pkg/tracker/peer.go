package tracker

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Peer is one connected WebSocket client. networkID is the tenant
// network it currently belongs to — empty until the first join_network
// message — guarded by the owning Hub's lock, not Peer's own.
type Peer struct {
	id        string
	networkID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (p *Peer) sendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case p.send <- data:
	default:
		// Outbound queue full: spec.md §5 leaves per-peer backpressure
		// unbounded by design; a full buffered channel here means the
		// peer is badly behind, so drop rather than block the hub.
	}
}

// readPump decodes inbound peer messages and routes them by type.
// Runs until the socket closes, then unregisters the peer.
func (p *Peer) readPump() {
	defer p.hub.leave(p)

	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			break
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			p.hub.log.Warnw("invalid peer message", "peer_id", p.id, "err", err)
			continue
		}

		p.hub.handleMessage(p, env.Type, raw)
	}
}

// writePump drains the outbound queue to the socket and keeps it alive
// with periodic pings.
func (p *Peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
