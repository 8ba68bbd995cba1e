// Package tracker implements C4: the long-lived signalling and
// membership relay that peers in each tenant network connect to over
// WebSocket, plus the HTTP egress/admin surface used by the enterprise
// chain and by cross-network trade/book-broadcast delivery.
package tracker

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/distli-mesh/aggregator/pkg/types"
)

// BlockForwarder delivers a watermarked tenant-block update downstream.
// pkg/forwarder.Forwarder is the production implementation; tests can
// substitute a stub.
type BlockForwarder interface {
	HandleUpdate(update types.TenantBlockchainUpdate)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub is the tracker's peer registry: WebSocket peers grouped by tenant
// network, the block dedupe set, the BlockForwarder that carries deduped
// blocks to the enterprise chain, and the egress client used for delta
// syncs.
type Hub struct {
	mu sync.RWMutex

	peers    map[string]*Peer            // peer_id -> Peer
	networks map[string]map[string]*Peer // network_id -> peer_id -> Peer

	dedupe    *dedupeSet
	egress    *egressClient
	forwarder BlockForwarder
	log       *zap.SugaredLogger
}

func NewHub(enterpriseURL string, forwarder BlockForwarder, log *zap.SugaredLogger) *Hub {
	return &Hub{
		peers:     make(map[string]*Peer),
		networks:  make(map[string]map[string]*Peer),
		dedupe:    newDedupeSet(DedupeCapacity),
		egress:    newEgressClient(enterpriseURL, log),
		forwarder: forwarder,
		log:       log,
	}
}

// ServeWS upgrades the request and registers a new peer under a fresh
// UUID peer id.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "err", err)
		return
	}

	peer := &Peer{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.mu.Lock()
	h.peers[peer.id] = peer
	h.mu.Unlock()

	h.log.Infow("peer connected", "peer_id", peer.id)

	go peer.writePump()
	go peer.readPump()
}

// handleMessage routes one decoded inbound envelope by its type tag.
func (h *Hub) handleMessage(p *Peer, msgType string, raw []byte) {
	switch msgType {
	case "join_network":
		var m joinNetworkMsg
		if err := json.Unmarshal(raw, &m); err != nil || m.NetworkID == "" {
			return
		}
		h.joinNetwork(p, m.NetworkID)

	case "offer", "answer", "candidate":
		var m signalMsg
		if err := json.Unmarshal(raw, &m); err != nil || m.Target == "" {
			return
		}
		h.relay(p, msgType, m.Target, m.Payload)

	case "block":
		var m peerBlockMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		h.handleBlock(p, m.Block)

	case "transaction":
		var m transactionMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		h.broadcastToNetworkExcept(p.networkID, p.id, json.RawMessage(raw))

	case "message":
		h.broadcastToNetworkExcept(p.networkID, p.id, json.RawMessage(raw))

	case "enterprise_sync":
		var m enterpriseSyncMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		go h.egress.deltaSync(m.NetworkID, p.id, m.SyncData)

	default:
		h.log.Warnw("unknown peer message type", "type", msgType, "peer_id", p.id)
	}
}

// joinNetwork moves peer into networkID (leaving any prior network),
// tells it who else is there, and re-broadcasts the network roster.
func (h *Hub) joinNetwork(p *Peer, networkID string) {
	h.mu.Lock()
	if p.networkID != "" && p.networkID != networkID {
		h.removeFromNetworkLocked(p)
	}
	if h.networks[networkID] == nil {
		h.networks[networkID] = make(map[string]*Peer)
	}
	h.networks[networkID][p.id] = p
	p.networkID = networkID

	peerIDs := make([]string, 0, len(h.networks[networkID]))
	for id := range h.networks[networkID] {
		if id != p.id {
			peerIDs = append(peerIDs, id)
		}
	}
	peerCount := len(h.networks[networkID])
	h.mu.Unlock()

	p.sendJSON(peersMsg{Type: "peers", Peers: peerIDs})
	p.sendJSON(networkInfoMsg{Type: "network_info", NetworkID: networkID, PeerCount: peerCount})

	h.log.Infow("peer joined network", "peer_id", p.id, "network_id", networkID)
	h.broadcastNetworkList()
}

// removeFromNetworkLocked detaches p from its current network, deleting
// the network entirely if it becomes empty. Caller must hold h.mu.
func (h *Hub) removeFromNetworkLocked(p *Peer) {
	if members, ok := h.networks[p.networkID]; ok {
		delete(members, p.id)
		if len(members) == 0 {
			delete(h.networks, p.networkID)
		}
	}
	p.networkID = ""
}

// relay forwards an offer/answer/candidate signalling message to target
// within sender's network, rewriting target to the sender's own id.
func (h *Hub) relay(sender *Peer, msgType, target string, payload json.RawMessage) {
	h.mu.RLock()
	dest, ok := h.networks[sender.networkID][target]
	h.mu.RUnlock()
	if !ok {
		return
	}
	dest.sendJSON(signalMsg{Type: msgType, Target: sender.id, Payload: payload})
}

// handleBlock applies the dedupe check, broadcasts to the rest of the
// network, and forwards to the enterprise chain exactly once.
func (h *Hub) handleBlock(sender *Peer, block peerBlock) {
	if sender.networkID == "" {
		return
	}
	key := fmt.Sprintf("%s:%s", sender.networkID, block.Hash)
	if h.dedupe.seenOrInsert(key) {
		h.log.Infow("duplicate block dropped", "network_id", sender.networkID, "block_hash", block.Hash)
		return
	}

	h.broadcastToNetworkExcept(sender.networkID, sender.id, peerBlockMsg{Type: "block", Block: block})

	update := types.TenantBlockchainUpdate{
		NetworkID: sender.networkID,
		PeerID:    sender.id,
		NewBlocks: []types.TenantBlock{{
			NetworkID:    sender.networkID,
			BlockID:      block.Height,
			BlockHash:    block.Hash,
			PreviousHash: block.PreviousHash,
			Timestamp:    block.Timestamp,
			Transactions: block.Transactions,
		}},
	}
	go h.forwarder.HandleUpdate(update)
}

// broadcastToNetworkExcept sends payload to every peer in networkID
// other than excludePeerID.
func (h *Hub) broadcastToNetworkExcept(networkID, excludePeerID string, payload interface{}) {
	if networkID == "" {
		return
	}
	h.mu.RLock()
	members := make([]*Peer, 0, len(h.networks[networkID]))
	for id, p := range h.networks[networkID] {
		if id != excludePeerID {
			members = append(members, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range members {
		p.sendJSON(payload)
	}
}

// broadcastToNetwork sends payload to every peer in networkID.
func (h *Hub) broadcastToNetwork(networkID string, payload interface{}) {
	h.broadcastToNetworkExcept(networkID, "", payload)
}

// broadcastToAllNetworkMembers sends payload to every peer that belongs
// to some network (spec.md's "every peer in every network").
func (h *Hub) broadcastToAllNetworkMembers(payload interface{}) {
	h.mu.RLock()
	var members []*Peer
	for _, peers := range h.networks {
		for _, p := range peers {
			members = append(members, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range members {
		p.sendJSON(payload)
	}
}

// broadcastNetworkList re-sends the full network roster to every
// connected peer, regardless of membership.
func (h *Hub) broadcastNetworkList() {
	h.mu.RLock()
	entries := make([]networkListEntry, 0, len(h.networks))
	for id, members := range h.networks {
		entries = append(entries, networkListEntry{ID: id, Name: id, PeerCount: len(members)})
	}
	peers := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	msg := networkListMsg{Type: "network_list_update", Networks: entries}
	for _, p := range peers {
		p.sendJSON(msg)
	}
}

// leave unregisters a peer, removing it from its network (deleting the
// network if it becomes empty), then re-broadcasts the roster.
func (h *Hub) leave(p *Peer) {
	h.mu.Lock()
	networkID := p.networkID
	delete(h.peers, p.id)
	if networkID != "" {
		h.removeFromNetworkLocked(p)
	}
	h.mu.Unlock()

	h.log.Infow("peer disconnected", "peer_id", p.id, "network_id", networkID)
	if networkID != "" {
		h.broadcastNetworkList()
	}
}

// NetworkCounts returns peer counts per network for GET /api/networks.
func (h *Hub) NetworkCounts() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.networks))
	for id, members := range h.networks {
		out[id] = len(members)
	}
	return out
}

// NetworkList returns the sorted roster for GET /api/network-list.
func (h *Hub) NetworkList() []networkListEntry {
	h.mu.RLock()
	entries := make([]networkListEntry, 0, len(h.networks))
	for id, members := range h.networks {
		entries = append(entries, networkListEntry{ID: id, Name: id, PeerCount: len(members)})
	}
	h.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}
