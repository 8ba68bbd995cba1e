package tracker

import "encoding/json"

// envelope is the minimal shape every inbound peer message is decoded
// into first, so the type discriminator can route to the right payload
// before a second, specific unmarshal.
type envelope struct {
	Type string `json:"type"`
}

// joinNetworkMsg — inbound: re-registers the peer into a tenant network.
type joinNetworkMsg struct {
	NetworkID string `json:"network_id"`
}

// signalMsg — inbound and outbound: WebRTC-style offer/answer/candidate
// relay. Payload is forwarded verbatim; only Target is rewritten.
type signalMsg struct {
	Type    string          `json:"type"`
	Target  string          `json:"target"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// peerBlockMsg — inbound and outbound: a tenant block announced by a
// peer, or re-broadcast to the rest of its network.
type peerBlockMsg struct {
	Type  string    `json:"type,omitempty"`
	Block peerBlock `json:"block"`
}

// peerBlock is the wire shape of a tenant-announced block, matching the
// original p2p chain's Block (height/hash/previous_hash/timestamp
// /validator/transactions), not the enterprise chain's EnterpriseBlock.
type peerBlock struct {
	Height       uint64   `json:"height"`
	Hash         string   `json:"hash"`
	PreviousHash string   `json:"previous_hash"`
	Timestamp    uint64   `json:"timestamp"`
	Validator    string   `json:"validator"`
	Transactions []string `json:"transactions"`
}

// transactionMsg — inbound: a bare transaction announcement, broadcast
// as-is to the rest of the sender's network.
type transactionMsg struct {
	Transaction json.RawMessage `json:"transaction"`
}

// enterpriseSyncMsg — inbound: a peer-initiated delta-sync request,
// forwarded fire-and-forget to the enterprise chain.
type enterpriseSyncMsg struct {
	NetworkID string          `json:"network_id"`
	SyncData  json.RawMessage `json:"sync_data"`
}

// peersMsg — outbound: existing peer ids in the network the recipient
// just joined.
type peersMsg struct {
	Type  string   `json:"type"`
	Peers []string `json:"peers"`
}

// networkInfoMsg — outbound: peer count of the network just joined.
type networkInfoMsg struct {
	Type      string `json:"type"`
	NetworkID string `json:"network_id"`
	PeerCount int    `json:"peer_count"`
}

// networkListEntry/networkListMsg — outbound: the global network
// roster, re-broadcast to every connected peer on any membership change.
type networkListEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PeerCount int    `json:"peer_count"`
}

type networkListMsg struct {
	Type     string             `json:"type"`
	Networks []networkListEntry `json:"networks"`
}

// enterpriseSyncOut — outbound: relays enterprise-originated events
// (trade execution, order book updates) down to peers.
type enterpriseSyncOut struct {
	Type      string      `json:"type"`
	NetworkID string      `json:"network_id"`
	SyncData  interface{} `json:"sync_data"`
}

// tradeExecutionData is the sync_data payload for a cross-network trade.
type tradeExecutionData struct {
	Type  string      `json:"type"`
	Trade interface{} `json:"trade"`
}

// orderBookUpdateData is the sync_data payload for a book broadcast.
type orderBookUpdateData struct {
	Type   string      `json:"type"`
	Orders interface{} `json:"orders"`
}
