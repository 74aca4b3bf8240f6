package spv

import (
	"time"

	"github.com/btcsuite/btcd/wire"
)

// Request is the tagged variant family accepted by the dispatcher's single
// channel: wallet requests, peer lifecycle events, and inbound peer
// messages are all encoded as members of this family so they share one
// FIFO ordering point.
type Request interface {
	isRequest()
}

// --- wallet-facing requests ---

// BloomFilterUpdateRequest installs a new bloom filter if non-empty and
// different from the current one, broadcasts FilterLoad, and triggers
// downloads.
type BloomFilterUpdateRequest struct {
	Filter *BloomFilter
}

// PublishTxRequest sends tx to every handshaken peer, or queues it for the
// first one to handshake if none exists yet.
type PublishTxRequest struct {
	Tx *wire.MsgTx
}

// NodeRescanRequest triggers the session's rescan coordinator.
type NodeRescanRequest struct {
	Timestamp time.Time
}

// HeartbeatRequest is posted by the timer every 120s and can also be
// injected synchronously by tests.
type HeartbeatRequest struct{}

// --- peer lifecycle / inbound message requests (peer-manager callbacks) ---

type PeerHandshakeRequest struct {
	Peer PeerID
	ProtocolVersion uint32
	StartHeight int32
}

type PeerDisconnectRequest struct {
	Peer PeerID
}

type HeadersRequest struct {
	Peer PeerID
	Headers []*wire.BlockHeader
}

type InvRequest struct {
	Peer PeerID
	Inv []*wire.InvVect
}

type TxRequest struct {
	Peer PeerID
	Tx *wire.MsgTx
}

type MerkleBlockRequest struct {
	Peer PeerID
	Block *DecodedMerkleBlock
}

// NodeStatusRequest is the read-only inspection surface pkg/statusapi uses.
// It never bypasses the dispatcher: the snapshot is computed inside the
// dispatch loop like any other request and handed back over Reply, which
// must be buffered so a caller that stops listening never stalls the
// dispatcher.
type NodeStatusRequest struct {
	Reply chan NodeStatus
}

func (BloomFilterUpdateRequest) isRequest() {}
func (PublishTxRequest) isRequest()         {}
func (NodeRescanRequest) isRequest()        {}
func (HeartbeatRequest) isRequest()         {}
func (PeerHandshakeRequest) isRequest()     {}
func (PeerDisconnectRequest) isRequest()    {}
func (HeadersRequest) isRequest()           {}
func (InvRequest) isRequest()               {}
func (TxRequest) isRequest()                {}
func (MerkleBlockRequest) isRequest()       {}
func (NodeStatusRequest) isRequest()        {}
