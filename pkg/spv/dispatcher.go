package spv

import (
	"context"

	"github.com/google/uuid"
)

// Dispatcher is the single-threaded serialization point for the session. It
// owns a bounded channel of Request values; Run drains it to completion one
// request at a time so every handler in this package can mutate *Session
// without locking. Outbound I/O only ever happens by calling the
// PeerManager, which itself never blocks the dispatcher goroutine.
//
// This mirrors the blockHandler/msgChan actor loop used by SPV sync
// managers in the wild: a single goroutine consuming a typed message
// channel, with the heartbeat posted onto the same channel as any other
// event rather than given special-cased concurrency.
type Dispatcher struct {
	session *Session
	reqCh chan Request
}

// NewDispatcher wraps session with a bounded request channel of the given
// capacity.
func NewDispatcher(session *Session, capacity int) *Dispatcher {
	if capacity <= 0 {
		capacity = 256
	}
	return &Dispatcher{session: session, reqCh: make(chan Request, capacity)}
}

// Post enqueues req for processing. It blocks if the channel is full,
// exerting the only backpressure the core ever applies.
func (d *Dispatcher) Post(req Request) {
	d.reqCh <- req
}

// Run drains the request channel until ctx is cancelled. Each request runs
// to completion before the next is dequeued.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.reqCh:
			d.session.dispatch(req)
		}
	}
}

// dispatch routes a single request to its handler. No handler returns an
// error; all failures are logged and absorbed. Every request is tagged with
// a correlation ID so a run of log lines for one request can be grepped out
// of an otherwise interleaved-looking single-threaded log.
func (s *Session) dispatch(req Request) {
	corrID := uuid.NewString()
	s.log.Debugf("spv: [%s] dispatching %T", corrID, req)
	switch r := req.(type) {
	case BloomFilterUpdateRequest:
		s.onBloomFilterUpdate(r.Filter)
	case PublishTxRequest:
		s.onPublishTx(r.Tx)
	case NodeRescanRequest:
		s.processRescan(r.Timestamp)
	case HeartbeatRequest:
		s.onHeartbeat()
	case PeerHandshakeRequest:
		s.onPeerHandshake(r.Peer, r.ProtocolVersion, r.StartHeight)
	case PeerDisconnectRequest:
		s.onPeerDisconnect(r.Peer)
	case HeadersRequest:
		s.onHeaders(r.Peer, r.Headers)
	case InvRequest:
		s.onInv(r.Peer, r.Inv)
	case TxRequest:
		s.onTx(r.Peer, r.Tx)
	case MerkleBlockRequest:
		s.onMerkleBlock(r.Peer, r.Block)
	case NodeStatusRequest:
		s.onNodeStatus(r)
	default:
		s.log.Warnf("spv: dropping request of unknown type %T", req)
	}
}
