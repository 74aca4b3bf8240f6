package spv

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btclog"
)

// BloomFilter is the opaque filter the wallet installs. The session never
// inspects its contents beyond the emptiness check; filter construction and
// matching belong to the wallet and the remote peer respectively.
type BloomFilter struct {
	Filter wire.BloomUpdateType
	Data []byte
	HashFnCount uint32
	Tweak uint32
}

// IsEmpty reports whether the filter carries no data, per the invariant
// predicate.
func (b *BloomFilter) IsEmpty() bool {
	return b == nil || len(b.Data) == 0
}

// FilterLoadMsg builds the wire message the session broadcasts on handshake
// or bloom update.
func (b *BloomFilter) FilterLoadMsg() *wire.MsgFilterLoad {
	return &wire.MsgFilterLoad{
		Filter:    b.Data,
		HashFuncs: b.HashFnCount,
		Tweak:     b.Tweak,
		Flags:     b.Filter,
	}
}

type inflightMerkle struct {
	height int32
	hash chainhash.Hash
	issuedAt time.Time
}

type inflightTx struct {
	hash chainhash.Hash
	issuedAt time.Time
}

// peerState consolidates what would otherwise be three separate per-peer
// maps (broadcast blocks, inflight merkles, inflight txs) into a single
// record keyed by peer identity. This also simplifies disconnect cleanup to
// a single map delete.
type peerState struct {
	inflightMerkles map[chainhash.Hash]inflightMerkle
	inflightTxs     map[chainhash.Hash]inflightTx
	broadcastBlocks map[chainhash.Hash]struct{}
}

func newPeerState() *peerState {
	return &peerState{
		inflightMerkles: make(map[chainhash.Hash]inflightMerkle),
		inflightTxs: make(map[chainhash.Hash]inflightTx),
		broadcastBlocks: make(map[chainhash.Hash]struct{}),
	}
}

// heightQueue is the ascending-height, FIFO-within-height block hash queue
// backing blocks_to_dwn.
type heightQueue struct {
	byHeight map[int32][]chainhash.Hash
	heights []int32 // kept sorted ascending
}

func newHeightQueue() *heightQueue {
	return &heightQueue{byHeight: make(map[int32][]chainhash.Hash)}
}

func (q *heightQueue) push(height int32, hash chainhash.Hash) {
	if _, ok := q.byHeight[height]; !ok {
		q.insertHeight(height)
	}
	q.byHeight[height] = append(q.byHeight[height], hash)
}

func (q *heightQueue) insertHeight(height int32) {
	i := 0
	for i < len(q.heights) && q.heights[i] < height {
		i++
	}
	q.heights = append(q.heights, 0)
	copy(q.heights[i+1:], q.heights[i:])
	q.heights[i] = height
}

func (q *heightQueue) removeHeightIfEmpty(height int32) {
	if len(q.byHeight[height]) > 0 {
		return
	}
	delete(q.byHeight, height)
	for i, h := range q.heights {
		if h == height {
			q.heights = append(q.heights[:i], q.heights[i+1:]...)
			break
		}
	}
}

// len returns the total number of queued hashes.
func (q *heightQueue) len() int {
	n := 0
	for _, hs := range q.byHeight {
		n += len(hs)
	}
	return n
}

// takeUpTo removes and returns up to n (height, hash) pairs in ascending
// height / FIFO order.
func (q *heightQueue) takeUpTo(n int) []HeightHash {
	out := make([]HeightHash, 0, n)
	for _, h := range append([]int32(nil), q.heights...) {
		hashes := q.byHeight[h]
		for len(hashes) > 0 && len(out) < n {
			out = append(out, HeightHash{Height: h, Hash: hashes[0]})
			hashes = hashes[1:]
		}
		q.byHeight[h] = hashes
		q.removeHeightIfEmpty(h)
		if len(out) >= n {
			break
		}
	}
	return out
}

// remove deletes a single (height, hash) pair if present, reporting whether
// it was found.
func (q *heightQueue) remove(height int32, hash chainhash.Hash) bool {
	hashes, ok := q.byHeight[height]
	if !ok {
		return false
	}
	for i, h := range hashes {
		if h == hash {
			q.byHeight[height] = append(hashes[:i], hashes[i+1:]...)
			q.removeHeightIfEmpty(height)
			return true
		}
	}
	return false
}

func (q *heightQueue) contains(hash chainhash.Hash) bool {
	for _, hashes := range q.byHeight {
		for _, h := range hashes {
			if h == hash {
				return true
			}
		}
	}
	return false
}

// soloTxSet is a dedup-by-hash, insertion-ordered collection: a set keyed
// by transaction hash rather than a list scanned for equality.
type soloTxSet struct {
	order []chainhash.Hash
	byTx  map[chainhash.Hash]*wire.MsgTx
}

func newSoloTxSet() *soloTxSet {
	return &soloTxSet{byTx: make(map[chainhash.Hash]*wire.MsgTx)}
}

func (s *soloTxSet) add(tx *wire.MsgTx) bool {
	h := tx.TxHash()
	if _, exists := s.byTx[h]; exists {
		return false
	}
	s.byTx[h] = tx
	s.order = append(s.order, h)
	return true
}

func (s *soloTxSet) remove(h chainhash.Hash) {
	if _, ok := s.byTx[h]; !ok {
		return
	}
	delete(s.byTx, h)
	for i, oh := range s.order {
		if oh == h {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *soloTxSet) has(h chainhash.Hash) bool {
	_, ok := s.byTx[h]
	return ok
}

func (s *soloTxSet) list() []*wire.MsgTx {
	out := make([]*wire.MsgTx, 0, len(s.order))
	for _, h := range s.order {
		out = append(out, s.byTx[h])
	}
	return out
}

func (s *soloTxSet) len() int {
	return len(s.order)
}

// Session is the singleton SPV coordination state. Every field is mutated
// only from inside the dispatcher loop (Run); there is no internal locking.
type Session struct {
	store  HeaderStore
	wallet WalletSink
	peers  PeerManager
	log    Logger
	now    func() time.Time

	syncPeer *PeerID
	bloom    *BloomFilter

	blocksToDwn    *heightQueue
	receivedMerkle map[int32][]*DecodedMerkleBlock

	bestBlockHash chainhash.Hash

	soloTxs            *soloTxSet
	pendingTxBroadcast []*wire.MsgTx
	pendingRescan      *time.Time
	fastCatchup        time.Time

	peerStates map[PeerID]*peerState

	protocolVersion uint32
}

// Config groups the construction-time parameters of the session's
// lifecycle: created by the session constructor with fast_catchup and
// initial best_block_hash provided.
type Config struct {
	Store           HeaderStore
	Wallet          WalletSink
	Peers           PeerManager
	Log             Logger
	FastCatchup     time.Time
	BestBlockHash   chainhash.Hash
	ProtocolVersion uint32
	// Now overrides time.Now for deterministic stall/heartbeat tests.
	Now func() time.Time
}

// NewSession constructs the session. It does not itself run the
// startup header-sync bootstrap (InitHeaderSync does that) so tests can
// inspect the zero-value session before the header store is touched.
func NewSession(cfg Config) *Session {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Log
	if logger == nil {
		logger = btclog.Disabled
	}
	return &Session{
		store:           cfg.Store,
		wallet:          cfg.Wallet,
		peers:           cfg.Peers,
		log:             logger,
		now:             now,
		blocksToDwn:     newHeightQueue(),
		receivedMerkle:  make(map[int32][]*DecodedMerkleBlock),
		bestBlockHash:   cfg.BestBlockHash,
		soloTxs:         newSoloTxSet(),
		peerStates:      make(map[PeerID]*peerState),
		fastCatchup:     cfg.FastCatchup,
		protocolVersion: cfg.ProtocolVersion,
	}
}

// SetPeerManager wires the peer manager after construction, breaking the
// Session/PeerManager/Dispatcher construction cycle (the peer manager needs
// a *Dispatcher, which needs a *Session). Callers must set this before the
// dispatcher's Run loop starts; it is not safe to call concurrently with
// dispatch.
func (s *Session) SetPeerManager(p PeerManager) {
	s.peers = p
}

func (s *Session) peerState(p PeerID) *peerState {
	ps, ok := s.peerStates[p]
	if !ok {
		ps = newPeerState()
		s.peerStates[p] = ps
	}
	return ps
}

// merkleSynced reports whether the best delivered block height has caught up
// to the best advertised peer height (the "merkle-blocks-synced" predicate).
func (s *Session) merkleSynced() bool {
	bestHeight, ok := s.store.GetBlockHeaderHeight(s.bestBlockHash)
	if !ok {
		return false
	}
	return bestHeight >= s.peers.GetBestPeerHeight()
}

// headersSynced implements the headers-synced predicate: best header height
// >= best peer height across connected handshaken peers.
func (s *Session) headersSynced() bool {
	return s.store.BestBlockHeaderHeight() >= s.peers.GetBestPeerHeight()
}
