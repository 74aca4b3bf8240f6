package spv

import (
	"math/big"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// fakeStore is a minimal in-memory HeaderStore double. It supports linear
// chain growth and single-branch block connection; it does not model
// reorgs (ActionBlockReorg), which the scenarios in this package never
// exercise.
type fakeStore struct {
	genesis *wire.BlockHeader
	nodes   map[chainhash.Hash]*HeaderNode
	order   []chainhash.Hash // ascending height, genesis first
	best    chainhash.Hash   // best header
	tip     chainhash.Hash   // best connected (full) block
}

func newFakeStore(genesis *wire.BlockHeader) *fakeStore {
	hash := genesis.BlockHash()
	node := &HeaderNode{
		Hash:    hash,
		Height:  0,
		Header:  *genesis,
		WorkSum: blockchain.CalcWork(genesis.Bits),
	}
	return &fakeStore{
		genesis: genesis,
		nodes:   map[chainhash.Hash]*HeaderNode{hash: node},
		order:   []chainhash.Hash{hash},
		best:    hash,
		tip:     hash,
	}
}

func (f *fakeStore) ConnectBlockHeader(bh *wire.BlockHeader, _ time.Time) (HeaderOutcome, *HeaderNode, error) {
	hash := bh.BlockHash()
	if n, ok := f.nodes[hash]; ok {
		return HeaderExists, n, nil
	}
	parent, ok := f.nodes[bh.PrevBlock]
	if !ok {
		return HeaderReject, nil, errUnknownParent
	}
	work := new(big.Int).Add(parent.WorkSum, blockchain.CalcWork(bh.Bits))
	node := &HeaderNode{Hash: hash, Height: parent.Height + 1, Header: *bh, WorkSum: work}
	f.nodes[hash] = node
	f.order = append(f.order, hash)
	if work.Cmp(f.nodes[f.best].WorkSum) > 0 {
		f.best = hash
	}
	return HeaderAccept, node, nil
}

func (f *fakeStore) ConnectBlock(prev, id chainhash.Hash) (BlockChainAction, error) {
	node, ok := f.nodes[id]
	if !ok {
		return BlockChainAction{}, errUnknownParent
	}
	if prev == f.tip {
		f.tip = id
		return BlockChainAction{Kind: ActionBestBlock, Node: node}, nil
	}
	return BlockChainAction{Kind: ActionSideBlock, Node: node}, nil
}

func (f *fakeStore) GetBestBlockHeader() *HeaderNode { return f.nodes[f.best] }

func (f *fakeStore) BestBlockHeaderHeight() int32 { return f.nodes[f.best].Height }

func (f *fakeStore) GetBlockHeaderNode(hash chainhash.Hash) (*HeaderNode, bool) {
	n, ok := f.nodes[hash]
	return n, ok
}

func (f *fakeStore) ExistsBlockHeaderNode(hash chainhash.Hash) bool {
	_, ok := f.nodes[hash]
	return ok
}

func (f *fakeStore) GetBlockHeaderHeight(hash chainhash.Hash) (int32, bool) {
	n, ok := f.nodes[hash]
	if !ok {
		return 0, false
	}
	return n.Height, true
}

func (f *fakeStore) BlockBeforeTimestamp(ts time.Time) *HeaderNode {
	var best *HeaderNode
	for _, hash := range f.order {
		n := f.nodes[hash]
		if n.Header.Timestamp.Before(ts) && (best == nil || n.Height > best.Height) {
			best = n
		}
	}
	return best
}

func (f *fakeStore) BlocksToDownload(from chainhash.Hash) []HeightHash {
	fromNode, ok := f.nodes[from]
	if !ok {
		return nil
	}
	var out []HeightHash
	for _, hash := range f.order {
		n := f.nodes[hash]
		if n.Height > fromNode.Height {
			out = append(out, HeightHash{Height: n.Height, Hash: n.Hash})
		}
	}
	return out
}

func (f *fakeStore) BlockLocator() []chainhash.Hash {
	return []chainhash.Hash{f.best}
}

func (f *fakeStore) GenesisHeader() *wire.BlockHeader { return f.genesis }

type storeError string

func (e storeError) Error() string { return string(e) }

const errUnknownParent = storeError("fakestore: unknown parent")

// fakeWallet is a recording WalletSink double.
type fakeWallet struct {
	want       map[chainhash.Hash]bool
	have       map[chainhash.Hash]bool
	importedTxs    [][]*wire.MsgTx
	importedBlocks []BlockChainAction
	importedExpected [][]chainhash.Hash
	rescans    int
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{want: make(map[chainhash.Hash]bool), have: make(map[chainhash.Hash]bool)}
}

func (w *fakeWallet) WantTxHash(hash chainhash.Hash) bool    { return w.want[hash] }
func (w *fakeWallet) HaveMerkleHash(hash chainhash.Hash) bool { return w.have[hash] }

func (w *fakeWallet) SpvImportTxs(txs []*wire.MsgTx) {
	w.importedTxs = append(w.importedTxs, txs)
}

func (w *fakeWallet) SpvImportMerkleBlock(action BlockChainAction, expected []chainhash.Hash) {
	w.importedBlocks = append(w.importedBlocks, action)
	w.importedExpected = append(w.importedExpected, expected)
	if action.Node != nil {
		w.have[action.Node.Hash] = true
	}
}

func (w *fakeWallet) RescanCleanup() { w.rescans++ }

// fakePeerManager is a recording PeerManager double; it never dials a
// socket, it just tracks advertised peer data and sent messages.
type fakePeerManager struct {
	order []PeerID
	data  map[PeerID]PeerData
	sent  map[PeerID][]wire.Message
}

func newFakePeerManager() *fakePeerManager {
	return &fakePeerManager{data: make(map[PeerID]PeerData), sent: make(map[PeerID][]wire.Message)}
}

func (m *fakePeerManager) addPeer(id PeerID, height int32) {
	if _, ok := m.data[id]; !ok {
		m.order = append(m.order, id)
	}
	m.data[id] = PeerData{Height: height, Handshaked: true}
}

func (m *fakePeerManager) SendMessage(id PeerID, msg wire.Message) {
	m.sent[id] = append(m.sent[id], msg)
}

func (m *fakePeerManager) GetPeerKeys() []PeerID {
	return append([]PeerID(nil), m.order...)
}

func (m *fakePeerManager) GetPeers() []PeerHandle {
	out := make([]PeerHandle, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, PeerHandle{ID: id, Data: m.data[id]})
	}
	return out
}

func (m *fakePeerManager) GetPeerData(id PeerID) (PeerData, bool) {
	d, ok := m.data[id]
	return d, ok
}

func (m *fakePeerManager) IncreasePeerHeight(id PeerID, height int32) {
	d := m.data[id]
	if height > d.Height {
		d.Height = height
		m.data[id] = d
	}
}

func (m *fakePeerManager) GetBestPeerHeight() int32 {
	var best int32
	for _, d := range m.data {
		if d.Handshaked && d.Height > best {
			best = d.Height
		}
	}
	return best
}

// fakeClock gives tests control over Session.now.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
