// Package spv implements the SPV session coordinator: header-sync peer
// selection, bloom-filtered merkle-block download scheduling, inflight
// bookkeeping with stall recovery, parent-ordered merkle delivery, solo-tx
// buffering, and rescan serialization. It never stores full blocks and never
// touches a socket; transport, header persistence, and wallet semantics are
// reached only through the interfaces below.
package spv

import (
	"math/big"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// PeerID identifies a peer across the lifetime of a connection. The peer
// manager owns the mapping from PeerID to socket/connection state; the
// session only ever stores and compares this value.
type PeerID string

// PeerData is the subset of peer-manager-owned state the session needs to
// make scheduling decisions.
type PeerData struct {
	Height int32
	Handshaked bool
	UserAgent string
	Services wire.ServiceFlag
}

// PeerHandle pairs a peer identity with its current data, as returned by
// PeerManager.GetPeers.
type PeerHandle struct {
	ID PeerID
	Data PeerData
}

// PeerManager is the out-of-scope transport collaborator. The session
// never dials a socket or frames a message; it only ever calls these methods.
type PeerManager interface {
	// SendMessage enqueues msg for delivery to peer. Best-effort: the peer
	// manager owns retry and failure semantics.
	SendMessage(peer PeerID, msg wire.Message)
	// GetPeerKeys returns the identities of all known peers, handshaken or not.
	GetPeerKeys() []PeerID
	// GetPeers returns a snapshot of every known peer and its data.
	GetPeers() []PeerHandle
	// GetPeerData returns the peer-manager-owned state for a single peer.
	GetPeerData(peer PeerID) (PeerData, bool)
	// IncreasePeerHeight raises the peer's advertised height; a no-op if
	// height is not higher than what is already recorded.
	IncreasePeerHeight(peer PeerID, height int32)
	// GetBestPeerHeight returns the maximum advertised height across every
	// handshaken peer, or 0 if there are none.
	GetBestPeerHeight() int32
}

// HeaderOutcome is the result of inserting a single header into the store.
type HeaderOutcome int

const (
	HeaderAccept HeaderOutcome = iota
	HeaderExists
	HeaderReject
)

// HeaderNode is a single node of the persistent header chain, as returned by
// the header store. WorkSum is the cumulative chain work up to and including
// this node, used for chain-work tie-breaking (never block count).
type HeaderNode struct {
	Hash chainhash.Hash
	Height int32
	Header wire.BlockHeader
	WorkSum *big.Int
}

// HeightHash is a (height, hash) pair, the unit the download scheduler and
// blocksToDwn queue operate on.
type HeightHash struct {
	Height int32
	Hash chainhash.Hash
}

// BlockChainActionKind tags the outcome of connecting a block (as opposed to
// just its header) to the best chain.
type BlockChainActionKind int

const (
	ActionBestBlock BlockChainActionKind = iota
	ActionBlockReorg
	ActionSideBlock
)

// BlockChainAction is the tagged sum returned by HeaderStore.ConnectBlock,
// named BestBlock/BlockReorg/SideBlock.
type BlockChainAction struct {
	Kind BlockChainActionKind
	Node *HeaderNode // set for ActionBestBlock and ActionSideBlock
	Common *HeaderNode // set for ActionBlockReorg: the fork point
	Orphaned []*HeaderNode // set for ActionBlockReorg: nodes rolled back
	New []*HeaderNode // set for ActionBlockReorg: nodes rolled forward
}

// HeaderStore is the persistent header-chain store (external
// collaborator). It is the sole authority on chain-work tie-breaking, best
// chain membership, and reorg computation; the session only ever reads its
// narrow return values.
type HeaderStore interface {
	// ConnectBlockHeader inserts bh into the store. adjustedTime is the
	// caller's current network-adjusted time, against which a store may
	// reject headers timestamped too far in the future; bh's timestamp is
	// stored unchanged. Returns the outcome and, on Accept or Exists, the
	// resulting node.
	ConnectBlockHeader(bh *wire.BlockHeader, adjustedTime time.Time) (HeaderOutcome, *HeaderNode, error)
	// ConnectBlock attaches a full (merkle) block identified by id, whose
	// header's parent is prev, to the chain, returning the resulting action.
	ConnectBlock(prev, id chainhash.Hash) (BlockChainAction, error)
	GetBestBlockHeader() *HeaderNode
	BestBlockHeaderHeight() int32
	GetBlockHeaderNode(hash chainhash.Hash) (*HeaderNode, bool)
	ExistsBlockHeaderNode(hash chainhash.Hash) bool
	GetBlockHeaderHeight(hash chainhash.Hash) (int32, bool)
	// BlockBeforeTimestamp returns the highest node whose header timestamp
	// is strictly before ts (the rescan/fast-catchup anchor).
	BlockBeforeTimestamp(ts time.Time) *HeaderNode
	// BlocksToDownload returns every (height, hash) strictly above from's
	// height up to the chain tip, in ascending height order.
	BlocksToDownload(from chainhash.Hash) []HeightHash
	// BlockLocator returns a standard block locator rooted at the best
	// chain tip, for use in GetHeaders/GetBlocks.
	BlockLocator() []chainhash.Hash
	GenesisHeader() *wire.BlockHeader
}

// DecodedMerkleBlock is a merkle block already decoded by the peer manager
// (partial-merkle-tree reconstruction happens upstream of the core, per
// design notes). ExpectedTxHashes is the set of transaction hashes
// the remote peer's bloom match proved were included, in block order.
type DecodedMerkleBlock struct {
	Header wire.BlockHeader
	Hash chainhash.Hash
	Height int32
	ComputedRoot chainhash.Hash
	ExpectedTxHashes []chainhash.Hash
	Txs []*wire.MsgTx
}

// WalletSink is the out-of-scope wallet collaborator. The session never
// inspects wallet-side UTXO/key state; it only ever calls these methods.
type WalletSink interface {
	WantTxHash(hash chainhash.Hash) bool
	HaveMerkleHash(hash chainhash.Hash) bool
	SpvImportTxs(txs []*wire.MsgTx)
	SpvImportMerkleBlock(action BlockChainAction, expected []chainhash.Hash)
	RescanCleanup()
}
