// Package headerstore is a bbolt-backed implementation of spv.HeaderStore,
// persisting the header chain across restarts. The coordinator only ever
// sees it through that narrow interface.
//
// Chain-work bookkeeping follows the same chain-work tie-break and reorg
// detection as an in-memory header map, generalized to a full best-chain
// index with branch tracking so a restart can rebuild state by replaying
// the headers bucket.
package headerstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	bolt "go.etcd.io/bbolt"

	"github.com/btcspv/spvnode/pkg/spv"
)

var bucketHeaders = []byte("headers")

// Store is a bbolt-backed header chain. All chain-shape state (node index,
// best-chain height index, chain tip, connected-block tip) is kept in
// memory. Only header nodes are written to disk, one per accepted header;
// on restart the node index and best chain are rebuilt by replaying
// bucketHeaders, and the connected-block tip starts again at genesis.
type Store struct {
	db      *bolt.DB
	genesis *wire.BlockHeader

	nodes        map[chainhash.Hash]*spv.HeaderNode
	bestChain    []chainhash.Hash // index 0 == genesis, ascending height
	connectedTip *spv.HeaderNode  // best block actually delivered to the wallet
	connectedSet map[chainhash.Hash]struct{}
}

// Open opens (creating if needed) a bbolt-backed store at path, seeded with
// genesis if the database is empty.
func Open(path string, genesis *wire.BlockHeader) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("headerstore: open %s: %w", path, err)
	}
	s := &Store{
		db:           db,
		genesis:      genesis,
		nodes:        make(map[chainhash.Hash]*spv.HeaderNode),
		connectedSet: make(map[chainhash.Hash]struct{}),
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketHeaders)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("headerstore: init buckets: %w", err)
	}
	if err := s.loadOrSeed(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) loadOrSeed() error {
	genesisHash := s.genesis.BlockHash()
	var loaded bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHeaders)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			node, err := decodeNode(v)
			if err != nil {
				return err
			}
			s.nodes[node.Hash] = node
			loaded = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if loaded {
		s.rebuildBestChainFromNodes()
		s.connectedTip = s.nodes[genesisHash]
		s.connectedSet[genesisHash] = struct{}{}
		return nil
	}

	genesisNode := &spv.HeaderNode{
		Hash:    genesisHash,
		Height:  0,
		Header:  *s.genesis,
		WorkSum: blockchain.CalcWork(s.genesis.Bits),
	}
	s.nodes[genesisHash] = genesisNode
	s.bestChain = []chainhash.Hash{genesisHash}
	s.connectedTip = genesisNode
	s.connectedSet[genesisHash] = struct{}{}
	return s.persistNode(genesisNode)
}

func (s *Store) rebuildBestChainFromNodes() {
	var best *spv.HeaderNode
	for _, n := range s.nodes {
		if best == nil || n.WorkSum.Cmp(best.WorkSum) > 0 {
			best = n
		}
	}
	if best == nil {
		return
	}
	s.bestChain = s.chainToGenesis(best)
}

// chainToGenesis walks prevBlock pointers from node back to the node with
// height 0, returning the path in ascending-height order.
func (s *Store) chainToGenesis(node *spv.HeaderNode) []chainhash.Hash {
	path := make([]chainhash.Hash, node.Height+1)
	cur := node
	for {
		path[cur.Height] = cur.Hash
		if cur.Height == 0 {
			break
		}
		parent, ok := s.nodes[cur.Header.PrevBlock]
		if !ok {
			break
		}
		cur = parent
	}
	return path
}

// ConnectBlockHeader implements spv.HeaderStore.
func (s *Store) ConnectBlockHeader(bh *wire.BlockHeader, adjustedTime time.Time) (spv.HeaderOutcome, *spv.HeaderNode, error) {
	hash := bh.BlockHash()
	if existing, ok := s.nodes[hash]; ok {
		return spv.HeaderExists, existing, nil
	}

	parent, ok := s.nodes[bh.PrevBlock]
	if !ok {
		return spv.HeaderReject, nil, fmt.Errorf("headerstore: unknown parent %s for header %s", bh.PrevBlock, hash)
	}
	if bh.Timestamp.After(adjustedTime.Add(2 * time.Hour)) {
		return spv.HeaderReject, nil, fmt.Errorf("headerstore: header %s timestamp too far in the future", hash)
	}

	node := &spv.HeaderNode{
		Hash:    hash,
		Height:  parent.Height + 1,
		Header:  *bh,
		WorkSum: new(big.Int).Add(parent.WorkSum, blockchain.CalcWork(bh.Bits)),
	}
	s.nodes[hash] = node

	tip := s.tip()
	if tip == nil || node.WorkSum.Cmp(tip.WorkSum) > 0 {
		s.bestChain = s.chainToGenesis(node)
	}

	if err := s.persistNode(node); err != nil {
		return spv.HeaderReject, nil, err
	}
	return spv.HeaderAccept, node, nil
}

// ConnectBlock implements spv.HeaderStore: attach a full (merkle) block to
// the chain the wallet has actually imported, computing BestBlock /
// BlockReorg / SideBlock against the current connected tip.
func (s *Store) ConnectBlock(prev, id chainhash.Hash) (spv.BlockChainAction, error) {
	node, ok := s.nodes[id]
	if !ok {
		return spv.BlockChainAction{}, fmt.Errorf("headerstore: unknown block %s", id)
	}

	if s.connectedTip == nil || s.connectedTip.Hash == prev {
		s.connectedTip = node
		s.connectedSet[id] = struct{}{}
		return spv.BlockChainAction{Kind: spv.ActionBestBlock, Node: node}, nil
	}

	if node.WorkSum.Cmp(s.connectedTip.WorkSum) <= 0 {
		return spv.BlockChainAction{Kind: spv.ActionSideBlock, Node: node}, nil
	}

	common, orphaned, newChain := s.reorgPath(s.connectedTip, node)
	s.connectedTip = node
	s.connectedSet = make(map[chainhash.Hash]struct{}, len(newChain))
	for _, n := range newChain {
		s.connectedSet[n.Hash] = struct{}{}
	}
	return spv.BlockChainAction{
		Kind:     spv.ActionBlockReorg,
		Common:   common,
		Orphaned: orphaned,
		New:      newChain,
	}, nil
}

// reorgPath finds the common ancestor of oldTip and newTip and returns the
// orphaned branch (oldTip..common, exclusive of common, descending) and the
// new branch (common..newTip, exclusive of common, ascending).
func (s *Store) reorgPath(oldTip, newTip *spv.HeaderNode) (common *spv.HeaderNode, orphaned, newChain []*spv.HeaderNode) {
	oldAncestors := make(map[chainhash.Hash]*spv.HeaderNode)
	for cur := oldTip; ; {
		oldAncestors[cur.Hash] = cur
		if cur.Height == 0 {
			break
		}
		parent, ok := s.nodes[cur.Header.PrevBlock]
		if !ok {
			break
		}
		cur = parent
	}

	var newPath []*spv.HeaderNode
	cur := newTip
	for {
		if anc, ok := oldAncestors[cur.Hash]; ok {
			common = anc
			break
		}
		newPath = append(newPath, cur)
		if cur.Height == 0 {
			common = cur
			break
		}
		parent, ok := s.nodes[cur.Header.PrevBlock]
		if !ok {
			common = cur
			break
		}
		cur = parent
	}
	for i := len(newPath) - 1; i >= 0; i-- {
		newChain = append(newChain, newPath[i])
	}

	for cur := oldTip; cur != nil && cur.Hash != common.Hash; {
		orphaned = append(orphaned, cur)
		parent, ok := s.nodes[cur.Header.PrevBlock]
		if !ok {
			break
		}
		cur = parent
	}
	return common, orphaned, newChain
}

func (s *Store) tip() *spv.HeaderNode {
	if len(s.bestChain) == 0 {
		return nil
	}
	return s.nodes[s.bestChain[len(s.bestChain)-1]]
}

// GetBestBlockHeader implements spv.HeaderStore.
func (s *Store) GetBestBlockHeader() *spv.HeaderNode { return s.tip() }

// BestBlockHeaderHeight implements spv.HeaderStore.
func (s *Store) BestBlockHeaderHeight() int32 {
	if tip := s.tip(); tip != nil {
		return tip.Height
	}
	return 0
}

// GetBlockHeaderNode implements spv.HeaderStore.
func (s *Store) GetBlockHeaderNode(hash chainhash.Hash) (*spv.HeaderNode, bool) {
	n, ok := s.nodes[hash]
	return n, ok
}

// ExistsBlockHeaderNode implements spv.HeaderStore.
func (s *Store) ExistsBlockHeaderNode(hash chainhash.Hash) bool {
	_, ok := s.nodes[hash]
	return ok
}

// GetBlockHeaderHeight implements spv.HeaderStore.
func (s *Store) GetBlockHeaderHeight(hash chainhash.Hash) (int32, bool) {
	n, ok := s.nodes[hash]
	if !ok {
		return 0, false
	}
	return n.Height, true
}

// BlockBeforeTimestamp implements spv.HeaderStore: the highest best-chain
// node whose header timestamp is strictly before ts, or genesis if no
// best-chain node is.
func (s *Store) BlockBeforeTimestamp(ts time.Time) *spv.HeaderNode {
	var best *spv.HeaderNode
	for i := len(s.bestChain) - 1; i >= 0; i-- {
		node := s.nodes[s.bestChain[i]]
		if node.Header.Timestamp.Before(ts) {
			best = node
			break
		}
	}
	if best == nil && len(s.bestChain) > 0 {
		best = s.nodes[s.bestChain[0]]
	}
	return best
}

// BlocksToDownload implements spv.HeaderStore.
func (s *Store) BlocksToDownload(from chainhash.Hash) []spv.HeightHash {
	fromNode, ok := s.nodes[from]
	if !ok {
		return nil
	}
	var out []spv.HeightHash
	for h := fromNode.Height + 1; int(h) < len(s.bestChain); h++ {
		out = append(out, spv.HeightHash{Height: h, Hash: s.bestChain[h]})
	}
	return out
}

// BlockLocator implements spv.HeaderStore using the standard doubling-step
// locator construction rooted at the best chain tip.
func (s *Store) BlockLocator() []chainhash.Hash {
	tip := s.tip()
	if tip == nil {
		return []chainhash.Hash{s.genesis.BlockHash()}
	}
	var locator []chainhash.Hash
	step := int32(1)
	height := tip.Height
	for height >= 0 {
		locator = append(locator, s.bestChain[height])
		if height == 0 {
			break
		}
		if len(locator) >= 10 {
			step *= 2
		}
		height -= step
		if height < 0 {
			height = 0
		}
	}
	return locator
}

// GenesisHeader implements spv.HeaderStore.
func (s *Store) GenesisHeader() *wire.BlockHeader { return s.genesis }

func (s *Store) persistNode(node *spv.HeaderNode) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHeaders)
		buf, err := encodeNode(node)
		if err != nil {
			return err
		}
		return b.Put(nodeKey(node.Hash), buf)
	})
}

func nodeKey(hash chainhash.Hash) []byte {
	return hash[:]
}

func encodeNode(node *spv.HeaderNode) ([]byte, error) {
	var buf bytes.Buffer
	if err := node.Header.Serialize(&buf); err != nil {
		return nil, err
	}
	var heightLen [8]byte
	binary.BigEndian.PutUint32(heightLen[0:4], uint32(node.Height))
	work := node.WorkSum.Bytes()
	binary.BigEndian.PutUint32(heightLen[4:8], uint32(len(work)))
	buf.Write(heightLen[:])
	buf.Write(work)
	return buf.Bytes(), nil
}

func decodeNode(buf []byte) (*spv.HeaderNode, error) {
	var hdr wire.BlockHeader
	r := bytes.NewReader(buf)
	if err := hdr.Deserialize(r); err != nil {
		return nil, err
	}
	consumed := len(buf) - r.Len()
	tail := buf[consumed:]
	if len(tail) < 8 {
		return nil, fmt.Errorf("headerstore: truncated record")
	}
	height := int32(binary.BigEndian.Uint32(tail[0:4]))
	workLen := binary.BigEndian.Uint32(tail[4:8])
	workBytes := tail[8 : 8+workLen]
	work := new(big.Int).SetBytes(workBytes)
	return &spv.HeaderNode{
		Hash:    hdr.BlockHash(),
		Height:  height,
		Header:  hdr,
		WorkSum: work,
	}, nil
}
