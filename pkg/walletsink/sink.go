// Package walletsink is a minimal in-memory reference implementation of
// spv.WalletSink, suitable for a light wallet that only tracks a watch-set
// of transaction hashes and records imported blocks/transactions for
// inspection. It is not a real wallet: no keys, no UTXO accounting.
package walletsink

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcspv/spvnode/pkg/spv"
)

// Sink is a thread-safe WalletSink backed by plain maps and slices.
type Sink struct {
	mu sync.Mutex

	wanted map[chainhash.Hash]struct{}
	have   map[chainhash.Hash]struct{}

	importedTxs    []*wire.MsgTx
	importedBlocks []spv.BlockChainAction
	rescanCleanups int
}

// New returns an empty Sink.
func New() *Sink {
	return &Sink{
		wanted: make(map[chainhash.Hash]struct{}),
		have:   make(map[chainhash.Hash]struct{}),
	}
}

// Watch adds a transaction hash to the watch-set so WantTxHash reports it.
func (s *Sink) Watch(hash chainhash.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wanted[hash] = struct{}{}
}

// WantTxHash implements spv.WalletSink.
func (s *Sink) WantTxHash(hash chainhash.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.wanted[hash]
	return ok
}

// HaveMerkleHash implements spv.WalletSink.
func (s *Sink) HaveMerkleHash(hash chainhash.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.have[hash]
	return ok
}

// SpvImportTxs implements spv.WalletSink.
func (s *Sink) SpvImportTxs(txs []*wire.MsgTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.importedTxs = append(s.importedTxs, txs...)
}

// SpvImportMerkleBlock implements spv.WalletSink.
func (s *Sink) SpvImportMerkleBlock(action spv.BlockChainAction, expected []chainhash.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.importedBlocks = append(s.importedBlocks, action)
	switch action.Kind {
	case spv.ActionBestBlock, spv.ActionSideBlock:
		if action.Node != nil {
			s.have[action.Node.Hash] = struct{}{}
		}
	case spv.ActionBlockReorg:
		for _, n := range action.Orphaned {
			delete(s.have, n.Hash)
		}
		for _, n := range action.New {
			s.have[n.Hash] = struct{}{}
		}
	}
}

// RescanCleanup implements spv.WalletSink.
func (s *Sink) RescanCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rescanCleanups++
}

// ImportedTxs returns a snapshot of every transaction delivered so far.
func (s *Sink) ImportedTxs() []*wire.MsgTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*wire.MsgTx, len(s.importedTxs))
	copy(out, s.importedTxs)
	return out
}

// ImportedBlocks returns a snapshot of every block-chain action delivered
// so far, in delivery order.
func (s *Sink) ImportedBlocks() []spv.BlockChainAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]spv.BlockChainAction, len(s.importedBlocks))
	copy(out, s.importedBlocks)
	return out
}

// RescanCleanups returns how many times RescanCleanup has fired.
func (s *Sink) RescanCleanups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rescanCleanups
}
