package spv

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// importMerkleBlocks is a fixpoint over received_merkle: it keeps importing
// any block whose parent is already known to the wallet (or predates
// fast_catchup) until none is left, then drains solo_txs if progress was
// made and the chain is now merkle-synced.
//
// It returns without importing anything while any peer has an inflight
// transaction or a rescan is pending (the tx/merkle interlock).
func (s *Session) importMerkleBlocks() {
	if s.anyInflightTxs() || s.pendingRescan != nil {
		return
	}

	importedAny := false

	for {
		height, dmb, ok := s.nextImportableCandidate()
		if !ok {
			break
		}
		s.importOne(height, dmb)
		importedAny = true
	}

	if importedAny && s.merkleSynced() {
		s.drainSoloTxsToWallet()
	}
}

// nextImportableCandidate scans received_merkle (flattened) for a block
// whose parent is importable, returning it without removing it from
// receivedMerkle (importOne does that).
func (s *Session) nextImportableCandidate() (int32, *DecodedMerkleBlock, bool) {
	for height, blocks := range s.receivedMerkle {
		for _, dmb := range blocks {
			if s.isImportable(dmb) {
				return height, dmb, true
			}
		}
	}
	return 0, nil, false
}

// isImportable implements the three-way importability test: parent is
// genesis, or the wallet already has the parent, or the parent predates
// fast_catchup (header-only era the wallet never saw).
func (s *Session) isImportable(dmb *DecodedMerkleBlock) bool {
	prev := dmb.Header.PrevBlock
	if prev == s.store.GenesisHeader().BlockHash() {
		return true
	}
	if s.wallet.HaveMerkleHash(prev) {
		return true
	}
	if prevNode, ok := s.store.GetBlockHeaderNode(prev); ok {
		if prevNode.Header.Timestamp.Before(s.fastCatchup) {
			return true
		}
	}
	return false
}

// importOne connects the block, merges any matching solo txs, advances
// best_block_hash on BestBlock/BlockReorg, and delivers both
// SpvImportTxs and SpvImportMerkleBlock to the wallet.
func (s *Session) importOne(height int32, dmb *DecodedMerkleBlock) {
	s.removeReceivedMerkle(height, dmb)

	action, err := s.store.ConnectBlock(dmb.Header.PrevBlock, dmb.Hash)
	if err != nil {
		s.log.Warnf("spv: failed to connect block %s: %v", dmb.Hash, err)
		return
	}

	importSet := dedupeTxs(dmb.Txs)
	expected := make(map[chainhash.Hash]struct{}, len(dmb.ExpectedTxHashes))
	for _, h := range dmb.ExpectedTxHashes {
		expected[h] = struct{}{}
	}
	for _, h := range s.soloTxs.hashes() {
		if _, want := expected[h]; !want {
			continue
		}
		tx, ok := s.soloTxs.byTx[h]
		if !ok {
			continue
		}
		importSet = appendUniqueTx(importSet, tx)
		s.soloTxs.remove(h)
	}

	switch action.Kind {
	case ActionBestBlock, ActionBlockReorg:
		s.bestBlockHash = dmb.Hash
	case ActionSideBlock:
		// best_block_hash does not advance for side blocks.
	}

	if len(importSet) > 0 {
		s.wallet.SpvImportTxs(importSet)
	}
	s.wallet.SpvImportMerkleBlock(action, dmb.ExpectedTxHashes)
}

func (s *Session) removeReceivedMerkle(height int32, dmb *DecodedMerkleBlock) {
	blocks := s.receivedMerkle[height]
	for i, b := range blocks {
		if b.Hash == dmb.Hash {
			s.receivedMerkle[height] = append(blocks[:i], blocks[i+1:]...)
			break
		}
	}
	if len(s.receivedMerkle[height]) == 0 {
		delete(s.receivedMerkle, height)
	}
}

func (s *Session) drainSoloTxsToWallet() {
	if s.soloTxs.len() == 0 {
		return
	}
	txs := s.soloTxs.list()
	s.wallet.SpvImportTxs(txs)
	for _, tx := range txs {
		s.soloTxs.remove(tx.TxHash())
	}
}

// anyInflightTxs reports whether any peer has an outstanding transaction
// request. A merkle block carrying a still-inflight transaction must not
// import until that transaction resolves, or the wallet would see the
// block imported with the transaction missing (the GetData(tx) ->
// MerkleBlock -> Tx race importMerkleBlocks' precondition rules out).
func (s *Session) anyInflightTxs() bool {
	for _, ps := range s.peerStates {
		if len(ps.inflightTxs) > 0 {
			return true
		}
	}
	return false
}

// hashes returns a stable snapshot of the solo set's keys, safe to range
// over while the set is mutated (remove deletes from the underlying map).
func (s *soloTxSet) hashes() []chainhash.Hash {
	return append([]chainhash.Hash(nil), s.order...)
}
