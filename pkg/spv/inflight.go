package spv

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// removeInflightMerkle deletes hash from peer's inflight set, reporting
// whether it was present.
func (s *Session) removeInflightMerkle(peer PeerID, hash chainhash.Hash) bool {
	ps, ok := s.peerStates[peer]
	if !ok {
		return false
	}
	if _, ok := ps.inflightMerkles[hash]; !ok {
		return false
	}
	delete(ps.inflightMerkles, hash)
	return true
}

// removeInflightTxEverywhere deletes hash from every peer's inflight tx set.
func (s *Session) removeInflightTxEverywhere(hash chainhash.Hash) {
	for _, ps := range s.peerStates {
		delete(ps.inflightTxs, hash)
	}
}

// onMerkleBlock handles an inbound MerkleBlock(dmb).
func (s *Session) onMerkleBlock(peer PeerID, dmb *DecodedMerkleBlock) {
	if _, ok := s.store.GetBlockHeaderNode(dmb.Hash); !ok {
		s.log.Warnf("spv: unsolicited merkle block %s from %s, ignoring", dmb.Hash, peer)
		return
	}

	wasInflight := s.removeInflightMerkle(peer, dmb.Hash)

	if dmb.ComputedRoot != dmb.Header.MerkleRoot {
		s.log.Warnf("spv: merkle root mismatch for block %s from %s", dmb.Hash, peer)
		return
	}

	if s.pendingRescan == nil {
		s.receivedMerkle[dmb.Height] = append(s.receivedMerkle[dmb.Height], dmb)
		s.importMerkleBlocks()
		s.downloadBlocks(peer)
		return
	}

	if wasInflight {
		s.tryCompleteRescan(peer)
	}
}

// onTx handles an inbound Tx(tx).
func (s *Session) onTx(peer PeerID, tx *wire.MsgTx) {
	if s.merkleSynced() {
		s.wallet.SpvImportTxs([]*wire.MsgTx{tx})
	} else {
		s.soloTxs.add(tx)
	}
	s.removeInflightTxEverywhere(tx.TxHash())
	s.importMerkleBlocks()
}

// onInv handles an inbound Inv(vs).
func (s *Session) onInv(peer PeerID, inv []*wire.InvVect) {
	var txHashes []chainhash.Hash
	var blockHashes []chainhash.Hash
	for _, iv := range inv {
		switch iv.Type {
		case wire.InvTypeTx, wire.InvTypeWitnessTx:
			txHashes = append(txHashes, iv.Hash)
		case wire.InvTypeBlock, wire.InvTypeFilteredBlock, wire.InvTypeWitnessBlock:
			blockHashes = append(blockHashes, iv.Hash)
		}
	}

	if len(txHashes) > 0 {
		var wanted []chainhash.Hash
		for _, h := range txHashes {
			if s.wallet.WantTxHash(h) {
				wanted = append(wanted, h)
			}
		}
		if len(wanted) > 0 {
			s.downloadTxs(peer, wanted)
		}
	}

	if len(blockHashes) == 0 {
		return
	}

	var maxKnownHeight int32
	haveKnown := false
	ps := s.peerState(peer)
	for _, h := range blockHashes {
		if node, ok := s.store.GetBlockHeaderNode(h); ok {
			haveKnown = true
			if node.Height > maxKnownHeight {
				maxKnownHeight = node.Height
			}
			continue
		}
		ps.broadcastBlocks[h] = struct{}{}
		s.peers.SendMessage(peer, s.newGetHeaders(s.store.BlockLocator(), h))
	}
	if haveKnown {
		s.peers.IncreasePeerHeight(peer, maxKnownHeight)
	}
}

// downloadTxs issues a GetData for the given (already filtered) tx hashes
// and records them as inflight for peer.
func (s *Session) downloadTxs(peer PeerID, hashes []chainhash.Hash) {
	if len(hashes) == 0 {
		return
	}
	ps := s.peerState(peer)
	issuedAt := s.now()
	for _, h := range hashes {
		ps.inflightTxs[h] = inflightTx{hash: h, issuedAt: issuedAt}
	}
	s.peers.SendMessage(peer, newGetDataTxs(hashes))
}
