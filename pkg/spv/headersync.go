package spv

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// InitHeaderSync runs the startup bootstrap: if the configured best block
// is older than fast catchup, it is replaced by the catchup anchor, and
// blocks_to_dwn is populated from the chain the header store already
// holds. Callers invoke this once after NewSession, before the dispatcher
// starts draining requests.
func (s *Session) InitHeaderSync() {
	s.rebuildDownloadQueueFromAnchor()
}

// rebuildDownloadQueueFromAnchor recomputes best_block_hash (if needed) and
// blocks_to_dwn from fast_catchup. Shared by startup and by rescan.
func (s *Session) rebuildDownloadQueueFromAnchor() {
	bestNode, ok := s.store.GetBlockHeaderNode(s.bestBlockHash)
	if !ok || bestNode.Header.Timestamp.Before(s.fastCatchup) {
		if anchor := s.store.BlockBeforeTimestamp(s.fastCatchup); anchor != nil {
			s.bestBlockHash = anchor.Hash
		}
	}
	s.blocksToDwn = newHeightQueue()
	for _, hh := range s.store.BlocksToDownload(s.bestBlockHash) {
		s.blocksToDwn.push(hh.Height, hh.Hash)
	}
}

// onPeerHandshake runs the "On peer handshake" sequence: track the peer,
// push the current bloom filter and any queued broadcast transactions, ask
// for more headers, then try to hand it download work.
func (s *Session) onPeerHandshake(peer PeerID, version uint32, startHeight int32) {
	s.peerState(peer) // ensure tracked even before GetPeerData reflects it

	if s.bloom != nil && !s.bloom.IsEmpty() {
		s.peers.SendMessage(peer, s.bloom.FilterLoadMsg())
	}

	for _, tx := range s.pendingTxBroadcast {
		s.peers.SendMessage(peer, tx)
	}
	s.pendingTxBroadcast = nil

	s.peers.SendMessage(peer, s.newGetHeaders(s.store.BlockLocator(), chainhash.Hash{}))

	s.downloadBlocks(peer)
}

// onHeaders runs the "On inbound Headers(hs)" sequence: connect every
// header, split the accepted ones into header-only (pre-fast-catchup) and
// downloadable, advance best_block_hash, credit peer heights for anything
// they'd broadcast ahead of time, and re-poll for more headers if the
// chain's work grew.
func (s *Session) onHeaders(peer PeerID, headers []*wire.BlockHeader) {
	bestBefore := s.store.GetBestBlockHeader()

	var accepted []*HeaderNode
	now := s.now()
	for _, h := range headers {
		outcome, node, err := s.store.ConnectBlockHeader(h, now)
		switch outcome {
		case HeaderAccept:
			accepted = append(accepted, node)
		case HeaderExists:
			s.log.Debugf("spv: header %s already known", h.BlockHash())
		case HeaderReject:
			s.log.Warnf("spv: rejected header %s: %v", h.BlockHash(), err)
		}
	}

	if len(accepted) == 0 {
		return
	}

	var headerOnly []*HeaderNode
	var downloadable []*HeaderNode
	for _, n := range accepted {
		if n.Header.Timestamp.Before(s.fastCatchup) {
			headerOnly = append(headerOnly, n)
		} else {
			downloadable = append(downloadable, n)
		}
	}

	if len(headerOnly) > 0 {
		last := headerOnly[len(headerOnly)-1]
		currentBest, ok := s.store.GetBlockHeaderNode(s.bestBlockHash)
		if !ok || last.WorkSum.Cmp(currentBest.WorkSum) > 0 {
			s.bestBlockHash = last.Hash
		}
	}

	for _, n := range downloadable {
		s.blocksToDwn.push(n.Height, n.Hash)
	}

	for _, n := range accepted {
		for p, ps := range s.peerStates {
			if _, ok := ps.broadcastBlocks[n.Hash]; ok {
				delete(ps.broadcastBlocks, n.Hash)
				s.peers.IncreasePeerHeight(p, n.Height)
			}
		}
	}

	afterBest := s.store.GetBestBlockHeader()
	workIncreased := bestBefore == nil || afterBest.WorkSum.Cmp(bestBefore.WorkSum) > 0
	if workIncreased {
		s.peers.IncreasePeerHeight(peer, afterBest.Height)
		if s.headersSynced() {
			s.syncPeer = nil
		} else {
			p := peer
			s.syncPeer = &p
		}
		s.peers.SendMessage(peer, s.newGetHeaders([]chainhash.Hash{afterBest.Hash}, chainhash.Hash{}))
	}

	for _, ph := range s.peers.GetPeers() {
		if ph.Data.Handshaked {
			s.downloadBlocks(ph.ID)
		}
	}
}
