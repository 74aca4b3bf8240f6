package spv

import "time"

// processRescan defers a rescan (pending_rescan set) until the last
// inflight merkle drains if any peer currently has one, otherwise runs it
// immediately.
func (s *Session) processRescan(ts time.Time) {
	if s.anyPeerHasInflightMerkles() {
		t := ts
		s.pendingRescan = &t
		return
	}
	s.runRescan(ts)
}

func (s *Session) anyPeerHasInflightMerkles() bool {
	for _, ps := range s.peerStates {
		if len(ps.inflightMerkles) > 0 {
			return true
		}
	}
	return false
}

// tryCompleteRescan is invoked from onMerkleBlock once a peer's inflight
// merkles drain while a rescan is pending.
func (s *Session) tryCompleteRescan(peer PeerID) {
	if s.pendingRescan == nil {
		return
	}
	if ps, ok := s.peerStates[peer]; ok && len(ps.inflightMerkles) > 0 {
		return
	}
	if s.anyPeerHasInflightMerkles() {
		return
	}
	ts := *s.pendingRescan
	s.runRescan(ts)
}

func (s *Session) runRescan(ts time.Time) {
	s.wallet.RescanCleanup()

	anchor := s.store.BlockBeforeTimestamp(ts)
	if anchor != nil {
		s.bestBlockHash = anchor.Hash
	}
	s.fastCatchup = ts
	s.rebuildDownloadQueueFromAnchor()
	s.receivedMerkle = make(map[int32][]*DecodedMerkleBlock)
	s.pendingRescan = nil

	for _, ph := range s.peers.GetPeers() {
		if ph.Data.Handshaked {
			s.downloadBlocks(ph.ID)
		}
	}
}
