package spv

// onPeerDisconnect moves the peer's inflight merkles back to blocks_to_dwn,
// clears its per-peer state, reassigns sync_peer if needed, and lets the
// remaining peers absorb the freed queue.
func (s *Session) onPeerDisconnect(peer PeerID) {
	ps, ok := s.peerStates[peer]
	if ok {
		for _, inf := range ps.inflightMerkles {
			s.blocksToDwn.push(inf.height, inf.hash)
		}
	}
	delete(s.peerStates, peer)

	wasSyncPeer := s.syncPeer != nil && *s.syncPeer == peer
	if wasSyncPeer {
		s.syncPeer = nil
		for _, ph := range s.peers.GetPeers() {
			if ph.ID == peer {
				continue
			}
			s.peers.SendMessage(ph.ID, s.newGetHeaders(s.store.BlockLocator(), chainHashZero))
		}
	}

	for _, ph := range s.peers.GetPeers() {
		if ph.ID == peer {
			continue
		}
		if ph.Data.Handshaked {
			s.downloadBlocks(ph.ID)
		}
	}
}
