package spv

// NodeStatus is a point-in-time, read-only snapshot of the coordination
// state, computed inside the dispatch loop so it never races the mutators
// in the rest of this package.
type NodeStatus struct {
	BestHeaderHeight int32
	BestBlockHeight  int32
	ConnectedPeers   int
	HandshakedPeers  int
	QueueDepth       int
	InflightMerkles  int
	InflightTxs      int
	SoloTxs          int
	SyncPeer         *PeerID
	PendingRescan    bool
}

// onNodeStatus computes a NodeStatus snapshot and hands it back over
// req.Reply without blocking: the channel is expected to be buffered by the
// caller.
func (s *Session) onNodeStatus(req NodeStatusRequest) {
	status := NodeStatus{
		BestHeaderHeight: s.store.BestBlockHeaderHeight(),
		QueueDepth:       s.blocksToDwn.len(),
		SoloTxs:          s.soloTxs.len(),
		SyncPeer:         s.syncPeer,
		PendingRescan:    s.pendingRescan != nil,
	}
	if height, ok := s.store.GetBlockHeaderHeight(s.bestBlockHash); ok {
		status.BestBlockHeight = height
	}
	for _, ph := range s.peers.GetPeers() {
		status.ConnectedPeers++
		if ph.Data.Handshaked {
			status.HandshakedPeers++
		}
	}
	for _, ps := range s.peerStates {
		status.InflightMerkles += len(ps.inflightMerkles)
		status.InflightTxs += len(ps.inflightTxs)
	}
	select {
	case req.Reply <- status:
	default:
	}
}
