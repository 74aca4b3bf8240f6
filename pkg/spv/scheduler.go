package spv

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// maxBlocksPerBatch is the batch cap applied to every downloadBlocks call.
const maxBlocksPerBatch = 500

// canDownload gates downloadBlocks: a peer can receive work only while it
// is handshaken, idle, not the dedicated header-sync peer, and while no
// rescan is pending.
func (s *Session) canDownload(peer PeerID) bool {
	if s.syncPeer != nil && *s.syncPeer == peer {
		return false
	}
	if s.bloom == nil || s.bloom.IsEmpty() {
		return false
	}
	data, ok := s.peers.GetPeerData(peer)
	if !ok || !data.Handshaked {
		return false
	}
	if ps, ok := s.peerStates[peer]; ok && len(ps.inflightMerkles) > 0 {
		return false
	}
	if s.pendingRescan != nil {
		return false
	}
	return true
}

// downloadBlocks is the sole assigner of merkle-block download work. It
// takes up to maxBlocksPerBatch queued (height, hash) pairs, keeps the
// prefix whose heights are at or below the peer's advertised height,
// returns the remainder to the queue, and issues GetData plus a Ping
// end-of-batch sentinel for the kept prefix.
func (s *Session) downloadBlocks(peer PeerID) {
	if !s.canDownload(peer) {
		return
	}
	data, ok := s.peers.GetPeerData(peer)
	if !ok {
		return
	}
	height := data.Height

	batch := s.blocksToDwn.takeUpTo(maxBlocksPerBatch)
	if len(batch) == 0 {
		return
	}

	cut := 0
	for cut < len(batch) && batch[cut].Height <= height {
		cut++
	}
	keep, rest := batch[:cut], batch[cut:]

	for _, hh := range rest {
		s.blocksToDwn.push(hh.Height, hh.Hash)
	}

	if len(keep) == 0 {
		return
	}

	ps := s.peerState(peer)
	issuedAt := s.now()
	wireHashes := make([]chainhash.Hash, 0, len(keep))
	for _, hh := range keep {
		ps.inflightMerkles[hh.Hash] = inflightMerkle{height: hh.Height, hash: hh.Hash, issuedAt: issuedAt}
		wireHashes = append(wireHashes, hh.Hash)
	}

	s.peers.SendMessage(peer, newGetDataMerkle(wireHashes))
	s.peers.SendMessage(peer, newBatchSentinel())
}
