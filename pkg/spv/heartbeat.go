package spv

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// StallTimeout is the inflight request timeout that drives stall recovery.
const StallTimeout = 120 * time.Second

// onHeartbeat re-queues any inflight merkle request that has run past
// StallTimeout back into blocks_to_dwn; peers with any stall are scheduled
// last this round. Stalled tx requests are re-issued to the same peer.
func (s *Session) onHeartbeat() {
	now := s.now()

	var stalledPeers []PeerID
	var freshPeers []PeerID
	for peer, ps := range s.peerStates {
		hadStall := false
		for hash, inf := range ps.inflightMerkles {
			if now.Sub(inf.issuedAt) >= StallTimeout {
				delete(ps.inflightMerkles, hash)
				s.blocksToDwn.push(inf.height, inf.hash)
				hadStall = true
			}
		}
		if hadStall {
			stalledPeers = append(stalledPeers, peer)
		} else {
			freshPeers = append(freshPeers, peer)
		}
	}

	for peer, ps := range s.peerStates {
		var txHashes []chainhash.Hash
		for hash, inf := range ps.inflightTxs {
			if now.Sub(inf.issuedAt) >= StallTimeout {
				delete(ps.inflightTxs, hash)
				txHashes = append(txHashes, hash)
			}
		}
		if len(txHashes) > 0 {
			s.downloadTxs(peer, txHashes)
		}
	}

	// Demote peers with a stall to the end of this round's scheduling order.
	for _, peer := range freshPeers {
		s.downloadBlocks(peer)
	}
	for _, peer := range stalledPeers {
		s.downloadBlocks(peer)
	}
}
