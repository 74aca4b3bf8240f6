package spv

import "github.com/btcsuite/btcd/wire"

// onBloomFilterUpdate installs the filter if non-empty and different,
// broadcasts FilterLoad to every handshaken peer, then triggers downloads.
func (s *Session) onBloomFilterUpdate(filter *BloomFilter) {
	if filter == nil || filter.IsEmpty() {
		return
	}
	if s.bloom != nil && bloomEqual(s.bloom, filter) {
		return
	}
	s.bloom = filter

	for _, ph := range s.peers.GetPeers() {
		if !ph.Data.Handshaked {
			continue
		}
		s.peers.SendMessage(ph.ID, s.bloom.FilterLoadMsg())
		s.downloadBlocks(ph.ID)
	}
}

func bloomEqual(a, b *BloomFilter) bool {
	if len(a.Data) != len(b.Data) || a.HashFnCount != b.HashFnCount || a.Tweak != b.Tweak || a.Filter != b.Filter {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}

// onPublishTx sends tx to every handshaken peer; if none exist yet, queues
// it for the first one to handshake.
func (s *Session) onPublishTx(tx *wire.MsgTx) {
	sent := false
	for _, ph := range s.peers.GetPeers() {
		if !ph.Data.Handshaked {
			continue
		}
		s.peers.SendMessage(ph.ID, tx)
		sent = true
	}
	if !sent {
		s.pendingTxBroadcast = append([]*wire.MsgTx{tx}, s.pendingTxBroadcast...)
	}
}
