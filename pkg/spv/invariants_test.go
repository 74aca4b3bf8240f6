package spv

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"

	"github.com/btcspv/spvnode/internal/txfixture"
)

// Invariant 1: a block hash is never simultaneously queued and inflight.
func TestInvariantHashNotQueuedAndInflightSimultaneously(t *testing.T) {
	start := time.Unix(1700000000, 0)
	clock := &fakeClock{t: start}
	chain := txfixture.NewChain(3, start, testBits)

	s, _, _, peers := newTestSession(t, chain.Genesis, clock)
	s.InitHeaderSync()
	setBloom(s)

	for i, h := range chain.Headers {
		s.blocksToDwn.push(int32(i+1), h.BlockHash())
	}
	peers.addPeer("P1", 10)
	s.onPeerHandshake("P1", 70015, 10)

	for _, h := range chain.Headers {
		hash := h.BlockHash()
		queued := s.blocksToDwn.contains(hash)
		_, inflight := s.peerStates["P1"].inflightMerkles[hash]
		if queued && inflight {
			t.Fatalf("hash %s both queued and inflight", hash)
		}
		if !queued && !inflight {
			t.Fatalf("hash %s neither queued nor inflight", hash)
		}
	}
}

// Invariant 4: after a heartbeat, no hash remains inflight past StallTimeout.
func TestInvariantHeartbeatClearsStaleInflight(t *testing.T) {
	start := time.Unix(1700000000, 0)
	clock := &fakeClock{t: start}
	chain := txfixture.NewChain(2, start, testBits)

	s, _, _, peers := newTestSession(t, chain.Genesis, clock)
	s.InitHeaderSync()
	setBloom(s)

	for i, h := range chain.Headers {
		s.blocksToDwn.push(int32(i+1), h.BlockHash())
	}
	peers.addPeer("P1", 10)
	s.onPeerHandshake("P1", 70015, 10)

	if got := len(s.peerStates["P1"].inflightMerkles); got != 2 {
		t.Fatalf("setup: P1 inflight merkles: got %d, want 2", got)
	}

	clock.advance(StallTimeout)
	s.onHeartbeat()

	for hash, inf := range s.peerStates["P1"].inflightMerkles {
		if clock.now().Sub(inf.issuedAt) >= StallTimeout {
			t.Fatalf("hash %s still inflight with age >= StallTimeout", hash)
		}
	}
}

// Invariant 6: solo_txs holds at most one entry per transaction hash.
func TestInvariantSoloTxsUnique(t *testing.T) {
	start := time.Unix(1700000000, 0)
	clock := &fakeClock{t: start}
	chain := txfixture.NewChain(5, start, testBits)

	s, _, _, peers := newTestSession(t, chain.Genesis, clock)
	s.InitHeaderSync()
	setBloom(s)

	// P1 advertises a height above best_block_hash (genesis) so
	// merkleSynced() is false and onTx routes into solo_txs.
	peers.addPeer("P1", 5)

	tx := txfixture.NewTx(wire.OutPoint{}, 1000, []byte{0x51})

	s.onTx("P1", tx)
	s.onTx("P1", tx)

	if got := s.soloTxs.len(); got != 1 {
		t.Fatalf("solo_txs length: got %d, want 1", got)
	}
}

// Invariant 7: a bloom-filter round trip sends exactly one FilterLoad per
// handshaken peer.
func TestInvariantBloomRoundTripOneFilterLoadPerPeer(t *testing.T) {
	start := time.Unix(1700000000, 0)
	clock := &fakeClock{t: start}
	chain := txfixture.NewChain(0, start, testBits)

	s, _, _, peers := newTestSession(t, chain.Genesis, clock)
	s.InitHeaderSync()

	peers.addPeer("P1", 0)
	peers.addPeer("P2", 0)

	s.onBloomFilterUpdate(&BloomFilter{Data: []byte{0x01, 0x02, 0x03}})

	for _, id := range []PeerID{"P1", "P2"} {
		count := 0
		for _, msg := range peers.sent[id] {
			if _, ok := msg.(*wire.MsgFilterLoad); ok {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("peer %s: got %d FilterLoad messages, want 1", id, count)
		}
	}
}
