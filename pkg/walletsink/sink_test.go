package walletsink

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcspv/spvnode/internal/txfixture"
	"github.com/btcspv/spvnode/pkg/spv"
)

func TestWatchAndWantTxHash(t *testing.T) {
	s := New()
	hash := chainhash.HashH([]byte("tx-a"))

	if s.WantTxHash(hash) {
		t.Fatal("unwatched hash reported as wanted")
	}
	s.Watch(hash)
	if !s.WantTxHash(hash) {
		t.Fatal("watched hash not reported as wanted")
	}
}

func TestSpvImportTxsAccumulates(t *testing.T) {
	s := New()
	tx1 := txfixture.NewTx(wire.OutPoint{}, 1000, []byte{0x51})
	tx2 := txfixture.NewTx(wire.OutPoint{}, 2000, []byte{0x51})

	s.SpvImportTxs([]*wire.MsgTx{tx1})
	s.SpvImportTxs([]*wire.MsgTx{tx2})

	got := s.ImportedTxs()
	if len(got) != 2 {
		t.Fatalf("imported txs: got %d, want 2", len(got))
	}
	if got[0].TxHash() != tx1.TxHash() || got[1].TxHash() != tx2.TxHash() {
		t.Fatalf("imported txs out of order: %v", got)
	}
}

func TestSpvImportMerkleBlockBestAndSideBlock(t *testing.T) {
	s := New()
	node := &spv.HeaderNode{Hash: chainhash.HashH([]byte("block-a"))}

	s.SpvImportMerkleBlock(spv.BlockChainAction{Kind: spv.ActionBestBlock, Node: node}, nil)
	if !s.HaveMerkleHash(node.Hash) {
		t.Fatal("best block hash not recorded as had")
	}

	side := &spv.HeaderNode{Hash: chainhash.HashH([]byte("block-b"))}
	s.SpvImportMerkleBlock(spv.BlockChainAction{Kind: spv.ActionSideBlock, Node: side}, nil)
	if !s.HaveMerkleHash(side.Hash) {
		t.Fatal("side block hash not recorded as had")
	}

	blocks := s.ImportedBlocks()
	if len(blocks) != 2 {
		t.Fatalf("imported blocks: got %d, want 2", len(blocks))
	}
}

func TestSpvImportMerkleBlockReorgFlipsHaveSet(t *testing.T) {
	s := New()
	orphanedA := &spv.HeaderNode{Hash: chainhash.HashH([]byte("orphan-a"))}
	orphanedB := &spv.HeaderNode{Hash: chainhash.HashH([]byte("orphan-b"))}
	newA := &spv.HeaderNode{Hash: chainhash.HashH([]byte("new-a"))}
	newB := &spv.HeaderNode{Hash: chainhash.HashH([]byte("new-b"))}

	s.SpvImportMerkleBlock(spv.BlockChainAction{Kind: spv.ActionBestBlock, Node: orphanedA}, nil)
	s.SpvImportMerkleBlock(spv.BlockChainAction{Kind: spv.ActionBestBlock, Node: orphanedB}, nil)

	s.SpvImportMerkleBlock(spv.BlockChainAction{
		Kind:     spv.ActionBlockReorg,
		Orphaned: []*spv.HeaderNode{orphanedA, orphanedB},
		New:      []*spv.HeaderNode{newA, newB},
	}, nil)

	if s.HaveMerkleHash(orphanedA.Hash) || s.HaveMerkleHash(orphanedB.Hash) {
		t.Fatal("orphaned blocks still reported as had after reorg")
	}
	if !s.HaveMerkleHash(newA.Hash) || !s.HaveMerkleHash(newB.Hash) {
		t.Fatal("new-chain blocks not reported as had after reorg")
	}
}

func TestRescanCleanupCounts(t *testing.T) {
	s := New()
	if s.RescanCleanups() != 0 {
		t.Fatal("fresh sink reports nonzero rescan cleanups")
	}
	s.RescanCleanup()
	s.RescanCleanup()
	if got := s.RescanCleanups(); got != 2 {
		t.Fatalf("rescan cleanups: got %d, want 2", got)
	}
}
