package merkle

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

func TestDecodeSingleTxMatch(t *testing.T) {
	txHash := chainhash.HashH([]byte("tx-a"))
	msg := &wire.MsgMerkleBlock{
		Header:       wire.BlockHeader{MerkleRoot: txHash},
		Transactions: 1,
		Hashes:       []*chainhash.Hash{&txHash},
		Flags:        []byte{0b00000001},
	}

	dmb, err := Decode(msg, 10)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dmb.ComputedRoot != txHash {
		t.Fatalf("computed root: got %s, want %s", dmb.ComputedRoot, txHash)
	}
	if len(dmb.ExpectedTxHashes) != 1 || dmb.ExpectedTxHashes[0] != txHash {
		t.Fatalf("expected tx hashes: got %v, want [%s]", dmb.ExpectedTxHashes, txHash)
	}
	if dmb.Height != 10 {
		t.Fatalf("height: got %d, want 10", dmb.Height)
	}
}

func TestDecodeSingleTxNoMatch(t *testing.T) {
	txHash := chainhash.HashH([]byte("tx-b"))
	msg := &wire.MsgMerkleBlock{
		Header:       wire.BlockHeader{MerkleRoot: txHash},
		Transactions: 1,
		Hashes:       []*chainhash.Hash{&txHash},
		Flags:        []byte{0b00000000},
	}

	dmb, err := Decode(msg, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dmb.ComputedRoot != txHash {
		t.Fatalf("computed root: got %s, want %s", dmb.ComputedRoot, txHash)
	}
	if len(dmb.ExpectedTxHashes) != 0 {
		t.Fatalf("expected tx hashes: got %v, want none", dmb.ExpectedTxHashes)
	}
}

func TestDecodeTwoTxOneMatch(t *testing.T) {
	left := chainhash.HashH([]byte("tx-left"))
	right := chainhash.HashH([]byte("tx-right"))
	root := hashNode(left, right)

	// Bit 0 (root): parent-of-match, descend. Bit 1 (left leaf): match.
	// Bit 2 (right leaf): no match. LSB-first within the byte.
	msg := &wire.MsgMerkleBlock{
		Header:       wire.BlockHeader{MerkleRoot: root},
		Transactions: 2,
		Hashes:       []*chainhash.Hash{&left, &right},
		Flags:        []byte{0b00000011},
	}

	dmb, err := Decode(msg, 5)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dmb.ComputedRoot != root {
		t.Fatalf("computed root: got %s, want %s", dmb.ComputedRoot, root)
	}
	if dmb.ComputedRoot != msg.Header.MerkleRoot {
		t.Fatalf("computed root does not match header merkle root")
	}
	if len(dmb.ExpectedTxHashes) != 1 || dmb.ExpectedTxHashes[0] != left {
		t.Fatalf("expected tx hashes: got %v, want [%s]", dmb.ExpectedTxHashes, left)
	}
}

func TestDecodeRejectsZeroTransactions(t *testing.T) {
	msg := &wire.MsgMerkleBlock{Transactions: 0}
	if _, err := Decode(msg, 1); err == nil {
		t.Fatal("expected error decoding a merkle block with zero transactions")
	}
}

func TestDecodeRejectsExhaustedHashList(t *testing.T) {
	txHash := chainhash.HashH([]byte("tx-c"))
	msg := &wire.MsgMerkleBlock{
		Transactions: 2,
		Hashes:       []*chainhash.Hash{&txHash}, // one hash short
		Flags:        []byte{0b00000111},
	}
	if _, err := Decode(msg, 1); err == nil {
		t.Fatal("expected error decoding a merkle block with an exhausted hash list")
	}
}
