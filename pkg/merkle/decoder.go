// Package merkle reconstructs the partial Merkle tree BIP37 encodes inside a
// MerkleBlock message, producing the computed root and the list of
// transaction hashes the remote peer's bloom filter proved were included.
// This runs in the peer manager, never inside package spv: spv.Session only
// ever sees the already-decoded result.
package merkle

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcspv/spvnode/pkg/spv"
)

// flagReader walks a BIP37 flag byte slice one bit at a time, LSB first
// within each byte, the order txscript/wire encoders use for MsgMerkleBlock.
type flagReader struct {
	flags []byte
	pos   uint
}

func (r *flagReader) next() (bool, error) {
	idx := r.pos / 8
	if int(idx) >= len(r.flags) {
		return false, fmt.Errorf("merkle: flag bits exhausted at bit %d", r.pos)
	}
	bit := (r.flags[idx] >> (r.pos % 8)) & 1
	r.pos++
	return bit != 0, nil
}

// calcTreeWidth returns the number of nodes at the given height (0 ==
// leaves) of a Merkle tree over numTx transactions.
func calcTreeWidth(numTx uint32, height uint) uint32 {
	return (numTx + (1 << height) - 1) >> height
}

// calcTreeHeight returns the height of the root of a Merkle tree over numTx
// transactions (0 for a single-transaction tree).
func calcTreeHeight(numTx uint32) uint {
	height := uint(0)
	for calcTreeWidth(numTx, height) > 1 {
		height++
	}
	return height
}

func hashNode(left, right chainhash.Hash) chainhash.Hash {
	var buf [chainhash.HashSize * 2]byte
	copy(buf[:chainhash.HashSize], left[:])
	copy(buf[chainhash.HashSize:], right[:])
	return chainhash.DoubleHashH(buf[:])
}

// Decode reconstructs msg's partial Merkle tree, returning the root it
// computes and the transaction hashes the flag bits mark as matched, in
// left-to-right (block) order. height is the chain height of the block the
// caller already resolved via the header store; Decode has no way to derive
// it from the message alone.
func Decode(msg *wire.MsgMerkleBlock, height int32) (*spv.DecodedMerkleBlock, error) {
	if msg.Transactions == 0 {
		return nil, fmt.Errorf("merkle: merkle block %s claims zero transactions", msg.Header.BlockHash())
	}
	treeHeight := calcTreeHeight(msg.Transactions)
	flags := &flagReader{flags: msg.Flags}
	hashIdx := 0
	var matched []chainhash.Hash

	var walk func(h uint, pos uint32) (chainhash.Hash, error)
	walk = func(h uint, pos uint32) (chainhash.Hash, error) {
		parentOfMatch, err := flags.next()
		if err != nil {
			return chainhash.Hash{}, err
		}
		if h == 0 || !parentOfMatch {
			if hashIdx >= len(msg.Hashes) {
				return chainhash.Hash{}, fmt.Errorf("merkle: hash list exhausted at height %d", h)
			}
			hash := *msg.Hashes[hashIdx]
			hashIdx++
			if h == 0 && parentOfMatch {
				matched = append(matched, hash)
			}
			return hash, nil
		}

		left, err := walk(h-1, pos*2)
		if err != nil {
			return chainhash.Hash{}, err
		}
		width := calcTreeWidth(msg.Transactions, h-1)
		right := left
		if pos*2+1 < width {
			if right, err = walk(h-1, pos*2+1); err != nil {
				return chainhash.Hash{}, err
			}
		}
		return hashNode(left, right), nil
	}

	root, err := walk(treeHeight, 0)
	if err != nil {
		return nil, err
	}

	return &spv.DecodedMerkleBlock{
		Header:           msg.Header,
		Hash:             msg.Header.BlockHash(),
		Height:           height,
		ComputedRoot:     root,
		ExpectedTxHashes: matched,
	}, nil
}
