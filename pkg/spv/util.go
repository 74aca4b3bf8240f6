package spv

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// chainHashZero is the zero-value hash, used as a GetHeaders hstop meaning
// "no stop, send as many as you have".
var chainHashZero chainhash.Hash

// dedupeTxs copies txs, dropping duplicates by hash while preserving order.
func dedupeTxs(txs []*wire.MsgTx) []*wire.MsgTx {
	if len(txs) == 0 {
		return nil
	}
	seen := make(map[chainhash.Hash]struct{}, len(txs))
	out := make([]*wire.MsgTx, 0, len(txs))
	for _, tx := range txs {
		h := tx.TxHash()
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, tx)
	}
	return out
}

// appendUniqueTx appends tx to set unless its hash is already present.
func appendUniqueTx(set []*wire.MsgTx, tx *wire.MsgTx) []*wire.MsgTx {
	h := tx.TxHash()
	for _, t := range set {
		if t.TxHash() == h {
			return set
		}
	}
	return append(set, tx)
}
