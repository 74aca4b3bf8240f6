package spv

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

func (s *Session) newGetHeaders(locator []chainhash.Hash, hstop chainhash.Hash) *wire.MsgGetHeaders {
	msg := wire.NewMsgGetHeaders()
	msg.ProtocolVersion = s.protocolVersion
	msg.BlockLocatorHashes = locator
	msg.HashStop = hstop
	return msg
}

func newGetDataMerkle(hashes []chainhash.Hash) *wire.MsgGetData {
	msg := wire.NewMsgGetData()
	for _, h := range hashes {
		hc := h
		msg.AddInvVect(wire.NewInvVect(wire.InvTypeFilteredBlock, &hc))
	}
	return msg
}

func newGetDataTxs(hashes []chainhash.Hash) *wire.MsgGetData {
	msg := wire.NewMsgGetData()
	for _, h := range hashes {
		hc := h
		msg.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &hc))
	}
	return msg
}

// newBatchSentinel builds the end-of-batch Ping sentinel sent after a merkle
// batch request. Its nonce is random (a fixed fallback value is used if the
// random source fails). Pong replies are not tracked: nothing in this
// package or the peer manager matches them against the sentinel.
func newBatchSentinel() *wire.MsgPing {
	nonce, err := wire.RandomUint64()
	if err != nil {
		nonce = uint64(chainhash.HashB([]byte("spv-ping-fallback"))[0])
	}
	return wire.NewMsgPing(nonce)
}
