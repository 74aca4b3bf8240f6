// Package txfixture builds realistic wire.MsgTx values and block header
// chains for the pkg/spv, pkg/headerstore and pkg/walletsink tests, plus
// CLTV script and P2TR address builders that no test in this module calls.
// It is test-only scaffolding, adapted from the node's former standalone
// script and vault builders, and is never imported by the running node.
package txfixture

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/crypto/ripemd160"
)

// Hash160 computes RIPEMD160(SHA256(data)), the pubkey-hash digest P2PKH
// and P2WPKH fixture scripts are keyed on.
func Hash160(data []byte) []byte {
	sha := sha256.Sum256(data)
	r := ripemd160.New()
	r.Write(sha[:])
	return r.Sum(nil)
}

// TimelockOutput is a CheckLockTimeVerify-gated P2PKH output, the shape a
// test wallet might be watching for.
type TimelockOutput struct {
	LockHeight uint32
	PubKeyHash []byte
	Script     []byte
}

// BuildTimelockScript builds a standard CLTV + P2PKH script locking funds
// until lockHeight.
func BuildTimelockScript(lockHeight uint32, pubKeyHash []byte) (*TimelockOutput, error) {
	if len(pubKeyHash) != 20 {
		return nil, fmt.Errorf("txfixture: pubKeyHash must be 20 bytes, got %d", len(pubKeyHash))
	}
	if lockHeight == 0 {
		return nil, fmt.Errorf("txfixture: lockHeight must be greater than 0")
	}

	builder := txscript.NewScriptBuilder()
	builder.AddInt64(int64(lockHeight))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(pubKeyHash)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_CHECKSIG)

	script, err := builder.Script()
	if err != nil {
		return nil, fmt.Errorf("txfixture: build timelock script: %w", err)
	}
	return &TimelockOutput{LockHeight: lockHeight, PubKeyHash: pubKeyHash, Script: script}, nil
}

// Vault is a deterministic Taproot (P2TR) output derived from a word seed,
// used by tests that need a stable, reproducible watch address rather than
// a freshly-generated one.
type Vault struct {
	InternalKey *btcec.PublicKey
	OutputKey   *btcec.PublicKey
	Address     string
	SeedHash    []byte
}

// GenerateVault derives a Taproot vault address from seedWords. The same
// seed always produces the same address, which is what tests need; it is
// not a wallet-grade key derivation scheme.
func GenerateVault(seedWords []string, params *chaincfg.Params) (*Vault, error) {
	if len(seedWords) == 0 {
		return nil, fmt.Errorf("txfixture: seed must contain at least one word")
	}
	seedData := ""
	for _, word := range seedWords {
		seedData += word
	}
	seedHash := sha256.Sum256([]byte(seedData))

	internalPriv, internalPub := btcec.PrivKeyFromBytes(seedHash[:])
	_ = internalPriv

	tweak := sha256.Sum256(append(schnorr.SerializePubKey(internalPub), seedHash[:]...))
	outputKey := txscript.ComputeTaprootOutputKey(internalPub, tweak[:])

	address, err := EncodeTaprootAddress(schnorr.SerializePubKey(outputKey), params)
	if err != nil {
		return nil, fmt.Errorf("txfixture: encode address: %w", err)
	}

	return &Vault{
		InternalKey: internalPub,
		OutputKey:   outputKey,
		Address:     address,
		SeedHash:    seedHash[:],
	}, nil
}

// EncodeTaprootAddress Bech32m-encodes a 32-byte Taproot output key.
func EncodeTaprootAddress(pubkey []byte, params *chaincfg.Params) (string, error) {
	const witnessVersion = byte(1)
	converted, err := bech32.ConvertBits(pubkey, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("txfixture: convert bits: %w", err)
	}
	data := append([]byte{witnessVersion}, converted...)

	hrp := "bc"
	switch params.Name {
	case "testnet3", "testnet":
		hrp = "tb"
	case "regtest":
		hrp = "bcrt"
	}

	encoded, err := bech32.EncodeM(hrp, data)
	if err != nil {
		return "", fmt.Errorf("txfixture: encode bech32m: %w", err)
	}
	return encoded, nil
}

// Chain is a deterministic, unvalidated (no real proof of work) sequence of
// linked block headers, the kind of fixture the header-sync and scheduler
// tests build chains out of.
type Chain struct {
	Genesis *wire.BlockHeader
	Headers []*wire.BlockHeader // excludes genesis, ascending height
}

// NewChain builds a genesis header plus n linked descendants, one minute
// apart starting at start, all carrying bits so chain-work accumulates
// predictably.
func NewChain(n int, start time.Time, bits uint32) *Chain {
	genesis := &wire.BlockHeader{
		Version:    1,
		PrevBlock:  chainhash.Hash{},
		MerkleRoot: chainhash.HashH([]byte("txfixture-genesis")),
		Timestamp:  start,
		Bits:       bits,
		Nonce:      0,
	}
	c := &Chain{Genesis: genesis}
	prev := genesis
	for i := 1; i <= n; i++ {
		h := &wire.BlockHeader{
			Version:    1,
			PrevBlock:  prev.BlockHash(),
			MerkleRoot: chainhash.HashH([]byte(fmt.Sprintf("txfixture-block-%d", i))),
			Timestamp:  start.Add(time.Duration(i) * time.Minute),
			Bits:       bits,
			Nonce:      uint32(i),
		}
		c.Headers = append(c.Headers, h)
		prev = h
	}
	return c
}

// NewTx builds a single-input, single-output transaction spending prevOut
// and paying value to pkScript. Calls with identical arguments produce
// transactions with identical hashes.
func NewTx(prevOut wire.OutPoint, value int64, pkScript []byte) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: prevOut,
		SignatureScript:  []byte{},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(&wire.TxOut{Value: value, PkScript: pkScript})
	return tx
}

// BuildMerkleRoot computes the standard (non-partial) Merkle root over txs,
// the value a full node would put in a block header.
func BuildMerkleRoot(txs []*wire.MsgTx) chainhash.Hash {
	wrapped := make([]*btcutil.Tx, len(txs))
	for i, tx := range txs {
		wrapped[i] = btcutil.NewTx(tx)
	}
	tree := blockchain.BuildMerkleTreeStore(wrapped, false)
	return *tree[len(tree)-1]
}
