// Package peermanager is the concrete, transport-owning implementation of
// spv.PeerManager: it dials peers with github.com/btcsuite/btcd/peer,
// decodes their merkle blocks with pkg/merkle, and turns each verack,
// headers, inv, tx and merkleblock message (and each disconnect) into a
// spv.Request posted to the session's dispatcher. It never touches session
// state directly.
package peermanager

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/peer"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btclog"

	"github.com/btcspv/spvnode/pkg/merkle"
	"github.com/btcspv/spvnode/pkg/spv"
)

// NewestBlockFunc supplies the peer package's handshake with this node's
// current best header, the way spv.HeaderStore.GetBestBlockHeader would.
type NewestBlockFunc func() (*chainhash.Hash, int32, error)

// HeightLookupFunc resolves a block hash to its header-chain height, used to
// stamp a height onto a decoded merkle block before posting it.
type HeightLookupFunc func(hash chainhash.Hash) (int32, bool)

type trackedPeer struct {
	peer *peer.Peer
	data spv.PeerData
}

// Manager owns every live peer.Peer connection and is the sole producer of
// requests posted to the dispatcher on their behalf.
type Manager struct {
	mu    sync.RWMutex
	peers map[spv.PeerID]*trackedPeer

	dispatcher   *spv.Dispatcher
	chainParams  *chaincfg.Params
	newestBlock  NewestBlockFunc
	heightOf     HeightLookupFunc
	userAgent    string
	userAgentVer string
	log          btclog.Logger
}

// Config groups Manager construction parameters.
type Config struct {
	Dispatcher      *spv.Dispatcher
	ChainParams     *chaincfg.Params
	NewestBlock     NewestBlockFunc
	HeightOf        HeightLookupFunc
	UserAgentName   string
	UserAgentVerStr string
	Log             btclog.Logger
}

// New constructs a Manager. It does not dial anything; call Connect per
// configured seed/peer address.
func New(cfg Config) *Manager {
	log := cfg.Log
	if log == nil {
		log = btclog.Disabled
	}
	return &Manager{
		peers:        make(map[spv.PeerID]*trackedPeer),
		dispatcher:   cfg.Dispatcher,
		chainParams:  cfg.ChainParams,
		newestBlock:  cfg.NewestBlock,
		heightOf:     cfg.HeightOf,
		userAgent:    cfg.UserAgentName,
		userAgentVer: cfg.UserAgentVerStr,
		log:          log,
	}
}

// Connect dials addr, performs the wire handshake, and registers the peer
// under spv.PeerID(addr). The dispatcher only learns of it once OnVerAck
// fires; Connect itself returns as soon as the TCP+version handshake starts.
func (m *Manager) Connect(addr string) error {
	id := spv.PeerID(addr)

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("peermanager: dial %s: %w", addr, err)
	}

	cfg := &peer.Config{
		NewestBlock:      m.newestBlock,
		ChainParams:      m.chainParams,
		UserAgentName:    m.userAgent,
		UserAgentVersion: m.userAgentVer,
		Services:         0,
		ProtocolVersion:  wire.BIP0037Version,
		Listeners:        m.listenersFor(id),
	}

	p, err := peer.NewOutboundPeer(cfg, addr)
	if err != nil {
		conn.Close()
		return fmt.Errorf("peermanager: new outbound peer %s: %w", addr, err)
	}

	m.mu.Lock()
	m.peers[id] = &trackedPeer{peer: p}
	m.mu.Unlock()

	p.AssociateConnection(conn)

	go func() {
		p.WaitForDisconnect()
		m.mu.Lock()
		delete(m.peers, id)
		m.mu.Unlock()
		m.dispatcher.Post(spv.PeerDisconnectRequest{Peer: id})
	}()

	return nil
}

func (m *Manager) listenersFor(id spv.PeerID) peer.MessageListeners {
	return peer.MessageListeners{
		OnVerAck: func(p *peer.Peer, msg *wire.MsgVerAck) {
			m.mu.Lock()
			if tp, ok := m.peers[id]; ok {
				tp.data = spv.PeerData{
					Height:     p.StartingHeight(),
					Handshaked: true,
					UserAgent:  p.UserAgent(),
					Services:   p.Services(),
				}
			}
			m.mu.Unlock()
			m.dispatcher.Post(spv.PeerHandshakeRequest{
				Peer:            id,
				ProtocolVersion: uint32(p.ProtocolVersion()),
				StartHeight:     p.StartingHeight(),
			})
		},
		OnHeaders: func(p *peer.Peer, msg *wire.MsgHeaders) {
			headers := make([]*wire.BlockHeader, len(msg.Headers))
			copy(headers, msg.Headers)
			m.dispatcher.Post(spv.HeadersRequest{Peer: id, Headers: headers})
		},
		OnInv: func(p *peer.Peer, msg *wire.MsgInv) {
			inv := make([]*wire.InvVect, len(msg.InvList))
			copy(inv, msg.InvList)
			m.dispatcher.Post(spv.InvRequest{Peer: id, Inv: inv})
		},
		OnTx: func(p *peer.Peer, msg *wire.MsgTx) {
			m.dispatcher.Post(spv.TxRequest{Peer: id, Tx: msg})
		},
		OnMerkleBlock: func(p *peer.Peer, msg *wire.MsgMerkleBlock) {
			height, ok := m.heightOf(msg.Header.BlockHash())
			if !ok {
				m.log.Warnf("peermanager: merkle block %s from %s has no known header height, dropping", msg.Header.BlockHash(), id)
				return
			}
			dmb, err := merkle.Decode(msg, height)
			if err != nil {
				m.log.Warnf("peermanager: failed to decode merkle block from %s: %v", id, err)
				return
			}
			m.dispatcher.Post(spv.MerkleBlockRequest{Peer: id, Block: dmb})
		},
	}
}

// SendMessage implements spv.PeerManager.
func (m *Manager) SendMessage(id spv.PeerID, msg wire.Message) {
	m.mu.RLock()
	tp, ok := m.peers[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	tp.peer.QueueMessage(msg, nil)
}

// GetPeerKeys implements spv.PeerManager.
func (m *Manager) GetPeerKeys() []spv.PeerID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]spv.PeerID, 0, len(m.peers))
	for id := range m.peers {
		out = append(out, id)
	}
	return out
}

// GetPeers implements spv.PeerManager.
func (m *Manager) GetPeers() []spv.PeerHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]spv.PeerHandle, 0, len(m.peers))
	for id, tp := range m.peers {
		out = append(out, spv.PeerHandle{ID: id, Data: tp.data})
	}
	return out
}

// GetPeerData implements spv.PeerManager.
func (m *Manager) GetPeerData(id spv.PeerID) (spv.PeerData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tp, ok := m.peers[id]
	if !ok {
		return spv.PeerData{}, false
	}
	return tp.data, true
}

// IncreasePeerHeight implements spv.PeerManager.
func (m *Manager) IncreasePeerHeight(id spv.PeerID, height int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tp, ok := m.peers[id]
	if !ok || height <= tp.data.Height {
		return
	}
	tp.data.Height = height
}

// GetBestPeerHeight implements spv.PeerManager.
func (m *Manager) GetBestPeerHeight() int32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best int32
	for _, tp := range m.peers {
		if tp.data.Handshaked && tp.data.Height > best {
			best = tp.data.Height
		}
	}
	return best
}
