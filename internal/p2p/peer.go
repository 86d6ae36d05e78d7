package p2p

import (
	"sync"
	"time"
)

// RuntimeConfig mirrors node/p2p_runtime.go's PeerRuntimeConfig shape:
// the network magic, peer-count ceiling, I/O deadlines, and the ban
// score threshold past which a peer is dropped.
type RuntimeConfig struct {
	Network       string
	MaxPeers      int
	ReadDeadline  time.Duration
	WriteDeadline time.Duration
	BanThreshold  int
}

func DefaultRuntimeConfig(network string) RuntimeConfig {
	return RuntimeConfig{
		Network:       network,
		MaxPeers:      64,
		ReadDeadline:  15 * time.Second,
		WriteDeadline: 15 * time.Second,
		BanThreshold:  100,
	}
}

// State is the mutable bookkeeping a Manager keeps per peer, mirroring
// the teacher's PeerState fields generalized past the version/verack
// handshake to this module's handshake-free framing (every frame
// stands alone; there is no per-session protocol negotiation beyond
// the network magic check done in Session.ReadFrame).
type State struct {
	Addr         string
	BanScore     int
	LastError    string
	FramesRecv   uint64
	FramesSent   uint64
	ConnectedAt  time.Time
}

// Penalty points charged for misbehavior, scaled the way the teacher's
// ban-score increments were: a malformed envelope is worse than an
// unrecognized-but-well-formed one.
const (
	PenaltyUnknownKind  = 1
	PenaltyBadChecksum  = 20
	PenaltyBadMagic     = 50
)

// Manager tracks connected peers and enforces MaxPeers / BanThreshold,
// generalizing the teacher's PeerManager past its single UTXO-chain
// peer slice to this module's per-peer Session.
type Manager struct {
	mu      sync.Mutex
	cfg     RuntimeConfig
	peers   map[string]*peerEntry
}

type peerEntry struct {
	session *Session
	state   State
}

func NewManager(cfg RuntimeConfig) *Manager {
	return &Manager{cfg: cfg, peers: make(map[string]*peerEntry)}
}

func (m *Manager) AddPeer(addr string, session *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.peers) >= m.cfg.MaxPeers {
		return false
	}
	if _, exists := m.peers[addr]; exists {
		return false
	}
	m.peers[addr] = &peerEntry{
		session: session,
		state:   State{Addr: addr, ConnectedAt: time.Now()},
	}
	return true
}

func (m *Manager) RemovePeer(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, addr)
}

// Penalize adds points to addr's ban score and reports whether the
// peer has now crossed BanThreshold and should be disconnected.
func (m *Manager) Penalize(addr string, points int, reason string) (banned bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.peers[addr]
	if !ok {
		return false
	}
	entry.state.BanScore += points
	entry.state.LastError = reason
	return entry.state.BanScore >= m.cfg.BanThreshold
}

func (m *Manager) Snapshot() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, 0, len(m.peers))
	for _, e := range m.peers {
		out = append(out, e.state)
	}
	return out
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers)
}

func (m *Manager) recordRecv(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.peers[addr]; ok {
		e.state.FramesRecv++
	}
}

func (m *Manager) recordSent(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.peers[addr]; ok {
		e.state.FramesSent++
	}
}
