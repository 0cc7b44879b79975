// Package mesh implements the peer session: full-mesh connection
// management, the join protocol and master handoff,
// layered on internal/transport and internal/protocol and driving
// internal/lockstep.
package mesh

import (
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand/v2"
	"net"
	"strconv"
	"time"

	"github.com/octolife/octolife/internal/life"
	"github.com/octolife/octolife/internal/lockstep"
	"github.com/octolife/octolife/internal/pattern"
	"github.com/octolife/octolife/internal/protocol"
	"github.com/octolife/octolife/internal/transport"
)

// ErrDestroyed is returned by Update and Turn once the session has been
// torn down, either by divergence or by a pre-start peer departure.
var ErrDestroyed = errors.New("mesh: session destroyed")

// Config gathers the construction-time parameters for a Session, sourced
// from the CLI surface (internal/config) or test code directly.
type Config struct {
	ListenAddr      string // this peer's own accept address, e.g. ":9000"
	ServerAddr      string // master's advertised address; empty means this peer is master
	PlayersCount    int32  // master only, clamped to [1,8]
	W, H            int32
	TurnPeriod      time.Duration
	DistanceToEnemy int32
	Patterns        *pattern.Set
}

// Session is one peer's view of the mesh: its identity, the connections
// to every other peer, master election state, and the lockstep engine
// those connections feed.
type Session struct {
	cfg Config

	selector   *transport.Selector
	listener   net.Listener
	advertised string // this peer's own listener address, as actually bound

	localID      int32
	masterPeer   *peer // nil iff this session is master
	peers        map[int32]*peer
	pending      []*peer
	playersCount int32
	readyPlayers int32
	seed         uint32

	engine   *lockstep.Engine
	patterns *pattern.Set

	paused    bool
	started   bool
	destroyed bool
}

// NewMaster constructs a Session that hosts a new game and immediately
// starts listening on cfg.ListenAddr. The returned session has player id
// 0 and is its own master.
func NewMaster(cfg Config) (*Session, error) {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("mesh: listening on %s: %w", cfg.ListenAddr, err)
	}

	count := clamp32(cfg.PlayersCount, 1, 8)
	seed := mathrand.Uint32()
	world := life.NewWorld(cfg.W, cfg.H)

	s := &Session{
		cfg:          cfg,
		selector:     transport.NewSelector(),
		listener:     ln,
		advertised:   ln.Addr().String(),
		localID:      0,
		peers:        make(map[int32]*peer),
		playersCount: count,
		readyPlayers: 1,
		seed:         seed,
		engine:       lockstep.New(world, cfg.Patterns, cfg.DistanceToEnemy, 0, []int32{0}, seed),
		patterns:     cfg.Patterns,
	}
	slog.Info("hosting new game", "listen", ln.Addr(), "playersCount", count, "seed", seed, "w", cfg.W, "h", cfg.H)
	s.maybeStartAsMaster()
	return s, nil
}

// NewJoiner dials cfg.ServerAddr and starts listening on cfg.ListenAddr
// for the reverse connections other peers will open once the master
// broadcasts this peer's reachable endpoint. Init must be called before
// the session takes part in the mesh.
func NewJoiner(cfg Config) (*Session, error) {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("mesh: listening on %s: %w", cfg.ListenAddr, err)
	}
	conn, err := net.Dial("tcp", cfg.ServerAddr)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("mesh: dialing master %s: %w", cfg.ServerAddr, err)
	}

	s := &Session{
		cfg:        cfg,
		selector:   transport.NewSelector(),
		listener:   ln,
		advertised: ln.Addr().String(),
		masterPeer: &peer{conn: transport.NewFramedConn(conn), playerID: unidentified},
		peers:      make(map[int32]*peer),
		patterns:   cfg.Patterns,
	}
	return s, nil
}

// IsMaster reports whether this session is the mesh's current master.
func (s *Session) IsMaster() bool {
	return s.masterPeer == nil
}

// LocalID returns this peer's assigned player id.
func (s *Session) LocalID() int32 {
	return s.localID
}

// Started reports whether the ready barrier has completed and the game
// is running.
func (s *Session) Started() bool {
	return s.started
}

// Destroyed reports whether the session has torn itself down.
func (s *Session) Destroyed() bool {
	return s.destroyed
}

// World exposes the lockstep engine's current world for the renderer.
func (s *Session) World() *life.World {
	return s.engine.World()
}

func clamp32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Init performs the joiner side of the join-protocol handshake: it sends
// NewPlayer carrying this peer's own listen endpoint, then spins — the
// only place outside Select the core may block the thread — until the
// frame is flushed and an AcceptPlayer has arrived.
func (s *Session) Init() error {
	if s.IsMaster() {
		return nil
	}

	protocol.Write(s.masterPeer.conn, protocol.NewPlayer{Endpoint: s.advertised})

	writeSet := []*transport.FramedConn{s.masterPeer.conn}
	for !s.masterPeer.conn.CanWrite() {
		s.selector.Select(nil, writeSet, writeSet, true)
		if err := s.masterPeer.conn.Err(); err != nil {
			return fmt.Errorf("mesh: sending NewPlayer: %w", err)
		}
	}

	readSet := []*transport.FramedConn{s.masterPeer.conn}
	for {
		s.selector.Select(readSet, nil, readSet, true)
		if err := s.masterPeer.conn.Err(); err != nil {
			return fmt.Errorf("mesh: awaiting AcceptPlayer: %w", err)
		}
		frame, ok := s.masterPeer.conn.PopFrame()
		if !ok {
			continue
		}
		msg, err := protocol.Decode(frame)
		if err != nil {
			return fmt.Errorf("mesh: decoding AcceptPlayer: %w", err)
		}
		accept, ok := msg.(protocol.AcceptPlayer)
		if !ok {
			return fmt.Errorf("mesh: expected AcceptPlayer, got %T", msg)
		}
		s.applyAccept(accept)
		return nil
	}
}

func (s *Session) applyAccept(m protocol.AcceptPlayer) {
	s.localID = m.AssignedID
	s.playersCount = m.PlayersCount
	s.seed = m.Seed
	s.masterPeer.playerID = m.MasterID
	s.peers[m.MasterID] = s.masterPeer

	world := life.NewWorld(m.W, m.H)
	s.engine = lockstep.New(world, s.patterns, s.cfg.DistanceToEnemy, s.localID, []int32{s.localID, m.MasterID}, m.Seed)

	slog.Info("joined game", "localID", s.localID, "masterID", m.MasterID, "playersCount", s.playersCount, "w", m.W, "h", m.H)
	s.checkReadyForGame()
}

// knownPlayers is the count of remote peer connections this session has
// registered — the `known_players` figure of the ready barrier.
func (s *Session) knownPlayers() int32 {
	return int32(len(s.peers))
}

// checkReadyForGame fires once this session's own mesh is complete. On the
// master it is a no-op — the master's readyPlayers only ever grows inside
// handleReadyForGame's master branch, once every peer has actually sent a
// ReadyForGame of its own. On a joiner it sends that ReadyForGame to the
// master.
func (s *Session) checkReadyForGame() {
	if s.started {
		return
	}
	if s.knownPlayers() != s.playersCount-1 {
		return
	}
	if s.IsMaster() {
		return
	}
	s.sendToMaster(protocol.ReadyForGame{
		KnownPlayers: s.knownPlayers(),
		PlayersCount: s.playersCount,
		ReadyPlayers: 0,
	})
}

func (s *Session) maybeStartAsMaster() {
	if s.readyPlayers < s.playersCount {
		return
	}
	msg := protocol.ReadyForGame{
		KnownPlayers: s.knownPlayers(),
		PlayersCount: s.playersCount,
		ReadyPlayers: s.readyPlayers,
	}
	s.broadcast(msg)
	s.startGame()
}

func (s *Session) startGame() {
	s.engine.StartGame()
	s.started = true
	slog.Info("game started", "localID", s.localID, "playersCount", s.playersCount)
}

func (s *Session) sendToMaster(msg protocol.Message) {
	if s.masterPeer == nil {
		return
	}
	protocol.Write(s.masterPeer.conn, msg)
}

func (s *Session) broadcast(msg protocol.Message) {
	for _, p := range s.peers {
		protocol.Write(p.conn, msg)
	}
}

// reachableEndpoint combines the host a connection was actually observed
// from with the port its NewPlayer body advertised, synthesizing the
// address other peers must dial to reach the same joiner — a minimal
// NAT-traversal heuristic: trust the advertised port, distrust the
// advertised host.
func reachableEndpoint(remote net.Addr, advertised string) (string, error) {
	remoteHost, _, err := net.SplitHostPort(remote.String())
	if err != nil {
		return "", fmt.Errorf("mesh: splitting remote addr %q: %w", remote.String(), err)
	}
	_, advertisedPort, err := net.SplitHostPort(advertised)
	if err != nil {
		return "", fmt.Errorf("mesh: splitting advertised addr %q: %w", advertised, err)
	}
	if _, err := strconv.Atoi(advertisedPort); err != nil {
		return "", fmt.Errorf("mesh: advertised port %q is not numeric: %w", advertisedPort, err)
	}
	return net.JoinHostPort(remoteHost, advertisedPort), nil
}

// AddUnit forwards to the lockstep engine's placement check.
func (s *Session) AddUnit(c life.Cell) bool {
	return s.engine.AddUnit(c)
}

// AddPreset forwards to the lockstep engine's placement check.
func (s *Session) AddPreset(transform life.Matrix3, presetIndex int32) bool {
	return s.engine.AddPreset(transform, presetIndex)
}

// Pause toggles the local pause flag and informs every peer.
func (s *Session) Pause() {
	s.paused = !s.paused
	s.engine.SetPaused(s.paused)
	s.broadcast(protocol.Pause{Paused: s.paused})
}

// Turn runs one lockstep turn if the game is running and not paused,
// broadcasting the freshly committed command to every peer.
func (s *Session) Turn() error {
	if s.destroyed {
		return ErrDestroyed
	}
	committed, err := s.engine.Tick()
	if err != nil {
		if errors.Is(err, lockstep.ErrDivergence) {
			s.Destroy()
			return ErrDestroyed
		}
		return err
	}
	if committed == nil {
		return nil
	}
	s.broadcast(protocol.CommandMsg{AuthorID: s.localID, Cmd: *committed})
	return nil
}

// Destroy tears down every connection. It is idempotent.
func (s *Session) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	for _, p := range s.peers {
		p.conn.Close()
	}
	for _, p := range s.pending {
		p.conn.Close()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	slog.Warn("session destroyed", "localID", s.localID)
}
