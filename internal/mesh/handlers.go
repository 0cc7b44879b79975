package mesh

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/octolife/octolife/internal/protocol"
	"github.com/octolife/octolife/internal/transport"
)

const acceptProbeDeadline = 200 * time.Microsecond

// tryAccept performs one accept attempt. Listeners that support
// SetDeadline (such as *net.TCPListener) get a short deadline, so the
// attempt does not block; on any other net.Listener, Accept blocks until
// a connection arrives.
func (s *Session) tryAccept() (net.Conn, error) {
	type deadliner interface {
		SetDeadline(time.Time) error
	}
	if d, ok := s.listener.(deadliner); ok {
		if err := d.SetDeadline(time.Now().Add(acceptProbeDeadline)); err != nil {
			return nil, err
		}
	}
	conn, err := s.listener.Accept()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil
		}
		return nil, err
	}
	return conn, nil
}

// Update runs one nonblocking pass: accept at most one waiting connection,
// poll every known socket via the selector, and dispatch whatever
// frames arrived. It is the only method the host's tick loop calls
// once the session is running.
func (s *Session) Update() error {
	if s.destroyed {
		return ErrDestroyed
	}

	conn, err := s.tryAccept()
	if err != nil {
		slog.Error("accept failed", "error", err)
	} else if conn != nil {
		s.pending = append(s.pending, &peer{conn: transport.NewFramedConn(conn), playerID: unidentified})
	}

	read, write, except := s.connSets()
	s.selector.Select(read, write, except, false)

	s.drainReadable()
	s.reapDead()

	return nil
}

func (s *Session) connSets() (read, write, except []*transport.FramedConn) {
	for _, p := range s.peers {
		read = append(read, p.conn)
		write = append(write, p.conn)
		except = append(except, p.conn)
	}
	for _, p := range s.pending {
		read = append(read, p.conn)
		except = append(except, p.conn)
	}
	return read, write, except
}

func (s *Session) drainReadable() {
	for _, p := range s.peers {
		s.drainPeer(p)
	}
	// Iterate over a snapshot: handling a pending frame may move the
	// entry out of s.pending into s.peers.
	pending := append([]*peer(nil), s.pending...)
	for _, p := range pending {
		s.drainPending(p)
	}
}

func (s *Session) drainPeer(p *peer) {
	for p.conn.CanRead() {
		frame, ok := p.conn.PopFrame()
		if !ok {
			break
		}
		msg, err := protocol.Decode(frame)
		if err != nil {
			slog.Error("protocol error, closing connection", "playerID", p.playerID, "error", err)
			p.conn.Close()
			return
		}
		if err := s.handleFromPeer(p, msg); err != nil {
			slog.Error("handling message failed", "playerID", p.playerID, "error", err)
		}
	}
}

func (s *Session) drainPending(p *peer) {
	for p.conn.CanRead() {
		frame, ok := p.conn.PopFrame()
		if !ok {
			break
		}
		msg, err := protocol.Decode(frame)
		if err != nil {
			slog.Error("protocol error on pending connection, closing", "error", err)
			p.conn.Close()
			s.removePending(p)
			return
		}
		if err := s.handleFromPending(p, msg); err != nil {
			slog.Error("handling pending message failed", "error", err)
			p.conn.Close()
			s.removePending(p)
		}
		return
	}
}

func (s *Session) removePending(p *peer) {
	for i, cand := range s.pending {
		if cand == p {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// promotePending moves p out of s.pending and registers it under id.
func (s *Session) promotePending(p *peer, id int32) {
	s.removePending(p)
	p.playerID = id
	s.peers[id] = p
	s.engine.AddPlayer(id)
}

func (s *Session) handleFromPending(p *peer, msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.NewPlayer:
		if !s.IsMaster() {
			return fmt.Errorf("mesh: NewPlayer received on non-master peer")
		}
		return s.handleNewPlayer(p, m)
	case protocol.ConnectPlayer:
		s.promotePending(p, m.SenderID)
		slog.Info("peer connected", "playerID", m.SenderID)
		s.checkReadyForGame()
		return nil
	default:
		return fmt.Errorf("mesh: unexpected message %T on unidentified connection", msg)
	}
}

// handleNewPlayer implements the master side of admitting a new joiner:
// computing its reachable endpoint, assigning it an id, and announcing it
// to the rest of the mesh.
func (s *Session) handleNewPlayer(p *peer, m protocol.NewPlayer) error {
	reachable, err := reachableEndpoint(p.conn.Conn().RemoteAddr(), m.Endpoint)
	if err != nil {
		return fmt.Errorf("mesh: computing reachable endpoint: %w", err)
	}

	newID := int32(len(s.peers)) + 1
	s.promotePending(p, newID)

	protocol.Write(p.conn, protocol.AcceptPlayer{
		PlayersCount: s.playersCount,
		W:            s.cfg.W,
		H:            s.cfg.H,
		AssignedID:   newID,
		MasterID:     s.localID,
		TurnTime:     uint32(s.cfg.TurnPeriod / time.Millisecond),
		Seed:         s.engineSeed(),
	})

	broadcastMsg := protocol.NewPlayer{Endpoint: reachable, AssignedID: newID, HasID: true}
	for id, other := range s.peers {
		if id == newID {
			continue
		}
		protocol.Write(other.conn, broadcastMsg)
	}

	slog.Info("new player joined", "playerID", newID, "reachable", reachable)
	s.checkReadyForGame()
	return nil
}

func (s *Session) handleFromPeer(p *peer, msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.NewPlayer:
		return s.handleNewPlayerBroadcast(m)
	case protocol.ReadyForGame:
		return s.handleReadyForGame(m)
	case protocol.CommandMsg:
		s.engine.Enqueue(p.playerID, m.Cmd)
		return nil
	case protocol.Pause:
		slog.Info("peer toggled pause", "playerID", p.playerID, "paused", m.Paused)
		return nil
	default:
		return fmt.Errorf("mesh: unexpected message %T from player %d", msg, p.playerID)
	}
}

// handleNewPlayerBroadcast implements the non-master, non-joiner side of a
// new player joining: dial the newly announced peer and introduce
// ourselves.
func (s *Session) handleNewPlayerBroadcast(m protocol.NewPlayer) error {
	if !m.HasID {
		return fmt.Errorf("mesh: NewPlayer broadcast missing assigned id")
	}
	conn, err := net.Dial("tcp", m.Endpoint)
	if err != nil {
		return fmt.Errorf("mesh: dialing new peer %s: %w", m.Endpoint, err)
	}
	p := &peer{conn: transport.NewFramedConn(conn), playerID: m.AssignedID}
	s.peers[m.AssignedID] = p
	s.engine.AddPlayer(m.AssignedID)
	protocol.Write(p.conn, protocol.ConnectPlayer{SenderID: s.localID})

	slog.Info("connected to new peer", "playerID", m.AssignedID, "endpoint", m.Endpoint)
	s.checkReadyForGame()
	return nil
}

func (s *Session) handleReadyForGame(m protocol.ReadyForGame) error {
	if s.started {
		return nil
	}
	if s.IsMaster() {
		s.readyPlayers++
		s.maybeStartAsMaster()
		return nil
	}
	s.readyPlayers = m.ReadyPlayers
	s.startGame()
	return nil
}

// engineSeed exposes the seed the lockstep engine was constructed with,
// for re-announcing it to new joiners.
func (s *Session) engineSeed() uint32 {
	return s.seed
}

// reapDead removes any connection the selector flagged as errored,
// running the peer-departure and master-handoff logic.
func (s *Session) reapDead() {
	for id, p := range s.peers {
		if p.conn.Err() == nil {
			continue
		}
		delete(s.peers, id)
		s.engine.RemovePlayer(id)
		wasMaster := s.masterPeer == p
		slog.Warn("peer departed", "playerID", id, "wasMaster", wasMaster)
		if !s.started {
			s.Destroy()
			return
		}
		if wasMaster {
			s.electMaster()
		}
	}
	for _, p := range append([]*peer(nil), s.pending...) {
		if p.conn.Err() != nil {
			s.removePending(p)
		}
	}
}

// electMaster elects a new master: it is the connection
// whose player id is smallest among those remaining; if that id is the
// local peer's own, the local peer becomes master.
func (s *Session) electMaster() {
	smallest := s.localID
	for id := range s.peers {
		if id < smallest {
			smallest = id
		}
	}
	if smallest == s.localID {
		s.masterPeer = nil
		slog.Info("elected self as new master", "localID", s.localID)
		return
	}
	s.masterPeer = s.peers[smallest]
	slog.Info("elected new master", "masterID", smallest)
}
