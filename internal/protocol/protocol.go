// Package protocol implements the message codec: the six protocol
// messages peers exchange over a framed connection (internal/transport).
// The join-protocol logic that acts on them lives in internal/mesh.
package protocol

import (
	"fmt"

	"github.com/octolife/octolife/internal/command"
	"github.com/octolife/octolife/internal/transport"
	"github.com/octolife/octolife/internal/wire"
)

// Tag identifies a message's wire representation.
type Tag int32

const (
	TagNewPlayer     Tag = 0
	TagAcceptPlayer  Tag = 1
	TagConnectPlayer Tag = 2
	TagReadyForGame  Tag = 3
	TagCommand       Tag = 4
	TagPause         Tag = 5
)

// Message is the sum type of everything exchanged between peers.
type Message interface {
	Tag() Tag
	encodeBody(w *wire.Writer)
}

// NewPlayer carries a joining peer's endpoint. A joiner sending NewPlayer
// to the master fills only Endpoint (its own listener address); the
// master's subsequent broadcast to the rest of the mesh additionally sets
// AssignedID and HasID — the same tag, two wire shapes distinguished by
// whether a trailing i32 is present in the frame.
type NewPlayer struct {
	Endpoint   string
	AssignedID int32
	HasID      bool
}

func (NewPlayer) Tag() Tag { return TagNewPlayer }

func (m NewPlayer) encodeBody(w *wire.Writer) {
	w.WriteString(m.Endpoint)
	if m.HasID {
		w.WriteI32(m.AssignedID)
	}
}

// AcceptPlayer is the master's reply admitting a joiner into the game.
type AcceptPlayer struct {
	PlayersCount int32
	W, H         int32
	AssignedID   int32
	MasterID     int32
	TurnTime     uint32
	Seed         uint32
}

func (AcceptPlayer) Tag() Tag { return TagAcceptPlayer }

func (m AcceptPlayer) encodeBody(w *wire.Writer) {
	w.WriteI32(m.PlayersCount)
	w.WriteI32(m.W)
	w.WriteI32(m.H)
	w.WriteI32(m.AssignedID)
	w.WriteI32(m.MasterID)
	w.WriteU32(m.TurnTime)
	w.WriteU32(m.Seed)
}

// ConnectPlayer announces the sender to a peer it has just dialed, and
// triggers a ready re-check on the receiver.
type ConnectPlayer struct {
	SenderID int32
}

func (ConnectPlayer) Tag() Tag { return TagConnectPlayer }

func (m ConnectPlayer) encodeBody(w *wire.Writer) {
	w.WriteI32(m.SenderID)
}

// ReadyForGame reports barrier progress toward starting the game.
type ReadyForGame struct {
	KnownPlayers int32
	PlayersCount int32
	ReadyPlayers int32
}

func (ReadyForGame) Tag() Tag { return TagReadyForGame }

func (m ReadyForGame) encodeBody(w *wire.Writer) {
	w.WriteI32(m.KnownPlayers)
	w.WriteI32(m.PlayersCount)
	w.WriteI32(m.ReadyPlayers)
}

// CommandMsg delivers one player's committed command.
type CommandMsg struct {
	AuthorID int32
	Cmd      command.Command
}

func (CommandMsg) Tag() Tag { return TagCommand }

func (m CommandMsg) encodeBody(w *wire.Writer) {
	w.WriteI32(m.AuthorID)
	command.Encode(m.Cmd, w)
}

// Pause toggles the sender's pause flag.
type Pause struct {
	Paused bool
}

func (Pause) Tag() Tag { return TagPause }

func (m Pause) encodeBody(w *wire.Writer) {
	w.WriteBool(m.Paused)
}

// Write frames msg (u32 length, i32 tag, body) and queues it for send on
// conn. It does not flush the connection.
func Write(conn *transport.FramedConn, msg Message) {
	w := wire.NewWriter(32)
	w.WriteU32(0) // length placeholder, patched below
	w.WriteI32(int32(msg.Tag()))
	msg.encodeBody(w)
	w.PatchU32At(0, uint32(w.Len()))
	conn.QueueFrame(w.Bytes())
}

// Decode parses one message from frame, a byte slice starting at the i32
// type tag (i.e. with the u32 length header already stripped, as returned
// by transport.FramedConn.PopFrame).
func Decode(frame []byte) (Message, error) {
	r := wire.NewReader(frame)
	tagVal, err := r.ReadI32()
	if err != nil {
		return nil, fmt.Errorf("protocol: reading tag: %w", err)
	}

	switch Tag(tagVal) {
	case TagNewPlayer:
		endpoint, err := r.ReadString()
		if err != nil {
			return nil, fmt.Errorf("protocol: newPlayer endpoint: %w", err)
		}
		m := NewPlayer{Endpoint: endpoint}
		if r.Remaining() > 0 {
			id, err := r.ReadI32()
			if err != nil {
				return nil, fmt.Errorf("protocol: newPlayer assignedID: %w", err)
			}
			m.AssignedID = id
			m.HasID = true
		}
		return m, nil

	case TagAcceptPlayer:
		var m AcceptPlayer
		var err error
		if m.PlayersCount, err = r.ReadI32(); err != nil {
			return nil, fmt.Errorf("protocol: acceptPlayer playersCount: %w", err)
		}
		if m.W, err = r.ReadI32(); err != nil {
			return nil, fmt.Errorf("protocol: acceptPlayer w: %w", err)
		}
		if m.H, err = r.ReadI32(); err != nil {
			return nil, fmt.Errorf("protocol: acceptPlayer h: %w", err)
		}
		if m.AssignedID, err = r.ReadI32(); err != nil {
			return nil, fmt.Errorf("protocol: acceptPlayer assignedID: %w", err)
		}
		if m.MasterID, err = r.ReadI32(); err != nil {
			return nil, fmt.Errorf("protocol: acceptPlayer masterID: %w", err)
		}
		if m.TurnTime, err = r.ReadU32(); err != nil {
			return nil, fmt.Errorf("protocol: acceptPlayer turnTime: %w", err)
		}
		if m.Seed, err = r.ReadU32(); err != nil {
			return nil, fmt.Errorf("protocol: acceptPlayer seed: %w", err)
		}
		return m, nil

	case TagConnectPlayer:
		senderID, err := r.ReadI32()
		if err != nil {
			return nil, fmt.Errorf("protocol: connectPlayer senderID: %w", err)
		}
		return ConnectPlayer{SenderID: senderID}, nil

	case TagReadyForGame:
		var m ReadyForGame
		var err error
		if m.KnownPlayers, err = r.ReadI32(); err != nil {
			return nil, fmt.Errorf("protocol: readyForGame knownPlayers: %w", err)
		}
		if m.PlayersCount, err = r.ReadI32(); err != nil {
			return nil, fmt.Errorf("protocol: readyForGame playersCount: %w", err)
		}
		if m.ReadyPlayers, err = r.ReadI32(); err != nil {
			return nil, fmt.Errorf("protocol: readyForGame readyPlayers: %w", err)
		}
		return m, nil

	case TagCommand:
		authorID, err := r.ReadI32()
		if err != nil {
			return nil, fmt.Errorf("protocol: command authorID: %w", err)
		}
		cmd, err := command.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("protocol: command body: %w", err)
		}
		return CommandMsg{AuthorID: authorID, Cmd: cmd}, nil

	case TagPause:
		paused, err := r.ReadBool()
		if err != nil {
			return nil, fmt.Errorf("protocol: pause flag: %w", err)
		}
		return Pause{Paused: paused}, nil

	default:
		return nil, fmt.Errorf("protocol: unknown tag %d", tagVal)
	}
}
