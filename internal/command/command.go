// Package command implements the tagged-union command codec: the four
// kinds of per-turn command exchanged by the peer mesh (internal/mesh)
// and applied by the lockstep engine (internal/lockstep).
package command

import (
	"fmt"

	"github.com/octolife/octolife/internal/life"
	"github.com/octolife/octolife/internal/wire"
)

// Tag identifies a command's wire representation.
type Tag int32

const (
	TagEmpty     Tag = 0
	TagAddUnits  Tag = 1
	TagAddPreset Tag = 2
	TagComplex   Tag = 3
)

// Command is the sum type of everything that can appear in a player's
// command queue.
type Command interface {
	Tag() Tag
	encodeBody(w *wire.Writer)
}

// Empty carries only a turn index and checksum. It is the placeholder the
// mesh pre-fills every queue with at game start and
// is never transmitted on its own — only Complex commands cross the wire.
type Empty struct {
	TurnStep int32
	Checksum uint64
}

func (Empty) Tag() Tag { return TagEmpty }

func (e Empty) encodeBody(w *wire.Writer) {
	w.WriteI32(e.TurnStep)
	w.WriteU64(e.Checksum)
}

// AddUnits adds units at absolute positions under player_id.
type AddUnits struct {
	PlayerID int32
	Offsets  []life.Cell
}

func (AddUnits) Tag() Tag { return TagAddUnits }

func (a AddUnits) encodeBody(w *wire.Writer) {
	w.WriteI32(a.PlayerID)
	w.WriteU32(uint32(len(a.Offsets)))
	for _, c := range a.Offsets {
		w.WriteI32(c.X)
		w.WriteI32(c.Y)
	}
}

// AddPreset places pattern PresetIndex after applying an affine integer
// transform, under PlayerID.
type AddPreset struct {
	Transform   life.Matrix3
	PresetIndex int32
	PlayerID    int32
}

func (AddPreset) Tag() Tag { return TagAddPreset }

func (p AddPreset) encodeBody(w *wire.Writer) {
	for _, row := range p.Transform {
		for _, v := range row {
			w.WriteI32(v)
		}
	}
	w.WriteI32(p.PresetIndex)
	w.WriteI32(p.PlayerID)
}

// Complex is the only command kind ever transmitted at turn commit time.
// It wraps any number of children plus the turn index and world checksum
// the lockstep engine uses for divergence detection.
type Complex struct {
	TurnStep int32
	Checksum uint64
	Children []Command
}

func (Complex) Tag() Tag { return TagComplex }

func (c Complex) encodeBody(w *wire.Writer) {
	w.WriteI32(c.TurnStep)
	w.WriteU64(c.Checksum)
	w.WriteU32(uint32(len(c.Children)))
	for _, child := range c.Children {
		Encode(child, w)
	}
}

// Encode writes cmd's tag followed by its body.
func Encode(cmd Command, w *wire.Writer) {
	w.WriteI32(int32(cmd.Tag()))
	cmd.encodeBody(w)
}

// Decode reads one tagged command from r.
func Decode(r *wire.Reader) (Command, error) {
	tagVal, err := r.ReadI32()
	if err != nil {
		return nil, fmt.Errorf("command: reading tag: %w", err)
	}
	switch Tag(tagVal) {
	case TagEmpty:
		turnStep, err := r.ReadI32()
		if err != nil {
			return nil, fmt.Errorf("command: empty turnStep: %w", err)
		}
		checksum, err := r.ReadU64()
		if err != nil {
			return nil, fmt.Errorf("command: empty checksum: %w", err)
		}
		return Empty{TurnStep: turnStep, Checksum: checksum}, nil

	case TagAddUnits:
		playerID, err := r.ReadI32()
		if err != nil {
			return nil, fmt.Errorf("command: addUnits playerID: %w", err)
		}
		count, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("command: addUnits count: %w", err)
		}
		offsets := make([]life.Cell, 0, count)
		for i := uint32(0); i < count; i++ {
			x, err := r.ReadI32()
			if err != nil {
				return nil, fmt.Errorf("command: addUnits offset x: %w", err)
			}
			y, err := r.ReadI32()
			if err != nil {
				return nil, fmt.Errorf("command: addUnits offset y: %w", err)
			}
			offsets = append(offsets, life.Cell{X: x, Y: y})
		}
		return AddUnits{PlayerID: playerID, Offsets: offsets}, nil

	case TagAddPreset:
		var m life.Matrix3
		for row := 0; row < 3; row++ {
			for col := 0; col < 3; col++ {
				v, err := r.ReadI32()
				if err != nil {
					return nil, fmt.Errorf("command: addPreset matrix[%d][%d]: %w", row, col, err)
				}
				m[row][col] = v
			}
		}
		presetIndex, err := r.ReadI32()
		if err != nil {
			return nil, fmt.Errorf("command: addPreset presetIndex: %w", err)
		}
		playerID, err := r.ReadI32()
		if err != nil {
			return nil, fmt.Errorf("command: addPreset playerID: %w", err)
		}
		return AddPreset{Transform: m, PresetIndex: presetIndex, PlayerID: playerID}, nil

	case TagComplex:
		turnStep, err := r.ReadI32()
		if err != nil {
			return nil, fmt.Errorf("command: complex turnStep: %w", err)
		}
		checksum, err := r.ReadU64()
		if err != nil {
			return nil, fmt.Errorf("command: complex checksum: %w", err)
		}
		count, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("command: complex count: %w", err)
		}
		children := make([]Command, 0, count)
		for i := uint32(0); i < count; i++ {
			child, err := Decode(r)
			if err != nil {
				return nil, fmt.Errorf("command: complex child %d: %w", i, err)
			}
			children = append(children, child)
		}
		return Complex{TurnStep: turnStep, Checksum: checksum, Children: children}, nil

	default:
		return nil, fmt.Errorf("command: unknown tag %d", tagVal)
	}
}
