// Package lockstep implements the per-turn algorithm every peer runs in
// identical order: sync check, apply, generation step, commit. It owns
// the per-player command queues and the local player's
// not-yet-committed pending units/presets.
package lockstep

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/octolife/octolife/internal/command"
	"github.com/octolife/octolife/internal/life"
	"github.com/octolife/octolife/internal/pattern"
	"github.com/octolife/octolife/internal/rng"
)

// FutureTurns is the number of Empty commands pre-filled into every queue
// at game start, so that network latency up to this many turns does not
// stall the simulation.
const FutureTurns = 3

var (
	// ErrQueueEmpty is a programmer error: Turn was called while some
	// queue was empty. Callers must check IsPaused first.
	ErrQueueEmpty = errors.New("lockstep: queue empty on turn boundary")
	// ErrDivergence is returned once two peers' queues disagree on the
	// next turn's turnStep or checksum. It is fatal at the game level.
	ErrDivergence = errors.New("lockstep: divergence detected")
)

// Engine is the lockstep turn engine for one peer.
type Engine struct {
	world           *life.World
	patterns        *pattern.Set
	distanceToEnemy int32

	localID   int32
	playerIDs []int32 // ascending; applied and synced in this order
	queues    map[int32]*Queue

	rng *rng.LCG

	started bool
	paused  bool

	missingEdge    bool
	pendingUnits   []life.Cell
	pendingPresets []command.Command
}

// New creates an Engine for localID among playerIDs (which need not
// already include localID; New adds it if missing).
func New(world *life.World, patterns *pattern.Set, distanceToEnemy int32, localID int32, playerIDs []int32, seed uint32) *Engine {
	ids := append([]int32(nil), playerIDs...)
	found := false
	for _, id := range ids {
		if id == localID {
			found = true
			break
		}
	}
	if !found {
		ids = append(ids, localID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	queues := make(map[int32]*Queue, len(ids))
	for _, id := range ids {
		queues[id] = &Queue{}
	}

	return &Engine{
		world:           world,
		patterns:        patterns,
		distanceToEnemy: distanceToEnemy,
		localID:         localID,
		playerIDs:       ids,
		queues:          queues,
		rng:             rng.New(seed),
	}
}

// World returns the current world state, read-only.
func (e *Engine) World() *life.World {
	return e.world
}

// AddPlayer registers a newly joined remote player's queue, in ascending
// player-id iteration order: commands are applied in ascending player-id
// order, identically on every peer.
func (e *Engine) AddPlayer(playerID int32) {
	if _, exists := e.queues[playerID]; exists {
		return
	}
	e.queues[playerID] = &Queue{}
	e.playerIDs = append(e.playerIDs, playerID)
	sort.Slice(e.playerIDs, func(i, j int) bool { return e.playerIDs[i] < e.playerIDs[j] })
}

// RemovePlayer drops a departed player's queue.
func (e *Engine) RemovePlayer(playerID int32) {
	delete(e.queues, playerID)
	for i, id := range e.playerIDs {
		if id == playerID {
			e.playerIDs = append(e.playerIDs[:i], e.playerIDs[i+1:]...)
			break
		}
	}
}

// StartGame pre-fills every queue with FutureTurns Empty commands and
// marks the game started. Every peer calls this with identical state, so
// the prefilled entries trivially satisfy the sync check for the first
// FutureTurns turns.
func (e *Engine) StartGame() {
	empty := command.Empty{TurnStep: 0, Checksum: 0}
	for _, q := range e.queues {
		for i := 0; i < FutureTurns; i++ {
			q.Push(empty)
		}
	}
	e.started = true
}

// Started reports whether StartGame has run.
func (e *Engine) Started() bool {
	return e.started
}

// QueueFor returns the named player's queue, or nil if unknown.
func (e *Engine) QueueFor(playerID int32) *Queue {
	return e.queues[playerID]
}

// Enqueue appends cmd to playerID's queue — the entry point mesh uses to
// deposit both incoming CommandMsg payloads and the local player's own
// committed Complex.
func (e *Engine) Enqueue(playerID int32, cmd command.Command) {
	q, ok := e.queues[playerID]
	if !ok {
		return
	}
	q.Push(cmd)
}

// SetPaused sets the explicit pause flag.
func (e *Engine) SetPaused(p bool) {
	e.paused = p
}

func (e *Engine) anyRemoteEmpty() bool {
	for _, id := range e.playerIDs {
		if id == e.localID {
			continue
		}
		if e.queues[id].Len() == 0 {
			return true
		}
	}
	return false
}

// IsPaused is true iff the explicit pause flag is set or any remote
// queue is currently empty (we have not yet received that peer's next
// command).
func (e *Engine) IsPaused() bool {
	return e.paused || e.anyRemoteEmpty()
}

// AddUnit validates the enemy-proximity placement rule for
// the local player and, if it passes, accumulates c into the pending
// AddUnits this engine will commit at the end of the current turn. It
// reports whether the unit was accepted.
func (e *Engine) AddUnit(c life.Cell) bool {
	if !e.world.CanInsert(int8(e.localID), c, e.distanceToEnemy) {
		return false
	}
	e.pendingUnits = append(e.pendingUnits, c)
	return true
}

// AddPreset verifies CanInsert for every cell the transformed pattern
// would occupy and, if all pass, queues an AddPreset command for commit.
// It aborts locally (returns false) on the first failing cell; the check
// is never re-run on receivers — any disagreement is caught by checksum.
func (e *Engine) AddPreset(transform life.Matrix3, presetIndex int32) bool {
	if presetIndex < 0 || int(presetIndex) >= e.patterns.Count() {
		return false
	}
	for _, off := range e.patterns.GetUnits(int(presetIndex)) {
		cell := e.world.Wrap(transform.Apply(off))
		if !e.world.CanInsert(int8(e.localID), cell, e.distanceToEnemy) {
			return false
		}
	}
	e.pendingPresets = append(e.pendingPresets, command.AddPreset{
		Transform:   transform,
		PresetIndex: presetIndex,
		PlayerID:    e.localID,
	})
	return true
}

// Tick runs at most one Turn if the game has started and is not paused.
// It returns the freshly committed Complex command to broadcast, or nil
// if no turn executed this tick.
func (e *Engine) Tick() (*command.Complex, error) {
	if !e.started {
		return nil, nil
	}

	missing := e.anyRemoteEmpty()
	if missing != e.missingEdge {
		if missing {
			slog.Warn("lockstep paused: waiting on a peer's command")
		} else {
			slog.Info("lockstep resumed: all queues non-empty")
		}
		e.missingEdge = missing
	}

	if e.IsPaused() {
		return nil, nil
	}
	return e.turn()
}

func turnChecksumOf(cmd command.Command) (int32, uint64, error) {
	switch c := cmd.(type) {
	case command.Empty:
		return c.TurnStep, c.Checksum, nil
	case command.Complex:
		return c.TurnStep, c.Checksum, nil
	default:
		return 0, 0, fmt.Errorf("lockstep: unexpected command kind %T at queue front", cmd)
	}
}

func (e *Engine) turn() (*command.Complex, error) {
	// Step 1: sync check across every queue's front entry.
	fronts := make(map[int32]command.Command, len(e.playerIDs))
	for _, id := range e.playerIDs {
		front, ok := e.queues[id].Front()
		if !ok {
			return nil, ErrQueueEmpty
		}
		fronts[id] = front
	}

	var wantTurn int32
	var wantChecksum uint64
	for i, id := range e.playerIDs {
		t, c, err := turnChecksumOf(fronts[id])
		if err != nil {
			return nil, err
		}
		if i == 0 {
			wantTurn, wantChecksum = t, c
			continue
		}
		if t != wantTurn || c != wantChecksum {
			slog.Error("divergence detected",
				"player", id, "turnStep", t, "checksum", c,
				"expectedTurnStep", wantTurn, "expectedChecksum", wantChecksum)
			return nil, ErrDivergence
		}
	}

	// Step 2: apply phase, every queue (local included) in ascending id
	// order, so every peer applies the same commands in the same order.
	for _, id := range e.playerIDs {
		cmd, _ := e.queues[id].Pop()
		e.apply(cmd)
	}

	// Step 3: generation step, world replaced wholesale.
	e.world = e.world.Step()

	// Step 4: commit phase.
	committed := e.buildCommit()
	e.queues[e.localID].Push(committed)
	return &committed, nil
}

func (e *Engine) apply(cmd command.Command) {
	switch c := cmd.(type) {
	case command.Empty:
		// placeholder: no world effect
	case command.Complex:
		for _, child := range c.Children {
			e.apply(child)
		}
	case command.AddUnits:
		for _, off := range c.Offsets {
			e.world.Emplace(int8(c.PlayerID), off)
		}
	case command.AddPreset:
		if int(c.PresetIndex) < 0 || int(c.PresetIndex) >= e.patterns.Count() {
			return
		}
		for _, off := range e.patterns.GetUnits(int(c.PresetIndex)) {
			cell := e.world.Wrap(c.Transform.Apply(off))
			e.world.Emplace(int8(c.PlayerID), cell)
		}
	}
}

func (e *Engine) buildCommit() command.Complex {
	var children []command.Command
	if len(e.pendingUnits) > 0 {
		children = append(children, command.AddUnits{PlayerID: e.localID, Offsets: e.pendingUnits})
		e.pendingUnits = nil
	}
	if len(e.pendingPresets) > 0 {
		children = append(children, e.pendingPresets...)
		e.pendingPresets = nil
	}
	return command.Complex{
		TurnStep: e.rng.Next(),
		Checksum: e.world.Checksum(),
		Children: children,
	}
}
