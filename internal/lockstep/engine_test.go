package lockstep

import (
	"testing"

	"github.com/octolife/octolife/internal/command"
	"github.com/octolife/octolife/internal/life"
	"github.com/octolife/octolife/internal/pattern"
	"github.com/stretchr/testify/require"
)

func blinkerSet() *pattern.Set {
	return pattern.NewSet([]pattern.Pattern{
		{Name: "blinker", Offsets: []life.Cell{{X: -1, Y: 0}, {X: 0, Y: 0}, {X: 1, Y: 0}}},
	})
}

func TestStartGamePrefillsFutureTurns(t *testing.T) {
	w := life.NewWorld(16, 16)
	e := New(w, blinkerSet(), 2, 1, []int32{1, 2}, 42)
	e.StartGame()

	require.Equal(t, FutureTurns, e.QueueFor(1).Len())
	require.Equal(t, FutureTurns, e.QueueFor(2).Len())
	require.False(t, e.IsPaused())
}

func TestIsPausedWhenRemoteQueueEmpty(t *testing.T) {
	w := life.NewWorld(16, 16)
	e := New(w, blinkerSet(), 2, 1, []int32{1, 2}, 42)
	// Only fill the local queue; remote player 2 has nothing queued yet.
	e.QueueFor(1).Push(command.Empty{})
	require.True(t, e.IsPaused())
}

func TestTickNoopBeforeStartGame(t *testing.T) {
	w := life.NewWorld(16, 16)
	e := New(w, blinkerSet(), 2, 1, []int32{1, 2}, 42)
	committed, err := e.Tick()
	require.NoError(t, err)
	require.Nil(t, committed)
}

// TestLockstepAdvancesIdenticallyAcrossTwoEngines drives two independently
// constructed engines, simulating the local player of each, and asserts
// their worlds and committed checksums agree turn over turn — the core
// guarantee the sync check exists to protect.
func TestLockstepAdvancesIdenticallyAcrossTwoEngines(t *testing.T) {
	w1 := life.NewWorld(16, 16)
	w1.Emplace(0, life.Cell{X: 4, Y: 4})
	w1.Emplace(0, life.Cell{X: 5, Y: 4})
	w1.Emplace(0, life.Cell{X: 6, Y: 4})

	w2 := life.NewWorld(16, 16)
	w2.Emplace(0, life.Cell{X: 4, Y: 4})
	w2.Emplace(0, life.Cell{X: 5, Y: 4})
	w2.Emplace(0, life.Cell{X: 6, Y: 4})

	e1 := New(w1, blinkerSet(), 2, 1, []int32{1, 2}, 7)
	e2 := New(w2, blinkerSet(), 2, 2, []int32{1, 2}, 7)
	e1.StartGame()
	e2.StartGame()

	for turn := 0; turn < FutureTurns; turn++ {
		c1, err := e1.Tick()
		require.NoError(t, err)
		require.NotNil(t, c1)
		c2, err := e2.Tick()
		require.NoError(t, err)
		require.NotNil(t, c2)

		// Cross-deliver each engine's own commit to its peer, as mesh would.
		e1.Enqueue(2, *c2)
		e2.Enqueue(1, *c1)

		require.Equal(t, e1.World().Checksum(), e2.World().Checksum())
		require.Equal(t, c1.Checksum, c2.Checksum)
	}
}

func TestTurnDetectsDivergence(t *testing.T) {
	w := life.NewWorld(16, 16)
	e := New(w, blinkerSet(), 2, 1, []int32{1, 2}, 7)
	e.StartGame()

	// Corrupt player 2's front entry so its checksum disagrees with player 1's.
	bad, _ := e.QueueFor(2).Pop()
	badEmpty := bad.(command.Empty)
	badEmpty.Checksum = 999
	e.QueueFor(2).items = append([]command.Command{badEmpty}, e.QueueFor(2).items...)

	_, err := e.Tick()
	require.ErrorIs(t, err, ErrDivergence)
}

func TestAddUnitRejectedNearEnemy(t *testing.T) {
	w := life.NewWorld(16, 16)
	w.Emplace(2, life.Cell{X: 5, Y: 5})
	e := New(w, blinkerSet(), 3, 1, []int32{1, 2}, 1)

	ok := e.AddUnit(life.Cell{X: 5, Y: 6})
	require.False(t, ok)
	ok = e.AddUnit(life.Cell{X: 0, Y: 0})
	require.True(t, ok)
}

func TestAddPresetAbortsLocallyWhenAnyCellBlocked(t *testing.T) {
	w := life.NewWorld(16, 16)
	w.Emplace(2, life.Cell{X: 1, Y: 0})
	e := New(w, blinkerSet(), 1, 1, []int32{1, 2}, 1)

	identity := life.Matrix3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	ok := e.AddPreset(identity, 0)
	require.False(t, ok)
	require.Empty(t, e.pendingPresets)
}

func TestAddPresetCommitsOnTurn(t *testing.T) {
	w := life.NewWorld(16, 16)
	e := New(w, blinkerSet(), 1, 1, []int32{1, 2}, 1)
	e.StartGame()

	identity := life.Matrix3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	ok := e.AddPreset(identity, 0)
	require.True(t, ok)

	// The pending preset is bundled into the commit of the very next turn,
	// even while the prefilled Empty entries are still being applied.
	e.Enqueue(2, command.Empty{})
	committed, err := e.Tick()
	require.NoError(t, err)
	require.NotNil(t, committed)
	require.Len(t, committed.Children, 1)
	require.Equal(t, command.TagAddPreset, committed.Children[0].Tag())

	// Drain the remaining prefilled Empty turns.
	for i := 0; i < FutureTurns-1; i++ {
		e.Enqueue(2, command.Empty{})
		_, err := e.Tick()
		require.NoError(t, err)
	}
}

func TestAddPlayerAndRemovePlayer(t *testing.T) {
	w := life.NewWorld(16, 16)
	e := New(w, blinkerSet(), 2, 1, nil, 1)
	e.AddPlayer(3)
	require.NotNil(t, e.QueueFor(3))
	require.Equal(t, []int32{1, 3}, e.playerIDs)

	e.RemovePlayer(3)
	require.Nil(t, e.QueueFor(3))
	require.Equal(t, []int32{1}, e.playerIDs)
}
