package command

import (
	"testing"

	"github.com/octolife/octolife/internal/life"
	"github.com/octolife/octolife/internal/wire"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, cmd Command) Command {
	t.Helper()
	w := wire.NewWriter(64)
	Encode(cmd, w)
	got, err := Decode(wire.NewReader(w.Bytes()))
	require.NoError(t, err)
	return got
}

func TestEmptyRoundTrip(t *testing.T) {
	cmd := Empty{TurnStep: 42, Checksum: 0xABCD}
	require.Equal(t, cmd, roundTrip(t, cmd))
}

func TestAddUnitsRoundTrip(t *testing.T) {
	cmd := AddUnits{
		PlayerID: 2,
		Offsets:  []life.Cell{{X: 1, Y: 2}, {X: -3, Y: 4}},
	}
	require.Equal(t, cmd, roundTrip(t, cmd))
}

func TestAddUnitsEmptyOffsets(t *testing.T) {
	cmd := AddUnits{PlayerID: 0, Offsets: []life.Cell{}}
	got := roundTrip(t, cmd).(AddUnits)
	require.Equal(t, int32(0), got.PlayerID)
	require.Empty(t, got.Offsets)
}

func TestAddPresetRoundTrip(t *testing.T) {
	cmd := AddPreset{
		Transform:   life.Matrix3{{1, 0, 5}, {0, 1, -5}, {0, 0, 1}},
		PresetIndex: 3,
		PlayerID:    1,
	}
	require.Equal(t, cmd, roundTrip(t, cmd))
}

func TestComplexRoundTripNested(t *testing.T) {
	cmd := Complex{
		TurnStep: 7,
		Checksum: 123456789,
		Children: []Command{
			AddUnits{PlayerID: 0, Offsets: []life.Cell{{X: 5, Y: 5}}},
			AddPreset{Transform: life.Matrix3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, PresetIndex: 1, PlayerID: 0},
		},
	}
	require.Equal(t, cmd, roundTrip(t, cmd))
}

func TestComplexEmptyChildren(t *testing.T) {
	cmd := Complex{TurnStep: 0, Checksum: 0, Children: nil}
	got := roundTrip(t, cmd).(Complex)
	require.Equal(t, int32(0), got.TurnStep)
	require.Empty(t, got.Children)
}

func TestDecodeUnknownTag(t *testing.T) {
	w := wire.NewWriter(8)
	w.WriteI32(99)
	_, err := Decode(wire.NewReader(w.Bytes()))
	require.Error(t, err)
}

func TestDecodeTruncated(t *testing.T) {
	w := wire.NewWriter(8)
	w.WriteI32(int32(TagAddUnits))
	_, err := Decode(wire.NewReader(w.Bytes()))
	require.Error(t, err)
}
