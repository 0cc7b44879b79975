package protocol

import (
	"net"
	"testing"
	"time"

	"github.com/octolife/octolife/internal/command"
	"github.com/octolife/octolife/internal/life"
	"github.com/octolife/octolife/internal/transport"
	"github.com/stretchr/testify/require"
)

func decodeOnly(t *testing.T, msg Message) Message {
	t.Helper()
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ca := transport.NewFramedConn(a)
	cb := transport.NewFramedConn(b)

	Write(ca, msg)
	go func() { _ = ca.Send() }()

	require.Eventually(t, func() bool {
		_, _ = cb.Recv()
		return cb.CanRead()
	}, time.Second, time.Millisecond)

	frame, ok := cb.PopFrame()
	require.True(t, ok)

	got, err := Decode(frame)
	require.NoError(t, err)
	return got
}

func TestNewPlayerJoinerShape(t *testing.T) {
	msg := NewPlayer{Endpoint: "10.0.0.5:7777"}
	got := decodeOnly(t, msg).(NewPlayer)
	require.Equal(t, "10.0.0.5:7777", got.Endpoint)
	require.False(t, got.HasID)
}

func TestNewPlayerBroadcastShape(t *testing.T) {
	msg := NewPlayer{Endpoint: "10.0.0.5:7777", AssignedID: 3, HasID: true}
	got := decodeOnly(t, msg).(NewPlayer)
	require.Equal(t, "10.0.0.5:7777", got.Endpoint)
	require.True(t, got.HasID)
	require.Equal(t, int32(3), got.AssignedID)
}

func TestAcceptPlayerRoundTrip(t *testing.T) {
	msg := AcceptPlayer{PlayersCount: 4, W: 1000, H: 1000, AssignedID: 2, MasterID: 0, TurnTime: 100, Seed: 987654321}
	require.Equal(t, msg, decodeOnly(t, msg))
}

func TestConnectPlayerRoundTrip(t *testing.T) {
	msg := ConnectPlayer{SenderID: 5}
	require.Equal(t, msg, decodeOnly(t, msg))
}

func TestReadyForGameRoundTrip(t *testing.T) {
	msg := ReadyForGame{KnownPlayers: 1, PlayersCount: 2, ReadyPlayers: 2}
	require.Equal(t, msg, decodeOnly(t, msg))
}

func TestPauseRoundTrip(t *testing.T) {
	require.Equal(t, Pause{Paused: true}, decodeOnly(t, Pause{Paused: true}))
	require.Equal(t, Pause{Paused: false}, decodeOnly(t, Pause{Paused: false}))
}

func TestCommandMsgRoundTrip(t *testing.T) {
	msg := CommandMsg{
		AuthorID: 1,
		Cmd: command.Complex{
			TurnStep: 9,
			Checksum: 42,
			Children: []command.Command{
				command.AddUnits{PlayerID: 1, Offsets: []life.Cell{{X: 5, Y: 5}}},
			},
		},
	}
	require.Equal(t, msg, decodeOnly(t, msg))
}

func TestDecodeUnknownTag(t *testing.T) {
	_, err := Decode([]byte{99, 0, 0, 0})
	require.Error(t, err)
}
