package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/octolife.yaml")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestFromFileConvertsTurnRateToPeriod(t *testing.T) {
	f := Default()
	f.TurnRate = 10
	rt := FromFile(f)
	require.Equal(t, 100*time.Millisecond, rt.TurnPeriod)
}

func TestFromFileZeroTurnRateDisablesAutoTurns(t *testing.T) {
	f := Default()
	f.TurnRate = 0
	rt := FromFile(f)
	require.Equal(t, time.Duration(0), rt.TurnPeriod)
}

func TestFromFileClampsPlayers(t *testing.T) {
	f := Default()
	f.Players = 99
	rt := FromFile(f)
	require.Equal(t, int32(8), rt.Players)
}

func TestParseArgsOverridesField(t *testing.T) {
	rt := ParseArgs(FromFile(Default()), []string{"field", "200", "300"})
	require.Equal(t, int32(200), rt.FieldW)
	require.Equal(t, int32(300), rt.FieldH)
}

func TestParseArgsServerImpliesJoiner(t *testing.T) {
	rt := ParseArgs(FromFile(Default()), []string{"server", "10.0.0.5:9013"})
	require.Equal(t, "10.0.0.5:9013", rt.ServerAddr)
}

func TestParseArgsClampsTurnRate(t *testing.T) {
	rt := ParseArgs(FromFile(Default()), []string{"turn", "99"})
	require.Equal(t, 100*time.Millisecond, rt.TurnPeriod)
}

func TestParseArgsClampsPlayers(t *testing.T) {
	rt := ParseArgs(FromFile(Default()), []string{"players", "0"})
	require.Equal(t, int32(1), rt.Players)
}

func TestParseArgsIgnoresUnknownTokens(t *testing.T) {
	base := FromFile(Default())
	rt := ParseArgs(base, []string{"bogus", "token", "field", "42", "42"})
	require.Equal(t, int32(42), rt.FieldW)
}

func TestParseArgsIgnoresTruncatedPair(t *testing.T) {
	base := FromFile(Default())
	rt := ParseArgs(base, []string{"field", "42"})
	require.Equal(t, base.FieldW, rt.FieldW)
}

func TestParseArgsDistanceToEnemy(t *testing.T) {
	rt := ParseArgs(FromFile(Default()), []string{"distanceToEnemy", "7"})
	require.Equal(t, int32(7), rt.DistanceToEnemy)
}
