// Package config loads the ambient settings a host process needs —
// YAML file defaults plus the positional command-line keyword pairs —
// and produces the Runtime settings the host builds its mesh.Config from.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// File holds the settings a deployment typically fixes once and leaves
// alone; command-line keywords override whatever File supplies.
type File struct {
	FieldW          int32  `yaml:"field_w"`
	FieldH          int32  `yaml:"field_h"`
	WindowW         int32  `yaml:"window_w"`
	WindowH         int32  `yaml:"window_h"`
	ListenAddr      string `yaml:"listen_address"`
	PresetsDir      string `yaml:"presets_dir"`
	TurnRate        int32  `yaml:"turn_rate"`
	Players         int32  `yaml:"players"`
	DistanceToEnemy int32  `yaml:"distance_to_enemy"`
}

// Default returns File populated with sensible out-of-the-box values.
func Default() File {
	return File{
		FieldW:          1000,
		FieldH:          1000,
		WindowW:         800,
		WindowH:         600,
		ListenAddr:      ":9013",
		PresetsDir:      "",
		TurnRate:        10,
		Players:         1,
		DistanceToEnemy: 4,
	}
}

// Load reads path as YAML over the defaults. A missing file is not an
// error: Load returns the defaults unchanged.
func Load(path string) (File, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Runtime is the resolved configuration a host process runs with, after
// folding command-line keywords over a File.
type Runtime struct {
	FieldW, FieldH   int32
	WindowW, WindowH int32
	ListenAddr       string
	ServerAddr       string // non-empty means join, not host
	PresetsDir       string
	TurnPeriod       time.Duration // 0 disables auto-turns
	Players          int32
	DistanceToEnemy  int32
}

// FromFile seeds a Runtime from a File, converting the turn rate to a
// period the same way ParseArgs does for the command-line keyword.
func FromFile(f File) Runtime {
	return Runtime{
		FieldW:          f.FieldW,
		FieldH:          f.FieldH,
		WindowW:         f.WindowW,
		WindowH:         f.WindowH,
		ListenAddr:      f.ListenAddr,
		PresetsDir:      f.PresetsDir,
		TurnPeriod:      turnPeriod(f.TurnRate),
		Players:         clamp32(f.Players, 1, 8),
		DistanceToEnemy: f.DistanceToEnemy,
	}
}

func turnPeriod(ratePerSecond int32) time.Duration {
	if ratePerSecond <= 0 {
		return 0
	}
	rate := clamp32(ratePerSecond, 1, 10)
	return time.Duration(1000/rate) * time.Millisecond
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

// ParseArgs folds the positional keyword-pair command line over base,
// per the external interface table: unrecognized tokens are ignored,
// and a keyword missing its required operand(s) is also ignored rather
// than treated as a fatal error, since the surface is meant to be
// forgiving of a short or malformed invocation.
func ParseArgs(base Runtime, args []string) Runtime {
	rt := base
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "field":
			if w, h, ok := pairInt32(args, i+1); ok {
				rt.FieldW, rt.FieldH = w, h
				i += 2
			}
		case "window":
			if w, h, ok := pairInt32(args, i+1); ok {
				rt.WindowW, rt.WindowH = w, h
				i += 2
			}
		case "server":
			if i+1 < len(args) {
				rt.ServerAddr = args[i+1]
				i++
			}
		case "presets":
			if i+1 < len(args) {
				rt.PresetsDir = args[i+1]
				i++
			}
		case "turn":
			if n, ok := singleInt32(args, i+1); ok {
				rt.TurnPeriod = turnPeriod(n)
				i++
			}
		case "players":
			if n, ok := singleInt32(args, i+1); ok {
				rt.Players = clamp32(n, 1, 8)
				i++
			}
		case "distanceToEnemy":
			if n, ok := singleInt32(args, i+1); ok {
				rt.DistanceToEnemy = n
				i++
			}
		}
	}
	return rt
}

func singleInt32(args []string, i int) (int32, bool) {
	if i >= len(args) {
		return 0, false
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, false
	}
	return int32(n), true
}

func pairInt32(args []string, i int) (int32, int32, bool) {
	w, ok := singleInt32(args, i)
	if !ok {
		return 0, 0, false
	}
	h, ok := singleInt32(args, i+1)
	if !ok {
		return 0, 0, false
	}
	return w, h, true
}
