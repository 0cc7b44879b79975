package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/octolife/octolife/internal/config"
	"github.com/octolife/octolife/internal/mesh"
	"github.com/octolife/octolife/internal/presets"
)

const ConfigPath = "config/octolife.yaml"

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run builds the session described by config + CLI args, then supervises
// the signal watcher and the host tick loop under one errgroup.Group —
// the watcher only ever cancels the shared context, and the tick loop is
// the session's sole accessor, so the two goroutines never touch shared
// mutable state directly.
func run(ctx context.Context) error {
	path := ConfigPath
	if p := os.Getenv("OCTOLIFE_CONFIG"); p != "" {
		path = p
	}
	file, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	rt := config.ParseArgs(config.FromFile(file), os.Args[1:])

	slog.Info("octolife starting",
		"field", fmt.Sprintf("%dx%d", rt.FieldW, rt.FieldH),
		"players", rt.Players,
		"turnPeriod", rt.TurnPeriod)

	patternSet, err := presets.LoadDir(rt.PresetsDir)
	if err != nil {
		return fmt.Errorf("loading presets: %w", err)
	}

	cfg := mesh.Config{
		ListenAddr:      rt.ListenAddr,
		ServerAddr:      rt.ServerAddr,
		PlayersCount:    rt.Players,
		W:               rt.FieldW,
		H:               rt.FieldH,
		TurnPeriod:      rt.TurnPeriod,
		DistanceToEnemy: rt.DistanceToEnemy,
		Patterns:        patternSet,
	}

	var session *mesh.Session
	if rt.ServerAddr != "" {
		session, err = mesh.NewJoiner(cfg)
		if err != nil {
			return fmt.Errorf("joining %s: %w", rt.ServerAddr, err)
		}
		if err := session.Init(); err != nil {
			return fmt.Errorf("join handshake: %w", err)
		}
	} else {
		session, err = mesh.NewMaster(cfg)
		if err != nil {
			return fmt.Errorf("hosting: %w", err)
		}
	}
	defer session.Destroy()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			slog.Info("shutting down", "signal", sig)
			cancel()
			return nil
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		defer cancel()
		return hostLoop(gctx, session, rt.TurnPeriod)
	})

	return g.Wait()
}

// hostLoop is the single-threaded cooperative main loop: every
// iteration calls Update (nonblocking socket service) then, once the
// turn period elapses, Turn (one lockstep step). A divergence or
// pre-start peer departure destroys the session and the loop exits
// cleanly with exit code 0, per the host/IO error design: only an
// unrecoverable Update or Turn error is fatal.
func hostLoop(ctx context.Context, s *mesh.Session, turnPeriod time.Duration) error {
	const tickInterval = 16 * time.Millisecond

	var nextTurn time.Time
	if turnPeriod > 0 {
		nextTurn = time.Now().Add(turnPeriod)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := s.Update(); err != nil {
			if s.Destroyed() {
				return nil
			}
			return fmt.Errorf("update: %w", err)
		}

		if turnPeriod > 0 && !time.Now().Before(nextTurn) {
			if err := s.Turn(); err != nil {
				if s.Destroyed() {
					return nil
				}
				return fmt.Errorf("turn: %w", err)
			}
			nextTurn = nextTurn.Add(turnPeriod)
		}

		if s.Destroyed() {
			return nil
		}

		time.Sleep(tickInterval)
	}
}
