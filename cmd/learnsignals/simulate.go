package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/learnsignals/internal/config"
	"github.com/verte-zerg/learnsignals/internal/game"
	"github.com/verte-zerg/learnsignals/internal/generator"
	"github.com/verte-zerg/learnsignals/internal/logging"
	"github.com/verte-zerg/learnsignals/internal/metrics"
	"github.com/verte-zerg/learnsignals/internal/model"
	"github.com/verte-zerg/learnsignals/internal/store"
)

var (
	simGames    int
	simAccuracy float64
	simSeed     int64
	simSave     bool
)

// maxSimSteps bounds a single simulated game.
const maxSimSteps = 10000

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play headless games with a scripted player",
		Args:  cobra.NoArgs,
		RunE:  runSimulateCmd,
	}
	cmd.Flags().IntVar(&simGames, "games", 1, "number of games to play")
	cmd.Flags().Float64Var(&simAccuracy, "accuracy", 0.8, "probability of a correct answer (0-1)")
	cmd.Flags().Int64Var(&simSeed, "seed", 0, "random seed (0 = time based)")
	cmd.Flags().BoolVar(&simSave, "save", false, "store the games in the local journal")
	return cmd
}

func runSimulateCmd(cmd *cobra.Command, _ []string) error {
	if simGames <= 0 {
		return fmt.Errorf("--games must be greater than 0")
	}
	if simAccuracy < 0 || simAccuracy > 1 {
		return fmt.Errorf("--accuracy must be between 0 and 1")
	}
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	log, err := logging.New(s.LogMode, s.LogFile)
	if err != nil {
		return err
	}
	defer log.Sync()

	seed := simSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	a, err := newApp(s, log, generator.NewSeeded(seed))
	if err != nil {
		return err
	}

	var st *store.Store
	if simSave {
		st, err = store.Open(config.DefaultDBPath())
		if err != nil {
			return fmt.Errorf("failed to open db: %w", err)
		}
		defer func() {
			if cerr := st.Close(); cerr != nil {
				logErrf("failed to close db: %v\n", cerr)
			}
		}()
	}

	ctx := cmd.Context()
	a.connect(ctx, s.Timeouts.Probe)
	p := &player{
		app:      a,
		rng:      rand.New(rand.NewSource(seed)),
		accuracy: simAccuracy,
		wait:     s.Timeouts.Session + s.Timeouts.Write,
	}
	for i := 1; i <= simGames; i++ {
		if st != nil {
			a.game.SetWeakSigns(a.weakSigns(ctx, st))
		}
		stats, signs, err := p.play(ctx)
		if err != nil {
			return fmt.Errorf("game %d: %w", i, err)
		}
		if st != nil {
			if _, err := st.InsertGame(ctx, stats, signs); err != nil {
				return fmt.Errorf("failed to save game %d: %w", i, err)
			}
		}
		if err := writeGameLine(cmd.OutOrStdout(), i, stats, a.game.ZoneCount()); err != nil {
			return err
		}
	}
	return a.shutdown(p.wait)
}

// player answers challenges at a fixed accuracy.
type player struct {
	app      *app
	rng      *rand.Rand
	accuracy float64
	wait     time.Duration
}

// play runs one game to completion on the calling goroutine and returns
// its summary once the remote session has settled.
func (p *player) play(ctx context.Context) (model.GameStats, []model.SignStats, error) {
	g := p.app.game
	if err := p.settle(ctx); err != nil {
		return model.GameStats{}, nil, err
	}
	if err := g.Start(ctx); err != nil {
		return model.GameStats{}, nil, err
	}
	for step := 0; g.State() != game.GameComplete; step++ {
		if step > maxSimSteps {
			return model.GameStats{}, nil, errors.New("game did not finish")
		}
		p.app.queue.Drain()
		if err := p.step(ctx, g); err != nil {
			return model.GameStats{}, nil, err
		}
	}
	if err := p.settle(ctx); err != nil {
		return model.GameStats{}, nil, err
	}
	stats, signs := g.Summary()
	return stats, signs, nil
}

func (p *player) step(ctx context.Context, g *game.Game) error {
	switch g.State() {
	case game.ZoneIntro:
		return g.BeginRound()
	case game.RoundActive:
		return p.answer(ctx, g)
	case game.RoundEvaluating:
		if err := g.Advance(ctx); err != nil {
			return err
		}
		wctx, cancel := context.WithTimeout(ctx, p.wait)
		defer cancel()
		return p.app.queue.RunUntil(wctx, func() bool { return g.State() != game.RoundEnd })
	case game.ZoneComplete:
		return g.NextZone()
	default:
		return fmt.Errorf("unexpected state %s", g.State())
	}
}

func (p *player) answer(ctx context.Context, g *game.Game) error {
	ch, ok := g.Round().Challenge()
	if !ok {
		return errors.New("no challenge in active round")
	}
	limit := g.Round().Config.TimeLimit
	rt := limit * (0.2 + 0.6*p.rng.Float64())
	if p.rng.Float64() < p.accuracy {
		_, err := g.Answer(ctx, ch.Sign.Name, rt)
		return err
	}
	var wrong []string
	for _, c := range ch.Choices {
		if c != ch.Sign.Name {
			wrong = append(wrong, c)
		}
	}
	if len(wrong) == 0 || p.rng.Intn(4) == 0 {
		_, err := g.Timeout(ctx)
		return err
	}
	_, err := g.Answer(ctx, wrong[p.rng.Intn(len(wrong))], rt)
	return err
}

// settle waits until no remote session is being created or finalized.
func (p *player) settle(ctx context.Context) error {
	svc := p.app.svc
	if svc == nil {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, p.wait)
	defer cancel()
	err := p.app.queue.RunUntil(wctx, func() bool {
		st := svc.State()
		return st != metrics.Creating && st != metrics.Finalizing
	})
	if err != nil {
		return fmt.Errorf("metrics session did not settle: %w", err)
	}
	return nil
}

func writeGameLine(w io.Writer, n int, s model.GameStats, zones int) error {
	total := s.Correct + s.Incorrect
	acc := 0.0
	if total > 0 {
		acc = float64(s.Correct) / float64(total) * 100
	}
	session := "-"
	if s.RemoteSession != metrics.NoSessionID {
		session = fmt.Sprintf("%d", s.RemoteSession)
	}
	_, err := fmt.Fprintf(w, "game %d: %d/%d correct (%.0f%%), zones %d/%d, final tier %s, mean response %.2fs, session %s\n",
		n, s.Correct, total, acc, s.ZonesCompleted, zones, s.FinalTier, s.MeanResponse, session)
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
