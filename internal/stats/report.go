package stats

import (
	"context"
	"io"

	"github.com/verte-zerg/learnsignals/internal/model"
)

// Source is the part of the journal the report reads.
type Source interface {
	ListGames(ctx context.Context, cfg model.StatsConfig) ([]model.GameAggregate, error)
	ListSignAggregatesForGames(ctx context.Context, gameIDs []string) ([]model.SignAggregate, error)
	ListSignStatsForGames(ctx context.Context, gameIDs, signs []string) (map[string]map[string]model.SignAggregate, error)
}

// Report contains precomputed data for stats rendering.
type Report struct {
	Games          []model.GameAggregate
	WindowGameIDs  []string
	SignAggsAll    []model.SignAggregate
	SignAggsWindow []model.SignAggregate
}

// BuildReport loads and prepares data for stats rendering.
func BuildReport(ctx context.Context, src Source, cfg model.StatsConfig) (Report, error) {
	games, err := src.ListGames(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	if cfg.Last > 0 && len(games) > cfg.Last {
		games = games[len(games)-cfg.Last:]
	}
	windowIDs := gameIDs(games)
	if cfg.CurveWindow > 0 && len(games) > cfg.CurveWindow {
		windowIDs = gameIDs(games[len(games)-cfg.CurveWindow:])
	}
	all, err := src.ListSignAggregatesForGames(ctx, gameIDs(games))
	if err != nil {
		return Report{}, err
	}
	window, err := src.ListSignAggregatesForGames(ctx, windowIDs)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Games:          games,
		WindowGameIDs:  windowIDs,
		SignAggsAll:    all,
		SignAggsWindow: window,
	}, nil
}

// RenderOptions controls the text report layout.
type RenderOptions struct {
	CurveWindow int
	SignCurves  int
	Width       int
	Height      int
	Color       bool
}

// Render writes the summary, curves and per-sign sections of a report.
// Per-sign curves cover the SignCurves most answered signs.
func Render(ctx context.Context, w io.Writer, src Source, r Report, opts RenderOptions) error {
	if err := RenderSummary(w, r.Games); err != nil {
		return err
	}
	if len(r.Games) == 0 {
		return nil
	}
	if err := RenderCurves(w, r.Games, opts.CurveWindow, opts.Width, opts.Height, opts.Color); err != nil {
		return err
	}
	if err := RenderSignTable(w, r.SignAggsWindow); err != nil {
		return err
	}
	signs := TopSignsByFrequency(r.SignAggsAll, opts.SignCurves)
	if len(signs) == 0 {
		return nil
	}
	perGame, err := src.ListSignStatsForGames(ctx, gameIDs(r.Games), signs)
	if err != nil {
		return err
	}
	return RenderSignCurves(w, r.Games, perGame, signs, opts.CurveWindow, opts.Width, opts.Height, opts.Color)
}

func gameIDs(games []model.GameAggregate) []string {
	ids := make([]string, len(games))
	for i, g := range games {
		ids[i] = g.GameID
	}
	return ids
}
