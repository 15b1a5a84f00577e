// Package stats contains statistics calculations and reporting over the
// local game journal.
package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/verte-zerg/learnsignals/internal/model"
)

const sparkChars = " .:-=+*#%@"

// GameMetrics returns accuracy in [0,1] and the mean response time of a game.
func GameMetrics(g model.GameAggregate) (accuracy, meanResponse float64) {
	total := g.Correct + g.Incorrect
	if total > 0 {
		accuracy = float64(g.Correct) / float64(total)
	}
	return accuracy, g.MeanResponse
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		n := i + 1
		if i >= window {
			sum -= values[i-window]
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	lo, hi := minMax(values)
	if math.Abs(hi-lo) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	top := float64(len(sparkChars) - 1)
	for _, v := range values {
		idx := int(math.Round((v - lo) / (hi - lo) * top))
		b.WriteByte(sparkChars[max(0, min(idx, len(sparkChars)-1))])
	}
	return b.String()
}

// RenderSummary prints totals over the selected games.
func RenderSummary(w io.Writer, games []model.GameAggregate) error {
	if len(games) == 0 {
		_, err := fmt.Fprintln(w, "No games found.")
		return err
	}
	var totalAcc, totalResp, bestAcc float64
	completed, zones := 0, 0
	tiers := [3]int{}
	accs := make([]float64, len(games))
	for i, g := range games {
		acc, resp := GameMetrics(g)
		accs[i] = acc
		totalAcc += acc
		totalResp += resp
		bestAcc = math.Max(bestAcc, acc)
		zones += g.ZonesCompleted
		if g.Completed {
			completed++
		}
		if g.FinalTier.Valid() {
			tiers[g.FinalTier]++
		}
	}
	n := float64(len(games))
	lines := []string{
		"Summary",
		fmt.Sprintf("Games: %d (%d completed)", len(games), completed),
		fmt.Sprintf("Zones completed: %d", zones),
		fmt.Sprintf("Avg Accuracy: %.2f%%", totalAcc/n*100),
		fmt.Sprintf("Best Accuracy: %.2f%%", bestAcc*100),
		fmt.Sprintf("Avg Response: %.2fs", totalResp/n),
		fmt.Sprintf("Final tier: low %d, medium %d, high %d", tiers[model.TierLow], tiers[model.TierMedium], tiers[model.TierHigh]),
		fmt.Sprintf("Trend: %s", Sparkline(accs)),
		"",
	}
	return writeLines(w, lines)
}

// RenderCurves prints learning curves sized to a given total width.
func RenderCurves(w io.Writer, games []model.GameAggregate, window, totalWidth, height int, useColor bool) error {
	if len(games) == 0 {
		return nil
	}
	accs := make([]float64, len(games))
	resps := make([]float64, len(games))
	tiers := make([]float64, len(games))
	for i, g := range games {
		acc, resp := GameMetrics(g)
		accs[i] = acc * 100
		resps[i] = resp
		tiers[i] = float64(g.FinalTier)
	}
	return Plot(w, "Learning Curves", []Series{
		{Name: "Accuracy", Values: MovingAverage(accs, window)},
		{Name: "Response", Values: MovingAverage(resps, window)},
		{Name: "Tier", Values: tiers},
	}, plotWidth(totalWidth), height, useColor)
}

// RenderSignTable prints per-sign aggregates, weakest first.
func RenderSignTable(w io.Writer, aggs []model.SignAggregate) error {
	if len(aggs) == 0 {
		_, err := fmt.Fprintln(w, "No sign stats found.")
		return err
	}
	rows := sortedByAccuracy(aggs)
	table := make([][]string, 0, len(rows))
	for _, a := range rows {
		table = append(table, []string{
			a.Sign,
			fmt.Sprintf("%.2f%%", a.Accuracy()*100),
			fmt.Sprintf("%.2f", a.MeanResponse()),
			fmt.Sprintf("%d", a.Correct),
			fmt.Sprintf("%d", a.Incorrect),
			fmt.Sprintf("%d", a.Timeouts),
		})
	}
	lines := append([]string{"Per-Sign (Windowed)"}, formatTable(
		[]string{"Sign", "Accuracy", "Avg Response (s)", "Correct", "Incorrect", "Timeouts"},
		table,
		map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true},
	)...)
	return writeLines(w, append(lines, ""))
}

// RenderSignCurves prints accuracy and response curves for each sign.
func RenderSignCurves(w io.Writer, games []model.GameAggregate, perGame map[string]map[string]model.SignAggregate, signs []string, window, totalWidth, height int, useColor bool) error {
	if len(signs) == 0 || len(games) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "Per-Sign Curves"); err != nil {
		return err
	}
	for _, sign := range signs {
		acc := make([]float64, len(games))
		resp := make([]float64, len(games))
		for i, g := range games {
			agg, ok := perGame[g.GameID][sign]
			if !ok {
				continue
			}
			if agg.Correct+agg.Incorrect > 0 {
				acc[i] = agg.Accuracy() * 100
			}
			resp[i] = agg.MeanResponse()
		}
		if err := Plot(w, "Sign "+sign, []Series{
			{Name: "Accuracy", Values: MovingAverage(acc, window)},
			{Name: "Response", Values: MovingAverage(resp, window)},
		}, plotWidth(totalWidth), height, useColor); err != nil {
			return err
		}
	}
	return nil
}

func plotWidth(total int) int {
	if total <= 0 {
		return 0
	}
	return PlotWidthFor(total)
}

func sortedByAccuracy(aggs []model.SignAggregate) []model.SignAggregate {
	out := make([]model.SignAggregate, len(aggs))
	copy(out, aggs)
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].Accuracy(), out[j].Accuracy()
		if ai == aj {
			return out[i].Sign < out[j].Sign
		}
		return ai < aj
	})
	return out
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
