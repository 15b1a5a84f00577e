package stats

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/learnsignals/internal/model"
	"github.com/verte-zerg/learnsignals/internal/store"
)

func seed(t *testing.T) (*store.Store, []string) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		start := time.Unix(0, 0).Add(time.Duration(i) * time.Hour)
		id, err := st.InsertGame(ctx, model.GameStats{
			StartedAt:      start,
			EndedAt:        start.Add(5 * time.Minute),
			Student:        1,
			RemoteSession:  -1,
			Correct:        8,
			Incorrect:      2,
			MeanResponse:   3,
			ZonesCompleted: 1,
			FinalTier:      model.TierMedium,
		}, []model.SignStats{
			{Sign: "Pare", Correct: 5, ResponseSum: 10, ResponseSeen: 5},
			{Sign: "Curva", Correct: 3, Incorrect: 2, Timeouts: 1, ResponseSum: 20, ResponseSeen: 5},
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return st, ids
}

func TestBuildReport(t *testing.T) {
	st, ids := seed(t)
	report, err := BuildReport(context.Background(), st, model.StatsConfig{Last: 2, CurveWindow: 1})
	require.NoError(t, err)

	require.Len(t, report.Games, 2)
	assert.Equal(t, ids[1], report.Games[0].GameID)
	assert.Equal(t, ids[2], report.Games[1].GameID)
	assert.Equal(t, []string{ids[2]}, report.WindowGameIDs)
	require.Len(t, report.SignAggsAll, 2)
	require.Len(t, report.SignAggsWindow, 2)
	for _, agg := range report.SignAggsWindow {
		if agg.Sign == "Curva" {
			assert.Equal(t, 3, agg.Correct)
			assert.Equal(t, 1, agg.Timeouts)
		}
	}
}

func TestRenderReport(t *testing.T) {
	st, _ := seed(t)
	ctx := context.Background()
	report, err := BuildReport(ctx, st, model.StatsConfig{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(ctx, &buf, st, report, RenderOptions{CurveWindow: 2, SignCurves: 1, Width: 40, Height: 3}))
	out := buf.String()
	assert.Contains(t, out, "Games: 3")
	assert.Contains(t, out, "Learning Curves")
	assert.Contains(t, out, "Per-Sign (Windowed)")
	assert.Contains(t, out, "Sign Curva")
	assert.NotContains(t, out, "Sign Pare")
}

func TestRenderEmptyReport(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()

	report, err := BuildReport(ctx, st, model.StatsConfig{})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Render(ctx, &buf, st, report, RenderOptions{}))
	assert.Equal(t, "No games found.\n", buf.String())
}
