package stats

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/learnsignals/internal/model"
)

func TestGameMetrics(t *testing.T) {
	acc, resp := GameMetrics(model.GameAggregate{Correct: 3, Incorrect: 1, MeanResponse: 2.5})
	assert.InDelta(t, 0.75, acc, 1e-9)
	assert.InDelta(t, 2.5, resp, 1e-9)

	acc, _ = GameMetrics(model.GameAggregate{})
	assert.Zero(t, acc)
}

func TestMovingAverage(t *testing.T) {
	assert.Equal(t, []float64{1, 1.5, 2.5, 3.5}, MovingAverage([]float64{1, 2, 3, 4}, 2))
	assert.Equal(t, []float64{1, 2}, MovingAverage([]float64{1, 2}, 1))
	assert.Empty(t, MovingAverage(nil, 3))
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "", Sparkline(nil))
	assert.Equal(t, "+++", Sparkline([]float64{4, 4, 4}))
	assert.Equal(t, " @", Sparkline([]float64{0, 1}))
}

func TestSelectWeakSigns(t *testing.T) {
	aggs := []model.SignAggregate{
		{Sign: "Pare", Correct: 1, Incorrect: 3},
		{Sign: "Curva", Correct: 4, Incorrect: 0},
		{Sign: "Ceda el paso", Correct: 2, Incorrect: 2},
		{Sign: "Unseen"},
	}
	weak := SelectWeakSigns(aggs, 2)
	assert.Equal(t, map[string]struct{}{"pare": {}, "ceda el paso": {}}, weak)

	assert.Len(t, SelectWeakSigns(aggs, 0), 3)
	assert.Empty(t, SelectWeakSigns(nil, 3))
}

func TestTopSignsByFrequency(t *testing.T) {
	aggs := []model.SignAggregate{
		{Sign: "b", Correct: 3, Incorrect: 1},
		{Sign: "a", Correct: 2, Incorrect: 2},
		{Sign: "c", Correct: 1},
	}
	assert.Equal(t, []string{"a", "b"}, TopSignsByFrequency(aggs, 2))
	assert.Nil(t, TopSignsByFrequency(aggs, 0))
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderSummary(&buf, nil))
	assert.Equal(t, "No games found.\n", buf.String())

	buf.Reset()
	require.NoError(t, RenderSummary(&buf, []model.GameAggregate{
		{Correct: 3, Incorrect: 1, MeanResponse: 2, ZonesCompleted: 3, FinalTier: model.TierHigh, Completed: true},
		{Correct: 1, Incorrect: 1, MeanResponse: 4, ZonesCompleted: 1, FinalTier: model.TierLow},
	}))
	out := buf.String()
	assert.Contains(t, out, "Games: 2 (1 completed)")
	assert.Contains(t, out, "Zones completed: 4")
	assert.Contains(t, out, "Avg Accuracy: 62.50%")
	assert.Contains(t, out, "Best Accuracy: 75.00%")
	assert.Contains(t, out, "Avg Response: 3.00s")
	assert.Contains(t, out, "low 1, medium 0, high 1")
}

func TestRenderSignTableWeakestFirst(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderSignTable(&buf, []model.SignAggregate{
		{Sign: "Curva", Correct: 4, ResponseSum: 8, ResponseSeen: 4},
		{Sign: "Pare", Correct: 1, Incorrect: 1, Timeouts: 1, ResponseSum: 6, ResponseSeen: 2},
	}))
	out := buf.String()
	assert.Contains(t, out, "Per-Sign (Windowed)")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Pare")), bytes.Index(buf.Bytes(), []byte("Curva")))
	assert.Contains(t, out, "50.00%")
}
