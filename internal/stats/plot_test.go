package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlot(t *testing.T) {
	var buf bytes.Buffer
	err := Plot(&buf, "Test Plot", []Series{
		{Name: "A", Values: []float64{1, 2, 3, 2, 1}},
		{Name: "B", Values: []float64{1, 1, 2, 3, 4}},
		{Name: "Empty"},
	}, 12, 4, false)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Test Plot")
	assert.Contains(t, out, "A: min=1.00 max=3.00")
	assert.NotContains(t, out, "Empty")
	assert.Contains(t, out, "Legend:")
	assert.NotContains(t, out, colorReset)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	// title, two ranges, four rows, legend
	require.Len(t, lines, 1+2+4+1)
	assert.True(t, strings.HasPrefix(lines[3], "max"+axisSeparator))
	assert.True(t, strings.HasPrefix(lines[6], "min"+axisSeparator))
}

func TestPlotForcedColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	var buf bytes.Buffer
	require.NoError(t, Plot(&buf, "", []Series{{Name: "A", Values: []float64{5}}}, 10, 2, true))
	assert.Contains(t, buf.String(), colorReset)
}

func TestPlotNothingToDraw(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Plot(&buf, "x", []Series{{Name: "A"}}, 10, 2, false))
	assert.Empty(t, buf.String())
}

func TestPlotWidthFor(t *testing.T) {
	axis := len(axisLabels[0]) + 3
	assert.Equal(t, 80-axis, PlotWidthFor(80))
	assert.Equal(t, minPlotWidth, PlotWidthFor(0))
	assert.Equal(t, minPlotWidth, PlotWidthFor(5))
}

func TestResample(t *testing.T) {
	assert.Equal(t, []float64{2, 2, 2}, resample([]float64{2}, 3))
	assert.Equal(t, []float64{1.5, 3.5}, resample([]float64{1, 2, 3, 4}, 2))
	assert.Equal(t, []float64{0, 0.5, 1}, resample([]float64{0, 1}, 3))
}
