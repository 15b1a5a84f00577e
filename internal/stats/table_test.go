package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTableAlignsColumns(t *testing.T) {
	lines := formatTable(
		[]string{"Sign", "Accuracy", "Correct"},
		[][]string{
			{"Pare", "97.50%", "12"},
			{"Ceda el paso", "8.00%", "3"},
		},
		map[int]bool{1: true, 2: true},
	)
	require.Len(t, lines, 3)
	assert.Equal(t, "Sign         Accuracy Correct", lines[0])
	assert.Equal(t, "Pare           97.50%      12", lines[1])
	assert.Equal(t, "Ceda el paso    8.00%       3", lines[2])
}

func TestFormatTableWideRunes(t *testing.T) {
	lines := formatTable([]string{"A", "B"}, [][]string{{"señal", "1"}, {"路", "2"}}, nil)
	require.Len(t, lines, 3)
	assert.Equal(t, "路    2", lines[2])
}
