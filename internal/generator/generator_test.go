package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/learnsignals/internal/model"
)

func pool() []model.Sign {
	return []model.Sign{
		{Name: "Pare", Category: "reglamentaria"},
		{Name: "Ceda el paso", Category: "reglamentaria"},
		{Name: "No adelantar", Category: "reglamentaria"},
		{Name: "Curva", Category: "preventiva"},
		{Name: "Derrumbe", Category: "preventiva"},
	}
}

func names(signs []model.Sign) map[string]int {
	out := make(map[string]int)
	for _, s := range signs {
		out[s.Name]++
	}
	return out
}

func TestPrepareRoundRotatesWithoutRepetition(t *testing.T) {
	g := NewSeeded(1)
	round := g.PrepareRound(pool(), 7, false)
	require.Len(t, round, 7)

	firstPass := names(round[:5])
	assert.Len(t, firstPass, 5)
	assert.Equal(t, round[0], round[5])
	assert.Equal(t, round[1], round[6])
}

func TestPrepareRoundSmallerThanPool(t *testing.T) {
	g := NewSeeded(2)
	round := g.PrepareRound(pool(), 3, false)
	assert.Len(t, names(round), 3)
}

func TestPrepareRoundEmpty(t *testing.T) {
	g := NewSeeded(3)
	assert.Nil(t, g.PrepareRound(nil, 3, false))
	assert.Nil(t, g.PrepareRound(pool(), 0, true))
}

func TestPrepareRoundWithRepetition(t *testing.T) {
	g := NewSeeded(4)
	round := g.PrepareRound(pool(), 50, true)
	require.Len(t, round, 50)
	for name := range names(round) {
		assert.Contains(t, []string{"Pare", "Ceda el paso", "No adelantar", "Curva", "Derrumbe"}, name)
	}
}

func TestPrepareRoundWeightedFavorsWeak(t *testing.T) {
	g := NewSeeded(5)
	weak := map[string]struct{}{"derrumbe": {}}
	round := g.PrepareRoundWeighted(pool(), 200, true, weak, 9)
	counts := names(round)
	assert.Greater(t, counts["Derrumbe"], counts["Pare"])
}

func TestPrepareRoundWeightedKeepsRotation(t *testing.T) {
	g := NewSeeded(6)
	weak := map[string]struct{}{"curva": {}}
	round := g.PrepareRoundWeighted(pool(), 5, false, weak, 3)
	assert.Len(t, names(round), 5)
}

func TestChoicesContainCorrect(t *testing.T) {
	g := NewSeeded(7)
	p := pool()
	for _, tier := range model.Tiers {
		n := ChoiceCount(tier)
		got := g.Choices(p[0], p, n, false)
		assert.Len(t, got, n)
		assert.Contains(t, got, "Pare")
		assert.Len(t, uniq(got), n)
	}
}

func TestChoicesPreferCategoryWithDistractors(t *testing.T) {
	g := NewSeeded(8)
	p := pool()
	got := g.Choices(p[0], p, 3, true)
	assert.ElementsMatch(t, []string{"Pare", "Ceda el paso", "No adelantar"}, got)
}

func TestChoicesCappedByPool(t *testing.T) {
	g := NewSeeded(9)
	p := pool()[:2]
	got := g.Choices(p[0], p, 4, true)
	assert.Len(t, got, 2)
}

func uniq(s []string) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for _, v := range s {
		out[v] = struct{}{}
	}
	return out
}
