// Package generator builds round sign sequences and answer choices.
package generator

import (
	"math/rand"
	"strings"
	"time"

	"github.com/verte-zerg/learnsignals/internal/model"
)

// Generator produces randomized rounds.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a deterministic Generator.
func NewSeeded(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// ChoiceCount returns how many answer choices a tier offers.
func ChoiceCount(t model.Tier) int {
	switch t {
	case model.TierMedium:
		return 3
	case model.TierHigh:
		return 4
	default:
		return 2
	}
}

// PrepareRound returns count signs from pool. Without repetition the pool
// is shuffled and rotated, so no sign repeats until every sign has been
// shown. With repetition every slot is drawn independently.
func (g *Generator) PrepareRound(pool []model.Sign, count int, allowRepeat bool) []model.Sign {
	if len(pool) == 0 || count <= 0 {
		return nil
	}
	result := make([]model.Sign, 0, count)
	if allowRepeat {
		for i := 0; i < count; i++ {
			result = append(result, pool[g.rnd.Intn(len(pool))])
		}
		return result
	}
	order := append([]model.Sign(nil), pool...)
	g.rnd.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	for i := 0; i < count; i++ {
		result = append(result, order[i%len(order)])
	}
	return result
}

// PrepareRoundWeighted is PrepareRound with a bias toward weak signs. A
// sign in weak weighs 1+factor, others weigh 1.
func (g *Generator) PrepareRoundWeighted(pool []model.Sign, count int, allowRepeat bool, weak map[string]struct{}, factor float64) []model.Sign {
	if len(weak) == 0 || factor <= 0 {
		return g.PrepareRound(pool, count, allowRepeat)
	}
	if len(pool) == 0 || count <= 0 {
		return nil
	}
	weights := make([]float64, len(pool))
	for i, s := range pool {
		w := 1.0
		if _, ok := weak[strings.ToLower(s.Name)]; ok {
			w += factor
		}
		weights[i] = w
	}

	result := make([]model.Sign, 0, count)
	if allowRepeat {
		for i := 0; i < count; i++ {
			result = append(result, pool[g.pick(weights)])
		}
		return result
	}

	// Weighted order without replacement, then rotate.
	order := make([]model.Sign, 0, len(pool))
	left := append([]float64(nil), weights...)
	for range pool {
		idx := g.pick(left)
		order = append(order, pool[idx])
		left[idx] = 0
	}
	for i := 0; i < count; i++ {
		result = append(result, order[i%len(order)])
	}
	return result
}

func (g *Generator) pick(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	r := g.rnd.Float64() * total
	acc := 0.0
	last := 0
	for j, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		last = j
		if r <= acc {
			return j
		}
	}
	return last
}

// Choices returns n shuffled answer names including the correct one. With
// distractors, wrong names from the same category come first.
func (g *Generator) Choices(correct model.Sign, pool []model.Sign, n int, distractors bool) []string {
	var similar, other []string
	seen := map[string]struct{}{strings.ToLower(correct.Name): {}}
	for _, s := range pool {
		key := strings.ToLower(s.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if distractors && correct.Category != "" && s.Category == correct.Category {
			similar = append(similar, s.Name)
		} else {
			other = append(other, s.Name)
		}
	}
	g.shuffle(similar)
	g.shuffle(other)
	wrong := append(similar, other...)

	choices := []string{correct.Name}
	for i := 0; i < n-1 && i < len(wrong); i++ {
		choices = append(choices, wrong[i])
	}
	g.shuffle(choices)
	return choices
}

func (g *Generator) shuffle(s []string) {
	g.rnd.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
}
