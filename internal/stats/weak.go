package stats

import (
	"strings"

	"github.com/verte-zerg/learnsignals/internal/model"
)

// SelectWeakSigns returns the lowercase names of the lowest-accuracy signs.
// Signs never answered are skipped.
func SelectWeakSigns(aggs []model.SignAggregate, top int) map[string]struct{} {
	seen := make([]model.SignAggregate, 0, len(aggs))
	for _, a := range aggs {
		if a.Correct+a.Incorrect > 0 {
			seen = append(seen, a)
		}
	}
	ranked := sortedByAccuracy(seen)
	if top <= 0 || top > len(ranked) {
		top = len(ranked)
	}
	weak := make(map[string]struct{}, top)
	for _, a := range ranked[:top] {
		weak[strings.ToLower(a.Sign)] = struct{}{}
	}
	return weak
}
