package stats

import (
	"sort"

	"github.com/verte-zerg/learnsignals/internal/model"
)

// TopSignsByFrequency returns the n most answered signs.
func TopSignsByFrequency(aggs []model.SignAggregate, n int) []string {
	if n <= 0 || len(aggs) == 0 {
		return nil
	}
	items := make([]model.SignAggregate, len(aggs))
	copy(items, aggs)
	sort.Slice(items, func(i, j int) bool {
		ti := items[i].Correct + items[i].Incorrect
		tj := items[j].Correct + items[j].Incorrect
		if ti == tj {
			return items[i].Sign < items[j].Sign
		}
		return ti > tj
	})
	n = min(n, len(items))
	out := make([]string, n)
	for i := range out {
		out[i] = items[i].Sign
	}
	return out
}
