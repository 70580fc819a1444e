package selector

import (
	"math"
	"math/rand/v2"
)

// PriorityScore computes a model's selection-bias weight from its vote
// count against the mean vote count across all models scored in the same
// (metric, test-set) leaderboard (spec §4.1 priority mode band table). The
// random terms at band boundaries keep models with equal vote counts from
// always landing in the same pair.
func PriorityScore(votes int64, avgVotes float64) float64 {
	v := float64(votes)

	switch {
	case votes == 0:
		return 200
	case v < math.Max(avgVotes*0.1, 1):
		threshold := math.Max(avgVotes*0.1, 1)
		return 150 + rand.Float64()*10 + (1 - v/threshold)
	case v < math.Max(avgVotes*0.9, 1):
		threshold := math.Max(avgVotes*0.9, 1)
		return 50 + rand.Float64()*10 + (1 - v/threshold)
	case v < math.Max(avgVotes*0.99, 1):
		threshold := math.Max(avgVotes*0.99, 1)
		return 10 + rand.Float64()*5 + (1 - v/threshold)
	default:
		return 1 - v/math.Max(avgVotes, 1)
	}
}

// meanVotes computes the unweighted mean vote count across models, the
// denominator every band in PriorityScore is measured against.
func meanVotes(counts []int64) float64 {
	if len(counts) == 0 {
		return 0
	}
	var sum int64
	for _, c := range counts {
		sum += c
	}
	return float64(sum) / float64(len(counts))
}
