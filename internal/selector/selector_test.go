package selector

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/mc-bench/scoring-core/internal/model"
)

func newCorrelation(modelIDs ...int64) []model.CandidateSample {
	out := make([]model.CandidateSample, len(modelIDs))
	for i, id := range modelIDs {
		out[i] = model.CandidateSample{
			Sample:  model.Sample{ID: int64(i + 1), ExternalID: uuid.New()},
			ModelID: id,
		}
	}
	return out
}

func TestPriorityOf_DefaultsToZeroVoteWeight(t *testing.T) {
	assert.Equal(t, 200.0, priorityOf(nil, 42))
	assert.Equal(t, 200.0, priorityOf(map[int64]float64{1: 50}, 2))
}

func TestPriorityOf_UsesKnownScore(t *testing.T) {
	assert.Equal(t, 50.0, priorityOf(map[int64]float64{1: 50}, 1))
}

// TestOrderCorrelationIDs_UniformModeReturnsAllWhenUnderBatchSize verifies
// uniform mode never drops eligible correlation ids it doesn't have to.
func TestOrderCorrelationIDs_UniformModeReturnsAllWhenUnderBatchSize(t *testing.T) {
	s := &Selector{mode: ModeUniform}
	eligible := map[uuid.UUID][]model.CandidateSample{
		uuid.New(): newCorrelation(1, 2),
		uuid.New(): newCorrelation(3, 4),
		uuid.New(): newCorrelation(5, 6),
	}

	ids := s.orderCorrelationIDs(eligible, nil, 10)
	assert.Len(t, ids, 3)
}

// TestOrderCorrelationIDs_RespectsBatchSizeCap verifies invariant: the
// returned slice never exceeds the requested batch size even when more
// correlation ids are eligible (spec §4.1 distinctness / cap).
func TestOrderCorrelationIDs_RespectsBatchSizeCap(t *testing.T) {
	eligible := make(map[uuid.UUID][]model.CandidateSample, 20)
	for i := 0; i < 20; i++ {
		eligible[uuid.New()] = newCorrelation(1, 2)
	}

	for _, mode := range []Mode{ModeUniform, ModePriority} {
		s := &Selector{mode: mode}
		priorities := map[int64]float64{1: 10, 2: 20}
		ids := s.orderCorrelationIDs(eligible, priorities, 5)
		assert.Len(t, ids, 5)
	}
}

// TestOrderCorrelationIDs_ReturnsDistinctIDs verifies scenario S1 (spec §8):
// a batch never contains the same correlation id twice.
func TestOrderCorrelationIDs_ReturnsDistinctIDs(t *testing.T) {
	eligible := make(map[uuid.UUID][]model.CandidateSample, 10)
	for i := 0; i < 10; i++ {
		eligible[uuid.New()] = newCorrelation(1, 2)
	}

	s := &Selector{mode: ModeUniform}
	ids := s.orderCorrelationIDs(eligible, nil, 10)

	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		assert.False(t, seen[id], "correlation id %s returned more than once", id)
		seen[id] = true
	}
}

// TestOrderCorrelationIDs_PriorityModeFavorsHighPriorityOverManyTrials
// verifies scenario S6 / invariant 8 (spec §8): priority mode's weighted
// ordering statistically favors correlation ids whose models have a higher
// priority score, across enough trials to smooth out the 0.2 uniform-mix
// and per-trial jitter.
func TestOrderCorrelationIDs_PriorityModeFavorsHighPriorityOverManyTrials(t *testing.T) {
	highPriorityCID := uuid.New()
	lowPriorityCID := uuid.New()
	eligible := map[uuid.UUID][]model.CandidateSample{
		highPriorityCID: newCorrelation(1, 2), // model 1 has priority 200 (unseen).
		lowPriorityCID:  newCorrelation(3, 4), // models 3,4 have priority ~1 (heavily voted).
	}
	priorities := map[int64]float64{3: 1, 4: 1}

	s := &Selector{mode: ModePriority}

	highFirst := 0
	const trials = 200
	for i := 0; i < trials; i++ {
		ids := s.orderCorrelationIDs(eligible, priorities, 2)
		if len(ids) > 0 && ids[0] == highPriorityCID {
			highFirst++
		}
	}

	// Pure uniform ordering would put each first ~50% of the time; the
	// priority-weighted 80% branch should push this well above half.
	assert.Greater(t, highFirst, trials/2)
}
