// Package selector implements PairSelector: batched, bias-weighted
// selection of sample pairs for a voter, and the pair-token issuance that
// accompanies it (spec §4.1).
package selector

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/google/uuid"

	"github.com/mc-bench/scoring-core/internal/gate"
	"github.com/mc-bench/scoring-core/internal/model"
	"github.com/mc-bench/scoring-core/internal/storage"
)

// Mode selects between the two interchangeable selection strategies the
// source keeps behind a feature flag (spec §9 REDESIGN FLAGS).
type Mode int

const (
	ModeUniform Mode = iota
	ModePriority
)

// MaxBatchSize is the cap on selectBatch's requested size (spec §4.1).
const MaxBatchSize = 10

// orderedMixRatio is the probability priority mode orders correlation ids
// by mean model priority rather than uniformly at random (spec §4.1).
const orderedMixRatio = 0.8

// Selector implements PairSelector against Postgres catalog reads and a
// Redis-backed TokenStore.
type Selector struct {
	db     *storage.DB
	tokens *gate.TokenStore
	mode   Mode
}

// New wires a Selector. mode is fixed at construction, mirroring the
// source's build-time feature flag rather than a per-request parameter.
func New(db *storage.DB, tokens *gate.TokenStore, mode Mode) *Selector {
	return &Selector{db: db, tokens: tokens, mode: mode}
}

// SelectBatch chooses up to batchSize pairs for voterCategory under
// metricExternalID, issuing a one-hour pair token for each (spec §4.1).
func (s *Selector) SelectBatch(
	ctx context.Context, metricExternalID uuid.UUID, batchSize int, category model.VoterCategory,
) ([]model.PairBatchItem, error) {
	if batchSize <= 0 {
		return nil, model.ErrInvalidBatchSize
	}
	if batchSize > MaxBatchSize {
		return nil, model.ErrBatchSizeExceedsCap
	}

	metric, err := s.db.MetricByExternalID(ctx, metricExternalID)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, model.ErrInvalidMetric
		}
		return nil, fmt.Errorf("selector: resolve metric: %w", err)
	}

	testSet, err := s.db.DefaultTestSetFor(ctx, category)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, model.ErrNoDefaultTestSet
		}
		return nil, fmt.Errorf("selector: resolve default test set: %w", err)
	}

	eligible, err := s.db.EligibleCorrelationIDs(ctx, testSet.ID)
	if err != nil {
		return nil, fmt.Errorf("selector: load eligible correlation ids: %w", err)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	var priorities map[int64]float64
	if s.mode == ModePriority {
		priorities, err = s.modelPriorities(ctx, metric.ID, testSet.ID)
		if err != nil {
			return nil, err
		}
	}

	correlationIDs := s.orderCorrelationIDs(eligible, priorities, batchSize)

	items := make([]model.PairBatchItem, 0, len(correlationIDs))
	for _, cid := range correlationIDs {
		item, err := s.selectPair(ctx, eligible[cid], metric, priorities)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// modelPriorities loads every model's vote count in the tagless leaderboard
// for (metricID, testSetID) and converts it to a priority score.
func (s *Selector) modelPriorities(ctx context.Context, metricID, testSetID int64) (map[int64]float64, error) {
	counts, err := s.db.GlobalModelVoteCounts(ctx, metricID, testSetID)
	if err != nil {
		return nil, fmt.Errorf("selector: load model vote counts: %w", err)
	}

	raw := make([]int64, len(counts))
	for i, c := range counts {
		raw[i] = c.VoteCount
	}
	avg := meanVotes(raw)

	out := make(map[int64]float64, len(counts))
	for _, c := range counts {
		out[c.ModelID] = PriorityScore(c.VoteCount, avg)
	}
	return out, nil
}

// priorityOf looks up a model's priority, defaulting to the zero-vote
// weight for models absent from the leaderboard entirely (never compared
// yet under this metric/test-set).
func priorityOf(priorities map[int64]float64, modelID int64) float64 {
	if p, ok := priorities[modelID]; ok {
		return p
	}
	return 200
}

// orderCorrelationIDs picks the first k correlation ids under the
// configured mode's ordering and returns them, trimmed to batchSize.
func (s *Selector) orderCorrelationIDs(
	eligible map[uuid.UUID][]model.CandidateSample, priorities map[int64]float64, batchSize int,
) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(eligible))
	for cid := range eligible {
		ids = append(ids, cid)
	}

	if s.mode == ModeUniform || rand.Float64() >= orderedMixRatio {
		rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	} else {
		meanPriority := make(map[uuid.UUID]float64, len(ids))
		jitter := make(map[uuid.UUID]float64, len(ids))
		for _, cid := range ids {
			candidates := eligible[cid]
			var sum float64
			for _, c := range candidates {
				sum += priorityOf(priorities, c.ModelID)
			}
			meanPriority[cid] = sum / float64(len(candidates))
			jitter[cid] = rand.Float64()
		}
		sort.Slice(ids, func(i, j int) bool {
			a, b := ids[i], ids[j]
			if meanPriority[a] != meanPriority[b] {
				return meanPriority[a] > meanPriority[b]
			}
			return jitter[a] > jitter[b]
		})
	}

	if len(ids) > batchSize {
		ids = ids[:batchSize]
	}
	return ids
}

// selectPair picks sample1 uniformly, then sample2 from a different model
// ordered by priority desc + random (priority mode) or uniformly (uniform
// mode), and issues a pair token (spec §4.1 "Side effects").
func (s *Selector) selectPair(
	ctx context.Context, candidates []model.CandidateSample, metric model.Metric, priorities map[int64]float64,
) (model.PairBatchItem, error) {
	idx1 := rand.IntN(len(candidates))
	sample1 := candidates[idx1]

	var rest []model.CandidateSample
	for i, c := range candidates {
		if i != idx1 && c.ModelID != sample1.ModelID {
			rest = append(rest, c)
		}
	}
	if len(rest) == 0 {
		return model.PairBatchItem{}, fmt.Errorf("selector: correlation id has no eligible second model")
	}

	var sample2 model.CandidateSample
	if priorities != nil {
		rand.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
		best := rest[0]
		bestPriority := priorityOf(priorities, best.ModelID)
		for _, c := range rest[1:] {
			if p := priorityOf(priorities, c.ModelID); p > bestPriority {
				best, bestPriority = c, p
			}
		}
		sample2 = best
	} else {
		sample2 = rest[rand.IntN(len(rest))]
	}

	run, err := s.db.Run(ctx, sample1.Sample.RunID)
	if err != nil {
		return model.PairBatchItem{}, fmt.Errorf("selector: load run: %w", err)
	}
	prompt, err := s.db.Prompt(ctx, run.PromptID)
	if err != nil {
		return model.PairBatchItem{}, fmt.Errorf("selector: load prompt: %w", err)
	}

	asset1, err := s.loadAsset(ctx, sample1.Sample)
	if err != nil {
		return model.PairBatchItem{}, err
	}
	asset2, err := s.loadAsset(ctx, sample2.Sample)
	if err != nil {
		return model.PairBatchItem{}, err
	}

	testSetID := int64(0)
	if sample1.Sample.TestSetID != nil {
		testSetID = *sample1.Sample.TestSetID
	}

	token := uuid.New()
	payload := model.PairTokenPayload{
		MetricID:    metric.ID,
		MetricUUID:  metric.ExternalID,
		TestSetID:   testSetID,
		SampleID1:   sample1.Sample.ID,
		SampleUUID1: sample1.Sample.ExternalID,
		SampleID2:   sample2.Sample.ID,
		SampleUUID2: sample2.Sample.ExternalID,
	}
	if err := s.tokens.Put(ctx, token, payload, gate.DefaultTokenTTL); err != nil {
		return model.PairBatchItem{}, fmt.Errorf("selector: issue pair token: %w", err)
	}

	return model.PairBatchItem{
		Token:            token,
		MetricUUID:       metric.ExternalID,
		BuildDescription: prompt.BuildSpecification,
		Assets:           [2]model.PairAsset{asset1, asset2},
	}, nil
}

func (s *Selector) loadAsset(ctx context.Context, sample model.Sample) (model.PairAsset, error) {
	artifact, err := s.db.SampleArtifact(ctx, sample.ID)
	if err != nil {
		return model.PairAsset{}, fmt.Errorf("selector: load sample artifact: %w", err)
	}
	return model.PairAsset{
		SampleID:   sample.ID,
		SampleUUID: sample.ExternalID,
		Bucket:     artifact.Bucket,
		Key:        artifact.Key,
	}, nil
}
