// Package vote implements VoteRecorder: redeeming a pair token, validating
// the submitted ranking, persisting the Comparison, and triggering both
// rating systems (spec §4.3).
package vote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mc-bench/scoring-core/internal/gate"
	"github.com/mc-bench/scoring-core/internal/model"
	"github.com/mc-bench/scoring-core/internal/storage"
)

// Identity is the caller context RecordVote authorizes and attributes the
// vote to: exactly one of UserID or IdentificationTokenID should be set by
// the external transport (spec §1 IdentityService collaborator).
type Identity struct {
	SessionID             string
	UserID                *int64
	IdentificationTokenID *int64
	// HasVotePermission only gates authenticated identities; anonymous
	// identities are permitted by default (spec §4.3 Forbidden).
	HasVotePermission bool
}

// Recorder implements VoteRecorder.
type Recorder struct {
	db     *storage.DB
	tokens     *gate.TokenStore
	ratingGate *gate.SingleFlightGate
	logger     *slog.Logger
}

// New wires a Recorder against its collaborators.
func New(db *storage.DB, tokens *gate.TokenStore, g *gate.SingleFlightGate, logger *slog.Logger) *Recorder {
	return &Recorder{db: db, tokens: tokens, ratingGate: g, logger: logger}
}

// RecordVote redeems token, validates orderedRanks against its payload and
// identity's permission, persists the Comparison, triggers both rating
// systems, and returns the two model display names in the token's
// original sample order (spec §4.3).
func (r *Recorder) RecordVote(
	ctx context.Context, token uuid.UUID, orderedRanks []model.OrderedRank, identity Identity,
) (model.VoteResult, error) {
	payload, err := r.tokens.TakeAndDelete(ctx, token)
	if err != nil {
		if errors.Is(err, gate.ErrTokenNotFound) {
			return model.VoteResult{}, model.ErrTokenUnknownOrDead
		}
		if errors.Is(err, gate.ErrMalformedPayload) {
			return model.VoteResult{}, model.ErrMalformedToken
		}
		return model.VoteResult{}, fmt.Errorf("vote: redeem token: %w", err)
	}

	ranks, err := resolveRanks(orderedRanks, payload)
	if err != nil {
		return model.VoteResult{}, err
	}

	if identity.UserID != nil && !identity.HasVotePermission {
		return model.VoteResult{}, model.ErrForbidden
	}

	samples, err := r.db.SamplesByID(ctx, []int64{payload.SampleID1, payload.SampleID2})
	if err != nil {
		return model.VoteResult{}, fmt.Errorf("vote: load samples: %w", err)
	}
	s1, ok1 := samples[payload.SampleID1]
	s2, ok2 := samples[payload.SampleID2]
	if !ok1 || !ok2 {
		return model.VoteResult{}, model.ErrSamplesNotFound
	}
	if s1.TestSetID == nil || s2.TestSetID == nil || *s1.TestSetID != *s2.TestSetID {
		return model.VoteResult{}, model.ErrTestSetMismatch
	}

	_, err = r.db.CreateComparison(ctx, storage.NewComparisonRequest{
		UserID:                identity.UserID,
		IdentificationTokenID: identity.IdentificationTokenID,
		SessionID:             identity.SessionID,
		MetricID:              payload.MetricID,
		TestSetID:             payload.TestSetID,
		Ranks:                 ranks,
	})
	if err != nil {
		return model.VoteResult{}, fmt.Errorf("vote: persist comparison: %w", err)
	}

	for _, system := range []model.RatingSystem{model.RatingSystemElo, model.RatingSystemGlicko} {
		if _, err := r.ratingGate.Trigger(ctx, system); err != nil {
			r.logger.Warn("vote: failed to trigger rating run", "system", system, "error", err)
		}
	}

	name1, err := r.modelNameFor(ctx, s1)
	if err != nil {
		return model.VoteResult{}, err
	}
	name2, err := r.modelNameFor(ctx, s2)
	if err != nil {
		return model.VoteResult{}, err
	}

	return model.VoteResult{Sample1Model: name1, Sample2Model: name2}, nil
}

func (r *Recorder) modelNameFor(ctx context.Context, sample model.Sample) (string, error) {
	run, err := r.db.Run(ctx, sample.RunID)
	if err != nil {
		return "", fmt.Errorf("vote: load run: %w", err)
	}
	m, err := r.db.Model(ctx, run.ModelID)
	if err != nil {
		return "", fmt.Errorf("vote: load model: %w", err)
	}
	return m.Name, nil
}

// resolveRanks validates orderedRanks' flattened id multiset matches the
// token's two samples exactly and returns the corresponding ComparisonRank
// rows (spec §4.3 RanksInvalid).
func resolveRanks(orderedRanks []model.OrderedRank, payload model.PairTokenPayload) ([]model.ComparisonRank, error) {
	if len(orderedRanks) == 0 || len(orderedRanks) > 2 {
		return nil, model.ErrRanksInvalid
	}

	uuidToSampleID := map[uuid.UUID]int64{
		payload.SampleUUID1: payload.SampleID1,
		payload.SampleUUID2: payload.SampleID2,
	}

	seen := make(map[uuid.UUID]bool, 2)
	var ranks []model.ComparisonRank
	for posIdx, pos := range orderedRanks {
		if len(pos.SampleUUIDs) == 0 {
			return nil, model.ErrRanksInvalid
		}
		rank := model.RankSecond
		if posIdx == 0 {
			rank = model.RankFirst
		}
		if len(orderedRanks) == 1 {
			// A single tied position: both samples share rank 1.
			rank = model.RankFirst
		}
		for _, su := range pos.SampleUUIDs {
			sampleID, ok := uuidToSampleID[su]
			if !ok || seen[su] {
				return nil, model.ErrRanksInvalid
			}
			seen[su] = true
			ranks = append(ranks, model.ComparisonRank{SampleID: sampleID, Rank: rank})
		}
	}

	if len(seen) != 2 {
		return nil, model.ErrRanksInvalid
	}
	return ranks, nil
}
