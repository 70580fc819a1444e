// Package leaderboard implements the read-only leaderboard projections
// (spec §4.6): filtered, display-joined queries over the Elo and Glicko-2
// leaderboard tables, kept strictly separate between global (tagless) and
// tag-scoped rows.
package leaderboard

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mc-bench/scoring-core/internal/model"
	"github.com/mc-bench/scoring-core/internal/storage"
)

// DefaultMinVotes is the vote-count floor the public leaderboard applies so
// freshly created, still-converging rows do not appear at extreme ratings
// (spec §4.6).
const DefaultMinVotes = 10

// Query describes one leaderboard read: which subject kind, which rating
// system, and the (metric, test-set, optional tag) scope.
type Query struct {
	Kind             model.SubjectKind
	System           model.RatingSystem
	MetricExternalID uuid.UUID
	TestSetExternalID uuid.UUID
	TagExternalID    *uuid.UUID // nil selects the global (tagless) row set.
	MinVotes         int64      // 0 means DefaultMinVotes.
}

// Service resolves Query inputs to internal ids and delegates to storage.
type Service struct {
	db *storage.DB
}

// New wires a Service against its storage layer.
func New(db *storage.DB) *Service {
	return &Service{db: db}
}

// List returns the leaderboard entries matching q, ordered by rating
// descending.
func (s *Service) List(ctx context.Context, q Query) ([]model.LeaderboardEntry, error) {
	metric, err := s.db.MetricByExternalID(ctx, q.MetricExternalID)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, model.ErrInvalidMetric
		}
		return nil, fmt.Errorf("leaderboard: resolve metric: %w", err)
	}

	testSet, err := s.db.TestSetByExternalID(ctx, q.TestSetExternalID)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, model.ErrNoDefaultTestSet
		}
		return nil, fmt.Errorf("leaderboard: resolve test set: %w", err)
	}

	var tagID *int64
	if q.TagExternalID != nil {
		tag, err := s.db.TagByExternalID(ctx, *q.TagExternalID)
		if err != nil {
			return nil, fmt.Errorf("leaderboard: resolve tag: %w", err)
		}
		tagID = &tag.ID
	}

	minVotes := q.MinVotes
	if minVotes <= 0 {
		minVotes = DefaultMinVotes
	}

	switch q.System {
	case model.RatingSystemElo:
		return s.db.ListEloLeaderboard(ctx, q.Kind, metric.ID, testSet.ID, tagID, minVotes)
	case model.RatingSystemGlicko:
		return s.db.ListGlickoLeaderboard(ctx, q.Kind, metric.ID, testSet.ID, tagID, minVotes)
	default:
		return nil, fmt.Errorf("leaderboard: unknown rating system %q", q.System)
	}
}
