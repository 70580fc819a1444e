package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mc-bench/scoring-core/internal/model"
)

// NewComparisonRequest carries everything VoteRecorder needs persisted in a
// single transaction: the Comparison row and its two ComparisonRank rows.
type NewComparisonRequest struct {
	UserID                *int64
	IdentificationTokenID *int64
	SessionID             string
	MetricID              int64
	TestSetID             int64
	Ranks                 []model.ComparisonRank // SampleID set by caller; ComparisonID filled in here.
}

// CreateComparison inserts a Comparison and its ComparisonRank rows
// atomically (spec §4.3: "VoteRecorder never partially commits").
func (db *DB) CreateComparison(ctx context.Context, req NewComparisonRequest) (model.Comparison, error) {
	var out model.Comparison
	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("storage: begin create comparison tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		c := model.Comparison{
			ComparisonGroupID:     uuid.New(),
			UserID:                req.UserID,
			IdentificationTokenID: req.IdentificationTokenID,
			SessionID:             req.SessionID,
			MetricID:              req.MetricID,
			TestSetID:             req.TestSetID,
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO scoring.comparison
			   (comparison_group_id, user_id, identification_token_id, session_id, metric_id, test_set_id)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, created`,
			c.ComparisonGroupID, c.UserID, c.IdentificationTokenID, c.SessionID, c.MetricID, c.TestSetID,
		).Scan(&c.ID, &c.Created)
		if err != nil {
			return fmt.Errorf("storage: insert comparison: %w", err)
		}

		for _, r := range req.Ranks {
			if _, err := tx.Exec(ctx,
				`INSERT INTO scoring.comparison_rank (comparison_id, sample_id, rank) VALUES ($1, $2, $3)`,
				c.ID, r.SampleID, int(r.Rank),
			); err != nil {
				return fmt.Errorf("storage: insert comparison rank: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("storage: commit create comparison tx: %w", err)
		}
		out = c
		return nil
	})
	if err != nil {
		return model.Comparison{}, err
	}
	return out, nil
}
