package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mc-bench/scoring-core/internal/model"
)

// ratingTables lists every table a RatingEngine run must lock before reading
// or writing, regardless of rating system (spec §4.5).
var ratingTables = []string{
	"scoring.comparison",
	"scoring.comparison_rank",
	"scoring.processed_comparison",
	"scoring.model_leaderboard",
	"scoring.prompt_leaderboard",
	"scoring.sample_leaderboard",
	"scoring.model_glicko_leaderboard",
	"scoring.prompt_glicko_leaderboard",
	"scoring.sample_glicko_leaderboard",
}

// BeginRatingRun starts the transaction a RatingEngine run executes in and
// acquires the pessimistic SHARE ROW EXCLUSIVE lock spec §4.5 requires,
// preventing a second RatingEngine of the same system from interleaving
// even if the SingleFlightGate were circumvented.
func (db *DB) BeginRatingRun(ctx context.Context) (pgx.Tx, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: begin rating run tx: %w", err)
	}
	for _, t := range ratingTables {
		if _, err := tx.Exec(ctx, "LOCK TABLE "+t+" IN SHARE ROW EXCLUSIVE MODE"); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("storage: lock %s: %w", t, err)
		}
	}
	return tx, nil
}

// PendingComparisonIDs selects up to limit comparisons absent from
// ProcessedComparison for system, in id order, with row locks (spec §4.5).
func PendingComparisonIDs(ctx context.Context, tx pgx.Tx, system model.RatingSystem, limit int) ([]int64, error) {
	rows, err := tx.Query(ctx,
		`SELECT c.id FROM scoring.comparison c
		 WHERE NOT EXISTS (
		     SELECT 1 FROM scoring.processed_comparison pc
		     WHERE pc.comparison_id = c.id AND pc.rating_system = $1
		 )
		 ORDER BY c.id
		 LIMIT $2
		 FOR UPDATE OF c`,
		string(system), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: pending comparisons: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan pending comparison id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ComparisonDetail is the fully joined view of one comparison that the
// RatingEngine needs to apply an update: its outcome plus the owning
// samples, their models, their prompts, and the prompts' scoring tags.
type ComparisonDetail struct {
	Comparison model.Comparison
	Outcome    model.ComparisonOutcome
	SampleA    model.Sample
	SampleB    model.Sample
	RunA       model.Run
	RunB       model.Run
	TagsA      []model.Tag
	TagsB      []model.Tag
}

// LoadComparisonDetail loads everything RatingEngine needs for one
// comparison: its two ranks, the owning samples, each sample's model, the
// sample's prompt, and that prompt's tag set (spec §4.5 "Batch").
func LoadComparisonDetail(ctx context.Context, tx pgx.Tx, comparisonID int64) (ComparisonDetail, error) {
	var d ComparisonDetail

	err := tx.QueryRow(ctx,
		`SELECT id, comparison_group_id, user_id, identification_token_id, session_id, metric_id, test_set_id, created
		 FROM scoring.comparison WHERE id = $1`,
		comparisonID,
	).Scan(&d.Comparison.ID, &d.Comparison.ComparisonGroupID, &d.Comparison.UserID,
		&d.Comparison.IdentificationTokenID, &d.Comparison.SessionID,
		&d.Comparison.MetricID, &d.Comparison.TestSetID, &d.Comparison.Created)
	if err != nil {
		return d, fmt.Errorf("storage: load comparison: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT sample_id, rank FROM scoring.comparison_rank WHERE comparison_id = $1 ORDER BY sample_id`,
		comparisonID,
	)
	if err != nil {
		return d, fmt.Errorf("storage: load comparison ranks: %w", err)
	}
	var ranks []model.ComparisonRank
	for rows.Next() {
		var r model.ComparisonRank
		var rank int
		if err := rows.Scan(&r.SampleID, &rank); err != nil {
			rows.Close()
			return d, fmt.Errorf("storage: scan comparison rank: %w", err)
		}
		r.Rank = model.Rank(rank)
		r.ComparisonID = comparisonID
		ranks = append(ranks, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return d, fmt.Errorf("storage: load comparison ranks: %w", err)
	}
	if len(ranks) != 2 {
		return d, fmt.Errorf("storage: comparison %d has %d ranks, want 2", comparisonID, len(ranks))
	}

	d.Outcome = model.ComparisonOutcome{
		ComparisonID: comparisonID,
		MetricID:     d.Comparison.MetricID,
		TestSetID:    d.Comparison.TestSetID,
		SampleA:      ranks[0].SampleID,
		SampleB:      ranks[1].SampleID,
	}
	if ranks[0].Rank == model.RankFirst && ranks[1].Rank == model.RankFirst {
		d.Outcome.Tie = true
	} else if ranks[0].Rank == model.RankFirst {
		d.Outcome.Winner = ranks[0].SampleID
	} else {
		d.Outcome.Winner = ranks[1].SampleID
	}

	loadSide := func(sampleID int64) (model.Sample, model.Run, []model.Tag, error) {
		var s model.Sample
		err := tx.QueryRow(ctx,
			`SELECT id, external_id, comparison_correlation_id, comparison_sample_id,
			        run_id, test_set_id, approval_state, experimental_state, is_complete, is_pending
			 FROM sample.sample WHERE id = $1`,
			sampleID,
		).Scan(&s.ID, &s.ExternalID, &s.ComparisonCorrelationID, &s.ComparisonSampleID,
			&s.RunID, &s.TestSetID, &s.ApprovalState, &s.ExperimentalState, &s.IsComplete, &s.IsPending)
		if err != nil {
			return s, model.Run{}, nil, fmt.Errorf("storage: load sample %d: %w", sampleID, err)
		}

		var r model.Run
		err = tx.QueryRow(ctx,
			`SELECT id, model_id, prompt_id, template_id FROM specification.run WHERE id = $1`,
			s.RunID,
		).Scan(&r.ID, &r.ModelID, &r.PromptID, &r.TemplateID)
		if err != nil {
			return s, r, nil, fmt.Errorf("storage: load run %d: %w", s.RunID, err)
		}

		tagRows, err := tx.Query(ctx,
			`SELECT t.id, t.external_id, t.name, t.calculate_score
			 FROM specification.tag t
			 JOIN specification.prompt_tag pt ON pt.tag_id = t.id
			 WHERE pt.prompt_id = $1 AND t.calculate_score = true`,
			r.PromptID,
		)
		if err != nil {
			return s, r, nil, fmt.Errorf("storage: load prompt tags: %w", err)
		}
		defer tagRows.Close()
		var tags []model.Tag
		for tagRows.Next() {
			var tg model.Tag
			if err := tagRows.Scan(&tg.ID, &tg.ExternalID, &tg.Name, &tg.CalculateScore); err != nil {
				return s, r, nil, fmt.Errorf("storage: scan prompt tag: %w", err)
			}
			tags = append(tags, tg)
		}
		return s, r, tags, tagRows.Err()
	}

	var errA, errB error
	d.SampleA, d.RunA, d.TagsA, errA = loadSide(d.Outcome.SampleA)
	if errA != nil {
		return d, errA
	}
	d.SampleB, d.RunB, d.TagsB, errB = loadSide(d.Outcome.SampleB)
	if errB != nil {
		return d, errB
	}
	return d, nil
}

// MarkProcessed inserts the ProcessedComparison marker in the same
// transaction as the leaderboard writes it accompanies (spec §4.5).
func MarkProcessed(ctx context.Context, tx pgx.Tx, comparisonID int64, system model.RatingSystem) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO scoring.processed_comparison (comparison_id, rating_system, processed_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (comparison_id, rating_system) DO NOTHING`,
		comparisonID, string(system), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: mark processed: %w", err)
	}
	return nil
}

func eloTable(kind model.SubjectKind) (string, string) {
	switch kind {
	case model.SubjectKindModel:
		return "scoring.model_leaderboard", "model_id"
	case model.SubjectKindPrompt:
		return "scoring.prompt_leaderboard", "prompt_id"
	default:
		return "scoring.sample_leaderboard", "sample_id"
	}
}

func glickoTable(kind model.SubjectKind) (string, string) {
	switch kind {
	case model.SubjectKindModel:
		return "scoring.model_glicko_leaderboard", "model_id"
	case model.SubjectKindPrompt:
		return "scoring.prompt_glicko_leaderboard", "prompt_id"
	default:
		return "scoring.sample_glicko_leaderboard", "sample_id"
	}
}

// LoadOrCreateEloRow returns the leaderboard row for key, creating it with
// the starting rating from spec §3 if it does not yet exist, locking it
// FOR UPDATE so concurrent updates within the batch serialize correctly.
func LoadOrCreateEloRow(ctx context.Context, tx pgx.Tx, key model.LeaderboardKey) (model.EloRow, error) {
	table, col := eloTable(key.SubjectKind)
	row := model.EloRow{LeaderboardKey: key}

	tagClause := "tag_id IS NULL"
	args := []any{key.SubjectID, key.MetricID, key.TestSetID}
	if key.TagID != nil {
		tagClause = "tag_id = $4"
		args = append(args, *key.TagID)
	}

	query := fmt.Sprintf(
		`SELECT rating, vote_count, win_count, loss_count, tie_count, last_updated
		 FROM %s WHERE %s = $1 AND metric_id = $2 AND test_set_id = $3 AND %s
		 FOR UPDATE`, table, col, tagClause)

	err := tx.QueryRow(ctx, query, args...).Scan(
		&row.Rating, &row.Tally.VoteCount, &row.Tally.WinCount, &row.Tally.LossCount, &row.Tally.TieCount, &row.LastUpdated)
	if err == nil {
		return row, nil
	}
	if err != pgx.ErrNoRows {
		return row, fmt.Errorf("storage: load elo row from %s: %w", table, err)
	}

	row.Rating = model.EloStartingRating
	insertQuery := fmt.Sprintf(
		`INSERT INTO %s (%s, metric_id, test_set_id, tag_id, rating) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT DO NOTHING`, table, col)
	if _, err := tx.Exec(ctx, insertQuery, key.SubjectID, key.MetricID, key.TestSetID, key.TagID, row.Rating); err != nil {
		return row, fmt.Errorf("storage: create elo row in %s: %w", table, err)
	}

	err = tx.QueryRow(ctx, query, args...).Scan(
		&row.Rating, &row.Tally.VoteCount, &row.Tally.WinCount, &row.Tally.LossCount, &row.Tally.TieCount, &row.LastUpdated)
	if err != nil {
		return row, fmt.Errorf("storage: reload elo row from %s: %w", table, err)
	}
	return row, nil
}

// SaveEloRow persists an updated Elo leaderboard row.
func SaveEloRow(ctx context.Context, tx pgx.Tx, row model.EloRow) error {
	table, col := eloTable(row.SubjectKind)
	tagClause := "tag_id IS NULL"
	args := []any{row.Rating, row.Tally.VoteCount, row.Tally.WinCount, row.Tally.LossCount, row.Tally.TieCount,
		row.SubjectID, row.MetricID, row.TestSetID}
	if row.TagID != nil {
		tagClause = "tag_id = $9"
		args = append(args, *row.TagID)
	}
	query := fmt.Sprintf(
		`UPDATE %s SET rating = $1, vote_count = $2, win_count = $3, loss_count = $4, tie_count = $5, last_updated = now()
		 WHERE %s = $6 AND metric_id = $7 AND test_set_id = $8 AND %s`, table, col, tagClause)
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("storage: save elo row to %s: %w", table, err)
	}
	return nil
}

// LoadOrCreateGlickoRow mirrors LoadOrCreateEloRow for the Glicko-2 tables.
func LoadOrCreateGlickoRow(ctx context.Context, tx pgx.Tx, key model.LeaderboardKey) (model.GlickoRow, error) {
	table, col := glickoTable(key.SubjectKind)
	row := model.GlickoRow{LeaderboardKey: key}

	tagClause := "tag_id IS NULL"
	args := []any{key.SubjectID, key.MetricID, key.TestSetID}
	if key.TagID != nil {
		tagClause = "tag_id = $4"
		args = append(args, *key.TagID)
	}

	query := fmt.Sprintf(
		`SELECT rating, deviation, volatility, vote_count, win_count, loss_count, tie_count, last_updated
		 FROM %s WHERE %s = $1 AND metric_id = $2 AND test_set_id = $3 AND %s
		 FOR UPDATE`, table, col, tagClause)

	err := tx.QueryRow(ctx, query, args...).Scan(
		&row.Rating, &row.Deviation, &row.Volatility,
		&row.Tally.VoteCount, &row.Tally.WinCount, &row.Tally.LossCount, &row.Tally.TieCount, &row.LastUpdated)
	if err == nil {
		return row, nil
	}
	if err != pgx.ErrNoRows {
		return row, fmt.Errorf("storage: load glicko row from %s: %w", table, err)
	}

	row.Rating = model.GlickoStartingRating
	row.Deviation = model.GlickoStartingDeviation
	row.Volatility = model.GlickoStartingVolatility
	insertQuery := fmt.Sprintf(
		`INSERT INTO %s (%s, metric_id, test_set_id, tag_id, rating, deviation, volatility)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT DO NOTHING`, table, col)
	if _, err := tx.Exec(ctx, insertQuery, key.SubjectID, key.MetricID, key.TestSetID, key.TagID,
		row.Rating, row.Deviation, row.Volatility); err != nil {
		return row, fmt.Errorf("storage: create glicko row in %s: %w", table, err)
	}

	err = tx.QueryRow(ctx, query, args...).Scan(
		&row.Rating, &row.Deviation, &row.Volatility,
		&row.Tally.VoteCount, &row.Tally.WinCount, &row.Tally.LossCount, &row.Tally.TieCount, &row.LastUpdated)
	if err != nil {
		return row, fmt.Errorf("storage: reload glicko row from %s: %w", table, err)
	}
	return row, nil
}

// SaveGlickoRow persists an updated Glicko-2 leaderboard row.
func SaveGlickoRow(ctx context.Context, tx pgx.Tx, row model.GlickoRow) error {
	table, col := glickoTable(row.SubjectKind)
	tagClause := "tag_id IS NULL"
	args := []any{row.Rating, row.Deviation, row.Volatility,
		row.Tally.VoteCount, row.Tally.WinCount, row.Tally.LossCount, row.Tally.TieCount,
		row.SubjectID, row.MetricID, row.TestSetID}
	if row.TagID != nil {
		tagClause = "tag_id = $11"
		args = append(args, *row.TagID)
	}
	query := fmt.Sprintf(
		`UPDATE %s SET rating = $1, deviation = $2, volatility = $3,
		     vote_count = $4, win_count = $5, loss_count = $6, tie_count = $7, last_updated = now()
		 WHERE %s = $8 AND metric_id = $9 AND test_set_id = $10 AND %s`, table, col, tagClause)
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("storage: save glicko row to %s: %w", table, err)
	}
	return nil
}
