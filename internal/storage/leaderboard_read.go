package storage

import (
	"context"
	"fmt"

	"github.com/mc-bench/scoring-core/internal/model"
)

// subjectDisplay names the joined table/column pair for display, per
// subject kind (spec §4.6: "joined to Model/Prompt/Sample/Tag for display").
func subjectDisplay(kind model.SubjectKind) (joinTable, joinColumn, nameColumn string, hasSlug bool) {
	switch kind {
	case model.SubjectKindModel:
		return "specification.model", "model_id", "name", true
	case model.SubjectKindPrompt:
		return "specification.prompt", "prompt_id", "name", false
	default:
		return "sample.sample", "sample_id", "external_id::text", false
	}
}

// ListEloLeaderboard returns Elo leaderboard entries for (kind, metricID,
// testSetID), filtered to global (tagID nil) or one tag-scoped row set,
// with at least minVotes votes, ordered by rating descending.
func (db *DB) ListEloLeaderboard(
	ctx context.Context, kind model.SubjectKind, metricID, testSetID int64, tagID *int64, minVotes int64,
) ([]model.LeaderboardEntry, error) {
	table, col := eloTable(kind)
	joinTable, joinCol, nameCol, hasSlug := subjectDisplay(kind)

	slugSelect := "NULL"
	if hasSlug {
		slugSelect = "j.slug"
	}

	tagClause := "l.tag_id IS NULL"
	args := []any{metricID, testSetID, minVotes}
	if tagID != nil {
		tagClause = "l.tag_id = $4"
		args = append(args, *tagID)
	}

	query := fmt.Sprintf(`
		SELECT l.%s, j.%s, %s, l.rating, l.vote_count, l.win_count, l.loss_count, l.tie_count,
		       l.last_updated, l.tag_id, t.name
		FROM %s l
		JOIN %s j ON j.id = l.%s
		LEFT JOIN specification.tag t ON t.id = l.tag_id
		WHERE l.metric_id = $1 AND l.test_set_id = $2 AND l.vote_count >= $3 AND %s
		ORDER BY l.rating DESC`,
		col, nameCol, slugSelect, table, joinTable, joinCol, tagClause)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list elo leaderboard from %s: %w", table, err)
	}
	defer rows.Close()

	var out []model.LeaderboardEntry
	for rows.Next() {
		e := model.LeaderboardEntry{Kind: kind}
		if err := rows.Scan(&e.SubjectID, &e.SubjectName, &e.SubjectSlug, &e.Rating,
			&e.VoteCount, &e.WinCount, &e.LossCount, &e.TieCount, &e.LastUpdated, &e.TagID, &e.TagName); err != nil {
			return nil, fmt.Errorf("storage: scan elo leaderboard row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListGlickoLeaderboard mirrors ListEloLeaderboard for the Glicko-2
// tables, converting to the display (1000-centered) scale and including
// the rating deviation (spec §9 open question decision).
func (db *DB) ListGlickoLeaderboard(
	ctx context.Context, kind model.SubjectKind, metricID, testSetID int64, tagID *int64, minVotes int64,
) ([]model.LeaderboardEntry, error) {
	table, col := glickoTable(kind)
	joinTable, joinCol, nameCol, hasSlug := subjectDisplay(kind)

	slugSelect := "NULL"
	if hasSlug {
		slugSelect = "j.slug"
	}

	tagClause := "l.tag_id IS NULL"
	args := []any{metricID, testSetID, minVotes}
	if tagID != nil {
		tagClause = "l.tag_id = $4"
		args = append(args, *tagID)
	}

	query := fmt.Sprintf(`
		SELECT l.%s, j.%s, %s, l.rating, l.deviation, l.vote_count, l.win_count, l.loss_count, l.tie_count,
		       l.last_updated, l.tag_id, t.name
		FROM %s l
		JOIN %s j ON j.id = l.%s
		LEFT JOIN specification.tag t ON t.id = l.tag_id
		WHERE l.metric_id = $1 AND l.test_set_id = $2 AND l.vote_count >= $3 AND %s
		ORDER BY l.rating DESC`,
		col, nameCol, slugSelect, table, joinTable, joinCol, tagClause)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list glicko leaderboard from %s: %w", table, err)
	}
	defer rows.Close()

	var out []model.LeaderboardEntry
	for rows.Next() {
		var deviation float64
		e := model.LeaderboardEntry{Kind: kind}
		if err := rows.Scan(&e.SubjectID, &e.SubjectName, &e.SubjectSlug, &e.Rating, &deviation,
			&e.VoteCount, &e.WinCount, &e.LossCount, &e.TieCount, &e.LastUpdated, &e.TagID, &e.TagName); err != nil {
			return nil, fmt.Errorf("storage: scan glicko leaderboard row: %w", err)
		}
		e.Rating -= model.GlickoDisplayOffset
		e.Deviation = &deviation
		out = append(out, e)
	}
	return out, rows.Err()
}
