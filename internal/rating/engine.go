package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/metric"

	"github.com/mc-bench/scoring-core/internal/gate"
	"github.com/mc-bench/scoring-core/internal/model"
	"github.com/mc-bench/scoring-core/internal/storage"
)

// DefaultBatchSize bounds how many comparisons one Engine.Run call absorbs
// (spec §4.5: "bounded batches").
const DefaultBatchSize = 1000

// Engine drains unprocessed comparisons for one rating system and folds
// them into the Elo or Glicko-2 leaderboards (spec §4.5).
type Engine struct {
	db         *storage.DB
	gate       *gate.SingleFlightGate
	logger     *slog.Logger
	batchSize  int
	errCounter metric.Int64Counter
}

// NewEngine wires an Engine against its storage layer, the gate it releases
// on normal exit, and an optional OTEL meter for the rating-math error
// counter. meter may be nil in tests.
func NewEngine(db *storage.DB, g *gate.SingleFlightGate, logger *slog.Logger, meter metric.Meter) (*Engine, error) {
	e := &Engine{db: db, gate: g, logger: logger, batchSize: DefaultBatchSize}
	if meter != nil {
		counter, err := meter.Int64Counter("rating_engine_skipped_comparisons",
			metric.WithDescription("comparisons skipped by RatingEngine due to recoverable per-comparison errors"))
		if err != nil {
			return nil, fmt.Errorf("rating: create error counter: %w", err)
		}
		e.errCounter = counter
	}
	return e, nil
}

// Run drains up to one batch of unprocessed comparisons for system: it
// locks the rating tables, reads pending comparisons in ascending id
// order, applies the corresponding rating update to each, marks them
// processed, and commits once for the whole batch (spec §4.5 "Ordering
// guarantees": atomic per comparison, committed at batch granularity).
func (e *Engine) Run(ctx context.Context, system model.RatingSystem) (processed int, err error) {
	tx, err := e.db.BeginRatingRun(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	ids, err := storage.PendingComparisonIDs(ctx, tx, system, e.batchSize)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		if err := tx.Commit(ctx); err != nil {
			return 0, err
		}
		e.releaseGate(ctx, system)
		return 0, nil
	}

	for _, id := range ids {
		if err := e.applyOne(ctx, tx, system, id); err != nil {
			if isRecoverable(err) {
				e.logger.Warn("rating: skipping comparison", "comparison_id", id, "system", system, "error", err)
				if e.errCounter != nil {
					e.errCounter.Add(ctx, 1)
				}
				continue
			}
			return 0, fmt.Errorf("rating: apply comparison %d: %w", id, err)
		}
		processed++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("rating: commit batch: %w", err)
	}
	e.releaseGate(ctx, system)
	return processed, nil
}

// releaseGate deletes the gate key on a normal exit. Failure is logged,
// not propagated: the worst case is the next trigger waits out the rest of
// the TTL instead of coalescing immediately (spec §4.4).
func (e *Engine) releaseGate(ctx context.Context, system model.RatingSystem) {
	if e.gate == nil {
		return
	}
	if err := e.gate.Release(ctx, system); err != nil {
		e.logger.Warn("rating: failed to release gate", "system", system, "error", err)
	}
}

// isRecoverable reports whether a per-comparison failure should be skipped
// (malformed data for this one comparison) rather than aborting the whole
// batch (spec §4.5: "RatingEngine recovers locally from per-comparison
// errors").
func isRecoverable(err error) bool {
	return errors.Is(err, errMissingRanks) || errors.Is(err, errSampleGone)
}

var (
	errMissingRanks = errors.New("rating: comparison does not have exactly two ranks")
	errSampleGone   = errors.New("rating: referenced sample or run no longer exists")
)

func (e *Engine) applyOne(ctx context.Context, tx pgx.Tx, system model.RatingSystem, comparisonID int64) error {
	detail, err := storage.LoadComparisonDetail(ctx, tx, comparisonID)
	if err != nil {
		return fmt.Errorf("%w: %v", errSampleGone, err)
	}

	outcomeA := EloTie
	if !detail.Outcome.Tie {
		if detail.Outcome.Winner == detail.Outcome.SampleA {
			outcomeA = EloWin
		} else {
			outcomeA = EloLoss
		}
	}

	pairs := []struct {
		kind     model.SubjectKind
		idA, idB int64
		tags     []model.Tag
	}{
		{model.SubjectKindModel, detail.RunA.ModelID, detail.RunB.ModelID, sharedTags(detail.TagsA, detail.TagsB)},
		{model.SubjectKindPrompt, detail.RunA.PromptID, detail.RunB.PromptID, sharedTags(detail.TagsA, detail.TagsB)},
		{model.SubjectKindSample, detail.SampleA.ID, detail.SampleB.ID, sharedTags(detail.TagsA, detail.TagsB)},
	}

	for _, p := range pairs {
		if err := e.applyPair(ctx, tx, system, p.kind, p.idA, p.idB,
			detail.Outcome.MetricID, detail.Outcome.TestSetID, outcomeA, nil); err != nil {
			return err
		}
		for _, tag := range p.tags {
			tagID := tag.ID
			if err := e.applyPair(ctx, tx, system, p.kind, p.idA, p.idB,
				detail.Outcome.MetricID, detail.Outcome.TestSetID, outcomeA, &tagID); err != nil {
				return err
			}
		}
	}

	return storage.MarkProcessed(ctx, tx, comparisonID, system)
}

// sharedTags returns the tags common to both samples' prompts, deduplicated
// by id. A comparison's two samples share a correlation id and therefore a
// prompt (the glossary's "same (template, prompt) pair"), so tagsA and
// tagsB are normally identical sets; intersecting rather than concatenating
// them mirrors the original `glicko_calculation.py`
// (`set(winner.tag_ids) & set(loser.tag_ids)`) and keeps each tag-scoped
// leaderboard row touched exactly once per comparison instead of twice.
func sharedTags(tagsA, tagsB []model.Tag) []model.Tag {
	inB := make(map[int64]bool, len(tagsB))
	for _, t := range tagsB {
		inB[t.ID] = true
	}
	seen := make(map[int64]bool, len(tagsA))
	shared := make([]model.Tag, 0, len(tagsA))
	for _, t := range tagsA {
		if inB[t.ID] && !seen[t.ID] {
			seen[t.ID] = true
			shared = append(shared, t)
		}
	}
	return shared
}

// applyPair updates one subject pair's leaderboard row (tagless when tagID
// is nil, tag-scoped otherwise) using each side's pre-comparison rating as
// the other's opponent (spec §4.5: "do not use intermediate values updated
// within the same comparison").
func (e *Engine) applyPair(
	ctx context.Context, tx pgx.Tx, system model.RatingSystem,
	kind model.SubjectKind, idA, idB, metricID, testSetID int64,
	outcomeA EloOutcome, tagID *int64,
) error {
	keyA := model.LeaderboardKey{SubjectKind: kind, SubjectID: idA, MetricID: metricID, TestSetID: testSetID, TagID: tagID}

	// A comparison's two samples share a correlation id and therefore a
	// prompt (same (template, prompt) pair, per the glossary), so for
	// SubjectKindPrompt idA == idB: both "sides" of the comparison resolve
	// to the same leaderboard row. Treat that as one participation with no
	// rating delta rather than loading the row twice and overwriting it
	// with whichever of the two saves runs last.
	if idA == idB {
		return e.applySelfPair(ctx, tx, system, keyA)
	}

	keyB := model.LeaderboardKey{SubjectKind: kind, SubjectID: idB, MetricID: metricID, TestSetID: testSetID, TagID: tagID}

	switch system {
	case model.RatingSystemElo:
		rowA, err := storage.LoadOrCreateEloRow(ctx, tx, keyA)
		if err != nil {
			return err
		}
		rowB, err := storage.LoadOrCreateEloRow(ctx, tx, keyB)
		if err != nil {
			return err
		}

		preA, preB := rowA.Rating, rowB.Rating
		rowA.Rating = UpdateElo(preA, preB, outcomeA)
		rowB.Rating = UpdateElo(preB, preA, 1-outcomeA)
		rowA.Tally.Apply(outcomeA == EloWin, outcomeA == EloTie)
		rowB.Tally.Apply(outcomeA == EloLoss, outcomeA == EloTie)

		if err := storage.SaveEloRow(ctx, tx, rowA); err != nil {
			return err
		}
		return storage.SaveEloRow(ctx, tx, rowB)

	case model.RatingSystemGlicko:
		rowA, err := storage.LoadOrCreateGlickoRow(ctx, tx, keyA)
		if err != nil {
			return err
		}
		rowB, err := storage.LoadOrCreateGlickoRow(ctx, tx, keyB)
		if err != nil {
			return err
		}

		preA := GlickoRating{Rating: rowA.Rating, Deviation: rowA.Deviation, Volatility: rowA.Volatility}
		preB := GlickoRating{Rating: rowB.Rating, Deviation: rowB.Deviation, Volatility: rowB.Volatility}

		outA := float64(outcomeA)
		outB := 1 - outA
		newA := UpdateGlicko2(preA, []GlickoOpponent{{Rating: preB, Outcome: outA}})
		newB := UpdateGlicko2(preB, []GlickoOpponent{{Rating: preA, Outcome: outB}})

		rowA.Rating, rowA.Deviation, rowA.Volatility = newA.Rating, newA.Deviation, newA.Volatility
		rowB.Rating, rowB.Deviation, rowB.Volatility = newB.Rating, newB.Deviation, newB.Volatility
		rowA.Tally.Apply(outcomeA == EloWin, outcomeA == EloTie)
		rowB.Tally.Apply(outcomeA == EloLoss, outcomeA == EloTie)

		if err := storage.SaveGlickoRow(ctx, tx, rowA); err != nil {
			return err
		}
		return storage.SaveGlickoRow(ctx, tx, rowB)

	default:
		return fmt.Errorf("rating: unknown rating system %q", system)
	}
}

// applySelfPair records one comparison's participation against a
// leaderboard row that is the same subject on both sides (the
// SubjectKindPrompt degeneracy applyPair hands off when idA == idB): the
// vote/tie counters advance once and the rating is left untouched, since a
// subject cannot meaningfully win or lose against itself.
func (e *Engine) applySelfPair(ctx context.Context, tx pgx.Tx, system model.RatingSystem, key model.LeaderboardKey) error {
	switch system {
	case model.RatingSystemElo:
		row, err := storage.LoadOrCreateEloRow(ctx, tx, key)
		if err != nil {
			return err
		}
		row.Tally.Apply(false, true)
		return storage.SaveEloRow(ctx, tx, row)

	case model.RatingSystemGlicko:
		row, err := storage.LoadOrCreateGlickoRow(ctx, tx, key)
		if err != nil {
			return err
		}
		row.Tally.Apply(false, true)
		return storage.SaveGlickoRow(ctx, tx, row)

	default:
		return fmt.Errorf("rating: unknown rating system %q", system)
	}
}
