package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mc-bench/scoring-core/internal/model"
)

// MetricByExternalID resolves an external metric UUID to its internal row.
// Returns ErrNotFound if unknown (surfaced by selector as InvalidMetric).
func (db *DB) MetricByExternalID(ctx context.Context, externalID uuid.UUID) (model.Metric, error) {
	var m model.Metric
	err := db.pool.QueryRow(ctx,
		`SELECT id, external_id, name FROM scoring.metric WHERE external_id = $1`,
		externalID,
	).Scan(&m.ID, &m.ExternalID, &m.Name)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Metric{}, ErrNotFound
		}
		return model.Metric{}, fmt.Errorf("storage: metric by external id: %w", err)
	}
	return m, nil
}

// TestSetByExternalID resolves an external test-set UUID to its internal row.
func (db *DB) TestSetByExternalID(ctx context.Context, externalID uuid.UUID) (model.TestSet, error) {
	var ts model.TestSet
	err := db.pool.QueryRow(ctx,
		`SELECT id, external_id, name FROM sample.test_set WHERE external_id = $1`,
		externalID,
	).Scan(&ts.ID, &ts.ExternalID, &ts.Name)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.TestSet{}, ErrNotFound
		}
		return model.TestSet{}, fmt.Errorf("storage: test set by external id: %w", err)
	}
	return ts, nil
}

// TagByExternalID resolves an external tag UUID to its internal row.
func (db *DB) TagByExternalID(ctx context.Context, externalID uuid.UUID) (model.Tag, error) {
	var t model.Tag
	err := db.pool.QueryRow(ctx,
		`SELECT id, external_id, name, calculate_score FROM specification.tag WHERE external_id = $1`,
		externalID,
	).Scan(&t.ID, &t.ExternalID, &t.Name, &t.CalculateScore)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Tag{}, ErrNotFound
		}
		return model.Tag{}, fmt.Errorf("storage: tag by external id: %w", err)
	}
	return t, nil
}

// DefaultTestSetFor resolves a voter category to its default test set by
// name, mirroring the source's "Authenticated Test Set" / "Unauthenticated
// Test Set" lookup (SPEC_FULL.md §SUPPLEMENTED FEATURES #2).
func (db *DB) DefaultTestSetFor(ctx context.Context, category model.VoterCategory) (model.TestSet, error) {
	name := "Unauthenticated Test Set"
	if category == model.VoterCategoryAuthenticated {
		name = "Authenticated Test Set"
	}

	var ts model.TestSet
	err := db.pool.QueryRow(ctx,
		`SELECT id, external_id, name FROM sample.test_set WHERE name = $1`,
		name,
	).Scan(&ts.ID, &ts.ExternalID, &ts.Name)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.TestSet{}, ErrNotFound
		}
		return model.TestSet{}, fmt.Errorf("storage: default test set: %w", err)
	}
	return ts, nil
}

// EligibleCorrelationIDs returns, for a (testSetId), every
// comparison_correlation_id with at least two distinct models' approved
// samples present, along with the candidate samples grouped by correlation.
// This is the eligibility CTE from the source's prepared statement
// rewritten as an explicit query (spec §4.1, §9).
func (db *DB) EligibleCorrelationIDs(ctx context.Context, testSetID int64) (map[uuid.UUID][]model.CandidateSample, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT s.comparison_correlation_id, s.id, s.external_id, s.comparison_sample_id,
		        s.run_id, s.test_set_id, s.approval_state, s.experimental_state,
		        s.is_complete, s.is_pending, r.model_id
		 FROM sample.sample s
		 JOIN specification.run r ON r.id = s.run_id
		 WHERE s.test_set_id = $1
		   AND s.approval_state = 'APPROVED'
		   AND s.experimental_state != 'DEPRECATED'
		   AND s.comparison_correlation_id IN (
		       SELECT s2.comparison_correlation_id
		       FROM sample.sample s2
		       JOIN specification.run r2 ON r2.id = s2.run_id
		       WHERE s2.test_set_id = $1
		         AND s2.approval_state = 'APPROVED'
		         AND s2.experimental_state != 'DEPRECATED'
		       GROUP BY s2.comparison_correlation_id
		       HAVING count(DISTINCT r2.model_id) >= 2
		   )`,
		testSetID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: eligible correlation ids: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]model.CandidateSample)
	for rows.Next() {
		var correlationID uuid.UUID
		var cs model.CandidateSample
		var s model.Sample
		if err := rows.Scan(
			&correlationID, &s.ID, &s.ExternalID, &s.ComparisonSampleID,
			&s.RunID, &s.TestSetID, &s.ApprovalState, &s.ExperimentalState,
			&s.IsComplete, &s.IsPending, &cs.ModelID,
		); err != nil {
			return nil, fmt.Errorf("storage: scan candidate sample: %w", err)
		}
		s.ComparisonCorrelationID = correlationID
		cs.Sample = s
		out[correlationID] = append(out[correlationID], cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: eligible correlation ids: %w", err)
	}
	return out, nil
}

// GlobalModelVoteCounts returns every model's vote count in the tagless
// (subject=model) leaderboard for (metricId, testSetId), used by the
// priority-mode selector to compute priority scores against the mean.
func (db *DB) GlobalModelVoteCounts(ctx context.Context, metricID, testSetID int64) ([]model.ModelVoteCount, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT model_id, vote_count FROM scoring.model_leaderboard
		 WHERE metric_id = $1 AND test_set_id = $2 AND tag_id IS NULL`,
		metricID, testSetID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: global model vote counts: %w", err)
	}
	defer rows.Close()

	var out []model.ModelVoteCount
	for rows.Next() {
		var mv model.ModelVoteCount
		if err := rows.Scan(&mv.ModelID, &mv.VoteCount); err != nil {
			return nil, fmt.Errorf("storage: scan model vote count: %w", err)
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}

// Prompt returns a prompt's build specification, used to populate a
// pair-batch response's buildDescription field.
func (db *DB) Prompt(ctx context.Context, promptID int64) (model.Prompt, error) {
	var p model.Prompt
	err := db.pool.QueryRow(ctx,
		`SELECT id, external_id, name, build_specification FROM specification.prompt WHERE id = $1`,
		promptID,
	).Scan(&p.ID, &p.ExternalID, &p.Name, &p.BuildSpecification)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Prompt{}, ErrNotFound
		}
		return model.Prompt{}, fmt.Errorf("storage: prompt: %w", err)
	}
	return p, nil
}

// PromptTags returns the tags carried by a prompt.
func (db *DB) PromptTags(ctx context.Context, promptID int64) ([]model.Tag, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT t.id, t.external_id, t.name, t.calculate_score
		 FROM specification.tag t
		 JOIN specification.prompt_tag pt ON pt.tag_id = t.id
		 WHERE pt.prompt_id = $1 AND t.calculate_score = true`,
		promptID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: prompt tags: %w", err)
	}
	defer rows.Close()

	var out []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.ExternalID, &t.Name, &t.CalculateScore); err != nil {
			return nil, fmt.Errorf("storage: scan prompt tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Run returns a run by id.
func (db *DB) Run(ctx context.Context, runID int64) (model.Run, error) {
	var r model.Run
	err := db.pool.QueryRow(ctx,
		`SELECT id, model_id, prompt_id, template_id FROM specification.run WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.ModelID, &r.PromptID, &r.TemplateID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Run{}, ErrNotFound
		}
		return model.Run{}, fmt.Errorf("storage: run: %w", err)
	}
	return r, nil
}

// Model returns a model by id.
func (db *DB) Model(ctx context.Context, modelID int64) (model.Model, error) {
	var m model.Model
	err := db.pool.QueryRow(ctx,
		`SELECT id, external_id, name, slug FROM specification.model WHERE id = $1`,
		modelID,
	).Scan(&m.ID, &m.ExternalID, &m.Name, &m.Slug)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Model{}, ErrNotFound
		}
		return model.Model{}, fmt.Errorf("storage: model: %w", err)
	}
	return m, nil
}

// SampleArtifact returns the rendered-comparison artifact for a sample.
func (db *DB) SampleArtifact(ctx context.Context, sampleID int64) (model.Artifact, error) {
	var a model.Artifact
	a.SampleID = sampleID
	err := db.pool.QueryRow(ctx,
		`SELECT kind, bucket, key FROM sample.artifact WHERE sample_id = $1 AND kind = $2`,
		sampleID, model.ArtifactKindRenderedComparisonSample,
	).Scan(&a.Kind, &a.Bucket, &a.Key)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Artifact{}, ErrNotFound
		}
		return model.Artifact{}, fmt.Errorf("storage: sample artifact: %w", err)
	}
	return a, nil
}

// SamplesByID loads samples by internal id, for VoteRecorder's referential
// checks (SamplesNotFound, TestSetMismatch).
func (db *DB) SamplesByID(ctx context.Context, ids []int64) (map[int64]model.Sample, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, external_id, comparison_correlation_id, comparison_sample_id,
		        run_id, test_set_id, approval_state, experimental_state, is_complete, is_pending
		 FROM sample.sample WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: samples by id: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]model.Sample, len(ids))
	for rows.Next() {
		var s model.Sample
		if err := rows.Scan(
			&s.ID, &s.ExternalID, &s.ComparisonCorrelationID, &s.ComparisonSampleID,
			&s.RunID, &s.TestSetID, &s.ApprovalState, &s.ExperimentalState,
			&s.IsComplete, &s.IsPending,
		); err != nil {
			return nil, fmt.Errorf("storage: scan sample: %w", err)
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}
