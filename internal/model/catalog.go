// Package model holds the domain types shared across the comparison-and-rating
// subsystem: catalog dimensions (Model, Prompt, Template, Tag, TestSet, Metric,
// Run, Sample), the Comparison/ComparisonRank/ProcessedComparison tuple, the
// leaderboard rows, and the ephemeral PairToken.
package model

import (
	"github.com/google/uuid"
)

// ApprovalState is a Sample's moderation state.
type ApprovalState string

const (
	ApprovalStatePending  ApprovalState = "PENDING"
	ApprovalStateApproved ApprovalState = "APPROVED"
	ApprovalStateRejected ApprovalState = "REJECTED"
)

// ExperimentalState marks whether a Sample's producing Run used experimental
// (not yet promoted) model/prompt/template configuration.
type ExperimentalState string

const (
	ExperimentalStateReleased   ExperimentalState = "RELEASED"
	ExperimentalStateExperiment ExperimentalState = "EXPERIMENTAL"
	ExperimentalStateDeprecated ExperimentalState = "DEPRECATED"
)

// VoterCategory distinguishes the two default test-set mappings in spec §4.1.
type VoterCategory string

const (
	VoterCategoryAuthenticated   VoterCategory = "authenticated"
	VoterCategoryUnauthenticated VoterCategory = "unauthenticated"
)

// Model is a benchmarked generative model. Read-only for this subsystem.
type Model struct {
	ID         int64
	ExternalID uuid.UUID
	Name       string
	Slug       string
}

// Template is a build-specification template. Read-only for this subsystem.
type Template struct {
	ID         int64
	ExternalID uuid.UUID
	Name       string
}

// Prompt carries zero or more Tags and a build-specification string used to
// render a build description for the pair-batch response.
type Prompt struct {
	ID               int64
	ExternalID       uuid.UUID
	Name             string
	BuildSpecification string
}

// Tag is a categorical label attached to a Prompt. Only tags with
// CalculateScore=true participate in tag-scoped leaderboards.
type Tag struct {
	ID             int64
	ExternalID     uuid.UUID
	Name           string
	CalculateScore bool
}

// TestSet is a curated collection of samples evaluated together.
type TestSet struct {
	ID         int64
	ExternalID uuid.UUID
	Name       string
}

// Metric is a scoring dimension (e.g. "build quality").
type Metric struct {
	ID         int64
	ExternalID uuid.UUID
	Name       string
}

// Run produced a Sample from one (Model, Prompt, Template) triple.
// Read-only for this subsystem.
type Run struct {
	ID         int64
	ModelID    int64
	PromptID   int64
	TemplateID int64
}

// Sample is one rendered output of a Run, eligible for comparison once
// approved, bound to a test set, and not deprecated.
type Sample struct {
	ID                      int64
	ExternalID              uuid.UUID
	ComparisonCorrelationID uuid.UUID
	ComparisonSampleID      uuid.UUID
	RunID                   int64
	TestSetID               *int64
	ApprovalState           ApprovalState
	ExperimentalState       ExperimentalState
	IsComplete              bool
	IsPending               bool
}

// Eligible reports whether the sample may be offered for comparison, per
// spec §3: approved, bound to a test set, and not deprecated.
func (s Sample) Eligible() bool {
	return s.ApprovalState == ApprovalStateApproved &&
		s.TestSetID != nil &&
		s.ExperimentalState != ExperimentalStateDeprecated
}

// ArtifactKind identifies the rendered-asset kind used for comparison.
const ArtifactKindRenderedComparisonSample = "RENDERED_MODEL_GLB_COMPARISON_SAMPLE"

// Artifact is an object-store pointer to a rendered sample asset.
type Artifact struct {
	SampleID int64
	Kind     string
	Bucket   string
	Key      string
}

// CandidateSample is the join of a Sample with its owning Model, used during
// selection and rating to avoid N+1 lookups.
type CandidateSample struct {
	Sample  Sample
	ModelID int64
}

// ModelVoteCount is a model's total vote count in a given (metric, test set)
// global (tagless) leaderboard, used by the priority-mode selector.
type ModelVoteCount struct {
	ModelID   int64
	VoteCount int64
}
