package model

import (
	"time"

	"github.com/google/uuid"
)

// RatingSystem identifies one of the two independent rating computations.
type RatingSystem string

const (
	RatingSystemElo    RatingSystem = "ELO"
	RatingSystemGlicko RatingSystem = "GLICKO"
)

// Valid reports whether s is one of the known rating systems.
func (s RatingSystem) Valid() bool {
	return s == RatingSystemElo || s == RatingSystemGlicko
}

// Rank is a comparison outcome position: 1 (winner, or tied-for-first) or
// 2 (loser). Two rank-1 entries denote a tie.
type Rank int

const (
	RankFirst  Rank = 1
	RankSecond Rank = 2
)

// Comparison is one recorded pairwise vote. Exactly one of UserID or
// IdentificationTokenID is set (spec §3).
type Comparison struct {
	ID                    int64
	ComparisonGroupID     uuid.UUID
	UserID                *int64
	IdentificationTokenID *int64
	SessionID             string
	MetricID              int64
	TestSetID             int64
	Created               time.Time
}

// ComparisonRank binds a Sample to its Rank within a Comparison.
type ComparisonRank struct {
	ComparisonID int64
	SampleID     int64
	Rank         Rank
}

// ProcessedComparison marks that a RatingSystem has absorbed a Comparison.
// At most one row exists per (ComparisonID, RatingSystem) pair.
type ProcessedComparison struct {
	ComparisonID int64
	RatingSystem RatingSystem
	ProcessedAt  time.Time
}

// ComparisonOutcome is the resolved shape of a two-sample comparison after
// partitioning its ranks: either a strict win/loss or a tie.
type ComparisonOutcome struct {
	ComparisonID int64
	MetricID     int64
	TestSetID    int64
	SampleA      int64
	SampleB      int64
	Tie          bool
	// Winner is SampleA or SampleB; zero value when Tie is true.
	Winner int64
}

// IsWin reports whether subjectSampleID is the winner of this outcome.
func (o ComparisonOutcome) IsWin(subjectSampleID int64) bool {
	return !o.Tie && o.Winner == subjectSampleID
}
