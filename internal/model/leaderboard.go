package model

import "time"

// SubjectKind identifies what a leaderboard row scores: a model, a prompt
// (via the prompt's own runs), or an individual sample.
type SubjectKind string

const (
	SubjectKindModel  SubjectKind = "model"
	SubjectKindPrompt SubjectKind = "prompt"
	SubjectKindSample SubjectKind = "sample"
)

// LeaderboardKey identifies one leaderboard row. TagID is nil for the
// "global" (tagless) row; a non-nil TagID scopes the row to that tag.
// Never mix global and tag-scoped rows in one query (spec §4.6).
type LeaderboardKey struct {
	SubjectKind SubjectKind
	SubjectID   int64
	MetricID    int64
	TestSetID   int64
	TagID       *int64
}

// EloStartingRating is the rating assigned to a leaderboard row on first use.
const EloStartingRating = 1000.0

// Glicko-2 starting parameters, on the library's native 1500-centered scale
// (spec §9 open question: this implementation stores 1500-centered and
// converts to 1000-centered only at the read/leaderboard boundary).
const (
	GlickoStartingRating     = 1500.0
	GlickoStartingDeviation  = 350.0
	GlickoStartingVolatility = 0.06
	GlickoMinDeviation       = 30.0
	GlickoMaxDeviation       = 350.0
	// GlickoDisplayOffset converts the internal 1500-centered scale to the
	// surface 1000-centered scale used by every other rating in this system.
	GlickoDisplayOffset = 500.0
)

// VoteTally holds the win/loss/tie/vote counters common to both rating
// systems' leaderboard rows.
type VoteTally struct {
	VoteCount int64
	WinCount  int64
	LossCount int64
	TieCount  int64
}

// Apply updates the tally in place for one comparison outcome viewed from
// the given subject's perspective.
func (t *VoteTally) Apply(win, tie bool) {
	t.VoteCount++
	switch {
	case tie:
		t.TieCount++
	case win:
		t.WinCount++
	default:
		t.LossCount++
	}
}

// EloRow is one Elo leaderboard entry.
type EloRow struct {
	LeaderboardKey
	Rating      float64
	Tally       VoteTally
	LastUpdated time.Time
}

// GlickoRow is one Glicko-2 leaderboard entry, stored on the internal
// 1500-centered scale.
type GlickoRow struct {
	LeaderboardKey
	Rating      float64
	Deviation   float64
	Volatility  float64
	Tally       VoteTally
	LastUpdated time.Time
}

// DisplayRating converts a Glicko-2 row's internal rating to the surface
// 1000-centered convention shared with Elo.
func (g GlickoRow) DisplayRating() float64 {
	return g.Rating - GlickoDisplayOffset
}

// LeaderboardEntry is a read-facing, display-joined leaderboard row (C6).
// SubjectName/SubjectSlug resolve to the owning Model, Prompt, or Sample
// depending on Kind; Slug is set only for model subjects.
type LeaderboardEntry struct {
	Kind        SubjectKind
	SubjectID   int64
	SubjectName string
	SubjectSlug *string
	Rating      float64
	Deviation   *float64 // Set only for Glicko entries.
	VoteCount   int64
	WinCount    int64
	LossCount   int64
	TieCount    int64
	LastUpdated time.Time
	TagID       *int64
	TagName     *string
}
