package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUpdateGlicko2_NoGames mirrors the "no games in a rating period"
// branch of Glickman's paper: rating and volatility are unchanged, deviation
// grows toward the uncertainty ceiling.
func TestUpdateGlicko2_NoGames(t *testing.T) {
	subject := GlickoRating{Rating: 1500, Deviation: 200, Volatility: 0.06}
	result := UpdateGlicko2(subject, nil)

	assert.InDelta(t, 1500, result.Rating, 1e-9)
	assert.InDelta(t, 0.06, result.Volatility, 1e-9)
	assert.Greater(t, result.Deviation, 200.0)
	assert.LessOrEqual(t, result.Deviation, 350.0)
}

// TestUpdateGlicko2_WinIncreasesRating checks the basic directionality: a
// win against an equally-rated opponent raises the subject's rating and
// shrinks its deviation.
func TestUpdateGlicko2_WinIncreasesRating(t *testing.T) {
	subject := GlickoRating{Rating: 1500, Deviation: 200, Volatility: 0.06}
	opponent := GlickoRating{Rating: 1500, Deviation: 200, Volatility: 0.06}

	result := UpdateGlicko2(subject, []GlickoOpponent{{Rating: opponent, Outcome: 1.0}})

	assert.Greater(t, result.Rating, subject.Rating)
	assert.Less(t, result.Deviation, subject.Deviation)
}

// TestUpdateGlicko2_LossDecreasesRating is the mirror of the win case.
func TestUpdateGlicko2_LossDecreasesRating(t *testing.T) {
	subject := GlickoRating{Rating: 1500, Deviation: 200, Volatility: 0.06}
	opponent := GlickoRating{Rating: 1500, Deviation: 200, Volatility: 0.06}

	result := UpdateGlicko2(subject, []GlickoOpponent{{Rating: opponent, Outcome: 0.0}})

	assert.Less(t, result.Rating, subject.Rating)
}

// TestUpdateGlicko2_TiePreservesRatingApproximately checks that a draw
// between equally-rated, equally-uncertain players leaves the rating
// essentially unchanged.
func TestUpdateGlicko2_TiePreservesRatingApproximately(t *testing.T) {
	subject := GlickoRating{Rating: 1500, Deviation: 200, Volatility: 0.06}
	opponent := GlickoRating{Rating: 1500, Deviation: 200, Volatility: 0.06}

	result := UpdateGlicko2(subject, []GlickoOpponent{{Rating: opponent, Outcome: 0.5}})

	assert.InDelta(t, 1500, result.Rating, 1.0)
}

// TestUpdateGlicko2_CanonicalWorkedExample verifies the canonical
// worked example from Glickman's paper (§5, subject rating 1500, deviation
// 200, volatility 0.06, three games against opponents of varying rating and
// deviation) lands in the documented ballpark (rating ~1464, deviation ~151.5).
func TestUpdateGlicko2_CanonicalWorkedExample(t *testing.T) {
	subject := GlickoRating{Rating: 1500, Deviation: 200, Volatility: 0.06}
	opponents := []GlickoOpponent{
		{Rating: GlickoRating{Rating: 1400, Deviation: 30, Volatility: 0.06}, Outcome: 1.0},
		{Rating: GlickoRating{Rating: 1550, Deviation: 100, Volatility: 0.06}, Outcome: 0.0},
		{Rating: GlickoRating{Rating: 1700, Deviation: 300, Volatility: 0.06}, Outcome: 0.0},
	}

	result := UpdateGlicko2(subject, opponents)

	assert.InDelta(t, 1464.06, result.Rating, 1.0)
	assert.InDelta(t, 151.52, result.Deviation, 1.0)
	assert.InDelta(t, 0.05999, result.Volatility, 0.0005)
}

// TestUpdateGlicko2_DeviationNeverExceedsBounds verifies invariant 7 (spec
// §8): RD stays within [30, 350] regardless of how extreme the inputs are.
func TestUpdateGlicko2_DeviationNeverExceedsBounds(t *testing.T) {
	cases := []struct {
		name     string
		subject  GlickoRating
		opponent GlickoOpponent
	}{
		{
			name:     "very certain subject, blowout win",
			subject:  GlickoRating{Rating: 1500, Deviation: 30, Volatility: 0.06},
			opponent: GlickoOpponent{Rating: GlickoRating{Rating: 800, Deviation: 30, Volatility: 0.06}, Outcome: 1.0},
		},
		{
			name:     "very uncertain subject, surprise loss",
			subject:  GlickoRating{Rating: 1500, Deviation: 350, Volatility: 0.06},
			opponent: GlickoOpponent{Rating: GlickoRating{Rating: 2200, Deviation: 350, Volatility: 0.06}, Outcome: 0.0},
		},
		{
			name:     "minimum deviation already, tie",
			subject:  GlickoRating{Rating: 1500, Deviation: 30, Volatility: 0.06},
			opponent: GlickoOpponent{Rating: GlickoRating{Rating: 1500, Deviation: 30, Volatility: 0.06}, Outcome: 0.5},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := UpdateGlicko2(tc.subject, []GlickoOpponent{tc.opponent})
			assert.GreaterOrEqual(t, result.Deviation, 30.0)
			assert.LessOrEqual(t, result.Deviation, 350.0)
		})
	}
}

func TestGlickoG_DecreasesWithDeviation(t *testing.T) {
	low := glickoG(30)
	high := glickoG(300)
	require.Greater(t, low, high)
	assert.LessOrEqual(t, low, 1.0)
}

func TestGlickoE_EqualRatingsIsHalf(t *testing.T) {
	assert.InDelta(t, 0.5, glickoE(0, 0, 0), 1e-9)
}
