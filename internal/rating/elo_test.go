package rating

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateElo_EqualRatingsWinLoss(t *testing.T) {
	winner := UpdateElo(1000, 1000, EloWin)
	loser := UpdateElo(1000, 1000, EloLoss)

	assert.InDelta(t, 1016, winner, 0.01)
	assert.InDelta(t, 984, loser, 0.01)
}

func TestUpdateElo_EqualRatingsTie(t *testing.T) {
	a := UpdateElo(1000, 1000, EloTie)
	assert.InDelta(t, 1000, a, 0.01)
}

func TestUpdateElo_HigherRatedExpectedToWin(t *testing.T) {
	// A big favorite (1600) beating a big underdog (1000) gains very little.
	favoriteWins := UpdateElo(1600, 1000, EloWin)
	assert.InDelta(t, 1600, favoriteWins, 1.0)

	// The same favorite losing to the underdog loses a lot.
	favoriteLoses := UpdateElo(1600, 1000, EloLoss)
	assert.Less(t, favoriteLoses, 1600.0-30)
}

// TestUpdateElo_ZeroSum verifies invariant 6 (spec §8): applying UpdateElo to
// both sides of a win/loss with complementary outcomes preserves the total
// rating across the pair.
func TestUpdateElo_ZeroSum(t *testing.T) {
	cases := []struct {
		subject, opponent float64
	}{
		{1000, 1000},
		{1200, 900},
		{800, 1400},
		{1500, 1500},
	}

	for _, tc := range cases {
		winnerNew := UpdateElo(tc.subject, tc.opponent, EloWin)
		loserNew := UpdateElo(tc.opponent, tc.subject, EloLoss)

		before := tc.subject + tc.opponent
		after := winnerNew + loserNew
		assert.InDelta(t, before, after, 1e-9, "pool total must be conserved for subject=%v opponent=%v", tc.subject, tc.opponent)
	}
}

// TestUpdateElo_ZeroSumTie verifies the tie case leaves the pool unchanged
// too (each side's outcome is 0.5, the symmetric case of invariant 6).
func TestUpdateElo_ZeroSumTie(t *testing.T) {
	a := UpdateElo(1200, 1000, EloTie)
	b := UpdateElo(1000, 1200, EloTie)

	before := 1200.0 + 1000.0
	after := a + b
	assert.InDelta(t, before, after, 1e-9)
}

func TestEloExpected_Symmetric(t *testing.T) {
	e1 := eloExpected(1000, 1200)
	e2 := eloExpected(1200, 1000)
	assert.InDelta(t, 1.0, e1+e2, 1e-9)
}

func TestEloExpected_EqualRatingsIsHalf(t *testing.T) {
	assert.InDelta(t, 0.5, eloExpected(1500, 1500), 1e-9)
}

func TestUpdateElo_KFactorBoundsMagnitude(t *testing.T) {
	// No single update can move a rating by more than EloK regardless of
	// how lopsided the expected score is.
	moved := math.Abs(UpdateElo(400, 2400, EloWin) - 400)
	assert.LessOrEqual(t, moved, EloK+1e-9)
}
