// Package rating implements the two independent rating computations
// RatingEngine applies to a batch of comparisons: Elo and Glicko-2.
package rating

import "math"

// glicko2Scale converts between the public Glicko rating/deviation scale
// and the internal Glicko-2 scale the update math operates on.
const glicko2Scale = 173.7178

const (
	glickoTau     = 0.5
	glickoEpsilon = 0.000001
)

// GlickoRating is one side's rating state going into or coming out of a
// Glicko-2 update.
type GlickoRating struct {
	Rating     float64
	Deviation  float64
	Volatility float64
}

// GlickoOpponent pairs an opponent's rating with the outcome from the
// subject's perspective: 1.0 win, 0.5 draw, 0.0 loss.
type GlickoOpponent struct {
	Rating  GlickoRating
	Outcome float64
}

func glickoG(deviation float64) float64 {
	return 1.0 / math.Sqrt(1.0+(3.0*deviation*deviation)/(math.Pi*math.Pi))
}

func glickoE(mu, opponentMu, opponentPhi float64) float64 {
	return 1.0 / (1.0 + math.Exp(-glickoG(opponentPhi)*(mu-opponentMu)))
}

// glickoF is the volatility-update objective function from Glickman's
// Glicko-2 paper, §5 step 4.
func glickoF(x, delta, phi, volatility, v float64) float64 {
	ex := math.Exp(x)
	part1 := ex * (delta*delta - phi*phi - v - ex) / (2.0 * math.Pow(phi*phi+v+ex, 2))
	part2 := (x - math.Log(volatility*volatility)) / (glickoTau * glickoTau)
	return part1 - part2
}

// UpdateGlicko2 applies one rating period's worth of games to subject,
// following the canonical Glicko-2 update algorithm. With a single
// opponent (this subsystem applies one update per processed comparison)
// this reduces to the standard pairwise case; the loop structure still
// generalizes to multiple opponents in one call.
func UpdateGlicko2(subject GlickoRating, opponents []GlickoOpponent) GlickoRating {
	mu := (subject.Rating - 1500) / glicko2Scale
	phi := subject.Deviation / glicko2Scale
	sigma := subject.Volatility

	if len(opponents) == 0 {
		newPhi := math.Sqrt(phi*phi + sigma*sigma)
		return GlickoRating{
			Rating:     subject.Rating,
			Deviation:  math.Min(350, glicko2Scale*newPhi),
			Volatility: sigma,
		}
	}

	type scaled struct {
		mu, phi, outcome float64
	}
	opp := make([]scaled, len(opponents))
	for i, o := range opponents {
		opp[i] = scaled{
			mu:      (o.Rating.Rating - 1500) / glicko2Scale,
			phi:     o.Rating.Deviation / glicko2Scale,
			outcome: o.Outcome,
		}
	}

	v := 0.0
	for _, o := range opp {
		e := glickoE(mu, o.mu, o.phi)
		v += glickoG(o.phi) * glickoG(o.phi) * e * (1 - e)
	}
	if v != 0 {
		v = 1.0 / v
	}

	delta := 0.0
	for _, o := range opp {
		delta += glickoG(o.phi) * (o.outcome - glickoE(mu, o.mu, o.phi))
	}
	delta *= v

	a := math.Log(sigma * sigma)
	A := a
	var B float64
	if delta*delta > phi*phi+v {
		B = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1.0
		for glickoF(a-k*glickoTau, delta, phi, sigma, v) < 0 {
			k++
		}
		B = a - k*glickoTau
	}

	fa := glickoF(A, delta, phi, sigma, v)
	fb := glickoF(B, delta, phi, sigma, v)
	for math.Abs(B-A) > glickoEpsilon {
		C := A + (A-B)*fa/(fb-fa)
		fc := glickoF(C, delta, phi, sigma, v)
		if fc*fb <= 0 {
			A = B
			fa = fb
		} else {
			fa = fa / 2
		}
		B = C
		fb = fc
	}
	sigmaPrime := math.Exp(A / 2)

	phiStar := math.Sqrt(phi*phi + sigmaPrime*sigmaPrime)
	var phiPrime float64
	if v != 0 {
		phiPrime = 1.0 / math.Sqrt(1.0/(phiStar*phiStar)+1.0/v)
	} else {
		phiPrime = phiStar
	}

	muPrime := mu
	for _, o := range opp {
		muPrime += phiPrime * phiPrime * glickoG(o.phi) * (o.outcome - glickoE(mu, o.mu, o.phi))
	}

	newRating := glicko2Scale*muPrime + 1500
	newDeviation := glicko2Scale * phiPrime
	newDeviation = math.Min(350, math.Max(30, newDeviation))

	return GlickoRating{
		Rating:     newRating,
		Deviation:  newDeviation,
		Volatility: sigmaPrime,
	}
}
