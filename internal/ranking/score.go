// Package ranking scores restaurant candidates and picks the best one.
package ranking

import (
	"math"
	"sort"

	"github.com/hamori-app/hamori/internal/models"
)

// Score weights.
const (
	RatingWeight = 10.0
	ReviewWeight = 5.0
	OpenBonus    = 20.0
	PhotoBonus   = 10.0
)

// Scored pairs a candidate with its computed score.
type Scored struct {
	Candidate models.Candidate
	Score     float64
}

// Score computes the ranking score of a single candidate.
// Based on the formula: score = rating×10 + log10(reviews)×5 + open(20) + photo(10)
//
// The review component only applies when a rating is present. Review counts
// below 1 contribute nothing.
func Score(c models.Candidate) float64 {
	var score float64

	if c.Rating != nil {
		score += *c.Rating * RatingWeight

		if c.ReviewCount != nil && *c.ReviewCount > 0 {
			score += math.Log10(float64(*c.ReviewCount)) * ReviewWeight
		}
	}

	if c.IsOpenNow != nil && *c.IsOpenNow {
		score += OpenBonus
	}

	if c.HasPhoto() {
		score += PhotoBonus
	}

	return score
}

// SelectBest returns the candidate with the strictly highest score.
// Ties go to the earliest candidate. Returns false only for empty input.
func SelectBest(candidates []models.Candidate) (models.Candidate, bool) {
	if len(candidates) == 0 {
		return models.Candidate{}, false
	}

	best := 0
	bestScore := Score(candidates[0])
	for i := 1; i < len(candidates); i++ {
		if s := Score(candidates[i]); s > bestScore {
			best, bestScore = i, s
		}
	}
	return candidates[best], true
}

// Rank scores every candidate and orders them by descending score.
// The sort is stable, so equal scores keep input order. The input slice is
// not modified.
func Rank(candidates []models.Candidate) []Scored {
	scored := make([]Scored, len(candidates))
	for i, c := range candidates {
		scored[i] = Scored{Candidate: c, Score: Score(c)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}
