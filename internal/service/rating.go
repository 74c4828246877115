package service

import (
	"fmt"
	"math"

	"github.com/codeclash/codeclash-backend/internal/models"
)

// RatingEngine Elo 레이팅 계산 서비스
// Pure: deltas are computed from final standings and pre-match ratings
// only; persisting them is the match engine's job.
type RatingEngine struct {
	defaultKFactor float64
}

// NewRatingEngine 레이팅 엔진 생성
func NewRatingEngine(kFactor float64) *RatingEngine {
	if kFactor <= 0 {
		kFactor = 32
	}
	return &RatingEngine{defaultKFactor: kFactor}
}

// KFactor returns the engine's default K-factor.
func (e *RatingEngine) KFactor() float64 {
	return e.defaultKFactor
}

// ComputeRatingDeltas computes one Elo delta per side. For every ordered
// pair of opponents: expected = 1/(1+10^((rB-rA)/400)); actual is 1, 0.5
// or 0 by comparing (solvedCount, penaltyMinutes); the side's delta is
// kFactor times the mean of (actual - expected) over its opponents.
//
// Post-condition: the deltas sum to zero before rounding; with two sides
// the rounded deltas are exactly zero-sum as well. A violation means the
// standings were inconsistent and is returned as an error.
func (e *RatingEngine) ComputeRatingDeltas(
	standings []models.Standing,
	preRatings map[string]int,
	kFactor float64,
) (map[string]int, error) {
	if kFactor <= 0 {
		kFactor = e.defaultKFactor
	}
	if len(standings) < 2 {
		return nil, fmt.Errorf("need at least two sides, got %d", len(standings))
	}
	for _, s := range standings {
		if _, ok := preRatings[s.SubjectID]; !ok {
			return nil, fmt.Errorf("missing pre-match rating for %s", s.SubjectID)
		}
	}

	raw := make(map[string]float64, len(standings))
	var sum float64

	for _, a := range standings {
		ratingA := float64(preRatings[a.SubjectID])
		var total float64
		for _, b := range standings {
			if b.SubjectID == a.SubjectID {
				continue
			}
			expected := expectedScore(ratingA, float64(preRatings[b.SubjectID]))
			total += actualScore(a, b) - expected
		}
		delta := kFactor * total / float64(len(standings)-1)
		raw[a.SubjectID] = delta
		sum += delta
	}

	if math.Abs(sum) > 1e-6 {
		return nil, fmt.Errorf("rating deltas are not zero-sum: %f", sum)
	}

	deltas := make(map[string]int, len(raw))
	for side, delta := range raw {
		deltas[side] = int(math.Round(delta))
	}

	return deltas, nil
}

// SplitTeamDelta divides a side delta equally across team members. The
// remainder goes to the first members so the member deltas sum exactly to
// the side delta.
func (e *RatingEngine) SplitTeamDelta(sideDelta int, members []string) map[string]int {
	n := len(members)
	if n == 0 {
		return nil
	}

	base := sideDelta / n
	rem := sideDelta % n

	out := make(map[string]int, n)
	for _, m := range members {
		out[m] = base
	}

	step := 1
	if rem < 0 {
		step = -1
		rem = -rem
	}
	for i := 0; i < rem; i++ {
		out[members[i]] += step
	}

	return out
}

// Outcome compares two standings from a's point of view: 1 win, 0.5 draw,
// 0 loss.
func (e *RatingEngine) Outcome(a, b models.Standing) float64 {
	return actualScore(a, b)
}

// expectedScore Elo 기대 승률
func expectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}

// actualScore compares scoreboard results, not ranks: two sides with the
// same solved count and penalty drew, even though display ranks are
// tie-broken by id.
func actualScore(a, b models.Standing) float64 {
	if a.SolvedCount != b.SolvedCount {
		if a.SolvedCount > b.SolvedCount {
			return 1.0
		}
		return 0.0
	}
	if a.PenaltyMinutes != b.PenaltyMinutes {
		if a.PenaltyMinutes < b.PenaltyMinutes {
			return 1.0
		}
		return 0.0
	}
	return 0.5
}
