package service

import (
	"sort"
	"time"

	"github.com/codeclash/codeclash-backend/internal/models"
)

// ScoringEngine ICPC 방식 스코어 계산
// Pure: standings are derived from the submission log alone, so they can
// be recomputed at any time and replay always yields the same result.
type ScoringEngine struct {
	penaltyPerReject int // minutes added per rejected attempt before the AC
}

// NewScoringEngine 스코어 엔진 생성
func NewScoringEngine() *ScoringEngine {
	return &ScoringEngine{
		penaltyPerReject: 20, // ICPC convention
	}
}

type problemProgress struct {
	rejects  int
	solved   bool
	solvedAt time.Time
}

// ComputeStandings replays the submission log and returns one standing per
// side (subject in 1v1, team in 3v3), ordered by solved desc, penalty asc,
// id asc, with ranks assigned 1..n.
//
// Rules:
//   - only terminal verdicts count; pending/compiling/running are invisible
//   - only the first AC per (side, problem) scores; anything after it,
//     including further ACs, is a no-op
//   - rejected attempts before the AC cost penaltyPerReject minutes each;
//     attempts on unsolved problems cost nothing
//   - submissions enqueued after the match end are ignored
//   - infrastructure-failure verdicts never penalize the player
func (e *ScoringEngine) ComputeStandings(match *models.Match, submissions []*models.Submission) []models.Standing {
	sides := matchSides(match)

	progress := make(map[string]map[string]*problemProgress, len(sides))
	for _, side := range sides {
		progress[side] = make(map[string]*problemProgress)
	}

	if match.StartedAt != nil {
		ordered := make([]*models.Submission, len(submissions))
		copy(ordered, submissions)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

		for _, sub := range ordered {
			if !sub.Verdict.Terminal() || sub.InfraFailure {
				continue
			}
			if match.EndsAt != nil && sub.EnqueuedAt.After(*match.EndsAt) {
				continue
			}
			side := match.TeamOf(sub.SubjectID)
			byProblem, ok := progress[side]
			if !ok {
				continue // submission from an unknown side, never scored
			}

			pp := byProblem[sub.ProblemID]
			if pp == nil {
				pp = &problemProgress{}
				byProblem[sub.ProblemID] = pp
			}
			if pp.solved {
				continue
			}

			if sub.Verdict.Accepted() {
				pp.solved = true
				pp.solvedAt = sub.EnqueuedAt
			} else {
				pp.rejects++
			}
		}
	}

	standings := make([]models.Standing, 0, len(sides))
	for _, side := range sides {
		s := models.Standing{SubjectID: side}
		for _, pp := range progress[side] {
			if !pp.solved {
				continue
			}
			s.SolvedCount++
			s.PenaltyMinutes += e.solveMinutes(match, pp.solvedAt) + pp.rejects*e.penaltyPerReject
		}
		standings = append(standings, s)
	}

	sort.Slice(standings, func(i, j int) bool { return standings[i].Less(standings[j]) })
	for i := range standings {
		standings[i].Rank = i + 1
	}

	return standings
}

func (e *ScoringEngine) solveMinutes(match *models.Match, solvedAt time.Time) int {
	if match.StartedAt == nil {
		return 0
	}
	minutes := int(solvedAt.Sub(*match.StartedAt).Minutes())
	if minutes < 0 {
		minutes = 0
	}
	return minutes
}

// matchSides returns the scoring sides of a match in a deterministic
// order: subjects for 1v1, distinct team ids for team mode.
func matchSides(match *models.Match) []string {
	if len(match.TeamIDs) == 0 {
		sides := make([]string, len(match.ParticipantIDs))
		copy(sides, match.ParticipantIDs)
		sort.Strings(sides)
		return sides
	}

	seen := make(map[string]bool)
	var sides []string
	for _, subjectID := range match.ParticipantIDs {
		team := match.TeamOf(subjectID)
		if !seen[team] {
			seen[team] = true
			sides = append(sides, team)
		}
	}
	sort.Strings(sides)
	return sides
}
