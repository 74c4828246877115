package models

import "time"

// MatchState 매치 상태
type MatchState string

const (
	MatchStateWaiting   MatchState = "waiting"
	MatchStateLive      MatchState = "live"
	MatchStateFinished  MatchState = "finished"
	MatchStateCancelled MatchState = "cancelled"
)

// CanTransition reports whether the state machine allows from -> to.
// The only legal edges are waiting->live, live->finished and
// waiting->cancelled; everything else is rejected so a match can never
// move backwards or leave a terminal state.
func (from MatchState) CanTransition(to MatchState) bool {
	switch from {
	case MatchStateWaiting:
		return to == MatchStateLive || to == MatchStateCancelled
	case MatchStateLive:
		return to == MatchStateFinished
	default:
		return false
	}
}

// Terminal reports whether the state admits no further transitions.
func (s MatchState) Terminal() bool {
	return s == MatchStateFinished || s == MatchStateCancelled
}

// Match is created by the matchmaking queue in waiting state, mutated only
// by the match engine, and archived (never deleted) once terminal.
type Match struct {
	ID             string     `json:"id" db:"id"`
	Mode           Mode       `json:"mode" db:"mode"`
	State          MatchState `json:"state" db:"state"`
	ParticipantIDs []string   `json:"participantIds"`
	// TeamIDs maps subjectId -> teamId. Empty for 1v1.
	TeamIDs map[string]string `json:"teamIds,omitempty"`
	// ProblemIDs is ordered and immutable once the match goes live.
	ProblemIDs   []string       `json:"problemIds"`
	StartedAt    *time.Time     `json:"startedAt,omitempty" db:"started_at"`
	EndsAt       *time.Time     `json:"endsAt,omitempty" db:"ends_at"`
	FinalScores  []Standing     `json:"finalScores,omitempty"`
	RatingDeltas map[string]int `json:"ratingDeltas,omitempty"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
}

// TeamOf returns the team a subject plays for, or the subject id itself
// in 1v1 where every subject is its own side.
func (m *Match) TeamOf(subjectID string) string {
	if team, ok := m.TeamIDs[subjectID]; ok {
		return team
	}
	return subjectID
}

// HasProblem reports whether the problem belongs to this match.
func (m *Match) HasProblem(problemID string) bool {
	for _, id := range m.ProblemIDs {
		if id == problemID {
			return true
		}
	}
	return false
}

// HasParticipant reports whether the subject plays in this match.
func (m *Match) HasParticipant(subjectID string) bool {
	for _, id := range m.ParticipantIDs {
		if id == subjectID {
			return true
		}
	}
	return false
}

// ActivityStatus 참가자 활동 상태
type ActivityStatus string

const (
	ActivityActive       ActivityStatus = "active"
	ActivityDisconnected ActivityStatus = "disconnected"
)

// Participant tracks one subject's progress inside a match. It has a
// single authoritative writer: the engine that owns the match.
type Participant struct {
	MatchID   string `json:"matchId" db:"match_id"`
	SubjectID string `json:"subjectId" db:"subject_id"`
	TeamID    string `json:"teamId,omitempty" db:"team_id"`
	// SolvedProblems maps problemId -> time of the first accepted
	// submission.
	SolvedProblems map[string]time.Time `json:"solvedProblems"`
	// Attempts counts non-AC submissions per problem made before the
	// first accepted one.
	Attempts       map[string]int `json:"attempts"`
	ActivityStatus ActivityStatus `json:"activityStatus"`
	Score          int            `json:"score"`
	PenaltyUnits   int            `json:"penaltyUnits"`
	CurrentStreak  int            `json:"currentStreak"`
}

// NewParticipant 참가자 생성
func NewParticipant(matchID, subjectID, teamID string) *Participant {
	return &Participant{
		MatchID:        matchID,
		SubjectID:      subjectID,
		TeamID:         teamID,
		SolvedProblems: make(map[string]time.Time),
		Attempts:       make(map[string]int),
		ActivityStatus: ActivityActive,
	}
}

// Solved reports whether the participant already has an accepted
// submission for the problem.
func (p *Participant) Solved(problemID string) bool {
	_, ok := p.SolvedProblems[problemID]
	return ok
}
