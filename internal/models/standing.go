package models

// Standing is one row of a scoreboard. Derived data: recomputed on demand
// from the submission log, never authoritative.
type Standing struct {
	// SubjectID holds the team id in team mode.
	SubjectID      string `json:"subjectId"`
	SolvedCount    int    `json:"solvedCount"`
	PenaltyMinutes int    `json:"penaltyMinutes"`
	Rank           int    `json:"rank"`
}

// Less orders standings: most solved first, then least penalty, then
// subject id for a stable total order.
func (s Standing) Less(other Standing) bool {
	if s.SolvedCount != other.SolvedCount {
		return s.SolvedCount > other.SolvedCount
	}
	if s.PenaltyMinutes != other.PenaltyMinutes {
		return s.PenaltyMinutes < other.PenaltyMinutes
	}
	return s.SubjectID < other.SubjectID
}
