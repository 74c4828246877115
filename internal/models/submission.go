package models

import "time"

// Verdict 채점 결과
type Verdict string

const (
	VerdictPending   Verdict = "pending"
	VerdictCompiling Verdict = "compiling"
	VerdictRunning   Verdict = "running"
	VerdictAC        Verdict = "AC"
	VerdictWA        Verdict = "WA"
	VerdictTLE       Verdict = "TLE"
	VerdictMLE       Verdict = "MLE"
	VerdictRE        Verdict = "RE"
	VerdictCE        Verdict = "CE"
)

// verdictStage orders verdicts so transitions can only move forward.
// Terminal verdicts share the highest stage and are immutable.
var verdictStage = map[Verdict]int{
	VerdictPending:   0,
	VerdictCompiling: 1,
	VerdictRunning:   2,
	VerdictAC:        3,
	VerdictWA:        3,
	VerdictTLE:       3,
	VerdictMLE:       3,
	VerdictRE:        3,
	VerdictCE:        3,
}

// Terminal reports whether the verdict is final.
func (v Verdict) Terminal() bool {
	return verdictStage[v] == 3
}

// CanTransition reports whether a verdict may move from v to next.
// A terminal verdict never changes.
func (v Verdict) CanTransition(next Verdict) bool {
	if v.Terminal() {
		return false
	}
	return verdictStage[next] > verdictStage[v]
}

// Accepted reports whether the verdict counts as a solve.
func (v Verdict) Accepted() bool {
	return v == VerdictAC
}

// Submission 코드 제출
// Append-only per (subject, problem); the verdict only moves forward and a
// terminal verdict is immutable.
type Submission struct {
	ID        string `json:"id" db:"id"`
	MatchID   string `json:"matchId" db:"match_id"`
	SubjectID string `json:"subjectId" db:"subject_id"`
	ProblemID string `json:"problemId" db:"problem_id"`
	Code      string `json:"code" db:"code"`
	Language  string `json:"language" db:"language"`
	// Seq is a per-match monotonic sequence assigned at enqueue time so
	// replays of the submission log are totally ordered.
	Seq             int64     `json:"seq" db:"seq"`
	EnqueuedAt      time.Time `json:"enqueuedAt" db:"enqueued_at"`
	Verdict         Verdict   `json:"verdict" db:"verdict"`
	ExecutionTimeMs int       `json:"executionTimeMs" db:"execution_time_ms"`
	MemoryKb        int       `json:"memoryKb" db:"memory_kb"`
	// InfraFailure marks a terminal RE that came from the execution
	// collaborator failing rather than the submitted code.
	InfraFailure bool `json:"infraFailure" db:"infra_failure"`
	// Suspicious flags the submission for human review (e.g. an AC
	// landing implausibly fast after match start).
	Suspicious bool      `json:"suspicious" db:"suspicious"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}

type CreateSubmissionRequest struct {
	ProblemID string `json:"problemId" binding:"required"`
	Code      string `json:"code" binding:"required"`
	Language  string `json:"language" binding:"required"`
}
