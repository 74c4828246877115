package models

// Problem 문제 메타데이터 (read-only catalog)
type Problem struct {
	ID            string `json:"id" db:"id"`
	Title         string `json:"title" db:"title"`
	Difficulty    int    `json:"difficulty" db:"difficulty"`
	TimeLimitMs   int    `json:"timeLimitMs" db:"time_limit_ms"`
	MemoryLimitKb int    `json:"memoryLimitKb" db:"memory_limit_kb"`
}

// TestCase is a hidden test case. Never exposed through the API; only the
// judging queue hands them to the execution collaborator.
type TestCase struct {
	ProblemID string `json:"-" db:"problem_id"`
	Ordinal   int    `json:"-" db:"ordinal"`
	Input     string `json:"input" db:"input"`
	Expected  string `json:"expected" db:"expected"`
}
