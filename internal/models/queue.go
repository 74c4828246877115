package models

import "time"

// Mode 매치 모드
type Mode string

const (
	ModeSolo Mode = "1v1"
	ModeTeam Mode = "3v3"
)

// TeamSize returns how many subjects play on one side.
func (m Mode) TeamSize() int {
	if m == ModeTeam {
		return 3
	}
	return 1
}

// RequiredEntries returns how many queue entries a match of this mode needs.
// Team entries hold a single subject each; two teams of three need six.
func (m Mode) RequiredEntries() int {
	return m.TeamSize() * 2
}

// Valid reports whether the mode is one the matchmaker understands.
func (m Mode) Valid() bool {
	return m == ModeSolo || m == ModeTeam
}

// QueueEntry 매칭 큐 엔트리
// Owned exclusively by the matchmaking queue; an entry belongs to at most
// one match over its lifetime.
type QueueEntry struct {
	ID         string    `json:"id" db:"id"`
	SubjectIDs []string  `json:"subjectIds" db:"subject_ids"`
	Rating     int       `json:"rating" db:"rating"`
	Mode       Mode      `json:"mode" db:"mode"`
	EnqueuedAt time.Time `json:"enqueuedAt" db:"enqueued_at"`
}

// WaitTime is how long the entry has been waiting as of now.
func (e *QueueEntry) WaitTime(now time.Time) time.Duration {
	return now.Sub(e.EnqueuedAt)
}

// JoinQueueRequest 큐 참가 요청
type JoinQueueRequest struct {
	Mode Mode `json:"mode" binding:"required"`
	// TeammateIDs lets a premade team of three queue together in 3v3.
	TeammateIDs []string `json:"teammateIds"`
}

type QueueStatusResponse struct {
	Queued     bool      `json:"queued"`
	Mode       Mode      `json:"mode,omitempty"`
	Position   int       `json:"position,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt,omitempty"`
	WaitSec    int       `json:"waitSec"`
}
