package service

import (
	"context"
	"time"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/executor"
)

// Broadcaster publishes state deltas to subscribed clients. Delivery is
// at-least-once within a topic with no cross-topic ordering; callers must
// not rely on a delta arriving exactly once.
type Broadcaster interface {
	Publish(topic, msgType string, payload interface{})
}

// Topic helpers. Per-match deltas go to MatchTopic, per-player events
// (match found, queue timeout, fogged progress) to SubjectTopic.
func MatchTopic(matchID string) string    { return "match:" + matchID }
func SubjectTopic(subjectID string) string { return "subject:" + subjectID }

// MatchStore persists match lifecycle records.
type MatchStore interface {
	Create(match *models.Match) error
	UpdateState(matchID string, state models.MatchState, startedAt, endsAt *time.Time) error
	SaveResult(matchID string, finalScores []models.Standing, ratingDeltas map[string]int) error
}

// SubmissionStore is the append-only submission log.
type SubmissionStore interface {
	Create(sub *models.Submission) error
	UpdateVerdict(id string, verdict models.Verdict, executionTimeMs, memoryKb int, infraFailure, suspicious bool) error
	FindByID(id string) (*models.Submission, error)
	FindByMatch(matchID string) ([]*models.Submission, error)
	CountRecentBySubject(subjectID string, windowMinutes int) (int, error)
}

// RatingStore is the durable skill-rating store. UpdateWithVersion must
// fail with repository.ErrVersionConflict on a lost optimistic race.
type RatingStore interface {
	GetOrCreate(subjectID string, mode models.Mode) (*models.RatingRecord, error)
	UpdateWithVersion(rec *models.RatingRecord) error
}

// QueueStore records queue entries durably. The in-memory queue is
// authoritative; this is book-keeping only.
type QueueStore interface {
	Insert(entry *models.QueueEntry) error
	MarkMatched(entryIDs ...string) error
	MarkExpired(entryIDs ...string) error
	MarkLeft(entryIDs ...string) error
}

// ProblemCatalog is the read-only problem content collaborator.
type ProblemCatalog interface {
	FindByID(id string) (*models.Problem, error)
	PickRandom(n int) ([]string, error)
	TestCases(problemID string) ([]models.TestCase, error)
}

// CodeExecutor runs code in the external sandbox.
type CodeExecutor interface {
	Execute(ctx context.Context, req executor.ExecuteRequest) (*executor.ExecuteResponse, error)
}
