package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/internal/repository"
	"github.com/codeclash/codeclash-backend/pkg/executor"
)

type broadcastEvent struct {
	topic   string
	msgType string
	payload interface{}
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
	// onPublish, when set, runs after each event is recorded, outside the
	// lock, so tests can interleave calls with an in-flight operation
	onPublish func(topic, msgType string)
}

func (f *fakeBroadcaster) Publish(topic, msgType string, payload interface{}) {
	f.mu.Lock()
	f.events = append(f.events, broadcastEvent{topic: topic, msgType: msgType, payload: payload})
	hook := f.onPublish
	f.mu.Unlock()
	if hook != nil {
		hook(topic, msgType)
	}
}

func (f *fakeBroadcaster) count(msgType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.msgType == msgType {
			n++
		}
	}
	return n
}

func (f *fakeBroadcaster) topicsFor(msgType string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var topics []string
	for _, e := range f.events {
		if e.msgType == msgType {
			topics = append(topics, e.topic)
		}
	}
	return topics
}

type fakeMatchStore struct {
	mu      sync.Mutex
	created []*models.Match
	states  map[string]models.MatchState
	results map[string][]models.Standing
	deltas  map[string]map[string]int

	createErr error
}

func newFakeMatchStore() *fakeMatchStore {
	return &fakeMatchStore{
		states:  make(map[string]models.MatchState),
		results: make(map[string][]models.Standing),
		deltas:  make(map[string]map[string]int),
	}
}

func (f *fakeMatchStore) Create(match *models.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, match)
	f.states[match.ID] = match.State
	return nil
}

func (f *fakeMatchStore) UpdateState(matchID string, state models.MatchState, startedAt, endsAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[matchID] = state
	return nil
}

func (f *fakeMatchStore) SaveResult(matchID string, finalScores []models.Standing, ratingDeltas map[string]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[matchID] = finalScores
	f.deltas[matchID] = ratingDeltas
	return nil
}

func (f *fakeMatchStore) stateOf(matchID string) models.MatchState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[matchID]
}

type fakeRatingStore struct {
	mu   sync.Mutex
	recs map[string]*models.RatingRecord
	// conflicts makes the next n UpdateWithVersion calls lose the race
	conflicts int
}

func newFakeRatingStore() *fakeRatingStore {
	return &fakeRatingStore{recs: make(map[string]*models.RatingRecord)}
}

func ratingKey(subjectID string, mode models.Mode) string {
	return subjectID + "|" + string(mode)
}

func (f *fakeRatingStore) seed(subjectID string, mode models.Mode, rating int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[ratingKey(subjectID, mode)] = &models.RatingRecord{
		SubjectID: subjectID,
		Mode:      mode,
		Rating:    rating,
	}
}

func (f *fakeRatingStore) GetOrCreate(subjectID string, mode models.Mode) (*models.RatingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ratingKey(subjectID, mode)
	rec, ok := f.recs[key]
	if !ok {
		rec = &models.RatingRecord{
			SubjectID: subjectID,
			Mode:      mode,
			Rating:    models.DefaultRating,
		}
		f.recs[key] = rec
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRatingStore) UpdateWithVersion(rec *models.RatingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflicts > 0 {
		f.conflicts--
		return repository.ErrVersionConflict
	}
	key := ratingKey(rec.SubjectID, rec.Mode)
	stored, ok := f.recs[key]
	if !ok || stored.Version != rec.Version {
		return repository.ErrVersionConflict
	}
	cp := *rec
	cp.Version++
	f.recs[key] = &cp
	rec.Version++
	return nil
}

func (f *fakeRatingStore) ratingOf(subjectID string, mode models.Mode) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.recs[ratingKey(subjectID, mode)]; ok {
		return rec.Rating
	}
	return 0
}

type fakeSubmissionStore struct {
	mu   sync.Mutex
	seq  int64
	subs map[string]*models.Submission
}

func newFakeSubmissionStore() *fakeSubmissionStore {
	return &fakeSubmissionStore{subs: make(map[string]*models.Submission)}
}

func (f *fakeSubmissionStore) Create(sub *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	sub.Seq = f.seq
	cp := *sub
	f.subs[sub.ID] = &cp
	return nil
}

func (f *fakeSubmissionStore) UpdateVerdict(id string, verdict models.Verdict, executionTimeMs, memoryKb int, infraFailure, suspicious bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.subs[id]
	if !ok {
		return fmt.Errorf("unknown submission %s", id)
	}
	if stored.Verdict.Terminal() {
		return repository.ErrTerminalVerdict
	}
	stored.Verdict = verdict
	stored.ExecutionTimeMs = executionTimeMs
	stored.MemoryKb = memoryKb
	stored.InfraFailure = infraFailure
	stored.Suspicious = suspicious
	return nil
}

func (f *fakeSubmissionStore) FindByID(id string) (*models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.subs[id]
	if !ok {
		return nil, nil
	}
	cp := *stored
	return &cp, nil
}

func (f *fakeSubmissionStore) FindByMatch(matchID string) ([]*models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Submission
	for _, stored := range f.subs {
		if stored.MatchID == matchID {
			cp := *stored
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSubmissionStore) CountRecentBySubject(subjectID string, windowMinutes int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, stored := range f.subs {
		if stored.SubjectID == subjectID {
			n++
		}
	}
	return n, nil
}

func (f *fakeSubmissionStore) verdictOf(id string) models.Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subs[id]; ok {
		return s.Verdict
	}
	return ""
}

type fakeQueueStore struct {
	mu       sync.Mutex
	inserted []string
	matched  []string
	expired  []string
	left     []string
}

func (f *fakeQueueStore) Insert(entry *models.QueueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, entry.ID)
	return nil
}

func (f *fakeQueueStore) MarkMatched(entryIDs ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matched = append(f.matched, entryIDs...)
	return nil
}

func (f *fakeQueueStore) MarkExpired(entryIDs ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, entryIDs...)
	return nil
}

func (f *fakeQueueStore) MarkLeft(entryIDs ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, entryIDs...)
	return nil
}

type fakeCatalog struct {
	problemIDs []string
	cases      map[string][]models.TestCase
	pickErr    error
}

func newFakeCatalog(problemIDs ...string) *fakeCatalog {
	cases := make(map[string][]models.TestCase, len(problemIDs))
	for _, id := range problemIDs {
		cases[id] = []models.TestCase{{ProblemID: id, Ordinal: 1, Input: "1 2", Expected: "3"}}
	}
	return &fakeCatalog{problemIDs: problemIDs, cases: cases}
}

func (f *fakeCatalog) FindByID(id string) (*models.Problem, error) {
	for _, pid := range f.problemIDs {
		if pid == id {
			return &models.Problem{ID: id, Title: id, TimeLimitMs: 2000, MemoryLimitKb: 262144}, nil
		}
	}
	return nil, fmt.Errorf("unknown problem %s", id)
}

func (f *fakeCatalog) PickRandom(n int) ([]string, error) {
	if f.pickErr != nil {
		return nil, f.pickErr
	}
	if n > len(f.problemIDs) {
		return nil, fmt.Errorf("only %d problems available", len(f.problemIDs))
	}
	return append([]string(nil), f.problemIDs[:n]...), nil
}

func (f *fakeCatalog) TestCases(problemID string) ([]models.TestCase, error) {
	return f.cases[problemID], nil
}

type fakeExecutor struct {
	mu      sync.Mutex
	calls   int
	execute func(req executor.ExecuteRequest) (*executor.ExecuteResponse, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, req executor.ExecuteRequest) (*executor.ExecuteResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.execute(req)
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
