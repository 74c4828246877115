package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/distributed"
)

// MatchmakingConfig 매치메이킹 파라미터
type MatchmakingConfig struct {
	Interval         time.Duration // pairing tick interval
	ToleranceBase    int           // rating window at enqueue time
	ToleranceStep    int           // window growth per full minute waited
	ToleranceCap     int           // window ceiling
	StaleAfter       time.Duration // entries older than this are evicted
	ProblemsPerMatch int
}

func (c *MatchmakingConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.ToleranceBase <= 0 {
		c.ToleranceBase = 100
	}
	if c.ToleranceStep <= 0 {
		c.ToleranceStep = 20
	}
	if c.ToleranceCap <= 0 {
		c.ToleranceCap = 500
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Minute
	}
	if c.ProblemsPerMatch <= 0 {
		c.ProblemsPerMatch = 3
	}
}

// MatchmakingService holds the in-memory queues and forms matches on a
// periodic tick. One mutex guards all queues; every operation is a quick
// in-memory mutation, so contention stays low.
type MatchmakingService struct {
	engine   *MatchEngine
	ratings  RatingStore
	queues   QueueStore
	catalog  ProblemCatalog
	bcast    Broadcaster
	lockMgr  *distributed.RedisLockManager // nil when running single-instance
	logger   *zap.Logger
	cfg      MatchmakingConfig
	now      func() time.Time

	mu        sync.Mutex
	entries   map[models.Mode][]*models.QueueEntry
	bySubject map[string]*models.QueueEntry // key: subjectID|mode

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewMatchmakingService 매치메이킹 서비스 생성
func NewMatchmakingService(
	engine *MatchEngine,
	ratings RatingStore,
	queues QueueStore,
	catalog ProblemCatalog,
	bcast Broadcaster,
	lockMgr *distributed.RedisLockManager,
	cfg MatchmakingConfig,
) *MatchmakingService {
	logger, _ := zap.NewProduction()
	cfg.applyDefaults()

	return &MatchmakingService{
		engine:    engine,
		ratings:   ratings,
		queues:    queues,
		catalog:   catalog,
		bcast:     bcast,
		lockMgr:   lockMgr,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		entries:   make(map[models.Mode][]*models.QueueEntry),
		bySubject: make(map[string]*models.QueueEntry),
		stopChan:  make(chan struct{}),
	}
}

func subjectKey(subjectID string, mode models.Mode) string {
	return subjectID + "|" + string(mode)
}

// Enqueue adds a subject (or a premade team) to the queue for a mode.
// A subject may wait in several modes at once but only once per mode.
func (s *MatchmakingService) Enqueue(subjectIDs []string, mode models.Mode) (*models.QueueEntry, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, mode)
	}
	if len(subjectIDs) == 0 {
		return nil, fmt.Errorf("%w: empty subject list", ErrInvalidInput)
	}
	if mode == models.ModeSolo && len(subjectIDs) != 1 {
		return nil, fmt.Errorf("%w: 1v1 takes a single subject", ErrInvalidInput)
	}
	if mode == models.ModeTeam && len(subjectIDs) != 1 && len(subjectIDs) != mode.TeamSize() {
		return nil, fmt.Errorf("%w: team mode takes one subject or a full team of %d", ErrInvalidInput, mode.TeamSize())
	}

	// entry rating is the member mean so premade teams pair fairly
	var sum int
	for _, subjectID := range subjectIDs {
		rec, err := s.ratings.GetOrCreate(subjectID, mode)
		if err != nil {
			return nil, fmt.Errorf("failed to load rating: %w", err)
		}
		sum += rec.Rating
	}

	entry := &models.QueueEntry{
		ID:         uuid.New().String(),
		SubjectIDs: append([]string(nil), subjectIDs...),
		Rating:     sum / len(subjectIDs),
		Mode:       mode,
		EnqueuedAt: s.now(),
	}

	s.mu.Lock()
	for _, subjectID := range subjectIDs {
		if _, dup := s.bySubject[subjectKey(subjectID, mode)]; dup {
			s.mu.Unlock()
			return nil, ErrAlreadyQueued
		}
	}
	s.entries[mode] = append(s.entries[mode], entry)
	for _, subjectID := range subjectIDs {
		s.bySubject[subjectKey(subjectID, mode)] = entry
	}
	s.mu.Unlock()

	// durable book-keeping only; the in-memory queue stays authoritative
	if err := s.queues.Insert(entry); err != nil {
		s.logger.Error("Failed to record queue entry",
			zap.String("entryId", entry.ID),
			zap.Error(err))
	}

	s.logger.Info("Subject enqueued",
		zap.Strings("subjectIds", subjectIDs),
		zap.String("mode", string(mode)),
		zap.Int("rating", entry.Rating))

	return entry, nil
}

// Restore reloads queue entries that were waiting when the process last
// stopped, keeping their original enqueue times so nobody loses seniority
// across a restart.
func (s *MatchmakingService) Restore(entries []*models.QueueEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, e := range entries {
		if !e.Mode.Valid() {
			continue
		}
		conflict := false
		for _, subjectID := range e.SubjectIDs {
			if _, dup := s.bySubject[subjectKey(subjectID, e.Mode)]; dup {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		s.entries[e.Mode] = append(s.entries[e.Mode], e)
		for _, subjectID := range e.SubjectIDs {
			s.bySubject[subjectKey(subjectID, e.Mode)] = e
		}
		restored++
	}

	if restored > 0 {
		s.logger.Info("Restored queue entries from durable store",
			zap.Int("restored", restored))
	}
}

// Dequeue removes a subject's entry for one mode. Leaving removes the
// whole entry, premade teammates included.
func (s *MatchmakingService) Dequeue(subjectID string, mode models.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, mode)
	}

	s.mu.Lock()
	entry, ok := s.bySubject[subjectKey(subjectID, mode)]
	if !ok {
		s.mu.Unlock()
		return ErrNotQueued
	}
	s.removeLocked(entry)
	s.mu.Unlock()

	if err := s.queues.MarkLeft(entry.ID); err != nil {
		s.logger.Error("Failed to mark queue entry left",
			zap.String("entryId", entry.ID),
			zap.Error(err))
	}

	for _, id := range entry.SubjectIDs {
		s.bcast.Publish(SubjectTopic(id), "queue_left", map[string]interface{}{
			"mode": mode,
		})
	}

	return nil
}

// Status reports a subject's queue position for one mode.
func (s *MatchmakingService) Status(subjectID string, mode models.Mode) (*models.QueueStatusResponse, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.bySubject[subjectKey(subjectID, mode)]
	if !ok {
		return &models.QueueStatusResponse{Queued: false, Mode: mode}, nil
	}

	position := 1
	for _, e := range s.entries[mode] {
		if e.ID == entry.ID {
			break
		}
		position++
	}

	return &models.QueueStatusResponse{
		Queued:     true,
		Mode:       mode,
		Position:   position,
		EnqueuedAt: entry.EnqueuedAt,
		WaitSec:    int(entry.WaitTime(s.now()).Seconds()),
	}, nil
}

// QueueDepth returns the entry count per mode, for health reporting.
func (s *MatchmakingService) QueueDepth() map[models.Mode]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[models.Mode]int, len(s.entries))
	for mode, list := range s.entries {
		out[mode] = len(list)
	}
	return out
}

// Start 매칭 루프 시작
func (s *MatchmakingService) Start() {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return
	}
	s.running = true
	s.runMu.Unlock()

	s.logger.Info("Starting matchmaking loop",
		zap.Duration("interval", s.cfg.Interval))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.tickWithLock()
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Stop 매칭 루프 중지
func (s *MatchmakingService) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	s.runMu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("Matchmaking loop stopped")
}

// tickWithLock runs one pairing pass, guarded by the distributed lock
// when several instances share the queue database.
func (s *MatchmakingService) tickWithLock() {
	if s.lockMgr == nil {
		s.Tick()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lock, err := s.lockMgr.AcquireLock(ctx, "matchmaking:tick", uuid.New().String(), 10*time.Second)
	if err != nil {
		// another instance holds the tick; skip this round
		return
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			s.logger.Warn("Failed to release matchmaking lock", zap.Error(err))
		}
	}()

	s.Tick()
}

// Tick runs one pairing pass over every mode, then evicts stale entries.
func (s *MatchmakingService) Tick() {
	s.pairSolo()
	s.formTeams()
	s.CleanupStale(s.cfg.StaleAfter)
}

// pairSolo pairs 1v1 entries oldest-first, each with the closest-rated
// candidate inside the pair's widened tolerance window.
func (s *MatchmakingService) pairSolo() {
	now := s.now()

	s.mu.Lock()
	waiting := append([]*models.QueueEntry(nil), s.entries[models.ModeSolo]...)
	s.mu.Unlock()

	sort.Slice(waiting, func(i, j int) bool {
		return waiting[i].EnqueuedAt.Before(waiting[j].EnqueuedAt)
	})

	used := make(map[string]bool)
	for i, a := range waiting {
		if used[a.ID] {
			continue
		}

		best := -1
		bestGap := 0
		for j := i + 1; j < len(waiting); j++ {
			b := waiting[j]
			if used[b.ID] {
				continue
			}
			gap := a.Rating - b.Rating
			if gap < 0 {
				gap = -gap
			}
			if gap > s.tolerance(a, now) || gap > s.tolerance(b, now) {
				continue
			}
			if best == -1 || gap < bestGap {
				best = j
				bestGap = gap
			}
		}
		if best == -1 {
			continue
		}

		b := waiting[best]
		used[a.ID] = true
		used[b.ID] = true
		s.launchMatch(models.ModeSolo, []*models.QueueEntry{a, b},
			[][]string{a.SubjectIDs, b.SubjectIDs})
	}
}

// formTeams gathers team-mode entries into two sides. A premade team fills
// a whole side; solo entries are distributed across sides in rating order,
// alternating so side strengths stay close.
func (s *MatchmakingService) formTeams() {
	teamSize := models.ModeTeam.TeamSize()
	needed := models.ModeTeam.RequiredEntries()
	now := s.now()

	s.mu.Lock()
	waiting := append([]*models.QueueEntry(nil), s.entries[models.ModeTeam]...)
	s.mu.Unlock()

	sort.Slice(waiting, func(i, j int) bool {
		return waiting[i].EnqueuedAt.Before(waiting[j].EnqueuedAt)
	})

	used := make(map[string]bool)
	for _, anchor := range waiting {
		if used[anchor.ID] {
			continue
		}

		group := []*models.QueueEntry{anchor}
		count := len(anchor.SubjectIDs)
		for _, cand := range waiting {
			if count >= needed {
				break
			}
			if used[cand.ID] || cand.ID == anchor.ID {
				continue
			}
			gap := anchor.Rating - cand.Rating
			if gap < 0 {
				gap = -gap
			}
			if gap > s.tolerance(anchor, now) || gap > s.tolerance(cand, now) {
				continue
			}
			if count+len(cand.SubjectIDs) > needed {
				continue
			}
			group = append(group, cand)
			count += len(cand.SubjectIDs)
		}
		if count < needed {
			continue
		}

		teams, ok := splitIntoTeams(group, teamSize)
		if !ok {
			continue
		}

		for _, e := range group {
			used[e.ID] = true
		}
		s.launchMatch(models.ModeTeam, group, teams)
	}
}

// splitIntoTeams assigns grouped entries to two sides. Premade teams take
// a side whole; remaining subjects are dealt strongest-first, alternating
// sides, to balance mean ratings.
func splitIntoTeams(group []*models.QueueEntry, teamSize int) ([][]string, bool) {
	teams := [][]string{{}, {}}

	type soloSubject struct {
		id     string
		rating int
	}
	var solos []soloSubject

	for _, e := range group {
		if len(e.SubjectIDs) == teamSize {
			placed := false
			for i := range teams {
				if len(teams[i]) == 0 {
					teams[i] = append([]string(nil), e.SubjectIDs...)
					placed = true
					break
				}
			}
			if !placed {
				return nil, false
			}
			continue
		}
		for _, id := range e.SubjectIDs {
			solos = append(solos, soloSubject{id: id, rating: e.Rating})
		}
	}

	sort.Slice(solos, func(i, j int) bool {
		if solos[i].rating != solos[j].rating {
			return solos[i].rating > solos[j].rating
		}
		return solos[i].id < solos[j].id
	})

	for _, sub := range solos {
		// weaker side first keeps the means close
		target := 0
		if len(teams[1]) < len(teams[0]) {
			target = 1
		}
		if len(teams[target]) >= teamSize {
			target = 1 - target
		}
		if len(teams[target]) >= teamSize {
			return nil, false
		}
		teams[target] = append(teams[target], sub.id)
	}

	if len(teams[0]) != teamSize || len(teams[1]) != teamSize {
		return nil, false
	}
	return teams, true
}

// launchMatch removes the formed entries from the queue, creates and
// starts the match, and notifies every subject. The pairing passes work
// on a snapshot, so before removing anything the group is revalidated
// against the live index: a subject who dequeued while earlier groups
// were launching must not be dragged into a match. On failure the entries
// go back with their original enqueue times so nobody loses queue
// seniority.
func (s *MatchmakingService) launchMatch(mode models.Mode, formed []*models.QueueEntry, teams [][]string) {
	s.mu.Lock()
	for _, e := range formed {
		if !s.stillQueuedLocked(e) {
			s.mu.Unlock()
			s.logger.Info("Skipping formed group, entry left during pass",
				zap.String("entryId", e.ID),
				zap.String("mode", string(mode)))
			return
		}
	}
	for _, e := range formed {
		s.removeLocked(e)
	}
	s.mu.Unlock()

	problemIDs, err := s.catalog.PickRandom(s.cfg.ProblemsPerMatch)
	if err != nil {
		s.logger.Error("Failed to pick problems, requeueing entries", zap.Error(err))
		s.requeue(formed)
		return
	}

	match, err := s.engine.CreateMatch(mode, teams, problemIDs)
	if err != nil {
		s.logger.Error("Failed to create match, requeueing entries", zap.Error(err))
		s.requeue(formed)
		return
	}

	entryIDs := make([]string, len(formed))
	for i, e := range formed {
		entryIDs[i] = e.ID
	}
	if err := s.queues.MarkMatched(entryIDs...); err != nil {
		s.logger.Error("Failed to mark queue entries matched", zap.Error(err))
	}

	for _, team := range teams {
		for _, subjectID := range team {
			s.bcast.Publish(SubjectTopic(subjectID), "match_found", map[string]interface{}{
				"matchId": match.ID,
				"mode":    mode,
			})
		}
	}

	if _, err := s.engine.StartMatch(match.ID); err != nil {
		s.logger.Error("Failed to start formed match",
			zap.String("matchId", match.ID),
			zap.Error(err))
	}

	s.logger.Info("Match formed",
		zap.String("matchId", match.ID),
		zap.String("mode", string(mode)),
		zap.Int("entries", len(formed)))
}

// CleanupStale evicts entries older than maxAge and tells their subjects.
func (s *MatchmakingService) CleanupStale(maxAge time.Duration) {
	now := s.now()

	s.mu.Lock()
	var stale []*models.QueueEntry
	for _, list := range s.entries {
		for _, e := range list {
			if e.WaitTime(now) > maxAge {
				stale = append(stale, e)
			}
		}
	}
	for _, e := range stale {
		s.removeLocked(e)
	}
	s.mu.Unlock()

	if len(stale) == 0 {
		return
	}

	entryIDs := make([]string, len(stale))
	for i, e := range stale {
		entryIDs[i] = e.ID
	}
	if err := s.queues.MarkExpired(entryIDs...); err != nil {
		s.logger.Error("Failed to mark queue entries expired", zap.Error(err))
	}

	for _, e := range stale {
		s.logger.Info("Evicting stale queue entry",
			zap.String("entryId", e.ID),
			zap.String("mode", string(e.Mode)),
			zap.Duration("waited", e.WaitTime(now)))
		for _, subjectID := range e.SubjectIDs {
			s.bcast.Publish(SubjectTopic(subjectID), "queue_timeout", map[string]interface{}{
				"mode":        e.Mode,
				"waitSeconds": int(e.WaitTime(now).Seconds()),
			})
		}
	}
}

// tolerance widens the rating window the longer an entry has waited.
func (s *MatchmakingService) tolerance(e *models.QueueEntry, now time.Time) int {
	waited := int(e.WaitTime(now).Minutes())
	tol := s.cfg.ToleranceBase + waited*s.cfg.ToleranceStep
	if tol > s.cfg.ToleranceCap {
		tol = s.cfg.ToleranceCap
	}
	return tol
}

// stillQueuedLocked reports whether every subject of a formed entry is
// still indexed to that same entry. A leave, or a leave followed by a
// fresh enqueue, makes the snapshot copy stale. Caller holds s.mu.
func (s *MatchmakingService) stillQueuedLocked(entry *models.QueueEntry) bool {
	for _, subjectID := range entry.SubjectIDs {
		cur, ok := s.bySubject[subjectKey(subjectID, entry.Mode)]
		if !ok || cur.ID != entry.ID {
			return false
		}
	}
	return true
}

// removeLocked drops an entry from the queue and index. Index keys are
// only cleared when they still point at this entry, so removing a stale
// copy never orphans a fresh one. Caller holds s.mu.
func (s *MatchmakingService) removeLocked(entry *models.QueueEntry) {
	list := s.entries[entry.Mode]
	for i, e := range list {
		if e.ID == entry.ID {
			s.entries[entry.Mode] = append(list[:i], list[i+1:]...)
			break
		}
	}
	for _, subjectID := range entry.SubjectIDs {
		key := subjectKey(subjectID, entry.Mode)
		if cur, ok := s.bySubject[key]; ok && cur.ID == entry.ID {
			delete(s.bySubject, key)
		}
	}
}

// requeue puts entries back after a failed match launch, keeping their
// original enqueue times.
func (s *MatchmakingService) requeue(formed []*models.QueueEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range formed {
		conflict := false
		for _, subjectID := range e.SubjectIDs {
			if _, dup := s.bySubject[subjectKey(subjectID, e.Mode)]; dup {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		s.entries[e.Mode] = append(s.entries[e.Mode], e)
		for _, subjectID := range e.SubjectIDs {
			s.bySubject[subjectKey(subjectID, e.Mode)] = e
		}
	}
}
