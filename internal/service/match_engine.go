package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/internal/repository"
)

const (
	// how often Tick scans for matches past their end time
	defaultEngineTickInterval = time.Second

	// how long a terminal room stays registered so late verdicts can be
	// drained instead of hitting an unknown match
	terminalRoomRetention = 5 * time.Minute

	// bounded optimistic-concurrency retries per rating record
	ratingCASRetries = 5
)

// matchRoom is the serialization boundary for one match: every mutation
// of the match or its participants happens under room.mu, so concurrent
// verdicts never race.
type matchRoom struct {
	mu           sync.Mutex
	match        *models.Match
	participants map[string]*models.Participant
	log          []*models.Submission
	applied      map[string]bool
	terminalAt   time.Time
}

// MatchEngine owns every match's lifecycle and authoritative room state.
// It is the single writer per match; all other components observe matches
// through snapshots or broadcast deltas.
type MatchEngine struct {
	store       MatchStore
	ratings     RatingStore
	broadcaster Broadcaster
	scoring     *ScoringEngine
	rating      *RatingEngine
	logger      *zap.Logger

	matchDuration time.Duration
	fogOfProgress bool
	now           func() time.Time

	mu    sync.RWMutex
	rooms map[string]*matchRoom

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewMatchEngine 매치 엔진 생성
func NewMatchEngine(
	store MatchStore,
	ratings RatingStore,
	broadcaster Broadcaster,
	scoring *ScoringEngine,
	rating *RatingEngine,
	matchDuration time.Duration,
	fogOfProgress bool,
) *MatchEngine {
	logger, _ := zap.NewProduction()

	return &MatchEngine{
		store:         store,
		ratings:       ratings,
		broadcaster:   broadcaster,
		scoring:       scoring,
		rating:        rating,
		logger:        logger,
		matchDuration: matchDuration,
		fogOfProgress: fogOfProgress,
		now:           time.Now,
		rooms:         make(map[string]*matchRoom),
		stopChan:      make(chan struct{}),
	}
}

// Start 만료 감시 루프 시작
func (e *MatchEngine) Start() {
	e.runMu.Lock()
	if e.running {
		e.runMu.Unlock()
		return
	}
	e.running = true
	e.runMu.Unlock()

	e.logger.Info("Starting MatchEngine expiry loop")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ticker := time.NewTicker(defaultEngineTickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.Tick()
			case <-e.stopChan:
				return
			}
		}
	}()
}

// Stop 루프 중지
func (e *MatchEngine) Stop() {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return
	}
	e.running = false
	e.runMu.Unlock()

	close(e.stopChan)
	e.wg.Wait()
	e.logger.Info("MatchEngine stopped")
}

// CreateMatch registers a new match in waiting state. teams holds one
// slice of subject ids per side; 1v1 passes two single-element teams.
func (e *MatchEngine) CreateMatch(mode models.Mode, teams [][]string, problemIDs []string) (*models.Match, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, mode)
	}
	if len(teams) != 2 {
		return nil, fmt.Errorf("%w: a match needs exactly two sides", ErrInvalidInput)
	}
	if len(problemIDs) == 0 {
		return nil, fmt.Errorf("%w: a match needs at least one problem", ErrInvalidInput)
	}
	for _, team := range teams {
		if len(team) != mode.TeamSize() {
			return nil, fmt.Errorf("%w: mode %s needs sides of %d", ErrInvalidInput, mode, mode.TeamSize())
		}
	}

	match := &models.Match{
		ID:         uuid.New().String(),
		Mode:       mode,
		State:      models.MatchStateWaiting,
		ProblemIDs: append([]string(nil), problemIDs...),
		CreatedAt:  e.now(),
	}

	teamNames := []string{"A", "B"}
	if mode == models.ModeTeam {
		match.TeamIDs = make(map[string]string)
	}

	participants := make(map[string]*models.Participant)
	for i, team := range teams {
		for _, subjectID := range team {
			match.ParticipantIDs = append(match.ParticipantIDs, subjectID)
			teamID := ""
			if mode == models.ModeTeam {
				teamID = teamNames[i]
				match.TeamIDs[subjectID] = teamID
			}
			participants[subjectID] = models.NewParticipant(match.ID, subjectID, teamID)
		}
	}

	if err := e.store.Create(match); err != nil {
		return nil, fmt.Errorf("failed to persist match: %w", err)
	}

	room := &matchRoom{
		match:        match,
		participants: participants,
		applied:      make(map[string]bool),
	}

	e.mu.Lock()
	e.rooms[match.ID] = room
	e.mu.Unlock()

	e.logger.Info("Match created",
		zap.String("matchId", match.ID),
		zap.String("mode", string(mode)),
		zap.Int("participants", len(match.ParticipantIDs)))

	return e.snapshotRoom(room), nil
}

// Start transitions a match from waiting to live and arms its end timer.
func (e *MatchEngine) StartMatch(matchID string) (*models.Match, error) {
	room, err := e.getRoom(matchID)
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if !room.match.State.CanTransition(models.MatchStateLive) {
		return nil, fmt.Errorf("%w: cannot start from %s", ErrInvalidState, room.match.State)
	}

	startedAt := e.now()
	endsAt := startedAt.Add(e.matchDuration)
	room.match.State = models.MatchStateLive
	room.match.StartedAt = &startedAt
	room.match.EndsAt = &endsAt

	if err := e.store.UpdateState(matchID, models.MatchStateLive, &startedAt, &endsAt); err != nil {
		// roll back so a later start can retry
		room.match.State = models.MatchStateWaiting
		room.match.StartedAt = nil
		room.match.EndsAt = nil
		return nil, fmt.Errorf("failed to persist match start: %w", err)
	}

	e.broadcaster.Publish(MatchTopic(matchID), "match_started", map[string]interface{}{
		"matchId":    matchID,
		"problemIds": room.match.ProblemIDs,
		"startedAt":  startedAt,
		"endsAt":     endsAt,
	})

	e.logger.Info("Match started",
		zap.String("matchId", matchID),
		zap.Time("endsAt", endsAt))

	return e.snapshotLocked(room), nil
}

// Cancel aborts a match that never went live. Once live, the only exits
// are the end timer and completion.
func (e *MatchEngine) Cancel(matchID string) error {
	room, err := e.getRoom(matchID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if !room.match.State.CanTransition(models.MatchStateCancelled) {
		return fmt.Errorf("%w: cannot cancel from %s", ErrInvalidState, room.match.State)
	}

	room.match.State = models.MatchStateCancelled
	room.terminalAt = e.now()

	if err := e.store.UpdateState(matchID, models.MatchStateCancelled, nil, nil); err != nil {
		e.logger.Error("Failed to persist match cancellation",
			zap.String("matchId", matchID),
			zap.Error(err))
	}

	e.broadcaster.Publish(MatchTopic(matchID), "match_cancelled", map[string]interface{}{
		"matchId": matchID,
	})

	return nil
}

// SetActivity records a subject's connection coming or going in every
// live match they play in, and tells the match's spectators. Presence is
// informational only; submissions from a disconnected subject are still
// judged.
func (e *MatchEngine) SetActivity(subjectID string, status models.ActivityStatus) {
	e.mu.RLock()
	rooms := make([]*matchRoom, 0, len(e.rooms))
	for _, room := range e.rooms {
		rooms = append(rooms, room)
	}
	e.mu.RUnlock()

	for _, room := range rooms {
		room.mu.Lock()
		participant, ok := room.participants[subjectID]
		if !ok || room.match.State != models.MatchStateLive || participant.ActivityStatus == status {
			room.mu.Unlock()
			continue
		}
		participant.ActivityStatus = status
		matchID := room.match.ID
		room.mu.Unlock()

		e.broadcaster.Publish(MatchTopic(matchID), "presence", map[string]interface{}{
			"matchId":   matchID,
			"subjectId": subjectID,
			"status":    status,
		})
	}
}

// ApplyVerdict folds a terminal verdict into the match. Idempotent per
// submission id: replays are no-ops. Fails with ErrMatchNotLive outside
// live, except for cancelled matches where in-flight verdicts are drained
// and discarded from scoring.
func (e *MatchEngine) ApplyVerdict(sub *models.Submission) error {
	room, err := e.getRoom(sub.MatchID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.applied[sub.ID] {
		return nil
	}

	switch room.match.State {
	case models.MatchStateCancelled:
		room.applied[sub.ID] = true
		e.logger.Info("Draining verdict for cancelled match",
			zap.String("matchId", sub.MatchID),
			zap.String("submissionId", sub.ID))
		return nil
	case models.MatchStateFinished:
		// a finished match must never silently absorb a verdict: that
		// would mean it was scored without this submission
		e.logger.Error("Verdict arrived after match finish",
			zap.String("matchId", sub.MatchID),
			zap.String("submissionId", sub.ID),
			zap.String("verdict", string(sub.Verdict)))
		return ErrMatchNotLive
	case models.MatchStateWaiting:
		return ErrMatchNotLive
	}

	if !sub.Verdict.Terminal() {
		return fmt.Errorf("%w: non-terminal verdict %s", ErrInvalidInput, sub.Verdict)
	}

	participant, ok := room.participants[sub.SubjectID]
	if !ok {
		return ErrNotParticipant
	}

	room.applied[sub.ID] = true
	room.log = append(room.log, sub)

	if !sub.InfraFailure {
		e.applyToParticipant(room, participant, sub)
	}

	if sub.Suspicious {
		e.logger.Warn("Suspicious submission flagged for review",
			zap.String("matchId", sub.MatchID),
			zap.String("subjectId", sub.SubjectID),
			zap.String("submissionId", sub.ID))
	}

	e.broadcastProgress(room, sub)

	if e.allProblemsSolved(room) {
		e.finishLocked(room)
	}

	return nil
}

// applyToParticipant updates per-participant progress under the room lock.
func (e *MatchEngine) applyToParticipant(room *matchRoom, p *models.Participant, sub *models.Submission) {
	if p.Solved(sub.ProblemID) {
		// first AC already recorded; later submissions are kept in the
		// log but never change the score
		return
	}

	if sub.Verdict.Accepted() {
		p.SolvedProblems[sub.ProblemID] = sub.EnqueuedAt
		p.Score++
		p.CurrentStreak++
		if room.match.StartedAt != nil {
			minutes := int(sub.EnqueuedAt.Sub(*room.match.StartedAt).Minutes())
			if minutes < 0 {
				minutes = 0
			}
			p.PenaltyUnits += minutes + p.Attempts[sub.ProblemID]*e.scoring.penaltyPerReject
		}
	} else {
		p.Attempts[sub.ProblemID]++
		p.CurrentStreak = 0
	}
}

// broadcastProgress publishes the state delta for one applied verdict.
// With fog of progress enabled opponents only learn their own standing;
// the full scoreboard is withheld until the match finishes.
func (e *MatchEngine) broadcastProgress(room *matchRoom, sub *models.Submission) {
	verdictPayload := map[string]interface{}{
		"matchId":         sub.MatchID,
		"submissionId":    sub.ID,
		"problemId":       sub.ProblemID,
		"verdict":         sub.Verdict,
		"executionTimeMs": sub.ExecutionTimeMs,
	}
	e.broadcaster.Publish(SubjectTopic(sub.SubjectID), "verdict", verdictPayload)

	standings := e.scoring.ComputeStandings(room.match, room.log)

	if e.fogOfProgress {
		side := room.match.TeamOf(sub.SubjectID)
		for _, s := range standings {
			if s.SubjectID == side {
				e.broadcaster.Publish(SubjectTopic(sub.SubjectID), "progress", s)
				break
			}
		}
		return
	}

	e.broadcaster.Publish(MatchTopic(sub.MatchID), "scoreboard", map[string]interface{}{
		"matchId":   sub.MatchID,
		"standings": standings,
	})
}

// Tick finishes live matches whose end time has passed and prunes rooms
// that have been terminal long enough for stragglers to drain.
func (e *MatchEngine) Tick() {
	e.mu.RLock()
	rooms := make([]*matchRoom, 0, len(e.rooms))
	for _, room := range e.rooms {
		rooms = append(rooms, room)
	}
	e.mu.RUnlock()

	now := e.now()
	var prune []string

	for _, room := range rooms {
		room.mu.Lock()
		switch {
		case room.match.State == models.MatchStateLive &&
			room.match.EndsAt != nil && !now.Before(*room.match.EndsAt):
			e.finishLocked(room)
		case room.match.State.Terminal() &&
			!room.terminalAt.IsZero() && now.Sub(room.terminalAt) > terminalRoomRetention:
			prune = append(prune, room.match.ID)
		}
		room.mu.Unlock()
	}

	if len(prune) > 0 {
		e.mu.Lock()
		for _, id := range prune {
			delete(e.rooms, id)
		}
		e.mu.Unlock()
	}
}

// finishLocked runs the full finish pipeline under the room lock: state
// transition, scoring, rating update, persistence, broadcast. Running it
// synchronously while holding the lock guarantees ratings are never
// computed while a verdict could still be applied.
func (e *MatchEngine) finishLocked(room *matchRoom) {
	if !room.match.State.CanTransition(models.MatchStateFinished) {
		return
	}

	matchID := room.match.ID
	room.match.State = models.MatchStateFinished
	room.terminalAt = e.now()

	if err := e.store.UpdateState(matchID, models.MatchStateFinished, nil, nil); err != nil {
		e.logger.Error("Failed to persist match finish",
			zap.String("matchId", matchID),
			zap.Error(err))
	}

	standings := e.scoring.ComputeStandings(room.match, room.log)
	room.match.FinalScores = standings

	deltas, err := e.settleRatings(room.match, standings)
	if err != nil {
		e.logger.Error("Failed to settle ratings",
			zap.String("matchId", matchID),
			zap.Error(err))
	} else {
		room.match.RatingDeltas = deltas
	}

	if err := e.store.SaveResult(matchID, room.match.FinalScores, room.match.RatingDeltas); err != nil {
		e.logger.Error("Failed to save match result",
			zap.String("matchId", matchID),
			zap.Error(err))
	}

	e.broadcaster.Publish(MatchTopic(matchID), "match_finished", map[string]interface{}{
		"matchId":      matchID,
		"standings":    standings,
		"ratingDeltas": room.match.RatingDeltas,
	})

	e.logger.Info("Match finished",
		zap.String("matchId", matchID),
		zap.Int("submissions", len(room.log)),
		zap.Float64("kFactor", e.rating.KFactor()))
}

// settleRatings computes per-subject deltas from the final standings and
// applies them to the rating store with bounded optimistic retries.
func (e *MatchEngine) settleRatings(match *models.Match, standings []models.Standing) (map[string]int, error) {
	sideMembers := make(map[string][]string)
	for _, subjectID := range match.ParticipantIDs {
		side := match.TeamOf(subjectID)
		sideMembers[side] = append(sideMembers[side], subjectID)
	}

	// pre-match ratings per side: the subject's own rating in 1v1, the
	// member mean in team mode
	preRatings := make(map[string]int, len(standings))
	for side, members := range sideMembers {
		var sum int
		for _, subjectID := range members {
			rec, err := e.ratings.GetOrCreate(subjectID, match.Mode)
			if err != nil {
				return nil, fmt.Errorf("failed to load rating for %s: %w", subjectID, err)
			}
			sum += rec.Rating
		}
		preRatings[side] = sum / len(members)
	}

	sideDeltas, err := e.rating.ComputeRatingDeltas(standings, preRatings, 0)
	if err != nil {
		return nil, err
	}

	// outcome per side for win/loss/streak book-keeping
	outcomes := make(map[string]float64, len(standings))
	for _, a := range standings {
		for _, b := range standings {
			if a.SubjectID == b.SubjectID {
				continue
			}
			outcomes[a.SubjectID] = e.rating.Outcome(a, b)
		}
	}

	subjectDeltas := make(map[string]int, len(match.ParticipantIDs))
	for side, members := range sideMembers {
		split := e.rating.SplitTeamDelta(sideDeltas[side], members)
		for subjectID, delta := range split {
			subjectDeltas[subjectID] = delta
			if err := e.applyRatingDelta(subjectID, match.Mode, delta, outcomes[side]); err != nil {
				e.logger.Error("Failed to apply rating delta",
					zap.String("subjectId", subjectID),
					zap.Int("delta", delta),
					zap.Error(err))
			}
		}
	}

	return subjectDeltas, nil
}

// applyRatingDelta performs the compare-and-swap loop against the rating
// store. A conflict means another match finished concurrently for the same
// subject; the record is re-read and the delta re-applied on the fresh
// snapshot.
func (e *MatchEngine) applyRatingDelta(subjectID string, mode models.Mode, delta int, outcome float64) error {
	var lastErr error

	for attempt := 0; attempt < ratingCASRetries; attempt++ {
		rec, err := e.ratings.GetOrCreate(subjectID, mode)
		if err != nil {
			return err
		}

		rec.Rating += delta
		rec.MatchesPlayed++
		switch {
		case outcome > 0.5:
			rec.Wins++
			if rec.Streak < 0 {
				rec.Streak = 0
			}
			rec.Streak++
		case outcome < 0.5:
			rec.Losses++
			if rec.Streak > 0 {
				rec.Streak = 0
			}
			rec.Streak--
		default:
			rec.Streak = 0
		}

		err = e.ratings.UpdateWithVersion(rec)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("rating update kept conflicting for %s: %w", subjectID, lastErr)
}

// allProblemsSolved reports whether every side solved the whole problem
// set, which ends the match early.
func (e *MatchEngine) allProblemsSolved(room *matchRoom) bool {
	solvedBySide := make(map[string]map[string]bool)
	for _, p := range room.participants {
		side := room.match.TeamOf(p.SubjectID)
		if solvedBySide[side] == nil {
			solvedBySide[side] = make(map[string]bool)
		}
		for problemID := range p.SolvedProblems {
			solvedBySide[side][problemID] = true
		}
	}

	if len(solvedBySide) == 0 {
		return false
	}
	for _, solved := range solvedBySide {
		if len(solved) < len(room.match.ProblemIDs) {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of the match for observers; callers never see
// the live room.
func (e *MatchEngine) Snapshot(matchID string) (*models.Match, error) {
	room, err := e.getRoom(matchID)
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	return e.snapshotLocked(room), nil
}

// Standings recomputes the current scoreboard from the room's submission
// log snapshot.
func (e *MatchEngine) Standings(matchID string) ([]models.Standing, error) {
	room, err := e.getRoom(matchID)
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	return e.scoring.ComputeStandings(room.match, room.log), nil
}

func (e *MatchEngine) getRoom(matchID string) (*matchRoom, error) {
	e.mu.RLock()
	room, ok := e.rooms[matchID]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrMatchNotFound
	}
	return room, nil
}

func (e *MatchEngine) snapshotRoom(room *matchRoom) *models.Match {
	room.mu.Lock()
	defer room.mu.Unlock()
	return e.snapshotLocked(room)
}

func (e *MatchEngine) snapshotLocked(room *matchRoom) *models.Match {
	m := *room.match
	m.ParticipantIDs = append([]string(nil), room.match.ParticipantIDs...)
	m.ProblemIDs = append([]string(nil), room.match.ProblemIDs...)
	if room.match.TeamIDs != nil {
		m.TeamIDs = make(map[string]string, len(room.match.TeamIDs))
		for k, v := range room.match.TeamIDs {
			m.TeamIDs[k] = v
		}
	}
	return &m
}
