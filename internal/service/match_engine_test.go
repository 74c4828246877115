package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeclash/codeclash-backend/internal/models"
)

type engineFixture struct {
	engine  *MatchEngine
	store   *fakeMatchStore
	ratings *fakeRatingStore
	bcast   *fakeBroadcaster
	clock   time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	f := &engineFixture{
		store:   newFakeMatchStore(),
		ratings: newFakeRatingStore(),
		bcast:   &fakeBroadcaster{},
		clock:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.engine = NewMatchEngine(
		f.store,
		f.ratings,
		f.bcast,
		NewScoringEngine(),
		NewRatingEngine(32),
		30*time.Minute,
		false,
	)
	f.engine.now = func() time.Time { return f.clock }
	return f
}

func (f *engineFixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *engineFixture) startedSoloMatch(t *testing.T) *models.Match {
	t.Helper()

	match, err := f.engine.CreateMatch(models.ModeSolo,
		[][]string{{"alice"}, {"bob"}},
		[]string{"p1", "p2", "p3"})
	require.NoError(t, err)

	match, err = f.engine.StartMatch(match.ID)
	require.NoError(t, err)
	return match
}

func terminalSub(id, matchID, subjectID, problemID string, verdict models.Verdict, seq int64, at time.Time) *models.Submission {
	return &models.Submission{
		ID:         id,
		MatchID:    matchID,
		SubjectID:  subjectID,
		ProblemID:  problemID,
		Seq:        seq,
		EnqueuedAt: at,
		Verdict:    verdict,
	}
}

func TestMatchEngine_Lifecycle(t *testing.T) {
	f := newEngineFixture(t)

	match, err := f.engine.CreateMatch(models.ModeSolo,
		[][]string{{"alice"}, {"bob"}},
		[]string{"p1", "p2", "p3"})
	require.NoError(t, err)
	assert.Equal(t, models.MatchStateWaiting, match.State)

	match, err = f.engine.StartMatch(match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStateLive, match.State)
	require.NotNil(t, match.EndsAt)
	assert.Equal(t, f.clock.Add(30*time.Minute), *match.EndsAt)

	// starting twice is rejected
	_, err = f.engine.StartMatch(match.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	// a live match cannot be cancelled
	assert.ErrorIs(t, f.engine.Cancel(match.ID), ErrInvalidState)

	assert.Equal(t, 1, f.bcast.count("match_started"))
}

func TestMatchEngine_CreateMatchValidation(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.CreateMatch("2v2", [][]string{{"a"}, {"b"}}, []string{"p1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.engine.CreateMatch(models.ModeSolo, [][]string{{"a"}}, []string{"p1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.engine.CreateMatch(models.ModeTeam,
		[][]string{{"a1", "a2"}, {"b1", "b2", "b3"}}, []string{"p1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.engine.CreateMatch(models.ModeSolo, [][]string{{"a"}, {"b"}}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMatchEngine_CancelWaitingMatch(t *testing.T) {
	f := newEngineFixture(t)

	match, err := f.engine.CreateMatch(models.ModeSolo,
		[][]string{{"alice"}, {"bob"}}, []string{"p1"})
	require.NoError(t, err)

	require.NoError(t, f.engine.Cancel(match.ID))
	assert.Equal(t, models.MatchStateCancelled, f.store.stateOf(match.ID))

	// verdicts for a cancelled match drain without error
	s := terminalSub("s1", match.ID, "alice", "p1", models.VerdictAC, 1, f.clock)
	assert.NoError(t, f.engine.ApplyVerdict(s))

	// and never reach the scoreboard
	assert.Equal(t, 0, f.bcast.count("scoreboard"))
}

func TestMatchEngine_ApplyVerdictIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	match := f.startedSoloMatch(t)

	s := terminalSub("s1", match.ID, "alice", "p1", models.VerdictAC, 1, f.clock.Add(5*time.Minute))
	require.NoError(t, f.engine.ApplyVerdict(s))
	require.NoError(t, f.engine.ApplyVerdict(s))
	require.NoError(t, f.engine.ApplyVerdict(s))

	standings, err := f.engine.Standings(match.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, standings[0].SolvedCount)
	assert.Equal(t, 5, standings[0].PenaltyMinutes)

	// only one scoreboard delta went out
	assert.Equal(t, 1, f.bcast.count("scoreboard"))
}

func TestMatchEngine_ApplyVerdictGuards(t *testing.T) {
	f := newEngineFixture(t)

	match, err := f.engine.CreateMatch(models.ModeSolo,
		[][]string{{"alice"}, {"bob"}}, []string{"p1"})
	require.NoError(t, err)

	// waiting match rejects verdicts
	s := terminalSub("s1", match.ID, "alice", "p1", models.VerdictAC, 1, f.clock)
	assert.ErrorIs(t, f.engine.ApplyVerdict(s), ErrMatchNotLive)

	// unknown match
	s2 := terminalSub("s2", "nope", "alice", "p1", models.VerdictAC, 2, f.clock)
	assert.ErrorIs(t, f.engine.ApplyVerdict(s2), ErrMatchNotFound)

	_, err = f.engine.StartMatch(match.ID)
	require.NoError(t, err)

	// non-participant
	s3 := terminalSub("s3", match.ID, "mallory", "p1", models.VerdictAC, 3, f.clock)
	assert.ErrorIs(t, f.engine.ApplyVerdict(s3), ErrNotParticipant)

	// non-terminal verdict
	s4 := terminalSub("s4", match.ID, "alice", "p1", models.VerdictRunning, 4, f.clock)
	assert.ErrorIs(t, f.engine.ApplyVerdict(s4), ErrInvalidInput)
}

func TestMatchEngine_TimerFinishSettlesRatings(t *testing.T) {
	f := newEngineFixture(t)
	f.ratings.seed("alice", models.ModeSolo, 1200)
	f.ratings.seed("bob", models.ModeSolo, 1200)

	match := f.startedSoloMatch(t)

	s := terminalSub("s1", match.ID, "alice", "p1", models.VerdictAC, 1, f.clock.Add(10*time.Minute))
	require.NoError(t, f.engine.ApplyVerdict(s))

	// end timer fires
	f.advance(31 * time.Minute)
	f.engine.Tick()

	assert.Equal(t, models.MatchStateFinished, f.store.stateOf(match.ID))
	assert.Equal(t, 1, f.bcast.count("match_finished"))

	// equal ratings, decisive result: exactly K/2 moves
	assert.Equal(t, 1216, f.ratings.ratingOf("alice", models.ModeSolo))
	assert.Equal(t, 1184, f.ratings.ratingOf("bob", models.ModeSolo))

	deltas := f.store.deltas[match.ID]
	require.NotNil(t, deltas)
	assert.Equal(t, 16, deltas["alice"])
	assert.Equal(t, -16, deltas["bob"])

	// verdicts after finish are rejected loudly, not absorbed
	late := terminalSub("s9", match.ID, "bob", "p1", models.VerdictAC, 9, f.clock)
	assert.ErrorIs(t, f.engine.ApplyVerdict(late), ErrMatchNotLive)
}

func TestMatchEngine_CompletionFinishesEarly(t *testing.T) {
	f := newEngineFixture(t)

	match, err := f.engine.CreateMatch(models.ModeSolo,
		[][]string{{"alice"}, {"bob"}}, []string{"p1"})
	require.NoError(t, err)
	_, err = f.engine.StartMatch(match.ID)
	require.NoError(t, err)

	require.NoError(t, f.engine.ApplyVerdict(
		terminalSub("s1", match.ID, "alice", "p1", models.VerdictAC, 1, f.clock.Add(time.Minute))))
	// match still live: bob has not solved p1
	snap, err := f.engine.Snapshot(match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStateLive, snap.State)

	require.NoError(t, f.engine.ApplyVerdict(
		terminalSub("s2", match.ID, "bob", "p1", models.VerdictAC, 2, f.clock.Add(2*time.Minute))))

	// both sides solved everything, no need to wait for the timer
	assert.Equal(t, models.MatchStateFinished, f.store.stateOf(match.ID))
}

func TestMatchEngine_RatingConflictRetries(t *testing.T) {
	f := newEngineFixture(t)
	f.ratings.seed("alice", models.ModeSolo, 1200)
	f.ratings.seed("bob", models.ModeSolo, 1200)
	// first two writes lose the optimistic race, the retry must land
	f.ratings.conflicts = 2

	match := f.startedSoloMatch(t)
	require.NoError(t, f.engine.ApplyVerdict(
		terminalSub("s1", match.ID, "alice", "p1", models.VerdictAC, 1, f.clock.Add(time.Minute))))

	f.advance(31 * time.Minute)
	f.engine.Tick()

	assert.Equal(t, 1216, f.ratings.ratingOf("alice", models.ModeSolo))
	assert.Equal(t, 1184, f.ratings.ratingOf("bob", models.ModeSolo))
}

func TestMatchEngine_TeamDeltasSplitAcrossMembers(t *testing.T) {
	f := newEngineFixture(t)

	match, err := f.engine.CreateMatch(models.ModeTeam,
		[][]string{{"a1", "a2", "a3"}, {"b1", "b2", "b3"}},
		[]string{"p1"})
	require.NoError(t, err)
	_, err = f.engine.StartMatch(match.ID)
	require.NoError(t, err)

	require.NoError(t, f.engine.ApplyVerdict(
		terminalSub("s1", match.ID, "a2", "p1", models.VerdictAC, 1, f.clock.Add(3*time.Minute))))

	f.advance(31 * time.Minute)
	f.engine.Tick()

	deltas := f.store.deltas[match.ID]
	require.Len(t, deltas, 6)

	var sum int
	for _, d := range deltas {
		sum += d
	}
	assert.Equal(t, 0, sum, "member deltas must stay zero-sum")
	assert.Positive(t, deltas["a1"])
	assert.Negative(t, deltas["b1"])
}

func TestMatchEngine_TerminalRoomsPruned(t *testing.T) {
	f := newEngineFixture(t)
	match := f.startedSoloMatch(t)

	f.advance(31 * time.Minute)
	f.engine.Tick()
	require.Equal(t, models.MatchStateFinished, f.store.stateOf(match.ID))

	// still registered during the drain window
	_, err := f.engine.Snapshot(match.ID)
	require.NoError(t, err)

	f.advance(terminalRoomRetention + time.Minute)
	f.engine.Tick()

	_, err = f.engine.Snapshot(match.ID)
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestMatchEngine_FogOfProgressHidesScoreboard(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.fogOfProgress = true

	match := f.startedSoloMatch(t)
	require.NoError(t, f.engine.ApplyVerdict(
		terminalSub("s1", match.ID, "alice", "p1", models.VerdictAC, 1, f.clock.Add(time.Minute))))

	assert.Equal(t, 0, f.bcast.count("scoreboard"))
	topics := f.bcast.topicsFor("progress")
	require.Len(t, topics, 1)
	assert.Equal(t, SubjectTopic("alice"), topics[0])
}

func TestMatchEngine_SetActivityTracksPresence(t *testing.T) {
	f := newEngineFixture(t)

	match, err := f.engine.CreateMatch(models.ModeSolo,
		[][]string{{"alice"}, {"bob"}},
		[]string{"p1"})
	require.NoError(t, err)

	// presence changes are ignored before the match goes live
	f.engine.SetActivity("alice", models.ActivityDisconnected)
	assert.Equal(t, 0, f.bcast.count("presence"))

	_, err = f.engine.StartMatch(match.ID)
	require.NoError(t, err)

	f.engine.SetActivity("alice", models.ActivityDisconnected)
	assert.Equal(t, 1, f.bcast.count("presence"))
	assert.Equal(t, []string{MatchTopic(match.ID)}, f.bcast.topicsFor("presence"))

	room, err := f.engine.getRoom(match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActivityDisconnected, room.participants["alice"].ActivityStatus)

	// repeating the same status and unknown subjects are no-ops
	f.engine.SetActivity("alice", models.ActivityDisconnected)
	f.engine.SetActivity("ghost", models.ActivityActive)
	assert.Equal(t, 1, f.bcast.count("presence"))

	// reconnecting flips the participant back
	f.engine.SetActivity("alice", models.ActivityActive)
	assert.Equal(t, 2, f.bcast.count("presence"))
	assert.Equal(t, models.ActivityActive, room.participants["alice"].ActivityStatus)
}
