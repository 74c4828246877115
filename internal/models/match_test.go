package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchStateTransitions(t *testing.T) {
	cases := []struct {
		from, to MatchState
		ok       bool
	}{
		{MatchStateWaiting, MatchStateLive, true},
		{MatchStateWaiting, MatchStateCancelled, true},
		{MatchStateLive, MatchStateFinished, true},
		{MatchStateWaiting, MatchStateFinished, false},
		{MatchStateLive, MatchStateCancelled, false},
		{MatchStateLive, MatchStateWaiting, false},
		{MatchStateFinished, MatchStateLive, false},
		{MatchStateFinished, MatchStateCancelled, false},
		{MatchStateCancelled, MatchStateLive, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestMatchStateTerminal(t *testing.T) {
	assert.False(t, MatchStateWaiting.Terminal())
	assert.False(t, MatchStateLive.Terminal())
	assert.True(t, MatchStateFinished.Terminal())
	assert.True(t, MatchStateCancelled.Terminal())
}

func TestTeamOf(t *testing.T) {
	solo := &Match{ParticipantIDs: []string{"alice", "bob"}}
	assert.Equal(t, "alice", solo.TeamOf("alice"))

	team := &Match{
		ParticipantIDs: []string{"a1", "b1"},
		TeamIDs:        map[string]string{"a1": "A", "b1": "B"},
	}
	assert.Equal(t, "A", team.TeamOf("a1"))
	assert.Equal(t, "B", team.TeamOf("b1"))
}

func TestVerdictTransitions(t *testing.T) {
	assert.True(t, VerdictPending.CanTransition(VerdictRunning))
	assert.True(t, VerdictPending.CanTransition(VerdictAC))
	assert.True(t, VerdictRunning.CanTransition(VerdictWA))

	// never backwards
	assert.False(t, VerdictRunning.CanTransition(VerdictPending))
	assert.False(t, VerdictRunning.CanTransition(VerdictCompiling))

	// terminal verdicts are immutable
	for _, v := range []Verdict{VerdictAC, VerdictWA, VerdictTLE, VerdictMLE, VerdictRE, VerdictCE} {
		assert.True(t, v.Terminal())
		assert.False(t, v.CanTransition(VerdictAC))
		assert.False(t, v.CanTransition(VerdictPending))
	}
}

func TestModeSizes(t *testing.T) {
	assert.Equal(t, 1, ModeSolo.TeamSize())
	assert.Equal(t, 3, ModeTeam.TeamSize())
	assert.Equal(t, 2, ModeSolo.RequiredEntries())
	assert.Equal(t, 6, ModeTeam.RequiredEntries())
	assert.True(t, ModeSolo.Valid())
	assert.True(t, ModeTeam.Valid())
	assert.False(t, Mode("2v2").Valid())
}

func TestTierForRating(t *testing.T) {
	cases := []struct {
		rating int
		tier   Tier
	}{
		{800, TierBronze},
		{999, TierBronze},
		{1000, TierSilver},
		{1299, TierSilver},
		{1300, TierGold},
		{1599, TierGold},
		{1600, TierPlatinum},
		{1899, TierPlatinum},
		{1900, TierDiamond},
		{2199, TierDiamond},
		{2200, TierMaster},
		{3000, TierMaster},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.tier, TierForRating(tc.rating), "rating %d", tc.rating)
	}
}

func TestStandingLess(t *testing.T) {
	moreSolved := Standing{SubjectID: "a", SolvedCount: 2, PenaltyMinutes: 100}
	fewerSolved := Standing{SubjectID: "b", SolvedCount: 1, PenaltyMinutes: 10}
	assert.True(t, moreSolved.Less(fewerSolved))
	assert.False(t, fewerSolved.Less(moreSolved))

	lowPenalty := Standing{SubjectID: "c", SolvedCount: 2, PenaltyMinutes: 40}
	highPenalty := Standing{SubjectID: "d", SolvedCount: 2, PenaltyMinutes: 60}
	assert.True(t, lowPenalty.Less(highPenalty))

	tieA := Standing{SubjectID: "a", SolvedCount: 1, PenaltyMinutes: 20}
	tieB := Standing{SubjectID: "b", SolvedCount: 1, PenaltyMinutes: 20}
	assert.True(t, tieA.Less(tieB))
	assert.False(t, tieB.Less(tieA))
}
