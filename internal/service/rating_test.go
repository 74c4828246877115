package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeclash/codeclash-backend/internal/models"
)

func TestComputeRatingDeltas_EqualRatingsWin(t *testing.T) {
	engine := NewRatingEngine(32)

	standings := []models.Standing{
		{SubjectID: "alice", SolvedCount: 2, PenaltyMinutes: 40, Rank: 1},
		{SubjectID: "bob", SolvedCount: 1, PenaltyMinutes: 20, Rank: 2},
	}
	pre := map[string]int{"alice": 1200, "bob": 1200}

	deltas, err := engine.ComputeRatingDeltas(standings, pre, 0)
	require.NoError(t, err)

	// expected score is 0.5 for both, so the winner gains exactly K/2
	assert.Equal(t, 16, deltas["alice"])
	assert.Equal(t, -16, deltas["bob"])
}

func TestComputeRatingDeltas_ZeroSum(t *testing.T) {
	engine := NewRatingEngine(32)

	cases := []struct {
		name string
		a, b int
	}{
		{"equal", 1200, 1200},
		{"favorite wins", 1500, 1100},
		{"underdog wins", 1000, 1700},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			standings := []models.Standing{
				{SubjectID: "alice", SolvedCount: 3, PenaltyMinutes: 60, Rank: 1},
				{SubjectID: "bob", SolvedCount: 1, PenaltyMinutes: 30, Rank: 2},
			}
			pre := map[string]int{"alice": tc.a, "bob": tc.b}

			deltas, err := engine.ComputeRatingDeltas(standings, pre, 0)
			require.NoError(t, err)
			assert.Equal(t, 0, deltas["alice"]+deltas["bob"],
				"deltas must cancel exactly")
		})
	}
}

func TestComputeRatingDeltas_UnderdogGainsMore(t *testing.T) {
	engine := NewRatingEngine(32)

	standings := []models.Standing{
		{SubjectID: "underdog", SolvedCount: 2, PenaltyMinutes: 50, Rank: 1},
		{SubjectID: "favorite", SolvedCount: 1, PenaltyMinutes: 10, Rank: 2},
	}
	pre := map[string]int{"underdog": 1000, "favorite": 1400}

	deltas, err := engine.ComputeRatingDeltas(standings, pre, 0)
	require.NoError(t, err)
	assert.Greater(t, deltas["underdog"], 16)
	assert.Equal(t, -deltas["underdog"], deltas["favorite"])
}

func TestComputeRatingDeltas_EqualScoreboardIsDraw(t *testing.T) {
	engine := NewRatingEngine(32)

	// same solved count and penalty; ranks differ only by id tie-break,
	// which must not count as a win
	standings := []models.Standing{
		{SubjectID: "alice", SolvedCount: 1, PenaltyMinutes: 20, Rank: 1},
		{SubjectID: "bob", SolvedCount: 1, PenaltyMinutes: 20, Rank: 2},
	}
	pre := map[string]int{"alice": 1200, "bob": 1200}

	deltas, err := engine.ComputeRatingDeltas(standings, pre, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, deltas["alice"])
	assert.Equal(t, 0, deltas["bob"])
}

func TestComputeRatingDeltas_MissingPreRating(t *testing.T) {
	engine := NewRatingEngine(32)

	standings := []models.Standing{
		{SubjectID: "alice", SolvedCount: 1, Rank: 1},
		{SubjectID: "bob", SolvedCount: 0, Rank: 2},
	}

	_, err := engine.ComputeRatingDeltas(standings, map[string]int{"alice": 1200}, 0)
	assert.Error(t, err)
}

func TestSplitTeamDelta_SumsExactly(t *testing.T) {
	engine := NewRatingEngine(32)
	members := []string{"a1", "a2", "a3"}

	for _, sideDelta := range []int{16, 17, -16, -17, 0, 1, -1} {
		split := engine.SplitTeamDelta(sideDelta, members)
		require.Len(t, split, 3)

		sum := 0
		for _, d := range split {
			sum += d
		}
		assert.Equal(t, sideDelta, sum, "split of %d must sum back", sideDelta)

		// no member may differ from another by more than one point
		for _, a := range members {
			for _, b := range members {
				diff := split[a] - split[b]
				if diff < 0 {
					diff = -diff
				}
				assert.LessOrEqual(t, diff, 1)
			}
		}
	}
}

func TestNewRatingEngineClampsKFactor(t *testing.T) {
	assert.Equal(t, 32.0, NewRatingEngine(0).KFactor())
	assert.Equal(t, 32.0, NewRatingEngine(-5).KFactor())
	assert.Equal(t, 24.0, NewRatingEngine(24).KFactor())
}

func TestOutcome(t *testing.T) {
	engine := NewRatingEngine(32)

	win := models.Standing{SubjectID: "a", SolvedCount: 2, PenaltyMinutes: 30}
	lossBySolves := models.Standing{SubjectID: "b", SolvedCount: 1, PenaltyMinutes: 10}
	lossByPenalty := models.Standing{SubjectID: "c", SolvedCount: 2, PenaltyMinutes: 45}
	draw := models.Standing{SubjectID: "d", SolvedCount: 2, PenaltyMinutes: 30}

	assert.Equal(t, 1.0, engine.Outcome(win, lossBySolves))
	assert.Equal(t, 0.0, engine.Outcome(lossBySolves, win))
	assert.Equal(t, 1.0, engine.Outcome(win, lossByPenalty))
	assert.Equal(t, 0.5, engine.Outcome(win, draw))
}
