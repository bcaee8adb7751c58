package brackets_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchforge/tournament-engine/brackets"
	"github.com/matchforge/tournament-engine/models"
)

func generateRoundRobin(t *testing.T, n int) *brackets.Blueprint {
	t.Helper()
	gen := brackets.NewRoundRobinGenerator()
	bps, err := gen.GenerateBrackets(context.Background(), brackets.GenerateParams{Slots: makeSlots(n)})
	require.NoError(t, err)
	require.Len(t, bps, 1)
	return bps[0]
}

func TestRoundRobin_FourPlayers(t *testing.T) {
	bp := generateRoundRobin(t, 4)

	assert.Equal(t, models.BracketTypeRoundRobin, bp.Type)
	assert.Equal(t, 3, bp.TotalRounds)
	assert.Len(t, bp.Matches, 6)

	perRound := map[int]int{}
	for _, m := range bp.Matches {
		perRound[m.Round]++
		assert.Equal(t, models.MatchTypeRoundRobin, m.Type)
		assert.False(t, m.IsBye)
		assert.Empty(t, m.WinnerToUID)
	}
	assert.Equal(t, map[int]int{1: 2, 2: 2, 3: 2}, perRound)
}

func TestRoundRobin_EveryPairMeetsOnce(t *testing.T) {
	for _, n := range []int{2, 3, 4, 5, 6, 7, 8} {
		bp := generateRoundRobin(t, n)

		assert.Len(t, bp.Matches, n*(n-1)/2, "n=%d", n)

		pairs := map[string]int{}
		for _, m := range bp.Matches {
			a, b := m.Participant1.ParticipantID, m.Participant2.ParticipantID
			if a > b {
				a, b = b, a
			}
			pairs[fmt.Sprintf("%d-%d", a, b)]++
		}
		for pair, count := range pairs {
			assert.Equal(t, 1, count, "n=%d, pair %s", n, pair)
		}
		assert.Len(t, pairs, n*(n-1)/2, "n=%d", n)
	}
}

func TestRoundRobin_NoPlayerTwicePerRound(t *testing.T) {
	for _, n := range []int{5, 6, 9} {
		bp := generateRoundRobin(t, n)

		seen := map[int]map[int]bool{}
		for _, m := range bp.Matches {
			if seen[m.Round] == nil {
				seen[m.Round] = map[int]bool{}
			}
			for _, id := range []int{m.Participant1.ParticipantID, m.Participant2.ParticipantID} {
				assert.False(t, seen[m.Round][id], "n=%d, round %d, participant %d plays twice", n, m.Round, id)
				seen[m.Round][id] = true
			}
		}
	}
}

func TestRoundRobin_OddCountSitsOutEachRound(t *testing.T) {
	bp := generateRoundRobin(t, 3)

	assert.Equal(t, 3, bp.TotalRounds)
	assert.Len(t, bp.Matches, 3)
	perRound := map[int]int{}
	for _, m := range bp.Matches {
		perRound[m.Round]++
	}
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 1}, perRound)
}

func TestRoundRobin_NotEnoughParticipants(t *testing.T) {
	gen := brackets.NewRoundRobinGenerator()
	_, err := gen.GenerateBrackets(context.Background(), brackets.GenerateParams{Slots: makeSlots(1)})
	assert.ErrorIs(t, err, brackets.ErrNotEnoughParticipants)
}
