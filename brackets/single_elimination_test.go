package brackets_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchforge/tournament-engine/brackets"
	"github.com/matchforge/tournament-engine/models"
)

func TestSingleElimination_EightPlayers(t *testing.T) {
	gen := brackets.NewSingleEliminationGenerator()
	bps, err := gen.GenerateBrackets(context.Background(), brackets.GenerateParams{Slots: makeSlots(8)})
	require.NoError(t, err)
	require.Len(t, bps, 1)

	bp := bps[0]
	assert.Equal(t, models.BracketTypeWinners, bp.Type)
	assert.Equal(t, 3, bp.TotalRounds)
	assert.Equal(t, 8, bp.ParticipantCount)
	assert.Equal(t, 0, bp.ByeCount)
	assert.Len(t, bp.Matches, 7)

	index := byUID(bp.Matches)

	// первый круг по стандартной раскладке
	assert.Equal(t, 1, seedOf(t, index["R1M1"].Participant1))
	assert.Equal(t, 8, seedOf(t, index["R1M1"].Participant2))
	assert.Equal(t, 4, seedOf(t, index["R1M2"].Participant1))
	assert.Equal(t, 5, seedOf(t, index["R1M2"].Participant2))
	assert.Equal(t, 2, seedOf(t, index["R1M3"].Participant1))
	assert.Equal(t, 7, seedOf(t, index["R1M3"].Participant2))
	assert.Equal(t, 3, seedOf(t, index["R1M4"].Participant1))
	assert.Equal(t, 6, seedOf(t, index["R1M4"].Participant2))

	// победители сходятся: матч i ведёт в матч i/2 следующего круга
	assert.Equal(t, "R2M1", index["R1M1"].WinnerToUID)
	assert.Equal(t, "R2M1", index["R1M2"].WinnerToUID)
	assert.Equal(t, "R2M2", index["R1M3"].WinnerToUID)
	assert.Equal(t, "R2M2", index["R1M4"].WinnerToUID)
	assert.Equal(t, "R3M1", index["R2M1"].WinnerToUID)
	assert.Equal(t, "R3M1", index["R2M2"].WinnerToUID)
	assert.Empty(t, index["R3M1"].WinnerToUID)

	for _, m := range bp.Matches {
		assert.False(t, m.IsBye)
		assert.Empty(t, m.LoserToUID)
	}
}

func TestSingleElimination_SixPlayers_ByesToTopSeeds(t *testing.T) {
	gen := brackets.NewSingleEliminationGenerator()
	bps, err := gen.GenerateBrackets(context.Background(), brackets.GenerateParams{Slots: makeSlots(6)})
	require.NoError(t, err)

	bp := bps[0]
	assert.Equal(t, 2, bp.ByeCount)
	assert.Len(t, bp.Matches, 7)

	index := byUID(bp.Matches)

	require.True(t, index["R1M1"].IsBye)
	assert.Equal(t, 1, seedOf(t, index["R1M1"].ByeWinner()))
	require.True(t, index["R1M3"].IsBye)
	assert.Equal(t, 2, seedOf(t, index["R1M3"].ByeWinner()))
	assert.False(t, index["R1M2"].IsBye)
	assert.False(t, index["R1M4"].IsBye)

	// участники bye продвинуты во второй круг уже на генерации
	assert.Equal(t, 1, seedOf(t, index["R2M1"].Participant1))
	assert.Nil(t, index["R2M1"].Participant2)
	assert.Equal(t, 2, seedOf(t, index["R2M2"].Participant1))
	assert.Nil(t, index["R2M2"].Participant2)
}

func TestSingleElimination_TwoPlayers(t *testing.T) {
	gen := brackets.NewSingleEliminationGenerator()
	bps, err := gen.GenerateBrackets(context.Background(), brackets.GenerateParams{Slots: makeSlots(2)})
	require.NoError(t, err)

	bp := bps[0]
	require.Len(t, bp.Matches, 1)
	assert.Equal(t, 1, bp.TotalRounds)
	final := bp.Matches[0]
	assert.Equal(t, 1, seedOf(t, final.Participant1))
	assert.Equal(t, 2, seedOf(t, final.Participant2))
	assert.False(t, final.IsBye)
	assert.Empty(t, final.WinnerToUID)
}

func TestSingleElimination_ThreePlayers(t *testing.T) {
	gen := brackets.NewSingleEliminationGenerator()
	bps, err := gen.GenerateBrackets(context.Background(), brackets.GenerateParams{Slots: makeSlots(3)})
	require.NoError(t, err)

	bp := bps[0]
	assert.Len(t, bp.Matches, 3)
	assert.Equal(t, 1, bp.ByeCount)

	index := byUID(bp.Matches)
	require.True(t, index["R1M1"].IsBye)
	assert.Equal(t, 2, seedOf(t, index["R1M2"].Participant1))
	assert.Equal(t, 3, seedOf(t, index["R1M2"].Participant2))
	assert.Equal(t, 1, seedOf(t, index["R2M1"].Participant1))

	// n-1 реальных матчей в любой сетке на вылет
	assert.Equal(t, 2, playableCount(bps))
}

func TestSingleElimination_UnseededOrderIsStable(t *testing.T) {
	slots := []brackets.SeedSlot{
		{ParticipantID: 7, DisplayName: "C", Seed: 3},
		{ParticipantID: 5, DisplayName: "A", Seed: 1},
		{ParticipantID: 6, DisplayName: "B", Seed: 2},
		{ParticipantID: 8, DisplayName: "D", Seed: 4},
	}
	gen := brackets.NewSingleEliminationGenerator()
	bps, err := gen.GenerateBrackets(context.Background(), brackets.GenerateParams{Slots: slots})
	require.NoError(t, err)

	index := byUID(bps[0].Matches)
	assert.Equal(t, 5, index["R1M1"].Participant1.ParticipantID)
	assert.Equal(t, 8, index["R1M1"].Participant2.ParticipantID)
	assert.Equal(t, 6, index["R1M2"].Participant1.ParticipantID)
	assert.Equal(t, 7, index["R1M2"].Participant2.ParticipantID)
}

func TestSingleElimination_NotEnoughParticipants(t *testing.T) {
	gen := brackets.NewSingleEliminationGenerator()
	_, err := gen.GenerateBrackets(context.Background(), brackets.GenerateParams{Slots: makeSlots(1)})
	assert.ErrorIs(t, err, brackets.ErrNotEnoughParticipants)
}
