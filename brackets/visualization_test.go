package brackets_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchforge/tournament-engine/brackets"
	"github.com/matchforge/tournament-engine/models"
)

func TestBuildBracketView_GroupsByRound(t *testing.T) {
	p1, p2, p3 := 11, 12, 13
	name1, name2 := "Alpha", "Bravo"
	seed1, seed2 := 1, 2
	next := 3

	bracket := &models.Bracket{
		ID:           5,
		TournamentID: 42,
		Type:         models.BracketTypeWinners,
		Status:       models.BracketStatusInProgress,
		TotalRounds:  2,
		CurrentRound: 1,
	}
	matches := []models.Match{
		{ID: 2, Round: 1, MatchNumber: 2, Status: models.MatchStatusPending, Participant1ID: &p3},
		{
			ID: 1, Round: 1, MatchNumber: 1, Status: models.MatchStatusCompleted,
			Participant1ID: &p1, Participant1Name: &name1, Participant1Seed: &seed1,
			Participant2ID: &p2, Participant2Name: &name2, Participant2Seed: &seed2,
			ScoreP1: 2, ScoreP2: 1, WinnerID: &p1, NextMatchID: &next,
		},
	}

	view := brackets.BuildBracketView(bracket, matches)

	assert.Equal(t, 5, view.BracketID)
	assert.Equal(t, 42, view.TournamentID)
	require.Len(t, view.Rounds, 2)

	first := view.Rounds[0]
	assert.Equal(t, 1, first.Round)
	require.Len(t, first.Matches, 2)
	assert.Equal(t, 1, first.Matches[0].MatchNumber)
	assert.Equal(t, 2, first.Matches[1].MatchNumber)

	node := first.Matches[0]
	require.NotNil(t, node.Participant1)
	assert.Equal(t, "Alpha", node.Participant1.DisplayName)
	assert.Equal(t, 2, node.Participant1.Score)
	require.NotNil(t, node.NextMatchID)
	assert.Equal(t, 3, *node.NextMatchID)

	// пустой второй круг остаётся колонкой
	assert.Equal(t, 2, view.Rounds[1].Round)
	assert.Empty(t, view.Rounds[1].Matches)
}

func TestBuildBracketView_MarshalsWithoutEmptySlots(t *testing.T) {
	bracket := &models.Bracket{ID: 1, TournamentID: 2, Type: models.BracketTypeWinners, Status: models.BracketStatusGenerated, TotalRounds: 1}
	view := brackets.BuildBracketView(bracket, []models.Match{{ID: 7, Round: 1, MatchNumber: 1, Status: models.MatchStatusPending}})

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "participant1")
	assert.Contains(t, string(raw), `"match_id":7`)
}
