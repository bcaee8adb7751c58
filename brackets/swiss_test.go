package brackets_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchforge/tournament-engine/brackets"
	"github.com/matchforge/tournament-engine/models"
)

func TestSwiss_FirstRoundPairsBySeed(t *testing.T) {
	gen := brackets.NewSwissGenerator()
	bps, err := gen.GenerateBrackets(context.Background(), brackets.GenerateParams{Slots: makeSlots(8)})
	require.NoError(t, err)
	require.Len(t, bps, 1)

	bp := bps[0]
	assert.Equal(t, models.BracketTypeSwiss, bp.Type)
	assert.Equal(t, 3, bp.TotalRounds)
	require.Len(t, bp.Matches, 4)

	for i, m := range bp.Matches {
		assert.Equal(t, 1, m.Round)
		assert.Equal(t, 2*i+1, seedOf(t, m.Participant1))
		assert.Equal(t, 2*i+2, seedOf(t, m.Participant2))
		assert.Equal(t, models.MatchTypeSwiss, m.Type)
	}
}

func TestSwiss_OddCountLowestSeedGetsBye(t *testing.T) {
	gen := brackets.NewSwissGenerator()
	bps, err := gen.GenerateBrackets(context.Background(), brackets.GenerateParams{Slots: makeSlots(7)})
	require.NoError(t, err)

	bp := bps[0]
	assert.Equal(t, 1, bp.ByeCount)
	require.Len(t, bp.Matches, 4)

	bye := bp.Matches[3]
	require.True(t, bye.IsBye)
	assert.Equal(t, 7, seedOf(t, bye.ByeWinner()))
	assert.Nil(t, bye.Participant2)
}

func TestSwiss_RoundCountOverride(t *testing.T) {
	five := 5
	gen := brackets.NewSwissGenerator()
	bps, err := gen.GenerateBrackets(context.Background(), brackets.GenerateParams{
		Tournament: &models.Tournament{SwissRounds: &five},
		Slots:      makeSlots(8),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, bps[0].TotalRounds)
}

func TestDefaultSwissRounds(t *testing.T) {
	cases := map[int]int{2: 1, 3: 2, 4: 2, 5: 3, 8: 3, 9: 4, 16: 4, 17: 5}
	for n, want := range cases {
		assert.Equal(t, want, brackets.DefaultSwissRounds(n), "n=%d", n)
	}
}

func competitor(id, seed, points int, hadBye bool) brackets.SwissCompetitor {
	return brackets.SwissCompetitor{
		Slot:   brackets.SeedSlot{ParticipantID: id, Seed: seed},
		Points: points,
		HadBye: hadBye,
	}
}

func played(pairs ...[2]int) map[int]map[int]bool {
	set := make(map[int]map[int]bool)
	for _, p := range pairs {
		for _, key := range [][2]int{{p[0], p[1]}, {p[1], p[0]}} {
			if set[key[0]] == nil {
				set[key[0]] = make(map[int]bool)
			}
			set[key[0]][key[1]] = true
		}
	}
	return set
}

func TestPairSwissRound_ScoreGroupsAvoidRematch(t *testing.T) {
	competitors := []brackets.SwissCompetitor{
		competitor(1, 1, 3, false),
		competitor(2, 2, 0, false),
		competitor(3, 3, 3, false),
		competitor(4, 4, 0, false),
	}
	matches, err := brackets.PairSwissRound(2, competitors, played([2]int{1, 2}, [2]int{3, 4}))
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// лидеры 1 и 3 ещё не играли: верхняя группа сводится между собой
	assert.Equal(t, 1, matches[0].Participant1.ParticipantID)
	assert.Equal(t, 3, matches[0].Participant2.ParticipantID)
	assert.Equal(t, 2, matches[1].Participant1.ParticipantID)
	assert.Equal(t, 4, matches[1].Participant2.ParticipantID)
	for _, m := range matches {
		assert.False(t, m.ForcedRematch)
		assert.Equal(t, 2, m.Round)
	}
}

func TestPairSwissRound_FloatsDownWhenGroupExhausted(t *testing.T) {
	// 1 и 2 в топ-группе уже играли: второму ищется пара ниже
	competitors := []brackets.SwissCompetitor{
		competitor(1, 1, 3, false),
		competitor(2, 2, 3, false),
		competitor(3, 3, 0, false),
		competitor(4, 4, 0, false),
	}
	matches, err := brackets.PairSwissRound(2, competitors, played([2]int{1, 2}))
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, 1, matches[0].Participant1.ParticipantID)
	assert.Equal(t, 3, matches[0].Participant2.ParticipantID)
	assert.False(t, matches[0].ForcedRematch)
	assert.Equal(t, 2, matches[1].Participant1.ParticipantID)
	assert.Equal(t, 4, matches[1].Participant2.ParticipantID)
}

func TestPairSwissRound_ForcedRematchIsRecorded(t *testing.T) {
	competitors := []brackets.SwissCompetitor{
		competitor(1, 1, 3, false),
		competitor(2, 2, 0, false),
	}
	matches, err := brackets.PairSwissRound(3, competitors, played([2]int{1, 2}))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.True(t, matches[0].ForcedRematch)
}

func TestPairSwissRound_ByeSkipsPreviousByeHolder(t *testing.T) {
	competitors := []brackets.SwissCompetitor{
		competitor(1, 1, 3, false),
		competitor(2, 2, 3, false),
		competitor(3, 3, 0, false),
		competitor(4, 4, 0, false),
		competitor(5, 5, 0, true),
	}
	matches, err := brackets.PairSwissRound(2, competitors, nil)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	bye := matches[2]
	require.True(t, bye.IsBye)
	// у пятого bye уже был, поэтому bye уходит четвёртому
	assert.Equal(t, 4, bye.ByeWinner().ParticipantID)

	assert.Equal(t, 1, matches[0].Participant1.ParticipantID)
	assert.Equal(t, 2, matches[0].Participant2.ParticipantID)
	assert.Equal(t, 3, matches[1].Participant1.ParticipantID)
	assert.Equal(t, 5, matches[1].Participant2.ParticipantID)
}

func TestPairSwissRound_RejectsRoundOne(t *testing.T) {
	_, err := brackets.PairSwissRound(1, []brackets.SwissCompetitor{competitor(1, 1, 0, false), competitor(2, 2, 0, false)}, nil)
	assert.ErrorIs(t, err, brackets.ErrSwissRoundTooEarly)
}

func TestBuildPlayedSet(t *testing.T) {
	p1, p2, p3 := 10, 20, 30
	matches := []models.Match{
		{Participant1ID: &p1, Participant2ID: &p2},
		{Participant1ID: &p2, Participant2ID: &p3},
		{Participant1ID: &p1},
	}
	set := brackets.BuildPlayedSet(matches)
	assert.True(t, set[10][20])
	assert.True(t, set[20][10])
	assert.True(t, set[20][30])
	assert.False(t, set[10][30])
}
