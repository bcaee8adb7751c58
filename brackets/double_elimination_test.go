package brackets_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchforge/tournament-engine/brackets"
	"github.com/matchforge/tournament-engine/models"
)

func generateDouble(t *testing.T, n int) []*brackets.Blueprint {
	t.Helper()
	gen := brackets.NewDoubleEliminationGenerator()
	bps, err := gen.GenerateBrackets(context.Background(), brackets.GenerateParams{Slots: makeSlots(n)})
	require.NoError(t, err)
	return bps
}

func allMatches(bps []*brackets.Blueprint) []*brackets.BracketMatch {
	var all []*brackets.BracketMatch
	for _, bp := range bps {
		all = append(all, bp.Matches...)
	}
	return all
}

func TestDoubleElimination_EightPlayers_Structure(t *testing.T) {
	bps := generateDouble(t, 8)
	require.Len(t, bps, 3)

	winners := blueprintOf(t, bps, models.BracketTypeWinners)
	losers := blueprintOf(t, bps, models.BracketTypeLosers)
	finals := blueprintOf(t, bps, models.BracketTypeGrandFinals)

	assert.Equal(t, 3, winners.TotalRounds)
	assert.Len(t, winners.Matches, 7)
	assert.Equal(t, 4, losers.TotalRounds)
	assert.Len(t, losers.Matches, 6)
	require.Len(t, finals.Matches, 1)
	assert.Equal(t, models.MatchTypeGrandFinals, finals.Matches[0].Type)

	perRound := map[int]int{}
	for _, m := range losers.Matches {
		perRound[m.Round]++
		assert.Equal(t, models.MatchTypeLosers, m.Type)
	}
	assert.Equal(t, map[int]int{1: 2, 2: 2, 3: 1, 4: 1}, perRound)

	// всего играбельных матчей 2n-2 без reset
	assert.Equal(t, 14, playableCount(bps))
}

func TestDoubleElimination_EightPlayers_Routing(t *testing.T) {
	bps := generateDouble(t, 8)
	index := byUID(allMatches(bps))

	// проигравшие первого круга сходятся попарно
	assert.Equal(t, "LR1M1", index["WR1M1"].LoserToUID)
	assert.Equal(t, "LR1M1", index["WR1M2"].LoserToUID)
	assert.Equal(t, "LR1M2", index["WR1M3"].LoserToUID)
	assert.Equal(t, "LR1M2", index["WR1M4"].LoserToUID)

	// чётный круг верхней сетки заходит в major зеркально
	assert.Equal(t, "LR2M2", index["WR2M1"].LoserToUID)
	assert.Equal(t, "LR2M1", index["WR2M2"].LoserToUID)
	assert.Equal(t, "LR4M1", index["WR3M1"].LoserToUID)

	// внутренние рёбра нижней сетки
	assert.Equal(t, "LR2M1", index["LR1M1"].WinnerToUID)
	assert.Equal(t, "LR2M2", index["LR1M2"].WinnerToUID)
	assert.Equal(t, "LR3M1", index["LR2M1"].WinnerToUID)
	assert.Equal(t, "LR3M1", index["LR2M2"].WinnerToUID)
	assert.Equal(t, "LR4M1", index["LR3M1"].WinnerToUID)

	// оба финалиста приходят в гранд-финал
	assert.Equal(t, "GFR1M1", index["WR3M1"].WinnerToUID)
	assert.Equal(t, "GFR1M1", index["LR4M1"].WinnerToUID)
}

func TestDoubleElimination_FivePlayers_HollowLosersElided(t *testing.T) {
	bps := generateDouble(t, 5)
	winners := blueprintOf(t, bps, models.BracketTypeWinners)
	losers := blueprintOf(t, bps, models.BracketTypeLosers)

	assert.Equal(t, 3, winners.ByeCount)
	require.Len(t, losers.Matches, 3)

	rounds := []int{}
	for _, m := range losers.Matches {
		rounds = append(rounds, m.Round)
	}
	assert.Equal(t, []int{2, 3, 4}, rounds)

	index := byUID(allMatches(bps))

	// единственный реальный матч первого круга шлёт проигравшего сразу
	// в major второго круга нижней сетки
	assert.Equal(t, "LR2M1", index["WR1M2"].LoserToUID)
	// ребро по вычищенному LR2M2 замкнулось на следующий круг
	assert.Equal(t, "LR3M1", index["WR2M1"].LoserToUID)
	assert.Equal(t, "LR2M1", index["WR2M2"].LoserToUID)

	// bye-матчи продвинули сидов: полуфинал 2 против 3 уже заполнен
	semiSeeds := []int{seedOf(t, index["WR2M2"].Participant1), seedOf(t, index["WR2M2"].Participant2)}
	assert.ElementsMatch(t, []int{2, 3}, semiSeeds)
	assert.Equal(t, 1, seedOf(t, index["WR2M1"].Participant1))

	assert.Equal(t, 8, playableCount(bps))
}

func TestDoubleElimination_ThreePlayers(t *testing.T) {
	bps := generateDouble(t, 3)
	require.Len(t, bps, 3)

	losers := blueprintOf(t, bps, models.BracketTypeLosers)
	require.Len(t, losers.Matches, 1)
	assert.Equal(t, 2, losers.Matches[0].Round)
	assert.Equal(t, 1, losers.Matches[0].MatchNumber)

	index := byUID(allMatches(bps))
	assert.Equal(t, "LR2M1", index["WR1M2"].LoserToUID)
	assert.Equal(t, "LR2M1", index["WR2M1"].LoserToUID)
	assert.Equal(t, "GFR1M1", index["LR2M1"].WinnerToUID)

	assert.Equal(t, 4, playableCount(bps))
}

func TestDoubleElimination_TwoPlayers_NoLosersBracket(t *testing.T) {
	bps := generateDouble(t, 2)
	require.Len(t, bps, 2)

	winners := blueprintOf(t, bps, models.BracketTypeWinners)
	require.Len(t, winners.Matches, 1)
	final := winners.Matches[0]
	assert.Equal(t, "GFR1M1", final.WinnerToUID)
	assert.Equal(t, "GFR1M1", final.LoserToUID)

	assert.Equal(t, 2, playableCount(bps))
}

func TestDoubleElimination_EveryLosersMatchHasTwoFeeds(t *testing.T) {
	for _, n := range []int{4, 5, 6, 7, 8, 9, 12, 16} {
		bps := generateDouble(t, n)

		incoming := map[string]int{}
		for _, m := range allMatches(bps) {
			if m.WinnerToUID != "" {
				incoming[m.WinnerToUID]++
			}
			if m.LoserToUID != "" {
				incoming[m.LoserToUID]++
			}
		}

		losers := blueprintOf(t, bps, models.BracketTypeLosers)
		for _, m := range losers.Matches {
			assert.Equal(t, 2, incoming[m.UID], "n=%d, losers match %s", n, m.UID)
		}
		finals := blueprintOf(t, bps, models.BracketTypeGrandFinals)
		assert.Equal(t, 2, incoming[finals.Matches[0].UID], "n=%d, grand final", n)

		assert.Equal(t, 2*n-2, playableCount(bps), "n=%d", n)
	}
}
