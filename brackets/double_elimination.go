package brackets

import (
	"context"

	"github.com/matchforge/tournament-engine/models"
)

// DoubleEliminationGenerator строит три сетки: верхнюю, нижнюю и
// гранд-финал. Нижняя содержит 2*(R-1) кругов при R кругах верхней:
// нечётные круги сводят выживших попарно, чётные принимают проигравшего
// из круга k верхней сетки в круг 2*(k-1) нижней. Второй матч
// гранд-финала (reset) при поражении чемпиона верхней сетки создаётся
// уже по ходу турнира, не на генерации.
type DoubleEliminationGenerator struct{}

func NewDoubleEliminationGenerator() *DoubleEliminationGenerator {
	return &DoubleEliminationGenerator{}
}

func (g *DoubleEliminationGenerator) GetName() string {
	return "DoubleElimination"
}

func (g *DoubleEliminationGenerator) GenerateBrackets(_ context.Context, params GenerateParams) ([]*Blueprint, error) {
	ordered := orderSlots(params.Slots)
	if len(ordered) < 2 {
		return nil, ErrNotEnoughParticipants
	}

	size := NextPowerOfTwo(len(ordered))
	winnersRounds := log2(size)

	winners := buildEliminationRounds("W", size, placeSlots(ordered, size))
	resolveFirstRoundByes(winners)

	grandFinal := &BracketMatch{
		UID:         matchUID("GF", 1, 1),
		Round:       1,
		MatchNumber: 1,
		Type:        models.MatchTypeGrandFinals,
	}
	winnersFinal := winners[len(winners)-1]
	winnersFinal.WinnerToUID = grandFinal.UID

	var losers []*BracketMatch
	if winnersRounds == 1 {
		// на двоих нижней сетки нет, проигравший финала сразу в гранд-финал
		winnersFinal.LoserToUID = grandFinal.UID
	} else {
		losers = buildLosersBracket(size, winners, grandFinal)
	}

	blueprints := []*Blueprint{{
		Type:             models.BracketTypeWinners,
		TotalRounds:      winnersRounds,
		ParticipantCount: len(ordered),
		ByeCount:         size - len(ordered),
		Matches:          winners,
	}}
	if len(losers) > 0 {
		blueprints = append(blueprints, &Blueprint{
			Type:             models.BracketTypeLosers,
			TotalRounds:      2 * (winnersRounds - 1),
			ParticipantCount: len(ordered) - 1,
			Matches:          losers,
		})
	}
	blueprints = append(blueprints, &Blueprint{
		Type:             models.BracketTypeGrandFinals,
		TotalRounds:      1,
		ParticipantCount: 2,
		Matches:          []*BracketMatch{grandFinal},
	})
	return blueprints, nil
}

// buildLosersBracket строит нижнюю сетку поверх уже связанной верхней.
// Круг r шириной size >> ((r+1)/2 + 1): за нечётным кругом следует major
// той же ширины, за major — minor вдвое уже.
func buildLosersBracket(size int, winners []*BracketMatch, grandFinal *BracketMatch) []*BracketMatch {
	losersRounds := 2 * (log2(size) - 1)

	byRound := make([][]*BracketMatch, losersRounds+1)
	for r := 1; r <= losersRounds; r++ {
		count := size >> uint((r+1)/2+1)
		byRound[r] = make([]*BracketMatch, count)
		for i := 0; i < count; i++ {
			byRound[r][i] = &BracketMatch{
				UID:         matchUID("L", r, i+1),
				Round:       r,
				MatchNumber: i + 1,
				Type:        models.MatchTypeLosers,
			}
		}
	}

	for r := 1; r < losersRounds; r++ {
		next := byRound[r+1]
		for i, m := range byRound[r] {
			if r%2 == 1 {
				m.WinnerToUID = next[i].UID
			} else {
				m.WinnerToUID = next[i/2].UID
			}
		}
	}
	byRound[losersRounds][0].WinnerToUID = grandFinal.UID

	wireLoserDrops(winners, byRound)
	return elideHollowLosers(winners, byRound)
}

// wireLoserDrops направляет проигравших верхней сетки вниз: из круга 1
// попарно в круг 1 нижней, из круга k >= 2 в major-круг 2*(k-1). Чётные
// круги верхней сетки заходят в зеркальном порядке, чтобы недавние
// соперники не встречались сразу снова.
func wireLoserDrops(winners []*BracketMatch, byRound [][]*BracketMatch) {
	for _, w := range winners {
		if w.IsBye {
			continue
		}
		if w.Round == 1 {
			w.LoserToUID = byRound[1][(w.MatchNumber-1)/2].UID
			continue
		}
		target := byRound[2*(w.Round-1)]
		i := w.MatchNumber - 1
		if w.Round%2 == 0 {
			i = len(target) - 1 - i
		}
		w.LoserToUID = target[i].UID
	}
}

// elideHollowLosers убирает матчи нижней сетки, в которые из-за bye
// никто не придёт или придёт лишь один участник, и замыкает рёбра
// источников напрямую на следующий матч.
func elideHollowLosers(winners []*BracketMatch, byRound [][]*BracketMatch) []*BracketMatch {
	incoming := make(map[string][]*string)
	for _, w := range winners {
		if w.LoserToUID != "" {
			incoming[w.LoserToUID] = append(incoming[w.LoserToUID], &w.LoserToUID)
		}
	}

	var kept []*BracketMatch
	for r := 1; r < len(byRound); r++ {
		number := 0
		for _, m := range byRound[r] {
			feeds := incoming[m.UID]
			switch len(feeds) {
			case 0:
			case 1:
				*feeds[0] = m.WinnerToUID
				incoming[m.WinnerToUID] = append(incoming[m.WinnerToUID], feeds[0])
			default:
				number++
				m.MatchNumber = number
				kept = append(kept, m)
				incoming[m.WinnerToUID] = append(incoming[m.WinnerToUID], &m.WinnerToUID)
			}
		}
	}
	return kept
}
