package brackets

import (
	"context"

	"github.com/matchforge/tournament-engine/models"
)

// SingleEliminationGenerator строит одну сетку на вылет.
type SingleEliminationGenerator struct{}

func NewSingleEliminationGenerator() *SingleEliminationGenerator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

func (g *SingleEliminationGenerator) GenerateBrackets(_ context.Context, params GenerateParams) ([]*Blueprint, error) {
	ordered := orderSlots(params.Slots)
	if len(ordered) < 2 {
		return nil, ErrNotEnoughParticipants
	}

	size := NextPowerOfTwo(len(ordered))
	matches := buildEliminationRounds("", size, placeSlots(ordered, size))
	resolveFirstRoundByes(matches)

	return []*Blueprint{{
		Type:             models.BracketTypeWinners,
		TotalRounds:      log2(size),
		ParticipantCount: len(ordered),
		ByeCount:         size - len(ordered),
		Matches:          matches,
	}}, nil
}

// buildEliminationRounds строит полную пирамиду: первый круг поверх
// разложенных слотов, дальше пустые матчи, победитель матча i круга r
// идёт в матч i/2 круга r+1.
func buildEliminationRounds(prefix string, size int, placed []*SeedSlot) []*BracketMatch {
	rounds := log2(size)
	matches := make([]*BracketMatch, 0, size-1)

	byRound := make([][]*BracketMatch, rounds+1)
	for r := 1; r <= rounds; r++ {
		count := size >> uint(r)
		byRound[r] = make([]*BracketMatch, count)
		for i := 0; i < count; i++ {
			m := &BracketMatch{
				UID:         matchUID(prefix, r, i+1),
				Round:       r,
				MatchNumber: i + 1,
				Type:        models.MatchTypeWinners,
			}
			if r == 1 {
				m.Participant1 = placed[2*i]
				m.Participant2 = placed[2*i+1]
				m.IsBye = m.Participant1 == nil || m.Participant2 == nil
			}
			byRound[r][i] = m
			matches = append(matches, m)
		}
	}

	for r := 1; r < rounds; r++ {
		for i, m := range byRound[r] {
			m.WinnerToUID = byRound[r+1][i/2].UID
		}
	}
	return matches
}

// resolveFirstRoundByes сразу продвигает участников bye-матчей первого
// круга в следующий матч, чтобы сетка записывалась уже с известными
// парами второго круга.
func resolveFirstRoundByes(matches []*BracketMatch) {
	byUID := make(map[string]*BracketMatch, len(matches))
	for _, m := range matches {
		byUID[m.UID] = m
	}
	for _, m := range matches {
		if !m.IsBye || m.Round != 1 || m.WinnerToUID == "" {
			continue
		}
		if next, ok := byUID[m.WinnerToUID]; ok {
			fillFirstEmptySlot(next, m.ByeWinner())
		}
	}
}

func fillFirstEmptySlot(m *BracketMatch, slot *SeedSlot) {
	if m.Participant1 == nil {
		m.Participant1 = slot
		return
	}
	if m.Participant2 == nil {
		m.Participant2 = slot
	}
}
