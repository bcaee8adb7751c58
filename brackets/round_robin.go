package brackets

import (
	"context"

	"github.com/matchforge/tournament-engine/models"
)

// RoundRobinGenerator строит круговую сетку методом круга: позиция 0
// закреплена, остальные сдвигаются по часовой стрелке между кругами.
// При нечётном числе участников в круг добавляется пустышка, пара с ней
// означает круг отдыха и матчем не становится.
type RoundRobinGenerator struct{}

func NewRoundRobinGenerator() *RoundRobinGenerator {
	return &RoundRobinGenerator{}
}

func (g *RoundRobinGenerator) GetName() string {
	return "RoundRobin"
}

func (g *RoundRobinGenerator) GenerateBrackets(_ context.Context, params GenerateParams) ([]*Blueprint, error) {
	ordered := orderSlots(params.Slots)
	n := len(ordered)
	if n < 2 {
		return nil, ErrNotEnoughParticipants
	}

	ring := make([]*SeedSlot, 0, n+1)
	for i := range ordered {
		slot := ordered[i]
		slot.Seed = i + 1
		ring = append(ring, &slot)
	}
	if n%2 == 1 {
		ring = append(ring, nil)
	}

	rounds := len(ring) - 1
	matches := make([]*BracketMatch, 0, n*(n-1)/2)
	for r := 1; r <= rounds; r++ {
		number := 0
		for i := 0; i < len(ring)/2; i++ {
			a, b := ring[i], ring[len(ring)-1-i]
			if a == nil || b == nil {
				continue
			}
			number++
			matches = append(matches, &BracketMatch{
				UID:          matchUID("", r, number),
				Round:        r,
				MatchNumber:  number,
				Type:         models.MatchTypeRoundRobin,
				Participant1: a,
				Participant2: b,
			})
		}
		rotateClockwise(ring)
	}

	return []*Blueprint{{
		Type:             models.BracketTypeRoundRobin,
		TotalRounds:      rounds,
		ParticipantCount: n,
		Matches:          matches,
	}}, nil
}

// rotateClockwise сдвигает позиции 1..n-1 на одну, позиция 0 закреплена.
func rotateClockwise(ring []*SeedSlot) {
	last := ring[len(ring)-1]
	copy(ring[2:], ring[1:len(ring)-1])
	ring[1] = last
}
