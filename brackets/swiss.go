package brackets

import (
	"context"
	"errors"
	"math/bits"
	"sort"

	"github.com/matchforge/tournament-engine/models"
)

var ErrSwissRoundTooEarly = errors.New("swiss pairing applies from round 2, round 1 comes from generation")

// SwissGenerator раскладывает первый круг швейцарки: сид 1 против сида 2,
// 3 против 4 и так далее. Последующие круги паруются по текущей таблице
// через PairSwissRound.
type SwissGenerator struct{}

func NewSwissGenerator() *SwissGenerator {
	return &SwissGenerator{}
}

func (g *SwissGenerator) GetName() string {
	return "Swiss"
}

func (g *SwissGenerator) GenerateBrackets(_ context.Context, params GenerateParams) ([]*Blueprint, error) {
	ordered := orderSlots(params.Slots)
	n := len(ordered)
	if n < 2 {
		return nil, ErrNotEnoughParticipants
	}

	rounds := DefaultSwissRounds(n)
	if params.Tournament != nil && params.Tournament.SwissRounds != nil && *params.Tournament.SwissRounds > 0 {
		rounds = *params.Tournament.SwissRounds
	}

	matches := make([]*BracketMatch, 0, (n+1)/2)
	number := 0
	for i := 0; i+1 < n; i += 2 {
		p1, p2 := ordered[i], ordered[i+1]
		p1.Seed, p2.Seed = i+1, i+2
		number++
		matches = append(matches, &BracketMatch{
			UID:          matchUID("", 1, number),
			Round:        1,
			MatchNumber:  number,
			Type:         models.MatchTypeSwiss,
			Participant1: &p1,
			Participant2: &p2,
		})
	}
	if n%2 == 1 {
		// нечётному составу нижний по сиду получает bye первого круга
		last := ordered[n-1]
		last.Seed = n
		number++
		matches = append(matches, &BracketMatch{
			UID:          matchUID("", 1, number),
			Round:        1,
			MatchNumber:  number,
			Type:         models.MatchTypeSwiss,
			Participant1: &last,
			IsBye:        true,
		})
	}

	return []*Blueprint{{
		Type:             models.BracketTypeSwiss,
		TotalRounds:      rounds,
		ParticipantCount: n,
		ByeCount:         n % 2,
		Matches:          matches,
	}}, nil
}

// DefaultSwissRounds возвращает ceil(log2(n)): столько кругов достаточно,
// чтобы выделить единоличного лидера.
func DefaultSwissRounds(n int) int {
	if n <= 1 {
		return 1
	}
	return bits.Len(uint(n - 1))
}

// SwissCompetitor — строка таблицы на входе парования очередного круга.
type SwissCompetitor struct {
	Slot     SeedSlot
	Points   int
	Buchholz float64
	HadBye   bool
}

// PairSwissRound паруeт круг начиная со второго. Участники сортируются по
// очкам, затем по бухгольцу; первый свободный встречает ближайшего ниже,
// с кем ещё не играл, при отсутствии такого в группе пара ищется ниже
// по таблице. Когда повтора не избежать вовсе, пара создаётся с пометкой
// ForcedRematch. При нечётном составе bye уходит нижнему участнику, ещё
// не получавшему bye; больше одного bye за турнир не даётся.
func PairSwissRound(round int, competitors []SwissCompetitor, played map[int]map[int]bool) ([]*BracketMatch, error) {
	if round < 2 {
		return nil, ErrSwissRoundTooEarly
	}
	if len(competitors) < 2 {
		return nil, ErrNotEnoughParticipants
	}

	sorted := make([]SwissCompetitor, len(competitors))
	copy(sorted, competitors)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Points != sorted[j].Points {
			return sorted[i].Points > sorted[j].Points
		}
		if sorted[i].Buchholz != sorted[j].Buchholz {
			return sorted[i].Buchholz > sorted[j].Buchholz
		}
		return sorted[i].Slot.Seed < sorted[j].Slot.Seed
	})

	var byeSlot *SeedSlot
	if len(sorted)%2 == 1 {
		byeIdx := len(sorted) - 1
		for i := len(sorted) - 1; i >= 0; i-- {
			if !sorted[i].HadBye {
				byeIdx = i
				break
			}
		}
		slot := sorted[byeIdx].Slot
		byeSlot = &slot
		sorted = append(sorted[:byeIdx], sorted[byeIdx+1:]...)
	}

	matches := make([]*BracketMatch, 0, len(sorted)/2+1)
	number := 0
	used := make([]bool, len(sorted))
	for i := range sorted {
		if used[i] {
			continue
		}
		used[i] = true

		partner := -1
		for j := i + 1; j < len(sorted); j++ {
			if !used[j] && !hasPlayed(played, sorted[i].Slot.ParticipantID, sorted[j].Slot.ParticipantID) {
				partner = j
				break
			}
		}
		forced := false
		if partner < 0 {
			for j := i + 1; j < len(sorted); j++ {
				if !used[j] {
					partner = j
					forced = true
					break
				}
			}
		}
		if partner < 0 {
			break
		}
		used[partner] = true

		p1, p2 := sorted[i].Slot, sorted[partner].Slot
		number++
		matches = append(matches, &BracketMatch{
			UID:           matchUID("", round, number),
			Round:         round,
			MatchNumber:   number,
			Type:          models.MatchTypeSwiss,
			Participant1:  &p1,
			Participant2:  &p2,
			ForcedRematch: forced,
		})
	}

	if byeSlot != nil {
		number++
		matches = append(matches, &BracketMatch{
			UID:          matchUID("", round, number),
			Round:        round,
			MatchNumber:  number,
			Type:         models.MatchTypeSwiss,
			Participant1: byeSlot,
			IsBye:        true,
		})
	}
	return matches, nil
}

func hasPlayed(played map[int]map[int]bool, a, b int) bool {
	return played[a][b] || played[b][a]
}

// BuildPlayedSet собирает карту прошлых встреч из списка матчей турнира.
func BuildPlayedSet(matches []models.Match) map[int]map[int]bool {
	played := make(map[int]map[int]bool)
	for _, m := range matches {
		if m.Participant1ID == nil || m.Participant2ID == nil {
			continue
		}
		markPlayed(played, *m.Participant1ID, *m.Participant2ID)
		markPlayed(played, *m.Participant2ID, *m.Participant1ID)
	}
	return played
}

func markPlayed(played map[int]map[int]bool, a, b int) {
	if played[a] == nil {
		played[a] = make(map[int]bool)
	}
	played[a][b] = true
}
