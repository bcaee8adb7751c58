package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/matchforge/tournament-engine/models"
)

func TestSortStandingsTiebreakerChain(t *testing.T) {
	s := func(id, points, wins, buchholz, gamesWon, gamesLost, seed int) *models.Standing {
		return &models.Standing{
			ParticipantID: id,
			Points:        points,
			Wins:          wins,
			BuchholzScore: buchholz,
			GamesWon:      gamesWon,
			GamesLost:     gamesLost,
			Seed:          seed,
		}
	}

	t.Run("points dominate", func(t *testing.T) {
		table := []*models.Standing{
			s(1, 3, 1, 0, 0, 0, 1),
			s(2, 9, 3, 0, 0, 0, 2),
			s(3, 6, 2, 0, 0, 0, 3),
		}
		SortStandings(table, nil)
		assert.Equal(t, []int{2, 3, 1}, participantOrder(table))
	})

	t.Run("buchholz breaks equal points and wins", func(t *testing.T) {
		table := []*models.Standing{
			s(1, 6, 2, 10, 0, 0, 1),
			s(2, 6, 2, 14, 0, 0, 2),
		}
		SortStandings(table, nil)
		assert.Equal(t, []int{2, 1}, participantOrder(table))
	})

	t.Run("game difference then games won", func(t *testing.T) {
		table := []*models.Standing{
			s(1, 6, 2, 10, 4, 2, 1), // diff +2
			s(2, 6, 2, 10, 6, 1, 2), // diff +5
			s(3, 6, 2, 10, 7, 2, 3), // diff +5, but more games won
		}
		SortStandings(table, nil)
		assert.Equal(t, []int{3, 2, 1}, participantOrder(table))
	})

	t.Run("head to head decides full ties", func(t *testing.T) {
		table := []*models.Standing{
			s(1, 6, 2, 10, 4, 2, 1),
			s(2, 6, 2, 10, 4, 2, 2),
		}
		// участник 2 выиграл личную встречу у 1
		h2h := map[matchKey]int{{a: 1, b: 2}: -1}
		SortStandings(table, h2h)
		assert.Equal(t, []int{2, 1}, participantOrder(table))
	})

	t.Run("seed is the last resort", func(t *testing.T) {
		table := []*models.Standing{
			s(1, 6, 2, 10, 4, 2, 8),
			s(2, 6, 2, 10, 4, 2, 3),
		}
		SortStandings(table, nil)
		assert.Equal(t, []int{2, 1}, participantOrder(table))
	})
}

func TestH2HAdvantageIsAntisymmetric(t *testing.T) {
	h2h := map[matchKey]int{{a: 1, b: 2}: 2}
	assert.Equal(t, 2, h2hAdvantage(h2h, 1, 2))
	assert.Equal(t, -2, h2hAdvantage(h2h, 2, 1))
	assert.Equal(t, 0, h2hAdvantage(h2h, 1, 3))
}

func participantOrder(standings []*models.Standing) []int {
	out := make([]int, len(standings))
	for i, s := range standings {
		out[i] = s.ParticipantID
	}
	return out
}
