package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchforge/tournament-engine/cache"
	"github.com/matchforge/tournament-engine/models"
)

func newReseedService(regs *fakeRegistrationRepo, standings *fakeStandingRepo) *BracketService {
	standingSvc := NewStandingService(nil, standings, nil, nil, cache.NewNoop(), nil, time.Minute, time.Hour, testLogger())
	return &BracketService{
		registrations: regs,
		standings:     standingSvc,
		logger:        testLogger(),
	}
}

func seededReg(id, seed int, name string) *models.Registration {
	return &models.Registration{
		ID:           id,
		TournamentID: 1,
		Status:       models.RegistrationStatusConfirmed,
		DisplayName:  name,
		Seed:         &seed,
	}
}

func TestReseedSlots(t *testing.T) {
	tournament := &models.Tournament{ID: 1}
	newRepos := func() (*fakeRegistrationRepo, *fakeStandingRepo) {
		regs := newFakeRegistrationRepo(
			seededReg(1, 1, "Alpha"),
			seededReg(2, 2, "Bravo"),
			seededReg(3, 3, "Charlie"),
			&models.Registration{ID: 4, TournamentID: 1, Status: models.RegistrationStatusCanceled, DisplayName: "Dropout"},
		)
		standings := newFakeStandingRepo()
		require.NoError(t, standings.Create(context.Background(), nil, &models.Standing{TournamentID: 1, ParticipantID: 2, Rank: 1}))
		require.NoError(t, standings.Create(context.Background(), nil, &models.Standing{TournamentID: 1, ParticipantID: 1, Rank: 2}))
		return regs, standings
	}

	t.Run("standings order with unranked appended", func(t *testing.T) {
		svc := newReseedService(newRepos())
		slots, err := svc.reseedSlots(context.Background(), nil, tournament, ReseedSourceStandings, nil)
		require.NoError(t, err)
		require.Len(t, slots, 3)
		assert.Equal(t, 2, slots[0].ParticipantID, "лидер таблицы получает первый сид")
		assert.Equal(t, 1, slots[1].ParticipantID)
		assert.Equal(t, 3, slots[2].ParticipantID, "участник без строки в таблице идёт следом")
		for i, slot := range slots {
			assert.Equal(t, i+1, slot.Seed)
		}
	})

	t.Run("manual order is taken verbatim", func(t *testing.T) {
		svc := newReseedService(newRepos())
		slots, err := svc.reseedSlots(context.Background(), nil, tournament, ReseedSourceManual, []int{3, 1, 2})
		require.NoError(t, err)
		require.Len(t, slots, 3)
		assert.Equal(t, 3, slots[0].ParticipantID)
		assert.Equal(t, 1, slots[1].ParticipantID)
		assert.Equal(t, 2, slots[2].ParticipantID)
		assert.Equal(t, "Charlie", slots[0].DisplayName)
		assert.Equal(t, 1, slots[0].Seed)
	})

	t.Run("manual rejects inactive participant", func(t *testing.T) {
		svc := newReseedService(newRepos())
		_, err := svc.reseedSlots(context.Background(), nil, tournament, ReseedSourceManual, []int{4, 1, 2})
		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("manual rejects duplicates", func(t *testing.T) {
		svc := newReseedService(newRepos())
		_, err := svc.reseedSlots(context.Background(), nil, tournament, ReseedSourceManual, []int{1, 1, 2})
		assert.ErrorIs(t, err, ErrValidationFailed)
	})
}

func TestReseedValidatesSource(t *testing.T) {
	svc := &BracketService{logger: testLogger()}

	_, err := svc.Reseed(context.Background(), 1, ReseedRequest{Source: ReseedSourceManual})
	assert.ErrorIs(t, err, ErrValidationFailed, "manual без списка сидов")

	_, err = svc.Reseed(context.Background(), 1, ReseedRequest{Source: ReseedSourceStandings, Seeds: []int{1}})
	assert.ErrorIs(t, err, ErrValidationFailed, "список сидов допустим только с manual")

	_, err = svc.Reseed(context.Background(), 1, ReseedRequest{Source: "random"})
	assert.ErrorIs(t, err, ErrValidationFailed)
}
