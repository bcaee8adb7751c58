package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchforge/tournament-engine/models"
	"github.com/matchforge/tournament-engine/repositories"
)

// fakeMatchRepo хранит матчи в памяти; exec игнорируется, как и в остальных
// фейках — репозитории абстрагируют исполнителя сами.
type fakeMatchRepo struct {
	byID   map[int]*models.Match
	list   []*models.Match
	nextID int
}

func (f *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, m *models.Match) error {
	if f.byID == nil {
		f.byID = make(map[int]*models.Match)
	}
	f.nextID++
	m.ID = 1000 + f.nextID
	f.byID[m.ID] = m
	f.list = append(f.list, m)
	return nil
}

func (f *fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	if m, ok := f.byID[id]; ok {
		return m, nil
	}
	return nil, repositories.ErrMatchNotFound
}

func (f *fakeMatchRepo) GetForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Match, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeMatchRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, filter repositories.ListMatchesFilter) ([]*models.Match, error) {
	var out []*models.Match
	for _, m := range f.list {
		if m.TournamentID != tournamentID {
			continue
		}
		if filter.Status != nil && m.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && m.Type != *filter.Type {
			continue
		}
		if filter.BracketID != nil && m.BracketID != *filter.BracketID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMatchRepo) ListActiveByParticipant(ctx context.Context, exec repositories.SQLExecutor, tournamentID, participantID int) ([]*models.Match, error) {
	return nil, nil
}

func (f *fakeMatchRepo) Update(ctx context.Context, exec repositories.SQLExecutor, m *models.Match) error {
	if _, ok := f.byID[m.ID]; !ok {
		return repositories.ErrMatchNotFound
	}
	f.byID[m.ID] = m
	for i, existing := range f.list {
		if existing.ID == m.ID {
			f.list[i] = m
			break
		}
	}
	return nil
}

func (f *fakeMatchRepo) UpdateForwardLinks(ctx context.Context, exec repositories.SQLExecutor, matchID int, nextMatchID, loserNextMatchID *int) error {
	return errors.New("not implemented")
}

func (f *fakeMatchRepo) GetBracketProgress(ctx context.Context, exec repositories.SQLExecutor, bracketID int) (int, int, error) {
	total, finished := 0, 0
	for _, m := range f.list {
		if m.BracketID != bracketID {
			continue
		}
		total++
		if m.Status.IsTerminal() {
			finished++
		}
	}
	return total, finished, nil
}

func (f *fakeMatchRepo) DeleteByBracket(ctx context.Context, exec repositories.SQLExecutor, bracketID int) error {
	return errors.New("not implemented")
}

type fakeTournamentRepo struct {
	tournament *models.Tournament
}

func (f *fakeTournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	return errors.New("not implemented")
}

func (f *fakeTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	if f.tournament != nil && f.tournament.ID == id {
		return f.tournament, nil
	}
	return nil, repositories.ErrTournamentNotFound
}

func (f *fakeTournamentRepo) GetForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	return nil, nil
}

func (f *fakeTournamentRepo) Update(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) error {
	return errors.New("not implemented")
}

func (f *fakeTournamentRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	return errors.New("not implemented")
}

func (f *fakeTournamentRepo) Delete(ctx context.Context, id int) error {
	return errors.New("not implemented")
}

func (f *fakeTournamentRepo) ListDueForTransition(ctx context.Context, exec repositories.SQLExecutor, now time.Time) ([]*models.Tournament, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newReadOnlyMatchService(matches *fakeMatchRepo, tournaments *fakeTournamentRepo) *MatchService {
	return NewMatchService(nil, matches, nil, tournaments, nil, nil, testLogger())
}

func TestDetectManipulation(t *testing.T) {
	p1, p2 := 1, 2
	base := func(status models.MatchStatus) *models.Match {
		return &models.Match{
			ID:             10,
			TournamentID:   1,
			Status:         status,
			Participant1ID: &p1,
			Participant2ID: &p2,
		}
	}

	t.Run("zero score after play started", func(t *testing.T) {
		repo := &fakeMatchRepo{byID: map[int]*models.Match{10: base(models.MatchStatusCompleted)}}
		svc := newReadOnlyMatchService(repo, &fakeTournamentRepo{})

		report, err := svc.DetectManipulation(context.Background(), 10)
		require.NoError(t, err)
		assert.True(t, report.Suspicious)
		assert.Contains(t, report.Flags, "zero score after play started")
	})

	t.Run("bye matches are exempt", func(t *testing.T) {
		m := base(models.MatchStatusCompleted)
		m.IsBye = true
		repo := &fakeMatchRepo{byID: map[int]*models.Match{10: m}}
		svc := newReadOnlyMatchService(repo, &fakeTournamentRepo{})

		report, err := svc.DetectManipulation(context.Background(), 10)
		require.NoError(t, err)
		assert.False(t, report.Suspicious)
	})

	t.Run("score sum mismatch with games played", func(t *testing.T) {
		m := base(models.MatchStatusCompleted)
		m.ScoreP1 = 2
		m.ScoreP2 = 1
		m.GamesPlayed = 5
		repo := &fakeMatchRepo{byID: map[int]*models.Match{10: m}}
		svc := newReadOnlyMatchService(repo, &fakeTournamentRepo{})

		report, err := svc.DetectManipulation(context.Background(), 10)
		require.NoError(t, err)
		assert.True(t, report.Suspicious)
		require.Len(t, report.Flags, 1)
	})

	t.Run("clean match", func(t *testing.T) {
		m := base(models.MatchStatusCompleted)
		m.ScoreP1 = 2
		m.ScoreP2 = 1
		m.GamesPlayed = 3
		repo := &fakeMatchRepo{byID: map[int]*models.Match{10: m}}
		svc := newReadOnlyMatchService(repo, &fakeTournamentRepo{})

		report, err := svc.DetectManipulation(context.Background(), 10)
		require.NoError(t, err)
		assert.False(t, report.Suspicious)
		assert.Empty(t, report.Flags)
	})

	t.Run("unknown match", func(t *testing.T) {
		svc := newReadOnlyMatchService(&fakeMatchRepo{}, &fakeTournamentRepo{})
		_, err := svc.DetectManipulation(context.Background(), 404)
		assert.ErrorIs(t, err, ErrMatchNotFound)
	})
}

func TestUpcomingSortsByScheduleWithNilLast(t *testing.T) {
	at := func(h int) *time.Time {
		v := time.Date(2025, 7, 1, h, 0, 0, 0, time.UTC)
		return &v
	}
	tournament := &models.Tournament{ID: 1, Status: models.TournamentStatusInProgress}
	matches := []*models.Match{
		{ID: 1, TournamentID: 1, Status: models.MatchStatusScheduled, ScheduledAt: nil},
		{ID: 2, TournamentID: 1, Status: models.MatchStatusScheduled, ScheduledAt: at(15)},
		{ID: 3, TournamentID: 1, Status: models.MatchStatusScheduled, ScheduledAt: at(9)},
		{ID: 4, TournamentID: 1, Status: models.MatchStatusPending},
	}
	svc := newReadOnlyMatchService(&fakeMatchRepo{list: matches}, &fakeTournamentRepo{tournament: tournament})

	upcoming, err := svc.Upcoming(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, upcoming, 3)
	assert.Equal(t, 3, upcoming[0].ID)
	assert.Equal(t, 2, upcoming[1].ID)
	assert.Equal(t, 1, upcoming[2].ID, "matches without a schedule go last")
}

func TestUpcomingUnknownTournament(t *testing.T) {
	svc := newReadOnlyMatchService(&fakeMatchRepo{}, &fakeTournamentRepo{})
	_, err := svc.Upcoming(context.Background(), 42)
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestMapMatchRepoError(t *testing.T) {
	assert.ErrorIs(t, mapMatchRepoError(repositories.ErrMatchNotFound), ErrMatchNotFound)
	assert.ErrorIs(t, mapMatchRepoError(repositories.ErrMatchVersionConflict), ErrConcurrentModification)
	assert.ErrorIs(t, mapMatchRepoError(repositories.ErrMatchParticipantInvalid), ErrIntegrityViolation)
	assert.ErrorIs(t, mapMatchRepoError(repositories.ErrMatchLinkInvalid), ErrIntegrityViolation)

	opaque := errors.New("connection reset")
	mapped := mapMatchRepoError(opaque)
	assert.ErrorIs(t, mapped, opaque)
	assert.NotErrorIs(t, mapped, ErrMatchNotFound)
}
