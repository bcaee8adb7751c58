package services

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchforge/tournament-engine/models"
	"github.com/matchforge/tournament-engine/repositories"
)

type fakeRegistrationRepo struct {
	byID map[int]*models.Registration
}

func newFakeRegistrationRepo(regs ...*models.Registration) *fakeRegistrationRepo {
	f := &fakeRegistrationRepo{byID: make(map[int]*models.Registration, len(regs))}
	for _, reg := range regs {
		f.byID[reg.ID] = reg
	}
	return f
}

func (f *fakeRegistrationRepo) Create(ctx context.Context, exec repositories.SQLExecutor, reg *models.Registration) error {
	return errors.New("not implemented")
}

func (f *fakeRegistrationRepo) GetByID(ctx context.Context, id int) (*models.Registration, error) {
	if reg, ok := f.byID[id]; ok {
		return reg, nil
	}
	return nil, repositories.ErrRegistrationNotFound
}

func (f *fakeRegistrationRepo) GetForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Registration, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeRegistrationRepo) GetByUserAndTournament(ctx context.Context, exec repositories.SQLExecutor, userID, tournamentID int) (*models.Registration, error) {
	return nil, repositories.ErrRegistrationNotFound
}

func (f *fakeRegistrationRepo) GetByTeamAndTournament(ctx context.Context, exec repositories.SQLExecutor, teamID, tournamentID int) (*models.Registration, error) {
	return nil, repositories.ErrRegistrationNotFound
}

func (f *fakeRegistrationRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, statusFilter *models.RegistrationStatus) ([]*models.Registration, error) {
	var out []*models.Registration
	for _, reg := range f.byID {
		if reg.TournamentID != tournamentID {
			continue
		}
		if statusFilter != nil && reg.Status != *statusFilter {
			continue
		}
		out = append(out, reg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRegistrationRepo) ListWaitlisted(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]*models.Registration, error) {
	waitlisted := models.RegistrationStatusWaitlisted
	out, err := f.ListByTournament(ctx, exec, tournamentID, &waitlisted)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].WaitlistPosition, out[j].WaitlistPosition
		switch {
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return *pi < *pj
		}
	})
	return out, nil
}

func (f *fakeRegistrationRepo) CountByStatuses(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, statuses ...models.RegistrationStatus) (int, error) {
	count := 0
	for _, reg := range f.byID {
		if reg.TournamentID != tournamentID {
			continue
		}
		for _, status := range statuses {
			if reg.Status == status {
				count++
				break
			}
		}
	}
	return count, nil
}

func (f *fakeRegistrationRepo) Update(ctx context.Context, exec repositories.SQLExecutor, reg *models.Registration) error {
	if _, ok := f.byID[reg.ID]; !ok {
		return repositories.ErrRegistrationNotFound
	}
	f.byID[reg.ID] = reg
	return nil
}

func (f *fakeRegistrationRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.RegistrationStatus) error {
	reg, ok := f.byID[id]
	if !ok {
		return repositories.ErrRegistrationNotFound
	}
	reg.Status = status
	return nil
}

func (f *fakeRegistrationRepo) UpdateWaitlistPosition(ctx context.Context, exec repositories.SQLExecutor, id int, position *int) error {
	reg, ok := f.byID[id]
	if !ok {
		return repositories.ErrRegistrationNotFound
	}
	reg.WaitlistPosition = position
	return nil
}

func TestSettleAfterCancelPromotesWaitlistHead(t *testing.T) {
	pos1, pos2 := 1, 2
	canceled := &models.Registration{ID: 1, TournamentID: 5, Status: models.RegistrationStatusCanceled}
	head := &models.Registration{ID: 2, TournamentID: 5, Status: models.RegistrationStatusWaitlisted, WaitlistPosition: &pos1}
	second := &models.Registration{ID: 3, TournamentID: 5, Status: models.RegistrationStatusWaitlisted, WaitlistPosition: &pos2}
	regs := newFakeRegistrationRepo(canceled, head, second)
	standings := newFakeStandingRepo()
	require.NoError(t, standings.Create(context.Background(), nil, &models.Standing{TournamentID: 5, ParticipantID: canceled.ID}))

	svc := &RegistrationService{registrations: regs, standings: standings, logger: testLogger()}
	require.NoError(t, svc.settleAfterCancel(context.Background(), nil, canceled, true, false))

	assert.Equal(t, models.RegistrationStatusConfirmed, head.Status, "голова листа ожидания занимает слот")
	assert.Nil(t, head.WaitlistPosition)

	_, stale := standings.byParticipant[canceled.ID]
	assert.False(t, stale, "строка standings отменённого удалена")
	promoted, ok := standings.byParticipant[head.ID]
	require.True(t, ok, "у повышенного появляется строка standings")
	assert.Equal(t, 5, promoted.TournamentID)

	require.NotNil(t, second.WaitlistPosition)
	assert.Equal(t, 1, *second.WaitlistPosition, "оставшиеся позиции уплотняются")
}

func TestSettleAfterCancelCompactsWaitlistWithoutPromotion(t *testing.T) {
	p1, p3, p4 := 1, 3, 4
	canceled := &models.Registration{ID: 7, TournamentID: 5, Status: models.RegistrationStatusCanceled}
	first := &models.Registration{ID: 2, TournamentID: 5, Status: models.RegistrationStatusWaitlisted, WaitlistPosition: &p1}
	second := &models.Registration{ID: 3, TournamentID: 5, Status: models.RegistrationStatusWaitlisted, WaitlistPosition: &p3}
	third := &models.Registration{ID: 4, TournamentID: 5, Status: models.RegistrationStatusWaitlisted, WaitlistPosition: &p4}
	regs := newFakeRegistrationRepo(canceled, first, second, third)

	svc := &RegistrationService{registrations: regs, standings: newFakeStandingRepo(), logger: testLogger()}
	require.NoError(t, svc.settleAfterCancel(context.Background(), nil, canceled, false, true))

	assert.Equal(t, models.RegistrationStatusWaitlisted, first.Status, "без освободившегося слота повышений нет")
	require.NotNil(t, first.WaitlistPosition)
	assert.Equal(t, 1, *first.WaitlistPosition)
	require.NotNil(t, second.WaitlistPosition)
	assert.Equal(t, 2, *second.WaitlistPosition)
	require.NotNil(t, third.WaitlistPosition)
	assert.Equal(t, 3, *third.WaitlistPosition)
}

func TestAdmissionProblems(t *testing.T) {
	svc := &RegistrationService{}
	now := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)
	windowStart := now.Add(-time.Hour)
	windowEnd := now.Add(time.Hour)

	open := func() *models.Tournament {
		return &models.Tournament{
			ID:                1,
			Status:            models.TournamentStatusRegistrationOpen,
			RegistrationStart: &windowStart,
			RegistrationEnd:   &windowEnd,
		}
	}
	valid := func() RegisterIndividualRequest {
		return RegisterIndividualRequest{TournamentID: 1, UserID: 7, DisplayName: "Ace"}
	}

	t.Run("clean request has no problems", func(t *testing.T) {
		assert.Empty(t, svc.admissionProblems(open(), valid(), now))
	})

	t.Run("closed status and expired window gather together", func(t *testing.T) {
		tr := open()
		tr.Status = models.TournamentStatusDraft
		past := now.Add(-2 * time.Hour)
		tr.RegistrationEnd = &past

		problems := svc.admissionProblems(tr, valid(), now)
		assert.Len(t, problems, 2, "all violations are reported, not just the first")
	})

	t.Run("mmr gates", func(t *testing.T) {
		tr := open()
		minMMR, maxMMR := 1000, 3000
		tr.MinMMR = &minMMR
		tr.MaxMMR = &maxMMR

		// без MMR обе границы считаются нарушенными
		assert.Len(t, svc.admissionProblems(tr, valid(), now), 2)

		req := valid()
		low := 500
		req.MMR = &low
		assert.Len(t, svc.admissionProblems(tr, req, now), 1)

		mid := 2000
		req.MMR = &mid
		assert.Empty(t, svc.admissionProblems(tr, req, now))
	})

	t.Run("verification and entry fee", func(t *testing.T) {
		tr := open()
		tr.RequireVerified = true
		tr.EntryFee = decimal.NewFromInt(25)

		problems := svc.admissionProblems(tr, valid(), now)
		assert.Len(t, problems, 2)

		req := valid()
		req.IdentityVerified = true
		req.EntryFeePaid = true
		assert.Empty(t, svc.admissionProblems(tr, req, now))
	})

	t.Run("region allowlist is case insensitive", func(t *testing.T) {
		tr := open()
		tr.AllowedRegions = []string{"EU", "NA"}

		assert.Len(t, svc.admissionProblems(tr, valid(), now), 1, "missing region is rejected")

		req := valid()
		region := "eu"
		req.Region = &region
		assert.Empty(t, svc.admissionProblems(tr, req, now))

		other := "SEA"
		req.Region = &other
		assert.Len(t, svc.admissionProblems(tr, req, now), 1)
	})

	t.Run("blank display name", func(t *testing.T) {
		req := valid()
		req.DisplayName = "   "
		assert.Len(t, svc.admissionProblems(open(), req, now), 1)
	})
}
