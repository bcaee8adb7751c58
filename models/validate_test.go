package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTournamentStatusTransitions(t *testing.T) {
	legal := []struct {
		from, to TournamentStatus
	}{
		{TournamentStatusDraft, TournamentStatusRegistrationOpen},
		{TournamentStatusRegistrationOpen, TournamentStatusRegistrationClosed},
		{TournamentStatusRegistrationClosed, TournamentStatusCheckIn},
		{TournamentStatusCheckIn, TournamentStatusInProgress},
		{TournamentStatusInProgress, TournamentStatusCompleted},
		{TournamentStatusDraft, TournamentStatusCanceled},
		{TournamentStatusRegistrationOpen, TournamentStatusCanceled},
		{TournamentStatusRegistrationClosed, TournamentStatusCanceled},
		{TournamentStatusCheckIn, TournamentStatusCanceled},
		{TournamentStatusInProgress, TournamentStatusCanceled},
	}
	for _, tc := range legal {
		assert.True(t, tc.from.CanTransitionTo(tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	illegal := []struct {
		from, to TournamentStatus
	}{
		{TournamentStatusDraft, TournamentStatusInProgress},
		{TournamentStatusDraft, TournamentStatusCompleted},
		{TournamentStatusRegistrationOpen, TournamentStatusCheckIn},
		{TournamentStatusCompleted, TournamentStatusInProgress},
		{TournamentStatusCompleted, TournamentStatusCanceled},
		{TournamentStatusCanceled, TournamentStatusDraft},
		{TournamentStatusInProgress, TournamentStatusRegistrationOpen},
	}
	for _, tc := range illegal {
		assert.False(t, tc.from.CanTransitionTo(tc.to), "%s -> %s should be rejected", tc.from, tc.to)
	}

	assert.True(t, TournamentStatusCompleted.IsTerminal())
	assert.True(t, TournamentStatusCanceled.IsTerminal())
	assert.False(t, TournamentStatusInProgress.IsTerminal())
}

func TestMatchStatusMachine(t *testing.T) {
	assert.True(t, MatchStatusPending.CanTransitionTo(MatchStatusScheduled))
	assert.True(t, MatchStatusScheduled.CanTransitionTo(MatchStatusCheckIn))
	assert.True(t, MatchStatusCheckIn.CanTransitionTo(MatchStatusInProgress))
	assert.True(t, MatchStatusInProgress.CanTransitionTo(MatchStatusAwaitingConfirmation))
	assert.True(t, MatchStatusAwaitingConfirmation.CanTransitionTo(MatchStatusCompleted))
	assert.True(t, MatchStatusAwaitingConfirmation.CanTransitionTo(MatchStatusDisputed))
	assert.True(t, MatchStatusDisputed.CanTransitionTo(MatchStatusCompleted))
	assert.True(t, MatchStatusDisputed.CanTransitionTo(MatchStatusInProgress))
	assert.True(t, MatchStatusPostponed.CanTransitionTo(MatchStatusScheduled))

	// terminal states never move again
	for _, terminal := range []MatchStatus{MatchStatusCompleted, MatchStatusForfeit, MatchStatusCanceled} {
		assert.True(t, terminal.IsTerminal())
		for _, next := range []MatchStatus{MatchStatusPending, MatchStatusScheduled, MatchStatusInProgress, MatchStatusCompleted} {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}

	assert.True(t, MatchStatusScheduled.AcceptsResult())
	assert.True(t, MatchStatusCheckIn.AcceptsResult())
	assert.True(t, MatchStatusInProgress.AcceptsResult())
	assert.False(t, MatchStatusAwaitingConfirmation.AcceptsResult())
	assert.False(t, MatchStatusCompleted.AcceptsResult())
}

func TestValidateParticipantBounds(t *testing.T) {
	assert.NoError(t, ValidateParticipantBounds(2, 2))
	assert.NoError(t, ValidateParticipantBounds(2, 1024))
	assert.ErrorIs(t, ValidateParticipantBounds(1, 8), ErrParticipantBoundsInvalid)
	assert.ErrorIs(t, ValidateParticipantBounds(8, 4), ErrParticipantBoundsInvalid)
	assert.ErrorIs(t, ValidateParticipantBounds(2, 1025), ErrParticipantBoundsInvalid)
}

func TestValidateSchedule(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	at := func(h int) *time.Time {
		v := base.Add(time.Duration(h) * time.Hour)
		return &v
	}

	ok := &Tournament{
		RegistrationStart: at(0),
		RegistrationEnd:   at(24),
		CheckInStart:      at(25),
		CheckInEnd:        at(26),
		StartDate:         at(27),
		EndDate:           at(48),
	}
	require.NoError(t, ok.ValidateSchedule())

	// missing windows are skipped
	sparse := &Tournament{RegistrationStart: at(0), StartDate: at(10)}
	require.NoError(t, sparse.ValidateSchedule())

	bad := &Tournament{
		RegistrationStart: at(10),
		RegistrationEnd:   at(5),
	}
	assert.ErrorIs(t, bad.ValidateSchedule(), ErrScheduleNotMonotone)

	crossed := &Tournament{
		RegistrationEnd: at(30),
		CheckInStart:    at(20),
	}
	assert.ErrorIs(t, crossed.ValidateSchedule(), ErrScheduleNotMonotone)
}

func TestPrizeDistributionValidate(t *testing.T) {
	assert.NoError(t, PrizeDistribution{1: 50, 2: 30, 3: 20}.Validate())
	assert.NoError(t, PrizeDistribution{1: 100}.Validate())
	assert.NoError(t, PrizeDistribution{1: 60, 2: 30}.Validate()) // sum < 100 allowed

	assert.ErrorIs(t, PrizeDistribution{1: 0}.Validate(), ErrPrizeDistributionInvalid)
	assert.ErrorIs(t, PrizeDistribution{1: 120}.Validate(), ErrPrizeDistributionInvalid)
	assert.ErrorIs(t, PrizeDistribution{1: 60, 2: 50}.Validate(), ErrPrizeDistributionInvalid)
	assert.ErrorIs(t, PrizeDistribution{-1: 10}.Validate(), ErrPrizeDistributionInvalid)
}

func TestPrizeRetryAndTax(t *testing.T) {
	p := &Prize{ID: 7, Status: PrizeStatusFailed, RetryCount: 2}
	assert.True(t, p.RetryEligible())
	p.RetryCount = MaxPrizeRetries
	assert.False(t, p.RetryEligible())
	p.Status = PrizeStatusCanceled
	p.RetryCount = 0
	assert.False(t, p.RetryEligible())

	assert.Equal(t, "tournament-prize-7", p.TransferReference())

	p.Amount = decimal.NewFromInt(500)
	p.ApplyTax(10)
	assert.True(t, p.TaxWithheld.Equal(decimal.NewFromInt(50)), "tax = %s", p.TaxWithheld)
	assert.True(t, p.NetAmount.Equal(decimal.NewFromInt(450)), "net = %s", p.NetAmount)
}

func TestMatchSlotHelpers(t *testing.T) {
	p1, p2 := 11, 22
	m := &Match{Participant1ID: &p1, Participant2ID: &p2}
	assert.True(t, m.HasParticipant(11))
	assert.True(t, m.HasParticipant(22))
	assert.False(t, m.HasParticipant(33))
	require.NotNil(t, m.OpponentOf(11))
	assert.Equal(t, 22, *m.OpponentOf(11))
	assert.Nil(t, m.OpponentOf(33))
	assert.True(t, m.BothSlotsFilled())

	half := &Match{Participant1ID: &p1}
	assert.False(t, half.BothSlotsFilled())
	assert.Nil(t, half.OpponentOf(11))
}
