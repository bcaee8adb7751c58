package models

import (
	"errors"
	"fmt"
	"time"
)

// Чистые проверки инвариантов. Сервисы обязаны вызывать их на каждой
// мутирующей операции; других источников "валидности" в системе нет.

var (
	ErrParticipantBoundsInvalid = errors.New("participant bounds must satisfy 2 <= min <= max <= 1024")
	ErrScheduleNotMonotone      = errors.New("schedule windows must be monotone")
	ErrPrizeDistributionInvalid = errors.New("prize distribution invalid")
	ErrTeamSizeMismatch         = errors.New("team member count does not match tournament team size")
)

// MaxParticipantsLimit — верхняя граница размера турнира.
const MaxParticipantsLimit = 1024

// ValidateParticipantBounds enforces 2 <= min <= max <= 1024.
func ValidateParticipantBounds(min, max int) error {
	if min < 2 || max < min || max > MaxParticipantsLimit {
		return fmt.Errorf("%w: got min=%d max=%d", ErrParticipantBoundsInvalid, min, max)
	}
	return nil
}

// ValidateSchedule checks that the set schedule windows are ordered:
// registration_start <= registration_end <= check_in_start <= check_in_end
// <= start_date <= end_date. Отсутствующие окна пропускаются.
func (t *Tournament) ValidateSchedule() error {
	points := []struct {
		name string
		at   *time.Time
	}{
		{"registration_start", t.RegistrationStart},
		{"registration_end", t.RegistrationEnd},
		{"check_in_start", t.CheckInStart},
		{"check_in_end", t.CheckInEnd},
		{"start_date", t.StartDate},
		{"end_date", t.EndDate},
	}
	var prevName string
	var prev *time.Time
	for _, p := range points {
		if p.at == nil {
			continue
		}
		if prev != nil && p.at.Before(*prev) {
			return fmt.Errorf("%w: %s (%s) precedes %s (%s)",
				ErrScheduleNotMonotone, p.name, p.at.Format(time.RFC3339), prevName, prev.Format(time.RFC3339))
		}
		prev = p.at
		prevName = p.name
	}
	return nil
}

// Validate enforces 0 < percentage <= 100 per placement and sum <= 100.
func (d PrizeDistribution) Validate() error {
	var sum float64
	for placement, pct := range d {
		if placement < 0 {
			return fmt.Errorf("%w: negative placement %d", ErrPrizeDistributionInvalid, placement)
		}
		if pct <= 0 || pct > 100 {
			return fmt.Errorf("%w: placement %d has percentage %.2f outside (0, 100]", ErrPrizeDistributionInvalid, placement, pct)
		}
		sum += pct
	}
	if sum > 100 {
		return fmt.Errorf("%w: total percentage %.2f exceeds 100", ErrPrizeDistributionInvalid, sum)
	}
	return nil
}

// ValidateTeamSize checks the member roster against the tournament team size.
func ValidateTeamSize(teamSize, memberCount int) error {
	if memberCount != teamSize {
		return fmt.Errorf("%w: want %d members, got %d", ErrTeamSizeMismatch, teamSize, memberCount)
	}
	return nil
}
