package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/matchforge/tournament-engine/models"
	"github.com/matchforge/tournament-engine/repositories"
)

// RegisterIndividualRequest — заявка одиночного участника. MMR и прочие
// атрибуты приходят снаружи: движок их не вычисляет, только проверяет
// против требований турнира.
type RegisterIndividualRequest struct {
	TournamentID     int            `json:"tournament_id"`
	UserID           int            `json:"user_id"`
	DisplayName      string         `json:"display_name"`
	MMR              *int           `json:"mmr,omitempty"`
	IdentityVerified bool           `json:"identity_verified"`
	Region           *string        `json:"region,omitempty"`
	EntryFeePaid     bool           `json:"entry_fee_paid"`
	Metadata         models.RawJSON `json:"metadata,omitempty"`
}

type RegisterTeamRequest struct {
	RegisterIndividualRequest
	TeamID        int     `json:"team_id"`
	TeamName      string  `json:"team_name"`
	TeamMemberIDs []int64 `json:"team_member_ids"`
}

type SeedAssignment struct {
	RegistrationID int `json:"registration_id"`
	Seed           int `json:"seed"`
}

type RegistrationService struct {
	db            *sql.DB
	tournaments   repositories.TournamentRepository
	registrations repositories.RegistrationRepository
	standings     repositories.StandingRepository
	logger        *slog.Logger
}

func NewRegistrationService(
	db *sql.DB,
	tournaments repositories.TournamentRepository,
	registrations repositories.RegistrationRepository,
	standings repositories.StandingRepository,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		db:            db,
		tournaments:   tournaments,
		registrations: registrations,
		standings:     standings,
		logger:        logger,
	}
}

// RegisterIndividual допускает участника либо ставит его в лист ожидания.
// Все провалившиеся требования собираются в одну ошибку, а не первую
// попавшуюся.
func (s *RegistrationService) RegisterIndividual(ctx context.Context, req RegisterIndividualRequest) (*models.Registration, error) {
	var created *models.Registration
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := s.tournaments.GetForUpdate(ctx, tx, req.TournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if problems := s.admissionProblems(t, req, time.Now()); len(problems) > 0 {
			return fmt.Errorf("%w: %s", ErrEntryRequirementsNotMet, strings.Join(problems, "; "))
		}

		reg := &models.Registration{
			TournamentID:     req.TournamentID,
			UserID:           req.UserID,
			DisplayName:      req.DisplayName,
			MMR:              req.MMR,
			IdentityVerified: req.IdentityVerified,
			Region:           req.Region,
			EntryFeePaid:     req.EntryFeePaid,
			Metadata:         req.Metadata,
		}
		if err := s.admit(ctx, tx, t, reg); err != nil {
			return err
		}
		created = reg
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("registration created", "tournament_id", req.TournamentID, "registration_id", created.ID, "status", created.Status)
	return created, nil
}

// RegisterTeam допускает команду: размер состава обязан совпадать с
// team_size турнира, ни команда, ни один из участников состава не должны
// быть уже зарегистрированы.
func (s *RegistrationService) RegisterTeam(ctx context.Context, req RegisterTeamRequest) (*models.Registration, error) {
	var created *models.Registration
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := s.tournaments.GetForUpdate(ctx, tx, req.TournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}

		problems := s.admissionProblems(t, req.RegisterIndividualRequest, time.Now())
		if t.IsSolo() {
			problems = append(problems, "tournament is solo, team registration not accepted")
		} else if err := models.ValidateTeamSize(t.TeamSize, len(req.TeamMemberIDs)); err != nil {
			problems = append(problems, err.Error())
		}
		if len(problems) > 0 {
			return fmt.Errorf("%w: %s", ErrEntryRequirementsNotMet, strings.Join(problems, "; "))
		}

		if _, err := s.registrations.GetByTeamAndTournament(ctx, tx, req.TeamID, req.TournamentID); err == nil {
			return ErrRegistrationConflict
		} else if !errors.Is(err, repositories.ErrRegistrationNotFound) {
			return mapRegistrationRepoError(err)
		}
		for _, memberID := range req.TeamMemberIDs {
			if _, err := s.registrations.GetByUserAndTournament(ctx, tx, int(memberID), req.TournamentID); err == nil {
				return fmt.Errorf("%w: member %d already registered", ErrRegistrationConflict, memberID)
			} else if !errors.Is(err, repositories.ErrRegistrationNotFound) {
				return mapRegistrationRepoError(err)
			}
		}

		reg := &models.Registration{
			TournamentID:     req.TournamentID,
			UserID:           req.UserID,
			DisplayName:      req.DisplayName,
			TeamID:           &req.TeamID,
			TeamName:         &req.TeamName,
			TeamMemberIDs:    req.TeamMemberIDs,
			MMR:              req.MMR,
			IdentityVerified: req.IdentityVerified,
			Region:           req.Region,
			EntryFeePaid:     req.EntryFeePaid,
			Metadata:         req.Metadata,
		}
		if err := s.admit(ctx, tx, t, reg); err != nil {
			return err
		}
		created = reg
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("team registration created", "tournament_id", req.TournamentID, "registration_id", created.ID, "team_id", req.TeamID, "status", created.Status)
	return created, nil
}

func (s *RegistrationService) admissionProblems(t *models.Tournament, req RegisterIndividualRequest, now time.Time) []string {
	var problems []string
	if t.Status != models.TournamentStatusRegistrationOpen {
		problems = append(problems, fmt.Sprintf("%s (status %s)", ErrRegistrationNotOpen.Error(), t.Status))
	}
	if !t.RegistrationWindowOpen(now) {
		problems = append(problems, ErrRegistrationWindowClosed.Error())
	}
	if t.MinMMR != nil && (req.MMR == nil || *req.MMR < *t.MinMMR) {
		problems = append(problems, fmt.Sprintf("mmr below minimum %d", *t.MinMMR))
	}
	if t.MaxMMR != nil && (req.MMR == nil || *req.MMR > *t.MaxMMR) {
		problems = append(problems, fmt.Sprintf("mmr above maximum %d", *t.MaxMMR))
	}
	if t.RequireVerified && !req.IdentityVerified {
		problems = append(problems, "identity verification required")
	}
	if len(t.AllowedRegions) > 0 {
		allowed := false
		if req.Region != nil {
			for _, region := range t.AllowedRegions {
				if strings.EqualFold(region, *req.Region) {
					allowed = true
					break
				}
			}
		}
		if !allowed {
			problems = append(problems, fmt.Sprintf("region %q not in allowed regions", derefString(req.Region)))
		}
	}
	if t.EntryFee.IsPositive() && !req.EntryFeePaid {
		problems = append(problems, "entry fee not paid")
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		problems = append(problems, "display name is required")
	}
	return problems
}

// admit решает confirmed vs waitlisted по свободной ёмкости и создаёт
// строку standings для подтверждённых.
func (s *RegistrationService) admit(ctx context.Context, tx *sql.Tx, t *models.Tournament, reg *models.Registration) error {
	occupied, err := s.registrations.CountByStatuses(ctx, tx, t.ID,
		models.RegistrationStatusConfirmed, models.RegistrationStatusCheckedIn)
	if err != nil {
		return err
	}

	if occupied < t.MaxParticipants {
		reg.Status = models.RegistrationStatusConfirmed
	} else {
		waitlisted, err := s.registrations.ListWaitlisted(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		position := len(waitlisted) + 1
		reg.Status = models.RegistrationStatusWaitlisted
		reg.WaitlistPosition = &position
	}

	if err := s.registrations.Create(ctx, tx, reg); err != nil {
		return mapRegistrationRepoError(err)
	}

	if reg.Status == models.RegistrationStatusConfirmed {
		if err := s.createStanding(ctx, tx, reg); err != nil {
			return err
		}
	}
	return nil
}

func (s *RegistrationService) createStanding(ctx context.Context, tx *sql.Tx, reg *models.Registration) error {
	standing := &models.Standing{
		TournamentID:  reg.TournamentID,
		ParticipantID: reg.ID,
		TeamID:        reg.TeamID,
		Seed:          derefInt(reg.Seed),
	}
	if err := s.standings.Create(ctx, tx, standing); err != nil {
		if errors.Is(err, repositories.ErrStandingConflict) {
			return nil
		}
		return fmt.Errorf("failed to create standing: %w", err)
	}
	return nil
}

func (s *RegistrationService) GetByID(ctx context.Context, id int) (*models.Registration, error) {
	reg, err := s.registrations.GetByID(ctx, id)
	if err != nil {
		return nil, mapRegistrationRepoError(err)
	}
	return reg, nil
}

func (s *RegistrationService) ListByTournament(ctx context.Context, tournamentID int, statusFilter *models.RegistrationStatus) ([]*models.Registration, error) {
	if _, err := getTournamentOrFail(ctx, s.tournaments, tournamentID); err != nil {
		return nil, err
	}
	return s.registrations.ListByTournament(ctx, nil, tournamentID, statusFilter)
}

func (s *RegistrationService) GetWaitlist(ctx context.Context, tournamentID int) ([]*models.Registration, error) {
	if _, err := getTournamentOrFail(ctx, s.tournaments, tournamentID); err != nil {
		return nil, err
	}
	return s.registrations.ListWaitlisted(ctx, nil, tournamentID)
}

// Cancel отменяет заявку. Снятие подтверждённого участника продвигает
// голову листа ожидания (FIFO) и уплотняет оставшиеся позиции до 1..k.
func (s *RegistrationService) Cancel(ctx context.Context, registrationID int) (*models.Registration, error) {
	var result *models.Registration
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		reg, err := s.registrations.GetForUpdate(ctx, tx, registrationID)
		if err != nil {
			return mapRegistrationRepoError(err)
		}
		t, err := s.tournaments.GetForUpdate(ctx, tx, reg.TournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if t.Status == models.TournamentStatusInProgress {
			return fmt.Errorf("%w: cancellation refused", ErrTournamentInProgress)
		}
		if !reg.Status.CanTransitionTo(models.RegistrationStatusCanceled) {
			return fmt.Errorf("%w: %s -> canceled", ErrInvalidRegistrationStatus, reg.Status)
		}

		freedSlot := reg.Status.CountsTowardCapacity()
		wasWaitlisted := reg.Status == models.RegistrationStatusWaitlisted

		reg.Status = models.RegistrationStatusCanceled
		reg.WaitlistPosition = nil
		if err := s.registrations.Update(ctx, tx, reg); err != nil {
			return mapRegistrationRepoError(err)
		}

		if err := s.settleAfterCancel(ctx, tx, reg, freedSlot, wasWaitlisted); err != nil {
			return err
		}
		result = reg
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("registration canceled", "registration_id", registrationID)
	return result, nil
}

// settleAfterCancel разруливает последствия отмены: освободившийся слот
// отдаётся голове листа ожидания, оставшиеся позиции уплотняются до 1..k.
func (s *RegistrationService) settleAfterCancel(ctx context.Context, tx *sql.Tx, reg *models.Registration, freedSlot, wasWaitlisted bool) error {
	if freedSlot {
		if err := s.standings.DeleteByParticipant(ctx, tx, reg.TournamentID, reg.ID); err != nil &&
			!errors.Is(err, repositories.ErrStandingNotFound) {
			return fmt.Errorf("failed to remove standing: %w", err)
		}
		if err := s.promoteWaitlistHead(ctx, tx, reg.TournamentID); err != nil {
			return err
		}
	}
	if freedSlot || wasWaitlisted {
		if err := s.compactWaitlist(ctx, tx, reg.TournamentID); err != nil {
			return err
		}
	}
	return nil
}

func (s *RegistrationService) promoteWaitlistHead(ctx context.Context, tx *sql.Tx, tournamentID int) error {
	waitlisted, err := s.registrations.ListWaitlisted(ctx, tx, tournamentID)
	if err != nil {
		return err
	}
	if len(waitlisted) == 0 {
		return nil
	}
	head := waitlisted[0]
	head.Status = models.RegistrationStatusConfirmed
	head.WaitlistPosition = nil
	if err := s.registrations.Update(ctx, tx, head); err != nil {
		return mapRegistrationRepoError(err)
	}
	if err := s.createStanding(ctx, tx, head); err != nil {
		return err
	}
	s.logger.Info("waitlist head promoted", "tournament_id", tournamentID, "registration_id", head.ID)
	return nil
}

// compactWaitlist перенумеровывает лист ожидания в плотные позиции 1..k.
func (s *RegistrationService) compactWaitlist(ctx context.Context, tx *sql.Tx, tournamentID int) error {
	waitlisted, err := s.registrations.ListWaitlisted(ctx, tx, tournamentID)
	if err != nil {
		return err
	}
	for i, reg := range waitlisted {
		want := i + 1
		if reg.WaitlistPosition != nil && *reg.WaitlistPosition == want {
			continue
		}
		if err := s.registrations.UpdateWaitlistPosition(ctx, tx, reg.ID, &want); err != nil {
			return mapRegistrationRepoError(err)
		}
	}
	return nil
}

// CheckIn подтверждает явку: только в статусе турнира check_in, внутри окна,
// из состояния confirmed.
func (s *RegistrationService) CheckIn(ctx context.Context, registrationID int) (*models.Registration, error) {
	var result *models.Registration
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		reg, err := s.registrations.GetForUpdate(ctx, tx, registrationID)
		if err != nil {
			return mapRegistrationRepoError(err)
		}
		t, err := s.tournaments.GetForUpdate(ctx, tx, reg.TournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if t.Status != models.TournamentStatusCheckIn {
			return fmt.Errorf("%w: tournament status %s", ErrCheckInNotOpen, t.Status)
		}
		if !t.CheckInWindowOpen(time.Now()) {
			return fmt.Errorf("%w: outside the check-in window", ErrCheckInNotOpen)
		}
		if reg.Status != models.RegistrationStatusConfirmed {
			return fmt.Errorf("%w: %s -> checked_in", ErrInvalidRegistrationStatus, reg.Status)
		}

		now := time.Now()
		reg.Status = models.RegistrationStatusCheckedIn
		reg.CheckedInAt = &now
		if err := s.registrations.Update(ctx, tx, reg); err != nil {
			return mapRegistrationRepoError(err)
		}
		result = reg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkNoShow помечает участника неявившимся.
func (s *RegistrationService) MarkNoShow(ctx context.Context, registrationID int) (*models.Registration, error) {
	var result *models.Registration
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		reg, err := s.registrations.GetForUpdate(ctx, tx, registrationID)
		if err != nil {
			return mapRegistrationRepoError(err)
		}
		if !reg.Status.CanTransitionTo(models.RegistrationStatusNoShow) {
			return fmt.Errorf("%w: %s -> no_show", ErrInvalidRegistrationStatus, reg.Status)
		}
		reg.Status = models.RegistrationStatusNoShow
		if err := s.registrations.Update(ctx, tx, reg); err != nil {
			return mapRegistrationRepoError(err)
		}
		result = reg
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("registration marked no-show", "registration_id", registrationID)
	return result, nil
}

// Substitute заменяет внешнего участника внутри заявки. Registration id
// не меняется, поэтому слоты матчей и standings остаются валидными.
func (s *RegistrationService) Substitute(ctx context.Context, registrationID, newUserID int, newDisplayName string) (*models.Registration, error) {
	var result *models.Registration
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		reg, err := s.registrations.GetForUpdate(ctx, tx, registrationID)
		if err != nil {
			return mapRegistrationRepoError(err)
		}
		if reg.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrInvalidRegistrationStatus, reg.Status)
		}
		if _, err := s.registrations.GetByUserAndTournament(ctx, tx, newUserID, reg.TournamentID); err == nil {
			return ErrSubstituteAlreadyEntered
		} else if !errors.Is(err, repositories.ErrRegistrationNotFound) {
			return mapRegistrationRepoError(err)
		}

		now := time.Now()
		previous := reg.UserID
		reg.SubstitutedFrom = &previous
		reg.SubstitutedAt = &now
		reg.UserID = newUserID
		if newDisplayName != "" {
			reg.DisplayName = newDisplayName
		}
		if err := s.registrations.Update(ctx, tx, reg); err != nil {
			return mapRegistrationRepoError(err)
		}
		result = reg
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("registration substituted", "registration_id", registrationID, "new_user_id", newUserID)
	return result, nil
}

// IssueRefund идемпотентен: повторный вызов отклоняется.
func (s *RegistrationService) IssueRefund(ctx context.Context, registrationID int) (*models.Registration, error) {
	var result *models.Registration
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		reg, err := s.registrations.GetForUpdate(ctx, tx, registrationID)
		if err != nil {
			return mapRegistrationRepoError(err)
		}
		if reg.RefundIssued {
			return ErrRefundAlreadyIssued
		}
		now := time.Now()
		reg.RefundIssued = true
		reg.RefundedAt = &now
		if err := s.registrations.Update(ctx, tx, reg); err != nil {
			return mapRegistrationRepoError(err)
		}
		result = reg
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("refund issued", "registration_id", registrationID)
	return result, nil
}

// SeedByMMR сортирует подтверждённых и чекинившихся по MMR (убывание,
// при равенстве раньше созданная заявка выше) и проставляет сиды 1..n.
func (s *RegistrationService) SeedByMMR(ctx context.Context, tournamentID int) ([]*models.Registration, error) {
	var seeded []*models.Registration
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		regs, err := s.registrations.ListByTournament(ctx, tx, tournamentID, nil)
		if err != nil {
			return err
		}
		eligible := make([]*models.Registration, 0, len(regs))
		for _, reg := range regs {
			if reg.Status.CountsTowardCapacity() {
				eligible = append(eligible, reg)
			}
		}
		sort.SliceStable(eligible, func(i, j int) bool {
			mi, mj := derefInt(eligible[i].MMR), derefInt(eligible[j].MMR)
			if mi != mj {
				return mi > mj
			}
			return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
		})
		for i, reg := range eligible {
			if err := s.applySeed(ctx, tx, reg, i+1); err != nil {
				return err
			}
		}
		seeded = eligible
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("seeds assigned by mmr", "tournament_id", tournamentID, "count", len(seeded))
	return seeded, nil
}

func (s *RegistrationService) SetManualSeed(ctx context.Context, registrationID, seed int) (*models.Registration, error) {
	if seed < 1 {
		return nil, ErrInvalidSeed
	}
	var result *models.Registration
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		reg, err := s.registrations.GetForUpdate(ctx, tx, registrationID)
		if err != nil {
			return mapRegistrationRepoError(err)
		}
		if err := s.applySeed(ctx, tx, reg, seed); err != nil {
			return err
		}
		result = reg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetBulkSeeds применяет список пар (registration_id, seed) атомарно.
func (s *RegistrationService) SetBulkSeeds(ctx context.Context, tournamentID int, assignments []SeedAssignment) error {
	if len(assignments) == 0 {
		return fmt.Errorf("%w: empty seed list", ErrValidationFailed)
	}
	return repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, a := range assignments {
			if a.Seed < 1 {
				return fmt.Errorf("%w: registration %d", ErrInvalidSeed, a.RegistrationID)
			}
			reg, err := s.registrations.GetForUpdate(ctx, tx, a.RegistrationID)
			if err != nil {
				return mapRegistrationRepoError(err)
			}
			if reg.TournamentID != tournamentID {
				return fmt.Errorf("%w: registration %d belongs to another tournament", ErrValidationFailed, a.RegistrationID)
			}
			if err := s.applySeed(ctx, tx, reg, a.Seed); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *RegistrationService) applySeed(ctx context.Context, tx *sql.Tx, reg *models.Registration, seed int) error {
	reg.Seed = &seed
	if err := s.registrations.Update(ctx, tx, reg); err != nil {
		return mapRegistrationRepoError(err)
	}
	if err := s.standings.UpdateSeed(ctx, tx, reg.TournamentID, reg.ID, seed); err != nil &&
		!errors.Is(err, repositories.ErrStandingNotFound) {
		return fmt.Errorf("failed to sync standing seed: %w", err)
	}
	return nil
}
