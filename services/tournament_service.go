package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matchforge/tournament-engine/models"
	"github.com/matchforge/tournament-engine/repositories"
)

// CreateTournamentRequest несёт конфигурацию нового турнира.
type CreateTournamentRequest struct {
	Name              string                      `json:"name"`
	Description       *string                     `json:"description,omitempty"`
	GameID            string                      `json:"game_id"`
	Format            models.TournamentFormat     `json:"format"`
	Visibility        models.TournamentVisibility `json:"visibility,omitempty"`
	RegistrationType  models.RegistrationType     `json:"registration_type,omitempty"`
	OrganizerID       int                         `json:"organizer_id"`
	TeamSize          int                         `json:"team_size,omitempty"`
	MinParticipants   int                         `json:"min_participants"`
	MaxParticipants   int                         `json:"max_participants"`
	MinMMR            *int                        `json:"min_mmr,omitempty"`
	MaxMMR            *int                        `json:"max_mmr,omitempty"`
	AllowedRegions    []string                    `json:"allowed_regions,omitempty"`
	RequireVerified   bool                        `json:"require_identity_verification,omitempty"`
	PrizePool         decimal.Decimal             `json:"prize_pool,omitempty"`
	PrizeCurrency     string                      `json:"prize_currency,omitempty"`
	PrizeDistribution models.PrizeDistribution    `json:"prize_distribution,omitempty"`
	EntryFee          decimal.Decimal             `json:"entry_fee,omitempty"`
	RegistrationStart *time.Time                  `json:"registration_start,omitempty"`
	RegistrationEnd   *time.Time                  `json:"registration_end,omitempty"`
	CheckInStart      *time.Time                  `json:"check_in_start,omitempty"`
	CheckInEnd        *time.Time                  `json:"check_in_end,omitempty"`
	StartDate         *time.Time                  `json:"start_date,omitempty"`
	EndDate           *time.Time                  `json:"end_date,omitempty"`
	MatchInterval     int                         `json:"match_interval_minutes,omitempty"`
	SwissRounds       *int                        `json:"swiss_rounds,omitempty"`
	GrandFinalsReset  bool                        `json:"grand_finals_reset,omitempty"`
	Rules             *string                     `json:"rules,omitempty"`
	StreamURL         *string                     `json:"stream_url,omitempty"`
	Metadata          models.RawJSON              `json:"metadata,omitempty"`
}

// UpdateTournamentRequest — patch: nil-поля не трогаются. Каждое поле
// проверяется на stage-gate относительно текущего статуса.
type UpdateTournamentRequest struct {
	Name              *string                      `json:"name,omitempty"`
	Description       *string                      `json:"description,omitempty"`
	Format            *models.TournamentFormat     `json:"format,omitempty"`
	Visibility        *models.TournamentVisibility `json:"visibility,omitempty"`
	RegistrationType  *models.RegistrationType     `json:"registration_type,omitempty"`
	TeamSize          *int                         `json:"team_size,omitempty"`
	MinParticipants   *int                         `json:"min_participants,omitempty"`
	MaxParticipants   *int                         `json:"max_participants,omitempty"`
	MinMMR            *int                         `json:"min_mmr,omitempty"`
	MaxMMR            *int                         `json:"max_mmr,omitempty"`
	AllowedRegions    []string                     `json:"allowed_regions,omitempty"`
	RequireVerified   *bool                        `json:"require_identity_verification,omitempty"`
	PrizePool         *decimal.Decimal             `json:"prize_pool,omitempty"`
	PrizeCurrency     *string                      `json:"prize_currency,omitempty"`
	PrizeDistribution models.PrizeDistribution     `json:"prize_distribution,omitempty"`
	EntryFee          *decimal.Decimal             `json:"entry_fee,omitempty"`
	RegistrationStart *time.Time                   `json:"registration_start,omitempty"`
	RegistrationEnd   *time.Time                   `json:"registration_end,omitempty"`
	CheckInStart      *time.Time                   `json:"check_in_start,omitempty"`
	CheckInEnd        *time.Time                   `json:"check_in_end,omitempty"`
	StartDate         *time.Time                   `json:"start_date,omitempty"`
	EndDate           *time.Time                   `json:"end_date,omitempty"`
	MatchInterval     *int                         `json:"match_interval_minutes,omitempty"`
	SwissRounds       *int                         `json:"swiss_rounds,omitempty"`
	GrandFinalsReset  *bool                        `json:"grand_finals_reset,omitempty"`
	Rules             *string                      `json:"rules,omitempty"`
	StreamURL         *string                      `json:"stream_url,omitempty"`
	Metadata          models.RawJSON               `json:"metadata,omitempty"`
}

type TournamentService struct {
	db           *sql.DB
	tournaments  repositories.TournamentRepository
	brackets     repositories.BracketRepository
	standings    repositories.StandingRepository
	logger       *slog.Logger
}

func NewTournamentService(
	db *sql.DB,
	tournaments repositories.TournamentRepository,
	brackets repositories.BracketRepository,
	standings repositories.StandingRepository,
	logger *slog.Logger,
) *TournamentService {
	return &TournamentService{
		db:          db,
		tournaments: tournaments,
		brackets:    brackets,
		standings:   standings,
		logger:      logger,
	}
}

func (s *TournamentService) Create(ctx context.Context, req CreateTournamentRequest) (*models.Tournament, error) {
	t := &models.Tournament{
		Name:              strings.TrimSpace(req.Name),
		Description:       req.Description,
		GameID:            req.GameID,
		Format:            req.Format,
		Status:            models.TournamentStatusDraft,
		Visibility:        req.Visibility,
		RegistrationType:  req.RegistrationType,
		OrganizerID:       req.OrganizerID,
		TeamSize:          req.TeamSize,
		MinParticipants:   req.MinParticipants,
		MaxParticipants:   req.MaxParticipants,
		MinMMR:            req.MinMMR,
		MaxMMR:            req.MaxMMR,
		AllowedRegions:    req.AllowedRegions,
		RequireVerified:   req.RequireVerified,
		PrizePool:         req.PrizePool,
		PrizeCurrency:     req.PrizeCurrency,
		PrizeDistribution: req.PrizeDistribution,
		EntryFee:          req.EntryFee,
		RegistrationStart: req.RegistrationStart,
		RegistrationEnd:   req.RegistrationEnd,
		CheckInStart:      req.CheckInStart,
		CheckInEnd:        req.CheckInEnd,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		MatchInterval:     req.MatchInterval,
		SwissRounds:       req.SwissRounds,
		GrandFinalsReset:  req.GrandFinalsReset,
		Rules:             req.Rules,
		StreamURL:         req.StreamURL,
		Metadata:          req.Metadata,
	}
	if t.Visibility == "" {
		t.Visibility = models.VisibilityPublic
	}
	if t.RegistrationType == "" {
		t.RegistrationType = models.RegistrationOpen
	}
	if t.TeamSize <= 0 {
		t.TeamSize = 1
	}
	if t.PrizeCurrency == "" {
		t.PrizeCurrency = "USD"
	}
	if t.MatchInterval <= 0 {
		t.MatchInterval = 30
	}

	if err := s.validateConfig(t); err != nil {
		return nil, err
	}

	if err := s.tournaments.Create(ctx, t); err != nil {
		return nil, mapTournamentRepoError(err)
	}
	s.logger.Info("tournament created", "tournament_id", t.ID, "name", t.Name, "format", t.Format)
	return t, nil
}

func (s *TournamentService) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	return getTournamentOrFail(ctx, s.tournaments, id)
}

func (s *TournamentService) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.tournaments.List(ctx, filter)
}

// Update применяет patch с учётом stage-gate правил: формат меняется только
// в draft, конфигурация регистрации — до закрытия регистрации, требования
// к участникам — только в draft, расписание — везде кроме in_progress,
// приз/правила/видимость/стрим — в любом нетерминальном статусе.
func (s *TournamentService) Update(ctx context.Context, id int, req UpdateTournamentRequest) (*models.Tournament, error) {
	var updated *models.Tournament
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := s.tournaments.GetForUpdate(ctx, tx, id)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if t.Status.IsTerminal() {
			return fmt.Errorf("%w: tournament is %s", ErrEditLockedByStage, t.Status)
		}

		if err := s.applyPatch(t, req); err != nil {
			return err
		}
		if err := s.validateConfig(t); err != nil {
			return err
		}
		if err := s.tournaments.Update(ctx, tx, t); err != nil {
			return mapTournamentRepoError(err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *TournamentService) applyPatch(t *models.Tournament, req UpdateTournamentRequest) error {
	draft := t.Status == models.TournamentStatusDraft
	regEditable := draft || t.Status == models.TournamentStatusRegistrationOpen
	scheduleEditable := t.Status != models.TournamentStatusInProgress

	if req.Format != nil && *req.Format != t.Format {
		if !draft {
			return fmt.Errorf("%w: format is editable only in draft", ErrEditLockedByStage)
		}
		if !req.Format.IsValid() {
			return fmt.Errorf("%w: %q", ErrInvalidFormat, *req.Format)
		}
		t.Format = *req.Format
	}

	for _, gate := range []struct {
		changed bool
		allowed bool
		field   string
		apply   func()
	}{
		{req.TeamSize != nil, regEditable, "team_size", func() { t.TeamSize = *req.TeamSize }},
		{req.MinParticipants != nil, regEditable, "min_participants", func() { t.MinParticipants = *req.MinParticipants }},
		{req.MaxParticipants != nil, regEditable, "max_participants", func() { t.MaxParticipants = *req.MaxParticipants }},
		{req.RegistrationType != nil, regEditable, "registration_type", func() { t.RegistrationType = *req.RegistrationType }},
		{req.MinMMR != nil, draft, "min_mmr", func() { t.MinMMR = req.MinMMR }},
		{req.MaxMMR != nil, draft, "max_mmr", func() { t.MaxMMR = req.MaxMMR }},
		{req.AllowedRegions != nil, draft, "allowed_regions", func() { t.AllowedRegions = req.AllowedRegions }},
		{req.RequireVerified != nil, draft, "require_identity_verification", func() { t.RequireVerified = *req.RequireVerified }},
		{req.RegistrationStart != nil, scheduleEditable, "registration_start", func() { t.RegistrationStart = req.RegistrationStart }},
		{req.RegistrationEnd != nil, scheduleEditable, "registration_end", func() { t.RegistrationEnd = req.RegistrationEnd }},
		{req.CheckInStart != nil, scheduleEditable, "check_in_start", func() { t.CheckInStart = req.CheckInStart }},
		{req.CheckInEnd != nil, scheduleEditable, "check_in_end", func() { t.CheckInEnd = req.CheckInEnd }},
		{req.StartDate != nil, scheduleEditable, "start_date", func() { t.StartDate = req.StartDate }},
		{req.EndDate != nil, scheduleEditable, "end_date", func() { t.EndDate = req.EndDate }},
		{req.MatchInterval != nil, scheduleEditable, "match_interval_minutes", func() { t.MatchInterval = *req.MatchInterval }},
		{req.SwissRounds != nil, draft, "swiss_rounds", func() { t.SwissRounds = req.SwissRounds }},
		{req.GrandFinalsReset != nil, draft, "grand_finals_reset", func() { t.GrandFinalsReset = *req.GrandFinalsReset }},
	} {
		if !gate.changed {
			continue
		}
		if !gate.allowed {
			return fmt.Errorf("%w: %s (status %s)", ErrEditLockedByStage, gate.field, t.Status)
		}
		gate.apply()
	}

	// Любой нетерминальный статус (терминальность уже отсечена выше).
	if req.Name != nil {
		t.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		t.Description = req.Description
	}
	if req.Visibility != nil {
		t.Visibility = *req.Visibility
	}
	if req.PrizePool != nil {
		t.PrizePool = *req.PrizePool
	}
	if req.PrizeCurrency != nil {
		t.PrizeCurrency = *req.PrizeCurrency
	}
	if req.PrizeDistribution != nil {
		t.PrizeDistribution = req.PrizeDistribution
	}
	if req.EntryFee != nil {
		t.EntryFee = *req.EntryFee
	}
	if req.Rules != nil {
		t.Rules = req.Rules
	}
	if req.StreamURL != nil {
		t.StreamURL = req.StreamURL
	}
	if req.Metadata != nil {
		t.Metadata = req.Metadata
	}
	return nil
}

func (s *TournamentService) validateConfig(t *models.Tournament) error {
	var problems []string
	if t.Name == "" {
		problems = append(problems, ErrTournamentNameRequired.Error())
	}
	if !t.Format.IsValid() {
		problems = append(problems, fmt.Sprintf("%s: %q", ErrInvalidFormat.Error(), t.Format))
	}
	if err := models.ValidateParticipantBounds(t.MinParticipants, t.MaxParticipants); err != nil {
		problems = append(problems, err.Error())
	}
	if err := t.ValidateSchedule(); err != nil {
		problems = append(problems, err.Error())
	}
	if t.PrizeDistribution != nil {
		if err := t.PrizeDistribution.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if t.MinMMR != nil && t.MaxMMR != nil && *t.MinMMR > *t.MaxMMR {
		problems = append(problems, "min_mmr exceeds max_mmr")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(problems, "; "))
	}
	return nil
}

func (s *TournamentService) Delete(ctx context.Context, id int) error {
	t, err := getTournamentOrFail(ctx, s.tournaments, id)
	if err != nil {
		return err
	}
	if t.Status == models.TournamentStatusInProgress {
		return fmt.Errorf("%w: delete refused", ErrTournamentInProgress)
	}
	if err := s.tournaments.Delete(ctx, id); err != nil {
		return mapTournamentRepoError(err)
	}
	s.logger.Info("tournament deleted", "tournament_id", id)
	return nil
}

// Clone копирует конфигурацию турнира как шаблон: статус draft, окна
// расписания очищены (кроме ориентировочного старта), организатор новый,
// source записывается в template_id.
func (s *TournamentService) Clone(ctx context.Context, sourceID, organizerID int, name string) (*models.Tournament, error) {
	src, err := getTournamentOrFail(ctx, s.tournaments, sourceID)
	if err != nil {
		return nil, err
	}

	clone := *src
	clone.ID = 0
	clone.Status = models.TournamentStatusDraft
	clone.OrganizerID = organizerID
	clone.TemplateID = &src.ID
	clone.RegistrationStart = nil
	clone.RegistrationEnd = nil
	clone.CheckInStart = nil
	clone.CheckInEnd = nil
	clone.EndDate = nil
	if src.StartDate != nil {
		placeholder := src.StartDate.AddDate(0, 0, 7)
		clone.StartDate = &placeholder
	}
	clone.Name = strings.TrimSpace(name)
	if clone.Name == "" {
		clone.Name = src.Name + " (copy)"
	}
	clone.Registrations = nil
	clone.Brackets = nil

	if err := s.tournaments.Create(ctx, &clone); err != nil {
		return nil, mapTournamentRepoError(err)
	}
	s.logger.Info("tournament cloned", "source_id", sourceID, "tournament_id", clone.ID)
	return &clone, nil
}

// --- Переходы статуса ---

func (s *TournamentService) OpenRegistration(ctx context.Context, id int) (*models.Tournament, error) {
	return s.transition(ctx, id, models.TournamentStatusRegistrationOpen)
}

func (s *TournamentService) CloseRegistration(ctx context.Context, id int) (*models.Tournament, error) {
	return s.transition(ctx, id, models.TournamentStatusRegistrationClosed)
}

func (s *TournamentService) StartCheckIn(ctx context.Context, id int) (*models.Tournament, error) {
	return s.transition(ctx, id, models.TournamentStatusCheckIn)
}

func (s *TournamentService) Start(ctx context.Context, id int) (*models.Tournament, error) {
	return s.transition(ctx, id, models.TournamentStatusInProgress)
}

// Complete завершает турнир и фиксирует итоговые места: final_placement
// каждой строки standings равен её текущему рангу.
func (s *TournamentService) Complete(ctx context.Context, id int) (*models.Tournament, error) {
	var result *models.Tournament
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := s.tournaments.GetForUpdate(ctx, tx, id)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if err := checkTournamentTransition(t.Status, models.TournamentStatusCompleted); err != nil {
			return err
		}
		if err := s.tournaments.UpdateStatus(ctx, tx, id, models.TournamentStatusCompleted); err != nil {
			return mapTournamentRepoError(err)
		}

		standings, err := s.standings.ListByTournament(ctx, tx, id, true)
		if err != nil {
			return fmt.Errorf("failed to list standings for placement: %w", err)
		}
		for _, st := range standings {
			if st.FinalPlacement != nil {
				continue
			}
			placement := st.Rank
			if placement < 1 {
				placement = len(standings)
			}
			if err := s.standings.SetFinalPlacement(ctx, tx, st.ID, placement); err != nil {
				return fmt.Errorf("failed to set final placement: %w", err)
			}
		}

		t.Status = models.TournamentStatusCompleted
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("tournament completed", "tournament_id", id)
	return result, nil
}

func (s *TournamentService) Cancel(ctx context.Context, id int) (*models.Tournament, error) {
	return s.transition(ctx, id, models.TournamentStatusCanceled)
}

func (s *TournamentService) transition(ctx context.Context, id int, target models.TournamentStatus) (*models.Tournament, error) {
	var result *models.Tournament
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := s.tournaments.GetForUpdate(ctx, tx, id)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if err := checkTournamentTransition(t.Status, target); err != nil {
			return err
		}
		if err := s.tournaments.UpdateStatus(ctx, tx, id, target); err != nil {
			return mapTournamentRepoError(err)
		}
		t.Status = target
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("tournament status changed", "tournament_id", id, "status", target)
	return result, nil
}

// AutoUpdateStatusesByDates — шаг фонового планировщика: двигает турниры
// через границы окон расписания. Старт турнира требует существующей сетки,
// иначе турнир остаётся в check_in до ручного вмешательства.
func (s *TournamentService) AutoUpdateStatusesByDates(ctx context.Context) (int, error) {
	now := time.Now()
	due, err := s.tournaments.ListDueForTransition(ctx, nil, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due tournaments: %w", err)
	}

	transitions := 0
	for _, t := range due {
		var target models.TournamentStatus
		switch t.Status {
		case models.TournamentStatusDraft:
			target = models.TournamentStatusRegistrationOpen
		case models.TournamentStatusRegistrationOpen:
			target = models.TournamentStatusRegistrationClosed
		case models.TournamentStatusRegistrationClosed:
			target = models.TournamentStatusCheckIn
		case models.TournamentStatusCheckIn:
			target = models.TournamentStatusInProgress
		default:
			continue
		}

		if target == models.TournamentStatusInProgress {
			existing, listErr := s.brackets.ListByTournament(ctx, nil, t.ID)
			if listErr != nil {
				s.logger.Error("scheduler: failed to check brackets", "tournament_id", t.ID, "error", listErr)
				continue
			}
			if len(existing) == 0 {
				s.logger.Warn("scheduler: tournament due to start but has no bracket", "tournament_id", t.ID)
				continue
			}
		}

		if _, trErr := s.transition(ctx, t.ID, target); trErr != nil {
			if errors.Is(trErr, ErrInvalidStatusTransition) {
				continue
			}
			s.logger.Error("scheduler: transition failed", "tournament_id", t.ID, "target", target, "error", trErr)
			continue
		}
		transitions++
	}
	return transitions, nil
}
