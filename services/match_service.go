package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/matchforge/tournament-engine/brackets"
	"github.com/matchforge/tournament-engine/metrics"
	"github.com/matchforge/tournament-engine/models"
	"github.com/matchforge/tournament-engine/repositories"
	"github.com/matchforge/tournament-engine/utils"
)

// maxVersionRetries ограничивает повторы read-modify-write при конфликте
// optimistic lock на строке матча.
const maxVersionRetries = 3

type SubmitResultRequest struct {
	SubmitterID int            `json:"submitter_id"`
	WinnerID    int            `json:"winner_id"`
	ScoreP1     int            `json:"score_p1"`
	ScoreP2     int            `json:"score_p2"`
	GamesPlayed int            `json:"games_played,omitempty"`
	GameStats   models.RawJSON `json:"game_stats,omitempty"`
}

type ResolveDisputeRequest struct {
	AdminID    int    `json:"admin_id"`
	Resolution string `json:"resolution"` // decide | replay
	WinnerID   *int   `json:"winner_id,omitempty"`
	ScoreP1    *int   `json:"score_p1,omitempty"`
	ScoreP2    *int   `json:"score_p2,omitempty"`
	Reason     string `json:"reason"`
}

type OverrideResultRequest struct {
	AdminID  int    `json:"admin_id"`
	WinnerID int    `json:"winner_id"`
	ScoreP1  int    `json:"score_p1"`
	ScoreP2  int    `json:"score_p2"`
	Reason   string `json:"reason"`
}

// ManipulationReport — рекомендательный вердикт эвристики; матч не
// блокируется, решение остаётся за админом.
type ManipulationReport struct {
	MatchID    int      `json:"match_id"`
	Suspicious bool     `json:"suspicious"`
	Flags      []string `json:"flags,omitempty"`
}

type MatchService struct {
	db          *sql.DB
	matches     repositories.MatchRepository
	bracketRepo repositories.BracketRepository
	tournaments repositories.TournamentRepository
	standings   *StandingService
	hub         Broadcaster
	logger      *slog.Logger
}

func NewMatchService(
	db *sql.DB,
	matches repositories.MatchRepository,
	bracketRepo repositories.BracketRepository,
	tournaments repositories.TournamentRepository,
	standings *StandingService,
	hub Broadcaster,
	logger *slog.Logger,
) *MatchService {
	return &MatchService{
		db:          db,
		matches:     matches,
		bracketRepo: bracketRepo,
		tournaments: tournaments,
		standings:   standings,
		hub:         hub,
		logger:      logger,
	}
}

func (s *MatchService) GetByID(ctx context.Context, id int) (*models.Match, error) {
	m, err := s.matches.GetByID(ctx, id)
	if err != nil {
		return nil, mapMatchRepoError(err)
	}
	return m, nil
}

func (s *MatchService) ListByTournament(ctx context.Context, tournamentID int, filter repositories.ListMatchesFilter) ([]*models.Match, error) {
	if _, err := getTournamentOrFail(ctx, s.tournaments, tournamentID); err != nil {
		return nil, err
	}
	return s.matches.ListByTournament(ctx, nil, tournamentID, filter)
}

// Upcoming — ближайшие назначенные матчи турнира.
func (s *MatchService) Upcoming(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	scheduled := models.MatchStatusScheduled
	matches, err := s.ListByTournament(ctx, tournamentID, repositories.ListMatchesFilter{Status: &scheduled})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(matches, func(i, j int) bool {
		ti, tj := matches[i].ScheduledAt, matches[j].ScheduledAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.Before(*tj)
		}
	})
	return matches, nil
}

func (s *MatchService) Disputed(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	disputed := models.MatchStatusDisputed
	return s.ListByTournament(ctx, tournamentID, repositories.ListMatchesFilter{Status: &disputed})
}

// AutoSchedule раздаёт scheduled_at всем pending-матчам с заполненными
// слотами: курсор стартует от start_date и двигается на match_interval
// между матчами, плюс один интервал между кругами. Матчи без участника
// пропускаются — их заполнит продвижение.
func (s *MatchService) AutoSchedule(ctx context.Context, tournamentID int) (int, error) {
	scheduledCount := 0
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := s.tournaments.GetForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}

		pending := models.MatchStatusPending
		matches, err := s.matches.ListByTournament(ctx, tx, tournamentID, repositories.ListMatchesFilter{Status: &pending})
		if err != nil {
			return err
		}
		sort.SliceStable(matches, func(i, j int) bool {
			if matches[i].Round != matches[j].Round {
				return matches[i].Round < matches[j].Round
			}
			if matches[i].BracketID != matches[j].BracketID {
				return matches[i].BracketID < matches[j].BracketID
			}
			return matches[i].MatchNumber < matches[j].MatchNumber
		})

		cursor := time.Now()
		if t.StartDate != nil {
			cursor = *t.StartDate
		}
		interval := time.Duration(t.MatchInterval) * time.Minute
		lastRound := -1

		for _, m := range matches {
			if !m.BothSlotsFilled() {
				continue
			}
			if lastRound >= 0 && m.Round != lastRound {
				cursor = cursor.Add(interval)
			}
			at := cursor
			m.ScheduledAt = &at
			m.Status = models.MatchStatusScheduled
			if err := s.matches.Update(ctx, tx, m); err != nil {
				return mapMatchRepoError(err)
			}
			cursor = cursor.Add(interval)
			lastRound = m.Round
			scheduledCount++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("matches auto-scheduled", "tournament_id", tournamentID, "count", scheduledCount)
	return scheduledCount, nil
}

// Schedule назначает время конкретному матчу.
func (s *MatchService) Schedule(ctx context.Context, matchID int, at time.Time) (*models.Match, error) {
	return s.mutate(ctx, matchID, func(ctx context.Context, tx *sql.Tx, m *models.Match) error {
		if !m.Status.CanTransitionTo(models.MatchStatusScheduled) && m.Status != models.MatchStatusScheduled {
			return fmt.Errorf("%w: %s -> scheduled", ErrInvalidMatchTransition, m.Status)
		}
		if !m.BothSlotsFilled() {
			return ErrMatchMissingParticipants
		}
		m.Status = models.MatchStatusScheduled
		m.ScheduledAt = &at
		return nil
	})
}

// CheckIn отмечает явку стороны. Идемпотентен для каждой стороны; когда
// отметились обе, матч уходит в in_progress с фиксацией started_at.
func (s *MatchService) CheckIn(ctx context.Context, matchID, participantID int) (*models.Match, error) {
	return s.mutate(ctx, matchID, func(ctx context.Context, tx *sql.Tx, m *models.Match) error {
		if !m.HasParticipant(participantID) {
			return ErrParticipantNotInMatch
		}
		switch m.Status {
		case models.MatchStatusScheduled, models.MatchStatusCheckIn:
		default:
			return fmt.Errorf("%w: %s", ErrInvalidMatchTransition, m.Status)
		}

		now := time.Now()
		if m.Participant1ID != nil && *m.Participant1ID == participantID && !m.P1CheckedIn {
			m.P1CheckedIn = true
			m.P1CheckedInAt = &now
		}
		if m.Participant2ID != nil && *m.Participant2ID == participantID && !m.P2CheckedIn {
			m.P2CheckedIn = true
			m.P2CheckedInAt = &now
		}

		if m.P1CheckedIn && m.P2CheckedIn {
			m.Status = models.MatchStatusInProgress
			m.StartedAt = &now
		} else if m.Status == models.MatchStatusScheduled {
			m.Status = models.MatchStatusCheckIn
		}
		return nil
	})
}

// SubmitResult принимает результат от участника. Сторона подателя
// подтверждается автоматически, матч ждёт подтверждения оппонента.
func (s *MatchService) SubmitResult(ctx context.Context, matchID int, req SubmitResultRequest) (*models.Match, error) {
	if req.ScoreP1 < 0 || req.ScoreP2 < 0 {
		return nil, ErrInvalidScore
	}
	return s.mutate(ctx, matchID, func(ctx context.Context, tx *sql.Tx, m *models.Match) error {
		if !m.Status.AcceptsResult() {
			return fmt.Errorf("%w: status %s", ErrMatchNotAcceptingResults, m.Status)
		}
		if !m.BothSlotsFilled() {
			return ErrMatchMissingParticipants
		}
		if !m.HasParticipant(req.SubmitterID) {
			return ErrParticipantNotInMatch
		}
		if !m.HasParticipant(req.WinnerID) {
			return ErrWinnerNotInMatch
		}

		m.ScoreP1 = req.ScoreP1
		m.ScoreP2 = req.ScoreP2
		m.WinnerID = &req.WinnerID
		m.LoserID = m.OpponentOf(req.WinnerID)
		m.GamesPlayed = req.GamesPlayed
		if req.GameStats != nil {
			m.GameStats = req.GameStats
		}
		m.Status = models.MatchStatusAwaitingConfirmation
		m.P1Confirmed = m.Participant1ID != nil && *m.Participant1ID == req.SubmitterID
		m.P2Confirmed = m.Participant2ID != nil && *m.Participant2ID == req.SubmitterID
		return nil
	})
}

// ConfirmResult — подтверждение оппонентом. Обе подтверждённые стороны
// завершают матч и запускают пост-обработку; завершение срабатывает ровно
// один раз благодаря версии строки.
func (s *MatchService) ConfirmResult(ctx context.Context, matchID, participantID int) (*models.Match, error) {
	var completed *models.Match
	err := s.withVersionRetry(func() error {
		return repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
			m, err := s.matches.GetForUpdate(ctx, tx, matchID)
			if err != nil {
				return mapMatchRepoError(err)
			}
			if m.Status != models.MatchStatusAwaitingConfirmation {
				return fmt.Errorf("%w: status %s", ErrMatchNotAwaitingConfirm, m.Status)
			}
			if !m.HasParticipant(participantID) {
				return ErrParticipantNotInMatch
			}

			if m.Participant1ID != nil && *m.Participant1ID == participantID {
				m.P1Confirmed = true
			}
			if m.Participant2ID != nil && *m.Participant2ID == participantID {
				m.P2Confirmed = true
			}

			if m.P1Confirmed && m.P2Confirmed {
				if err := s.complete(ctx, tx, m, models.MatchStatusCompleted); err != nil {
					return err
				}
			} else if err := s.matches.Update(ctx, tx, m); err != nil {
				return mapMatchRepoError(err)
			}
			completed = m
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.afterCompletion(ctx, completed)
	return completed, nil
}

// RaiseDispute — отклонение результата участником.
func (s *MatchService) RaiseDispute(ctx context.Context, matchID, participantID int, reason string) (*models.Match, error) {
	if reason == "" {
		return nil, ErrDisputeReasonRequired
	}
	return s.mutate(ctx, matchID, func(ctx context.Context, tx *sql.Tx, m *models.Match) error {
		if m.Status != models.MatchStatusAwaitingConfirmation {
			return fmt.Errorf("%w: status %s", ErrMatchNotAwaitingConfirm, m.Status)
		}
		if !m.HasParticipant(participantID) {
			return ErrParticipantNotInMatch
		}
		now := time.Now()
		m.Status = models.MatchStatusDisputed
		m.DisputeReason = &reason
		m.DisputedBy = &participantID
		m.DisputedAt = &now
		return nil
	})
}

// ResolveDispute: админ либо решает исход (нужны победитель и оба счёта),
// либо возвращает матч в игру.
func (s *MatchService) ResolveDispute(ctx context.Context, matchID int, req ResolveDisputeRequest) (*models.Match, error) {
	var result *models.Match
	err := s.withVersionRetry(func() error {
		return repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
			m, err := s.matches.GetForUpdate(ctx, tx, matchID)
			if err != nil {
				return mapMatchRepoError(err)
			}
			if m.Status != models.MatchStatusDisputed {
				return fmt.Errorf("%w: status %s", ErrMatchNotDisputed, m.Status)
			}

			switch req.Resolution {
			case "replay":
				m.Status = models.MatchStatusInProgress
				m.WinnerID = nil
				m.LoserID = nil
				m.ScoreP1 = 0
				m.ScoreP2 = 0
				m.P1Confirmed = false
				m.P2Confirmed = false
				m.DisputeReason = nil
				m.DisputedBy = nil
				m.DisputedAt = nil
				if err := s.matches.Update(ctx, tx, m); err != nil {
					return mapMatchRepoError(err)
				}
			case "decide":
				if req.WinnerID == nil || req.ScoreP1 == nil || req.ScoreP2 == nil {
					return ErrResolutionIncomplete
				}
				if !m.HasParticipant(*req.WinnerID) {
					return ErrWinnerNotInMatch
				}
				if *req.ScoreP1 < 0 || *req.ScoreP2 < 0 {
					return ErrInvalidScore
				}
				now := time.Now()
				m.WinnerID = req.WinnerID
				m.LoserID = m.OpponentOf(*req.WinnerID)
				m.ScoreP1 = *req.ScoreP1
				m.ScoreP2 = *req.ScoreP2
				m.P1Confirmed = true
				m.P2Confirmed = true
				m.OverrideReason = &req.Reason
				m.OverriddenBy = &req.AdminID
				m.OverriddenAt = &now
				if err := s.complete(ctx, tx, m, models.MatchStatusCompleted); err != nil {
					return err
				}
			default:
				return fmt.Errorf("%w: resolution must be decide or replay", ErrValidationFailed)
			}
			result = m
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if result.Status == models.MatchStatusCompleted {
		s.afterCompletion(ctx, result)
	}
	s.logger.Info("dispute resolved", "match_id", matchID, "resolution", req.Resolution, "admin_id", req.AdminID)
	return result, nil
}

// OverrideResult — административное решение из любого незавершённого
// состояния: обе стороны считаются подтвердившими, матч завершается.
func (s *MatchService) OverrideResult(ctx context.Context, matchID int, req OverrideResultRequest) (*models.Match, error) {
	if req.Reason == "" {
		return nil, ErrOverrideReasonRequired
	}
	if req.ScoreP1 < 0 || req.ScoreP2 < 0 {
		return nil, ErrInvalidScore
	}
	var result *models.Match
	err := s.withVersionRetry(func() error {
		return repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
			m, err := s.matches.GetForUpdate(ctx, tx, matchID)
			if err != nil {
				return mapMatchRepoError(err)
			}
			if m.Status.IsTerminal() {
				return ErrMatchAlreadyCompleted
			}
			if !m.HasParticipant(req.WinnerID) {
				return ErrWinnerNotInMatch
			}

			now := time.Now()
			m.WinnerID = &req.WinnerID
			m.LoserID = m.OpponentOf(req.WinnerID)
			m.ScoreP1 = req.ScoreP1
			m.ScoreP2 = req.ScoreP2
			m.P1Confirmed = true
			m.P2Confirmed = true
			m.OverrideReason = &req.Reason
			m.OverriddenBy = &req.AdminID
			m.OverriddenAt = &now
			if err := s.complete(ctx, tx, m, models.MatchStatusCompleted); err != nil {
				return err
			}
			result = m
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.afterCompletion(ctx, result)
	s.logger.Info("match result overridden", "match_id", matchID, "admin_id", req.AdminID)
	return result, nil
}

// Postpone откладывает матч; последующий Schedule возвращает его в сетку
// расписания.
func (s *MatchService) Postpone(ctx context.Context, matchID int) (*models.Match, error) {
	return s.mutate(ctx, matchID, func(ctx context.Context, tx *sql.Tx, m *models.Match) error {
		if !m.Status.CanTransitionTo(models.MatchStatusPostponed) {
			return fmt.Errorf("%w: %s -> postponed", ErrInvalidMatchTransition, m.Status)
		}
		m.Status = models.MatchStatusPostponed
		m.ScheduledAt = nil
		return nil
	})
}

// Forfeit присуждает техническое поражение участнику: оппонент получает
// победу 1–0, стандартная пост-обработка выполняется.
func (s *MatchService) Forfeit(ctx context.Context, matchID, forfeitingParticipantID int) (*models.Match, error) {
	var result *models.Match
	err := s.withVersionRetry(func() error {
		return repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
			m, err := s.matches.GetForUpdate(ctx, tx, matchID)
			if err != nil {
				return mapMatchRepoError(err)
			}
			if err := s.forfeitInTx(ctx, tx, m, forfeitingParticipantID); err != nil {
				return err
			}
			result = m
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.afterCompletion(ctx, result)
	s.logger.Info("match forfeited", "match_id", matchID, "participant_id", forfeitingParticipantID)
	return result, nil
}

// forfeitInTx — общая часть forfeit, используется и каскадом дисквалификации.
func (s *MatchService) forfeitInTx(ctx context.Context, tx *sql.Tx, m *models.Match, forfeitingParticipantID int) error {
	if !m.Status.CanTransitionTo(models.MatchStatusForfeit) {
		return fmt.Errorf("%w: %s -> forfeit", ErrInvalidMatchTransition, m.Status)
	}
	if !m.HasParticipant(forfeitingParticipantID) {
		return ErrParticipantNotInMatch
	}

	opponent := m.OpponentOf(forfeitingParticipantID)
	if opponent != nil {
		m.WinnerID = opponent
		m.LoserID = &forfeitingParticipantID
		if m.Participant1ID != nil && *m.Participant1ID == *opponent {
			m.ScoreP1, m.ScoreP2 = 1, 0
		} else {
			m.ScoreP1, m.ScoreP2 = 0, 1
		}
	}
	m.P1Confirmed = true
	m.P2Confirmed = true
	return s.complete(ctx, tx, m, models.MatchStatusForfeit)
}

// Cancel снимает матч без победителя.
func (s *MatchService) Cancel(ctx context.Context, matchID int) (*models.Match, error) {
	return s.mutate(ctx, matchID, func(ctx context.Context, tx *sql.Tx, m *models.Match) error {
		if !m.Status.CanTransitionTo(models.MatchStatusCanceled) {
			return fmt.Errorf("%w: %s -> canceled", ErrInvalidMatchTransition, m.Status)
		}
		m.Status = models.MatchStatusCanceled
		return nil
	})
}

// UpdateStatus — прямой переход статуса с проверкой по таблице.
func (s *MatchService) UpdateStatus(ctx context.Context, matchID int, status models.MatchStatus) (*models.Match, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.mutate(ctx, matchID, func(ctx context.Context, tx *sql.Tx, m *models.Match) error {
		if !m.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidMatchTransition, m.Status, status)
		}
		m.Status = status
		return nil
	})
}

// AssignServer закрепляет игровой сервер и выдаёт код лобби.
func (s *MatchService) AssignServer(ctx context.Context, matchID int, serverID string) (*models.Match, error) {
	if serverID == "" {
		return nil, fmt.Errorf("%w: server id is required", ErrValidationFailed)
	}
	return s.mutate(ctx, matchID, func(ctx context.Context, tx *sql.Tx, m *models.Match) error {
		if m.Status.IsTerminal() {
			return ErrMatchAlreadyCompleted
		}
		m.ServerID = &serverID
		if m.LobbyCode == nil {
			code := utils.NewLobbyCode()
			m.LobbyCode = &code
		}
		return nil
	})
}

// DetectManipulation — рекомендательная эвристика: нулевой счёт после
// начала игры либо расхождение суммы счёта с games_played.
func (s *MatchService) DetectManipulation(ctx context.Context, matchID int) (*ManipulationReport, error) {
	m, err := s.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	report := &ManipulationReport{MatchID: matchID}

	pastInProgress := false
	switch m.Status {
	case models.MatchStatusAwaitingConfirmation, models.MatchStatusCompleted, models.MatchStatusDisputed:
		pastInProgress = true
	}
	if pastInProgress && m.ScoreP1 == 0 && m.ScoreP2 == 0 && !m.IsBye {
		report.Flags = append(report.Flags, "zero score after play started")
	}
	if m.GamesPlayed > 0 && m.ScoreP1+m.ScoreP2 != m.GamesPlayed {
		report.Flags = append(report.Flags, fmt.Sprintf("score sum %d does not match games played %d", m.ScoreP1+m.ScoreP2, m.GamesPlayed))
	}
	report.Suspicious = len(report.Flags) > 0
	return report, nil
}

// --- Завершение и пост-обработка ---

// complete переводит матч в терминальный статус и запускает фан-аут:
// standings, продвижение победителя, маршрут проигравшего, прогресс сетки,
// при необходимости grand-finals reset. Всё в одной транзакции.
func (s *MatchService) complete(ctx context.Context, tx *sql.Tx, m *models.Match, terminal models.MatchStatus) error {
	if !m.Status.CanTransitionTo(terminal) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidMatchTransition, m.Status, terminal)
	}
	if m.WinnerID == nil || !m.HasParticipant(*m.WinnerID) {
		return fmt.Errorf("%w: winner must occupy a participant slot", ErrIntegrityViolation)
	}

	now := time.Now()
	m.Status = terminal
	m.CompletedAt = &now
	if err := s.matches.Update(ctx, tx, m); err != nil {
		return mapMatchRepoError(err)
	}

	if err := s.standings.ApplyMatchResult(ctx, tx, m); err != nil {
		return err
	}
	if err := s.advanceWinner(ctx, tx, m); err != nil {
		return err
	}
	if err := s.routeLoser(ctx, tx, m); err != nil {
		return err
	}
	if err := s.updateBracketProgress(ctx, tx, m.TournamentID, m.BracketID); err != nil {
		return err
	}
	if m.Type == models.MatchTypeGrandFinals {
		if err := s.maybeCreateGrandFinalsReset(ctx, tx, m); err != nil {
			return err
		}
	}
	return nil
}

// afterCompletion — сторона эффектов вне транзакции: метрики, кэш, live.
func (s *MatchService) afterCompletion(ctx context.Context, m *models.Match) {
	if m == nil || !m.Status.IsTerminal() || m.WinnerID == nil {
		return
	}
	metrics.MatchesCompleted.Inc()
	s.standings.Invalidate(ctx, m.TournamentID)
	if s.hub != nil {
		s.hub.BroadcastToRoom(brackets.TournamentRoom(m.TournamentID), brackets.EventMatchCompleted, m)
	}
}

// advanceWinner заполняет первый свободный слот следующего матча,
// протаскивая имя и сид победителя.
func (s *MatchService) advanceWinner(ctx context.Context, tx *sql.Tx, m *models.Match) error {
	if m.NextMatchID == nil || m.WinnerID == nil {
		return nil
	}
	name, seed := slotDetails(m, *m.WinnerID)
	return s.fillSlot(ctx, tx, *m.NextMatchID, *m.WinnerID, name, seed)
}

// routeLoser либо отправляет проигравшего в нижнюю сетку, либо помечает
// его выбывшим, когда дальше пути нет.
func (s *MatchService) routeLoser(ctx context.Context, tx *sql.Tx, m *models.Match) error {
	if m.LoserID == nil {
		return nil
	}
	if m.LoserNextMatchID != nil {
		name, seed := slotDetails(m, *m.LoserID)
		return s.fillSlot(ctx, tx, *m.LoserNextMatchID, *m.LoserID, name, seed)
	}

	switch m.Type {
	case models.MatchTypeWinners, models.MatchTypeLosers, models.MatchTypeGrandFinals, models.MatchTypeGrandFinalsReset:
		st, err := s.standings.standings.GetOrCreate(ctx, tx, m.TournamentID, *m.LoserID, 0, nil)
		if err != nil {
			return fmt.Errorf("failed to load standing for elimination: %w", err)
		}
		round := m.Round
		st.IsEliminated = true
		st.EliminatedInRound = &round
		st.EliminatedBy = m.WinnerID
		if err := s.standings.standings.Update(ctx, tx, st); err != nil {
			return fmt.Errorf("failed to mark elimination: %w", err)
		}
	}
	return nil
}

func (s *MatchService) fillSlot(ctx context.Context, tx *sql.Tx, matchID, participantID int, name *string, seed *int) error {
	next, err := s.matches.GetForUpdate(ctx, tx, matchID)
	if err != nil {
		return mapMatchRepoError(err)
	}
	if next.HasParticipant(participantID) {
		return nil
	}
	switch {
	case next.Participant1ID == nil:
		next.Participant1ID = &participantID
		next.Participant1Name = name
		next.Participant1Seed = seed
	case next.Participant2ID == nil:
		next.Participant2ID = &participantID
		next.Participant2Name = name
		next.Participant2Seed = seed
	default:
		return fmt.Errorf("%w: match %d has no free slot", ErrIntegrityViolation, matchID)
	}
	if err := s.matches.Update(ctx, tx, next); err != nil {
		return mapMatchRepoError(err)
	}
	return nil
}

// updateBracketProgress пересчитывает completed_matches и current_round
// сетки и двигает её статус generated -> in_progress -> completed.
func (s *MatchService) updateBracketProgress(ctx context.Context, tx *sql.Tx, tournamentID, bracketID int) error {
	total, finished, err := s.matches.GetBracketProgress(ctx, tx, bracketID)
	if err != nil {
		return fmt.Errorf("failed to compute bracket progress: %w", err)
	}

	matches, err := s.matches.ListByTournament(ctx, tx, tournamentID, repositories.ListMatchesFilter{BracketID: &bracketID})
	if err != nil {
		return err
	}
	currentRound := 0
	for _, m := range matches {
		if m.Status.IsTerminal() && m.Status != models.MatchStatusCanceled && m.Round > currentRound {
			currentRound = m.Round
		}
	}

	if err := s.bracketRepo.UpdateProgress(ctx, tx, bracketID, currentRound, finished); err != nil {
		return fmt.Errorf("failed to update bracket progress: %w", err)
	}

	switch {
	case finished >= total && total > 0:
		if err := s.bracketRepo.UpdateStatus(ctx, tx, bracketID, models.BracketStatusCompleted); err != nil {
			return err
		}
	case finished > 0:
		if err := s.bracketRepo.UpdateStatus(ctx, tx, bracketID, models.BracketStatusInProgress); err != nil {
			return err
		}
	}
	return nil
}

// maybeCreateGrandFinalsReset создаёт reset-матч, когда гранд-финал выиграл
// чемпион нижней сетки: той же парой, кругом выше, с нуля.
func (s *MatchService) maybeCreateGrandFinalsReset(ctx context.Context, tx *sql.Tx, gf *models.Match) error {
	t, err := s.tournaments.GetForUpdate(ctx, tx, gf.TournamentID)
	if err != nil {
		return mapTournamentRepoError(err)
	}
	if !t.GrandFinalsReset || gf.WinnerID == nil {
		return nil
	}

	// Чемпион верхней сетки — победитель финала winners.
	winnersType := models.MatchTypeWinners
	winnersMatches, err := s.matches.ListByTournament(ctx, tx, gf.TournamentID, repositories.ListMatchesFilter{Type: &winnersType})
	if err != nil {
		return err
	}
	var winnersChampion *int
	maxRound := 0
	for _, wm := range winnersMatches {
		if wm.Round > maxRound && wm.WinnerID != nil {
			maxRound = wm.Round
			winnersChampion = wm.WinnerID
		}
	}
	if winnersChampion == nil || *winnersChampion == *gf.WinnerID {
		return nil
	}

	reset := &models.Match{
		TournamentID:     gf.TournamentID,
		BracketID:        gf.BracketID,
		Round:            gf.Round + 1,
		MatchNumber:      1,
		Type:             models.MatchTypeGrandFinalsReset,
		Status:           models.MatchStatusPending,
		Participant1ID:   gf.Participant1ID,
		Participant1Name: gf.Participant1Name,
		Participant1Seed: gf.Participant1Seed,
		Participant2ID:   gf.Participant2ID,
		Participant2Name: gf.Participant2Name,
		Participant2Seed: gf.Participant2Seed,
		BestOf:           gf.BestOf,
	}
	if err := s.matches.Create(ctx, tx, reset); err != nil {
		return mapMatchRepoError(err)
	}

	// routeLoser уже пометил чемпиона верхней сетки выбывшим; reset
	// возвращает его в игру.
	if gf.LoserID != nil {
		st, err := s.standings.standings.GetOrCreate(ctx, tx, gf.TournamentID, *gf.LoserID, 0, nil)
		if err != nil {
			return fmt.Errorf("failed to load standing for grand finals reset: %w", err)
		}
		if st.IsEliminated {
			st.IsEliminated = false
			st.EliminatedInRound = nil
			st.EliminatedBy = nil
			if err := s.standings.standings.Update(ctx, tx, st); err != nil {
				return fmt.Errorf("failed to clear elimination for grand finals reset: %w", err)
			}
		}
	}

	s.logger.Info("grand finals reset created", "tournament_id", gf.TournamentID, "match_id", reset.ID)
	return nil
}

// --- Вспомогательные ---

// mutate — общий каркас мутаций без завершения: optimistic retry вокруг
// транзакции read-modify-write.
func (s *MatchService) mutate(ctx context.Context, matchID int, fn func(context.Context, *sql.Tx, *models.Match) error) (*models.Match, error) {
	var result *models.Match
	err := s.withVersionRetry(func() error {
		return repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
			m, err := s.matches.GetForUpdate(ctx, tx, matchID)
			if err != nil {
				return mapMatchRepoError(err)
			}
			if err := fn(ctx, tx, m); err != nil {
				return err
			}
			if err := s.matches.Update(ctx, tx, m); err != nil {
				return mapMatchRepoError(err)
			}
			result = m
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *MatchService) withVersionRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrConcurrentModification) {
			return err
		}
	}
	return err
}

// slotDetails возвращает имя и сид участника из его слота.
func slotDetails(m *models.Match, participantID int) (*string, *int) {
	if m.Participant1ID != nil && *m.Participant1ID == participantID {
		return m.Participant1Name, m.Participant1Seed
	}
	if m.Participant2ID != nil && *m.Participant2ID == participantID {
		return m.Participant2Name, m.Participant2Seed
	}
	return nil, nil
}
