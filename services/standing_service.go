package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matchforge/tournament-engine/brackets"
	"github.com/matchforge/tournament-engine/cache"
	"github.com/matchforge/tournament-engine/metrics"
	"github.com/matchforge/tournament-engine/models"
	"github.com/matchforge/tournament-engine/repositories"
)

// Broadcaster — live-рассылка в комнату турнира. Реализуется brackets.Hub,
// в тестах подменяется заглушкой.
type Broadcaster interface {
	BroadcastToRoom(roomID, eventType string, payload interface{})
}

// PlayerProfile агрегирует статистику и историю пользователя.
type PlayerProfile struct {
	Stats   *models.PlayerStats        `json:"stats"`
	History []*models.HistoricalResult `json:"history"`
}

type StandingService struct {
	db          *sql.DB
	standings   repositories.StandingRepository
	matches     repositories.MatchRepository
	tournaments repositories.TournamentRepository
	cache       cache.Cache
	hub         Broadcaster
	activeTTL   time.Duration
	finishedTTL time.Duration
	logger      *slog.Logger
}

func NewStandingService(
	db *sql.DB,
	standings repositories.StandingRepository,
	matches repositories.MatchRepository,
	tournaments repositories.TournamentRepository,
	cacheClient cache.Cache,
	hub Broadcaster,
	activeTTL, finishedTTL time.Duration,
	logger *slog.Logger,
) *StandingService {
	if activeTTL <= 0 || activeTTL > time.Minute {
		activeTTL = time.Minute
	}
	if finishedTTL <= 0 || finishedTTL > time.Hour {
		finishedTTL = time.Hour
	}
	return &StandingService{
		db:          db,
		standings:   standings,
		matches:     matches,
		tournaments: tournaments,
		cache:       cacheClient,
		hub:         hub,
		activeTTL:   activeTTL,
		finishedTTL: finishedTTL,
		logger:      logger,
	}
}

// ApplyMatchResult инкрементально обновляет строки победителя и проигравшего
// после завершения матча и переранжирует таблицу. Вызывается внутри
// транзакции завершения матча.
func (s *StandingService) ApplyMatchResult(ctx context.Context, tx *sql.Tx, m *models.Match) error {
	if m.WinnerID == nil {
		return fmt.Errorf("%w: completed match %d has no winner", ErrIntegrityViolation, m.ID)
	}
	winnerID := *m.WinnerID
	loserID := m.OpponentOf(winnerID)

	winScore, loseScore := m.ScoreP1, m.ScoreP2
	if m.Participant2ID != nil && *m.Participant2ID == winnerID {
		winScore, loseScore = m.ScoreP2, m.ScoreP1
	}

	winner, err := s.standings.GetOrCreate(ctx, tx, m.TournamentID, winnerID, 0, nil)
	if err != nil {
		return fmt.Errorf("failed to load winner standing: %w", err)
	}
	applyWin(winner, winScore, loseScore)
	if err := s.standings.Update(ctx, tx, winner); err != nil {
		return fmt.Errorf("failed to update winner standing: %w", err)
	}

	if loserID != nil {
		loser, err := s.standings.GetOrCreate(ctx, tx, m.TournamentID, *loserID, 0, nil)
		if err != nil {
			return fmt.Errorf("failed to load loser standing: %w", err)
		}
		applyLoss(loser, loseScore, winScore)
		if err := s.standings.Update(ctx, tx, loser); err != nil {
			return fmt.Errorf("failed to update loser standing: %w", err)
		}
	}

	if m.Type == models.MatchTypeSwiss {
		if err := s.updateTiebreakers(ctx, tx, m.TournamentID); err != nil {
			return err
		}
	}
	return s.Rerank(ctx, tx, m.TournamentID)
}

func applyWin(st *models.Standing, scoreFor, scoreAgainst int) {
	st.Wins++
	st.MatchesPlayed++
	st.GamesWon += scoreFor
	st.GamesLost += scoreAgainst
	st.Points += 3
	if st.StreakType == models.StreakTypeWin {
		st.CurrentStreak++
	} else {
		st.CurrentStreak = 1
	}
	st.StreakType = models.StreakTypeWin
	if st.CurrentStreak > st.LongestWinStreak {
		st.LongestWinStreak = st.CurrentStreak
	}
	st.RecomputeWinRate()
}

func applyLoss(st *models.Standing, scoreFor, scoreAgainst int) {
	st.Losses++
	st.MatchesPlayed++
	st.GamesWon += scoreFor
	st.GamesLost += scoreAgainst
	if st.StreakType == models.StreakTypeLoss {
		st.CurrentStreak++
	} else {
		st.CurrentStreak = 1
	}
	st.StreakType = models.StreakTypeLoss
	st.RecomputeWinRate()
}

// Rerank сортирует таблицу семиступенчатым компаратором и проставляет
// плотные ранги 1..n. Личные встречи разрешаются попарно внутри групп,
// совпавших по предыдущим критериям; круговая ничья проваливается к сиду.
func (s *StandingService) Rerank(ctx context.Context, tx *sql.Tx, tournamentID int) error {
	standings, err := s.standings.ListByTournament(ctx, tx, tournamentID, false)
	if err != nil {
		return fmt.Errorf("failed to list standings for rerank: %w", err)
	}
	if len(standings) == 0 {
		return nil
	}

	completed := models.MatchStatusCompleted
	matches, err := s.matches.ListByTournament(ctx, tx, tournamentID, repositories.ListMatchesFilter{Status: &completed})
	if err != nil {
		return fmt.Errorf("failed to list completed matches for rerank: %w", err)
	}
	h2h := buildHeadToHead(matches)

	SortStandings(standings, h2h)

	for i, st := range standings {
		rank := i + 1
		if st.Rank == rank {
			continue
		}
		if err := s.standings.UpdateRank(ctx, tx, st.ID, rank); err != nil {
			return fmt.Errorf("failed to update rank: %w", err)
		}
		st.Rank = rank
	}
	return nil
}

// buildHeadToHead собирает победы в личных встречах по завершённым матчам.
func buildHeadToHead(matches []*models.Match) map[matchKey]int {
	h2h := make(map[matchKey]int)
	for _, m := range matches {
		if m.WinnerID == nil {
			continue
		}
		loser := m.OpponentOf(*m.WinnerID)
		if loser == nil {
			continue
		}
		if *m.WinnerID < *loser {
			h2h[matchKey{a: *m.WinnerID, b: *loser}]++
		} else {
			h2h[matchKey{a: *loser, b: *m.WinnerID}]--
		}
	}
	return h2h
}

// h2hAdvantage возвращает >0, если a выигрывал у b чаще, чем наоборот.
func h2hAdvantage(h2h map[matchKey]int, a, b int) int {
	if a < b {
		return h2h[matchKey{a: a, b: b}]
	}
	return -h2h[matchKey{a: b, b: a}]
}

// SortStandings упорядочивает таблицу: points, wins, buchholz, разница игр,
// выигранные игры, личные встречи (попарно, только внутри полностью
// совпавшей группы), сид.
func SortStandings(standings []*models.Standing, h2h map[matchKey]int) {
	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.BuchholzScore != b.BuchholzScore {
			return a.BuchholzScore > b.BuchholzScore
		}
		if a.GameDifference() != b.GameDifference() {
			return a.GameDifference() > b.GameDifference()
		}
		if a.GamesWon != b.GamesWon {
			return a.GamesWon > b.GamesWon
		}
		if adv := h2hAdvantage(h2h, a.ParticipantID, b.ParticipantID); adv != 0 {
			return adv > 0
		}
		return a.Seed < b.Seed
	})
}

// updateTiebreakers пересчитывает buchholz и opponent_win_rate по
// завершённым матчам каждого участника.
func (s *StandingService) updateTiebreakers(ctx context.Context, tx *sql.Tx, tournamentID int) error {
	standings, err := s.standings.ListByTournament(ctx, tx, tournamentID, false)
	if err != nil {
		return err
	}
	completed := models.MatchStatusCompleted
	matches, err := s.matches.ListByTournament(ctx, tx, tournamentID, repositories.ListMatchesFilter{Status: &completed})
	if err != nil {
		return err
	}

	byParticipant := make(map[int]*models.Standing, len(standings))
	for _, st := range standings {
		byParticipant[st.ParticipantID] = st
	}
	opponents := make(map[int][]int)
	for _, m := range matches {
		if m.Participant1ID == nil || m.Participant2ID == nil {
			continue
		}
		opponents[*m.Participant1ID] = append(opponents[*m.Participant1ID], *m.Participant2ID)
		opponents[*m.Participant2ID] = append(opponents[*m.Participant2ID], *m.Participant1ID)
	}

	for _, st := range standings {
		opps := opponents[st.ParticipantID]
		buchholz := 0
		var rateSum float64
		rated := 0
		for _, oppID := range opps {
			opp, ok := byParticipant[oppID]
			if !ok {
				continue
			}
			buchholz += opp.Points
			rateSum += opp.WinRate
			rated++
		}
		oppRate := 0.0
		if rated > 0 {
			oppRate = rateSum / float64(rated)
		}
		if st.BuchholzScore == buchholz && st.OpponentWinRate == oppRate {
			continue
		}
		st.BuchholzScore = buchholz
		st.OpponentWinRate = oppRate
		if err := s.standings.Update(ctx, tx, st); err != nil {
			return fmt.Errorf("failed to update tiebreakers: %w", err)
		}
	}
	return nil
}

// UpdateBuchholz — явный пересчёт тай-брейкеров с инвалидацией кэша.
func (s *StandingService) UpdateBuchholz(ctx context.Context, tournamentID int) error {
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.updateTiebreakers(ctx, tx, tournamentID); err != nil {
			return err
		}
		return s.Rerank(ctx, tx, tournamentID)
	})
	if err != nil {
		return err
	}
	s.Invalidate(ctx, tournamentID)
	return nil
}

// Recalculate восстанавливает все строки standings из лога завершённых
// матчей: счётчики обнуляются и матчи переигрываются в порядке завершения.
// Идемпотентен: повторный вызов даёт идентичный результат.
func (s *StandingService) Recalculate(ctx context.Context, tournamentID int) error {
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.standings.ResetCounters(ctx, tx, tournamentID); err != nil {
			return fmt.Errorf("failed to reset standings: %w", err)
		}

		all, err := s.matches.ListByTournament(ctx, tx, tournamentID, repositories.ListMatchesFilter{})
		if err != nil {
			return err
		}
		// Форфейты учитываются наравне с обычными победами.
		matches := all[:0]
		for _, m := range all {
			if m.WinnerID != nil && (m.Status == models.MatchStatusCompleted || m.Status == models.MatchStatusForfeit) {
				matches = append(matches, m)
			}
		}
		sort.SliceStable(matches, func(i, j int) bool {
			ti, tj := matches[i].CompletedAt, matches[j].CompletedAt
			switch {
			case ti == nil && tj == nil:
				return matches[i].ID < matches[j].ID
			case ti == nil:
				return true
			case tj == nil:
				return false
			case ti.Equal(*tj):
				return matches[i].ID < matches[j].ID
			default:
				return ti.Before(*tj)
			}
		})

		standingsByParticipant := make(map[int]*models.Standing)
		loadStanding := func(participantID int) (*models.Standing, error) {
			if st, ok := standingsByParticipant[participantID]; ok {
				return st, nil
			}
			st, err := s.standings.GetOrCreate(ctx, tx, tournamentID, participantID, 0, nil)
			if err != nil {
				return nil, err
			}
			standingsByParticipant[participantID] = st
			return st, nil
		}

		for _, m := range matches {
			if m.WinnerID == nil {
				continue
			}
			winnerID := *m.WinnerID
			loserID := m.OpponentOf(winnerID)
			winScore, loseScore := m.ScoreP1, m.ScoreP2
			if m.Participant2ID != nil && *m.Participant2ID == winnerID {
				winScore, loseScore = m.ScoreP2, m.ScoreP1
			}

			winner, err := loadStanding(winnerID)
			if err != nil {
				return err
			}
			applyWin(winner, winScore, loseScore)
			if loserID != nil {
				loser, err := loadStanding(*loserID)
				if err != nil {
					return err
				}
				applyLoss(loser, loseScore, winScore)
			}
		}

		for _, st := range standingsByParticipant {
			if err := s.standings.Update(ctx, tx, st); err != nil {
				return fmt.Errorf("failed to persist recalculated standing: %w", err)
			}
		}

		if err := s.updateTiebreakers(ctx, tx, tournamentID); err != nil {
			return err
		}
		return s.Rerank(ctx, tx, tournamentID)
	})
	if err != nil {
		return err
	}
	s.Invalidate(ctx, tournamentID)
	s.logger.Info("standings recalculated", "tournament_id", tournamentID)
	return nil
}

// Leaderboard — постраничный турнирный лидерборд с read-through кэшем.
// Ошибки кэша деградируют в прямое чтение из базы.
func (s *StandingService) Leaderboard(ctx context.Context, tournamentID int, opts repositories.LeaderboardQueryOptions) ([]*models.Standing, error) {
	t, err := getTournamentOrFail(ctx, s.tournaments, tournamentID)
	if err != nil {
		return nil, err
	}
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 25
	}
	if opts.SortBy == "" {
		opts.SortBy = "rank"
	}
	if opts.Order == "" {
		opts.Order = "asc"
	}
	page := opts.Offset/opts.Limit + 1
	key := cache.TournamentLeaderboardKey(tournamentID, page, opts.Limit, opts.SortBy, opts.Order)

	if raw, cacheErr := s.cache.Get(ctx, key); cacheErr == nil {
		var cached []*models.Standing
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			metrics.CacheHits.Inc()
			return cached, nil
		}
	} else if !errors.Is(cacheErr, cache.ErrCacheMiss) {
		s.logger.Warn("leaderboard cache read failed", "key", key, "error", cacheErr)
	}
	metrics.CacheMisses.Inc()

	standings, err := s.standings.ListLeaderboard(ctx, tournamentID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}

	ttl := s.activeTTL
	if t.Status == models.TournamentStatusCompleted {
		ttl = s.finishedTTL
	}
	if raw, jsonErr := json.Marshal(standings); jsonErr == nil {
		if cacheErr := s.cache.Set(ctx, key, string(raw), ttl); cacheErr != nil {
			s.logger.Warn("leaderboard cache write failed", "key", key, "error", cacheErr)
		}
	}
	return standings, nil
}

// GlobalLeaderboard — агрегат по пользователям с фильтрами игры, региона
// и окна времени; тоже за read-through кэшем.
func (s *StandingService) GlobalLeaderboard(ctx context.Context, filter repositories.GlobalLeaderboardFilter) ([]*models.GlobalLeaderboardEntry, error) {
	if filter.Timeframe == "" {
		filter.Timeframe = models.TimeframeAll
	}
	if !filter.Timeframe.IsValid() {
		return nil, fmt.Errorf("%w: timeframe %q", ErrValidationFailed, filter.Timeframe)
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 25
	}

	key := cache.GlobalLeaderboardKey(derefString(filter.GameID), derefString(filter.Region), string(filter.Timeframe), filter.Limit, filter.Offset)
	if raw, cacheErr := s.cache.Get(ctx, key); cacheErr == nil {
		var cached []*models.GlobalLeaderboardEntry
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			metrics.CacheHits.Inc()
			return cached, nil
		}
	} else if !errors.Is(cacheErr, cache.ErrCacheMiss) {
		s.logger.Warn("global leaderboard cache read failed", "key", key, "error", cacheErr)
	}
	metrics.CacheMisses.Inc()

	entries, err := s.standings.GlobalLeaderboard(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query global leaderboard: %w", err)
	}
	if raw, jsonErr := json.Marshal(entries); jsonErr == nil {
		if cacheErr := s.cache.Set(ctx, key, string(raw), s.activeTTL); cacheErr != nil {
			s.logger.Warn("global leaderboard cache write failed", "key", key, "error", cacheErr)
		}
	}
	return entries, nil
}

// PlayerProfile грузит статистику и историю пользователя параллельно.
func (s *StandingService) PlayerProfile(ctx context.Context, userID int) (*PlayerProfile, error) {
	profile := &PlayerProfile{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stats, err := s.standings.GetPlayerStats(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load player stats: %w", err)
		}
		profile.Stats = stats
		return nil
	})
	g.Go(func() error {
		history, err := s.standings.ListHistoricalResults(gctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load historical results: %w", err)
		}
		profile.History = history
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return profile, nil
}

// Invalidate сносит кэшированные страницы турнира и глобального лидерборда
// и шлёт live-событие. Best-effort: ошибки только логируются.
func (s *StandingService) Invalidate(ctx context.Context, tournamentID int) {
	if err := s.cache.DeletePrefix(ctx, cache.TournamentLeaderboardPrefix(tournamentID)); err != nil {
		s.logger.Warn("failed to invalidate tournament leaderboard cache", "tournament_id", tournamentID, "error", err)
	}
	if err := s.cache.DeletePrefix(ctx, cache.GlobalLeaderboardPrefix()); err != nil {
		s.logger.Warn("failed to invalidate global leaderboard cache", "error", err)
	}
	if s.hub != nil {
		s.hub.BroadcastToRoom(brackets.TournamentRoom(tournamentID), brackets.EventStandingsUpdated,
			map[string]interface{}{"tournament_id": tournamentID})
	}
}
