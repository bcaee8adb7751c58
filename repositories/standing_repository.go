package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/matchforge/tournament-engine/models"
)

var (
	ErrStandingNotFound           = errors.New("standing not found")
	ErrStandingConflict           = errors.New("standing already exists for this participant")
	ErrStandingParticipantInvalid = errors.New("standing participant conflict or invalid")
	ErrStandingTournamentInvalid  = errors.New("standing tournament conflict or invalid")
)

// leaderboardSortColumns — белый список сортировок лидерборда (ключ = API-параметр).
var leaderboardSortColumns = map[string]string{
	"rank":     "rank",
	"points":   "points",
	"wins":     "wins",
	"win_rate": "win_rate",
	"buchholz": "buchholz_score",
}

type LeaderboardQueryOptions struct {
	SortBy string
	Order  string
	Limit  int
	Offset int
}

type GlobalLeaderboardFilter struct {
	GameID    *string
	Region    *string
	Timeframe models.Timeframe
	Limit     int
	Offset    int
}

type StandingRepository interface {
	Create(ctx context.Context, exec SQLExecutor, standing *models.Standing) error
	GetByTournamentAndParticipant(ctx context.Context, exec SQLExecutor, tournamentID, participantID int) (*models.Standing, error)
	GetOrCreate(ctx context.Context, exec SQLExecutor, tournamentID, participantID, seed int, teamID *int) (*models.Standing, error)
	Update(ctx context.Context, exec SQLExecutor, standing *models.Standing) error
	UpdateRank(ctx context.Context, exec SQLExecutor, id, rank int) error
	UpdateSeed(ctx context.Context, exec SQLExecutor, tournamentID, participantID, seed int) error
	SetFinalPlacement(ctx context.Context, exec SQLExecutor, id, placement int) error
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, sortByRank bool) ([]*models.Standing, error)
	ListLeaderboard(ctx context.Context, tournamentID int, opts LeaderboardQueryOptions) ([]*models.Standing, error)
	ResetCounters(ctx context.Context, exec SQLExecutor, tournamentID int) error
	DeleteByParticipant(ctx context.Context, exec SQLExecutor, tournamentID, participantID int) error
	DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error
	GlobalLeaderboard(ctx context.Context, filter GlobalLeaderboardFilter) ([]*models.GlobalLeaderboardEntry, error)
	GetPlayerStats(ctx context.Context, userID int) (*models.PlayerStats, error)
	ListHistoricalResults(ctx context.Context, userID int) ([]*models.HistoricalResult, error)
}

type postgresStandingRepository struct {
	db *sql.DB
}

func NewPostgresStandingRepository(db *sql.DB) StandingRepository {
	return &postgresStandingRepository{db: db}
}

func (r *postgresStandingRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const standingSelectColumns = `
	id, tournament_id, participant_id, team_id, seed, rank,
	points, wins, losses, draws, matches_played,
	games_won, games_lost, rounds_won, rounds_lost,
	win_rate, buchholz_score, opponent_win_rate, head_to_head_wins,
	current_streak, streak_type, longest_win_streak,
	is_eliminated, eliminated_in_round, eliminated_by, is_disqualified, final_placement,
	created_at, updated_at`

func (r *postgresStandingRepository) scanStanding(rowScanner interface{ Scan(...interface{}) error }) (*models.Standing, error) {
	var s models.Standing
	err := rowScanner.Scan(
		&s.ID, &s.TournamentID, &s.ParticipantID, &s.TeamID, &s.Seed, &s.Rank,
		&s.Points, &s.Wins, &s.Losses, &s.Draws, &s.MatchesPlayed,
		&s.GamesWon, &s.GamesLost, &s.RoundsWon, &s.RoundsLost,
		&s.WinRate, &s.BuchholzScore, &s.OpponentWinRate, &s.HeadToHeadWins,
		&s.CurrentStreak, &s.StreakType, &s.LongestWinStreak,
		&s.IsEliminated, &s.EliminatedInRound, &s.EliminatedBy, &s.IsDisqualified, &s.FinalPlacement,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStandingNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *postgresStandingRepository) Create(ctx context.Context, exec SQLExecutor, s *models.Standing) error {
	executor := r.getExecutor(exec)
	if s.StreakType == "" {
		s.StreakType = models.StreakTypeNone
	}
	query := `
		INSERT INTO standings (tournament_id, participant_id, team_id, seed, streak_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	err := executor.QueryRowContext(ctx, query,
		s.TournamentID, s.ParticipantID, s.TeamID, s.Seed, s.StreakType,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	return r.handleStandingError(err)
}

func (r *postgresStandingRepository) GetByTournamentAndParticipant(ctx context.Context, exec SQLExecutor, tournamentID, participantID int) (*models.Standing, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + standingSelectColumns + `
		FROM standings
		WHERE tournament_id = $1 AND participant_id = $2`
	row := executor.QueryRowContext(ctx, query, tournamentID, participantID)
	return r.scanStanding(row)
}

func (r *postgresStandingRepository) GetOrCreate(ctx context.Context, exec SQLExecutor, tournamentID, participantID, seed int, teamID *int) (*models.Standing, error) {
	executor := r.getExecutor(exec)
	standing, err := r.GetByTournamentAndParticipant(ctx, executor, tournamentID, participantID)
	if err != nil {
		if errors.Is(err, ErrStandingNotFound) {
			newStanding := &models.Standing{
				TournamentID:  tournamentID,
				ParticipantID: participantID,
				TeamID:        teamID,
				Seed:          seed,
				StreakType:    models.StreakTypeNone,
			}
			if createErr := r.Create(ctx, executor, newStanding); createErr != nil {
				return nil, fmt.Errorf("failed to create standing for t:%d p:%d: %w", tournamentID, participantID, createErr)
			}
			return newStanding, nil
		}
		return nil, fmt.Errorf("failed to get standing for t:%d p:%d: %w", tournamentID, participantID, err)
	}
	return standing, nil
}

func (r *postgresStandingRepository) Update(ctx context.Context, exec SQLExecutor, s *models.Standing) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE standings SET
			team_id = $1, seed = $2, rank = $3,
			points = $4, wins = $5, losses = $6, draws = $7, matches_played = $8,
			games_won = $9, games_lost = $10, rounds_won = $11, rounds_lost = $12,
			win_rate = $13, buchholz_score = $14, opponent_win_rate = $15, head_to_head_wins = $16,
			current_streak = $17, streak_type = $18, longest_win_streak = $19,
			is_eliminated = $20, eliminated_in_round = $21, eliminated_by = $22,
			is_disqualified = $23, final_placement = $24,
			updated_at = NOW()
		WHERE id = $25`

	result, err := executor.ExecContext(ctx, query,
		s.TeamID, s.Seed, s.Rank,
		s.Points, s.Wins, s.Losses, s.Draws, s.MatchesPlayed,
		s.GamesWon, s.GamesLost, s.RoundsWon, s.RoundsLost,
		s.WinRate, s.BuchholzScore, s.OpponentWinRate, s.HeadToHeadWins,
		s.CurrentStreak, s.StreakType, s.LongestWinStreak,
		s.IsEliminated, s.EliminatedInRound, s.EliminatedBy,
		s.IsDisqualified, s.FinalPlacement,
		s.ID,
	)
	if err != nil {
		return r.handleStandingError(err)
	}
	return checkAffectedRows(result, ErrStandingNotFound)
}

func (r *postgresStandingRepository) UpdateRank(ctx context.Context, exec SQLExecutor, id, rank int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE standings SET rank = $1, updated_at = NOW() WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, rank, id)
	if err != nil {
		return fmt.Errorf("failed to update standing rank: %w", err)
	}
	return checkAffectedRows(result, ErrStandingNotFound)
}

func (r *postgresStandingRepository) UpdateSeed(ctx context.Context, exec SQLExecutor, tournamentID, participantID, seed int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE standings SET seed = $1, updated_at = NOW() WHERE tournament_id = $2 AND participant_id = $3`
	result, err := executor.ExecContext(ctx, query, seed, tournamentID, participantID)
	if err != nil {
		return fmt.Errorf("failed to update standing seed: %w", err)
	}
	return checkAffectedRows(result, ErrStandingNotFound)
}

func (r *postgresStandingRepository) SetFinalPlacement(ctx context.Context, exec SQLExecutor, id, placement int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE standings SET final_placement = $1, updated_at = NOW() WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, placement, id)
	if err != nil {
		return fmt.Errorf("failed to set final placement: %w", err)
	}
	return checkAffectedRows(result, ErrStandingNotFound)
}

func (r *postgresStandingRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, sortByRank bool) ([]*models.Standing, error) {
	executor := r.getExecutor(exec)
	queryBuilder := strings.Builder{}
	queryBuilder.WriteString(`SELECT` + standingSelectColumns + ` FROM standings`)
	queryBuilder.WriteString(" WHERE tournament_id = $1")

	if sortByRank {
		queryBuilder.WriteString(" ORDER BY rank ASC, seed ASC, participant_id ASC")
	} else {
		queryBuilder.WriteString(" ORDER BY participant_id ASC")
	}

	rows, err := executor.QueryContext(ctx, queryBuilder.String(), tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	standings := make([]*models.Standing, 0)
	for rows.Next() {
		s, errScan := r.scanStanding(rows)
		if errScan != nil {
			return nil, errScan
		}
		standings = append(standings, s)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return standings, nil
}

// ListLeaderboard — страница лидерборда с сортировкой по белому списку колонок.
func (r *postgresStandingRepository) ListLeaderboard(ctx context.Context, tournamentID int, opts LeaderboardQueryOptions) ([]*models.Standing, error) {
	executor := r.getExecutor(nil)

	column, ok := leaderboardSortColumns[opts.SortBy]
	if !ok {
		column = "rank"
	}
	direction := "ASC"
	if strings.EqualFold(opts.Order, "desc") {
		direction = "DESC"
	}

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT` + standingSelectColumns + ` FROM standings WHERE tournament_id = $1`)
	queryBuilder.WriteString(" ORDER BY " + column + " " + direction + ", participant_id ASC")

	args := []interface{}{tournamentID}
	placeholderIndex := 2
	if opts.Limit > 0 {
		queryBuilder.WriteString(" LIMIT $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, opts.Limit)
		placeholderIndex++
	}
	if opts.Offset > 0 {
		queryBuilder.WriteString(" OFFSET $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, opts.Offset)
	}

	rows, err := executor.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	standings := make([]*models.Standing, 0)
	for rows.Next() {
		s, errScan := r.scanStanding(rows)
		if errScan != nil {
			return nil, errScan
		}
		standings = append(standings, s)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return standings, nil
}

// ResetCounters обнуляет игровые счётчики всех строк турнира (bracket reset).
// Дисквалификация не снимается.
func (r *postgresStandingRepository) ResetCounters(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE standings SET
			rank = 0, points = 0, wins = 0, losses = 0, draws = 0, matches_played = 0,
			games_won = 0, games_lost = 0, rounds_won = 0, rounds_lost = 0,
			win_rate = 0, buchholz_score = 0, opponent_win_rate = 0, head_to_head_wins = 0,
			current_streak = 0, streak_type = $2, longest_win_streak = 0,
			is_eliminated = FALSE, eliminated_in_round = NULL, eliminated_by = NULL,
			final_placement = NULL,
			updated_at = NOW()
		WHERE tournament_id = $1`
	_, err := executor.ExecContext(ctx, query, tournamentID, models.StreakTypeNone)
	if err != nil {
		return fmt.Errorf("failed to reset standings for tournament %d: %w", tournamentID, err)
	}
	return nil
}

func (r *postgresStandingRepository) DeleteByParticipant(ctx context.Context, exec SQLExecutor, tournamentID, participantID int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM standings WHERE tournament_id = $1 AND participant_id = $2`
	_, err := executor.ExecContext(ctx, query, tournamentID, participantID)
	return err
}

func (r *postgresStandingRepository) DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM standings WHERE tournament_id = $1`
	_, err := executor.ExecContext(ctx, query, tournamentID)
	return err
}

// GlobalLeaderboard агрегирует standings по пользователю across tournaments.
func (r *postgresStandingRepository) GlobalLeaderboard(ctx context.Context, filter GlobalLeaderboardFilter) ([]*models.GlobalLeaderboardEntry, error) {
	executor := r.getExecutor(nil)

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			r.user_id,
			MAX(r.display_name) AS display_name,
			COUNT(DISTINCT s.tournament_id) AS tournaments_played,
			COALESCE(SUM(s.points), 0) AS total_points,
			COALESCE(SUM(s.wins), 0) AS total_wins,
			COALESCE(SUM(s.losses), 0) AS total_losses,
			CASE WHEN COALESCE(SUM(s.matches_played), 0) > 0
				THEN SUM(s.wins)::float / SUM(s.matches_played)
				ELSE 0
			END AS win_rate,
			COUNT(*) FILTER (WHERE s.final_placement = 1) AS titles
		FROM standings s
		JOIN registrations r ON r.id = s.participant_id
		JOIN tournaments t ON t.id = s.tournament_id
		WHERE 1=1`)

	args := []interface{}{}
	placeholderIndex := 1

	if filter.GameID != nil {
		queryBuilder.WriteString(" AND t.game_id = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *filter.GameID)
		placeholderIndex++
	}
	if filter.Region != nil {
		queryBuilder.WriteString(" AND r.region = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *filter.Region)
		placeholderIndex++
	}
	if since := filter.Timeframe.Since(time.Now()); since != nil {
		queryBuilder.WriteString(" AND t.end_date >= $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *since)
		placeholderIndex++
	}

	queryBuilder.WriteString(" GROUP BY r.user_id")
	queryBuilder.WriteString(" ORDER BY total_points DESC, titles DESC, win_rate DESC, r.user_id ASC")

	if filter.Limit > 0 {
		queryBuilder.WriteString(" LIMIT $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, filter.Limit)
		placeholderIndex++
	}
	if filter.Offset > 0 {
		queryBuilder.WriteString(" OFFSET $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, filter.Offset)
	}

	rows, err := executor.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query global leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.GlobalLeaderboardEntry, 0)
	for rows.Next() {
		var e models.GlobalLeaderboardEntry
		if scanErr := rows.Scan(
			&e.UserID, &e.DisplayName, &e.TournamentsPlayed,
			&e.TotalPoints, &e.TotalWins, &e.TotalLosses, &e.WinRate, &e.Titles,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan global leaderboard row: %w", scanErr)
		}
		entries = append(entries, &e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during global leaderboard iteration: %w", err)
	}
	return entries, nil
}

func (r *postgresStandingRepository) GetPlayerStats(ctx context.Context, userID int) (*models.PlayerStats, error) {
	executor := r.getExecutor(nil)
	query := `
		SELECT
			COUNT(DISTINCT s.tournament_id),
			COUNT(*) FILTER (WHERE s.final_placement = 1),
			COALESCE(SUM(s.matches_played), 0),
			COALESCE(SUM(s.wins), 0),
			COALESCE(SUM(s.losses), 0),
			COALESCE(SUM(s.draws), 0),
			CASE WHEN COALESCE(SUM(s.matches_played), 0) > 0
				THEN SUM(s.wins)::float / SUM(s.matches_played)
				ELSE 0
			END,
			COALESCE(MAX(s.longest_win_streak), 0),
			MIN(s.final_placement)
		FROM standings s
		JOIN registrations r ON r.id = s.participant_id
		WHERE r.user_id = $1`

	stats := &models.PlayerStats{UserID: userID}
	err := executor.QueryRowContext(ctx, query, userID).Scan(
		&stats.TournamentsPlayed, &stats.TournamentsWon,
		&stats.MatchesPlayed, &stats.Wins, &stats.Losses, &stats.Draws,
		&stats.WinRate, &stats.LongestWinStreak, &stats.BestPlacement,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get player stats for user %d: %w", userID, err)
	}
	return stats, nil
}

func (r *postgresStandingRepository) ListHistoricalResults(ctx context.Context, userID int) ([]*models.HistoricalResult, error) {
	executor := r.getExecutor(nil)
	query := `
		SELECT t.id, t.name, t.game_id, t.format, t.end_date,
		       s.final_placement, s.rank, s.points, s.wins, s.losses, s.draws
		FROM standings s
		JOIN registrations r ON r.id = s.participant_id
		JOIN tournaments t ON t.id = s.tournament_id
		WHERE r.user_id = $1 AND t.status = $2
		ORDER BY t.end_date DESC NULLS LAST, t.id DESC`

	rows, err := executor.QueryContext(ctx, query, userID, models.TournamentStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to query historical results for user %d: %w", userID, err)
	}
	defer rows.Close()

	results := make([]*models.HistoricalResult, 0)
	for rows.Next() {
		var h models.HistoricalResult
		if scanErr := rows.Scan(
			&h.TournamentID, &h.TournamentName, &h.GameID, &h.Format, &h.EndDate,
			&h.FinalPlacement, &h.Rank, &h.Points, &h.Wins, &h.Losses, &h.Draws,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan historical result row: %w", scanErr)
		}
		results = append(results, &h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during historical results iteration: %w", err)
	}
	return results, nil
}

func (r *postgresStandingRepository) handleStandingError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "standings_tournament_id_participant_id_key" {
				return ErrStandingConflict
			}
		case "23503":
			switch pqErr.Constraint {
			case "standings_participant_id_fkey":
				return ErrStandingParticipantInvalid
			case "standings_tournament_id_fkey":
				return ErrStandingTournamentInvalid
			}
		}
	}
	return err
}
