package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/matchforge/tournament-engine/models"
)

var (
	ErrMatchNotFound           = errors.New("match not found")
	ErrMatchVersionConflict    = errors.New("match version conflict")
	ErrMatchNumberConflict     = errors.New("match number conflict within bracket round")
	ErrMatchTournamentInvalid  = errors.New("match tournament conflict or invalid")
	ErrMatchBracketInvalid     = errors.New("match bracket conflict or invalid")
	ErrMatchParticipantInvalid = errors.New("match participant conflict or invalid")
	ErrMatchLinkInvalid        = errors.New("match forward link conflict or invalid")
)

type ListMatchesFilter struct {
	BracketID     *int
	Round         *int
	Status        *models.MatchStatus
	Type          *models.MatchType
	ParticipantID *int
}

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, filter ListMatchesFilter) ([]*models.Match, error)
	ListActiveByParticipant(ctx context.Context, exec SQLExecutor, tournamentID, participantID int) ([]*models.Match, error)
	Update(ctx context.Context, exec SQLExecutor, match *models.Match) error
	UpdateForwardLinks(ctx context.Context, exec SQLExecutor, matchID int, nextMatchID, loserNextMatchID *int) error
	GetBracketProgress(ctx context.Context, exec SQLExecutor, bracketID int) (total, finished int, err error)
	DeleteByBracket(ctx context.Context, exec SQLExecutor, bracketID int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchSelectColumns = `
	id, tournament_id, bracket_id, round, match_number, type, status,
	participant1_id, participant1_name, participant1_seed,
	participant2_id, participant2_name, participant2_seed,
	score_p1, score_p2, winner_id, loser_id,
	p1_confirmed, p2_confirmed, p1_checked_in, p2_checked_in, p1_checked_in_at, p2_checked_in_at,
	scheduled_at, started_at, completed_at,
	server_id, lobby_code, stream_url,
	next_match_id, loser_next_match_id,
	dispute_reason, disputed_by, disputed_at,
	override_reason, overridden_by, overridden_at,
	is_bye, best_of, games_played, game_stats,
	version, metadata, created_at, updated_at`

func (r *postgresMatchRepository) scanMatch(rowScanner interface{ Scan(...interface{}) error }) (*models.Match, error) {
	var m models.Match
	err := rowScanner.Scan(
		&m.ID, &m.TournamentID, &m.BracketID, &m.Round, &m.MatchNumber, &m.Type, &m.Status,
		&m.Participant1ID, &m.Participant1Name, &m.Participant1Seed,
		&m.Participant2ID, &m.Participant2Name, &m.Participant2Seed,
		&m.ScoreP1, &m.ScoreP2, &m.WinnerID, &m.LoserID,
		&m.P1Confirmed, &m.P2Confirmed, &m.P1CheckedIn, &m.P2CheckedIn, &m.P1CheckedInAt, &m.P2CheckedInAt,
		&m.ScheduledAt, &m.StartedAt, &m.CompletedAt,
		&m.ServerID, &m.LobbyCode, &m.StreamURL,
		&m.NextMatchID, &m.LoserNextMatchID,
		&m.DisputeReason, &m.DisputedBy, &m.DisputedAt,
		&m.OverrideReason, &m.OverriddenBy, &m.OverriddenAt,
		&m.IsBye, &m.BestOf, &m.GamesPlayed, &m.GameStats,
		&m.Version, &m.Metadata, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO matches (
			tournament_id, bracket_id, round, match_number, type, status,
			participant1_id, participant1_name, participant1_seed,
			participant2_id, participant2_name, participant2_seed,
			score_p1, score_p2, winner_id, loser_id,
			scheduled_at, completed_at, next_match_id, loser_next_match_id,
			is_bye, best_of, games_played, game_stats, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
		)
		RETURNING id, version, created_at, updated_at`

	err := executor.QueryRowContext(ctx, query,
		m.TournamentID, m.BracketID, m.Round, m.MatchNumber, m.Type, m.Status,
		m.Participant1ID, m.Participant1Name, m.Participant1Seed,
		m.Participant2ID, m.Participant2Name, m.Participant2Seed,
		m.ScoreP1, m.ScoreP2, m.WinnerID, m.LoserID,
		m.ScheduledAt, m.CompletedAt, m.NextMatchID, m.LoserNextMatchID,
		m.IsBye, m.BestOf, m.GamesPlayed, m.GameStats, m.Metadata,
	).Scan(&m.ID, &m.Version, &m.CreatedAt, &m.UpdatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	executor := r.getExecutor(nil)
	query := `SELECT` + matchSelectColumns + ` FROM matches WHERE id = $1`
	row := executor.QueryRowContext(ctx, query, id)
	return r.scanMatch(row)
}

// GetForUpdate блокирует строку матча; вызывать только внутри транзакции.
func (r *postgresMatchRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchSelectColumns + ` FROM matches WHERE id = $1 FOR UPDATE`
	row := executor.QueryRowContext(ctx, query, id)
	return r.scanMatch(row)
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, filter ListMatchesFilter) ([]*models.Match, error) {
	executor := r.getExecutor(exec)
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT` + matchSelectColumns + `
		FROM matches
		WHERE tournament_id = $1`)

	args := []interface{}{tournamentID}
	placeholderIndex := 2

	if filter.BracketID != nil {
		queryBuilder.WriteString(" AND bracket_id = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *filter.BracketID)
		placeholderIndex++
	}
	if filter.Round != nil {
		queryBuilder.WriteString(" AND round = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *filter.Round)
		placeholderIndex++
	}
	if filter.Status != nil {
		queryBuilder.WriteString(" AND status = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *filter.Status)
		placeholderIndex++
	}
	if filter.Type != nil {
		queryBuilder.WriteString(" AND type = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *filter.Type)
		placeholderIndex++
	}
	if filter.ParticipantID != nil {
		queryBuilder.WriteString(" AND (participant1_id = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		queryBuilder.WriteString(" OR participant2_id = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		queryBuilder.WriteString(")")
		args = append(args, *filter.ParticipantID)
		placeholderIndex++
	}

	queryBuilder.WriteString(" ORDER BY bracket_id ASC, round ASC, match_number ASC, id ASC")

	rows, err := executor.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, scanErr := r.scanMatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

// ListActiveByParticipant возвращает незавершённые матчи участника (для дисквалификации).
func (r *postgresMatchRepository) ListActiveByParticipant(ctx context.Context, exec SQLExecutor, tournamentID, participantID int) ([]*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchSelectColumns + `
		FROM matches
		WHERE tournament_id = $1
		AND (participant1_id = $2 OR participant2_id = $2)
		AND status NOT IN ($3, $4, $5)
		ORDER BY round ASC, match_number ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID, participantID,
		models.MatchStatusCompleted, models.MatchStatusForfeit, models.MatchStatusCanceled)
	if err != nil {
		return nil, fmt.Errorf("failed to query active matches for participant %d: %w", participantID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, scanErr := r.scanMatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan active match row: %w", scanErr)
		}
		matches = append(matches, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during active match rows iteration: %w", err)
	}
	return matches, nil
}

// Update перезаписывает изменяемые поля матча с оптимистичной блокировкой:
// строка обновляется только при совпадении version, иначе ErrMatchVersionConflict.
// Forward-связи меняются отдельным UpdateForwardLinks.
func (r *postgresMatchRepository) Update(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches SET
			status = $1,
			participant1_id = $2,
			participant1_name = $3,
			participant1_seed = $4,
			participant2_id = $5,
			participant2_name = $6,
			participant2_seed = $7,
			score_p1 = $8,
			score_p2 = $9,
			winner_id = $10,
			loser_id = $11,
			p1_confirmed = $12,
			p2_confirmed = $13,
			p1_checked_in = $14,
			p2_checked_in = $15,
			p1_checked_in_at = $16,
			p2_checked_in_at = $17,
			scheduled_at = $18,
			started_at = $19,
			completed_at = $20,
			server_id = $21,
			lobby_code = $22,
			stream_url = $23,
			dispute_reason = $24,
			disputed_by = $25,
			disputed_at = $26,
			override_reason = $27,
			overridden_by = $28,
			overridden_at = $29,
			best_of = $30,
			games_played = $31,
			game_stats = $32,
			metadata = $33,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $34 AND version = $35
		RETURNING version, updated_at`

	err := executor.QueryRowContext(ctx, query,
		m.Status,
		m.Participant1ID, m.Participant1Name, m.Participant1Seed,
		m.Participant2ID, m.Participant2Name, m.Participant2Seed,
		m.ScoreP1, m.ScoreP2, m.WinnerID, m.LoserID,
		m.P1Confirmed, m.P2Confirmed, m.P1CheckedIn, m.P2CheckedIn, m.P1CheckedInAt, m.P2CheckedInAt,
		m.ScheduledAt, m.StartedAt, m.CompletedAt,
		m.ServerID, m.LobbyCode, m.StreamURL,
		m.DisputeReason, m.DisputedBy, m.DisputedAt,
		m.OverrideReason, m.OverriddenBy, m.OverriddenAt,
		m.BestOf, m.GamesPlayed, m.GameStats, m.Metadata,
		m.ID, m.Version,
	).Scan(&m.Version, &m.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMatchVersionConflict
		}
		return r.handleMatchError(err)
	}
	return nil
}

func (r *postgresMatchRepository) UpdateForwardLinks(ctx context.Context, exec SQLExecutor, matchID int, nextMatchID, loserNextMatchID *int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE matches SET next_match_id = $1, loser_next_match_id = $2, updated_at = NOW() WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, nextMatchID, loserNextMatchID, matchID)
	if err != nil {
		return fmt.Errorf("UpdateForwardLinks: failed to execute query for match %d: %w", matchID, r.handleMatchError(err))
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) GetBracketProgress(ctx context.Context, exec SQLExecutor, bracketID int) (int, int, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status IN ($2, $3, $4))
		FROM matches
		WHERE bracket_id = $1`

	var total, finished int
	err := executor.QueryRowContext(ctx, query, bracketID,
		models.MatchStatusCompleted, models.MatchStatusForfeit, models.MatchStatusCanceled,
	).Scan(&total, &finished)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get bracket %d progress: %w", bracketID, err)
	}
	return total, finished, nil
}

func (r *postgresMatchRepository) DeleteByBracket(ctx context.Context, exec SQLExecutor, bracketID int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM matches WHERE bracket_id = $1`
	_, err := executor.ExecContext(ctx, query, bracketID)
	if err != nil {
		return fmt.Errorf("failed to delete matches for bracket %d: %w", bracketID, err)
	}
	return nil
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "matches_bracket_id_round_match_number_key" {
				return ErrMatchNumberConflict
			}
		case "23503":
			switch pqErr.Constraint {
			case "matches_tournament_id_fkey":
				return ErrMatchTournamentInvalid
			case "matches_bracket_id_fkey":
				return ErrMatchBracketInvalid
			case "matches_participant1_id_fkey", "matches_participant2_id_fkey",
				"matches_winner_id_fkey", "matches_loser_id_fkey":
				return ErrMatchParticipantInvalid
			case "matches_next_match_id_fkey", "matches_loser_next_match_id_fkey":
				return ErrMatchLinkInvalid
			}
		}
	}
	return err
}
