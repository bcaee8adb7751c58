package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/matchforge/tournament-engine/models"
)

var (
	ErrTournamentNotFound         = errors.New("tournament not found")
	ErrTournamentNameConflict     = errors.New("tournament name conflict for this organizer")
	ErrTournamentInUse            = errors.New("tournament is in use (registrations/brackets exist)")
	ErrTournamentInvalidOrganizer = errors.New("invalid organizer reference")
	ErrTournamentInvalidTemplate  = errors.New("invalid template tournament reference")
)

type ListTournamentsFilter struct {
	GameID      *string
	Format      *models.TournamentFormat
	Status      *models.TournamentStatus
	Visibility  *models.TournamentVisibility
	OrganizerID *int
	Limit       int
	Offset      int
}

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	Update(ctx context.Context, exec SQLExecutor, tournament *models.Tournament) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error
	Delete(ctx context.Context, id int) error
	ListDueForTransition(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Tournament, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentSelectColumns = `
	id, name, description, game_id, format, status, visibility, registration_type,
	organizer_id, team_size, min_participants, max_participants, min_mmr, max_mmr,
	allowed_regions, require_identity_verification,
	prize_pool, prize_currency, prize_distribution, entry_fee,
	registration_start, registration_end, check_in_start, check_in_end, start_date, end_date,
	match_interval_minutes, swiss_rounds, grand_finals_reset,
	rules, stream_url, template_id, metadata, created_at, updated_at`

func (r *postgresTournamentRepository) scanTournament(rowScanner interface{ Scan(...interface{}) error }) (*models.Tournament, error) {
	var t models.Tournament
	err := rowScanner.Scan(
		&t.ID, &t.Name, &t.Description, &t.GameID, &t.Format, &t.Status, &t.Visibility, &t.RegistrationType,
		&t.OrganizerID, &t.TeamSize, &t.MinParticipants, &t.MaxParticipants, &t.MinMMR, &t.MaxMMR,
		&t.AllowedRegions, &t.RequireVerified,
		&t.PrizePool, &t.PrizeCurrency, &t.PrizeDistribution, &t.EntryFee,
		&t.RegistrationStart, &t.RegistrationEnd, &t.CheckInStart, &t.CheckInEnd, &t.StartDate, &t.EndDate,
		&t.MatchInterval, &t.SwissRounds, &t.GrandFinalsReset,
		&t.Rules, &t.StreamURL, &t.TemplateID, &t.Metadata, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	executor := r.getExecutor(nil)
	query := `
		INSERT INTO tournaments (
			name, description, game_id, format, status, visibility, registration_type,
			organizer_id, team_size, min_participants, max_participants, min_mmr, max_mmr,
			allowed_regions, require_identity_verification,
			prize_pool, prize_currency, prize_distribution, entry_fee,
			registration_start, registration_end, check_in_start, check_in_end, start_date, end_date,
			match_interval_minutes, swiss_rounds, grand_finals_reset,
			rules, stream_url, template_id, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32
		)
		RETURNING id, created_at, updated_at`

	err := executor.QueryRowContext(ctx, query,
		t.Name, t.Description, t.GameID, t.Format, t.Status, t.Visibility, t.RegistrationType,
		t.OrganizerID, t.TeamSize, t.MinParticipants, t.MaxParticipants, t.MinMMR, t.MaxMMR,
		t.AllowedRegions, t.RequireVerified,
		t.PrizePool, t.PrizeCurrency, t.PrizeDistribution, t.EntryFee,
		t.RegistrationStart, t.RegistrationEnd, t.CheckInStart, t.CheckInEnd, t.StartDate, t.EndDate,
		t.MatchInterval, t.SwissRounds, t.GrandFinalsReset,
		t.Rules, t.StreamURL, t.TemplateID, t.Metadata,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	executor := r.getExecutor(nil)
	query := `SELECT` + tournamentSelectColumns + `
		FROM tournaments
		WHERE id = $1`
	row := executor.QueryRowContext(ctx, query, id)
	return r.scanTournament(row)
}

// GetForUpdate читает турнир с блокировкой строки; вызывать только внутри транзакции.
func (r *postgresTournamentRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentSelectColumns + `
		FROM tournaments
		WHERE id = $1
		FOR UPDATE`
	row := executor.QueryRowContext(ctx, query, id)
	return r.scanTournament(row)
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	executor := r.getExecutor(nil)
	query := `SELECT` + tournamentSelectColumns + `
		FROM tournaments
		WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.GameID != nil {
		query += fmt.Sprintf(" AND game_id = $%d", argID)
		args = append(args, *filter.GameID)
		argID++
	}
	if filter.Format != nil {
		query += fmt.Sprintf(" AND format = $%d", argID)
		args = append(args, *filter.Format)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}
	if filter.Visibility != nil {
		query += fmt.Sprintf(" AND visibility = $%d", argID)
		args = append(args, *filter.Visibility)
		argID++
	}
	if filter.OrganizerID != nil {
		query += fmt.Sprintf(" AND organizer_id = $%d", argID)
		args = append(args, *filter.OrganizerID)
		argID++
	}

	query += " ORDER BY start_date DESC NULLS LAST, created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		t, scanErr := r.scanTournament(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, *t)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return tournaments, nil
}

func (r *postgresTournamentRepository) Update(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	executor := r.getExecutor(exec)
	// status меняется только через UpdateStatus, здесь не трогаем.
	query := `
		UPDATE tournaments SET
			name = $1,
			description = $2,
			game_id = $3,
			format = $4,
			visibility = $5,
			registration_type = $6,
			team_size = $7,
			min_participants = $8,
			max_participants = $9,
			min_mmr = $10,
			max_mmr = $11,
			allowed_regions = $12,
			require_identity_verification = $13,
			prize_pool = $14,
			prize_currency = $15,
			prize_distribution = $16,
			entry_fee = $17,
			registration_start = $18,
			registration_end = $19,
			check_in_start = $20,
			check_in_end = $21,
			start_date = $22,
			end_date = $23,
			match_interval_minutes = $24,
			swiss_rounds = $25,
			grand_finals_reset = $26,
			rules = $27,
			stream_url = $28,
			metadata = $29,
			updated_at = NOW()
		WHERE id = $30`

	result, err := executor.ExecContext(ctx, query,
		t.Name, t.Description, t.GameID, t.Format, t.Visibility, t.RegistrationType,
		t.TeamSize, t.MinParticipants, t.MaxParticipants, t.MinMMR, t.MaxMMR,
		t.AllowedRegions, t.RequireVerified,
		t.PrizePool, t.PrizeCurrency, t.PrizeDistribution, t.EntryFee,
		t.RegistrationStart, t.RegistrationEnd, t.CheckInStart, t.CheckInEnd, t.StartDate, t.EndDate,
		t.MatchInterval, t.SwissRounds, t.GrandFinalsReset,
		t.Rules, t.StreamURL, t.Metadata,
		t.ID,
	)

	if err != nil {
		return r.handleTournamentError(err)
	}

	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) Delete(ctx context.Context, id int) error {
	executor := r.getExecutor(nil)
	query := `DELETE FROM tournaments WHERE id = $1`
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

// ListDueForTransition выбирает турниры, у которых наступила граница окна расписания:
// открытие/закрытие регистрации, начало чек-ина, старт турнира.
func (r *postgresTournamentRepository) ListDueForTransition(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentSelectColumns + `
		FROM tournaments
		WHERE status NOT IN ($1, $2)
		AND (
			(status = $3 AND registration_start IS NOT NULL AND registration_start <= $4) OR
			(status = $5 AND registration_end   IS NOT NULL AND registration_end   <= $4) OR
			(status = $6 AND check_in_start     IS NOT NULL AND check_in_start     <= $4) OR
			(status = $7 AND start_date         IS NOT NULL AND start_date         <= $4)
		)
		ORDER BY id`
	args := []interface{}{
		models.TournamentStatusCompleted,          // $1
		models.TournamentStatusCanceled,           // $2
		models.TournamentStatusDraft,              // $3
		now,                                       // $4
		models.TournamentStatusRegistrationOpen,   // $5
		models.TournamentStatusRegistrationClosed, // $6
		models.TournamentStatusCheckIn,            // $7
	}

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments due for transition: %w", err)
	}
	defer rows.Close()

	var tournaments []*models.Tournament
	for rows.Next() {
		t, scanErr := r.scanTournament(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan tournament due for transition: %w", scanErr)
		}
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during tournament rows iteration: %w", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "tournaments_organizer_id_name_key" {
				return ErrTournamentNameConflict
			}
		case "23503":
			switch pqErr.Constraint {
			case "tournaments_organizer_id_fkey":
				return ErrTournamentInvalidOrganizer
			case "tournaments_template_id_fkey":
				return ErrTournamentInvalidTemplate
			default:
				// FK со стороны registrations/brackets/matches: турнир используется.
				return ErrTournamentInUse
			}
		}
	}
	return err
}
