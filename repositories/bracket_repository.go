package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/matchforge/tournament-engine/models"
)

var (
	ErrBracketNotFound          = errors.New("bracket not found")
	ErrBracketTypeConflict      = errors.New("bracket of this type already exists for the tournament")
	ErrBracketTournamentInvalid = errors.New("bracket tournament conflict or invalid")
)

type BracketRepository interface {
	Create(ctx context.Context, exec SQLExecutor, bracket *models.Bracket) error
	GetByID(ctx context.Context, id int) (*models.Bracket, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Bracket, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.BracketStatus) error
	UpdateProgress(ctx context.Context, exec SQLExecutor, id, currentRound, completedMatches int) error
	SetVisualization(ctx context.Context, exec SQLExecutor, id int, visualization models.RawJSON) error
	SetExportKey(ctx context.Context, exec SQLExecutor, id int, exportKey *string) error
	DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error
}

type postgresBracketRepository struct {
	db *sql.DB
}

func NewPostgresBracketRepository(db *sql.DB) BracketRepository {
	return &postgresBracketRepository{db: db}
}

func (r *postgresBracketRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const bracketSelectColumns = `
	id, tournament_id, type, format, status,
	total_rounds, current_round, total_matches, completed_matches, participant_count, bye_count,
	seed_snapshot, visualization, export_key, metadata, created_at, updated_at`

func (r *postgresBracketRepository) scanBracket(rowScanner interface{ Scan(...interface{}) error }) (*models.Bracket, error) {
	var b models.Bracket
	err := rowScanner.Scan(
		&b.ID, &b.TournamentID, &b.Type, &b.Format, &b.Status,
		&b.TotalRounds, &b.CurrentRound, &b.TotalMatches, &b.CompletedMatches, &b.ParticipantCount, &b.ByeCount,
		&b.SeedSnapshot, &b.Visualization, &b.ExportKey, &b.Metadata, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBracketNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *postgresBracketRepository) Create(ctx context.Context, exec SQLExecutor, b *models.Bracket) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO brackets (
			tournament_id, type, format, status,
			total_rounds, current_round, total_matches, completed_matches, participant_count, bye_count,
			seed_snapshot, visualization, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`

	err := executor.QueryRowContext(ctx, query,
		b.TournamentID, b.Type, b.Format, b.Status,
		b.TotalRounds, b.CurrentRound, b.TotalMatches, b.CompletedMatches, b.ParticipantCount, b.ByeCount,
		b.SeedSnapshot, b.Visualization, b.Metadata,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)

	return r.handleBracketError(err)
}

func (r *postgresBracketRepository) GetByID(ctx context.Context, id int) (*models.Bracket, error) {
	executor := r.getExecutor(nil)
	query := `SELECT` + bracketSelectColumns + ` FROM brackets WHERE id = $1`
	row := executor.QueryRowContext(ctx, query, id)
	return r.scanBracket(row)
}

func (r *postgresBracketRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Bracket, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + bracketSelectColumns + `
		FROM brackets
		WHERE tournament_id = $1
		ORDER BY id ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list brackets for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	brackets := make([]*models.Bracket, 0)
	for rows.Next() {
		b, scanErr := r.scanBracket(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan bracket row: %w", scanErr)
		}
		brackets = append(brackets, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during bracket rows iteration: %w", err)
	}
	return brackets, nil
}

func (r *postgresBracketRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.BracketStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE brackets SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update bracket status: %w", err)
	}
	return checkAffectedRows(result, ErrBracketNotFound)
}

func (r *postgresBracketRepository) UpdateProgress(ctx context.Context, exec SQLExecutor, id, currentRound, completedMatches int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE brackets SET current_round = $1, completed_matches = $2, updated_at = NOW() WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, currentRound, completedMatches, id)
	if err != nil {
		return fmt.Errorf("failed to update bracket progress: %w", err)
	}
	return checkAffectedRows(result, ErrBracketNotFound)
}

func (r *postgresBracketRepository) SetVisualization(ctx context.Context, exec SQLExecutor, id int, visualization models.RawJSON) error {
	executor := r.getExecutor(exec)
	query := `UPDATE brackets SET visualization = $1, updated_at = NOW() WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, visualization, id)
	if err != nil {
		return fmt.Errorf("failed to update bracket visualization: %w", err)
	}
	return checkAffectedRows(result, ErrBracketNotFound)
}

func (r *postgresBracketRepository) SetExportKey(ctx context.Context, exec SQLExecutor, id int, exportKey *string) error {
	executor := r.getExecutor(exec)
	query := `UPDATE brackets SET export_key = $1, updated_at = NOW() WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, exportKey, id)
	if err != nil {
		return fmt.Errorf("failed to update bracket export key: %w", err)
	}
	return checkAffectedRows(result, ErrBracketNotFound)
}

// DeleteByTournament удаляет все сетки турнира; матчи уходят каскадом.
func (r *postgresBracketRepository) DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM brackets WHERE tournament_id = $1`
	_, err := executor.ExecContext(ctx, query, tournamentID)
	if err != nil {
		return fmt.Errorf("failed to delete brackets for tournament %d: %w", tournamentID, err)
	}
	return nil
}

func (r *postgresBracketRepository) handleBracketError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "brackets_tournament_id_type_key" {
				return ErrBracketTypeConflict
			}
		case "23503":
			if pqErr.Constraint == "brackets_tournament_id_fkey" {
				return ErrBracketTournamentInvalid
			}
		}
	}
	return err
}
