package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/matchforge/tournament-engine/models"
)

var (
	ErrRegistrationNotFound          = errors.New("registration not found")
	ErrRegistrationConflict          = errors.New("registration conflict: user or team already registered for this tournament")
	ErrRegistrationTournamentInvalid = errors.New("registration tournament conflict or invalid")
)

type RegistrationRepository interface {
	Create(ctx context.Context, exec SQLExecutor, reg *models.Registration) error
	GetByID(ctx context.Context, id int) (*models.Registration, error)
	GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Registration, error)
	GetByUserAndTournament(ctx context.Context, exec SQLExecutor, userID, tournamentID int) (*models.Registration, error)
	GetByTeamAndTournament(ctx context.Context, exec SQLExecutor, teamID, tournamentID int) (*models.Registration, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, statusFilter *models.RegistrationStatus) ([]*models.Registration, error)
	ListWaitlisted(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Registration, error)
	CountByStatuses(ctx context.Context, exec SQLExecutor, tournamentID int, statuses ...models.RegistrationStatus) (int, error)
	Update(ctx context.Context, exec SQLExecutor, reg *models.Registration) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.RegistrationStatus) error
	UpdateWaitlistPosition(ctx context.Context, exec SQLExecutor, id int, position *int) error
}

type postgresRegistrationRepository struct {
	db *sql.DB
}

func NewPostgresRegistrationRepository(db *sql.DB) RegistrationRepository {
	return &postgresRegistrationRepository{db: db}
}

func (r *postgresRegistrationRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const registrationSelectColumns = `
	id, tournament_id, user_id, display_name, team_id, team_name, team_member_ids,
	status, seed, mmr, identity_verified, region, entry_fee_paid, refund_issued, refunded_at,
	waitlist_position, checked_in_at, substituted_from, substituted_at, metadata,
	created_at, updated_at`

func (r *postgresRegistrationRepository) scanRegistration(rowScanner interface{ Scan(...interface{}) error }) (*models.Registration, error) {
	var reg models.Registration
	err := rowScanner.Scan(
		&reg.ID, &reg.TournamentID, &reg.UserID, &reg.DisplayName, &reg.TeamID, &reg.TeamName, &reg.TeamMemberIDs,
		&reg.Status, &reg.Seed, &reg.MMR, &reg.IdentityVerified, &reg.Region, &reg.EntryFeePaid, &reg.RefundIssued, &reg.RefundedAt,
		&reg.WaitlistPosition, &reg.CheckedInAt, &reg.SubstitutedFrom, &reg.SubstitutedAt, &reg.Metadata,
		&reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return &reg, nil
}

func (r *postgresRegistrationRepository) Create(ctx context.Context, exec SQLExecutor, reg *models.Registration) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO registrations (
			tournament_id, user_id, display_name, team_id, team_name, team_member_ids,
			status, seed, mmr, identity_verified, region, entry_fee_paid, waitlist_position, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at`

	err := executor.QueryRowContext(ctx, query,
		reg.TournamentID, reg.UserID, reg.DisplayName, reg.TeamID, reg.TeamName, reg.TeamMemberIDs,
		reg.Status, reg.Seed, reg.MMR, reg.IdentityVerified, reg.Region, reg.EntryFeePaid, reg.WaitlistPosition, reg.Metadata,
	).Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)

	return r.handleRegistrationError(err)
}

func (r *postgresRegistrationRepository) findOne(ctx context.Context, executor SQLExecutor, query string, args ...interface{}) (*models.Registration, error) {
	row := executor.QueryRowContext(ctx, query, args...)
	return r.scanRegistration(row)
}

func (r *postgresRegistrationRepository) GetByID(ctx context.Context, id int) (*models.Registration, error) {
	query := `SELECT` + registrationSelectColumns + ` FROM registrations WHERE id = $1`
	return r.findOne(ctx, r.getExecutor(nil), query, id)
}

// GetForUpdate блокирует строку заявки; вызывать только внутри транзакции.
func (r *postgresRegistrationRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Registration, error) {
	query := `SELECT` + registrationSelectColumns + ` FROM registrations WHERE id = $1 FOR UPDATE`
	return r.findOne(ctx, r.getExecutor(exec), query, id)
}

func (r *postgresRegistrationRepository) GetByUserAndTournament(ctx context.Context, exec SQLExecutor, userID, tournamentID int) (*models.Registration, error) {
	query := `SELECT` + registrationSelectColumns + ` FROM registrations WHERE user_id = $1 AND tournament_id = $2`
	return r.findOne(ctx, r.getExecutor(exec), query, userID, tournamentID)
}

func (r *postgresRegistrationRepository) GetByTeamAndTournament(ctx context.Context, exec SQLExecutor, teamID, tournamentID int) (*models.Registration, error) {
	query := `SELECT` + registrationSelectColumns + ` FROM registrations WHERE team_id = $1 AND tournament_id = $2`
	return r.findOne(ctx, r.getExecutor(exec), query, teamID, tournamentID)
}

func (r *postgresRegistrationRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, statusFilter *models.RegistrationStatus) ([]*models.Registration, error) {
	executor := r.getExecutor(exec)
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT` + registrationSelectColumns + ` FROM registrations`)
	queryBuilder.WriteString(" WHERE tournament_id = $1")
	args := []interface{}{tournamentID}

	if statusFilter != nil {
		queryBuilder.WriteString(" AND status = $2")
		args = append(args, *statusFilter)
	}
	queryBuilder.WriteString(" ORDER BY created_at ASC, id ASC")

	rows, err := executor.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations by tournament: %w", err)
	}
	defer rows.Close()

	registrations := make([]*models.Registration, 0)
	for rows.Next() {
		reg, scanErr := r.scanRegistration(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan registration row: %w", scanErr)
		}
		registrations = append(registrations, reg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registration rows: %w", err)
	}
	return registrations, nil
}

// ListWaitlisted возвращает лист ожидания в порядке очереди.
func (r *postgresRegistrationRepository) ListWaitlisted(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Registration, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + registrationSelectColumns + `
		FROM registrations
		WHERE tournament_id = $1 AND status = $2
		ORDER BY waitlist_position ASC NULLS LAST, created_at ASC, id ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID, models.RegistrationStatusWaitlisted)
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlisted registrations: %w", err)
	}
	defer rows.Close()

	registrations := make([]*models.Registration, 0)
	for rows.Next() {
		reg, scanErr := r.scanRegistration(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan waitlisted registration: %w", scanErr)
		}
		registrations = append(registrations, reg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating waitlisted registrations: %w", err)
	}
	return registrations, nil
}

func (r *postgresRegistrationRepository) CountByStatuses(ctx context.Context, exec SQLExecutor, tournamentID int, statuses ...models.RegistrationStatus) (int, error) {
	executor := r.getExecutor(exec)
	statusStrings := make([]string, 0, len(statuses))
	for _, s := range statuses {
		statusStrings = append(statusStrings, string(s))
	}

	query := `SELECT COUNT(*) FROM registrations WHERE tournament_id = $1 AND status = ANY($2)`
	var count int
	err := executor.QueryRowContext(ctx, query, tournamentID, pq.Array(statusStrings)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return count, nil
}

func (r *postgresRegistrationRepository) Update(ctx context.Context, exec SQLExecutor, reg *models.Registration) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE registrations SET
			display_name = $1,
			team_name = $2,
			team_member_ids = $3,
			status = $4,
			seed = $5,
			mmr = $6,
			identity_verified = $7,
			region = $8,
			entry_fee_paid = $9,
			refund_issued = $10,
			refunded_at = $11,
			waitlist_position = $12,
			checked_in_at = $13,
			substituted_from = $14,
			substituted_at = $15,
			metadata = $16,
			user_id = $17,
			updated_at = NOW()
		WHERE id = $18`

	result, err := executor.ExecContext(ctx, query,
		reg.DisplayName, reg.TeamName, reg.TeamMemberIDs,
		reg.Status, reg.Seed, reg.MMR, reg.IdentityVerified, reg.Region,
		reg.EntryFeePaid, reg.RefundIssued, reg.RefundedAt,
		reg.WaitlistPosition, reg.CheckedInAt, reg.SubstitutedFrom, reg.SubstitutedAt, reg.Metadata,
		reg.UserID,
		reg.ID,
	)
	if err != nil {
		return r.handleRegistrationError(err)
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.RegistrationStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE registrations SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update registration status: %w", err)
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) UpdateWaitlistPosition(ctx context.Context, exec SQLExecutor, id int, position *int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE registrations SET waitlist_position = $1, updated_at = NOW() WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, position, id)
	if err != nil {
		return fmt.Errorf("failed to update waitlist position: %w", err)
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) handleRegistrationError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "registrations_tournament_id_user_id_key" ||
				pqErr.Constraint == "registrations_tournament_id_team_id_key" {
				return ErrRegistrationConflict
			}
		case "23503":
			if pqErr.Constraint == "registrations_tournament_id_fkey" {
				return ErrRegistrationTournamentInvalid
			}
		}
	}
	return err
}
