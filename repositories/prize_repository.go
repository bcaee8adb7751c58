package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/matchforge/tournament-engine/models"
	"github.com/shopspring/decimal"
)

var (
	ErrPrizeNotFound          = errors.New("prize not found")
	ErrPrizePlacementConflict = errors.New("prize placement already exists for this tournament")
	ErrPrizeTournamentInvalid = errors.New("prize tournament conflict or invalid")
	ErrPrizeRecipientInvalid  = errors.New("prize recipient conflict or invalid")
)

type PrizeRepository interface {
	Create(ctx context.Context, exec SQLExecutor, prize *models.Prize) error
	GetByID(ctx context.Context, id int) (*models.Prize, error)
	GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Prize, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, statusFilter *models.PrizeStatus) ([]*models.Prize, error)
	ListByRecipientUser(ctx context.Context, userID int) ([]*models.Prize, error)
	SumDistributedByRecipientUser(ctx context.Context, userID int) (decimal.Decimal, error)
	Update(ctx context.Context, exec SQLExecutor, prize *models.Prize) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.PrizeStatus) error
	Summary(ctx context.Context, tournamentID int) (*models.PrizeSummary, error)
	DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error
}

type postgresPrizeRepository struct {
	db *sql.DB
}

func NewPostgresPrizeRepository(db *sql.DB) PrizeRepository {
	return &postgresPrizeRepository{db: db}
}

func (r *postgresPrizeRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const prizeSelectColumns = `
	id, tournament_id, placement, recipient_id, recipient_name, team_id,
	prize_type, amount, currency, percentage_of_pool, status,
	wallet_id, wallet_address, transaction_id,
	distributed_at, distributed_by, failure_reason, retry_count, last_retry_at,
	identity_verified, tax_form_type, tax_form_submitted, tax_withheld, net_amount,
	metadata, created_at, updated_at`

func (r *postgresPrizeRepository) scanPrize(rowScanner interface{ Scan(...interface{}) error }) (*models.Prize, error) {
	var p models.Prize
	err := rowScanner.Scan(
		&p.ID, &p.TournamentID, &p.Placement, &p.RecipientID, &p.RecipientName, &p.TeamID,
		&p.Type, &p.Amount, &p.Currency, &p.PercentageOfPool, &p.Status,
		&p.WalletID, &p.WalletAddress, &p.TransactionID,
		&p.DistributedAt, &p.DistributedBy, &p.FailureReason, &p.RetryCount, &p.LastRetryAt,
		&p.IdentityVerified, &p.TaxFormType, &p.TaxFormSubmitted, &p.TaxWithheld, &p.NetAmount,
		&p.Metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrizeNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *postgresPrizeRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Prize) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO prizes (
			tournament_id, placement, prize_type, amount, currency, percentage_of_pool,
			status, tax_withheld, net_amount, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	err := executor.QueryRowContext(ctx, query,
		p.TournamentID, p.Placement, p.Type, p.Amount, p.Currency, p.PercentageOfPool,
		p.Status, p.TaxWithheld, p.NetAmount, p.Metadata,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	return r.handlePrizeError(err)
}

func (r *postgresPrizeRepository) GetByID(ctx context.Context, id int) (*models.Prize, error) {
	executor := r.getExecutor(nil)
	query := `SELECT` + prizeSelectColumns + ` FROM prizes WHERE id = $1`
	row := executor.QueryRowContext(ctx, query, id)
	return r.scanPrize(row)
}

// GetForUpdate блокирует строку приза на время выплаты; вызывать только внутри транзакции.
func (r *postgresPrizeRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Prize, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + prizeSelectColumns + ` FROM prizes WHERE id = $1 FOR UPDATE`
	row := executor.QueryRowContext(ctx, query, id)
	return r.scanPrize(row)
}

func (r *postgresPrizeRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, statusFilter *models.PrizeStatus) ([]*models.Prize, error) {
	executor := r.getExecutor(exec)
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT` + prizeSelectColumns + ` FROM prizes WHERE tournament_id = $1`)
	args := []interface{}{tournamentID}

	if statusFilter != nil {
		queryBuilder.WriteString(" AND status = $2")
		args = append(args, *statusFilter)
	}
	queryBuilder.WriteString(" ORDER BY placement ASC, id ASC")

	rows, err := executor.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list prizes for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	prizes := make([]*models.Prize, 0)
	for rows.Next() {
		p, scanErr := r.scanPrize(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan prize row: %w", scanErr)
		}
		prizes = append(prizes, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during prize rows iteration: %w", err)
	}
	return prizes, nil
}

// ListByRecipientUser возвращает призы, присуждённые заявкам пользователя.
func (r *postgresPrizeRepository) ListByRecipientUser(ctx context.Context, userID int) ([]*models.Prize, error) {
	executor := r.getExecutor(nil)
	query := `
		SELECT p.id, p.tournament_id, p.placement, p.recipient_id, p.recipient_name, p.team_id,
		       p.prize_type, p.amount, p.currency, p.percentage_of_pool, p.status,
		       p.wallet_id, p.wallet_address, p.transaction_id,
		       p.distributed_at, p.distributed_by, p.failure_reason, p.retry_count, p.last_retry_at,
		       p.identity_verified, p.tax_form_type, p.tax_form_submitted, p.tax_withheld, p.net_amount,
		       p.metadata, p.created_at, p.updated_at
		FROM prizes p
		JOIN registrations r ON r.id = p.recipient_id
		WHERE r.user_id = $1
		ORDER BY p.created_at DESC, p.id DESC`

	rows, err := executor.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prizes for user %d: %w", userID, err)
	}
	defer rows.Close()

	prizes := make([]*models.Prize, 0)
	for rows.Next() {
		p, scanErr := r.scanPrize(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan recipient prize row: %w", scanErr)
		}
		prizes = append(prizes, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during recipient prize iteration: %w", err)
	}
	return prizes, nil
}

// SumDistributedByRecipientUser — суммарные выплаченные net-суммы пользователя.
func (r *postgresPrizeRepository) SumDistributedByRecipientUser(ctx context.Context, userID int) (decimal.Decimal, error) {
	executor := r.getExecutor(nil)
	query := `
		SELECT COALESCE(SUM(p.net_amount), 0)
		FROM prizes p
		JOIN registrations r ON r.id = p.recipient_id
		WHERE r.user_id = $1 AND p.status = $2`

	var total decimal.Decimal
	err := executor.QueryRowContext(ctx, query, userID, models.PrizeStatusDistributed).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum distributed prizes for user %d: %w", userID, err)
	}
	return total, nil
}

func (r *postgresPrizeRepository) Update(ctx context.Context, exec SQLExecutor, p *models.Prize) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE prizes SET
			recipient_id = $1,
			recipient_name = $2,
			team_id = $3,
			prize_type = $4,
			amount = $5,
			currency = $6,
			percentage_of_pool = $7,
			status = $8,
			wallet_id = $9,
			wallet_address = $10,
			transaction_id = $11,
			distributed_at = $12,
			distributed_by = $13,
			failure_reason = $14,
			retry_count = $15,
			last_retry_at = $16,
			identity_verified = $17,
			tax_form_type = $18,
			tax_form_submitted = $19,
			tax_withheld = $20,
			net_amount = $21,
			metadata = $22,
			updated_at = NOW()
		WHERE id = $23`

	result, err := executor.ExecContext(ctx, query,
		p.RecipientID, p.RecipientName, p.TeamID,
		p.Type, p.Amount, p.Currency, p.PercentageOfPool, p.Status,
		p.WalletID, p.WalletAddress, p.TransactionID,
		p.DistributedAt, p.DistributedBy, p.FailureReason, p.RetryCount, p.LastRetryAt,
		p.IdentityVerified, p.TaxFormType, p.TaxFormSubmitted, p.TaxWithheld, p.NetAmount,
		p.Metadata,
		p.ID,
	)
	if err != nil {
		return r.handlePrizeError(err)
	}
	return checkAffectedRows(result, ErrPrizeNotFound)
}

func (r *postgresPrizeRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.PrizeStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE prizes SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update prize status: %w", err)
	}
	return checkAffectedRows(result, ErrPrizeNotFound)
}

func (r *postgresPrizeRepository) Summary(ctx context.Context, tournamentID int) (*models.PrizeSummary, error) {
	executor := r.getExecutor(nil)
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE status = $4),
			COUNT(*) FILTER (WHERE status = $5),
			COUNT(*) FILTER (WHERE status = $6),
			COUNT(*) FILTER (WHERE status = $7),
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(net_amount) FILTER (WHERE status = $5), 0),
			COALESCE(SUM(tax_withheld) FILTER (WHERE status = $5), 0)
		FROM prizes
		WHERE tournament_id = $1`

	summary := &models.PrizeSummary{TournamentID: tournamentID}
	err := executor.QueryRowContext(ctx, query, tournamentID,
		models.PrizeStatusPending,     // $2
		models.PrizeStatusCalculated,  // $3
		models.PrizeStatusProcessing,  // $4
		models.PrizeStatusDistributed, // $5
		models.PrizeStatusFailed,      // $6
		models.PrizeStatusCanceled,    // $7
	).Scan(
		&summary.TotalPrizes,
		&summary.Pending, &summary.Calculated, &summary.Processing,
		&summary.Distributed, &summary.Failed, &summary.Canceled,
		&summary.TotalAmount, &summary.DistributedAmount, &summary.TotalTaxWithheld,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get prize summary for tournament %d: %w", tournamentID, err)
	}
	return summary, nil
}

// DeleteByTournament удаляет строки призов при пересоздании пула.
// Выплаченные строки сервис не даёт пересоздавать.
func (r *postgresPrizeRepository) DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM prizes WHERE tournament_id = $1`
	_, err := executor.ExecContext(ctx, query, tournamentID)
	if err != nil {
		return fmt.Errorf("failed to delete prizes for tournament %d: %w", tournamentID, err)
	}
	return nil
}

func (r *postgresPrizeRepository) handlePrizeError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "prizes_tournament_id_placement_key" {
				return ErrPrizePlacementConflict
			}
		case "23503":
			switch pqErr.Constraint {
			case "prizes_tournament_id_fkey":
				return ErrPrizeTournamentInvalid
			case "prizes_recipient_id_fkey":
				return ErrPrizeRecipientInvalid
			}
		}
	}
	return err
}
