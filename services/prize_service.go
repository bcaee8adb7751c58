package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matchforge/tournament-engine/brackets"
	"github.com/matchforge/tournament-engine/metrics"
	"github.com/matchforge/tournament-engine/models"
	"github.com/matchforge/tournament-engine/repositories"
	"github.com/matchforge/tournament-engine/wallet"
)

// defaultTransferTimeout ограничивает обращение к кошельку при выплате.
const defaultTransferTimeout = 30 * time.Second

type SetupPoolRequest struct {
	Distribution models.PrizeDistribution `json:"distribution"`
	Type         models.PrizeType         `json:"prize_type,omitempty"`
}

type BulkDistributeResult struct {
	Successful []*models.Prize `json:"successful"`
	Failed     []*models.Prize `json:"failed"`
	Skipped    []*models.Prize `json:"skipped,omitempty"`
}

type PrizeService struct {
	db              *sql.DB
	prizes          repositories.PrizeRepository
	tournaments     repositories.TournamentRepository
	registrations   repositories.RegistrationRepository
	standings       repositories.StandingRepository
	wallets         wallet.Service
	hub             Broadcaster
	escrowWalletID  string
	transferTimeout time.Duration
	logger          *slog.Logger
}

func NewPrizeService(
	db *sql.DB,
	prizes repositories.PrizeRepository,
	tournaments repositories.TournamentRepository,
	registrations repositories.RegistrationRepository,
	standings repositories.StandingRepository,
	wallets wallet.Service,
	hub Broadcaster,
	escrowWalletID string,
	transferTimeout time.Duration,
	logger *slog.Logger,
) *PrizeService {
	if transferTimeout <= 0 {
		transferTimeout = defaultTransferTimeout
	}
	return &PrizeService{
		db:              db,
		prizes:          prizes,
		tournaments:     tournaments,
		registrations:   registrations,
		standings:       standings,
		wallets:         wallets,
		hub:             hub,
		escrowWalletID:  escrowWalletID,
		transferTimeout: transferTimeout,
		logger:          logger,
	}
}

// SetupPool создаёт строки призового фонда из схемы распределения.
// Повторный вызов заменяет фонд целиком; после первой выплаты фонд
// заблокирован.
func (s *PrizeService) SetupPool(ctx context.Context, tournamentID int, req SetupPoolRequest) ([]*models.Prize, error) {
	if err := req.Distribution.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidationFailed, err.Error())
	}
	prizeType := req.Type
	if prizeType == "" {
		prizeType = models.PrizeTypeCash
	}
	if !prizeType.IsValid() {
		return nil, fmt.Errorf("%w: unknown prize type %q", ErrValidationFailed, prizeType)
	}

	var created []*models.Prize
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := s.tournaments.GetForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if t.Status == models.TournamentStatusCompleted || t.Status == models.TournamentStatusCanceled {
			return ErrPrizePoolLocked
		}

		existing, err := s.prizes.ListByTournament(ctx, tx, tournamentID, nil)
		if err != nil {
			return err
		}
		for _, p := range existing {
			if p.Status == models.PrizeStatusDistributed || p.Status == models.PrizeStatusProcessing {
				return ErrPrizeAlreadyDistributed
			}
		}
		if len(existing) > 0 {
			if err := s.prizes.DeleteByTournament(ctx, tx, tournamentID); err != nil {
				return err
			}
		}

		placements := make([]int, 0, len(req.Distribution))
		for placement := range req.Distribution {
			placements = append(placements, placement)
		}
		sort.Ints(placements)

		for _, placement := range placements {
			percent := req.Distribution[placement]
			amount := t.PrizePool.Mul(decimal.NewFromFloat(percent)).Div(decimal.NewFromInt(100)).Round(2)
			prize := &models.Prize{
				TournamentID:     tournamentID,
				Placement:        placement,
				Type:             prizeType,
				Amount:           amount,
				NetAmount:        amount,
				Currency:         t.PrizeCurrency,
				PercentageOfPool: percent,
				Status:           models.PrizeStatusPending,
			}
			if err := s.prizes.Create(ctx, tx, prize); err != nil {
				return mapPrizeRepoError(err)
			}
			created = append(created, prize)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("prize pool configured", "tournament_id", tournamentID, "prizes", len(created))
	return created, nil
}

// Calculate привязывает получателей к призовым местам по финальной
// расстановке завершённого турнира. Кошелёк и верификация подтягиваются
// из платёжного провайдера, когда он сконфигурирован.
func (s *PrizeService) Calculate(ctx context.Context, tournamentID int) ([]*models.Prize, error) {
	var calculated []*models.Prize
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := s.tournaments.GetForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return mapTournamentRepoError(err)
		}
		if t.Status != models.TournamentStatusCompleted {
			return ErrTournamentNotCompleted
		}

		pending := models.PrizeStatusPending
		prizes, err := s.prizes.ListByTournament(ctx, tx, tournamentID, &pending)
		if err != nil {
			return err
		}
		if len(prizes) == 0 {
			return ErrPrizeNotFound
		}

		standings, err := s.standings.ListByTournament(ctx, tx, tournamentID, true)
		if err != nil {
			return err
		}
		byPlacement := make(map[int]*models.Standing, len(standings))
		for _, st := range standings {
			placement := st.Rank
			if st.FinalPlacement != nil {
				placement = *st.FinalPlacement
			}
			if placement > 0 {
				if _, taken := byPlacement[placement]; !taken {
					byPlacement[placement] = st
				}
			}
		}

		for _, prize := range prizes {
			if prize.Placement == 0 {
				// Бонусная строка вне таблицы мест: получателя назначают вручную.
				continue
			}
			st, ok := byPlacement[prize.Placement]
			if !ok {
				return fmt.Errorf("%w: placement %d", ErrNoFinalPlacement, prize.Placement)
			}
			reg, err := s.registrations.GetByID(ctx, st.ParticipantID)
			if err != nil {
				return mapRegistrationRepoError(err)
			}

			prize.RecipientID = intPtr(reg.ID)
			prize.RecipientName = strPtr(reg.DisplayName)
			prize.TeamID = reg.TeamID
			if prize.NetAmount.IsZero() {
				prize.NetAmount = prize.Amount.Sub(prize.TaxWithheld)
			}

			if s.wallets != nil {
				s.bindWallet(ctx, prize, reg.UserID)
			}

			prize.Status = models.PrizeStatusCalculated
			if err := s.prizes.Update(ctx, tx, prize); err != nil {
				return mapPrizeRepoError(err)
			}
			calculated = append(calculated, prize)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("prizes calculated", "tournament_id", tournamentID, "count", len(calculated))
	return calculated, nil
}

// bindWallet подтягивает кошелёк и статус верификации; отказ провайдера
// не роняет расчёт — приз остаётся без кошелька до SetRecipientWallet.
func (s *PrizeService) bindWallet(ctx context.Context, prize *models.Prize, userID int) {
	w, err := s.wallets.GetWallet(ctx, userID)
	if err != nil {
		s.logger.Warn("wallet lookup failed during prize calculation",
			"prize_id", prize.ID, "user_id", userID, "error", err)
		return
	}
	prize.WalletID = strPtr(w.ID)
	prize.WalletAddress = strPtr(w.Address)

	verified, err := s.wallets.VerifyIdentity(ctx, userID)
	if err != nil {
		s.logger.Warn("identity verification failed during prize calculation",
			"prize_id", prize.ID, "user_id", userID, "error", err)
		return
	}
	prize.IdentityVerified = verified
}

// Distribute выплачивает рассчитанный приз. Неуспех перевода — не ошибка
// вызова: он фиксируется на строке приза для последующего Retry.
func (s *PrizeService) Distribute(ctx context.Context, prizeID, adminID int) (*models.Prize, error) {
	// Сначала резервируем строку в статусе processing, чтобы параллельная
	// выплата того же приза была невозможна.
	var prize *models.Prize
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := s.prizes.GetForUpdate(ctx, tx, prizeID)
		if err != nil {
			return mapPrizeRepoError(err)
		}
		if p.Status != models.PrizeStatusCalculated {
			return fmt.Errorf("%w: status %s", ErrPrizeNotCalculated, p.Status)
		}
		if p.WalletID == nil || *p.WalletID == "" {
			return ErrWalletNotFound
		}
		if !p.NetAmount.IsPositive() {
			return fmt.Errorf("%w: net amount must be positive", ErrValidationFailed)
		}
		p.Status = models.PrizeStatusProcessing
		if err := s.prizes.Update(ctx, tx, p); err != nil {
			return mapPrizeRepoError(err)
		}
		prize = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := s.transfer(ctx, prize)
	now := time.Now()

	err = repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := s.prizes.GetForUpdate(ctx, tx, prizeID)
		if err != nil {
			return mapPrizeRepoError(err)
		}
		applyTransferOutcome(p, result, adminID, now)
		if err := s.prizes.Update(ctx, tx, p); err != nil {
			return mapPrizeRepoError(err)
		}
		prize = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Success {
		metrics.PrizesDistributed.Inc()
		if s.hub != nil {
			s.hub.BroadcastToRoom(brackets.TournamentRoom(prize.TournamentID), brackets.EventPrizeDistributed, prize)
		}
		s.logger.Info("prize distributed", "prize_id", prizeID, "transaction_id", result.TransactionID)
	} else {
		metrics.PrizesFailed.Inc()
		s.logger.Warn("prize distribution failed",
			"prize_id", prizeID, "retry_count", prize.RetryCount, "reason", result.Error)
	}
	return prize, nil
}

// applyTransferOutcome переносит результат перевода на строку приза:
// успех закрывает выплату, неуспех увеличивает счётчик повторов.
func applyTransferOutcome(p *models.Prize, result *wallet.TransferResult, adminID int, now time.Time) {
	if result.Success {
		p.Status = models.PrizeStatusDistributed
		p.TransactionID = strPtr(result.TransactionID)
		p.DistributedAt = &now
		p.DistributedBy = intPtr(adminID)
		p.FailureReason = nil
	} else {
		p.Status = models.PrizeStatusFailed
		p.RetryCount++
		p.FailureReason = strPtr(result.Error)
		p.LastRetryAt = &now
	}
}

// transfer вызывает кошелёк с жёстким дедлайном; таймаут и транспортные
// ошибки сводятся к неуспешному результату.
func (s *PrizeService) transfer(ctx context.Context, prize *models.Prize) *wallet.TransferResult {
	if s.wallets == nil {
		return &wallet.TransferResult{Success: false, Error: "wallet provider is not configured"}
	}
	transferCtx, cancel := context.WithTimeout(ctx, s.transferTimeout)
	defer cancel()

	result, err := s.wallets.Transfer(transferCtx, wallet.TransferRequest{
		FromWallet: s.escrowWalletID,
		ToWallet:   *prize.WalletID,
		Amount:     prize.NetAmount,
		Currency:   prize.Currency,
		Reference:  prize.TransferReference(),
	})
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &wallet.TransferResult{Success: false, Error: "timeout"}
	case err != nil:
		return &wallet.TransferResult{Success: false, Error: err.Error()}
	default:
		return result
	}
}

// BulkDistribute выплачивает все рассчитанные призы турнира в порядке
// мест. verifiedOnly пропускает получателей без подтверждённой личности.
func (s *PrizeService) BulkDistribute(ctx context.Context, tournamentID, adminID int, verifiedOnly bool) (*BulkDistributeResult, error) {
	calculated := models.PrizeStatusCalculated
	prizes, err := s.prizes.ListByTournament(ctx, nil, tournamentID, &calculated)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(prizes, func(i, j int) bool { return prizes[i].Placement < prizes[j].Placement })

	result := &BulkDistributeResult{}
	for _, p := range prizes {
		if verifiedOnly && !p.IdentityVerified {
			result.Skipped = append(result.Skipped, p)
			continue
		}
		distributed, err := s.Distribute(ctx, p.ID, adminID)
		if err != nil {
			s.logger.Warn("bulk distribution skipped prize", "prize_id", p.ID, "error", err)
			result.Failed = append(result.Failed, p)
			continue
		}
		if distributed.Status == models.PrizeStatusDistributed {
			result.Successful = append(result.Successful, distributed)
		} else {
			result.Failed = append(result.Failed, distributed)
		}
	}
	return result, nil
}

// Retry возвращает неуспешный приз в calculated и пробует выплату снова.
func (s *PrizeService) Retry(ctx context.Context, prizeID, adminID int) (*models.Prize, error) {
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := s.prizes.GetForUpdate(ctx, tx, prizeID)
		if err != nil {
			return mapPrizeRepoError(err)
		}
		if !p.RetryEligible() {
			return fmt.Errorf("%w: status %s, retry %d/%d", ErrPrizeNotRetryEligible, p.Status, p.RetryCount, models.MaxPrizeRetries)
		}
		return s.prizes.UpdateStatus(ctx, tx, prizeID, models.PrizeStatusCalculated)
	})
	if err != nil {
		return nil, err
	}
	return s.Distribute(ctx, prizeID, adminID)
}

// CalculateTax удерживает налог с приза до выплаты.
func (s *PrizeService) CalculateTax(ctx context.Context, prizeID int, taxRate float64, formType *string) (*models.Prize, error) {
	if taxRate < 0 || taxRate > 100 {
		return nil, fmt.Errorf("%w: tax rate must be within [0, 100]", ErrValidationFailed)
	}
	var prize *models.Prize
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := s.prizes.GetForUpdate(ctx, tx, prizeID)
		if err != nil {
			return mapPrizeRepoError(err)
		}
		if p.Status == models.PrizeStatusDistributed || p.Status == models.PrizeStatusProcessing {
			return ErrPrizeAlreadyDistributed
		}
		p.ApplyTax(taxRate)
		if formType != nil {
			p.TaxFormType = formType
		}
		if err := s.prizes.Update(ctx, tx, p); err != nil {
			return mapPrizeRepoError(err)
		}
		prize = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prize, nil
}

// SetRecipientWallet вручную привязывает кошелёк к призу.
func (s *PrizeService) SetRecipientWallet(ctx context.Context, prizeID int, walletID, walletAddress string) (*models.Prize, error) {
	if walletID == "" {
		return nil, fmt.Errorf("%w: wallet id is required", ErrValidationFailed)
	}
	var prize *models.Prize
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := s.prizes.GetForUpdate(ctx, tx, prizeID)
		if err != nil {
			return mapPrizeRepoError(err)
		}
		if p.Status == models.PrizeStatusDistributed || p.Status == models.PrizeStatusProcessing {
			return ErrPrizeAlreadyDistributed
		}
		p.WalletID = strPtr(walletID)
		p.WalletAddress = strPtr(walletAddress)
		if err := s.prizes.Update(ctx, tx, p); err != nil {
			return mapPrizeRepoError(err)
		}
		prize = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prize, nil
}

// VerifyRecipient перепроверяет личность получателя у провайдера.
func (s *PrizeService) VerifyRecipient(ctx context.Context, prizeID int) (*models.Prize, error) {
	if s.wallets == nil {
		return nil, ErrWalletUnavailable
	}
	var prize *models.Prize
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := s.prizes.GetForUpdate(ctx, tx, prizeID)
		if err != nil {
			return mapPrizeRepoError(err)
		}
		if p.RecipientID == nil {
			return fmt.Errorf("%w: prize has no recipient yet", ErrValidationFailed)
		}
		reg, err := s.registrations.GetByID(ctx, *p.RecipientID)
		if err != nil {
			return mapRegistrationRepoError(err)
		}
		verified, err := s.wallets.VerifyIdentity(ctx, reg.UserID)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrWalletUnavailable, err.Error())
		}
		p.IdentityVerified = verified
		if err := s.prizes.Update(ctx, tx, p); err != nil {
			return mapPrizeRepoError(err)
		}
		prize = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prize, nil
}

// Cancel снимает приз с выплаты.
func (s *PrizeService) Cancel(ctx context.Context, prizeID int) (*models.Prize, error) {
	var prize *models.Prize
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := s.prizes.GetForUpdate(ctx, tx, prizeID)
		if err != nil {
			return mapPrizeRepoError(err)
		}
		if !p.Status.CanTransitionTo(models.PrizeStatusCanceled) {
			return fmt.Errorf("%w: %s -> canceled", ErrInvalidPrizeStatusTransition, p.Status)
		}
		if err := s.prizes.UpdateStatus(ctx, tx, prizeID, models.PrizeStatusCanceled); err != nil {
			return mapPrizeRepoError(err)
		}
		p.Status = models.PrizeStatusCanceled
		prize = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prize, nil
}

// UpdateStatus — прямой переход статуса по таблице модели.
func (s *PrizeService) UpdateStatus(ctx context.Context, prizeID int, status models.PrizeStatus) (*models.Prize, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	var prize *models.Prize
	err := repositories.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := s.prizes.GetForUpdate(ctx, tx, prizeID)
		if err != nil {
			return mapPrizeRepoError(err)
		}
		if !p.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidPrizeStatusTransition, p.Status, status)
		}
		if err := s.prizes.UpdateStatus(ctx, tx, prizeID, status); err != nil {
			return mapPrizeRepoError(err)
		}
		p.Status = status
		prize = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prize, nil
}

func (s *PrizeService) GetByID(ctx context.Context, prizeID int) (*models.Prize, error) {
	p, err := s.prizes.GetByID(ctx, prizeID)
	if err != nil {
		return nil, mapPrizeRepoError(err)
	}
	return p, nil
}

func (s *PrizeService) ListByTournament(ctx context.Context, tournamentID int, status *models.PrizeStatus) ([]*models.Prize, error) {
	if _, err := getTournamentOrFail(ctx, s.tournaments, tournamentID); err != nil {
		return nil, err
	}
	return s.prizes.ListByTournament(ctx, nil, tournamentID, status)
}

func (s *PrizeService) Summary(ctx context.Context, tournamentID int) (*models.PrizeSummary, error) {
	if _, err := getTournamentOrFail(ctx, s.tournaments, tournamentID); err != nil {
		return nil, err
	}
	return s.prizes.Summary(ctx, tournamentID)
}

func (s *PrizeService) ListByRecipient(ctx context.Context, userID int) ([]*models.Prize, error) {
	return s.prizes.ListByRecipientUser(ctx, userID)
}

// TotalEarnings — сумма выплаченных призов пользователя за всё время.
func (s *PrizeService) TotalEarnings(ctx context.Context, userID int) (decimal.Decimal, error) {
	return s.prizes.SumDistributedByRecipientUser(ctx, userID)
}
