package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchforge/tournament-engine/models"
	"github.com/matchforge/tournament-engine/wallet"
)

type fakeWalletService struct {
	result  *wallet.TransferResult
	err     error
	lastReq wallet.TransferRequest
}

func (f *fakeWalletService) GetWallet(ctx context.Context, userID int) (*wallet.Wallet, error) {
	return nil, wallet.ErrWalletNotFound
}

func (f *fakeWalletService) Transfer(ctx context.Context, req wallet.TransferRequest) (*wallet.TransferResult, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeWalletService) VerifyIdentity(ctx context.Context, userID int) (bool, error) {
	return false, wallet.ErrUnavailable
}

func TestApplyTransferOutcomeAccounting(t *testing.T) {
	walletID := "acct_42"
	prize := &models.Prize{
		ID:           1,
		TournamentID: 1,
		Placement:    1,
		Status:       models.PrizeStatusProcessing,
		WalletID:     &walletID,
		NetAmount:    decimal.NewFromInt(100),
		Currency:     "USD",
	}
	failedAt := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	applyTransferOutcome(prize, &wallet.TransferResult{Success: false, Error: "insufficient escrow balance"}, 9, failedAt)

	assert.Equal(t, models.PrizeStatusFailed, prize.Status)
	assert.Equal(t, 1, prize.RetryCount)
	require.NotNil(t, prize.FailureReason)
	assert.Equal(t, "insufficient escrow balance", *prize.FailureReason)
	require.NotNil(t, prize.LastRetryAt)
	assert.Equal(t, failedAt, *prize.LastRetryAt)
	assert.Nil(t, prize.TransactionID)

	// Успешный повтор закрывает выплату, но история попыток сохраняется.
	paidAt := failedAt.Add(time.Hour)
	applyTransferOutcome(prize, &wallet.TransferResult{Success: true, TransactionID: "tx_777"}, 9, paidAt)

	assert.Equal(t, models.PrizeStatusDistributed, prize.Status)
	require.NotNil(t, prize.TransactionID)
	assert.Equal(t, "tx_777", *prize.TransactionID)
	require.NotNil(t, prize.DistributedAt)
	assert.Equal(t, paidAt, *prize.DistributedAt)
	require.NotNil(t, prize.DistributedBy)
	assert.Equal(t, 9, *prize.DistributedBy)
	assert.Nil(t, prize.FailureReason)
	assert.Equal(t, 1, prize.RetryCount, "счётчик попыток не обнуляется успехом")
}

func TestRetryEligible(t *testing.T) {
	eligible := &models.Prize{Status: models.PrizeStatusFailed, RetryCount: models.MaxPrizeRetries - 1}
	assert.True(t, eligible.RetryEligible())

	exhausted := &models.Prize{Status: models.PrizeStatusFailed, RetryCount: models.MaxPrizeRetries}
	assert.False(t, exhausted.RetryEligible(), "лимит повторов исчерпан")

	calculated := &models.Prize{Status: models.PrizeStatusCalculated}
	assert.False(t, calculated.RetryEligible())

	distributed := &models.Prize{Status: models.PrizeStatusDistributed}
	assert.False(t, distributed.RetryEligible())
}

func TestTransferMapsProviderFailures(t *testing.T) {
	walletID := "acct_42"
	prize := &models.Prize{
		ID:           1,
		TournamentID: 1,
		Placement:    1,
		WalletID:     &walletID,
		NetAmount:    decimal.NewFromInt(50),
		Currency:     "USD",
	}
	newService := func(w wallet.Service) *PrizeService {
		return &PrizeService{
			wallets:         w,
			escrowWalletID:  "escrow_main",
			transferTimeout: time.Second,
			logger:          testLogger(),
		}
	}

	t.Run("no provider configured", func(t *testing.T) {
		result := newService(nil).transfer(context.Background(), prize)
		assert.False(t, result.Success)
		assert.Equal(t, "wallet provider is not configured", result.Error)
	})

	t.Run("deadline maps to timeout", func(t *testing.T) {
		fake := &fakeWalletService{err: context.DeadlineExceeded}
		result := newService(fake).transfer(context.Background(), prize)
		assert.False(t, result.Success)
		assert.Equal(t, "timeout", result.Error)
	})

	t.Run("provider error passes through", func(t *testing.T) {
		fake := &fakeWalletService{err: errors.New("account frozen")}
		result := newService(fake).transfer(context.Background(), prize)
		assert.False(t, result.Success)
		assert.Equal(t, "account frozen", result.Error)
	})

	t.Run("success carries request details", func(t *testing.T) {
		fake := &fakeWalletService{result: &wallet.TransferResult{Success: true, TransactionID: "tx_1"}}
		result := newService(fake).transfer(context.Background(), prize)
		require.True(t, result.Success)
		assert.Equal(t, "tx_1", result.TransactionID)
		assert.Equal(t, "escrow_main", fake.lastReq.FromWallet)
		assert.Equal(t, walletID, fake.lastReq.ToWallet)
		assert.Equal(t, prize.TransferReference(), fake.lastReq.Reference)
	})
}
