package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// AccountResolver сопоставляет внутренний user id подключённому аккаунту
// Stripe (acct_...). Привязка делается вне движка, поэтому резолвер
// инжектируется.
type AccountResolver func(ctx context.Context, userID int) (string, error)

type stripeService struct {
	api     *client.API
	resolve AccountResolver
	logger  *slog.Logger
}

// NewStripeService строит кошелёк поверх Stripe Connect: переводы идут
// с баланса платформы на подключённые аккаунты получателей.
func NewStripeService(apiKey string, resolver AccountResolver, logger *slog.Logger) Service {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &stripeService{api: api, resolve: resolver, logger: logger}
}

func (s *stripeService) GetWallet(ctx context.Context, userID int) (*Wallet, error) {
	accountID, err := s.resolve(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, err.Error())
	}
	account, err := s.api.Accounts.GetByID(accountID, nil)
	if err != nil {
		return nil, s.wrapStripeError(err)
	}
	return &Wallet{ID: account.ID, Address: account.ID}, nil
}

func (s *stripeService) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(toMinorUnits(req.Amount)),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Destination:   stripe.String(req.ToWallet),
		TransferGroup: stripe.String(req.FromWallet),
	}
	params.Context = ctx
	// Стабильный reference делает повторную попытку безопасной.
	params.SetIdempotencyKey(req.Reference)

	tr, err := s.api.Transfers.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			s.logger.Warn("stripe transfer declined",
				"reference", req.Reference, "code", stripeErr.Code, "message", stripeErr.Msg)
			return &TransferResult{Success: false, Error: stripeErr.Msg}, nil
		}
		return nil, s.wrapStripeError(err)
	}
	return &TransferResult{Success: true, TransactionID: tr.ID}, nil
}

func (s *stripeService) VerifyIdentity(ctx context.Context, userID int) (bool, error) {
	accountID, err := s.resolve(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrWalletNotFound, err.Error())
	}
	account, err := s.api.Accounts.GetByID(accountID, nil)
	if err != nil {
		return false, s.wrapStripeError(err)
	}
	return account.PayoutsEnabled, nil
}

func (s *stripeService) wrapStripeError(err error) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, err.Error())
}

// toMinorUnits переводит сумму в минимальные единицы валюты (центы).
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
