package wallet

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrWalletNotFound = errors.New("wallet not found for user")
	ErrUnavailable    = errors.New("wallet provider unavailable")
)

// Wallet — кошелёк получателя у платёжного провайдера.
type Wallet struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// TransferRequest описывает перевод из эскроу турнира получателю.
// Reference служит idempotency-ключом: повтор с тем же reference не
// создаёт второй перевод.
type TransferRequest struct {
	FromWallet string
	ToWallet   string
	Amount     decimal.Decimal
	Currency   string
	Reference  string
}

type TransferResult struct {
	Success       bool
	TransactionID string
	Error         string
}

// Service — внешний кошелёк. Ошибки провайдера не считаются фатальными
// для вызывающей стороны: неуспех фиксируется на строке приза.
type Service interface {
	GetWallet(ctx context.Context, userID int) (*Wallet, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	VerifyIdentity(ctx context.Context, userID int) (bool, error)
}
