package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type PrizeStatus string

const (
	PrizeStatusPending     PrizeStatus = "pending"
	PrizeStatusCalculated  PrizeStatus = "calculated"
	PrizeStatusProcessing  PrizeStatus = "processing"
	PrizeStatusDistributed PrizeStatus = "distributed"
	PrizeStatusFailed      PrizeStatus = "failed"
	PrizeStatusCanceled    PrizeStatus = "canceled"
)

type PrizeType string

const (
	PrizeTypeCash   PrizeType = "cash"
	PrizeTypeToken  PrizeType = "token"
	PrizeTypeNFT    PrizeType = "nft"
	PrizeTypeItem   PrizeType = "item"
	PrizeTypePoints PrizeType = "points"
)

// MaxPrizeRetries ограничивает повторные попытки выплаты.
const MaxPrizeRetries = 3

var prizeStatusTransitions = map[PrizeStatus][]PrizeStatus{
	PrizeStatusPending:     {PrizeStatusCalculated, PrizeStatusCanceled},
	PrizeStatusCalculated:  {PrizeStatusProcessing, PrizeStatusCanceled},
	PrizeStatusProcessing:  {PrizeStatusDistributed, PrizeStatusFailed},
	PrizeStatusFailed:      {PrizeStatusCalculated, PrizeStatusCanceled},
	PrizeStatusDistributed: {},
	PrizeStatusCanceled:    {},
}

func (s PrizeStatus) IsValid() bool {
	_, ok := prizeStatusTransitions[s]
	return ok
}

func (s PrizeStatus) IsTerminal() bool {
	return s == PrizeStatusDistributed || s == PrizeStatusCanceled
}

func (s PrizeStatus) CanTransitionTo(next PrizeStatus) bool {
	for _, allowed := range prizeStatusTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

func (t PrizeType) IsValid() bool {
	switch t {
	case PrizeTypeCash, PrizeTypeToken, PrizeTypeNFT, PrizeTypeItem, PrizeTypePoints:
		return true
	}
	return false
}

// Prize — строка призового фонда. Placement 0 зарезервирован под бонусные
// выплаты вне таблицы мест. Получатель связывается на этапе calculate.
type Prize struct {
	ID               int             `json:"id" db:"id"`
	TournamentID     int             `json:"tournament_id" db:"tournament_id"`
	Placement        int             `json:"placement" db:"placement"`
	RecipientID      *int            `json:"recipient_id,omitempty" db:"recipient_id"`
	RecipientName    *string         `json:"recipient_name,omitempty" db:"recipient_name"`
	TeamID           *int            `json:"team_id,omitempty" db:"team_id"`
	Type             PrizeType       `json:"prize_type" db:"prize_type"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	Currency         string          `json:"currency" db:"currency"`
	PercentageOfPool float64         `json:"percentage_of_pool" db:"percentage_of_pool"`
	Status           PrizeStatus     `json:"status" db:"status"`
	WalletID         *string         `json:"wallet_id,omitempty" db:"wallet_id"`
	WalletAddress    *string         `json:"wallet_address,omitempty" db:"wallet_address"`
	TransactionID    *string         `json:"transaction_id,omitempty" db:"transaction_id"`
	DistributedAt    *time.Time      `json:"distributed_at,omitempty" db:"distributed_at"`
	DistributedBy    *int            `json:"distributed_by,omitempty" db:"distributed_by"`
	FailureReason    *string         `json:"failure_reason,omitempty" db:"failure_reason"`
	RetryCount       int             `json:"retry_count" db:"retry_count"`
	LastRetryAt      *time.Time      `json:"last_retry_at,omitempty" db:"last_retry_at"`
	IdentityVerified bool            `json:"identity_verified" db:"identity_verified"`
	TaxFormType      *string         `json:"tax_form_type,omitempty" db:"tax_form_type"`
	TaxFormSubmitted bool            `json:"tax_form_submitted" db:"tax_form_submitted"`
	TaxWithheld      decimal.Decimal `json:"tax_withheld" db:"tax_withheld"`
	NetAmount        decimal.Decimal `json:"net_amount" db:"net_amount"`
	Metadata         RawJSON         `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// PrizeSummary — сводка по призовому фонду турнира.
type PrizeSummary struct {
	TournamentID      int             `json:"tournament_id"`
	TotalPrizes       int             `json:"total_prizes"`
	Pending           int             `json:"pending"`
	Calculated        int             `json:"calculated"`
	Processing        int             `json:"processing"`
	Distributed       int             `json:"distributed"`
	Failed            int             `json:"failed"`
	Canceled          int             `json:"canceled"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	DistributedAmount decimal.Decimal `json:"distributed_amount"`
	TotalTaxWithheld  decimal.Decimal `json:"total_tax_withheld"`
}

// TransferReference возвращает стабильный idempotency-ключ для кошелька.
func (p *Prize) TransferReference() string {
	return "tournament-prize-" + strconv.Itoa(p.ID)
}

// RetryEligible reports whether another distribution attempt is allowed.
func (p *Prize) RetryEligible() bool {
	return p.Status == PrizeStatusFailed && p.RetryCount < MaxPrizeRetries
}

// ApplyTax withholds tax_rate percent and fills tax_withheld/net_amount.
func (p *Prize) ApplyTax(taxRate float64) {
	rate := decimal.NewFromFloat(taxRate).Div(decimal.NewFromInt(100))
	p.TaxWithheld = p.Amount.Mul(rate).Round(2)
	p.NetAmount = p.Amount.Sub(p.TaxWithheld)
}
