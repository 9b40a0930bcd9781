package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionTypeDeposit    = "deposit"
	TransactionTypeWithdrawal = "withdrawal"
)

// Transaction statuses
// initiated -> pending -> success | failed; initiated -> failed
const (
	TransactionStatusInitiated = "initiated"
	TransactionStatusPending   = "pending"
	TransactionStatusSuccess   = "success"
	TransactionStatusFailed    = "failed"
)

type Transaction struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Type   string

	Amount      decimal.Decimal
	PlatformFee decimal.Decimal
	NetAmount   decimal.Decimal

	Status            string
	PaymentReference  string
	CheckoutURL       string
	ProviderReference string
	FailedReason      string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// IsTerminal reports whether no further transition is allowed
func (t Transaction) IsTerminal() bool {
	return IsTerminalStatus(t.Status)
}

func IsTerminalStatus(status string) bool {
	return status == TransactionStatusSuccess || status == TransactionStatusFailed
}
