package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet is created lazily on the first successful deposit
type Wallet struct {
	UserID    uuid.UUID
	Balance   decimal.Decimal
	UpdatedAt time.Time
}
