package models

import (
	"encoding/json"
	"time"
)

const (
	EventDepositSucceeded    = "deposit.succeeded"
	EventDepositFailed       = "deposit.failed"
	EventWithdrawalSucceeded = "withdrawal.succeeded"

	// Provider reports payment for a deposit that is failed already. Needs manual resolution
	EventDepositPaidAfterFailure = "deposit.paid_after_failure"
)

// OutboxEvent is written in the same db transaction as the state change it describes.
// AggregateID is the wallet owner id, events of one wallet keep their order
type OutboxEvent struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
	PublishedAt *time.Time
}
