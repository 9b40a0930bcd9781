package outbox

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/lalita/wallet/internal/models"
)

// TransactionPayload is the body of every transaction event
type TransactionPayload struct {
	PaymentReference string     `json:"paymentReference"`
	UserID           string     `json:"userId"`
	Type             string     `json:"type"`
	Status           string     `json:"status"`
	Amount           string     `json:"amount"`
	PlatformFee      string     `json:"platformFee"`
	NetAmount        string     `json:"netAmount"`
	FailedReason     string     `json:"failedReason,omitempty"`
	AmountPaid       string     `json:"amountPaid,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	OccurredAt       time.Time  `json:"occurredAt"`
}

// NewTransactionEvent builds event for the transaction state change.
// Event ids are ULIDs so ordering by id is ordering by creation time
func NewTransactionEvent(eventType string, t models.Transaction, now time.Time) (models.OutboxEvent, error) {
	return newEvent(eventType, t, transactionPayload(t, now), now)
}

// NewPaidAfterFailureEvent reports money the provider collected for a deposit that is failed here.
// amountPaid is what the provider reported, nil if it did not
func NewPaidAfterFailureEvent(t models.Transaction, amountPaid *decimal.Decimal, now time.Time) (models.OutboxEvent, error) {
	p := transactionPayload(t, now)
	if amountPaid != nil {
		p.AmountPaid = amountPaid.StringFixed(2)
	}
	return newEvent(models.EventDepositPaidAfterFailure, t, p, now)
}

func transactionPayload(t models.Transaction, now time.Time) TransactionPayload {
	return TransactionPayload{
		PaymentReference: t.PaymentReference,
		UserID:           t.UserID.String(),
		Type:             t.Type,
		Status:           t.Status,
		Amount:           t.Amount.StringFixed(2),
		PlatformFee:      t.PlatformFee.StringFixed(2),
		NetAmount:        t.NetAmount.StringFixed(2),
		FailedReason:     t.FailedReason,
		CompletedAt:      t.CompletedAt,
		OccurredAt:       now.UTC(),
	}
}

func newEvent(eventType string, t models.Transaction, p TransactionPayload, now time.Time) (models.OutboxEvent, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("error while encoding event payload: %w", err)
	}

	id, err := ulid.New(ulid.Timestamp(now), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("error while generating event id: %w", err)
	}

	return models.OutboxEvent{
		ID:          id.String(),
		AggregateID: t.UserID.String(),
		EventType:   eventType,
		Payload:     payload,
		CreatedAt:   now,
	}, nil
}
