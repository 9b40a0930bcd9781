// Package webhook applies provider notifications to deposits exactly once.
//
// The conditional status flip in the store is the idempotence marker: the flip,
// the wallet credit and the outbox event are committed in one db transaction.
// A concurrent or replayed delivery finds the status terminal and becomes a no-op.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lalita/wallet/internal/apperrors"
	"github.com/lalita/wallet/internal/logger"
	"github.com/lalita/wallet/internal/metrics"
	"github.com/lalita/wallet/internal/models"
	"github.com/lalita/wallet/internal/repository"
	"github.com/lalita/wallet/internal/service/outbox"
)

type Outcome string

const (
	OutcomeSucceeded        Outcome = Outcome(metrics.WebhookSucceeded)
	OutcomeFailed           Outcome = Outcome(metrics.WebhookFailed)
	OutcomeDuplicate        Outcome = Outcome(metrics.WebhookDuplicate)
	OutcomeUnknownReference Outcome = Outcome(metrics.WebhookUnknownReference)
	OutcomeIgnored          Outcome = Outcome(metrics.WebhookIgnored)

	// Provider collected money for a deposit that is failed already (e.g. expired by the sweeper).
	// The deposit stays failed and nothing is credited; it is reported for manual resolution
	OutcomePaidAfterFailure Outcome = Outcome(metrics.WebhookPaidAfterFailure)
)

type Reconciler struct {
	storage repository.Storage
	logger  logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewReconciler(storage repository.Storage, l logger.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		storage: storage,
		logger:  l.With("component", "webhook"),
		metrics: m,
		now:     time.Now,
	}
}

// HandleCallback applies event. Outcomes other than succeeded and failed
// (duplicate, unknown reference, ignored, paid after failure) are reported with nil error; error means the event was not applied and may be redelivered
func (r *Reconciler) HandleCallback(ctx context.Context, e Event) (Outcome, error) {
	outcome, err := r.handle(ctx, e)

	label := string(outcome)
	if err != nil {
		label = metrics.WebhookError
	}
	r.metrics.WebhookEventsTotal.WithLabelValues(label).Inc()

	return outcome, err
}

func (r *Reconciler) handle(ctx context.Context, e Event) (Outcome, error) {
	l := r.logger.With("reference", e.PaymentReference, "event_type", e.Type)

	if e.Kind == KindOther {
		l.Info("Webhook event ignored")
		return OutcomeIgnored, nil
	}

	t, err := r.storage.Transaction().GetByReference(ctx, e.PaymentReference)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrTransactionNotFound):
		l.Warn("Webhook for unknown payment reference")
		return OutcomeUnknownReference, nil
	default:
		return "", fmt.Errorf("error while looking up transaction: %w", err)
	}

	if t.IsTerminal() {
		return r.handleTerminal(ctx, l, t, e)
	}

	switch e.Kind {
	case KindSuccess:
		return r.applySuccess(ctx, l, t, e)
	default:
		return r.applyFailure(ctx, l, t, e)
	}
}

func (r *Reconciler) applySuccess(ctx context.Context, l logger.Logger, t models.Transaction, e Event) (Outcome, error) {
	if e.AmountPaid != nil && !e.AmountPaid.Equal(t.Amount) {
		r.metrics.AmountMismatchTotal.Inc()
		l.Warn("Paid amount differs from deposit amount", "amount", t.Amount, "amount_paid", e.AmountPaid)
	}

	now := r.now()
	var credited models.Wallet

	err := r.storage.InTx(ctx, func(s repository.Storage) error {
		// Locks the row: a racing delivery blocks here and then finds it terminal
		succeeded, err := s.Transaction().MarkSucceeded(ctx, t.PaymentReference, now)
		if err != nil {
			return err
		}

		credited, err = s.Wallet().Credit(ctx, succeeded.UserID, succeeded.NetAmount)
		if err != nil {
			return err
		}

		event, err := outbox.NewTransactionEvent(models.EventDepositSucceeded, succeeded, now)
		if err != nil {
			return err
		}
		return s.Outbox().AddEvent(ctx, event)
	})

	switch {
	case err == nil:
		r.metrics.WalletCreditedTotal.Add(t.NetAmount.InexactFloat64())
		l.Info("Deposit succeeded, wallet credited", "user_id", t.UserID, "net_amount", t.NetAmount, "balance", credited.Balance)
		return OutcomeSucceeded, nil
	case errors.Is(err, apperrors.ErrStatusConflict):
		// Settled meanwhile by another delivery or the sweeper
		settled, getErr := r.storage.Transaction().GetByReference(ctx, t.PaymentReference)
		if getErr != nil {
			return "", fmt.Errorf("error while looking up settled transaction: %w", getErr)
		}
		return r.handleTerminal(ctx, l, settled, e)
	default:
		return "", fmt.Errorf("error while applying success event: %w", err)
	}
}

func (r *Reconciler) applyFailure(ctx context.Context, l logger.Logger, t models.Transaction, e Event) (Outcome, error) {
	now := r.now()
	reason := "provider reported " + e.Type

	err := r.storage.InTx(ctx, func(s repository.Storage) error {
		failed, err := s.Transaction().MarkFailed(ctx, t.PaymentReference, reason)
		if err != nil {
			return err
		}

		event, err := outbox.NewTransactionEvent(models.EventDepositFailed, failed, now)
		if err != nil {
			return err
		}
		return s.Outbox().AddEvent(ctx, event)
	})

	switch {
	case err == nil:
		l.Info("Deposit failed by provider")
		return OutcomeFailed, nil
	case errors.Is(err, apperrors.ErrStatusConflict):
		l.Info("Concurrent webhook delivery settled the deposit first")
		return OutcomeDuplicate, nil
	default:
		return "", fmt.Errorf("error while applying failure event: %w", err)
	}
}

func (r *Reconciler) handleTerminal(ctx context.Context, l logger.Logger, t models.Transaction, e Event) (Outcome, error) {
	if e.Kind != KindSuccess || t.Status != models.TransactionStatusFailed {
		l.Info("Duplicate webhook delivery", "status", t.Status)
		return OutcomeDuplicate, nil
	}

	event, err := outbox.NewPaidAfterFailureEvent(t, e.AmountPaid, r.now())
	if err != nil {
		return "", err
	}
	if err := r.storage.Outbox().AddEvent(ctx, event); err != nil {
		return "", fmt.Errorf("error while reporting payment for failed deposit: %w", err)
	}

	r.metrics.PaidAfterFailure.Inc()
	l.Error("Payment received for failed deposit, wallet not credited",
		"user_id", t.UserID,
		"amount", t.Amount,
		"amount_paid", e.AmountPaid,
		"failed_reason", t.FailedReason,
	)
	return OutcomePaidAfterFailure, nil
}
