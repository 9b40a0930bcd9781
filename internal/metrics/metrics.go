// Package metrics holds prometheus collectors of the wallet service.
// Collectors are registered on an explicit registry so tests get their own.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wallet"

// Deposit outcomes
const (
	DepositInitiated   = "initiated"
	DepositRejected    = "rejected"
	DepositRateLimited = "rate_limited"
	DepositFailed      = "failed"
)

// Webhook outcomes
const (
	WebhookSucceeded        = "succeeded"
	WebhookFailed           = "failed"
	WebhookDuplicate        = "duplicate"
	WebhookUnknownReference = "unknown_reference"
	WebhookIgnored          = "ignored"
	WebhookPaidAfterFailure = "paid_after_failure"
	WebhookError            = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	DepositsTotal        *prometheus.CounterVec
	WebhookEventsTotal   *prometheus.CounterVec
	AmountMismatchTotal  prometheus.Counter
	PaidAfterFailure     prometheus.Counter
	WalletCreditedTotal  prometheus.Counter
	GatewayDuration      *prometheus.HistogramVec
	HTTPRequestDuration  *prometheus.HistogramVec
	OutboxPublishedTotal prometheus.Counter
	OutboxPublishErrors  prometheus.Counter
	StaleExpiredTotal    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		DepositsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposits_total",
			Help:      "Deposit initiation attempts by outcome",
		}, []string{"outcome"}),

		WebhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Provider webhook events by reconciliation outcome",
		}, []string{"outcome"}),

		AmountMismatchTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_amount_mismatch_total",
			Help:      "Success events whose paid amount differs from the deposit amount",
		}),

		PaidAfterFailure: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_paid_after_failure_total",
			Help:      "Success events for deposits already failed; money received but not credited",
		}),

		WalletCreditedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_credited_naira_total",
			Help:      "Net amount credited to wallets",
		}),

		GatewayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Payment gateway initialization latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"result"}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		OutboxPublishedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Events published to the broker",
		}),

		OutboxPublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publish_errors_total",
			Help:      "Failed outbox publish batches",
		}),

		StaleExpiredTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_deposits_expired_total",
			Help:      "Deposits failed by the sweeper by their previous status",
		}, []string{"status"}),
	}
}

// Handler serves the registry in prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
