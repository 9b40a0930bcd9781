package handlers

import (
	"io"
	"net/http"

	"github.com/lalita/wallet/internal/handlers/render"
	"github.com/lalita/wallet/internal/logger"
	"github.com/lalita/wallet/internal/service/webhook"
)

const maxWebhookBody = 1 << 20

// Provider retries anything but 2xx, so the handler acknowledges every well formed payload.
// Processing errors are logged, the outbox and the sweeper take care of the consequences
func handleMonnifyWebhook(reconciler reconciler, secret string, l logger.Logger) http.Handler {
	type response struct {
		Received bool `json:"received"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			render.ServiceError(w, "Failed to read request body", http.StatusBadRequest)
			return
		}

		if secret != "" && !webhook.VerifySignature(secret, body, r.Header.Get(webhook.SignatureHeader)) {
			l.Warn("Webhook rejected, invalid signature", "remote_addr", r.RemoteAddr)
			render.ServiceError(w, "Invalid signature", http.StatusUnauthorized)
			return
		}

		event, err := webhook.ParseEvent(body)
		if err != nil {
			l.Warn("Webhook rejected, malformed payload", "error", err)
			render.ServiceError(w, "Malformed payload", http.StatusBadRequest)
			return
		}

		outcome, err := reconciler.HandleCallback(r.Context(), event)
		if err != nil {
			l.Error("Failed to process webhook", "error", err, "reference", event.PaymentReference, "event_type", event.Type)
		} else {
			l.Debug("Webhook processed", "outcome", outcome, "reference", event.PaymentReference)
		}

		render.JSON(w, response{Received: true})
	})
}
