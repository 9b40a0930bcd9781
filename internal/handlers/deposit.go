package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/lalita/wallet/internal/apperrors"
	"github.com/lalita/wallet/internal/handlers/render"
	"github.com/lalita/wallet/internal/handlers/userctx"
	"github.com/lalita/wallet/internal/logger"
	"github.com/lalita/wallet/internal/service/deposit"
)

func handleCreateDeposit(depositService depositService, l logger.Logger) http.Handler {
	type request struct {
		Amount decimal.Decimal `json:"amount" validate:"money"`
	}

	type response struct {
		CheckoutURL      string `json:"checkoutUrl"`
		PaymentReference string `json:"paymentReference"`
		ExpiresIn        string `json:"expiresIn"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		result, err := depositService.InitiateDeposit(r.Context(), user, data.Amount)
		var rateErr *deposit.RateLimitError

		switch {
		case err == nil:
			render.JSONWithStatus(w, response{
				CheckoutURL:      result.CheckoutURL,
				PaymentReference: result.PaymentReference,
				ExpiresIn:        fmt.Sprintf("%d minutes", int(result.ExpiresIn.Minutes())),
			}, http.StatusCreated)
		case errors.Is(err, apperrors.ErrInvalidAmount):
			render.ServiceError(w, "Amount must be a positive number", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrAmountBelowMinimum), errors.Is(err, apperrors.ErrAmountAboveMaximum):
			render.ServiceError(w, err.Error(), http.StatusBadRequest)
		case errors.As(err, &rateErr):
			retryAfter := int(math.Ceil(rateErr.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
			render.ServiceError(w, "Too many deposit attempts. Please try again later.", http.StatusTooManyRequests)
		default:
			l.Error("Failed to initiate deposit", "error", err, "user_id", user.ID)
			render.ServiceError(w, "Payment initialization failed. Please try again.", http.StatusInternalServerError)
		}
	})
}
