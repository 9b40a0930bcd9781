package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lalita/wallet/internal/apperrors"
	"github.com/lalita/wallet/internal/handlers/render"
	"github.com/lalita/wallet/internal/handlers/userctx"
	"github.com/lalita/wallet/internal/logger"
	"github.com/lalita/wallet/internal/models"
	"github.com/lalita/wallet/internal/repository"
)

type transactionResponse struct {
	PaymentReference string     `json:"paymentReference"`
	Type             string     `json:"type"`
	Status           string     `json:"status"`
	Amount           float64    `json:"amount"`
	PlatformFee      float64    `json:"platformFee"`
	NetAmount        float64    `json:"netAmount"`
	CheckoutURL      string     `json:"checkoutUrl,omitempty"`
	FailedReason     string     `json:"failedReason,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

func toTransactionResponse(t models.Transaction) transactionResponse {
	return transactionResponse{
		PaymentReference: t.PaymentReference,
		Type:             t.Type,
		Status:           t.Status,
		Amount:           t.Amount.InexactFloat64(),
		PlatformFee:      t.PlatformFee.InexactFloat64(),
		NetAmount:        t.NetAmount.InexactFloat64(),
		CheckoutURL:      t.CheckoutURL,
		FailedReason:     t.FailedReason,
		CreatedAt:        t.CreatedAt,
		CompletedAt:      t.CompletedAt,
	}
}

func handleBalance(walletService walletService, l logger.Logger) http.Handler {
	type response struct {
		Balance float64 `json:"balance"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		wallet, err := walletService.GetBalance(r.Context(), user)

		switch err {
		case nil:
			render.JSON(w, response{Balance: wallet.Balance.InexactFloat64()})
		default:
			l.Error("Failed to get balance", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleWithdraw(walletService walletService, l logger.Logger) http.Handler {
	type request struct {
		Amount decimal.Decimal `json:"amount" validate:"money"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		withdraw, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		t, err := walletService.Withdraw(r.Context(), user, withdraw.Amount)

		switch {
		case err == nil:
			render.JSON(w, toTransactionResponse(t))
		case errors.Is(err, apperrors.ErrBalanceInsufficient):
			render.ServiceError(w, "Insufficient balance", http.StatusPaymentRequired)
		case errors.Is(err, apperrors.ErrInvalidAmount):
			render.ServiceError(w, "Amount must be a positive number", http.StatusBadRequest)
		default:
			l.Error("Failed to withdraw", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleListTransactions(walletService walletService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		opts, err := parseListOpts(r)
		if err != nil {
			render.ServiceError(w, err.Error(), http.StatusBadRequest)
			return
		}

		tr, err := walletService.ListTransactions(r.Context(), user, opts)

		switch err {
		case nil:
			transactions := make([]transactionResponse, 0, len(tr))
			for _, t := range tr {
				transactions = append(transactions, toTransactionResponse(t))
			}
			render.JSON(w, transactions)
		default:
			l.Error("Failed to list transactions", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func parseListOpts(r *http.Request) (repository.ListTransactionsOpts, error) {
	var opts repository.ListTransactionsOpts
	q := r.URL.Query()

	switch typ := q.Get("type"); typ {
	case "":
	case models.TransactionTypeDeposit, models.TransactionTypeWithdrawal:
		opts.Types = []string{typ}
	default:
		return opts, errors.New("type must be deposit or withdrawal")
	}

	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, errors.New(name + " must be a non-negative integer")
		}
		*dst = n
	}

	return opts, nil
}

func handleVerifyPayment(walletService walletService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		t, err := walletService.VerifyPayment(r.Context(), user, r.PathValue("reference"))

		switch {
		case err == nil:
			render.JSON(w, toTransactionResponse(t))
		case errors.Is(err, apperrors.ErrTransactionNotFound):
			render.ServiceError(w, "Payment not found", http.StatusNotFound)
		default:
			l.Error("Failed to verify payment", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
