package apperrors

import (
	"errors"
)

var (
	ErrInvalidAmount      = errors.New("amount is invalid")
	ErrAmountBelowMinimum = errors.New("amount is below deposit minimum")
	ErrAmountAboveMaximum = errors.New("amount is above deposit maximum")
	ErrRateLimited        = errors.New("too many deposit attempts")

	ErrTransactionNotFound = errors.New("transaction not found")
	ErrReferenceTaken      = errors.New("payment reference already exists")
	ErrStatusConflict      = errors.New("transaction status does not allow this transition")

	ErrWalletNotFound      = errors.New("wallet not found")
	ErrBalanceInsufficient = errors.New("insufficient balance")

	ErrPaymentInit  = errors.New("payment initialization failed")
	ErrUnauthorized = errors.New("unauthorized")
)
