package render

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestValidator_Money(t *testing.T) {
	type request struct {
		Amount decimal.Decimal `json:"amount" validate:"money"`
	}

	tests := []struct {
		body  string
		valid bool
	}{
		{`{"amount": 2000}`, true},
		{`{"amount": "2000"}`, true},
		{`{"amount": 100.5}`, true},
		{`{"amount": 100.55}`, true},
		{`{"amount": 100.555}`, false},
		{`{"amount": 0}`, false},
		{`{"amount": -10}`, false},
		{`{}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			_, err := BindAndValidate[request](rec, r)

			if tt.valid {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.JSONEq(t, `{
				"error": "validation_failed",
				"message": "Request validation failed",
				"fields": {"amount": "Must be a positive amount with at most 2 decimal places"}
			}`, rec.Body.String())
		})
	}
}
