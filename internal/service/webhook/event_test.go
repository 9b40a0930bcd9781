package webhook

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		kind       Kind
		reference  string
		amountPaid string
	}{
		{
			name:       "nested success",
			body:       `{"eventType": "SUCCESSFUL_TRANSACTION", "eventData": {"paymentReference": "DEP_1", "amountPaid": 2000, "paymentStatus": "PAID"}}`,
			kind:       KindSuccess,
			reference:  "DEP_1",
			amountPaid: "2000",
		},
		{
			name:       "nested amount as string",
			body:       `{"eventType": "SUCCESSFUL_TRANSACTION", "eventData": {"paymentReference": "DEP_1", "amountPaid": "1999.50"}}`,
			kind:       KindSuccess,
			reference:  "DEP_1",
			amountPaid: "1999.50",
		},
		{
			name:      "nested failure",
			body:      `{"eventType": "FAILED_TRANSACTION", "eventData": {"paymentReference": "DEP_1"}}`,
			kind:      KindFailure,
			reference: "DEP_1",
		},
		{
			name:      "nested unknown type",
			body:      `{"eventType": "SUCCESSFUL_REFUND", "eventData": {"paymentReference": "DEP_1"}}`,
			kind:      KindOther,
			reference: "DEP_1",
		},
		{
			name:       "flat paid",
			body:       `{"paymentReference": "DEP_1", "paymentStatus": "PAID", "amountPaid": 2000}`,
			kind:       KindSuccess,
			reference:  "DEP_1",
			amountPaid: "2000",
		},
		{
			name:      "flat lowercase status",
			body:      `{"paymentReference": "DEP_1", "paymentStatus": "paid"}`,
			kind:      KindSuccess,
			reference: "DEP_1",
		},
		{
			name:      "flat cancelled",
			body:      `{"paymentReference": "DEP_1", "paymentStatus": "CANCELLED"}`,
			kind:      KindFailure,
			reference: "DEP_1",
		},
		{
			name:      "flat pending",
			body:      `{"paymentReference": "DEP_1", "paymentStatus": "PENDING"}`,
			kind:      KindOther,
			reference: "DEP_1",
		},
		{
			name: "no reference",
			body: `{"eventType": "SUCCESSFUL_TRANSACTION", "eventData": {}}`,
			kind: KindOther,
		},
		{
			name: "empty object",
			body: `{}`,
			kind: KindOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := ParseEvent([]byte(tt.body))

			require.NoError(t, err)
			require.Equal(t, tt.kind, e.Kind)
			require.Equal(t, tt.reference, e.PaymentReference)
			if tt.amountPaid == "" {
				require.Nil(t, e.AmountPaid)
			} else {
				require.NotNil(t, e.AmountPaid)
				require.True(t, e.AmountPaid.Equal(decimal.RequireFromString(tt.amountPaid)))
			}
		})
	}

	t.Run("malformed", func(t *testing.T) {
		for _, body := range []string{
			`not-json`,
			`{"paymentReference": "DEP_1", "amountPaid": "lots"}`,
			`{"eventType": 42}`,
		} {
			_, err := ParseEvent([]byte(body))

			require.Errorf(t, err, "body %s must be rejected", body)
		}
	})
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"eventType":"SUCCESSFUL_TRANSACTION"}`)
	signature := Sign("client-secret", body)

	require.True(t, VerifySignature("client-secret", body, signature))
	require.Len(t, signature, 128, "sha512 hex")

	require.False(t, VerifySignature("other-secret", body, signature), "wrong secret")
	require.False(t, VerifySignature("client-secret", []byte(`{}`), signature), "tampered body")
	require.False(t, VerifySignature("client-secret", body, ""), "no signature")
	require.False(t, VerifySignature("client-secret", body, "zz"), "not hex")
}
