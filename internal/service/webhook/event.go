package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
	KindOther   Kind = "other"
)

// Event is provider notification normalized from any of supported payload shapes
type Event struct {
	Kind             Kind
	Type             string // provider event type or payment status as received
	PaymentReference string
	AmountPaid       *decimal.Decimal
}

var eventTypeKinds = map[string]Kind{
	"SUCCESSFUL_TRANSACTION": KindSuccess,
	"FAILED_TRANSACTION":     KindFailure,
	"EXPIRED_TRANSACTION":    KindFailure,
}

var paymentStatusKinds = map[string]Kind{
	"PAID":      KindSuccess,
	"FAILED":    KindFailure,
	"EXPIRED":   KindFailure,
	"CANCELLED": KindFailure,
	"REVERSED":  KindFailure,
}

type eventData struct {
	PaymentReference string      `json:"paymentReference"`
	PaymentStatus    string      `json:"paymentStatus"`
	AmountPaid       json.Number `json:"amountPaid"`
}

// Both shapes share the fields:
//
//	{"eventType": "...", "eventData": {"paymentReference": "...", "amountPaid": 2000}}
//	{"paymentReference": "...", "paymentStatus": "PAID", "amountPaid": 2000}
type payload struct {
	EventType string     `json:"eventType"`
	EventData *eventData `json:"eventData"`
	eventData
}

// ParseEvent fails on malformed JSON only.
// Well formed payload this service can't interpret becomes KindOther
func ParseEvent(body []byte) (Event, error) {
	var p payload

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return Event{}, fmt.Errorf("malformed webhook payload: %w", err)
	}

	data := p.eventData
	var e Event

	switch {
	case p.EventType != "":
		if p.EventData != nil {
			data = *p.EventData
		}
		e.Type = p.EventType
		e.Kind = classify(eventTypeKinds, p.EventType)
	default:
		e.Type = data.PaymentStatus
		e.Kind = classify(paymentStatusKinds, data.PaymentStatus)
	}

	e.PaymentReference = strings.TrimSpace(data.PaymentReference)
	if e.PaymentReference == "" {
		e.Kind = KindOther
	}

	if data.AmountPaid != "" {
		amount, err := decimal.NewFromString(data.AmountPaid.String())
		if err != nil {
			return Event{}, fmt.Errorf("malformed amountPaid %q: %w", data.AmountPaid, err)
		}
		e.AmountPaid = &amount
	}

	return e, nil
}

func classify(kinds map[string]Kind, value string) Kind {
	if k, ok := kinds[strings.ToUpper(strings.TrimSpace(value))]; ok {
		return k
	}
	return KindOther
}
