// Package gatewaywebhook adapts signed payment gateway deliveries into
// payment events.
package gatewaywebhook

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tindahub/marketplace-backend/internal/payments"
	"github.com/tindahub/marketplace-backend/pkg/enums"
	pkgerrors "github.com/tindahub/marketplace-backend/pkg/errors"
	"github.com/tindahub/marketplace-backend/pkg/money"
)

// Delivery is the gateway's webhook body.
type Delivery struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Created int64        `json:"created"`
	Data    DeliveryData `json:"data"`
}

type DeliveryData struct {
	Object PaymentObject `json:"object"`
}

// PaymentObject is the payment or checkout the delivery refers to. ExternalID
// is the merchant reference: an order number or a checkout session id.
// Amount is in minor units (centavos).
type PaymentObject struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Amount     int64  `json:"amount"`
	CheckoutID string `json:"checkout_id"`
	PaidAt     int64  `json:"paid_at"`
}

// Parse decodes a delivery. ok is false for event types the processor does
// not handle, which are acknowledged without processing.
func Parse(body []byte) (*Delivery, payments.Event, bool, error) {
	var d Delivery
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, payments.Event{}, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	if strings.TrimSpace(d.ID) == "" {
		return nil, payments.Event{}, false, pkgerrors.New(pkgerrors.CodeValidation, "delivery id missing")
	}

	eventType := enums.PaymentEventType(strings.TrimSpace(d.Type))
	if !eventType.IsValid() {
		return &d, payments.Event{}, false, nil
	}

	if d.Data.Object.Amount < 0 {
		return &d, payments.Event{}, false, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}

	occurred := d.Data.Object.PaidAt
	if occurred == 0 {
		occurred = d.Created
	}
	event := payments.Event{
		Type:       eventType,
		ExternalID: strings.TrimSpace(d.Data.Object.ExternalID),
		PaymentID:  strings.TrimSpace(d.Data.Object.ID),
		Amount:     money.FromMinor(d.Data.Object.Amount),
		CheckoutID: strings.TrimSpace(d.Data.Object.CheckoutID),
	}
	if occurred > 0 {
		event.OccurredAt = time.Unix(occurred, 0).UTC()
	}
	return &d, event, true, nil
}
