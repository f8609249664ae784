// README: Push-event names and typed payload decoding at the channel boundary.
package channel

import (
	"encoding/json"
	"fmt"
)

// Server-pushed event names.
const (
	EventNewOrderAvailable    = "newOrderAvailable"
	EventOrderAcceptedByOther = "orderAcceptedByOther"
	EventOrderStatusUpdated   = "orderStatusUpdated"
	EventDeliveryConfirmed    = "deliveryConfirmed"
	EventOrderCompleted       = "orderCompleted"
	EventOrderAccepted        = "orderAccepted"
	EventOrderConfirmed       = "orderConfirmed"
	EventOrderPickedUp        = "orderPickedUp"
	EventAwaitingConfirmation = "awaitingCustomerConfirmation"
	EventDeliveryUpdated      = "subscriptionDeliveryUpdated"
)

// OrderCompletedPayload carries the terminal notice for an order.
type OrderCompletedPayload struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// OrderRefPayload carries a bare order reference for notification events.
type OrderRefPayload struct {
	ID                string `json:"_id"`
	DeliveryPartnerID string `json:"deliveryPartner,omitempty"`
}

// Decode unmarshals an event payload into T, rejecting malformed data at the
// boundary instead of letting it reach the stores.
func Decode[T any](event string, data json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %s payload: %w", event, err)
	}
	return v, nil
}
