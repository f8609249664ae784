// README: Binds server push events to store-mutating service calls.
package channel

import (
	"encoding/json"
	"log"

	"milkrun/internal/modules/order"
	"milkrun/internal/modules/subscription"
	"milkrun/internal/types"
)

// BindOrderEvents registers the push-event handlers that reconcile order
// state. Handlers decode at the boundary and apply through the same store
// mutations REST responses use; malformed payloads are logged and dropped.
func BindOrderEvents(c *Channel, svc *order.Service) {
	c.On(EventNewOrderAvailable, func(data json.RawMessage) {
		o, err := Decode[order.Order](EventNewOrderAvailable, data)
		if err != nil {
			log.Printf("channel: %v", err)
			return
		}
		svc.ApplyAvailable(o)
	})

	c.On(EventOrderAcceptedByOther, func(data json.RawMessage) {
		id, err := Decode[string](EventOrderAcceptedByOther, data)
		if err != nil {
			log.Printf("channel: %v", err)
			return
		}
		svc.ApplyAcceptedByOther(types.ID(id))
	})

	c.On(EventOrderStatusUpdated, func(data json.RawMessage) {
		o, err := Decode[order.Order](EventOrderStatusUpdated, data)
		if err != nil {
			log.Printf("channel: %v", err)
			return
		}
		svc.ApplyStatusUpdate(o)
	})

	c.On(EventDeliveryConfirmed, func(data json.RawMessage) {
		o, err := Decode[order.Order](EventDeliveryConfirmed, data)
		if err != nil {
			log.Printf("channel: %v", err)
			return
		}
		svc.ApplyCompleted(o.ID, order.StatusDelivered)
	})

	c.On(EventOrderCompleted, func(data json.RawMessage) {
		p, err := Decode[OrderCompletedPayload](EventOrderCompleted, data)
		if err != nil {
			log.Printf("channel: %v", err)
			return
		}
		svc.ApplyCompleted(types.ID(p.OrderID), order.Status(p.Status))
	})
}

// BindNotificationEvents registers the notification-only events. The agent
// has no display surface, so they are logged for the shell to observe.
func BindNotificationEvents(c *Channel) {
	for _, event := range []string{EventOrderAccepted, EventOrderConfirmed, EventOrderPickedUp, EventAwaitingConfirmation} {
		ev := event
		c.On(ev, func(data json.RawMessage) {
			p, err := Decode[OrderRefPayload](ev, data)
			if err != nil {
				log.Printf("channel: %v", err)
				return
			}
			log.Printf("channel: notification %s for order %s", ev, p.ID)
		})
	}
}

// BindSubscriptionEvents registers the subscription-delivery push handler.
func BindSubscriptionEvents(c *Channel, svc *subscription.Service) {
	c.On(EventDeliveryUpdated, func(data json.RawMessage) {
		d, err := Decode[subscription.Delivery](EventDeliveryUpdated, data)
		if err != nil {
			log.Printf("channel: %v", err)
			return
		}
		svc.ApplyUpdate(d)
	})
}
