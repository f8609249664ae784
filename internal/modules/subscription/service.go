// README: Subscription delivery service; journey actions and push reconciliation.
package subscription

import (
	"context"
	"errors"
	"fmt"

	"milkrun/internal/audit"
	"milkrun/internal/rest"
	"milkrun/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid delivery state transition")
	ErrNotFound     = errors.New("delivery not found")
	ErrConflict     = errors.New("delivery state conflict")
	ErrUnavailable  = errors.New("backend unreachable")
)

type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
}

type Service struct {
	store *Store
	api   API
	audit audit.Sink

	partnerID types.ID
}

func NewService(store *Store, api API, sink audit.Sink, partnerID types.ID) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{store: store, api: api, audit: sink, partnerID: partnerID}
}

func (s *Service) Store() *Store { return s.store }

type actionReq struct {
	DeliveryPartnerID types.ID `json:"deliveryPartnerId"`
}

type locationReq struct {
	DeliveryPartnerID types.ID    `json:"deliveryPartnerId"`
	Location          types.Point `json:"location"`
}

func (s *Service) FetchDeliveries(ctx context.Context) error {
	s.store.BeginFetch()
	var ds []Delivery
	err := mapErr(s.api.Get(ctx, fmt.Sprintf("/subscriptions/deliveries/%s", s.partnerID), &ds))
	s.store.EndFetch(ds, err)
	return err
}

func (s *Service) FetchAssigned(ctx context.Context) error {
	var subs []PartnerSubscription
	if err := s.api.Get(ctx, fmt.Sprintf("/subscriptions/assigned/%s", s.partnerID), &subs); err != nil {
		return mapErr(err)
	}
	s.store.ReplaceAssigned(subs)
	return nil
}

// StartJourney moves a scheduled delivery to reaching.
func (s *Service) StartJourney(ctx context.Context, deliveryID types.ID) (Delivery, error) {
	return s.action(ctx, deliveryID, "journey/start", StatusReaching)
}

// MarkDelivered records the drop-off; the delivery then awaits the customer.
func (s *Service) MarkDelivered(ctx context.Context, deliveryID types.ID) (Delivery, error) {
	return s.action(ctx, deliveryID, "delivered", StatusAwaitingCust)
}

// MarkNoResponse records that the customer was unreachable.
func (s *Service) MarkNoResponse(ctx context.Context, deliveryID types.ID) (Delivery, error) {
	return s.action(ctx, deliveryID, "no-response", StatusNoResponse)
}

// ConfirmPickup closes out a delivery the customer has collected.
func (s *Service) ConfirmPickup(ctx context.Context, deliveryID types.ID) (Delivery, error) {
	return s.action(ctx, deliveryID, "pickup/confirm", StatusDelivered)
}

func (s *Service) action(ctx context.Context, deliveryID types.ID, verb string, target Status) (Delivery, error) {
	held, ok := s.store.ByID(deliveryID)
	if !ok {
		return Delivery{}, ErrNotFound
	}
	// The journey never skips states locally: reaching must have landed in
	// the store before the drop-off can be recorded.
	if !CanTransition(held.Status, target) {
		return Delivery{}, fmt.Errorf("%w: %s -> %s", ErrInvalidState, held.Status, target)
	}
	var updated Delivery
	err := s.api.Post(ctx, fmt.Sprintf("/subscriptions/%s/%s", deliveryID, verb), actionReq{DeliveryPartnerID: s.partnerID}, &updated)
	if err != nil {
		return Delivery{}, mapErr(err)
	}
	s.store.Upsert(updated)
	s.record(updated, held.Status, "rest")
	return updated, nil
}

// PushLocation reports the partner's position while reaching a customer.
func (s *Service) PushLocation(ctx context.Context, deliveryID types.ID, p types.Point) error {
	var updated Delivery
	err := s.api.Patch(ctx, fmt.Sprintf("/subscriptions/%s/location", deliveryID), locationReq{DeliveryPartnerID: s.partnerID, Location: p}, &updated)
	if err != nil {
		return mapErr(err)
	}
	if updated.ID != "" {
		s.store.Upsert(updated)
	}
	return nil
}

// ApplyUpdate lands a pushed delivery state on top of local state.
func (s *Service) ApplyUpdate(d Delivery) {
	prev, _ := s.store.Get(d.SubscriptionID, d.Date)
	s.store.Upsert(d)
	if prev.Status != d.Status {
		s.record(d, prev.Status, "push")
	}
}

func (s *Service) record(d Delivery, from Status, source string) {
	s.audit.Log(audit.Entry{
		Entity:   "subscription_delivery",
		EntityID: string(d.SubscriptionID) + "@" + d.Date,
		From:     string(from),
		To:       string(d.Status),
		Source:   source,
	})
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rest.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, rest.ErrTransport):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}
