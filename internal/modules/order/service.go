// README: Order service; REST actions and push-event reconciliation into the store.
package order

import (
	"context"
	"errors"
	"fmt"
	"log"

	"milkrun/internal/audit"
	"milkrun/internal/rest"
	"milkrun/internal/types"
)

var (
	ErrNoLocation  = errors.New("location fix required")
	ErrConflict    = errors.New("order state conflict")
	ErrUnavailable = errors.New("backend unreachable")
)

// API is the slice of the REST client the service needs.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
}

// RouteEstimator fills live route data for an accepted order. Optional.
type RouteEstimator interface {
	Estimate(ctx context.Context, origin, dest types.Point) (*Route, error)
}

// Locator reports the device's current position, if it has a fix.
type Locator interface {
	Current() (types.Point, bool)
}

// Archive persists terminal orders outside the in-memory history. Optional.
type Archive interface {
	ArchiveOrder(ctx context.Context, o Order) error
}

type Service struct {
	store   *Store
	api     API
	routes  RouteEstimator
	locator Locator
	archive Archive
	audit   audit.Sink

	partnerID types.ID
	branchID  types.ID
}

type Deps struct {
	Store   *Store
	API     API
	Routes  RouteEstimator
	Locator Locator
	Archive Archive
	Audit   audit.Sink

	PartnerID types.ID
	BranchID  types.ID
}

func NewService(deps Deps) *Service {
	sink := deps.Audit
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{
		store:     deps.Store,
		api:       deps.API,
		routes:    deps.Routes,
		locator:   deps.Locator,
		archive:   deps.Archive,
		audit:     sink,
		partnerID: deps.PartnerID,
		branchID:  deps.BranchID,
	}
}

func (s *Service) Store() *Store { return s.store }

type actionReq struct {
	DeliveryPartnerID types.ID `json:"deliveryPartnerId"`
}

type locationReq struct {
	DeliveryPartnerID types.ID    `json:"deliveryPartnerId"`
	Location          types.Point `json:"location"`
}

func (s *Service) FetchAvailable(ctx context.Context) error {
	return s.fetch(ctx, CollectionAvailable, fmt.Sprintf("/orders/available/%s", s.branchID))
}

func (s *Service) FetchActive(ctx context.Context) error {
	return s.fetch(ctx, CollectionActive, fmt.Sprintf("/orders/current/%s", s.partnerID))
}

func (s *Service) FetchHistory(ctx context.Context) error {
	return s.fetch(ctx, CollectionHistory, fmt.Sprintf("/orders/history/%s", s.partnerID))
}

func (s *Service) fetch(ctx context.Context, key CollectionKey, path string) error {
	s.store.BeginFetch(key)
	var orders []Order
	err := mapErr(s.api.Get(ctx, path, &orders))
	s.store.EndFetch(key, orders, err)
	return err
}

// Accept claims an available order for this partner. The server decides the
// race; a rejection leaves local state untouched and surfaces as ErrConflict.
// Requires a location fix before any network call is made.
func (s *Service) Accept(ctx context.Context, orderID types.ID) (Order, error) {
	if s.locator != nil {
		if _, ok := s.locator.Current(); !ok {
			return Order{}, ErrNoLocation
		}
	}
	from := StatusPending
	if held, ok := s.store.AvailableByID(orderID); ok {
		from = held.Status
	}
	var updated Order
	err := s.api.Post(ctx, fmt.Sprintf("/orders/%s/accept", orderID), actionReq{DeliveryPartnerID: s.partnerID}, &updated)
	if err != nil {
		return Order{}, mapErr(err)
	}
	s.enrichRoute(ctx, &updated)
	s.store.RemoveAvailable(orderID)
	s.store.UpsertActive(updated)
	s.record(updated.ID, from, updated.Status, "rest")
	return updated, nil
}

// Pickup marks an accepted order as picked up and in transit.
func (s *Service) Pickup(ctx context.Context, orderID types.ID) (Order, error) {
	return s.action(ctx, orderID, "pickup")
}

// Deliver marks an in-progress order as dropped off; the order then waits
// for customer confirmation.
func (s *Service) Deliver(ctx context.Context, orderID types.ID) (Order, error) {
	return s.action(ctx, orderID, "delivered")
}

func (s *Service) action(ctx context.Context, orderID types.ID, verb string) (Order, error) {
	prev, _ := s.store.ActiveByID(orderID)
	var updated Order
	err := s.api.Post(ctx, fmt.Sprintf("/orders/%s/%s", orderID, verb), actionReq{DeliveryPartnerID: s.partnerID}, &updated)
	if err != nil {
		return Order{}, mapErr(err)
	}
	s.store.UpsertActive(updated)
	s.record(updated.ID, prev.Status, updated.Status, "rest")
	return updated, nil
}

// PushLocation reports the partner's position for an active order.
func (s *Service) PushLocation(ctx context.Context, orderID types.ID, p types.Point) error {
	var updated Order
	err := s.api.Patch(ctx, fmt.Sprintf("/orders/%s/location", orderID), locationReq{DeliveryPartnerID: s.partnerID, Location: p}, &updated)
	if err != nil {
		return mapErr(err)
	}
	if updated.ID != "" {
		s.store.UpsertActive(updated)
	}
	return nil
}

// ApplyAvailable lands a newOrderAvailable push event.
func (s *Service) ApplyAvailable(o Order) {
	s.store.AddAvailable(o)
}

// ApplyAcceptedByOther drops an order another partner claimed first.
func (s *Service) ApplyAcceptedByOther(orderID types.ID) {
	s.store.RemoveAvailable(orderID)
}

// ApplyStatusUpdate lands an orderStatusUpdated push event on top of whatever
// is held locally; last write wins, the server is the source of truth.
func (s *Service) ApplyStatusUpdate(o Order) {
	prev, _ := s.store.ActiveByID(o.ID)
	s.store.UpsertActive(o)
	if prev.Status != o.Status {
		s.record(o.ID, prev.Status, o.Status, "push")
	}
}

// ApplyCompleted retires an order on deliveryConfirmed / orderCompleted.
func (s *Service) ApplyCompleted(orderID types.ID, status Status) {
	prev, active := s.store.ActiveByID(orderID)
	s.store.MoveToHistory(orderID, status)
	if !active {
		return
	}
	if !Terminal(status) {
		status = StatusDelivered
	}
	s.record(orderID, prev.Status, status, "push")
	if s.archive != nil {
		retired := prev
		retired.Status = status
		if err := s.archive.ArchiveOrder(context.Background(), retired); err != nil {
			log.Printf("order: archiving %s: %v", orderID, err)
		}
	}
}

func (s *Service) enrichRoute(ctx context.Context, o *Order) {
	if s.routes == nil || o.Pickup.Position.Zero() || o.Delivery.Position.Zero() {
		return
	}
	route, err := s.routes.Estimate(ctx, o.Pickup.Position, o.Delivery.Position)
	if err != nil {
		log.Printf("order: route estimate for %s: %v", o.ID, err)
		return
	}
	o.Route = route
}

func (s *Service) record(id types.ID, from, to Status, source string) {
	s.audit.Log(audit.Entry{
		Entity:   "order",
		EntityID: string(id),
		From:     string(from),
		To:       string(to),
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
