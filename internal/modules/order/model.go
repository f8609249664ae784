// README: Order entity, status machine, and presentation ordering.
package order

import (
	"sort"
	"time"

	"milkrun/internal/types"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusAccepted     Status = "accepted"
	StatusInProgress   Status = "in-progress"
	StatusAwaitConfirm Status = "awaitconfirmation"
	StatusDelivered    Status = "delivered"
	StatusCancelled    Status = "cancelled"
)

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentOnline PaymentMethod = "online"
)

type Location struct {
	Position types.Point `json:"position"`
	Address  string      `json:"address"`
}

type LineItem struct {
	ProductID types.ID `json:"productId"`
	Name      string   `json:"name"`
	Quantity  int      `json:"quantity"`
}

type Customer struct {
	ID    types.ID `json:"id"`
	Name  string   `json:"name"`
	Phone string   `json:"phone"`
}

// Route is the live route snapshot attached to an accepted order.
type Route struct {
	Polyline       []types.Point `json:"polyline"`
	DistanceMeters int           `json:"distanceMeters"`
	Duration       time.Duration `json:"duration"`
}

type Order struct {
	ID              types.ID      `json:"_id"`
	ShortID         string        `json:"shortId"`
	Status          Status        `json:"status"`
	Customer        *Customer     `json:"customer,omitempty"`
	Pickup          Location      `json:"pickup"`
	Delivery        Location      `json:"delivery"`
	Items           []LineItem    `json:"items"`
	Total           types.Money   `json:"total"`
	DeliveryFee     types.Money   `json:"deliveryFee"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`
	PaymentStatus   string        `json:"paymentStatus"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	Route           *Route        `json:"route,omitempty"`
	PartnerLocation *types.Point  `json:"partnerLocation,omitempty"`
}

// AllowedTransitions represents the order state flow as code.
// cancelled is reachable from every non-terminal state.
var AllowedTransitions = map[Status][]Status{
	StatusPending:      {StatusAccepted, StatusCancelled},
	StatusAccepted:     {StatusInProgress, StatusCancelled},
	StatusInProgress:   {StatusAwaitConfirm, StatusCancelled},
	StatusAwaitConfirm: {StatusDelivered, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func Terminal(s Status) bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Action is the partner-side action a status permits next.
type Action string

const (
	ActionAccept  Action = "accept"
	ActionPickup  Action = "pickup"
	ActionDeliver Action = "deliver"
	ActionWait    Action = "wait"
	ActionNone    Action = "none"
)

func ActionFor(s Status) Action {
	switch s {
	case StatusPending:
		return ActionAccept
	case StatusAccepted:
		return ActionPickup
	case StatusInProgress:
		return ActionDeliver
	case StatusAwaitConfirm:
		return ActionWait
	default:
		return ActionNone
	}
}

// Priority orders active work for presentation: the job in progress first,
// then accepted pickups, then deliveries awaiting customer confirmation.
func Priority(s Status) int {
	switch s {
	case StatusInProgress:
		return 0
	case StatusAccepted:
		return 1
	case StatusAwaitConfirm:
		return 2
	default:
		return 3
	}
}

// SortActive sorts a copy of orders by ascending priority. The sort is
// stable: ties keep arrival order.
func SortActive(orders []Order) []Order {
	out := make([]Order, len(orders))
	copy(out, orders)
	sort.SliceStable(out, func(i, j int) bool {
		return Priority(out[i].Status) < Priority(out[j].Status)
	})
	return out
}
