// README: Subscription delivery entity, status machine, and presentation ordering.
package subscription

import (
	"sort"
	"time"

	"milkrun/internal/types"
)

type Status string

const (
	StatusScheduled    Status = "scheduled"
	StatusPending      Status = "pending"
	StatusReaching     Status = "reaching"
	StatusAwaitingCust Status = "awaitingCustomer"
	StatusDelivered    Status = "delivered"
	StatusNoResponse   Status = "noResponse"
	StatusPaused       Status = "paused"
	StatusCanceled     Status = "canceled"
)

type Slot string

const (
	SlotMorning Slot = "morning"
	SlotEvening Slot = "evening"
)

// DateLayout is the day-granularity date carried on a delivery.
const DateLayout = "2006-01-02"

type Product struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Unit     string `json:"unit"`
}

type Customer struct {
	ID    types.ID `json:"id"`
	Name  string   `json:"name"`
	Phone string   `json:"phone"`
}

// Delivery is one scheduled occurrence of a recurring subscription.
// (SubscriptionID, Date) identifies it uniquely.
type Delivery struct {
	ID             types.ID     `json:"_id"`
	SubscriptionID types.ID     `json:"subscriptionId"`
	Date           string       `json:"date"`
	Slot           Slot         `json:"slot"`
	Status         Status       `json:"status"`
	Products       []Product    `json:"products"`
	Customer       Customer     `json:"customer"`
	Address        string       `json:"address"`
	Location       *types.Point `json:"location,omitempty"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// PartnerSubscription is the read-only assignment summary; refreshed
// wholesale on fetch, never patched.
type PartnerSubscription struct {
	ID             types.ID  `json:"_id"`
	CustomerName   string    `json:"customerName"`
	Products       []Product `json:"products"`
	DeliveredCount int       `json:"deliveredCount"`
	RemainingCount int       `json:"remainingCount"`
}

// AllowedTransitions covers the partner-driven flow; paused and canceled are
// administrative and arrive only by push.
var AllowedTransitions = map[Status][]Status{
	StatusScheduled:    {StatusReaching, StatusPaused, StatusCanceled},
	StatusPending:      {StatusReaching, StatusPaused, StatusCanceled},
	StatusReaching:     {StatusAwaitingCust, StatusNoResponse, StatusCanceled},
	StatusAwaitingCust: {StatusDelivered, StatusCanceled},
	StatusPaused:       {StatusScheduled, StatusCanceled},
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

// Terminal statuses stay visible for history but are excluded from
// actionable views.
func Terminal(s Status) bool {
	return s == StatusDelivered || s == StatusNoResponse || s == StatusCanceled
}

func Priority(s Status) int {
	switch s {
	case StatusScheduled, StatusPending:
		return 0
	case StatusReaching:
		return 1
	case StatusAwaitingCust:
		return 2
	case StatusDelivered, StatusNoResponse:
		return 3
	case StatusCanceled:
		return 4
	default:
		return 2
	}
}

// SortDeliveries sorts a copy by ascending priority; stable, ties keep
// arrival order.
func SortDeliveries(ds []Delivery) []Delivery {
	out := make([]Delivery, len(ds))
	copy(out, ds)
	sort.SliceStable(out, func(i, j int) bool {
		return Priority(out[i].Status) < Priority(out[j].Status)
	})
	return out
}
