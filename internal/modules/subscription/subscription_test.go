// README: Subscription delivery tests (journey ordering, partition, merge key).
package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	postFn func(path string, body, out any) error
}

func (f *fakeAPI) Get(_ context.Context, path string, out any) error { return nil }

func (f *fakeAPI) Post(_ context.Context, path string, body, out any) error {
	if f.postFn == nil {
		return nil
	}
	return f.postFn(path, body, out)
}

func (f *fakeAPI) Patch(_ context.Context, path string, body, out any) error { return nil }

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusReaching, true},
		{StatusPending, StatusReaching, true},
		{StatusReaching, StatusAwaitingCust, true},
		{StatusReaching, StatusNoResponse, true},
		{StatusAwaitingCust, StatusDelivered, true},
		{StatusScheduled, StatusCanceled, true},
		{StatusPaused, StatusScheduled, true},
		// skipping the journey is illegal
		{StatusScheduled, StatusAwaitingCust, false},
		{StatusScheduled, StatusDelivered, false},
		{StatusReaching, StatusDelivered, false},
		// terminal states stay terminal
		{StatusDelivered, StatusScheduled, false},
		{StatusNoResponse, StatusReaching, false},
		{StatusCanceled, StatusScheduled, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

// TestJourneyLifecycle walks scheduled -> reaching -> awaitingCustomer and
// checks the intermediate state must land in the store first.
func TestJourneyLifecycle(t *testing.T) {
	api := &fakeAPI{
		postFn: func(path string, _, out any) error {
			d := out.(*Delivery)
			switch {
			case strings.HasSuffix(path, "/journey/start"):
				*d = Delivery{ID: "d1", SubscriptionID: "s1", Date: "2026-08-31", Status: StatusReaching}
			case strings.HasSuffix(path, "/delivered"):
				*d = Delivery{ID: "d1", SubscriptionID: "s1", Date: "2026-08-31", Status: StatusAwaitingCust}
			default:
				return fmt.Errorf("unexpected path %s", path)
			}
			return nil
		},
	}
	svc := NewService(NewStore(), api, nil, "partner1")
	svc.Store().Upsert(Delivery{ID: "d1", SubscriptionID: "s1", Date: "2026-08-31", Status: StatusScheduled})

	// drop-off before the journey started must be refused locally
	_, err := svc.MarkDelivered(context.Background(), "d1")
	require.ErrorIs(t, err, ErrInvalidState, "scheduled must not skip to awaitingCustomer")

	d, err := svc.StartJourney(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusReaching, d.Status)

	held, ok := svc.Store().ByID("d1")
	require.True(t, ok)
	assert.Equal(t, StatusReaching, held.Status, "reaching must be applied in the store")

	d, err = svc.MarkDelivered(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingCust, d.Status)
}

func TestActionOnUnknownDelivery(t *testing.T) {
	svc := NewService(NewStore(), &fakeAPI{}, nil, "partner1")
	_, err := svc.StartJourney(context.Background(), "never-seen")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpsertKeyedBySubscriptionAndDate(t *testing.T) {
	s := NewStore()
	s.Upsert(Delivery{ID: "d1", SubscriptionID: "s1", Date: "2026-08-31", Status: StatusScheduled})
	s.Upsert(Delivery{ID: "d1", SubscriptionID: "s1", Date: "2026-09-01", Status: StatusScheduled})
	s.Upsert(Delivery{ID: "d2", SubscriptionID: "s1", Date: "2026-08-31", Status: StatusReaching})

	// two distinct occurrences; the third call merged into the first
	got, ok := s.Get("s1", "2026-08-31")
	require.True(t, ok)
	assert.Equal(t, StatusReaching, got.Status)

	if today := append(s.Today(), s.Upcoming()...); len(today) != 2 {
		t.Fatalf("expected 2 occurrences total, got %d", len(today))
	}
}

func TestTodayUpcomingPartition(t *testing.T) {
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.Local)
	s := NewStoreAt(func() time.Time { return now })
	s.Upsert(Delivery{SubscriptionID: "s1", Date: "2026-08-31"})
	s.Upsert(Delivery{SubscriptionID: "s2", Date: "2026-08-30"})
	s.Upsert(Delivery{SubscriptionID: "s3", Date: "2026-09-01"})

	assert.Len(t, s.Today(), 2, "today holds current and past dates")
	require.Len(t, s.Upcoming(), 1)
	assert.Equal(t, "2026-09-01", s.Upcoming()[0].Date)
}

func TestSortDeliveriesPriorities(t *testing.T) {
	in := []Delivery{
		{ID: "canceled", Status: StatusCanceled},
		{ID: "done", Status: StatusDelivered},
		{ID: "await", Status: StatusAwaitingCust},
		{ID: "sched", Status: StatusScheduled},
		{ID: "reach", Status: StatusReaching},
		{ID: "odd", Status: Status("???")},
	}
	got := SortDeliveries(in)
	want := []string{"sched", "reach", "await", "odd", "done", "canceled"}
	for i, id := range want {
		if string(got[i].ID) != id {
			t.Fatalf("position %d: got %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestStaleUpdateDiscarded(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.Upsert(Delivery{SubscriptionID: "s1", Date: "2026-08-31", Status: StatusReaching, UpdatedAt: now})
	s.Upsert(Delivery{SubscriptionID: "s1", Date: "2026-08-31", Status: StatusScheduled, UpdatedAt: now.Add(-time.Hour)})

	got, ok := s.Get("s1", "2026-08-31")
	require.True(t, ok)
	assert.Equal(t, StatusReaching, got.Status)
}
