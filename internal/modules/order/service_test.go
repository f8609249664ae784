// README: Order service tests (actions, races, reconciliation).
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"milkrun/internal/audit"
	"milkrun/internal/rest"
	"milkrun/internal/types"
)

type fakeAPI struct {
	calls  int
	getFn  func(path string, out any) error
	postFn func(path string, body, out any) error
}

func (f *fakeAPI) Get(_ context.Context, path string, out any) error {
	f.calls++
	if f.getFn == nil {
		return nil
	}
	return f.getFn(path, out)
}

func (f *fakeAPI) Post(_ context.Context, path string, body, out any) error {
	f.calls++
	if f.postFn == nil {
		return nil
	}
	return f.postFn(path, body, out)
}

func (f *fakeAPI) Patch(_ context.Context, path string, body, out any) error {
	f.calls++
	return nil
}

type fixedLocator struct {
	ok bool
}

func (l fixedLocator) Current() (types.Point, bool) {
	return types.Point{Lat: 12.9, Lng: 77.6}, l.ok
}

func newTestService(api API, locator Locator) *Service {
	return NewService(Deps{
		Store:     NewStore(),
		API:       api,
		Locator:   locator,
		PartnerID: "partner1",
		BranchID:  "branch1",
	})
}

func TestAcceptSuccessMovesOrderToActive(t *testing.T) {
	api := &fakeAPI{
		postFn: func(path string, _, out any) error {
			if !strings.HasSuffix(path, "/accept") {
				t.Fatalf("unexpected path %s", path)
			}
			*out.(*Order) = Order{ID: "o1", Status: StatusAccepted}
			return nil
		},
	}
	svc := newTestService(api, fixedLocator{ok: true})
	svc.Store().AddAvailable(Order{ID: "o1", Status: StatusPending})

	got, err := svc.Accept(context.Background(), "o1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != StatusAccepted {
		t.Errorf("status = %s, want %s", got.Status, StatusAccepted)
	}
	if len(svc.Store().Available()) != 0 {
		t.Errorf("accepted order must leave the available pool")
	}
	if len(svc.Store().Active()) != 1 {
		t.Errorf("accepted order must be active")
	}
}

type recordingSink struct {
	entries []audit.Entry
}

func (s *recordingSink) Log(e audit.Entry) { s.entries = append(s.entries, e) }

// TestAcceptAuditsHeldStatus: the audit trail records the status the order
// actually held in the available pool, not an assumed one.
func TestAcceptAuditsHeldStatus(t *testing.T) {
	tests := []struct {
		name     string
		seed     *Order
		wantFrom Status
	}{
		{
			name:     "held in pool",
			seed:     &Order{ID: "o1", Status: StatusAccepted},
			wantFrom: StatusAccepted,
		},
		{
			name:     "not in pool",
			seed:     nil,
			wantFrom: StatusPending,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{
				postFn: func(path string, _, out any) error {
					*out.(*Order) = Order{ID: "o1", Status: StatusInProgress}
					return nil
				},
			}
			sink := &recordingSink{}
			svc := NewService(Deps{
				Store:     NewStore(),
				API:       api,
				Locator:   fixedLocator{ok: true},
				Audit:     sink,
				PartnerID: "partner1",
				BranchID:  "branch1",
			})
			if tt.seed != nil {
				svc.Store().AddAvailable(*tt.seed)
			}

			if _, err := svc.Accept(context.Background(), "o1"); err != nil {
				t.Fatalf("accept: %v", err)
			}
			if len(sink.entries) != 1 {
				t.Fatalf("logged %d audit entries, want 1", len(sink.entries))
			}
			e := sink.entries[0]
			if e.From != string(tt.wantFrom) {
				t.Errorf("audit From = %s, want %s", e.From, tt.wantFrom)
			}
			if e.To != string(StatusInProgress) {
				t.Errorf("audit To = %s, want %s", e.To, StatusInProgress)
			}
		})
	}
}

// TestAcceptLostRace covers the accept race: the server rejects this
// partner's claim, local state stays untouched, and the later
// orderAcceptedByOther push event is what removes the order.
func TestAcceptLostRace(t *testing.T) {
	api := &fakeAPI{
		postFn: func(path string, _, out any) error {
			return fmt.Errorf("%w: POST %s -> 409", rest.ErrConflict, path)
		},
	}
	svc := newTestService(api, fixedLocator{ok: true})
	svc.Store().AddAvailable(Order{ID: "o1", Status: StatusPending})

	_, err := svc.Accept(context.Background(), "o1")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
	if len(svc.Store().Available()) != 1 {
		t.Errorf("a rejected action must not mutate local state")
	}

	svc.ApplyAcceptedByOther("o1")

	if len(svc.Store().Available()) != 0 {
		t.Errorf("push event should remove the order from available")
	}
	if len(svc.Store().Active()) != 0 {
		t.Errorf("rejected accept must not create an active entry")
	}
}

func TestAcceptRequiresLocationFix(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(api, fixedLocator{ok: false})
	svc.Store().AddAvailable(Order{ID: "o1", Status: StatusPending})

	_, err := svc.Accept(context.Background(), "o1")
	if !errors.Is(err, ErrNoLocation) {
		t.Fatalf("want ErrNoLocation, got %v", err)
	}
	if api.calls != 0 {
		t.Errorf("precondition must block before any network call, got %d calls", api.calls)
	}
}

func TestTransportErrorLeavesStateUntouched(t *testing.T) {
	api := &fakeAPI{
		postFn: func(path string, _, out any) error {
			return fmt.Errorf("%w: dial tcp refused", rest.ErrTransport)
		},
	}
	svc := newTestService(api, nil)
	svc.Store().UpsertActive(Order{ID: "o1", Status: StatusAccepted})

	_, err := svc.Pickup(context.Background(), "o1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
	active := svc.Store().Active()
	if len(active) != 1 || active[0].Status != StatusAccepted {
		t.Errorf("failed action must leave the held status unchanged")
	}
}

func TestFetchActiveReplacesCollection(t *testing.T) {
	api := &fakeAPI{
		getFn: func(path string, out any) error {
			*out.(*[]Order) = []Order{{ID: "o1"}, {ID: "o2"}}
			return nil
		},
	}
	svc := newTestService(api, nil)
	svc.Store().UpsertActive(Order{ID: "stale"})

	if err := svc.FetchActive(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if n := len(svc.Store().Active()); n != 2 {
		t.Errorf("active = %d entries, want 2", n)
	}

	// push landing after the fetch applies on top of the baseline
	svc.ApplyStatusUpdate(Order{ID: "o3", Status: StatusAccepted})
	if n := len(svc.Store().Active()); n != 3 {
		t.Errorf("active = %d entries after push, want 3", n)
	}
}

func TestApplyCompletedIsIdempotent(t *testing.T) {
	svc := newTestService(&fakeAPI{}, nil)
	svc.Store().UpsertActive(Order{ID: "o1", Status: StatusAwaitConfirm})

	svc.ApplyCompleted("o1", StatusDelivered)
	svc.ApplyCompleted("o1", StatusDelivered)

	if n := len(svc.Store().History()); n != 1 {
		t.Errorf("history = %d entries, want 1", n)
	}
	if n := len(svc.Store().Active()); n != 0 {
		t.Errorf("active = %d entries, want 0", n)
	}
}
