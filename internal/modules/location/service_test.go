// README: Location pusher tests (targeting and overlap skip).
package location

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"milkrun/internal/modules/order"
	"milkrun/internal/modules/subscription"
	"milkrun/internal/types"
)

type fakeAPI struct {
	mu      sync.Mutex
	patched []string
	block   chan struct{}
	starts  int32
}

func (f *fakeAPI) Get(_ context.Context, path string, out any) error { return nil }

func (f *fakeAPI) Post(_ context.Context, path string, body, out any) error { return nil }

func (f *fakeAPI) Patch(_ context.Context, path string, body, out any) error {
	atomic.AddInt32(&f.starts, 1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patched = append(f.patched, path)
	return nil
}

func (f *fakeAPI) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.patched))
	copy(out, f.patched)
	return out
}

func newOrderService(api order.API) *order.Service {
	return order.NewService(order.Deps{Store: order.NewStore(), API: api, PartnerID: "p1", BranchID: "b1"})
}

func TestTickPushesOnlyInProgressOrders(t *testing.T) {
	api := &fakeAPI{}
	orders := newOrderService(api)
	orders.Store().UpsertActive(order.Order{ID: "moving", Status: order.StatusInProgress})
	orders.Store().UpsertActive(order.Order{ID: "waiting", Status: order.StatusAccepted})

	src := &Manual{}
	src.Set(types.Point{Lat: 1, Lng: 2})

	p := NewPusher(src, orders, nil, nil, 0, 0)
	p.Tick(context.Background())

	paths := api.paths()
	if len(paths) != 1 {
		t.Fatalf("patched %v, want one call", paths)
	}
	if paths[0] != "/orders/moving/location" {
		t.Errorf("patched %s, want /orders/moving/location", paths[0])
	}
}

func TestTickPushesReachingDeliveries(t *testing.T) {
	api := &fakeAPI{}
	today := time.Now().Format(subscription.DateLayout)
	subs := subscription.NewService(subscription.NewStore(), api, nil, "p1")
	subs.Store().Upsert(subscription.Delivery{ID: "d1", SubscriptionID: "s1", Date: today, Status: subscription.StatusReaching})
	subs.Store().Upsert(subscription.Delivery{ID: "d2", SubscriptionID: "s2", Date: today, Status: subscription.StatusScheduled})

	src := &Manual{}
	src.Set(types.Point{Lat: 1, Lng: 2})

	p := NewPusher(src, nil, subs, nil, 0, 0)
	p.Tick(context.Background())

	paths := api.paths()
	if len(paths) != 1 || paths[0] != "/subscriptions/d1/location" {
		t.Fatalf("patched %v, want [/subscriptions/d1/location]", paths)
	}
}

func TestTickWithoutFixDoesNothing(t *testing.T) {
	api := &fakeAPI{}
	orders := newOrderService(api)
	orders.Store().UpsertActive(order.Order{ID: "moving", Status: order.StatusInProgress})

	p := NewPusher(&Manual{}, orders, nil, nil, 0, 0)
	p.Tick(context.Background())

	if got := api.paths(); len(got) != 0 {
		t.Errorf("patched %v without a location fix", got)
	}
}

// TestRunSkipsOverlappingTicks holds one push in flight and checks later
// ticks are skipped rather than queued behind it.
func TestRunSkipsOverlappingTicks(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{})}
	orders := newOrderService(api)
	orders.Store().UpsertActive(order.Order{ID: "moving", Status: order.StatusInProgress})

	src := &Manual{}
	src.Set(types.Point{Lat: 1, Lng: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPusher(src, orders, nil, nil, time.Millisecond, time.Second)
	go p.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&api.starts) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	// plenty of intervals elapse while the first push blocks
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&api.starts); got != 1 {
		t.Errorf("%d pushes started while one was in flight, want 1", got)
	}
	close(api.block)
}

type countingMirror struct {
	count int32
}

func (m *countingMirror) MirrorPosition(ctx context.Context, p types.Point) error {
	atomic.AddInt32(&m.count, 1)
	return nil
}

func TestTickMirrorsPosition(t *testing.T) {
	src := &Manual{}
	src.Set(types.Point{Lat: 1, Lng: 2})
	mirror := &countingMirror{}

	p := NewPusher(src, nil, nil, mirror, 0, 0)
	p.Tick(context.Background())

	if got := atomic.LoadInt32(&mirror.count); got != 1 {
		t.Errorf("mirrored %d times, want 1", got)
	}
}
