// README: Periodic location pusher for active work, with overlap skip.
package location

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"milkrun/internal/modules/order"
	"milkrun/internal/modules/subscription"
	"milkrun/internal/types"
)

// Source reports the device's current position, if a fix exists.
type Source interface {
	Current() (types.Point, bool)
}

// Manual is a settable source; the app shell reports device positions into
// it through the local API.
type Manual struct {
	mu  sync.RWMutex
	p   types.Point
	set bool
}

func (m *Manual) Set(p types.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.p = p
	m.set = true
}

func (m *Manual) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = false
}

func (m *Manual) Current() (types.Point, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.p, m.set
}

// Mirror records the last accepted position outside the process. Optional.
type Mirror interface {
	MirrorPosition(ctx context.Context, p types.Point) error
}

// Pusher reports the partner's position for in-flight work on a fixed
// interval. A tick still in flight when the next fires is skipped, never
// queued, so slow location calls cannot pile up.
type Pusher struct {
	source   Source
	orders   *order.Service
	subs     *subscription.Service
	mirror   Mirror
	interval time.Duration
	timeout  time.Duration

	inFlight atomic.Bool
}

func NewPusher(source Source, orders *order.Service, subs *subscription.Service, mirror Mirror, interval, timeout time.Duration) *Pusher {
	if interval <= 0 {
		interval = 2500 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Pusher{
		source:   source,
		orders:   orders,
		subs:     subs,
		mirror:   mirror,
		interval: interval,
		timeout:  timeout,
	}
}

func (p *Pusher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.inFlight.CompareAndSwap(false, true) {
				continue
			}
			go func() {
				defer p.inFlight.Store(false)
				tickCtx, cancel := context.WithTimeout(ctx, p.timeout)
				defer cancel()
				p.Tick(tickCtx)
			}()
		}
	}
}

// Tick pushes the current position for every order in transit and every
// delivery being reached. Failures are logged and absorbed; the next tick
// simply tries again.
func (p *Pusher) Tick(ctx context.Context) {
	pos, ok := p.source.Current()
	if !ok {
		return
	}

	if p.orders != nil {
		for _, o := range p.orders.Store().Active() {
			if o.Status != order.StatusInProgress {
				continue
			}
			if err := p.orders.PushLocation(ctx, o.ID, pos); err != nil {
				log.Printf("location: pushing for order %s: %v", o.ID, err)
			}
		}
	}

	if p.subs != nil {
		for _, d := range p.subs.Store().Today() {
			if d.Status != subscription.StatusReaching {
				continue
			}
			if err := p.subs.PushLocation(ctx, d.ID, pos); err != nil {
				log.Printf("location: pushing for delivery %s: %v", d.ID, err)
			}
		}
	}

	if p.mirror != nil {
		if err := p.mirror.MirrorPosition(ctx, pos); err != nil {
			log.Printf("location: mirroring position: %v", err)
		}
	}
}
