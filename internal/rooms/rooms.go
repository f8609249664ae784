// README: Derives broadcast-room membership from the session identity.
package rooms

import (
	"sync"

	"milkrun/internal/channel"
)

// Roles the backend issues room broadcasts for.
const (
	RoleDeliveryPartner = "deliveryPartner"
	RoleCustomer        = "customer"
)

// Identity is the session context rooms are derived from. Role selects
// which per-principal rooms apply; an empty role places no restriction.
type Identity struct {
	PartnerID  string
	BranchID   string
	CustomerID string
	Role       string
}

// Room pairs a room kind with the id to join it under.
type Room struct {
	Kind channel.RoomKind
	ID   string
}

// Membership computes and (re)joins the rooms a session needs. The identity
// may change mid-session (branch reassignment); stale joins are harmless
// server-side, so no explicit leave is issued.
type Membership struct {
	ch *channel.Channel

	mu       sync.Mutex
	identity Identity
}

func NewMembership(ch *channel.Channel, id Identity) *Membership {
	m := &Membership{ch: ch, identity: id}
	// Rejoin on every successful connect, not just the first; a reconnect
	// that lands outside its rooms would silently stop receiving updates.
	ch.OnConnect(m.JoinAll)
	return m
}

// SetIdentity swaps the identity context and joins whatever rooms the new
// identity requires.
func (m *Membership) SetIdentity(id Identity) {
	m.mu.Lock()
	m.identity = id
	m.mu.Unlock()
	m.JoinAll()
}

// Derive lists the rooms the current identity must be a member of.
func (m *Membership) Derive() []Room {
	m.mu.Lock()
	id := m.identity
	m.mu.Unlock()
	var out []Room
	if id.BranchID != "" {
		out = append(out, Room{Kind: channel.RoomBranch, ID: id.BranchID})
	}
	if id.PartnerID != "" && (id.Role == "" || id.Role == RoleDeliveryPartner) {
		out = append(out, Room{Kind: channel.RoomDeliveryPartner, ID: id.PartnerID})
	}
	if id.CustomerID != "" && (id.Role == "" || id.Role == RoleCustomer) {
		out = append(out, Room{Kind: channel.RoomCustomer, ID: id.CustomerID})
	}
	return out
}

// JoinAll issues join requests for every derived room. Joins are no-ops
// while disconnected; the OnConnect hook replays them once a connection is
// up.
func (m *Membership) JoinAll() {
	for _, r := range m.Derive() {
		m.ch.JoinRoom(r.Kind, r.ID)
	}
}

// JoinSubscription joins the room for one subscription's live updates.
func (m *Membership) JoinSubscription(subscriptionID string) {
	m.ch.JoinRoom(channel.RoomSubscription, subscriptionID)
}
