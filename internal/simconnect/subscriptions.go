package simconnect

import (
	"math"
	"sort"
	"sync"
)

// Subscription is a snapshot of one polled datum.
type Subscription struct {
	// ID is allocated from the definition sequence and doubles as the
	// provider's data definition handle.
	ID        uint32
	DatumName string
	Units     string

	// PendingRequestID is meaningful when HasPending is true.
	PendingRequestID uint32
	HasPending       bool

	// LastValue is meaningful when HasValue is true.
	LastValue float64
	HasValue  bool
}

type subscription struct {
	Subscription
	pendingSince uint64 // pulse number the outstanding request was issued on
}

// SubscriptionTable tracks subscribed datums and their outstanding poll
// requests.
//
// Invariants:
//   - at most one subscription per datum name (first subscribe wins)
//   - at most one outstanding request per subscription
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type SubscriptionTable struct {
	mu      sync.Mutex
	ids     *Sequence
	byName  map[string]*subscription
	byID    map[uint32]*subscription
	pending map[uint32]*subscription // request id -> subscription
}

// NewSubscriptionTable creates an empty table allocating ids from ids.
func NewSubscriptionTable(ids *Sequence) *SubscriptionTable {
	t := &SubscriptionTable{ids: ids}
	t.reset()
	return t
}

func (t *SubscriptionTable) reset() {
	t.byName = make(map[string]*subscription)
	t.byID = make(map[uint32]*subscription)
	t.pending = make(map[uint32]*subscription)
}

// Subscribe tracks datumName and returns its id. If the name is already
// tracked the existing id is returned with created=false and units are left
// unchanged.
func (t *SubscriptionTable) Subscribe(datumName, units string) (id uint32, created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.byName[datumName]; ok {
		return s.ID, false
	}

	s := &subscription{Subscription: Subscription{
		ID:        t.ids.Next(),
		DatumName: datumName,
		Units:     units,
	}}
	t.byName[datumName] = s
	t.byID[s.ID] = s
	return s.ID, true
}

// Lookup returns the subscription for datumName.
func (t *SubscriptionTable) Lookup(datumName string) (Subscription, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byName[datumName]
	if !ok {
		return Subscription{}, false
	}
	return s.Subscription, true
}

// Remove drops the subscription with the given id, along with its pending
// request. It reports whether anything was removed.
func (t *SubscriptionTable) Remove(id uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byID[id]
	if !ok {
		return false
	}
	if s.HasPending {
		delete(t.pending, s.PendingRequestID)
	}
	delete(t.byID, id)
	delete(t.byName, s.DatumName)
	return true
}

// ClearAll drops every subscription and every pending request.
func (t *SubscriptionTable) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
}

// DueForPoll returns every subscription without an outstanding request,
// ordered by id.
func (t *SubscriptionTable) DueForPoll() []Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	due := make([]Subscription, 0, len(t.byID))
	for _, s := range t.byID {
		if !s.HasPending {
			due = append(due, s.Subscription)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due
}

// MarkPending records requestID as the outstanding request for the
// subscription with id. pulse is the pulse number the request goes out on.
// It returns false if the subscription is gone, already has an outstanding
// request, or requestID is already in use.
func (t *SubscriptionTable) MarkPending(id, requestID uint32, pulse uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byID[id]
	if !ok || s.HasPending {
		return false
	}
	if _, taken := t.pending[requestID]; taken {
		return false
	}

	s.PendingRequestID = requestID
	s.HasPending = true
	s.pendingSince = pulse
	t.pending[requestID] = s
	return true
}

// Release clears an outstanding request without recording a value, so the
// subscription is polled again on the next pulse.
func (t *SubscriptionTable) Release(requestID uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.pending[requestID]
	if !ok {
		return false
	}
	delete(t.pending, requestID)
	s.HasPending = false
	s.PendingRequestID = 0
	return true
}

// ExpirePending releases every request issued before pulse and returns how
// many were released.
func (t *SubscriptionTable) ExpirePending(before uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for reqID, s := range t.pending {
		if s.pendingSince < before {
			delete(t.pending, reqID)
			s.HasPending = false
			s.PendingRequestID = 0
			n++
		}
	}
	return n
}

// Resolve records a response to requestID. It clears the outstanding request,
// compares value with the previous value bit for bit, and stores it.
//
// ok is false for an unknown or superseded request id; the table is not
// modified in that case.
func (t *SubscriptionTable) Resolve(requestID uint32, value float64) (sub Subscription, changed, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, found := t.pending[requestID]
	if !found {
		return Subscription{}, false, false
	}
	delete(t.pending, requestID)
	s.HasPending = false
	s.PendingRequestID = 0

	changed = !s.HasValue || math.Float64bits(s.LastValue) != math.Float64bits(value)
	s.LastValue = value
	s.HasValue = true
	return s.Subscription, changed, true
}

// Len returns the number of subscriptions.
func (t *SubscriptionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// PendingLen returns the number of outstanding requests.
func (t *SubscriptionTable) PendingLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
