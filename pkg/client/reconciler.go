package client

import (
	"sort"
	"sync"
)

// Reconciler maintains a local read model of tire requests, fed by
// incremental lifecycle events and corrected by full resyncs. Events carry a
// per-request sequence; anything at or below the last applied sequence is a
// duplicate or out-of-order replay and is discarded, so applying the same
// stream twice converges to the same state.
type Reconciler struct {
	mu          sync.RWMutex
	requests    map[int64]Request
	lastApplied map[int64]int64
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		requests:    make(map[int64]Request),
		lastApplied: make(map[int64]int64),
	}
}

// Apply folds one lifecycle event into the cache. It returns true when the
// event advanced local state, false when it was stale and dropped.
func (r *Reconciler) Apply(event LifecycleEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Sequence <= r.lastApplied[event.RequestID] {
		return false
	}

	req, known := r.requests[event.RequestID]
	if !known && event.Type != EventCreated {
		// Event for a request we never fetched. Record the sequence so a
		// later duplicate is still rejected; the next resync fills the gap.
		r.lastApplied[event.RequestID] = event.Sequence
		return true
	}

	switch event.Type {
	case EventCreated:
		req.ID = event.RequestID
		req.Status = event.NewStatus
		req.SubmitterID = event.ActorID
		req.SubmittedAt = event.Timestamp
	case EventStatusChanged:
		req.Status = event.NewStatus
		req.UpdatedAt = event.Timestamp
	case EventDeleted:
		req.IsDeleted = true
		actor := event.ActorID
		req.DeletedBy = &actor
		ts := event.Timestamp
		req.DeletedAt = &ts
		req.UpdatedAt = event.Timestamp
	case EventRestored:
		req.IsDeleted = false
		req.DeletedBy = nil
		req.DeletedAt = nil
		actor := event.ActorID
		req.RestoredBy = &actor
		ts := event.Timestamp
		req.RestoredAt = &ts
		req.UpdatedAt = event.Timestamp
	default:
		return false
	}
	req.EventSeq = event.Sequence

	r.requests[event.RequestID] = req
	r.lastApplied[event.RequestID] = event.Sequence
	return true
}

// Resync replaces the cache with an authoritative snapshot. Called after
// every reconnect: sequences are per-session on the wire, so any gap across
// a disconnect is unrecoverable without a full fetch.
func (r *Reconciler) Resync(snapshot []Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests = make(map[int64]Request, len(snapshot))
	r.lastApplied = make(map[int64]int64, len(snapshot))
	for _, req := range snapshot {
		r.requests[req.ID] = req
		r.lastApplied[req.ID] = req.EventSeq
	}
}

// Get returns the cached request.
func (r *Reconciler) Get(id int64) (Request, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	return req, ok
}

// Active returns non-deleted requests ordered by id.
func (r *Reconciler) Active() []Request {
	return r.collect(func(req Request) bool { return !req.IsDeleted })
}

// Deleted returns soft-deleted requests ordered by id.
func (r *Reconciler) Deleted() []Request {
	return r.collect(func(req Request) bool { return req.IsDeleted })
}

// Len reports how many requests are cached.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.requests)
}

func (r *Reconciler) collect(keep func(Request) bool) []Request {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Request, 0, len(r.requests))
	for _, req := range r.requests {
		if keep(req) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
