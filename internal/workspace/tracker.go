package workspace

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Kind identifies a slot of workspace state that responses are written into
type Kind int

const (
	KindHistory Kind = iota
	KindSummary
	KindTable
)

func (k Kind) String() string {
	switch k {
	case KindHistory:
		return "history"
	case KindSummary:
		return "summary"
	case KindTable:
		return "table"
	default:
		return "unknown"
	}
}

// Request is one dispatched operation. Its Generation is compared against
// the latest generation of its Kind when the response lands.
type Request struct {
	ID         string
	Kind       Kind
	Generation uint64
}

// Tracker hands out per-kind generations and keeps the cancel funcs of
// in-flight requests so a newer request of the same kind can stop them
type Tracker struct {
	mu          sync.Mutex
	generations map[Kind]uint64
	inflight    map[string]inflightRequest
	closed      bool
}

type inflightRequest struct {
	kind   Kind
	cancel context.CancelFunc
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		generations: make(map[Kind]uint64),
		inflight:    make(map[string]inflightRequest),
	}
}

// Begin starts a request of kind, cancelling every older in-flight request of
// the same kind. The returned done func must be called when the request ends.
func (t *Tracker) Begin(ctx context.Context, kind Kind) (Request, context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		cancel()
		return Request{Kind: kind, Generation: t.generations[kind]}, ctx, func() {}
	}

	for id, r := range t.inflight {
		if r.kind == kind {
			r.cancel()
			delete(t.inflight, id)
		}
	}

	t.generations[kind]++
	req := Request{
		ID:         uuid.New().String(),
		Kind:       kind,
		Generation: t.generations[kind],
	}
	t.inflight[req.ID] = inflightRequest{kind: kind, cancel: cancel}

	done := func() {
		t.mu.Lock()
		delete(t.inflight, req.ID)
		t.mu.Unlock()
		cancel()
	}
	return req, ctx, done
}

// Stamp claims a new generation for kind without cancelling anything.
// Older responses of that kind will be discarded when they land.
func (t *Tracker) Stamp(kind Kind) Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generations[kind]++
	return Request{ID: uuid.New().String(), Kind: kind, Generation: t.generations[kind]}
}

// Abandon gives a stamped generation back when the work it was claimed for
// never produced a result. Nothing changes if a newer generation was handed
// out in the meantime.
func (t *Tracker) Abandon(req Request) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.generations[req.Kind] == req.Generation && req.Generation > 0 {
		t.generations[req.Kind]--
	}
}

// Current reports whether req is still the latest of its kind
func (t *Tracker) Current(req Request) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && t.generations[req.Kind] == req.Generation
}

// Generation returns the latest generation handed out for kind
func (t *Tracker) Generation(kind Kind) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generations[kind]
}

// cancel stops one in-flight request
func (t *Tracker) cancel(requestID string) {
	t.mu.Lock()
	r, ok := t.inflight[requestID]
	delete(t.inflight, requestID)
	t.mu.Unlock()

	if ok {
		r.cancel()
	}
}

// InFlight returns how many requests are running
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// CancelAll stops every in-flight request
func (t *Tracker) CancelAll() {
	t.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(t.inflight))
	for id, r := range t.inflight {
		cancels = append(cancels, r.cancel)
		delete(t.inflight, id)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Close cancels everything; later responses are never current
func (t *Tracker) Close() {
	t.CancelAll()
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}
