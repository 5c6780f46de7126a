package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Candidate attempts before giving up on the bloom reuse window, and before
// declaring the token space exhausted.
const (
	freshTokenAttempts = 32
	maxTokenAttempts   = 4096
)

// Ledger owns the live-order set and the pickup tokens currently in use.
// Every mutation (placement, status transition, the collected→history move)
// and every token-uniqueness check runs under one mutex, so all ledger
// operations are linearizable with respect to each other. Storage writes
// happen inside the critical section (write-through), which keeps the
// in-memory state and the database in lockstep.
type Ledger struct {
	store Store
	gen   *TokenGenerator

	mu     sync.Mutex
	live   map[string]*Order // order id -> live order
	tokens map[string]string // token -> order id

	now func() time.Time
}

// NewLedger creates a ledger on top of the given store, recovering the live
// set (and the tokens it holds) from storage.
func NewLedger(ctx context.Context, store Store, gen *TokenGenerator) (*Ledger, error) {
	l := &Ledger{
		store:  store,
		gen:    gen,
		live:   make(map[string]*Order),
		tokens: make(map[string]string),
		now:    time.Now,
	}

	orders, err := store.ListLive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load live orders")
	}
	for i := range orders {
		o := orders[i]
		l.live[o.ID] = &o
		l.tokens[o.Token] = o.ID
	}
	return l, nil
}

// Place assigns an ID and a unique pickup token to the draft, inserts the
// resulting order into the live set with status pending, and persists it.
// It fails only on resource exhaustion or storage errors, never for
// business reasons: the draft was already validated by checkout.
func (l *Ledger) Place(ctx context.Context, draft *Draft) (*Order, error) {
	if draft == nil || len(draft.Lines) == 0 {
		return nil, ErrEmptyDraft
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	token, err := l.issueToken()
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:        uuid.New().String(),
		Token:     token,
		Lines:     append([]Line(nil), draft.Lines...),
		Total:     draft.Total,
		Status:    StatusPending,
		CreatedAt: l.now(),
	}

	if err := l.store.InsertLive(ctx, o); err != nil {
		// A token collision at the unique index means another ledger instance
		// grabbed the token; retry once with a fresh one before surfacing.
		if !errors.Is(err, ErrTokenConflict) {
			return nil, errors.Wrap(err, "insert order")
		}
		if o.Token, err = l.issueToken(); err != nil {
			return nil, err
		}
		if err := l.store.InsertLive(ctx, o); err != nil {
			if errors.Is(err, ErrTokenConflict) {
				return nil, ErrTokenConflict
			}
			return nil, errors.Wrap(err, "insert order")
		}
	}

	l.live[o.ID] = o
	l.tokens[o.Token] = o.ID

	cp := *o
	return &cp, nil
}

// Advance moves the order one step along the fixed status sequence.
func (l *Ledger) Advance(ctx context.Context, id string) (*Order, error) {
	return l.AdvanceTo(ctx, id, "")
}

// AdvanceTo moves the order one step, additionally verifying the step lands
// on the given target status when one is supplied. A retried call whose
// transition was already applied therefore reports ErrIllegalTransition
// instead of silently advancing the order a second time.
//
// On the transition into collected the order's completion timestamp is set,
// an immutable history record is written, and the order leaves the live set
// releasing its token. The storage move is a single transaction and the
// whole step happens under the ledger mutex, so no observer ever sees the
// order both live and in history, or in neither.
func (l *Ledger) AdvanceTo(ctx context.Context, id string, to Status) (*Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.live[id]
	if !ok {
		// Distinguish an already-collected order from an unknown one.
		collected, err := l.store.InHistory(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "check history for %s", id)
		}
		if collected {
			return nil, errors.Wrapf(ErrIllegalTransition, "order %s already collected", id)
		}
		return nil, ErrNotFound
	}

	next, err := o.Status.Next()
	if err != nil {
		return nil, err
	}
	if to != "" && to != next {
		return nil, errors.Wrapf(ErrIllegalTransition, "%s -> %s (next is %s)", o.Status, to, next)
	}

	if next == StatusCollected {
		rec := &CompletedOrder{
			ID:          o.ID,
			Token:       o.Token,
			Lines:       append([]Line(nil), o.Lines...),
			Total:       o.Total,
			CompletedAt: l.now(),
		}
		if err := l.store.MoveToHistory(ctx, rec); err != nil {
			return nil, errors.Wrapf(err, "move order %s to history", id)
		}
		delete(l.live, o.ID)
		delete(l.tokens, o.Token)
		l.gen.Release(o.Token)

		cp := *o
		cp.Status = StatusCollected
		return &cp, nil
	}

	if err := l.store.UpdateStatus(ctx, o.ID, next); err != nil {
		return nil, errors.Wrapf(err, "update status of %s", id)
	}
	o.Status = next

	cp := *o
	return &cp, nil
}

// LiveOrders returns a snapshot of all non-collected orders, oldest first.
func (l *Ledger) LiveOrders() []Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Order, 0, len(l.live))
	for _, o := range l.live {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// PendingCount returns the number of live orders still awaiting the kitchen
// (pending or preparing).
func (l *Ledger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, o := range l.live {
		if o.Status.Pending() {
			n++
		}
	}
	return n
}

// History returns up to limit completed orders, most recent first.
func (l *Ledger) History(ctx context.Context, limit int) ([]CompletedOrder, error) {
	recs, err := l.store.History(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list history")
	}
	return recs, nil
}

// Snapshot captures a consistent view of the ledger for the aggregation
// view: the live set plus history statistics. It runs under the ledger
// mutex, so a concurrent collected→history move can never be observed torn
// (an order counted twice, or not at all).
type Snapshot struct {
	Live           []Order
	CompletedSince int
	Revenue        decimal.Decimal
}

// SnapshotSince captures the current live orders together with history
// counts for records completed at or after since and the all-time revenue.
func (l *Ledger) SnapshotSince(ctx context.Context, since time.Time) (*Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	live := make([]Order, 0, len(l.live))
	for _, o := range l.live {
		live = append(live, *o)
	}

	hs, err := l.store.HistoryStats(ctx, since)
	if err != nil {
		return nil, errors.Wrap(err, "history stats")
	}

	return &Snapshot{
		Live:           live,
		CompletedSince: hs.CompletedSince,
		Revenue:        hs.Revenue,
	}, nil
}

// issueToken picks a token candidate not used by any live order. For the
// first attempts it also avoids tokens released within the retention window;
// if the space looks crowded it falls back to plain uniqueness, and finally
// gives up with ErrTokenConflict. Must be called with l.mu held.
func (l *Ledger) issueToken() (string, error) {
	for i := 0; i < maxTokenAttempts; i++ {
		t := l.gen.Candidate()
		if _, used := l.tokens[t]; used {
			continue
		}
		if i < freshTokenAttempts && l.gen.RecentlyReleased(t) {
			continue
		}
		return t, nil
	}
	return "", errors.Wrap(ErrTokenConflict, "token space exhausted")
}
