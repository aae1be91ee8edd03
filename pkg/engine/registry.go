package engine

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/marmos91/dittosync/pkg/metrics"
)

// Token identifies one logical operation and its index subscription.
type Token string

func newToken() Token {
	return Token(uuid.NewString())
}

// registration tracks one live subscription and the operation's one-shot
// completion latch.
type registration struct {
	// stop releases the current index subscription. Swapped on retry
	// resubscription, called exactly once overall per subscription.
	stop func()

	// completed is the terminal latch. However many notification sources
	// race to finalize the operation (open result, index update, watchdog,
	// cancellation), exactly one CompareAndSwap wins.
	completed atomic.Bool
}

// Registry tracks the live index subscriptions of in-flight operations.
//
// Invariants it enforces:
//   - every registered subscription is released exactly once, whichever code
//     path (success, error, timeout, cancellation) triggers teardown;
//   - releasing an unknown or already-released token is a no-op, because
//     concurrent completion paths may race to release;
//   - at most one terminal result is ever claimed per token.
type Registry struct {
	mu      sync.Mutex
	subs    map[Token]*registration
	metrics *metrics.EngineMetrics
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(m *metrics.EngineMetrics) *Registry {
	return &Registry{
		subs:    make(map[Token]*registration),
		metrics: m,
	}
}

// Register records a live subscription and returns its operation token.
// stop must release the underlying index subscription; it is invoked at most
// once, from Release.
func (r *Registry) Register(stop func()) Token {
	token := newToken()

	r.mu.Lock()
	r.subs[token] = &registration{stop: stop}
	r.mu.Unlock()

	r.metrics.SubscriptionOpened()
	return token
}

// Swap replaces the subscription behind an in-flight token, stopping the old
// one. Used when a retry resubscribes. Swapping a completed or unknown token
// stops the new subscription immediately instead of leaking it.
func (r *Registry) Swap(token Token, stop func()) {
	r.mu.Lock()
	reg, ok := r.subs[token]
	if !ok || reg.completed.Load() {
		r.mu.Unlock()
		stop()
		return
	}
	old := reg.stop
	reg.stop = stop
	r.mu.Unlock()

	if old != nil {
		old()
	}
}

// Claim attempts to take the terminal latch for token. The first caller per
// operation wins; every later caller (duplicate completion notification,
// racing watchdog, late cancellation) gets false and must stand down.
// Claiming an unknown token returns false: the operation already finished.
func (r *Registry) Claim(token Token) bool {
	r.mu.Lock()
	reg, ok := r.subs[token]
	r.mu.Unlock()

	if !ok {
		return false
	}
	return reg.completed.CompareAndSwap(false, true)
}

// Release stops the token's subscription and forgets it. Idempotent.
//
// Callers that deliver a terminal result must Release first, so that no
// late notification can fire after the caller believes the operation is
// over.
func (r *Registry) Release(token Token) {
	r.mu.Lock()
	reg, ok := r.subs[token]
	if ok {
		delete(r.subs, token)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	if reg.stop != nil {
		reg.stop()
	}
	r.metrics.SubscriptionClosed()
}

// Active reports whether token is registered and not yet completed.
func (r *Registry) Active(token Token) bool {
	r.mu.Lock()
	reg, ok := r.subs[token]
	r.mu.Unlock()

	return ok && !reg.completed.Load()
}

// Live returns the number of registered subscriptions. Test hook.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
