package engine

import (
	"time"

	"github.com/marmos91/dittosync/pkg/index"
	"github.com/marmos91/dittosync/pkg/metrics"
	"github.com/marmos91/dittosync/pkg/remote"
	"github.com/marmos91/dittosync/pkg/retry"
)

// Options tunes the engine's stall handling.
type Options struct {
	// IdleInterval is how long a transfer may go without forward progress
	// (no progress event, no status transition) before the idle watchdog
	// fires.
	IdleInterval time.Duration

	// MaxAttempts bounds the total attempts of one transfer: the first try
	// plus watchdog-triggered retries.
	MaxAttempts int

	// Backoff is the delay curve between watchdog-triggered retries.
	Backoff retry.Backoff

	// Metrics receives engine observations. Nil disables collection.
	Metrics *metrics.EngineMetrics
}

// Defaults used for unset options.
const (
	DefaultIdleInterval = 30 * time.Second
	DefaultMaxAttempts  = 3
)

func (o Options) withDefaults() Options {
	if o.IdleInterval <= 0 {
		o.IdleInterval = DefaultIdleInterval
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Backoff == (retry.Backoff{}) {
		o.Backoff = retry.Default()
	}
	return o
}

// Engine coordinates transfers, listings and structural mutations against
// one container.
//
// Operations are independent: each owns its token, its index subscription
// and its completion latch, so arbitrarily many may run concurrently against
// the same container without interference. No engine-wide lock is ever held
// across a coordinated open.
type Engine struct {
	view  index.View
	coord remote.Coordinator
	opts  Options
	reg   *Registry
}

// New creates an engine over the given index view and coordinated-access
// primitive.
func New(view index.View, coord remote.Coordinator, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		view:  view,
		coord: coord,
		opts:  opts,
		reg:   NewRegistry(opts.Metrics),
	}
}

// LiveSubscriptions reports the number of currently registered index
// subscriptions. Intended for tests and introspection.
func (e *Engine) LiveSubscriptions() int {
	return e.reg.Live()
}
