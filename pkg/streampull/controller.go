// Package streampull runs a bounded streaming pull: it consumes a subscription
// through a single serial pipeline and stops once a stopping condition holds.
package streampull

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/illmade-knight/go-alertstream/pkg/decoder"
	"github.com/illmade-knight/go-alertstream/pkg/handshake"
	"github.com/illmade-knight/go-alertstream/pkg/messagepipeline"
	"github.com/illmade-knight/go-alertstream/pkg/metrics"
	"github.com/illmade-knight/go-alertstream/pkg/stoppolicy"
	"github.com/illmade-knight/go-alertstream/pkg/types"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of a Controller.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason says why a run ended.
type Reason string

const (
	ReasonMaxResults      Reason = "max_results"
	ReasonIdleTimeout     Reason = "idle_timeout"
	ReasonCancelled       Reason = "cancelled"
	ReasonTransportClosed Reason = "transport_closed"
)

// Result is what a run produced.
type Result struct {
	// Records holds the counted records in acceptance order when Collect is set.
	Records []types.Record
	// Accepted is the number of counted messages.
	Accepted int
	Reason   Reason
}

// increment is what the worker reports for one message: n is 0 for an excluded
// message and 1 for a counted one.
type increment struct {
	n      int
	result types.Record
}

// Option configures a Controller.
type Option func(*Controller)

// WithMetrics records message outcomes in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Controller) { c.metrics = reg }
}

// WithSubscriptionName labels logs and metrics with the subscription name.
func WithSubscriptionName(name string) Option {
	return func(c *Controller) { c.subscription = name }
}

// WithClock replaces time.Now for the stop policy's idle check.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns one streaming pull from start to drain. It is single-use:
// once stopped it cannot be started again.
type Controller struct {
	source       messagepipeline.ConsumerSource
	raw          stoppolicy.RawConfig
	hooks        Hooks
	logger       zerolog.Logger
	metrics      *metrics.Registry
	subscription string
	now          func() time.Time

	mu     sync.Mutex
	state  State
	result *Result
	err    error

	cfg      stoppolicy.Config
	consumer messagepipeline.MessageConsumer
	hs       *handshake.Channel[increment]

	// workerCtx is cancelled only after the driver has stopped recording, so a
	// worker blocked in the handshake never loses a recorded increment.
	workerCtx    context.Context
	workerCancel context.CancelFunc
	driveCancel  context.CancelFunc
	stopping     atomic.Bool
	workerDone   chan struct{}
	driveDone    chan struct{}
	stopOnce     sync.Once
	startedAt    time.Time

	// Driver-owned run state.
	run      stoppolicy.RunState
	records  []types.Record
	reason   Reason
	driveErr error
}

// New creates an idle Controller. The stop configuration is validated by Start.
func New(source messagepipeline.ConsumerSource, raw stoppolicy.RawConfig, hooks Hooks, logger zerolog.Logger, opts ...Option) (*Controller, error) {
	if source == nil {
		return nil, errors.New("consumer source cannot be nil")
	}
	if hooks.Decoder == nil {
		hooks.Decoder = decoder.Default()
	}
	if hooks.MetadataKey == "" {
		hooks.MetadataKey = DefaultMetadataKey
	}

	c := &Controller{
		source: source,
		raw:    raw,
		hooks:  hooks,
		now:    time.Now,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.With().Str("component", "StreamingPullController").Str("subscription_id", c.subscription).Logger()
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the driver has stopped receiving, whether because a stop
// condition held, ctx ended, the transport closed or Stop was called. It is nil
// before Start.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driveDone
}

// Start validates the stop configuration, opens the pull with the backlog
// bound as its flow control and starts the worker and driver. ctx bounds the
// run; cancelling it ends the run with ReasonCancelled.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return fmt.Errorf("controller cannot start from state %s", c.state)
	}

	cfg, err := stoppolicy.Validate(c.raw)
	if err != nil {
		return err
	}
	c.cfg = cfg

	consumer, err := c.source.NewConsumer(ctx, messagepipeline.FlowControl{MaxOutstandingMessages: cfg.MaxBacklog})
	if err != nil {
		return fmt.Errorf("failed to open streaming pull: %w", err)
	}

	// The pull and the worker outlive ctx so Stop can drain them in order.
	c.workerCtx, c.workerCancel = context.WithCancel(context.Background())
	if err := consumer.Start(c.workerCtx); err != nil {
		c.workerCancel()
		return fmt.Errorf("failed to start streaming pull: %w", err)
	}
	c.consumer = consumer
	c.hs = handshake.New[increment]()
	c.workerDone = make(chan struct{})
	c.driveDone = make(chan struct{})
	c.startedAt = c.now()
	c.run = stoppolicy.RunState{LastActivity: c.startedAt}

	var driveCtx context.Context
	driveCtx, c.driveCancel = context.WithCancel(ctx)

	c.state = StateRunning
	c.logger.Info().
		Int("max_results", cfg.MaxResults).
		Dur("idle_timeout", cfg.IdleTimeout).
		Int("max_backlog", cfg.MaxBacklog).
		Msg("Streaming pull started")

	go c.worker()
	go c.drive(driveCtx)
	return nil
}

// Run starts the pull, waits until a stopping condition holds and then stops
// and drains it. A transport failure ends the run with partial results and an
// error wrapping types.ErrTransport.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	<-c.Done()
	return c.Stop()
}

// Stop cancels the pull and blocks until every delivered message has been
// acknowledged or nacked. It is idempotent; later calls return the same result.
func (c *Controller) Stop() (*Result, error) {
	c.stopOnce.Do(c.shutdown)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.err
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.state = StateStopped
		c.result = &Result{}
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	c.mu.Unlock()

	c.stopping.Store(true)
	c.driveCancel()
	<-c.driveDone

	// The driver has recorded everything it will record; release the worker.
	c.workerCancel()
	if err := c.consumer.Stop(context.Background()); err != nil {
		c.logger.Warn().Err(err).Msg("Error stopping streaming pull, continuing drain.")
	}
	<-c.workerDone

	if n := c.hs.DrainUnawaited(c.record); n > 0 {
		c.logger.Debug().Int("count", n).Msg("Recorded increments left in the handshake")
	}

	res := &Result{Accepted: c.run.Accepted, Reason: c.reason}
	if c.hooks.Collect {
		res.Records = c.records
	}
	c.metrics.RecordRun(c.subscription, string(c.reason), c.now().Sub(c.startedAt))

	c.mu.Lock()
	c.state = StateStopped
	c.result = res
	c.err = c.driveErr
	c.mu.Unlock()

	c.logger.Info().
		Str("reason", string(res.Reason)).
		Int("accepted", res.Accepted).
		Msg("Streaming pull stopped")
}

// drive is the driver loop. It is the only writer of the run state until it
// returns; after that only shutdown touches it.
func (c *Controller) drive(ctx context.Context) {
	defer close(c.driveDone)
	c.reason, c.driveErr = c.driveLoop(ctx)
	c.stopping.Store(true)
	c.logger.Debug().Str("reason", string(c.reason)).Msg("Driver finished")
}

func (c *Controller) driveLoop(ctx context.Context) (Reason, error) {
	for {
		err := c.hs.Receive(ctx, c.cfg.IdleTimeout, c.record)
		switch {
		case err == nil:
			if !stoppolicy.ShouldContinue(c.run, c.cfg, c.now()) {
				if c.cfg.MaxResults > 0 && c.run.Accepted >= c.cfg.MaxResults {
					return ReasonMaxResults, nil
				}
				return ReasonIdleTimeout, nil
			}
		case errors.Is(err, handshake.ErrTimeout):
			return ReasonIdleTimeout, nil
		case errors.Is(err, handshake.ErrClosed):
			if terr := c.consumer.Err(); terr != nil {
				c.logger.Error().Err(terr).Msg("Streaming pull failed")
				return ReasonTransportClosed, terr
			}
			return ReasonTransportClosed, nil
		default:
			return ReasonCancelled, nil
		}
	}
}

func (c *Controller) record(inc increment) {
	c.run.Accepted += inc.n
	c.run.LastActivity = c.now()
	if inc.n > 0 {
		c.metrics.RecordAccepted(c.subscription, inc.n)
		if c.hooks.Collect && inc.result != nil {
			c.records = append(c.records, inc.result)
		}
	}
}
