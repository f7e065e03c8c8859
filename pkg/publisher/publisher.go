package publisher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ava-labs/publish-queue/pkg/eventqueue"
	"github.com/ava-labs/publish-queue/pkg/metrics"
)

// Sink is the remote destination of queued events.
type Sink interface {
	// Publish delivers ev and returns once the sink accepted or rejected it.
	Publish(ctx context.Context, ev eventqueue.Event) error
	// Reachable reports whether a publish has a chance to succeed right now.
	Reachable(ctx context.Context) bool
}

// State is a publisher state.
type State int32

const (
	StateStart State = iota
	StateCheckQueue
	StateWaitRetry
)

var stateNames = []string{"start", "check_queue", "wait_retry"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Publisher moves events from a queue to a sink.
type Publisher struct {
	queue   *eventqueue.Queue
	sink    Sink
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	now     func() time.Time

	cfg           Config
	state         atomic.Int32
	paused        atomic.Bool
	retryInterval atomic.Int64
	wake          chan struct{}

	// Owned by the goroutine calling Step.
	lastAttempt    time.Time
	failedAt       time.Time
	nextProbe      time.Time
	unreachableLog *rate.Limiter

	runMu sync.Mutex
}

type Option func(*Publisher)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(p *Publisher) { p.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// New creates a publisher in StateStart.
func New(q *eventqueue.Queue, sink Sink, cfg Config, opts ...Option) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Publisher{
		queue:          q,
		sink:           sink,
		log:            zap.NewNop().Sugar(),
		now:            time.Now,
		cfg:            cfg,
		wake:           make(chan struct{}, 1),
		unreachableLog: rate.NewLimiter(rate.Every(time.Minute), 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.paused.Store(cfg.Paused)
	p.retryInterval.Store(int64(cfg.RetryInterval))
	p.metrics.SetPaused(cfg.Paused)
	p.setState(StateStart)
	return p, nil
}

// State returns the current state.
func (p *Publisher) State() State {
	return State(p.state.Load())
}

func (p *Publisher) setState(s State) {
	if State(p.state.Swap(int32(s))) != s || s == StateStart {
		p.metrics.SetPublisherState(s.String(), stateNames)
	}
}

// Pause stops publishing after the publish in progress, if any. Events keep
// being queued.
func (p *Publisher) Pause() {
	p.paused.Store(true)
	p.metrics.SetPaused(true)
	p.log.Infow("publishing paused")
}

// Resume undoes Pause.
func (p *Publisher) Resume() {
	p.paused.Store(false)
	p.metrics.SetPaused(false)
	p.log.Infow("publishing resumed")
	p.poke()
}

func (p *Publisher) Paused() bool {
	return p.paused.Load()
}

// SetRetryInterval changes how long the publisher waits after a failed
// publish. It applies to a wait already in progress.
func (p *Publisher) SetRetryInterval(d time.Duration) error {
	if d <= 0 {
		return errors.New("retry interval must be > 0")
	}
	p.retryInterval.Store(int64(d))
	p.log.Infow("retry interval changed", "interval", d)
	p.poke()
	return nil
}

func (p *Publisher) RetryInterval() time.Duration {
	return time.Duration(p.retryInterval.Load())
}

func (p *Publisher) poke() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Step runs one transition of the state machine and returns the new state.
func (p *Publisher) Step(ctx context.Context) State {
	var next State
	switch p.State() {
	case StateStart:
		next = StateCheckQueue
	case StateCheckQueue:
		next = p.checkQueue(ctx)
	case StateWaitRetry:
		next = p.waitRetry()
	default:
		next = StateStart
	}
	p.setState(next)
	return next
}

func (p *Publisher) checkQueue(ctx context.Context) State {
	if p.paused.Load() {
		return StateCheckQueue
	}
	now := p.now()
	if !p.lastAttempt.IsZero() && now.Sub(p.lastAttempt) < p.cfg.MinPublishInterval {
		return StateCheckQueue
	}
	if p.queue.Count() == 0 {
		return StateCheckQueue
	}
	if now.Before(p.nextProbe) {
		return StateCheckQueue
	}
	if !p.sink.Reachable(ctx) {
		p.nextProbe = now.Add(p.cfg.ProbeInterval)
		p.metrics.IncSinkUnreachable()
		if p.unreachableLog.Allow() {
			p.log.Infow("sink unreachable, holding events", "events", p.queue.Count())
		}
		return StateCheckQueue
	}

	p.queue.BeginSend()
	defer p.queue.EndSend()

	rec, ok, err := p.queue.Peek()
	if err != nil {
		p.log.Errorw("failed to read oldest event", "error", err)
		p.failedAt = now
		return StateWaitRetry
	}
	if !ok {
		return StateCheckQueue
	}
	ev := rec.Event()

	if err := p.publish(ctx, ev); err != nil {
		if ctx.Err() != nil {
			return StateCheckQueue
		}
		p.failedAt = p.lastAttempt
		p.log.Warnw("publish failed, waiting before retry",
			"event", ev.Name,
			"retryIn", p.RetryInterval(),
			"error", err,
		)
		return StateWaitRetry
	}

	if err := p.queue.Commit(false); err != nil {
		p.log.Errorw("failed to remove published event", "event", ev.Name, "error", err)
		return StateCheckQueue
	}
	p.log.Debugw("published event", "event", ev.Name, "remaining", p.queue.Count())
	return StateCheckQueue
}

func (p *Publisher) publish(ctx context.Context, ev eventqueue.Event) error {
	if p.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.PublishTimeout)
		defer cancel()
	}
	start := time.Now()
	err := p.sink.Publish(ctx, ev)
	p.metrics.RecordPublish(err, time.Since(start).Seconds())
	p.lastAttempt = p.now()
	return err
}

func (p *Publisher) waitRetry() State {
	if p.now().Sub(p.failedAt) >= p.RetryInterval() {
		return StateCheckQueue
	}
	return StateWaitRetry
}

// Run steps the state machine until ctx is cancelled. It returns nil on
// cancellation. Run must not be called concurrently.
func (p *Publisher) Run(ctx context.Context) error {
	if !p.runMu.TryLock() {
		return errors.New("publisher already running")
	}
	defer p.runMu.Unlock()

	p.log.Infow("starting publisher",
		"minPublishInterval", p.cfg.MinPublishInterval,
		"retryInterval", p.RetryInterval(),
		"paused", p.Paused(),
		"events", p.queue.Count(),
	)

	t := time.NewTicker(p.cfg.PollInterval)
	defer t.Stop()

	for {
		p.Step(ctx)

		select {
		case <-ctx.Done():
			p.log.Infow("stopping publisher", "events", p.queue.Count())
			return nil
		case <-t.C:
		case <-p.queue.Notify():
		case <-p.wake:
		}
	}
}
