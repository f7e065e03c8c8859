package eventqueue

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/ava-labs/publish-queue/pkg/eventqueue/storage"
	"github.com/ava-labs/publish-queue/pkg/metrics"
)

var (
	ErrOversize         = errors.New("event larger than the queue")
	ErrQueueFull        = errors.New("queue full")
	ErrEmpty            = errors.New("no such event in queue")
	ErrSendInFlight     = errors.New("cannot clear queue while an event is being sent")
	ErrCapacityTooLarge = errors.New("medium capacity exceeds 65535 bytes")
	ErrCapacityTooSmall = errors.New("medium capacity smaller than the store header")
	ErrUnsupported      = errors.New("unsupported medium")
	ErrSetup            = errors.New("failed to initialize store")
)

// Stats is a snapshot of the queue.
type Stats struct {
	Count    int
	Used     int64
	Capacity int64
	Sending  bool
	Kind     storage.Kind
}

// Queue is a bounded FIFO of events persisted on a storage medium. When an
// event does not fit, the oldest events are discarded to make room, except
// for the one currently being sent.
//
// All methods are safe for concurrent use.
type Queue struct {
	mu sync.Mutex

	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	codec   Codec
	kind    storage.Kind

	store     layout
	capacity  int64
	appendBuf []byte

	sending bool
	// inFlightDropped is set when Clear removed the event being sent.
	inFlightDropped bool

	notify chan struct{}
}

type Option func(*Queue)

// WithCodec overrides DefaultCodec. Stores written with different limits are
// still readable as long as their records fit the new limits.
func WithCodec(c Codec) Option {
	return func(q *Queue) { q.codec = c }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(q *Queue) { q.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// New opens the queue stored on m, reinitializing the store when its contents
// are missing or inconsistent.
func New(m storage.Medium, opts ...Option) (*Queue, error) {
	q := &Queue{
		log:      zap.NewNop().Sugar(),
		codec:    DefaultCodec,
		kind:     m.Kind(),
		capacity: m.Capacity(),
		notify:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}

	if q.capacity < HeaderSize {
		return nil, fmt.Errorf("%w: %d", ErrCapacityTooSmall, q.capacity)
	}

	mio := newMediumIO(m, q.codec)
	switch q.kind {
	case storage.KindBuffer, storage.KindNVRAM:
		if q.capacity > math.MaxUint16 {
			return nil, fmt.Errorf("%w: %d", ErrCapacityTooLarge, q.capacity)
		}
		q.store = newShiftLog(mio)
	case storage.KindFile:
		t, ok := m.(storage.Truncater)
		if !ok {
			return nil, fmt.Errorf("%w: file medium %T cannot truncate", ErrUnsupported, m)
		}
		q.store = newAppendLog(mio, t)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, q.kind)
	}
	q.appendBuf = make([]byte, 0, q.codec.MaxEncodedSize())

	reset, err := q.store.load()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	if reset {
		q.metrics.IncStoreResets()
		q.log.Warnw("store was missing or invalid, initialized empty",
			"kind", q.kind,
			"capacity", q.capacity,
		)
	} else {
		q.log.Infow("opened queue",
			"kind", q.kind,
			"events", q.store.count(),
			"usedBytes", q.store.used(),
			"capacity", q.capacity,
		)
	}
	q.updateMetrics()
	if q.store.count() > 0 {
		q.signal()
	}
	return q, nil
}

// Enqueue appends ev, discarding the oldest events until it fits. While a
// send is in flight the second oldest is discarded instead, so the event
// being sent is never touched.
//
// ErrOversize is returned without side effects when ev can never fit.
// ErrQueueFull is returned when only the event being sent (or a single event)
// remains and ev still does not fit.
func (q *Queue) Enqueue(ev Event) error {
	size, err := q.codec.EncodedSize(ev)
	if err != nil {
		q.metrics.RecordEnqueue(metrics.EnqueueInvalid)
		return err
	}
	if int64(size) > q.capacity-HeaderSize {
		q.metrics.RecordEnqueue(metrics.EnqueueOversize)
		return fmt.Errorf("%w: %d bytes, %d available", ErrOversize, size, q.capacity-HeaderSize)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	rec, err := q.codec.Encode(q.appendBuf[:0], ev)
	if err != nil {
		q.metrics.RecordEnqueue(metrics.EnqueueInvalid)
		return err
	}

	for {
		ok, err := q.store.append(rec)
		if err != nil {
			q.metrics.RecordEnqueue(metrics.EnqueueError)
			return fmt.Errorf("failed to append event %q: %w", ev.Name, err)
		}
		if ok {
			break
		}

		if q.store.count() <= 1 {
			q.metrics.RecordEnqueue(metrics.EnqueueFull)
			return ErrQueueFull
		}
		// After a Clear the in-flight event is gone and the oldest is evictable.
		second := q.sending && !q.inFlightDropped
		removed, err := q.store.remove(second)
		if err != nil {
			q.metrics.RecordEnqueue(metrics.EnqueueError)
			return fmt.Errorf("failed to evict event: %w", err)
		}
		if !removed {
			q.metrics.RecordEnqueue(metrics.EnqueueFull)
			return ErrQueueFull
		}
		q.metrics.RecordEviction(second)
		q.log.Debugw("evicted event to make room",
			"second", second,
			"events", q.store.count(),
		)
	}

	q.metrics.RecordEnqueue(metrics.EnqueueQueued)
	q.updateMetrics()
	q.signal()
	return nil
}

// Peek returns the oldest event without removing it. The record aliases queue
// memory and is only valid until the next call to Peek.
func (q *Queue) Peek() (Record, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok, err := q.store.oldest()
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read oldest event: %w", err)
	}
	return rec, ok, nil
}

// Commit removes the oldest event, or the second oldest when second is set.
// ErrEmpty is returned when there is no such event.
func (q *Queue) Commit(second bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !second && q.sending && q.inFlightDropped {
		// The event being sent went away with a Clear.
		q.inFlightDropped = false
		return nil
	}

	removed, err := q.store.remove(second)
	if err != nil {
		return fmt.Errorf("failed to remove event: %w", err)
	}
	if !removed {
		return ErrEmpty
	}
	q.updateMetrics()
	return nil
}

// Clear discards every event. On fixed media it fails with ErrSendInFlight
// while a send is in progress.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sending && !q.store.clearWhileSending() {
		return ErrSendInFlight
	}
	if err := q.store.clear(); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	if q.sending {
		q.inFlightDropped = true
	}
	q.metrics.IncClears()
	q.updateMetrics()
	q.log.Infow("cleared queue", "kind", q.kind)
	return nil
}

// Count returns the number of unsent events.
func (q *Queue) Count() uint16 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return uint16(q.store.count())
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Count:    q.store.count(),
		Used:     q.store.used(),
		Capacity: q.capacity,
		Sending:  q.sending,
		Kind:     q.kind,
	}
}

// BeginSend marks the oldest event as being sent.
func (q *Queue) BeginSend() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sending = true
	q.inFlightDropped = false
	q.metrics.SetSendInFlight(true)
}

// EndSend clears the mark set by BeginSend.
func (q *Queue) EndSend() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sending = false
	q.inFlightDropped = false
	q.metrics.SetSendInFlight(false)
}

// Notify returns a channel that receives a value after events are enqueued.
// Signals coalesce; a receiver must drain the queue, not count signals.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) updateMetrics() {
	q.metrics.UpdateQueueMetrics(q.store.count(), q.store.used(), q.capacity)
}
