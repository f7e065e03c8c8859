package eventqueue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ava-labs/publish-queue/pkg/eventqueue/storage"
	"github.com/ava-labs/publish-queue/pkg/metrics"
)

// threeRecordSize holds exactly three 20 byte records after the header.
const threeRecordSize = HeaderSize + 64

var errInjected = errors.New("injected i/o failure")

type medium struct {
	name string
	// open returns a medium over the same backing store on every call.
	open func() storage.Medium
}

func allMedia(t *testing.T, size int) []medium {
	t.Helper()
	region := make([]byte, size)
	dev := storage.NewBuffer(size)
	path := filepath.Join(t.TempDir(), "events.q")
	return []medium{
		{"buffer", func() storage.Medium { return storage.NewBufferFrom(region) }},
		{"nvram", func() storage.Medium { return storage.NewNVRAM(dev, int64(size)) }},
		{"file", func() storage.Medium { return storage.NewFile(path, int64(size)) }},
	}
}

func openQueue(t *testing.T, m storage.Medium) *Queue {
	t.Helper()
	q, err := New(m, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	return q
}

// event returns a 20 byte record named e<i>.
func event(i int) Event {
	return Event{Name: "e" + strconv.Itoa(i), Data: "payload" + strconv.Itoa(i%10), TTL: DefaultTTL}
}

func peekName(t *testing.T, q *Queue) string {
	t.Helper()
	rec, ok, err := q.Peek()
	require.NoError(t, err)
	require.True(t, ok, "queue unexpectedly empty")
	return string(rec.Name)
}

func drainNames(t *testing.T, q *Queue) []string {
	t.Helper()
	var names []string
	for {
		rec, ok, err := q.Peek()
		require.NoError(t, err)
		if !ok {
			return names
		}
		names = append(names, string(rec.Name))
		require.NoError(t, q.Commit(false))
	}
}

type faultyDevice struct {
	*storage.Buffer
	failReads  bool
	failWrites bool
}

func (d *faultyDevice) ReadAt(p []byte, off int64) (int, error) {
	if d.failReads {
		return 0, errInjected
	}
	return d.Buffer.ReadAt(p, off)
}

func (d *faultyDevice) WriteAt(p []byte, off int64) (int, error) {
	if d.failWrites {
		return 0, errInjected
	}
	return d.Buffer.WriteAt(p, off)
}

// ============================================================================
// Behaviour shared by every medium
// ============================================================================

func TestQueue_FIFO(t *testing.T) {
	for _, m := range allMedia(t, 256) {
		t.Run(m.name, func(t *testing.T) {
			q := openQueue(t, m.open())
			for i := range 5 {
				require.NoError(t, q.Enqueue(event(i)))
			}
			require.Equal(t, uint16(5), q.Count())
			require.Equal(t, []string{"e0", "e1", "e2", "e3", "e4"}, drainNames(t, q))
			require.Zero(t, q.Count())
		})
	}
}

func TestQueue_PeekReturnsFullEvent(t *testing.T) {
	for _, m := range allMedia(t, 256) {
		t.Run(m.name, func(t *testing.T) {
			q := openQueue(t, m.open())
			want := Event{Name: "door", Data: `{"open":true}`, TTL: 120, Flags: FlagPrivate | FlagWithAck}
			require.NoError(t, q.Enqueue(want))

			rec, ok, err := q.Peek()
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, want, rec.Event())

			// Peek does not remove.
			require.Equal(t, uint16(1), q.Count())
		})
	}
}

func TestQueue_EvictsOldestWhenFull(t *testing.T) {
	for _, m := range allMedia(t, threeRecordSize) {
		t.Run(m.name, func(t *testing.T) {
			q := openQueue(t, m.open())
			for i := range 3 {
				require.NoError(t, q.Enqueue(event(i)))
			}
			require.Equal(t, int64(threeRecordSize-4), q.Stats().Used)

			require.NoError(t, q.Enqueue(event(3)))
			require.Equal(t, uint16(3), q.Count())
			require.Equal(t, []string{"e1", "e2", "e3"}, drainNames(t, q))
		})
	}
}

func TestQueue_EvictsSecondOldestWhileSending(t *testing.T) {
	for _, m := range allMedia(t, threeRecordSize) {
		t.Run(m.name, func(t *testing.T) {
			q := openQueue(t, m.open())
			for i := range 3 {
				require.NoError(t, q.Enqueue(event(i)))
			}

			rec, ok, err := q.Peek()
			require.NoError(t, err)
			require.True(t, ok)
			q.BeginSend()

			require.NoError(t, q.Enqueue(event(3)))
			require.NoError(t, q.Enqueue(event(4)))

			// The record being sent is untouched by eviction.
			require.Equal(t, "e0", string(rec.Name))
			require.Equal(t, "payload0", string(rec.Data))

			require.NoError(t, q.Commit(false))
			q.EndSend()

			require.Equal(t, []string{"e3", "e4"}, drainNames(t, q))
		})
	}
}

func TestQueue_FullWithSingleEvent(t *testing.T) {
	big := Event{Name: "big", Data: strings.Repeat("x", 34)} // 48 bytes
	for _, m := range allMedia(t, threeRecordSize) {
		t.Run(m.name, func(t *testing.T) {
			q := openQueue(t, m.open())
			require.NoError(t, q.Enqueue(big))

			err := q.Enqueue(big)
			require.ErrorIs(t, err, ErrQueueFull)
			require.Equal(t, uint16(1), q.Count())
			require.Equal(t, "big", peekName(t, q))
		})
	}
}

func TestQueue_FullWhileSendingTwoEvents(t *testing.T) {
	big := Event{Name: "big", Data: strings.Repeat("x", 34)} // 48 bytes
	for _, m := range allMedia(t, threeRecordSize) {
		t.Run(m.name, func(t *testing.T) {
			q := openQueue(t, m.open())
			require.NoError(t, q.Enqueue(event(0)))
			require.NoError(t, q.Enqueue(event(1)))
			q.BeginSend()
			defer q.EndSend()

			// e1 is evicted, e0 is in flight and big still does not fit.
			err := q.Enqueue(big)
			require.ErrorIs(t, err, ErrQueueFull)
			require.Equal(t, uint16(1), q.Count())
			require.Equal(t, "e0", peekName(t, q))
		})
	}
}

func TestQueue_Oversize(t *testing.T) {
	for _, m := range allMedia(t, threeRecordSize) {
		t.Run(m.name, func(t *testing.T) {
			q := openQueue(t, m.open())
			require.NoError(t, q.Enqueue(event(0)))

			err := q.Enqueue(Event{Name: "huge", Data: strings.Repeat("x", 60)})
			require.ErrorIs(t, err, ErrOversize)
			require.Equal(t, uint16(1), q.Count())
			require.Equal(t, "e0", peekName(t, q))
		})
	}
}

func TestQueue_InvalidEvent(t *testing.T) {
	q := openQueue(t, storage.NewBuffer(128))
	require.ErrorIs(t, q.Enqueue(Event{}), ErrEmptyName)
	require.ErrorIs(t, q.Enqueue(Event{Name: "a\x00"}), ErrEmbeddedNUL)
	require.Zero(t, q.Count())
}

func TestQueue_EventExactlyFillsEmptyStore(t *testing.T) {
	for _, m := range allMedia(t, threeRecordSize) {
		t.Run(m.name, func(t *testing.T) {
			q := openQueue(t, m.open())
			full := Event{Name: "f", Data: strings.Repeat("x", 52)} // 64 bytes
			require.NoError(t, q.Enqueue(full))
			require.Equal(t, int64(threeRecordSize), q.Stats().Used)

			// A single event is never evicted.
			require.ErrorIs(t, q.Enqueue(event(0)), ErrQueueFull)
			require.Equal(t, []string{"f"}, drainNames(t, q))
		})
	}
}

func TestQueue_CommitEmpty(t *testing.T) {
	for _, m := range allMedia(t, 128) {
		t.Run(m.name, func(t *testing.T) {
			q := openQueue(t, m.open())
			require.ErrorIs(t, q.Commit(false), ErrEmpty)
			require.ErrorIs(t, q.Commit(true), ErrEmpty)

			require.NoError(t, q.Enqueue(event(0)))
			require.ErrorIs(t, q.Commit(true), ErrEmpty)
			require.NoError(t, q.Commit(false))
		})
	}
}

func TestQueue_CommitSecond(t *testing.T) {
	for _, m := range allMedia(t, 128) {
		t.Run(m.name, func(t *testing.T) {
			q := openQueue(t, m.open())
			for i := range 3 {
				require.NoError(t, q.Enqueue(event(i)))
			}
			require.NoError(t, q.Commit(true))
			require.Equal(t, []string{"e0", "e2"}, drainNames(t, q))
		})
	}
}

func TestQueue_Clear(t *testing.T) {
	for _, m := range allMedia(t, 128) {
		t.Run(m.name, func(t *testing.T) {
			q := openQueue(t, m.open())
			for i := range 3 {
				require.NoError(t, q.Enqueue(event(i)))
			}
			require.NoError(t, q.Clear())
			require.Zero(t, q.Count())
			require.Equal(t, int64(HeaderSize), q.Stats().Used)

			require.NoError(t, q.Enqueue(event(9)))
			require.Equal(t, []string{"e9"}, drainNames(t, q))
		})
	}
}

func TestQueue_Persistence(t *testing.T) {
	for _, m := range allMedia(t, 256) {
		t.Run(m.name, func(t *testing.T) {
			q := openQueue(t, m.open())
			for i := range 4 {
				require.NoError(t, q.Enqueue(event(i)))
			}
			require.NoError(t, q.Commit(false))

			reopened := openQueue(t, m.open())
			require.Equal(t, uint16(3), reopened.Count())
			require.Equal(t, []string{"e1", "e2", "e3"}, drainNames(t, reopened))

			again := openQueue(t, m.open())
			require.Zero(t, again.Count())
		})
	}
}

func TestQueue_Notify(t *testing.T) {
	q := openQueue(t, storage.NewBuffer(128))

	select {
	case <-q.Notify():
		require.Fail(t, "unexpected signal on empty queue")
	default:
	}

	require.NoError(t, q.Enqueue(event(0)))
	require.NoError(t, q.Enqueue(event(1)))

	select {
	case <-q.Notify():
	case <-time.After(time.Second):
		require.Fail(t, "no signal after enqueue")
	}

	// Signals coalesce.
	select {
	case <-q.Notify():
		require.Fail(t, "signals should coalesce")
	default:
	}
}

func TestQueue_NotifyOnOpenWithEvents(t *testing.T) {
	region := make([]byte, 128)
	q := openQueue(t, storage.NewBufferFrom(region))
	require.NoError(t, q.Enqueue(event(0)))

	reopened := openQueue(t, storage.NewBufferFrom(region))
	select {
	case <-reopened.Notify():
	default:
		require.Fail(t, "reopened queue with events should signal")
	}
}

func TestQueue_Stats(t *testing.T) {
	q := openQueue(t, storage.NewBuffer(threeRecordSize))
	require.NoError(t, q.Enqueue(event(0)))
	q.BeginSend()

	require.Equal(t, Stats{
		Count:    1,
		Used:     HeaderSize + 20,
		Capacity: threeRecordSize,
		Sending:  true,
		Kind:     storage.KindBuffer,
	}, q.Stats())

	q.EndSend()
	require.False(t, q.Stats().Sending)
}

func TestQueue_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	q, err := New(storage.NewBuffer(threeRecordSize), WithMetrics(m))
	require.NoError(t, err)
	for i := range 4 {
		require.NoError(t, q.Enqueue(event(i)))
	}
	require.ErrorIs(t, q.Enqueue(Event{Name: "huge", Data: strings.Repeat("x", 60)}), ErrOversize)

	count, err := testutil.GatherAndCount(reg,
		"pubq_queue_events",
		"pubq_queue_enqueued_total",
		"pubq_queue_evictions_total",
		"pubq_queue_store_resets_total",
	)
	require.NoError(t, err)
	// events, enqueued{queued}, enqueued{oversize}, evictions{oldest}, store_resets
	require.Equal(t, 5, count)
}

// ============================================================================
// Construction
// ============================================================================

func TestNew_CapacityLimits(t *testing.T) {
	_, err := New(storage.NewBuffer(70000))
	require.ErrorIs(t, err, ErrCapacityTooLarge)

	_, err = New(storage.NewBuffer(4))
	require.ErrorIs(t, err, ErrCapacityTooSmall)

	// Files are not limited by the header tag.
	q, err := New(storage.NewFile(filepath.Join(t.TempDir(), "big.q"), 1<<20))
	require.NoError(t, err)
	require.Equal(t, int64(1<<20), q.Stats().Capacity)
}

func TestNew_HeaderWriteFailure(t *testing.T) {
	dev := &faultyDevice{Buffer: storage.NewBuffer(128), failWrites: true}
	_, err := New(storage.NewNVRAM(dev, 128))
	require.ErrorIs(t, err, ErrSetup)
	require.ErrorIs(t, err, errInjected)
}

func TestNew_StampsFreshStore(t *testing.T) {
	region := make([]byte, threeRecordSize)
	openQueue(t, storage.NewBufferFrom(region))

	h, err := ParseHeader(region)
	require.NoError(t, err)
	require.Equal(t, NewHeader(threeRecordSize), h)
}

// ============================================================================
// Corruption recovery
// ============================================================================

func writeHeader(t *testing.T, m storage.Medium, h Header) {
	t.Helper()
	b, err := h.MarshalBinary()
	require.NoError(t, err)
	_, err = m.WriteAt(b, 0)
	require.NoError(t, err)
}

func TestQueue_RecoversFromCorruptFixedStore(t *testing.T) {
	tests := []struct {
		name   string
		header Header
	}{
		{"bad magic", Header{Magic: 0xdeadbeef, Tag: 128, NumEvents: 2}},
		{"written for another capacity", Header{Magic: Magic, Tag: 64, NumEvents: 2}},
		{"count walks past the records", Header{Magic: Magic, Tag: 128, NumEvents: 3}},
		{"count walks past the end", Header{Magic: Magic, Tag: 128, NumEvents: 0xffff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			region := make([]byte, 128)
			q := openQueue(t, storage.NewBufferFrom(region))
			require.NoError(t, q.Enqueue(event(0)))
			require.NoError(t, q.Enqueue(event(1)))

			writeHeader(t, storage.NewBufferFrom(region), tt.header)

			reg := prometheus.NewRegistry()
			m, err := metrics.New(reg)
			require.NoError(t, err)
			reopened, err := New(storage.NewBufferFrom(region), WithMetrics(m))
			require.NoError(t, err)

			require.Zero(t, reopened.Count())
			h, err := ParseHeader(region)
			require.NoError(t, err)
			require.Equal(t, NewHeader(128), h)

			expected := `
# HELP pubq_queue_store_resets_total Times an invalid store was reinitialized during setup
# TYPE pubq_queue_store_resets_total counter
pubq_queue_store_resets_total 1
`
			require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "pubq_queue_store_resets_total"))

			require.NoError(t, reopened.Enqueue(event(5)))
			require.Equal(t, []string{"e5"}, drainNames(t, reopened))
		})
	}
}

func TestQueue_RecoversFromGarbageRecord(t *testing.T) {
	region := make([]byte, 128)
	q := openQueue(t, storage.NewBufferFrom(region))
	require.NoError(t, q.Enqueue(event(0)))
	require.NoError(t, q.Enqueue(event(1)))

	// Erase everything from the second record on, as flash does.
	for i := HeaderSize + 20; i < len(region); i++ {
		region[i] = 0xff
	}
	require.Zero(t, openQueue(t, storage.NewBufferFrom(region)).Count())
}

func TestQueue_RecoversFromCorruptFile(t *testing.T) {
	tests := []struct {
		name   string
		header Header
	}{
		{"bad magic", Header{Magic: 0, Tag: 0, NumEvents: 2}},
		{"more sent than stored", Header{Magic: Magic, Tag: 3, NumEvents: 2}},
		{"count walks past the end", Header{Magic: Magic, Tag: 0, NumEvents: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "events.q")
			f := storage.NewFile(path, 256)
			q := openQueue(t, f)
			require.NoError(t, q.Enqueue(event(0)))
			require.NoError(t, q.Enqueue(event(1)))

			writeHeader(t, f, tt.header)

			reopened := openQueue(t, storage.NewFile(path, 256))
			require.Zero(t, reopened.Count())

			size, err := f.Size()
			require.NoError(t, err)
			require.Equal(t, int64(HeaderSize), size)
		})
	}
}

func TestQueue_FileDrainedBeforeTruncateIsNotAReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.q")
	f := storage.NewFile(path, 256)
	q := openQueue(t, f)
	require.NoError(t, q.Enqueue(event(0)))
	require.NoError(t, q.Enqueue(event(1)))
	writeHeader(t, f, Header{Magic: Magic, Tag: 2, NumEvents: 2})

	core, logs := observer.New(zap.InfoLevel)
	reopened, err := New(storage.NewFile(path, 256), WithLogger(zap.New(core).Sugar()))
	require.NoError(t, err)
	require.Zero(t, reopened.Count())
	require.Zero(t, logs.FilterMessageSnippet("missing or invalid").Len())
	require.Equal(t, 1, logs.FilterMessage("opened queue").Len())

	size, err := f.Size()
	require.NoError(t, err)
	require.Equal(t, int64(HeaderSize), size)
}

func TestQueue_FileTruncatesTornAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.q")
	q := openQueue(t, storage.NewFile(path, 256))
	require.NoError(t, q.Enqueue(event(0)))
	require.NoError(t, q.Enqueue(event(1)))

	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = fh.Write([]byte{0x3c, 0, 0, 0, 0, 0, 0, 0, 'e', '2'})
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	f := storage.NewFile(path, 256)
	reopened := openQueue(t, f)
	require.Equal(t, uint16(2), reopened.Count())

	size, err := f.Size()
	require.NoError(t, err)
	require.Equal(t, int64(HeaderSize+40), size)
	require.Equal(t, []string{"e0", "e1"}, drainNames(t, reopened))
}

// ============================================================================
// Append log
// ============================================================================

func TestQueue_FileCommitReturnsNil(t *testing.T) {
	q := openQueue(t, storage.NewFile(filepath.Join(t.TempDir(), "events.q"), 256))
	require.NoError(t, q.Enqueue(event(0)))
	require.NoError(t, q.Enqueue(event(1)))

	require.NoError(t, q.Commit(false))
	require.NoError(t, q.Commit(false))
	require.ErrorIs(t, q.Commit(false), ErrEmpty)
}

func TestQueue_FileKeepsSentPrefixUntilDrained(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.q")
	f := storage.NewFile(path, 256)
	q := openQueue(t, f)
	for i := range 3 {
		require.NoError(t, q.Enqueue(event(i)))
	}
	require.NoError(t, q.Commit(false))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, raw, HeaderSize+60)
	h, err := ParseHeader(raw)
	require.NoError(t, err)
	require.Equal(t, Header{Magic: Magic, Tag: 1, NumEvents: 3}, h)

	require.NoError(t, q.Commit(false))
	require.NoError(t, q.Commit(false))

	size, err := f.Size()
	require.NoError(t, err)
	require.Equal(t, int64(HeaderSize), size)
}

func TestQueue_FileCompactsBeforeEvicting(t *testing.T) {
	f := storage.NewFile(filepath.Join(t.TempDir(), "events.q"), threeRecordSize)
	q := openQueue(t, f)
	for i := range 3 {
		require.NoError(t, q.Enqueue(event(i)))
	}
	require.NoError(t, q.Commit(false))

	// e0 is sent; its space is reclaimed instead of evicting e1.
	require.NoError(t, q.Enqueue(event(3)))
	require.Equal(t, uint16(3), q.Count())

	size, err := f.Size()
	require.NoError(t, err)
	require.Equal(t, int64(threeRecordSize-4), size)
	require.Equal(t, []string{"e1", "e2", "e3"}, drainNames(t, q))
}

func TestQueue_FileClearWhileSending(t *testing.T) {
	q := openQueue(t, storage.NewFile(filepath.Join(t.TempDir(), "events.q"), 256))
	require.NoError(t, q.Enqueue(event(0)))
	require.NoError(t, q.Enqueue(event(1)))

	rec, ok, err := q.Peek()
	require.NoError(t, err)
	require.True(t, ok)
	q.BeginSend()

	require.NoError(t, q.Clear())
	require.Zero(t, q.Count())
	require.Equal(t, "e0", string(rec.Name))

	require.NoError(t, q.Enqueue(event(7)))

	// The publisher's commit for e0 must not remove e7.
	require.NoError(t, q.Commit(false))
	q.EndSend()
	require.Equal(t, []string{"e7"}, drainNames(t, q))
}

func TestQueue_FileClearWhileSendingEvictsOldest(t *testing.T) {
	q := openQueue(t, storage.NewFile(filepath.Join(t.TempDir(), "events.q"), threeRecordSize))
	require.NoError(t, q.Enqueue(event(0)))
	q.BeginSend()
	require.NoError(t, q.Clear())

	for i := 1; i <= 4; i++ {
		require.NoError(t, q.Enqueue(event(i)))
	}

	require.NoError(t, q.Commit(false))
	q.EndSend()
	require.Equal(t, []string{"e2", "e3", "e4"}, drainNames(t, q))
}

// ============================================================================
// Shifting log
// ============================================================================

func TestQueue_FixedClearWhileSendingRefused(t *testing.T) {
	for _, m := range allMedia(t, 128)[:2] {
		t.Run(m.name, func(t *testing.T) {
			q := openQueue(t, m.open())
			require.NoError(t, q.Enqueue(event(0)))
			require.NoError(t, q.Enqueue(event(1)))
			q.BeginSend()

			require.ErrorIs(t, q.Clear(), ErrSendInFlight)
			require.Equal(t, uint16(2), q.Count())

			q.EndSend()
			require.NoError(t, q.Clear())
			require.Zero(t, q.Count())
		})
	}
}

func TestQueue_BufferPeekIsZeroCopy(t *testing.T) {
	region := make([]byte, 128)
	q := openQueue(t, storage.NewBufferFrom(region))
	require.NoError(t, q.Enqueue(event(0)))

	rec, ok, err := q.Peek()
	require.NoError(t, err)
	require.True(t, ok)
	require.Same(t, &region[HeaderSize+recordHeaderSize], &rec.Name[0])
}

// ============================================================================
// I/O failures
// ============================================================================

func TestQueue_WriteFailurePropagates(t *testing.T) {
	dev := &faultyDevice{Buffer: storage.NewBuffer(128)}
	q := openQueue(t, storage.NewNVRAM(dev, 128))
	require.NoError(t, q.Enqueue(event(0)))

	dev.failWrites = true
	err := q.Enqueue(event(1))
	require.ErrorIs(t, err, errInjected)
	require.ErrorIs(t, q.Commit(false), errInjected)
	require.ErrorIs(t, q.Clear(), errInjected)

	dev.failWrites = false
	require.Equal(t, uint16(1), q.Count())
	require.Equal(t, "e0", peekName(t, q))
}

func TestQueue_ReadFailurePropagates(t *testing.T) {
	dev := &faultyDevice{Buffer: storage.NewBuffer(128)}
	q := openQueue(t, storage.NewNVRAM(dev, 128))
	require.NoError(t, q.Enqueue(event(0)))

	dev.failReads = true
	_, _, err := q.Peek()
	require.ErrorIs(t, err, errInjected)
}

func TestQueue_UnreadableStoreIsReset(t *testing.T) {
	dev := &faultyDevice{Buffer: storage.NewBuffer(128), failReads: true}
	q, err := New(storage.NewNVRAM(dev, 128))
	require.NoError(t, err)
	require.Zero(t, q.Count())
}

// ============================================================================
// Concurrency
// ============================================================================

func TestQueue_ConcurrentProducerAndDrainer(t *testing.T) {
	for _, m := range allMedia(t, 256) {
		t.Run(m.name, func(t *testing.T) {
			q := openQueue(t, m.open())
			const total = 300

			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := range total {
					if err := q.Enqueue(Event{Name: "n" + strconv.Itoa(i), Data: fmt.Sprintf("%08d", i)}); err != nil {
						t.Errorf("enqueue %d: %v", i, err)
						return
					}
				}
			}()

			var (
				mu   sync.Mutex
				seen []int
			)
			drainOnce := func() bool {
				q.BeginSend()
				defer q.EndSend()
				rec, ok, err := q.Peek()
				require.NoError(t, err)
				if !ok {
					return false
				}
				n, err := strconv.Atoi(string(rec.Data))
				require.NoError(t, err)
				mu.Lock()
				seen = append(seen, n)
				mu.Unlock()
				require.NoError(t, q.Commit(false))
				return true
			}

			for running := true; running; {
				select {
				case <-done:
					running = false
				default:
					drainOnce()
				}
			}
			for drainOnce() {
			}

			require.NotEmpty(t, seen)
			for i := 1; i < len(seen); i++ {
				require.Less(t, seen[i-1], seen[i], "events drained out of order")
			}
			require.Equal(t, total-1, seen[len(seen)-1])
		})
	}
}

// ============================================================================
// Properties
// ============================================================================

func TestQueue_BoundedFIFOProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("stays within capacity and drains a suffix of accepted events", prop.ForAll(
		func(events []Event) bool {
			region := make([]byte, HeaderSize+256)
			q, err := New(storage.NewBufferFrom(region))
			if err != nil {
				return false
			}

			var accepted []Event
			for _, ev := range events {
				switch err := q.Enqueue(ev); {
				case err == nil:
					accepted = append(accepted, ev)
				case errors.Is(err, ErrOversize), errors.Is(err, ErrQueueFull):
				default:
					return false
				}
				if st := q.Stats(); st.Used > st.Capacity {
					return false
				}
			}

			// A second queue over the same region sees the same contents.
			q, err = New(storage.NewBufferFrom(region))
			if err != nil {
				return false
			}
			var drained []Event
			for {
				rec, ok, err := q.Peek()
				if err != nil {
					return false
				}
				if !ok {
					break
				}
				drained = append(drained, rec.Event())
				if err := q.Commit(false); err != nil {
					return false
				}
			}

			if len(drained) > len(accepted) {
				return false
			}
			tail := accepted[len(accepted)-len(drained):]
			for i := range drained {
				if drained[i] != tail[i] {
					return false
				}
			}
			return len(accepted) == 0 || len(drained) > 0
		},
		gen.SliceOf(genEvent()),
	))

	properties.TestingRun(t)
}
