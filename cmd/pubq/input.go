package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ava-labs/publish-queue/pkg/eventqueue"
)

// inputEvent is one line of the NDJSON input.
type inputEvent struct {
	Name  string           `json:"name"`
	Data  string           `json:"data"`
	TTL   *int32           `json:"ttl,omitempty"`
	Flags eventqueue.Flags `json:"flags"`
}

func (e inputEvent) event() eventqueue.Event {
	ttl := int32(eventqueue.DefaultTTL)
	if e.TTL != nil {
		ttl = *e.TTL
	}
	return eventqueue.Event{Name: e.Name, Data: e.Data, TTL: ttl, Flags: e.Flags}
}

// maxLineBytes bounds one input line. Longer lines are skipped.
const maxLineBytes = 64 << 10

type inputLine struct {
	data    []byte
	tooLong bool
}

// readEvents enqueues every line of r until EOF or ctx is done. Lines that do
// not parse, exceed maxLineBytes or are rejected by the queue are logged and
// skipped.
func readEvents(ctx context.Context, r io.Reader, q *eventqueue.Queue, log *zap.SugaredLogger) error {
	lines := make(chan inputLine)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		br := bufio.NewReader(r)
		for {
			data, tooLong, err := readLine(br, maxLineBytes)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- err
				}
				return
			}
			select {
			case lines <- inputLine{data: data, tooLong: tooLong}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var n, rejected int
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				log.Infow("input drained", "enqueued", n, "rejected", rejected)
				select {
				case err := <-readErr:
					return fmt.Errorf("failed to read input: %w", err)
				default:
				}
				return nil
			}
			if line.tooLong {
				rejected++
				log.Warnw("input line too long, skipped", "limit", maxLineBytes)
				continue
			}
			if len(line.data) == 0 {
				continue
			}
			if err := enqueueLine(q, line.data); err != nil {
				rejected++
				logRejected(log, err)
				continue
			}
			n++
		}
	}
}

// readLine returns the next line without its terminator. A line longer than
// limit is consumed up to its newline and reported as tooLong with no data.
// io.EOF is returned only when nothing is left to read.
func readLine(br *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	seen := false
	for {
		chunk, err := br.ReadSlice('\n')
		seen = seen || len(chunk) > 0
		if !tooLong {
			line = append(line, chunk...)
			if len(bytes.TrimRight(line, "\r\n")) > limit {
				tooLong, line = true, nil
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil, errors.Is(err, io.EOF) && seen:
			return bytes.TrimRight(line, "\r\n"), tooLong, nil
		default:
			return nil, false, err
		}
	}
}

func enqueueLine(q *eventqueue.Queue, line []byte) error {
	var in inputEvent
	if err := json.Unmarshal(line, &in); err != nil {
		return fmt.Errorf("invalid event json: %w", err)
	}
	return q.Enqueue(in.event())
}

func logRejected(log *zap.SugaredLogger, err error) {
	switch {
	case errors.Is(err, eventqueue.ErrOversize), errors.Is(err, eventqueue.ErrQueueFull):
		log.Warnw("event dropped", "error", err)
	default:
		log.Errorw("event rejected", "error", err)
	}
}
