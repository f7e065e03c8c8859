// Package publisher drains an eventqueue.Queue into a Sink, one event at a
// time.
//
// The publisher is a three state machine (start, check queue, wait retry)
// stepped by a single goroutine. An event is removed from the queue only
// after the sink accepted it; a failed publish leaves it at the head of the
// queue and parks the machine for the retry interval. Publish attempts,
// successful or not, are spaced by at least the minimum publish interval.
//
// No queue lock is held while the sink is called, so producers keep
// enqueueing during a slow publish.
package publisher
