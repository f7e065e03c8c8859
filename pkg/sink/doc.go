// Package sink provides the remote destinations the publisher drains the
// queue into: Kafka, ClickHouse, Redis Streams and a log-only sink.
//
// Every sink implements publisher.Sink. Publish is synchronous: it returns
// once the destination accepted or rejected the event, so the queue removes
// an event only after it was delivered.
package sink
