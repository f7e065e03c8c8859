// Package eventqueue implements a bounded, durable FIFO of events that is
// drained one event at a time by a single publisher.
//
// A store is an 8 byte header followed by packed records. Records are self
// delimiting (NUL terminated name and data, padded to 4 bytes), so the only
// index is the record count in the header. On open the header and every
// record are validated; a store that fails validation is reinitialized empty
// rather than reported.
//
// When a new event does not fit, the oldest events are evicted. The publisher
// brackets each send with BeginSend and EndSend; while a send is in flight the
// second oldest event is evicted instead, and fixed media refuse Clear.
package eventqueue
