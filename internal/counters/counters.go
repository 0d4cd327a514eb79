// Package counters implements the small set of process-wide counters and
// id generators the routing core needs: the wrap-around catenation
// reference, the in-flight HTTP request gauge sampled by the heartbeat,
// and correlation id generation for remembered requests.
package counters

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Catenation is an atomically incremented counter whose low 8 bits form
// the concatenation reference used to tag multi-part SMS.
type Catenation struct {
	n atomic.Uint64
}

// Next returns the next catenation reference, wrapping at 256.
func (c *Catenation) Next() byte {
	v := c.n.Add(1)
	return byte(v & 0xff)
}

// Outstanding tracks HTTP requests in flight so the heartbeat can report
// load without any component needing to scan a queue.
type Outstanding struct {
	n atomic.Int64
}

// Inc records a new in-flight request.
func (o *Outstanding) Inc() { o.n.Add(1) }

// Dec records a completed in-flight request.
func (o *Outstanding) Dec() { o.n.Add(-1) }

// Load returns the current number of in-flight requests.
func (o *Outstanding) Load() int64 { return o.n.Load() }

// NewCorrelationID mints an opaque id used to remember an MO context
// across an asynchronous HTTP round trip.
func NewCorrelationID() string {
	return uuid.NewString()
}
