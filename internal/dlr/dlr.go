// Package dlr implements the DLR storage abstraction: a uniform CRUD
// contract over heterogeneous back-ends (SQL dialects, MongoDB), with
// at-most-one-match lookup/update/remove semantics keyed by
// (smsc, timestamp) with an optional suffix match on destination.
package dlr

import (
	"context"
)

// Entry is a single delivery-report record, created at MT submission
// with Status 0 and updated as delivery receipts arrive.
type Entry struct {
	SMSC        string
	Timestamp   string
	Source      string
	Destination string
	Service     string
	URL         string
	Mask        int
	BoxCID      string
	Status      int
}

// Store is the uniform contract every DLR back-end implements. Per the
// component's error-handling design, back-end and pool-acquisition
// failures are logged internally and reported as no-match/no-op rather
// than propagated — callers never need special-case a broken store,
// mirroring "duplicated DLR updates are harmless" at the API boundary.
// Add and Flush are the two operations that are allowed to surface an
// error, since they represent either a caller-input problem (Add) or a
// genuinely fatal administrative action (Flush).
type Store interface {
	// Add inserts entry with Status 0. Pool/back-end failures are
	// logged and swallowed (the caller-owned entry is considered
	// destroyed either way, matching the source's add-path leak
	// avoidance); only a validation error is returned.
	Add(ctx context.Context, entry *Entry) error

	// Get returns the entry matching smsc and ts exactly, and dst as a
	// destination suffix when dst is non-empty. Returns (nil, false) on
	// no match, pool exhaustion, or back-end error.
	Get(ctx context.Context, smsc, ts, dst string) (*Entry, bool)

	// Update sets the status of at most one matching record. A miss,
	// pool exhaustion, or back-end error is logged and otherwise
	// ignored: DLR status transitions are monotonic, so a missed
	// update is not a safety issue.
	Update(ctx context.Context, smsc, ts, dst string, status int)

	// Remove deletes at most one matching record. Same failure
	// handling as Update.
	Remove(ctx context.Context, smsc, ts, dst string)

	// Messages returns the number of stored records, or -1 on error.
	Messages(ctx context.Context) int64

	// Flush deletes every record in the configured table/namespace.
	Flush(ctx context.Context) error
}

// intOf coerces a back-end-scanned numeric value into an int, covering
// the concrete types database/sql and the Mongo driver actually hand
// back for integer columns/fields (int64 via database/sql, int32 via
// bson, plus int/float64 for safety). Anything else yields 0.
func intOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
