package core

import (
	"sort"
	"sync"

	"github.com/jabolina/lamport-lock/pkg/dlock/types"
)

// RequestQueue is each peer's local replica of the set of outstanding
// lock requests, ordered by (timestamp, pid). It holds at most one
// record per pid.
//
// N is small in every scenario this engine targets (at most a few
// dozen peers), so a flat slice scanned and re-sorted on mutation is
// simpler and cheaper than a heap or balanced tree, and keeps the hold
// time under the protocol mutex short.
type RequestQueue struct {
	mu      sync.Mutex
	records []types.Record
}

// NewRequestQueue returns an empty queue.
func NewRequestQueue() *RequestQueue {
	return &RequestQueue{}
}

// Insert adds a record at its ordered position. It is idempotent if an
// identical record for pid is already present; a differing record for
// the same pid already present is a protocol violation and is reported
// back to the caller so the protocol layer can log it instead of
// corrupting the queue.
func (q *RequestQueue) Insert(ts int32, pid int32) (violation bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, r := range q.records {
		if r.Pid == pid {
			if r.Timestamp == ts {
				return false
			}
			return true
		}
	}

	q.records = append(q.records, types.Record{Timestamp: ts, Pid: pid})
	sort.Slice(q.records, func(i, j int) bool {
		return q.records[i].Less(q.records[j])
	})
	return false
}

// Remove deletes the record belonging to pid. No-op if absent.
func (q *RequestQueue) Remove(pid int32) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, r := range q.records {
		if r.Pid == pid {
			q.records = append(q.records[:i], q.records[i+1:]...)
			return
		}
	}
}

// Head returns the minimum record in the queue, or ok=false if empty.
func (q *RequestQueue) Head() (record types.Record, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.records) == 0 {
		return types.Record{}, false
	}
	return q.records[0], true
}

// TimestampOf returns the timestamp of pid's outstanding request, if
// any.
func (q *RequestQueue) TimestampOf(pid int32) (ts int32, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, r := range q.records {
		if r.Pid == pid {
			return r.Timestamp, true
		}
	}
	return 0, false
}

// Len returns the number of outstanding requests, exposed as a gauge
// by the metrics component.
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}
