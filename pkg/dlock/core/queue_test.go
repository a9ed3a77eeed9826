package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestQueue_HeadOrdersByTimestampThenPid(t *testing.T) {
	q := NewRequestQueue()
	q.Insert(5, 2)
	q.Insert(3, 1)
	q.Insert(3, 0) // same timestamp as pid 1, lower pid must win

	head, ok := q.Head()
	require.True(t, ok)
	assert.Equal(t, int32(3), head.Timestamp)
	assert.Equal(t, int32(0), head.Pid)
}

func TestRequestQueue_RemoveIsNoopWhenAbsent(t *testing.T) {
	q := NewRequestQueue()
	q.Remove(42)
	_, ok := q.Head()
	assert.False(t, ok)
}

func TestRequestQueue_InsertIsIdempotentForIdenticalRecord(t *testing.T) {
	q := NewRequestQueue()
	violation := q.Insert(10, 1)
	assert.False(t, violation)
	violation = q.Insert(10, 1)
	assert.False(t, violation)
	assert.Equal(t, 1, q.Len())
}

func TestRequestQueue_InsertFlagsViolationOnDifferingRecord(t *testing.T) {
	q := NewRequestQueue()
	q.Insert(10, 1)
	violation := q.Insert(11, 1)
	assert.True(t, violation)
	// The original record for pid 1 is left untouched.
	ts, ok := q.TimestampOf(1)
	require.True(t, ok)
	assert.Equal(t, int32(10), ts)
}

func TestRequestQueue_TimestampOf(t *testing.T) {
	q := NewRequestQueue()
	q.Insert(7, 3)
	ts, ok := q.TimestampOf(3)
	require.True(t, ok)
	assert.Equal(t, int32(7), ts)

	_, ok = q.TimestampOf(99)
	assert.False(t, ok)
}

func TestRequestQueue_LenTracksOutstandingRequests(t *testing.T) {
	q := NewRequestQueue()
	assert.Equal(t, 0, q.Len())
	q.Insert(1, 0)
	q.Insert(2, 1)
	assert.Equal(t, 2, q.Len())
	q.Remove(0)
	assert.Equal(t, 1, q.Len())
}
