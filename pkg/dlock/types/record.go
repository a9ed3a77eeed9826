package types

// Record identifies one outstanding lock request by the timestamp it
// was stamped with and the pid that issued it.
type Record struct {
	Timestamp int32
	Pid       int32
}

// Less reports whether r sorts before other under the total order the
// protocol relies on: lowest timestamp first, pid as a tiebreaker.
func (r Record) Less(other Record) bool {
	if r.Timestamp != other.Timestamp {
		return r.Timestamp < other.Timestamp
	}
	return r.Pid < other.Pid
}
