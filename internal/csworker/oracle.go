package csworker

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// Interval is one critical-section occupancy, as observed in the
// shared log.
type Interval struct {
	Pid      int32
	Taken    int64
	Released int64
}

// ParseLog reads the csworker log format and returns one Interval per
// matched taken/released pair, sorted by Taken. Safety and ordering
// properties are checked by inspecting the intervals it returns.
func ParseLog(r io.Reader) ([]Interval, error) {
	scanner := bufio.NewScanner(r)

	open := make(map[int32]int64)
	var intervals []Interval

	line := 0
	for scanner.Scan() {
		line++
		var pid int32
		var ts int64
		var state string
		n, err := fmt.Sscanf(scanner.Text(), "[Process %d] [Time %d] Lock %s", &pid, &ts, &state)
		if err != nil || n != 3 {
			return nil, errors.Errorf("csworker: malformed log line %d: %q", line, scanner.Text())
		}

		switch state {
		case "taken":
			if _, ok := open[pid]; ok {
				return nil, errors.Errorf("csworker: peer %d took the lock twice without releasing (line %d)", pid, line)
			}
			open[pid] = ts
		case "released":
			taken, ok := open[pid]
			if !ok {
				return nil, errors.Errorf("csworker: peer %d released without taking (line %d)", pid, line)
			}
			delete(open, pid)
			intervals = append(intervals, Interval{Pid: pid, Taken: taken, Released: ts})
		default:
			return nil, errors.Errorf("csworker: unknown lock state %q (line %d)", state, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "csworker: read log")
	}
	for pid := range open {
		return nil, errors.Errorf("csworker: peer %d took the lock but never released", pid)
	}

	sort.Slice(intervals, func(i, j int) bool { return intervals[i].Taken < intervals[j].Taken })
	return intervals, nil
}

// ParseLogFile opens path and parses it as a csworker log.
func ParseLogFile(path string) ([]Interval, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "csworker: open %s", path)
	}
	defer f.Close()
	return ParseLog(f)
}

// AssertDisjoint reports whether every interval in order is disjoint
// from the one before it, i.e. mutual exclusion held for the whole
// log.
func AssertDisjoint(intervals []Interval) error {
	for i := 1; i < len(intervals); i++ {
		prev, cur := intervals[i-1], intervals[i]
		if cur.Taken < prev.Released {
			return errors.Errorf("overlap: peer %d took the lock at %d before peer %d released at %d",
				cur.Pid, cur.Taken, prev.Pid, prev.Released)
		}
	}
	return nil
}
