// Package scenario reads the newline-delimited test script that drives
// a peer's lock requests, and runs the commands that belong to one
// pid against the lock protocol. The driver decides *when* a peer
// calls RequestLock/ReleaseLock; it never changes how the protocol
// itself behaves.
package scenario

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Kind distinguishes the two commands a scenario line can carry.
type Kind int

const (
	// Lock requests the lock, holds it for Duration, then releases.
	Lock Kind = iota
	// Wait blocks until peer WaitFor has completed at least one lock
	// cycle.
	Wait
)

// Command is one parsed scenario line.
type Command struct {
	Pid      int32
	Kind     Kind
	Duration time.Duration // set when Kind == Lock
	WaitFor  int32         // set when Kind == Wait
}

// Scenario is a fully parsed script: the total peer count declared on
// the header line, and the ordered command list (across all pids —
// callers filter to their own pid when running).
type Scenario struct {
	N        int
	Commands []Command
}

// Parse reads a scenario in one pass: the first non-empty line is the
// peer count N, every subsequent line is "<pid> Lock <seconds>" or
// "<pid> Wait <other_pid>". The reference implementation reads the
// file twice (once for N, once for commands); a single pass is
// equivalent since execution order within a peer is purely sequential
// regardless of how the file was read.
func Parse(r io.Reader) (*Scenario, error) {
	scanner := bufio.NewScanner(r)

	n, err := readHeader(scanner)
	if err != nil {
		return nil, err
	}

	var commands []Command
	line := 1
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		cmd, err := parseLine(text)
		if err != nil {
			return nil, errors.Wrapf(err, "dlock: scenario line %d", line)
		}
		commands = append(commands, cmd)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "dlock: read scenario")
	}

	return &Scenario{N: n, Commands: commands}, nil
}

// ParseFile opens path and parses it as a scenario.
func ParseFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "dlock: open scenario %s", path)
	}
	defer f.Close()
	return Parse(f)
}

func readHeader(scanner *bufio.Scanner) (int, error) {
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		n, err := strconv.Atoi(text)
		if err != nil {
			return 0, errors.Wrapf(err, "dlock: scenario header must be an integer, got %q", text)
		}
		if n <= 0 {
			return 0, errors.Errorf("dlock: scenario header N must be positive, got %d", n)
		}
		return n, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, errors.Wrap(err, "dlock: read scenario header")
	}
	return 0, errors.New("dlock: scenario is empty, missing N header")
}

func parseLine(text string) (Command, error) {
	fields := strings.Fields(text)
	if len(fields) != 3 {
		return Command{}, errors.Errorf("malformed scenario line %q, want '<pid> Lock <duration>' or '<pid> Wait <pid>'", text)
	}

	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return Command{}, errors.Wrapf(err, "malformed pid %q", fields[0])
	}

	switch strings.ToLower(fields[1]) {
	case "lock":
		seconds, err := strconv.Atoi(fields[2])
		if err != nil {
			return Command{}, errors.Wrapf(err, "malformed lock duration %q", fields[2])
		}
		return Command{Pid: int32(pid), Kind: Lock, Duration: time.Duration(seconds) * time.Second}, nil
	case "wait":
		other, err := strconv.Atoi(fields[2])
		if err != nil {
			return Command{}, errors.Wrapf(err, "malformed wait target %q", fields[2])
		}
		return Command{Pid: int32(pid), Kind: Wait, WaitFor: int32(other)}, nil
	default:
		return Command{}, errors.Errorf("unknown scenario command %q", fields[1])
	}
}

// ForPid returns the subsequence of commands belonging to pid, in
// file order.
func (s *Scenario) ForPid(pid int32) []Command {
	var out []Command
	for _, c := range s.Commands {
		if c.Pid == pid {
			out = append(out, c)
		}
	}
	return out
}

// Locker is the subset of the lock protocol the driver needs.
type Locker interface {
	RequestLock(ctx context.Context) error
	ReleaseLock() error
	WaitForCompletions(ctx context.Context, pid int32, k int32) error
}

// CriticalSectionWorker performs the observable work bracketed by
// RequestLock/ReleaseLock. The production implementation (see
// internal/csworker) appends timestamped taken/released lines to the
// shared log; tests substitute a fake that records the durations it
// was asked to run for.
type CriticalSectionWorker interface {
	Run(ctx context.Context, pid int32, duration time.Duration) error
}

// Driver runs a pid's commands against a Locker in sequence.
type Driver struct {
	Pid    int32
	Lock   Locker
	Worker CriticalSectionWorker
}

// Run executes every command in commands, in order, on behalf of
// d.Pid, stopping at the first error. It does not filter by pid;
// callers pass the Scenario.ForPid subset.
func (d *Driver) Run(ctx context.Context, commands []Command) error {
	for i, cmd := range commands {
		switch cmd.Kind {
		case Lock:
			if err := d.Lock.RequestLock(ctx); err != nil {
				return errors.Wrapf(err, "dlock: command %d: request lock", i)
			}
			if err := d.Worker.Run(ctx, d.Pid, cmd.Duration); err != nil {
				d.Lock.ReleaseLock()
				return errors.Wrapf(err, "dlock: command %d: critical section", i)
			}
			if err := d.Lock.ReleaseLock(); err != nil {
				return errors.Wrapf(err, "dlock: command %d: release lock", i)
			}
		case Wait:
			if err := d.Lock.WaitForCompletions(ctx, cmd.WaitFor, 1); err != nil {
				return errors.Wrapf(err, "dlock: command %d: wait for peer %d", i, cmd.WaitFor)
			}
		default:
			return fmt.Errorf("dlock: unknown command kind %d at index %d", cmd.Kind, i)
		}
	}
	return nil
}
