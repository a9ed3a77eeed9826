// Command csworker is the standalone critical-section worker: given a
// process id and a sleep duration, it appends a "Lock taken" record to
// log.txt, sleeps, then appends "Lock released". It is kept as a
// separate binary so the scenario driver can exercise it either
// in-process (see internal/csworker) or out-of-process via exec.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jabolina/lamport-lock/internal/csworker"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <process ID> <sleep duration seconds>\n", os.Args[0])
		os.Exit(1)
	}

	pid, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid process ID %q: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	seconds, err := strconv.Atoi(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid sleep duration %q: %v\n", os.Args[2], err)
		os.Exit(1)
	}

	worker := csworker.New("log.txt")
	if err := worker.Run(context.Background(), int32(pid), time.Duration(seconds)*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "csworker failed: %v\n", err)
		os.Exit(1)
	}
}
