package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jabolina/lamport-lock/pkg/dlock/types"
)

// newCluster wires n protocols over an in-memory transport, each with
// its own ChannelEventSink so tests can observe entry/exit order
// without racing the protocol's internal mutex. The returned closeAll
// stops every receive loop so a goleak check run afterward sees a
// clean goroutine set.
func newCluster(t *testing.T, n int) (protocols []*Protocol, sinks []*ChannelEventSink, closeAll func()) {
	transports := newMemoryCluster(n)
	protocols = make([]*Protocol, n)
	sinks = make([]*ChannelEventSink, n)

	for pid := int32(0); pid < int32(n); pid++ {
		sink := NewChannelEventSink()
		sinks[pid] = sink
		protocols[pid] = NewProtocol(Config{
			Self:      pid,
			N:         int32(n),
			Transport: transports[pid],
			Log:       simpleLogger{},
			Events:    sink,
		})
	}

	closeAll = func() {
		for _, p := range protocols {
			p.Close()
		}
		for _, tr := range transports {
			tr.Close()
		}
	}

	return protocols, sinks, closeAll
}

// simpleLogger discards everything except Fatal, which would indicate
// a real bug rather than expected test noise.
type simpleLogger struct{}

func (simpleLogger) Debug(v ...interface{})                { }
func (simpleLogger) Debugf(string, ...interface{})         { }
func (simpleLogger) Info(v ...interface{})                 { }
func (simpleLogger) Infof(string, ...interface{})          { }
func (simpleLogger) Warn(v ...interface{})                 { }
func (simpleLogger) Warnf(string, ...interface{})          { }
func (simpleLogger) Error(v ...interface{})                { }
func (simpleLogger) Errorf(string, ...interface{})         { }
func (simpleLogger) Fatal(v ...interface{})                { panic("fatal in test") }
func (simpleLogger) Fatalf(string, ...interface{})         { panic("fatal in test") }
func (l simpleLogger) WithField(string, interface{}) types.Logger {
	return l
}

func TestProtocol_TwoPeersOneLockEach(t *testing.T) {
	protocols, sinks, closeAll := newCluster(t, 2)
	defer func() {
		closeAll()
		goleak.VerifyNone(t)
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	for pid := 0; pid < 2; pid++ {
		pid := pid
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, protocols[pid].RequestLock(ctx))
			require.NoError(t, protocols[pid].ReleaseLock())
		}()
	}
	wg.Wait()

	for pid := 0; pid < 2; pid++ {
		select {
		case <-sinks[pid].EnteredCh:
		case <-time.After(time.Second):
			t.Fatalf("peer %d never entered its critical section", pid)
		}
	}
}

// gatedMetrics holds every received message in MessageReceived, before
// dispatch touches the clock or the queue, until open is closed. Each
// arrival is reported on arrived first.
type gatedMetrics struct {
	NoopMetricsRecorder
	arrived chan struct{}
	open    chan struct{}
}

func (g gatedMetrics) MessageReceived(string) {
	g.arrived <- struct{}{}
	<-g.open
}

func TestProtocol_TiebreakByPid(t *testing.T) {
	protocols, sinks, closeAll := newCluster(t, 2)
	defer func() {
		closeAll()
		goleak.VerifyNone(t)
	}()

	// Force both peers to request at the same logical moment: delivery
	// is held until each peer has received the other's REQ, so both
	// REQs were stamped from an untouched clock and carry ts 1. The
	// lower pid must still win the tie.
	gate := gatedMetrics{arrived: make(chan struct{}, 16), open: make(chan struct{})}
	for _, p := range protocols {
		p.metrics = gate
	}

	var wg sync.WaitGroup
	wg.Add(2)
	order := make(chan int32, 2)
	for pid := 0; pid < 2; pid++ {
		pid := pid
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, protocols[pid].RequestLock(ctx))
			order <- int32(pid)
			require.NoError(t, protocols[pid].ReleaseLock())
		}()
	}
	<-gate.arrived
	<-gate.arrived
	close(gate.open)
	wg.Wait()
	close(order)

	first := <-order
	require.Equal(t, int32(0), first, "pid 0 must win a timestamp tie")

	for pid := 0; pid < 2; pid++ {
		select {
		case <-sinks[pid].EnteredCh:
		default:
			t.Fatalf("peer %d never entered", pid)
		}
	}
}

func TestProtocol_FourPeersBroadcastSimultaneously(t *testing.T) {
	const n = 4
	protocols, sinks, closeAll := newCluster(t, n)
	defer func() {
		closeAll()
		goleak.VerifyNone(t)
	}()

	var mu sync.Mutex
	var intervals [][2]int32 // [pid, order position]
	next := int32(0)

	var wg sync.WaitGroup
	wg.Add(n)
	for pid := 0; pid < n; pid++ {
		pid := pid
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			require.NoError(t, protocols[pid].RequestLock(ctx))

			mu.Lock()
			position := next
			next++
			intervals = append(intervals, [2]int32{int32(pid), position})
			mu.Unlock()

			require.NoError(t, protocols[pid].ReleaseLock())
		}()
	}
	wg.Wait()

	require.Len(t, intervals, n)
	seen := make(map[int32]bool)
	for _, iv := range intervals {
		require.False(t, seen[iv[0]], "peer %d entered twice", iv[0])
		seen[iv[0]] = true
	}

	for pid := 0; pid < n; pid++ {
		select {
		case <-sinks[pid].EnteredCh:
		case <-time.After(time.Second):
			t.Fatalf("peer %d never entered its critical section", pid)
		}
	}
}

func TestProtocol_WaitForCompletionsOrdersAcrossPeers(t *testing.T) {
	protocols, _, closeAll := newCluster(t, 2)
	defer func() {
		closeAll()
		goleak.VerifyNone(t)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, protocols[0].RequestLock(ctx))
	require.NoError(t, protocols[0].ReleaseLock())

	// Give peer 1's receiver loop a chance to observe the REL.
	require.NoError(t, protocols[1].WaitForCompletions(ctx, 0, 1))

	require.NoError(t, protocols[1].RequestLock(ctx))
	require.NoError(t, protocols[1].ReleaseLock())
}

func TestProtocol_ClosePropagatesToBlockedWaiters(t *testing.T) {
	protocols, _, closeAll := newCluster(t, 2)
	defer func() {
		closeAll()
		goleak.VerifyNone(t)
	}()

	errCh := make(chan error, 1)
	go func() {
		// Peer 1 waits on a completion that will never come.
		errCh <- protocols[1].WaitForCompletions(context.Background(), 0, 1)
	}()

	time.Sleep(50 * time.Millisecond)
	protocols[1].Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the blocked waiter")
	}
}
