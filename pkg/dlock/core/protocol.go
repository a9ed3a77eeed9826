package core

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jabolina/lamport-lock/pkg/dlock/types"
)

// ErrClosed is returned by protocol operations invoked after Close.
var ErrClosed = errors.New("dlock: protocol closed")

// Protocol implements the Lamport-style total-order mutual-exclusion
// algorithm for a single peer. It owns the one coarse mutex that
// protects every piece of shared bookkeeping: the logical clock, the
// request queue, the per-peer ack watermarks and the per-peer
// completion counters. Finer-grained locking between
// those four is deliberately avoided — the data is small and the
// operations are short, so splitting the lock would only risk
// reordering a clock tick relative to the queue insert it belongs
// with.
type Protocol struct {
	mu   sync.Mutex
	cond *sync.Cond

	self int32
	n    int32

	clock *LogicalClock
	queue *RequestQueue

	// acks[p] is the largest timestamp seen on any ACK from peer p.
	acks map[int32]int32

	// completions[p] counts how many times p's request has left the
	// queue, via REL receipt (remote peers) or local release (self).
	completions map[int32]int32

	transport Transport
	invoker   Invoker
	log       types.Logger
	metrics   MetricsRecorder
	events    EventSink

	closed bool
}

// Config bundles the collaborators Protocol needs. Metrics and Events
// default to no-ops when left nil, so callers that don't care about
// them don't have to construct anything extra.
type Config struct {
	Self      int32
	N         int32
	Transport Transport
	Log       types.Logger
	Invoker   Invoker
	Metrics   MetricsRecorder
	Events    EventSink
}

// NewProtocol constructs the protocol for one peer and starts its
// receiver loop. The receiver loop runs until the transport closes the
// channel returned by Listen.
func NewProtocol(cfg Config) *Protocol {
	if cfg.Invoker == nil {
		cfg.Invoker = NewInvoker()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetricsRecorder{}
	}
	if cfg.Events == nil {
		cfg.Events = NoopEventSink{}
	}

	p := &Protocol{
		self:        cfg.Self,
		n:           cfg.N,
		clock:       NewLogicalClock(),
		queue:       NewRequestQueue(),
		acks:        make(map[int32]int32),
		completions: make(map[int32]int32),
		transport:   cfg.Transport,
		invoker:     cfg.Invoker,
		log:         cfg.Log.WithField("pid", cfg.Self),
		metrics:     cfg.Metrics,
		events:      cfg.Events,
	}
	p.cond = sync.NewCond(&p.mu)
	p.invoker.Spawn(p.receiveLoop)
	return p
}

// RequestLock blocks the caller until the lock is held: it stamps a
// REQ, enqueues it locally, broadcasts it, and waits for the entry
// predicate to hold. ctx is an additive escape hatch for tests and
// graceful shutdown; it does not change the protocol's safety or
// liveness guarantees, and production callers should pass a context
// that is never cancelled mid-request.
func (p *Protocol) RequestLock(ctx context.Context) error {
	start := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	ts := p.clock.Tick()
	p.queue.Insert(ts, p.self)
	p.mu.Unlock()

	if err := p.transport.Broadcast(types.Message{Type: types.REQ, Timestamp: ts, Pid: p.self}); err != nil {
		return errors.Wrap(err, "dlock: broadcast REQ")
	}
	p.metrics.MessageSent(types.REQ.String())

	if err := p.waitUntil(ctx, func() bool { return p.entryPredicateLocked(ts) }); err != nil {
		return err
	}

	p.metrics.RequestLatency(time.Since(start).Seconds())
	p.events.Entered(ts)
	return nil
}

// entryPredicateLocked reports whether ts may now enter the critical
// section: the request queue must be headed by this peer, and every
// peer's most recent ack to this peer must be at least ts. Must be
// called with mu held.
func (p *Protocol) entryPredicateLocked(ts int32) bool {
	head, ok := p.queue.Head()
	if !ok || head.Pid != p.self {
		return false
	}
	for pid := int32(0); pid < p.n; pid++ {
		if pid == p.self {
			continue
		}
		if p.acks[pid] < ts {
			return false
		}
	}
	return true
}

// waitUntil blocks on the protocol's condition variable until cond
// returns true or ctx is done. The condition variable is signaled by
// the receiver loop on every processed message, replacing the
// reference implementation's 100us poll loop with a wake on actual
// progress.
func (p *Protocol) waitUntil(ctx context.Context, cond func() bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	done := make(chan struct{})
	if ctx.Done() != nil {
		stop := make(chan struct{})
		defer close(stop)
		p.invoker.Spawn(func() {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.cond.Broadcast()
				p.mu.Unlock()
			case <-stop:
			case <-done:
			}
		})
	}
	defer close(done)

	p.mu.Lock()
	defer p.mu.Unlock()
	for !cond() {
		if p.closed {
			return ErrClosed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		p.cond.Wait()
	}
	return nil
}

// ReleaseLock removes self's record from the queue and broadcasts a
// REL. It returns immediately; it does not wait for any
// acknowledgement.
func (p *Protocol) ReleaseLock() error {
	p.mu.Lock()
	ts := p.clock.Tick()
	p.queue.Remove(p.self)
	p.completions[p.self]++
	p.mu.Unlock()

	if err := p.transport.Broadcast(types.Message{Type: types.REL, Timestamp: ts, Pid: p.self}); err != nil {
		return errors.Wrap(err, "dlock: broadcast REL")
	}
	p.metrics.MessageSent(types.REL.String())

	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()

	p.events.Released(ts)
	return nil
}

// WaitForCompletions blocks until peer pid has completed at least k
// lock cycles, as observed locally via REL arrivals (or, for pid ==
// self, via local ReleaseLock calls).
func (p *Protocol) WaitForCompletions(ctx context.Context, pid int32, k int32) error {
	return p.waitUntil(ctx, func() bool {
		return p.completions[pid] >= k
	})
}

// receiveLoop consumes the transport's delivered envelopes for the
// lifetime of the protocol.
func (p *Protocol) receiveLoop() {
	for env := range p.transport.Listen() {
		p.dispatch(env)
	}
}

// dispatch applies one received message to the local bookkeeping:
// observe the timestamp first, then branch on message type.
func (p *Protocol) dispatch(env Envelope) {
	m := env.Message
	p.metrics.MessageReceived(m.Type.String())

	p.mu.Lock()
	p.clock.Observe(m.Timestamp)
	p.metrics.ClockValue(p.clock.Peek())

	switch m.Type {
	case types.REQ:
		if violation := p.queue.Insert(m.Timestamp, m.Pid); violation {
			p.log.Warnf("protocol violation: duplicate REQ from peer %d", m.Pid)
		}
		p.metrics.QueueDepth(p.queue.Len())
		ackTs := p.clock.Tick()
		p.mu.Unlock()

		if err := p.transport.SendTo(m.Pid, types.Message{Type: types.ACK, Timestamp: ackTs, Pid: p.self}); err != nil {
			p.log.Errorf("dlock: failed to ACK peer %d: %v", m.Pid, err)
		} else {
			p.metrics.MessageSent(types.ACK.String())
		}

		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
		return

	case types.ACK:
		if m.Timestamp > p.acks[m.Pid] {
			p.acks[m.Pid] = m.Timestamp
		}

	case types.REL:
		p.queue.Remove(m.Pid)
		p.completions[m.Pid]++
		p.metrics.QueueDepth(p.queue.Len())

	default:
		p.log.Warnf("protocol violation: unknown message type %v from peer %d", m.Type, m.Pid)
	}

	p.cond.Broadcast()
	p.mu.Unlock()
}

// Close marks the protocol closed and wakes every blocked waiter with
// ErrClosed. It does not close the transport; callers own that, and
// the receiver loop keeps running until they do.
func (p *Protocol) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}
