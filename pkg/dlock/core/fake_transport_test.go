package core

import (
	"sync"

	"github.com/jabolina/lamport-lock/pkg/dlock/types"
)

// memoryTransport connects a fixed set of peers through Go channels
// instead of sockets, so the protocol's safety and liveness properties
// can be exercised without paying for real TCP connections.
type memoryTransport struct {
	self     int32
	peers    map[int32]chan Envelope
	out      chan Envelope
	closeOut sync.Once
}

// newMemoryCluster builds n fully-connected memoryTransports, one per
// pid in [0, n).
func newMemoryCluster(n int) []*memoryTransport {
	inboxes := make(map[int32]chan Envelope, n)
	for pid := int32(0); pid < int32(n); pid++ {
		inboxes[pid] = make(chan Envelope, 256)
	}

	transports := make([]*memoryTransport, n)
	for pid := int32(0); pid < int32(n); pid++ {
		transports[pid] = &memoryTransport{
			self:  pid,
			peers: inboxes,
			out:   inboxes[pid],
		}
	}
	return transports
}

func (m *memoryTransport) Broadcast(msg types.Message) error {
	for pid, inbox := range m.peers {
		if pid == m.self {
			continue
		}
		inbox <- Envelope{From: m.self, Message: msg}
	}
	return nil
}

func (m *memoryTransport) SendTo(pid int32, msg types.Message) error {
	m.peers[pid] <- Envelope{From: m.self, Message: msg}
	return nil
}

func (m *memoryTransport) Listen() <-chan Envelope {
	return m.out
}

// Close unblocks this peer's receive loop. Callers must stop sending
// to this peer before closing, since closing a channel that is still
// receiving sends would panic.
func (m *memoryTransport) Close() error {
	m.closeOut.Do(func() { close(m.out) })
	return nil
}
