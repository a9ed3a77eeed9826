package core

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	plog "github.com/prometheus/common/log"

	"github.com/jabolina/lamport-lock/internal/config"
	"github.com/jabolina/lamport-lock/pkg/dlock/types"
)

// Envelope tags a delivered Message with the pid of the peer that sent
// it.
type Envelope struct {
	From    int32
	Message types.Message
}

// Transport is the contract the lock protocol expects from the network
// layer: reliable, FIFO-per-channel delivery of fixed-shape messages
// between a fixed set of peers. There is no cross-channel ordering
// guarantee, which is why every message carries its own timestamp.
type Transport interface {
	// Broadcast sends m to every peer except self. The send to each
	// peer is independent; peers may observe the broadcast at
	// different logical times.
	Broadcast(m types.Message) error

	// SendTo unicasts m to a single peer.
	SendTo(pid int32, m types.Message) error

	// Listen returns the channel envelopes arrive on. Closed when the
	// transport is closed.
	Listen() <-chan Envelope

	// Close tears down every connection. Idempotent.
	Close() error
}

// TCPTransport is a Transport built on one long-lived TCP connection
// per peer pair, matching the wire format and bootstrap convention
// from the external interfaces: peer i listens on BASE+i, and peer j
// with the greater id connects out to every peer with a lesser id.
// That asymmetric rule is what lets the N*(N-1)/2 connections come up
// without two peers racing to dial each other.
type TCPTransport struct {
	self     int32
	log      types.Logger
	listener net.Listener

	mu    sync.Mutex
	conns map[int32]net.Conn

	producer chan Envelope
	closeWg  sync.WaitGroup
	closed   chan struct{}
}

// NewTCPTransport brings up the connection mesh described by topology
// and returns once every peer pair is connected. This peer's own
// listen address is taken from its entry in topology.
func NewTCPTransport(self int32, topology *config.Topology, log types.Logger) (*TCPTransport, error) {
	own, ok := topology.Lookup(self)
	if !ok {
		return nil, errors.Errorf("dlock: no topology entry for pid %d", self)
	}

	listener, err := net.Listen("tcp", own.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dlock: listen on %s", own.Addr)
	}

	t := &TCPTransport{
		self:     self,
		log:      log,
		listener: listener,
		conns:    make(map[int32]net.Conn),
		producer: make(chan Envelope, 64*len(topology.Peers)),
		closed:   make(chan struct{}),
	}

	var lower, higher int
	for _, peer := range topology.Peers {
		if peer.Pid == self {
			continue
		}
		if peer.Pid < self {
			lower++
		} else {
			higher++
		}
	}

	var acceptWg sync.WaitGroup
	acceptWg.Add(higher)
	acceptErr := make(chan error, higher)
	go t.acceptLoop(higher, &acceptWg, acceptErr)

	for _, peer := range topology.Peers {
		if peer.Pid >= self {
			continue
		}
		conn, err := net.Dial("tcp", peer.Addr)
		if err != nil {
			listener.Close()
			return nil, errors.Wrapf(err, "dlock: dial peer %d at %s", peer.Pid, peer.Addr)
		}
		if err := handshakeSend(conn, self); err != nil {
			listener.Close()
			return nil, err
		}
		t.register(peer.Pid, conn)
	}

	acceptWg.Wait()
	select {
	case err := <-acceptErr:
		listener.Close()
		return nil, err
	default:
	}

	t.log.Infof("transport established for peer %d: %d connections", self, lower+higher)
	return t, nil
}

// acceptLoop accepts the higher-pid peers' inbound connections. It logs
// through the package-level logger rather than t.log, since a failure
// here happens before any per-peer connection (and the structured
// logger passed to it) is established.
func (t *TCPTransport) acceptLoop(expected int, wg *sync.WaitGroup, errs chan<- error) {
	for i := 0; i < expected; i++ {
		conn, err := t.listener.Accept()
		if err != nil {
			plog.Errorf("dlock: accept on %s failed: %v", t.listener.Addr(), err)
			errs <- errors.Wrap(err, "dlock: accept peer connection")
			wg.Done()
			continue
		}
		pid, err := handshakeRecv(conn)
		if err != nil {
			plog.Errorf("dlock: handshake with %s failed: %v", conn.RemoteAddr(), err)
			errs <- err
			conn.Close()
			wg.Done()
			continue
		}
		t.register(pid, conn)
		wg.Done()
	}
}

func (t *TCPTransport) register(pid int32, conn net.Conn) {
	t.mu.Lock()
	t.conns[pid] = conn
	t.mu.Unlock()

	t.closeWg.Add(1)
	go t.readLoop(pid, conn)
}

// readLoop continuously decodes fixed-size wire records from conn and
// publishes them on the producer channel, tagged with the sender pid.
// Per-channel FIFO comes for free from the TCP stream.
func (t *TCPTransport) readLoop(pid int32, conn net.Conn) {
	defer t.closeWg.Done()
	buf := make([]byte, types.WireSize)
	for {
		if _, err := readFull(conn, buf); err != nil {
			select {
			case <-t.closed:
				return
			default:
				t.log.Errorf("dlock: transport read from peer %d failed: %v", pid, err)
				return
			}
		}
		m, err := types.DecodeMessage(buf)
		if err != nil {
			t.log.Errorf("dlock: malformed record from peer %d: %v", pid, err)
			continue
		}
		select {
		case t.producer <- Envelope{From: pid, Message: m}:
		case <-t.closed:
			return
		}
	}
}

func (t *TCPTransport) Broadcast(m types.Message) error {
	t.mu.Lock()
	targets := make([]int32, 0, len(t.conns))
	for pid := range t.conns {
		targets = append(targets, pid)
	}
	t.mu.Unlock()

	for _, pid := range targets {
		if err := t.SendTo(pid, m); err != nil {
			return err
		}
	}
	return nil
}

func (t *TCPTransport) SendTo(pid int32, m types.Message) error {
	t.mu.Lock()
	conn, ok := t.conns[pid]
	t.mu.Unlock()
	if !ok {
		return errors.Errorf("dlock: no connection to peer %d", pid)
	}

	buf := m.Encode()
	_, err := conn.Write(buf[:])
	if err != nil {
		return errors.Wrapf(err, "dlock: send to peer %d", pid)
	}
	return nil
}

func (t *TCPTransport) Listen() <-chan Envelope {
	return t.producer
}

func (t *TCPTransport) Close() error {
	select {
	case <-t.closed:
		return nil
	default:
		close(t.closed)
	}

	t.listener.Close()
	t.mu.Lock()
	for _, conn := range t.conns {
		conn.Close()
	}
	t.mu.Unlock()
	t.closeWg.Wait()
	close(t.producer)
	return nil
}

func handshakeSend(conn net.Conn, self int32) error {
	var buf [4]byte
	buf[0] = byte(self)
	buf[1] = byte(self >> 8)
	buf[2] = byte(self >> 16)
	buf[3] = byte(self >> 24)
	if _, err := conn.Write(buf[:]); err != nil {
		return errors.Wrap(err, "dlock: handshake send")
	}
	return nil
}

func handshakeRecv(conn net.Conn) (int32, error) {
	var buf [4]byte
	if _, err := readFull(conn, buf[:]); err != nil {
		return 0, errors.Wrap(err, "dlock: handshake receive")
	}
	pid := int32(buf[0]) | int32(buf[1])<<8 | int32(buf[2])<<16 | int32(buf[3])<<24
	return pid, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
