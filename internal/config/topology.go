// Package config resolves the fixed peer topology (the pid -> host:port
// table) that the transport bootstrap needs. The peer set is fixed at
// startup, consistent with the engine's fixed-membership non-goal, so
// the topology is loaded once and never mutated afterward.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// PeerAddress is one entry of the topology table.
type PeerAddress struct {
	Pid  int32  `toml:"pid"`
	Addr string `toml:"addr"`
}

// Topology is the resolved, validated table of peer addresses.
type Topology struct {
	Peers []PeerAddress
}

// tomlTopology mirrors the on-disk shape: a TOML document with a
// repeated [[peers]] table, grounded on the same BurntSushi/toml
// library the dolthub-dolt example depends on for its own config.
type tomlTopology struct {
	Peers []PeerAddress `toml:"peers"`
}

// LoadFile parses a topology TOML file of the form:
//
//	[[peers]]
//	pid = 0
//	addr = "127.0.0.1:9000"
//
//	[[peers]]
//	pid = 1
//	addr = "127.0.0.1:9001"
func LoadFile(path string) (*Topology, error) {
	var doc tomlTopology
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, errors.Wrapf(err, "dlock: decode topology file %s", path)
	}
	return newTopology(doc.Peers)
}

// FromFlags builds a Topology from repeated "pid=host:port" flag
// values, the shape the peer binary's --peer flag accepts.
func FromFlags(entries []string) (*Topology, error) {
	peers := make([]PeerAddress, 0, len(entries))
	for _, entry := range entries {
		var pid int32
		var addr string
		n, err := fmt.Sscanf(entry, "%d=%s", &pid, &addr)
		if err != nil || n != 2 {
			return nil, errors.Errorf("dlock: malformed --peer entry %q, want pid=host:port", entry)
		}
		peers = append(peers, PeerAddress{Pid: pid, Addr: addr})
	}
	return newTopology(peers)
}

func newTopology(peers []PeerAddress) (*Topology, error) {
	t := &Topology{Peers: peers}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that every pid in [0, N) appears exactly once and no
// two peers share an address, where N is the number of entries.
func (t *Topology) Validate() error {
	n := len(t.Peers)
	if n == 0 {
		return errors.New("dlock: topology has no peers")
	}

	seenPid := make(map[int32]bool, n)
	seenAddr := make(map[string]bool, n)
	for _, p := range t.Peers {
		if p.Pid < 0 || int(p.Pid) >= n {
			return errors.Errorf("dlock: pid %d out of range [0, %d)", p.Pid, n)
		}
		if seenPid[p.Pid] {
			return errors.Errorf("dlock: duplicate pid %d in topology", p.Pid)
		}
		if seenAddr[p.Addr] {
			return errors.Errorf("dlock: duplicate address %q in topology", p.Addr)
		}
		seenPid[p.Pid] = true
		seenAddr[p.Addr] = true
	}
	return nil
}

// N returns the total peer count.
func (t *Topology) N() int {
	return len(t.Peers)
}

// Lookup returns the address entry for pid.
func (t *Topology) Lookup(pid int32) (PeerAddress, bool) {
	for _, p := range t.Peers {
		if p.Pid == pid {
			return p, true
		}
	}
	return PeerAddress{}, false
}
