// Package manifest parses the static cluster description and computes
// ring successor/predecessor relationships over the active subset of
// replicas.
package manifest

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
)

// ReplicaInfo describes a single replica's identity and addressing.
// id is globally unique and totally ordered; the ordering is used as
// tie-break in elections and to define manifest-order for the ring.
type ReplicaInfo struct {
	ID            uint16 `json:"id"`
	PublicAddress string `json:"public_address"`
	PublicPort    int    `json:"public_port"`
	PeerAddress   string `json:"peer_address"`
	PeerPort      int    `json:"peer_port"`
	Active        bool   `json:"active"`
}

// SocketAddr returns the peer_address:peer_port pair used to dial this
// replica's ring link.
func (r ReplicaInfo) SocketAddr() string {
	return net.JoinHostPort(r.PeerAddress, fmt.Sprintf("%d", r.PeerPort))
}

// Endpoint describes the frontend/proxy address pair carried in the
// manifest alongside the backend replica list.
type Endpoint struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// ConnectionInfoDict is the parsed manifest: the frontend/proxy
// endpoints plus the ordered backend replica list that defines the
// logical ring. The ordering of Backend is stable; successor of the
// replica at position i is the next entry (cyclically) whose Active
// flag is true, predecessor the previous such entry.
type ConnectionInfoDict struct {
	Frontend Endpoint      `json:"frontend"`
	Proxy    Endpoint      `json:"proxy"`
	Backend  []ReplicaInfo `json:"backend"`
}

// ErrNoSuccessor is returned when no other active replica exists on
// the ring (the local replica is alone).
var ErrNoSuccessor = fmt.Errorf("manifest: no active successor")

// ErrUnknownID is returned when an id is not present in the backend list.
var ErrUnknownID = fmt.Errorf("manifest: unknown replica id")

// Load reads and parses a manifest file from path. It fails if the
// file is missing, malformed, or does not contain an entry matching
// selfID.
func Load(path string, selfID uint16) (*ConnectionInfoDict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}

	var dict ConnectionInfoDict
	if err := json.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", path, err)
	}

	if _, ok := dict.indexOf(selfID); !ok {
		return nil, fmt.Errorf("manifest: no backend entry for id %d", selfID)
	}

	return &dict, nil
}

func (d *ConnectionInfoDict) indexOf(id uint16) (int, bool) {
	for i, r := range d.Backend {
		if r.ID == id {
			return i, true
		}
	}
	return 0, false
}

// Self returns the ReplicaInfo for id.
func (d *ConnectionInfoDict) Self(id uint16) (ReplicaInfo, bool) {
	i, ok := d.indexOf(id)
	if !ok {
		return ReplicaInfo{}, false
	}
	return d.Backend[i], true
}

// ActiveReplicas returns the backend entries with Active == true, in
// manifest order.
func (d *ConnectionInfoDict) ActiveReplicas() []ReplicaInfo {
	active := make([]ReplicaInfo, 0, len(d.Backend))
	for _, r := range d.Backend {
		if r.Active {
			active = append(active, r)
		}
	}
	return active
}

// Successor returns the next active entry after id, wrapping. It
// returns ErrNoSuccessor if no other entry is active. id itself need
// not be active: for an inactive id the next active entry is returned.
func (d *ConnectionInfoDict) Successor(id uint16) (ReplicaInfo, error) {
	return d.adjacent(id, 1)
}

// Predecessor returns the previous active entry before id, wrapping.
func (d *ConnectionInfoDict) Predecessor(id uint16) (ReplicaInfo, error) {
	return d.adjacent(id, -1)
}

func (d *ConnectionInfoDict) adjacent(id uint16, dir int) (ReplicaInfo, error) {
	idx, ok := d.indexOf(id)
	if !ok {
		return ReplicaInfo{}, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}

	n := len(d.Backend)
	for step := 1; step <= n; step++ {
		j := ((idx+dir*step)%n + n) % n
		if j == idx {
			break
		}
		if d.Backend[j].Active {
			return d.Backend[j], nil
		}
	}
	return ReplicaInfo{}, ErrNoSuccessor
}

// SocketAddr returns (peer_address, peer_port) for id.
func (d *ConnectionInfoDict) SocketAddr(id uint16) (string, error) {
	i, ok := d.indexOf(id)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return d.Backend[i].SocketAddr(), nil
}

// SetActive mutates the active flag for id. It is a no-op if id is
// not present.
func (d *ConnectionInfoDict) SetActive(id uint16, active bool) {
	if i, ok := d.indexOf(id); ok {
		d.Backend[i].Active = active
	}
}

// Remove deletes the entry for id from the backend list entirely,
// used when a replica departs permanently rather than merely going
// inactive.
func (d *ConnectionInfoDict) Remove(id uint16) {
	if i, ok := d.indexOf(id); ok {
		d.Backend = append(d.Backend[:i], d.Backend[i+1:]...)
	}
}

// Upsert inserts info if its id is new, or replaces the existing
// entry with the same id.
func (d *ConnectionInfoDict) Upsert(info ReplicaInfo) {
	if i, ok := d.indexOf(info.ID); ok {
		d.Backend[i] = info
		return
	}
	d.Backend = append(d.Backend, info)
}

// RetainActive drops every backend entry whose Active flag is false.
func (d *ConnectionInfoDict) RetainActive() {
	kept := d.Backend[:0]
	for _, r := range d.Backend {
		if r.Active {
			kept = append(kept, r)
		}
	}
	d.Backend = kept
}

// ActiveCount returns the number of active backend entries.
func (d *ConnectionInfoDict) ActiveCount() int {
	n := 0
	for _, r := range d.Backend {
		if r.Active {
			n++
		}
	}
	return n
}
