// Package peers remembers which address each device was last heard from.
package peers

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/1ureka/nearchat/internal/util"
)

// Peer is one known device.
type Peer struct {
	DeviceID string
	Address  string
	LastSeen time.Time
}

// Directory maps device ids announced in PING lines to the address they came
// from. Addresses rotate, so a newer observation replaces the older one.
type Directory struct {
	mu      sync.Mutex
	byID    map[string]*Peer
	byAddr  map[string]string // address -> device id
	nowFunc func() time.Time
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		byID:    make(map[string]*Peer),
		byAddr:  make(map[string]string),
		nowFunc: time.Now,
	}
}

// Observe records that the device named in payload is reachable at peer.
func (d *Directory) Observe(peer, payload string) {
	id := strings.TrimSpace(payload)
	if id == "" || peer == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.byID[id]
	if !ok {
		p = &Peer{DeviceID: id}
		d.byID[id] = p
		util.LogInfo("discovered %s at %s", id, peer)
	} else if p.Address != peer {
		delete(d.byAddr, p.Address)
		util.LogDebug("%s moved from %s to %s", id, p.Address, peer)
	}
	p.Address = peer
	p.LastSeen = d.nowFunc()
	d.byAddr[peer] = id
}

// Restore loads a sighting recorded in an earlier session. It never replaces
// a newer observation or takes over an address claimed by another device.
func (d *Directory) Restore(p Peer) {
	if p.DeviceID == "" || p.Address == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if cur, ok := d.byID[p.DeviceID]; ok && !cur.LastSeen.Before(p.LastSeen) {
		return
	}
	if owner, ok := d.byAddr[p.Address]; ok && owner != p.DeviceID {
		return
	}
	if cur, ok := d.byID[p.DeviceID]; ok {
		delete(d.byAddr, cur.Address)
	}
	d.byID[p.DeviceID] = &Peer{DeviceID: p.DeviceID, Address: p.Address, LastSeen: p.LastSeen}
	d.byAddr[p.Address] = p.DeviceID
}

// ResolveCurrentAddress returns the latest address of deviceID.
func (d *Directory) ResolveCurrentAddress(deviceID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[deviceID]
	if !ok {
		return "", false
	}
	return p.Address, true
}

// DeviceAt returns the device last seen at addr.
func (d *Directory) DeviceAt(addr string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.byAddr[addr]
	return id, ok
}

// Forget drops devices not seen within maxAge and returns how many were removed.
func (d *Directory) Forget(maxAge time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.nowFunc().Add(-maxAge)
	n := 0
	for id, p := range d.byID {
		if p.LastSeen.Before(cutoff) {
			delete(d.byID, id)
			if d.byAddr[p.Address] == id {
				delete(d.byAddr, p.Address)
			}
			n++
		}
	}
	return n
}

// List returns a copy of every known peer, most recently seen first.
func (d *Directory) List() []Peer {
	d.mu.Lock()
	out := make([]Peer, 0, len(d.byID))
	for _, p := range d.byID {
		out = append(out, *p)
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}
