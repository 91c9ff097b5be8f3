/*
Copyright 2026 The Scarlett Kernel Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package capability implements per-process capability tables: a
// dynamic array doubling from an initial capacity of 16 up to 256, a
// system-wide monotonic id counter, and transfer over IPC.
package capability

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/scarlett-os/kernel/pkg/errkind"
)

// Right is a bitmask of operations a capability grants.
type Right uint32

const (
	RightRead Right = 1 << iota
	RightWrite
	RightExecute
	RightTransfer
)

const (
	initialCapacity = 16
	maxCapacity     = 256
)

// Entry is one live capability.
type Entry struct {
	ID         uint64
	Type       string
	ResourceID uint64
	Rights     Right
}

// idCounter is the system-wide, monotonically increasing capability
// id source; one lock covers every process table's allocation.
type idCounter struct {
	mu   sync.Mutex
	next uint64
}

func (c *idCounter) alloc() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	return c.next
}

var globalIDs = &idCounter{}

// Table is one process's capability table: a dynamic array that
// doubles in capacity (16 -> 32 -> ... -> 256) as it fills, guarded by
// its own lock (the "one spinlock per process table" the source
// documents).
type Table struct {
	mu      sync.Mutex
	entries []Entry
}

// NewTable returns an empty table with the documented initial capacity.
func NewTable() *Table {
	return &Table{entries: make([]Entry, 0, initialCapacity)}
}

// Create allocates a fresh, globally unique capability id, appends the
// entry to the table (growing its backing array, doubling up to
// maxCapacity), and returns the new id.
func (t *Table) Create(typ string, resourceID uint64, rights Right) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= maxCapacity {
		return 0, errkind.New("capability.Create", errkind.OutOfMemory, fmt.Errorf("process capability table is full at %d entries", maxCapacity))
	}
	if len(t.entries) == cap(t.entries) {
		newCap := cap(t.entries) * 2
		if newCap == 0 {
			newCap = initialCapacity
		}
		if newCap > maxCapacity {
			newCap = maxCapacity
		}
		grown := make([]Entry, len(t.entries), newCap)
		copy(grown, t.entries)
		t.entries = grown
	}

	id := globalIDs.alloc()
	t.entries = append(t.entries, Entry{ID: id, Type: typ, ResourceID: resourceID, Rights: rights})
	return id, nil
}

func (t *Table) find(capID uint64) (int, bool) {
	for i, e := range t.entries {
		if e.ID == capID {
			return i, true
		}
	}
	return 0, false
}

// Check reports whether capID exists in the table and grants every bit
// of want.
func (t *Table) Check(capID uint64, want Right) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.find(capID)
	if !ok {
		return false
	}
	return t.entries[i].Rights&want == want
}

// Revoke swap-removes capID's entry.
func (t *Table) Revoke(capID uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.find(capID)
	if !ok {
		return errkind.New("capability.Revoke", errkind.NotFound, fmt.Errorf("no such capability %d", capID))
	}
	last := len(t.entries) - 1
	t.entries[i] = t.entries[last]
	t.entries = t.entries[:last]
	return nil
}

// Get returns a copy of capID's entry.
func (t *Table) Get(capID uint64) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.find(capID)
	if !ok {
		return Entry{}, false
	}
	return t.entries[i], true
}

// Message is the minimal IPC envelope capability Transfer appends to.
type Message struct {
	InlineData []byte
}

// Transfer requires capID to carry RightTransfer, then appends its
// 8-byte big-endian id to msg's inline payload. Receiver-side import —
// allocating a fresh id bound to the same (type, resource, rights) in
// the receiving table — is the caller's responsibility; it is not
// observable from the sender's capability table alone.
func Transfer(t *Table, msg *Message, capID uint64) error {
	if !t.Check(capID, RightTransfer) {
		return errkind.New("capability.Transfer", errkind.PermissionDenied, fmt.Errorf("capability %d lacks TRANSFER", capID))
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], capID)
	msg.InlineData = append(msg.InlineData, buf[:]...)
	return nil
}

// Import allocates a fresh capability in dst bound to src's
// (type, resource, rights) for entry capID, completing the
// receiver-side half of a transfer.
func Import(src *Table, dst *Table, capID uint64) (uint64, error) {
	e, ok := src.Get(capID)
	if !ok {
		return 0, errkind.New("capability.Import", errkind.NotFound, fmt.Errorf("no such capability %d", capID))
	}
	return dst.Create(e.Type, e.ResourceID, e.Rights)
}
