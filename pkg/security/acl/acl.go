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

// Package acl implements POSIX-style access control lists with mask
// semantics: a matching User entry decides first, then a matching
// Group entry, then Other, with an optional Mask entry that narrows
// what a Group entry grants (User entries are not masked).
package acl

import (
	"fmt"

	"github.com/scarlett-os/kernel/pkg/errkind"
)

// Kind identifies which principal an Entry names.
type Kind uint8

const (
	KindUser Kind = iota
	KindGroup
	KindMask
	KindOther
)

// Perm is a POSIX rwx bitmask.
type Perm uint8

const (
	PermRead    Perm = 0o4
	PermWrite   Perm = 0o2
	PermExecute Perm = 0o1
)

// Entry is one ACL record: a principal (Kind, ID — ID is ignored for
// Mask and Other) and the rights it grants.
type Entry struct {
	Kind  Kind
	ID    uint32
	Perms Perm
}

// maxEntries matches the 32-entry ceiling the source enforces per ACL.
const maxEntries = 32

// ACL is an ordered, bounded list of entries attached to one resource.
type ACL struct {
	entries []Entry
}

// New returns an empty ACL.
func New() *ACL { return &ACL{} }

// FromMode seeds an ACL from POSIX mode bits and the creating
// uid/gid, the behavior file creation falls back to when no explicit
// ACL is set.
func FromMode(mode uint32, uid, gid uint32) *ACL {
	a := New()
	a.entries = []Entry{
		{Kind: KindUser, ID: uid, Perms: Perm((mode >> 6) & 0o7)},
		{Kind: KindGroup, ID: gid, Perms: Perm((mode >> 3) & 0o7)},
		{Kind: KindOther, Perms: Perm(mode & 0o7)},
	}
	return a
}

// Add appends entry, rejecting a second entry for the same (Kind, ID)
// pair and a full table.
func (a *ACL) Add(e Entry) error {
	if len(a.entries) >= maxEntries {
		return errkind.New("acl.Add", errkind.OutOfMemory, fmt.Errorf("ACL already holds the maximum of %d entries", maxEntries))
	}
	for _, existing := range a.entries {
		if existing.Kind == e.Kind && existing.ID == e.ID {
			return errkind.New("acl.Add", errkind.AlreadyExists, fmt.Errorf("an entry for kind %d id %d already exists", e.Kind, e.ID))
		}
	}
	a.entries = append(a.entries, e)
	return nil
}

// Entries returns a copy of the ACL's entries, in evaluation order.
func (a *ACL) Entries() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// mask returns the ACL's Mask entry's Perms and whether one is set.
func (a *ACL) mask() (Perm, bool) {
	for _, e := range a.entries {
		if e.Kind == KindMask {
			return e.Perms, true
		}
	}
	return 0, false
}

// Check evaluates want against uid/gid per the documented precedence:
// the first matching User entry decides outright (the mask does not
// apply to it); otherwise a matching Group entry is ANDed with the
// Mask, if one is present; otherwise Other decides.
func (a *ACL) Check(uid, gid uint32, want Perm) bool {
	for _, e := range a.entries {
		if e.Kind == KindUser && e.ID == uid {
			return e.Perms&want == want
		}
	}
	for _, e := range a.entries {
		if e.Kind == KindGroup && e.ID == gid {
			effective := e.Perms
			if m, ok := a.mask(); ok {
				effective &= m
			}
			return effective&want == want
		}
	}
	for _, e := range a.entries {
		if e.Kind == KindOther {
			return e.Perms&want == want
		}
	}
	return false
}
