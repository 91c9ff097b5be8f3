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

// Package userdb implements the in-memory user/group database:
// fixed-capacity record tables, monotonic uid/gid allocation, argon2id
// password hashing, and the /etc/passwd and /etc/group persistence
// formats.
package userdb

import (
	"fmt"
	"sync"

	"github.com/scarlett-os/kernel/pkg/errkind"
)

const (
	maxUsers  = 256
	maxGroups = 64

	rootUID = 0
	rootGID = 0

	firstAllocatedID = 1000
)

// User is one record in the user table. Deleted users are tombstoned
// (Active=false); their slot is never reused.
type User struct {
	Name   string
	Hash   string
	Uid    uint32
	Gid    uint32
	Active bool
}

// Group is one record in the group table.
type Group struct {
	Name    string
	Gid     uint32
	Members []uint32
	Active  bool
}

// DB is the process-wide user/group database. One spinlock-equivalent
// mutex guards every operation, matching the single-lock-per-subsystem
// model the rest of this tree uses for shared state.
type DB struct {
	mu sync.Mutex

	users  [maxUsers]User
	groups [maxGroups]Group

	nextUID uint32
	nextGID uint32
}

// New returns a DB with the root user and root group seeded at slot 0.
func New() *DB {
	db := &DB{nextUID: firstAllocatedID, nextGID: firstAllocatedID}
	db.users[0] = User{Name: "root", Uid: rootUID, Gid: rootGID, Active: true}
	db.groups[0] = Group{Name: "root", Gid: rootGID, Members: []uint32{rootUID}, Active: true}
	return db
}

func (db *DB) findUserByName(name string) (*User, bool) {
	for i := range db.users {
		if db.users[i].Active && db.users[i].Name == name {
			return &db.users[i], true
		}
	}
	return nil, false
}

func (db *DB) findUserByUID(uid uint32) (*User, bool) {
	for i := range db.users {
		if db.users[i].Active && db.users[i].Uid == uid {
			return &db.users[i], true
		}
	}
	return nil, false
}

func (db *DB) findGroupByGID(gid uint32) (*Group, bool) {
	for i := range db.groups {
		if db.groups[i].Active && db.groups[i].Gid == gid {
			return &db.groups[i], true
		}
	}
	return nil, false
}

func (db *DB) freeUserSlot() (int, bool) {
	for i := range db.users {
		if !db.users[i].Active && db.users[i].Name == "" {
			return i, true
		}
	}
	return 0, false
}

func (db *DB) freeGroupSlot() (int, bool) {
	for i := range db.groups {
		if !db.groups[i].Active && db.groups[i].Name == "" {
			return i, true
		}
	}
	return 0, false
}

// CreateUser assigns the next uid, hashes password with argon2id, and
// sets the user's gid equal to its uid (the private-group convention).
// No group record is created for that gid.
func (db *DB) CreateUser(name, password string) (uid uint32, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, found := db.findUserByName(name); found {
		return 0, errkind.New("userdb.CreateUser", errkind.AlreadyExists, fmt.Errorf("user %q already exists", name))
	}
	slot, ok := db.freeUserSlot()
	if !ok {
		return 0, errkind.New("userdb.CreateUser", errkind.OutOfMemory, fmt.Errorf("user table is full"))
	}
	hash, err := hashPassword(password)
	if err != nil {
		return 0, errkind.New("userdb.CreateUser", errkind.InvalidArg, err)
	}

	newUID := db.nextUID
	db.nextUID++
	db.users[slot] = User{Name: name, Hash: hash, Uid: newUID, Gid: newUID, Active: true}
	return newUID, nil
}

// DeleteUser tombstones the user; uid 0 can never be removed.
func (db *DB) DeleteUser(uid uint32) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if uid == rootUID {
		return errkind.New("userdb.DeleteUser", errkind.PermissionDenied, fmt.Errorf("cannot delete root"))
	}
	u, found := db.findUserByUID(uid)
	if !found {
		return errkind.New("userdb.DeleteUser", errkind.NotFound, fmt.Errorf("no such uid %d", uid))
	}
	u.Active = false
	return nil
}

// Authenticate returns the uid when name/password match an active
// user, else PermissionDenied.
func (db *DB) Authenticate(name, password string) (uint32, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	u, found := db.findUserByName(name)
	if !found || !verifyPassword(u.Hash, password) {
		return 0, errkind.New("userdb.Authenticate", errkind.PermissionDenied, fmt.Errorf("bad username or password"))
	}
	return u.Uid, nil
}

// CreateGroup assigns the next gid to a fresh, memberless group.
func (db *DB) CreateGroup(name string) (gid uint32, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for i := range db.groups {
		if db.groups[i].Active && db.groups[i].Name == name {
			return 0, errkind.New("userdb.CreateGroup", errkind.AlreadyExists, fmt.Errorf("group %q already exists", name))
		}
	}
	slot, ok := db.freeGroupSlot()
	if !ok {
		return 0, errkind.New("userdb.CreateGroup", errkind.OutOfMemory, fmt.Errorf("group table is full"))
	}
	newGID := db.nextGID
	db.nextGID++
	db.groups[slot] = Group{Name: name, Gid: newGID, Active: true}
	return newGID, nil
}

// DeleteGroup tombstones the group; gid 0 can never be removed.
func (db *DB) DeleteGroup(gid uint32) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if gid == rootGID {
		return errkind.New("userdb.DeleteGroup", errkind.PermissionDenied, fmt.Errorf("cannot delete the root group"))
	}
	g, found := db.findGroupByGID(gid)
	if !found {
		return errkind.New("userdb.DeleteGroup", errkind.NotFound, fmt.Errorf("no such gid %d", gid))
	}
	g.Active = false
	return nil
}

// AddMember adds uid to group gid's member list, if not already there.
func (db *DB) AddMember(gid, uid uint32) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	g, found := db.findGroupByGID(gid)
	if !found {
		return errkind.New("userdb.AddMember", errkind.NotFound, fmt.Errorf("no such gid %d", gid))
	}
	for _, m := range g.Members {
		if m == uid {
			return nil
		}
	}
	g.Members = append(g.Members, uid)
	return nil
}

// ActiveUsers returns a snapshot of every active user record.
func (db *DB) ActiveUsers() []User {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []User
	for _, u := range db.users {
		if u.Active {
			out = append(out, u)
		}
	}
	return out
}

// ActiveGroups returns a snapshot of every active group record.
func (db *DB) ActiveGroups() []Group {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []Group
	for _, g := range db.groups {
		if g.Active {
			out = append(out, g)
		}
	}
	return out
}

// ActiveUsersByName exposes a single active user's record by name.
func (db *DB) ActiveUsersByName(name string) (User, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	u, found := db.findUserByName(name)
	if !found {
		return User{}, false
	}
	return *u, true
}

// UserByUID exposes a single active user's record by uid.
func (db *DB) UserByUID(uid uint32) (User, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	u, found := db.findUserByUID(uid)
	if !found {
		return User{}, false
	}
	return *u, true
}

// GroupByGID exposes a single active group's record by gid.
func (db *DB) GroupByGID(gid uint32) (Group, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	g, found := db.findGroupByGID(gid)
	if !found {
		return Group{}, false
	}
	return *g, true
}
