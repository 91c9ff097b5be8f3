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

// Package rbac implements role-based access control: named roles
// carrying a bounded set of permission ids, and a user-to-roles
// mapping consulted by the authorization chokepoint as a fallback
// after capability and ACL checks have already declined.
package rbac

import (
	"fmt"
	"sync"

	"github.com/scarlett-os/kernel/pkg/errkind"
)

// maxPermissions matches the 64-permission ceiling a role may carry.
const maxPermissions = 64

// PermissionID identifies one grantable action, e.g. "fs.write".
type PermissionID string

// Role is a named bundle of permissions.
type Role struct {
	RoleID      uint32
	Name        string
	Permissions []PermissionID
}

// Grants reports whether the role carries perm.
func (r Role) Grants(perm PermissionID) bool {
	for _, p := range r.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Store holds every defined role and the user->roles mapping. One
// mutex guards all of it, matching the rest of this tree's
// single-lock-per-subsystem model.
type Store struct {
	mu sync.Mutex

	roles    map[uint32]*Role
	userRole map[uint32][]uint32 // uid -> role ids
	nextRole uint32
}

// New returns an empty role store.
func New() *Store {
	return &Store{roles: make(map[uint32]*Role), userRole: make(map[uint32][]uint32), nextRole: 1}
}

// CreateRole defines a fresh role and returns its id.
func (s *Store) CreateRole(name string, perms ...PermissionID) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(perms) > maxPermissions {
		return 0, errkind.New("rbac.CreateRole", errkind.InvalidArg, fmt.Errorf("role %q requests %d permissions, exceeding the %d limit", name, len(perms), maxPermissions))
	}
	for _, r := range s.roles {
		if r.Name == name {
			return 0, errkind.New("rbac.CreateRole", errkind.AlreadyExists, fmt.Errorf("role %q already exists", name))
		}
	}
	id := s.nextRole
	s.nextRole++
	cp := make([]PermissionID, len(perms))
	copy(cp, perms)
	s.roles[id] = &Role{RoleID: id, Name: name, Permissions: cp}
	return id, nil
}

// AssignRole grants roleID to uid.
func (s *Store) AssignRole(uid, roleID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[roleID]; !ok {
		return errkind.New("rbac.AssignRole", errkind.NotFound, fmt.Errorf("no such role %d", roleID))
	}
	for _, existing := range s.userRole[uid] {
		if existing == roleID {
			return nil
		}
	}
	s.userRole[uid] = append(s.userRole[uid], roleID)
	return nil
}

// RevokeRole removes roleID from uid's assigned roles.
func (s *Store) RevokeRole(uid, roleID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	roles := s.userRole[uid]
	for i, r := range roles {
		if r == roleID {
			s.userRole[uid] = append(roles[:i], roles[i+1:]...)
			return nil
		}
	}
	return errkind.New("rbac.RevokeRole", errkind.NotFound, fmt.Errorf("uid %d does not hold role %d", uid, roleID))
}

// Allows reports whether any role assigned to uid grants perm.
func (s *Store) Allows(uid uint32, perm PermissionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, roleID := range s.userRole[uid] {
		if role, ok := s.roles[roleID]; ok && role.Grants(perm) {
			return true
		}
	}
	return false
}

// RolesForUser returns a copy of the role ids assigned to uid.
func (s *Store) RolesForUser(uid uint32) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint32, len(s.userRole[uid]))
	copy(out, s.userRole[uid])
	return out
}
