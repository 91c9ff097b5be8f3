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

package rbac_test

import (
	"testing"

	"github.com/scarlett-os/kernel/pkg/errkind"
	"github.com/scarlett-os/kernel/pkg/security/rbac"
)

func TestAssignedRoleGrantsPermission(t *testing.T) {
	s := rbac.New()
	roleID, err := s.CreateRole("backup-operator", "fs.read", "fs.snapshot")
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if s.Allows(1000, "fs.snapshot") {
		t.Fatal("permission should not be granted before role assignment")
	}
	if err := s.AssignRole(1000, roleID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if !s.Allows(1000, "fs.snapshot") {
		t.Fatal("assigned role should grant fs.snapshot")
	}
	if s.Allows(1000, "fs.write") {
		t.Fatal("role should not grant an ungranted permission")
	}
}

func TestRevokeRoleRemovesPermission(t *testing.T) {
	s := rbac.New()
	roleID, _ := s.CreateRole("viewer", "fs.read")
	s.AssignRole(2000, roleID)
	if err := s.RevokeRole(2000, roleID); err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}
	if s.Allows(2000, "fs.read") {
		t.Fatal("revoked role should no longer grant fs.read")
	}
}

func TestDuplicateRoleNameIsAlreadyExists(t *testing.T) {
	s := rbac.New()
	if _, err := s.CreateRole("admin"); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := s.CreateRole("admin"); !errkind.Is(err, errkind.AlreadyExists) {
		t.Fatalf("duplicate CreateRole = %v, want AlreadyExists", err)
	}
}

func TestAssignUnknownRoleIsNotFound(t *testing.T) {
	s := rbac.New()
	if err := s.AssignRole(1000, 999); !errkind.Is(err, errkind.NotFound) {
		t.Fatalf("AssignRole(unknown) = %v, want NotFound", err)
	}
}
