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

package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/scarlett-os/kernel/pkg/security/rbac"
)

const sampleSeed = `{
  "roles": [
    {"name": "admin", "permissions": ["fs.read", "fs.write", "fs.admin"]},
    {"name": "readonly", "permissions": ["fs.read"]}
  ],
  "assignments": [
    {"uid": 0, "roles": ["admin"]},
    {"uid": 1000, "roles": ["readonly"]}
  ]
}`

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestSeedRBACCreatesRolesAndAssignments(t *testing.T) {
	store := rbac.New()
	path := writeSeed(t, sampleSeed)

	if err := SeedRBAC(store, path); err != nil {
		t.Fatalf("SeedRBAC: %v", err)
	}

	if !store.Allows(0, "fs.admin") {
		t.Fatal("uid 0 should have fs.admin via the admin role")
	}
	if !store.Allows(1000, "fs.read") {
		t.Fatal("uid 1000 should have fs.read via the readonly role")
	}
	if store.Allows(1000, "fs.write") {
		t.Fatal("uid 1000 should not have fs.write")
	}
}

func TestSeedRBACRejectsUnknownRoleInAssignment(t *testing.T) {
	store := rbac.New()
	path := writeSeed(t, `{
		"roles": [{"name": "admin", "permissions": ["fs.admin"]}],
		"assignments": [{"uid": 0, "roles": ["ghost"]}]
	}`)

	if err := SeedRBAC(store, path); err == nil {
		t.Fatal("expected an error for an assignment referencing an undeclared role")
	}
}

func TestSeedRBACMissingFile(t *testing.T) {
	store := rbac.New()
	if err := SeedRBAC(store, filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error for a missing seed file")
	}
}
