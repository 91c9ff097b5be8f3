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

// Package policy loads the boot-time RBAC seed document: the roles
// that should exist and which users hold them, expressed as a single
// JSON file read with pkg/jsonconfig rather than the TOML boot
// manifest, since role/permission lists nest more naturally as JSON
// arrays of objects than as TOML tables.
package policy

import (
	"fmt"

	"github.com/scarlett-os/kernel/pkg/jsonconfig"
	"github.com/scarlett-os/kernel/pkg/security/rbac"
)

// SeedRBAC reads the seed document at path and creates every declared
// role, then applies every declared user->role assignment, in file
// order. A seed document looks like:
//
//	{
//	  "roles": [
//	    {"name": "admin", "permissions": ["fs.read", "fs.write", "fs.admin"]},
//	    {"name": "readonly", "permissions": ["fs.read"]}
//	  ],
//	  "assignments": [
//	    {"uid": 0, "roles": ["admin"]},
//	    {"uid": 1000, "roles": ["readonly"]}
//	  ]
//	}
func SeedRBAC(store *rbac.Store, path string) error {
	root, err := jsonconfig.ReadFile(path)
	if err != nil {
		return fmt.Errorf("policy: reading %s: %w", path, err)
	}

	roleIDs := make(map[string]uint32)
	for i, re := range asObjList(root["roles"]) {
		name, ok := re["name"].(string)
		if !ok || name == "" {
			return fmt.Errorf("policy: roles[%d]: missing \"name\"", i)
		}
		perms := stringsOf(re["permissions"])
		ids := make([]rbac.PermissionID, len(perms))
		for j, p := range perms {
			ids[j] = rbac.PermissionID(p)
		}
		id, err := store.CreateRole(name, ids...)
		if err != nil {
			return fmt.Errorf("policy: roles[%d] (%s): %w", i, name, err)
		}
		roleIDs[name] = id
	}

	for i, ae := range asObjList(root["assignments"]) {
		uidF, ok := ae["uid"].(float64)
		if !ok {
			return fmt.Errorf("policy: assignments[%d]: missing numeric \"uid\"", i)
		}
		uid := uint32(uidF)
		for _, roleName := range stringsOf(ae["roles"]) {
			id, ok := roleIDs[roleName]
			if !ok {
				return fmt.Errorf("policy: assignments[%d]: unknown role %q", i, roleName)
			}
			if err := store.AssignRole(uid, id); err != nil {
				return fmt.Errorf("policy: assignments[%d]: %w", i, err)
			}
		}
	}
	return nil
}

// asObjList normalizes a decoded JSON array-of-objects value (or a
// missing/wrong-typed key) down to a slice of jsonconfig.Obj, skipping
// entries that aren't objects rather than erroring on them.
func asObjList(v interface{}) []jsonconfig.Obj {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]jsonconfig.Obj, 0, len(raw))
	for _, e := range raw {
		if m, ok := e.(map[string]interface{}); ok {
			out = append(out, jsonconfig.Obj(m))
		}
	}
	return out
}

// stringsOf normalizes a decoded JSON array-of-strings value down to
// a []string, skipping non-string entries.
func stringsOf(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
