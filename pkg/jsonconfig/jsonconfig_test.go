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

package jsonconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestReadFileDecodesScalarsAndValidates(t *testing.T) {
	path := write(t, `{"name": "sda0", "blockSize": 512, "removable": false}`)
	obj, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if got := obj.RequiredString("name"); got != "sda0" {
		t.Fatalf("RequiredString = %q, want sda0", got)
	}
	if got := obj.RequiredInt("blockSize"); got != 512 {
		t.Fatalf("RequiredInt = %d, want 512", got)
	}
	if got := obj.OptionalBool("removable", true); got != false {
		t.Fatalf("OptionalBool = %v, want false", got)
	}
	if err := obj.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateCatchesUnknownKey(t *testing.T) {
	path := write(t, `{"name": "sda0", "typo": true}`)
	obj, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	obj.RequiredString("name")
	if err := obj.Validate(); err == nil {
		t.Fatal("Validate should reject the unconsumed \"typo\" key")
	}
}

func TestValidateCatchesMissingRequiredKey(t *testing.T) {
	path := write(t, `{}`)
	obj, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	obj.RequiredString("name")
	if err := obj.Validate(); err == nil {
		t.Fatal("Validate should reject a missing required key")
	}
}

func TestReadFileMissingFile(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("ReadFile should error on a missing file")
	}
}
