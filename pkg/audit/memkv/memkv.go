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

// Package memkv is an in-memory audit.KeyValue, useful for tests and
// for a kernel boot with no persistent audit backend configured.
package memkv

import (
	"sort"
	"sync"

	"github.com/scarlett-os/kernel/pkg/audit"
)

// KeyValue is a naive sorted map guarded by a mutex. Real backends
// (leveldb, sqlite, mysql, postgres) keep their own sort order; this
// one re-sorts its key snapshot on every Find, which is fine for an
// audit trail's size and access pattern.
type KeyValue struct {
	mu   sync.Mutex
	rows map[string]string
}

// New returns an empty in-memory store.
func New() *KeyValue {
	return &KeyValue{rows: make(map[string]string)}
}

func (kv *KeyValue) Get(key string) (string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.rows[key]
	if !ok {
		return "", audit.ErrNotFound
	}
	return v, nil
}

func (kv *KeyValue) Set(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.rows[key] = value
	return nil
}

func (kv *KeyValue) Delete(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.rows, key)
	return nil
}

func (kv *KeyValue) Find(start string) audit.Iterator {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	keys := make([]string, 0, len(kv.rows))
	for k := range kv.rows {
		if k >= start {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return &memIter{kv: kv, keys: keys, pos: -1}
}

func (kv *KeyValue) Close() error { return nil }

type memIter struct {
	kv   *KeyValue
	keys []string
	pos  int
}

func (it *memIter) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *memIter) Key() string { return it.keys[it.pos] }

func (it *memIter) Value() string {
	it.kv.mu.Lock()
	defer it.kv.mu.Unlock()
	return it.kv.rows[it.keys[it.pos]]
}

func (it *memIter) Close() error { return nil }
