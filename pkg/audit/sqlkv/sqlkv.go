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

// Package sqlkv implements audit.KeyValue on top of an *sql.DB,
// shared by the sqlite, mysql, and postgres audit backends — each
// supplies its own driver name, upsert statement, and placeholder
// style.
package sqlkv

import (
	"database/sql"
	"sync"

	"github.com/scarlett-os/kernel/pkg/audit"
)

// KeyValue is a single SQL table ("audit_rows", columns k/v) accessed
// through database/sql. Upsert carries the dialect-specific statement
// ("REPLACE INTO ..." for mysql, "INSERT ... ON CONFLICT" for sqlite
// and postgres); Placeholder renders the Nth (1-based) bind parameter
// ("?" for sqlite/mysql, "$N" for postgres); Serial forces
// single-flight access for drivers (sqlite) that don't tolerate
// concurrent writers well.
type KeyValue struct {
	DB          *sql.DB
	Upsert      string
	Placeholder func(n int) string
	Serial      bool

	mu sync.Mutex
}

func (kv *KeyValue) ph(n int) string {
	if kv.Placeholder != nil {
		return kv.Placeholder(n)
	}
	return "?"
}

func (kv *KeyValue) lock() func() {
	if !kv.Serial {
		return func() {}
	}
	kv.mu.Lock()
	return kv.mu.Unlock
}

func (kv *KeyValue) Get(key string) (string, error) {
	defer kv.lock()()
	var v string
	err := kv.DB.QueryRow(`SELECT v FROM audit_rows WHERE k = `+kv.ph(1), key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", audit.ErrNotFound
	}
	return v, err
}

func (kv *KeyValue) Set(key, value string) error {
	defer kv.lock()()
	_, err := kv.DB.Exec(kv.Upsert, key, value)
	return err
}

func (kv *KeyValue) Delete(key string) error {
	defer kv.lock()()
	_, err := kv.DB.Exec(`DELETE FROM audit_rows WHERE k = `+kv.ph(1), key)
	return err
}

func (kv *KeyValue) Find(start string) audit.Iterator {
	defer kv.lock()()
	rows, err := kv.DB.Query(`SELECT k, v FROM audit_rows WHERE k >= `+kv.ph(1)+` ORDER BY k`, start)
	if err != nil {
		return &iter{err: err}
	}
	return &iter{rows: rows}
}

func (kv *KeyValue) Close() error { return kv.DB.Close() }

// CreateTable issues the table-creation DDL, safe to call repeatedly.
func (kv *KeyValue) CreateTable(ddl string) error {
	_, err := kv.DB.Exec(ddl)
	return err
}

type iter struct {
	rows       *sql.Rows
	err        error
	key, value string
}

func (it *iter) Next() bool {
	if it.err != nil || it.rows == nil {
		return false
	}
	if !it.rows.Next() {
		return false
	}
	if err := it.rows.Scan(&it.key, &it.value); err != nil {
		it.err = err
		return false
	}
	return true
}

func (it *iter) Key() string   { return it.key }
func (it *iter) Value() string { return it.value }

func (it *iter) Close() error {
	if it.rows != nil {
		it.rows.Close()
	}
	return it.err
}
