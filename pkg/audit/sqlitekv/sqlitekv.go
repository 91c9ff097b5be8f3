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

// Package sqlitekv is the sqlite dialect of audit/sqlkv, backed by the
// pure-Go modernc.org/sqlite driver (no cgo).
package sqlitekv

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/scarlett-os/kernel/pkg/audit/sqlkv"
)

const schema = `CREATE TABLE IF NOT EXISTS audit_rows (k TEXT PRIMARY KEY, v TEXT NOT NULL)`

// Open opens (creating if absent) the sqlite database file at path.
func Open(path string) (*sqlkv.KeyValue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	kv := &sqlkv.KeyValue{
		DB:     db,
		Upsert: `INSERT INTO audit_rows (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`,
		Serial: true, // sqlite serializes writers at the file level; avoid lock contention
	}
	if err := kv.CreateTable(schema); err != nil {
		db.Close()
		return nil, err
	}
	return kv, nil
}
