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

// Package postgreskv is the PostgreSQL dialect of audit/sqlkv, backed
// by github.com/lib/pq.
package postgreskv

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/scarlett-os/kernel/pkg/audit/sqlkv"
)

const schema = `CREATE TABLE IF NOT EXISTS audit_rows (k TEXT PRIMARY KEY, v TEXT NOT NULL)`

// Open connects to a PostgreSQL server using dsn (as understood by
// lib/pq) and ensures the audit table exists.
func Open(dsn string) (*sqlkv.KeyValue, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	kv := &sqlkv.KeyValue{
		DB:          db,
		Upsert:      `INSERT INTO audit_rows (k, v) VALUES ($1, $2) ON CONFLICT (k) DO UPDATE SET v = excluded.v`,
		Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
	if err := kv.CreateTable(schema); err != nil {
		db.Close()
		return nil, err
	}
	return kv, nil
}
