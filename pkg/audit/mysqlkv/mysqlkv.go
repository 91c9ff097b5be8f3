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

// Package mysqlkv is the MySQL dialect of audit/sqlkv, backed by
// github.com/go-sql-driver/mysql.
package mysqlkv

import (
	"database/sql"

	_ "github.com/go-sql-driver/mysql"

	"github.com/scarlett-os/kernel/pkg/audit/sqlkv"
)

const schema = `CREATE TABLE IF NOT EXISTS audit_rows (
	k VARCHAR(191) PRIMARY KEY,
	v TEXT NOT NULL
) ENGINE=InnoDB`

// Open connects to a MySQL server using dsn (as understood by
// go-sql-driver/mysql) and ensures the audit table exists.
func Open(dsn string) (*sqlkv.KeyValue, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	kv := &sqlkv.KeyValue{
		DB:     db,
		Upsert: `REPLACE INTO audit_rows (k, v) VALUES (?, ?)`,
	}
	if err := kv.CreateTable(schema); err != nil {
		db.Close()
		return nil, err
	}
	return kv, nil
}
