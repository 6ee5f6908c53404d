// Copyright 2025 The pki-server Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite" // sqlite driver
)

// NewSqlite opens the sqlite database at path and applies the schema if the
// database is new. A database with a different schema version is rejected.
//
// Command line invocations are one-shot and sequential, so a single
// connection is used for reads and writes.
func NewSqlite(path string, schema string, schemaVersion int) (*sql.DB, error) {
	if strings.Contains(path, ":memory:") {
		return nil, fmt.Errorf("in-memory databases are not supported")
	}
	connParams := make(url.Values)
	// Start transactions as write transactions so that busy_timeout is
	// respected instead of failing with SQLITE_BUSY on upgrade.
	connParams.Add("_txlock", "immediate")
	connParams.Add("_pragma", "busy_timeout(1000)")
	connParams.Add("_pragma", "foreign_keys(1)")

	connURL := path + "?" + connParams.Encode()
	if !strings.HasPrefix(path, "file:") {
		connURL = "file:" + connURL
	}
	db, err := sql.Open("sqlite", connURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := setup(db, schema, schemaVersion); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func setup(db *sql.DB, schema string, schemaVersion int) error {
	var existingVersion int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&existingVersion); err != nil {
		return fmt.Errorf("checking database schema version: %w", err)
	}
	switch {
	case existingVersion == 0:
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
		_, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
		if err != nil {
			return fmt.Errorf("writing schema version: %w", err)
		}
		return nil
	case existingVersion != schemaVersion:
		return fmt.Errorf("database schema version mismatch: expected %d, have %d",
			schemaVersion, existingVersion,
		)
	default:
		return nil
	}
}
