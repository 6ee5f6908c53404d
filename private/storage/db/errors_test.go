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
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrFmt(t *testing.T) {
	f := func(t *testing.T, expect error, err error) {
		t.Helper()
		expectedMsg := fmt.Sprintf("%s {detailMsg=test}", expect)
		require.Equal(t, expectedMsg, err.Error())
		require.True(t, errors.Is(err, expect))
	}

	f(t, ErrTx, NewTxError("test", nil))
	f(t, ErrInvalidInputData, NewInputDataError("test", nil))
	f(t, ErrDataInvalid, NewDataError("test", nil))
	f(t, ErrReadFailed, NewReadError("test", nil))
	f(t, ErrWriteFailed, NewWriteError("test", nil))
	f(t, ErrNotFound, NewNotFoundError("test"))
}

func TestNewSqlite(t *testing.T) {
	const schema = `CREATE TABLE entries (id INTEGER PRIMARY KEY, name TEXT);`
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := NewSqlite(path, schema, 1)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO entries (name) VALUES (?)`, "first")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening with the same version keeps the data.
	db, err = NewSqlite(path, schema, 1)
	require.NoError(t, err)
	var name string
	require.NoError(t, db.QueryRow(`SELECT name FROM entries`).Scan(&name))
	assert.Equal(t, "first", name)
	require.NoError(t, db.Close())

	_, err = NewSqlite(path, schema, 2)
	assert.Error(t, err)

	_, err = NewSqlite(":memory:", schema, 1)
	assert.Error(t, err)
}
