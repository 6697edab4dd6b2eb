// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Close(t *testing.T) {
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "zones.db")}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Health())
	require.NoError(t, db.Close())
	assert.Error(t, db.Health())
}

func TestOpen_BadPath(t *testing.T) {
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "missing", "zones.db")}, nil)
	assert.Error(t, err)
	assert.Nil(t, db)
}

func TestCloseOnError(t *testing.T) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())

	cause := errors.New("migrate failed")
	err = closeOnError(sqlDB, cause)
	assert.ErrorIs(t, err, cause)
	assert.Error(t, sqlDB.Ping(), "database should be closed")
}
