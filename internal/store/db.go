// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package store keeps the last known state of every zone seen on the bus in
// a SQLite database.
package store

import (
	"database/sql"

	"github.com/go-faster/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Config holds database configuration
type Config struct {
	Path string // Path to SQLite database file
}

// DB wraps the GORM database instance
type DB struct {
	db *gorm.DB
}

// Open opens (and migrates) the zone database with the pure Go SQLite driver.
// A nil log silences GORM.
func Open(config Config, log *zerolog.Logger) (*DB, error) {
	var gormLog logger.Interface
	if log != nil {
		gormLog = logger.New(
			log,
			logger.Config{
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		)
	} else {
		gormLog = logger.Default.LogMode(logger.Silent)
	}

	dialector := sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        config.Path,
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLog,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql handle")
	}

	if err := configureSQLite(sqlDB); err != nil {
		return nil, closeOnError(sqlDB, err)
	}

	if err := db.AutoMigrate(&ZoneState{}, &SourceText{}); err != nil {
		return nil, closeOnError(sqlDB, errors.Wrap(err, "migrate"))
	}

	if log != nil {
		log.Debug().Str("path", config.Path).Msg("zone database opened")
	}

	return &DB{db: db}, nil
}

// closeOnError closes a half-opened database and returns err
func closeOnError(sqlDB *sql.DB, err error) error {
	if cerr := sqlDB.Close(); cerr != nil {
		return multierror.Append(err, errors.Wrap(cerr, "close database"))
	}
	return err
}

func configureSQLite(sqlDB *sql.DB) error {
	pragmaSettings := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=memory",
	}

	for _, pragma := range pragmaSettings {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return errors.Wrapf(err, "%s", pragma)
		}
	}

	return nil
}

// GetDB returns the underlying GORM database instance
func (db *DB) GetDB() *gorm.DB {
	return db.db
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database connection is healthy
func (db *DB) Health() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
