// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package wstore persists the browser's client-side settings (window
// geometry, zoom, splitter layout, details visibility) in a sqlite
// database under the wayport home directory.  Writes happen on change
// and on close; each write is one transaction, so readers always see a
// complete snapshot.
package wstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"sync"

	"github.com/alexflint/go-filemutex"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sawka/txwrap"

	wpdb "github.com/wayportdev/wayport/db"
)

const DBFileName = "wayport.db"
const LockFileName = "wayport.lock"
const WayportHomeVarName = "WAYPORT_HOME"
const DefaultHomeDirName = ".wayport"

const (
	SettingKey_Geometry          = "geometry"
	SettingKey_WindowState       = "windowState"
	SettingKey_ZoomLevel         = "zoomLevel"
	SettingKey_DetailsVisible    = "detailsVisible"
	SettingKey_SplitterSizes     = "splitterSizes"
	SettingKey_DetailsSavedWidth = "detailsSavedWidth"
)

var globalDBLock = &sync.Mutex{}
var globalDB *sqlx.DB
var globalDBErr error
var homeLock *filemutex.FileMutex

type TxWrap = txwrap.TxWrap

// GetWayportHomeDir resolves the settings directory ($WAYPORT_HOME or
// ~/.wayport).
func GetWayportHomeDir() string {
	if homeVar := os.Getenv(WayportHomeVarName); homeVar != "" {
		return homeVar
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return path.Join(homeDir, DefaultHomeDirName)
}

func GetDBName() string {
	return path.Join(GetWayportHomeDir(), DBFileName)
}

// AcquireHomeLock takes the cross-process lock on the home directory so
// two browser instances cannot race on the settings DB.
func AcquireHomeLock() error {
	homeDir := GetWayportHomeDir()
	if err := os.MkdirAll(homeDir, 0o700); err != nil {
		return fmt.Errorf("creating home dir: %w", err)
	}
	lock, err := filemutex.New(path.Join(homeDir, LockFileName))
	if err != nil {
		return fmt.Errorf("creating home lock: %w", err)
	}
	if err := lock.TryLock(); err != nil {
		return fmt.Errorf("home directory is locked by another instance: %w", err)
	}
	homeLock = lock
	return nil
}

func ReleaseHomeLock() {
	if homeLock != nil {
		homeLock.Unlock()
		homeLock = nil
	}
}

func MakeMigrate() (*migrate.Migrate, error) {
	fsVar, err := iofs.New(wpdb.MigrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("opening iofs: %w", err)
	}
	dbUrl := fmt.Sprintf("sqlite3://%s", GetDBName())
	m, err := migrate.NewWithSourceInstance("iofs", fsVar, dbUrl)
	if err != nil {
		return nil, fmt.Errorf("making migration db[%s]: %w", GetDBName(), err)
	}
	return m, nil
}

func MigrateUp() error {
	m, err := MakeMigrate()
	if err != nil {
		return err
	}
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrating settings db: %w", err)
	}
	return nil
}

// GetDB opens (once) the settings database, running migrations first.
func GetDB(ctx context.Context) (*sqlx.DB, error) {
	globalDBLock.Lock()
	defer globalDBLock.Unlock()
	if globalDB == nil && globalDBErr == nil {
		if err := os.MkdirAll(GetWayportHomeDir(), 0o700); err != nil {
			globalDBErr = err
			return nil, err
		}
		if err := MigrateUp(); err != nil {
			globalDBErr = err
			return nil, err
		}
		dbName := GetDBName()
		globalDB, globalDBErr = sqlx.Open("sqlite3", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL&_busy_timeout=5000", dbName))
		if globalDBErr != nil {
			log.Printf("[wstore] opening db[%s]: %v\n", dbName, globalDBErr)
		}
	}
	return globalDB, globalDBErr
}

// CloseDB closes the settings database (called on clean exit).
func CloseDB() {
	globalDBLock.Lock()
	defer globalDBLock.Unlock()
	if globalDB == nil {
		return
	}
	if err := globalDB.Close(); err != nil {
		log.Printf("[wstore] closing db: %v\n", err)
	}
	globalDB = nil
	globalDBErr = fmt.Errorf("db closed")
}

type singleConnDBGetter struct {
	singleConnLock *sync.Mutex
}

var dbWrap = &singleConnDBGetter{singleConnLock: &sync.Mutex{}}

func (dbg *singleConnDBGetter) GetDB(ctx context.Context) (*sqlx.DB, error) {
	db, err := GetDB(ctx)
	if err != nil {
		return nil, err
	}
	dbg.singleConnLock.Lock()
	return db, nil
}

func (dbg *singleConnDBGetter) ReleaseDB(db *sqlx.DB) {
	dbg.singleConnLock.Unlock()
}

func WithTx(ctx context.Context, fn func(tx *TxWrap) error) error {
	db, err := dbWrap.GetDB(ctx)
	if err != nil {
		return err
	}
	defer dbWrap.ReleaseDB(db)
	return txwrap.WithTx(ctx, db, fn)
}
