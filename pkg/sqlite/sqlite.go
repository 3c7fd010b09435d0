package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/voreskerne/frivillig/pkg/db"
)

// Raw DDL that AutoMigrate cannot express
var extraDDL = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_shift_trades_pending
		ON shift_trades(shift_role_id) WHERE status = 'PENDING'`,
}

var migrateModels = []any{
	&db.Role{},
	&db.User{},
	&db.Shift{},
	&db.ShiftRole{},
	&db.ShiftTrade{},
	&db.Task{},
	&db.TaskSignup{},
	&db.AdminNotification{},
}

// DB provides database operations using an embedded SQLite database through gorm.
// It holds a single connection, so transactions are serialised and the same
// conditional-write semantics as the postgres backend hold.
type DB struct {
	db *gorm.DB
}

var _ db.Database = (*DB)(nil)

// NewDB opens the SQLite database at path. An empty path opens a private
// in-memory database, which is what the tests use.
func NewDB(path string) (*DB, error) {
	var dsn string
	if path == "" {
		dsn = fmt.Sprintf("file:frivillig-%s?mode=memory&cache=shared", uuid.NewString())
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		// WAL journal mode, wait on a locked file instead of failing
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := gdb.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to configure tracing: %w", err)
	}

	return &DB{db: gdb}, nil
}

// Close closes the underlying connection
func (d *DB) Close() {
	if sqlDB, err := d.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// RunMigrations creates or updates all tables and indexes
func (d *DB) RunMigrations(ctx context.Context) error {
	gdb := d.db.WithContext(ctx)
	for _, model := range migrateModels {
		if err := gdb.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}
	for _, stmt := range extraDDL {
		if err := gdb.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to execute migration statement: %w", err)
		}
	}
	return nil
}

func (d *DB) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.db.WithContext(ctx).Transaction(fn)
}

// isUniqueViolation reports whether err is a unique constraint failure naming
// the given "table.column" target
func isUniqueViolation(err error, target string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, target)
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// exists reports whether a row with the given id exists for model
func exists(tx *gorm.DB, model any, id string) (bool, error) {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return count > 0, nil
}
