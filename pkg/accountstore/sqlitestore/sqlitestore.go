// Package sqlitestore is the default, embedded account storage backend: a
// single SQLite file holding account parameters, via GORM.
package sqlitestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fmuellner/telepathy-mission-control/internal/logger"
	"github.com/fmuellner/telepathy-mission-control/pkg/accountstore"
)

const defaultPriority = 0

// Config configures the embedded SQLite backend.
type Config struct {
	// Path is the SQLite database file. Defaults to
	// $XDG_CONFIG_HOME/dispatchd/accounts.db.
	Path string
}

func (c *Config) applyDefaults() {
	if c.Path != "" {
		return
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	c.Path = filepath.Join(configDir, "dispatchd", "accounts.db")
}

// accountParam is one (account, key) -> value row.
type accountParam struct {
	AccountID string `gorm:"primaryKey;size:255"`
	Key       string `gorm:"primaryKey;size:255"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

func (accountParam) TableName() string { return "account_params" }

// Store implements accountstore.Backend on top of a SQLite file.
type Store struct {
	db *gorm.DB

	mu      sync.Mutex
	watchCh chan accountstore.Change
}

// New opens (creating if necessary) the SQLite database at cfg.Path and
// auto-migrates the account_params table.
func New(cfg Config) (*Store, error) {
	cfg.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.AutoMigrate(&accountParam{}); err != nil {
		return nil, fmt.Errorf("migrate account_params: %w", err)
	}

	logger.Info("sqlite account store ready", "path", cfg.Path)

	return &Store{db: db, watchCh: make(chan accountstore.Change, 16)}, nil
}

func (s *Store) Priority() int        { return defaultPriority }
func (s *Store) Name() string         { return "sqlite" }
func (s *Store) Description() string  { return "embedded SQLite account parameter store" }
func (s *Store) Provider() string     { return "org.example.DispatchClient.AccountStore.SQLite" }
func (s *Store) Watch() <-chan accountstore.Change { return s.watchCh }

func (s *Store) Get(ctx context.Context, accountID, key string) (string, bool, error) {
	var row accountParam
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND key = ?", accountID, key).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return row.Value, true, nil
}

func (s *Store) Set(ctx context.Context, accountID, key, value string) error {
	row := accountParam{AccountID: accountID, Key: key, Value: value, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Save(&row).Error
	if err != nil {
		return err
	}
	s.notify(accountID, accountstore.EventAlteredOne)
	return nil
}

func (s *Store) Delete(ctx context.Context, accountID, key string) error {
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND key = ?", accountID, key).
		Delete(&accountParam{}).Error
	if err != nil {
		return err
	}
	s.notify(accountID, accountstore.EventAltered)
	return nil
}

// Commit is a no-op: every Set/Delete above is already durable.
func (s *Store) Commit(ctx context.Context, accountID string) error {
	return nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&accountParam{}).
		Distinct("account_id").
		Pluck("account_id", &ids).Error
	return ids, err
}

func (s *Store) Ready(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) notify(accountID string, ev accountstore.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.watchCh <- accountstore.Change{AccountID: accountID, Event: ev}:
	default:
	}
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
