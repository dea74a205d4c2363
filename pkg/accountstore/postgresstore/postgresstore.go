// Package postgresstore is the multi-replica account storage backend:
// account parameters held in PostgreSQL, schema-managed by golang-migrate,
// queried through GORM.
package postgresstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fmuellner/telepathy-mission-control/internal/logger"
	"github.com/fmuellner/telepathy-mission-control/pkg/accountstore"
)

const defaultPriority = 10

type accountParam struct {
	AccountID string `gorm:"primaryKey;column:account_id;size:255"`
	Key       string `gorm:"primaryKey;column:key;size:255"`
	Value     string `gorm:"column:value;type:text"`
	UpdatedAt time.Time
}

func (accountParam) TableName() string { return "account_params" }

// Store implements accountstore.Backend over PostgreSQL.
type Store struct {
	db *gorm.DB

	mu      sync.Mutex
	watchCh chan accountstore.Change
}

// New connects to PostgreSQL, runs pending migrations if cfg.AutoMigrate,
// and returns a ready Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres account store config: %w", err)
	}

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, cfg.dsn()); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	} else {
		logger.Info("auto_migrate disabled for postgres account store, skipping schema check")
	}

	db, err := gorm.Open(postgres.Open(cfg.dsn()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	logger.Info("postgres account store connected", "host", cfg.Host, "database", cfg.Database)

	return &Store{db: db, watchCh: make(chan accountstore.Change, 16)}, nil
}

func (s *Store) Priority() int       { return defaultPriority }
func (s *Store) Name() string        { return "postgres" }
func (s *Store) Description() string { return "PostgreSQL account parameter store" }
func (s *Store) Provider() string {
	return "org.example.DispatchClient.AccountStore.Postgres"
}
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

// Commit is a no-op: writes are synchronously durable.
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

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
