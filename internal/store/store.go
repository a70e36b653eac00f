package store

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/PetoAdam/homenavi/readings-service/internal/patch"
)

// PostgresConfig holds connection settings for the production store.
type PostgresConfig struct {
	User     string
	Password string
	DBName   string
	Host     string
	Port     string
	SSLMode  string
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

func OpenPostgres(cfg PostgresConfig) (*gorm.DB, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, sslMode)
	return gorm.Open(postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true}), gormConfig())
}

// OpenSQLite opens a file or in-memory database. _cslike=true keeps LIKE
// case-sensitive so device name matching behaves as it does on postgres.
func OpenSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		path = "file:readings?mode=memory&cache=shared"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return gorm.Open(sqlite.Open(path+sep+"_cslike=true"), gormConfig())
}

// Repo is the single entry point to accounts and readings.
type Repo struct {
	db       *gorm.DB
	now      func() time.Time
	accounts *patch.Dispatcher
	readings *patch.Dispatcher
}

type Option func(*Repo)

// WithClock overrides the time source used for last-seen stamps, inactive
// cleanup and trailing-window reports.
func WithClock(now func() time.Time) Option {
	return func(r *Repo) { r.now = now }
}

func New(db *gorm.DB, opts ...Option) (*Repo, error) {
	if err := db.AutoMigrate(&Account{}, &Reading{}); err != nil {
		return nil, err
	}
	r := &Repo{db: db, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(r)
	}
	r.accounts = patch.NewDispatcher(db, &Account{}, AccountPatchTable, "accounts").WithVersion("version")
	r.readings = patch.NewDispatcher(db, &Reading{}, ReadingPatchTable, "readings").WithVersion("version")
	return r, nil
}

// DB exposes the pool for health checks.
func (r *Repo) DB() *gorm.DB {
	return r.db
}
