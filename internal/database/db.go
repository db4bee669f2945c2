package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/charlesng35/crewbell/pkg/logger"
)

// Config contains database connection options.
type Config struct {
	Driver   string
	Path     string // SQLite database path when Driver == sqlite
	DSN      string // Optional DSN override
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Options  map[string]string

	// SlowQuery is the threshold above which queries are logged at warn. Zero uses 200ms.
	SlowQuery time.Duration
}

// Open connects to the configured database. Queries are logged through zap
// under the "database" module.
func Open(cfg Config) (*gorm.DB, error) {
	driver := normalizeDriver(cfg.Driver)

	dialector, err := dialectorFor(driver, cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newQueryLogger(logger.WithModule("database"), cfg.SlowQuery),
	})
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		// one writer at a time, or concurrent requests hit "database is locked"
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("database: obtain sql handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func normalizeDriver(driver string) string {
	switch d := strings.ToLower(strings.TrimSpace(driver)); d {
	case "", "sqlite", "sqlite3":
		return "sqlite"
	case "postgres", "postgresql", "pg":
		return "postgres"
	default:
		return d
	}
}

func dialectorFor(driver string, cfg Config) (gorm.Dialector, error) {
	switch driver {
	case "sqlite":
		dsn, err := sqliteDSN(cfg)
		if err != nil {
			return nil, err
		}
		return sqlite.Open(dsn), nil
	case "postgres":
		dsn, err := postgresDSN(cfg)
		if err != nil {
			return nil, err
		}
		return postgres.Open(dsn), nil
	case "mysql":
		dsn, err := mysqlDSN(cfg)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Prepare migrates the schema; used during application start-up and in tests.
func Prepare(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database: obtain sql handle: %w", err)
	}
	return sqlDB.Close()
}
