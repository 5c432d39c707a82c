package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the database behind the DSN. PostgreSQL DSNs are detected
// by scheme or keyword form; everything else is treated as a SQLite path.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	var dialector gorm.Dialector
	if isPostgresDSN(trimmed) {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(sqliteDSN(trimmed))
	}

	conn, errOpen := gorm.Open(dialector, gormConfig)
	if errOpen != nil {
		return nil, fmt.Errorf("db: open: %w", errOpen)
	}

	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return nil, fmt.Errorf("db: underlying connection: %w", errDB)
	}
	if IsSQLite(conn) {
		// SQLite serializes writers; extra connections just contend.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return conn, nil
}

// isPostgresDSN reports whether the DSN targets PostgreSQL.
func isPostgresDSN(dsn string) bool {
	lowered := strings.ToLower(dsn)
	if strings.HasPrefix(lowered, "postgres://") || strings.HasPrefix(lowered, "postgresql://") {
		return true
	}
	return strings.Contains(lowered, "host=") && strings.Contains(lowered, "dbname=")
}

// sqliteDSN appends pragmas that keep SQLite usable under concurrent reads.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
