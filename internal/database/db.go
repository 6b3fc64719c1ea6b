// Package database opens the optional MySQL waiter directory.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/iliyamo/pos-waiter/internal/config"
)

// Open connects to MySQL and verifies the connection.
func Open(cfg config.ServerConfig) (*sql.DB, error) {
	auth := cfg.DBUser
	if cfg.DBPass != "" {
		auth = fmt.Sprintf("%s:%s", cfg.DBUser, cfg.DBPass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

const waitersDDL = `CREATE TABLE IF NOT EXISTS waiters (
	id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
	name       VARCHAR(100)    NOT NULL,
	pin_hash   VARCHAR(100)    NOT NULL,
	is_active  TINYINT(1)      NOT NULL DEFAULT 1,
	created_at DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// Migrate creates the waiters table when missing and, if it is empty,
// seeds it with names sharing pinHash.
func Migrate(ctx context.Context, db *sql.DB, names []string, pinHash string) error {
	if _, err := db.ExecContext(ctx, waitersDDL); err != nil {
		return fmt.Errorf("create waiters: %w", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM waiters").Scan(&n); err != nil {
		return fmt.Errorf("count waiters: %w", err)
	}
	if n > 0 {
		return nil
	}
	for _, name := range names {
		if _, err := db.ExecContext(ctx,
			"INSERT INTO waiters (name, pin_hash, is_active) VALUES (?, ?, 1)", name, pinHash); err != nil {
			return fmt.Errorf("seed waiter %s: %w", name, err)
		}
	}
	return nil
}
