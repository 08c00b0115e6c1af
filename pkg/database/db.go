package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"skill-runner/internal/constants"
	"skill-runner/pkg/config"
	errs "skill-runner/pkg/errors"

	"github.com/go-sql-driver/mysql"
)

type DB struct {
	conn         *sql.DB
	stmts        map[string]*sql.Stmt
	readTimeout  time.Duration
	writeTimeout time.Duration
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS address_verifications (
		id CHAR(36) PRIMARY KEY,
		source VARCHAR(16) NOT NULL,
		full_address TEXT NOT NULL,
		postal_code VARCHAR(5) NOT NULL DEFAULT '',
		state VARCHAR(16) NOT NULL,
		recommended_state VARCHAR(16) NOT NULL,
		final_confidence INT NOT NULL,
		max_severity VARCHAR(16) NULL,
		extracted_data JSON NOT NULL,
		geocode_data JSON NOT NULL,
		catalog_data JSON NOT NULL,
		similarity_data JSON NOT NULL,
		verdict_data JSON NOT NULL,
		reviewed_by VARCHAR(128) NULL,
		review_notes TEXT NULL,
		reviewed_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		INDEX idx_state_created (state, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS address_review_logs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		verification_id CHAR(36) NOT NULL,
		reviewer VARCHAR(128) NOT NULL,
		previous_state VARCHAR(16) NOT NULL,
		decision VARCHAR(16) NOT NULL,
		notes TEXT NULL,
		created_at DATETIME NOT NULL,
		INDEX idx_verification (verification_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// New opens a MySQL pool with default settings.
func New(databaseURL string) (*DB, error) {
	return open(databaseURL, 25, 10, 10*time.Minute, constants.DBReadTimeoutDefault, constants.DBWriteTimeoutDefault)
}

// NewWithConfig opens a MySQL pool sized and timed from cfg.
func NewWithConfig(databaseURL string, cfg *config.Config) (*DB, error) {
	rt := cfg.DBReadTimeout
	if rt == 0 {
		rt = constants.DBReadTimeoutDefault
	}
	wt := cfg.DBWriteTimeout
	if wt == 0 {
		wt = constants.DBWriteTimeoutDefault
	}
	return open(databaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, rt, wt)
}

func open(databaseURL string, maxOpen, maxIdle int, lifetime, rt, wt time.Duration) (*DB, error) {
	dsn, err := normalizeDSN(databaseURL)
	if err != nil {
		return nil, errs.NewDB("database.open", "invalid DSN", err)
	}
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errs.NewDB("database.open", "invalid DSN", err)
	}

	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	conn.SetConnMaxLifetime(lifetime)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), rt)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errs.NewDB("database.open", "ping failed", err)
	}

	db := &DB{
		conn:         conn,
		stmts:        make(map[string]*sql.Stmt),
		readTimeout:  rt,
		writeTimeout: wt,
	}

	if err := db.ensureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, errs.NewDB("database.open", "failed to prepare statements", err)
	}

	return db, nil
}

// normalizeDSN forces DATETIME columns to scan into time.Time in UTC.
func normalizeDSN(databaseURL string) (string, error) {
	cfg, err := mysql.ParseDSN(databaseURL)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func (db *DB) ensureSchema(ctx context.Context) error {
	for _, ddl := range schema {
		if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
			return errs.NewDB("database.ensureSchema", "failed to create table", err)
		}
	}
	return nil
}

// prepareStatements prepares the hot write paths.
func (db *DB) prepareStatements() error {
	statements := map[string]string{
		"insertVerification": `INSERT INTO address_verifications
			(id, source, full_address, postal_code, state, recommended_state, final_confidence, max_severity,
			 extracted_data, geocode_data, catalog_data, similarity_data, verdict_data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"insertReviewLog": `INSERT INTO address_review_logs
			(verification_id, reviewer, previous_state, decision, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
	}

	for name, query := range statements {
		stmt, err := db.conn.Prepare(query)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", name, err)
		}
		db.stmts[name] = stmt
	}
	return nil
}

// Close closes prepared statements and the pool.
func (db *DB) Close() error {
	for _, stmt := range db.stmts {
		stmt.Close()
	}
	return db.conn.Close()
}

// Ping checks connectivity within the read timeout.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// Conn exposes the pool for the event store and transactions.
func (db *DB) Conn() *sql.DB { return db.conn }

func (db *DB) withReadTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.readTimeout)
}

func (db *DB) withWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.writeTimeout)
}
