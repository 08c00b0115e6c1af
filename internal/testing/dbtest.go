package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"skill-runner/pkg/database"
)

// DBTest provides a real MySQL connection for integration tests. It uses
// DATABASE_URL_TEST, then DATABASE_URL; tests are skipped when neither is set.
type DBTest struct {
	T   *testing.T
	DB  *database.DB
	SQL *sql.DB
}

func NewDBTest(t *testing.T) *DBTest {
	t.Helper()
	url := os.Getenv("DATABASE_URL_TEST")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("DATABASE_URL_TEST or DATABASE_URL not set; skipping integration tests")
	}
	db, err := database.New(url)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	return &DBTest{T: t, DB: db, SQL: db.Conn()}
}

func (d *DBTest) Close() {
	_ = d.DB.Close()
}

// Truncate wipes the verification tables.
func (d *DBTest) Truncate() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, table := range []string{"address_review_logs", "address_verifications"} {
		if _, err := d.SQL.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			d.T.Fatalf("truncate %s: %v", table, err)
		}
	}
}
