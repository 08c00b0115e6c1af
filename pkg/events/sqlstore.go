package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"skill-runner/internal/constants"
	"skill-runner/pkg/database"
	errs "skill-runner/pkg/errors"
)

// SQLEventStore keeps events in MySQL with ordered IDs.
type SQLEventStore struct {
	conn    *sql.DB
	timeout time.Duration
}

// NewSQLEventStore creates the table when missing.
func NewSQLEventStore(ctx context.Context, db *database.DB) (*SQLEventStore, error) {
	s := &SQLEventStore{conn: db.Conn(), timeout: constants.EventsSQLTimeoutDefault}
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLEventStore) ensureTable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS verification_events (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		verification_id CHAR(36) NOT NULL,
		type VARCHAR(64) NOT NULL,
		at DATETIME(6) NOT NULL,
		actor VARCHAR(128) NULL,
		data JSON NOT NULL,
		KEY idx_verification (verification_id, id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`)
	if err != nil {
		return errs.NewDB("events.ensureTable", "failed to create verification_events", err)
	}
	return nil
}

// Append writes all events in one transaction.
func (s *SQLEventStore) Append(ctx context.Context, ev ...Event) error {
	if len(ev) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return errs.NewDB("events.Append", "begin tx", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO verification_events (verification_id, type, at, actor, data) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errs.NewDB("events.Append", "prepare insert", err)
	}
	defer stmt.Close()

	for _, e := range ev {
		data, err := json.Marshal(e)
		if err != nil {
			return errs.NewDB("events.Append", "marshal "+e.Type(), err)
		}
		at := e.Timestamp()
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, e.VerificationID(), e.Type(), at, e.Actor(), data); err != nil {
			return errs.NewDB("events.Append", "insert "+e.Type(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.NewDB("events.Append", "commit", err)
	}
	return nil
}

// ListByVerification returns the history of id, oldest first.
func (s *SQLEventStore) ListByVerification(ctx context.Context, id string) ([]StoredEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, verification_id, type, at, actor, data FROM verification_events
		 WHERE verification_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, errs.NewDB("events.ListByVerification", "query events", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var (
			se    StoredEvent
			actor sql.NullString
			data  []byte
		)
		if err := rows.Scan(&se.Seq, &se.VerificationID, &se.Type, &se.At, &actor, &data); err != nil {
			return nil, errs.NewDB("events.ListByVerification", "scan event", err)
		}
		if actor.Valid {
			a := actor.String
			se.Actor = &a
		}
		se.Data = json.RawMessage(data)
		out = append(out, se)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("events.ListByVerification", "row iteration", err)
	}
	return out, nil
}

var _ EventStore = (*SQLEventStore)(nil)
