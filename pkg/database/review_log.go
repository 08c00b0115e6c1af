package database

import (
	"context"
	"database/sql"

	"skill-runner/internal/models"
	errs "skill-runner/pkg/errors"
)

// ListReviewLogsCtx returns the review audit trail of a verification,
// newest first.
func (db *DB) ListReviewLogsCtx(ctx context.Context, verificationID string) ([]models.ReviewLog, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, verification_id, reviewer, previous_state, decision, notes, created_at
		 FROM address_review_logs
		 WHERE verification_id = ?
		 ORDER BY created_at DESC, id DESC`, verificationID)
	if err != nil {
		return nil, errs.NewDB("ListReviewLogsCtx", "failed to query review logs", err)
	}
	defer rows.Close()

	var logs []models.ReviewLog
	for rows.Next() {
		var (
			l        models.ReviewLog
			previous string
			decision string
			notes    sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.VerificationID, &l.Reviewer, &previous, &decision, &notes, &l.CreatedAt); err != nil {
			return nil, errs.NewDB("ListReviewLogsCtx", "failed to scan review log", err)
		}
		l.PreviousState = models.DecisionState(previous)
		l.Decision = models.DecisionState(decision)
		if notes.Valid {
			l.Notes = &notes.String
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("ListReviewLogsCtx", "row iteration failed", err)
	}
	return logs, nil
}
