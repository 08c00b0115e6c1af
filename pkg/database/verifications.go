package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"skill-runner/internal/models"
	errs "skill-runner/pkg/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

const verificationColumns = `id, source, state, extracted_data, geocode_data, catalog_data,
	similarity_data, verdict_data, reviewed_by, review_notes, reviewed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// SaveVerificationCtx inserts a new verification record.
func (db *DB) SaveVerificationCtx(ctx context.Context, v *models.Verification) error {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	blobs, err := marshalPayload(v)
	if err != nil {
		return errs.NewDB("SaveVerificationCtx", "failed to encode verification", err)
	}

	var severity any
	if v.Verdict.MaxSeverity != nil {
		severity = string(*v.Verdict.MaxSeverity)
	}

	_, err = db.stmts["insertVerification"].ExecContext(ctx,
		v.ID, v.Source, v.Extracted.FullAddress, v.Extracted.PostalCode,
		string(v.State), string(v.Verdict.DecisionState), v.Verdict.FinalConfidence, severity,
		blobs[0], blobs[1], blobs[2], blobs[3], blobs[4],
		v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return errs.NewDB("SaveVerificationCtx", "failed to insert verification", err)
	}
	return nil
}

// GetVerificationCtx loads one verification by ID.
func (db *DB) GetVerificationCtx(ctx context.Context, id string) (*models.Verification, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+verificationColumns+` FROM address_verifications WHERE id = ?`, id)
	v, err := scanVerification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound("GetVerificationCtx", "verification "+id+" not found")
	}
	if err != nil {
		return nil, errs.NewDB("GetVerificationCtx", "failed to load verification", err)
	}
	return v, nil
}

// ListVerificationsCtx returns a page of verifications, newest first, and
// the total matching the filter.
func (db *DB) ListVerificationsCtx(ctx context.Context, f models.VerificationFilter) ([]models.Verification, int, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	where, args := buildListFilter(f)

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM address_verifications`+where, args...).Scan(&total); err != nil {
		return nil, 0, errs.NewDB("ListVerificationsCtx", "failed to count verifications", err)
	}

	limit, offset := pageBounds(f)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+verificationColumns+` FROM address_verifications`+where+
			` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errs.NewDB("ListVerificationsCtx", "failed to query verifications", err)
	}
	defer rows.Close()

	out := make([]models.Verification, 0, limit)
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, 0, errs.NewDB("ListVerificationsCtx", "failed to scan verification", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errs.NewDB("ListVerificationsCtx", "row iteration failed", err)
	}
	return out, total, nil
}

// ReviewVerificationCtx records a reviewer's decision and its audit row in
// one transaction. A record can be reviewed once.
func (db *DB) ReviewVerificationCtx(ctx context.Context, id string, d models.ReviewDecision) (*models.Verification, error) {
	ctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.NewDB("ReviewVerificationCtx", "failed to begin transaction", err)
	}
	defer tx.Rollback()

	v, err := scanVerification(tx.QueryRowContext(ctx,
		`SELECT `+verificationColumns+` FROM address_verifications WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFound("ReviewVerificationCtx", "verification "+id+" not found")
	}
	if err != nil {
		return nil, errs.NewDB("ReviewVerificationCtx", "failed to load verification", err)
	}
	if v.Reviewed() {
		return nil, errs.NewConflict("ReviewVerificationCtx", "verification "+id+" was already reviewed")
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE address_verifications
		 SET state = ?, reviewed_by = ?, review_notes = ?, reviewed_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(d.Decision), d.Reviewer, nullString(d.Notes), now, now, id); err != nil {
		return nil, errs.NewDB("ReviewVerificationCtx", "failed to update verification", err)
	}

	if _, err := tx.StmtContext(ctx, db.stmts["insertReviewLog"]).ExecContext(ctx,
		id, d.Reviewer, string(v.State), string(d.Decision), nullString(d.Notes), now); err != nil {
		return nil, errs.NewDB("ReviewVerificationCtx", "failed to insert review log", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.NewDB("ReviewVerificationCtx", "failed to commit review", err)
	}

	reviewer, notes := d.Reviewer, d.Notes
	v.State = d.Decision
	v.ReviewedBy = &reviewer
	if notes != "" {
		v.ReviewNotes = &notes
	}
	v.ReviewedAt = &now
	v.UpdatedAt = now
	return v, nil
}

// VerificationStatsCtx counts verifications per state.
func (db *DB) VerificationStatsCtx(ctx context.Context) (*models.VerificationStats, error) {
	ctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	var s models.VerificationStats
	err := db.conn.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(state = 'APPROVED'), 0),
			COALESCE(SUM(state = 'NEEDS_REVIEW'), 0),
			COALESCE(SUM(state = 'REJECTED'), 0),
			COALESCE(SUM(reviewed_at IS NOT NULL), 0)
		FROM address_verifications`).Scan(&s.Total, &s.Approved, &s.NeedsReview, &s.Rejected, &s.Reviewed)
	if err != nil {
		return nil, errs.NewDB("VerificationStatsCtx", "failed to query stats", err)
	}
	return &s, nil
}

func buildListFilter(f models.VerificationFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, string(f.State))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		conds = append(conds, "(full_address LIKE ? OR postal_code = ?)")
		args = append(args, "%"+escapeLike(s)+"%", s)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func pageBounds(f models.VerificationFilter) (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, max(0, f.Offset)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func marshalPayload(v *models.Verification) ([5][]byte, error) {
	var out [5][]byte
	parts := []any{v.Extracted, v.Geocode, v.Catalog, v.Similarity, v.Verdict}
	for i, p := range parts {
		b, err := json.Marshal(p)
		if err != nil {
			return out, err
		}
		out[i] = b
	}
	return out, nil
}

func scanVerification(r rowScanner) (*models.Verification, error) {
	var (
		v           models.Verification
		state       string
		reviewedBy  sql.NullString
		reviewNotes sql.NullString
		reviewedAt  sql.NullTime
	)
	var extracted, geo, catalog, similarity, verdict []byte
	if err := r.Scan(&v.ID, &v.Source, &state, &extracted, &geo, &catalog, &similarity, &verdict,
		&reviewedBy, &reviewNotes, &reviewedAt, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.State = models.DecisionState(state)

	blobs := []struct {
		data []byte
		dst  any
	}{
		{extracted, &v.Extracted},
		{geo, &v.Geocode},
		{catalog, &v.Catalog},
		{similarity, &v.Similarity},
		{verdict, &v.Verdict},
	}
	for _, b := range blobs {
		if err := json.Unmarshal(b.data, b.dst); err != nil {
			return nil, err
		}
	}

	if reviewedBy.Valid {
		v.ReviewedBy = &reviewedBy.String
	}
	if reviewNotes.Valid {
		v.ReviewNotes = &reviewNotes.String
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		v.ReviewedAt = &t
	}
	return &v, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
