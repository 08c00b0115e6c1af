package repository

import (
	"context"

	"skill-runner/internal/domain"
	"skill-runner/internal/domain/specs"
	"skill-runner/internal/models"
	"skill-runner/pkg/database"
)

// SQLRepository adapts pkg/database.DB to the domain repositories.
type SQLRepository struct {
	db *database.DB
}

func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

var _ domain.Repository = (*SQLRepository)(nil)

func (r *SQLRepository) SaveVerificationCtx(ctx context.Context, v *models.Verification) error {
	return r.db.SaveVerificationCtx(ctx, v)
}

func (r *SQLRepository) GetVerificationCtx(ctx context.Context, id string) (*models.Verification, error) {
	return r.db.GetVerificationCtx(ctx, id)
}

func (r *SQLRepository) ListVerificationsCtx(ctx context.Context, f models.VerificationFilter) ([]models.Verification, int, error) {
	return r.db.ListVerificationsCtx(ctx, f)
}

func (r *SQLRepository) VerificationStatsCtx(ctx context.Context) (*models.VerificationStats, error) {
	return r.db.VerificationStatsCtx(ctx)
}

func (r *SQLRepository) ReviewVerificationCtx(ctx context.Context, id string, d models.ReviewDecision) (*models.Verification, error) {
	return r.db.ReviewVerificationCtx(ctx, id, d)
}

func (r *SQLRepository) ListReviewLogsCtx(ctx context.Context, verificationID string) ([]models.ReviewLog, error) {
	return r.db.ListReviewLogsCtx(ctx, verificationID)
}

// FilterBySpecCtx loads one page and applies s in memory. The returned
// total counts the SQL matches before s was applied.
func (r *SQLRepository) FilterBySpecCtx(ctx context.Context, f models.VerificationFilter, s specs.Specification[models.Verification]) ([]models.Verification, int, error) {
	items, total, err := r.ListVerificationsCtx(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return specs.Filter(ctx, s, items), total, nil
}
