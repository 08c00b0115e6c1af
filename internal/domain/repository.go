package domain

import (
	"context"

	"skill-runner/internal/models"
)

// VerificationRepository stores verifications for the manual review queue.
type VerificationRepository interface {
	SaveVerificationCtx(ctx context.Context, v *models.Verification) error
	GetVerificationCtx(ctx context.Context, id string) (*models.Verification, error)
	ListVerificationsCtx(ctx context.Context, f models.VerificationFilter) ([]models.Verification, int, error)
	VerificationStatsCtx(ctx context.Context) (*models.VerificationStats, error)

	// ReviewVerificationCtx applies a reviewer decision once. A second review
	// of the same record fails with a conflict error.
	ReviewVerificationCtx(ctx context.Context, id string, d models.ReviewDecision) (*models.Verification, error)
}

// ReviewLogRepository reads the review audit trail.
type ReviewLogRepository interface {
	ListReviewLogsCtx(ctx context.Context, verificationID string) ([]models.ReviewLog, error)
}

// Repository aggregates the repos the services need.
type Repository interface {
	VerificationRepository
	ReviewLogRepository
}
