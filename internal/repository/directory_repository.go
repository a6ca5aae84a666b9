package repository

import (
	"context"
	"errors"

	"github.com/kitchenops/sessionbridge/internal/domain"
	"github.com/kitchenops/sessionbridge/internal/observability"

	"gorm.io/gorm"
)

// DirectoryRepository answers the two at-most-one-row lookups the session
// factory needs. Absence is not an error: a user without a membership or
// profile row is a valid state, reported as (nil, nil).
type DirectoryRepository interface {
	FindMembershipByUserID(ctx context.Context, userID string) (*domain.OrgMembership, error)
	FindProfileByUserID(ctx context.Context, userID string) (*domain.Profile, error)
}

type GormDirectoryRepository struct{ db *gorm.DB }

func NewDirectoryRepository(db *gorm.DB) DirectoryRepository {
	return &GormDirectoryRepository{db: db}
}

func (r *GormDirectoryRepository) FindMembershipByUserID(ctx context.Context, userID string) (*domain.OrgMembership, error) {
	var m domain.OrgMembership
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordDirectoryLookup(ctx, "membership", "not_found")
			return nil, nil
		}
		observability.RecordDirectoryLookup(ctx, "membership", "error")
		return nil, err
	}
	observability.RecordDirectoryLookup(ctx, "membership", "success")
	return &m, nil
}

func (r *GormDirectoryRepository) FindProfileByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	var p domain.Profile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordDirectoryLookup(ctx, "profile", "not_found")
			return nil, nil
		}
		observability.RecordDirectoryLookup(ctx, "profile", "error")
		return nil, err
	}
	observability.RecordDirectoryLookup(ctx, "profile", "success")
	return &p, nil
}
