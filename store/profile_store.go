package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"mailscout/models"
)

// ProfileSource reads person records populated by an external loader.
type ProfileSource interface {
	FindByIDs(ctx context.Context, ids []uint) ([]models.Profile, error)
}

type ProfileStore struct {
	db *gorm.DB
}

func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// FindByIDs returns the profiles with the given ids ordered by id. Missing ids
// are skipped.
func (s *ProfileStore) FindByIDs(ctx context.Context, ids []uint) ([]models.Profile, error) {
	if len(ids) == 0 {
		return []models.Profile{}, nil
	}
	var profiles []models.Profile
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("find profiles: %w", err)
	}
	return profiles, nil
}
