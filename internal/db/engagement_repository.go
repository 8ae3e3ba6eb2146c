package db

import (
	"context"
	"time"

	"github.com/pulsefeed/npcmind/internal/models"
)

// EngagementRepository provides engagement-log database operations.
// The log is append-only; daily counts are always derived from it rather
// than kept as running counters.
type EngagementRepository struct {
	*Repository
}

// NewEngagementRepository creates a new engagement repository
func NewEngagementRepository(repo *Repository) *EngagementRepository {
	return &EngagementRepository{Repository: repo}
}

// Create appends an engagement log entry
func (r *EngagementRepository) Create(ctx context.Context, entry *models.EngagementLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// CountCompletedBetween counts completed actions of one type by a persona
// inside [from, to). Used to enforce daily caps.
func (r *EngagementRepository) CountCompletedBetween(ctx context.Context, personaID int64, actionType string, from, to time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.EngagementLog{}).
		Where("persona_id = ? AND action_type = ? AND status = ? AND created_at >= ? AND created_at < ?",
			personaID, actionType, models.EngagementCompleted, from, to).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListByPersona retrieves a persona's engagement history, newest first
func (r *EngagementRepository) ListByPersona(ctx context.Context, personaID int64, limit int) ([]*models.EngagementLog, error) {
	if limit < 1 {
		limit = 50
	}
	var entries []*models.EngagementLog
	if err := r.db.WithContext(ctx).
		Where("persona_id = ?", personaID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
