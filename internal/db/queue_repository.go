package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pulsefeed/npcmind/internal/models"
)

// QueueRepository provides queue-item database operations
type QueueRepository struct {
	*Repository
}

// NewQueueRepository creates a new queue repository
func NewQueueRepository(repo *Repository) *QueueRepository {
	return &QueueRepository{Repository: repo}
}

// QueueFilter narrows a queue listing
type QueueFilter struct {
	PersonaID int64 // 0 means any persona
	Status    string
	Page      int
	Limit     int
}

// GetByID retrieves a queue item by ID
func (r *QueueRepository) GetByID(ctx context.Context, id int64) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := r.db.WithContext(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// GetPending retrieves all pending items across personas, due items first.
// Past and future scheduled_for are both returned; the processor decides what
// to do with them.
func (r *QueueRepository) GetPending(ctx context.Context) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	if err := r.db.WithContext(ctx).
		Where("status = ?", models.QueueStatusPending).
		Order("scheduled_for ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// CountPending counts a persona's pending items
func (r *QueueRepository) CountPending(ctx context.Context, personaID int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.QueueItem{}).
		Where("persona_id = ? AND status = ?", personaID, models.QueueStatusPending).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// List retrieves a paginated slice of queue items plus the total match count
func (r *QueueRepository) List(ctx context.Context, filter QueueFilter) ([]*models.QueueItem, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.QueueItem{})
	if filter.PersonaID > 0 {
		query = query.Where("persona_id = ?", filter.PersonaID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}

	var items []*models.QueueItem
	if err := query.
		Order("scheduled_for ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// PendingBetween retrieves pending items scheduled inside [from, to]
func (r *QueueRepository) PendingBetween(ctx context.Context, from, to time.Time) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	if err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for >= ? AND scheduled_for <= ?",
			models.QueueStatusPending, from, to).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// PublishedBetween retrieves published items with published_at inside [from, to]
func (r *QueueRepository) PublishedBetween(ctx context.Context, from, to time.Time) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	if err := r.db.WithContext(ctx).
		Where("status = ? AND published_at >= ? AND published_at <= ?",
			models.QueueStatusPublished, from, to).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Create creates a new queue item
func (r *QueueRepository) Create(ctx context.Context, item *models.QueueItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// Update updates a queue item
func (r *QueueRepository) Update(ctx context.Context, item *models.QueueItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// Delete hard-deletes a queue item
func (r *QueueRepository) Delete(ctx context.Context, id int64) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&models.QueueItem{}, id)
	return result.RowsAffected, result.Error
}

// BulkDelete hard-deletes multiple queue items
func (r *QueueRepository) BulkDelete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.QueueItem{})
	return result.RowsAffected, result.Error
}
