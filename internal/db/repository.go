package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/pulsefeed/npcmind/internal/models"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// PersonaRepository provides persona-related database operations
type PersonaRepository struct {
	*Repository
}

// NewPersonaRepository creates a new persona repository
func NewPersonaRepository(repo *Repository) *PersonaRepository {
	return &PersonaRepository{Repository: repo}
}

// GetByID retrieves a persona by ID
func (r *PersonaRepository) GetByID(ctx context.Context, id int64) (*models.Persona, error) {
	var persona models.Persona
	if err := r.db.WithContext(ctx).First(&persona, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &persona, nil
}

// GetByIDs retrieves multiple personas by IDs
func (r *PersonaRepository) GetByIDs(ctx context.Context, ids []int64) ([]*models.Persona, error) {
	var personas []*models.Persona
	if len(ids) == 0 {
		return personas, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&personas).Error; err != nil {
		return nil, err
	}
	return personas, nil
}

// ListActive retrieves all active personas
func (r *PersonaRepository) ListActive(ctx context.Context) ([]*models.Persona, error) {
	var personas []*models.Persona
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&personas).Error; err != nil {
		return nil, err
	}
	return personas, nil
}

// List retrieves all personas
func (r *PersonaRepository) List(ctx context.Context) ([]*models.Persona, error) {
	var personas []*models.Persona
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&personas).Error; err != nil {
		return nil, err
	}
	return personas, nil
}

// Create creates a new persona
func (r *PersonaRepository) Create(ctx context.Context, persona *models.Persona) error {
	return r.db.WithContext(ctx).Create(persona).Error
}

// Update updates a persona
func (r *PersonaRepository) Update(ctx context.Context, persona *models.Persona) error {
	return r.db.WithContext(ctx).Save(persona).Error
}

// Delete removes a persona and all of its queue items
func (r *PersonaRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("persona_id = ?", id).Delete(&models.QueueItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Persona{}, id).Error
	})
}
