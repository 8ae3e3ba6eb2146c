package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/pulsefeed/npcmind/internal/models"
)

// PostRepository provides post, like and comment database operations.
// This is the persistence side the queue processor publishes into.
type PostRepository struct {
	*Repository
}

// NewPostRepository creates a new post repository
func NewPostRepository(repo *Repository) *PostRepository {
	return &PostRepository{Repository: repo}
}

// Create creates a new post
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

// GetByID retrieves a post by ID
func (r *PostRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

// RecentCandidates retrieves recent posts authored by other users, filtered to
// the given post types, most recent first. Callers over-fetch to tolerate
// skip-duplicates during engagement.
func (r *PostRepository) RecentCandidates(ctx context.Context, excludeAuthorID int64, postTypes []string, limit int) ([]*models.Post, error) {
	if limit < 1 {
		limit = 20
	}
	query := r.db.WithContext(ctx).
		Where("author_id <> ?", excludeAuthorID)
	if len(postTypes) > 0 {
		query = query.Where("post_type IN ?", postTypes)
	}

	var posts []*models.Post
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// CreateLike inserts a like row
func (r *PostRepository) CreateLike(ctx context.Context, like *models.Like) error {
	return r.db.WithContext(ctx).Create(like).Error
}

// LikeExists reports whether a user has already liked a post
func (r *PostRepository) LikeExists(ctx context.Context, postID, userID int64) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateComment inserts a comment row
func (r *PostRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

// CommentExists reports whether a user has already commented on a post
func (r *PostRepository) CommentExists(ctx context.Context, postID, userID int64) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
