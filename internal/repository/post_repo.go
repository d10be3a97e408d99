package repository

import (
	"context"
	"errors"
	"time"

	"threadspost/internal/model"

	"gorm.io/gorm"
)

var (
	ErrPostNotFound      = errors.New("post not found")
	ErrPostStatusInvalid = errors.New("post status transition not allowed")
)

type PostRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) Create(ctx context.Context, tx *gorm.DB, post *model.Post) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(post).Error
}

func (r *PostRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	var post model.Post
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

// SelectDue returns scheduled posts whose time falls before now+window and
// whose persona is active with a credential, oldest first. The persona is
// preloaded so the caller never needs a second lookup for the token.
func (r *PostRepository) SelectDue(ctx context.Context, now time.Time, window time.Duration, limit int) ([]*model.Post, error) {
	var posts []*model.Post
	err := r.db.WithContext(ctx).
		Joins("JOIN personas ON personas.id = posts.persona_id").
		Where("posts.status = ? AND posts.scheduled_for IS NOT NULL AND posts.scheduled_for <= ?",
			model.PostStatusScheduled, now.Add(window)).
		Where("personas.is_active = ? AND personas.access_token IS NOT NULL AND personas.access_token <> ?", true, "").
		Preload("Persona").
		Order("posts.scheduled_for ASC").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

// Claim flips a post from scheduled to processing. It returns false when the
// row was no longer scheduled, i.e. another run already took it.
func (r *PostRepository) Claim(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("id = ? AND status = ?", id, model.PostStatusScheduled).
		Update("status", model.PostStatusProcessing)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SetContainerID records the Threads container before it is published, so a
// later retry can ask Threads whether the publish already went through.
func (r *PostRepository) SetContainerID(ctx context.Context, id, containerID string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("id = ? AND status = ?", id, model.PostStatusProcessing).
		Update("container_id", containerID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPostStatusInvalid
	}
	return nil
}

// MarkPublished finishes a processing post. An empty mediaID keeps the
// stored threads_media_id.
func (r *PostRepository) MarkPublished(ctx context.Context, tx *gorm.DB, id, mediaID string, publishedAt time.Time) error {
	if tx == nil {
		tx = r.db
	}
	updates := map[string]interface{}{
		"status":       model.PostStatusPublished,
		"published_at": publishedAt,
		"last_error":   "",
	}
	if mediaID != "" {
		updates["threads_media_id"] = mediaID
	}
	return r.updateFromProcessing(ctx, tx, id, updates)
}

// Reschedule puts a failed attempt back into the queue at the given time.
func (r *PostRepository) Reschedule(ctx context.Context, tx *gorm.DB, id string, retryCount int, retriedAt, nextAt time.Time, lastError string) error {
	if tx == nil {
		tx = r.db
	}
	return r.updateFromProcessing(ctx, tx, id, map[string]interface{}{
		"status":        model.PostStatusScheduled,
		"retry_count":   retryCount,
		"last_retry_at": retriedAt,
		"scheduled_for": nextAt,
		"last_error":    lastError,
	})
}

func (r *PostRepository) MarkFailed(ctx context.Context, tx *gorm.DB, id string, retryCount int, retriedAt time.Time, lastError string) error {
	if tx == nil {
		tx = r.db
	}
	return r.updateFromProcessing(ctx, tx, id, map[string]interface{}{
		"status":        model.PostStatusFailed,
		"retry_count":   retryCount,
		"last_retry_at": retriedAt,
		"last_error":    lastError,
	})
}

func (r *PostRepository) updateFromProcessing(ctx context.Context, tx *gorm.DB, id string, updates map[string]interface{}) error {
	result := tx.WithContext(ctx).
		Model(&model.Post{}).
		Where("id = ? AND status = ?", id, model.PostStatusProcessing).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPostStatusInvalid
	}
	return nil
}

// UpdateStatus moves a post between authoring states (draft <-> scheduled).
func (r *PostRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id string, fromStatus, toStatus string, scheduledFor *time.Time) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrPostStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	if scheduledFor != nil {
		updates["scheduled_for"] = *scheduledFor
	}

	result := tx.WithContext(ctx).
		Model(&model.Post{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrPostStatusInvalid
	}

	return nil
}

// GetStuckProcessing finds posts left in processing since before the cutoff,
// typically because a run died between publishing and writing the result.
func (r *PostRepository) GetStuckProcessing(ctx context.Context, before time.Time, limit int) ([]*model.Post, error) {
	var posts []*model.Post
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.PostStatusProcessing, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

// Requeue returns a stuck processing post to scheduled without touching its
// retry bookkeeping or container id.
func (r *PostRepository) Requeue(ctx context.Context, id, reason string) error {
	return r.updateFromProcessing(ctx, r.db, id, map[string]interface{}{
		"status":     model.PostStatusScheduled,
		"last_error": reason,
	})
}

func (r *PostRepository) ListByPersona(ctx context.Context, personaID string, page, pageSize int) ([]*model.Post, int64, error) {
	var posts []*model.Post
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Post{}).Where("persona_id = ?", personaID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&posts).Error

	return posts, total, err
}
