package repository

import (
	"context"
	"time"

	"threadspost/internal/model"

	"gorm.io/gorm"
)

type ReplyRepository struct {
	db *gorm.DB
}

func NewReplyRepository(db *gorm.DB) *ReplyRepository {
	return &ReplyRepository{db: db}
}

func (r *ReplyRepository) Create(ctx context.Context, reply *model.ReplyRecord) error {
	return r.db.WithContext(ctx).Create(reply).Error
}

// FindStuck returns attempted replies that ended up failed, or that have sat
// in processing since before processingBefore, on personas with AI
// auto-reply switched on. A zero processingBefore disables the age filter.
func (r *ReplyRepository) FindStuck(ctx context.Context, processingBefore time.Time, limit int) ([]*model.ReplyRecord, error) {
	query := r.db.WithContext(ctx).
		Model(&model.ReplyRecord{}).
		Joins("JOIN personas ON personas.id = reply_records.persona_id").
		Where("personas.ai_auto_reply_enabled = ?", true).
		Where("reply_records.auto_reply_sent = ?", true)

	if processingBefore.IsZero() {
		query = query.Where("reply_records.status IN ?",
			[]string{model.ReplyStatusFailed, model.ReplyStatusProcessing})
	} else {
		query = query.Where("(reply_records.status = ? OR (reply_records.status = ? AND reply_records.updated_at < ?))",
			model.ReplyStatusFailed, model.ReplyStatusProcessing, processingBefore)
	}

	var replies []*model.ReplyRecord
	err := query.
		Order("reply_records.updated_at ASC").
		Limit(limit).
		Find(&replies).Error
	return replies, err
}

// ResetStuck makes a stuck reply retryable again. The update is guarded on
// the status observed by the caller and, for processing rows, on the row still
// being older than processingBefore; false means the row moved on meanwhile.
func (r *ReplyRepository) ResetStuck(ctx context.Context, id int64, observedStatus string, processingBefore time.Time, reason string) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&model.ReplyRecord{}).
		Where("id = ? AND status = ? AND auto_reply_sent = ?", id, observedStatus, true)
	if observedStatus == model.ReplyStatusProcessing && !processingBefore.IsZero() {
		query = query.Where("updated_at < ?", processingBefore)
	}

	result := query.Updates(map[string]interface{}{
		"auto_reply_sent": false,
		"status":          model.ReplyStatusPending,
		"retry_count":     0,
		"last_retry_at":   nil,
		"error_details":   reason,
	})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
