package model

import (
	"time"
)

const (
	ReplyStatusPending    = "pending"
	ReplyStatusProcessing = "processing"
	ReplyStatusFailed     = "failed"
	ReplyStatusSent       = "sent"
)

// ReplyRecord tracks one incoming reply and the auto-reply attempt for it.
// AutoReplySent is set as soon as a worker has attempted the reply, not when
// the reply went out; Status says how the attempt ended.
type ReplyRecord struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ReplyID       string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"reply_id"`
	PersonaID     string     `gorm:"type:varchar(64);index;not null" json:"persona_id"`
	RootPostID    string     `gorm:"type:varchar(64)" json:"root_post_id"`
	ReplyText     string     `gorm:"type:text" json:"reply_text"`
	Status        string     `gorm:"type:varchar(20);index;not null;default:pending" json:"status"`
	AutoReplySent bool       `gorm:"not null;default:false" json:"auto_reply_sent"`
	RetryCount    int        `gorm:"not null;default:0" json:"retry_count"`
	LastRetryAt   *time.Time `json:"last_retry_at"`
	ErrorDetails  string     `gorm:"type:text" json:"error_details,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime;index" json:"updated_at"`
}

func (ReplyRecord) TableName() string {
	return "reply_records"
}
