package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

const (
	EventPostPublished = "post.published"
	EventPostFailed    = "post.failed"
)

// OutboxMessage is a post lifecycle event waiting to be shipped to Kafka.
// It is written in the same transaction as the status change it describes.
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(128);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// PostEvent is the Kafka payload of a post lifecycle event.
type PostEvent struct {
	Event          string     `json:"event"`
	PostID         string     `json:"post_id"`
	PersonaID      string     `json:"persona_id"`
	Status         string     `json:"status"`
	RetryCount     int        `json:"retry_count"`
	ThreadsMediaID string     `json:"threads_media_id,omitempty"`
	Error          string     `json:"error,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`

	// Recovered marks a post found already live on Threads, whose media id
	// was not returned by this attempt.
	Recovered bool `json:"recovered,omitempty"`
}
