package model

import (
	"time"
)

const (
	PostStatusDraft      = "draft"
	PostStatusScheduled  = "scheduled"
	PostStatusProcessing = "processing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
)

// MaxPostContentLength is the Threads text post limit.
const MaxPostContentLength = 500

// ValidPostTransitions lists every status change a post may go through.
// processing -> scheduled is the retry loop; published and failed are terminal.
var ValidPostTransitions = map[string][]string{
	PostStatusDraft:      {PostStatusScheduled},
	PostStatusScheduled:  {PostStatusProcessing, PostStatusDraft},
	PostStatusProcessing: {PostStatusPublished, PostStatusScheduled, PostStatusFailed},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidPostTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

type Post struct {
	ID             string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	PersonaID      string     `gorm:"type:varchar(64);index;not null" json:"persona_id"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	Status         string     `gorm:"type:varchar(20);index:idx_post_due,priority:1;not null" json:"status"`
	ScheduledFor   *time.Time `gorm:"index:idx_post_due,priority:2" json:"scheduled_for"`
	RetryCount     int        `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries     int        `gorm:"not null" json:"max_retries"`
	LastRetryAt    *time.Time `json:"last_retry_at"`
	PublishedAt    *time.Time `json:"published_at"`
	ContainerID    string     `gorm:"type:varchar(64)" json:"container_id,omitempty"`
	ThreadsMediaID string     `gorm:"type:varchar(64)" json:"threads_media_id,omitempty"`
	LastError      string     `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Persona *Persona `gorm:"foreignKey:PersonaID" json:"-"`
}

func (Post) TableName() string {
	return "posts"
}
