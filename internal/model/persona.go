package model

import (
	"time"
)

// DefaultThreadsUserID addresses the token owner in Graph API paths.
const DefaultThreadsUserID = "me"

// Persona is one managed Threads account. AccessToken is the persona's own
// publishing credential; an empty token means the persona cannot publish.
type Persona struct {
	ID                 string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID             string    `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Name               string    `gorm:"type:varchar(128);not null" json:"name"`
	ThreadsUserID      string    `gorm:"type:varchar(64);not null;default:me" json:"threads_user_id"`
	AccessToken        string    `gorm:"type:text" json:"-"`
	IsActive           bool      `gorm:"not null" json:"is_active"`
	AutoReplyEnabled   bool      `gorm:"not null;default:false" json:"auto_reply_enabled"`
	AIAutoReplyEnabled bool      `gorm:"column:ai_auto_reply_enabled;not null;default:false" json:"ai_auto_reply_enabled"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Persona) TableName() string {
	return "personas"
}

// CanPublish reports whether posts of this persona may be dispatched.
func (p *Persona) CanPublish() bool {
	return p != nil && p.IsActive && p.AccessToken != ""
}

func (p *Persona) GraphUserID() string {
	if p.ThreadsUserID == "" {
		return DefaultThreadsUserID
	}
	return p.ThreadsUserID
}
