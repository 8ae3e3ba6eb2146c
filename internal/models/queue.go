package models

import (
	"database/sql"
	"time"
)

// Queue item lifecycle statuses. Transitions are pending->published or
// pending->failed only; terminal items are never resurrected.
const (
	QueueStatusPending   = "pending"
	QueueStatusPublished = "published"
	QueueStatusFailed    = "failed"
)

// QueueItem is one piece of generated content awaiting publication
type QueueItem struct {
	ID        int64  `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	PersonaID int64  `gorm:"not null;index;column:persona_id" json:"persona_id"`
	Content   string `gorm:"type:text;not null;column:content" json:"content"`
	PostType  string `gorm:"type:varchar(32);not null;column:post_type" json:"post_type"`

	ScheduledFor time.Time `gorm:"not null;index;column:scheduled_for" json:"scheduled_for"`
	Status       string    `gorm:"type:varchar(16);not null;default:'pending';index;column:status" json:"status"`

	// Serialized generation request, kept for audit and repetition avoidance
	GenerationPrompt string `gorm:"type:text;column:generation_prompt" json:"generation_prompt"`
	AIModelUsed      string `gorm:"type:varchar(64);column:ai_model_used" json:"ai_model_used"`

	// Set only on successful publication
	PublishedPostID sql.NullInt64 `gorm:"column:published_post_id" json:"published_post_id"`
	PublishedAt     sql.NullTime  `gorm:"column:published_at" json:"published_at"`

	// Set only on failure
	ErrorMessage sql.NullString `gorm:"type:text;column:error_message" json:"error_message"`

	CreatedAt time.Time `gorm:"not null;column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;column:updated_at" json:"updated_at"`

	// Relationships
	Persona *Persona `gorm:"foreignKey:PersonaID;references:ID" json:"-"`
}

// TableName specifies the table name for QueueItem
func (QueueItem) TableName() string {
	return "npc_post_queue"
}
