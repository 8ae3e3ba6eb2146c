package models

import (
	"database/sql"
	"time"
)

// Engagement action types
const (
	ActionLike    = "like"
	ActionComment = "comment"
)

// Engagement attempt statuses
const (
	EngagementCompleted = "completed"
	EngagementFailed    = "failed"
)

// EngagementLog is one row per like/comment attempt by a persona.
// Append-only; daily caps are derived by aggregating over it.
type EngagementLog struct {
	ID           int64  `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	PersonaID    int64  `gorm:"not null;index;column:persona_id" json:"persona_id"`
	ActionType   string `gorm:"type:varchar(16);not null;column:action_type" json:"action_type"`
	TargetPostID int64  `gorm:"not null;column:target_post_id" json:"target_post_id"`
	Status       string `gorm:"type:varchar(16);not null;column:status" json:"status"`

	CommentContent   sql.NullString `gorm:"type:text;column:comment_content" json:"comment_content"`
	CreatedCommentID sql.NullInt64  `gorm:"column:created_comment_id" json:"created_comment_id"`
	ErrorMessage     sql.NullString `gorm:"type:text;column:error_message" json:"error_message"`

	CreatedAt time.Time `gorm:"not null;index;column:created_at" json:"created_at"`
}

// TableName specifies the table name for EngagementLog
func (EngagementLog) TableName() string {
	return "npc_engagement_log"
}
