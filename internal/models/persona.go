package models

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

// Posting schedule modes
const (
	ModePostsPerDay = "posts_per_day"
	ModeCustomCron  = "custom_cron"
)

// ActiveHours is the local-time window posts may be scheduled into.
// Start is inclusive, End exclusive, both in [0, 24].
type ActiveHours struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// PostingTimes is the tagged schedule configuration for a persona.
type PostingTimes struct {
	Mode             string      `json:"mode"`
	PostsPerDay      int         `json:"posts_per_day,omitempty"`
	ActiveHours      ActiveHours `json:"active_hours"`
	RandomizeMinutes bool        `json:"randomize_minutes"`
	Timezone         string      `json:"timezone,omitempty"`
	CronExpression   string      `json:"cron_expression,omitempty"`
}

// EngagementSettings controls a persona's automated likes and comments.
type EngagementSettings struct {
	AutoLike        bool     `json:"auto_like"`
	AutoComment     bool     `json:"auto_comment"`
	LikesPerDay     int      `json:"likes_per_day"`
	CommentsPerDay  int      `json:"comments_per_day"`
	CommentOnTypes  []string `json:"comment_on_types"`
	EngagementStyle string   `json:"engagement_style"`
}

// Persona represents an NPC profile whose content is machine-generated
type Persona struct {
	ID            int64   `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	UserID        int64   `gorm:"not null;index;column:user_id" json:"user_id"`
	PersonaName   string  `gorm:"type:varchar(64);not null;column:persona_name" json:"persona_name"`
	PersonaPrompt string  `gorm:"type:text;not null;column:persona_prompt" json:"persona_prompt"`
	AIModel       string  `gorm:"type:varchar(64);not null;column:ai_model" json:"ai_model"`
	Temperature   float64 `gorm:"not null;default:1;column:temperature" json:"temperature"`
	Tone          string  `gorm:"type:varchar(32);column:tone" json:"tone"`

	Topics             datatypes.JSONSlice[string]            `gorm:"column:topics" json:"topics"`
	PostTypes          datatypes.JSONSlice[string]            `gorm:"column:post_types" json:"post_types"`
	PostingTimes       datatypes.JSONType[PostingTimes]       `gorm:"column:posting_times" json:"posting_times"`
	EngagementSettings datatypes.JSONType[EngagementSettings] `gorm:"column:engagement_settings" json:"engagement_settings"`

	// Visual identity
	VisualPersona     sql.NullString `gorm:"type:text;column:visual_persona" json:"-"`
	ReferenceImageURL string         `gorm:"type:varchar(1024);not null;default:'';column:reference_image_url" json:"reference_image_url"`

	IsActive bool `gorm:"not null;default:true;index;column:is_active" json:"is_active"`

	// Lifetime counters
	TotalPostsGenerated int64 `gorm:"not null;default:0;column:total_posts_generated" json:"total_posts_generated"`
	TotalLikesGiven     int64 `gorm:"not null;default:0;column:total_likes_given" json:"total_likes_given"`
	TotalCommentsGiven  int64 `gorm:"not null;default:0;column:total_comments_given" json:"total_comments_given"`

	// Activity tracking
	LastActiveAt time.Time `gorm:"not null;default:'1970-01-01 00:00:00';column:last_active_at" json:"last_active_at"`
	CreatedAt    time.Time `gorm:"not null;column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null;column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for Persona
func (Persona) TableName() string {
	return "npc_personas"
}
