package models

import "time"

// Post is a published piece of content on the platform. The queue processor
// inserts one per successfully published queue item; engagement targets are
// also drawn from this table.
type Post struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	AuthorID  int64     `gorm:"not null;index;column:author_id" json:"author_id"`
	Content   string    `gorm:"type:text;not null;column:content" json:"content"`
	PostType  string    `gorm:"type:varchar(32);not null;index;column:post_type" json:"post_type"`
	CreatedAt time.Time `gorm:"not null;index;column:created_at" json:"created_at"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "posts"
}

// Like is one user's like on a post. (post_id, user_id) is unique.
type Like struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	PostID    int64     `gorm:"not null;uniqueIndex:post_likes_ux1;column:post_id" json:"post_id"`
	UserID    int64     `gorm:"not null;uniqueIndex:post_likes_ux1;column:user_id" json:"user_id"`
	CreatedAt time.Time `gorm:"not null;column:created_at" json:"created_at"`
}

// TableName specifies the table name for Like
func (Like) TableName() string {
	return "post_likes"
}

// Comment is one user's comment on a post.
type Comment struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	PostID    int64     `gorm:"not null;index;column:post_id" json:"post_id"`
	UserID    int64     `gorm:"not null;index;column:user_id" json:"user_id"`
	Content   string    `gorm:"type:text;not null;column:content" json:"content"`
	CreatedAt time.Time `gorm:"not null;column:created_at" json:"created_at"`
}

// TableName specifies the table name for Comment
func (Comment) TableName() string {
	return "post_comments"
}
