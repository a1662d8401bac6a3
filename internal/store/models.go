package store

import "time"

type User struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	City      string    `json:"city"`
	CreatedAt time.Time `json:"created_at"`
	// Never serialized; populated only by credential lookups.
	PasswordHash string `json:"-"`
}

type Post struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Content   string    `json:"content"`
	LikeCount int       `json:"like_count"`
	CreatedAt time.Time `json:"created_at"`
	Username  string    `json:"username,omitempty"`
	TimeAgo   string    `json:"timeAgo,omitempty"`
}

type Comment struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	UserID    int64     `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	TimeAgo   string    `json:"timeAgo,omitempty"`
}

// LikeState is the authoritative outcome of a like toggle.
type LikeState struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"like_count"`
}
