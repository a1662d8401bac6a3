// Package notify pushes engagement events to an optional side channel so a
// delivery layer can fan them out to connected clients. The feed itself
// never depends on delivery succeeding.
package notify

import "context"

type Event struct {
	Type      string `json:"type"`
	PostID    int64  `json:"postId"`
	ActorID   int64  `json:"actorId"`
	LikeCount int    `json:"likeCount,omitempty"`
	CommentID int64  `json:"commentId,omitempty"`
}

const (
	EventLiked     = "liked"
	EventUnliked   = "unliked"
	EventCommented = "commented"
)

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards events; used when no Redis is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
