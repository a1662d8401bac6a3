// Package timeago renders creation timestamps as the relative-age labels
// shown next to posts and comments.
package timeago

import (
	"fmt"
	"time"
)

// A month is fixed at 30 days for labelling purposes.
const month = 30 * 24 * time.Hour

// Format turns the elapsed time between createdAt and now into a label.
// Unit counts are floored; anything older than a month falls back to the
// calendar date.
func Format(now, createdAt time.Time) string {
	age := now.Sub(createdAt)
	switch {
	case age < time.Minute:
		return "Just now"
	case age < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(age.Hours()))
	case age < month:
		return fmt.Sprintf("%d days ago", int(age.Hours()/24))
	default:
		return createdAt.Format("Jan 02, 2006")
	}
}
