package models

import (
	"time"

	"github.com/blockso/blockso/internal/types"
)

// Notification represents an event surfaced to a profile, with a typed
// event describing what happened and who triggered it.
type Notification struct {
	ID        string                  `json:"id" db:"id"`
	ProfileID int64                   `json:"profileId" db:"profile_id"`
	Event     types.NotificationEvent `json:"event" db:"event"`
	// ActorID is the profile that triggered the event, when applicable
	ActorID *int64 `json:"actorId,omitempty" db:"actor_id"`
	// PostID references the post the event concerns, when applicable
	PostID  *int64    `json:"postId,omitempty" db:"post_id"`
	Viewed  bool      `json:"viewed" db:"viewed"`
	Created time.Time `json:"created" db:"created"`
}
