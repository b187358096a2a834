package models

import "time"

// Profile represents a user identity keyed by its checksum-cased wallet
// address. Profiles are created on first reference by either import path,
// never duplicated.
type Profile struct {
	ID        int64      `json:"id" db:"id"`
	Address   string     `json:"address" db:"address"`
	Bio       string     `json:"bio" db:"bio"`
	ImageURL  string     `json:"imageUrl" db:"image_url"`
	LastLogin *time.Time `json:"lastLogin,omitempty" db:"last_login"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

// Follow represents the follower-followed relationship between profiles.
// A profile cannot follow itself or follow the same profile twice.
type Follow struct {
	ID      int64     `json:"id" db:"id"`
	SrcID   int64     `json:"srcId" db:"src_id"`
	DestID  int64     `json:"destId" db:"dest_id"`
	Created time.Time `json:"created" db:"created"`
}

// Feed represents a curated collection of profiles whose activity is
// surfaced together.
type Feed struct {
	ID          int64     `json:"id" db:"id"`
	OwnerID     int64     `json:"ownerId" db:"owner_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	ImageURL    string    `json:"imageUrl" db:"image_url"`
	Created     time.Time `json:"created" db:"created"`
}
