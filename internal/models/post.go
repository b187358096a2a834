package models

import "time"

// Post represents a feed entry. A post is organic (author-written),
// derived (RefTxID points at a Transaction and the author is a
// participant), or a repost/quote (RefPostID points at another Post).
//
// Derived posts are unique per (author, ref_tx): the anti-spam rule is
// that the author must be a participant of the referenced transaction.
type Post struct {
	ID        int64     `json:"id" db:"id"`
	AuthorID  int64     `json:"authorId" db:"author_id"`
	Text      string    `json:"text" db:"text"`
	ImageURL  string    `json:"imgUrl" db:"image_url"`
	IsShare   bool      `json:"isShare" db:"is_share"`
	IsQuote   bool      `json:"isQuote" db:"is_quote"`
	RefPostID *int64    `json:"refPost,omitempty" db:"ref_post_id"`
	RefTxID   *int64    `json:"refTx,omitempty" db:"ref_tx_id"`
	Created   time.Time `json:"created" db:"created"`
}
