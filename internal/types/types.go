// Package types provides common type definitions shared across the backend.
package types

// ChainID identifies a blockchain network by its numeric chain id.
type ChainID int

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = 1
)

// ZeroAddress is the sentinel recipient for contract-creation transactions
// and the mint/burn participant for token transfers.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// ActivityCategory classifies an incoming webhook activity item
type ActivityCategory string

const (
	// CategoryExternal represents a native currency transfer
	CategoryExternal ActivityCategory = "external"
	// CategoryInternal represents an internal (trace) transfer; not supported
	CategoryInternal ActivityCategory = "internal"
	// CategoryToken represents an ERC20 or ERC721 token transfer
	CategoryToken ActivityCategory = "token"
)

// JobStatus represents the lifecycle state of a queued job
type JobStatus string

const (
	// JobStatusQueued represents a job waiting to be processed
	JobStatusQueued JobStatus = "queued"
	// JobStatusStarted represents a job currently being processed
	JobStatusStarted JobStatus = "started"
	// JobStatusFinished represents a successfully completed job
	JobStatusFinished JobStatus = "finished"
	// JobStatusFailed represents a failed job
	JobStatusFailed JobStatus = "failed"
)

// NotificationEvent classifies the typed event attached to a Notification
type NotificationEvent string

const (
	// EventMentionedInPost fires when a profile is a participant of a derived post
	EventMentionedInPost NotificationEvent = "mentioned_in_post"
	// EventCommentOnPost fires when someone comments on a profile's post
	EventCommentOnPost NotificationEvent = "comment_on_post"
	// EventFollowed fires when a profile gains a follower
	EventFollowed NotificationEvent = "followed"
	// EventLikedPost fires when a profile's post is liked
	EventLikedPost NotificationEvent = "liked_post"
	// EventRepost fires when a profile's post is shared
	EventRepost NotificationEvent = "repost"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
