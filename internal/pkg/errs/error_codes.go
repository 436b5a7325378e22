/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both internally
within the relay and in frames sent to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1002
)

// 2xxx: Identity and Routing Errors
const (
	// ErrIdentityInvalid indicates a handshake without a usable username.
	ErrIdentityInvalid = 2001

	// ErrAvatarInvalid indicates an avatar descriptor that could not be decoded.
	ErrAvatarInvalid = 2002

	// ErrMessageInvalid indicates an inbound frame that could not be parsed as a message.
	ErrMessageInvalid = 2101

	// ErrRecipientUnavailable indicates a message addressed to a username with no live connection.
	ErrRecipientUnavailable = 2102

	// ErrSendFailed indicates the target connection went away before the message could be queued.
	ErrSendFailed = 2103
)

// 3xxx: Session Errors
const (
	// ErrSessionReplaced indicates the connection was closed because a newer
	// connection claimed the same username.
	ErrSessionReplaced = 3001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStoreFailure indicates the message store rejected a save or history query.
	ErrStoreFailure = 5001
)
