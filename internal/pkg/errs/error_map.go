/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and relay error frames.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:     {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Identity and Routing Errors
	ErrIdentityInvalid:      {Code: ErrIdentityInvalid, Message: "A username is required to connect.", Status: http.StatusBadRequest},
	ErrAvatarInvalid:        {Code: ErrAvatarInvalid, Message: "Avatar options could not be read.", Status: http.StatusBadRequest},
	ErrMessageInvalid:       {Code: ErrMessageInvalid, Message: "Message could not be read."},
	ErrRecipientUnavailable: {Code: ErrRecipientUnavailable, Message: "%s is not connected right now."},
	ErrSendFailed:           {Code: ErrSendFailed, Message: "Message could not be delivered."},

	// 3xxx: Session Errors
	ErrSessionReplaced: {Code: ErrSessionReplaced, Message: "You connected from somewhere else."},

	// 5xxx: Internal System Errors
	ErrUnknown:      {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrStoreFailure: {Code: ErrStoreFailure, Message: "Message history is temporarily unavailable."},
}
