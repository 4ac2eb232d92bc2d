package biddingerrors

import "errors"

// Repository-level errors
var (
	ErrListingNotFound = errors.New("listing not found")
	ErrNoBids          = errors.New("no bids found for listing")
	ErrUserNotFound    = errors.New("user not found")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrConflict        = errors.New("transaction conflict")
	ErrStorageFailure  = errors.New("storage failure")
)

// business logic errors
var (
	ErrInvalidBid     = errors.New("invalid bid")
	ErrInvalidListing = errors.New("invalid listing")
	ErrListingClosed  = errors.New("listing is closed")
	ErrBidTooLow      = errors.New("bid amount too low")
	ErrBidNotHigher   = errors.New("bid does not exceed the highest bid")
	ErrNotOwner       = errors.New("requester does not own the listing")
	ErrAlreadyClosed  = errors.New("listing already closed")
)

// account errors
var (
	ErrInvalidUser        = errors.New("invalid user details")
	ErrInvalidCredentials = errors.New("invalid username and/or password")
)

// ErrRateLimited is returned when a client exceeds its request quota.
var ErrRateLimited = errors.New("too many requests")

// IsRetryable reports whether a failed transaction may be attempted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrStorageFailure)
}
