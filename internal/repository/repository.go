package repository

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

import (
	"context"

	model "auctions/internal/models"
)

// ListingTx is a read-then-write unit of work scoped to one locked listing.
// Writes become visible only if the function passed to WithListingTx returns nil.
type ListingTx interface {
	// GetListing returns the locked listing.
	GetListing() (model.Listing, error)
	// GetBidByBidder returns the bidder's standing bid, if any.
	GetBidByBidder(bidderID string) (model.Bid, bool, error)
	// GetBid returns a bid of the locked listing by ID, if present.
	GetBid(bidID string) (model.Bid, bool, error)
	// GetBidsByListing returns every bid on the locked listing.
	GetBidsByListing() ([]model.Bid, error)
	// SaveBid inserts or updates a bid row keyed by (listing, bidder).
	SaveBid(bid model.Bid) error
	// SaveListing updates the locked listing.
	SaveListing(listing model.Listing) error
}

// AuctionDB defines the listing, bid, watchlist and user storage interface
// for the auction system
type AuctionDB interface {
	// WithListingTx locks the listing and runs fn inside one serializable
	// transaction. Contention surfaces as biddingerrors.ErrConflict and a
	// missing listing as biddingerrors.ErrListingNotFound.
	WithListingTx(ctx context.Context, listingID string, fn func(tx ListingTx) error) error

	CreateListing(ctx context.Context, listing model.Listing) error
	GetListing(ctx context.Context, listingID string) (model.Listing, error)
	ListListings(ctx context.Context, status model.ListingStatus) ([]model.Listing, error)
	GetBidsByListing(ctx context.Context, listingID string) ([]model.Bid, error)
	GetBid(ctx context.Context, bidID string) (model.Bid, error)
	GetListingsByBidder(ctx context.Context, bidderID string) ([]model.Listing, error)

	AddToWatchlist(ctx context.Context, userID, listingID string) error
	RemoveFromWatchlist(ctx context.Context, userID, listingID string) error
	GetWatchlist(ctx context.Context, userID string) ([]model.Listing, error)

	CreateUser(ctx context.Context, user model.User) error
	GetUserByUsername(ctx context.Context, username string) (model.User, error)

	Close() error
}
