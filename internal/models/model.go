package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a registered participant in the auction
type User struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListingStatus is the lifecycle state of a listing. It only moves Open -> Closed.
type ListingStatus string

const (
	ListingOpen   ListingStatus = "open"
	ListingClosed ListingStatus = "closed"
)

// Valid reports whether s is a known status.
func (s ListingStatus) Valid() bool {
	return s == ListingOpen || s == ListingClosed
}

// Listing represents an auction listing
type Listing struct {
	ListingID    string          `json:"listing_id"`
	OwnerID      string          `json:"owner_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	ImageURL     string          `json:"image_url,omitempty"`
	StartingBid  decimal.Decimal `json:"starting_bid"`
	Status       ListingStatus   `json:"status"`
	HighestBidID string          `json:"highest_bid_id,omitempty"` // empty until the first accepted bid
	CreatedAt    time.Time       `json:"created_at"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`
}

// IsOpen reports whether the listing still accepts bids.
func (l Listing) IsOpen() bool {
	return l.Status == ListingOpen
}

// HasHighestBid reports whether a bid has been accepted on the listing.
func (l Listing) HasHighestBid() bool {
	return l.HighestBidID != ""
}

// Bid represents a bidder's standing offer on a listing. A bidder owns at most
// one Bid per listing; later offers update Amount in place.
type Bid struct {
	BidID     string          `json:"bid_id"`
	ListingID string          `json:"listing_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
