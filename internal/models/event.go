package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an auction state change published to subscribers.
type EventType string

const (
	EventBidAccepted   EventType = "bid.accepted"
	EventListingClosed EventType = "listing.closed"
)

// AuctionEvent is emitted after a bid or close transaction commits.
type AuctionEvent struct {
	EventID        string           `json:"event_id"`
	Type           EventType        `json:"type"`
	ListingID      string           `json:"listing_id"`
	BidID          string           `json:"bid_id,omitempty"`
	BidderID       string           `json:"bidder_id,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	PreviousAmount *decimal.Decimal `json:"previous_amount,omitempty"`
	WinnerID       string           `json:"winner_id,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}
