package models

import (
	"auctions/internal/biddingerrors"

	"github.com/shopspring/decimal"
)

// RejectReason explains why a bid was not accepted.
type RejectReason string

const (
	RejectNone            RejectReason = ""
	RejectListingNotFound RejectReason = "listing_not_found"
	RejectListingClosed   RejectReason = "listing_closed"
	RejectBidTooLow       RejectReason = "bid_too_low"
	RejectBidNotHigher    RejectReason = "bid_not_higher"
)

// Err returns the sentinel error matching the reason, or nil for RejectNone.
func (r RejectReason) Err() error {
	switch r {
	case RejectListingNotFound:
		return biddingerrors.ErrListingNotFound
	case RejectListingClosed:
		return biddingerrors.ErrListingClosed
	case RejectBidTooLow:
		return biddingerrors.ErrBidTooLow
	case RejectBidNotHigher:
		return biddingerrors.ErrBidNotHigher
	default:
		return nil
	}
}

// BidOutcome is either Accepted (Reason empty, HighestAmount set) or Rejected
// (Reason set). A rejected outcome never carries a Bid.
type BidOutcome struct {
	Reason        RejectReason    `json:"reason,omitempty"`
	HighestAmount decimal.Decimal `json:"highest_amount"`
	Bid           *Bid            `json:"bid,omitempty"`
}

// Accepted builds an accepted outcome for the winning bid row.
func Accepted(bid Bid) BidOutcome {
	return BidOutcome{HighestAmount: bid.Amount, Bid: &bid}
}

// Rejected builds a rejected outcome.
func Rejected(reason RejectReason) BidOutcome {
	return BidOutcome{Reason: reason}
}

// IsAccepted reports whether the bid was applied.
func (o BidOutcome) IsAccepted() bool {
	return o.Reason == RejectNone
}

// CloseOutcome is the frozen result of closing a listing. Winner and
// FinalAmount are nil when the auction closed without bids.
type CloseOutcome struct {
	ListingID   string           `json:"listing_id"`
	Winner      *string          `json:"winner,omitempty"`
	FinalAmount *decimal.Decimal `json:"final_amount,omitempty"`
}

// HasWinner reports whether the closed listing had a highest bid.
func (o CloseOutcome) HasWinner() bool {
	return o.Winner != nil
}
