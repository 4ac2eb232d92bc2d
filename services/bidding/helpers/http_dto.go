package helpers

import (
	"time"

	"auctions/internal/models"
	"auctions/internal/money"

	"github.com/shopspring/decimal"
)

// Request DTOs. Amounts accept a JSON number or a decimal string; range and
// precision are checked by the service.
type SubmitBidRequest struct {
	ListingID string          `json:"listing_id" binding:"required"`
	BidderID  string          `json:"bidder_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

type CreateListingRequest struct {
	OwnerID     string          `json:"owner_id" binding:"required"`
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	StartingBid decimal.Decimal `json:"starting_bid"`
}

type CloseListingRequest struct {
	RequesterID string `json:"requester_id" binding:"required"`
}

type RegisterRequest struct {
	Username     string `json:"username" binding:"required"`
	Email        string `json:"email"`
	Password     string `json:"password" binding:"required"`
	Confirmation string `json:"confirmation" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Response DTOs. Amounts are rendered with two fixed decimals.
type BidResponse struct {
	BidID     string `json:"bid_id"`
	ListingID string `json:"listing_id"`
	BidderID  string `json:"bidder_id"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type ListingResponse struct {
	ListingID    string  `json:"listing_id"`
	OwnerID      string  `json:"owner_id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	ImageURL     string  `json:"image_url,omitempty"`
	StartingBid  string  `json:"starting_bid"`
	Status       string  `json:"status"`
	HighestBidID string  `json:"highest_bid_id,omitempty"`
	CreatedAt    string  `json:"created_at"`
	ClosedAt     *string `json:"closed_at,omitempty"`
}

type BidOutcomeResponse struct {
	Accepted      bool         `json:"accepted"`
	Reason        string       `json:"reason,omitempty"`
	HighestAmount string       `json:"highest_amount,omitempty"`
	Bid           *BidResponse `json:"bid,omitempty"`
}

type CloseResponse struct {
	ListingID   string  `json:"listing_id"`
	Winner      *string `json:"winner"`
	FinalAmount *string `json:"final_amount"`
}

type UserResponse struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func ToBidResponse(bid models.Bid) BidResponse {
	return BidResponse{
		BidID:     bid.BidID,
		ListingID: bid.ListingID,
		BidderID:  bid.BidderID,
		Amount:    money.Format(bid.Amount),
		CreatedAt: formatTime(bid.CreatedAt),
		UpdatedAt: formatTime(bid.UpdatedAt),
	}
}

func ToBidResponses(bids []models.Bid) []BidResponse {
	resp := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, ToBidResponse(b))
	}
	return resp
}

func ToListingResponse(listing models.Listing) ListingResponse {
	resp := ListingResponse{
		ListingID:    listing.ListingID,
		OwnerID:      listing.OwnerID,
		Title:        listing.Title,
		Description:  listing.Description,
		ImageURL:     listing.ImageURL,
		StartingBid:  money.Format(listing.StartingBid),
		Status:       string(listing.Status),
		HighestBidID: listing.HighestBidID,
		CreatedAt:    formatTime(listing.CreatedAt),
	}
	if listing.ClosedAt != nil {
		closed := formatTime(*listing.ClosedAt)
		resp.ClosedAt = &closed
	}
	return resp
}

func ToListingResponses(listings []models.Listing) []ListingResponse {
	resp := make([]ListingResponse, 0, len(listings))
	for _, l := range listings {
		resp = append(resp, ToListingResponse(l))
	}
	return resp
}

// ToBidOutcomeResponse renders an outcome. The highest amount is omitted
// when nothing has been bid yet.
func ToBidOutcomeResponse(outcome models.BidOutcome) BidOutcomeResponse {
	resp := BidOutcomeResponse{
		Accepted: outcome.IsAccepted(),
		Reason:   string(outcome.Reason),
	}
	if !outcome.HighestAmount.IsZero() {
		resp.HighestAmount = money.Format(outcome.HighestAmount)
	}
	if outcome.Bid != nil {
		bid := ToBidResponse(*outcome.Bid)
		resp.Bid = &bid
	}
	return resp
}

func ToCloseResponse(outcome models.CloseOutcome) CloseResponse {
	resp := CloseResponse{ListingID: outcome.ListingID, Winner: outcome.Winner}
	if outcome.FinalAmount != nil {
		amount := money.Format(*outcome.FinalAmount)
		resp.FinalAmount = &amount
	}
	return resp
}

func ToUserResponse(user models.User) UserResponse {
	return UserResponse{
		UserID:    user.UserID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: formatTime(user.CreatedAt),
	}
}
