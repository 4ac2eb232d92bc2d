package handler

import (
	"context"
	"net/http"

	"auctions/internal/models"
	"auctions/services/bidding/helpers"
	"auctions/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BiddingServiceInterface interface {
	SubmitBid(ctx context.Context, listingID, bidderID string, amount decimal.Decimal) (models.BidOutcome, error)
	CloseListing(ctx context.Context, listingID, requesterID string) (models.CloseOutcome, error)
	CreateListing(ctx context.Context, input models.ListingInput) (models.Listing, error)
	GetListing(ctx context.Context, listingID string) (models.Listing, error)
	ListListings(ctx context.Context, status models.ListingStatus) ([]models.Listing, error)
	GetBidsForListing(ctx context.Context, listingID string) ([]models.Bid, error)
	GetHighestBid(ctx context.Context, listingID string) (models.Bid, error)
	GetListingsByBidder(ctx context.Context, bidderID string) ([]models.Listing, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// SubmitBidHandler handles POST /bids
func (h *BiddingHandler) SubmitBidHandler(c *gin.Context) {
	var req helpers.SubmitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "SubmitBidHandler", err)
		return
	}

	outcome, err := h.service.SubmitBid(c.Request.Context(), req.ListingID, req.BidderID, req.Amount)
	if err != nil {
		helpers.RespondError(c, "SubmitBidHandler", err, map[string]any{
			"listing_id": req.ListingID,
			"bidder_id":  req.BidderID,
		})
		return
	}

	resp := helpers.ToBidOutcomeResponse(outcome)
	if !outcome.IsAccepted() {
		status, message := helpers.MapErrorToHTTP(outcome.Reason.Err())
		utils.JSONResponse(c, status, resp, message)
		utils.Info("SubmitBidHandler: bid rejected", map[string]any{
			"listing_id": req.ListingID,
			"bidder_id":  req.BidderID,
			"amount":     req.Amount.String(),
			"reason":     string(outcome.Reason),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, resp, "bid accepted")
	helpers.LogSuccess("SubmitBidHandler", "bid accepted", map[string]any{
		"bid_id":     outcome.Bid.BidID,
		"listing_id": req.ListingID,
		"bidder_id":  req.BidderID,
		"amount":     resp.HighestAmount,
	})
}

// CreateListingHandler handles POST /listings
func (h *BiddingHandler) CreateListingHandler(c *gin.Context) {
	var req helpers.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateListingHandler", err)
		return
	}

	listing, err := h.service.CreateListing(c.Request.Context(), models.ListingInput{
		OwnerID:     req.OwnerID,
		Title:       req.Title,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		StartingBid: req.StartingBid,
	})
	if err != nil {
		helpers.RespondError(c, "CreateListingHandler", err, map[string]any{"owner_id": req.OwnerID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToListingResponse(listing), "listing created successfully")
	helpers.LogSuccess("CreateListingHandler", "listing created successfully", map[string]any{
		"listing_id": listing.ListingID,
		"owner_id":   listing.OwnerID,
	})
}

// ListListingsHandler handles GET /listings?status=open|closed
func (h *BiddingHandler) ListListingsHandler(c *gin.Context) {
	status := models.ListingStatus(c.Query("status"))
	listings, err := h.service.ListListings(c.Request.Context(), status)
	if err != nil {
		helpers.RespondError(c, "ListListingsHandler", err, map[string]any{"status": string(status)})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToListingResponses(listings), "listings retrieved successfully")
	helpers.LogSuccess("ListListingsHandler", "listings retrieved successfully", map[string]any{
		"status": string(status),
		"count":  len(listings),
	})
}

// GetListingHandler handles GET /listings/:listing_id
func (h *BiddingHandler) GetListingHandler(c *gin.Context) {
	listingID := c.Param("listing_id")
	listing, err := h.service.GetListing(c.Request.Context(), listingID)
	if err != nil {
		helpers.RespondError(c, "GetListingHandler", err, map[string]any{"listing_id": listingID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToListingResponse(listing), "listing retrieved successfully")
}

// GetBidsByListingHandler handles GET /listings/:listing_id/bids
func (h *BiddingHandler) GetBidsByListingHandler(c *gin.Context) {
	listingID := c.Param("listing_id")
	bids, err := h.service.GetBidsForListing(c.Request.Context(), listingID)
	if err != nil {
		helpers.RespondError(c, "GetBidsByListingHandler", err, map[string]any{"listing_id": listingID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByListingHandler", "bids retrieved successfully", map[string]any{
		"listing_id": listingID,
		"count":      len(bids),
	})
}

// GetHighestBidHandler handles GET /listings/:listing_id/highest
func (h *BiddingHandler) GetHighestBidHandler(c *gin.Context) {
	listingID := c.Param("listing_id")
	bid, err := h.service.GetHighestBid(c.Request.Context(), listingID)
	if err != nil {
		helpers.RespondError(c, "GetHighestBidHandler", err, map[string]any{"listing_id": listingID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(bid), "highest bid retrieved successfully")
	helpers.LogSuccess("GetHighestBidHandler", "highest bid retrieved successfully", map[string]any{
		"bid_id":     bid.BidID,
		"listing_id": listingID,
		"bidder_id":  bid.BidderID,
	})
}

// CloseListingHandler handles POST /listings/:listing_id/close
func (h *BiddingHandler) CloseListingHandler(c *gin.Context) {
	listingID := c.Param("listing_id")
	var req helpers.CloseListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CloseListingHandler", err)
		return
	}

	outcome, err := h.service.CloseListing(c.Request.Context(), listingID, req.RequesterID)
	if err != nil {
		helpers.RespondError(c, "CloseListingHandler", err, map[string]any{
			"listing_id":   listingID,
			"requester_id": req.RequesterID,
		})
		return
	}

	resp := helpers.ToCloseResponse(outcome)
	utils.JSONResponse(c, http.StatusOK, resp, "listing closed successfully")
	helpers.LogSuccess("CloseListingHandler", "listing closed successfully", map[string]any{
		"listing_id": listingID,
		"has_winner": outcome.HasWinner(),
	})
}

// GetListingsByBidderHandler handles GET /users/:user_id/listings
func (h *BiddingHandler) GetListingsByBidderHandler(c *gin.Context) {
	userID := c.Param("user_id")
	listings, err := h.service.GetListingsByBidder(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondError(c, "GetListingsByBidderHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToListingResponses(listings), "listings retrieved successfully")
	helpers.LogSuccess("GetListingsByBidderHandler", "listings retrieved successfully", map[string]any{
		"user_id":        userID,
		"listings_count": len(listings),
	})
}
