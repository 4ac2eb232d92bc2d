package handler

import (
	"context"
	"net/http"

	"auctions/internal/models"
	"auctions/services/bidding/helpers"
	"auctions/utils"

	"github.com/gin-gonic/gin"
)

type WatchlistServiceInterface interface {
	Add(ctx context.Context, userID, listingID string) error
	Remove(ctx context.Context, userID, listingID string) error
	List(ctx context.Context, userID string) ([]models.Listing, error)
}

type WatchlistHandler struct {
	service WatchlistServiceInterface
}

func NewWatchlistHandler(service WatchlistServiceInterface) *WatchlistHandler {
	return &WatchlistHandler{service: service}
}

// GetWatchlistHandler handles GET /users/:user_id/watchlist
func (h *WatchlistHandler) GetWatchlistHandler(c *gin.Context) {
	userID := c.Param("user_id")
	listings, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondError(c, "GetWatchlistHandler", err, map[string]any{"user_id": userID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToListingResponses(listings), "watchlist retrieved successfully")
}

// AddToWatchlistHandler handles PUT /users/:user_id/watchlist/:listing_id
func (h *WatchlistHandler) AddToWatchlistHandler(c *gin.Context) {
	userID, listingID := c.Param("user_id"), c.Param("listing_id")
	if err := h.service.Add(c.Request.Context(), userID, listingID); err != nil {
		helpers.RespondError(c, "AddToWatchlistHandler", err, map[string]any{"user_id": userID, "listing_id": listingID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"user_id": userID, "listing_id": listingID}, "listing added to watchlist")
	helpers.LogSuccess("AddToWatchlistHandler", "listing added to watchlist", map[string]any{"user_id": userID, "listing_id": listingID})
}

// RemoveFromWatchlistHandler handles DELETE /users/:user_id/watchlist/:listing_id
func (h *WatchlistHandler) RemoveFromWatchlistHandler(c *gin.Context) {
	userID, listingID := c.Param("user_id"), c.Param("listing_id")
	if err := h.service.Remove(c.Request.Context(), userID, listingID); err != nil {
		helpers.RespondError(c, "RemoveFromWatchlistHandler", err, map[string]any{"user_id": userID, "listing_id": listingID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"user_id": userID, "listing_id": listingID}, "listing removed from watchlist")
}
