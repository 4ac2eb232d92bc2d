package server

import (
	"net/http"

	"auctions/internal/metrics"
	"auctions/internal/ratelimit"
	handler "auctions/services/bidding/handler"
	"auctions/utils"

	"github.com/gin-gonic/gin"
)

// Dependencies are the services behind the HTTP surface. Metrics and
// Limiter are optional.
type Dependencies struct {
	Bidding   handler.BiddingServiceInterface
	Watchlist handler.WatchlistServiceInterface
	Accounts  handler.AccountServiceInterface
	Metrics   *metrics.Registry
	Limiter   ratelimit.Limiter
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	router.GET("/healthz", func(c *gin.Context) {
		utils.JSONResponse(c, http.StatusOK, gin.H{"ok": true}, "healthy")
	})

	biddingHandler := handler.NewBiddingHandler(deps.Bidding)
	watchlistHandler := handler.NewWatchlistHandler(deps.Watchlist)
	accountHandler := handler.NewAccountHandler(deps.Accounts)

	bids := router.Group("/bids")
	if deps.Limiter != nil {
		bids.Use(ratelimit.Middleware(deps.Limiter))
	}
	{
		bids.POST("", biddingHandler.SubmitBidHandler)
	}

	listings := router.Group("/listings")
	{
		listings.POST("", biddingHandler.CreateListingHandler)
		listings.GET("", biddingHandler.ListListingsHandler)
		listings.GET("/:listing_id", biddingHandler.GetListingHandler)
		listings.GET("/:listing_id/bids", biddingHandler.GetBidsByListingHandler)
		listings.GET("/:listing_id/highest", biddingHandler.GetHighestBidHandler)
		listings.POST("/:listing_id/close", biddingHandler.CloseListingHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id/listings", biddingHandler.GetListingsByBidderHandler)
		users.GET("/:user_id/watchlist", watchlistHandler.GetWatchlistHandler)
		users.PUT("/:user_id/watchlist/:listing_id", watchlistHandler.AddToWatchlistHandler)
		users.DELETE("/:user_id/watchlist/:listing_id", watchlistHandler.RemoveFromWatchlistHandler)
	}

	accounts := router.Group("/accounts")
	{
		accounts.POST("/register", accountHandler.RegisterHandler)
		accounts.POST("/login", accountHandler.LoginHandler)
	}

	return router
}
