package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auctions/internal/accounts"
	bidding "auctions/internal/biddingService"
	"auctions/internal/config"
	"auctions/internal/events"
	"auctions/internal/metrics"
	"auctions/internal/models"
	"auctions/internal/ratelimit"
	"auctions/internal/repository"
	"auctions/internal/repository/postgres"
	"auctions/internal/repository/sqlite"
	"auctions/internal/server"
	"auctions/internal/watchlist"
	"auctions/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	utils.ConfigureLogger(cfg.Logging.Level, cfg.Logging.Format)
	gin.SetMode(cfg.Server.Mode)

	repo, err := openStore(cfg.Storage)
	if err != nil {
		utils.Fatal("Failed to open store", map[string]any{"driver": cfg.Storage.Driver, "error": err.Error()})
	}
	defer repo.Close()

	registry := metrics.NewRegistry()
	opts := []bidding.Option{
		bidding.WithRecorder(registry),
		bidding.WithTxTimeout(cfg.Bidding.TxTimeout),
	}
	if maxAmount, _ := cfg.MaxAmount(); !maxAmount.IsZero() {
		opts = append(opts, bidding.WithMaxAmount(maxAmount))
	}

	deps := server.Dependencies{Metrics: registry}
	if cfg.Redis.Addr != "" {
		client, err := openRedis(cfg.Redis)
		if err != nil {
			utils.Fatal("Failed to connect to redis", map[string]any{"addr": cfg.Redis.Addr, "error": err.Error()})
		}
		defer client.Close()

		opts = append(opts, bidding.WithPublisher(events.NewRedisPublisher(client, cfg.Redis.Prefix)))
		if cfg.RateLimit.Enabled {
			limiter, err := ratelimit.NewFixedWindowLimiter(client, cfg.Redis.Prefix+":ratelimit", cfg.RateLimit.Limit, cfg.RateLimit.Window)
			if err != nil {
				utils.Fatal("Failed to create rate limiter", map[string]any{"error": err.Error()})
			}
			deps.Limiter = limiter
		}
	}

	biddingSvc := bidding.NewBiddingService(repo, opts...)
	deps.Bidding = biddingSvc
	deps.Watchlist = watchlist.NewWatchlistService(repo)
	deps.Accounts = accounts.NewAccountService(repo, bcrypt.DefaultCost)

	if mem, ok := repo.(*repository.MemoryRepo); ok {
		prepopulateListings(mem)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Bidding.AuditOnStart {
		if _, err := bidding.NewAuditor(biddingSvc, cfg.Bidding.AuditWorkers).AuditOpenListings(ctx); err != nil {
			utils.Error("Startup audit failed", map[string]any{"error": err.Error()})
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server.SetupRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.Info("Starting auction server", map[string]any{
			"addr":    httpServer.Addr,
			"storage": cfg.Storage.Driver,
			"redis":   cfg.Redis.Addr != "",
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Error("Server stopped", map[string]any{"error": err.Error()})
			cancel()
		}
	}()

	<-ctx.Done()
	utils.Info("Shutting down", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		utils.Error("Graceful shutdown failed", map[string]any{"error": err.Error()})
	}
}

// openStore returns the configured listing and bid store
func openStore(cfg config.Storage) (repository.AuctionDB, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.New(cfg.SQLitePath, cfg.BusyTimeout)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.NewGormStore(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return repository.NewMemoryRepo(), nil
	}
}

func openRedis(cfg config.Redis) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// prepopulateListings adds sample listings to the in-memory repo
func prepopulateListings(repo *repository.MemoryRepo) {
	now := time.Now().UTC()
	listings := []struct {
		id, title, description, startingBid string
	}{
		{"listing1", "title1", "description1", "100.00"},
		{"listing2", "title2", "description2", "200.00"},
		{"listing3", "title3", "description3", "150.00"},
	}

	for i, l := range listings {
		repo.AddListing(models.Listing{
			ListingID:   l.id,
			OwnerID:     "owner1",
			Title:       l.title,
			Description: l.description,
			StartingBid: decimal.RequireFromString(l.startingBid),
			Status:      models.ListingOpen,
			CreatedAt:   now.Add(time.Duration(i) * time.Millisecond),
		})
	}
}
