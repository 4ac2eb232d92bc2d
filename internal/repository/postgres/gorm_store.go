// Package postgres implements repository.AuctionDB with GORM on Postgres.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"auctions/internal/biddingerrors"
	model "auctions/internal/models"
	"auctions/internal/repository"
	"auctions/utils"
)

const migrateLockID int64 = 51837214

// Postgres error codes the service treats as retryable contention.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
	codeUniqueViolation      = "23505"
)

var _ repository.AuctionDB = (*GormStore)(nil)

// GormStore implements repository.AuctionDB using GORM + Postgres. Listing
// transactions lock the listing row with SELECT ... FOR UPDATE.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(utils.LogWriter(), "", 0),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&ListingModel{}, &BidModel{}, &WatchlistModel{}, &UserModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithListingTx locks the listing row and runs fn in the same transaction.
func (s *GormStore) WithListingTx(ctx context.Context, listingID string, fn func(tx repository.ListingTx) error) error {
	// inner carries errors already classified inside the transaction so the
	// commit path does not wrap them a second time
	var inner error
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		var m ListingModel
		if err := gtx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, "listing_id = ?", listingID).Error; err != nil {
			inner = mapError(ctx, "lock listing "+listingID, err)
			return inner
		}
		inner = fn(&listingTx{ctx: ctx, db: gtx, listingID: listingID})
		return inner
	})
	if inner != nil {
		return inner
	}
	if err != nil {
		return mapError(ctx, "commit listing transaction", err)
	}
	return nil
}

// CreateListing persists a new listing.
func (s *GormStore) CreateListing(ctx context.Context, listing model.Listing) error {
	if listing.ListingID == "" {
		return fmt.Errorf("create listing: %w - empty listing ID", biddingerrors.ErrInvalidListing)
	}
	m := listingToModel(listing)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return mapError(ctx, "create listing "+listing.ListingID, err)
	}
	return nil
}

// GetListing returns a listing by ID.
func (s *GormStore) GetListing(ctx context.Context, listingID string) (model.Listing, error) {
	return getListing(ctx, s.db.WithContext(ctx), listingID)
}

// ListListings returns listings with the given status, or all of them when status is empty.
func (s *GormStore) ListListings(ctx context.Context, status model.ListingStatus) ([]model.Listing, error) {
	var models []ListingModel
	q := s.db.WithContext(ctx)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, mapError(ctx, "list listings", err)
	}
	listings := listingsFromModels(models)
	repository.SortListings(listings)
	return listings, nil
}

// GetBidsByListing returns every bid on a listing, highest first.
func (s *GormStore) GetBidsByListing(ctx context.Context, listingID string) ([]model.Bid, error) {
	db := s.db.WithContext(ctx)
	if _, err := getListing(ctx, db, listingID); err != nil {
		return nil, err
	}
	return getBids(ctx, db, listingID)
}

// GetBid returns a bid by ID.
func (s *GormStore) GetBid(ctx context.Context, bidID string) (model.Bid, error) {
	var m BidModel
	if err := s.db.WithContext(ctx).First(&m, "bid_id = ?", bidID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, biddingerrors.ErrNoBids)
		}
		return model.Bid{}, mapError(ctx, "get bid "+bidID, err)
	}
	return bidFromModel(m), nil
}

// GetListingsByBidder returns the listings a user has bid on.
func (s *GormStore) GetListingsByBidder(ctx context.Context, bidderID string) ([]model.Listing, error) {
	var models []ListingModel
	err := s.db.WithContext(ctx).
		Joins("JOIN bids ON bids.listing_id = listings.listing_id").
		Where("bids.bidder_id = ?", bidderID).
		Find(&models).Error
	if err != nil {
		return nil, mapError(ctx, "get listings by bidder", err)
	}
	listings := listingsFromModels(models)
	repository.SortListings(listings)
	return listings, nil
}

// AddToWatchlist adds a listing to a user's watchlist. Adding twice is a no-op.
func (s *GormStore) AddToWatchlist(ctx context.Context, userID, listingID string) error {
	db := s.db.WithContext(ctx)
	if _, err := getListing(ctx, db, listingID); err != nil {
		return err
	}
	m := WatchlistModel{UserID: userID, ListingID: listingID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
		return mapError(ctx, "add to watchlist", err)
	}
	return nil
}

// RemoveFromWatchlist removes a listing from a user's watchlist.
func (s *GormStore) RemoveFromWatchlist(ctx context.Context, userID, listingID string) error {
	err := s.db.WithContext(ctx).
		Delete(&WatchlistModel{}, "user_id = ? AND listing_id = ?", userID, listingID).Error
	if err != nil {
		return mapError(ctx, "remove from watchlist", err)
	}
	return nil
}

// GetWatchlist returns the listings a user watches.
func (s *GormStore) GetWatchlist(ctx context.Context, userID string) ([]model.Listing, error) {
	var models []ListingModel
	err := s.db.WithContext(ctx).
		Joins("JOIN watchlist ON watchlist.listing_id = listings.listing_id").
		Where("watchlist.user_id = ?", userID).
		Find(&models).Error
	if err != nil {
		return nil, mapError(ctx, "get watchlist", err)
	}
	listings := listingsFromModels(models)
	repository.SortListings(listings)
	return listings, nil
}

// CreateUser stores a new user. Usernames are unique, case-insensitively.
func (s *GormStore) CreateUser(ctx context.Context, user model.User) error {
	m := userToModel(user)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if pgCode(err) == codeUniqueViolation {
			return fmt.Errorf("create user %s: %w", user.Username, biddingerrors.ErrUsernameTaken)
		}
		return mapError(ctx, "create user", err)
	}
	return nil
}

// GetUserByUsername looks up a user by username.
func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var m UserModel
	if err := s.db.WithContext(ctx).First(&m, "username_lower = ?", strings.ToLower(username)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.User{}, fmt.Errorf("get user %s: %w", username, biddingerrors.ErrUserNotFound)
		}
		return model.User{}, mapError(ctx, "get user", err)
	}
	return userFromModel(m), nil
}

// listingTx is the ListingTx view over one open GORM transaction.
type listingTx struct {
	ctx       context.Context
	db        *gorm.DB
	listingID string
}

func (tx *listingTx) GetListing() (model.Listing, error) {
	return getListing(tx.ctx, tx.db, tx.listingID)
}

func (tx *listingTx) GetBidByBidder(bidderID string) (model.Bid, bool, error) {
	return tx.findBid("listing_id = ? AND bidder_id = ?", tx.listingID, bidderID)
}

func (tx *listingTx) GetBid(bidID string) (model.Bid, bool, error) {
	return tx.findBid("listing_id = ? AND bid_id = ?", tx.listingID, bidID)
}

func (tx *listingTx) findBid(query string, args ...any) (model.Bid, bool, error) {
	var m BidModel
	if err := tx.db.Where(query, args...).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Bid{}, false, nil
		}
		return model.Bid{}, false, mapError(tx.ctx, "get bid", err)
	}
	return bidFromModel(m), true, nil
}

func (tx *listingTx) GetBidsByListing() ([]model.Bid, error) {
	return getBids(tx.ctx, tx.db, tx.listingID)
}

func (tx *listingTx) SaveBid(bid model.Bid) error {
	if bid.ListingID != tx.listingID {
		return fmt.Errorf("save bid %s: %w - bid belongs to listing %s, not %s", bid.BidID, biddingerrors.ErrStorageFailure, bid.ListingID, tx.listingID)
	}
	m := bidToModel(bid)
	err := tx.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bid_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(&m).Error
	if err != nil {
		return mapError(tx.ctx, "save bid "+bid.BidID, err)
	}
	return nil
}

func (tx *listingTx) SaveListing(listing model.Listing) error {
	if listing.ListingID != tx.listingID {
		return fmt.Errorf("save listing %s: %w - transaction is scoped to %s", listing.ListingID, biddingerrors.ErrStorageFailure, tx.listingID)
	}
	m := listingToModel(listing)
	if err := tx.db.Save(&m).Error; err != nil {
		return mapError(tx.ctx, "save listing "+listing.ListingID, err)
	}
	return nil
}

func getListing(ctx context.Context, db *gorm.DB, listingID string) (model.Listing, error) {
	var m ListingModel
	if err := db.First(&m, "listing_id = ?", listingID).Error; err != nil {
		return model.Listing{}, mapError(ctx, "get listing "+listingID, err)
	}
	return listingFromModel(m), nil
}

func getBids(ctx context.Context, db *gorm.DB, listingID string) ([]model.Bid, error) {
	var models []BidModel
	if err := db.Where("listing_id = ?", listingID).Find(&models).Error; err != nil {
		return nil, mapError(ctx, "get bids", err)
	}
	bids := make([]model.Bid, 0, len(models))
	for _, m := range models {
		bids = append(bids, bidFromModel(m))
	}
	repository.SortBids(bids)
	return bids, nil
}

// mapError classifies GORM and pgx errors into the repository error set.
func mapError(ctx context.Context, op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, biddingerrors.ErrListingNotFound)
	}
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeQueryCanceled:
		return fmt.Errorf("%s: %w: %w", op, biddingerrors.ErrConflict, err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w: %w", op, biddingerrors.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w: %w", op, biddingerrors.ErrStorageFailure, err)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
