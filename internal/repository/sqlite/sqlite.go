// Package sqlite provides a SQLite-backed implementation of repository.AuctionDB.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	sqlitedriver "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
	sqlite3 "modernc.org/sqlite/lib"

	"auctions/internal/biddingerrors"
	model "auctions/internal/models"
	"auctions/internal/repository"
)

// Ensure Store implements repository.AuctionDB
var _ repository.AuctionDB = (*Store)(nil)

const listingColumns = "listing_id, owner_id, title, description, image_url, starting_bid, status, highest_bid_id, created_at, closed_at"

const bidColumns = "bid_id, listing_id, bidder_id, amount, created_at, updated_at"

// Store implements repository.AuctionDB using SQLite. Listing transactions
// take the database write lock up front (BEGIN IMMEDIATE), so the
// read-decide-write sequence of a bid can never interleave with another.
type Store struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new Store with the given database path, or ":memory:".
// It creates the parent directories and runs migrations automatically.
func New(dbPath string, busyTimeout time.Duration) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		dbPath, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time is all SQLite allows; a single connection turns
	// lock contention inside the process into pool waits that honour ctx.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithListingTx runs fn inside an immediate transaction after confirming the listing exists.
func (s *Store) WithListingTx(ctx context.Context, listingID string, fn func(tx repository.ListingTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(ctx, "begin listing transaction", err)
	}
	defer sqlTx.Rollback()

	tx := &listingTx{ctx: ctx, q: sqlTx, listingID: listingID}
	if _, err := tx.GetListing(); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return mapError(ctx, "commit listing transaction", err)
	}
	return nil
}

// CreateListing persists a new listing.
func (s *Store) CreateListing(ctx context.Context, listing model.Listing) error {
	if listing.ListingID == "" {
		return fmt.Errorf("create listing: %w - empty listing ID", biddingerrors.ErrInvalidListing)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO listings ("+listingColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		listingArgs(listing)...,
	)
	if err != nil {
		return mapError(ctx, "create listing "+listing.ListingID, err)
	}
	return nil
}

// GetListing retrieves a listing by ID.
func (s *Store) GetListing(ctx context.Context, listingID string) (model.Listing, error) {
	return getListing(ctx, s.db, listingID)
}

// ListListings returns listings with the given status, or all of them when status is empty.
func (s *Store) ListListings(ctx context.Context, status model.ListingStatus) ([]model.Listing, error) {
	if status == "" {
		return queryListings(ctx, s.db, "list listings", "SELECT "+listingColumns+" FROM listings")
	}
	return queryListings(ctx, s.db, "list listings",
		"SELECT "+listingColumns+" FROM listings WHERE status = ?", string(status))
}

// GetBidsByListing returns every bid on a listing, highest first.
func (s *Store) GetBidsByListing(ctx context.Context, listingID string) ([]model.Bid, error) {
	if _, err := getListing(ctx, s.db, listingID); err != nil {
		return nil, err
	}
	return queryBids(ctx, s.db, listingID)
}

// GetBid retrieves a bid by ID.
func (s *Store) GetBid(ctx context.Context, bidID string) (model.Bid, error) {
	bid, found, err := getBid(ctx, s.db, "SELECT "+bidColumns+" FROM bids WHERE bid_id = ?", bidID)
	if err != nil {
		return model.Bid{}, err
	}
	if !found {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, biddingerrors.ErrNoBids)
	}
	return bid, nil
}

// GetListingsByBidder returns the listings a user has bid on.
func (s *Store) GetListingsByBidder(ctx context.Context, bidderID string) ([]model.Listing, error) {
	return queryListings(ctx, s.db, "get listings by bidder",
		"SELECT "+prefixed("l", listingColumns)+" FROM listings l JOIN bids b ON b.listing_id = l.listing_id WHERE b.bidder_id = ?",
		bidderID)
}

// AddToWatchlist adds a listing to a user's watchlist. Adding twice is a no-op.
func (s *Store) AddToWatchlist(ctx context.Context, userID, listingID string) error {
	if _, err := getListing(ctx, s.db, listingID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO watchlist (user_id, listing_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
		userID, listingID,
	)
	if err != nil {
		return mapError(ctx, "add to watchlist", err)
	}
	return nil
}

// RemoveFromWatchlist removes a listing from a user's watchlist.
func (s *Store) RemoveFromWatchlist(ctx context.Context, userID, listingID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM watchlist WHERE user_id = ? AND listing_id = ?",
		userID, listingID,
	)
	if err != nil {
		return mapError(ctx, "remove from watchlist", err)
	}
	return nil
}

// GetWatchlist returns the listings a user watches.
func (s *Store) GetWatchlist(ctx context.Context, userID string) ([]model.Listing, error) {
	return queryListings(ctx, s.db, "get watchlist",
		"SELECT "+prefixed("l", listingColumns)+" FROM listings l JOIN watchlist w ON w.listing_id = l.listing_id WHERE w.user_id = ?",
		userID)
}

// CreateUser inserts a new user. Usernames are unique, case-insensitively.
func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (user_id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		user.UserID, user.Username, user.Email, user.PasswordHash, user.CreatedAt.UnixNano(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create user %s: %w", user.Username, biddingerrors.ErrUsernameTaken)
	}
	if err != nil {
		return mapError(ctx, "create user", err)
	}
	return nil
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var (
		user      model.User
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, username, email, password_hash, created_at FROM users WHERE username = ?",
		username,
	).Scan(&user.UserID, &user.Username, &user.Email, &user.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("get user %s: %w", username, biddingerrors.ErrUserNotFound)
	}
	if err != nil {
		return model.User{}, mapError(ctx, "get user", err)
	}
	user.CreatedAt = fromUnixNano(createdAt)
	return user, nil
}

// listingTx is the ListingTx view over one open SQLite transaction.
type listingTx struct {
	ctx       context.Context
	q         querier
	listingID string
}

func (tx *listingTx) GetListing() (model.Listing, error) {
	return getListing(tx.ctx, tx.q, tx.listingID)
}

func (tx *listingTx) GetBidByBidder(bidderID string) (model.Bid, bool, error) {
	return getBid(tx.ctx, tx.q,
		"SELECT "+bidColumns+" FROM bids WHERE listing_id = ? AND bidder_id = ?",
		tx.listingID, bidderID)
}

func (tx *listingTx) GetBid(bidID string) (model.Bid, bool, error) {
	return getBid(tx.ctx, tx.q,
		"SELECT "+bidColumns+" FROM bids WHERE listing_id = ? AND bid_id = ?",
		tx.listingID, bidID)
}

func (tx *listingTx) GetBidsByListing() ([]model.Bid, error) {
	return queryBids(tx.ctx, tx.q, tx.listingID)
}

func (tx *listingTx) SaveBid(bid model.Bid) error {
	if bid.ListingID != tx.listingID {
		return fmt.Errorf("save bid %s: %w - bid belongs to listing %s, not %s", bid.BidID, biddingerrors.ErrStorageFailure, bid.ListingID, tx.listingID)
	}
	_, err := tx.q.ExecContext(tx.ctx,
		`INSERT INTO bids (`+bidColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (bid_id) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`,
		bid.BidID, bid.ListingID, bid.BidderID, bid.Amount.String(), bid.CreatedAt.UnixNano(), bid.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return mapError(tx.ctx, "save bid "+bid.BidID, err)
	}
	return nil
}

func (tx *listingTx) SaveListing(listing model.Listing) error {
	if listing.ListingID != tx.listingID {
		return fmt.Errorf("save listing %s: %w - transaction is scoped to %s", listing.ListingID, biddingerrors.ErrStorageFailure, tx.listingID)
	}
	args := listingArgs(listing)
	_, err := tx.q.ExecContext(tx.ctx,
		`UPDATE listings SET owner_id = ?, title = ?, description = ?, image_url = ?, starting_bid = ?,
		status = ?, highest_bid_id = ?, created_at = ?, closed_at = ? WHERE listing_id = ?`,
		append(args[1:], listing.ListingID)...,
	)
	if err != nil {
		return mapError(tx.ctx, "save listing "+listing.ListingID, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func listingArgs(l model.Listing) []any {
	var closedAt any
	if l.ClosedAt != nil {
		closedAt = l.ClosedAt.UnixNano()
	}
	return []any{
		l.ListingID, l.OwnerID, l.Title, l.Description, l.ImageURL,
		l.StartingBid.String(), string(l.Status), l.HighestBidID, l.CreatedAt.UnixNano(), closedAt,
	}
}

func scanListing(row rowScanner) (model.Listing, error) {
	var (
		l           model.Listing
		startingBid string
		status      string
		createdAt   int64
		closedAt    sql.NullInt64
	)
	err := row.Scan(&l.ListingID, &l.OwnerID, &l.Title, &l.Description, &l.ImageURL,
		&startingBid, &status, &l.HighestBidID, &createdAt, &closedAt)
	if err != nil {
		return model.Listing{}, err
	}
	l.StartingBid, err = decimal.NewFromString(startingBid)
	if err != nil {
		return model.Listing{}, fmt.Errorf("listing %s: bad starting bid %q: %w", l.ListingID, startingBid, err)
	}
	l.Status = model.ListingStatus(status)
	l.CreatedAt = fromUnixNano(createdAt)
	if closedAt.Valid {
		t := fromUnixNano(closedAt.Int64)
		l.ClosedAt = &t
	}
	return l, nil
}

func scanBid(row rowScanner) (model.Bid, error) {
	var (
		b                    model.Bid
		amount               string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&b.BidID, &b.ListingID, &b.BidderID, &amount, &createdAt, &updatedAt); err != nil {
		return model.Bid{}, err
	}
	var err error
	b.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return model.Bid{}, fmt.Errorf("bid %s: bad amount %q: %w", b.BidID, amount, err)
	}
	b.CreatedAt = fromUnixNano(createdAt)
	b.UpdatedAt = fromUnixNano(updatedAt)
	return b, nil
}

func getListing(ctx context.Context, q querier, listingID string) (model.Listing, error) {
	l, err := scanListing(q.QueryRowContext(ctx, "SELECT "+listingColumns+" FROM listings WHERE listing_id = ?", listingID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Listing{}, fmt.Errorf("get listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	if err != nil {
		return model.Listing{}, mapError(ctx, "get listing "+listingID, err)
	}
	return l, nil
}

func getBid(ctx context.Context, q querier, query string, args ...any) (model.Bid, bool, error) {
	b, err := scanBid(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bid{}, false, nil
	}
	if err != nil {
		return model.Bid{}, false, mapError(ctx, "get bid", err)
	}
	return b, true, nil
}

func queryListings(ctx context.Context, q querier, op, query string, args ...any) ([]model.Listing, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(ctx, op, err)
	}
	defer rows.Close()

	listings := []model.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, mapError(ctx, op, err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(ctx, op, err)
	}
	repository.SortListings(listings)
	return listings, nil
}

func queryBids(ctx context.Context, q querier, listingID string) ([]model.Bid, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+bidColumns+" FROM bids WHERE listing_id = ?", listingID)
	if err != nil {
		return nil, mapError(ctx, "get bids", err)
	}
	defer rows.Close()

	bids := []model.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, mapError(ctx, "get bids", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(ctx, "get bids", err)
	}
	repository.SortBids(bids)
	return bids, nil
}

// mapError classifies a driver error. Lock contention and deadline expiry are
// conflicts the caller may retry; anything else is a storage failure.
func mapError(ctx context.Context, op string, err error) error {
	var sqliteErr *sqlitedriver.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%s: %w: %w", op, biddingerrors.ErrConflict, err)
		}
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w: %w", op, biddingerrors.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w: %w", op, biddingerrors.ErrStorageFailure, err)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlitedriver.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}
