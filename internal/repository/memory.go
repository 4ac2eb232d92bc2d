package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"auctions/internal/biddingerrors"
	model "auctions/internal/models"
)

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB.
// Each listing has its own lock so transactions on different listings never
// wait on each other.
type MemoryRepo struct {
	mu           sync.RWMutex
	listings     map[string]model.Listing        // key: listingID
	bids         map[string]map[string]model.Bid // key: listingID -> bidderID -> bid
	bidsByID     map[string]model.Bid            // key: bidID
	userListings map[string][]string             // key: bidderID -> listingIDs bid on
	watchlists   map[string]map[string]struct{}  // key: userID -> set of listingIDs
	users        map[string]model.User           // key: username
	locks        map[string]chan struct{}        // key: listingID
}

var _ AuctionDB = (*MemoryRepo)(nil)

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		listings:     make(map[string]model.Listing),
		bids:         make(map[string]map[string]model.Bid),
		bidsByID:     make(map[string]model.Bid),
		userListings: make(map[string][]string),
		watchlists:   make(map[string]map[string]struct{}),
		users:        make(map[string]model.User),
		locks:        make(map[string]chan struct{}),
	}
}

// AddListing stores a listing as-is, bypassing validation. Intended for tests and seeding.
func (r *MemoryRepo) AddListing(listing model.Listing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings[listing.ListingID] = listing
	if _, ok := r.locks[listing.ListingID]; !ok {
		r.locks[listing.ListingID] = make(chan struct{}, 1)
	}
}

// CreateListing persists a new listing
func (r *MemoryRepo) CreateListing(_ context.Context, listing model.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if listing.ListingID == "" {
		return fmt.Errorf("create listing: %w - empty listing ID", biddingerrors.ErrInvalidListing)
	}
	if _, exists := r.listings[listing.ListingID]; exists {
		return fmt.Errorf("create listing %s: %w - duplicate listing ID", listing.ListingID, biddingerrors.ErrStorageFailure)
	}
	r.listings[listing.ListingID] = listing
	r.locks[listing.ListingID] = make(chan struct{}, 1)
	return nil
}

// GetListing returns a listing by ID
func (r *MemoryRepo) GetListing(_ context.Context, listingID string) (model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	listing, ok := r.listings[listingID]
	if !ok {
		return model.Listing{}, fmt.Errorf("get listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	return listing, nil
}

// ListListings returns listings with the given status, or all listings when status is empty
func (r *MemoryRepo) ListListings(_ context.Context, status model.ListingStatus) ([]model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	listings := make([]model.Listing, 0, len(r.listings))
	for _, l := range r.listings {
		if status == "" || l.Status == status {
			listings = append(listings, l)
		}
	}
	SortListings(listings)
	return listings, nil
}

// GetBidsByListing returns all bids for a listing, highest first
func (r *MemoryRepo) GetBidsByListing(_ context.Context, listingID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.listings[listingID]; !ok {
		return nil, fmt.Errorf("get bids for listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	return r.bidsForListingLocked(listingID), nil
}

// GetBid returns a bid by ID
func (r *MemoryRepo) GetBid(_ context.Context, bidID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bid, ok := r.bidsByID[bidID]
	if !ok {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, biddingerrors.ErrNoBids)
	}
	return bid, nil
}

// GetListingsByBidder returns all listings a user has bid on
func (r *MemoryRepo) GetListingsByBidder(_ context.Context, bidderID string) ([]model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.userListings[bidderID]
	listings := make([]model.Listing, 0, len(ids))
	for _, id := range ids {
		if l, ok := r.listings[id]; ok {
			listings = append(listings, l)
		}
	}
	SortListings(listings)
	return listings, nil
}

// AddToWatchlist adds a listing to a user's watchlist. Adding twice is a no-op.
func (r *MemoryRepo) AddToWatchlist(_ context.Context, userID, listingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[listingID]; !ok {
		return fmt.Errorf("add listing %s to watchlist: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	set, ok := r.watchlists[userID]
	if !ok {
		set = make(map[string]struct{})
		r.watchlists[userID] = set
	}
	set[listingID] = struct{}{}
	return nil
}

// RemoveFromWatchlist removes a listing from a user's watchlist. Removing an absent listing is a no-op.
func (r *MemoryRepo) RemoveFromWatchlist(_ context.Context, userID, listingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.watchlists[userID]; ok {
		delete(set, listingID)
	}
	return nil
}

// GetWatchlist returns the listings a user watches
func (r *MemoryRepo) GetWatchlist(_ context.Context, userID string) ([]model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.watchlists[userID]
	listings := make([]model.Listing, 0, len(set))
	for id := range set {
		if l, ok := r.listings[id]; ok {
			listings = append(listings, l)
		}
	}
	SortListings(listings)
	return listings, nil
}

// CreateUser stores a new user. Usernames are unique, case-insensitively.
func (r *MemoryRepo) CreateUser(_ context.Context, user model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(user.Username)
	if _, exists := r.users[key]; exists {
		return fmt.Errorf("create user %s: %w", user.Username, biddingerrors.ErrUsernameTaken)
	}
	r.users[key] = user
	return nil
}

// GetUserByUsername returns a user by username
func (r *MemoryRepo) GetUserByUsername(_ context.Context, username string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[strings.ToLower(username)]
	if !ok {
		return model.User{}, fmt.Errorf("get user %s: %w", username, biddingerrors.ErrUserNotFound)
	}
	return user, nil
}

// Close is a no-op for the in-memory repository.
func (r *MemoryRepo) Close() error {
	return nil
}

// WithListingTx acquires the listing's lock, honoring ctx, and runs fn with
// staged writes that are applied only when fn succeeds.
func (r *MemoryRepo) WithListingTx(ctx context.Context, listingID string, fn func(tx ListingTx) error) error {
	r.mu.RLock()
	lock, ok := r.locks[listingID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("lock listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}

	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("lock listing %s: %w: %w", listingID, biddingerrors.ErrConflict, ctx.Err())
	}
	defer func() { <-lock }()

	tx := &memoryTx{repo: r, listingID: listingID, bids: make(map[string]model.Bid)}
	if err := fn(tx); err != nil {
		return err
	}
	r.commit(tx)
	return nil
}

func (r *MemoryRepo) commit(tx *memoryTx) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tx.listing != nil {
		r.listings[tx.listingID] = *tx.listing
	}
	if len(tx.bids) == 0 {
		return
	}
	byBidder, ok := r.bids[tx.listingID]
	if !ok {
		byBidder = make(map[string]model.Bid)
		r.bids[tx.listingID] = byBidder
	}
	for bidderID, bid := range tx.bids {
		if _, existed := byBidder[bidderID]; !existed {
			r.userListings[bidderID] = append(r.userListings[bidderID], tx.listingID)
		}
		byBidder[bidderID] = bid
		r.bidsByID[bid.BidID] = bid
	}
}

func (r *MemoryRepo) bidsForListingLocked(listingID string) []model.Bid {
	byBidder := r.bids[listingID]
	bids := make([]model.Bid, 0, len(byBidder))
	for _, b := range byBidder {
		bids = append(bids, b)
	}
	SortBids(bids)
	return bids
}

// memoryTx reads through staged writes to the committed state.
type memoryTx struct {
	repo      *MemoryRepo
	listingID string
	listing   *model.Listing
	bids      map[string]model.Bid // staged, key: bidderID
}

func (tx *memoryTx) GetListing() (model.Listing, error) {
	if tx.listing != nil {
		return *tx.listing, nil
	}
	return tx.repo.GetListing(context.Background(), tx.listingID)
}

func (tx *memoryTx) GetBidByBidder(bidderID string) (model.Bid, bool, error) {
	if b, ok := tx.bids[bidderID]; ok {
		return b, true, nil
	}
	tx.repo.mu.RLock()
	defer tx.repo.mu.RUnlock()
	b, ok := tx.repo.bids[tx.listingID][bidderID]
	return b, ok, nil
}

func (tx *memoryTx) GetBid(bidID string) (model.Bid, bool, error) {
	for _, b := range tx.bids {
		if b.BidID == bidID {
			return b, true, nil
		}
	}
	tx.repo.mu.RLock()
	defer tx.repo.mu.RUnlock()
	b, ok := tx.repo.bidsByID[bidID]
	if !ok || b.ListingID != tx.listingID {
		return model.Bid{}, false, nil
	}
	return b, true, nil
}

func (tx *memoryTx) GetBidsByListing() ([]model.Bid, error) {
	tx.repo.mu.RLock()
	merged := make(map[string]model.Bid, len(tx.repo.bids[tx.listingID])+len(tx.bids))
	for bidderID, b := range tx.repo.bids[tx.listingID] {
		merged[bidderID] = b
	}
	tx.repo.mu.RUnlock()

	for bidderID, b := range tx.bids {
		merged[bidderID] = b
	}
	bids := make([]model.Bid, 0, len(merged))
	for _, b := range merged {
		bids = append(bids, b)
	}
	SortBids(bids)
	return bids, nil
}

func (tx *memoryTx) SaveBid(bid model.Bid) error {
	if bid.ListingID != tx.listingID {
		return fmt.Errorf("save bid %s: %w - bid belongs to listing %s, not %s", bid.BidID, biddingerrors.ErrStorageFailure, bid.ListingID, tx.listingID)
	}
	existing, ok, _ := tx.GetBidByBidder(bid.BidderID)
	if ok && existing.BidID != bid.BidID {
		return fmt.Errorf("save bid %s: %w - bidder %s already holds bid %s", bid.BidID, biddingerrors.ErrStorageFailure, bid.BidderID, existing.BidID)
	}
	tx.bids[bid.BidderID] = bid
	return nil
}

func (tx *memoryTx) SaveListing(listing model.Listing) error {
	if listing.ListingID != tx.listingID {
		return fmt.Errorf("save listing %s: %w - transaction is scoped to %s", listing.ListingID, biddingerrors.ErrStorageFailure, tx.listingID)
	}
	tx.listing = &listing
	return nil
}
