package perftests

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	bidding "auctions/internal/biddingService"
	"auctions/internal/models"
	"auctions/internal/repository"
	"auctions/internal/repository/sqlite"

	"github.com/shopspring/decimal"
)

func newListing(id string, startingBid int64) models.Listing {
	return models.Listing{
		ListingID:   id,
		OwnerID:     "owner",
		Title:       "Benchmark listing " + id,
		Description: "Independent benchmark listing",
		StartingBid: decimal.NewFromInt(startingBid),
		Status:      models.ListingOpen,
		CreatedAt:   time.Now().UTC(),
	}
}

// Benchmark 1: SubmitBid - Isolated Listings (Low Contention - Micro Benchmark)
func Benchmark_SubmitBid_Isolated(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		repo.AddListing(newListing(fmt.Sprintf("listing_%d", i), 50))
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		bidderID := fmt.Sprintf("user_%d", i)
		listingID := fmt.Sprintf("listing_%d", i)
		amount := decimal.NewFromInt(int64(50 + rand.Intn(100)))
		if _, err := svc.SubmitBid(ctx, listingID, bidderID, amount); err != nil {
			b.Fatalf("failed to submit bid: %v", err)
		}
	}
}

// Benchmark 2: SubmitBid - Shared Listing (High Contention - Concurrency Benchmark)
func Benchmark_SubmitBid_ConcurrentSharedListing(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo, bidding.WithTxTimeout(time.Minute))
	ctx := context.Background()

	listing := newListing("shared_listing_1", 50)
	repo.AddListing(listing)

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 50

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			bidderID := fmt.Sprintf("user_parallel_%d", rnd.Int())
			nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
			_, _ = svc.SubmitBid(ctx, listing.ListingID, bidderID, decimal.NewFromInt(nextBid))
		}
	})
}

// Benchmark 3: SubmitBid on SQLite - Shared Listing
func Benchmark_SubmitBid_SQLiteSharedListing(b *testing.B) {
	store, err := sqlite.New(filepath.Join(b.TempDir(), "bench.db"), time.Second)
	if err != nil {
		b.Fatalf("failed to open sqlite: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	listing := newListing("shared_listing_1", 50)
	if err := store.CreateListing(ctx, listing); err != nil {
		b.Fatalf("failed to create listing: %v", err)
	}
	svc := bidding.NewBiddingService(store, bidding.WithTxTimeout(time.Minute))

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		bidderID := fmt.Sprintf("user_%d", i%100)
		if _, err := svc.SubmitBid(ctx, listing.ListingID, bidderID, decimal.NewFromInt(int64(51+i))); err != nil {
			b.Fatalf("failed to submit bid: %v", err)
		}
	}
}

// Benchmark 4: GetHighestBid - Single - Threaded (Low Contention)
func Benchmark_GetHighestBid_SingleThreaded(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		listing := newListing(fmt.Sprintf("listing_%d", i), 50)
		repo.AddListing(listing)

		for j := 0; j < 10; j++ {
			bidderID := fmt.Sprintf("user_%d_%d", i, j)
			_, _ = svc.SubmitBid(ctx, listing.ListingID, bidderID, decimal.NewFromInt(int64(50+j*10)))
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		listingID := fmt.Sprintf("listing_%d", i)
		if _, err := svc.GetHighestBid(ctx, listingID); err != nil {
			b.Fatalf("failed to get highest bid: %v", err)
		}
	}
}

// Benchmark 5: GetHighestBid - Concurrent (High Contention)
func Benchmark_GetHighestBid_ConcurrentSharedListing(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	ctx := context.Background()

	listing := newListing("shared_listing_1", 50)
	repo.AddListing(listing)

	for j := 0; j < 100; j++ {
		bidderID := fmt.Sprintf("user_%d", j)
		_, _ = svc.SubmitBid(ctx, listing.ListingID, bidderID, decimal.NewFromInt(int64(50+j)))
	}

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := svc.GetHighestBid(ctx, listing.ListingID); err != nil {
				b.Errorf("failed to get highest bid: %v", err)
				return
			}
		}
	})
}

// Benchmark 6: Mixed Workload (Readers + Writers concurrently)
func Benchmark_MixedWorkload_SharedListing(b *testing.B) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo, bidding.WithTxTimeout(time.Minute))
	ctx := context.Background()

	listing := newListing("shared_listing_1", 50)
	repo.AddListing(listing)

	for j := 0; j < 50; j++ {
		bidderID := fmt.Sprintf("user_seed_%d", j)
		_, _ = svc.SubmitBid(ctx, listing.ListingID, bidderID, decimal.NewFromInt(int64(50+j*2)))
	}

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 150

	// Ratio: 70% readers, 30% writers
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			if rnd.Intn(10) < 3 {
				bidderID := fmt.Sprintf("user_writer_%d", rnd.Int())
				nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
				_, _ = svc.SubmitBid(ctx, listing.ListingID, bidderID, decimal.NewFromInt(nextBid))
				continue
			}
			_, _ = svc.GetHighestBid(ctx, listing.ListingID)
		}
	})
}
