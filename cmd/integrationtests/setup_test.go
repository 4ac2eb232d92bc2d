package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"auctions/internal/accounts"
	bidding "auctions/internal/biddingService"
	"auctions/internal/models"
	"auctions/internal/repository"
	"auctions/internal/repository/sqlite"
	"auctions/internal/server"
	"auctions/internal/watchlist"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// storeFactories lists the stores every API test runs against.
var storeFactories = map[string]func(t *testing.T) repository.AuctionDB{
	"memory": func(t *testing.T) repository.AuctionDB {
		return repository.NewMemoryRepo()
	},
	"sqlite": func(t *testing.T) repository.AuctionDB {
		store, err := sqlite.New(filepath.Join(t.TempDir(), "auctions.db"), 0)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	},
}

// forEachStore runs fn once per backing store.
func forEachStore(t *testing.T, fn func(t *testing.T, newStore func(t *testing.T) repository.AuctionDB)) {
	for name, factory := range storeFactories {
		factory := factory
		t.Run(name, func(t *testing.T) {
			fn(t, factory)
		})
	}
}

// SetupTestRouter initializes the router over repo, seeding it with listings.
func SetupTestRouter(t *testing.T, repo repository.AuctionDB, opts []bidding.Option, listings ...models.Listing) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	for _, l := range listings {
		require.NoError(t, repo.CreateListing(t.Context(), l))
	}

	return server.SetupRouter(server.Dependencies{
		Bidding:   bidding.NewBiddingService(repo, opts...),
		Watchlist: watchlist.NewWatchlistService(repo),
		Accounts:  accounts.NewAccountService(repo, bcrypt.MinCost),
	})
}

// ExecuteRequestAndParse executes an HTTP request on the given router and
// returns the decoded envelope.
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err, "failed to marshal body")
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "failed to unmarshal response")
	}
	return resp, w
}

func bid(listingID, bidderID, amount string) map[string]string {
	return map[string]string{"listing_id": listingID, "bidder_id": bidderID, "amount": amount}
}
