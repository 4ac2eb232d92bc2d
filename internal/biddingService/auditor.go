package bidding

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"auctions/internal/models"
	"auctions/utils"

	"golang.org/x/sync/errgroup"
)

const defaultAuditWorkers = 4

// AuditReport summarises one audit pass.
type AuditReport struct {
	Checked  int      `json:"checked"`
	Repaired []string `json:"repaired"`
}

// Auditor reconciles the highest-bid pointer of every open listing.
type Auditor struct {
	service *BiddingService
	workers int
}

// NewAuditor returns an Auditor running at most workers reconciliations at once.
func NewAuditor(service *BiddingService, workers int) *Auditor {
	if workers <= 0 {
		workers = defaultAuditWorkers
	}
	return &Auditor{service: service, workers: workers}
}

// AuditOpenListings reconciles all open listings. The first failure cancels
// the remaining work and is returned.
func (a *Auditor) AuditOpenListings(ctx context.Context) (AuditReport, error) {
	listings, err := a.service.ListListings(ctx, models.ListingOpen)
	if err != nil {
		return AuditReport{}, fmt.Errorf("audit: %w", err)
	}

	var (
		mu       sync.Mutex
		repaired []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for _, listing := range listings {
		id := listing.ListingID
		g.Go(func() error {
			fixed, err := a.service.Reconcile(gctx, id)
			if err != nil {
				return err
			}
			if fixed {
				mu.Lock()
				repaired = append(repaired, id)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return AuditReport{}, fmt.Errorf("audit: %w", err)
	}

	sort.Strings(repaired)
	report := AuditReport{Checked: len(listings), Repaired: repaired}
	utils.Info("Audited open listings", map[string]any{
		"checked":  report.Checked,
		"repaired": len(report.Repaired),
	})
	return report, nil
}
