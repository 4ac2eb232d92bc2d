package bidding

import (
	"context"
	"time"

	"auctions/internal/models"

	"github.com/shopspring/decimal"
)

// Publisher receives auction events after their transaction commits.
type Publisher interface {
	Publish(ctx context.Context, event models.AuctionEvent) error
}

// Recorder counts engine outcomes.
type Recorder interface {
	RecordBid(outcome string, reason models.RejectReason)
	RecordClose(result string)
}

// Outcome labels passed to a Recorder.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"

	CloseWinner        = "winner"
	CloseNoWinner      = "no_winner"
	CloseNotOwner      = "not_owner"
	CloseAlreadyClosed = "already_closed"
	CloseError         = "error"
)

const (
	defaultTxTimeout   = 5 * time.Second
	defaultMaxAttempts = 2
	defaultRetryDelay  = 10 * time.Millisecond
)

// Option configures a BiddingService.
type Option func(*BiddingService)

// WithPublisher sets where committed auction events are sent.
func WithPublisher(p Publisher) Option {
	return func(s *BiddingService) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(s *BiddingService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithTxTimeout bounds each transaction attempt.
func WithTxTimeout(d time.Duration) Option {
	return func(s *BiddingService) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// WithRetryDelay sets the pause before the single retry.
func WithRetryDelay(d time.Duration) Option {
	return func(s *BiddingService) {
		if d >= 0 {
			s.retryDelay = d
		}
	}
}

// WithMaxAmount caps bid and starting-bid amounts. Zero means no cap.
func WithMaxAmount(max decimal.Decimal) Option {
	return func(s *BiddingService) {
		s.maxAmount = max
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) {
		if now != nil {
			s.now = now
		}
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, models.AuctionEvent) error { return nil }

type nopRecorder struct{}

func (nopRecorder) RecordBid(string, models.RejectReason) {}
func (nopRecorder) RecordClose(string)                    {}
