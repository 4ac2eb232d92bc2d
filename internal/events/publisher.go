// Package events fans committed auction state changes out over Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"auctions/internal/models"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "auctions"

// RedisPublisher publishes each event as JSON on the listing's channel.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher creates a publisher on client. Channels are named
// "<prefix>:listing:<listing_id>".
func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel returns the channel events for listingID are published on.
func (p *RedisPublisher) Channel(listingID string) string {
	return fmt.Sprintf("%s:listing:%s", p.prefix, listingID)
}

// Publish sends event to subscribers of its listing.
func (p *RedisPublisher) Publish(ctx context.Context, event models.AuctionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", event.Type, err)
	}
	if err := p.client.Publish(ctx, p.Channel(event.ListingID), payload).Err(); err != nil {
		return fmt.Errorf("events: publish %s for listing %s: %w", event.Type, event.ListingID, err)
	}
	return nil
}

// Subscribe returns a subscription to one listing's events. The caller closes it.
func (p *RedisPublisher) Subscribe(ctx context.Context, listingID string) (*redis.PubSub, error) {
	sub := p.client.Subscribe(ctx, p.Channel(listingID))
	// wait for the subscription confirmation so no later publish is missed
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("events: subscribe to listing %s: %w", listingID, err)
	}
	return sub, nil
}

// Decode parses a message payload received from a subscription.
func Decode(payload string) (models.AuctionEvent, error) {
	var event models.AuctionEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return models.AuctionEvent{}, fmt.Errorf("events: decode: %w", err)
	}
	return event, nil
}
