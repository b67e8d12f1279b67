package stripewebhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/rentalhub-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/rentalhub-backend/pkg/redis"
)

const stripeEventPrefix = "evt_"

var errEventID = errors.New("stripe event id is required")

// IdempotencyGuard remembers Stripe event ids so redeliveries are skipped. It
// shares the consumer mark layout with the Pub/Sub workers, using scope as
// the consumer name.
type IdempotencyGuard struct {
	marks *idempotency.Manager
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if strings.TrimSpace(scope) == "" {
		return nil, errors.New("scope is required")
	}
	marks, err := idempotency.NewManager(store, ttl)
	if err != nil {
		return nil, err
	}
	return &IdempotencyGuard{marks: marks, scope: scope}, nil
}

// Claim marks the event as seen and reports whether it already was.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	if err := checkEventID(eventID); err != nil {
		return false, err
	}
	return g.marks.Claim(ctx, g.scope, eventID)
}

// Release forgets the event so Stripe's next delivery is processed.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if err := checkEventID(eventID); err != nil {
		return err
	}
	return g.marks.Release(ctx, g.scope, eventID)
}

func checkEventID(id string) error {
	if !strings.HasPrefix(id, stripeEventPrefix) || len(id) == len(stripeEventPrefix) {
		return errEventID
	}
	return nil
}
