package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/rentalhub-backend/pkg/redis"
)

// ErrInvalidKey is returned when a consumer name or event id is missing.
var ErrInvalidKey = errors.New("idempotency key requires consumer and event id")

// Manager remembers which events each consumer has handled. Marks live in
// Redis under rh:idempotency:evt:processed:<consumer>:<event_id> and expire
// after the configured TTL, which must exceed the redelivery window of
// whatever feeds the consumer.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// Claim records id for consumer. seen is true when an earlier delivery
// already holds the mark. The mark value is the claim time.
func (m *Manager) Claim(ctx context.Context, consumer, id string) (seen bool, err error) {
	key, err := m.key(consumer, id)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return !claimed, nil
}

// Release drops the mark for id so the next delivery is handled again.
func (m *Manager) Release(ctx context.Context, consumer, id string) error {
	key, err := m.key(consumer, id)
	if err != nil {
		return err
	}
	if err := m.store.Del(ctx, key); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// CheckAndMarkProcessed is Claim for outbox event ids.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, ErrInvalidKey
	}
	return m.Claim(ctx, consumer, eventID.String())
}

// Once runs fn only for the first delivery of eventID. When fn fails the claim
// is released so the redelivery gets another try. ran reports whether fn was
// invoked.
func (m *Manager) Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (ran bool, err error) {
	seen, err := m.CheckAndMarkProcessed(ctx, consumer, eventID)
	if err != nil || seen {
		return false, err
	}
	if err := fn(ctx); err != nil {
		return true, multierr.Append(err, m.Delete(ctx, consumer, eventID))
	}
	return true, nil
}

// Delete is Release for outbox event ids.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	if eventID == uuid.Nil {
		return ErrInvalidKey
	}
	return m.Release(ctx, consumer, eventID.String())
}

func (m *Manager) key(consumer, id string) (string, error) {
	if consumer == "" || id == "" {
		return "", ErrInvalidKey
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, id), nil
}
