package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type memoryStore map[string]any

func (s memoryStore) Get(_ context.Context, key string) (string, error) {
	return fmt.Sprint(s[key]), nil
}

func (s memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := s[key]; ok {
		return false, nil
	}
	s[key] = value
	return true, nil
}

func (s memoryStore) IdempotencyKey(scope, id string) string {
	return "rh:idempotency:" + scope + ":" + id
}

func (s memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(s, k)
	}
	return nil
}

func ExampleManager_Once() {
	ctx := context.Background()
	manager, _ := NewManager(memoryStore{}, 7*24*time.Hour)
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	deliver := func(fail bool) {
		ran, err := manager.Once(ctx, "notification-email", eventID, func(context.Context) error {
			if fail {
				return fmt.Errorf("mail provider unavailable")
			}
			return nil
		})
		fmt.Printf("ran=%v err=%v\n", ran, err)
	}

	deliver(true)
	deliver(false)
	deliver(false)
	// Output:
	// ran=true err=mail provider unavailable
	// ran=true err=<nil>
	// ran=false err=<nil>
}
