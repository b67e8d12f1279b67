package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox/payloads"
)

type decoderFunc func(payload json.RawMessage) (any, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// Decoded is a consumed envelope with its data decoded into the payload type
// registered for (event type, envelope version).
type Decoded struct {
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// DecoderRegistry maps event types and envelope versions to payload decoders
// on the consumer side.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	decoders map[registryKey]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[registryKey]decoderFunc)}
}

// ConsumerDecoders returns a registry with v1 decoders for every event the
// outbox emits.
func ConsumerDecoders() *DecoderRegistry {
	r := NewDecoderRegistry()
	RegisterJSON[payloads.BookingStatusChangedEvent](r, enums.EventBookingStatusChanged, 1)
	RegisterJSON[payloads.PaymentSettledEvent](r, enums.EventPaymentSettled, 1)
	RegisterJSON[payloads.PaymentFailedEvent](r, enums.EventPaymentFailed, 1)
	RegisterJSON[payloads.PaymentRefundedEvent](r, enums.EventPaymentRefunded, 1)
	RegisterJSON[payloads.EscrowReleasedEvent](r, enums.EventEscrowReleased, 1)
	RegisterJSON[payloads.NotificationRequestedEvent](r, enums.EventNotificationRequested, 1)
	return r
}

// Register stores a decoder for the given event type and version, replacing
// any earlier one.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.decoders[registryKey{eventType: eventType, version: version}] = decoder
}

// RegisterJSON registers a decoder that unmarshals the payload into T and
// yields it by value.
func RegisterJSON[T any](r *DecoderRegistry, eventType enums.OutboxEventType, version int) {
	r.Register(eventType, version, func(payload json.RawMessage) (any, error) {
		var out T
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, fmt.Errorf("decode %s@v%d: %w", eventType, version, err)
		}
		return out, nil
	})
}

// Decode runs the decoder registered for the event type and version.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	decoder, ok := r.decoders[registryKey{eventType: eventType, version: version}]
	r.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
	}
	return decoder(payload)
}

// DecodeMessage parses a published message body (the stored envelope) and
// decodes its data. Envelopes without a version are treated as v1.
func (r *DecoderRegistry) DecodeMessage(eventType enums.OutboxEventType, body []byte) (Decoded, error) {
	envelope, err := outbox.ParseEnvelope(body)
	if err != nil {
		return Decoded{}, err
	}
	payload, err := r.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		return Decoded{}, err
	}
	return Decoded{Envelope: envelope, Payload: payload}, nil
}
