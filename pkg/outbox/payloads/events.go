package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
)

// BookingStatusChangedEvent is emitted in the same transaction as every
// booking status write.
type BookingStatusChangedEvent struct {
	BookingID   uuid.UUID               `json:"booking_id"`
	EquipmentID uuid.UUID               `json:"equipment_id"`
	RenterID    uuid.UUID               `json:"renter_id"`
	OwnerID     uuid.UUID               `json:"owner_id"`
	Transition  enums.BookingTransition `json:"transition"`
	From        enums.BookingStatus     `json:"from"`
	To          enums.BookingStatus     `json:"to"`
	ChangedAt   time.Time               `json:"changed_at"`
}

// PaymentSettledEvent reports a captured booking payment.
type PaymentSettledEvent struct {
	PaymentID       uuid.UUID       `json:"payment_id"`
	BookingID       uuid.UUID       `json:"booking_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

// PaymentFailedEvent reports a processor-side payment failure.
type PaymentFailedEvent struct {
	PaymentID       uuid.UUID `json:"payment_id"`
	BookingID       uuid.UUID `json:"booking_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	Reason          string    `json:"reason,omitempty"`
}

// PaymentRefundedEvent reports that escrow and deposit went back to the renter.
type PaymentRefundedEvent struct {
	PaymentID uuid.UUID       `json:"payment_id"`
	BookingID uuid.UUID       `json:"booking_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

// EscrowReleasedEvent reports the owner's funds becoming eligible for payout.
type EscrowReleasedEvent struct {
	PaymentID      uuid.UUID            `json:"payment_id"`
	BookingID      uuid.UUID            `json:"booking_id"`
	OwnerID        uuid.UUID            `json:"owner_id"`
	DepositStatus  *enums.DepositStatus `json:"deposit_status,omitempty"`
	DepositClaimed decimal.Decimal      `json:"deposit_claimed"`
	ReleasedAt     time.Time            `json:"released_at"`
}

// NotificationRequestedEvent asks the delivery worker to email a user about
// an in-app notification.
type NotificationRequestedEvent struct {
	NotificationID    uuid.UUID                  `json:"notification_id"`
	UserID            uuid.UUID                  `json:"user_id"`
	Type              enums.NotificationType     `json:"type"`
	Priority          enums.NotificationPriority `json:"priority"`
	Title             string                     `json:"title"`
	Message           string                     `json:"message"`
	RelatedEntityType string                     `json:"related_entity_type,omitempty"`
	RelatedEntityID   *uuid.UUID                 `json:"related_entity_id,omitempty"`
}
