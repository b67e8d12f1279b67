package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rentalhub-backend/internal/pricing"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
)

type RequestBookingRequest struct {
	EquipmentID   uuid.UUID `json:"equipment_id" validate:"required"`
	StartDate     string    `json:"start_date" validate:"required,date"`
	EndDate       string    `json:"end_date" validate:"required,date"`
	InsuranceType string    `json:"insurance_type" validate:"omitempty,oneof=none basic premium"`
}

type PaymentIntentRequest struct {
	ClientTotal string `json:"client_total" validate:"omitempty,money"`
}

type SubmitInspectionRequest struct {
	InspectionType string   `json:"inspection_type" validate:"required,oneof=pickup return"`
	Notes          string   `json:"notes" validate:"max=4000"`
	PhotoURLs      []string `json:"photo_urls" validate:"max=20,dive,url"`
}

type DamageReportRequest struct {
	Description   string   `json:"description" validate:"max=4000"`
	EstimatedCost string   `json:"estimated_cost" validate:"omitempty,money"`
	PhotoURLs     []string `json:"photo_urls" validate:"max=20,dive,url"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type ResolveDisputeRequest struct {
	DeductionAmount string `json:"deduction_amount" validate:"required,money"`
	Outcome         string `json:"outcome" validate:"required,oneof=owner_favored renter_favored split"`
	Notes           string `json:"notes" validate:"max=4000"`
}

type Booking struct {
	ID                  uuid.UUID           `json:"id"`
	EquipmentID         uuid.UUID           `json:"equipment_id"`
	RenterID            uuid.UUID           `json:"renter_id"`
	OwnerID             uuid.UUID           `json:"owner_id"`
	StartDate           string              `json:"start_date"`
	EndDate             string              `json:"end_date"`
	Status              enums.BookingStatus `json:"status"`
	TotalAmount         decimal.Decimal     `json:"total_amount"`
	InsuranceType       enums.InsuranceType `json:"insurance_type"`
	InsuranceCost       decimal.Decimal     `json:"insurance_cost"`
	DamageDepositAmount decimal.Decimal     `json:"damage_deposit_amount"`
	ActivatedAt         *time.Time          `json:"activated_at,omitempty"`
	CompletedAt         *time.Time          `json:"completed_at,omitempty"`
	CancelledAt         *time.Time          `json:"cancelled_at,omitempty"`
	CancelledBy         *uuid.UUID          `json:"cancelled_by,omitempty"`
	CancellationReason  *string             `json:"cancellation_reason,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

type RequestBookingResponse struct {
	Booking Booking       `json:"booking"`
	Quote   pricing.Quote `json:"quote"`
}

type TransitionResponse struct {
	Booking    Booking                 `json:"booking"`
	Transition enums.BookingTransition `json:"transition"`
	Outcome    string                  `json:"outcome"`
	From       enums.BookingStatus     `json:"from"`
	To         enums.BookingStatus     `json:"to"`
}

type BookingList struct {
	Items  []Booking `json:"items"`
	Cursor string    `json:"cursor,omitempty"`
}

type RentalEvent struct {
	ID        uuid.UUID             `json:"id"`
	EventType enums.RentalEventType `json:"event_type"`
	ActorID   *uuid.UUID            `json:"actor_id,omitempty"`
	Metadata  map[string]any        `json:"metadata,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

type Inspection struct {
	ID               uuid.UUID            `json:"id"`
	BookingID        uuid.UUID            `json:"booking_id"`
	InspectionType   enums.InspectionType `json:"inspection_type"`
	VerifiedByRenter bool                 `json:"verified_by_renter"`
	VerifiedByOwner  bool                 `json:"verified_by_owner"`
	Notes            *string              `json:"notes,omitempty"`
	PhotoURLs        []string             `json:"photo_urls"`
	RenterVerifiedAt *time.Time           `json:"renter_verified_at,omitempty"`
	OwnerVerifiedAt  *time.Time           `json:"owner_verified_at,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}
