package enums

import "slices"

// BookingStatus maps to the booking_status enum in Postgres.
type BookingStatus string

const (
	BookingStatusPending                  BookingStatus = "pending"
	BookingStatusPaid                     BookingStatus = "paid"
	BookingStatusAwaitingPickupInspection BookingStatus = "awaiting_pickup_inspection"
	BookingStatusAwaitingStartDate        BookingStatus = "awaiting_start_date"
	BookingStatusActive                   BookingStatus = "active"
	BookingStatusAwaitingReturnInspection BookingStatus = "awaiting_return_inspection"
	BookingStatusPendingOwnerReview       BookingStatus = "pending_owner_review"
	BookingStatusDisputed                 BookingStatus = "disputed"
	BookingStatusCompleted                BookingStatus = "completed"
	BookingStatusCancelled                BookingStatus = "cancelled"
)

var validBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusPaid,
	BookingStatusAwaitingPickupInspection,
	BookingStatusAwaitingStartDate,
	BookingStatusActive,
	BookingStatusAwaitingReturnInspection,
	BookingStatusPendingOwnerReview,
	BookingStatusDisputed,
	BookingStatusCompleted,
	BookingStatusCancelled,
}

// bookingStatusEdges is the full lifecycle graph. Terminal states have no
// outgoing edges.
var bookingStatusEdges = map[BookingStatus][]BookingStatus{
	BookingStatusPending:                  {BookingStatusAwaitingPickupInspection, BookingStatusCancelled},
	BookingStatusPaid:                     {BookingStatusAwaitingPickupInspection, BookingStatusCancelled},
	BookingStatusAwaitingPickupInspection: {BookingStatusAwaitingStartDate, BookingStatusCancelled},
	BookingStatusAwaitingStartDate:        {BookingStatusActive, BookingStatusCancelled},
	BookingStatusActive:                   {BookingStatusAwaitingReturnInspection},
	BookingStatusAwaitingReturnInspection: {BookingStatusPendingOwnerReview},
	BookingStatusPendingOwnerReview:       {BookingStatusCompleted, BookingStatusDisputed},
	BookingStatusDisputed:                 {BookingStatusCompleted},
}

// String implements fmt.Stringer.
func (s BookingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known BookingStatus.
func (s BookingStatus) IsValid() bool {
	return slices.Contains(validBookingStatuses, s)
}

// IsTerminal reports whether no further transition can leave this status.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	return slices.Contains(bookingStatusEdges[s], next)
}

// HoldsEquipment reports whether a booking in this status blocks the
// equipment for its date range.
func (s BookingStatus) HoldsEquipment() bool {
	return slices.Contains(EquipmentHoldingStatuses, s)
}

// EquipmentHoldingStatuses lists the statuses considered by overlap checks.
var EquipmentHoldingStatuses = []BookingStatus{
	BookingStatusPaid,
	BookingStatusAwaitingPickupInspection,
	BookingStatusAwaitingStartDate,
	BookingStatusActive,
	BookingStatusAwaitingReturnInspection,
	BookingStatusPendingOwnerReview,
	BookingStatusDisputed,
}

// ParseBookingStatus converts raw input into a BookingStatus.
func ParseBookingStatus(value string) (BookingStatus, error) {
	return parseEnum(validBookingStatuses, value, "booking status")
}
