package enums

import "slices"

// BookingTransition names an operation that moves a booking between statuses.
type BookingTransition string

const (
	TransitionCompletePayment          BookingTransition = "complete_payment"
	TransitionCompletePickupInspection BookingTransition = "complete_pickup_inspection"
	TransitionStartRental              BookingTransition = "start_rental"
	TransitionInitiateReturn           BookingTransition = "initiate_return"
	TransitionCompleteReturnInspection BookingTransition = "complete_return_inspection"
	TransitionOwnerConfirm             BookingTransition = "owner_confirm"
	TransitionOwnerReportDamage        BookingTransition = "owner_report_damage"
	TransitionResolveDispute           BookingTransition = "resolve_dispute"
	TransitionCancel                   BookingTransition = "cancel"
)

var validBookingTransitions = []BookingTransition{
	TransitionCompletePayment,
	TransitionCompletePickupInspection,
	TransitionStartRental,
	TransitionInitiateReturn,
	TransitionCompleteReturnInspection,
	TransitionOwnerConfirm,
	TransitionOwnerReportDamage,
	TransitionResolveDispute,
	TransitionCancel,
}

// String implements fmt.Stringer.
func (t BookingTransition) String() string {
	return string(t)
}

// IsValid reports whether the value is a known BookingTransition.
func (t BookingTransition) IsValid() bool {
	return slices.Contains(validBookingTransitions, t)
}

// ParseBookingTransition converts raw input into a BookingTransition.
func ParseBookingTransition(value string) (BookingTransition, error) {
	return parseEnum(validBookingTransitions, value, "booking transition")
}
