package enums

import "testing"

func TestBookingStatusTerminalStatesHaveNoEdges(t *testing.T) {
	for _, status := range validBookingStatuses {
		if !status.IsTerminal() {
			continue
		}
		for _, next := range validBookingStatuses {
			if status.CanTransitionTo(next) {
				t.Fatalf("terminal %s must not reach %s", status, next)
			}
		}
	}
}

func TestBookingStatusNoEdgeBackToPaymentStates(t *testing.T) {
	for _, status := range validBookingStatuses {
		if status.CanTransitionTo(BookingStatusPending) || status.CanTransitionTo(BookingStatusPaid) {
			t.Fatalf("%s must not move back to a pre-payment state", status)
		}
	}
}

func TestBookingStatusCancelOnlyBeforeRentalStarts(t *testing.T) {
	cancellable := map[BookingStatus]bool{
		BookingStatusPending:                  true,
		BookingStatusPaid:                     true,
		BookingStatusAwaitingPickupInspection: true,
		BookingStatusAwaitingStartDate:        true,
	}
	for _, status := range validBookingStatuses {
		if got := status.CanTransitionTo(BookingStatusCancelled); got != cancellable[status] {
			t.Fatalf("cancel from %s: expected %v got %v", status, cancellable[status], got)
		}
	}
}

func TestBookingStatusHoldsEquipment(t *testing.T) {
	if BookingStatusPending.HoldsEquipment() {
		t.Fatal("pending bookings must not hold equipment")
	}
	if BookingStatusCancelled.HoldsEquipment() || BookingStatusCompleted.HoldsEquipment() {
		t.Fatal("terminal bookings must not hold equipment")
	}
	if !BookingStatusDisputed.HoldsEquipment() {
		t.Fatal("disputed bookings hold equipment")
	}
}

func TestParseBookingStatus(t *testing.T) {
	if _, err := ParseBookingStatus("awaiting_start_date"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseBookingStatus("confirmed"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}
