package enums

import (
	"fmt"
	"slices"
)

// InspectionType distinguishes the handover checks at pickup and return.
type InspectionType string

const (
	InspectionTypePickup InspectionType = "pickup"
	InspectionTypeReturn InspectionType = "return"
)

func (i InspectionType) String() string {
	return string(i)
}

func (i InspectionType) IsValid() bool {
	return i == InspectionTypePickup || i == InspectionTypeReturn
}

// ParseInspectionType converts raw input into an InspectionType.
func ParseInspectionType(value string) (InspectionType, error) {
	switch InspectionType(value) {
	case InspectionTypePickup, InspectionTypeReturn:
		return InspectionType(value), nil
	default:
		return "", fmt.Errorf("invalid inspection type %q", value)
	}
}

// DamageClaimStatus maps to the damage_claim_status enum in Postgres.
type DamageClaimStatus string

const (
	DamageClaimStatusPending   DamageClaimStatus = "pending"
	DamageClaimStatusAccepted  DamageClaimStatus = "accepted"
	DamageClaimStatusDisputed  DamageClaimStatus = "disputed"
	DamageClaimStatusResolved  DamageClaimStatus = "resolved"
	DamageClaimStatusEscalated DamageClaimStatus = "escalated"
)

var validDamageClaimStatuses = []DamageClaimStatus{
	DamageClaimStatusPending,
	DamageClaimStatusAccepted,
	DamageClaimStatusDisputed,
	DamageClaimStatusResolved,
	DamageClaimStatusEscalated,
}

func (d DamageClaimStatus) IsValid() bool {
	return slices.Contains(validDamageClaimStatuses, d)
}

// RentalEventType labels rows in the append-only rental_events log.
type RentalEventType string

const (
	RentalEventStarted         RentalEventType = "rental_started"
	RentalEventReturnInitiated RentalEventType = "return_initiated"
	RentalEventDamageReported  RentalEventType = "damage_reported"
)
