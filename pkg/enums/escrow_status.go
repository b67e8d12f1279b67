package enums

import "slices"

// EscrowStatus tracks the platform-held rental funds. It never returns to held.
type EscrowStatus string

const (
	EscrowStatusHeld     EscrowStatus = "held"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
)

var validEscrowStatuses = []EscrowStatus{
	EscrowStatusHeld,
	EscrowStatusReleased,
	EscrowStatusRefunded,
}

func (e EscrowStatus) String() string {
	return string(e)
}

func (e EscrowStatus) IsValid() bool {
	return slices.Contains(validEscrowStatuses, e)
}

// ParseEscrowStatus converts raw input into an EscrowStatus.
func ParseEscrowStatus(value string) (EscrowStatus, error) {
	return parseEnum(validEscrowStatuses, value, "escrow status")
}

// DepositStatus tracks the damage deposit held alongside escrow.
type DepositStatus string

const (
	DepositStatusHeld     DepositStatus = "held"
	DepositStatusReleased DepositStatus = "released"
	DepositStatusClaimed  DepositStatus = "claimed"
	DepositStatusRefunded DepositStatus = "refunded"
)

var validDepositStatuses = []DepositStatus{
	DepositStatusHeld,
	DepositStatusReleased,
	DepositStatusClaimed,
	DepositStatusRefunded,
}

func (d DepositStatus) String() string {
	return string(d)
}

func (d DepositStatus) IsValid() bool {
	return slices.Contains(validDepositStatuses, d)
}

// PayoutStatus tracks the owner payout once escrow is released.
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusEligible  PayoutStatus = "eligible"
	PayoutStatusPaid      PayoutStatus = "paid"
	PayoutStatusCancelled PayoutStatus = "cancelled"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusPending,
	PayoutStatusEligible,
	PayoutStatusPaid,
	PayoutStatusCancelled,
}

func (p PayoutStatus) String() string {
	return string(p)
}

func (p PayoutStatus) IsValid() bool {
	return slices.Contains(validPayoutStatuses, p)
}
