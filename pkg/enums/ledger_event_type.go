package enums

import "slices"

// LedgerEventType maps to the ledger_event_type_enum enum in Postgres.
type LedgerEventType string

const (
	LedgerEventTypePaymentCaptured LedgerEventType = "payment_captured"
	LedgerEventTypePaymentFailed   LedgerEventType = "payment_failed"
	LedgerEventTypeEscrowReleased  LedgerEventType = "escrow_released"
	LedgerEventTypeDepositClaimed  LedgerEventType = "deposit_claimed"
	LedgerEventTypeRefund          LedgerEventType = "refund"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerEventTypePaymentCaptured,
	LedgerEventTypePaymentFailed,
	LedgerEventTypeEscrowReleased,
	LedgerEventTypeDepositClaimed,
	LedgerEventTypeRefund,
}

// IsValid reports whether the value matches the canonical ledger event enum.
func (t LedgerEventType) IsValid() bool {
	return slices.Contains(validLedgerEventTypes, t)
}

// ParseLedgerEventType converts raw input into LedgerEventType.
func ParseLedgerEventType(value string) (LedgerEventType, error) {
	return parseEnum(validLedgerEventTypes, value, "ledger event type")
}
