package bookings

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox"
)

// ActorRef identifies who is driving a transition. System actors carry a
// nil user id.
type ActorRef struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// SystemActor is used by webhooks and scheduled jobs.
var SystemActor = ActorRef{Role: enums.UserRoleSystem}

func (a ActorRef) isSystem() bool { return a.Role == enums.UserRoleSystem }
func (a ActorRef) isAdmin() bool  { return a.Role == enums.UserRoleAdmin }

func (a ActorRef) outboxRef() *outbox.ActorRef {
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}

func (a ActorRef) idPtr() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

// DamageReportPayload is the owner's account of damage found at return.
type DamageReportPayload struct {
	Description   string
	EstimatedCost *decimal.Decimal
	PhotoURLs     []string
}

func (p DamageReportPayload) validate() error {
	if strings.TrimSpace(p.Description) == "" {
		return pkgerrors.New(pkgerrors.CodePrecondition, "damage description is required").
			WithDetails(map[string]any{"requirement": "description"})
	}
	if p.EstimatedCost != nil && p.EstimatedCost.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "estimated cost cannot be negative")
	}
	return nil
}

// DisputeOutcome records how an admin settled a damage claim.
type DisputeOutcome string

const (
	DisputeOutcomeOwnerFavored  DisputeOutcome = "owner_favored"
	DisputeOutcomeRenterFavored DisputeOutcome = "renter_favored"
	DisputeOutcomeSplit         DisputeOutcome = "split"
)

// DisputeResolutionPayload closes a dispute. A positive deduction is taken
// from the renter's deposit.
type DisputeResolutionPayload struct {
	DeductionAmount decimal.Decimal
	Outcome         DisputeOutcome
	Notes           string
}

func (p DisputeResolutionPayload) validate() error {
	if p.DeductionAmount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "deduction amount cannot be negative")
	}
	switch p.Outcome {
	case DisputeOutcomeOwnerFavored, DisputeOutcomeRenterFavored, DisputeOutcomeSplit:
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid dispute outcome")
	}
}

// CancelPayload carries the optional reason a party cancelled.
type CancelPayload struct {
	Reason string
}

// RequestInput is a renter's booking request for a piece of equipment.
type RequestInput struct {
	EquipmentID uuid.UUID
	Start       time.Time
	End         time.Time
	Insurance   enums.InsuranceType
}
