package bookings

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rentalhub-backend/api/controllers/bookings/dto"
	"github.com/angelmondragon/rentalhub-backend/api/validators"
	internalbookings "github.com/angelmondragon/rentalhub-backend/internal/bookings"
	"github.com/angelmondragon/rentalhub-backend/internal/inspections"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
)

const (
	maxTextLen = 4000
	maxURLLen  = 2048
)

func toRequestInput(payload dto.RequestBookingRequest) (internalbookings.RequestInput, error) {
	start, err := time.Parse(validators.DateLayout, payload.StartDate)
	if err != nil {
		return internalbookings.RequestInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid start_date")
	}
	end, err := time.Parse(validators.DateLayout, payload.EndDate)
	if err != nil {
		return internalbookings.RequestInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid end_date")
	}
	insurance := enums.InsuranceNone
	if raw := strings.TrimSpace(payload.InsuranceType); raw != "" {
		insurance, err = enums.ParseInsuranceType(raw)
		if err != nil {
			return internalbookings.RequestInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid insurance_type")
		}
	}
	return internalbookings.RequestInput{
		EquipmentID: payload.EquipmentID,
		Start:       start,
		End:         end,
		Insurance:   insurance,
	}, nil
}

func toSubmitInput(bookingID, actorID uuid.UUID, payload dto.SubmitInspectionRequest) (inspections.SubmitInput, error) {
	kind, err := enums.ParseInspectionType(payload.InspectionType)
	if err != nil {
		return inspections.SubmitInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid inspection_type")
	}
	return inspections.SubmitInput{
		BookingID: bookingID,
		ActorID:   actorID,
		Type:      kind,
		Notes:     validators.SanitizeString(payload.Notes, maxTextLen),
		PhotoURLs: validators.SanitizeList(payload.PhotoURLs, maxURLLen),
	}, nil
}

func toDamageReport(payload dto.DamageReportRequest) (internalbookings.DamageReportPayload, error) {
	report := internalbookings.DamageReportPayload{
		Description: validators.SanitizeString(payload.Description, maxTextLen),
		PhotoURLs:   validators.SanitizeList(payload.PhotoURLs, maxURLLen),
	}
	if raw := strings.TrimSpace(payload.EstimatedCost); raw != "" {
		cost, err := decimal.NewFromString(raw)
		if err != nil {
			return report, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid estimated_cost")
		}
		report.EstimatedCost = &cost
	}
	return report, nil
}

func toDisputeResolution(payload dto.ResolveDisputeRequest) (internalbookings.DisputeResolutionPayload, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(payload.DeductionAmount))
	if err != nil {
		return internalbookings.DisputeResolutionPayload{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid deduction_amount")
	}
	return internalbookings.DisputeResolutionPayload{
		DeductionAmount: amount,
		Outcome:         internalbookings.DisputeOutcome(payload.Outcome),
		Notes:           validators.SanitizeString(payload.Notes, maxTextLen),
	}, nil
}

func parseClientTotal(raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	total, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid client_total")
	}
	return &total, nil
}
