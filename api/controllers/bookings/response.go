package bookings

import (
	"encoding/json"

	"github.com/angelmondragon/rentalhub-backend/api/controllers/bookings/dto"
	"github.com/angelmondragon/rentalhub-backend/api/validators"
	internalbookings "github.com/angelmondragon/rentalhub-backend/internal/bookings"
	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
)

func newBooking(b *models.BookingRequest) dto.Booking {
	return dto.Booking{
		ID:                  b.ID,
		EquipmentID:         b.EquipmentID,
		RenterID:            b.RenterID,
		OwnerID:             b.OwnerID,
		StartDate:           b.Start().Format(validators.DateLayout),
		EndDate:             b.End().Format(validators.DateLayout),
		Status:              b.Status,
		TotalAmount:         b.TotalAmount,
		InsuranceType:       b.InsuranceType,
		InsuranceCost:       b.InsuranceCost,
		DamageDepositAmount: b.DamageDepositAmount,
		ActivatedAt:         b.ActivatedAt,
		CompletedAt:         b.CompletedAt,
		CancelledAt:         b.CancelledAt,
		CancelledBy:         b.CancelledBy,
		CancellationReason:  b.CancellationReason,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
}

func newTransition(result internalbookings.Result) dto.TransitionResponse {
	return dto.TransitionResponse{
		Booking:    newBooking(result.Booking),
		Transition: result.Transition,
		Outcome:    result.Outcome,
		From:       result.From,
		To:         result.To,
	}
}

func newBookingList(result *internalbookings.ListResult) dto.BookingList {
	items := make([]dto.Booking, 0, len(result.Items))
	for i := range result.Items {
		items = append(items, newBooking(&result.Items[i]))
	}
	return dto.BookingList{Items: items, Cursor: result.Cursor}
}

func newRentalEvents(rows []models.RentalEvent) []dto.RentalEvent {
	events := make([]dto.RentalEvent, 0, len(rows))
	for _, row := range rows {
		event := dto.RentalEvent{
			ID:        row.ID,
			EventType: row.EventType,
			ActorID:   row.ActorID,
			CreatedAt: row.CreatedAt,
		}
		if len(row.Metadata) > 0 {
			_ = json.Unmarshal(row.Metadata, &event.Metadata)
		}
		events = append(events, event)
	}
	return events
}

func newInspection(row *models.Inspection) dto.Inspection {
	photos := []string(row.PhotoURLs)
	if photos == nil {
		photos = []string{}
	}
	return dto.Inspection{
		ID:               row.ID,
		BookingID:        row.BookingID,
		InspectionType:   row.InspectionType,
		VerifiedByRenter: row.VerifiedByRenter,
		VerifiedByOwner:  row.VerifiedByOwner,
		Notes:            row.Notes,
		PhotoURLs:        photos,
		RenterVerifiedAt: row.RenterVerifiedAt,
		OwnerVerifiedAt:  row.OwnerVerifiedAt,
		CreatedAt:        row.CreatedAt,
	}
}

func newInspections(rows []models.Inspection) []dto.Inspection {
	out := make([]dto.Inspection, 0, len(rows))
	for i := range rows {
		out = append(out, newInspection(&rows[i]))
	}
	return out
}
