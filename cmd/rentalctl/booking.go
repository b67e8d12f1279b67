package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/rentalhub-backend/internal/bookings"
	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
)

const flagWithEvents = "events"

func newBookingCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "booking",
		Short: "Inspect bookings",
	}
	cmd.AddCommand(newBookingShowCommand(rt))
	return cmd
}

func newBookingShowCommand(rt *runtime) *cobra.Command {
	var withEvents bool
	cmd := &cobra.Command{
		Use:   "show <booking-id>",
		Short: "Print a booking and, optionally, its audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid booking id %q", args[0])
			}
			ctx := cmd.Context()
			services, err := rt.services(ctx)
			if err != nil {
				return err
			}
			booking, err := services.Bookings.Get(ctx, id, bookings.SystemActor)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := printBooking(out, booking); err != nil {
				return err
			}
			if !withEvents {
				return nil
			}
			events, err := services.Bookings.Events(ctx, id, bookings.SystemActor)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			return printEvents(out, events)
		},
	}
	cmd.Flags().BoolVar(&withEvents, flagWithEvents, false, "include the rental event log")
	return cmd
}

func printBooking(out io.Writer, b *models.BookingRequest) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "id\t%s\n", b.ID)
	fmt.Fprintf(w, "status\t%s\n", b.Status)
	fmt.Fprintf(w, "equipment\t%s\n", b.EquipmentID)
	fmt.Fprintf(w, "renter\t%s\n", b.RenterID)
	fmt.Fprintf(w, "owner\t%s\n", b.OwnerID)
	fmt.Fprintf(w, "dates\t%s .. %s\n", b.Start().Format(time.DateOnly), b.End().Format(time.DateOnly))
	fmt.Fprintf(w, "total\t%s\n", b.TotalAmount.StringFixed(2))
	fmt.Fprintf(w, "insurance\t%s (%s)\n", b.InsuranceType, b.InsuranceCost.StringFixed(2))
	fmt.Fprintf(w, "deposit\t%s\n", b.DamageDepositAmount.StringFixed(2))
	if b.ActivatedAt != nil {
		fmt.Fprintf(w, "activated\t%s\n", b.ActivatedAt.UTC().Format(time.RFC3339))
	}
	if b.CompletedAt != nil {
		fmt.Fprintf(w, "completed\t%s\n", b.CompletedAt.UTC().Format(time.RFC3339))
	}
	if b.CancelledAt != nil {
		reason := ""
		if b.CancellationReason != nil {
			reason = *b.CancellationReason
		}
		fmt.Fprintf(w, "cancelled\t%s %s\n", b.CancelledAt.UTC().Format(time.RFC3339), reason)
	}
	return w.Flush()
}

func printEvents(out io.Writer, events []models.RentalEvent) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tEVENT\tACTOR\tMETADATA")
	for _, event := range events {
		actor := "system"
		if event.ActorID != nil {
			actor = event.ActorID.String()
		}
		metadata := string(event.Metadata)
		if metadata == "" {
			metadata = "{}"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", event.CreatedAt.UTC().Format(time.RFC3339), event.EventType, actor, metadata)
	}
	return w.Flush()
}
