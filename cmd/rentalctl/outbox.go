package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox"
)

const (
	flagDLQLimit  = "limit"
	flagDLQType   = "type"
	flagDLQReason = "reason"
)

func newOutboxCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and repair the event outbox",
	}
	dlq := &cobra.Command{
		Use:   "dlq",
		Short: "Dead-lettered outbox events",
	}
	dlq.AddCommand(newDLQListCommand(rt), newDLQShowCommand(rt), newDLQRequeueCommand(rt))
	cmd.AddCommand(dlq)
	return cmd
}

func newDLQListCommand(rt *runtime) *cobra.Command {
	var (
		limit     int
		eventType string
		reason    string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := outbox.DLQFilter{Limit: limit}
			if eventType != "" {
				parsed, err := enums.ParseOutboxEventType(eventType)
				if err != nil {
					return err
				}
				filter.EventType = parsed
			}
			if reason != "" {
				parsed, err := enums.ParseOutboxDLQErrorReason(reason)
				if err != nil {
					return err
				}
				filter.Reason = parsed
			}
			repo, err := dlqRepository(cmd, rt)
			if err != nil {
				return err
			}
			rows, err := repo.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printDLQ(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().IntVar(&limit, flagDLQLimit, 25, "maximum rows to print")
	cmd.Flags().StringVar(&eventType, flagDLQType, "", "only this event type")
	cmd.Flags().StringVar(&reason, flagDLQReason, "", "only this failure reason (max_attempts, non_retryable)")
	return cmd
}

func newDLQShowCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show <event-id>",
		Short: "Print one dead-lettered event with its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid event id %q", args[0])
			}
			repo, err := dlqRepository(cmd, rt)
			if err != nil {
				return err
			}
			entry, err := repo.FindByEventID(cmd.Context(), eventID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := printDLQ(out, []models.OutboxDLQ{*entry}); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%s\n", entry.Payload)
			return nil
		},
	}
}

func newDLQRequeueCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <event-id>",
		Short: "Hand a dead-lettered event back to the outbox publisher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid event id %q", args[0])
			}
			repo, err := dlqRepository(cmd, rt)
			if err != nil {
				return err
			}
			if err := repo.Requeue(cmd.Context(), eventID); err != nil {
				return err
			}
			rt.logger().Info(cmd.Context(), "outbox event requeued")
			fmt.Fprintf(cmd.OutOrStdout(), "event %s requeued\n", eventID)
			return nil
		},
	}
}

func dlqRepository(cmd *cobra.Command, rt *runtime) (*outbox.DLQRepository, error) {
	client, err := rt.database(cmd.Context())
	if err != nil {
		return nil, err
	}
	return outbox.NewDLQRepository(client.DB()), nil
}

func printDLQ(out io.Writer, rows []models.OutboxDLQ) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FAILED AT\tEVENT\tTYPE\tREASON\tATTEMPTS\tERROR")
	for _, row := range rows {
		msg := ""
		if row.ErrorMessage != nil {
			msg = *row.ErrorMessage
			if len(msg) > 80 {
				msg = msg[:77] + "..."
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			row.FailedAt.UTC().Format(time.RFC3339), row.EventID, row.EventType, row.ErrorReason, row.AttemptCount, msg)
	}
	return w.Flush()
}
