package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tournevent/fulfillment/internal/tracking"
	"github.com/tournevent/fulfillment/pkg/milestone"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

const dateLayout = "2006-01-02"

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <shipment-id>",
	Short: "Select a carrier for a shipment and send it",
	Args:  cobra.ExactArgs(1),
	RunE:  runDispatch,
}

var resendCmd = &cobra.Command{
	Use:   "resend <carrier>",
	Short: "Retry the failed shipments of a carrier",
	Args:  cobra.ExactArgs(1),
	RunE:  runResend,
}

var trackCmd = &cobra.Command{
	Use:   "track <carrier>",
	Short: "Fetch carrier events and record shipment milestones",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrack,
}

var servicePointsCmd = &cobra.Command{
	Use:   "service-points [carrier]",
	Short: "Refresh the pickup locations of one or every carrier",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runServicePoints,
}

var documentCmd = &cobra.Command{
	Use:   "document <shipment-id>",
	Short: "Fetch the label or invoice of a sent shipment",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocument,
}

var milestonesCmd = &cobra.Command{
	Use:   "milestones",
	Short: "Inspect the milestone catalog",
}

var milestonesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that every carrier code maps onto a known milestone",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := milestone.Validate(shipper.Carriers...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "milestone tables valid for %d carriers\n", len(shipper.Carriers))
		return nil
	},
}

func init() {
	dispatchCmd.Flags().String("carrier", "", "send with this carrier instead of the selected one")
	resendCmd.Flags().Bool("abort", false, "stop at the first failure")
	trackCmd.Flags().String("from", "", "first shipping day, YYYY-MM-DD (default 30 days before --to)")
	trackCmd.Flags().String("to", "", "day after the last shipping day, YYYY-MM-DD (default tomorrow)")
	trackCmd.Flags().StringSlice("tracking-number", nil, "track these numbers only")
	documentCmd.Flags().String("kind", string(shipper.DocumentShipping), "shipping or invoice")
	documentCmd.Flags().StringP("out", "o", "", `output file, "-" for stdout (default <shipment-id>-<kind>.pdf)`)

	milestonesCmd.AddCommand(milestonesValidateCmd)
	rootCmd.AddCommand(dispatchCmd, resendCmd, trackCmd, servicePointsCmd, documentCmd, milestonesCmd)
}

// withApp runs fn against a freshly wired app.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	return fn(ctx, a)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid shipment id %q", args[0])
	}
	carrier, _ := cmd.Flags().GetString("carrier")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, err := a.dispatcher.Dispatch(ctx, id, carrier)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "shipment %d (order %s) sent with %s: %s\n",
			res.ShipmentID, res.OrderCode, res.Carrier, res.TrackingNumber)
		return nil
	})
}

func runResend(cmd *cobra.Command, args []string) error {
	abort, _ := cmd.Flags().GetBool("abort")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		report, err := a.dispatcher.ResendShipments(ctx, args[0], abort)
		if report != nil {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d attempted, %d sent, %d failed\n",
				report.Carrier, report.Attempted, report.Sent, len(report.Failures))
			for _, f := range report.Failures {
				fmt.Fprintf(out, "  shipment %d: %v\n", f.ShipmentID, f.Err)
			}
		}
		return err
	})
}

func runTrack(cmd *cobra.Command, args []string) error {
	var opts tracking.PollOptions
	var err error
	if opts.From, err = dateFlag(cmd, "from"); err != nil {
		return err
	}
	if opts.To, err = dateFlag(cmd, "to"); err != nil {
		return err
	}
	opts.TrackingNumbers, _ = cmd.Flags().GetStringSlice("tracking-number")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		report, err := a.tracking.Run(ctx, args[0], opts)
		if report != nil {
			printTrackingReport(cmd.OutOrStdout(), report)
		}
		return err
	})
}

func runServicePoints(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		carriers := args
		if len(carriers) == 0 {
			carriers = a.servicePoints.Carriers()
		}
		var errs []error
		for _, carrier := range carriers {
			res, err := a.servicePoints.Update(ctx, carrier)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", carrier, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d fetched, %d stored, %d removed\n",
				res.Carrier, res.Fetched, res.Upserted, res.Removed)
		}
		return errors.Join(errs...)
	})
}

func runDocument(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid shipment id %q", args[0])
	}
	kind, _ := cmd.Flags().GetString("kind")
	out, _ := cmd.Flags().GetString("out")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		doc, err := a.dispatcher.Document(ctx, id, shipper.DocumentKind(kind))
		if err != nil {
			return err
		}
		if out == "" {
			out = fmt.Sprintf("%d-%s.pdf", id, doc.Kind)
		}
		return saveDocument(cmd.OutOrStdout(), out, doc)
	})
}

// saveDocument writes doc to path, or to w when path is "-".
func saveDocument(w io.Writer, path string, doc *shipper.Document) error {
	if path == "-" {
		_, err := w.Write(doc.Data)
		return err
	}
	if err := os.WriteFile(path, doc.Data, 0o644); err != nil {
		return fmt.Errorf("write %s document: %w", doc.Kind, err)
	}
	fmt.Fprintf(w, "%s document written to %s (%d bytes)\n", doc.Kind, path, len(doc.Data))
	return nil
}

func dateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be a YYYY-MM-DD date", name)
	}
	return t, nil
}

func printTrackingReport(w io.Writer, r *tracking.Report) {
	fmt.Fprintf(w, "%s: %d events, %d unmapped, %d shipments, %d unknown, %d milestones added\n",
		r.Carrier, r.Events, r.Unmapped, r.Shipments, r.Unknown, r.Appended)
	fmt.Fprintf(w, "  delivered shipments: %d, delivered orders: %d, failed: %d, skipped: %d\n",
		len(r.Delivered), r.OrdersDelivered, r.Failed, r.Skipped)
}
