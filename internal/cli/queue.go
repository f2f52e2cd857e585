package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/oilsync/internal/syncer"
	"github.com/mesh-intelligence/oilsync/pkg/oilsync"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

func newQueueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Submit or inspect queued writes",
	}
	cmd.AddCommand(newQueueFormCmd(a), newQueuePaymentCmd(a), newQueueListCmd(a))
	return cmd
}

// readPayload returns the flag value, or the file contents for @path.
func readPayload(v string) ([]byte, error) {
	if path, ok := strings.CutPrefix(v, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, userErrorf("read payload: %w", err)
		}
		return data, nil
	}
	return []byte(v), nil
}

func newQueueFormCmd(a *app) *cobra.Command {
	var (
		mode    string
		payload string
		sub     types.FormSubmission
		draft   types.SupplierDueItem
		liters  float64
	)
	cmd := &cobra.Command{
		Use:   "form",
		Short: "Create an oil, or queue it when offline",
		Long: "Create an oil from a JSON payload. Online the create is posted directly;\n" +
			"offline it is queued and a local bill is shown until it syncs.\n\n" +
			"Example:\n" +
			"  oilsync queue form --mode single --payload @oil.json --supplier Hass \\\n" +
			"    --landed-cost 900 --truck-rent 20 --depot-cost 10",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readPayload(payload)
			if err != nil {
				return err
			}
			sub.Mode = types.FormMode(mode)
			sub.Payload = body
			if cmd.Flags().Changed("liters") {
				draft.Liters = &liters
			}
			return a.withEngine(func(eng *oilsync.Engine) error {
				res, err := eng.SubmitOilForm(cmd.Context(), a.identity(), sub, draft)
				if err != nil {
					return err
				}
				return a.print(cmd, res, func(w io.Writer) { printSubmit(w, res) })
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&mode, "mode", string(types.FormModeSingle), "create mode: single or both")
	f.StringVar(&payload, "payload", "", "create payload as JSON, or @file")
	f.Float64Var(&sub.TruckRent, "truck-rent", 0, "truck rent extra cost")
	f.Float64Var(&sub.DepotCost, "depot-cost", 0, "depot extra cost")
	f.Float64Var(&sub.Tax, "tax", 0, "tax extra cost")
	f.StringVar(&sub.Currency, "currency", "USD", "currency of the extra costs")
	f.StringVar(&draft.SupplierName, "supplier", "", "supplier shown on the local bill")
	f.StringVar(&draft.OilType, "oil-type", "", "oil type shown on the local bill")
	f.Float64Var(&liters, "liters", 0, "liters shown on the local bill")
	f.StringVar(&draft.TruckPlate, "truck-plate", "", "truck plate shown on the local bill")
	f.Float64Var(&draft.OilTotalLandedCost, "landed-cost", 0, "landed cost shown on the local bill")
	f.StringVar(&draft.Date, "date", "", "bill date")
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}

func printSubmit(w io.Writer, res syncer.SubmitResult) {
	if res.Queued {
		fmt.Fprintf(w, "queued form %d (%s)\n", res.Form.ID, res.Form.IdempotencyKey)
		return
	}
	fmt.Fprintf(w, "created lot %d oils %v\n", res.RemoteIDs.LotID, res.RemoteIDs.OilIDs)
}

func newQueuePaymentCmd(a *app) *cobra.Command {
	var (
		in          types.VendorPaymentInput
		oilID       int64
		lotID       int64
		localFormID int64
		extraCostID int64
	)
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Record a vendor payment, or queue it when offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			set := func(name string, v int64) *int64 {
				if !cmd.Flags().Changed(name) {
					return nil
				}
				return &v
			}
			in.OilID = set("oil-id", oilID)
			in.LotID = set("lot-id", lotID)
			in.LocalOilFormID = set("local-form", localFormID)
			in.ExtraCostID = set("extra-cost-id", extraCostID)
			if in.OilID == nil && in.LotID == nil && in.LocalOilFormID == nil {
				return userErrorf("one of --oil-id, --lot-id or --local-form is required")
			}
			return a.withEngine(func(eng *oilsync.Engine) error {
				res, err := eng.RecordVendorPayment(cmd.Context(), a.identity(), in)
				if err != nil {
					return err
				}
				return a.print(cmd, res, func(w io.Writer) {
					if res.Queued != nil {
						fmt.Fprintf(w, "queued payment %d\n", res.Queued.ID)
						return
					}
					fmt.Fprintf(w, "recorded payment %d\n", res.Payment.ID)
				})
			})
		},
	}
	f := cmd.Flags()
	f.Float64Var(&in.Amount, "amount", 0, "amount paid")
	f.Float64Var(&in.AmountDue, "amount-due", 0, "bill balance after this payment")
	f.StringVar(&in.PaymentMethod, "method", "cash", "payment method")
	f.StringVar(&in.PaymentDate, "date", "", "payment date")
	f.StringVar(&in.Note, "note", "", "free-text note")
	f.StringVar(&in.SupplierName, "supplier", "", "supplier name")
	f.StringVar(&in.TransactionType, "transaction-type", "", "transaction type")
	f.Int64Var(&oilID, "oil-id", 0, "server oil id")
	f.Int64Var(&lotID, "lot-id", 0, "server lot id")
	f.Int64Var(&localFormID, "local-form", 0, "queued form id, for an oil that has not synced")
	f.Int64Var(&extraCostID, "extra-cost-id", 0, "extra cost being paid")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

type queueListing struct {
	Forms    []types.QueuedForm          `json:"forms"`
	Payments []types.QueuedVendorPayment `json:"payments"`
}

func newQueueListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued forms and payments",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.OwnerID == 0 {
				return types.ErrOwnerRequired
			}
			return a.withEngine(func(eng *oilsync.Engine) error {
				var out queueListing
				var err error
				if out.Forms, err = eng.Forms().List(a.cfg.OwnerID); err != nil {
					return err
				}
				if out.Payments, err = eng.Payments().List(a.cfg.OwnerID); err != nil {
					return err
				}
				return a.print(cmd, out, func(w io.Writer) { printQueue(w, out) })
			})
		},
	}
}

func printQueue(w io.Writer, q queueListing) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FORM\tMODE\tSTATUS\tLOT\tERROR")
	for _, f := range q.Forms {
		lot := "-"
		if f.RemoteIDs != nil {
			lot = fmt.Sprint(f.RemoteIDs.LotID)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", f.ID, f.Mode, f.Status, lot, f.Error)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "PAYMENT\tAMOUNT\tOIL\tLOT\tLOCAL FORM\tDIRTY\tERROR")
	for _, p := range q.Payments {
		fmt.Fprintf(tw, "%d\t%.2f\t%s\t%s\t%s\t%t\t%s\n",
			p.ID, p.Amount, fmtID(p.OilID), fmtID(p.LotID), fmtID(p.LocalOilFormID), p.Dirty, p.Error)
	}
	tw.Flush()
}
