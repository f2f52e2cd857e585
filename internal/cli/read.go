package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/oilsync/internal/syncer"
	"github.com/mesh-intelligence/oilsync/pkg/oilsync"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// readCmd builds a command that reads one screen through the cache.
func readCmd[V any](a *app, use, short string, get func(eng *oilsync.Engine, ctx context.Context, ro syncer.ReadOptions) (V, error), text func(w io.Writer, v V)) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(func(eng *oilsync.Engine) error {
				v, err := get(eng, cmd.Context(), a.readOptions(refresh))
				if err != nil {
					return err
				}
				return a.print(cmd, v, func(w io.Writer) { text(w, v) })
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the cache age and fetch from the API")
	return cmd
}

func (a *app) readOptions(force bool) syncer.ReadOptions {
	return syncer.ReadOptions{
		Token:   a.cfg.Token,
		OwnerID: a.cfg.OwnerID,
		Force:   force,
		MaxAge:  a.cfg.CacheMaxAge,
	}
}

func newBillsCmd(a *app) *cobra.Command {
	return readCmd(a, "bills", "List vendor bills",
		func(eng *oilsync.Engine, ctx context.Context, ro syncer.ReadOptions) ([]types.SupplierDueItem, error) {
			return eng.VendorBills(ctx, ro)
		}, printBills)
}

func printBills(w io.Writer, bills []types.SupplierDueItem) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SUPPLIER\tLOT\tOIL\tTYPE\tCOST\tPAID\tDUE\tLOCAL")
	for _, b := range bills {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%.2f\t%.2f\t%s\n",
			b.SupplierName, fmtID(b.LotID), fmtID(b.OilID), b.OilType,
			b.OverAllCost, b.TotalPaid, b.AmountDue, fmtID(b.LocalOilFormID))
	}
	tw.Flush()
}

func newPaymentsCmd(a *app) *cobra.Command {
	return readCmd(a, "payments", "List vendor payments",
		func(eng *oilsync.Engine, ctx context.Context, ro syncer.ReadOptions) ([]types.VendorPaymentWithContext, error) {
			return eng.VendorPayments(ctx, ro)
		}, printPayments)
}

func printPayments(w io.Writer, rows []types.VendorPaymentWithContext) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tSUPPLIER\tAMOUNT\tMETHOD\tOIL\tLOT\tQUEUED")
	for _, r := range rows {
		p := r.Payment
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%s\t%s\t%s\t%s\n",
			p.ID, p.PaymentDate, p.SupplierName, p.Amount, p.PaymentMethod,
			fmtID(p.OilID), fmtID(p.LotID), fmtID(r.LocalQueueID))
	}
	tw.Flush()
}

func newSummaryCmd(a *app) *cobra.Command {
	return readCmd(a, "summary", "Show the oil summary",
		func(eng *oilsync.Engine, ctx context.Context, ro syncer.ReadOptions) (types.OilSummary, error) {
			return eng.OilSummary(ctx, ro)
		},
		func(w io.Writer, s types.OilSummary) {
			fmt.Fprintf(w, "lots:        %d\n", s.TotalLots)
			fmt.Fprintf(w, "oils:        %d\n", s.TotalOils)
			fmt.Fprintf(w, "liters:      %.2f (diesel %.2f, petrol %.2f)\n", s.TotalLiters, s.DieselLiters, s.PetrolLiters)
			fmt.Fprintf(w, "in stock:    %.2f\n", s.InStockLiters)
			fmt.Fprintf(w, "landed cost: %.2f\n", s.TotalLandedCost)
			fmt.Fprintf(w, "amount due:  %.2f\n", s.TotalAmountDue)
		})
}

func newWakaaladCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wakaalad",
		Short: "Show agent stock screens",
	}
	cmd.AddCommand(
		readCmd(a, "stats", "Show agent totals",
			func(eng *oilsync.Engine, ctx context.Context, ro syncer.ReadOptions) (types.WakaaladStats, error) {
				return eng.WakaaladStats(ctx, ro)
			},
			func(w io.Writer, s types.WakaaladStats) {
				fmt.Fprintf(w, "agents:      %d (%d active)\n", s.TotalWakaalads, s.ActiveWakaalads)
				fmt.Fprintf(w, "allocated:   %.2f\n", s.AllocatedLiters)
				fmt.Fprintf(w, "sold:        %.2f\n", s.SoldLiters)
				fmt.Fprintf(w, "returned:    %.2f\n", s.ReturnedLiters)
				fmt.Fprintf(w, "outstanding: %.2f liters, %.2f receivable\n", s.OutstandingLiters, s.OutstandingReceivable)
			}),
		readCmd(a, "movements", "List agent stock movements",
			func(eng *oilsync.Engine, ctx context.Context, ro syncer.ReadOptions) ([]types.WakaaladMovement, error) {
				return eng.WakaaladMovements(ctx, ro)
			}, printMovements),
	)
	return cmd
}

func printMovements(w io.Writer, moves []types.WakaaladMovement) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tAGENT\tTYPE\tOIL\tLITERS")
	for _, m := range moves {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%.2f\n",
			m.ID, m.Date, m.WakaaladName, m.MovementType, m.OilType, m.Liters)
	}
	tw.Flush()
}
