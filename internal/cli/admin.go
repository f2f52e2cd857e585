package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/oilsync/internal/syncer"
	"github.com/mesh-intelligence/oilsync/pkg/oilsync"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what is waiting to sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(func(eng *oilsync.Engine) error {
				st, err := eng.Status(a.cfg.OwnerID)
				if err != nil {
					return err
				}
				return a.print(cmd, st, func(w io.Writer) { printStatus(w, st) })
			})
		},
	}
}

func printStatus(w io.Writer, st syncer.Status) {
	fmt.Fprintf(w, "online:          %t\n", st.Online)
	fmt.Fprintf(w, "forms:           pending=%d syncing=%d failed=%d synced=%d\n",
		st.Forms[types.StatusPending], st.Forms[types.StatusSyncing],
		st.Forms[types.StatusFailed], st.Forms[types.StatusSynced])
	fmt.Fprintf(w, "dirty payments:  %d\n", st.DirtyPayments)
	if st.BillsLastSyncAt != nil {
		fmt.Fprintf(w, "bills synced at: %s\n", st.BillsLastSyncAt.Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "bills synced at: never")
	}
}

func newPurgeCmd(a *app) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete synced forms older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return userErrorf("--older-than must not be negative")
			}
			return a.withEngine(func(eng *oilsync.Engine) error {
				n, err := eng.PurgeSynced(a.cfg.OwnerID, olderThan)
				if err != nil {
					return err
				}
				return a.print(cmd, map[string]int64{"purged": n}, func(w io.Writer) {
					fmt.Fprintf(w, "purged %d synced forms\n", n)
				})
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "minimum age of purged forms")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the cached screens for the owner; queued writes are kept",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(func(eng *oilsync.Engine) error {
				if err := eng.Logout(a.cfg.OwnerID); err != nil {
					return err
				}
				return a.print(cmd, map[string]bool{"cleared": true}, func(w io.Writer) {
					fmt.Fprintln(w, "caches cleared")
				})
			})
		},
	}
}
