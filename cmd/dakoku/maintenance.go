package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kosuda/dakoku/internal/store"
	"github.com/kosuda/dakoku/internal/ui"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete attendance records older than the retention window",
	Long: fmt.Sprintf(`Delete attendance history older than %d months and compact the
database. Department and employee data are never touched.

The same purge runs automatically on the monthly schedule; this command
is the unconditional operator trigger.`, store.RetentionWindow),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.ManualCleanup(ctx, time.Now()); err != nil {
			return err
		}
		fmt.Printf("%s Cleanup complete\n", ui.RenderPass("✓"))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats(ctx)
		if err != nil {
			return err
		}
		unsynced, err := st.UnsyncedAttendanceRecords(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Employees:          %d\n", stats.TotalEmployees)
		fmt.Printf("Attendance records: %d\n", stats.TotalAttendanceRecords)
		fmt.Printf("Unsynced records:   %d\n", len(unsynced))
		if stats.OldestRecord != "" {
			fmt.Printf("Oldest record:      %s\n", stats.OldestRecord)
			fmt.Printf("Newest record:      %s\n", stats.NewestRecord)
		}
		fmt.Printf("Database:           %s\n", ui.RenderMuted(st.Path()))
		return nil
	},
}
