package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kosuda/dakoku/internal/store"
	"github.com/kosuda/dakoku/internal/syncer"
	"github.com/kosuda/dakoku/internal/ui"
)

var punchUpdate bool

func init() {
	punchCmd.Flags().BoolVar(&punchUpdate, "update", false,
		"when today already has a punch of this type, move its time instead of refusing")
}

var punchCmd = &cobra.Command{
	Use:   "punch <department-id> <employee-name> <type>",
	Short: "Record an attendance punch",
	Long: `Record a punch for an employee and sync it to the spreadsheet.

Type is one of: checkin, checkout, out, return.

The punch is saved locally first. The spreadsheet write then runs in the
foreground with bounded retries; a failure leaves the record unsynced for
a later catch-up (see "dakoku sync").`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		departmentID, employeeName, typ := args[0], args[1], args[2]
		if !store.ValidPunchType(typ) {
			return fmt.Errorf("unknown punch type %q (want checkin, checkout, out or return)", typ)
		}

		ctx, cancel := cmdContext()
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		dept, err := st.DepartmentByID(ctx, departmentID)
		if err != nil {
			return fmt.Errorf("unknown department %q", departmentID)
		}

		employees, err := st.EmployeesByDepartment(ctx, departmentID)
		if err != nil {
			return err
		}
		var emp *store.Employee
		for i := range employees {
			if employees[i].Name == employeeName {
				emp = &employees[i]
				break
			}
		}
		if emp == nil {
			return fmt.Errorf("no employee %q in department %s", employeeName, dept.Name)
		}

		now := time.Now()
		date := store.DateKey(now)

		existing, err := st.FindDuplicateRecord(ctx, dept.ID, emp.ID, typ, date)
		if err != nil {
			return err
		}

		var rec *store.AttendanceRecord
		switch {
		case existing != nil && !punchUpdate:
			fmt.Printf("%s %s already punched %s today at %s\n",
				ui.RenderWarn("!"), emp.Name, store.PunchTypeNames[typ],
				existing.Timestamp.Local().Format("15:04"))
			fmt.Println("   Re-run with --update to move the time.")
			return nil

		case existing != nil:
			if err := st.UpdateAttendanceRecord(ctx, existing.ID, now); err != nil {
				return fmt.Errorf("local save failed: %w", err)
			}
			updated := *existing
			updated.Timestamp = now
			rec = &updated
			fmt.Printf("%s Updated %s for %s to %s\n",
				ui.RenderPass("✓"), rec.TypeName, emp.Name, now.Format("15:04"))

		default:
			rec, err = st.AddAttendanceRecord(ctx, store.AttendanceRecord{
				DepartmentID:   dept.ID,
				DepartmentName: dept.Name,
				EmployeeID:     emp.ID,
				EmployeeName:   emp.Name,
				Type:           typ,
				Timestamp:      now,
				Date:           date,
			})
			if err != nil {
				return fmt.Errorf("local save failed: %w", err)
			}
			fmt.Printf("%s Recorded %s for %s at %s\n",
				ui.RenderPass("✓"), rec.TypeName, emp.Name, now.Format("15:04"))
		}

		client, err := sheetsFromSettings(ctx, st)
		if err != nil {
			fmt.Printf("%s Spreadsheet sync skipped: %v\n", ui.RenderWarn("!"), err)
			return nil
		}
		if client == nil {
			fmt.Printf("%s Local save only (spreadsheet not configured)\n", ui.RenderMuted("•"))
			return nil
		}

		sy := syncer.New(st, syncer.DefaultPolicy(), newLogger("[sync] "))
		defer sy.Stop()
		sy.SetClient(client)

		fmt.Printf("%s Syncing to spreadsheet...\n", ui.RenderAccent("🔄"))
		if err := sy.SyncNow(ctx, *rec); err != nil {
			fmt.Printf("%s Sync failed (record kept locally): %v\n", ui.RenderFail("✗"), err)
			return nil
		}
		fmt.Printf("%s Synced\n", ui.RenderPass("✓"))
		return nil
	},
}
