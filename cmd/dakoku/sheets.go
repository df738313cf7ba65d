package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kosuda/dakoku/internal/ui"
)

var sheetsCmd = &cobra.Command{
	Use:   "sheets",
	Short: "Spreadsheet connection tools",
}

func init() {
	sheetsCmd.AddCommand(sheetsTestCmd)
	sheetsCmd.AddCommand(sheetsInitCmd)
}

var sheetsTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Test the spreadsheet connection",
	Long: `Authenticate with the saved service-account credential and read the
spreadsheet metadata. Reports whether the credential pair works.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		client, err := sheetsFromSettings(ctx, st)
		if err != nil {
			return fmt.Errorf("credential is invalid: %w", err)
		}
		if client == nil {
			fmt.Printf("%s Spreadsheet is not configured\n", ui.RenderMuted("•"))
			return nil
		}

		fmt.Printf("%s Testing connection...\n", ui.RenderAccent("🔄"))
		if client.TestConnection(ctx) {
			fmt.Printf("%s Connection OK\n", ui.RenderPass("✓"))
		} else {
			fmt.Printf("%s Connection rejected (check the key and spreadsheet sharing)\n", ui.RenderFail("✗"))
		}
		return nil
	},
}

var sheetsInitCmd = &cobra.Command{
	Use:   "init <department-id>",
	Short: "Create a department's sheet tab with headers and employee rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		dept, err := st.DepartmentByID(ctx, args[0])
		if err != nil {
			return fmt.Errorf("unknown department %q", args[0])
		}

		client, err := sheetsFromSettings(ctx, st)
		if err != nil {
			return fmt.Errorf("credential is invalid: %w", err)
		}
		if client == nil {
			return fmt.Errorf("spreadsheet is not configured")
		}

		employees, err := st.EmployeesByDepartment(ctx, dept.ID)
		if err != nil {
			return err
		}
		names := make([]string, len(employees))
		for i, e := range employees {
			names[i] = e.Name
		}

		if err := client.EnsureDepartmentSheet(ctx, dept.Name, names, time.Now()); err != nil {
			return fmt.Errorf("failed to initialize sheet: %w", err)
		}

		fmt.Printf("%s Sheet %q ready (%d employees)\n",
			ui.RenderPass("✓"), dept.Name, len(names))
		return nil
	},
}
