package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kosuda/dakoku/internal/ui"
)

var employeeCmd = &cobra.Command{
	Use:   "employee",
	Short: "Manage employees",
}

func init() {
	employeeCmd.AddCommand(employeeAddCmd)
	employeeCmd.AddCommand(employeeListCmd)
	employeeCmd.AddCommand(employeeRemoveCmd)
}

var employeeAddCmd = &cobra.Command{
	Use:   "add <department-id> <name>",
	Short: "Add an employee to a department",
	Args:  cobra.ExactArgs(2),
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

		emp, err := st.AddEmployee(ctx, args[1], dept.ID)
		if err != nil {
			return err
		}

		fmt.Printf("%s Added %s to %s (id %s)\n",
			ui.RenderPass("✓"), emp.Name, dept.Name, emp.ID)
		return nil
	},
}

var employeeListCmd = &cobra.Command{
	Use:   "list [department-id]",
	Short: "List departments, or one department's employees",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if len(args) == 0 {
			departments, err := st.Departments(ctx)
			if err != nil {
				return err
			}
			for _, d := range departments {
				fmt.Printf("%-16s %s\n", d.ID, d.Name)
			}
			return nil
		}

		employees, err := st.EmployeesByDepartment(ctx, args[0])
		if err != nil {
			return err
		}
		if len(employees) == 0 {
			fmt.Printf("%s No employees in %s\n", ui.RenderMuted("•"), args[0])
			return nil
		}
		for _, e := range employees {
			fmt.Printf("%-16s %s\n", e.ID, e.Name)
		}
		return nil
	},
}

var employeeRemoveCmd = &cobra.Command{
	Use:   "remove <employee-id>",
	Short: "Remove an employee (attendance history is kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteEmployee(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Removed employee %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}
