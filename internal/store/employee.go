package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// AddEmployee creates an employee in the given department and returns the
// persisted entity with its generated ID.
func (s *Store) AddEmployee(ctx context.Context, name, departmentID string) (*Employee, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("employee name is required")
	}
	if departmentID == "" {
		return nil, fmt.Errorf("department id is required")
	}

	id := s.nextID()
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO employees (id, name, department_id) VALUES (?, ?, ?)`,
		id, name, departmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert employee: %w", err)
	}

	return &Employee{ID: id, Name: name, DepartmentID: departmentID}, nil
}

// EmployeesByDepartment returns a department's employees ordered by name.
func (s *Store) EmployeesByDepartment(ctx context.Context, departmentID string) ([]Employee, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, department_id FROM employees WHERE department_id = ? ORDER BY name`,
		departmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []Employee
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.DepartmentID); err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating employees: %w", err)
	}

	return employees, nil
}

// EmployeeByID retrieves a single employee.
// Returns ErrNotFound if no employee has the given ID.
func (s *Store) EmployeeByID(ctx context.Context, id string) (*Employee, error) {
	var e Employee
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, name, department_id FROM employees WHERE id = ?`, id).
		Scan(&e.ID, &e.Name, &e.DepartmentID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query employee %s: %w", id, err)
	}
	return &e, nil
}

// DeleteEmployee removes an employee. Historical attendance records are
// intentionally left in place; they carry their own name columns.
// Returns nil if the employee doesn't exist (idempotent).
func (s *Store) DeleteEmployee(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM employees WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete employee %s: %w", id, err)
	}
	return nil
}
