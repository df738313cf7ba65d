package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/kosuda/dakoku/internal/store"
)

// punchRequest is the body of POST /api/punch. Resolve controls the
// duplicate flow: empty gates on FindDuplicateRecord, "update" moves the
// existing record's timestamp, "keep" leaves it untouched.
type punchRequest struct {
	DepartmentID string `json:"departmentId"`
	EmployeeID   string `json:"employeeId"`
	Type         string `json:"type"`
	Resolve      string `json:"resolve,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requireStore rejects store-backed requests while the server runs degraded
// (local database unopenable at startup). The process stays up so the kiosk
// UI keeps loading; anything needing durable state reports unavailable.
func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store != nil {
		return true
	}
	writeError(w, http.StatusServiceUnavailable, "local storage unavailable")
	return false
}

// adminOnly gates mutating admin endpoints behind the shared PIN.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pin := store.DefaultAdminPassword
		if s.store != nil {
			p, err := s.store.AdminPassword(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to read admin settings")
				return
			}
			pin = p
		}
		got := r.Header.Get("X-Admin-Pin")
		if subtle.ConstantTimeCompare([]byte(got), []byte(pin)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid admin pin")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleDepartments(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	departments, err := s.store.Departments(r.Context())
	if err != nil {
		s.logger.Printf("Failed to list departments: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list departments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"departments": departments})
}

func (s *Server) handleEmployeesByDepartment(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id := r.PathValue("id")
	employees, err := s.store.EmployeesByDepartment(r.Context(), id)
	if err != nil {
		s.logger.Printf("Failed to list employees for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to list employees")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": employees})
}

func (s *Server) handleAddEmployee(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	var req struct {
		Name         string `json:"name"`
		DepartmentID string `json:"departmentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := s.store.DepartmentByID(r.Context(), req.DepartmentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown department")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to look up department")
		return
	}

	emp, err := s.store.AddEmployee(r.Context(), req.Name, req.DepartmentID)
	if err != nil {
		s.logger.Printf("Failed to add employee: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to add employee")
		return
	}
	writeJSON(w, http.StatusCreated, emp)
}

func (s *Server) handleDeleteEmployee(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if err := s.store.DeleteEmployee(r.Context(), r.PathValue("id")); err != nil {
		s.logger.Printf("Failed to delete employee: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete employee")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePunch is the single user-facing punch path. The local write must
// land (and be reported) before the response; the spreadsheet sync runs in
// the background and never blocks the screen transition.
func (s *Server) handlePunch(w http.ResponseWriter, r *http.Request) {
	var req punchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !store.ValidPunchType(req.Type) {
		writeError(w, http.StatusBadRequest, "unknown punch type")
		return
	}
	if s.store == nil {
		// Degraded mode: the punch cannot be persisted, so nothing may be
		// synced either.
		writeError(w, http.StatusInternalServerError, "local save failed")
		return
	}

	ctx := r.Context()

	dept, err := s.store.DepartmentByID(ctx, req.DepartmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown department")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to look up department")
		return
	}
	emp, err := s.store.EmployeeByID(ctx, req.EmployeeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown employee")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to look up employee")
		return
	}

	now := time.Now()
	date := store.DateKey(now)

	existing, err := s.store.FindDuplicateRecord(ctx, dept.ID, emp.ID, req.Type, date)
	if err != nil {
		s.logger.Printf("Duplicate check failed: %v", err)
		// The check failing must not lose the punch; fall through and save.
		existing = nil
	}

	switch {
	case existing != nil && req.Resolve == "":
		// Duplicate-modal semantics: the UI decides update-vs-keep.
		writeJSON(w, http.StatusConflict, map[string]any{"duplicate": existing})
		return

	case existing != nil && req.Resolve == "keep":
		writeJSON(w, http.StatusOK, map[string]any{"record": existing, "kept": true})
		return

	case existing != nil && req.Resolve == "update":
		if err := s.store.UpdateAttendanceRecord(ctx, existing.ID, now); err != nil {
			s.logger.Printf("Failed to update record %s: %v", existing.ID, err)
			writeError(w, http.StatusInternalServerError, "local save failed")
			return
		}
		updated := *existing
		updated.Timestamp = now
		s.sync.Enqueue(updated)
		writeJSON(w, http.StatusOK, map[string]any{"record": updated, "updated": true})
		return
	}

	rec, err := s.store.AddAttendanceRecord(ctx, store.AttendanceRecord{
		DepartmentID:   dept.ID,
		DepartmentName: dept.Name,
		EmployeeID:     emp.ID,
		EmployeeName:   emp.Name,
		Type:           req.Type,
		TypeName:       store.PunchTypeNames[req.Type],
		Timestamp:      now,
		Date:           date,
	})
	if err != nil {
		s.logger.Printf("Failed to save punch: %v", err)
		writeError(w, http.StatusInternalServerError, "local save failed")
		return
	}

	s.sync.Enqueue(*rec)
	writeJSON(w, http.StatusCreated, map[string]any{"record": rec})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	q := r.URL.Query()
	departmentID := q.Get("departmentId")
	employeeID := q.Get("employeeId")
	year, errY := strconv.Atoi(q.Get("year"))
	month, errM := strconv.Atoi(q.Get("month"))
	if departmentID == "" || employeeID == "" || errY != nil || errM != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "departmentId, employeeId, year and month are required")
		return
	}

	records, err := s.store.MonthlyAttendanceRecords(r.Context(), departmentID, employeeID, year, month)
	if err != nil {
		s.logger.Printf("Failed to load history: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	key := r.PathValue("key")
	value, ok, err := s.store.Setting(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read setting")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	key := r.PathValue("key")
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.store.SaveSetting(r.Context(), key, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save setting")
		return
	}

	// Credential changes take effect immediately; a malformed credential is
	// reported to the settings screen but the setting itself is saved.
	if key == store.SettingServiceAccountKey || key == store.SettingSpreadsheetID {
		if err := s.reloadSheets(r.Context()); err != nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"saved":      true,
				"syncError":  err.Error(),
				"configured": false,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"saved":      true,
		"configured": s.sync.Configured(),
	})
}

func (s *Server) handleSheetsTest(w http.ResponseWriter, r *http.Request) {
	client := s.sheetsClient()
	if client == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "configured": false})
		return
	}

	ok := client.TestConnection(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"ok": ok, "configured": true})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     s.sync.Status(),
		"configured": s.sync.Configured(),
	})
}

// handleCatchUp re-attempts all unsynced records. Runs in the request so
// the operator sees the result; pacing keeps it bounded.
func (s *Server) handleCatchUp(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	synced, failed, err := s.sync.CatchUp(ctx)
	if err != nil {
		s.logger.Printf("Catch-up failed: %v", err)
		writeError(w, http.StatusInternalServerError, "catch-up failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"synced": synced, "failed": failed})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if err := s.store.ManualCleanup(r.Context(), time.Now()); err != nil {
		s.logger.Printf("Manual cleanup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
