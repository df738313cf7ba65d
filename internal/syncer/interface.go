package syncer

import (
	"context"
	"time"

	"github.com/kosuda/dakoku/internal/store"
)

// Recorder is the slice of the spreadsheet client the syncer depends on.
type Recorder interface {
	RecordAttendance(ctx context.Context, departmentName, employeeName, typeName string, ts time.Time) error
}

// RecordStore is the slice of the local store the syncer depends on.
type RecordStore interface {
	MarkAttendanceRecordSynced(ctx context.Context, id string) error
	UnsyncedAttendanceRecords(ctx context.Context) ([]store.AttendanceRecord, error)
}

// State is a sync chain's position in the retry state machine.
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateSucceeded
	StatePermanentlyFailed
	StateExhaustedRetries
)

// Status renders the state as the indicator value the kiosk UI shows.
func (s State) Status() string {
	switch s {
	case StateAttempting:
		return "syncing"
	case StateSucceeded:
		return "success"
	case StatePermanentlyFailed:
		return "auth-error"
	case StateExhaustedRetries:
		return "error"
	default:
		return "idle"
	}
}

// Event is one observable transition of a sync chain.
type Event struct {
	Status   string `json:"status"`
	RecordID string `json:"recordId,omitempty"`
	Attempt  int    `json:"attempt,omitempty"`
	Error    string `json:"error,omitempty"`
}
