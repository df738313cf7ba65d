package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kosuda/dakoku/internal/sheets"
	"github.com/kosuda/dakoku/internal/store"
)

// fakeRecordStore tracks synced flags in memory.
type fakeRecordStore struct {
	mu      sync.Mutex
	synced  map[string]bool
	pending []store.AttendanceRecord
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{synced: make(map[string]bool)}
}

func (f *fakeRecordStore) MarkAttendanceRecordSynced(_ context.Context, id string) error {
	f.mu.Lock()
	f.synced[id] = true
	f.mu.Unlock()
	return nil
}

func (f *fakeRecordStore) UnsyncedAttendanceRecords(context.Context) ([]store.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.AttendanceRecord
	for _, rec := range f.pending {
		if !f.synced[rec.ID] {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRecordStore) isSynced(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.synced[id]
}

// fakeRecorder scripts per-call outcomes: errs[i] is returned for call i,
// calls beyond the script succeed. failNames overrides per employee name.
type fakeRecorder struct {
	mu        sync.Mutex
	calls     int
	errs      []error
	failNames map[string]error
}

func (f *fakeRecorder) RecordAttendance(_ context.Context, _, employeeName, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failNames[employeeName]; ok {
		return err
	}

	i := f.calls
	f.calls++
	if i < len(f.errs) {
		return f.errs[i]
	}
	return nil
}

func (f *fakeRecorder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// testPolicy keeps retry bounds realistic but delays short.
func testPolicy() Policy {
	return Policy{
		MaxAttempts:        5,
		BackgroundInterval: time.Millisecond,
		ForegroundBase:     time.Millisecond,
		ForegroundCap:      4 * time.Millisecond,
		CatchUpPacing:      time.Millisecond,
	}
}

func testRecord(id string) store.AttendanceRecord {
	return store.AttendanceRecord{
		ID:             id,
		DepartmentID:   "doctor",
		DepartmentName: "医師",
		EmployeeID:     "e1",
		EmployeeName:   "山田",
		Type:           store.TypeCheckIn,
		TypeName:       "出勤",
		Timestamp:      time.Now(),
	}
}

var timeoutErr = &sheets.APIError{Kind: sheets.KindTimeout, Message: "simulated timeout"}
var authErr = &sheets.APIError{Kind: sheets.KindAuth, StatusCode: 403, Message: "simulated auth failure"}

// TestSyncNow_Success tests the happy path: one write, flag set, status green
func TestSyncNow_Success(t *testing.T) {
	records := newFakeRecordStore()
	recorder := &fakeRecorder{}
	s := New(records, testPolicy(), nil)
	defer s.Stop()
	s.SetClient(recorder)

	if err := s.SyncNow(context.Background(), testRecord("r1")); err != nil {
		t.Fatalf("SyncNow() failed: %v", err)
	}
	if n := recorder.callCount(); n != 1 {
		t.Errorf("recorder called %d times, want 1", n)
	}
	if !records.isSynced("r1") {
		t.Error("record not marked synced after success")
	}
	if got := s.Status(); got != "success" {
		t.Errorf("Status() = %q, want success", got)
	}
}

// TestSyncNow_TransientFailureExhaustsRetries tests the attempt ceiling: a
// persistently failing write is tried the bounded number of times, then the
// record is left unsynced for catch-up
func TestSyncNow_TransientFailureExhaustsRetries(t *testing.T) {
	records := newFakeRecordStore()
	recorder := &fakeRecorder{failNames: map[string]error{"山田": timeoutErr}}
	s := New(records, testPolicy(), nil)
	defer s.Stop()
	s.SetClient(recorder)

	err := s.SyncNow(context.Background(), testRecord("r1"))
	if err == nil {
		t.Fatal("SyncNow() succeeded against failing recorder")
	}
	if records.isSynced("r1") {
		t.Error("failed record marked synced")
	}
	if got := s.Status(); got != "error" {
		t.Errorf("Status() = %q, want error", got)
	}
}

// TestSyncNow_ExactAttemptCount tests that a transient failure gets exactly
// MaxAttempts tries, no more
func TestSyncNow_ExactAttemptCount(t *testing.T) {
	records := newFakeRecordStore()
	// More scripted failures than the policy allows, so extra attempts would
	// show up in the call count.
	recorder := &fakeRecorder{errs: []error{
		timeoutErr, timeoutErr, timeoutErr, timeoutErr, timeoutErr,
		timeoutErr, timeoutErr,
	}}
	policy := testPolicy()
	s := New(records, policy, nil)
	defer s.Stop()
	s.SetClient(recorder)

	_ = s.SyncNow(context.Background(), testRecord("r1"))
	if n := recorder.callCount(); n != policy.MaxAttempts {
		t.Errorf("recorder called %d times, want %d", n, policy.MaxAttempts)
	}
}

// TestSyncNow_RecoversMidChain tests that a success after transient failures
// ends the chain cleanly
func TestSyncNow_RecoversMidChain(t *testing.T) {
	records := newFakeRecordStore()
	recorder := &fakeRecorder{errs: []error{timeoutErr, timeoutErr}}
	s := New(records, testPolicy(), nil)
	defer s.Stop()
	s.SetClient(recorder)

	if err := s.SyncNow(context.Background(), testRecord("r1")); err != nil {
		t.Fatalf("SyncNow() failed: %v", err)
	}
	if n := recorder.callCount(); n != 3 {
		t.Errorf("recorder called %d times, want 3", n)
	}
	if !records.isSynced("r1") {
		t.Error("record not marked synced after recovery")
	}
}

// TestSyncNow_AuthFailureNoRetry tests that credential failures end the
// chain after a single attempt
func TestSyncNow_AuthFailureNoRetry(t *testing.T) {
	records := newFakeRecordStore()
	recorder := &fakeRecorder{errs: []error{authErr, timeoutErr, timeoutErr}}
	s := New(records, testPolicy(), nil)
	defer s.Stop()
	s.SetClient(recorder)

	err := s.SyncNow(context.Background(), testRecord("r1"))
	if err == nil {
		t.Fatal("SyncNow() ignored auth failure")
	}
	if n := recorder.callCount(); n != 1 {
		t.Errorf("recorder called %d times after auth failure, want 1", n)
	}
	if records.isSynced("r1") {
		t.Error("auth-failed record marked synced")
	}
	if got := s.Status(); got != "auth-error" {
		t.Errorf("Status() = %q, want auth-error", got)
	}
}

// TestSyncNow_Unconfigured tests that sync without a client is a clean no-op
func TestSyncNow_Unconfigured(t *testing.T) {
	records := newFakeRecordStore()
	s := New(records, testPolicy(), nil)
	defer s.Stop()

	if err := s.SyncNow(context.Background(), testRecord("r1")); err != nil {
		t.Fatalf("SyncNow() without client failed: %v", err)
	}
	if records.isSynced("r1") {
		t.Error("record marked synced without a client")
	}
	if got := s.Status(); got != "idle" {
		t.Errorf("Status() = %q, want idle", got)
	}
}

// TestEnqueue_Background tests the fire-and-forget path end to end via the
// event stream
func TestEnqueue_Background(t *testing.T) {
	records := newFakeRecordStore()
	recorder := &fakeRecorder{errs: []error{timeoutErr}}
	s := New(records, testPolicy(), nil)
	defer s.Stop()
	s.SetClient(recorder)

	events, cancel := s.Subscribe()
	defer cancel()

	s.Enqueue(testRecord("r1"))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Status == "success" {
				if ev.RecordID != "r1" {
					t.Errorf("success event for record %s, want r1", ev.RecordID)
				}
				if ev.Attempt != 2 {
					t.Errorf("succeeded on attempt %d, want 2", ev.Attempt)
				}
				if !records.isSynced("r1") {
					t.Error("record not marked synced")
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for background sync to succeed")
		}
	}
}

// TestCatchUp tests the bulk re-sync pass with a mix of outcomes
func TestCatchUp(t *testing.T) {
	records := newFakeRecordStore()
	good1 := testRecord("r1")
	bad := testRecord("r2")
	bad.EmployeeName = "佐藤"
	good2 := testRecord("r3")
	records.pending = []store.AttendanceRecord{good1, bad, good2}

	recorder := &fakeRecorder{failNames: map[string]error{"佐藤": timeoutErr}}
	s := New(records, testPolicy(), nil)
	defer s.Stop()
	s.SetClient(recorder)

	synced, failed, err := s.CatchUp(context.Background())
	if err != nil {
		t.Fatalf("CatchUp() failed: %v", err)
	}
	if synced != 2 || failed != 1 {
		t.Errorf("CatchUp() = synced=%d failed=%d, want 2/1", synced, failed)
	}
	if !records.isSynced("r1") || !records.isSynced("r3") {
		t.Error("successfully written records not marked synced")
	}
	if records.isSynced("r2") {
		t.Error("failed record marked synced")
	}
}

// TestCatchUp_Unconfigured tests that catch-up without a client reports
// nothing to do
func TestCatchUp_Unconfigured(t *testing.T) {
	records := newFakeRecordStore()
	records.pending = []store.AttendanceRecord{testRecord("r1")}
	s := New(records, testPolicy(), nil)
	defer s.Stop()

	synced, failed, err := s.CatchUp(context.Background())
	if err != nil || synced != 0 || failed != 0 {
		t.Errorf("CatchUp() = %d/%d/%v, want 0/0/nil", synced, failed, err)
	}
}

// TestForegroundDelay tests the backoff shape: doubling from the base,
// capped
func TestForegroundDelay(t *testing.T) {
	s := New(newFakeRecordStore(), Policy{
		MaxAttempts:    5,
		ForegroundBase: time.Second,
		ForegroundCap:  10 * time.Second,
	}, nil)
	defer s.Stop()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{30, 10 * time.Second},
		{80, 10 * time.Second}, // shift overflow collapses to the cap
	}
	for _, tt := range tests {
		if got := s.foregroundDelay(tt.attempt); got != tt.want {
			t.Errorf("foregroundDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

// TestSubscribe_Cancel tests that cancel closes the stream and is safe to
// call twice
func TestSubscribe_Cancel(t *testing.T) {
	s := New(newFakeRecordStore(), testPolicy(), nil)
	defer s.Stop()

	events, cancel := s.Subscribe()
	cancel()
	cancel()

	if _, ok := <-events; ok {
		t.Error("subscription channel still open after cancel")
	}
}

// TestStateStatus tests the indicator strings
func TestStateStatus(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateAttempting, "syncing"},
		{StateSucceeded, "success"},
		{StatePermanentlyFailed, "auth-error"},
		{StateExhaustedRetries, "error"},
	}
	for _, tt := range tests {
		if got := tt.state.Status(); got != tt.want {
			t.Errorf("%d.Status() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
