package syncer

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/kosuda/dakoku/internal/sheets"
	"github.com/kosuda/dakoku/internal/store"
)

// Policy bounds the retry behavior of sync chains.
type Policy struct {
	// MaxAttempts is the total number of attempts per chain, first try
	// included.
	MaxAttempts int

	// BackgroundInterval is the flat delay between background attempts.
	BackgroundInterval time.Duration

	// ForegroundBase and ForegroundCap shape the exponential backoff of
	// foreground chains: min(ForegroundBase * 2^n, ForegroundCap).
	ForegroundBase time.Duration
	ForegroundCap  time.Duration

	// CatchUpPacing is the pause between records during a catch-up pass,
	// so a bulk re-sync doesn't trip the service's rate limits.
	CatchUpPacing time.Duration
}

// DefaultPolicy returns the standard retry bounds.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:        5,
		BackgroundInterval: 10 * time.Second,
		ForegroundBase:     time.Second,
		ForegroundCap:      10 * time.Second,
		CatchUpPacing:      300 * time.Millisecond,
	}
}

// Syncer coordinates background retry of spreadsheet writes and tracks the
// observable sync status.
type Syncer struct {
	records RecordStore
	policy  Policy
	logger  *log.Logger

	mu     sync.Mutex
	client Recorder // nil while no credential is configured
	state  State

	subsMu sync.Mutex
	subs   map[chan Event]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Syncer over the given record store.
//
// The spreadsheet client starts unset; chains enqueued before SetClient is
// called finish immediately in the Idle state. If logger is nil, a default
// logger writing to stderr is used.
func New(records RecordStore, policy Policy, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if policy.MaxAttempts <= 0 {
		policy = DefaultPolicy()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Syncer{
		records: records,
		policy:  policy,
		logger:  logger,
		subs:    make(map[chan Event]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetClient swaps the spreadsheet client. Pass nil when the credential is
// removed; sync is then disabled, not failed.
func (s *Syncer) SetClient(client Recorder) {
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
}

// Configured reports whether a spreadsheet client is set.
func (s *Syncer) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// Status returns the indicator value for the most recent chain activity.
func (s *Syncer) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status()
}

// Subscribe returns a channel of chain transitions and a cancel function.
// Events are dropped, not queued, when a subscriber falls behind.
func (s *Syncer) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.subsMu.Unlock()
	}
	return ch, cancel
}

// Stop abandons all pending retry chains. Records mid-chain keep
// synced=false, which is all the durable state a chain has.
func (s *Syncer) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Enqueue starts a background sync chain for the record and returns
// immediately. The chain waits a flat interval between attempts.
func (s *Syncer) Enqueue(rec store.AttendanceRecord) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.run(s.ctx, rec, s.backgroundDelay)
	}()
}

// SyncNow runs a foreground sync chain with exponential backoff and returns
// the chain's final error, nil on success or when sync is unconfigured.
func (s *Syncer) SyncNow(ctx context.Context, rec store.AttendanceRecord) error {
	return s.run(ctx, rec, s.foregroundDelay)
}

// CatchUp re-attempts every unsynced record sequentially with pacing.
// Per-record failures are logged and counted, not fatal to the pass.
func (s *Syncer) CatchUp(ctx context.Context) (synced, failed int, err error) {
	if !s.Configured() {
		return 0, 0, nil
	}

	pending, err := s.records.UnsyncedAttendanceRecords(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list unsynced records: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	s.logger.Printf("Catch-up: %d unsynced records", len(pending))

	for i, rec := range pending {
		if i > 0 {
			select {
			case <-time.After(s.policy.CatchUpPacing):
			case <-ctx.Done():
				return synced, failed, ctx.Err()
			}
		}

		if err := s.attemptOnce(ctx, rec); err != nil {
			s.logger.Printf("Catch-up failed for record %s: %v", rec.ID, err)
			failed++
			continue
		}
		synced++
	}

	s.logger.Printf("Catch-up complete: synced=%d failed=%d", synced, failed)
	return synced, failed, nil
}

// run walks one chain through the state machine. delay maps a completed
// attempt count to the wait before the next attempt.
func (s *Syncer) run(ctx context.Context, rec store.AttendanceRecord, delay func(attempt int) time.Duration) error {
	if !s.Configured() {
		s.transition(StateIdle, Event{Status: StateIdle.Status(), RecordID: rec.ID})
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(delay(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		s.transition(StateAttempting, Event{
			Status: StateAttempting.Status(), RecordID: rec.ID, Attempt: attempt,
		})

		err := s.attemptOnce(ctx, rec)
		if err == nil {
			s.transition(StateSucceeded, Event{
				Status: StateSucceeded.Status(), RecordID: rec.ID, Attempt: attempt,
			})
			return nil
		}
		lastErr = err

		if !sheets.Retryable(err) {
			s.logger.Printf("Permanent failure for record %s, not retrying: %v", rec.ID, err)
			s.transition(StatePermanentlyFailed, Event{
				Status: StatePermanentlyFailed.Status(), RecordID: rec.ID,
				Attempt: attempt, Error: err.Error(),
			})
			return err
		}

		s.logger.Printf("Sync attempt %d/%d failed for record %s: %v",
			attempt, s.policy.MaxAttempts, rec.ID, err)
	}

	s.logger.Printf("All %d attempts failed for record %s; leaving unsynced",
		s.policy.MaxAttempts, rec.ID)
	s.transition(StateExhaustedRetries, Event{
		Status: StateExhaustedRetries.Status(), RecordID: rec.ID,
		Attempt: s.policy.MaxAttempts, Error: lastErr.Error(),
	})
	return lastErr
}

// attemptOnce performs a single spreadsheet write and, on success, marks
// the record synced.
func (s *Syncer) attemptOnce(ctx context.Context, rec store.AttendanceRecord) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return nil
	}

	if err := client.RecordAttendance(ctx,
		rec.DepartmentName, rec.EmployeeName, rec.TypeName, rec.Timestamp); err != nil {
		return err
	}

	if err := s.records.MarkAttendanceRecordSynced(ctx, rec.ID); err != nil {
		// The spreadsheet write landed; the local flag catches up on the
		// next catch-up pass (same-type entries are replaced in place, so
		// the re-send is idempotent).
		s.logger.Printf("Warning: record %s synced but flag update failed: %v", rec.ID, err)
	}
	return nil
}

func (s *Syncer) backgroundDelay(int) time.Duration {
	return s.policy.BackgroundInterval
}

func (s *Syncer) foregroundDelay(attempt int) time.Duration {
	d := s.policy.ForegroundBase << attempt
	if d > s.policy.ForegroundCap || d <= 0 {
		d = s.policy.ForegroundCap
	}
	return d
}

// transition records the new state and notifies subscribers.
func (s *Syncer) transition(state State, ev Event) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	s.subsMu.Lock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.subsMu.Unlock()
}
