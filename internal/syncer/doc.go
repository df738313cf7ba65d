// Package syncer makes local punches eventually consistent with the remote
// spreadsheet without blocking the kiosk flow.
//
// Delivery model is at-least-once and best-effort: after a local write
// succeeds, a sync chain attempts the spreadsheet write, retrying transient
// failures up to a bounded number of attempts. Auth-class failures stop a
// chain immediately. A record whose chain exhausts its retries stays
// synced=false until a catch-up pass re-attempts every unsynced record.
//
// Each chain walks an explicit state machine:
//
//	Idle -> Attempting(n) -> Succeeded
//	                      -> PermanentlyFailed   (auth/permission/not-found)
//	                      -> ExhaustedRetries    (transient failures, n == max)
//
// Two pacing profiles exist: background chains (fire-and-forget after a
// punch) wait a flat interval between attempts; foreground chains (the CLI
// and the settle path) use exponential backoff with a capped ceiling.
package syncer
