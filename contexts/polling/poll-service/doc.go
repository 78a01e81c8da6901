// Package pollservice implements the poll core inside the polling context.
//
// The module owns the poll lifecycle state machine (open -> closed), the
// one-vote-per-user vote ledger, the viewer-facing projection, and the
// deadline expiry sweep through outbox-backed workers. Business rules live in
// application/domain layers; infrastructure stays behind ports and adapters.
package pollservice
