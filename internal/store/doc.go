// Package store provides persistent storage for ticketd.
//
// # Architecture
//
// A single Store interface with one method per persistence operation, and
// two implementations:
//
//   - SQLiteStore: the relational backend over modernc.org/sqlite. Tickets,
//     activity and settings live in their own tables; the activity log is
//     trimmed to the 100 most recent entries on every append; full sync
//     (ReplaceAll) runs as a single transaction.
//   - FileStore: the flat-file fallback. All ticket/activity/kbNotes state
//     is one JSON document, settings a second, each read and rewritten
//     wholesale. No retention trimming and no atomicity; concurrent writers
//     are last-write-wins. These gaps are inherited behavior, not bugs.
//
// # SQLite Configuration
//
// The relational backend uses WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Schema is created automatically on open. Timestamps are stored as
// RFC 3339 text.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateTicket: ticket id already in use
//
// All methods accept context.Context.
package store
