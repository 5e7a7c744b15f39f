// Package journal persists defense events, file changes and privacy audit
// results in a SQLite database.
//
// The database lives in a single file (journal.db under the XDG data
// directory by default) and is opened in WAL mode with one connection.
// The daemon writes to it through the observer helpers, which log write
// failures instead of returning them; the report command reads it back.
//
// File paths are stored relative to the web root.
package journal
