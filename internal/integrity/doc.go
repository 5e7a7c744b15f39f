// Package integrity detects unauthorized changes to the served directory tree.
//
// Scanner walks the web root and builds a Snapshot, a map from absolute
// path to SHA-256 digest, and Diff turns two snapshots into a
// model.ChangeSet with a severity per change. Two Strategy
// implementations decide when to rescan:
//   - EventWatcher reacts to filesystem notifications (fsnotify)
//   - PollWatcher rescans on a fixed interval
//
// Monitor runs the event watcher and falls back to polling when
// notifications are unavailable. Every change is logged, counted and
// handed to registered observers; added or modified images are checked
// for identifying EXIF tags.
//
// Content is addressed by hash only. The package detects change, not
// authenticity.
package integrity
