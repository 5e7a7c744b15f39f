// Package defense detects circuit-creation floods and answers them by
// forcing Tor onto fresh circuits.
//
// The pieces are:
//   - Analyzer keeps a bounded history of circuit-built timestamps and
//     checks two sliding windows (60 seconds and 10 seconds) on every event
//   - Actuator sends NEWNYM over a fresh control connection, at most once
//     per cooldown
//   - Monitor keeps a control connection open, feeds BUILT circuits into
//     the Analyzer and reconnects when the connection drops
//
// When the 60 second threshold is crossed the history is cleared after the
// defense fires, so one flood yields one trigger. A burst detection keeps
// the history, allowing the minute window to fire later.
package defense
