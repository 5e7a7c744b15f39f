// Package model defines the data structures shared across onionsentry.
//
// This package contains the following main types:
//   - Severity: The risk level attached to a detected change or finding
//   - Change and ChangeSet: The result of diffing two file snapshots
//   - Outcome and Detection: The result of circuit-rate analysis and defense
//   - AuditResult: The result of a single privacy posture check
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The defense, integrity, journal and report packages all need
// these types, so centralizing them prevents import cycles.
package model
