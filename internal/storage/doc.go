// Package storage persists the report config document: the monitored file
// groups and the schedule list, saved and loaded as one unit.
//
// Drivers:
//   - "file": a JSON document rewritten atomically (tmp + rename)
//   - "sqlite": a single-row document table (modernc.org/sqlite, pure Go)
package storage
