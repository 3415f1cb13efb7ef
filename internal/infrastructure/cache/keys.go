package cache

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// KEY PREFIXES
// ══════════════════════════════════════════════════════════════════════════════

// Key prefixes for namespacing cache keys. Every per-student entry shares the
// student-number-derived prefix so a single ClearByPrefix invalidates the
// whole category after a write.
const (
	// PrefixStudent is the prefix for per-student keys ("student:42:...").
	PrefixStudent = "student:"

	// PrefixStudentList is the prefix for student-list query results.
	PrefixStudentList = "students:list:"

	// PrefixOccurrenceList is the prefix for occurrence-list query results.
	PrefixOccurrenceList = "occurrences:list:"

	// PrefixAuth is the prefix for cached authentication results.
	PrefixAuth = "auth:"

	// PrefixStats is the prefix for statistics snapshots.
	PrefixStats = "stats:"

	// PrefixAudit is the prefix for audit log pages.
	PrefixAudit = "audit:"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT TTLs
// ══════════════════════════════════════════════════════════════════════════════

// Per-domain default lifetimes. These are policy defaults the calling code
// selects per key category; the cache itself is domain-agnostic.
const (
	// TTLStudentRecord is the TTL for a single student score record.
	TTLStudentRecord = 10 * time.Minute

	// TTLStudentList is the TTL for student-list query results.
	TTLStudentList = 5 * time.Minute

	// TTLOccurrenceList is the TTL for occurrence-list query results.
	TTLOccurrenceList = 2 * time.Minute

	// TTLAuthResult is the TTL for authentication results.
	TTLAuthResult = 60 * time.Minute

	// TTLStatistics is the TTL for statistics snapshots.
	TTLStatistics = 5 * time.Minute

	// TTLAuditLog is the TTL for audit log pages.
	TTLAuditLog = 1 * time.Minute
)

// ══════════════════════════════════════════════════════════════════════════════
// KEY BUILDERS
// ══════════════════════════════════════════════════════════════════════════════

// StudentPrefix returns the invalidation prefix for one student's entries.
func StudentPrefix(studentNumber int) string {
	return fmt.Sprintf("%s%d:", PrefixStudent, studentNumber)
}

// StudentRecordKey returns the cache key for a student's score record.
func StudentRecordKey(studentNumber int) string {
	return StudentPrefix(studentNumber) + "record"
}

// StudentOccurrencesKey returns the cache key for one student's occurrence
// list, qualified by the filter fingerprint.
func StudentOccurrencesKey(studentNumber int, fingerprint string) string {
	return StudentPrefix(studentNumber) + "occurrences:" + fingerprint
}

// StudentReportKey returns the cache key for a student's period score report.
func StudentReportKey(studentNumber int, from, to string) string {
	return fmt.Sprintf("%sreport:%s:%s", StudentPrefix(studentNumber), from, to)
}

// OccurrenceListKey returns the cache key for a cross-student occurrence list.
func OccurrenceListKey(fingerprint string) string {
	return PrefixOccurrenceList + fingerprint
}

// AuthKey returns the cache key for a user's authentication result.
func AuthKey(username string) string {
	return PrefixAuth + username
}

// StatsKey returns the cache key for a named statistics snapshot.
func StatsKey(name string) string {
	return PrefixStats + name
}
