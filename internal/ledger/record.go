// Package ledger holds the per-entity provenance ledger: one record per
// artifact naming the producing source, its reference URL, when it was
// fetched, and whether the fetch succeeded.
package ledger

import (
	"strings"
	"time"
)

// Status is the in-memory outcome of an artifact fetch. It is the only thing
// stages consult to decide whether an artifact needs work; the serialized
// source string is never re-parsed for that purpose.
type Status int

const (
	// StatusSuccess means the artifact file holds provider data.
	StatusSuccess Status = iota
	// StatusFailed means the last fetch raised; Reason carries the diagnostic.
	StatusFailed
	// StatusEmpty means the provider answered with zero rows.
	StatusEmpty
	// StatusAuxiliary marks derived outputs (chart, report) that are never repaired.
	StatusAuxiliary
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "ok"
	case StatusFailed:
		return "error"
	case StatusEmpty:
		return "empty"
	case StatusAuxiliary:
		return "aux"
	default:
		return "unknown"
	}
}

func parseStatus(s string) (Status, bool) {
	switch s {
	case "ok":
		return StatusSuccess, true
	case "error":
		return StatusFailed, true
	case "empty":
		return StatusEmpty, true
	case "aux":
		return StatusAuxiliary, true
	default:
		return 0, false
	}
}

const (
	errorPrefix = "ERROR"
	// EmptySource is the source text recorded for a confirmed-empty result.
	EmptySource = "Empty result (no data returned)"
)

// Record is the provenance of a single artifact.
type Record struct {
	Source    string
	SourceURL string
	FetchedAt time.Time
	Status    Status
	// Reason is the failure diagnostic for StatusFailed records.
	Reason string

	// rawFetchedAt preserves the on-disk timestamp text of decoded records so
	// untouched entries re-serialize byte-for-byte.
	rawFetchedAt string
}

// Success records data produced by source.
func Success(source, sourceURL string, at time.Time) Record {
	return Record{Source: source, SourceURL: sourceURL, FetchedAt: at.UTC(), Status: StatusSuccess}
}

// Failed records a fetch that raised.
func Failed(reason, sourceURL string, at time.Time) Record {
	reason = strings.TrimSpace(reason)
	return Record{
		Source:    errorPrefix + ": " + reason,
		SourceURL: sourceURL,
		FetchedAt: at.UTC(),
		Status:    StatusFailed,
		Reason:    reason,
	}
}

// Empty records a fetch that succeeded with no rows.
func Empty(sourceURL string, at time.Time) Record {
	return Record{Source: EmptySource, SourceURL: sourceURL, FetchedAt: at.UTC(), Status: StatusEmpty}
}

// Auxiliary records a derived output such as a chart or report.
func Auxiliary(source string, at time.Time) Record {
	return Record{Source: source, FetchedAt: at.UTC(), Status: StatusAuxiliary}
}

// Unresolved reports whether the artifact still lacks provider data. Both
// failed and confirmed-empty records qualify: an empty answer from one
// provider says nothing about the next one.
func (r Record) Unresolved() bool {
	return r.Status == StatusFailed || r.Status == StatusEmpty
}

// Timestamp formats t as ISO-8601 UTC with second precision.
func Timestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

// FetchedAtText returns the fetch timestamp as it appears on disk.
func (r Record) FetchedAtText() string {
	if r.rawFetchedAt != "" {
		return r.rawFetchedAt
	}
	if r.FetchedAt.IsZero() {
		return ""
	}
	return Timestamp(r.FetchedAt)
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// classifyLegacy maps a source string written before the status field existed.
func classifyLegacy(source string) (Status, string) {
	switch {
	case strings.HasPrefix(source, errorPrefix):
		reason := strings.TrimPrefix(source, errorPrefix)
		reason = strings.TrimSpace(strings.TrimPrefix(reason, ":"))
		return StatusFailed, reason
	case strings.HasPrefix(source, "Empty"):
		return StatusEmpty, ""
	case strings.HasPrefix(source, "Visualization"), strings.HasPrefix(source, "Aggregated"):
		return StatusAuxiliary, ""
	default:
		return StatusSuccess, ""
	}
}
