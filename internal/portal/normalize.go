package portal

import (
	"encoding/json"
	"log/slog"
	"math"
)

// normalizeReport converts a served report into a Report. The returned
// maps are never nil.
func normalizeReport(raw *rawReport, logger *slog.Logger) *Report {
	quota, notes := SplitQuotaCounts(raw.QuotaCounts)

	if len(notes) > 0 {
		logger.Debug("hoisted nested quota counts into notes", slog.Int("entries", len(notes)))
	}

	r := &Report{
		QuotaCounts:          quota,
		SpecializationCounts: make(map[string]int64, len(raw.SpecializationCounts)),
		NotesCounts:          notes,
		Metadata:             raw.Metadata,
	}

	for k, v := range raw.SpecializationCounts {
		if n, ok := countValue(v); ok {
			r.SpecializationCounts[k] = n
		}
	}

	return r
}

// SplitQuotaCounts separates a quota_counts mapping as the backend emits
// it. The backend has been seen to nest a mapping of note counts inside
// it; the numeric entries of any nested mapping go to notes. Only plain
// numbers stay in quota. Deeper nesting and non-numeric values are
// dropped. Both maps are non-nil.
func SplitQuotaCounts(raw map[string]any) (quota, notes map[string]int64) {
	quota = make(map[string]int64, len(raw))
	notes = make(map[string]int64)

	for k, v := range raw {
		if n, ok := countValue(v); ok {
			quota[k] = n
			continue
		}

		nested, ok := v.(map[string]any)
		if !ok {
			continue
		}

		for nk, nv := range nested {
			if n, ok := countValue(nv); ok {
				notes[nk] = n
			}
		}
	}

	return quota, notes
}

// countValue converts a decoded JSON number to a count. Fractional values
// are truncated.
func countValue(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}

		f, err := n.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}

		return int64(f), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
