package schedule

import "planner/internal/model"

// HasConflict reports whether target overlaps any occurrence in pool that
// belongs to a different series. Completed occurrences on either side are
// ignored, and spans touching at a single instant do not conflict.
//
// This is an existence check: it stops at the first match.
func HasConflict(target model.Occurrence, pool []model.Occurrence) bool {
	if target.Completed {
		return false
	}
	for _, other := range pool {
		if other.ID.SeriesID == target.ID.SeriesID {
			continue
		}
		if other.Completed {
			continue
		}
		if target.Start.Before(other.End) && target.End.After(other.Start) {
			return true
		}
	}
	return false
}

// HasConflictByID is HasConflict for callers that only hold flat ids,
// e.g. list keys coming back from a view. Instants match at the
// millisecond precision flat ids carry.
func HasConflictByID(targetID string, pool []model.Occurrence) bool {
	id := model.DecodeOccurrenceID(targetID)
	for _, o := range pool {
		if o.ID.SeriesID != id.SeriesID {
			continue
		}
		if id.HasInstant() && model.FormatInstant(o.Start) != model.FormatInstant(id.Start) {
			continue
		}
		return HasConflict(o, pool)
	}
	return false
}

// ConflictSet runs HasConflict for every occurrence against the whole set
// and returns the flat ids that conflict. Cost is quadratic in len(occs),
// which is fine for a day or week window.
func ConflictSet(occs []model.Occurrence) map[string]bool {
	out := make(map[string]bool)
	for _, o := range occs {
		if HasConflict(o, occs) {
			out[o.ID.String()] = true
		}
	}
	return out
}
