package model

import (
	"strings"
	"time"
)

// IDSeparator joins a series id and an occurrence instant in the flat
// form of an OccurrenceID. Series ids must not contain it.
const IDSeparator = "::"

// InstantLayout renders occurrence starts with millisecond precision in
// UTC, e.g. 2024-01-01T09:00:00.000Z.
const InstantLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatInstant renders t in InstantLayout. This is the exact string used
// for CompletedInstances membership and for flat occurrence ids.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(InstantLayout)
}

// ParseInstant parses InstantLayout, falling back to RFC3339Nano.
func ParseInstant(s string) (time.Time, error) {
	t, err := time.Parse(InstantLayout, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// OccurrenceID addresses one occurrence without persisting it. A zero
// Start means the id names the series itself, which is also the id of a
// non-recurring task's single occurrence.
type OccurrenceID struct {
	SeriesID string
	Start    time.Time
}

// HasInstant reports whether the id names a specific occurrence.
func (id OccurrenceID) HasInstant() bool {
	return !id.Start.IsZero()
}

// String is the flat form, used for list keys, URLs and JSON.
func (id OccurrenceID) String() string {
	if !id.HasInstant() {
		return id.SeriesID
	}
	return EncodeOccurrenceID(id.SeriesID, id.Start)
}

func (id OccurrenceID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *OccurrenceID) UnmarshalText(b []byte) error {
	*id = DecodeOccurrenceID(string(b))
	return nil
}

// EncodeOccurrenceID builds the flat id of the occurrence of seriesID
// starting at start.
func EncodeOccurrenceID(seriesID string, start time.Time) string {
	return seriesID + IDSeparator + FormatInstant(start)
}

// DecodeOccurrenceID splits a flat id on the first separator. Input
// without a separator, or with an unparseable instant, yields an id with
// no instant. It never fails.
func DecodeOccurrenceID(s string) OccurrenceID {
	seriesID, rest, ok := strings.Cut(s, IDSeparator)
	if !ok {
		return OccurrenceID{SeriesID: s}
	}
	t, err := ParseInstant(rest)
	if err != nil {
		return OccurrenceID{SeriesID: seriesID}
	}
	return OccurrenceID{SeriesID: seriesID, Start: t}
}
