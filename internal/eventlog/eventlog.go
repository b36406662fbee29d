// Package eventlog models the append-only, per-key ordered logs that back the
// world journal, personal journals and downtime negotiations.
//
// Entries are never updated or deleted. Readers derive current state by
// replaying a stream from the beginning.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Logical stream keys.
const (
	WorldJournalKey       = "world-journal"
	personalJournalPrefix = "character-journal:"
	downtimePrefix        = "downtime:"
)

var ErrInvalidID = errors.New("eventlog: invalid entry id")

// PersonalJournalKey is the stream holding a character's personal journal.
func PersonalJournalKey(characterKey string) string { return personalJournalPrefix + characterKey }

// DowntimeKey is the stream holding a character's downtime negotiations.
func DowntimeKey(characterKey string) string { return downtimePrefix + characterKey }

// Kind classifies a stream key for metrics labels.
func Kind(streamKey string) string {
	switch {
	case streamKey == WorldJournalKey:
		return "world"
	case strings.HasPrefix(streamKey, personalJournalPrefix):
		return "personal"
	case strings.HasPrefix(streamKey, downtimePrefix):
		return "downtime"
	default:
		return "other"
	}
}

// EntryID orders entries within a stream. Millis is the append time in
// milliseconds since the epoch; Seq disambiguates appends within the same
// millisecond. The textual form is "<millis>-<seq>".
type EntryID struct {
	Millis int64
	Seq    int64
}

// Timestamp returns the creation time component in milliseconds.
func (id EntryID) Timestamp() int64 { return id.Millis }

func (id EntryID) IsZero() bool { return id.Millis == 0 && id.Seq == 0 }

// Compare returns -1, 0 or +1.
func (id EntryID) Compare(other EntryID) int {
	switch {
	case id.Millis < other.Millis:
		return -1
	case id.Millis > other.Millis:
		return 1
	case id.Seq < other.Seq:
		return -1
	case id.Seq > other.Seq:
		return 1
	}
	return 0
}

func (id EntryID) String() string {
	return strconv.FormatInt(id.Millis, 10) + "-" + strconv.FormatInt(id.Seq, 10)
}

// ParseID accepts "<millis>-<seq>" and the bare "<millis>" shorthand.
func ParseID(s string) (EntryID, error) {
	ms, seq, found := strings.Cut(strings.TrimSpace(s), "-")
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil || millis < 0 {
		return EntryID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	id := EntryID{Millis: millis}
	if found {
		n, err := strconv.ParseInt(seq, 10, 64)
		if err != nil || n < 0 {
			return EntryID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
		}
		id.Seq = n
	}
	return id, nil
}

// NextID returns the id for an entry appended at now after last. Ids stay
// strictly increasing even when the clock stalls or steps backwards.
func NextID(last EntryID, now time.Time) EntryID {
	ms := now.UnixMilli()
	if ms > last.Millis {
		return EntryID{Millis: ms}
	}
	return EntryID{Millis: last.Millis, Seq: last.Seq + 1}
}

// Fields is the flat payload of a log entry.
type Fields map[string]string

// Entry is one immutable record of a stream.
type Entry struct {
	ID     EntryID
	Fields Fields
}

// Timestamp returns the id-derived creation time in milliseconds.
func (e Entry) Timestamp() int64 { return e.ID.Timestamp() }

// Store is the append-only log collaborator. Implementations serialize
// appends to the same key; ReadAll returns an empty slice for unknown keys.
type Store interface {
	Append(ctx context.Context, streamKey string, fields Fields) (EntryID, error)
	ReadAll(ctx context.Context, streamKey string) ([]Entry, error)
}

// Clone copies fields so callers cannot mutate stored entries.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
