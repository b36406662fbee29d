// Package downtime folds a character's downtime log into the current state of
// each negotiation.
//
// Players propose actions, staff comment on or complete them. Every step is a
// separate log entry sharing the negotiation's correlation id (stored as
// "uid"); the fold merges them back together on every read.
package downtime

import (
	"errors"
	"fmt"

	"larpcamp.org/internal/eventlog"
)

// Stored field names.
const (
	FieldUID          = "uid"
	FieldProposal     = "proposal"
	FieldStaffComment = "staff_comment"
	FieldIsComplete   = "is_complete"
)

var ErrMalformedEvent = errors.New("downtime: event carries no proposal, comment or completion")

// Event is a decoded downtime log entry. Empty strings mean the field was
// absent.
type Event struct {
	ID            eventlog.EntryID
	CorrelationID string
	Proposal      string
	StaffComment  string
	IsComplete    bool
}

// Empty reports whether the event carries no payload.
func (e Event) Empty() bool {
	return e.Proposal == "" && e.StaffComment == "" && !e.IsComplete
}

// State is the merged view of one negotiation. Zero timestamps mean "never".
type State struct {
	CorrelationID   string `json:"uid"`
	Proposal        string `json:"proposal,omitempty"`
	StaffComment    string `json:"staff_comment,omitempty"`
	IsComplete      bool   `json:"is_complete"`
	PlayerUpdatedAt int64  `json:"player_updated_at,omitempty"`
	StaffUpdatedAt  int64  `json:"staff_updated_at,omitempty"`
}

// AwaitingReview reports whether staff still owe the player a response: the
// negotiation is open and the player spoke last (or staff never did).
func (s State) AwaitingReview() bool {
	if s.IsComplete {
		return false
	}
	return s.StaffUpdatedAt == 0 || s.StaffUpdatedAt < s.PlayerUpdatedAt
}

// Decode reads an entry. A malformed entry is still returned alongside
// ErrMalformedEvent so its correlation id can be registered.
func Decode(entry eventlog.Entry) (Event, error) {
	ev := Event{
		ID:            entry.ID,
		CorrelationID: entry.Fields[FieldUID],
		Proposal:      entry.Fields[FieldProposal],
		StaffComment:  entry.Fields[FieldStaffComment],
		IsComplete:    parseFlag(entry.Fields[FieldIsComplete]),
	}
	if ev.Empty() {
		return ev, fmt.Errorf("%w: entry %s", ErrMalformedEvent, entry.ID)
	}
	return ev, nil
}

// Encode produces the fields for an append. Only set payload fields are written.
func Encode(ev Event) eventlog.Fields {
	f := eventlog.Fields{FieldUID: ev.CorrelationID}
	if ev.Proposal != "" {
		f[FieldProposal] = ev.Proposal
	}
	if ev.StaffComment != "" {
		f[FieldStaffComment] = ev.StaffComment
	}
	if ev.IsComplete {
		f[FieldIsComplete] = "1"
	}
	return f
}

func parseFlag(v string) bool {
	switch v {
	case "", "0", "false", "FALSE", "False":
		return false
	}
	return true
}

// Fold merges events, oldest first, into one state per correlation id. The
// result keeps the order in which correlation ids first appeared. Fold is
// pure: the same input always yields the same output.
func Fold(events []Event) []State {
	index := make(map[string]int)
	var out []State
	for _, ev := range events {
		i, ok := index[ev.CorrelationID]
		if !ok {
			i = len(out)
			index[ev.CorrelationID] = i
			out = append(out, State{CorrelationID: ev.CorrelationID})
		}
		st := &out[i]
		ts := ev.ID.Timestamp()

		if ev.Proposal != "" {
			st.Proposal = ev.Proposal
			st.PlayerUpdatedAt = ts
		}
		if ev.StaffComment != "" {
			st.StaffComment = ev.StaffComment
			st.StaffUpdatedAt = ts
		}
		if ev.IsComplete {
			st.IsComplete = true
			st.StaffUpdatedAt = ts
		}
	}
	if out == nil {
		return []State{}
	}
	return out
}

// Replay decodes and folds a raw log. onMalformed, when set, is told about
// every entry without payload; such entries still register their id.
func Replay(entries []eventlog.Entry, onMalformed func(eventlog.Entry, error)) []State {
	events := make([]Event, 0, len(entries))
	for _, entry := range entries {
		ev, err := Decode(entry)
		if err != nil && onMalformed != nil {
			onMalformed(entry, err)
		}
		events = append(events, ev)
	}
	return Fold(events)
}

// Pending keeps the negotiations awaiting staff review, in fold order.
func Pending(states []State) []State {
	out := make([]State, 0, len(states))
	for _, s := range states {
		if s.AwaitingReview() {
			out = append(out, s)
		}
	}
	return out
}
