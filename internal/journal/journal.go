// Package journal builds the world and personal journal views from their logs.
package journal

import (
	"errors"
	"fmt"
	"sort"

	"larpcamp.org/internal/access"
	"larpcamp.org/internal/eventlog"
	"larpcamp.org/internal/watermark"
)

// PersonalThread is the thread every personal journal entry belongs to.
const PersonalThread = "Personal"

// Stored field names.
const (
	FieldStaff       = "staff"
	FieldTags        = "tags"
	FieldThread      = "thread"
	FieldDescription = "description_md"
)

var ErrMalformedEvent = errors.New("journal: malformed event")

// WorldEvent is one entry of the shared world journal.
type WorldEvent struct {
	ID          eventlog.EntryID
	Staff       string
	Tags        []string
	Thread      string
	Description string
}

// PersonalEvent is one entry of a character's personal journal. Staff records
// who wrote it but is never shown.
type PersonalEvent struct {
	ID          eventlog.EntryID
	Staff       string
	Description string
}

// Entry is a journal line as served to a reader. Staff and Tags are only set
// in the staff view.
type Entry struct {
	Timestamp   int64    `json:"timestamp"`
	Thread      string   `json:"thread"`
	Description string   `json:"description_md"`
	Tags        []string `json:"tags,omitempty"`
	Staff       string   `json:"staff,omitempty"`
}

// Thread groups entries sharing a thread title.
type Thread struct {
	Title        string  `json:"title"`
	Entries      []Entry `json:"entries"`
	MaxTimestamp int64   `json:"max_timestamp"`
}

// DecodeWorld reads a world journal entry. Undecodable tags leave the event
// without tags (visible to staff only) and report ErrMalformedEvent.
func DecodeWorld(entry eventlog.Entry) (WorldEvent, error) {
	ev := WorldEvent{
		ID:          entry.ID,
		Staff:       entry.Fields[FieldStaff],
		Thread:      entry.Fields[FieldThread],
		Description: entry.Fields[FieldDescription],
	}
	tags, err := eventlog.DecodeStrings(entry.Fields[FieldTags])
	if err != nil {
		return ev, fmt.Errorf("%w: entry %s: %v", ErrMalformedEvent, entry.ID, err)
	}
	ev.Tags = tags
	if ev.Description == "" {
		return ev, fmt.Errorf("%w: entry %s has no description", ErrMalformedEvent, entry.ID)
	}
	return ev, nil
}

func EncodeWorld(ev WorldEvent) eventlog.Fields {
	return eventlog.Fields{
		FieldStaff:       ev.Staff,
		FieldTags:        eventlog.EncodeStrings(ev.Tags),
		FieldThread:      ev.Thread,
		FieldDescription: ev.Description,
	}
}

func DecodePersonal(entry eventlog.Entry) (PersonalEvent, error) {
	ev := PersonalEvent{
		ID:          entry.ID,
		Staff:       entry.Fields[FieldStaff],
		Description: entry.Fields[FieldDescription],
	}
	if ev.Description == "" {
		return ev, fmt.Errorf("%w: entry %s has no description", ErrMalformedEvent, entry.ID)
	}
	return ev, nil
}

func EncodePersonal(ev PersonalEvent) eventlog.Fields {
	f := eventlog.Fields{FieldDescription: ev.Description}
	if ev.Staff != "" {
		f[FieldStaff] = ev.Staff
	}
	return f
}

// DecodeWorldLog decodes every entry, reporting malformed ones to onMalformed.
// Malformed entries are kept so their thread still shows up.
func DecodeWorldLog(entries []eventlog.Entry, onMalformed func(eventlog.Entry, error)) []WorldEvent {
	out := make([]WorldEvent, 0, len(entries))
	for _, e := range entries {
		ev, err := DecodeWorld(e)
		if err != nil && onMalformed != nil {
			onMalformed(e, err)
		}
		out = append(out, ev)
	}
	return out
}

func DecodePersonalLog(entries []eventlog.Entry, onMalformed func(eventlog.Entry, error)) []PersonalEvent {
	out := make([]PersonalEvent, 0, len(entries))
	for _, e := range entries {
		ev, err := DecodePersonal(e)
		if err != nil && onMalformed != nil {
			onMalformed(e, err)
		}
		out = append(out, ev)
	}
	return out
}

// BuildWorldView keeps the events the audience may see. Staff get authorship
// and tags; players get neither.
func BuildWorldView(events []WorldEvent, aud access.Audience) []Entry {
	out := make([]Entry, 0, len(events))
	for _, ev := range events {
		if !aud.CanSee(ev.Tags) {
			continue
		}
		e := Entry{
			Timestamp:   ev.ID.Timestamp(),
			Thread:      ev.Thread,
			Description: ev.Description,
		}
		if aud.IsStaff() {
			e.Staff = ev.Staff
			e.Tags = append([]string(nil), ev.Tags...)
		}
		out = append(out, e)
	}
	return out
}

// BuildPersonalView renders every personal entry under PersonalThread.
func BuildPersonalView(events []PersonalEvent) []Entry {
	out := make([]Entry, 0, len(events))
	for _, ev := range events {
		out = append(out, Entry{
			Timestamp:   ev.ID.Timestamp(),
			Thread:      PersonalThread,
			Description: ev.Description,
		})
	}
	return out
}

// GroupAndOrderThreads groups entries by thread. Threads are ordered by their
// newest entry, oldest first, ties keeping first-appearance order; entries
// inside a thread are ordered oldest first.
func GroupAndOrderThreads(entries []Entry) []Thread {
	index := make(map[string]int)
	threads := make([]Thread, 0)
	for _, e := range entries {
		i, ok := index[e.Thread]
		if !ok {
			i = len(threads)
			index[e.Thread] = i
			threads = append(threads, Thread{Title: e.Thread, MaxTimestamp: e.Timestamp})
		}
		th := &threads[i]
		th.Entries = append(th.Entries, e)
		if e.Timestamp > th.MaxTimestamp {
			th.MaxTimestamp = e.Timestamp
		}
	}
	for i := range threads {
		entries := threads[i].Entries
		sort.SliceStable(entries, func(a, b int) bool { return entries[a].Timestamp < entries[b].Timestamp })
	}
	sort.SliceStable(threads, func(a, b int) bool { return threads[a].MaxTimestamp < threads[b].MaxTimestamp })
	return threads
}

// FilterPublished keeps entries strictly older than w.
func FilterPublished(entries []Entry, w watermark.Watermark) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if w.Published(e.Timestamp) {
			out = append(out, e)
		}
	}
	return out
}
