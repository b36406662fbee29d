package downtime

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"larpcamp.org/internal/eventlog"
)

func entry(ms int64, fields eventlog.Fields) eventlog.Entry {
	return eventlog.Entry{ID: eventlog.EntryID{Millis: ms}, Fields: fields}
}

func scenarioA() []eventlog.Entry {
	return []eventlog.Entry{
		entry(100, eventlog.Fields{"uid": "x", "proposal": "steal bread"}),
		entry(200, eventlog.Fields{"uid": "x", "staff_comment": "denied"}),
	}
}

func TestReplayScenarioA(t *testing.T) {
	got := Replay(scenarioA(), nil)
	want := []State{{
		CorrelationID:   "x",
		Proposal:        "steal bread",
		StaffComment:    "denied",
		IsComplete:      false,
		PlayerUpdatedAt: 100,
		StaffUpdatedAt:  200,
	}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Replay = %+v, want %+v", got, want)
	}
}

func TestReplayScenarioB(t *testing.T) {
	log := append(scenarioA(), entry(300, eventlog.Fields{"uid": "x", "is_complete": "1"}))
	got := Replay(log, nil)
	if len(got) != 1 {
		t.Fatalf("expected one state, got %d", len(got))
	}
	if !got[0].IsComplete || got[0].StaffUpdatedAt != 300 {
		t.Fatalf("unexpected state %+v", got[0])
	}
	if got[0].StaffComment != "denied" || got[0].PlayerUpdatedAt != 100 {
		t.Fatalf("earlier fields lost: %+v", got[0])
	}
}

func TestFoldEmpty(t *testing.T) {
	got := Fold(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("Fold(nil) = %#v, want empty slice", got)
	}
	if got := Replay([]eventlog.Entry{}, nil); len(got) != 0 {
		t.Fatalf("Replay(empty) = %#v", got)
	}
}

func TestFoldKeepsFirstAppearanceOrder(t *testing.T) {
	events := []Event{
		{ID: eventlog.EntryID{Millis: 1}, CorrelationID: "b", Proposal: "b1"},
		{ID: eventlog.EntryID{Millis: 2}, CorrelationID: "a", Proposal: "a1"},
		{ID: eventlog.EntryID{Millis: 3}, CorrelationID: "c", Proposal: "c1"},
		{ID: eventlog.EntryID{Millis: 4}, CorrelationID: "a", Proposal: "a2"},
		{ID: eventlog.EntryID{Millis: 5}, CorrelationID: "b", StaffComment: "ok"},
	}
	got := Fold(events)
	var order []string
	for _, s := range got {
		order = append(order, s.CorrelationID)
	}
	if !reflect.DeepEqual(order, []string{"b", "a", "c"}) {
		t.Fatalf("order = %v", order)
	}
	if got[1].Proposal != "a2" || got[1].PlayerUpdatedAt != 4 {
		t.Fatalf("latest proposal should win: %+v", got[1])
	}
}

func TestFoldIsIdempotent(t *testing.T) {
	log := append(scenarioA(),
		entry(250, eventlog.Fields{"uid": "y", "proposal": "spy"}),
		entry(300, eventlog.Fields{"uid": "x", "is_complete": "1"}),
	)
	first := Replay(log, nil)
	second := Replay(log, nil)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("fold not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestCompletionIsMonotonic(t *testing.T) {
	base := []Event{
		{ID: eventlog.EntryID{Millis: 1}, CorrelationID: "x", Proposal: "p"},
		{ID: eventlog.EntryID{Millis: 2}, CorrelationID: "x", IsComplete: true},
		{ID: eventlog.EntryID{Millis: 3}, CorrelationID: "x", StaffComment: "c"},
		{ID: eventlog.EntryID{Millis: 4}, CorrelationID: "x", Proposal: "p2"},
		{ID: eventlog.EntryID{Millis: 5}, CorrelationID: "x"},
	}
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		perm := append([]Event(nil), base...)
		rnd.Shuffle(len(perm), func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })
		perm = append(perm, Event{ID: eventlog.EntryID{Millis: 9}, CorrelationID: "x", Proposal: "late"})
		got := Fold(perm)
		if len(got) != 1 || !got[0].IsComplete {
			t.Fatalf("completion reverted for permutation %d: %+v", i, got)
		}
	}
}

func TestProposalAfterStaffUpdateStillOverwrites(t *testing.T) {
	got := Fold([]Event{
		{ID: eventlog.EntryID{Millis: 10}, CorrelationID: "x", StaffComment: "try again"},
		{ID: eventlog.EntryID{Millis: 5}, CorrelationID: "x", Proposal: "revised"},
	})
	if got[0].Proposal != "revised" || got[0].PlayerUpdatedAt != 5 || got[0].StaffUpdatedAt != 10 {
		t.Fatalf("unexpected state %+v", got[0])
	}
}

func TestMalformedEntryRegistersCorrelationID(t *testing.T) {
	var seen []eventlog.Entry
	log := []eventlog.Entry{
		entry(1, eventlog.Fields{"uid": "ghost"}),
		entry(2, eventlog.Fields{"uid": "x", "proposal": "p"}),
	}
	got := Replay(log, func(e eventlog.Entry, err error) {
		if !errors.Is(err, ErrMalformedEvent) {
			t.Fatalf("unexpected error %v", err)
		}
		seen = append(seen, e)
	})
	if len(seen) != 1 || seen[0].ID.Millis != 1 {
		t.Fatalf("malformed callback got %v", seen)
	}
	want := []State{
		{CorrelationID: "ghost"},
		{CorrelationID: "x", Proposal: "p", PlayerUpdatedAt: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Replay = %+v, want %+v", got, want)
	}
}

func TestEncodeDecode(t *testing.T) {
	cases := []Event{
		{CorrelationID: "x", Proposal: "p"},
		{CorrelationID: "x", StaffComment: "c"},
		{CorrelationID: "x", IsComplete: true},
	}
	for _, ev := range cases {
		fields := Encode(ev)
		back, err := Decode(eventlog.Entry{Fields: fields})
		if err != nil {
			t.Fatalf("Decode(%v): %v", fields, err)
		}
		if back != ev {
			t.Fatalf("round trip %+v -> %v -> %+v", ev, fields, back)
		}
	}
	if f := Encode(Event{CorrelationID: "x", IsComplete: true}); f[FieldIsComplete] != "1" {
		t.Fatalf("completion encoded as %q", f[FieldIsComplete])
	}
	if ev, _ := Decode(entry(1, eventlog.Fields{"uid": "x", "is_complete": "false"})); ev.IsComplete {
		t.Fatal("\"false\" must not complete a downtime")
	}
}

func TestPending(t *testing.T) {
	states := []State{
		{CorrelationID: "new", Proposal: "p", PlayerUpdatedAt: 10},
		{CorrelationID: "answered", Proposal: "p", PlayerUpdatedAt: 10, StaffUpdatedAt: 20},
		{CorrelationID: "revised", Proposal: "p2", PlayerUpdatedAt: 30, StaffUpdatedAt: 20},
		{CorrelationID: "done", Proposal: "p", PlayerUpdatedAt: 10, StaffUpdatedAt: 20, IsComplete: true},
	}
	var ids []string
	for _, s := range Pending(states) {
		ids = append(ids, s.CorrelationID)
	}
	if !reflect.DeepEqual(ids, []string{"new", "revised"}) {
		t.Fatalf("Pending = %v", ids)
	}
}
