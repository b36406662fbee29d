package campaign_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"larpcamp.org/internal/campaign"
	"larpcamp.org/internal/eventlog"
	"larpcamp.org/internal/store/memstore"
	"larpcamp.org/internal/stream"
)

type clock struct{ ms int64 }

func (c *clock) now() time.Time { return time.UnixMilli(c.ms) }

func (c *clock) advance(d time.Duration) { c.ms += d.Milliseconds() }

type fixture struct {
	svc   *campaign.Service
	store *memstore.Store
	clock *clock
	staff campaign.Staff
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{ms: 1_700_000_000_000}
	store := memstore.New(memstore.WithClock(clk.now))
	var n int
	svc, err := campaign.NewService(store,
		campaign.WithClock(clk.now),
		campaign.WithKeyGenerator(func() string { n++; return fmt.Sprintf("key-%d", n) }),
		campaign.WithUIDGenerator(func() string { n++; return fmt.Sprintf("uid-%d", n) }),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	key, created, err := svc.Bootstrap(ctx)
	if err != nil || !created {
		t.Fatalf("bootstrap: key=%q created=%v err=%v", key, created, err)
	}
	st, err := svc.AuthorizeStaff(ctx, key)
	if err != nil {
		t.Fatalf("authorize bootstrap staff: %v", err)
	}
	return &fixture{svc: svc, store: store, clock: clk, staff: st}
}

func TestNewServiceRequiresStore(t *testing.T) {
	if _, err := campaign.NewService(nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestBootstrapRunsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if !f.staff.IsAdmin || f.staff.Name != campaign.BootstrapStaffName {
		t.Fatalf("unexpected bootstrap staff %+v", f.staff)
	}
	if key, _ := f.svc.SetupKey(ctx); key != f.staff.Key {
		t.Fatalf("pending setup key = %q, want %q", key, f.staff.Key)
	}
	if _, created, err := f.svc.Bootstrap(ctx); err != nil || created {
		t.Fatalf("second bootstrap created=%v err=%v", created, err)
	}
	if err := f.svc.CompleteStaffLogin(ctx, f.staff); err != nil {
		t.Fatal(err)
	}
	if key, _ := f.svc.SetupKey(ctx); key != "" {
		t.Fatalf("setup key should be retired, got %q", key)
	}
	st, _ := f.svc.AuthorizeStaff(ctx, f.staff.Key)
	if !st.LoginComplete {
		t.Fatal("login not marked complete")
	}
}

func TestAuthorizeErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AuthorizeCharacter(ctx, "")
	if campaign.KindOf(err) != campaign.KindMissingField {
		t.Fatalf("expected missing field, got %v", err)
	}
	_, err = f.svc.AuthorizeCharacter(ctx, "nope")
	if campaign.KindOf(err) != campaign.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	_, err = f.svc.AuthorizeStaff(ctx, "nope")
	if campaign.KindOf(err) != campaign.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestDowntimeNegotiation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.svc.NewPlayer(ctx, "Ann", "Raven")
	if err != nil {
		t.Fatal(err)
	}

	uid, err := f.svc.ProposeDowntime(ctx, c, "", "Scout the docks")
	if err != nil {
		t.Fatal(err)
	}
	if uid == "" {
		t.Fatal("expected generated uid")
	}

	sd, err := f.svc.StaffData(ctx, f.staff)
	if err != nil {
		t.Fatal(err)
	}
	if len(sd.Characters) != 1 || len(sd.Characters[0].Downtime) != 1 {
		t.Fatalf("expected one pending downtime, got %+v", sd.Characters)
	}
	if got := sd.Characters[0].Tags; len(got) != 1 || got[0] != "everyone" {
		t.Fatalf("effective tags = %v", got)
	}

	f.clock.advance(time.Second)
	if err := f.svc.RejectDowntime(ctx, c.Key, uid, "Too vague"); err != nil {
		t.Fatal(err)
	}
	sd, _ = f.svc.StaffData(ctx, f.staff)
	if n := len(sd.Characters[0].Downtime); n != 0 {
		t.Fatalf("commented downtime should not be pending, got %d", n)
	}

	f.clock.advance(time.Second)
	if _, err := f.svc.ProposeDowntime(ctx, c, uid, "Scout the north docks"); err != nil {
		t.Fatal(err)
	}
	sd, _ = f.svc.StaffData(ctx, f.staff)
	if n := len(sd.Characters[0].Downtime); n != 1 {
		t.Fatalf("revised downtime should be pending again, got %d", n)
	}

	f.clock.advance(time.Second)
	err = f.svc.AcceptDowntime(ctx, f.staff, campaign.AcceptRequest{
		PlayerKey:    c.Key,
		UID:          uid,
		JournalEntry: "You find a smuggler's cache.",
		Tags:         []string{" smugglers ", "smugglers"},
	})
	if err != nil {
		t.Fatal(err)
	}

	pd, err := f.svc.PlayerData(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	if len(pd.Downtime) != 1 {
		t.Fatalf("expected one downtime, got %+v", pd.Downtime)
	}
	got := pd.Downtime[0]
	if !got.IsComplete || got.Proposal != "Scout the north docks" || got.StaffComment != "Too vague" {
		t.Fatalf("unexpected folded state %+v", got)
	}
	if len(pd.Journal) != 0 {
		t.Fatalf("unreleased journal visible to player: %+v", pd.Journal)
	}

	f.clock.advance(time.Second)
	if _, err := f.svc.ReleaseJournalDrafts(ctx); err != nil {
		t.Fatal(err)
	}
	pd, _ = f.svc.PlayerData(ctx, c)
	if len(pd.Journal) != 1 || pd.Journal[0].Thread != "Personal" {
		t.Fatalf("expected released personal entry, got %+v", pd.Journal)
	}
	if len(pd.Threads) != 1 || pd.Threads[0].Title != "Personal" {
		t.Fatalf("unexpected threads %+v", pd.Threads)
	}

	tags, _ := f.store.CharacterTags(ctx, c.Key)
	if len(tags) != 1 || tags[0] != "smugglers" {
		t.Fatalf("accept should grant cleaned tags, got %v", tags)
	}
}

func TestWorldJournalVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, _ := f.svc.NewPlayer(ctx, "Bo", "Wisp")

	if _, err := f.svc.AddWorldJournalEntry(ctx, f.staff, []string{"everyone"}, "Omens", "Red moon."); err != nil {
		t.Fatal(err)
	}
	f.clock.advance(time.Millisecond)
	if _, err := f.svc.AddWorldJournalEntry(ctx, f.staff, []string{"mages"}, "Omens", "The ley lines hum."); err != nil {
		t.Fatal(err)
	}
	f.clock.advance(time.Millisecond)
	if _, err := f.svc.ReleaseJournalDrafts(ctx); err != nil {
		t.Fatal(err)
	}

	pd, _ := f.svc.PlayerData(ctx, c)
	if len(pd.Journal) != 1 || pd.Journal[0].Description != "Red moon." {
		t.Fatalf("player without tags should only see public entry, got %+v", pd.Journal)
	}
	if pd.Journal[0].Staff != "" || pd.Journal[0].Tags != nil {
		t.Fatalf("player view leaked staff metadata: %+v", pd.Journal[0])
	}

	if err := f.svc.AddTags(ctx, c.Key, []string{"mages"}); err != nil {
		t.Fatal(err)
	}
	pd, _ = f.svc.PlayerData(ctx, c)
	if len(pd.Journal) != 2 {
		t.Fatalf("tagged player should see both entries, got %+v", pd.Journal)
	}

	sd, _ := f.svc.StaffData(ctx, f.staff)
	if len(sd.Journal) != 2 || sd.Journal[1].Staff != campaign.BootstrapStaffName {
		t.Fatalf("staff view should be unfiltered with authors, got %+v", sd.Journal)
	}

	if err := f.svc.RemoveTags(ctx, c.Key, []string{"mages"}); err != nil {
		t.Fatal(err)
	}
	pd, _ = f.svc.PlayerData(ctx, c)
	if len(pd.Journal) != 1 {
		t.Fatalf("removed tag should hide entry again, got %+v", pd.Journal)
	}
}

func TestMalformedEntriesAreSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, _ := f.svc.NewPlayer(ctx, "Cy", "Moth")
	if _, err := f.store.Append(ctx, eventlog.DowntimeKey(c.Key), eventlog.Fields{"uid": "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Append(ctx, eventlog.WorldJournalKey, eventlog.Fields{"tags": "not json", "thread": "T"}); err != nil {
		t.Fatal(err)
	}
	pd, err := f.svc.PlayerData(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	if len(pd.Journal) != 0 {
		t.Fatalf("untagged world entry leaked to player: %+v", pd.Journal)
	}
	if len(pd.Downtime) != 1 {
		t.Fatalf("payload-less entry should still register its uid, got %+v", pd.Downtime)
	}
	if st := pd.Downtime[0]; st.CorrelationID != "x" || st.Proposal != "" || st.IsComplete || st.PlayerUpdatedAt != 0 {
		t.Fatalf("payload-less entry merged fields: %+v", st)
	}
}

func TestValidationAndNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, _ := f.svc.NewPlayer(ctx, "Di", "Owl")

	cases := []struct {
		name  string
		err   error
		kind  campaign.Kind
		field string
	}{
		{"new player name", func() error { _, err := f.svc.NewPlayer(ctx, " ", "x"); return err }(), campaign.KindMissingField, "player_name"},
		{"propose empty", func() error { _, err := f.svc.ProposeDowntime(ctx, c, "", ""); return err }(), campaign.KindMissingField, "proposal"},
		{"reject no comment", f.svc.RejectDowntime(ctx, c.Key, "u", ""), campaign.KindMissingField, "staff_comment"},
		{"reject unknown", f.svc.RejectDowntime(ctx, "ghost", "u", "no"), campaign.KindNotFound, ""},
		{"accept unknown", f.svc.AcceptDowntime(ctx, f.staff, campaign.AcceptRequest{PlayerKey: "ghost", UID: "u"}), campaign.KindNotFound, ""},
		{"world no tags", func() error {
			_, err := f.svc.AddWorldJournalEntry(ctx, f.staff, []string{" "}, "T", "d")
			return err
		}(), campaign.KindMissingField, "tags"},
		{"stats empty", f.svc.UpdateStats(ctx, c, nil), campaign.KindMissingField, "stats"},
		{"add tags unknown", f.svc.AddTags(ctx, "ghost", []string{"a"}), campaign.KindNotFound, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := campaign.KindOf(tc.err); got != tc.kind {
				t.Fatalf("kind = %v, want %v (err %v)", got, tc.kind, tc.err)
			}
			if tc.field == "" {
				return
			}
			var ce *campaign.Error
			if !errors.As(tc.err, &ce) || ce.Field != tc.field {
				t.Fatalf("field = %+v, want %q", ce, tc.field)
			}
		})
	}
}

func TestKeysListsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.svc.NewPlayer(ctx, "Ed", "Fox")
	dump, err := f.svc.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dump.Staff) != 1 || len(dump.Characters) != 1 || dump.Characters[0].ShadowName != "Fox" {
		t.Fatalf("unexpected dump %+v", dump)
	}
}

type recorder struct{ events []stream.CampaignEvent }

func (r *recorder) Publish(evt stream.CampaignEvent) { r.events = append(r.events, evt) }

func TestMutationsNotify(t *testing.T) {
	rec := &recorder{}
	svc, err := campaign.NewService(memstore.New(), campaign.WithNotifier(rec))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	c, err := svc.NewPlayer(ctx, "Fa", "Heron")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ProposeDowntime(ctx, c, "", "Study"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ReleaseJournalDrafts(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ProposeDowntime(ctx, c, "", ""); err == nil {
		t.Fatal("expected validation error")
	}

	want := []string{stream.KindNewPlayer, stream.KindDowntime, stream.KindRelease}
	if len(rec.events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(rec.events), len(want), rec.events)
	}
	for i, kind := range want {
		if rec.events[i].Kind != kind {
			t.Fatalf("event %d kind = %q, want %q", i, rec.events[i].Kind, kind)
		}
	}
	if rec.events[1].CharacterKey != c.Key {
		t.Fatalf("downtime event missing character key: %+v", rec.events[1])
	}
}
