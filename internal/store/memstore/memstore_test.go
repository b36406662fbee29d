package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"larpcamp.org/internal/campaign"
	"larpcamp.org/internal/eventlog"
)

func TestAppendAssignsIncreasingIDs(t *testing.T) {
	ctx := context.Background()
	fixed := time.UnixMilli(1_700_000_000_000)
	s := New(WithClock(func() time.Time { return fixed }))

	a, err := s.Append(ctx, "world-journal", eventlog.Fields{"thread": "A"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Append(ctx, "world-journal", eventlog.Fields{"thread": "B"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Compare(b) >= 0 {
		t.Fatalf("ids not increasing: %s then %s", a, b)
	}
	if b.Millis != fixed.UnixMilli() || b.Seq != 1 {
		t.Fatalf("unexpected second id %s", b)
	}

	entries, err := s.ReadAll(ctx, "world-journal")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Fields["thread"] != "A" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	entries[0].Fields["thread"] = "mutated"
	again, _ := s.ReadAll(ctx, "world-journal")
	if again[0].Fields["thread"] != "A" {
		t.Fatal("ReadAll leaked internal state")
	}

	empty, err := s.ReadAll(ctx, "downtime:nobody")
	if err != nil || len(empty) != 0 {
		t.Fatalf("missing stream: %v %v", empty, err)
	}
}

func TestCharactersAndTags(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := campaign.Character{Key: "k1", PlayerName: "Ann", ShadowName: "Raven"}
	if err := s.CreateCharacter(ctx, c); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateCharacter(ctx, c); !errors.Is(err, campaign.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := s.GetCharacter(ctx, "missing"); !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.UpdateCharacterStats(ctx, "k1", map[string]any{"str": 3.0}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetCharacter(ctx, "k1")
	if got.Stats["str"] != 3.0 {
		t.Fatalf("stats not stored: %+v", got)
	}

	_ = s.AddCharacterTags(ctx, "k1", []string{"mage", "noble", "mage"})
	_ = s.RemoveCharacterTags(ctx, "k1", []string{"noble", "never-had"})
	tags, _ := s.CharacterTags(ctx, "k1")
	if len(tags) != 1 || tags[0] != "mage" {
		t.Fatalf("unexpected tags %v", tags)
	}
}

func TestSetupKeyAndReset(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, ok, _ := s.SetupKey(ctx); ok {
		t.Fatal("fresh store should have no setup key")
	}
	_ = s.SetSetupKey(ctx, "")
	if key, ok, _ := s.SetupKey(ctx); !ok || key != "" {
		t.Fatalf("cleared setup key should still be set: %q %v", key, ok)
	}
	_ = s.SetWatermark(ctx, 42)
	if err := s.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if w, _ := s.Watermark(ctx); w != 0 {
		t.Fatalf("watermark survived reset: %v", w)
	}
	if _, ok, _ := s.SetupKey(ctx); ok {
		t.Fatal("setup key survived reset")
	}
}
