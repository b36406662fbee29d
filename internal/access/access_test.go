package access

import (
	"reflect"
	"testing"
)

func TestEffectiveAddsEveryoneOnce(t *testing.T) {
	got := Effective([]string{"cabal:watch", "everyone", "cabal:watch"})
	want := []string{"cabal:watch", "everyone"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Effective = %v, want %v", got, want)
	}
	if got := Effective(nil); !reflect.DeepEqual(got, []string{Everyone}) {
		t.Fatalf("Effective(nil) = %v", got)
	}
}

func TestAudienceCanSee(t *testing.T) {
	readers := map[string][]string{
		"none":  nil,
		"watch": {"cabal:watch"},
		"both":  {"cabal:watch", "court"},
	}
	entries := [][]string{
		{"everyone"},
		{"cabal:watch"},
		{"court", "cabal:watch"},
		{"court"},
		{},
		nil,
	}
	for name, assigned := range readers {
		aud := Player(assigned)
		effective := NewTagSet(append(assigned, Everyone)...)
		for _, tags := range entries {
			want := false
			for _, t := range tags {
				if effective.Has(t) {
					want = true
				}
			}
			if got := aud.CanSee(tags); got != want {
				t.Fatalf("reader %s entry %v: CanSee=%v want %v", name, tags, got, want)
			}
		}
	}
}

func TestStaffSeesEverything(t *testing.T) {
	aud := Staff()
	if !aud.IsStaff() {
		t.Fatal("expected staff audience")
	}
	for _, tags := range [][]string{nil, {}, {"secret"}} {
		if !aud.CanSee(tags) {
			t.Fatalf("staff should see %v", tags)
		}
	}
	if Player(nil).IsStaff() {
		t.Fatal("player audience reported as staff")
	}
}

func TestTagSetSorted(t *testing.T) {
	got := NewTagSet("b", "a", "c").Sorted()
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("Sorted = %v", got)
	}
}
