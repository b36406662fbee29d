package ids

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewIsSortable(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestTimeRoundTrip(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id := New()
	ts, ok := Time(id)
	if !ok {
		t.Fatalf("Time(%q) not ok", id)
	}
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Fatalf("unexpected embedded time %v", ts)
	}
	if _, ok := Time("not-a-ulid"); ok {
		t.Fatal("expected invalid id to be rejected")
	}
}

func TestKeyIsUUID(t *testing.T) {
	k := Key()
	if _, err := uuid.Parse(k); err != nil {
		t.Fatalf("Key() = %q is not a uuid: %v", k, err)
	}
	if Key() == k {
		t.Fatal("keys must differ")
	}
}
