// Package watermark holds the publication cutoff for journal entries.
//
// Entries strictly older than the watermark are published to players. The zero
// watermark publishes nothing. Releasing drafts moves the watermark to the
// current wall-clock time; there is no rollback.
package watermark

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Watermark is a cutoff in milliseconds since the epoch.
type Watermark int64

// At converts a wall-clock time into a watermark.
func At(t time.Time) Watermark { return Watermark(t.UnixMilli()) }

func (w Watermark) IsZero() bool { return w == 0 }

// Published reports whether an entry created at ts (ms) is visible. An entry
// exactly at the watermark is not yet published, so an append racing a
// release never shows up as published in the same instant.
func (w Watermark) Published(ts int64) bool { return ts < int64(w) }

func (w Watermark) String() string { return strconv.FormatInt(int64(w), 10) }

// Parse reads a stored watermark. Empty input is the zero watermark.
func Parse(raw string) (Watermark, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse watermark %q: %w", raw, err)
	}
	return Watermark(v), nil
}

// Store persists the single process-wide watermark.
type Store interface {
	Watermark(ctx context.Context) (Watermark, error)
	SetWatermark(ctx context.Context, w Watermark) error
}

// Publisher performs the release-drafts transition.
type Publisher struct {
	store Store
	now   func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(p *Publisher) {
		if fn != nil {
			p.now = fn
		}
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Current returns the watermark. Callers building one response must call it
// once and reuse the value.
func (p *Publisher) Current(ctx context.Context) (Watermark, error) {
	return p.store.Watermark(ctx)
}

// Release publishes everything appended before now.
func (p *Publisher) Release(ctx context.Context) (Watermark, error) {
	w := At(p.now())
	if err := p.store.SetWatermark(ctx, w); err != nil {
		return 0, fmt.Errorf("release drafts: %w", err)
	}
	return w, nil
}
