// Package memstore is an in-process campaign backend for development and tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"larpcamp.org/internal/campaign"
	"larpcamp.org/internal/eventlog"
	"larpcamp.org/internal/watermark"
)

type Store struct {
	mu sync.RWMutex

	now        func() time.Time
	logs       map[string][]eventlog.Entry
	characters map[string]campaign.Character
	tags       map[string]map[string]struct{}
	staff      map[string]campaign.Staff
	setupKey   *string
	watermark  watermark.Watermark
}

var _ campaign.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithClock overrides the time used to stamp appended entries.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.logs = make(map[string][]eventlog.Entry)
	s.characters = make(map[string]campaign.Character)
	s.tags = make(map[string]map[string]struct{})
	s.staff = make(map[string]campaign.Staff)
	s.setupKey = nil
	s.watermark = 0
}

// Reset drops every key.
func (s *Store) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) Append(_ context.Context, streamKey string, fields eventlog.Fields) (eventlog.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last eventlog.EntryID
	if log := s.logs[streamKey]; len(log) > 0 {
		last = log[len(log)-1].ID
	}
	id := eventlog.NextID(last, s.now())
	s.logs[streamKey] = append(s.logs[streamKey], eventlog.Entry{ID: id, Fields: fields.Clone()})
	return id, nil
}

func (s *Store) ReadAll(_ context.Context, streamKey string) ([]eventlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.logs[streamKey]
	out := make([]eventlog.Entry, len(log))
	for i, e := range log {
		out[i] = eventlog.Entry{ID: e.ID, Fields: e.Fields.Clone()}
	}
	return out, nil
}

// StreamKeys lists every log with at least one entry.
func (s *Store) StreamKeys(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.logs))
	for k := range s.logs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) CreateCharacter(_ context.Context, c campaign.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.characters[c.Key]; ok {
		return campaign.ErrConflict
	}
	c.Stats = cloneStats(c.Stats)
	s.characters[c.Key] = c
	return nil
}

func (s *Store) GetCharacter(_ context.Context, key string) (campaign.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.characters[key]
	if !ok {
		return campaign.Character{}, campaign.ErrNotFound
	}
	c.Stats = cloneStats(c.Stats)
	return c, nil
}

func (s *Store) ListCharacterKeys(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.characters))
	for k := range s.characters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) UpdateCharacterStats(_ context.Context, key string, stats map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[key]
	if !ok {
		return campaign.ErrNotFound
	}
	c.Stats = cloneStats(stats)
	s.characters[key] = c
	return nil
}

func (s *Store) CharacterTags(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.tags[key]
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) AddCharacterTags(_ context.Context, key string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.tags[key]
	if !ok {
		set = make(map[string]struct{}, len(tags))
		s.tags[key] = set
	}
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return nil
}

func (s *Store) RemoveCharacterTags(_ context.Context, key string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.tags[key]
	for _, t := range tags {
		delete(set, t)
	}
	return nil
}

func (s *Store) CreateStaff(_ context.Context, st campaign.Staff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.staff[st.Key]; ok {
		return campaign.ErrConflict
	}
	s.staff[st.Key] = st
	return nil
}

func (s *Store) GetStaff(_ context.Context, key string) (campaign.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.staff[key]
	if !ok {
		return campaign.Staff{}, campaign.ErrNotFound
	}
	return st, nil
}

func (s *Store) ListStaff(context.Context) ([]campaign.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]campaign.Staff, 0, len(s.staff))
	for _, st := range s.staff {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) MarkStaffLoginComplete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.staff[key]
	if !ok {
		return campaign.ErrNotFound
	}
	st.LoginComplete = true
	s.staff[key] = st
	return nil
}

func (s *Store) SetupKey(context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.setupKey == nil {
		return "", false, nil
	}
	return *s.setupKey, true, nil
}

func (s *Store) SetSetupKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setupKey = &key
	return nil
}

func (s *Store) Watermark(context.Context) (watermark.Watermark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark, nil
}

func (s *Store) SetWatermark(_ context.Context, w watermark.Watermark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermark = w
	return nil
}

func cloneStats(stats map[string]any) map[string]any {
	out := make(map[string]any, len(stats))
	for k, v := range stats {
		out[k] = v
	}
	return out
}
