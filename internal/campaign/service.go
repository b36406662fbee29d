// Package campaign ties the log folds and journal views to the backing stores.
//
// The service never caches derived state: every read replays the relevant
// logs. Competing writes to the same downtime are not detected; the last
// append wins.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"larpcamp.org/internal/access"
	"larpcamp.org/internal/audit"
	"larpcamp.org/internal/downtime"
	"larpcamp.org/internal/eventlog"
	"larpcamp.org/internal/ids"
	"larpcamp.org/internal/journal"
	"larpcamp.org/internal/obs"
	"larpcamp.org/internal/stream"
	"larpcamp.org/internal/watermark"
)

// BootstrapStaffName is the admin account created on first start.
const BootstrapStaffName = "prime-mover"

const (
	msgCharacterUnauthorized = "Unauthorized -- please log in with your character key or contact your Storyteller to sign up."
	msgStaffUnauthorized     = "Unauthorized -- please log in with your staff key or contact your Storyteller to sign up."
)

// Notifier receives a change notification after every successful mutation.
type Notifier interface {
	Publish(evt stream.CampaignEvent)
}

type Service struct {
	store     Store
	publisher *watermark.Publisher
	notifier  Notifier
	now       func() time.Time
	newKey    func() string
	newUID    func() string
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source used for watermark releases.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithKeyGenerator overrides credential generation (tests).
func WithKeyGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newKey = fn
		}
	}
}

// WithNotifier publishes change notifications (the staff live stream).
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithUIDGenerator overrides downtime correlation id generation (tests).
func WithUIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newUID = fn
		}
	}
}

func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("campaign store is required")
	}
	s := &Service{
		store:  store,
		now:    time.Now,
		newKey: ids.Key,
		newUID: ids.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.publisher = watermark.NewPublisher(store, watermark.WithClock(func() time.Time { return s.now() }))
	return s, nil
}

// Bootstrap creates the initial admin the first time the service starts and
// returns its key. created is false when setup already happened.
func (s *Service) Bootstrap(ctx context.Context) (key string, created bool, err error) {
	if _, ok, err := s.store.SetupKey(ctx); err != nil {
		return "", false, fmt.Errorf("read setup key: %w", err)
	} else if ok {
		return "", false, nil
	}
	key = s.newKey()
	if err := s.store.CreateStaff(ctx, Staff{Key: key, Name: BootstrapStaffName, IsAdmin: true}); err != nil {
		return "", false, fmt.Errorf("create bootstrap staff: %w", err)
	}
	if err := s.store.SetSetupKey(ctx, key); err != nil {
		return "", false, fmt.Errorf("store setup key: %w", err)
	}
	obs.Logger().Info().Str("staff", BootstrapStaffName).Str("key", key).Msg("created initial admin user")
	return key, true, nil
}

// SetupKey returns the bootstrap admin key until the first staff login.
func (s *Service) SetupKey(ctx context.Context) (string, error) {
	key, _, err := s.store.SetupKey(ctx)
	return key, err
}

func (s *Service) AuthorizeCharacter(ctx context.Context, key string) (Character, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Character{}, MissingField("key")
	}
	c, err := s.store.GetCharacter(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return Character{}, unauthorized(msgCharacterUnauthorized)
	}
	if err != nil {
		return Character{}, fmt.Errorf("load character: %w", err)
	}
	return c, nil
}

func (s *Service) AuthorizeStaff(ctx context.Context, key string) (Staff, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Staff{}, MissingField("key")
	}
	st, err := s.store.GetStaff(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return Staff{}, unauthorized(msgStaffUnauthorized)
	}
	if err != nil {
		return Staff{}, fmt.Errorf("load staff: %w", err)
	}
	return st, nil
}

// CompleteStaffLogin records a staff member's first login. The first login of
// any staff member retires the bootstrap setup link.
func (s *Service) CompleteStaffLogin(ctx context.Context, st Staff) error {
	if st.LoginComplete {
		return nil
	}
	if err := s.store.MarkStaffLoginComplete(ctx, st.Key); err != nil {
		return fmt.Errorf("mark login complete: %w", err)
	}
	if err := s.store.SetSetupKey(ctx, ""); err != nil {
		return fmt.Errorf("clear setup key: %w", err)
	}
	s.record(ctx, "staff.first_login", map[string]any{"staff": st.Name}, nil)
	return nil
}

// PlayerData assembles the player's view. The watermark is read once, first,
// and used for the whole response.
func (s *Service) PlayerData(ctx context.Context, c Character) (PlayerData, error) {
	wm, err := s.publisher.Current(ctx)
	if err != nil {
		return PlayerData{}, fmt.Errorf("read watermark: %w", err)
	}
	tags, err := s.store.CharacterTags(ctx, c.Key)
	if err != nil {
		return PlayerData{}, fmt.Errorf("read tags: %w", err)
	}
	world, err := s.worldView(ctx, access.Player(tags))
	if err != nil {
		return PlayerData{}, err
	}
	personal, err := s.personalView(ctx, c.Key)
	if err != nil {
		return PlayerData{}, err
	}
	states, err := s.downtimes(ctx, c.Key)
	if err != nil {
		return PlayerData{}, err
	}

	published := journal.FilterPublished(append(world, personal...), wm)
	stats := c.Stats
	if stats == nil {
		stats = map[string]any{}
	}
	return PlayerData{
		PlayerName: c.PlayerName,
		ShadowName: c.ShadowName,
		Stats:      stats,
		Journal:    published,
		Threads:    journal.GroupAndOrderThreads(published),
		Downtime:   states,
	}, nil
}

// StaffData assembles the staff dashboard: every character with its effective
// tags and the downtimes awaiting review, plus the unfiltered world journal.
func (s *Service) StaffData(ctx context.Context, st Staff) (StaffData, error) {
	wm, err := s.publisher.Current(ctx)
	if err != nil {
		return StaffData{}, fmt.Errorf("read watermark: %w", err)
	}
	keys, err := s.store.ListCharacterKeys(ctx)
	if err != nil {
		return StaffData{}, fmt.Errorf("list characters: %w", err)
	}
	characters := make([]CharacterSummary, 0, len(keys))
	for _, key := range keys {
		c, err := s.store.GetCharacter(ctx, key)
		if errors.Is(err, ErrNotFound) {
			obs.Logger().Warn().Str("character", key).Msg("character listed without profile")
			continue
		}
		if err != nil {
			return StaffData{}, fmt.Errorf("load character %s: %w", key, err)
		}
		if c.Stats == nil {
			c.Stats = map[string]any{}
		}
		tags, err := s.store.CharacterTags(ctx, key)
		if err != nil {
			return StaffData{}, fmt.Errorf("read tags: %w", err)
		}
		states, err := s.downtimes(ctx, key)
		if err != nil {
			return StaffData{}, err
		}
		characters = append(characters, CharacterSummary{
			Character: c,
			Tags:      access.Effective(tags),
			Downtime:  downtime.Pending(states),
		})
	}
	world, err := s.worldView(ctx, access.Staff())
	if err != nil {
		return StaffData{}, err
	}
	return StaffData{
		IAm:        st.Name,
		Watermark:  wm,
		Characters: characters,
		Journal:    world,
		Threads:    journal.GroupAndOrderThreads(world),
	}, nil
}

// NewPlayer registers a character and returns it with its fresh key.
func (s *Service) NewPlayer(ctx context.Context, playerName, shadowName string) (Character, error) {
	playerName = strings.TrimSpace(playerName)
	shadowName = strings.TrimSpace(shadowName)
	if playerName == "" {
		return Character{}, MissingField("player_name")
	}
	if shadowName == "" {
		return Character{}, MissingField("shadow_name")
	}
	c := Character{
		Key:        s.newKey(),
		PlayerName: playerName,
		ShadowName: shadowName,
		Stats:      map[string]any{},
	}
	if err := s.store.CreateCharacter(ctx, c); err != nil {
		return Character{}, fmt.Errorf("create character: %w", err)
	}
	s.record(ctx, "character.create", map[string]any{"shadow_name": c.ShadowName},
		&stream.CampaignEvent{Kind: stream.KindNewPlayer, CharacterKey: c.Key})
	return c, nil
}

func (s *Service) UpdateStats(ctx context.Context, c Character, stats map[string]any) error {
	if len(stats) == 0 {
		return MissingField("stats")
	}
	if err := s.store.UpdateCharacterStats(ctx, c.Key, stats); err != nil {
		return fmt.Errorf("update stats: %w", err)
	}
	s.record(ctx, "character.stats", map[string]any{"shadow_name": c.ShadowName},
		&stream.CampaignEvent{Kind: stream.KindStats, CharacterKey: c.Key})
	return nil
}

func (s *Service) AddWorldJournalEntry(ctx context.Context, st Staff, tags []string, thread, description string) (eventlog.EntryID, error) {
	tags = cleanTags(tags)
	if len(tags) == 0 {
		return eventlog.EntryID{}, MissingField("tags")
	}
	thread = strings.TrimSpace(thread)
	if thread == "" {
		return eventlog.EntryID{}, MissingField("thread")
	}
	if strings.TrimSpace(description) == "" {
		return eventlog.EntryID{}, MissingField("description_md")
	}
	id, err := s.append(ctx, eventlog.WorldJournalKey, journal.EncodeWorld(journal.WorldEvent{
		Staff:       st.Name,
		Tags:        tags,
		Thread:      thread,
		Description: description,
	}))
	if err != nil {
		return eventlog.EntryID{}, err
	}
	s.record(ctx, "journal.world_append", map[string]any{"thread": thread, "tags": tags, "entry_id": id.String()},
		&stream.CampaignEvent{Kind: stream.KindWorldJournal, Thread: thread})
	return id, nil
}

// ProposeDowntime starts a negotiation (empty uid) or revises one. It returns
// the negotiation's correlation id.
func (s *Service) ProposeDowntime(ctx context.Context, c Character, uid, proposal string) (string, error) {
	if strings.TrimSpace(proposal) == "" {
		return "", MissingField("proposal")
	}
	uid = strings.TrimSpace(uid)
	if uid == "" {
		uid = s.newUID()
	}
	if _, err := s.append(ctx, eventlog.DowntimeKey(c.Key), downtime.Encode(downtime.Event{
		CorrelationID: uid,
		Proposal:      proposal,
	})); err != nil {
		return "", err
	}
	s.record(ctx, "downtime.propose", map[string]any{"uid": uid},
		&stream.CampaignEvent{Kind: stream.KindDowntime, CharacterKey: c.Key})
	return uid, nil
}

func (s *Service) RejectDowntime(ctx context.Context, playerKey, uid, comment string) error {
	playerKey, uid = strings.TrimSpace(playerKey), strings.TrimSpace(uid)
	switch {
	case playerKey == "":
		return MissingField("player_key")
	case uid == "":
		return MissingField("uid")
	case strings.TrimSpace(comment) == "":
		return MissingField("staff_comment")
	}
	if err := s.requireCharacter(ctx, playerKey); err != nil {
		return err
	}
	if _, err := s.append(ctx, eventlog.DowntimeKey(playerKey), downtime.Encode(downtime.Event{
		CorrelationID: uid,
		StaffComment:  comment,
	})); err != nil {
		return err
	}
	s.record(ctx, "downtime.reject", map[string]any{"uid": uid},
		&stream.CampaignEvent{Kind: stream.KindDowntime, CharacterKey: playerKey})
	return nil
}

// AcceptDowntime completes a negotiation, then optionally writes a personal
// journal entry and grants tags. The steps are independent appends.
func (s *Service) AcceptDowntime(ctx context.Context, st Staff, req AcceptRequest) error {
	playerKey, uid := strings.TrimSpace(req.PlayerKey), strings.TrimSpace(req.UID)
	switch {
	case playerKey == "":
		return MissingField("player_key")
	case uid == "":
		return MissingField("uid")
	}
	if err := s.requireCharacter(ctx, playerKey); err != nil {
		return err
	}
	if _, err := s.append(ctx, eventlog.DowntimeKey(playerKey), downtime.Encode(downtime.Event{
		CorrelationID: uid,
		IsComplete:    true,
	})); err != nil {
		return err
	}
	if strings.TrimSpace(req.JournalEntry) != "" {
		if _, err := s.append(ctx, eventlog.PersonalJournalKey(playerKey), journal.EncodePersonal(journal.PersonalEvent{
			Staff:       st.Name,
			Description: req.JournalEntry,
		})); err != nil {
			return err
		}
	}
	tags := cleanTags(req.Tags)
	if len(tags) > 0 {
		if err := s.store.AddCharacterTags(ctx, playerKey, tags); err != nil {
			return fmt.Errorf("add tags: %w", err)
		}
	}
	s.record(ctx, "downtime.accept", map[string]any{
		"uid":          uid,
		"journal":      strings.TrimSpace(req.JournalEntry) != "",
		"granted_tags": tags,
	}, &stream.CampaignEvent{Kind: stream.KindDowntime, CharacterKey: playerKey})
	return nil
}

func (s *Service) AddTags(ctx context.Context, playerKey string, tags []string) error {
	playerKey, tags = strings.TrimSpace(playerKey), cleanTags(tags)
	if playerKey == "" {
		return MissingField("player_key")
	}
	if len(tags) == 0 {
		return MissingField("tags")
	}
	if err := s.requireCharacter(ctx, playerKey); err != nil {
		return err
	}
	if err := s.store.AddCharacterTags(ctx, playerKey, tags); err != nil {
		return fmt.Errorf("add tags: %w", err)
	}
	s.record(ctx, "tags.add", map[string]any{"tags": tags},
		&stream.CampaignEvent{Kind: stream.KindTags, CharacterKey: playerKey})
	return nil
}

func (s *Service) RemoveTags(ctx context.Context, playerKey string, tags []string) error {
	playerKey, tags = strings.TrimSpace(playerKey), cleanTags(tags)
	if playerKey == "" {
		return MissingField("player_key")
	}
	if len(tags) == 0 {
		return MissingField("tags")
	}
	if err := s.store.RemoveCharacterTags(ctx, playerKey, tags); err != nil {
		return fmt.Errorf("remove tags: %w", err)
	}
	s.record(ctx, "tags.remove", map[string]any{"tags": tags},
		&stream.CampaignEvent{Kind: stream.KindTags, CharacterKey: playerKey})
	return nil
}

// ReleaseJournalDrafts publishes every journal entry appended before now.
func (s *Service) ReleaseJournalDrafts(ctx context.Context) (watermark.Watermark, error) {
	w, err := s.publisher.Release(ctx)
	if err != nil {
		return 0, err
	}
	obs.SetWatermark(int64(w))
	s.record(ctx, "journal.release", map[string]any{"watermark": int64(w)},
		&stream.CampaignEvent{Kind: stream.KindRelease})
	return w, nil
}

// Keys lists every staff and character credential.
func (s *Service) Keys(ctx context.Context) (KeyDump, error) {
	staff, err := s.store.ListStaff(ctx)
	if err != nil {
		return KeyDump{}, fmt.Errorf("list staff: %w", err)
	}
	keys, err := s.store.ListCharacterKeys(ctx)
	if err != nil {
		return KeyDump{}, fmt.Errorf("list characters: %w", err)
	}
	dump := KeyDump{Staff: staff, Characters: make([]Character, 0, len(keys))}
	for _, key := range keys {
		c, err := s.store.GetCharacter(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return KeyDump{}, err
		}
		dump.Characters = append(dump.Characters, c)
	}
	return dump, nil
}

// record writes the audit line and, when evt is set, notifies subscribers.
func (s *Service) record(ctx context.Context, event string, fields map[string]any, evt *stream.CampaignEvent) {
	if err := audit.LogEvent(ctx, event, fields); err != nil {
		obs.Logger().Error().Err(err).Str("event", event).Msg("audit log failed")
	}
	if evt != nil && s.notifier != nil {
		s.notifier.Publish(*evt)
	}
}

func (s *Service) requireCharacter(ctx context.Context, key string) error {
	_, err := s.store.GetCharacter(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return notFound("unknown character", err)
	}
	if err != nil {
		return fmt.Errorf("load character: %w", err)
	}
	return nil
}

func (s *Service) append(ctx context.Context, streamKey string, fields eventlog.Fields) (eventlog.EntryID, error) {
	id, err := s.store.Append(ctx, streamKey, fields)
	if err != nil {
		return eventlog.EntryID{}, fmt.Errorf("append %s: %w", eventlog.Kind(streamKey), err)
	}
	obs.CountAppend(eventlog.Kind(streamKey))
	return id, nil
}

func (s *Service) worldView(ctx context.Context, aud access.Audience) ([]journal.Entry, error) {
	entries, err := s.store.ReadAll(ctx, eventlog.WorldJournalKey)
	if err != nil {
		return nil, fmt.Errorf("read world journal: %w", err)
	}
	events := journal.DecodeWorldLog(entries, reportMalformed(eventlog.WorldJournalKey))
	return journal.BuildWorldView(events, aud), nil
}

func (s *Service) personalView(ctx context.Context, characterKey string) ([]journal.Entry, error) {
	key := eventlog.PersonalJournalKey(characterKey)
	entries, err := s.store.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read personal journal: %w", err)
	}
	return journal.BuildPersonalView(journal.DecodePersonalLog(entries, reportMalformed(key))), nil
}

func (s *Service) downtimes(ctx context.Context, characterKey string) ([]downtime.State, error) {
	key := eventlog.DowntimeKey(characterKey)
	entries, err := s.store.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read downtime log: %w", err)
	}
	return downtime.Replay(entries, reportMalformed(key)), nil
}

func reportMalformed(streamKey string) func(eventlog.Entry, error) {
	return func(e eventlog.Entry, err error) {
		obs.CountMalformed(eventlog.Kind(streamKey))
		obs.Logger().Warn().
			Str("stream", streamKey).
			Str("entry_id", e.ID.String()).
			Err(err).
			Msg("skipping malformed log entry")
	}
}

// cleanTags trims, drops empties and removes duplicates, keeping order.
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
