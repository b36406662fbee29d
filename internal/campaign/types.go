package campaign

import (
	"context"

	"larpcamp.org/internal/downtime"
	"larpcamp.org/internal/eventlog"
	"larpcamp.org/internal/journal"
	"larpcamp.org/internal/watermark"
)

// Character is a player character. Key doubles as the player's credential.
type Character struct {
	Key        string         `json:"key"`
	PlayerName string         `json:"player_name"`
	ShadowName string         `json:"shadow_name"`
	Stats      map[string]any `json:"stats"`
}

// Staff is a storyteller account. Key is its credential.
type Staff struct {
	Key           string `json:"key"`
	Name          string `json:"name"`
	IsAdmin       bool   `json:"is_admin"`
	LoginComplete bool   `json:"login_complete"`
}

// CharacterStore persists character profiles and the set of known characters.
type CharacterStore interface {
	CreateCharacter(ctx context.Context, c Character) error
	GetCharacter(ctx context.Context, key string) (Character, error)
	ListCharacterKeys(ctx context.Context) ([]string, error)
	UpdateCharacterStats(ctx context.Context, key string, stats map[string]any) error
}

// TagStore persists explicitly assigned character tags (never "everyone").
type TagStore interface {
	CharacterTags(ctx context.Context, key string) ([]string, error)
	AddCharacterTags(ctx context.Context, key string, tags []string) error
	RemoveCharacterTags(ctx context.Context, key string, tags []string) error
}

type StaffStore interface {
	CreateStaff(ctx context.Context, s Staff) error
	GetStaff(ctx context.Context, key string) (Staff, error)
	ListStaff(ctx context.Context) ([]Staff, error)
	MarkStaffLoginComplete(ctx context.Context, key string) error
}

// SetupStore remembers the bootstrap admin key. ok is false when the key was
// never written; an empty key means setup already finished.
type SetupStore interface {
	SetupKey(ctx context.Context) (key string, ok bool, err error)
	SetSetupKey(ctx context.Context, key string) error
}

// Store is everything the campaign service needs from a backend.
type Store interface {
	eventlog.Store
	CharacterStore
	TagStore
	StaffStore
	SetupStore
	watermark.Store
}

// PlayerData is the complete player-facing read model.
type PlayerData struct {
	PlayerName string           `json:"player_name"`
	ShadowName string           `json:"shadow_name"`
	Stats      map[string]any   `json:"stats"`
	Journal    []journal.Entry  `json:"journal"`
	Threads    []journal.Thread `json:"threads"`
	Downtime   []downtime.State `json:"downtime"`
}

// CharacterSummary is a character as listed for staff.
type CharacterSummary struct {
	Character
	Tags     []string         `json:"tags"`
	Downtime []downtime.State `json:"downtime"`
}

// StaffData is the staff dashboard read model.
type StaffData struct {
	IAm        string              `json:"iam"`
	Watermark  watermark.Watermark `json:"watermark"`
	Characters []CharacterSummary  `json:"characters"`
	Journal    []journal.Entry     `json:"journal"`
	Threads    []journal.Thread    `json:"threads"`
}

// AcceptRequest completes a downtime, optionally writing a personal journal
// entry and granting tags.
type AcceptRequest struct {
	PlayerKey    string
	UID          string
	JournalEntry string
	Tags         []string
}

// KeyDump lists every credential, for the admin CLI.
type KeyDump struct {
	Staff      []Staff     `json:"staff"`
	Characters []Character `json:"characters"`
}
