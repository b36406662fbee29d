// Package pg stores campaign state in PostgreSQL through database/sql and the
// pgx driver.
package pg

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"larpcamp.org/internal/campaign"
	"larpcamp.org/internal/eventlog"
	"larpcamp.org/internal/watermark"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"

	settingSetupKey  = "setup-user"
	settingWatermark = "publishing-watermark"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations holds the schema files in migrate.Manager layout.
var Migrations fs.FS = mustSub(migrationFiles, "migrations")

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ campaign.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an existing handle (tests pass a sqlmock connection).
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Reset truncates every campaign table. Schema bookkeeping is kept.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `truncate log_entries, character_tags, characters, staff, settings`)
	return err
}

// Append serializes writers per stream with a transaction-scoped advisory lock
// so ids stay strictly increasing across processes.
func (s *Store) Append(ctx context.Context, streamKey string, fields eventlog.Fields) (eventlog.EntryID, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return eventlog.EntryID{}, fmt.Errorf("encode fields: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eventlog.EntryID{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `select pg_advisory_xact_lock(hashtext($1))`, streamKey); err != nil {
		return eventlog.EntryID{}, err
	}
	var last eventlog.EntryID
	err = tx.QueryRowContext(ctx, `
		select ms, seq from log_entries
		where stream = $1
		order by ms desc, seq desc
		limit 1
	`, streamKey).Scan(&last.Millis, &last.Seq)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return eventlog.EntryID{}, err
	}
	id := eventlog.NextID(last, s.now())
	if _, err := tx.ExecContext(ctx, `
		insert into log_entries(stream, ms, seq, fields) values ($1, $2, $3, $4)
	`, streamKey, id.Millis, id.Seq, payload); err != nil {
		return eventlog.EntryID{}, err
	}
	if err := tx.Commit(); err != nil {
		return eventlog.EntryID{}, err
	}
	return id, nil
}

func (s *Store) ReadAll(ctx context.Context, streamKey string) ([]eventlog.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select ms, seq, fields from log_entries
		where stream = $1
		order by ms asc, seq asc
	`, streamKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]eventlog.Entry, 0)
	for rows.Next() {
		var (
			e   eventlog.Entry
			raw []byte
		)
		if err := rows.Scan(&e.ID.Millis, &e.ID.Seq, &raw); err != nil {
			return nil, err
		}
		e.Fields = eventlog.Fields{}
		if err := json.Unmarshal(raw, &e.Fields); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// StreamKeys lists every log with at least one entry.
func (s *Store) StreamKeys(ctx context.Context) ([]string, error) {
	return s.strings(ctx, `select distinct stream from log_entries order by stream`)
}

func (s *Store) CreateCharacter(ctx context.Context, c campaign.Character) error {
	stats, err := encodeStats(c.Stats)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into characters(key, player_name, shadow_name, stats) values ($1, $2, $3, $4)
	`, c.Key, c.PlayerName, c.ShadowName, stats)
	return mapError(err)
}

func (s *Store) GetCharacter(ctx context.Context, key string) (campaign.Character, error) {
	c := campaign.Character{Key: key}
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		select player_name, shadow_name, stats from characters where key = $1
	`, key).Scan(&c.PlayerName, &c.ShadowName, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.Character{}, campaign.ErrNotFound
	}
	if err != nil {
		return campaign.Character{}, err
	}
	stats, err := eventlog.DecodeObject(string(raw))
	if err != nil {
		return campaign.Character{}, fmt.Errorf("decode stats: %w", err)
	}
	c.Stats = stats
	return c, nil
}

func (s *Store) ListCharacterKeys(ctx context.Context) ([]string, error) {
	return s.strings(ctx, `select key from characters order by created_at asc, key asc`)
}

func (s *Store) UpdateCharacterStats(ctx context.Context, key string, stats map[string]any) error {
	raw, err := encodeStats(stats)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `update characters set stats = $2 where key = $1`, key, raw)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) CharacterTags(ctx context.Context, key string) ([]string, error) {
	return s.strings(ctx, `select tag from character_tags where character_key = $1 order by tag`, key)
}

func (s *Store) AddCharacterTags(ctx context.Context, key string, tags []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, tag := range tags {
			if _, err := tx.ExecContext(ctx, `
				insert into character_tags(character_key, tag) values ($1, $2)
				on conflict do nothing
			`, key, tag); err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

func (s *Store) RemoveCharacterTags(ctx context.Context, key string, tags []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, tag := range tags {
			if _, err := tx.ExecContext(ctx, `
				delete from character_tags where character_key = $1 and tag = $2
			`, key, tag); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) CreateStaff(ctx context.Context, st campaign.Staff) error {
	_, err := s.db.ExecContext(ctx, `
		insert into staff(key, name, is_admin, login_complete) values ($1, $2, $3, $4)
	`, st.Key, st.Name, st.IsAdmin, st.LoginComplete)
	return mapError(err)
}

func (s *Store) GetStaff(ctx context.Context, key string) (campaign.Staff, error) {
	st := campaign.Staff{Key: key}
	err := s.db.QueryRowContext(ctx, `
		select name, is_admin, login_complete from staff where key = $1
	`, key).Scan(&st.Name, &st.IsAdmin, &st.LoginComplete)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.Staff{}, campaign.ErrNotFound
	}
	if err != nil {
		return campaign.Staff{}, err
	}
	return st, nil
}

func (s *Store) ListStaff(ctx context.Context) ([]campaign.Staff, error) {
	rows, err := s.db.QueryContext(ctx, `select key, name, is_admin, login_complete from staff order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]campaign.Staff, 0)
	for rows.Next() {
		var st campaign.Staff
		if err := rows.Scan(&st.Key, &st.Name, &st.IsAdmin, &st.LoginComplete); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) MarkStaffLoginComplete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `update staff set login_complete = true where key = $1`, key)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SetupKey(ctx context.Context) (string, bool, error) {
	return s.setting(ctx, settingSetupKey)
}

func (s *Store) SetSetupKey(ctx context.Context, key string) error {
	return s.setSetting(ctx, settingSetupKey, key)
}

func (s *Store) Watermark(ctx context.Context) (watermark.Watermark, error) {
	raw, _, err := s.setting(ctx, settingWatermark)
	if err != nil {
		return 0, err
	}
	return watermark.Parse(raw)
}

func (s *Store) SetWatermark(ctx context.Context, w watermark.Watermark) error {
	return s.setSetting(ctx, settingWatermark, w.String())
}

// --- helpers ---

func (s *Store) setting(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `select value from settings where name = $1`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) setSetting(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into settings(name, value) values ($1, $2)
		on conflict (name) do update set value = excluded.value
	`, name, value)
	return err
}

func (s *Store) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func encodeStats(stats map[string]any) (string, error) {
	raw, err := eventlog.EncodeObject(stats)
	if err != nil {
		return "", fmt.Errorf("encode stats: %w", err)
	}
	return raw, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return campaign.ErrConflict
		case pgErrForeignKeyViolation:
			return campaign.ErrNotFound
		}
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
