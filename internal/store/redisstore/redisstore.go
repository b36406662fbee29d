// Package redisstore keeps campaign state in Redis: logs are streams,
// profiles are hashes and tag lists are sets.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"larpcamp.org/internal/campaign"
	"larpcamp.org/internal/eventlog"
	"larpcamp.org/internal/watermark"
)

const (
	keyCharacters     = "characters"
	keySetupUser      = "setup-user"
	keyWatermark      = "publishing-watermark"
	characterPrefix   = "character:"
	characterTagsPref = "character-tags:"
	staffPrefix       = "staff:"
)

type Store struct {
	rdb redis.UniversalClient
}

var _ campaign.Store = (*Store)(nil)

// Open parses a redis:// URL and connects.
func Open(url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(redis.NewClient(opts)), nil
}

func New(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

// Reset flushes the selected database.
func (s *Store) Reset(ctx context.Context) error { return s.rdb.FlushDB(ctx).Err() }

// Append lets Redis assign the id, which keeps ids increasing per stream.
func (s *Store) Append(ctx context.Context, streamKey string, fields eventlog.Fields) (eventlog.EntryID, error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	raw, err := s.rdb.XAdd(ctx, &redis.XAddArgs{Stream: streamKey, ID: "*", Values: values}).Result()
	if err != nil {
		return eventlog.EntryID{}, err
	}
	return eventlog.ParseID(raw)
}

func (s *Store) ReadAll(ctx context.Context, streamKey string) ([]eventlog.Entry, error) {
	msgs, err := s.rdb.XRange(ctx, streamKey, "-", "+").Result()
	if err != nil {
		return nil, err
	}
	out := make([]eventlog.Entry, 0, len(msgs))
	for _, m := range msgs {
		id, err := eventlog.ParseID(m.ID)
		if err != nil {
			return nil, err
		}
		fields := make(eventlog.Fields, len(m.Values))
		for k, v := range m.Values {
			fields[k] = fmt.Sprint(v)
		}
		out = append(out, eventlog.Entry{ID: id, Fields: fields})
	}
	return out, nil
}

// StreamKeys lists every stream key in the database.
func (s *Store) StreamKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.rdb.ScanType(ctx, 0, "*", 100, "stream").Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) CreateCharacter(ctx context.Context, c campaign.Character) error {
	stats, err := eventlog.EncodeObject(c.Stats)
	if err != nil {
		return err
	}
	key := characterPrefix + c.Key
	ok, err := s.rdb.HSetNX(ctx, key, "player_name", c.PlayerName).Result()
	if err != nil {
		return err
	}
	if !ok {
		return campaign.ErrConflict
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "shadow_name", c.ShadowName, "stats", stats)
		p.SAdd(ctx, keyCharacters, c.Key)
		return nil
	})
	return err
}

func (s *Store) GetCharacter(ctx context.Context, key string) (campaign.Character, error) {
	hash, err := s.rdb.HGetAll(ctx, characterPrefix+key).Result()
	if err != nil {
		return campaign.Character{}, err
	}
	if len(hash) == 0 {
		return campaign.Character{}, campaign.ErrNotFound
	}
	stats, err := eventlog.DecodeObject(hash["stats"])
	if err != nil {
		return campaign.Character{}, err
	}
	return campaign.Character{
		Key:        key,
		PlayerName: hash["player_name"],
		ShadowName: hash["shadow_name"],
		Stats:      stats,
	}, nil
}

func (s *Store) ListCharacterKeys(ctx context.Context) ([]string, error) {
	keys, err := s.rdb.SMembers(ctx, keyCharacters).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) UpdateCharacterStats(ctx context.Context, key string, stats map[string]any) error {
	n, err := s.rdb.Exists(ctx, characterPrefix+key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return campaign.ErrNotFound
	}
	raw, err := eventlog.EncodeObject(stats)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, characterPrefix+key, "stats", raw).Err()
}

func (s *Store) CharacterTags(ctx context.Context, key string) ([]string, error) {
	tags, err := s.rdb.SMembers(ctx, characterTagsPref+key).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(tags)
	return tags, nil
}

func (s *Store) AddCharacterTags(ctx context.Context, key string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	return s.rdb.SAdd(ctx, characterTagsPref+key, toAny(tags)...).Err()
}

func (s *Store) RemoveCharacterTags(ctx context.Context, key string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	return s.rdb.SRem(ctx, characterTagsPref+key, toAny(tags)...).Err()
}

func (s *Store) CreateStaff(ctx context.Context, st campaign.Staff) error {
	key := staffPrefix + st.Key
	ok, err := s.rdb.HSetNX(ctx, key, "name", st.Name).Result()
	if err != nil {
		return err
	}
	if !ok {
		return campaign.ErrConflict
	}
	return s.rdb.HSet(ctx, key,
		"is_admin", strconv.FormatBool(st.IsAdmin),
		"login_complete", strconv.FormatBool(st.LoginComplete),
	).Err()
}

func (s *Store) GetStaff(ctx context.Context, key string) (campaign.Staff, error) {
	hash, err := s.rdb.HGetAll(ctx, staffPrefix+key).Result()
	if err != nil {
		return campaign.Staff{}, err
	}
	if len(hash) == 0 {
		return campaign.Staff{}, campaign.ErrNotFound
	}
	return staffFromHash(key, hash), nil
}

func (s *Store) ListStaff(ctx context.Context) ([]campaign.Staff, error) {
	out := make([]campaign.Staff, 0)
	iter := s.rdb.Scan(ctx, 0, staffPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()
		hash, err := s.rdb.HGetAll(ctx, redisKey).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, staffFromHash(strings.TrimPrefix(redisKey, staffPrefix), hash))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) MarkStaffLoginComplete(ctx context.Context, key string) error {
	n, err := s.rdb.Exists(ctx, staffPrefix+key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return campaign.ErrNotFound
	}
	return s.rdb.HSet(ctx, staffPrefix+key, "login_complete", "true").Err()
}

func (s *Store) SetupKey(ctx context.Context) (string, bool, error) {
	v, err := s.rdb.Get(ctx, keySetupUser).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) SetSetupKey(ctx context.Context, key string) error {
	return s.rdb.Set(ctx, keySetupUser, key, 0).Err()
}

func (s *Store) Watermark(ctx context.Context) (watermark.Watermark, error) {
	v, err := s.rdb.Get(ctx, keyWatermark).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return watermark.Parse(v)
}

func (s *Store) SetWatermark(ctx context.Context, w watermark.Watermark) error {
	return s.rdb.Set(ctx, keyWatermark, w.String(), 0).Err()
}

func staffFromHash(key string, hash map[string]string) campaign.Staff {
	return campaign.Staff{
		Key:           key,
		Name:          hash["name"],
		IsAdmin:       hash["is_admin"] == "true",
		LoginComplete: hash["login_complete"] == "true",
	}
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
