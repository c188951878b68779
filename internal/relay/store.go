package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/telhawk-beacon/internal/bridge"
)

// Store keeps the relay's native state in Redis: init options, mirrored
// scope, frame counters and the crashed-last-run flag.
type Store struct {
	redis  *redis.Client
	prefix string
}

// NewStore connects to the Redis instance at redisURL.
func NewStore(ctx context.Context, redisURL, prefix string) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewStoreWithClient(client, prefix), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.redis.Close()
}

// SaveOptions replaces the stored init options.
func (s *Store) SaveOptions(ctx context.Context, options map[string]any) error {
	fields := make(map[string]any, len(options))
	for k, v := range options {
		fields[k] = flatValue(v)
	}

	key := s.key("options")
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) > 0 {
			pipe.HSet(ctx, key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save options: %w", err)
	}
	return nil
}

// Options returns the stored init options as strings.
func (s *Store) Options(ctx context.Context) (map[string]string, error) {
	return s.redis.HGetAll(ctx, s.key("options")).Result()
}

// SetScopeValue sets field in one of the scope hashes.
func (s *Store) SetScopeValue(ctx context.Context, scope, field, value string) error {
	return s.redis.HSet(ctx, s.key("scope", scope), field, value).Err()
}

// DeleteScopeValue removes field from one of the scope hashes.
func (s *Store) DeleteScopeValue(ctx context.Context, scope, field string) error {
	return s.redis.HDel(ctx, s.key("scope", scope), field).Err()
}

// ScopeValues returns a whole scope hash.
func (s *Store) ScopeValues(ctx context.Context, scope string) (map[string]string, error) {
	return s.redis.HGetAll(ctx, s.key("scope", scope)).Result()
}

// ReplaceUser stores user and its extra data. Nil maps clear them.
func (s *Store) ReplaceUser(ctx context.Context, user, data map[string]string) error {
	userKey := s.key("scope", scopeUser)
	dataKey := s.key("scope", scopeUser, "data")
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, userKey, dataKey)
		if len(user) > 0 {
			pipe.HSet(ctx, userKey, anyMap(user))
		}
		if len(data) > 0 {
			pipe.HSet(ctx, dataKey, anyMap(data))
		}
		return nil
	})
	return err
}

// UserData returns the stored user extras.
func (s *Store) UserData(ctx context.Context) (map[string]string, error) {
	return s.redis.HGetAll(ctx, s.key("scope", scopeUser, "data")).Result()
}

// PushBreadcrumb appends crumb and keeps only the newest max entries.
func (s *Store) PushBreadcrumb(ctx context.Context, crumb map[string]any, max int) error {
	data, err := json.Marshal(crumb)
	if err != nil {
		return fmt.Errorf("failed to marshal breadcrumb: %w", err)
	}

	key := s.key("scope", "breadcrumbs")
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		if max > 0 {
			pipe.LTrim(ctx, key, int64(-max), -1)
		}
		return nil
	})
	return err
}

// Breadcrumbs returns the stored breadcrumbs, oldest first.
func (s *Store) Breadcrumbs(ctx context.Context) ([]map[string]any, error) {
	raw, err := s.redis.LRange(ctx, s.key("scope", "breadcrumbs"), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	crumbs := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		var crumb map[string]any
		if err := json.Unmarshal([]byte(r), &crumb); err != nil {
			return nil, fmt.Errorf("failed to unmarshal breadcrumb: %w", err)
		}
		crumbs = append(crumbs, crumb)
	}
	return crumbs, nil
}

// ClearBreadcrumbs drops every stored breadcrumb.
func (s *Store) ClearBreadcrumbs(ctx context.Context) error {
	return s.redis.Del(ctx, s.key("scope", "breadcrumbs")).Err()
}

// MarkCrashed records that this run ended in a crash.
func (s *Store) MarkCrashed(ctx context.Context) error {
	return s.redis.Set(ctx, s.key("crashed_last_run"), "1", 0).Err()
}

// TakeCrashed reports and clears the crash flag left by the previous run.
func (s *Store) TakeCrashed(ctx context.Context) (bool, error) {
	err := s.redis.GetDel(ctx, s.key("crashed_last_run")).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetFramesTracking toggles frame tracking.
func (s *Store) SetFramesTracking(ctx context.Context, on bool) error {
	key := s.key("frames", "tracking")
	if on {
		return s.redis.Set(ctx, key, "1", 0).Err()
	}
	return s.redis.Del(ctx, key).Err()
}

// FramesTracking reports whether frame tracking is on.
func (s *Store) FramesTracking(ctx context.Context) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key("frames", "tracking")).Result()
	return n > 0, err
}

// RecordFrames adds to the frame counters. Counters only move while
// tracking is on.
func (s *Store) RecordFrames(ctx context.Context, total, slow, frozen int64) error {
	on, err := s.FramesTracking(ctx)
	if err != nil || !on {
		return err
	}
	key := s.key("frames", "counts")
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "total", total)
		pipe.HIncrBy(ctx, key, "slow", slow)
		pipe.HIncrBy(ctx, key, "frozen", frozen)
		return nil
	})
	return err
}

// Frames returns the frame counters.
func (s *Store) Frames(ctx context.Context) (*bridge.FramesResponse, error) {
	counts, err := s.redis.HGetAll(ctx, s.key("frames", "counts")).Result()
	if err != nil {
		return nil, err
	}
	parse := func(field string) int64 {
		n, _ := strconv.ParseInt(counts[field], 10, 64)
		return n
	}
	return &bridge.FramesResponse{
		TotalFrames:  parse("total"),
		SlowFrames:   parse("slow"),
		FrozenFrames: parse("frozen"),
	}, nil
}

// FirstAppStartFetch reports whether app start data was never fetched
// before, marking it fetched.
func (s *Store) FirstAppStartFetch(ctx context.Context) (bool, error) {
	return s.redis.SetNX(ctx, s.key("app_start", "fetched"), "1", 0).Result()
}

// flatValue renders v as a Redis hash value: scalars pass through, everything
// else is JSON encoded.
func flatValue(v any) any {
	switch v.(type) {
	case string, bool, int, int64, float64:
		return v
	case nil:
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func anyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
