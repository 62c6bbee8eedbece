// Package session stores the affinity state of stateful voice sessions.
//
// A session is one guild + voice channel pair served by exactly one worker
// at a time. Four broker resources back a session and always expire in
// lockstep: the affinity binding (the single source of truth for ownership),
// the metadata hash, the persisted work queue, and the current-entry slot.
// The binding is the only resource written with compare-and-set discipline;
// everything else is best-effort and idempotent.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultKeyPrefix is the shared Redis key namespace.
const DefaultKeyPrefix = "anankor"

// DefaultTTL is the idle expiry applied to all four session resources.
const DefaultTTL = 600 * time.Second

// ComputeKey derives the deterministic session key for a guild + voice
// channel pair.
func ComputeKey(guildID, voiceChannelID string) string {
	return guildID + "/" + voiceChannelID
}

// Keys derives the Redis keys for session state under a common prefix.
// The prefix must match the one used by the worker pool registry.
type Keys struct {
	prefix string
}

// KeysForPrefix creates Keys rooted at a namespace prefix.
func KeysForPrefix(prefix string) Keys {
	return Keys{prefix: prefix}
}

// Binding is the session-key to worker-id affinity record.
func (k Keys) Binding(sessionKey string) string {
	return k.prefix + ":sessions:" + sessionKey + ":worker"
}

// Metadata is the session metadata hash.
func (k Keys) Metadata(sessionKey string) string {
	return k.prefix + ":sessions:" + sessionKey + ":meta"
}

// Queue is the persisted work queue list.
func (k Keys) Queue(sessionKey string) string {
	return k.prefix + ":sessions:" + sessionKey + ":queue"
}

// Current is the single-slot in-flight entry.
func (k Keys) Current(sessionKey string) string {
	return k.prefix + ":sessions:" + sessionKey + ":current"
}

// GuildSessions is the per-guild set of active session keys.
func (k Keys) GuildSessions(guildID string) string {
	return k.prefix + ":guilds:" + guildID + ":sessions"
}

// WorkerSessions is the per-worker set of bound session keys.
func (k Keys) WorkerSessions(workerID string) string {
	return k.prefix + ":workers:" + workerID + ":sessions"
}

// Metadata describes one session. Owned exclusively by the scheduler and
// refreshed on every job touching the session.
type Metadata struct {
	SessionKey     string
	GuildID        string
	VoiceChannelID string
	WorkerID       string
	TextChannelID  string
	Locale         string
	LastActive     time.Time
}

// Entry is one persisted unit of session work (e.g. a queued track).
type Entry struct {
	ID            string    `json:"id"`
	Query         string    `json:"query"`
	UserID        string    `json:"userId"`
	Username      string    `json:"username"`
	TextChannelID string    `json:"textChannelId"`
	Locale        string    `json:"locale,omitempty"`
	Source        string    `json:"source"`
	EnqueuedAt    time.Time `json:"enqueuedAt"`
}

// Store reads and writes session affinity state.
type Store struct {
	// Required components
	Redis *redis.Client
	// Required config
	Keys Keys
	TTL  time.Duration
}

// GetBinding returns the worker id bound to a session, or "" when unbound.
// Presence of a binding does not imply the worker is alive; callers must
// cross-check against the pool registry.
func (s *Store) GetBinding(ctx context.Context, sessionKey string) (string, error) {
	workerID, err := s.Redis.Get(ctx, s.Keys.Binding(sessionKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("failed to get binding for %s: %w", sessionKey, err)
	}
	return workerID, nil
}

// BindingExists reports whether the affinity record is still present.
func (s *Store) BindingExists(ctx context.Context, sessionKey string) (bool, error) {
	n, err := s.Redis.Exists(ctx, s.Keys.Binding(sessionKey)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TrySetBinding atomically binds a session to a worker unless a binding
// already exists. Returns false on race loss.
func (s *Store) TrySetBinding(ctx context.Context, sessionKey, workerID string) (bool, error) {
	ok, err := s.Redis.SetNX(ctx, s.Keys.Binding(sessionKey), workerID, s.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set binding for %s: %w", sessionKey, err)
	}
	return ok, nil
}

// GetMetadata loads the session metadata, or nil when absent.
func (s *Store) GetMetadata(ctx context.Context, sessionKey string) (*Metadata, error) {
	fields, err := s.Redis.HGetAll(ctx, s.Keys.Metadata(sessionKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata for %s: %w", sessionKey, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	var lastActive time.Time
	if t, err := time.Parse(time.RFC3339Nano, fields["lastActive"]); err == nil {
		lastActive = t
	}
	return &Metadata{
		SessionKey:     sessionKey,
		GuildID:        fields["guildId"],
		VoiceChannelID: fields["voiceChannelId"],
		WorkerID:       fields["workerId"],
		TextChannelID:  fields["textChannelId"],
		Locale:         fields["locale"],
		LastActive:     lastActive,
	}, nil
}

// SetMetadata writes the session metadata and refreshes its TTL.
func (s *Store) SetMetadata(ctx context.Context, meta *Metadata) error {
	key := s.Keys.Metadata(meta.SessionKey)
	err := s.Redis.HSet(ctx, key,
		"guildId", meta.GuildID,
		"voiceChannelId", meta.VoiceChannelID,
		"workerId", meta.WorkerID,
		"textChannelId", meta.TextChannelID,
		"locale", meta.Locale,
		"lastActive", meta.LastActive.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set metadata for %s: %w", meta.SessionKey, err)
	}
	return s.Redis.Expire(ctx, key, s.TTL).Err()
}

// Touch bumps the last-active timestamp and refreshes the TTL of all four
// session resources in lockstep.
func (s *Store) Touch(ctx context.Context, sessionKey string) error {
	metaKey := s.Keys.Metadata(sessionKey)
	if err := s.Redis.HSet(ctx, metaKey,
		"lastActive", time.Now().Format(time.RFC3339Nano),
	).Err(); err != nil {
		return fmt.Errorf("failed to touch %s: %w", sessionKey, err)
	}
	for _, key := range []string{
		metaKey,
		s.Keys.Queue(sessionKey),
		s.Keys.Current(sessionKey),
		s.Keys.Binding(sessionKey),
	} {
		if err := s.Redis.Expire(ctx, key, s.TTL).Err(); err != nil {
			return fmt.Errorf("failed to refresh %s: %w", key, err)
		}
	}
	return nil
}

// Release deletes the binding, metadata, queue and current entry, and drops
// the session from the guild and worker index sets when metadata is known.
// Concurrent releases are tolerated; the operation is idempotent.
func (s *Store) Release(ctx context.Context, sessionKey string, meta *Metadata) error {
	if meta != nil {
		if err := s.RemoveGuildSession(ctx, meta.GuildID, sessionKey); err != nil {
			return err
		}
		if err := s.RemoveWorkerSession(ctx, meta.WorkerID, sessionKey); err != nil {
			return err
		}
	}
	return s.Redis.Del(ctx,
		s.Keys.Binding(sessionKey),
		s.Keys.Metadata(sessionKey),
		s.Keys.Queue(sessionKey),
		s.Keys.Current(sessionKey),
	).Err()
}

// AppendEntry pushes an entry onto the session queue and returns the new
// queue length.
func (s *Store) AppendEntry(ctx context.Context, sessionKey string, entry *Entry) (int64, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return 0, err
	}
	key := s.Keys.Queue(sessionKey)
	length, err := s.Redis.RPush(ctx, key, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to append to queue %s: %w", sessionKey, err)
	}
	if err := s.Redis.Expire(ctx, key, s.TTL).Err(); err != nil {
		return 0, err
	}
	return length, nil
}

// Entries lists queue entries in the given range (inclusive, -1 for end).
// Malformed entries are skipped.
func (s *Store) Entries(ctx context.Context, sessionKey string, start, stop int64) ([]Entry, error) {
	raw, err := s.Redis.LRange(ctx, s.Keys.Queue(sessionKey), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list queue %s: %w", sessionKey, err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, payload := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// QueueLen returns the number of pending queue entries.
func (s *Store) QueueLen(ctx context.Context, sessionKey string) (int64, error) {
	return s.Redis.LLen(ctx, s.Keys.Queue(sessionKey)).Result()
}

// ShiftEntry removes and returns the queue head, or nil when empty.
func (s *Store) ShiftEntry(ctx context.Context, sessionKey string) (*Entry, error) {
	key := s.Keys.Queue(sessionKey)
	payload, err := s.Redis.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to shift queue %s: %w", sessionKey, err)
	}
	if err := s.Redis.Expire(ctx, key, s.TTL).Err(); err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return nil, fmt.Errorf("malformed queue entry on %s: %w", sessionKey, err)
	}
	return &entry, nil
}

// ClearQueue drops all pending entries.
func (s *Store) ClearQueue(ctx context.Context, sessionKey string) error {
	return s.Redis.Del(ctx, s.Keys.Queue(sessionKey)).Err()
}

// CurrentEntry returns the in-flight entry, or nil when none is set.
func (s *Store) CurrentEntry(ctx context.Context, sessionKey string) (*Entry, error) {
	payload, err := s.Redis.Get(ctx, s.Keys.Current(sessionKey)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get current entry for %s: %w", sessionKey, err)
	}
	var entry Entry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return nil, fmt.Errorf("malformed current entry on %s: %w", sessionKey, err)
	}
	return &entry, nil
}

// SetCurrentEntry marks the entry now in flight.
func (s *Store) SetCurrentEntry(ctx context.Context, sessionKey string, entry *Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.Redis.Set(ctx, s.Keys.Current(sessionKey), payload, s.TTL).Err()
}

// ClearCurrentEntry drops the in-flight slot.
func (s *Store) ClearCurrentEntry(ctx context.Context, sessionKey string) error {
	return s.Redis.Del(ctx, s.Keys.Current(sessionKey)).Err()
}

// AddGuildSession records a session under its guild's index.
func (s *Store) AddGuildSession(ctx context.Context, guildID, sessionKey string) error {
	key := s.Keys.GuildSessions(guildID)
	if err := s.Redis.SAdd(ctx, key, sessionKey).Err(); err != nil {
		return err
	}
	return s.Redis.Expire(ctx, key, s.TTL).Err()
}

// RemoveGuildSession drops a session from its guild's index.
func (s *Store) RemoveGuildSession(ctx context.Context, guildID, sessionKey string) error {
	return s.Redis.SRem(ctx, s.Keys.GuildSessions(guildID), sessionKey).Err()
}

// GuildSessions lists the session keys recorded for a guild.
func (s *Store) GuildSessions(ctx context.Context, guildID string) ([]string, error) {
	return s.Redis.SMembers(ctx, s.Keys.GuildSessions(guildID)).Result()
}

// GuildSessionCount returns the number of live sessions in a guild.
func (s *Store) GuildSessionCount(ctx context.Context, guildID string) (int64, error) {
	return s.Redis.SCard(ctx, s.Keys.GuildSessions(guildID)).Result()
}

// AddWorkerSession records a session under its worker's index.
func (s *Store) AddWorkerSession(ctx context.Context, workerID, sessionKey string) error {
	return s.Redis.SAdd(ctx, s.Keys.WorkerSessions(workerID), sessionKey).Err()
}

// RemoveWorkerSession drops a session from its worker's index.
func (s *Store) RemoveWorkerSession(ctx context.Context, workerID, sessionKey string) error {
	return s.Redis.SRem(ctx, s.Keys.WorkerSessions(workerID), sessionKey).Err()
}

// WorkerSessions lists the session keys bound to a worker.
func (s *Store) WorkerSessions(ctx context.Context, workerID string) ([]string, error) {
	return s.Redis.SMembers(ctx, s.Keys.WorkerSessions(workerID)).Result()
}
