// Package snapshot keeps per-user fallback state in Redis: the cached
// purchased-book-id list, the language code, and the cached Telegram
// profile. It is the local tier of the two-tier entitlement repository;
// every operation is best-effort from the caller's point of view.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"spacebooks/pkg/domain"
)

const opTimeout = 2 * time.Second

// Store persists the local snapshot keys.
type Store interface {
	PurchasedBookIDs(ctx context.Context, userID string) ([]string, error)
	AddPurchasedBookID(ctx context.Context, userID, bookID string) error
	ReplacePurchasedBookIDs(ctx context.Context, userID string, bookIDs []string) error

	Language(ctx context.Context, userID string) (string, error)
	SetLanguage(ctx context.Context, userID, code string) error

	CachedProfile(ctx context.Context, userID string) (domain.User, bool, error)
	SetCachedProfile(ctx context.Context, user domain.User) error
}

// RedisStore implements Store on Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis with an optional key prefix.
func NewRedisStore(addr, password, prefix string) (*RedisStore, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("snapshot store redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "spacebooks:snapshot"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
	}, nil
}

func (s *RedisStore) purchasesKey(userID string) string {
	return s.prefix + ":purchases:" + userID
}

func (s *RedisStore) languageKey(userID string) string {
	return s.prefix + ":language:" + userID
}

func (s *RedisStore) profileKey(userID string) string {
	return s.prefix + ":profile:" + userID
}

// PurchasedBookIDs returns the cached purchased-book-id list.
func (s *RedisStore) PurchasedBookIDs(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	ids, err := s.client.SMembers(ctx, s.purchasesKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read purchased snapshot: %w", err)
	}
	return ids, nil
}

// AddPurchasedBookID appends one book id to the cached list.
func (s *RedisStore) AddPurchasedBookID(ctx context.Context, userID, bookID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.client.SAdd(ctx, s.purchasesKey(userID), bookID).Err(); err != nil {
		return fmt.Errorf("add purchased snapshot: %w", err)
	}
	return nil
}

// ReplacePurchasedBookIDs overwrites the cached list with a fresh durable read.
func (s *RedisStore) ReplacePurchasedBookIDs(ctx context.Context, userID string, bookIDs []string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	key := s.purchasesKey(userID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(bookIDs) > 0 {
		members := make([]any, 0, len(bookIDs))
		for _, id := range bookIDs {
			members = append(members, id)
		}
		pipe.SAdd(ctx, key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace purchased snapshot: %w", err)
	}
	return nil
}

// Language returns the stored language code, empty when unset.
func (s *RedisStore) Language(ctx context.Context, userID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	code, err := s.client.Get(ctx, s.languageKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read language snapshot: %w", err)
	}
	return code, nil
}

// SetLanguage stores the language code.
func (s *RedisStore) SetLanguage(ctx context.Context, userID, code string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.client.Set(ctx, s.languageKey(userID), code, 0).Err(); err != nil {
		return fmt.Errorf("store language snapshot: %w", err)
	}
	return nil
}

// CachedProfile returns the cached external-auth profile.
func (s *RedisStore) CachedProfile(ctx context.Context, userID string) (domain.User, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	raw, err := s.client.Get(ctx, s.profileKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("read profile snapshot: %w", err)
	}
	var user domain.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return domain.User{}, false, fmt.Errorf("decode profile snapshot: %w", err)
	}
	return user, true, nil
}

// SetCachedProfile stores the external-auth profile.
func (s *RedisStore) SetCachedProfile(ctx context.Context, user domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode profile snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.profileKey(user.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("store profile snapshot: %w", err)
	}
	return nil
}
