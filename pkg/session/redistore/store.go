// Package redistore provides a session.Storage backed by Redis. Sessions
// are stored as JSON values with a per-shop index set, and online sessions
// carry a TTL so Redis reclaims them after expiry.
package redistore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harborlane/shopkit/pkg/session"
)

const (
	sessionKeyPrefix = "harbor:session:"
	shopKeyPrefix    = "harbor:shop:"

	// expiredGrace keeps an expired online session around long enough
	// for the SDK to observe the expiry and trigger re-authentication.
	expiredGrace = time.Hour
)

type Storage struct {
	client *redis.Client
}

// New wraps an existing Redis client. The caller owns its lifecycle.
func New(client *redis.Client) *Storage {
	return &Storage{client: client}
}

// Connect parses a Redis URL (redis://...) and verifies the connection.
func Connect(ctx context.Context, url string) (*Storage, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redistore: parse url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redistore: ping: %w", err)
	}
	return &Storage{client: client}, nil
}

// Close closes the underlying client. Only call when the Storage owns it
// (Connect).
func (s *Storage) Close() error { return s.client.Close() }

func (s *Storage) Store(ctx context.Context, sess *session.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redistore: marshal %q: %w", sess.ID, err)
	}

	var ttl time.Duration
	if sess.Expires != nil {
		ttl = time.Until(sess.Expires.Add(expiredGrace))
		if ttl <= 0 {
			ttl = time.Minute
		}
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+sess.ID, payload, ttl)
	pipe.SAdd(ctx, shopKeyPrefix+sess.Shop, sess.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redistore: store %q: %w", sess.ID, err)
	}
	return nil
}

func (s *Storage) Load(ctx context.Context, id string) (*session.Session, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redistore: load %q: %w", id, err)
	}

	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("redistore: unmarshal %q: %w", id, err)
	}
	return &sess, nil
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	// Look the session up first so the shop index stays consistent.
	sess, err := s.Load(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, shopKeyPrefix+sess.Shop, id)
	pipe.Del(ctx, sessionKeyPrefix+id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redistore: delete %q: %w", id, err)
	}
	return nil
}

func (s *Storage) DeleteMany(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) FindByShop(ctx context.Context, shop string) ([]*session.Session, error) {
	ids, err := s.client.SMembers(ctx, shopKeyPrefix+shop).Result()
	if err != nil {
		return nil, fmt.Errorf("redistore: find by shop %q: %w", shop, err)
	}

	var out []*session.Session
	for _, id := range ids {
		sess, err := s.Load(ctx, id)
		if errors.Is(err, session.ErrNotFound) {
			// TTL beat the index; prune the stale member.
			_ = s.client.SRem(ctx, shopKeyPrefix+shop, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}
