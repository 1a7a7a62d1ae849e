package user

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStore serves email lookups from Redis and falls back to the wrapped store.
// Cache errors are logged and never returned.
type CachedStore struct {
	Store
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewCachedStore(inner Store, client *redis.Client, ttl time.Duration, log *slog.Logger) *CachedStore {
	return &CachedStore{Store: inner, client: client, ttl: ttl, log: log}
}

func emailKey(email string) string { return "users:email:" + email }

func (c *CachedStore) FindByEmail(ctx context.Context, email string) (User, error) {
	data, err := c.client.Get(ctx, emailKey(email)).Bytes()
	if err == nil {
		var u User
		if err := json.Unmarshal(data, &u); err == nil {
			return u, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn("user_cache_read_failed", slog.String("err", err.Error()))
	}

	u, err := c.Store.FindByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	c.put(ctx, u)
	return u, nil
}

func (c *CachedStore) Save(ctx context.Context, u User) (User, error) {
	var prevEmail string
	if u.ID != 0 {
		if prev, err := c.Store.FindByID(ctx, u.ID); err == nil {
			prevEmail = prev.Email
		}
	}

	saved, err := c.Store.Save(ctx, u)
	if err != nil {
		return User{}, err
	}

	c.invalidate(ctx, prevEmail, saved.Email)
	return saved, nil
}

func (c *CachedStore) Delete(ctx context.Context, id int64) error {
	prev, err := c.Store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := c.Store.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, prev.Email)
	return nil
}

func (c *CachedStore) put(ctx context.Context, u User) {
	data, err := json.Marshal(u)
	if err != nil {
		c.log.Warn("user_cache_marshal_failed", slog.String("err", err.Error()))
		return
	}
	if err := c.client.Set(ctx, emailKey(u.Email), data, c.ttl).Err(); err != nil {
		c.log.Warn("user_cache_write_failed", slog.String("err", err.Error()))
	}
}

func (c *CachedStore) invalidate(ctx context.Context, emails ...string) {
	keys := make([]string, 0, len(emails))
	for _, e := range emails {
		if e != "" {
			keys = append(keys, emailKey(e))
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("user_cache_invalidate_failed", slog.String("err", err.Error()))
	}
}
