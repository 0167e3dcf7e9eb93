package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"nestly/config"
	"nestly/models"
)

const (
	sessionKey     = "nestly:session"
	sessionChannel = "nestly:session:changes"
)

// RedisStorage persists the session in redis and fans change notifications
// out over a pub/sub channel, so tabs running as separate processes still
// converge on the same session.
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage builds a RedisStorage from AppConfig and verifies the
// connection.
func NewRedisStorage(ctx context.Context) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisSessionDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis ping: %w", err)
	}
	return &RedisStorage{client: client}, nil
}

// NewRedisStorageWithClient wraps an existing client (tests, shared pools).
func NewRedisStorageWithClient(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

func (r *RedisStorage) Load(ctx context.Context) (*models.Session, error) {
	data, err := r.client.Get(ctx, sessionKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	var s models.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("session: unmarshal stored session: %w", err)
	}
	return &s, nil
}

func (r *RedisStorage) Save(ctx context.Context, s *models.Session, origin string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey, data, 0).Err(); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return r.publish(ctx, Change{Session: s, Origin: origin})
}

func (r *RedisStorage) Clear(ctx context.Context, origin string) error {
	if err := r.client.Del(ctx, sessionKey).Err(); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return r.publish(ctx, Change{Origin: origin})
}

func (r *RedisStorage) publish(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("session: marshal change: %w", err)
	}
	if err := r.client.Publish(ctx, sessionChannel, payload).Err(); err != nil {
		return fmt.Errorf("session: publish change: %w", err)
	}
	return nil
}

func (r *RedisStorage) Watch(ctx context.Context) (<-chan Change, error) {
	sub := r.client.Subscribe(ctx, sessionChannel)
	// Force the subscription to be established before returning, so a
	// change published right after Watch is never missed.
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("session: subscribe: %w", err)
	}

	out := make(chan Change, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
