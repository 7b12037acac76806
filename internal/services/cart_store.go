// internal/services/cart_store.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/javajoker/farmers-market-backend/internal/config"
)

// CartStore persists one cart per user.
type CartStore interface {
	Load(ctx context.Context, userID uuid.UUID) (*Cart, error)
	Save(ctx context.Context, cart *Cart) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

func cartKey(userID uuid.UUID) string {
	return "cart:" + userID.String()
}

type RedisCartStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCartStore(client *redis.Client, ttl time.Duration) *RedisCartStore {
	return &RedisCartStore{client: client, ttl: ttl}
}

func (s *RedisCartStore) Load(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	data, err := s.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewCart(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	cart := NewCart(userID)
	if err := json.Unmarshal(data, cart); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	return cart, nil
}

func (s *RedisCartStore) Save(ctx context.Context, cart *Cart) error {
	if len(cart.Items) == 0 {
		return s.Delete(ctx, cart.UserID)
	}

	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	if err := s.client.Set(ctx, cartKey(cart.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

func (s *RedisCartStore) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := s.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

// MemoryCartStore keeps carts in process. Used when Redis is not configured.
type MemoryCartStore struct {
	mu    sync.RWMutex
	carts map[string][]byte
}

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: make(map[string][]byte)}
}

func (s *MemoryCartStore) Load(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	s.mu.RLock()
	data, ok := s.carts[cartKey(userID)]
	s.mu.RUnlock()

	cart := NewCart(userID)
	if !ok {
		return cart, nil
	}
	if err := json.Unmarshal(data, cart); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	return cart, nil
}

func (s *MemoryCartStore) Save(ctx context.Context, cart *Cart) error {
	if len(cart.Items) == 0 {
		return s.Delete(ctx, cart.UserID)
	}

	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}

	s.mu.Lock()
	s.carts[cartKey(cart.UserID)] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryCartStore) Delete(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	delete(s.carts, cartKey(userID))
	s.mu.Unlock()
	return nil
}

// NewCartStore connects to Redis when configured and falls back to memory.
func NewCartStore(ctx context.Context, cfg config.RedisConfig) (CartStore, func() error, error) {
	if !cfg.Enabled() {
		return NewMemoryCartStore(), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisCartStore(client, time.Duration(cfg.CartTTL)*time.Hour), client.Close, nil
}
