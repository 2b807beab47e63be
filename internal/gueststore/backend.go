package gueststore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-session/pkg/config"
	"github.com/angelmondragon/storefront-session/pkg/db"
	"github.com/angelmondragon/storefront-session/pkg/redis"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Backend is one key-value medium a guest list can live in.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
}

// GuestList is the durable row holding one serialized guest list.
type GuestList struct {
	ListKey   string    `gorm:"column:list_key;primaryKey"`
	Payload   string    `gorm:"column:payload;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (GuestList) TableName() string { return "guest_lists" }

// DurableBackend keeps guest lists in the guest_lists table.
type DurableBackend struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDurableBackend(client *db.Client) *DurableBackend {
	return &DurableBackend{db: client.DB(), now: time.Now}
}

func (b *DurableBackend) Name() string { return config.GuestBackendDurable }

func (b *DurableBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var row GuestList
	err := b.db.WithContext(ctx).Where("list_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Payload, true, nil
}

func (b *DurableBackend) Set(ctx context.Context, key, value string) error {
	row := GuestList{ListKey: key, Payload: value, UpdatedAt: b.now().UTC()}
	return b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "list_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&row).Error
}

func (b *DurableBackend) Del(ctx context.Context, key string) error {
	return b.db.WithContext(ctx).Where("list_key = ?", key).Delete(&GuestList{}).Error
}

// PurgeBefore deletes lists not written since cutoff and reports how many went.
func (b *DurableBackend) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := b.db.WithContext(ctx).Where("updated_at < ?", cutoff.UTC()).Delete(&GuestList{})
	return res.RowsAffected, res.Error
}

// RedisBackend keeps guest lists in Redis with a sliding TTL.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBackend(client *redis.Client, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, ttl: ttl}
}

func (b *RedisBackend) Name() string { return config.GuestBackendSession }

func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := b.client.Get(ctx, b.client.GuestListKey(key))
	if errors.Is(err, redis.ErrNil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if b.ttl > 0 {
		// a read counts as activity; a failed refresh only shortens the lifetime
		_ = b.client.Touch(ctx, b.client.GuestListKey(key), b.ttl)
	}
	return value, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key, value string) error {
	return b.client.Set(ctx, b.client.GuestListKey(key), value, b.ttl)
}

func (b *RedisBackend) Del(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.client.GuestListKey(key))
}

// MemoryBackend is the process-local last resort; contents die with the process.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

func (b *MemoryBackend) Name() string { return config.GuestBackendMemory }

func (b *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	value, ok := b.values[key]
	return value, ok, nil
}

func (b *MemoryBackend) Set(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
	return nil
}

func (b *MemoryBackend) Del(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}

// BuildBackends ranks the configured backends, omitting those whose
// infrastructure is not available. The memory backend is always appended.
func BuildBackends(cfg config.GuestStoreConfig, dbClient *db.Client, redisClient *redis.Client) []Backend {
	backends := make([]Backend, 0, len(cfg.Backends)+1)
	hasMemory := false
	for _, name := range cfg.Backends {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case config.GuestBackendDurable:
			if dbClient != nil {
				backends = append(backends, NewDurableBackend(dbClient))
			}
		case config.GuestBackendSession:
			if redisClient != nil {
				backends = append(backends, NewRedisBackend(redisClient, cfg.TTL))
			}
		case config.GuestBackendMemory:
			if !hasMemory {
				backends = append(backends, NewMemoryBackend())
				hasMemory = true
			}
		}
	}
	if !hasMemory {
		backends = append(backends, NewMemoryBackend())
	}
	return backends
}
