package gueststore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/angelmondragon/storefront-session/internal/normalize"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"github.com/angelmondragon/storefront-session/pkg/metrics"
)

// Persisted guest list keys.
const (
	CartKey     = "guestCartItems"
	WishlistKey = "guestWishlistItems"
)

const probeKey = "__guest_store_probe__"

// Lists is the read/write surface the session managers use. Implementations
// never fail: problems are logged and the in-memory copy takes over.
type Lists interface {
	Read(ctx context.Context, key string) []normalize.RawItem
	Write(ctx context.Context, key string, items []normalize.RawItem)
	Remove(ctx context.Context, key string)
}

// Store persists guest lists in the first writable backend of a ranked chain.
type Store struct {
	candidates []Backend
	memory     *MemoryBackend
	logg       *logger.Logger
	metrics    *metrics.SessionMetrics

	once   sync.Once
	active Backend
}

// NewStore ranks candidates in order. A memory backend in the chain doubles as
// the write-failure fallback; otherwise a private one is created.
func NewStore(candidates []Backend, logg *logger.Logger, m *metrics.SessionMetrics) *Store {
	if logg == nil {
		logg = logger.Nop()
	}
	store := &Store{logg: logg, metrics: m}
	for _, candidate := range candidates {
		if candidate == nil {
			continue
		}
		if mem, ok := candidate.(*MemoryBackend); ok && store.memory == nil {
			store.memory = mem
		}
		store.candidates = append(store.candidates, candidate)
	}
	if store.memory == nil {
		store.memory = NewMemoryBackend()
	}
	return store
}

// Active returns the backend selected by the one-time capability probe.
func (s *Store) Active(ctx context.Context) Backend {
	s.once.Do(func() {
		s.active = s.probe(ctx)
		s.metrics.SetStoreBackend(s.active.Name())
		s.logg.Info(s.logg.WithField(ctx, "backend", s.active.Name()), "guest store backend selected")
	})
	return s.active
}

func (s *Store) probe(ctx context.Context) Backend {
	for _, candidate := range s.candidates {
		if err := candidate.Set(ctx, probeKey, "1"); err != nil {
			s.metrics.IncStoreFallback(metrics.GuestStoreOpProbe)
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"backend": candidate.Name(), "error": err.Error()}), "guest store backend unavailable")
			continue
		}
		if err := candidate.Del(ctx, probeKey); err != nil {
			s.metrics.IncStoreFallback(metrics.GuestStoreOpProbe)
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"backend": candidate.Name(), "error": err.Error()}), "guest store backend unavailable")
			continue
		}
		return candidate
	}
	return s.memory
}

// Read returns the persisted list, or an empty list when nothing usable is stored.
func (s *Store) Read(ctx context.Context, key string) []normalize.RawItem {
	backend := s.Active(ctx)

	// A memory copy only survives a failed write, so when present it is newer
	// than whatever the active backend still holds.
	var (
		payload string
		ok      bool
	)
	if backend != Backend(s.memory) {
		if payload, ok, _ = s.memory.Get(ctx, key); ok {
			s.metrics.IncStoreFallback(metrics.GuestStoreOpRead)
		}
	}
	if !ok {
		var err error
		payload, ok, err = backend.Get(ctx, key)
		if err != nil {
			s.logg.Error(s.failureContext(ctx, backend, key, err), "guest store read failed", err)
			ok = false
		}
	}
	if !ok {
		return []normalize.RawItem{}
	}

	items, err := normalize.ParseRawList(payload)
	if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"key": key, "error": err.Error()}), "discarding undecodable guest list")
		return []normalize.RawItem{}
	}
	return items
}

// Write persists items. When the active backend rejects the write the value is
// kept in memory so the session still sees it.
func (s *Store) Write(ctx context.Context, key string, items []normalize.RawItem) {
	if items == nil {
		items = []normalize.RawItem{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "key", key), "encoding guest list", err)
		return
	}

	backend := s.Active(ctx)
	if err := backend.Set(ctx, key, string(encoded)); err != nil {
		s.logg.Error(s.failureContext(ctx, backend, key, err), "guest store write failed", err)
		s.metrics.IncStoreFallback(metrics.GuestStoreOpWrite)
		_ = s.memory.Set(ctx, key, string(encoded))
		return
	}
	if backend != Backend(s.memory) {
		_ = s.memory.Del(ctx, key)
	}
}

// Remove deletes the list from the active backend and the memory fallback.
func (s *Store) Remove(ctx context.Context, key string) {
	backend := s.Active(ctx)
	if err := backend.Del(ctx, key); err != nil {
		s.logg.Error(s.failureContext(ctx, backend, key, err), "guest store remove failed", err)
		s.metrics.IncStoreFallback(metrics.GuestStoreOpRemove)
	}
	_ = s.memory.Del(ctx, key)
}

// Scope returns the view of the store belonging to one visitor session.
func (s *Store) Scope(sessionID string) *Scope {
	return &Scope{store: s, sessionID: sessionID}
}

// Scope prefixes every key with the owning session id.
type Scope struct {
	store     *Store
	sessionID string
}

func (v *Scope) Key(key string) string {
	if v.sessionID == "" {
		return key
	}
	return v.sessionID + ":" + key
}

func (v *Scope) Read(ctx context.Context, key string) []normalize.RawItem {
	return v.store.Read(ctx, v.Key(key))
}

func (v *Scope) Write(ctx context.Context, key string, items []normalize.RawItem) {
	v.store.Write(ctx, v.Key(key), items)
}

func (v *Scope) Remove(ctx context.Context, key string) {
	v.store.Remove(ctx, v.Key(key))
}

func (s *Store) failureContext(ctx context.Context, backend Backend, key string, err error) context.Context {
	fields := pkgerrors.StorageFields(err)
	fields["backend"] = backend.Name()
	fields["key"] = key
	return s.logg.WithFields(ctx, fields)
}
