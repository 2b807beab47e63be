package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-session/internal/cart"
	"github.com/angelmondragon/storefront-session/internal/gueststore"
	"github.com/angelmondragon/storefront-session/internal/merge"
	"github.com/angelmondragon/storefront-session/internal/normalize"
	"github.com/angelmondragon/storefront-session/internal/notify"
	"github.com/angelmondragon/storefront-session/internal/wishlist"
	"github.com/angelmondragon/storefront-session/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"github.com/angelmondragon/storefront-session/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const defaultIdleTTL = 30 * time.Minute

// RegistryParams groups dependencies for the session registry.
type RegistryParams struct {
	Guest              *gueststore.Store
	Normalizer         normalize.Normalizer
	Merger             *merge.Coordinator
	Backends           BackendFactory
	Logger             *logger.Logger
	Metrics            *metrics.SessionMetrics
	IdleTTL            time.Duration
	NotificationBuffer int
	Now                func() time.Time
}

// Registry owns the live sessions of this process, keyed by session id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	creating singleflight.Group

	guest      *gueststore.Store
	normalizer normalize.Normalizer
	merger     *merge.Coordinator
	backends   BackendFactory
	logg       *logger.Logger
	metrics    *metrics.SessionMetrics
	idleTTL    time.Duration
	buffer     int
	now        func() time.Time
}

func NewRegistry(params RegistryParams) (*Registry, error) {
	if params.Guest == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest store is required")
	}
	if params.Backends == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "backend factory is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Merger == nil {
		params.Merger = merge.NewCoordinator(params.Normalizer, params.Logger, params.Metrics)
	}
	if params.IdleTTL <= 0 {
		params.IdleTTL = defaultIdleTTL
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Registry{
		sessions:   make(map[string]*Session),
		guest:      params.Guest,
		normalizer: params.Normalizer,
		merger:     params.Merger,
		backends:   params.Backends,
		logg:       params.Logger,
		metrics:    params.Metrics,
		idleTTL:    params.IdleTTL,
		buffer:     params.NotificationBuffer,
		now:        params.Now,
	}, nil
}

// Get returns the session for id, creating and loading a guest session on first use.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	r.mu.RLock()
	existing, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		existing.Touch(r.now())
		return existing, nil
	}

	created, err, _ := r.creating.Do(id, func() (any, error) {
		r.mu.RLock()
		existing, ok := r.sessions[id]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		sess, err := r.newSession(id)
		if err != nil {
			return nil, err
		}
		sess.load(r.logg.WithSessionID(ctx, id))

		r.mu.Lock()
		r.sessions[id] = sess
		count := len(r.sessions)
		r.mu.Unlock()
		r.metrics.SetActiveSessions(count)
		r.logg.Debug(r.logg.WithSessionID(ctx, id), "session created")
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	sess := created.(*Session)
	sess.Touch(r.now())
	return sess, nil
}

func (r *Registry) newSession(id string) (*Session, error) {
	notes := notify.NewQueue(r.buffer)
	scope := r.guest.Scope(id)

	cartManager, err := cart.NewManager(cart.ManagerParams{
		Guest:      scope,
		Normalizer: r.normalizer,
		Notifier:   notes,
		Logger:     r.logg,
		Metrics:    r.metrics,
	})
	if err != nil {
		return nil, err
	}
	wishlistManager, err := wishlist.NewManager(wishlist.ManagerParams{
		Guest:      scope,
		Normalizer: r.normalizer,
		Notifier:   notes,
		Logger:     r.logg,
		Metrics:    r.metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		id:       id,
		state:    enums.SessionStateGuest,
		lastSeen: r.now(),
		cart:     cartManager,
		wishlist: wishlistManager,
		notes:    notes,
		guest:    scope,
		merger:   r.merger,
		backends: r.backends,
		logg:     r.logg,
	}, nil
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than the idle TTL and returns how many were dropped.
// Guest lists survive eviction in the guest store.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.idleTTL)

	r.mu.Lock()
	var evicted []*Session
	for id, sess := range r.sessions {
		if sess.LastSeen().Before(cutoff) {
			evicted = append(evicted, sess)
			delete(r.sessions, id)
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	for _, sess := range evicted {
		sess.Cart().Wait()
	}
	if len(evicted) > 0 {
		r.metrics.SetActiveSessions(count)
		r.logg.Debug(r.logg.WithFields(context.Background(), map[string]any{
			"evicted":   len(evicted),
			"remaining": count,
		}), "idle sessions swept")
	}
	return len(evicted)
}

// Run sweeps idle sessions every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}
