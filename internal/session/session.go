package session

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-session/internal/cart"
	"github.com/angelmondragon/storefront-session/internal/gueststore"
	"github.com/angelmondragon/storefront-session/internal/merge"
	"github.com/angelmondragon/storefront-session/internal/notify"
	"github.com/angelmondragon/storefront-session/internal/wishlist"
	"github.com/angelmondragon/storefront-session/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
	"github.com/angelmondragon/storefront-session/pkg/logger"
)

// Backend is everything a signed-in session delegates to the commerce API.
type Backend interface {
	cart.Backend
	wishlist.Backend
	merge.CartBackend
	merge.WishlistBackend
}

// BackendFactory binds a backend to one customer's bearer token.
type BackendFactory func(token string) (Backend, error)

// Session is one visitor's cart, wishlist, and notification queue.
type Session struct {
	id string

	// transition serializes Authenticate and Logout.
	transition sync.Mutex

	mu       sync.Mutex
	state    enums.SessionState
	userID   string
	token    string
	lastSeen time.Time

	cart     *cart.Manager
	wishlist *wishlist.Manager
	notes    *notify.Queue
	guest    *gueststore.Scope

	merger   *merge.Coordinator
	backends BackendFactory
	logg     *logger.Logger
}

func (s *Session) ID() string { return s.id }

func (s *Session) Cart() *cart.Manager { return s.cart }

func (s *Session) Wishlist() *wishlist.Manager { return s.wishlist }

func (s *Session) Notifications() *notify.Queue { return s.notes }

func (s *Session) State() enums.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastSeen) {
		s.lastSeen = now
	}
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Authenticate signs the session in as userID. The first transition out of
// the guest state folds the guest lists into the account; a refreshed token
// for the same user only rebinds the backend. Merge failures are reported
// through notifications and never undo the sign-in.
func (s *Session) Authenticate(ctx context.Context, token, userID string) error {
	if token == "" || userID == "" {
		return pkgerrors.New(pkgerrors.CodeAuthRequired, "token and user id are required")
	}
	s.transition.Lock()
	defer s.transition.Unlock()

	ctx = s.logg.WithUserID(s.logg.WithSessionID(ctx, s.id), userID)

	s.mu.Lock()
	state, currentUser, currentToken := s.state, s.userID, s.token
	s.mu.Unlock()

	if state == enums.SessionStateAuthenticated && currentUser == userID {
		if currentToken == token {
			return nil
		}
		backend, err := s.backends(token)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeAuthRequired, err, "bind customer token")
		}
		s.cart.Bind(backend)
		s.wishlist.Bind(backend)
		s.mu.Lock()
		s.token = token
		s.mu.Unlock()
		s.logg.Debug(ctx, "customer token refreshed")
		return nil
	}

	if state == enums.SessionStateAuthenticated {
		s.logg.Info(s.logg.WithField(ctx, "previous_user_id", currentUser), "session switching customer")
		s.logoutLocked(ctx)
	}

	backend, err := s.backends(token)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeAuthRequired, err, "bind customer token")
	}
	s.cart.Wait()
	s.cart.Bind(backend)
	s.wishlist.Bind(backend)

	s.mu.Lock()
	s.state = enums.SessionStateAuthenticated
	s.userID = userID
	s.token = token
	s.mu.Unlock()

	if err := s.merger.Run(ctx, merge.Target{
		Guest:           s.guest,
		Cart:            s.cart,
		Wishlist:        s.wishlist,
		CartBackend:     backend,
		WishlistBackend: backend,
		Notifier:        s.notes,
	}); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "guest merge incomplete")
	}
	s.logg.Info(ctx, "session authenticated")
	return nil
}

// Logout returns the session to the guest state. Local lists and the active
// promotion are dropped, then both managers reload from the guest store.
func (s *Session) Logout(ctx context.Context) {
	s.transition.Lock()
	defer s.transition.Unlock()
	s.logoutLocked(s.logg.WithSessionID(ctx, s.id))
}

func (s *Session) logoutLocked(ctx context.Context) {
	s.mu.Lock()
	if s.state == enums.SessionStateGuest {
		s.mu.Unlock()
		return
	}
	s.state = enums.SessionStateGuest
	s.userID = ""
	s.token = ""
	s.mu.Unlock()

	s.cart.Wait()
	s.cart.Bind(nil)
	s.wishlist.Bind(nil)
	s.cart.Reset()
	s.wishlist.Reset()
	s.load(ctx)
	s.logg.Info(ctx, "session signed out")
}

func (s *Session) load(ctx context.Context) {
	if err := s.cart.Load(ctx); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cart load failed")
	}
	if err := s.wishlist.Load(ctx); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "wishlist load failed")
	}
}
