// Package session owns the in-memory login state of the portal client. A
// Manager moves between Initializing, Anonymous, and Authenticated, keeps
// the credential store in step with memory, and notifies subscribers of
// every change.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/portal-go/internal/credstore"
)

// Sentinel errors.
var (
	ErrRefreshFailed    = errors.New("session: token refresh failed")
	ErrNotAuthenticated = errors.New("session: not logged in")
)

// refreshTimeout bounds a shared refresh, which outlives any one caller.
const refreshTimeout = 30 * time.Second

// State is the position of a Manager in its lifecycle.
type State int

// Session states.
const (
	Initializing State = iota
	Anonymous
	Authenticated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Authenticator is the slice of the backend a Manager talks to.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	Profile(ctx context.Context, accessToken string) (*credstore.Profile, error)
}

// Credentials are what a user types to log in.
type Credentials struct {
	Username string
	Password string
}

// Snapshot is a read-only copy of the session.
type Snapshot struct {
	State State
	User  *credstore.Profile
	Token *oauth2.Token
}

// IsAuthenticated reports whether both a profile and an access token are
// present.
func (s Snapshot) IsAuthenticated() bool {
	return s.User != nil && s.Token != nil && s.Token.AccessToken != ""
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// Manager is the single owner of the session. All methods are safe for
// concurrent use. Subscribers run synchronously after each change and must
// not call Manager methods that change state.
type Manager struct {
	store  *credstore.Store
	auth   Authenticator
	logger *slog.Logger

	// notifyMu serializes change+delivery so subscribers see changes in order.
	notifyMu sync.Mutex

	mu     sync.Mutex
	state  State
	token  *oauth2.Token
	user   *credstore.Profile
	subs   []subscriber
	nextID int

	refreshes singleflight.Group
}

// New creates a Manager in the Initializing state. Call Init before use.
func New(store *credstore.Store, auth Authenticator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:  store,
		auth:   auth,
		logger: logger,
		state:  Initializing,
	}
}

// Init loads the persisted session without touching the network and moves
// to Authenticated or Anonymous.
func (m *Manager) Init() {
	m.load("initialized")
}

// Reload re-reads the credential store, for when another process has
// logged in or out.
func (m *Manager) Reload() {
	m.load("reloaded")
}

// load reads the store inside the transition so it cannot interleave with
// a refresh or logout writing it.
func (m *Manager) load(event string) {
	m.transition(func() {
		creds, ok := m.store.Load()
		if !ok {
			m.setAnonymous()
			return
		}

		tok := *creds.Token
		user := creds.User
		m.token = &tok
		m.user = &user
		m.state = Authenticated
	})

	m.logger.Debug("session "+event, slog.String("state", m.State().String()))
}

// Login authenticates with the backend, persists the tokens, fetches and
// persists the profile, and only then becomes Authenticated. Any failure
// logs out and returns the cause.
func (m *Manager) Login(ctx context.Context, creds Credentials) error {
	err := m.login(ctx, creds)
	if err != nil {
		m.logger.Info("login failed, clearing session",
			slog.String("username", creds.Username),
			slog.String("error", err.Error()),
		)
		m.Logout()

		return fmt.Errorf("session: login: %w", err)
	}

	return nil
}

func (m *Manager) login(ctx context.Context, creds Credentials) error {
	tok, err := m.auth.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		return err
	}

	if err := m.store.SaveTokens(tok); err != nil {
		return err
	}

	user, err := m.auth.Profile(ctx, tok.AccessToken)
	if err != nil {
		return fmt.Errorf("fetching profile: %w", err)
	}

	if err := m.store.Save(tok, *user); err != nil {
		return err
	}

	m.transition(func() {
		m.token = tok
		m.user = user
		m.state = Authenticated
	})

	m.logger.Info("logged in",
		slog.String("username", user.Username),
		slog.Int64("user_id", user.ID),
	)

	return nil
}

// RefreshAccessToken exchanges the refresh token for a new access token
// and persists only that. Concurrent callers share one backend call, which
// runs detached from any single caller's ctx (bounded by refreshTimeout);
// a caller whose ctx ends stops waiting without failing the others.
// Failure wraps ErrRefreshFailed and leaves the session as it was; the
// caller decides whether to log out.
func (m *Manager) RefreshAccessToken(ctx context.Context) error {
	m.mu.Lock()
	var refresh string
	if m.token != nil {
		refresh = m.token.RefreshToken
	}
	m.mu.Unlock()

	if refresh == "" {
		return fmt.Errorf("%w: %w", ErrRefreshFailed, ErrNotAuthenticated)
	}

	ch := m.refreshes.DoChan(refresh, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		return nil, m.refresh(rctx, refresh)
	})

	select {
	case res := <-ch:
		if res.Shared {
			m.logger.Debug("joined in-flight token refresh")
		}

		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrRefreshFailed, ctx.Err())
	}
}

func (m *Manager) refresh(ctx context.Context, refresh string) error {
	tok, err := m.auth.Refresh(ctx, refresh)
	if err != nil {
		m.logger.Warn("token refresh rejected", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	var (
		applied bool
		saveErr error
	)

	m.transition(func() {
		// A logout or new login while refreshing wins.
		if m.token == nil || m.token.RefreshToken != refresh {
			return
		}

		if saveErr = m.store.SaveAccessToken(tok.AccessToken); saveErr != nil {
			return
		}

		next := *m.token
		next.AccessToken = tok.AccessToken
		next.Expiry = tok.Expiry
		m.token = &next
		applied = true
	})

	if saveErr != nil {
		return fmt.Errorf("%w: %w", ErrRefreshFailed, saveErr)
	}

	m.logger.Info("access token refreshed", slog.Bool("applied", applied))

	return nil
}

// Logout clears the credential store and memory. It never fails.
func (m *Manager) Logout() {
	m.transition(func() {
		m.store.Clear()
		m.setAnonymous()
	})
	m.logger.Info("logged out")
}

func (m *Manager) setAnonymous() {
	m.token = nil
	m.user = nil
	m.state = Anonymous
}

// Subscribe registers fn for every state change. Subscribers are called
// in registration order. The returned func unregisters fn.
func (m *Manager) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()

			for i := range m.subs {
				if m.subs[i].id == id {
					m.subs = append(m.subs[:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// transition applies change under the lock and delivers the resulting
// snapshot to every subscriber.
func (m *Manager) transition(change func()) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	change()
	snap := m.snapshotLocked()
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, s := range subs {
		s.fn(snap)
	}
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{State: m.state}

	if m.user != nil {
		u := *m.user
		snap.User = &u
	}

	if m.token != nil {
		t := *m.token
		snap.Token = &t
	}

	return snap
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// AccessToken returns the in-memory access token, or "".
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil {
		return ""
	}

	return m.token.AccessToken
}

// User returns a copy of the logged-in profile, or nil.
func (m *Manager) User() *credstore.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.user == nil {
		return nil
	}

	u := *m.user

	return &u
}

// IsAuthenticated reports whether a profile and access token are present.
func (m *Manager) IsAuthenticated() bool {
	return m.Snapshot().IsAuthenticated()
}

// IsLoading reports whether Init has not completed.
func (m *Manager) IsLoading() bool {
	return m.State() == Initializing
}
