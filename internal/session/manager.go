// Package session owns the authenticated-session lifecycle on the client:
// who is signed in, the durable copy of that fact, and the profile record
// that belongs to that identity.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/profile"
	profileentity "github.com/ovaphlow/pitchfork/client-core-go/internal/profile/entity"
	"github.com/ovaphlow/pitchfork/client-core-go/internal/session/entity"
	"github.com/ovaphlow/pitchfork/client-core-go/internal/session/store"
)

// Authenticator is the auth half of the remote API.
type Authenticator interface {
	Login(ctx context.Context, creds entity.Credentials) (entity.AuthResult, error)
	Register(ctx context.Context, reg entity.Registration) (entity.AuthResult, error)
	Logout(ctx context.Context, token string) error
}

// Manager is the single source of truth for the signed-in identity.
//
// Commits are serialized by mu; network calls run outside it, so two
// overlapping logins resolve last-write-wins. Every commit writes the full
// snapshot to the store while still holding mu, so the durable copy follows
// the same order as memory.
type Manager struct {
	auth     Authenticator
	store    store.Store
	profiles *profile.Cache
	logger   *zap.SugaredLogger
	clock    func() time.Time

	mu      sync.Mutex
	user    *entity.User
	token   string
	notice  string
	request string
	onEnd   []func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides time.Now, used for token expiry checks.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// NewManager wires a Manager. The profile cache is owned by the manager and
// built from fetcher.
func NewManager(auth Authenticator, st store.Store, fetcher profile.Fetcher, logger *zap.SugaredLogger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if st == nil {
		st = store.NewMemoryStore()
	}
	m := &Manager{
		auth:     auth,
		store:    st,
		profiles: profile.NewCache(fetcher, logger),
		logger:   logger,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init restores the durable session. It never fails; see Rehydrate.
func (m *Manager) Init(ctx context.Context) {
	m.Rehydrate(ctx)
}

// Dispose detaches every session-end hook. The in-memory session and the
// durable record are left as they are so the next process can rehydrate.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = nil
}

// OnEnd registers fn to run whenever a session ends: logout, forced
// termination, or a different identity replacing the current one.
func (m *Manager) OnEnd(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = append(m.onEnd, fn)
}

// IsAuthenticated is true iff both a valid user and a token are held.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticatedLocked()
}

func (m *Manager) authenticatedLocked() bool {
	return m.user != nil && m.user.Valid() && m.token != ""
}

// CurrentUser returns a copy of the signed-in user.
func (m *Manager) CurrentUser() (entity.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authenticatedLocked() {
		return entity.User{}, false
	}
	return *m.user, true
}

// Token returns the bearer token, or "" when anonymous.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authenticatedLocked() {
		return ""
	}
	return m.token
}

// TakeDeactivationNotice returns the notice attached to the last login and
// clears it, so it is shown once.
func (m *Manager) TakeDeactivationNotice() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.notice
	m.notice = ""
	return n, n != ""
}

// Login authenticates and replaces the session. On failure the previous
// session is untouched and the error is an *AuthError.
func (m *Manager) Login(ctx context.Context, creds entity.Credentials) error {
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return &AuthError{Kind: AuthInvalidCredentials, Err: ErrMissingCredentials}
	}
	res, err := m.auth.Login(ctx, creds)
	if err != nil {
		ae := classifyAuthError(err)
		m.logger.Infow("login failed", "kind", ae.Kind, "err", err)
		return ae
	}
	if !res.User.Valid() || res.Token == "" {
		return &AuthError{Kind: AuthNetwork, Err: ErrMalformedAuth}
	}

	m.mu.Lock()
	ended := m.user != nil && m.user.ID != res.User.ID
	request := m.carriedRequestLocked(ctx, res.User.ID)
	m.purgeDurableLocked(ctx)
	m.request = request
	m.commitLocked(ctx, res)
	hooks := m.hooksIf(ended)
	m.mu.Unlock()

	runHooks(hooks)
	m.logger.Infow("logged in", "user_id", res.User.ID, "deactivation_notice", res.DeactivationNotice != "")
	return nil
}

// Register creates an account and signs it in. All local state, durable
// and in memory, is wiped before the API is called so nothing of a
// previous identity can carry over; a failed registration therefore leaves
// the client anonymous.
func (m *Manager) Register(ctx context.Context, reg entity.Registration) error {
	reg.Email = strings.TrimSpace(reg.Email)
	if reg.Email == "" || reg.Password == "" {
		return &AuthError{Kind: AuthInvalidCredentials, Err: ErrMissingCredentials}
	}

	m.mu.Lock()
	ended := m.user != nil || m.token != ""
	m.resetLocked(ctx)
	hooks := m.hooksIf(ended)
	m.mu.Unlock()
	runHooks(hooks)

	res, err := m.auth.Register(ctx, reg)
	if err != nil {
		ae := classifyAuthError(err)
		m.logger.Infow("register failed", "kind", ae.Kind, "err", err)
		return ae
	}
	if !res.User.Valid() || res.Token == "" {
		return &AuthError{Kind: AuthNetwork, Err: ErrMalformedAuth}
	}

	m.mu.Lock()
	m.commitLocked(ctx, res)
	m.mu.Unlock()
	m.logger.Infow("registered", "user_id", res.User.ID)
	return nil
}

// Logout ends the session locally, then asks the server to invalidate the
// token. It is a no-op when already anonymous and never fails: the
// server-side call is best-effort.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.user == nil && m.token == "" {
		m.mu.Unlock()
		return nil
	}
	token := m.token
	userID := ""
	if m.user != nil {
		userID = m.user.ID
	}
	m.resetLocked(ctx)
	hooks := m.hooksIf(true)
	m.mu.Unlock()

	runHooks(hooks)
	if token != "" {
		if err := m.auth.Logout(ctx, token); err != nil {
			m.logger.Warnw("server-side logout failed", "user_id", userID, "err", err)
		}
	}
	m.logger.Infow("logged out", "user_id", userID)
	return nil
}

// Rehydrate restores the session from the store. A missing, unreadable,
// malformed or expired record leaves the client anonymous; malformed and
// expired records are also deleted. It reports whether a session was
// restored.
func (m *Manager) Rehydrate(ctx context.Context) bool {
	raw, err := m.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Warnw("could not read durable session", "err", err)
		}
		m.forceAnonymous(ctx, false)
		return false
	}
	snap, err := decodeSnapshot(raw)
	if err == nil && tokenExpired(snap.Token, m.clock()) {
		err = ErrExpiredToken
	}
	if err != nil {
		m.logger.Warnw("discarding durable session", "err", err)
		m.forceAnonymous(ctx, true)
		return false
	}

	m.mu.Lock()
	u := snap.User
	m.user = &u
	m.token = snap.Token
	m.notice = ""
	m.request = snap.ActiveRequest
	m.profiles.Reconcile(u.ID)
	m.mu.Unlock()
	m.logger.Infow("session restored", "user_id", u.ID)
	return true
}

// UpdateUser merges trusted fields into the active user.
func (m *Manager) UpdateUser(ctx context.Context, patch entity.UserPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authenticatedLocked() {
		return ErrNotAuthenticated
	}
	if patch.UserID != "" && patch.UserID != m.user.ID {
		m.logger.Warnw("rejected user patch for another identity", "active", m.user.ID, "patch", patch.UserID)
		return ErrIdentityMismatch
	}
	u := patch.Apply(*m.user)
	m.user = &u
	m.persistLocked(ctx)
	return nil
}

// ActiveRequest returns the id of userID's open lifecycle request as
// recorded in the session, or "".
func (m *Manager) ActiveRequest(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authenticatedLocked() || m.user.ID != userID {
		return ""
	}
	return m.request
}

// SetActiveRequest records requestID as userID's open lifecycle request and
// persists it with the session; "" clears it. It is ignored unless userID
// is signed in.
func (m *Manager) SetActiveRequest(ctx context.Context, userID, requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authenticatedLocked() || m.user.ID != userID || m.request == requestID {
		return
	}
	m.request = requestID
	m.persistLocked(ctx)
}

// Profile returns the active identity's profile record, fetching it on the
// first call for that identity.
func (m *Manager) Profile(ctx context.Context) (profileentity.Record, bool, error) {
	return m.profiles.Ensure(ctx)
}

// CachedProfile returns the profile record without any network call.
func (m *Manager) CachedProfile() (profileentity.Record, bool) {
	return m.profiles.Current()
}

// RefreshProfile refetches the profile record.
func (m *Manager) RefreshProfile(ctx context.Context) (profileentity.Record, error) {
	return m.profiles.Refresh(ctx)
}

// InvalidateProfile drops the cached record and allows a new automatic fetch.
func (m *Manager) InvalidateProfile() {
	m.profiles.Invalidate()
}

// SaveProfile stores rec and mirrors its display fields into the user.
func (m *Manager) SaveProfile(ctx context.Context, rec profileentity.Record) (profileentity.Record, error) {
	saved, err := m.profiles.Save(ctx, rec)
	if err != nil {
		return profileentity.Record{}, err
	}
	patch := entity.UserPatch{
		UserID:     saved.UserID,
		Avatar:     &saved.Avatar,
		ProfileURL: &saved.CustomURL,
		Bio:        &saved.Description,
		Visibility: &saved.Visibility,
	}
	if err := m.UpdateUser(ctx, patch); err != nil {
		return profileentity.Record{}, err
	}
	return saved, nil
}

func (m *Manager) commitLocked(ctx context.Context, res entity.AuthResult) {
	u := res.User
	m.user = &u
	m.token = res.Token
	m.notice = res.DeactivationNotice
	m.profiles.Reconcile(u.ID)
	m.persistLocked(ctx)
}

// resetLocked returns to anonymous and wipes the durable record.
func (m *Manager) resetLocked(ctx context.Context) {
	m.user = nil
	m.token = ""
	m.notice = ""
	m.request = ""
	m.profiles.Reconcile("")
	m.purgeDurableLocked(ctx)
}

func (m *Manager) forceAnonymous(ctx context.Context, purge bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	m.token = ""
	m.notice = ""
	m.request = ""
	m.profiles.Reconcile("")
	if purge {
		m.purgeDurableLocked(ctx)
	}
}

func (m *Manager) persistLocked(ctx context.Context) {
	if !m.authenticatedLocked() {
		return
	}
	buf, err := encodeSnapshot(entity.Snapshot{User: *m.user, Token: m.token, ActiveRequest: m.request})
	if err != nil {
		m.logger.Warnw("encode session snapshot", "err", err)
		return
	}
	if err := m.store.Save(ctx, buf); err != nil {
		m.logger.Warnw("persist session snapshot failed", "user_id", m.user.ID, "err", err)
	}
}

// carriedRequestLocked returns the open-request marker that survives a
// login as userID: the in-memory one, or the one left in the store by an
// earlier process for the same identity.
func (m *Manager) carriedRequestLocked(ctx context.Context, userID string) string {
	if m.user != nil {
		if m.user.ID == userID {
			return m.request
		}
		return ""
	}
	raw, err := m.store.Load(ctx)
	if err != nil {
		return ""
	}
	snap, err := decodeSnapshot(raw)
	if err != nil || snap.User.ID != userID {
		return ""
	}
	return snap.ActiveRequest
}

func (m *Manager) purgeDurableLocked(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warnw("purge durable session failed", "err", err)
	}
}

func (m *Manager) hooksIf(ended bool) []func() {
	if !ended {
		return nil
	}
	return append([]func(){}, m.onEnd...)
}

func runHooks(hooks []func()) {
	for _, fn := range hooks {
		fn()
	}
}
