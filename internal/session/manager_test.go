package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/api"
	profileentity "github.com/ovaphlow/pitchfork/client-core-go/internal/profile/entity"
	"github.com/ovaphlow/pitchfork/client-core-go/internal/session/entity"
	"github.com/ovaphlow/pitchfork/client-core-go/internal/session/store"
)

type fakeAuth struct {
	mu       sync.Mutex
	users    map[string]entity.User
	errs     map[string]error
	notices  map[string]string
	logouts  []string
	logoutFn func() error
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		users:   map[string]entity.User{},
		errs:    map[string]error{},
		notices: map[string]string{},
	}
}

func (f *fakeAuth) result(email string) (entity.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[email]; err != nil {
		return entity.AuthResult{}, err
	}
	u, ok := f.users[email]
	if !ok {
		u = entity.User{ID: "id-" + email, Email: email}
		f.users[email] = u
	}
	return entity.AuthResult{User: u, Token: "tok-" + u.ID, DeactivationNotice: f.notices[email]}, nil
}

func (f *fakeAuth) Login(ctx context.Context, creds entity.Credentials) (entity.AuthResult, error) {
	return f.result(creds.Email)
}

func (f *fakeAuth) Register(ctx context.Context, reg entity.Registration) (entity.AuthResult, error) {
	return f.result(reg.Email)
}

func (f *fakeAuth) Logout(ctx context.Context, token string) error {
	f.mu.Lock()
	f.logouts = append(f.logouts, token)
	fn := f.logoutFn
	f.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

type fakeProfiles struct {
	mu      sync.Mutex
	records map[string]profileentity.Record
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{records: map[string]profileentity.Record{}}
}

func (f *fakeProfiles) FetchProfile(ctx context.Context, userID string) (profileentity.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[userID], nil
}

func (f *fakeProfiles) UpdateProfile(ctx context.Context, userID string, rec profileentity.Record) (profileentity.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[userID] = rec
	return rec, nil
}

type failingStore struct {
	store.MemoryStore
	saveErr error
}

func (s *failingStore) Save(ctx context.Context, b []byte) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.MemoryStore.Save(ctx, b)
}

func newTestManager(t *testing.T) (*Manager, *fakeAuth, *store.MemoryStore, *fakeProfiles) {
	t.Helper()
	auth := newFakeAuth()
	st := store.NewMemoryStore()
	profiles := newFakeProfiles()
	return NewManager(auth, st, profiles, nil), auth, st, profiles
}

func login(t *testing.T, m *Manager, email string) {
	t.Helper()
	require.NoError(t, m.Login(context.Background(), entity.Credentials{Email: email, Password: "pw"}))
}

func TestLoginCommitsAndPersists(t *testing.T) {
	m, _, st, _ := newTestManager(t)
	login(t, m, "a@example.com")

	assert.True(t, m.IsAuthenticated())
	u, ok := m.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "id-a@example.com", u.ID)
	assert.Equal(t, "tok-id-a@example.com", m.Token())

	raw, err := st.Load(context.Background())
	require.NoError(t, err)
	snap, err := decodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, u, snap.User)
}

func TestLoginErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   AuthErrorKind
		reason string
	}{
		{"unauthorized", &api.Error{Status: 401, Message: "bad password"}, AuthInvalidCredentials, ""},
		{"blocked", &api.Error{Status: 403, Reason: "Compte suspendu"}, AuthAccountBlocked, "Compte suspendu"},
		{"blocked message fallback", &api.Error{Status: 403, Message: "blocked by admin"}, AuthAccountBlocked, "blocked by admin"},
		{"transport", fmt.Errorf("%w: dial tcp", api.ErrTransport), AuthNetwork, ""},
		{"timeout", context.DeadlineExceeded, AuthNetwork, ""},
		{"server", &api.Error{Status: 502}, AuthNetwork, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, auth, _, _ := newTestManager(t)
			login(t, m, "prev@example.com")
			before, _ := m.CurrentUser()

			auth.errs["x@example.com"] = tt.err
			err := m.Login(context.Background(), entity.Credentials{Email: "x@example.com", Password: "pw"})

			var ae *AuthError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.kind, ae.Kind)
			assert.Equal(t, tt.reason, ae.Reason)
			if tt.kind == AuthAccountBlocked {
				assert.Equal(t, tt.reason, ae.UserMessage())
			}

			after, ok := m.CurrentUser()
			require.True(t, ok, "failed login must keep the previous session")
			assert.Equal(t, before, after)
		})
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	err := m.Login(context.Background(), entity.Credentials{Email: "  ", Password: "pw"})
	require.ErrorIs(t, err, ErrMissingCredentials)
	assert.False(t, m.IsAuthenticated())
}

func TestDeactivationNoticeIsShownOnce(t *testing.T) {
	m, auth, _, _ := newTestManager(t)
	auth.notices["a@example.com"] = "Your account was reactivated."
	login(t, m, "a@example.com")

	n, ok := m.TakeDeactivationNotice()
	require.True(t, ok)
	assert.Equal(t, "Your account was reactivated.", n)

	_, ok = m.TakeDeactivationNotice()
	assert.False(t, ok)
}

func TestRegisterDoesNotInheritPreviousIdentity(t *testing.T) {
	m, _, _, profiles := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, entity.Registration{Email: "a@example.com", Password: "pw"}))
	_, err := m.SaveProfile(ctx, profileentity.Record{
		Avatar:      "a.png",
		CustomURL:   "alice",
		Description: "A's bio",
		Phone:       "0600",
	})
	require.NoError(t, err)
	a, _ := m.CurrentUser()
	require.Equal(t, "a.png", a.Avatar)

	profiles.records["id-b@example.com"] = profileentity.Record{UserID: "id-b@example.com"}
	require.NoError(t, m.Register(ctx, entity.Registration{Email: "b@example.com", Password: "pw"}))

	b, ok := m.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "id-b@example.com", b.ID)
	assert.Empty(t, b.Avatar)
	assert.Empty(t, b.ProfileURL)
	assert.Empty(t, b.Bio)

	_, cached := m.CachedProfile()
	assert.False(t, cached, "A's profile must not survive the switch")

	rec, ok, err := m.Profile(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "id-b@example.com", rec.UserID)
	assert.Empty(t, rec.Phone)
}

func TestFailedRegisterLeavesClientAnonymous(t *testing.T) {
	m, auth, st, _ := newTestManager(t)
	login(t, m, "a@example.com")

	auth.errs["b@example.com"] = &api.Error{Status: 409, Message: "email taken"}
	err := m.Register(context.Background(), entity.Registration{Email: "b@example.com", Password: "pw"})

	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.False(t, m.IsAuthenticated())
	_, err = st.Load(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLogoutIsIdempotent(t *testing.T) {
	m, auth, st, _ := newTestManager(t)
	ended := 0
	m.OnEnd(func() { ended++ })

	require.NoError(t, m.Logout(context.Background()))
	assert.Equal(t, 0, ended)

	login(t, m, "a@example.com")
	require.NoError(t, m.Logout(context.Background()))
	require.NoError(t, m.Logout(context.Background()))

	assert.False(t, m.IsAuthenticated())
	assert.Equal(t, 1, ended)
	assert.Equal(t, []string{"tok-id-a@example.com"}, auth.logouts)
	_, err := st.Load(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, cached := m.CachedProfile()
	assert.False(t, cached)
}

func TestLogoutIgnoresServerFailure(t *testing.T) {
	m, auth, _, _ := newTestManager(t)
	auth.logoutFn = func() error { return errors.New("boom") }
	login(t, m, "a@example.com")

	require.NoError(t, m.Logout(context.Background()))
	assert.False(t, m.IsAuthenticated())
}

func TestLoginAsDifferentIdentityEndsSession(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ended := 0
	m.OnEnd(func() { ended++ })

	login(t, m, "a@example.com")
	login(t, m, "a@example.com")
	assert.Equal(t, 0, ended)
	login(t, m, "b@example.com")
	assert.Equal(t, 1, ended)
}

func TestRehydrate(t *testing.T) {
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	fresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		record   string
		restored bool
		purged   bool
	}{
		{"opaque token", `{"user":{"id":"u1","email":"a@example.com"},"token":"opaque"}`, true, false},
		{"unexpired jwt", `{"user":{"id":"u1","email":"a@example.com"},"token":"` + fresh + `"}`, true, false},
		{"missing token", `{"user":{"id":"u1","email":"a@example.com"}}`, false, true},
		{"empty token", `{"user":{"id":"u1","email":"a@example.com"},"token":""}`, false, true},
		{"missing email", `{"user":{"id":"u1"},"token":"t"}`, false, true},
		{"not json", `{"user":`, false, true},
		{"expired jwt", `{"user":{"id":"u1","email":"a@example.com"},"token":"` + expired + `"}`, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			require.NoError(t, st.Save(context.Background(), []byte(tt.record)))
			m := NewManager(newFakeAuth(), st, newFakeProfiles(), nil, WithClock(func() time.Time { return now }))

			assert.Equal(t, tt.restored, m.Rehydrate(context.Background()))
			assert.Equal(t, tt.restored, m.IsAuthenticated())

			_, err := st.Load(context.Background())
			if tt.purged {
				assert.ErrorIs(t, err, store.ErrNotFound)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRehydrateEmptyStore(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	assert.False(t, m.Rehydrate(context.Background()))
	assert.False(t, m.IsAuthenticated())
}

func TestUpdateUserIsScopedToActiveIdentity(t *testing.T) {
	m, _, st, _ := newTestManager(t)
	ctx := context.Background()
	name := "Alice"

	require.ErrorIs(t, m.UpdateUser(ctx, entity.UserPatch{FirstName: &name}), ErrNotAuthenticated)

	login(t, m, "a@example.com")
	err := m.UpdateUser(ctx, entity.UserPatch{UserID: "someone-else", FirstName: &name})
	require.ErrorIs(t, err, ErrIdentityMismatch)
	u, _ := m.CurrentUser()
	assert.Empty(t, u.FirstName)

	require.NoError(t, m.UpdateUser(ctx, entity.UserPatch{UserID: u.ID, FirstName: &name}))
	u, _ = m.CurrentUser()
	assert.Equal(t, "Alice", u.FirstName)

	raw, err := st.Load(ctx)
	require.NoError(t, err)
	snap, err := decodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, "Alice", snap.User.FirstName)
}

func TestPersistFailureDoesNotFailTransition(t *testing.T) {
	st := &failingStore{saveErr: errors.New("disk full")}
	m := NewManager(newFakeAuth(), st, newFakeProfiles(), nil)

	login(t, m, "a@example.com")
	assert.True(t, m.IsAuthenticated())

	name := "Alice"
	require.NoError(t, m.UpdateUser(context.Background(), entity.UserPatch{FirstName: &name}))
	u, _ := m.CurrentUser()
	assert.Equal(t, "Alice", u.FirstName)
}

func TestRestartReproducesSession(t *testing.T) {
	st := store.NewMemoryStore()
	auth := newFakeAuth()
	first := NewManager(auth, st, newFakeProfiles(), nil)
	login(t, first, "a@example.com")
	want, _ := first.CurrentUser()
	first.Dispose()

	second := NewManager(auth, st, newFakeProfiles(), nil)
	second.Init(context.Background())
	got, ok := second.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, first.Token(), second.Token())
}

func TestProfileIsFetchedAgainAfterRelogin(t *testing.T) {
	m, _, _, profiles := newTestManager(t)
	ctx := context.Background()
	profiles.records["id-a@example.com"] = profileentity.Record{UserID: "id-a@example.com", Phone: "555"}

	login(t, m, "a@example.com")
	rec, ok, err := m.Profile(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "555", rec.Phone)

	require.NoError(t, m.Logout(ctx))
	login(t, m, "a@example.com")
	rec, ok, err = m.Profile(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "555", rec.Phone)
}

type unkeyedProfiles struct {
	*fakeProfiles
}

func (p unkeyedProfiles) UpdateProfile(ctx context.Context, userID string, rec profileentity.Record) (profileentity.Record, error) {
	rec, err := p.fakeProfiles.UpdateProfile(ctx, userID, rec)
	rec.UserID = ""
	return rec, err
}

func TestSaveProfileIsScopedWhenResponseOmitsUser(t *testing.T) {
	m := NewManager(newFakeAuth(), store.NewMemoryStore(), unkeyedProfiles{newFakeProfiles()}, nil)
	login(t, m, "a@example.com")

	saved, err := m.SaveProfile(context.Background(), profileentity.Record{Description: "hello", Visibility: "public"})
	require.NoError(t, err)
	assert.Equal(t, "id-a@example.com", saved.UserID)
	u, _ := m.CurrentUser()
	assert.Equal(t, "hello", u.Bio)
	assert.Equal(t, "public", u.Visibility)
}

func TestActiveRequestIsDurable(t *testing.T) {
	st := store.NewMemoryStore()
	auth := newFakeAuth()
	ctx := context.Background()
	first := NewManager(auth, st, newFakeProfiles(), nil)
	login(t, first, "a@example.com")
	u, _ := first.CurrentUser()

	first.SetActiveRequest(ctx, "someone-else", "r0")
	assert.Empty(t, first.ActiveRequest(u.ID))
	first.SetActiveRequest(ctx, u.ID, "r1")
	assert.Equal(t, "r1", first.ActiveRequest(u.ID))
	assert.Empty(t, first.ActiveRequest("someone-else"))

	second := NewManager(auth, st, newFakeProfiles(), nil)
	require.True(t, second.Rehydrate(ctx))
	assert.Equal(t, "r1", second.ActiveRequest(u.ID))

	third := NewManager(auth, st, newFakeProfiles(), nil)
	login(t, third, "a@example.com")
	assert.Equal(t, "r1", third.ActiveRequest(u.ID), "a new login as the same identity keeps the marker")

	login(t, third, "b@example.com")
	assert.Empty(t, third.ActiveRequest("id-b@example.com"))

	login(t, third, "a@example.com")
	third.SetActiveRequest(ctx, u.ID, "r2")
	require.NoError(t, third.Logout(ctx))
	login(t, third, "a@example.com")
	assert.Empty(t, third.ActiveRequest(u.ID))
}
