package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"
	"time"

	"cropadviser/pkg/domain"
	"cropadviser/pkg/notify"
	"cropadviser/pkg/session"
	"cropadviser/pkg/storage"
	"cropadviser/pkg/store"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func testPrivateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generate rsa key: %v", err)
		}
		testKey = key
	})
	return testKey
}

type stubQueue struct {
	mu   sync.Mutex
	ids  []uint
	fail bool
}

func (q *stubQueue) Enqueue(_ context.Context, id uint) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail {
		return errors.New("queue unavailable")
	}
	q.ids = append(q.ids, id)
	return nil
}

type testEnv struct {
	app     *App
	store   *store.MemoryStore
	objects *storage.MemoryObjectStore
	events  *notify.MemoryPublisher
	queue   *stubQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	memStore := store.NewMemoryStore()
	objects := storage.NewMemoryObjectStore()
	events := &notify.MemoryPublisher{}
	queue := &stubQueue{}
	tokens := session.NewAccessTokensFromKey(testPrivateKey(t), session.NewMemoryRevoker(), session.Options{})
	a, err := New(Config{
		Store:   memStore,
		Objects: objects,
		Tokens:  tokens,
		Refresh: session.NewMemoryRefreshStore(),
		Events:  events,
		Jobs:    queue,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return &testEnv{app: a, store: memStore, objects: objects, events: events, queue: queue}
}

func (e *testEnv) mustRegister(t *testing.T, name, email string, level domain.UserLevel) domain.User {
	t.Helper()
	user, err := e.app.Register(context.Background(), RegisterInput{
		Name:      name,
		Email:     email,
		Password:  "harvest2026",
		UserLevel: level,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return user
}

func TestRegisterDefaultsToFarmer(t *testing.T) {
	env := newTestEnv(t)
	user, err := env.app.Register(context.Background(), RegisterInput{
		Name:     "Nimal Perera",
		Email:    "Nimal@Example.Com",
		Password: "harvest2026",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.UserLevel != domain.LevelFarmer {
		t.Fatalf("userlevel = %q, want farmer", user.UserLevel)
	}
	if user.Email != "nimal@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if user.Status != domain.StatusActive {
		t.Fatalf("status = %q", user.Status)
	}
}

func TestRegisterRejectsAdminAndDuplicates(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.app.Register(context.Background(), RegisterInput{
		Name: "X", Email: "x@example.com", Password: "harvest2026", UserLevel: domain.LevelAdmin,
	})
	if !IsValidation(err) {
		t.Fatalf("self-registered admin: err = %v", err)
	}

	env.mustRegister(t, "A", "dup@example.com", domain.LevelFarmer)
	_, err = env.app.Register(context.Background(), RegisterInput{
		Name: "B", Email: "dup@example.com", Password: "harvest2026",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate email: err = %v", err)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.app.Register(context.Background(), RegisterInput{
		Name: "X", Email: "weak@example.com", Password: "short1",
	})
	if !IsValidation(err) {
		t.Fatalf("weak password: err = %v", err)
	}
}

func TestLoginIssuesTokensAndHomePath(t *testing.T) {
	env := newTestEnv(t)
	env.mustRegister(t, "Agent", "agent@example.com", domain.LevelAgent)

	res, err := env.app.Login(context.Background(), "agent@example.com", "harvest2026")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token == "" || res.RefreshToken == "" {
		t.Fatal("login succeeded without tokens")
	}
	if res.HomePath != "/agent-dashboard" {
		t.Fatalf("homePath = %q", res.HomePath)
	}
	if res.User.Email != "agent@example.com" {
		t.Fatalf("user = %+v", res.User)
	}

	authed, err := env.app.UserFromToken(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if authed.ID != res.User.ID {
		t.Fatalf("token user %d, want %d", authed.ID, res.User.ID)
	}
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t)
	user := env.mustRegister(t, "F", "f@example.com", domain.LevelFarmer)

	if _, err := env.app.Login(context.Background(), "f@example.com", "wrongpass1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: err = %v", err)
	}
	if _, err := env.app.Login(context.Background(), "nobody@example.com", "harvest2026"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: err = %v", err)
	}

	user.Status = domain.StatusDisabled
	if err := env.store.SaveUser(user); err != nil {
		t.Fatal(err)
	}
	if _, err := env.app.Login(context.Background(), "f@example.com", "harvest2026"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("disabled account: err = %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	env := newTestEnv(t)
	env.mustRegister(t, "F", "f@example.com", domain.LevelFarmer)
	res, err := env.app.Login(context.Background(), "f@example.com", "harvest2026")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.app.Logout(context.Background(), res.Token, res.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.app.UserFromToken(context.Background(), res.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked access token accepted: err = %v", err)
	}
	if _, err := env.app.Refresh(context.Background(), res.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked refresh token accepted: err = %v", err)
	}
}

func TestRefreshRotationAndReplay(t *testing.T) {
	env := newTestEnv(t)
	env.mustRegister(t, "F", "f@example.com", domain.LevelFarmer)
	res, err := env.app.Login(context.Background(), "f@example.com", "harvest2026")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	rotated, err := env.app.Refresh(context.Background(), res.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.Token == "" || rotated.RefreshToken == "" || rotated.RefreshToken == res.RefreshToken {
		t.Fatalf("rotation result: %+v", rotated)
	}
	if rotated.HomePath != "/dashboard" {
		t.Fatalf("homePath = %q", rotated.HomePath)
	}

	// Replaying the rotated-out token kills the family.
	if _, err := env.app.Refresh(context.Background(), res.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("replayed token: err = %v", err)
	}
	if _, err := env.app.Refresh(context.Background(), rotated.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("family survivor after replay: err = %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	user := env.mustRegister(t, "F", "f@example.com", domain.LevelFarmer)
	res, err := env.app.Login(context.Background(), "f@example.com", "harvest2026")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.app.ChangePassword(context.Background(), user, user.ID, "wrongpass1", "newharvest3"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current password: err = %v", err)
	}
	other := env.mustRegister(t, "G", "g@example.com", domain.LevelFarmer)
	if err := env.app.ChangePassword(context.Background(), other, user.ID, "harvest2026", "newharvest3"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign password change: err = %v", err)
	}

	// Access token cutoffs are second-granular; move the clock past the
	// login second so the old token falls before the cutoff.
	env.app.now = func() time.Time { return time.Now().Add(2 * time.Second) }
	if err := env.app.ChangePassword(context.Background(), user, user.ID, "harvest2026", "newharvest3"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := env.app.UserFromToken(context.Background(), res.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old session survived password change: err = %v", err)
	}
	if _, err := env.app.Refresh(context.Background(), res.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old refresh survived password change: err = %v", err)
	}
	if _, err := env.app.Login(context.Background(), "f@example.com", "newharvest3"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestChangePasswordAllowsImmediateRelogin(t *testing.T) {
	env := newTestEnv(t)
	user := env.mustRegister(t, "F", "f@example.com", domain.LevelFarmer)

	if err := env.app.ChangePassword(context.Background(), user, user.ID, "harvest2026", "newharvest3"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	// A relogin in the same second as the change must yield a usable token.
	res, err := env.app.Login(context.Background(), "f@example.com", "newharvest3")
	if err != nil {
		t.Fatalf("relogin: %v", err)
	}
	if _, err := env.app.UserFromToken(context.Background(), res.Token); err != nil {
		t.Fatalf("fresh token rejected after password change: %v", err)
	}
}

func TestSetUserLevelGuards(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "Admin", "admin@example.com", domain.LevelFarmer)
	admin.UserLevel = domain.LevelAdmin
	if err := env.store.SaveUser(admin); err != nil {
		t.Fatal(err)
	}
	farmer := env.mustRegister(t, "F", "f@example.com", domain.LevelFarmer)

	level := domain.LevelAgent
	updated, err := env.app.SetUserLevel(context.Background(), admin, farmer.ID, SetUserLevelInput{UserLevel: &level})
	if err != nil {
		t.Fatalf("promote farmer: %v", err)
	}
	if updated.UserLevel != domain.LevelAgent {
		t.Fatalf("userlevel = %q", updated.UserLevel)
	}

	if _, err := env.app.SetUserLevel(context.Background(), farmer, admin.ID, SetUserLevelInput{UserLevel: &level}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin level change: err = %v", err)
	}
	demote := domain.LevelFarmer
	if _, err := env.app.SetUserLevel(context.Background(), admin, admin.ID, SetUserLevelInput{UserLevel: &demote}); !IsValidation(err) {
		t.Fatalf("self-demote: err = %v", err)
	}
	disabled := domain.StatusDisabled
	if _, err := env.app.SetUserLevel(context.Background(), admin, admin.ID, SetUserLevelInput{Status: &disabled}); !IsValidation(err) {
		t.Fatalf("self-disable: err = %v", err)
	}
}
