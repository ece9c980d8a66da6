package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"cropadviser/pkg/auth"
	"cropadviser/pkg/domain"
	"cropadviser/pkg/notify"
	"cropadviser/pkg/session"
	"cropadviser/pkg/storage"
	"cropadviser/pkg/store"
)

const (
	defaultRefreshTTL = 30 * 24 * time.Hour
	presignExpiry     = 15 * time.Minute
)

// Enqueuer schedules prediction jobs for background processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, predictionID uint) error
}

// Config wires the application's dependencies.
type Config struct {
	Store      store.Store
	Objects    storage.ObjectStore
	Tokens     *session.AccessTokens
	Refresh    session.RefreshStore
	Events     notify.Publisher
	Jobs       Enqueuer
	RefreshTTL time.Duration
}

// App implements every Smart Crop Adviser operation on top of the storage,
// session and messaging layers. HTTP concerns stay in internal/server.
type App struct {
	store      store.Store
	objects    storage.ObjectStore
	tokens     *session.AccessTokens
	refresh    session.RefreshStore
	events     notify.Publisher
	jobs       Enqueuer
	refreshTTL time.Duration
	now        func() time.Time
}

func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("app: store is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("app: access token issuer is required")
	}
	if cfg.Refresh == nil {
		return nil, errors.New("app: refresh store is required")
	}
	if cfg.Events == nil {
		cfg.Events = notify.NopPublisher{}
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	return &App{
		store:      cfg.Store,
		objects:    cfg.Objects,
		tokens:     cfg.Tokens,
		refresh:    cfg.Refresh,
		events:     cfg.Events,
		jobs:       cfg.Jobs,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

// RegisterInput is the public signup payload. UserLevel defaults to farmer;
// admin accounts are never self-service.
type RegisterInput struct {
	Name      string
	Email     string
	Password  string
	UserLevel domain.UserLevel
	Phone     string
	District  string
}

func (a *App) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.User{}, invalidf("name is required")
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return domain.User{}, err
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return domain.User{}, invalidf("%s", err.Error())
	}
	level := in.UserLevel
	switch level {
	case "":
		level = domain.LevelFarmer
	case domain.LevelFarmer, domain.LevelAgent, domain.LevelResearcher:
	default:
		return domain.User{}, invalidf("userlevel %q cannot be self-registered", level)
	}

	taken, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return domain.User{}, ErrEmailTaken
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		UserLevel:    level,
		Status:       domain.StatusActive,
		Phone:        strings.TrimSpace(in.Phone),
		District:     strings.TrimSpace(in.District),
		CreatedAt:    a.now().UTC(),
		UpdatedAt:    a.now().UTC(),
	}
	if err := a.store.CreateUser(&user); err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	slog.InfoContext(ctx, "user_registered", "user_id", user.ID, "userlevel", user.UserLevel)
	return user, nil
}

// LoginResult carries the session material issued on login or refresh.
type LoginResult struct {
	User         domain.User
	Token        string
	RefreshToken string
	HomePath     string
}

func (a *App) Login(ctx context.Context, email, password string) (LoginResult, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	user, ok, err := a.store.GetUserByEmail(normalized)
	if err != nil {
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if user.Status == domain.StatusDisabled {
		return LoginResult{}, ErrAccountDisabled
	}
	return a.issueSession(ctx, user)
}

// Refresh rotates the refresh token and issues a fresh access token. A
// replayed token tears down the whole token family.
func (a *App) Refresh(ctx context.Context, refreshToken string) (LoginResult, error) {
	userID, newToken, err := a.refresh.Rotate(refreshToken, a.refreshTTL)
	if err != nil {
		if errors.Is(err, session.ErrRefreshReplay) {
			slog.WarnContext(ctx, "refresh_replay_detected")
		}
		return LoginResult{}, ErrUnauthorized
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ok || user.Status == domain.StatusDisabled {
		_ = a.refresh.RevokeUser(userID)
		return LoginResult{}, ErrUnauthorized
	}
	access, err := a.tokens.Issue(user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue access token: %w", err)
	}
	return LoginResult{
		User:         a.withAvatarURL(ctx, user),
		Token:        access,
		RefreshToken: newToken,
		HomePath:     HomePath(user.UserLevel),
	}, nil
}

func (a *App) issueSession(ctx context.Context, user domain.User) (LoginResult, error) {
	access, err := a.tokens.Issue(user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := a.refresh.Issue(user.ID, a.refreshTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue refresh token: %w", err)
	}
	slog.InfoContext(ctx, "user_login", "user_id", user.ID, "userlevel", user.UserLevel)
	return LoginResult{
		User:         a.withAvatarURL(ctx, user),
		Token:        access,
		RefreshToken: refresh,
		HomePath:     HomePath(user.UserLevel),
	}, nil
}

// Logout revokes the presented access token and its refresh token.
func (a *App) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := a.tokens.Revoke(accessToken); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	if strings.TrimSpace(refreshToken) != "" {
		if err := a.refresh.Revoke(refreshToken); err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
	}
	slog.InfoContext(ctx, "user_logout")
	return nil
}

// UserFromToken authenticates a bearer token and loads its user.
func (a *App) UserFromToken(ctx context.Context, token string) (domain.User, error) {
	userID, err := a.tokens.Verify(token)
	if err != nil {
		return domain.User{}, ErrUnauthorized
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ok || user.Status == domain.StatusDisabled {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

func (a *App) GetUser(ctx context.Context, actor domain.User, id uint) (domain.User, error) {
	if actor.ID != id && actor.UserLevel != domain.LevelAdmin {
		return domain.User{}, ErrForbidden
	}
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return a.withAvatarURL(ctx, user), nil
}

// UpdateProfileInput updates the mutable profile fields. Nil means unchanged.
type UpdateProfileInput struct {
	Name     *string
	Phone    *string
	District *string
}

func (a *App) UpdateProfile(ctx context.Context, actor domain.User, id uint, in UpdateProfileInput) (domain.User, error) {
	if actor.ID != id && actor.UserLevel != domain.LevelAdmin {
		return domain.User{}, ErrForbidden
	}
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrNotFound
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return domain.User{}, invalidf("name cannot be empty")
		}
		user.Name = name
	}
	if in.Phone != nil {
		user.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.District != nil {
		user.District = strings.TrimSpace(*in.District)
	}
	user.UpdatedAt = a.now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return a.withAvatarURL(ctx, user), nil
}

// ChangePassword verifies the current password, stores the new hash and
// revokes every outstanding session for the user.
func (a *App) ChangePassword(ctx context.Context, actor domain.User, id uint, current, next string) error {
	if actor.ID != id {
		return ErrForbidden
	}
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if !auth.CheckPassword(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := auth.ValidatePassword(next); err != nil {
		return invalidf("%s", err.Error())
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	user.UpdatedAt = a.now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	if err := a.tokens.RevokeUser(user.ID, a.now().UTC()); err != nil {
		slog.WarnContext(ctx, "revoke access tokens after password change", "user_id", user.ID, "err", err)
	}
	if err := a.refresh.RevokeUser(user.ID); err != nil {
		slog.WarnContext(ctx, "revoke refresh tokens after password change", "user_id", user.ID, "err", err)
	}
	slog.InfoContext(ctx, "password_changed", "user_id", user.ID)
	return nil
}

var avatarExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
}

// UploadAvatar stores the image in the object store and records its key.
func (a *App) UploadAvatar(ctx context.Context, actor domain.User, id uint, upload FileUpload) (domain.User, error) {
	if actor.ID != id && actor.UserLevel != domain.LevelAdmin {
		return domain.User{}, ErrForbidden
	}
	if a.objects == nil {
		return domain.User{}, errors.New("object storage not configured")
	}
	if upload.Reader == nil || upload.Size <= 0 {
		return domain.User{}, invalidf("avatar file is required")
	}
	ext := strings.ToLower(filepath.Ext(upload.Name))
	if !avatarExtensions[ext] {
		return domain.User{}, invalidf("avatar must be a jpg, png or webp image")
	}
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrNotFound
	}

	key := storage.AvatarKey(upload.Name)
	if err := a.objects.Put(ctx, key, upload.Reader, upload.Size, storage.ContentTypeFor(upload.Name, upload.ContentType)); err != nil {
		return domain.User{}, fmt.Errorf("store avatar: %w", err)
	}
	if user.AvatarKey != "" {
		if err := a.objects.Delete(ctx, user.AvatarKey); err != nil {
			slog.WarnContext(ctx, "delete old avatar", "key", user.AvatarKey, "err", err)
		}
	}
	user.AvatarKey = key
	user.UpdatedAt = a.now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return a.withAvatarURL(ctx, user), nil
}

// UserPage is a paginated user listing.
type UserPage struct {
	Users []domain.User
	Total int64
}

func (a *App) ListUsers(ctx context.Context, actor domain.User, filter store.UserFilter) (UserPage, error) {
	if actor.UserLevel != domain.LevelAdmin {
		return UserPage{}, ErrForbidden
	}
	users, total, err := a.store.ListUsers(filter)
	if err != nil {
		return UserPage{}, fmt.Errorf("list users: %w", err)
	}
	for i := range users {
		users[i] = a.withAvatarURL(ctx, users[i])
	}
	return UserPage{Users: users, Total: total}, nil
}

// SetUserLevelInput changes a user's role and/or account status.
type SetUserLevelInput struct {
	UserLevel *domain.UserLevel
	Status    *domain.UserStatus
}

func (a *App) SetUserLevel(ctx context.Context, actor domain.User, id uint, in SetUserLevelInput) (domain.User, error) {
	if actor.UserLevel != domain.LevelAdmin {
		return domain.User{}, ErrForbidden
	}
	if in.UserLevel == nil && in.Status == nil {
		return domain.User{}, invalidf("userlevel or status is required")
	}
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrNotFound
	}
	if in.UserLevel != nil {
		switch *in.UserLevel {
		case domain.LevelAdmin, domain.LevelAgent, domain.LevelFarmer, domain.LevelResearcher:
		default:
			return domain.User{}, invalidf("unknown userlevel %q", *in.UserLevel)
		}
		if actor.ID == id && *in.UserLevel != domain.LevelAdmin {
			return domain.User{}, invalidf("admins cannot demote themselves")
		}
		user.UserLevel = *in.UserLevel
	}
	if in.Status != nil {
		switch *in.Status {
		case domain.StatusActive, domain.StatusDisabled:
		default:
			return domain.User{}, invalidf("unknown status %q", *in.Status)
		}
		if actor.ID == id && *in.Status == domain.StatusDisabled {
			return domain.User{}, invalidf("admins cannot disable themselves")
		}
		user.Status = *in.Status
	}
	user.UpdatedAt = a.now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	if user.Status == domain.StatusDisabled {
		if err := a.tokens.RevokeUser(user.ID, a.now().UTC()); err != nil {
			slog.WarnContext(ctx, "revoke access tokens for disabled user", "user_id", user.ID, "err", err)
		}
		if err := a.refresh.RevokeUser(user.ID); err != nil {
			slog.WarnContext(ctx, "revoke refresh tokens for disabled user", "user_id", user.ID, "err", err)
		}
	}
	slog.InfoContext(ctx, "user_level_updated", "user_id", user.ID, "userlevel", user.UserLevel, "status", user.Status, "admin_id", actor.ID)
	return a.withAvatarURL(ctx, user), nil
}

func (a *App) withAvatarURL(ctx context.Context, user domain.User) domain.User {
	if user.AvatarKey == "" || a.objects == nil {
		return user
	}
	url, err := a.objects.PresignGet(ctx, user.AvatarKey, presignExpiry)
	if err != nil {
		slog.WarnContext(ctx, "presign avatar", "key", user.AvatarKey, "err", err)
		return user
	}
	user.AvatarURL = url
	return user
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 || !strings.Contains(email[at:], ".") {
		return "", invalidf("invalid email address")
	}
	return email, nil
}
