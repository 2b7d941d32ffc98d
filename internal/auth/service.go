package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Marioshad/foodvault/internal/inventory"
)

// DefaultSessionTTL is how long a login stays valid
const DefaultSessionTTL = 7 * 24 * time.Hour

var (
	// ErrInvalidCredentials is returned for a wrong username or password
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrUnauthorized is returned for a missing, unknown or expired session
	ErrUnauthorized = errors.New("unauthorized")
)

// Users is the user half of inventory.Store
type Users interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*inventory.User, error)
	GetUser(ctx context.Context, id int64) (*inventory.User, error)
	GetUserByUsername(ctx context.Context, username string) (*inventory.User, error)
}

// Credentials is the register and login payload. bcrypt only accepts
// passwords up to 72 bytes.
type Credentials struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,maxbytes=72"`
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service registers users and manages their sessions
type Service struct {
	users      Users
	sessions   SessionStore
	ttl        time.Duration
	newID      func() string
	timeSource TimeSource
	validate   *validator.Validate
}

// NewService creates a new Service
func NewService(users Users, sessions SessionStore, ttl time.Duration) *Service {
	return NewServiceWithDeps(users, sessions, ttl, uuid.NewString, defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(users Users, sessions SessionStore, ttl time.Duration, newID func() string, timeSrc TimeSource) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{
		users:      users,
		sessions:   sessions,
		ttl:        ttl,
		newID:      newID,
		timeSource: timeSrc,
		validate:   inventory.NewValidator(),
	}
}

// TTL is the session lifetime
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Register creates the user and logs them in
func (s *Service) Register(ctx context.Context, creds Credentials) (*inventory.User, *Session, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if err := s.validate.Struct(creds); err != nil {
		return nil, nil, inventory.ValidationErrorOf(err)
	}

	hash, err := HashPassword(creds.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("hashing password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, creds.Username, hash)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// Login checks the password and starts a session
func (s *Service) Login(ctx context.Context, creds Credentials) (*inventory.User, *Session, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(creds.Username))
	if errors.Is(err, inventory.ErrNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if !VerifyPassword(user.PasswordHash, creds.Password) {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// Logout ends the session; unknown ids are ignored
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Authenticate resolves a session id to its user
func (s *Service) Authenticate(ctx context.Context, sessionID string) (*inventory.User, error) {
	if sessionID == "" {
		return nil, ErrUnauthorized
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}

	if !s.timeSource.Now().Before(session.ExpiresAt) {
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			slog.Warn("Failed to delete expired session", "error", err)
		}
		return nil, ErrUnauthorized
	}

	user, err := s.users.GetUser(ctx, session.UserID)
	if errors.Is(err, inventory.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) startSession(ctx context.Context, userID int64) (*Session, error) {
	now := s.timeSource.Now()
	if err := s.sessions.DeleteExpired(ctx, now); err != nil {
		slog.Warn("Failed to delete expired sessions", "error", err)
	}

	session := Session{
		ID:        s.newID(),
		UserID:    userID,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return &session, nil
}

type userKey struct{}

// WithUser attaches the authenticated user to ctx
func WithUser(ctx context.Context, user *inventory.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom returns the authenticated user, if any
func UserFrom(ctx context.Context) (*inventory.User, bool) {
	user, ok := ctx.Value(userKey{}).(*inventory.User)
	return user, ok && user != nil
}
