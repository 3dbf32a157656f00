package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"golang.org/x/crypto/bcrypt"

	"learning-platform/internal/domain"
)

// DefaultSessionTTL is the lifetime of a session token.
const DefaultSessionTTL = 72 * time.Hour

// RegisterInput is the body of a sign-up request.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,min=2"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginInput is the body of a sign-in request.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Session is the authenticated identity carried by a token.
type Session struct {
	UserID  string
	IsAdmin bool
}

type sessionClaims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// AuthService issues and verifies session tokens.
type AuthService struct {
	users  UserRepository
	secret []byte
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewAuthService(users UserRepository, secret string, ttl time.Duration, logger *slog.Logger) *AuthService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// TTL is how long issued tokens stay valid.
func (s *AuthService) TTL() time.Duration { return s.ttl }

// Register creates a student account.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return domain.User{}, err
	}
	return s.create(ctx, in, false)
}

// CreateAdmin creates an administrator account. Used by the CLI.
func (s *AuthService) CreateAdmin(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return domain.User{}, err
	}
	return s.create(ctx, in, true)
}

func (s *AuthService) create(ctx context.Context, in RegisterInput, admin bool) (domain.User, error) {
	_, err := s.users.GetUserByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return domain.User{}, FieldErrors{"email": "is already registered"}
	case !errors.Is(err, errors.NotFound):
		return domain.User{}, errors.Trace(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, errors.Annotate(err, "hash password")
	}
	now := s.now().UTC()
	user := domain.User{
		ID:           s.newID(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: string(hash),
		IsAdmin:      admin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return domain.User{}, errors.Trace(err)
	}
	s.logger.Info("user registered", slog.String("user_id", user.ID), slog.Bool("admin", admin))
	return user, nil
}

// Login checks the credentials and returns a signed session token.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (string, domain.User, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateStruct(in); err != nil {
		return "", domain.User{}, err
	}
	user, err := s.users.GetUserByEmail(ctx, in.Email)
	if errors.Is(err, errors.NotFound) {
		return "", domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return "", domain.User{}, errors.Trace(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return "", domain.User{}, domain.ErrInvalidCredentials
	}
	token, err := s.Issue(user)
	if err != nil {
		return "", domain.User{}, errors.Trace(err)
	}
	return token, user, nil
}

// Issue signs a session token for user.
func (s *AuthService) Issue(user domain.User) (string, error) {
	now := s.now()
	claims := sessionClaims{
		Admin: user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	return signed, errors.Annotate(err, "sign session")
}

// ParseToken verifies a session token. Any failure is ErrNoSession.
func (s *AuthService) ParseToken(raw string) (Session, error) {
	if raw == "" {
		return Session{}, domain.ErrNoSession
	}
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Unauthorizedf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return Session{}, domain.ErrNoSession
	}
	return Session{UserID: claims.Subject, IsAdmin: claims.Admin}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// User returns the account behind a session.
func (s *AuthService) User(ctx context.Context, id string) (domain.User, error) {
	user, err := s.users.GetUser(ctx, id)
	return user, errors.Trace(err)
}

// RequireAdmin checks the admin flag against the stored account, so a demoted
// or deleted user loses admin access before their token expires.
func (s *AuthService) RequireAdmin(ctx context.Context, session Session) error {
	if !session.IsAdmin {
		return domain.ErrAdminRequired
	}
	user, err := s.users.GetUser(ctx, session.UserID)
	switch {
	case errors.Is(err, errors.NotFound):
		return domain.ErrAdminRequired
	case err != nil:
		return errors.Trace(err)
	case !user.IsAdmin:
		return domain.ErrAdminRequired
	}
	return nil
}
