// Package auth is the identity provider: account signup, password login and
// the JWT access/refresh pair every other endpoint authenticates with.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/custom-orders/internal/access"
	"github.com/ariefcatur/custom-orders/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"

	issuer = "custom-orders"
)

// Claims is the JWT body. Subject carries the user id.
type Claims struct {
	Username string      `json:"username"`
	Role     access.Role `json:"role"`
	Type     string      `json:"typ"`
	jwt.RegisteredClaims
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Username     string `json:"username"`
	IsStaff      bool   `json:"is_staff"`
}

type SignupInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Service struct {
	Users      UserStore
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	HashCost   int
	Log        *zap.Logger
	Now        func() time.Time
}

func NewService(users UserStore, secret string, accessTTL, refreshTTL time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		Users:      users,
		Secret:     []byte(secret),
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		HashCost:   bcrypt.DefaultCost,
		Log:        log,
		Now:        time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Signup registers a CLIENT account. Admins are provisioned with EnsureAdmin.
func (s *Service) Signup(ctx context.Context, in SignupInput) (User, error) {
	return s.create(ctx, in, access.RoleClient)
}

// EnsureAdmin creates the bootstrap admin unless the email is already taken.
func (s *Service) EnsureAdmin(ctx context.Context, in SignupInput) (User, error) {
	existing, err := s.Users.UserByEmail(ctx, NormalizeEmail(in.Email))
	if err == nil {
		if existing.Role != access.RoleAdmin {
			s.Log.Warn("bootstrap admin email belongs to a non-admin account", zap.String("user_id", existing.ID))
		}
		return existing, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return User{}, err
	}
	return s.create(ctx, in, access.RoleAdmin)
}

func (s *Service) create(ctx context.Context, in SignupInput, role access.Role) (User, error) {
	username := strings.TrimSpace(in.Username)
	email := NormalizeEmail(in.Email)
	switch {
	case username == "":
		return User{}, fmt.Errorf("%w: username is required", apperr.ErrBadRequest)
	case !strings.Contains(email, "@"):
		return User{}, fmt.Errorf("%w: a valid email is required", apperr.ErrBadRequest)
	case len(in.Password) < 8 || len(in.Password) > 72:
		return User{}, fmt.Errorf("%w: password must be 8 to 72 bytes", apperr.ErrBadRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.HashCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		IsStaff:      role == access.RoleAdmin,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.Users.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	s.Log.Info("user created", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Tokens, error) {
	u, err := s.Users.UserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, apperr.ErrNotFound) {
		return Tokens{}, fmt.Errorf("%w: invalid email or password", apperr.ErrUnauthorized)
	}
	if err != nil {
		return Tokens{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Tokens{}, fmt.Errorf("%w: invalid email or password", apperr.ErrUnauthorized)
	}
	if !u.IsActive {
		return Tokens{}, fmt.Errorf("%w: account is disabled", apperr.ErrUnauthorized)
	}

	accessTok, err := s.issue(u, TokenAccess, s.AccessTTL)
	if err != nil {
		return Tokens{}, err
	}
	refreshTok, err := s.issue(u, TokenRefresh, s.RefreshTTL)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{AccessToken: accessTok, RefreshToken: refreshTok, Username: u.Username, IsStaff: u.IsStaff}, nil
}

// Refresh trades a refresh token for a new access token. The account is
// re-read so role changes and deactivation apply from the next token on.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	c, err := s.parse(refreshToken, TokenRefresh)
	if err != nil {
		return "", err
	}
	u, err := s.Users.UserByID(ctx, c.Subject)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", fmt.Errorf("%w: unknown account", apperr.ErrUnauthorized)
	}
	if err != nil {
		return "", err
	}
	if !u.IsActive {
		return "", fmt.Errorf("%w: account is disabled", apperr.ErrUnauthorized)
	}
	return s.issue(u, TokenAccess, s.AccessTTL)
}

// Authenticate validates an access token and yields the caller identity.
func (s *Service) Authenticate(accessToken string) (access.Identity, error) {
	c, err := s.parse(accessToken, TokenAccess)
	if err != nil {
		return access.Identity{}, err
	}
	return access.Identity{UserID: c.Subject, Username: c.Username, Role: c.Role}, nil
}

func (s *Service) issue(u User, typ string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Username: u.Username,
		Role:     u.Role,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(raw, typ string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: invalid token", apperr.ErrUnauthorized)
	}
	c, ok := tok.Claims.(*Claims)
	if !ok || c.Type != typ || c.Subject == "" {
		return nil, fmt.Errorf("%w: expected %s token", apperr.ErrUnauthorized, typ)
	}
	if _, err := access.ParseRole(string(c.Role)); err != nil {
		return nil, fmt.Errorf("%w: invalid role claim", apperr.ErrUnauthorized)
	}
	return c, nil
}
