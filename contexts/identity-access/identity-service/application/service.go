package application

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"pollhub/contexts/identity-access/identity-service/domain/entities"
	domainerrors "pollhub/contexts/identity-access/identity-service/domain/errors"
	"pollhub/contexts/identity-access/identity-service/ports"

	"golang.org/x/crypto/bcrypt"
)

// Service is the identity resolver: account registration, login, and bearer
// token verification. Tokens are HMAC-SHA256 signed and carry only the user
// id and expiry; the role is read from storage on every Authenticate so role
// changes take effect without re-login.
type Service struct {
	Users       ports.UserRepository
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	TokenSecret []byte
	TokenTTL    time.Duration
	Logger      *slog.Logger
}

type AuthResult struct {
	User  entities.User
	Token string
}

func (s Service) Register(ctx context.Context, name string, email string, password string) (AuthResult, error) {
	logger := s.logger()
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || password == "" || !strings.Contains(email, "@") {
		return AuthResult{}, domainerrors.ErrInvalidSignupInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResult{}, err
	}
	userID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return AuthResult{}, err
	}
	user := entities.User{
		UserID:       userID,
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         entities.RoleForEmail(email),
		CreatedAt:    s.now(),
	}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		return AuthResult{}, err
	}

	token, err := s.mintToken(user.UserID)
	if err != nil {
		return AuthResult{}, err
	}
	logger.Info("user registered",
		"event", "identity_user_registered",
		"module", "identity-access/identity-service",
		"layer", "application",
		"user_id", user.UserID,
		"role", string(user.Role),
	)
	return AuthResult{User: user, Token: token}, nil
}

func (s Service) Login(ctx context.Context, email string, password string) (AuthResult, error) {
	logger := s.logger()
	email = strings.ToLower(strings.TrimSpace(email))

	user, found, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		return AuthResult{}, err
	}
	if !found {
		return AuthResult{}, domainerrors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		logger.Warn("login rejected",
			"event", "identity_login_rejected",
			"module", "identity-access/identity-service",
			"layer", "application",
			"user_id", user.UserID,
		)
		return AuthResult{}, domainerrors.ErrInvalidCredentials
	}

	token, err := s.mintToken(user.UserID)
	if err != nil {
		return AuthResult{}, err
	}
	logger.Info("user logged in",
		"event", "identity_login_succeeded",
		"module", "identity-access/identity-service",
		"layer", "application",
		"user_id", user.UserID,
	)
	return AuthResult{User: user, Token: token}, nil
}

// Authenticate resolves a bearer token to the caller's identity.
func (s Service) Authenticate(ctx context.Context, token string) (entities.Identity, error) {
	userID, expiresAt, err := s.parseToken(token)
	if err != nil {
		return entities.Identity{}, err
	}
	if s.now().After(expiresAt) {
		return entities.Identity{}, domainerrors.ErrTokenExpired
	}
	user, err := s.Users.GetUser(ctx, userID)
	if err != nil {
		return entities.Identity{}, err
	}
	return entities.Identity{UserID: user.UserID, Role: user.Role}, nil
}

func (s Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (s Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s Service) ttl() time.Duration {
	if s.TokenTTL <= 0 {
		return 24 * time.Hour
	}
	return s.TokenTTL
}

// Token format: base64url(user_id:expiry_unix) + "." + base64url(signature).
func (s Service) mintToken(userID string) (string, error) {
	payload := userID + ":" + strconv.FormatInt(s.now().Add(s.ttl()).Unix(), 10)
	mac := hmac.New(sha256.New, s.TokenSecret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) +
		"." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (s Service) parseToken(token string) (string, time.Time, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 2 {
		return "", time.Time{}, domainerrors.ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", time.Time{}, domainerrors.ErrInvalidToken
	}
	signature, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", time.Time{}, domainerrors.ErrInvalidToken
	}

	mac := hmac.New(sha256.New, s.TokenSecret)
	mac.Write(payload)
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return "", time.Time{}, domainerrors.ErrInvalidToken
	}

	idx := strings.LastIndex(string(payload), ":")
	if idx <= 0 {
		return "", time.Time{}, domainerrors.ErrInvalidToken
	}
	userID := string(payload)[:idx]
	expiryUnix, err := strconv.ParseInt(string(payload)[idx+1:], 10, 64)
	if err != nil {
		return "", time.Time{}, domainerrors.ErrInvalidToken
	}
	return userID, time.Unix(expiryUnix, 0).UTC(), nil
}
