// Package session holds the credentialed user directory and the single
// active-session record, and signs the access tokens the HTTP surface uses.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"stockflow/backend/internal/domain"
	"stockflow/backend/internal/storage"
)

// ErrInvalidCredentials deliberately covers both unknown email and wrong
// secret so a caller cannot tell which half failed.
var ErrInvalidCredentials = errors.New("invalid credentials")

var ErrUserNotFound = errors.New("user not found")

type Store struct {
	mu       sync.RWMutex
	users    []domain.User
	active   *domain.Session
	codec    *storage.Codec
	log      zerolog.Logger
	secret   []byte
	tokenTTL time.Duration
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

func defaultUsers() []domain.User {
	seed := []struct {
		id, name, email, secret string
		role                    domain.Role
	}{
		{"u_owner", "Store Owner", "owner@example.com", "owner123", domain.RoleOwner},
		{"u_manager", "Store Manager", "manager@example.com", "manager123", domain.RoleManager},
		{"u_staff", "Staff Member", "staff@example.com", "staff123", domain.RoleStaff},
	}

	users := make([]domain.User, 0, len(seed))
	for _, u := range seed {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.secret), bcrypt.DefaultCost)
		if err != nil {
			// bcrypt only fails on oversized input; seeds are short.
			continue
		}
		users = append(users, domain.User{
			ID:     u.id,
			Name:   u.name,
			Email:  u.email,
			Role:   u.role,
			Secret: string(hash),
		})
	}
	return users
}

func NewStore(ctx context.Context, codec *storage.Codec, log zerolog.Logger, secret string, tokenTTL time.Duration) *Store {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	s := &Store{
		codec:    codec,
		log:      log,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
	s.load(ctx)
	return s
}

// load reads the directory and active session blobs. An empty or corrupt
// directory falls back to the seeded defaults; a corrupt session blob is
// cleared. Plaintext secrets in an imported directory are upgraded to
// bcrypt hashes in place.
func (s *Store) load(ctx context.Context) {
	var users []domain.User
	diag := s.codec.Load(ctx, storage.KeyUsers, &users)
	if diag != storage.LoadOK || len(users) == 0 {
		users = defaultUsers()
	}

	upgraded := false
	for i, u := range users {
		if !isSecretHash(u.Secret) && u.Secret != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(u.Secret), bcrypt.DefaultCost)
			if err != nil {
				continue
			}
			users[i].Secret = string(hash)
			upgraded = true
		}
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()
	if upgraded || diag != storage.LoadOK {
		s.persistUsers(ctx)
	}

	var session domain.Session
	switch s.codec.Load(ctx, storage.KeySession, &session) {
	case storage.LoadOK:
		s.mu.Lock()
		s.active = &session
		s.mu.Unlock()
	case storage.LoadCorrupt:
		if err := s.codec.Clear(ctx, storage.KeySession); err != nil {
			s.log.Warn().Err(err).Msg("clear corrupt session failed")
		}
	}
}

func (s *Store) persistUsers(ctx context.Context) {
	s.mu.RLock()
	users := append([]domain.User(nil), s.users...)
	s.mu.RUnlock()
	if err := s.codec.Save(ctx, storage.KeyUsers, users); err != nil {
		s.log.Error().Err(err).Msg("user directory persist failed")
	}
}

// Login matches email exactly (case-sensitive) and verifies the secret
// against the stored hash. Success establishes the active session.
func (s *Store) Login(ctx context.Context, email string, secret string) (domain.Session, error) {
	s.mu.RLock()
	var found *domain.User
	for i := range s.users {
		if s.users[i].Email == email {
			found = &s.users[i]
			break
		}
	}
	var stored string
	if found != nil {
		stored = found.Secret
	}
	s.mu.RUnlock()

	if found == nil || bcrypt.CompareHashAndPassword([]byte(stored), []byte(secret)) != nil {
		return domain.Session{}, ErrInvalidCredentials
	}

	session := domain.Session{
		UserID: found.ID,
		Name:   found.Name,
		Email:  found.Email,
		Role:   found.Role,
	}

	s.mu.Lock()
	s.active = &session
	s.mu.Unlock()

	if err := s.codec.Save(ctx, storage.KeySession, session); err != nil {
		s.log.Error().Err(err).Msg("session persist failed")
	}
	return session, nil
}

func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()

	if err := s.codec.Clear(ctx, storage.KeySession); err != nil {
		s.log.Warn().Err(err).Msg("session clear failed")
	}
}

// Current returns the active session, if any.
func (s *Store) Current() (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == nil {
		return domain.Session{}, false
	}
	return *s.active, true
}

// Directory lists every user with the stored secret hash redacted.
func (s *Store) Directory() []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, len(s.users))
	for i, u := range s.users {
		u.Secret = ""
		users[i] = u
	}
	return users
}

// UpsertUser replaces the directory entry with a matching id; otherwise a
// new entry is appended under a freshly generated id, even when the request
// carried one. The secret is hashed unless it already is.
func (s *Store) UpsertUser(ctx context.Context, req domain.UserUpsertRequest) (domain.User, error) {
	secret := req.Secret
	if !isSecretHash(secret) {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return domain.User{}, err
		}
		secret = string(hash)
	}

	user := domain.User{
		ID:     req.ID,
		Name:   req.Name,
		Email:  req.Email,
		Role:   req.Role,
		Secret: secret,
	}

	s.mu.Lock()
	replaced := false
	if user.ID != "" {
		for i := range s.users {
			if s.users[i].ID == user.ID {
				s.users[i] = user
				replaced = true
				break
			}
		}
	}
	if !replaced {
		user.ID = uuid.NewString()
		s.users = append(s.users, user)
	}
	s.mu.Unlock()

	s.persistUsers(ctx)
	user.Secret = ""
	return user, nil
}

// DeleteUser removes the entry; deleting the active user also logs out.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	users := make([]domain.User, 0, len(s.users))
	removed := false
	for _, u := range s.users {
		if u.ID == id {
			removed = true
			continue
		}
		users = append(users, u)
	}
	s.users = users
	wasActive := s.active != nil && s.active.UserID == id
	s.mu.Unlock()

	if !removed {
		return ErrUserNotFound
	}
	s.persistUsers(ctx)
	if wasActive {
		s.Logout(ctx)
	}
	return nil
}

// Token signs an HS256 access token for the session.
func (s *Store) Token(session domain.Session) (string, time.Time, error) {
	expiresAt := time.Now().UTC().Add(s.tokenTTL)
	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   session.UserID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "stockflow",
		},
		Name:  session.Name,
		Email: session.Email,
		Role:  session.Role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseToken recovers the actor from a signed access token.
func (s *Store) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &accessClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{UserID: sub, Email: claims.Email, Role: claims.Role}, nil
}

func isSecretHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
