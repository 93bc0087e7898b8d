package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/api/models"
	"github.com/rotabus/rotabus/internal/backend"
	"github.com/rotabus/rotabus/internal/store"
)

// Config holds configuration for the session service.
type Config struct {
	Backend Backend
	Store   store.Store
	Logger  zerolog.Logger

	// TTL bounds remembered sessions (default: DefaultSessionTTL).
	TTL time.Duration
}

// Service provides login, registration and token resolution.
type Service struct {
	backend Backend
	store   store.Store
	logger  zerolog.Logger
	ttl     time.Duration
	now     func() time.Time
}

// NewService creates a new session service.
func NewService(cfg Config) *Service {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{
		backend: cfg.Backend,
		store:   cfg.Store,
		logger:  cfg.Logger.With().Str("component", "session").Logger(),
		ttl:     ttl,
		now:     time.Now,
	}
}

func sessionKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "session:" + hex.EncodeToString(sum[:])
}

func userKey(userID string) string {
	return "user:" + userID
}

// Login signs in against the backend and remembers the session. When the backend
// returns no user, one is derived from the email.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)

	var errs []models.FieldError
	if email == "" {
		errs = append(errs, models.FieldError{Field: "email", Message: "is required"})
	}
	if password == "" {
		errs = append(errs, models.FieldError{Field: "password", Message: "is required"})
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	res, err := s.backend.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, ErrNoToken
	}

	acct := account{PasswordLength: utf8.RuneCountInString(password)}
	if res.User != nil && !res.User.IsZero() {
		acct.ID = res.User.ID.String()
		acct.Name = res.User.Name
		acct.FullName = res.User.FullName
		acct.Username = res.User.Username
		acct.Email = res.User.Email
	} else {
		acct.Name = localPart(email)
		if acct.Name == "" {
			acct.Name = "User"
		}
		acct.Email = email
	}

	ttl := s.ttl
	if claims, err := parseClaims(res.Token); err == nil {
		if acct.ID == "" {
			acct.ID = claims.UserID
		}
		if !claims.ExpiresAt.IsZero() {
			ttl = min(ttl, claims.ExpiresAt.Sub(s.now()))
		}
	}
	if acct.ID == "" {
		// Without an id from the backend or the token, the email keys the account.
		acct.ID = strings.ToLower(acct.Email)
	}

	if ttl > 0 {
		if err := s.remember(ctx, res.Token, acct, ttl); err != nil {
			s.logger.Error().Err(err).Str("user_id", acct.ID).Msg("storing session")
		}
	}

	s.logger.Info().Str("user_id", acct.ID).Msg("user logged in")

	u := acct.User
	u.Name = displayName(acct)
	return &LoginResult{Token: res.Token, User: u}, nil
}

// Register creates an account on the backend. Name and email are trimmed.
func (s *Service) Register(ctx context.Context, name, email, password string) error {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	var errs []models.FieldError
	if name == "" {
		errs = append(errs, models.FieldError{Field: "name", Message: "is required"})
	}
	if email == "" {
		errs = append(errs, models.FieldError{Field: "email", Message: "is required"})
	} else if !strings.Contains(email, "@") {
		errs = append(errs, models.FieldError{Field: "email", Message: "must be an email address"})
	}
	if password == "" {
		errs = append(errs, models.FieldError{Field: "password", Message: "is required"})
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	return s.backend.Register(ctx, backend.RegisterRequest{Name: name, Email: email, Password: password})
}

// Resolve returns the user id that owns token. Only sessions the backend has
// confirmed, at login or through /auth/me, are trusted. Token claims are read to
// reject expired JWTs early and never name the user.
func (s *Service) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	claims, err := parseClaims(token)
	switch {
	case err == nil:
		if claims.Expired(s.now()) {
			return "", ErrTokenExpired
		}
	case !errors.Is(err, errNotJWT):
		return "", err
	}

	var rec record
	err = store.GetJSON(ctx, s.store, sessionKey(token), &rec)
	if err == nil && rec.UserID != "" {
		return rec.UserID, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn().Err(err).Msg("reading session")
	}

	u, err := s.backend.Me(ctx, token)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) || errors.Is(err, backend.ErrNotFound) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("resolving token: %w", err)
	}

	acct := s.loadAccount(ctx, u.ID.String())
	mergeUser(&acct, u)
	if acct.ID == "" {
		acct.ID = strings.ToLower(acct.Email)
	}
	if acct.ID == "" {
		return "", ErrInvalidToken
	}

	if err := s.remember(ctx, token, acct, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("user_id", acct.ID).Msg("storing session")
	}
	return acct.ID, nil
}

// Me returns the account behind the session, refreshed from the backend when it
// answers and served from the store when it does not.
func (s *Service) Me(ctx context.Context, token, userID string) (*User, error) {
	acct, err := s.account(ctx, token, userID)
	if err != nil {
		return nil, err
	}
	u := acct.User
	u.Name = displayName(acct)
	return &u, nil
}

// Profile returns the display name, email and masked password of the account.
func (s *Service) Profile(ctx context.Context, token, userID string) (*Profile, error) {
	acct, err := s.account(ctx, token, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		DisplayName:    displayName(acct),
		Email:          acct.Email,
		MaskedPassword: MaskPassword(acct.PasswordLength),
	}, nil
}

// Logout forgets the session and the cached account.
func (s *Service) Logout(ctx context.Context, token, userID string) error {
	return errors.Join(
		s.store.Delete(ctx, sessionKey(token)),
		s.store.Delete(ctx, userKey(userID)),
	)
}

// MaskPassword renders a password of length n as bullets, never fewer than
// MinPasswordMask.
func MaskPassword(n int) string {
	return strings.Repeat("•", max(MinPasswordMask, n))
}

func (s *Service) account(ctx context.Context, token, userID string) (account, error) {
	acct := s.loadAccount(ctx, userID)

	u, err := s.backend.Me(ctx, token)
	switch {
	case err == nil:
		mergeUser(&acct, u)
		if acct.ID == "" {
			acct.ID = userID
		}
		if err := store.SetJSON(ctx, s.store, userKey(userID), acct, s.ttl); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("caching account")
		}
	case errors.Is(err, backend.ErrUnauthorized):
		return account{}, ErrInvalidToken
	case acct.ID == "":
		return account{}, err
	default:
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("backend unavailable, serving cached account")
	}
	return acct, nil
}

func (s *Service) loadAccount(ctx context.Context, userID string) account {
	var acct account
	if userID == "" {
		return acct
	}
	if err := store.GetJSON(ctx, s.store, userKey(userID), &acct); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("reading account")
	}
	return acct
}

func (s *Service) remember(ctx context.Context, token string, acct account, ttl time.Duration) error {
	if err := store.SetJSON(ctx, s.store, sessionKey(token), record{UserID: acct.ID}, ttl); err != nil {
		return err
	}
	return store.SetJSON(ctx, s.store, userKey(acct.ID), acct, ttl)
}

// mergeUser overlays the backend's view of the user on the cached account, keeping
// the stored password length.
func mergeUser(acct *account, u *backend.User) {
	if id := u.ID.String(); id != "" {
		acct.ID = id
	}
	if u.Name != "" {
		acct.Name = u.Name
	}
	if u.FullName != "" {
		acct.FullName = u.FullName
	}
	if u.Username != "" {
		acct.Username = u.Username
	}
	if u.Email != "" {
		acct.Email = u.Email
	}
}

// displayName picks name, then fullName, then username, then the email's local part.
func displayName(acct account) string {
	for _, n := range []string{acct.Name, acct.FullName, acct.Username, localPart(acct.Email)} {
		if n != "" {
			return n
		}
	}
	return "User"
}

func localPart(email string) string {
	local, _, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}
	return local
}
