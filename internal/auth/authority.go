// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
)

// Default administrator created on an empty store.
const (
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "admin123" //nolint:gosec // G101: well-known bootstrap credential, operators are told to change it
)

// dummyPasswordHash is verified when a user doesn't exist so both rejection
// paths cost one PBKDF2 derivation. It decodes to 48 zero bytes and matches
// no password.
var dummyPasswordHash = strings.Repeat("A", 64)

// Authority issues and validates bearer tokens and manages accounts.
// It keeps no state of its own beyond configuration; every record lives in
// the repositories, which may be shared with other processes.
type Authority struct {
	users   UserRepository
	tokens  TokenRepository
	secrets SecretRepository
	hasher  PasswordHasher

	tokenTTL               time.Duration
	hashConcurrency        int64
	revokeOnPasswordChange bool
	now                    func() time.Time
	logger                 *slog.Logger
	metrics                Metrics
	hashSem                *semaphore.Weighted
}

// NewAuthority creates an Authority and bootstraps the store.
func NewAuthority(
	ctx context.Context,
	users UserRepository,
	tokens TokenRepository,
	secrets SecretRepository,
	hasher PasswordHasher,
	opts ...Option,
) (*Authority, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("users repository is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("tokens repository is required")
	}
	if secrets == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("secrets repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}

	a := &Authority{
		users:           users,
		tokens:          tokens,
		secrets:         secrets,
		hasher:          hasher,
		tokenTTL:        DefaultTokenTTL,
		hashConcurrency: int64(runtime.GOMAXPROCS(0)),
		now:             time.Now,
		logger:          slog.Default(),
		metrics:         noopMetrics{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.tokenTTL <= 0 {
		return nil, oops.Code("AUTH_INVALID_CONFIG").
			With("token_ttl", a.tokenTTL.String()).
			Errorf("token TTL must be positive")
	}
	a.hashSem = semaphore.NewWeighted(a.hashConcurrency)

	if err := a.EnsureBootstrapped(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// TokenTTL returns the lifetime of issued tokens.
func (a *Authority) TokenTTL() time.Duration {
	return a.tokenTTL
}

// EnsureBootstrapped runs first-start initialization when the store holds
// no installation secret or no readable users: it writes a fresh secret and
// creates the default administrator. It never overwrites existing records,
// so an existing "admin" account keeps its password, and it is safe to run
// concurrently from several processes.
func (a *Authority) EnsureBootstrapped(ctx context.Context) error {
	_, err := a.secrets.GetSecret(ctx)
	secretMissing := false
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		secretMissing = true
		secret, genErr := GenerateSecret()
		if genErr != nil {
			return oops.With("operation", "bootstrap").Wrap(genErr)
		}
		written, putErr := a.secrets.PutSecretIfAbsent(ctx, secret)
		if putErr != nil {
			return oops.With("operation", "store secret").Wrap(putErr)
		}
		if written {
			a.logger.InfoContext(ctx, "generated installation secret")
		}
	default:
		return oops.With("operation", "get secret").Wrap(err)
	}

	users, err := a.users.List(ctx)
	if err != nil {
		return oops.With("operation", "list users").Wrap(err)
	}
	if len(users) > 0 && !secretMissing {
		return nil
	}
	if _, ok := users[DefaultAdminUsername]; ok {
		return nil
	}

	hash, err := a.hash(ctx, DefaultAdminPassword)
	if err != nil {
		return oops.With("operation", "hash default password").Wrap(err)
	}
	admin, err := NewUser(DefaultAdminUsername, hash, RoleAdmin, a.now())
	if err != nil {
		return err
	}
	switch err := a.users.Create(ctx, admin); {
	case err == nil:
		a.logger.WarnContext(ctx, "created default administrator account, change its password",
			"username", DefaultAdminUsername,
			"password", DefaultAdminPassword)
	case errors.Is(err, ErrAlreadyExists):
		// Another process bootstrapped first, or an unreadable record holds the name.
	default:
		return oops.With("operation", "create default admin").Wrap(err)
	}
	return nil
}

// Authenticate verifies a username and password and issues a new token.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (a *Authority) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	user, lookupErr := a.users.Get(ctx, username)

	targetHash := dummyPasswordHash
	exists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		exists = true
	case errors.Is(lookupErr, ErrNotFound):
	default:
		a.metrics.RecordLogin(OutcomeError)
		return nil, oops.With("operation", "get user").
			With("username", username).
			Wrap(lookupErr)
	}

	valid, err := a.verify(ctx, password, targetHash)
	if err != nil {
		a.metrics.RecordLogin(OutcomeError)
		return nil, err
	}
	if !exists || !valid {
		reason := OutcomePasswordMismatch
		if !exists {
			reason = OutcomeUnknownUser
		}
		a.logger.DebugContext(ctx, "authentication rejected", "username", username, "reason", reason)
		a.metrics.RecordLogin(reason)
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	token, expiresAt, err := a.IssueToken(ctx, user.Username)
	if err != nil {
		a.metrics.RecordLogin(OutcomeError)
		return nil, err
	}

	a.metrics.RecordLogin(OutcomeSuccess)
	return &Session{
		Username:  user.Username,
		Role:      user.Role,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// IssueToken creates and stores a new token for username. The caller is
// responsible for having authenticated the user.
func (a *Authority) IssueToken(ctx context.Context, username string) (string, time.Time, error) {
	token, key, err := GenerateToken()
	if err != nil {
		return "", time.Time{}, err
	}

	now := a.now()
	rec := &Token{
		Username:  username,
		IssuedAt:  now,
		ExpiresAt: now.Add(a.tokenTTL),
	}
	if err := a.tokens.Put(ctx, key, rec, a.tokenTTL); err != nil {
		return "", time.Time{}, oops.With("operation", "store token").
			With("username", username).
			Wrap(err)
	}

	a.metrics.RecordTokenIssued()
	return token, rec.ExpiresAt, nil
}

// ValidateToken resolves a bearer token to the identity of its owner.
// Expired and orphaned tokens are deleted as they are found. The returned
// role is the owner's current role.
func (a *Authority) ValidateToken(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		a.metrics.RecordValidation(OutcomeNotFound)
		return nil, oops.Code("AUTH_TOKEN_NOT_FOUND").Wrap(ErrTokenNotFound)
	}

	key := TokenKey(token)
	rec, err := a.tokens.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.metrics.RecordValidation(OutcomeNotFound)
			return nil, oops.Code("AUTH_TOKEN_NOT_FOUND").Wrap(ErrTokenNotFound)
		}
		a.metrics.RecordValidation(OutcomeError)
		return nil, oops.With("operation", "get token").Wrap(err)
	}

	if rec.IsExpiredAt(a.now()) {
		a.discardToken(ctx, key, OutcomeExpired)
		a.metrics.RecordValidation(OutcomeExpired)
		return nil, oops.Code("AUTH_TOKEN_EXPIRED").
			With("username", rec.Username).
			With("expires_at", rec.ExpiresAt).
			Wrap(ErrTokenExpired)
	}

	user, err := a.users.Get(ctx, rec.Username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.discardToken(ctx, key, OutcomeOrphaned)
			a.metrics.RecordValidation(OutcomeOrphaned)
			return nil, oops.Code("AUTH_TOKEN_ORPHANED").
				With("username", rec.Username).
				Wrap(ErrTokenOrphaned)
		}
		a.metrics.RecordValidation(OutcomeError)
		return nil, oops.With("operation", "get token owner").
			With("username", rec.Username).
			Wrap(err)
	}

	a.metrics.RecordValidation(OutcomeValid)
	return &Identity{Username: user.Username, Role: user.Role}, nil
}

// RevokeToken deletes a token. It reports whether the token existed, so a
// second revocation of the same token returns false.
func (a *Authority) RevokeToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	deleted, err := a.tokens.Delete(ctx, TokenKey(token))
	if err != nil {
		return false, oops.With("operation", "delete token").Wrap(err)
	}
	if deleted {
		a.metrics.RecordTokensRevoked("logout", 1)
	}
	return deleted, nil
}

// RevokeUserTokens deletes every token owned by username and returns how
// many were removed. It attempts every matching token before reporting the
// first failure.
func (a *Authority) RevokeUserTokens(ctx context.Context, username string) (int, error) {
	if bulk, ok := a.tokens.(UserTokenDeleter); ok {
		n, err := bulk.DeleteByUser(ctx, username)
		if err != nil {
			return 0, oops.With("operation", "delete user tokens").With("username", username).Wrap(err)
		}
		if n > 0 {
			a.metrics.RecordTokensRevoked("user", int(n))
		}
		return int(n), nil
	}

	all, err := a.tokens.List(ctx)
	if err != nil {
		return 0, oops.With("operation", "list tokens").With("username", username).Wrap(err)
	}

	var (
		removed  int
		firstErr error
	)
	for key, t := range all {
		if t.Username != username {
			continue
		}
		deleted, err := a.tokens.Delete(ctx, key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if deleted {
			removed++
		}
	}

	if removed > 0 {
		a.metrics.RecordTokensRevoked("user", removed)
	}
	if firstErr != nil {
		return removed, oops.With("operation", "delete user tokens").
			With("username", username).
			Wrap(firstErr)
	}
	return removed, nil
}

// AddUser creates an account. An empty role defaults to RoleUser. An
// existing account with the same name is left untouched.
func (a *Authority) AddUser(ctx context.Context, username, password string, role Role) error {
	user, err := NewUser(username, "", role, a.now())
	if err != nil {
		a.metrics.RecordUserOperation("add", OutcomeRefused)
		return err
	}

	exists, err := a.users.Exists(ctx, username)
	if err != nil {
		a.metrics.RecordUserOperation("add", OutcomeError)
		return oops.With("operation", "check user exists").With("username", username).Wrap(err)
	}
	if exists {
		a.metrics.RecordUserOperation("add", OutcomeRefused)
		return oops.Code("AUTH_USER_EXISTS").With("username", username).Wrap(ErrUserAlreadyExists)
	}

	hash, err := a.hash(ctx, password)
	if err != nil {
		a.metrics.RecordUserOperation("add", OutcomeError)
		return err
	}
	user.PasswordHash = hash

	if err := a.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			a.metrics.RecordUserOperation("add", OutcomeRefused)
			return oops.Code("AUTH_USER_EXISTS").With("username", username).Wrap(ErrUserAlreadyExists)
		}
		a.metrics.RecordUserOperation("add", OutcomeError)
		return oops.With("operation", "create user").With("username", username).Wrap(err)
	}

	a.logger.InfoContext(ctx, "user added", "username", username, "role", string(user.Role))
	a.metrics.RecordUserOperation("add", OutcomeSuccess)
	return nil
}

// ChangePassword replaces a user's password after verifying the old one.
func (a *Authority) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	user, err := a.users.Get(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.metrics.RecordUserOperation("change_password", OutcomeRefused)
			return oops.Code("AUTH_USER_NOT_FOUND").With("username", username).Wrap(ErrUserNotFound)
		}
		a.metrics.RecordUserOperation("change_password", OutcomeError)
		return oops.With("operation", "get user").With("username", username).Wrap(err)
	}

	valid, err := a.verify(ctx, oldPassword, user.PasswordHash)
	if err != nil {
		a.metrics.RecordUserOperation("change_password", OutcomeError)
		return err
	}
	if !valid {
		a.metrics.RecordUserOperation("change_password", OutcomeRefused)
		return oops.Code("AUTH_INVALID_CREDENTIALS").With("username", username).Wrap(ErrInvalidCredentials)
	}

	hash, err := a.hash(ctx, newPassword)
	if err != nil {
		a.metrics.RecordUserOperation("change_password", OutcomeError)
		return err
	}
	now := a.now()
	user.PasswordHash = hash
	user.UpdatedAt = &now

	if err := a.users.Put(ctx, user); err != nil {
		a.metrics.RecordUserOperation("change_password", OutcomeError)
		return oops.With("operation", "update user").With("username", username).Wrap(err)
	}
	a.metrics.RecordUserOperation("change_password", OutcomeSuccess)
	a.logger.InfoContext(ctx, "password changed", "username", username)

	// Revocation is best effort once the new hash is stored.
	if a.revokeOnPasswordChange {
		if _, err := a.RevokeUserTokens(ctx, username); err != nil {
			a.logger.WarnContext(ctx, "best-effort token cascade failed",
				"operation", "revoke user tokens",
				"username", username,
				"error", err)
		}
	}
	return nil
}

// DeleteUser removes an account and every token it owns. The last
// administrator cannot be deleted.
func (a *Authority) DeleteUser(ctx context.Context, username string) error {
	err := a.users.Delete(ctx, username, ProtectLastAdmin)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		a.metrics.RecordUserOperation("delete", OutcomeRefused)
		return oops.Code("AUTH_USER_NOT_FOUND").With("username", username).Wrap(ErrUserNotFound)
	case errors.Is(err, ErrLastAdminProtected):
		a.metrics.RecordUserOperation("delete", OutcomeRefused)
		return err
	default:
		a.metrics.RecordUserOperation("delete", OutcomeError)
		return oops.With("operation", "delete user").With("username", username).Wrap(err)
	}

	a.metrics.RecordUserOperation("delete", OutcomeSuccess)
	a.logger.InfoContext(ctx, "user deleted", "username", username)

	// Remaining tokens fail validation as orphaned, so the cascade is best effort.
	if _, err := a.RevokeUserTokens(ctx, username); err != nil {
		a.logger.WarnContext(ctx, "best-effort token cascade failed",
			"operation", "revoke user tokens",
			"username", username,
			"error", err)
	}
	return nil
}

// ListUsers returns every readable account without password hashes.
func (a *Authority) ListUsers(ctx context.Context) (map[string]*User, error) {
	all, err := a.users.List(ctx)
	if err != nil {
		return nil, oops.With("operation", "list users").Wrap(err)
	}
	out := make(map[string]*User, len(all))
	for name, u := range all {
		out[name] = u.Sanitized()
	}
	return out, nil
}

// Ping checks that the credential store is reachable.
func (a *Authority) Ping(ctx context.Context) error {
	return a.users.Ping(ctx)
}

// discardToken deletes a token found expired or orphaned during validation.
// Failures are logged and otherwise ignored.
func (a *Authority) discardToken(ctx context.Context, key, reason string) {
	deleted, err := a.tokens.Delete(ctx, key)
	if err != nil {
		a.logger.WarnContext(ctx, "best-effort token cleanup failed",
			"operation", "delete "+reason+" token",
			"error", err)
		return
	}
	if deleted {
		a.metrics.RecordTokensRevoked(reason, 1)
	}
}

func (a *Authority) hash(ctx context.Context, password string) (string, error) {
	if err := a.hashSem.Acquire(ctx, 1); err != nil {
		return "", oops.Code("AUTH_CANCELED").With("operation", "hash password").Wrap(err)
	}
	defer a.hashSem.Release(1)
	return a.hasher.Hash(password)
}

func (a *Authority) verify(ctx context.Context, password, encoded string) (bool, error) {
	if err := a.hashSem.Acquire(ctx, 1); err != nil {
		return false, oops.Code("AUTH_CANCELED").With("operation", "verify password").Wrap(err)
	}
	defer a.hashSem.Release(1)
	return a.hasher.Verify(password, encoded), nil
}
