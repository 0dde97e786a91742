package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/morezero/flow-functions/pkg/callable"
)

const keysLogPrefix = "db:keys"

// KeyPrefix marks keys issued by CreateKey.
const KeyPrefix = "fk_"

// ErrKeyNotFound is returned by Lookup for an unknown key.
var ErrKeyNotFound = errors.New("api key not found")

// Querier is the subset of *pgxpool.Pool used by KeyRepository.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// APIKey is a stored key. The key itself is never stored.
type APIKey struct {
	ID        string
	Principal string
	Scopes    []string
	Disabled  bool
	ExpiresAt *time.Time
	Created   time.Time
}

// KeyRepository stores API keys by their SHA-256 digest.
type KeyRepository struct {
	db  Querier
	now func() time.Time
}

// NewKeyRepository creates a KeyRepository on db (usually a *pgxpool.Pool).
func NewKeyRepository(db Querier) *KeyRepository {
	return &KeyRepository{db: db, now: time.Now}
}

// HashKey returns the stored digest of key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Lookup finds the key record for key.
func (r *KeyRepository) Lookup(ctx context.Context, key string) (*APIKey, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, principal, scopes, disabled, expires_at, created
		 FROM api_keys
		 WHERE key_hash = $1
		 LIMIT 1`, HashKey(key))

	var k APIKey
	if err := row.Scan(&k.ID, &k.Principal, &k.Scopes, &k.Disabled, &k.ExpiresAt, &k.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("%s - failed to look up key: %w", keysLogPrefix, err)
	}
	return &k, nil
}

// Authorize looks up key and checks that it is usable. Failures are callable
// errors suitable for a client response.
func (r *KeyRepository) Authorize(ctx context.Context, key string) (*APIKey, error) {
	k, err := r.Lookup(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, callable.PermissionDenied("Invalid API key")
		}
		slog.Error(fmt.Sprintf("%s - %v", keysLogPrefix, err))
		return nil, callable.NewError(callable.KindUnavailable, "API key store is unavailable")
	}
	if k.Disabled {
		return nil, callable.PermissionDenied("API key is disabled")
	}
	if k.ExpiresAt != nil && !r.now().Before(*k.ExpiresAt) {
		return nil, callable.PermissionDenied("API key has expired")
	}

	if _, err := r.db.Exec(ctx, `UPDATE api_keys SET last_used = $2 WHERE id = $1`, k.ID, r.now().UTC()); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to record key use for %s: %v", keysLogPrefix, k.Principal, err))
	}
	return k, nil
}

// Validate accepts usable keys. It has the shape of an API key validator.
func (r *KeyRepository) Validate(ctx context.Context, key string) error {
	_, err := r.Authorize(ctx, key)
	return err
}

// TokenContext accepts a bearer token that is a usable key and grants
// {auth: {principal, scopes}}.
func (r *KeyRepository) TokenContext(ctx context.Context, token string) (map[string]interface{}, error) {
	k, err := r.Authorize(ctx, token)
	if err != nil {
		return nil, err
	}
	scopes := k.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	return map[string]interface{}{
		"auth": map[string]interface{}{
			"principal": k.Principal,
			"scopes":    scopes,
		},
	}, nil
}

// CreateKey issues a new key for principal and returns it. Only its digest
// is stored, so the returned value cannot be recovered later.
func (r *KeyRepository) CreateKey(ctx context.Context, principal string, scopes []string, ttl time.Duration) (string, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return "", fmt.Errorf("%s - principal is required", keysLogPrefix)
	}
	if scopes == nil {
		scopes = []string{}
	}
	var expires *time.Time
	if ttl > 0 {
		t := r.now().Add(ttl).UTC()
		expires = &t
	}

	key := KeyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err := r.db.Exec(ctx,
		`INSERT INTO api_keys (id, key_hash, principal, scopes, expires_at, created)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), HashKey(key), principal, scopes, expires, r.now().UTC())
	if err != nil {
		return "", fmt.Errorf("%s - failed to create key for %s: %w", keysLogPrefix, principal, err)
	}

	slog.Info(fmt.Sprintf("%s - Created API key for %s", keysLogPrefix, principal))
	return key, nil
}

// DisableKey disables key. It reports ErrKeyNotFound for an unknown key.
func (r *KeyRepository) DisableKey(ctx context.Context, key string) error {
	tag, err := r.db.Exec(ctx, `UPDATE api_keys SET disabled = TRUE WHERE key_hash = $1`, HashKey(key))
	if err != nil {
		return fmt.Errorf("%s - failed to disable key: %w", keysLogPrefix, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}
