package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/morezero/flow-functions/pkg/callable"
)

const keysTestPrefix = "db:keys_test"

type fakeRow struct {
	key *APIKey
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.key.ID
	*dest[1].(*string) = r.key.Principal
	*dest[2].(*[]string) = r.key.Scopes
	*dest[3].(*bool) = r.key.Disabled
	*dest[4].(**time.Time) = r.key.ExpiresAt
	*dest[5].(*time.Time) = r.key.Created
	return nil
}

// fakeQuerier serves api_keys rows from memory, keyed by digest.
type fakeQuerier struct {
	rows    map[string]*APIKey
	err     error
	execs   []string
	args    [][]any
	execErr error
}

func (q *fakeQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	if q.err != nil {
		return fakeRow{err: q.err}
	}
	k, ok := q.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{key: k}
}

func (q *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.execs = append(q.execs, sql)
	q.args = append(q.args, args)
	if q.execErr != nil {
		return pgconn.CommandTag{}, q.execErr
	}
	if strings.Contains(sql, "disabled = TRUE") {
		if _, ok := q.rows[args[0].(string)]; !ok {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func newTestRepo(rows map[string]*APIKey) (*KeyRepository, *fakeQuerier) {
	q := &fakeQuerier{rows: rows}
	repo := NewKeyRepository(q)
	repo.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return repo, q
}

func TestHashKey(t *testing.T) {
	h := HashKey("secret")
	if len(h) != 64 {
		t.Errorf("%s - expected 64 hex chars, got %d", keysTestPrefix, len(h))
	}
	if h != HashKey("secret") || h == HashKey("Secret") {
		t.Errorf("%s - digest must be deterministic and case-sensitive", keysTestPrefix)
	}
}

func TestAuthorize(t *testing.T) {
	past := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	repo, q := newTestRepo(map[string]*APIKey{
		HashKey("good"):    {ID: "1", Principal: "alice", Scopes: []string{"jokes"}},
		HashKey("off"):     {ID: "2", Principal: "bob", Disabled: true},
		HashKey("old"):     {ID: "3", Principal: "carol", ExpiresAt: &past},
		HashKey("not-old"): {ID: "4", Principal: "dave", ExpiresAt: &future},
	})
	ctx := context.Background()

	tests := []struct {
		key  string
		kind callable.Kind
		msg  string
	}{
		{"good", "", ""},
		{"not-old", "", ""},
		{"missing", callable.KindPermissionDenied, "Invalid API key"},
		{"off", callable.KindPermissionDenied, "API key is disabled"},
		{"old", callable.KindPermissionDenied, "API key has expired"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := repo.Validate(ctx, tt.key)
			if tt.kind == "" {
				if err != nil {
					t.Errorf("%s - unexpected error: %v", keysTestPrefix, err)
				}
				return
			}
			ce, ok := callable.AsError(err)
			if !ok || ce.Kind != tt.kind || ce.Message != tt.msg {
				t.Errorf("%s - got %v, want %s %q", keysTestPrefix, err, tt.kind, tt.msg)
			}
		})
	}

	if len(q.execs) != 2 || !strings.Contains(q.execs[0], "last_used") {
		t.Errorf("%s - expected last_used updates for accepted keys, got %v", keysTestPrefix, q.execs)
	}
}

func TestAuthorize_StoreFailure(t *testing.T) {
	repo, q := newTestRepo(nil)
	q.err = errors.New("connection refused")

	err := repo.Validate(context.Background(), "any")
	if ce, ok := callable.AsError(err); !ok || ce.Kind != callable.KindUnavailable {
		t.Errorf("%s - expected UNAVAILABLE, got %v", keysTestPrefix, err)
	}

	if _, err := repo.Lookup(context.Background(), "any"); err == nil || errors.Is(err, ErrKeyNotFound) {
		t.Errorf("%s - Lookup should surface the store error, got %v", keysTestPrefix, err)
	}
}

func TestAuthorize_UsageUpdateFailureIsIgnored(t *testing.T) {
	repo, q := newTestRepo(map[string]*APIKey{HashKey("good"): {ID: "1", Principal: "alice"}})
	q.execErr = errors.New("read-only replica")
	if err := repo.Validate(context.Background(), "good"); err != nil {
		t.Errorf("%s - unexpected error: %v", keysTestPrefix, err)
	}
}

func TestTokenContext(t *testing.T) {
	repo, _ := newTestRepo(map[string]*APIKey{HashKey("tok"): {ID: "1", Principal: "alice"}})

	fctx, err := repo.TokenContext(context.Background(), "tok")
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", keysTestPrefix, err)
	}
	a := fctx["auth"].(map[string]interface{})
	if a["principal"] != "alice" {
		t.Errorf("%s - principal = %v", keysTestPrefix, a["principal"])
	}
	if s, ok := a["scopes"].([]string); !ok || s == nil || len(s) != 0 {
		t.Errorf("%s - scopes = %#v", keysTestPrefix, a["scopes"])
	}

	if _, err := repo.TokenContext(context.Background(), "nope"); err == nil {
		t.Errorf("%s - expected error for unknown token", keysTestPrefix)
	}
}

func TestCreateKey(t *testing.T) {
	repo, q := newTestRepo(nil)

	key, err := repo.CreateKey(context.Background(), " alice ", []string{"jokes"}, time.Hour)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", keysTestPrefix, err)
	}
	if !strings.HasPrefix(key, KeyPrefix) || len(key) != len(KeyPrefix)+32 {
		t.Errorf("%s - key = %q", keysTestPrefix, key)
	}
	args := q.args[0]
	if args[1] != HashKey(key) {
		t.Errorf("%s - stored digest does not match the issued key", keysTestPrefix)
	}
	if args[2] != "alice" {
		t.Errorf("%s - principal = %v", keysTestPrefix, args[2])
	}
	exp, ok := args[4].(*time.Time)
	if !ok || exp == nil || !exp.Equal(time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)) {
		t.Errorf("%s - expires = %v", keysTestPrefix, args[4])
	}

	if _, err := repo.CreateKey(context.Background(), "  ", nil, 0); err == nil {
		t.Errorf("%s - expected error for empty principal", keysTestPrefix)
	}
}

func TestDisableKey(t *testing.T) {
	repo, _ := newTestRepo(map[string]*APIKey{HashKey("good"): {ID: "1", Principal: "alice"}})
	if err := repo.DisableKey(context.Background(), "good"); err != nil {
		t.Errorf("%s - unexpected error: %v", keysTestPrefix, err)
	}
	if err := repo.DisableKey(context.Background(), "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("%s - expected ErrKeyNotFound, got %v", keysTestPrefix, err)
	}
}
