package users

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeRow struct {
	login *string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(**string)) = r.login
	return nil
}

type fakeQuerier struct {
	rows  map[string]fakeRow
	query string
	args  []any
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.query = sql
	f.args = args
	row, ok := f.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return row
}

func ptr(s string) *string { return &s }

func TestPostgresLogin(t *testing.T) {
	t.Parallel()

	db := &fakeQuerier{rows: map[string]fakeRow{
		"42": {login: ptr(" octocat ")},
		"43": {login: nil},
		"44": {err: errors.New("connection reset")},
	}}
	dir := newPostgres(db, "")

	login, err := dir.Login(context.Background(), "42")
	if err != nil || login != "octocat" {
		t.Fatalf("unexpected result %q, %v", login, err)
	}
	if db.query != defaultQuery || db.args[0] != "42" {
		t.Fatalf("unexpected query %q with %v", db.query, db.args)
	}

	tests := []struct {
		name     string
		id       string
		notFound bool
	}{
		{name: "missing row", id: "7", notFound: true},
		{name: "null login", id: "43", notFound: true},
		{name: "blank id", id: "  ", notFound: true},
		{name: "database error", id: "44"},
	}
	for _, tt := range tests {
		_, err := dir.Login(context.Background(), tt.id)
		if err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
		if errors.Is(err, ErrUserNotFound) != tt.notFound {
			t.Fatalf("%s: unexpected error %v", tt.name, err)
		}
	}
}

func TestPostgresCustomQuery(t *testing.T) {
	t.Parallel()

	db := &fakeQuerier{rows: map[string]fakeRow{"1": {login: ptr("a")}}}
	query := "SELECT github_login FROM accounts WHERE uuid = $1"
	if _, err := newPostgres(db, query).Login(context.Background(), "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db.query != query {
		t.Fatalf("expected custom query, got %q", db.query)
	}
}

func TestPassthrough(t *testing.T) {
	t.Parallel()

	login, err := Passthrough{}.Login(context.Background(), " octocat ")
	if err != nil || login != "octocat" {
		t.Fatalf("unexpected result %q, %v", login, err)
	}
	if _, err := (Passthrough{}).Login(context.Background(), ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
