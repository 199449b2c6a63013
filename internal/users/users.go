// Package users resolves the authenticated user to a code-hosting login.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultQuery = "SELECT login FROM users WHERE id = $1"

// ErrUserNotFound is returned when the id has no login.
var ErrUserNotFound = errors.New("user not found")

// Directory maps a user id to a login.
type Directory interface {
	Login(ctx context.Context, userID string) (string, error)
}

// Passthrough treats the id as the login. Used by the CLI.
type Passthrough struct{}

func (Passthrough) Login(_ context.Context, userID string) (string, error) {
	login := strings.TrimSpace(userID)
	if login == "" {
		return "", ErrUserNotFound
	}
	return login, nil
}

type Config struct {
	DSN      string `mapstructure:"dsn"`
	Query    string `mapstructure:"query"`
	MaxConns int32  `mapstructure:"max-conns"`
	MinConns int32  `mapstructure:"min-conns"`
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres looks logins up in a users table.
type Postgres struct {
	db    querier
	query string
	pool  *pgxpool.Pool
}

// NewPostgres connects a pool and checks it with a ping.
func NewPostgres(ctx context.Context, cfg Config) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolCfg.MaxConns = 4
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	p := newPostgres(pool, cfg.Query)
	p.pool = pool
	return p, nil
}

func newPostgres(db querier, query string) *Postgres {
	if strings.TrimSpace(query) == "" {
		query = defaultQuery
	}
	return &Postgres{db: db, query: query}
}

func (p *Postgres) Login(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrUserNotFound
	}

	var login *string
	if err := p.db.QueryRow(ctx, p.query, userID).Scan(&login); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("look up login of user %s: %w", userID, err)
	}

	if login == nil || strings.TrimSpace(*login) == "" {
		return "", ErrUserNotFound
	}
	return strings.TrimSpace(*login), nil
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}
