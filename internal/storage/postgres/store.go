package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hongminglow/userhub/internal/models"
	"github.com/hongminglow/userhub/internal/storage"
)

// Ensure Store satisfies the storage.UserStore interface at compile time.
var _ storage.UserStore = (*Store)(nil)

const (
	codeUniqueViolation = "23505"
	codeQueryCanceled   = "57014"
)

const userColumns = `id, email, password_hash, name, created_at, updated_at`

// Options bounds the pool. Zero values keep pgxpool's defaults.
type Options struct {
	MaxConns         int32
	AcquireTimeout   time.Duration
	StatementTimeout time.Duration
}

// querier is the part of *pgxpool.Conn the store runs statements through.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// acquirer leases a connection; release must be called exactly once.
type acquirer interface {
	acquire(ctx context.Context) (q querier, release func(), err error)
}

type poolAcquirer struct {
	pool *pgxpool.Pool
}

func (a poolAcquirer) acquire(ctx context.Context) (querier, func(), error) {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return conn, conn.Release, nil
}

// Store provides Postgres-backed persistence for users.
type Store struct {
	pool           *pgxpool.Pool
	conns          acquirer
	acquireTimeout time.Duration
}

// NewUserStore connects a bounded pool and runs migrations.
func NewUserStore(ctx context.Context, databaseURL string, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.StatementTimeout > 0 {
		if cfg.ConnConfig.RuntimeParams == nil {
			cfg.ConnConfig.RuntimeParams = map[string]string{}
		}
		cfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(opts.StatementTimeout.Milliseconds(), 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool, conns: poolAcquirer{pool: pool}, acquireTimeout: opts.AcquireTimeout}, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks that a connection can be leased and used.
func (s *Store) Ping(ctx context.Context) error {
	return s.withConn(ctx, "ping", func(q querier) error {
		_, err := q.Exec(ctx, `SELECT 1`)
		return err
	})
}

// Insert adds a users row with a freshly generated id.
func (s *Store) Insert(ctx context.Context, rec models.NewUserRecord) (models.User, error) {
	const query = `
		INSERT INTO users (id, email, password_hash, name)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns

	var user models.User
	err := s.withConn(ctx, "insert user", func(q querier) error {
		var err error
		user, err = scanUser(q.QueryRow(ctx, query, uuid.New(), rec.Email, rec.PasswordHash, rec.Name))
		return err
	})
	return user, err
}

// FindByID fetches a user by id.
func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user models.User
	err := s.withConn(ctx, "find user by id", func(q querier) error {
		var err error
		user, err = scanUser(q.QueryRow(ctx, query, id))
		return err
	})
	return user, err
}

// FindByEmail fetches a user by email address.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	var user models.User
	err := s.withConn(ctx, "find user by email", func(q querier) error {
		var err error
		user, err = scanUser(q.QueryRow(ctx, query, email))
		return err
	})
	return user, err
}

// List returns every user, oldest first.
func (s *Store) List(ctx context.Context) ([]models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id`

	users := []models.User{}
	err := s.withConn(ctx, "list users", func(q querier) error {
		rows, err := q.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			user, err := scanUser(rows)
			if err != nil {
				return err
			}
			users = append(users, user)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateProfile overwrites email and name.
func (s *Store) UpdateProfile(ctx context.Context, id uuid.UUID, email, name string) (models.User, error) {
	const query = `
		UPDATE users
		SET email = $2, name = $3,
			updated_at = GREATEST(clock_timestamp(), updated_at + INTERVAL '1 microsecond')
		WHERE id = $1
		RETURNING ` + userColumns

	var user models.User
	err := s.withConn(ctx, "update user", func(q querier) error {
		var err error
		user, err = scanUser(q.QueryRow(ctx, query, id, email, name))
		return err
	})
	return user, err
}

// UpdatePasswordHash overwrites the stored hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) (models.User, error) {
	const query = `
		UPDATE users
		SET password_hash = $2,
			updated_at = GREATEST(clock_timestamp(), updated_at + INTERVAL '1 microsecond')
		WHERE id = $1
		RETURNING ` + userColumns

	var user models.User
	err := s.withConn(ctx, "update password", func(q querier) error {
		var err error
		user, err = scanUser(q.QueryRow(ctx, query, id, hash))
		return err
	})
	return user, err
}

// Delete removes the row and reports how many rows went away.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	const query = `DELETE FROM users WHERE id = $1`

	var deleted int64
	err := s.withConn(ctx, "delete user", func(q querier) error {
		tag, err := q.Exec(ctx, query, id)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	return deleted, err
}

// withConn leases a connection for fn and releases it on every return path.
func (s *Store) withConn(ctx context.Context, op string, fn func(q querier) error) error {
	acquireCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.acquireTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, s.acquireTimeout)
	}
	q, release, err := s.conns.acquire(acquireCtx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return storage.NewError(storage.KindResourceExhausted, op, fmt.Errorf("acquire connection: %w", err))
		}
		return fmt.Errorf("%s: acquire connection: %w", op, err)
	}
	defer release()

	return mapError(op, fn(q))
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.NewError(storage.KindNotFound, op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return storage.NewError(storage.KindConflict, op, err)
		case codeQueryCanceled:
			return storage.NewError(storage.KindResourceExhausted, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return models.User{}, err
	}
	return user, nil
}
