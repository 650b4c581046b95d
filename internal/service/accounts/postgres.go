package accounts

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/zhouzirui/voice-interview/client/internal/model/account"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const uniqueViolation = "23505"

// PostgresRepository stores accounts in the users table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and applies pending migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresRepository{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	dir, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, dir)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		log.Printf("[accounts] applied migration %s in %s", r.Source.Path, r.Duration)
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

const accountColumns = `id, emailid, name, password, COALESCE(phone_number, ''), createdat`

func scanAccount(row pgx.Row) (account.Account, error) {
	var acct account.Account
	err := row.Scan(&acct.ID, &acct.Email, &acct.Name, &acct.Password, &acct.Phone, &acct.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.Account{}, ErrAccountNotFound
	}
	return acct, err
}

func (r *PostgresRepository) Save(ctx context.Context, acct account.Account) (account.Account, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, emailid, name, password, createdat)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (emailid) DO UPDATE
		SET name = EXCLUDED.name, password = EXCLUDED.password, updatedat = now()
		RETURNING `+accountColumns,
		acct.ID, acct.Email, acct.Name, acct.Password, acct.CreatedAt)
	saved, err := scanAccount(row)
	if err != nil {
		return account.Account{}, fmt.Errorf("save account %s: %w", acct.Email, err)
	}
	return saved, nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (account.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE emailid = $1`, email)
	return scanAccount(row)
}

func (r *PostgresRepository) SetPhone(ctx context.Context, email, phone string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET phone_number = $2, updatedat = now() WHERE emailid = $1`, email, phone)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrPhoneTaken
		}
		return fmt.Errorf("save phone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
