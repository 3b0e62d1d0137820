package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.Token) error {
	query := `
		INSERT INTO tokens (token, type, user_id, expires_at, blacklisted)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		token.Token, token.Type, token.UserID, token.Expires, token.Blacklisted).
		Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, token string) (*models.Token, error) {
	query := `
		SELECT id, token, type, user_id, expires_at, blacklisted, created_at
		FROM tokens
		WHERE token = $1
	`
	t := &models.Token{}
	err := r.db.QueryRowContext(ctx, query, token).
		Scan(&t.ID, &t.Token, &t.Type, &t.UserID, &t.Expires, &t.Blacklisted, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Consume(ctx context.Context, id string) error {
	query := `
		DELETE FROM tokens
		WHERE id = $1 AND blacklisted = FALSE
	`
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) Blacklist(ctx context.Context, id string) error {
	query := `
		UPDATE tokens SET blacklisted = TRUE
		WHERE id = $1 AND blacklisted = FALSE
	`
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) BlacklistByUser(ctx context.Context, userID string, tokenType models.TokenType) (int64, error) {
	query := `
		UPDATE tokens SET blacklisted = TRUE
		WHERE user_id = $1 AND type = $2 AND blacklisted = FALSE
	`
	return r.execMany(ctx, query, userID, tokenType)
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string, tokenType models.TokenType) (int64, error) {
	query := `
		DELETE FROM tokens
		WHERE user_id = $1 AND type = $2
	`
	return r.execMany(ctx, query, userID, tokenType)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM tokens
		WHERE expires_at < $1
	`
	return r.execMany(ctx, query, before)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	n, err := r.execMany(ctx, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) execMany(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
