package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"html2image/internal/tokens"
)

// TokenRepository loads tokens.Entry values from Postgres.
type TokenRepository struct {
	DB  *DB
	DSN string
}

func NewTokenRepository(db *DB, dsn string) *TokenRepository {
	return &TokenRepository{DB: db, DSN: dsn}
}

// LoadTokens ensures the schema and reads every token with its limit and scope.
func (r *TokenRepository) LoadTokens(ctx context.Context) (map[string]tokens.Entry, error) {
	db, err := r.DB.Get(r.DSN)
	if err != nil {
		return nil, fmt.Errorf("open token db: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure tokens schema: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT token, rate_limit, scope FROM tokens;`)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	out := make(map[string]tokens.Entry)
	for rows.Next() {
		var (
			token string
			limit int
			raw   []byte
		)
		if err := rows.Scan(&token, &limit, &raw); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		var scope tokens.Scope
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &scope); err != nil {
				return nil, fmt.Errorf("decode scope of token: %w", err)
			}
		}
		out[token] = tokens.Entry{RateLimit: limit, Scope: scope}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read tokens: %w", err)
	}
	return out, nil
}
