package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresPortfolioRepo はPostgreSQLを使用したウォッチリストリポジトリ。
type PostgresPortfolioRepo struct {
	db *sql.DB
}

// NewPostgresPortfolioRepo はPostgresPortfolioRepoを生成する。
func NewPostgresPortfolioRepo(db *sql.DB) *PostgresPortfolioRepo {
	return &PostgresPortfolioRepo{db: db}
}

// Put はシンボルを追加する。(email, symbol) の一意制約に衝突した場合は何もしない。
func (r *PostgresPortfolioRepo) Put(ctx context.Context, email, symbol string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO portfolio_entries (id, email, symbol, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email, symbol) DO NOTHING`,
		uuid.NewString(), email, symbol, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert portfolio entry: %w", err)
	}
	return nil
}

// ListSymbols は指定ユーザーの全シンボルを昇順で返す。
func (r *PostgresPortfolioRepo) ListSymbols(ctx context.Context, email string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT symbol FROM portfolio_entries WHERE email = $1 ORDER BY symbol`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolio symbols: %w", err)
	}
	defer rows.Close()

	symbols := []string{}
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate portfolio symbols: %w", err)
	}
	return symbols, nil
}
