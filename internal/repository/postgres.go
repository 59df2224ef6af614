package repository

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
)

//go:embed schema.sql
var schema string

// DB is the subset of *pgxpool.Pool the stats store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStats struct {
	db DB
}

func NewPostgresStats(db DB) *PostgresStats {
	return &PostgresStats{db: db}
}

// Migrate creates the tables if they are missing.
func (s *PostgresStats) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate stats schema: %w", err)
	}
	return nil
}

const insertUserQuery = `
	INSERT INTO storieswall_users (user_id, first_seen)
	VALUES ($1, $2)
	ON CONFLICT (user_id) DO NOTHING
`

func insertUser(ctx context.Context, db execer, userID int64, now time.Time) (bool, error) {
	tag, err := db.Exec(ctx, insertUserQuery, userID, now)
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStats) EnsureUser(ctx context.Context, userID int64, now time.Time) (models.UserRecord, bool, error) {
	created, err := insertUser(ctx, s.db, userID, now)
	if err != nil {
		return models.UserRecord{}, false, err
	}

	const query = `
		SELECT created_count, total_paid, first_seen, last_creation
		FROM storieswall_users WHERE user_id = $1
	`
	rec := models.UserRecord{UserID: userID}
	if err := s.db.QueryRow(ctx, query, userID).Scan(
		&rec.CreatedCount,
		&rec.TotalPaid,
		&rec.FirstSeen,
		&rec.LastCreation,
	); err != nil {
		return models.UserRecord{}, false, fmt.Errorf("load user: %w", err)
	}
	return rec, created, nil
}

func (s *PostgresStats) RecordCreation(ctx context.Context, userID int64, parts int, at time.Time) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := insertUser(ctx, tx, userID, at); err != nil {
			return err
		}
		const bump = `
			UPDATE storieswall_users
			SET created_count = created_count + 1, last_creation = $2
			WHERE user_id = $1
		`
		if _, err := tx.Exec(ctx, bump, userID, at); err != nil {
			return fmt.Errorf("bump creations: %w", err)
		}
		const insert = `INSERT INTO storieswall_creations (user_id, parts, created_at) VALUES ($1, $2, $3)`
		if _, err := tx.Exec(ctx, insert, userID, parts, at); err != nil {
			return fmt.Errorf("insert creation: %w", err)
		}
		return nil
	})
}

func (s *PostgresStats) RecordPayment(ctx context.Context, userID int64, amount int, at time.Time) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := insertUser(ctx, tx, userID, at); err != nil {
			return err
		}
		const bump = `UPDATE storieswall_users SET total_paid = total_paid + $2 WHERE user_id = $1`
		if _, err := tx.Exec(ctx, bump, userID, amount); err != nil {
			return fmt.Errorf("bump paid: %w", err)
		}
		const insert = `INSERT INTO storieswall_payments (user_id, amount, paid_at) VALUES ($1, $2, $3)`
		if _, err := tx.Exec(ctx, insert, userID, amount, at); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return nil
	})
}

func (s *PostgresStats) Aggregate(ctx context.Context) (models.AggregateStats, error) {
	const totals = `
		SELECT
			(SELECT COUNT(*) FROM storieswall_users),
			(SELECT COUNT(*) FROM storieswall_creations),
			(SELECT COUNT(*) FROM storieswall_payments),
			(SELECT COALESCE(SUM(amount), 0) FROM storieswall_payments)
	`
	agg := models.AggregateStats{ByParts: make(map[int]int)}
	if err := s.db.QueryRow(ctx, totals).Scan(
		&agg.TotalUsers,
		&agg.TotalCreations,
		&agg.TotalPaid,
		&agg.TotalEarned,
	); err != nil {
		return models.AggregateStats{}, fmt.Errorf("load totals: %w", err)
	}

	const byParts = `SELECT parts, COUNT(*) FROM storieswall_creations GROUP BY parts`
	rows, err := s.db.Query(ctx, byParts)
	if err != nil {
		return models.AggregateStats{}, fmt.Errorf("load by parts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var parts, count int
		if err := rows.Scan(&parts, &count); err != nil {
			return models.AggregateStats{}, fmt.Errorf("scan by parts: %w", err)
		}
		agg.ByParts[parts] = count
	}
	if err := rows.Err(); err != nil {
		return models.AggregateStats{}, fmt.Errorf("iterate by parts: %w", err)
	}
	return agg, nil
}

func (s *PostgresStats) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStats) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
