package repository

import (
	"context"
	"time"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
)

// StatsStore persists per-user counters and the bot-wide aggregate. Every
// mutation is a single increment so concurrent workers never lose updates.
type StatsStore interface {
	// EnsureUser returns the user's record, registering it first when the
	// user has never been seen. The bool reports whether it was created.
	EnsureUser(ctx context.Context, userID int64, now time.Time) (models.UserRecord, bool, error)
	RecordCreation(ctx context.Context, userID int64, parts int, at time.Time) error
	RecordPayment(ctx context.Context, userID int64, amount int, at time.Time) error
	Aggregate(ctx context.Context) (models.AggregateStats, error)
	Ping(ctx context.Context) error
}
