package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
)

const (
	fieldCreatedCount = "created_count"
	fieldTotalPaid    = "total_paid"
	fieldFirstSeen    = "first_seen"
	fieldLastCreation = "last_creation"

	fieldTotalCreations = "total_creations"
	fieldTotalEarned    = "total_earned"
)

// RedisStats keeps one hash per user, a set of known users and two aggregate
// hashes. Counters only ever move through HINCRBY.
type RedisStats struct {
	client *redis.Client
	prefix string
}

func NewRedisStats(client *redis.Client, prefix string) *RedisStats {
	if prefix == "" {
		prefix = "storieswall"
	}
	return &RedisStats{client: client, prefix: prefix}
}

func (s *RedisStats) usersKey() string {
	return s.prefix + ":users"
}

func (s *RedisStats) userKey(userID int64) string {
	return fmt.Sprintf("%s:user:%d", s.prefix, userID)
}

func (s *RedisStats) statsKey() string {
	return s.prefix + ":stats"
}

func (s *RedisStats) byPartsKey() string {
	return s.prefix + ":stats:by_parts"
}

// register queues the commands that make userID known.
func (s *RedisStats) register(ctx context.Context, p redis.Pipeliner, userID int64, now time.Time) *redis.IntCmd {
	added := p.SAdd(ctx, s.usersKey(), userID)
	p.HSetNX(ctx, s.userKey(userID), fieldFirstSeen, now.UTC().Format(time.RFC3339Nano))
	return added
}

func (s *RedisStats) EnsureUser(ctx context.Context, userID int64, now time.Time) (models.UserRecord, bool, error) {
	var added *redis.IntCmd
	if _, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		added = s.register(ctx, p, userID, now)
		return nil
	}); err != nil {
		return models.UserRecord{}, false, fmt.Errorf("register user: %w", err)
	}

	values, err := s.client.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return models.UserRecord{}, false, fmt.Errorf("load user: %w", err)
	}
	rec, err := parseUser(userID, values)
	if err != nil {
		return models.UserRecord{}, false, err
	}
	return rec, added.Val() == 1, nil
}

func (s *RedisStats) RecordCreation(ctx context.Context, userID int64, parts int, at time.Time) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		s.register(ctx, p, userID, at)
		p.HIncrBy(ctx, s.userKey(userID), fieldCreatedCount, 1)
		p.HSet(ctx, s.userKey(userID), fieldLastCreation, at.UTC().Format(time.RFC3339Nano))
		p.HIncrBy(ctx, s.statsKey(), fieldTotalCreations, 1)
		p.HIncrBy(ctx, s.byPartsKey(), strconv.Itoa(parts), 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record creation: %w", err)
	}
	return nil
}

func (s *RedisStats) RecordPayment(ctx context.Context, userID int64, amount int, at time.Time) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		s.register(ctx, p, userID, at)
		p.HIncrBy(ctx, s.userKey(userID), fieldTotalPaid, int64(amount))
		p.HIncrBy(ctx, s.statsKey(), fieldTotalPaid, 1)
		p.HIncrBy(ctx, s.statsKey(), fieldTotalEarned, int64(amount))
		return nil
	})
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	return nil
}

func (s *RedisStats) Aggregate(ctx context.Context) (models.AggregateStats, error) {
	var (
		users  *redis.IntCmd
		totals *redis.MapStringStringCmd
		parts  *redis.MapStringStringCmd
	)
	if _, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		users = p.SCard(ctx, s.usersKey())
		totals = p.HGetAll(ctx, s.statsKey())
		parts = p.HGetAll(ctx, s.byPartsKey())
		return nil
	}); err != nil {
		return models.AggregateStats{}, fmt.Errorf("load aggregate: %w", err)
	}

	agg := models.AggregateStats{
		TotalUsers: int(users.Val()),
		ByParts:    make(map[int]int),
	}
	var err error
	t := totals.Val()
	if agg.TotalCreations, err = intField(t, fieldTotalCreations); err != nil {
		return models.AggregateStats{}, err
	}
	if agg.TotalPaid, err = intField(t, fieldTotalPaid); err != nil {
		return models.AggregateStats{}, err
	}
	if agg.TotalEarned, err = intField(t, fieldTotalEarned); err != nil {
		return models.AggregateStats{}, err
	}
	for k, v := range parts.Val() {
		n, err := strconv.Atoi(k)
		if err != nil {
			return models.AggregateStats{}, fmt.Errorf("by_parts key %q: %w", k, err)
		}
		count, err := strconv.Atoi(v)
		if err != nil {
			return models.AggregateStats{}, fmt.Errorf("by_parts %d: %w", n, err)
		}
		agg.ByParts[n] = count
	}
	return agg, nil
}

func (s *RedisStats) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func parseUser(userID int64, values map[string]string) (models.UserRecord, error) {
	rec := models.UserRecord{UserID: userID}
	var err error
	if rec.CreatedCount, err = intField(values, fieldCreatedCount); err != nil {
		return rec, err
	}
	if rec.TotalPaid, err = intField(values, fieldTotalPaid); err != nil {
		return rec, err
	}
	if v := values[fieldFirstSeen]; v != "" {
		if rec.FirstSeen, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return rec, fmt.Errorf("%s: %w", fieldFirstSeen, err)
		}
	}
	if v := values[fieldLastCreation]; v != "" {
		last, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return rec, fmt.Errorf("%s: %w", fieldLastCreation, err)
		}
		rec.LastCreation = &last
	}
	return rec, nil
}

func intField(values map[string]string, field string) (int, error) {
	v, ok := values[field]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return n, nil
}
