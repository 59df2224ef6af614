package repository

import (
	"context"
	"sync"
	"time"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
)

type MemoryStats struct {
	mu    sync.Mutex
	users map[int64]*models.UserRecord
	agg   models.AggregateStats
}

func NewMemoryStats() *MemoryStats {
	return &MemoryStats{
		users: make(map[int64]*models.UserRecord),
		agg:   models.AggregateStats{ByParts: make(map[int]int)},
	}
}

func (s *MemoryStats) user(userID int64, now time.Time) (*models.UserRecord, bool) {
	if rec, ok := s.users[userID]; ok {
		return rec, false
	}
	rec := &models.UserRecord{UserID: userID, FirstSeen: now}
	s.users[userID] = rec
	s.agg.TotalUsers++
	return rec, true
}

func (s *MemoryStats) EnsureUser(_ context.Context, userID int64, now time.Time) (models.UserRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, created := s.user(userID, now)
	out := *rec
	if rec.LastCreation != nil {
		last := *rec.LastCreation
		out.LastCreation = &last
	}
	return out, created, nil
}

func (s *MemoryStats) RecordCreation(_ context.Context, userID int64, parts int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, _ := s.user(userID, at)
	rec.CreatedCount++
	rec.LastCreation = &at
	s.agg.TotalCreations++
	s.agg.ByParts[parts]++
	return nil
}

func (s *MemoryStats) RecordPayment(_ context.Context, userID int64, amount int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, _ := s.user(userID, at)
	rec.TotalPaid += amount
	s.agg.TotalPaid++
	s.agg.TotalEarned += amount
	return nil
}

func (s *MemoryStats) Aggregate(context.Context) (models.AggregateStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.agg
	out.ByParts = make(map[int]int, len(s.agg.ByParts))
	for k, v := range s.agg.ByParts {
		out.ByParts[k] = v
	}
	return out, nil
}

func (s *MemoryStats) Ping(context.Context) error {
	return nil
}
