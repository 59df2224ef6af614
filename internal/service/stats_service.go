package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/repository"
)

// StatsService is the bot's view of usage statistics: a store plus the set
// of privileged users who are never charged.
type StatsService struct {
	store  repository.StatsStore
	admins map[int64]struct{}
	logger zerolog.Logger
	now    func() time.Time
}

func NewStatsService(store repository.StatsStore, admins []int64, logger zerolog.Logger) *StatsService {
	set := make(map[int64]struct{}, len(admins))
	for _, id := range admins {
		set[id] = struct{}{}
	}
	return &StatsService{
		store:  store,
		admins: set,
		logger: logger.With().Str("component", "stats").Logger(),
		now:    time.Now,
	}
}

// GetUserRecord returns the user's counters, registering unknown users.
func (s *StatsService) GetUserRecord(ctx context.Context, userID int64) (models.UserRecord, error) {
	rec, created, err := s.store.EnsureUser(ctx, userID, s.now())
	if err != nil {
		return models.UserRecord{}, fmt.Errorf("get user %d: %w", userID, err)
	}
	if created {
		s.logger.Info().Int64("user_id", userID).Msg("new user")
	}
	return rec, nil
}

func (s *StatsService) IncrementCreationCount(ctx context.Context, userID int64, parts int) error {
	if err := s.store.RecordCreation(ctx, userID, parts, s.now()); err != nil {
		return fmt.Errorf("increment creations for %d: %w", userID, err)
	}
	s.logger.Info().Int64("user_id", userID).Int("parts", parts).Msg("creation recorded")
	return nil
}

func (s *StatsService) IncrementPaidAmount(ctx context.Context, userID int64, amount int) error {
	if err := s.store.RecordPayment(ctx, userID, amount, s.now()); err != nil {
		return fmt.Errorf("increment paid for %d: %w", userID, err)
	}
	s.logger.Info().Int64("user_id", userID).Int("amount", amount).Msg("payment recorded")
	return nil
}

func (s *StatsService) IsPrivilegedUser(userID int64) bool {
	_, ok := s.admins[userID]
	return ok
}

func (s *StatsService) Aggregate(ctx context.Context) (models.AggregateStats, error) {
	return s.store.Aggregate(ctx)
}

func (s *StatsService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
