package pending

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
)

var ErrNotFound = errors.New("pending: no creation in progress")

// Cleaner deletes a temp directory tree.
type Cleaner interface {
	Remove(dir string) error
}

// Store keeps at most one in-progress creation per user. While a record is
// here the store owns its temp directory.
type Store struct {
	mu      sync.Mutex
	records map[int64]models.PendingCreation
	cleaner Cleaner
	logger  zerolog.Logger
	now     func() time.Time
}

func NewStore(cleaner Cleaner, logger zerolog.Logger) *Store {
	return &Store{
		records: make(map[int64]models.PendingCreation),
		cleaner: cleaner,
		logger:  logger.With().Str("component", "pending").Logger(),
		now:     time.Now,
	}
}

// Put stores record for its user, replacing any previous one. Callers are
// expected to have removed the previous record first.
func (s *Store) Put(record models.PendingCreation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if prev, ok := s.records[record.UserID]; ok && prev.TempDirPath != record.TempDirPath {
		s.logger.Warn().Int64("user_id", record.UserID).Str("dir", prev.TempDirPath).Msg("overwriting pending creation with a different temp dir")
	}
	s.records[record.UserID] = record
	s.logger.Info().
		Int64("user_id", record.UserID).
		Str("dir", record.TempDirPath).
		Int("parts", record.Parts).
		Str("fit", string(record.FitMode)).
		Msg("pending creation stored")
}

func (s *Store) Get(userID int64) (models.PendingCreation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[userID]
	return record, ok
}

func (s *Store) Has(userID int64) bool {
	_, ok := s.Get(userID)
	return ok
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Update applies fn to the user's record under the store lock.
func (s *Store) Update(userID int64, fn func(*models.PendingCreation) error) (models.PendingCreation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[userID]
	if !ok {
		return models.PendingCreation{}, ErrNotFound
	}
	if err := fn(&record); err != nil {
		return models.PendingCreation{}, err
	}
	record.UserID = userID
	record.UpdatedAt = s.now()
	s.records[userID] = record
	return record, nil
}

// Remove drops the user's record. With cleanupTempDir the temp directory is
// deleted synchronously; a failure there is logged and otherwise ignored.
func (s *Store) Remove(userID int64, cleanupTempDir bool) bool {
	s.mu.Lock()
	record, ok := s.records[userID]
	delete(s.records, userID)
	s.mu.Unlock()

	if !ok {
		return false
	}
	if cleanupTempDir && record.TempDirPath != "" {
		if err := s.cleaner.Remove(record.TempDirPath); err != nil {
			s.logger.Error().Err(err).Int64("user_id", userID).Str("dir", record.TempDirPath).Msg("temp dir cleanup failed")
		}
	}
	s.logger.Info().Int64("user_id", userID).Bool("cleanup", cleanupTempDir).Msg("pending creation removed")
	return true
}

// Take removes the user's record without touching its temp directory and
// returns it. Ownership of the directory passes to the caller.
func (s *Store) Take(userID int64) (models.PendingCreation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[userID]
	if !ok {
		return models.PendingCreation{}, ErrNotFound
	}
	delete(s.records, userID)
	s.logger.Info().Int64("user_id", userID).Str("dir", record.TempDirPath).Msg("pending creation handed off")
	return record, nil
}

// Expired lists users whose record has not changed since before.
func (s *Store) Expired(before time.Time) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id, record := range s.records {
		if record.UpdatedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	return ids
}
