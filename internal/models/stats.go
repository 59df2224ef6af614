package models

import "time"

type UserRecord struct {
	UserID       int64
	CreatedCount int
	TotalPaid    int
	FirstSeen    time.Time
	LastCreation *time.Time
}

type AggregateStats struct {
	TotalUsers     int
	TotalCreations int
	TotalPaid      int
	TotalEarned    int
	ByParts        map[int]int
}
