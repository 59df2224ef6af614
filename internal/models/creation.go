package models

import (
	"errors"
	"fmt"
	"time"
)

type FitMode string

const (
	FitCover   FitMode = "cover"
	FitContain FitMode = "contain"
)

func ParseFitMode(s string) (FitMode, error) {
	switch FitMode(s) {
	case FitCover, FitContain:
		return FitMode(s), nil
	}
	return "", fmt.Errorf("unknown fit mode %q", s)
}

const (
	GridColumns = 3
	MinParts    = 3
	MaxParts    = 21
)

// PartCounts is the fixed set of wall sizes a user can pick from.
var PartCounts = []int{3, 6, 9, 12, 15, 18, 21}

func ValidParts(parts int) bool {
	return parts >= MinParts && parts <= MaxParts && parts%GridColumns == 0
}

var ErrIncomplete = errors.New("creation is incomplete")

type Dimensions struct {
	Width  int
	Height int
}

type PendingCreation struct {
	UserID          int64
	TempDirPath     string
	SourceImagePath string
	Image           Dimensions
	SourceFileSize  int64
	Parts           int
	FitMode         FitMode
	IsLargeFile     bool
	QuotedPrice     int
	Quoted          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate checks that every field the worker needs was collected.
func (p PendingCreation) Validate() error {
	switch {
	case p.TempDirPath == "":
		return fmt.Errorf("%w: temp dir missing", ErrIncomplete)
	case p.SourceImagePath == "":
		return fmt.Errorf("%w: source image missing", ErrIncomplete)
	case !ValidParts(p.Parts):
		return fmt.Errorf("%w: part count %d", ErrIncomplete, p.Parts)
	case p.FitMode != FitCover && p.FitMode != FitContain:
		return fmt.Errorf("%w: fit mode %q", ErrIncomplete, p.FitMode)
	}
	return nil
}

// CreationData is the snapshot of a pending creation carried by a queued job.
type CreationData struct {
	TempDirPath     string
	SourceImagePath string
	Parts           int
	FitMode         FitMode
}

func (p PendingCreation) Snapshot() CreationData {
	return CreationData{
		TempDirPath:     p.TempDirPath,
		SourceImagePath: p.SourceImagePath,
		Parts:           p.Parts,
		FitMode:         p.FitMode,
	}
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type Job struct {
	ID         string
	UserID     int64
	Creation   CreationData
	Progress   MessageRef
	IsPaid     bool
	EnqueuedAt time.Time
}
