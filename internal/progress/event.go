package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart        Stage = "RUN_START"
	StageCategoryStart   Stage = "CATEGORY_START"
	StageCategorySkipped Stage = "CATEGORY_SKIPPED"
	StagePageDone        Stage = "PAGE_DONE"
	StagePageFailed      Stage = "PAGE_FAILED"
	StageRunDone         Stage = "RUN_DONE"
)

// Event is a single crawl milestone.
type Event struct {
	// RunID identifies the run in 16-byte UUID form.
	RunID [16]byte
	TS    time.Time
	Stage Stage
	Site  string
	// Category and URL locate category and page events.
	Category string
	URL      string
	// Page is 1-based; Pages is the resolved total for the category.
	Page  int
	Pages int
	// Items, Stored and Failed are page deltas on PAGE_DONE and run totals
	// on RUN_DONE.
	Items  int
	Stored int
	Failed int
	Dur    time.Duration
	// Note carries low-volume context such as a skip reason.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Site == "" {
		return errors.New("site is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageCategoryStart, StageCategorySkipped:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	case StagePageDone, StagePageFailed:
		if e.Page < 1 || e.Pages < e.Page {
			return fmt.Errorf("%s page %d of %d out of range", e.Stage, e.Page, e.Pages)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID back to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseRunID parses a string run ID into the Event form.
func ParseRunID(id string) ([16]byte, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse run id: %w", err)
	}
	return UUIDToBytes(parsed), nil
}
