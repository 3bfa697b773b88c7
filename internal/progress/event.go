package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Stage denotes the lifecycle milestone represented by an Event.
type Stage string

// Supported session stages.
const (
	StageSessionStarted  Stage = "SESSION_STARTED"
	StagePageCompleted   Stage = "PAGE_COMPLETED"
	StagePageFailed      Stage = "PAGE_FAILED"
	StageSessionFinished Stage = "SESSION_FINISHED"
)

// Event captures a single session milestone.
type Event struct {
	// SessionID identifies the session using the 16-byte UUID form.
	SessionID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Session is set for StageSessionStarted.
	Session crawler.SessionInfo
	// Page is set for StagePageCompleted.
	Page crawler.Page
	// URL is the failed address for StagePageFailed.
	URL string
	// Message carries the failure text for StagePageFailed.
	Message string
	// Dur is the session duration for StageSessionFinished.
	Dur time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SessionID == [16]byte{} {
		return errors.New("session id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageSessionStarted:
		if e.Session.BaseAddress == "" {
			return errors.New("session start requires base address")
		}
	case StagePageCompleted:
		if e.Page.Address == "" {
			return errors.New("page completion requires page address")
		}
	case StagePageFailed:
		if e.URL == "" {
			return errors.New("page failure requires url")
		}
	case StageSessionFinished:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseSessionID parses a textual session ID into the Event form.
func ParseSessionID(id string) ([16]byte, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse session id: %w", err)
	}
	return UUIDToBytes(parsed), nil
}
