// Package session models server-side presence: heartbeat-driven session rows
// defining who counts as online.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/codearena/arena-server/internal/domain/shared"
)

// OnlineWindow is how recently a session must have started (or been seen)
// for its user to count as online.
const OnlineWindow = 15 * time.Minute

// UserSession is one connect-to-disconnect span with activity counters.
type UserSession struct {
	ID               string
	UserID           shared.UserID
	SessionStart     time.Time
	SessionEnd       *time.Time
	LastSeenAt       time.Time
	PuzzlesAttempted int
	PuzzlesCompleted int
}

// Open starts a new session for the user.
func Open(userID shared.UserID) *UserSession {
	now := time.Now().UTC()
	return &UserSession{
		ID:           uuid.NewString(),
		UserID:       userID,
		SessionStart: now,
		LastSeenAt:   now,
	}
}

// Touch refreshes the heartbeat.
func (s *UserSession) Touch(now time.Time) {
	s.LastSeenAt = now.UTC()
}

// Close ends the session; closing twice is an error.
func (s *UserSession) Close(now time.Time) error {
	if s.SessionEnd != nil {
		return shared.ErrSessionAlreadyEnded
	}
	t := now.UTC()
	s.SessionEnd = &t
	return nil
}

// IsOpen reports whether the session has not ended.
func (s *UserSession) IsOpen() bool {
	return s.SessionEnd == nil
}

// IsOnline reports whether the session makes its user count as online:
// open and seen within the window.
func (s *UserSession) IsOnline(now time.Time) bool {
	return s.IsOpen() && now.Sub(s.LastSeenAt) <= OnlineWindow
}

// RecordAttempt bumps the activity counters.
func (s *UserSession) RecordAttempt(success bool) {
	s.PuzzlesAttempted++
	if success {
		s.PuzzlesCompleted++
	}
}
