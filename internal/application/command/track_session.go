package command

import (
	"context"
	"fmt"
	"time"

	"github.com/codearena/arena-server/internal/domain/session"
	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION TRACKING COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// HeartbeatCommand refreshes the user's open session, opening one when none
// exists. The websocket gateway issues it on connect and on periodic pings;
// the HTTP layer issues it on authenticated activity.
type HeartbeatCommand struct {
	UserID string
}

// Validate checks the command's input invariants.
func (c *HeartbeatCommand) Validate() error {
	_, err := shared.NewUserID(c.UserID)
	return err
}

// CloseSessionCommand ends the user's open session. Closing when no session
// is open is a no-op.
type CloseSessionCommand struct {
	UserID string
}

// Validate checks the command's input invariants.
func (c *CloseSessionCommand) Validate() error {
	_, err := shared.NewUserID(c.UserID)
	return err
}

// TrackSessionHandler handles both session commands.
type TrackSessionHandler struct {
	uow UnitOfWork
	log *logger.Logger
}

// NewTrackSessionHandler creates the session tracking handler.
func NewTrackSessionHandler(uow UnitOfWork, log *logger.Logger) *TrackSessionHandler {
	if log == nil {
		log = logger.Default()
	}
	return &TrackSessionHandler{uow: uow, log: log.With(logger.Component("track_session"))}
}

// Heartbeat touches the open session or opens a fresh one.
func (h *TrackSessionHandler) Heartbeat(ctx context.Context, cmd HeartbeatCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	userID := shared.UserID(cmd.UserID)
	now := time.Now().UTC()

	return h.uow.Run(ctx, func(ctx context.Context, r Repos) error {
		err := r.Sessions.Heartbeat(ctx, userID, now)
		if err == nil {
			return nil
		}
		if !shared.IsNotFound(err) {
			return fmt.Errorf("failed to heartbeat session: %w", err)
		}
		if err := r.Sessions.Insert(ctx, session.Open(userID)); err != nil {
			return fmt.Errorf("failed to open session: %w", err)
		}
		h.log.Debug("session opened", logger.UserID(cmd.UserID))
		return nil
	})
}

// Close ends the user's open session.
func (h *TrackSessionHandler) Close(ctx context.Context, cmd CloseSessionCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	userID := shared.UserID(cmd.UserID)
	now := time.Now().UTC()

	return h.uow.Run(ctx, func(ctx context.Context, r Repos) error {
		if err := r.Sessions.Close(ctx, userID, now); err != nil && !shared.IsNotFound(err) {
			return fmt.Errorf("failed to close session: %w", err)
		}
		return nil
	})
}
