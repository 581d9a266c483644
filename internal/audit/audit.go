// Package audit publishes file movement events to an append-only sink.
package audit

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Movement actions.
const (
	ActionRequest   = "request"
	ActionCharge    = "charge"
	ActionReturn    = "return"
	ActionAttach    = "attach"
	ActionDetach    = "detach"
	ActionClearLog  = "clear_log"
	ActionReconcile = "reconcile"
)

// Event describes one successful movement transition.
type Event struct {
	Action  string     `json:"action"`
	FileID  uuid.UUID  `json:"file_id"`
	UserID  uuid.UUID  `json:"user_id,omitempty"`
	ToUser  *uuid.UUID `json:"to_user_id,omitempty"`
	ActorID uuid.UUID  `json:"actor_id,omitempty"`
	Detail  string     `json:"detail,omitempty"`
	At      time.Time  `json:"at"`
}

// Publisher emits audit events. Emit must not block the caller for long;
// a failed emit never undoes the transition it describes.
type Publisher interface {
	Emit(ctx context.Context, e Event) error
}

// Log writes events to a zap logger.
type Log struct {
	log *zap.Logger
}

// NewLog constructs a log-backed publisher.
func NewLog(log *zap.Logger) *Log {
	return &Log{log: log.Named("audit")}
}

func (l *Log) Emit(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("action", e.Action),
		zap.Stringer("file_id", e.FileID),
		zap.Stringer("user_id", e.UserID),
		zap.Stringer("actor_id", e.ActorID),
		zap.Time("at", e.At),
	}
	if e.ToUser != nil {
		fields = append(fields, zap.Stringer("to_user_id", *e.ToUser))
	}
	if e.Detail != "" {
		fields = append(fields, zap.String("detail", e.Detail))
	}
	l.log.Info("movement", fields...)
	return nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }
