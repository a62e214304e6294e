// Package activity keeps the append-only audit trail of ledger actions.
package activity

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// Store is the part of the record store the recorder needs.
type Store interface {
	AppendActivity(ctx context.Context, entry *model.ActivityEntry) error
	GetActivity(ctx context.Context, filter service.ActivityFilter) ([]model.ActivityEntry, error)
}

// Recorder appends activity entries on behalf of the current actor.
type Recorder struct {
	store    Store
	identity service.IdentityProvider
	now      func() time.Time
	newID    func() string
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithIDGenerator overrides the entry id source.
func WithIDGenerator(newID func() string) Option {
	return func(r *Recorder) { r.newID = newID }
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store Store, identity service.IdentityProvider, opts ...Option) *Recorder {
	r := &Recorder{
		store:    store,
		identity: identity,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Append records description for the current actor. It never fails: an
// unresolvable actor or a store error is logged and the entry dropped.
func (r *Recorder) Append(ctx context.Context, description string) {
	actor := model.Actor{ID: "unknown", Label: "unknown"}
	if r.identity != nil {
		resolved, err := r.identity.CurrentActor(ctx)
		if err != nil {
			slog.Warn("failed to resolve actor for activity entry", "error", err)
		} else {
			actor = resolved
		}
	}
	r.AppendAs(ctx, actor, description)
}

// AppendAs records description for an already resolved actor.
func (r *Recorder) AppendAs(ctx context.Context, actor model.Actor, description string) {
	entry := &model.ActivityEntry{
		ID:          r.newID(),
		Timestamp:   r.now().UTC(),
		ActorID:     actor.ID,
		ActorLabel:  actor.Label,
		Description: description,
	}
	if err := r.store.AppendActivity(ctx, entry); err != nil {
		slog.Warn("failed to append activity entry",
			"error", err,
			"actor", actor.ID,
			"description", description)
		return
	}
	slog.Debug("activity recorded", "actor", actor.ID, "description", description)
}

// List returns entries in append order, or newest first when requested.
func (r *Recorder) List(ctx context.Context, filter service.ActivityFilter) ([]model.ActivityEntry, error) {
	return r.store.GetActivity(ctx, filter)
}
