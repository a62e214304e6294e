package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

type memoryStore struct {
	err     error
	entries []model.ActivityEntry
}

func (m *memoryStore) AppendActivity(_ context.Context, entry *model.ActivityEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryStore) GetActivity(_ context.Context, _ service.ActivityFilter) ([]model.ActivityEntry, error) {
	return m.entries, nil
}

type actorFunc func(context.Context) (model.Actor, error)

func (f actorFunc) CurrentActor(ctx context.Context) (model.Actor, error) { return f(ctx) }

func TestRecorderAppend(t *testing.T) {
	store := &memoryStore{}
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := NewRecorder(store,
		actorFunc(func(context.Context) (model.Actor, error) {
			return model.Actor{ID: "u1", Label: "Owner", Role: model.RoleAdmin}, nil
		}),
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() string { return "entry-1" }),
	)

	rec.Append(context.Background(), "recorded cash income 10")

	entries, err := rec.List(context.Background(), service.ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ActivityEntry{
		Timestamp:   fixed,
		ID:          "entry-1",
		ActorID:     "u1",
		ActorLabel:  "Owner",
		Description: "recorded cash income 10",
	}, entries[0])
}

func TestRecorderSwallowsFailures(t *testing.T) {
	store := &memoryStore{err: errors.New("disk full")}
	rec := NewRecorder(store, nil)

	assert.NotPanics(t, func() {
		rec.Append(context.Background(), "anything")
	})
	assert.Empty(t, store.entries)
}

func TestRecorderUnknownActor(t *testing.T) {
	store := &memoryStore{}
	rec := NewRecorder(store, actorFunc(func(context.Context) (model.Actor, error) {
		return model.Actor{}, errors.New("no session")
	}))

	rec.Append(context.Background(), "still recorded")

	require.Len(t, store.entries, 1)
	assert.Equal(t, "unknown", store.entries[0].ActorID)
	assert.NotEmpty(t, store.entries[0].ID)
}
