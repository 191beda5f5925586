package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Alwanly/dify-indexing-watch/internal/models"
	"github.com/Alwanly/dify-indexing-watch/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	payloads []string
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, channel, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.channels = append(f.channels, channel)
	f.payloads = append(f.payloads, message)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func newTestRepo(t *testing.T, pub *fakePublisher) *Repository {
	t.Helper()
	db, err := database.NewSQLiteDB("")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))
	if pub == nil {
		return NewRepository(db, nil, "indexing-events")
	}
	return NewRepository(db, pub, "indexing-events")
}

func pendingWatch(id string, created time.Time) *models.Watch {
	return &models.Watch{
		ID:          id,
		DatasetID:   "ds-1",
		Batch:       "batch-" + id,
		Status:      models.WatchPending,
		MaxAttempts: 7,
		BaseDelayMs: 1000,
		CreatedAt:   created,
	}
}

func TestCreateAndGetWatch(t *testing.T) {
	repo := newTestRepo(t, nil)
	ctx := context.Background()

	require.NoError(t, repo.CreateWatch(ctx, pendingWatch("w1", time.Now())))

	got, err := repo.GetWatch(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "ds-1", got.DatasetID)
	assert.Equal(t, models.WatchPending, got.Status)
	assert.Nil(t, got.FinishedAt)
}

func TestGetWatch_NotFound(t *testing.T) {
	repo := newTestRepo(t, nil)

	_, err := repo.GetWatch(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrWatchNotFound)
}

func TestListWatches_NewestFirst(t *testing.T) {
	repo := newTestRepo(t, nil)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	require.NoError(t, repo.CreateWatch(ctx, pendingWatch("old", base)))
	require.NoError(t, repo.CreateWatch(ctx, pendingWatch("new", base.Add(time.Minute))))

	all, err := repo.ListWatches(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "old", all[1].ID)

	limited, err := repo.ListWatches(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "new", limited[0].ID)
}

func TestFinishWatch(t *testing.T) {
	repo := newTestRepo(t, nil)
	ctx := context.Background()
	require.NoError(t, repo.CreateWatch(ctx, pendingWatch("w1", time.Now())))

	at := time.Now()
	got, updated, err := repo.FinishWatch(ctx, "w1", models.WatchAborted, 2, "file is empty", at)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, models.WatchAborted, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "file is empty", got.Reason)
	require.NotNil(t, got.FinishedAt)

	// a second transition does not overwrite the first
	again, updated, err := repo.FinishWatch(ctx, "w1", models.WatchCancelled, 3, "", time.Now())
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, models.WatchAborted, again.Status)
	assert.Equal(t, 2, again.Attempts)
}

func TestFinishWatch_NotFound(t *testing.T) {
	repo := newTestRepo(t, nil)

	_, _, err := repo.FinishWatch(context.Background(), "missing", models.WatchSucceeded, 1, "", time.Now())
	assert.ErrorIs(t, err, ErrWatchNotFound)
}

func TestAbandonPending(t *testing.T) {
	repo := newTestRepo(t, nil)
	ctx := context.Background()
	require.NoError(t, repo.CreateWatch(ctx, pendingWatch("p1", time.Now())))
	require.NoError(t, repo.CreateWatch(ctx, pendingWatch("p2", time.Now())))
	require.NoError(t, repo.CreateWatch(ctx, pendingWatch("done", time.Now())))
	_, _, err := repo.FinishWatch(ctx, "done", models.WatchSucceeded, 1, "", time.Now())
	require.NoError(t, err)

	n, err := repo.AbandonPending(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	p1, err := repo.GetWatch(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.WatchAbandoned, p1.Status)

	done, err := repo.GetWatch(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, models.WatchSucceeded, done.Status)
}

func TestPublishWatchEvent(t *testing.T) {
	pub := &fakePublisher{}
	repo := newTestRepo(t, pub)

	event := models.WatchEvent{WatchID: "w1", DatasetID: "ds-1", Batch: "b", Status: models.WatchTimedOut, Attempts: 7}
	require.NoError(t, repo.PublishWatchEvent(context.Background(), event))

	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "indexing-events", pub.channels[0])

	var decoded models.WatchEvent
	require.NoError(t, json.Unmarshal([]byte(pub.payloads[0]), &decoded))
	assert.Equal(t, models.WatchTimedOut, decoded.Status)
	assert.Equal(t, 7, decoded.Attempts)
}

func TestPublishWatchEvent_Errors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	repo := newTestRepo(t, pub)

	err := repo.PublishWatchEvent(context.Background(), models.WatchEvent{WatchID: "w1"})
	assert.ErrorContains(t, err, "connection refused")
}

func TestPublishWatchEvent_NoPublisher(t *testing.T) {
	repo := newTestRepo(t, nil)
	assert.NoError(t, repo.PublishWatchEvent(context.Background(), models.WatchEvent{WatchID: "w1"}))
}
