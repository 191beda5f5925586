package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Alwanly/dify-indexing-watch/internal/config"
	"github.com/Alwanly/dify-indexing-watch/internal/dify"
	"github.com/Alwanly/dify-indexing-watch/pkg/database"
	"github.com/Alwanly/dify-indexing-watch/pkg/deps"
	"github.com/Alwanly/dify-indexing-watch/pkg/logger"
	"github.com/Alwanly/dify-indexing-watch/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "watch-token"

type completedFetcher struct{}

func (completedFetcher) GetIndexingStatus(ctx context.Context, datasetID, batch string) (*dify.IndexingStatusResponse, error) {
	return &dify.IndexingStatusResponse{Data: []dify.DocumentIndexingStatus{{ID: "doc-1", IndexingStatus: dify.StatusCompleted}}}, nil
}

type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  map[string]string `json:"errors"`
}

func setupApp(t *testing.T) *fiber.App {
	t.Helper()
	cfg, err := config.LoadFromMap(map[string]string{
		"TEST_DIFY_KNOWLEDGE_BASE_API_KEY": "dataset-key",
		"WATCHER_API_TOKEN":                testToken,
	})
	require.NoError(t, err)

	db, err := database.NewSQLiteDB("")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))

	log := logger.NewNop()
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(log)})
	app.Use(middleware.CanonicalLoggerMiddleware(log))

	h, err := NewHandler(deps.App{Fiber: app, Logger: log, Database: db}, cfg, completedFetcher{},
		func(ctx context.Context, d time.Duration) error { return ctx.Err() })
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.UseCase.Shutdown(ctx)
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string, authed bool) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func TestHealth(t *testing.T) {
	app := setupApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWatches_RequireToken(t *testing.T) {
	app := setupApp(t)

	status, env := do(t, app, http.MethodGet, "/watches", "", false)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)
}

func TestCreateWatch_Validation(t *testing.T) {
	app := setupApp(t)

	status, env := do(t, app, http.MethodPost, "/watches", `{"dataset_id":"ds-1"}`, true)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Errors, "Batch")

	status, _ = do(t, app, http.MethodPost, "/watches", `{"dataset_id":"ds-1","batch":"b","max_attempts":99}`, true)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, app, http.MethodPost, "/watches", `not json`, true)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWatchLifecycle(t *testing.T) {
	app := setupApp(t)

	status, env := do(t, app, http.MethodPost, "/watches", `{"dataset_id":"ds-1","batch":"20250101000000123456","max_attempts":3}`, true)
	require.Equal(t, http.StatusAccepted, status)
	assert.True(t, env.Success)

	var created struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		MaxAttempts int    `json:"max_attempts"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, 3, created.MaxAttempts)

	require.Eventually(t, func() bool {
		code, got := do(t, app, http.MethodGet, "/watches/"+created.ID, "", true)
		if code != http.StatusOK {
			return false
		}
		var w struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(got.Data, &w)
		return w.Status == "succeeded"
	}, 5*time.Second, 20*time.Millisecond)

	status, env = do(t, app, http.MethodGet, "/watches", "", true)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Count)

	// the finished watch leaves the in-flight set just after its record is stored
	require.Eventually(t, func() bool {
		code, _ := do(t, app, http.MethodDelete, "/watches/"+created.ID, "", true)
		return code == http.StatusConflict
	}, 5*time.Second, 20*time.Millisecond)
}

func TestGetWatch_NotFound(t *testing.T) {
	app := setupApp(t)

	status, env := do(t, app, http.MethodGet, "/watches/missing", "", true)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "watch not found", env.Message)

	status, _ = do(t, app, http.MethodDelete, "/watches/missing", "", true)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateWatch_RejectsHugeBaseDelay(t *testing.T) {
	app := setupApp(t)

	status, env := do(t, app, http.MethodPost, "/watches",
		`{"dataset_id":"ds-1","batch":"b","max_attempts":3,"base_delay_ms":18446744073710}`, true)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Errors, "BaseDelayMs")
}
