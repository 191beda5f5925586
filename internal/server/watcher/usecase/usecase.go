package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/Alwanly/dify-indexing-watch/internal/dify"
	"github.com/Alwanly/dify-indexing-watch/internal/models"
	"github.com/Alwanly/dify-indexing-watch/internal/server/watcher/dto"
	"github.com/Alwanly/dify-indexing-watch/internal/server/watcher/repository"
	"github.com/Alwanly/dify-indexing-watch/pkg/logger"
	"github.com/Alwanly/dify-indexing-watch/pkg/poll"
	"github.com/Alwanly/dify-indexing-watch/pkg/wrapper"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const defaultListLimit = 100

// maxBaseDelayMs keeps BaseDelayMs * time.Millisecond inside time.Duration.
const maxBaseDelayMs = math.MaxInt64 / int64(time.Millisecond)

var errShuttingDown = wrapper.ResponseFailed(http.StatusServiceUnavailable, "watcher is shutting down")

type UseCaseInterface interface {
	CreateWatch(ctx context.Context, req *dto.CreateWatchRequest) wrapper.JSONResult
	GetWatch(ctx context.Context, id string) wrapper.JSONResult
	ListWatches(ctx context.Context) wrapper.JSONResult
	CancelWatch(ctx context.Context, id string) wrapper.JSONResult
	Active() int
	Shutdown(ctx context.Context) error
}

// Options wires a UseCase. Sleeper is optional and replaces the poll timer.
type Options struct {
	Repo          repository.IRepository
	Fetcher       dify.StatusFetcher
	Logger        *logger.CanonicalLogger
	Defaults      poll.Config
	MaxConcurrent int64
	Sleeper       poll.Sleeper
}

// UseCase runs each accepted watch in its own goroutine. At most
// MaxConcurrent polls run at once; the rest wait on the semaphore while
// staying pending.
type UseCase struct {
	repo     repository.IRepository
	fetcher  dify.StatusFetcher
	logger   *logger.CanonicalLogger
	defaults poll.Config
	sleeper  poll.Sleeper
	sem      *semaphore.Weighted

	root       context.Context
	rootCancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewUseCase(opts Options) *UseCase {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	root, cancel := context.WithCancel(context.Background())
	return &UseCase{
		repo:       opts.Repo,
		fetcher:    opts.Fetcher,
		logger:     log,
		defaults:   opts.Defaults,
		sleeper:    opts.Sleeper,
		sem:        semaphore.NewWeighted(maxConcurrent),
		root:       root,
		rootCancel: cancel,
		cancels:    make(map[string]context.CancelFunc),
	}
}

func (uc *UseCase) CreateWatch(ctx context.Context, req *dto.CreateWatchRequest) wrapper.JSONResult {
	cfg := uc.defaults
	if req.MaxAttempts > 0 {
		cfg.MaxAttempts = req.MaxAttempts
	}
	if req.BaseDelayMs > maxBaseDelayMs {
		logger.AddToContext(ctx, logger.Int64("base_delay_ms", req.BaseDelayMs))
		return wrapper.ResponseFailed(http.StatusBadRequest,
			fmt.Sprintf("base_delay_ms must not exceed %d", int64(maxBaseDelayMs)))
	}
	if req.BaseDelayMs > 0 {
		cfg.BaseDelay = time.Duration(req.BaseDelayMs) * time.Millisecond
	}
	if err := cfg.Validate(); err != nil {
		logger.AddToContext(ctx, logger.Err(err))
		return wrapper.ResponseFailed(http.StatusBadRequest, err.Error())
	}

	if uc.isClosed() {
		return errShuttingDown
	}

	w := &models.Watch{
		ID:          uuid.Must(uuid.NewV7()).String(),
		DatasetID:   req.DatasetID,
		Batch:       req.Batch,
		Status:      models.WatchPending,
		MaxAttempts: cfg.MaxAttempts,
		BaseDelayMs: cfg.BaseDelay.Milliseconds(),
	}
	if err := uc.repo.CreateWatch(ctx, w); err != nil {
		logger.AddToContext(ctx, logger.Err(err))
		return wrapper.ResponseFailed(http.StatusInternalServerError, "failed to create watch")
	}
	logger.AddToContext(ctx,
		logger.String(logger.FieldWatchID, w.ID),
		logger.String(logger.FieldDatasetID, w.DatasetID),
		logger.String(logger.FieldBatch, w.Batch),
	)

	// registration and wg.Add happen under mu so Shutdown never waits on a
	// counter that is about to grow
	uc.mu.Lock()
	if uc.closed {
		uc.mu.Unlock()
		if _, _, err := uc.repo.FinishWatch(ctx, w.ID, models.WatchCancelled, 0, "watcher shut down before the watch started", time.Now()); err != nil {
			logger.AddToContext(ctx, logger.Err(err))
		}
		return errShuttingDown
	}
	watchCtx, cancel := context.WithCancel(uc.root)
	uc.cancels[w.ID] = cancel
	uc.wg.Add(1)
	uc.mu.Unlock()

	go uc.run(watchCtx, *w, cfg)

	return wrapper.ResponseSuccess(http.StatusAccepted, toResponse(*w))
}

func (uc *UseCase) GetWatch(ctx context.Context, id string) wrapper.JSONResult {
	w, err := uc.repo.GetWatch(ctx, id)
	if err != nil {
		return notFoundOrInternal(ctx, err)
	}
	return wrapper.ResponseSuccess(http.StatusOK, toResponse(*w))
}

func (uc *UseCase) ListWatches(ctx context.Context) wrapper.JSONResult {
	watches, err := uc.repo.ListWatches(ctx, defaultListLimit)
	if err != nil {
		logger.AddToContext(ctx, logger.Err(err))
		return wrapper.ResponseFailed(http.StatusInternalServerError, "failed to list watches")
	}
	out := dto.ListWatchesResponse{Watches: make([]dto.WatchResponse, 0, len(watches))}
	for _, w := range watches {
		out.Watches = append(out.Watches, toResponse(w))
	}
	out.Count = len(out.Watches)
	return wrapper.ResponseSuccess(http.StatusOK, out)
}

// CancelWatch stops an in-flight watch. The record turns cancelled once the
// poll goroutine has unwound.
func (uc *UseCase) CancelWatch(ctx context.Context, id string) wrapper.JSONResult {
	uc.mu.Lock()
	cancel, ok := uc.cancels[id]
	uc.mu.Unlock()

	if ok {
		cancel()
		logger.AddToContext(ctx, logger.String(logger.FieldWatchID, id))
		return wrapper.ResponseSuccess(http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
	}

	w, err := uc.repo.GetWatch(ctx, id)
	if err != nil {
		return notFoundOrInternal(ctx, err)
	}
	return wrapper.ResponseFailed(http.StatusConflict, "watch already "+string(w.Status))
}

// Active returns the number of watches that have not finished yet.
func (uc *UseCase) Active() int {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return len(uc.cancels)
}

// Shutdown cancels every in-flight watch and waits until each has stored its
// final state or ctx ends.
func (uc *UseCase) Shutdown(ctx context.Context) error {
	uc.mu.Lock()
	uc.closed = true
	uc.mu.Unlock()
	uc.rootCancel()

	done := make(chan struct{})
	go func() {
		uc.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (uc *UseCase) run(ctx context.Context, w models.Watch, cfg poll.Config) {
	defer uc.wg.Done()
	defer uc.forget(w.ID)

	log := uc.logger.WithWatchID(w.ID).WithBatch(w.DatasetID, w.Batch)

	attempts := 0
	err := uc.sem.Acquire(ctx, 1)
	if err == nil {
		opts := []poll.Option{
			poll.WithObserver(func(attempt int, _ poll.Result, _ error) { attempts = attempt }),
		}
		if uc.sleeper != nil {
			opts = append(opts, poll.WithSleeper(uc.sleeper))
		}
		err = poll.New(log, opts...).Poll(ctx, dify.IndexingProbe(uc.fetcher, w.DatasetID, w.Batch), cfg)
		uc.sem.Release(1)
	}

	status, reason := classify(err)

	// the watch context may already be cancelled; the final write must still land
	storeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stored, updated, ferr := uc.repo.FinishWatch(storeCtx, w.ID, status, attempts, reason, time.Now())
	if ferr != nil {
		log.Error("failed to store watch outcome", logger.Err(ferr), logger.String(logger.FieldStatus, string(status)))
		return
	}
	if !updated {
		log.Warn("watch was already finished elsewhere; outcome dropped",
			logger.String(logger.FieldStatus, string(status)),
			logger.String("stored_status", string(stored.Status)),
		)
		return
	}
	log.Info("watch finished",
		logger.String(logger.FieldStatus, string(stored.Status)),
		logger.Int(logger.FieldAttempt, stored.Attempts),
		logger.String("reason", stored.Reason),
	)

	if perr := uc.repo.PublishWatchEvent(storeCtx, stored.Event()); perr != nil {
		log.Warn("failed to publish watch event", logger.Err(perr))
	}
}

func (uc *UseCase) isClosed() bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.closed
}

func (uc *UseCase) forget(id string) {
	uc.mu.Lock()
	cancel, ok := uc.cancels[id]
	delete(uc.cancels, id)
	uc.mu.Unlock()
	if ok {
		cancel()
	}
}

// classify maps a poll error to the stored status and reason.
func classify(err error) (models.WatchStatus, string) {
	var aborted *poll.AbortedError
	switch {
	case err == nil:
		return models.WatchSucceeded, ""
	case errors.As(err, &aborted):
		return models.WatchAborted, aborted.Reason
	case errors.Is(err, poll.ErrTimeoutExceeded):
		return models.WatchTimedOut, err.Error()
	case errors.Is(err, context.Canceled):
		return models.WatchCancelled, "cancelled"
	default:
		return models.WatchErrored, err.Error()
	}
}

func notFoundOrInternal(ctx context.Context, err error) wrapper.JSONResult {
	if errors.Is(err, repository.ErrWatchNotFound) {
		return wrapper.ResponseFailed(http.StatusNotFound, "watch not found")
	}
	logger.AddToContext(ctx, logger.Err(err))
	return wrapper.ResponseFailed(http.StatusInternalServerError, "failed to load watch")
}

func toResponse(w models.Watch) dto.WatchResponse {
	cfg := poll.Config{MaxAttempts: w.MaxAttempts, BaseDelay: time.Duration(w.BaseDelayMs) * time.Millisecond}
	return dto.WatchResponse{Watch: w, ScheduledWaitMs: cfg.MaxScheduledWait().Milliseconds()}
}
