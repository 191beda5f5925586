package handler

import (
	"github.com/Alwanly/dify-indexing-watch/internal/config"
	"github.com/Alwanly/dify-indexing-watch/internal/dify"
	"github.com/Alwanly/dify-indexing-watch/internal/server/watcher/dto"
	"github.com/Alwanly/dify-indexing-watch/internal/server/watcher/repository"
	"github.com/Alwanly/dify-indexing-watch/internal/server/watcher/usecase"
	"github.com/Alwanly/dify-indexing-watch/pkg/deps"
	"github.com/Alwanly/dify-indexing-watch/pkg/logger"
	"github.com/Alwanly/dify-indexing-watch/pkg/middleware"
	"github.com/Alwanly/dify-indexing-watch/pkg/poll"
	"github.com/Alwanly/dify-indexing-watch/pkg/validator"
	"github.com/Alwanly/dify-indexing-watch/pkg/wrapper"
	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	Logger  *logger.CanonicalLogger
	UseCase *usecase.UseCase
	Config  *config.Config
}

// NewHandler builds the watch usecase and registers its routes on d.Fiber.
// sleeper is normally nil; tests pass one to skip the backoff delays.
func NewHandler(d deps.App, cfg *config.Config, fetcher dify.StatusFetcher, sleeper poll.Sleeper) (*Handler, error) {
	defaults, err := cfg.PollDefaults()
	if err != nil {
		return nil, err
	}

	repo := repository.NewRepository(d.Database, d.Pub, cfg.Redis.Channel)

	uc := usecase.NewUseCase(usecase.Options{
		Repo:          repo,
		Fetcher:       fetcher,
		Logger:        d.Logger.Component("watch-usecase"),
		Defaults:      defaults,
		MaxConcurrent: cfg.Watcher.MaxConcurrentWatches,
		Sleeper:       sleeper,
	})

	h := &Handler{
		Logger:  d.Logger,
		UseCase: uc,
		Config:  cfg,
	}

	// Health check endpoint (no auth required)
	d.Fiber.Get("/health", h.health)

	watches := d.Fiber.Group("/watches", middleware.BearerTokenAuth(cfg.Watcher.APIToken, d.Logger))
	watches.Post("", h.createWatch)
	watches.Get("", h.listWatches)
	watches.Get("/:id", h.getWatch)
	watches.Delete("/:id", h.cancelWatch)

	return h, nil
}

func (h *Handler) health(c *fiber.Ctx) error {
	return c.JSON(dto.HealthResponse{Status: "healthy", Service: "watcher", Active: h.UseCase.Active()})
}

// createWatch godoc
// @Summary      Start waiting for an indexing batch
// @Description  Stores a pending watch and polls the batch's indexing status in the background with bounded exponential backoff
// @Tags         watches
// @Accept       json
// @Produce      json
// @Param        request body dto.CreateWatchRequest true "Batch to watch"
// @Success      202 {object} dto.WatchResponse "Watch accepted"
// @Failure      400 {object} wrapper.JSONResult "Invalid request body or validation error"
// @Failure      401 {object} wrapper.JSONResult "Missing or invalid token"
// @Router       /watches [post]
// @Security     BearerAuth
func (h *Handler) createWatch(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "create_watch"))

	req := new(dto.CreateWatchRequest)
	if err := c.BodyParser(req); err != nil {
		logger.AddToContext(c.UserContext(), logger.Err(err))
		res := wrapper.ResponseFailed(fiber.StatusBadRequest, "invalid request body")
		return c.Status(res.Code).JSON(res)
	}

	if err := validator.ValidateStruct(req); err != nil {
		logger.AddToContext(c.UserContext(), logger.Err(err))
		res := wrapper.ResponseInvalid(validator.TranslateError(err))
		return c.Status(res.Code).JSON(res)
	}

	res := h.UseCase.CreateWatch(c.UserContext(), req)
	return c.Status(res.Code).JSON(res)
}

func (h *Handler) listWatches(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "list_watches"))

	res := h.UseCase.ListWatches(c.UserContext())
	return c.Status(res.Code).JSON(res)
}

func (h *Handler) getWatch(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(),
		logger.String(logger.FieldOperation, "get_watch"),
		logger.String(logger.FieldWatchID, c.Params("id")),
	)

	res := h.UseCase.GetWatch(c.UserContext(), c.Params("id"))
	return c.Status(res.Code).JSON(res)
}

// cancelWatch godoc
// @Summary      Cancel an in-flight watch
// @Tags         watches
// @Produce      json
// @Param        id path string true "Watch ID"
// @Success      202 {object} wrapper.JSONResult "Cancellation requested"
// @Failure      404 {object} wrapper.JSONResult "Watch not found"
// @Failure      409 {object} wrapper.JSONResult "Watch already finished"
// @Router       /watches/{id} [delete]
// @Security     BearerAuth
func (h *Handler) cancelWatch(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "cancel_watch"))

	res := h.UseCase.CancelWatch(c.UserContext(), c.Params("id"))
	return c.Status(res.Code).JSON(res)
}
