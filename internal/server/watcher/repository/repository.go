package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Alwanly/dify-indexing-watch/internal/models"
	"github.com/Alwanly/dify-indexing-watch/pkg/pubsub"
	"gorm.io/gorm"
)

var ErrWatchNotFound = errors.New("watch not found")

type IRepository interface {
	CreateWatch(ctx context.Context, w *models.Watch) error
	GetWatch(ctx context.Context, id string) (*models.Watch, error)
	ListWatches(ctx context.Context, limit int) ([]models.Watch, error)
	FinishWatch(ctx context.Context, id string, status models.WatchStatus, attempts int, reason string, at time.Time) (*models.Watch, bool, error)
	AbandonPending(ctx context.Context, at time.Time) (int64, error)
	PublishWatchEvent(ctx context.Context, event models.WatchEvent) error
}

type Repository struct {
	DB      *gorm.DB
	Pub     pubsub.Publisher
	Channel string
}

// NewRepository stores watches in db. A nil publisher disables events.
func NewRepository(db *gorm.DB, publisher pubsub.Publisher, channel string) *Repository {
	return &Repository{DB: db, Pub: publisher, Channel: channel}
}

func (r *Repository) CreateWatch(ctx context.Context, w *models.Watch) error {
	if err := r.DB.WithContext(ctx).Create(w).Error; err != nil {
		return fmt.Errorf("failed to create watch: %w", err)
	}
	return nil
}

func (r *Repository) GetWatch(ctx context.Context, id string) (*models.Watch, error) {
	var w models.Watch
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWatchNotFound
		}
		return nil, fmt.Errorf("failed to get watch: %w", err)
	}
	return &w, nil
}

// ListWatches returns watches newest first. limit <= 0 means no limit.
func (r *Repository) ListWatches(ctx context.Context, limit int) ([]models.Watch, error) {
	var watches []models.Watch
	q := r.DB.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&watches).Error; err != nil {
		return nil, fmt.Errorf("failed to list watches: %w", err)
	}
	return watches, nil
}

// FinishWatch moves a pending watch to a terminal status. A watch that is
// already terminal is left untouched, returned as stored, and reported with
// updated == false.
func (r *Repository) FinishWatch(ctx context.Context, id string, status models.WatchStatus, attempts int, reason string, at time.Time) (*models.Watch, bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Watch{}).
		Where("id = ? AND status = ?", id, models.WatchPending).
		Updates(map[string]interface{}{
			"status":      status,
			"attempts":    attempts,
			"reason":      reason,
			"finished_at": at,
		})
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to finish watch: %w", res.Error)
	}
	w, err := r.GetWatch(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return w, res.RowsAffected > 0, nil
}

// AbandonPending marks every pending watch as abandoned.
func (r *Repository) AbandonPending(ctx context.Context, at time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&models.Watch{}).
		Where("status = ?", models.WatchPending).
		Updates(map[string]interface{}{
			"status":      models.WatchAbandoned,
			"reason":      "process restarted before the watch finished",
			"finished_at": at,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to abandon pending watches: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *Repository) PublishWatchEvent(ctx context.Context, event models.WatchEvent) error {
	if r.Pub == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal watch event: %w", err)
	}
	if err := r.Pub.Publish(ctx, r.Channel, string(payload)); err != nil {
		return fmt.Errorf("failed to publish watch event: %w", err)
	}
	return nil
}
