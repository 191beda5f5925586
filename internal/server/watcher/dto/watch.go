package dto

import "github.com/Alwanly/dify-indexing-watch/internal/models"

// CreateWatchRequest starts waiting on one indexing batch. Zero poll fields
// fall back to the service defaults.
type CreateWatchRequest struct {
	DatasetID   string `json:"dataset_id" validate:"required" example:"8f1c2d3e-0000-4000-8000-000000000001"`
	Batch       string `json:"batch" validate:"required" example:"20250101000000123456"`
	MaxAttempts int    `json:"max_attempts" validate:"omitempty,min=1,max=30" example:"7"`
	BaseDelayMs int64  `json:"base_delay_ms" validate:"omitempty,min=1,max=3600000" example:"1000"`
}

// WatchResponse is a watch record as returned by the API.
type WatchResponse struct {
	models.Watch
	// ScheduledWaitMs is the sum of all backoff delays the watch may sleep.
	ScheduledWaitMs int64 `json:"scheduled_wait_ms"`
}

type ListWatchesResponse struct {
	Watches []WatchResponse `json:"watches"`
	Count   int             `json:"count"`
}
