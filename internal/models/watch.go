package models

import "time"

type WatchStatus string

const (
	WatchPending   WatchStatus = "pending"
	WatchSucceeded WatchStatus = "succeeded"
	WatchTimedOut  WatchStatus = "timed_out"
	WatchAborted   WatchStatus = "aborted"
	WatchErrored   WatchStatus = "errored"
	WatchCancelled WatchStatus = "cancelled"
	// WatchAbandoned marks records a previous process left pending.
	WatchAbandoned WatchStatus = "abandoned"
)

// Terminal reports whether the watch will not change any more.
func (s WatchStatus) Terminal() bool {
	return s != WatchPending
}

// Watch is the stored record of one indexing wait.
type Watch struct {
	ID          string      `gorm:"primaryKey;column:id" json:"id"`
	DatasetID   string      `gorm:"column:dataset_id;index" json:"dataset_id"`
	Batch       string      `gorm:"column:batch" json:"batch"`
	Status      WatchStatus `gorm:"column:status;index" json:"status"`
	MaxAttempts int         `gorm:"column:max_attempts" json:"max_attempts"`
	BaseDelayMs int64       `gorm:"column:base_delay_ms" json:"base_delay_ms"`
	Attempts    int         `gorm:"column:attempts" json:"attempts"`
	Reason      string      `gorm:"column:reason" json:"reason,omitempty"`
	CreatedAt   time.Time   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	FinishedAt  *time.Time  `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

func (Watch) TableName() string {
	return "watches"
}

// WatchEvent is published when a watch reaches a terminal status.
type WatchEvent struct {
	WatchID   string      `json:"watch_id"`
	DatasetID string      `json:"dataset_id"`
	Batch     string      `json:"batch"`
	Status    WatchStatus `json:"status"`
	Attempts  int         `json:"attempts"`
	Reason    string      `json:"reason,omitempty"`
	At        time.Time   `json:"at"`
}

// Event builds the event for a finished watch.
func (w *Watch) Event() WatchEvent {
	at := w.UpdatedAt
	if w.FinishedAt != nil {
		at = *w.FinishedAt
	}
	return WatchEvent{
		WatchID:   w.ID,
		DatasetID: w.DatasetID,
		Batch:     w.Batch,
		Status:    w.Status,
		Attempts:  w.Attempts,
		Reason:    w.Reason,
		At:        at,
	}
}
