package dify

import "fmt"

// Indexing statuses reported by the knowledge-base API.
const (
	StatusWaiting   = "waiting"
	StatusParsing   = "parsing"
	StatusCleaning  = "cleaning"
	StatusSplitting = "splitting"
	StatusIndexing  = "indexing"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// DocumentIndexingStatus is one document of an upload batch.
type DocumentIndexingStatus struct {
	ID                   string   `json:"id"`
	IndexingStatus       string   `json:"indexing_status"`
	ProcessingStartedAt  *float64 `json:"processing_started_at"`
	ParsingCompletedAt   *float64 `json:"parsing_completed_at"`
	CleaningCompletedAt  *float64 `json:"cleaning_completed_at"`
	SplittingCompletedAt *float64 `json:"splitting_completed_at"`
	CompletedAt          *float64 `json:"completed_at"`
	PausedAt             *float64 `json:"paused_at"`
	Error                *string  `json:"error"`
	StoppedAt            *float64 `json:"stopped_at"`
	CompletedSegments    int      `json:"completed_segments"`
	TotalSegments        int      `json:"total_segments"`
}

// IndexingStatusResponse is the body of
// GET /datasets/{dataset_id}/documents/{batch}/indexing-status.
type IndexingStatusResponse struct {
	Data []DocumentIndexingStatus `json:"data"`
}

// APIError is a non-200 answer from Dify.
type APIError struct {
	StatusCode int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("dify api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("dify api error %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
