package dify

import (
	"context"
	"errors"
	"fmt"

	"github.com/Alwanly/dify-indexing-watch/pkg/poll"
)

// IndexingProbe checks one upload batch per call.
//
// A batch succeeds as soon as any of its documents is completed. Otherwise a
// document in the error state aborts the poll with its error message.
// Everything else, including an empty batch and paused documents, is pending.
func IndexingProbe(fetcher StatusFetcher, datasetID, batch string) poll.Probe {
	return func(ctx context.Context) (poll.Result, error) {
		status, err := fetcher.GetIndexingStatus(ctx, datasetID, batch)
		if err != nil {
			return poll.Result{}, err
		}
		if status == nil {
			return poll.Result{}, errors.New("empty indexing status response")
		}
		return Classify(status), nil
	}
}

// Classify maps a batch status onto a poll result.
func Classify(status *IndexingStatusResponse) poll.Result {
	for _, doc := range status.Data {
		if doc.IndexingStatus == StatusCompleted {
			return poll.Succeeded()
		}
	}
	for _, doc := range status.Data {
		if doc.IndexingStatus == StatusError {
			reason := fmt.Sprintf("document %s failed to index", doc.ID)
			if doc.Error != nil && *doc.Error != "" {
				reason = fmt.Sprintf("document %s: %s", doc.ID, *doc.Error)
			}
			return poll.FailedWith(reason)
		}
	}
	return poll.StillPending()
}
