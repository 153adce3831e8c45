package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/lumenweb/sitemedia/internal/model"
)

// TranscodeMediaTask is scheduled for each storage-finalize notification
// that might be a transcode source.
const TranscodeMediaTask = "media:transcode"

// EnqueueTranscode enqueues one transcode job. Retry is disabled on
// purpose: the pipeline has no retry policy, and at-least-once delivery
// from the storage layer already covers lost notifications.
func EnqueueTranscode(ctx context.Context, client *asynq.Client, evt model.StorageFinalizeEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	task := asynq.NewTask(TranscodeMediaTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("enqueue transcode task: %w", err)
	}
	return nil
}
