package activitymap

import (
	"context"
	"encoding/json"

	auth "github.com/promptlift/go-auth"
)

// NewLogSink returns an ActivitySink that writes each mapped event as one
// JSON log line.
func NewLogSink(logger auth.Logger, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		raw, err := json.Marshal(Map(event, opts...))
		if err != nil {
			return err
		}
		logger.Info("activity %s", raw)
		return nil
	})
}
