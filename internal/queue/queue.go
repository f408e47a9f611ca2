// Package queue dispatches analysis jobs out of the synchronous webhook
// path. The webhook acks Kakao immediately; a task delivers the payload
// back to the callback endpoint where the slow extraction runs.
package queue

import (
	"context"

	"github.com/drlike/asthmabot/internal/schema"
)

// AnalysisTask is the payload handed from the confirm leg to the
// callback leg.
type AnalysisTask struct {
	UserKey       string               `json:"userKey"`
	History       []string             `json:"history"`
	ExtractedData schema.ExtractedData `json:"extracted_data"`
	CallbackURL   string               `json:"callbackUrl"`
}

// TaskQueue enqueues analysis tasks.
type TaskQueue interface {
	// Enqueue schedules a task for asynchronous processing.
	Enqueue(ctx context.Context, task *AnalysisTask) error

	// Close releases queue resources.
	Close() error
}
