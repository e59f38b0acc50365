// Package queue dispatches document processing jobs, in process or through Kafka.
// Jobs for the same document are always handled one at a time.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrClosed is returned when publishing to a closed queue.
var ErrClosed = errors.New("queue closed")

// Reasons a job was queued.
const (
	ReasonUpload  = "upload"
	ReasonChanged = "changed"
	ReasonManual  = "manual"
)

// Job asks for one document to be (re)processed.
type Job struct {
	DocumentID int64  `json:"document_id"`
	TenantID   int64  `json:"tenant_id"`
	Reason     string `json:"reason,omitempty"`
}

// Handler processes one job. A returned error leaves the job unacknowledged where the
// transport supports redelivery.
type Handler func(ctx context.Context, job Job) error

// Publisher enqueues jobs.
type Publisher interface {
	Publish(ctx context.Context, job Job) error
	Close() error
}

// Consumer delivers jobs to a handler until ctx is done or the consumer is closed.
type Consumer interface {
	Run(ctx context.Context, h Handler) error
	Close() error
}

func encodeJob(job Job) ([]byte, error) {
	return json.Marshal(job)
}

func decodeJob(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if job.DocumentID <= 0 {
		return Job{}, fmt.Errorf("decode job: missing document id")
	}
	return job, nil
}
