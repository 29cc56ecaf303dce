package types

import "time"

// TaskStatus is the lifecycle state of a queued analysis task.
type TaskStatus string

const (
	// TaskPending means the task is waiting its FIFO turn.
	TaskPending TaskStatus = "pending"

	// TaskProcessing means the task is being analyzed. At most one task
	// is processing at any instant.
	TaskProcessing TaskStatus = "processing"

	// TaskPaused means the task is parked by explicit user action and is
	// skipped by the worker until resumed.
	TaskPaused TaskStatus = "paused"
)

// QueueTask is one queued analysis request. Tasks are transient: they live
// only in memory for the queue's lifetime.
type QueueTask struct {
	ID                 string      `json:"id"`
	SuiteID            string      `json:"suite_id"`
	SuiteName          string      `json:"suite_name"`
	Status             TaskStatus  `json:"status"`
	ChatLengthSnapshot int         `json:"chat_length_snapshot"` // Chat length at enqueue time
	ChatIDSnapshot     string      `json:"chat_id_snapshot"`     // Chat id at enqueue time
	CreatedAt          time.Time   `json:"created_at"`
	TriggerType        TriggerType `json:"trigger_type"`

	// SnapshotMode is resolved at enqueue time from the suite override or
	// the global default, and carried per task so two suites with
	// different preferences never race on a shared flag.
	SnapshotMode bool `json:"snapshot_mode"`
}
