package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCatalogSnapshot refreshes the product listing and its snapshot.
	TaskCatalogSnapshot = "catalog:snapshot"
	// TaskReportsWarmup pre-builds the lineage report into the cache.
	TaskReportsWarmup = "reports:warmup"

	// DefaultWarmupBreakdowns is how many recent orders a scheduled warmup
	// pre-builds.
	DefaultWarmupBreakdowns = 20
)

// CatalogSnapshotPayload configures a catalog refresh.
type CatalogSnapshotPayload struct {
	// Invalidate bumps the fetch cache before refreshing.
	Invalidate bool `json:"invalidate"`
}

// ReportsWarmupPayload configures a cache warmup.
type ReportsWarmupPayload struct {
	// Fresh bumps the cache before rebuilding.
	Fresh bool `json:"fresh"`
	// Breakdowns is how many of the latest orders get their breakdown warmed.
	Breakdowns int `json:"breakdowns"`
}

// NewCatalogSnapshotTask constructs an Asynq task.
func NewCatalogSnapshotTask(payload CatalogSnapshotPayload) (*asynq.Task, error) {
	return newTask(TaskCatalogSnapshot, payload)
}

// NewReportsWarmupTask constructs an Asynq task.
func NewReportsWarmupTask(payload ReportsWarmupPayload) (*asynq.Task, error) {
	if payload.Breakdowns < 0 {
		return nil, fmt.Errorf("jobs: breakdowns must not be negative")
	}
	return newTask(TaskReportsWarmup, payload)
}

func newTask(taskType string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data, asynq.Queue(QueueDefault)), nil
}

// DefaultTask builds a task of the given type with its default payload.
func DefaultTask(taskType string) (*asynq.Task, error) {
	switch taskType {
	case TaskCatalogSnapshot:
		return NewCatalogSnapshotTask(CatalogSnapshotPayload{})
	case TaskReportsWarmup:
		return NewReportsWarmupTask(ReportsWarmupPayload{Breakdowns: DefaultWarmupBreakdowns})
	default:
		return nil, fmt.Errorf("jobs: unsupported task %q", taskType)
	}
}
