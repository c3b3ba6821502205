package model

import (
	"fmt"
	"time"
)

// BuildStatus is the lifecycle state of a build.
type BuildStatus string

const (
	BuildWaiting   BuildStatus = "waiting"
	BuildPending   BuildStatus = "pending"
	BuildRunning   BuildStatus = "running"
	BuildSucceeded BuildStatus = "succeeded"
	BuildFailed    BuildStatus = "failed"
	BuildInError   BuildStatus = "in_error"
	BuildCancelled BuildStatus = "cancelled"
	BuildTimedOut  BuildStatus = "timed_out"
)

// BuildStatuses lists every build status.
var BuildStatuses = []BuildStatus{
	BuildWaiting, BuildPending, BuildRunning, BuildSucceeded,
	BuildFailed, BuildInError, BuildCancelled, BuildTimedOut,
}

// Finished reports whether the status is terminal.
func (s BuildStatus) Finished() bool {
	switch s {
	case BuildSucceeded, BuildFailed, BuildInError, BuildCancelled, BuildTimedOut:
		return true
	}
	return false
}

// Build is one run of a CI job.
type Build struct {
	ID          int64       `json:"id"`
	ProjectID   int64       `json:"project_id"`
	Number      int64       `json:"number"`
	Job         string      `json:"job"`
	Status      BuildStatus `json:"status"`
	Version     string      `json:"version,omitempty"`
	Branch      string      `json:"branch,omitempty"`
	Submitter   string      `json:"submitter,omitempty"`
	Canceller   string      `json:"canceller,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

func (b *Build) EntityKind() Kind { return KindBuild }
func (b *Build) EntityID() int64  { return b.ID }

// Reference returns the human-facing build reference, e.g. "#42 (ci)".
func (b *Build) Reference() string {
	return fmt.Sprintf("#%d (%s)", b.Number, b.Job)
}
