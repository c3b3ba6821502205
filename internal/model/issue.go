package model

import (
	"fmt"
	"time"
)

// IssueState is the state of an issue.
type IssueState string

const (
	IssueOpen   IssueState = "open"
	IssueClosed IssueState = "closed"
)

// IssueStates lists every issue state.
var IssueStates = []IssueState{IssueOpen, IssueClosed}

// Issue is a tracked issue.
type Issue struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	Number      int64      `json:"number"`
	Title       string     `json:"title"`
	State       IssueState `json:"state"`
	Submitter   string     `json:"submitter,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	Milestone   string     `json:"milestone,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
}

func (i *Issue) EntityKind() Kind { return KindIssue }
func (i *Issue) EntityID() int64  { return i.ID }

// Reference returns the human-facing reference, e.g. "#7".
func (i *Issue) Reference() string {
	return fmt.Sprintf("#%d", i.Number)
}
