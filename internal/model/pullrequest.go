package model

import (
	"fmt"
	"time"
)

// PullRequestStatus is the state of a pull request.
type PullRequestStatus string

const (
	PullRequestOpen      PullRequestStatus = "open"
	PullRequestMerged    PullRequestStatus = "merged"
	PullRequestDiscarded PullRequestStatus = "discarded"
)

// PullRequestStatuses lists every pull request status.
var PullRequestStatuses = []PullRequestStatus{PullRequestOpen, PullRequestMerged, PullRequestDiscarded}

// PullRequest is a request to merge a source branch into a target branch.
type PullRequest struct {
	ID           int64             `json:"id"`
	ProjectID    int64             `json:"project_id"`
	Number       int64             `json:"number"`
	Title        string            `json:"title"`
	Status       PullRequestStatus `json:"status"`
	SourceBranch string            `json:"source_branch"`
	TargetBranch string            `json:"target_branch"`
	Submitter    string            `json:"submitter,omitempty"`
	SubmittedAt  time.Time         `json:"submitted_at"`

	// Builds are the builds required by the request. A nil element is a
	// requirement whose build has not been created yet.
	Builds []*Build `json:"builds,omitempty"`
}

func (p *PullRequest) EntityKind() Kind { return KindPullRequest }
func (p *PullRequest) EntityID() int64  { return p.ID }

// Reference returns the human-facing reference, e.g. "!12".
func (p *PullRequest) Reference() string {
	return fmt.Sprintf("!%d", p.Number)
}
