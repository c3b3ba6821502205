package subscription

import (
	"fmt"

	"github.com/aidanlsb/herald/internal/model"
)

// Event is a change to an entity that subscribers may want to hear about.
type Event interface {
	// Subject is the entity queries are matched against.
	Subject() model.Entity
	// ProjectID is the project owning the subject.
	ProjectID() int64
	// Excluded reports whether the event is skipped by fan-out entirely.
	Excluded() bool
	String() string
}

type BuildEventType string

const (
	BuildSubmitted BuildEventType = "submitted"
	BuildStarted   BuildEventType = "started"
	BuildFinished  BuildEventType = "finished"
	BuildUpdated   BuildEventType = "updated" // metadata only, never notified
)

type BuildEvent struct {
	Type  BuildEventType
	Build *model.Build
}

func (e *BuildEvent) Subject() model.Entity { return e.Build }
func (e *BuildEvent) ProjectID() int64      { return e.Build.ProjectID }
func (e *BuildEvent) Excluded() bool        { return e.Type == BuildUpdated }
func (e *BuildEvent) String() string {
	return fmt.Sprintf("build %s %s", e.Build.Reference(), e.Type)
}

// CommitEvent reports a ref moving to a new commit.
type CommitEvent struct {
	Ref     string
	OldHash string
	NewHash string
	Commit  *model.Commit
}

func (e *CommitEvent) Subject() model.Entity { return e.Commit }
func (e *CommitEvent) ProjectID() int64      { return e.Commit.ProjectID }

// Excluded reports ref deletions, whose new hash is all zeros.
func (e *CommitEvent) Excluded() bool { return e.NewHash == model.ZeroHash }

func (e *CommitEvent) String() string {
	return fmt.Sprintf("commit %s on %s", e.Commit.ShortHash(), e.Ref)
}

type PullRequestEventType string

const (
	PullRequestOpened       PullRequestEventType = "opened"
	PullRequestUpdated      PullRequestEventType = "updated"
	PullRequestMerged       PullRequestEventType = "merged"
	PullRequestDiscarded    PullRequestEventType = "discarded"
	PullRequestBuildChanged PullRequestEventType = "build_changed"
)

type PullRequestEvent struct {
	Type    PullRequestEventType
	Request *model.PullRequest
}

func (e *PullRequestEvent) Subject() model.Entity { return e.Request }
func (e *PullRequestEvent) ProjectID() int64      { return e.Request.ProjectID }
func (e *PullRequestEvent) Excluded() bool        { return e.Type == PullRequestUpdated }
func (e *PullRequestEvent) String() string {
	return fmt.Sprintf("pull request #%d %s", e.Request.Number, e.Type)
}

type IssueEventType string

const (
	IssueOpened  IssueEventType = "opened"
	IssueChanged IssueEventType = "changed"
	IssueClosed  IssueEventType = "closed"
	IssueTouched IssueEventType = "touched" // read or viewed, never notified
)

type IssueEvent struct {
	Type  IssueEventType
	Issue *model.Issue
}

func (e *IssueEvent) Subject() model.Entity { return e.Issue }
func (e *IssueEvent) ProjectID() int64      { return e.Issue.ProjectID }
func (e *IssueEvent) Excluded() bool        { return e.Type == IssueTouched }
func (e *IssueEvent) String() string {
	return fmt.Sprintf("issue #%d %s", e.Issue.Number, e.Type)
}

// NewEvent builds the event of the given type for a loaded entity. The
// type is ignored for commits.
func NewEvent(entity model.Entity, eventType string) (Event, error) {
	switch e := entity.(type) {
	case *model.Build:
		t := BuildEventType(eventType)
		switch t {
		case BuildSubmitted, BuildStarted, BuildFinished, BuildUpdated:
			return &BuildEvent{Type: t, Build: e}, nil
		}
	case *model.PullRequest:
		t := PullRequestEventType(eventType)
		switch t {
		case PullRequestOpened, PullRequestUpdated, PullRequestMerged, PullRequestDiscarded, PullRequestBuildChanged:
			return &PullRequestEvent{Type: t, Request: e}, nil
		}
	case *model.Issue:
		t := IssueEventType(eventType)
		switch t {
		case IssueOpened, IssueChanged, IssueClosed, IssueTouched:
			return &IssueEvent{Type: t, Issue: e}, nil
		}
	case *model.Commit:
		return &CommitEvent{Ref: "refs/heads/" + e.Branch, NewHash: e.Hash, Commit: e}, nil
	default:
		return nil, fmt.Errorf("no events for %T", entity)
	}
	return nil, fmt.Errorf("unknown %s event type %q", entity.EntityKind(), eventType)
}

// EventTypes lists the event types accepted by NewEvent for a kind.
func EventTypes(kind model.Kind) []string {
	switch kind {
	case model.KindBuild:
		return []string{string(BuildSubmitted), string(BuildStarted), string(BuildFinished), string(BuildUpdated)}
	case model.KindPullRequest:
		return []string{string(PullRequestOpened), string(PullRequestUpdated), string(PullRequestMerged),
			string(PullRequestDiscarded), string(PullRequestBuildChanged)}
	case model.KindIssue:
		return []string{string(IssueOpened), string(IssueChanged), string(IssueClosed), string(IssueTouched)}
	}
	return nil
}
