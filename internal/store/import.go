package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aidanlsb/herald/internal/dates"
	"github.com/aidanlsb/herald/internal/model"
	"github.com/aidanlsb/herald/internal/query"
	"github.com/aidanlsb/herald/internal/subscription"
)

// Catalog is the YAML document accepted by ImportCatalog.
type Catalog struct {
	Projects      []model.Project       `yaml:"projects"`
	Users         []model.User          `yaml:"users"`
	Queries       []CatalogQuery        `yaml:"queries"`
	Subscriptions []CatalogSubscription `yaml:"subscriptions"`
	Builds        []CatalogBuild        `yaml:"builds"`
	PullRequests  []CatalogPullRequest  `yaml:"pull_requests"`
	Commits       []CatalogCommit       `yaml:"commits"`
	Issues        []CatalogIssue        `yaml:"issues"`
}

// CatalogQuery is a named query. An owner makes it personal.
type CatalogQuery struct {
	Kind    string `yaml:"kind"`
	Name    string `yaml:"name"`
	Query   string `yaml:"query"`
	Project int64  `yaml:"project,omitempty"`
	Owner   string `yaml:"owner,omitempty"`
}

// CatalogSubscription names exactly one of Shared, Personal or Query.
type CatalogSubscription struct {
	User     string `yaml:"user"`
	Kind     string `yaml:"kind"`
	Project  int64  `yaml:"project,omitempty"`
	Shared   string `yaml:"shared,omitempty"`
	Personal string `yaml:"personal,omitempty"`
	Query    string `yaml:"query,omitempty"`
}

type CatalogBuild struct {
	ID        int64  `yaml:"id"`
	Project   int64  `yaml:"project"`
	Number    int64  `yaml:"number"`
	Job       string `yaml:"job"`
	Status    string `yaml:"status"`
	Version   string `yaml:"version,omitempty"`
	Branch    string `yaml:"branch,omitempty"`
	Submitter string `yaml:"submitter,omitempty"`
	Canceller string `yaml:"canceller,omitempty"`
	Submitted string `yaml:"submitted"`
	Finished  string `yaml:"finished,omitempty"`
}

type CatalogPullRequest struct {
	ID        int64  `yaml:"id"`
	Project   int64  `yaml:"project"`
	Number    int64  `yaml:"number"`
	Title     string `yaml:"title"`
	Status    string `yaml:"status"`
	Source    string `yaml:"source"`
	Target    string `yaml:"target"`
	Submitter string `yaml:"submitter,omitempty"`
	Submitted string `yaml:"submitted"`
	// Builds lists build ids; null marks a required build not created yet.
	Builds []*int64 `yaml:"builds,omitempty"`
}

type CatalogCommit struct {
	ID        int64  `yaml:"id"`
	Project   int64  `yaml:"project"`
	Hash      string `yaml:"hash"`
	Branch    string `yaml:"branch"`
	Message   string `yaml:"message"`
	Author    string `yaml:"author,omitempty"`
	Committer string `yaml:"committer,omitempty"`
	Committed string `yaml:"committed"`
}

type CatalogIssue struct {
	ID        int64  `yaml:"id"`
	Project   int64  `yaml:"project"`
	Number    int64  `yaml:"number"`
	Title     string `yaml:"title"`
	State     string `yaml:"state"`
	Milestone string `yaml:"milestone,omitempty"`
	Submitter string `yaml:"submitter,omitempty"`
	Assignee  string `yaml:"assignee,omitempty"`
	Submitted string `yaml:"submitted"`
}

// ImportStats counts imported records.
type ImportStats struct {
	Projects      int `json:"projects"`
	Users         int `json:"users"`
	Queries       int `json:"queries"`
	Subscriptions int `json:"subscriptions"`
	Entities      int `json:"entities"`
}

// ErrInvalidCatalog wraps every validation failure of ImportCatalog.
var ErrInvalidCatalog = errors.New("invalid catalog")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCatalog, fmt.Sprintf(format, args...))
}

// ImportCatalog reads a YAML catalog and stores its contents. Query texts
// are parsed before they are saved. Records are written in document order,
// so a failure leaves earlier records in place.
func (s *Store) ImportCatalog(ctx context.Context, r io.Reader) (ImportStats, error) {
	var stats ImportStats

	var c Catalog
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		return stats, invalid("%v", err)
	}

	for _, p := range c.Projects {
		if err := s.PutProject(ctx, p); err != nil {
			return stats, err
		}
		stats.Projects++
	}
	for _, u := range c.Users {
		if err := s.PutUser(ctx, u); err != nil {
			return stats, err
		}
		stats.Users++
	}

	for _, q := range c.Queries {
		kind, err := model.ParseKind(q.Kind)
		if err != nil {
			return stats, invalid("query %q: %v", q.Name, err)
		}
		if _, err := query.Parse(kind, q.Query, query.ParseOptions{}); err != nil {
			return stats, invalid("query %q: %v", q.Name, err)
		}
		if err := s.PutNamedQuery(ctx, NamedQuery{
			Kind: kind, Owner: q.Owner, ProjectID: q.Project, Name: q.Name, Query: q.Query,
		}); err != nil {
			return stats, err
		}
		stats.Queries++
	}

	for _, cs := range c.Subscriptions {
		sub, err := catalogSubscription(cs)
		if err != nil {
			return stats, err
		}
		if err := s.PutSubscription(ctx, sub); err != nil {
			return stats, err
		}
		stats.Subscriptions++
	}

	n, err := s.importEntities(ctx, c)
	stats.Entities = n
	return stats, err
}

func catalogSubscription(cs CatalogSubscription) (subscription.Subscription, error) {
	kind, err := model.ParseKind(cs.Kind)
	if err != nil {
		return subscription.Subscription{}, invalid("subscription of %s: %v", cs.User, err)
	}
	sub := subscription.Subscription{
		User:      &model.User{Login: cs.User},
		ProjectID: cs.Project,
		Kind:      kind,
	}

	set := 0
	if cs.Shared != "" {
		sub.Source, sub.Name = subscription.SourceShared, cs.Shared
		set++
	}
	if cs.Personal != "" {
		sub.Source, sub.Name = subscription.SourcePersonal, cs.Personal
		set++
	}
	if cs.Query != "" {
		if _, err := query.Parse(kind, cs.Query, query.ParseOptions{}); err != nil {
			return sub, invalid("subscription of %s: %v", cs.User, err)
		}
		sub.Source, sub.Query = subscription.SourceAdhoc, cs.Query
		set++
	}
	if set != 1 {
		return sub, invalid("subscription of %s must set exactly one of shared, personal or query", cs.User)
	}
	return sub, nil
}

func (s *Store) importEntities(ctx context.Context, c Catalog) (int, error) {
	n := 0
	builds := make(map[int64]*model.Build, len(c.Builds))
	for _, cb := range c.Builds {
		b, err := cb.build()
		if err != nil {
			return n, err
		}
		if err := s.PutBuild(ctx, b); err != nil {
			return n, err
		}
		builds[b.ID] = b
		n++
	}

	for _, cp := range c.PullRequests {
		submitted, err := timestamp("pull request", cp.ID, cp.Submitted)
		if err != nil {
			return n, err
		}
		p := &model.PullRequest{
			ID: cp.ID, ProjectID: cp.Project, Number: cp.Number, Title: cp.Title,
			Status: model.PullRequestStatus(cp.Status), SourceBranch: cp.Source,
			TargetBranch: cp.Target, Submitter: cp.Submitter, SubmittedAt: submitted,
		}
		for _, id := range cp.Builds {
			if id == nil {
				p.Builds = append(p.Builds, nil)
				continue
			}
			b, ok := builds[*id]
			if !ok {
				if b, err = s.Build(ctx, *id); err != nil {
					return n, invalid("pull request %d: build %d: %v", cp.ID, *id, err)
				}
			}
			p.Builds = append(p.Builds, b)
		}
		if err := s.PutPullRequest(ctx, p); err != nil {
			return n, err
		}
		n++
	}

	for _, cc := range c.Commits {
		committed, err := timestamp("commit", cc.ID, cc.Committed)
		if err != nil {
			return n, err
		}
		if err := s.PutCommit(ctx, &model.Commit{
			ID: cc.ID, ProjectID: cc.Project, Hash: cc.Hash, Branch: cc.Branch, Message: cc.Message,
			AuthorEmail: cc.Author, CommitterEmail: cc.Committer, CommittedAt: committed,
		}); err != nil {
			return n, err
		}
		n++
	}

	for _, ci := range c.Issues {
		submitted, err := timestamp("issue", ci.ID, ci.Submitted)
		if err != nil {
			return n, err
		}
		if err := s.PutIssue(ctx, &model.Issue{
			ID: ci.ID, ProjectID: ci.Project, Number: ci.Number, Title: ci.Title,
			State: model.IssueState(ci.State), Milestone: ci.Milestone,
			Submitter: ci.Submitter, Assignee: ci.Assignee, SubmittedAt: submitted,
		}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (cb CatalogBuild) build() (*model.Build, error) {
	submitted, err := timestamp("build", cb.ID, cb.Submitted)
	if err != nil {
		return nil, err
	}
	b := &model.Build{
		ID: cb.ID, ProjectID: cb.Project, Number: cb.Number, Job: cb.Job,
		Status: model.BuildStatus(cb.Status), Version: cb.Version, Branch: cb.Branch,
		Submitter: cb.Submitter, Canceller: cb.Canceller, SubmittedAt: submitted,
	}
	if cb.Finished != "" {
		finished, err := timestamp("build", cb.ID, cb.Finished)
		if err != nil {
			return nil, err
		}
		b.FinishedAt = &finished
	}
	return b, nil
}

func timestamp(what string, id int64, s string) (time.Time, error) {
	t, err := dates.ParseTimestamp(s)
	if err != nil {
		return time.Time{}, invalid("%s %d: %v", what, id, err)
	}
	return t, nil
}
