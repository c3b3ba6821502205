package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/aidanlsb/herald/internal/model"
	"github.com/aidanlsb/herald/internal/sqlutil"
	"github.com/aidanlsb/herald/internal/subscription"
)

func (s *Store) exec(ctx context.Context, b sq.Sqlizer) error {
	stmt, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, stmt, args...)
	return err
}

func upsert(table string) sq.InsertBuilder {
	return sq.Insert(table).Options("OR REPLACE")
}

// PutProject creates or replaces a project.
func (s *Store) PutProject(ctx context.Context, p model.Project) error {
	if p.ID <= 0 {
		return fmt.Errorf("project %q: id must be positive", p.Name)
	}
	return s.exec(ctx, upsert("projects").Columns("id", "name").Values(p.ID, p.Name))
}

// PutUser creates or replaces a user.
func (s *Store) PutUser(ctx context.Context, u model.User) error {
	if u.Login == "" {
		return fmt.Errorf("user login is required")
	}
	return s.exec(ctx, upsert("users").
		Columns("login", "name", "email").
		Values(u.Login, sqlutil.NullString(u.Name), sqlutil.NullString(u.Email)))
}

// PutBuild creates or replaces a build.
func (s *Store) PutBuild(ctx context.Context, b *model.Build) error {
	return s.exec(ctx, buildInsert(b))
}

func buildInsert(b *model.Build) sq.InsertBuilder {
	return upsert("builds").
		Columns("id", "project_id", "number", "job", "status", "version", "branch",
			"submitter", "canceller", "submitted_at", "finished_at").
		Values(b.ID, b.ProjectID, b.Number, b.Job, string(b.Status),
			sqlutil.NullString(b.Version), sqlutil.NullString(b.Branch),
			sqlutil.NullString(b.Submitter), sqlutil.NullString(b.Canceller),
			b.SubmittedAt.Unix(), sqlutil.NullUnix(b.FinishedAt))
}

// PutPullRequest creates or replaces a pull request together with its
// builds. A nil entry in Builds records a required build that does not
// exist yet.
func (s *Store) PutPullRequest(ctx context.Context, p *model.PullRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	run := func(b sq.Sqlizer) error {
		stmt, args, err := b.ToSql()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, stmt, args...)
		return err
	}

	if err := run(upsert("pull_requests").
		Columns("id", "project_id", "number", "title", "status", "source_branch",
			"target_branch", "submitter", "submitted_at").
		Values(p.ID, p.ProjectID, p.Number, p.Title, string(p.Status), p.SourceBranch,
			p.TargetBranch, sqlutil.NullString(p.Submitter), p.SubmittedAt.Unix())); err != nil {
		return fmt.Errorf("pull request %d: %w", p.ID, err)
	}

	if err := run(sq.Delete("pull_request_builds").Where(sq.Eq{"request_id": p.ID})); err != nil {
		return err
	}
	for i, b := range p.Builds {
		var buildID any
		if b != nil {
			if err := run(buildInsert(b)); err != nil {
				return fmt.Errorf("pull request %d build %d: %w", p.ID, b.ID, err)
			}
			buildID = b.ID
		}
		if err := run(sq.Insert("pull_request_builds").
			Columns("request_id", "position", "build_id").
			Values(p.ID, i, buildID)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PutCommit creates or replaces a commit.
func (s *Store) PutCommit(ctx context.Context, c *model.Commit) error {
	return s.exec(ctx, upsert("commits").
		Columns("id", "project_id", "hash", "branch", "message", "author_email",
			"committer_email", "committed_at").
		Values(c.ID, c.ProjectID, c.Hash, c.Branch, c.Message,
			sqlutil.NullString(c.AuthorEmail), sqlutil.NullString(c.CommitterEmail),
			c.CommittedAt.Unix()))
}

// PutIssue creates or replaces an issue.
func (s *Store) PutIssue(ctx context.Context, i *model.Issue) error {
	return s.exec(ctx, upsert("issues").
		Columns("id", "project_id", "number", "title", "state", "milestone",
			"submitter", "assignee", "submitted_at").
		Values(i.ID, i.ProjectID, i.Number, i.Title, string(i.State),
			sqlutil.NullString(i.Milestone), sqlutil.NullString(i.Submitter),
			sqlutil.NullString(i.Assignee), i.SubmittedAt.Unix()))
}

// NamedQuery is a saved query. Owner is empty for shared queries.
// ProjectID 0 is the system catalog for shared queries and the owner's
// global set for personal ones.
type NamedQuery struct {
	Kind      model.Kind
	Owner     string
	ProjectID int64
	Name      string
	Query     string
}

// PutNamedQuery creates or replaces a named query.
func (s *Store) PutNamedQuery(ctx context.Context, q NamedQuery) error {
	if q.Name == "" {
		return fmt.Errorf("named query name is required")
	}
	return s.exec(ctx, upsert("named_queries").
		Columns("kind", "owner", "project_id", "name", "query").
		Values(string(q.Kind), q.Owner, q.ProjectID, q.Name, q.Query))
}

// PutSubscription records a subscription. The user must already exist for
// the subscription to be returned by the subscription listings.
func (s *Store) PutSubscription(ctx context.Context, sub subscription.Subscription) error {
	if sub.User == nil || sub.User.Login == "" {
		return fmt.Errorf("subscription user is required")
	}
	switch sub.Source {
	case subscription.SourceShared, subscription.SourcePersonal:
		if sub.Name == "" {
			return fmt.Errorf("%s subscription of %s needs a query name", sub.Source, sub.User.Login)
		}
	case subscription.SourceAdhoc:
	default:
		return fmt.Errorf("unknown subscription source %q", sub.Source)
	}
	return s.exec(ctx, sq.Insert("query_subscriptions").
		Columns("login", "project_id", "kind", "source", "name", "query").
		Values(sub.User.Login, sub.ProjectID, string(sub.Kind), string(sub.Source),
			sqlutil.NullString(sub.Name), sub.Query))
}
