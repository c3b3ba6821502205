package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/aidanlsb/herald/internal/model"
	"github.com/aidanlsb/herald/internal/sqlutil"
)

var (
	buildColumns = []string{"id", "project_id", "number", "job", "status", "version", "branch",
		"submitter", "canceller", "submitted_at", "finished_at"}
	pullRequestColumns = []string{"id", "project_id", "number", "title", "status", "source_branch",
		"target_branch", "submitter", "submitted_at"}
	commitColumns = []string{"id", "project_id", "hash", "branch", "message", "author_email",
		"committer_email", "committed_at"}
	issueColumns = []string{"id", "project_id", "number", "title", "state", "milestone",
		"submitter", "assignee", "submitted_at"}
)

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(row scanner) (*model.Build, error) {
	var (
		b                                     model.Build
		status                                string
		version, branch, submitter, canceller sql.NullString
		submittedAt                           int64
		finishedAt                            sql.NullInt64
	)
	if err := row.Scan(&b.ID, &b.ProjectID, &b.Number, &b.Job, &status, &version, &branch,
		&submitter, &canceller, &submittedAt, &finishedAt); err != nil {
		return nil, err
	}
	b.Status = model.BuildStatus(status)
	b.Version, b.Branch = version.String, branch.String
	b.Submitter, b.Canceller = submitter.String, canceller.String
	b.SubmittedAt = sqlutil.FromUnix(submittedAt)
	b.FinishedAt = sqlutil.FromNullUnix(finishedAt)
	return &b, nil
}

func scanPullRequest(row scanner) (*model.PullRequest, error) {
	var (
		p           model.PullRequest
		status      string
		submitter   sql.NullString
		submittedAt int64
	)
	if err := row.Scan(&p.ID, &p.ProjectID, &p.Number, &p.Title, &status, &p.SourceBranch,
		&p.TargetBranch, &submitter, &submittedAt); err != nil {
		return nil, err
	}
	p.Status = model.PullRequestStatus(status)
	p.Submitter = submitter.String
	p.SubmittedAt = sqlutil.FromUnix(submittedAt)
	return &p, nil
}

func scanCommit(row scanner) (*model.Commit, error) {
	var (
		c                 model.Commit
		author, committer sql.NullString
		committedAt       int64
	)
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Hash, &c.Branch, &c.Message, &author,
		&committer, &committedAt); err != nil {
		return nil, err
	}
	c.AuthorEmail, c.CommitterEmail = author.String, committer.String
	c.CommittedAt = sqlutil.FromUnix(committedAt)
	return &c, nil
}

func scanIssue(row scanner) (*model.Issue, error) {
	var (
		i                              model.Issue
		state                          string
		milestone, submitter, assignee sql.NullString
		submittedAt                    int64
	)
	if err := row.Scan(&i.ID, &i.ProjectID, &i.Number, &i.Title, &state, &milestone,
		&submitter, &assignee, &submittedAt); err != nil {
		return nil, err
	}
	i.State = model.IssueState(state)
	i.Milestone, i.Submitter, i.Assignee = milestone.String, submitter.String, assignee.String
	i.SubmittedAt = sqlutil.FromUnix(submittedAt)
	return &i, nil
}

func (s *Store) queryRow(ctx context.Context, b sq.SelectBuilder) (*sql.Row, error) {
	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return s.db.QueryRowContext(ctx, stmt, args...), nil
}

// Build loads a build by id.
func (s *Store) Build(ctx context.Context, id int64) (*model.Build, error) {
	row, err := s.queryRow(ctx, sq.Select(buildColumns...).From("builds").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	b, err := scanBuild(row)
	if err != nil {
		return nil, fmt.Errorf("build %d: %w", id, handleSQLError(err))
	}
	return b, nil
}

// PullRequest loads a pull request and its builds in position order.
func (s *Store) PullRequest(ctx context.Context, id int64) (*model.PullRequest, error) {
	row, err := s.queryRow(ctx, sq.Select(pullRequestColumns...).From("pull_requests").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	p, err := scanPullRequest(row)
	if err != nil {
		return nil, fmt.Errorf("pull request %d: %w", id, handleSQLError(err))
	}

	cols := make([]string, len(buildColumns))
	for i, c := range buildColumns {
		cols[i] = "b." + c
	}
	stmt, args, err := sq.Select("prb.build_id IS NULL").
		Columns(cols...).
		From("pull_request_builds prb").
		LeftJoin("builds b ON b.id = prb.build_id").
		Where(sq.Eq{"prb.request_id": id}).
		OrderBy("prb.position").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	p.Builds, err = sqlutil.ScanRows(rows, func(rows *sql.Rows) (*model.Build, error) {
		return scanRequestBuild(rows)
	})
	if err != nil {
		return nil, fmt.Errorf("pull request %d builds: %w", id, err)
	}
	return p, nil
}

// scanRequestBuild scans a pull_request_builds row joined to builds. A
// missing build yields nil.
func scanRequestBuild(rows *sql.Rows) (*model.Build, error) {
	var (
		missing                               bool
		id, projectID, number                 sql.NullInt64
		job, status                           sql.NullString
		version, branch, submitter, canceller sql.NullString
		submittedAt, finishedAt               sql.NullInt64
	)
	if err := rows.Scan(&missing, &id, &projectID, &number, &job, &status, &version, &branch,
		&submitter, &canceller, &submittedAt, &finishedAt); err != nil {
		return nil, err
	}
	if missing || !id.Valid {
		return nil, nil
	}
	return &model.Build{
		ID:          id.Int64,
		ProjectID:   projectID.Int64,
		Number:      number.Int64,
		Job:         job.String,
		Status:      model.BuildStatus(status.String),
		Version:     version.String,
		Branch:      branch.String,
		Submitter:   submitter.String,
		Canceller:   canceller.String,
		SubmittedAt: sqlutil.FromUnix(submittedAt.Int64),
		FinishedAt:  sqlutil.FromNullUnix(finishedAt),
	}, nil
}

// Commit loads a commit by id.
func (s *Store) Commit(ctx context.Context, id int64) (*model.Commit, error) {
	row, err := s.queryRow(ctx, sq.Select(commitColumns...).From("commits").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	c, err := scanCommit(row)
	if err != nil {
		return nil, fmt.Errorf("commit %d: %w", id, handleSQLError(err))
	}
	return c, nil
}

// Issue loads an issue by id.
func (s *Store) Issue(ctx context.Context, id int64) (*model.Issue, error) {
	row, err := s.queryRow(ctx, sq.Select(issueColumns...).From("issues").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	i, err := scanIssue(row)
	if err != nil {
		return nil, fmt.Errorf("issue %d: %w", id, handleSQLError(err))
	}
	return i, nil
}

// Entity loads an entity of any kind by id.
func (s *Store) Entity(ctx context.Context, kind model.Kind, id int64) (model.Entity, error) {
	var (
		e   model.Entity
		err error
	)
	switch kind {
	case model.KindBuild:
		e, err = s.Build(ctx, id)
	case model.KindPullRequest:
		e, err = s.PullRequest(ctx, id)
	case model.KindCommit:
		e, err = s.Commit(ctx, id)
	case model.KindIssue:
		e, err = s.Issue(ctx, id)
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// User loads a user by login.
func (s *Store) User(ctx context.Context, login string) (*model.User, error) {
	row, err := s.queryRow(ctx, sq.Select("login", "name", "email").From("users").Where(sq.Eq{"login": login}))
	if err != nil {
		return nil, err
	}
	var (
		u           model.User
		name, email sql.NullString
	)
	if err := row.Scan(&u.Login, &name, &email); err != nil {
		return nil, fmt.Errorf("user %q: %w", login, handleSQLError(err))
	}
	u.Name, u.Email = name.String, email.String
	return &u, nil
}
