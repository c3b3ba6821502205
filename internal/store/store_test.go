package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aidanlsb/herald/internal/model"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func atPtr(s string) *time.Time {
	t := at(s)
	return &t
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var (
	alice = &model.User{Login: "alice", Name: "Alice", Email: "alice@example.com"}
	bob   = &model.User{Login: "bob", Name: "Bob", Email: "bob@example.com"}
)

// dataset is a small history spread over two projects. It exercises NULL
// columns, mixed case text, LIKE metacharacters and pull requests with
// missing builds.
type dataset struct {
	builds       []*model.Build
	pullRequests []*model.PullRequest
	commits      []*model.Commit
	issues       []*model.Issue
}

func newDataset() dataset {
	b1 := &model.Build{ID: 1, ProjectID: 1, Number: 1, Job: "CI-Linux", Status: model.BuildSucceeded,
		Version: "1.0", Branch: "main", Submitter: "alice",
		SubmittedAt: at("2024-01-01T10:00:00Z"), FinishedAt: atPtr("2024-01-01T11:00:00Z")}
	b2 := &model.Build{ID: 2, ProjectID: 1, Number: 2, Job: "ci-windows", Status: model.BuildFailed,
		Branch: "main", Submitter: "bob",
		SubmittedAt: at("2024-01-02T10:00:00Z"), FinishedAt: atPtr("2024-01-02T12:00:00Z")}
	b3 := &model.Build{ID: 3, ProjectID: 1, Number: 3, Job: "release_50%", Status: model.BuildRunning,
		Submitter: "alice", SubmittedAt: at("2024-01-03T00:00:00Z")}
	b4 := &model.Build{ID: 4, ProjectID: 2, Number: 1, Job: "CI-Linux", Status: model.BuildCancelled,
		Submitter: "carol", Canceller: "alice",
		SubmittedAt: at("2024-01-02T00:00:00Z"), FinishedAt: atPtr("2024-01-02T00:30:00Z")}
	b5 := &model.Build{ID: 5, ProjectID: 2, Number: 2, Job: "nightly", Status: model.BuildTimedOut,
		SubmittedAt: at("2024-01-04T00:00:00Z"), FinishedAt: atPtr("2024-01-04T03:00:00Z")}

	return dataset{
		builds: []*model.Build{b1, b2, b3, b4, b5},
		pullRequests: []*model.PullRequest{
			{ID: 10, ProjectID: 1, Number: 7, Title: "Fix Flaky Tests", Status: model.PullRequestOpen,
				SourceBranch: "feature/a", TargetBranch: "main", Submitter: "alice",
				SubmittedAt: at("2024-01-02T08:00:00Z"), Builds: []*model.Build{b1, b2}},
			{ID: 11, ProjectID: 1, Number: 8, Title: "Add docs", Status: model.PullRequestMerged,
				SourceBranch: "docs", TargetBranch: "main", Submitter: "bob",
				SubmittedAt: at("2024-01-01T08:00:00Z"), Builds: []*model.Build{b1, nil}},
			{ID: 12, ProjectID: 2, Number: 1, Title: "Speed up CI", Status: model.PullRequestDiscarded,
				SourceBranch: "perf", TargetBranch: "main",
				SubmittedAt: at("2024-01-03T08:00:00Z")},
			{ID: 13, ProjectID: 1, Number: 9, Title: "WIP", Status: model.PullRequestOpen,
				SourceBranch: "wip", TargetBranch: "dev", Submitter: "alice",
				SubmittedAt: at("2024-01-04T08:00:00Z"), Builds: []*model.Build{b3}},
		},
		commits: []*model.Commit{
			{ID: 20, ProjectID: 1, Hash: "a1b2c3d4e5", Branch: "main", Message: "Fix build",
				AuthorEmail: "alice@example.com", CommitterEmail: "bob@example.com",
				CommittedAt: at("2024-01-01T08:00:00Z")},
			{ID: 21, ProjectID: 1, Hash: "b2c3d4e5f6", Branch: "dev", Message: "update README",
				AuthorEmail: "bob@example.com", CommittedAt: at("2024-01-05T00:00:00Z")},
			{ID: 22, ProjectID: 2, Hash: "c3d4e5f6a7", Branch: "main", Message: "fix: 100% coverage",
				CommitterEmail: "alice@example.com", CommittedAt: at("2024-01-03T12:00:00Z")},
		},
		issues: []*model.Issue{
			{ID: 30, ProjectID: 1, Number: 1, Title: "Crash on start", State: model.IssueOpen,
				Milestone: "v1", Submitter: "alice", Assignee: "bob", SubmittedAt: at("2024-01-01T00:00:00Z")},
			{ID: 31, ProjectID: 1, Number: 2, Title: "crash in parser", State: model.IssueClosed,
				Submitter: "bob", Assignee: "alice", SubmittedAt: at("2024-01-02T00:00:00Z")},
			{ID: 32, ProjectID: 2, Number: 1, Title: "Docs", State: model.IssueOpen,
				SubmittedAt: at("2024-01-03T00:00:00Z")},
		},
	}
}

func (d dataset) entities(kind model.Kind) []model.Entity {
	var out []model.Entity
	switch kind {
	case model.KindBuild:
		for _, b := range d.builds {
			out = append(out, b)
		}
	case model.KindPullRequest:
		for _, p := range d.pullRequests {
			out = append(out, p)
		}
	case model.KindCommit:
		for _, c := range d.commits {
			out = append(out, c)
		}
	case model.KindIssue:
		for _, i := range d.issues {
			out = append(out, i)
		}
	}
	return out
}

func seed(t *testing.T, s *Store) dataset {
	t.Helper()
	ctx := context.Background()
	d := newDataset()

	for _, p := range []model.Project{{ID: 1, Name: "herald"}, {ID: 2, Name: "docs"}} {
		if err := s.PutProject(ctx, p); err != nil {
			t.Fatalf("PutProject: %v", err)
		}
	}
	for _, u := range []*model.User{alice, bob} {
		if err := s.PutUser(ctx, *u); err != nil {
			t.Fatalf("PutUser: %v", err)
		}
	}
	for _, b := range d.builds {
		if err := s.PutBuild(ctx, b); err != nil {
			t.Fatalf("PutBuild %d: %v", b.ID, err)
		}
	}
	for _, p := range d.pullRequests {
		if err := s.PutPullRequest(ctx, p); err != nil {
			t.Fatalf("PutPullRequest %d: %v", p.ID, err)
		}
	}
	for _, c := range d.commits {
		if err := s.PutCommit(ctx, c); err != nil {
			t.Fatalf("PutCommit %d: %v", c.ID, err)
		}
	}
	for _, i := range d.issues {
		if err := s.PutIssue(ctx, i); err != nil {
			t.Fatalf("PutIssue %d: %v", i.ID, err)
		}
	}
	return d
}

func TestOpenCreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "herald.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.PutProject(context.Background(), model.Project{ID: 1, Name: "herald"}); err != nil {
		t.Fatalf("PutProject: %v", err)
	}
	s.Close()

	// Reopening keeps the data and the schema version.
	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	var version, projects int
	if err := s.DB().QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, CurrentSchemaVersion)
	}
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM projects`).Scan(&projects); err != nil {
		t.Fatal(err)
	}
	if projects != 1 {
		t.Errorf("projects = %d, want 1", projects)
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "herald.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.DB().Exec(`PRAGMA user_version = 99`); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("expected error opening a newer schema")
	}
}

func TestPrepareDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"herald.db", "herald.db?_pragma=journal_mode%28WAL%29&_pragma=synchronous%28NORMAL%29&_pragma=busy_timeout%285000%29&_txlock=immediate"},
		{"herald.db?_pragma=busy_timeout(100)&_txlock=deferred", "herald.db?_pragma=busy_timeout%28100%29&_pragma=journal_mode%28WAL%29&_pragma=synchronous%28NORMAL%29&_txlock=deferred"},
	}
	for _, tt := range tests {
		got, err := prepareDSN(tt.path)
		if err != nil {
			t.Fatalf("prepareDSN(%q): %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("prepareDSN(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestOpenConfiguresEveryConnection(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "herald.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	// Hold the first connection so the pool has to open a second one.
	first, err := s.DB().Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	second, err := s.DB().Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	for i, conn := range []*sql.Conn{first, second} {
		var timeout int
		var mode string
		if err := conn.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout); err != nil {
			t.Fatal(err)
		}
		if err := conn.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&mode); err != nil {
			t.Fatal(err)
		}
		if timeout != 5000 || mode != "wal" {
			t.Errorf("connection %d: busy_timeout = %d, journal_mode = %q", i, timeout, mode)
		}
	}
}

func TestLoadersRoundTrip(t *testing.T) {
	s := newTestStore(t)
	d := seed(t, s)
	ctx := context.Background()

	for _, kind := range model.Kinds {
		for _, want := range d.entities(kind) {
			got, err := s.Entity(ctx, kind, want.EntityID())
			if err != nil {
				t.Fatalf("Entity(%s, %d): %v", kind, want.EntityID(), err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("%s %d mismatch (-want +got):\n%s", kind, want.EntityID(), diff)
			}
		}
	}

	u, err := s.User(ctx, "alice")
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if diff := cmp.Diff(alice, u); diff != "" {
		t.Errorf("user mismatch (-want +got):\n%s", diff)
	}
}

func TestPutPullRequestReplacesBuilds(t *testing.T) {
	s := newTestStore(t)
	d := seed(t, s)
	ctx := context.Background()

	p := d.pullRequests[0]
	p.Builds = []*model.Build{nil, d.builds[2]}
	if err := s.PutPullRequest(ctx, p); err != nil {
		t.Fatalf("PutPullRequest: %v", err)
	}
	got, err := s.PullRequest(ctx, p.ID)
	if err != nil {
		t.Fatalf("PullRequest: %v", err)
	}
	if len(got.Builds) != 2 || got.Builds[0] != nil || got.Builds[1] == nil || got.Builds[1].ID != 3 {
		t.Errorf("builds = %+v, want [nil, build 3]", got.Builds)
	}
}

func TestNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, kind := range model.Kinds {
		if _, err := s.Entity(ctx, kind, 404); !errors.Is(err, ErrNotFound) {
			t.Errorf("Entity(%s) error = %v, want ErrNotFound", kind, err)
		}
	}
	if _, err := s.User(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("User error = %v, want ErrNotFound", err)
	}
	if _, err := s.Entity(ctx, model.Kind("widget"), 1); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestPutValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutProject(ctx, model.Project{Name: "zero"}); err == nil {
		t.Error("expected error for project without id")
	}
	if err := s.PutUser(ctx, model.User{Name: "anonymous"}); err == nil {
		t.Error("expected error for user without login")
	}
	if err := s.PutNamedQuery(ctx, NamedQuery{Kind: model.KindBuild, Query: "failed"}); err == nil {
		t.Error("expected error for unnamed query")
	}
}
