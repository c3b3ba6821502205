package subscription

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aidanlsb/herald/internal/identity"
	"github.com/aidanlsb/herald/internal/logger"
	"github.com/aidanlsb/herald/internal/model"
	"github.com/aidanlsb/herald/internal/query"
)

type fakeStore struct {
	project map[int64][]Subscription
	global  []Subscription
	err     error
}

func (s *fakeStore) ProjectSubscriptions(_ context.Context, kind model.Kind, projectID int64) ([]Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	return filterKind(s.project[projectID], kind), nil
}

func (s *fakeStore) GlobalSubscriptions(_ context.Context, kind model.Kind) ([]Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	return filterKind(s.global, kind), nil
}

func filterKind(subs []Subscription, kind model.Kind) []Subscription {
	var out []Subscription
	for _, s := range subs {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

type catalogKey struct {
	login     string
	projectID int64
	name      string
}

type fakeCatalog struct {
	shared   map[catalogKey]string // login empty
	personal map[catalogKey]string
}

func (c *fakeCatalog) SharedQuery(_ context.Context, _ model.Kind, projectID int64, name string) (string, bool, error) {
	q, ok := c.shared[catalogKey{projectID: projectID, name: name}]
	return q, ok, nil
}

func (c *fakeCatalog) PersonalQuery(_ context.Context, _ model.Kind, login string, projectID int64, name string) (string, bool, error) {
	q, ok := c.personal[catalogKey{login: login, projectID: projectID, name: name}]
	return q, ok, nil
}

var (
	u1 = &model.User{Login: "u1", Email: "u1@example.com"}
	u2 = &model.User{Login: "u2", Email: "u2@example.com"}
	u3 = &model.User{Login: "u3", Email: "u3@example.com"}
)

func adhoc(u *model.User, projectID int64, kind model.Kind, q string) Subscription {
	return Subscription{User: u, ProjectID: projectID, Kind: kind, Source: SourceAdhoc, Query: q}
}

func failedBuild() *BuildEvent {
	return &BuildEvent{Type: BuildFinished, Build: &model.Build{
		ID: 42, ProjectID: 1, Number: 42, Job: "ci", Status: model.BuildFailed, Submitter: "u2",
	}}
}

func TestMatchFailedBuildEndToEnd(t *testing.T) {
	store := &fakeStore{project: map[int64][]Subscription{
		1: {
			adhoc(u1, 1, model.KindBuild, "status is failed"),
			adhoc(u2, 1, model.KindBuild, "status is succeeded"),
			adhoc(u3, 1, model.KindBuild, "status is >>bad<<"),
		},
	}}
	log, logs := logger.NewObserverLogger("debug")
	m := NewMatcher(store, &fakeCatalog{}, WithLogger(log))

	res, err := m.Match(context.Background(), failedBuild())
	require.NoError(t, err)
	require.Equal(t, []string{"u1@example.com"}, res.Recipients)

	require.Len(t, res.Outcomes, 3)
	require.Equal(t, Matched, res.Outcomes[0].Status)
	require.Equal(t, NotMatched, res.Outcomes[1].Status)
	require.Equal(t, Failed, res.Outcomes[2].Status)

	var perr *query.ParseError
	require.True(t, errors.As(res.Outcomes[2].Err, &perr))

	failures := logs.FilterMessage("error processing subscription").All()
	require.Len(t, failures, 1)
	fields := failures[0].ContextMap()
	require.Equal(t, "u3", fields["user"])
	require.Equal(t, "status is >>bad<<", fields["query"])
	require.Equal(t, int64(42), fields["subject"])
	require.Contains(t, fields, "error")
	require.Contains(t, fields, "event")
}

func TestMatchProjectlessSubjectRunsGlobalPhaseOnce(t *testing.T) {
	global := []Subscription{
		adhoc(u1, 0, model.KindBuild, "status is succeeded"),
		adhoc(u2, 0, model.KindBuild, "status is >>bad<<"),
		adhoc(u3, 0, model.KindBuild, "failed"),
	}
	// Project 0 is where the store keeps global subscriptions.
	store := &fakeStore{project: map[int64][]Subscription{0: global}, global: global}
	log, logs := logger.NewObserverLogger("debug")
	m := NewMatcher(store, &fakeCatalog{}, WithLogger(log))

	ev := failedBuild()
	ev.Build.ProjectID = 0
	res, err := m.Match(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, []string{"u3@example.com"}, res.Recipients)

	require.Len(t, res.Outcomes, 3)
	for _, o := range res.Outcomes {
		require.Equal(t, PhaseGlobal, o.Phase)
	}
	require.Equal(t, 1, logs.FilterMessage("error processing subscription").Len())
}

func TestMatchFirstMatchWins(t *testing.T) {
	store := &fakeStore{
		project: map[int64][]Subscription{1: {
			adhoc(u1, 1, model.KindBuild, "failed"),
			adhoc(u1, 1, model.KindBuild, "job is ci"),
			adhoc(u1, 1, model.KindBuild, "status is >>bad<<"),
		}},
		global: []Subscription{
			adhoc(u1, 0, model.KindBuild, "failed"),
			adhoc(u2, 0, model.KindBuild, "submitted by me"),
		},
	}
	m := NewMatcher(store, &fakeCatalog{})

	res, err := m.Match(context.Background(), failedBuild())
	require.NoError(t, err)
	require.Equal(t, []string{"u1@example.com", "u2@example.com"}, res.Recipients)

	// u1's project candidates are ordered by query text: "failed" matches
	// first and nothing else of u1's runs, in either phase.
	require.Len(t, res.Outcomes, 2)
	require.Equal(t, Outcome{User: "u1", Phase: PhaseProject, Source: SourceAdhoc, Query: "failed", Status: Matched}, res.Outcomes[0])
	require.Equal(t, "u2", res.Outcomes[1].User)
	require.Equal(t, PhaseGlobal, res.Outcomes[1].Phase)
	require.Equal(t, Matched, res.Outcomes[1].Status)
}

func TestMatchFailureDoesNotStopUser(t *testing.T) {
	store := &fakeStore{project: map[int64][]Subscription{1: {
		adhoc(u1, 1, model.KindBuild, "frobnicate"),
		adhoc(u1, 1, model.KindBuild, "status is failed"),
	}}}
	m := NewMatcher(store, &fakeCatalog{})

	res, err := m.Match(context.Background(), failedBuild())
	require.NoError(t, err)
	require.Equal(t, []string{"u1@example.com"}, res.Recipients)
	require.Len(t, res.Outcomes, 2)
	require.Equal(t, Failed, res.Outcomes[0].Status)
	require.Equal(t, Matched, res.Outcomes[1].Status)
}

func TestMatchResolvesNamedQueries(t *testing.T) {
	store := &fakeStore{
		project: map[int64][]Subscription{1: {
			{User: u1, ProjectID: 1, Kind: model.KindBuild, Source: SourceShared, Name: "broken"},
			{User: u2, ProjectID: 1, Kind: model.KindBuild, Source: SourceShared, Name: "fallback"},
			{User: u3, ProjectID: 1, Kind: model.KindBuild, Source: SourcePersonal, Name: "mine"},
		}},
		global: []Subscription{
			{User: u3, Kind: model.KindBuild, Source: SourceShared, Name: "missing"},
		},
	}
	catalog := &fakeCatalog{
		shared: map[catalogKey]string{
			{projectID: 1, name: "broken"}:   "failed",
			{projectID: 1, name: "fallback"}: "successful",
			{projectID: 0, name: "fallback"}: "failed",
		},
		personal: map[catalogKey]string{
			{login: "u3", projectID: 1, name: "mine"}: "job is ci",
		},
	}
	log, logs := logger.NewObserverLogger("debug")
	m := NewMatcher(store, catalog, WithLogger(log))

	res, err := m.Match(context.Background(), failedBuild())
	require.NoError(t, err)

	// u2's "fallback" exists in the project catalog, so the system entry is
	// never consulted.
	require.Equal(t, []string{"u1@example.com", "u3@example.com"}, res.Recipients)
	require.Len(t, res.Outcomes, 3)
	require.Equal(t, "successful", res.Outcomes[1].Query)
	require.Equal(t, 1, logs.FilterMessage("unresolved named query").Len())
}

func TestMatchSystemCatalogFallback(t *testing.T) {
	store := &fakeStore{project: map[int64][]Subscription{1: {
		{User: u1, ProjectID: 1, Kind: model.KindBuild, Source: SourceShared, Name: "red"},
	}}}
	catalog := &fakeCatalog{shared: map[catalogKey]string{{projectID: 0, name: "red"}: "failed"}}

	res, err := NewMatcher(store, catalog).Match(context.Background(), failedBuild())
	require.NoError(t, err)
	require.Equal(t, []string{"u1@example.com"}, res.Recipients)
}

func TestMatchExcludedEvents(t *testing.T) {
	store := &fakeStore{
		global: []Subscription{
			adhoc(u1, 0, model.KindBuild, ""),
			adhoc(u1, 0, model.KindCommit, ""),
			adhoc(u1, 0, model.KindPullRequest, ""),
			adhoc(u1, 0, model.KindIssue, ""),
		},
	}
	m := NewMatcher(store, &fakeCatalog{})

	for _, ev := range []Event{
		&BuildEvent{Type: BuildUpdated, Build: &model.Build{ID: 1}},
		&CommitEvent{Ref: "refs/heads/main", NewHash: model.ZeroHash, Commit: &model.Commit{ID: 1}},
		&PullRequestEvent{Type: PullRequestUpdated, Request: &model.PullRequest{ID: 1}},
		&IssueEvent{Type: IssueTouched, Issue: &model.Issue{ID: 1}},
	} {
		res, err := m.Match(context.Background(), ev)
		require.NoError(t, err)
		require.Empty(t, res.Recipients, ev.String())
		require.Empty(t, res.Outcomes, ev.String())
	}

	res, err := m.Match(context.Background(), &IssueEvent{Type: IssueOpened, Issue: &model.Issue{ID: 1}})
	require.NoError(t, err)
	require.Equal(t, []string{"u1@example.com"}, res.Recipients)
}

func TestMatchUsesSubscriberIdentity(t *testing.T) {
	store := &fakeStore{project: map[int64][]Subscription{1: {
		adhoc(u1, 1, model.KindBuild, "submitted by me"),
		adhoc(u2, 1, model.KindBuild, "submitted by me"),
	}}}
	stack := identity.NewStack()
	outer := &model.User{Login: "outer"}
	release := stack.Push(outer)
	defer release()

	ctx := identity.WithStack(context.Background(), stack)
	res, err := NewMatcher(store, &fakeCatalog{}).Match(ctx, failedBuild())
	require.NoError(t, err)
	require.Equal(t, []string{"u2@example.com"}, res.Recipients)

	// The caller's frame is restored.
	require.Equal(t, 1, stack.Depth())
	require.Same(t, outer, stack.Current())
}

func TestMatchStrictMode(t *testing.T) {
	store := &fakeStore{project: map[int64][]Subscription{1: {
		adhoc(u1, 1, model.KindBuild, "submitted by me"),
	}}}
	res, err := NewMatcher(store, &fakeCatalog{}, WithStrict(true)).Match(context.Background(), failedBuild())
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	require.Equal(t, NotMatched, res.Outcomes[0].Status)
}

func TestMatchCollaboratorErrorAborts(t *testing.T) {
	boom := errors.New("db down")
	_, err := NewMatcher(&fakeStore{err: boom}, &fakeCatalog{}).Match(context.Background(), failedBuild())
	require.ErrorIs(t, err, boom)

	_, err = NewMatcher(&fakeStore{}, &fakeCatalog{}).Match(context.Background(), nil)
	require.ErrorIs(t, err, ErrNilEvent)
}

func TestMatchPullRequestBuilds(t *testing.T) {
	store := &fakeStore{global: []Subscription{
		adhoc(u1, 0, model.KindPullRequest, "open and has failed builds"),
		adhoc(u2, 0, model.KindPullRequest, "open and not has failed builds"),
	}}
	ev := &PullRequestEvent{Type: PullRequestBuildChanged, Request: &model.PullRequest{
		ID: 5, ProjectID: 1, Number: 5, Status: model.PullRequestOpen,
		Builds: []*model.Build{{ID: 1, Status: model.BuildSucceeded}, {ID: 2, Status: model.BuildTimedOut}},
	}}

	res, err := NewMatcher(store, &fakeCatalog{}).Match(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, []string{"u1@example.com"}, res.Recipients)
}

func TestNewEvent(t *testing.T) {
	ev, err := NewEvent(&model.Build{ID: 1}, "finished")
	require.NoError(t, err)
	require.IsType(t, &BuildEvent{}, ev)

	ev, err = NewEvent(&model.Commit{ID: 1, Hash: "abc", Branch: "main"}, "")
	require.NoError(t, err)
	require.False(t, ev.Excluded())
	require.Equal(t, "refs/heads/main", ev.(*CommitEvent).Ref)

	_, err = NewEvent(&model.Issue{ID: 1}, "exploded")
	require.Error(t, err)
}
