package subscription

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/aidanlsb/herald/internal/identity"
	"github.com/aidanlsb/herald/internal/logger"
	"github.com/aidanlsb/herald/internal/model"
	"github.com/aidanlsb/herald/internal/query"
)

// Phase is the subscription source an outcome came from.
type Phase string

const (
	PhaseProject Phase = "project"
	PhaseGlobal  Phase = "global"
)

// Status is the result of evaluating one candidate.
type Status string

const (
	Matched    Status = "matched"
	NotMatched Status = "not_matched"
	Failed     Status = "failed"
)

// Outcome records the evaluation of one (user, query) candidate.
type Outcome struct {
	User   string
	Phase  Phase
	Source Source
	Name   string
	Query  string
	Status Status
	Err    error
}

// Result is the outcome of matching one event.
type Result struct {
	// Recipients are the email addresses of matched users, sorted and unique.
	Recipients []string
	Outcomes   []Outcome
}

// Matcher evaluates subscriptions against events. A Matcher is safe for
// concurrent use when its Store and Catalog are.
type Matcher struct {
	store   Store
	catalog Catalog
	logger  logger.Logger
	strict  bool
}

type MatcherOption func(*Matcher)

func WithLogger(l logger.Logger) MatcherOption {
	return func(m *Matcher) {
		m.logger = l
	}
}

// WithStrict parses subscription queries in strict identity mode.
func WithStrict(strict bool) MatcherOption {
	return func(m *Matcher) {
		m.strict = strict
	}
}

func NewMatcher(store Store, catalog Catalog, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		store:   store,
		catalog: catalog,
		logger:  logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// candidate is one resolved (user, query) pair.
type candidate struct {
	user   *model.User
	source Source
	name   string
	query  string
}

// Match returns the users whose subscriptions match the event's subject.
// A failing candidate is recorded and logged without affecting the others;
// errors reading subscriptions or the catalog abort the whole match.
//
// Each candidate is evaluated with its user pushed on the identity stack
// attached to ctx, or on a private stack when ctx carries none.
func (m *Matcher) Match(ctx context.Context, event Event) (*Result, error) {
	if event == nil {
		return nil, ErrNilEvent
	}
	res := &Result{}
	if event.Excluded() {
		return res, nil
	}

	stack, ok := identity.StackFrom(ctx)
	if !ok {
		stack = identity.NewStack()
	}

	kind := event.Subject().EntityKind()
	matched := make(map[string]bool)

	// Project 0 holds the global subscriptions; they run once, below.
	var projectCands []candidate
	if projectID := event.ProjectID(); projectID != 0 {
		projectSubs, err := m.store.ProjectSubscriptions(ctx, kind, projectID)
		if err != nil {
			return nil, fmt.Errorf("loading project subscriptions: %w", err)
		}
		projectCands, err = m.resolve(ctx, projectSubs, projectID)
		if err != nil {
			return nil, err
		}
		m.evaluate(ctx, stack, event, PhaseProject, projectCands, matched, res)
	}

	globalSubs, err := m.store.GlobalSubscriptions(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("loading global subscriptions: %w", err)
	}
	globalCands, err := m.resolve(ctx, globalSubs, 0)
	if err != nil {
		return nil, err
	}
	m.evaluate(ctx, stack, event, PhaseGlobal, globalCands, matched, res)

	res.Recipients = recipients(matched, projectCands, globalCands)
	return res, nil
}

// resolve turns subscriptions into candidates, dropping names the catalog
// does not know. Project-scoped shared names fall back to the system
// catalog.
func (m *Matcher) resolve(ctx context.Context, subs []Subscription, projectID int64) ([]candidate, error) {
	var out []candidate
	for _, sub := range subs {
		if sub.User == nil {
			continue
		}
		c := candidate{user: sub.User, source: sub.Source, name: sub.Name}

		var (
			text string
			ok   bool
			err  error
		)
		switch sub.Source {
		case SourceAdhoc:
			text, ok = sub.Query, true
		case SourceShared:
			text, ok, err = m.catalog.SharedQuery(ctx, sub.Kind, projectID, sub.Name)
			if err == nil && !ok && projectID != 0 {
				text, ok, err = m.catalog.SharedQuery(ctx, sub.Kind, 0, sub.Name)
			}
		case SourcePersonal:
			text, ok, err = m.catalog.PersonalQuery(ctx, sub.Kind, sub.User.Login, projectID, sub.Name)
		default:
			return nil, fmt.Errorf("subscription of %s has unknown source %q", sub.User.Login, sub.Source)
		}
		if err != nil {
			return nil, fmt.Errorf("resolving %s query %q for %s: %w", sub.Source, sub.Name, sub.User.Login, err)
		}
		if !ok {
			m.logger.DebugWithContext(ctx, "unresolved named query",
				zap.String("user", sub.User.Login),
				zap.String("source", string(sub.Source)),
				zap.String("name", sub.Name))
			continue
		}
		c.query = text
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].user.Login != out[j].user.Login {
			return out[i].user.Login < out[j].user.Login
		}
		return out[i].query < out[j].query
	})
	return out, nil
}

// evaluate runs one phase. The first match ends a user's phase, and users
// matched earlier are skipped.
func (m *Matcher) evaluate(ctx context.Context, stack *identity.Stack, event Event, phase Phase,
	cands []candidate, matched map[string]bool, res *Result) {
	for _, c := range cands {
		if matched[c.user.Login] {
			continue
		}
		out := m.evaluateOne(stack, event, c)
		out.Phase = phase
		res.Outcomes = append(res.Outcomes, out)

		switch out.Status {
		case Matched:
			matched[c.user.Login] = true
		case Failed:
			m.logger.ErrorWithContext(ctx, "error processing subscription",
				zap.String("user", c.user.Login),
				zap.String("event", event.String()),
				zap.Int64("subject", event.Subject().EntityID()),
				zap.String("query", c.query),
				zap.Error(out.Err))
		}
	}
}

func (m *Matcher) evaluateOne(stack *identity.Stack, event Event, c candidate) (out Outcome) {
	out = Outcome{User: c.user.Login, Source: c.source, Name: c.name, Query: c.query}

	release := stack.Push(c.user)
	defer release()
	defer func() {
		if r := recover(); r != nil {
			out.Status = Failed
			out.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	subject := event.Subject()
	q, err := query.Parse(subject.EntityKind(), c.query, query.ParseOptions{Strict: m.strict})
	if err != nil {
		out.Status, out.Err = Failed, err
		return out
	}
	ok, err := q.Match(subject, stack.Current())
	switch {
	case err != nil:
		out.Status, out.Err = Failed, err
	case ok:
		out.Status = Matched
	default:
		out.Status = NotMatched
	}
	return out
}

func recipients(matched map[string]bool, phases ...[]candidate) []string {
	seen := make(map[string]bool)
	var out []string
	for _, cands := range phases {
		for _, c := range cands {
			email := c.user.Email
			if !matched[c.user.Login] || email == "" || seen[email] {
				continue
			}
			seen[email] = true
			out = append(out, email)
		}
	}
	sort.Strings(out)
	return out
}
