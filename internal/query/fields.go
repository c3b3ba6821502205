package query

import (
	"time"

	"github.com/aidanlsb/herald/internal/model"
)

type fieldType int

const (
	fieldString fieldType = iota
	fieldInt
	fieldDate // unix seconds
)

// fieldDef maps a logical field to its column and its in-memory accessor.
// Both sides must agree: a nullable column is NULL exactly when get reports
// the value as unset.
type fieldDef struct {
	column   string
	typ      fieldType
	nullable bool
	get      func(model.Entity) (any, bool)

	// actorKey extracts the value of the acting user this field is compared
	// with by ActorCriterion. Nil for non-user fields.
	actorKey func(*model.User) string
}

var (
	byLogin = func(u *model.User) string { return u.Login }
	byEmail = func(u *model.User) string { return u.Email }
)

var tables = map[model.Kind]string{
	model.KindBuild:       "builds",
	model.KindPullRequest: "pull_requests",
	model.KindCommit:      "commits",
	model.KindIssue:       "issues",
}

var rootAliases = map[model.Kind]string{
	model.KindBuild:       "b",
	model.KindPullRequest: "pr",
	model.KindCommit:      "c",
	model.KindIssue:       "i",
}

var fieldDefs = map[model.Kind]map[string]fieldDef{
	model.KindBuild: {
		"number": {column: "number", typ: fieldInt, get: onBuild(func(b *model.Build) (any, bool) { return b.Number, true })},
		"job":    {column: "job", get: onBuild(func(b *model.Build) (any, bool) { return b.Job, true })},
		"status": {column: "status", get: onBuild(func(b *model.Build) (any, bool) { return string(b.Status), true })},
		"version": {column: "version", nullable: true,
			get: onBuild(func(b *model.Build) (any, bool) { return optional(b.Version) })},
		"branch": {column: "branch", nullable: true,
			get: onBuild(func(b *model.Build) (any, bool) { return optional(b.Branch) })},
		"submitter": {column: "submitter", nullable: true, actorKey: byLogin,
			get: onBuild(func(b *model.Build) (any, bool) { return optional(b.Submitter) })},
		"canceller": {column: "canceller", nullable: true, actorKey: byLogin,
			get: onBuild(func(b *model.Build) (any, bool) { return optional(b.Canceller) })},
		"submitted_at": {column: "submitted_at", typ: fieldDate,
			get: onBuild(func(b *model.Build) (any, bool) { return b.SubmittedAt.Unix(), true })},
		"finished_at": {column: "finished_at", typ: fieldDate, nullable: true,
			get: onBuild(func(b *model.Build) (any, bool) { return optionalTime(b.FinishedAt) })},
	},
	model.KindPullRequest: {
		"number": {column: "number", typ: fieldInt, get: onRequest(func(p *model.PullRequest) (any, bool) { return p.Number, true })},
		"title":  {column: "title", get: onRequest(func(p *model.PullRequest) (any, bool) { return p.Title, true })},
		"status": {column: "status", get: onRequest(func(p *model.PullRequest) (any, bool) { return string(p.Status), true })},
		"source_branch": {column: "source_branch",
			get: onRequest(func(p *model.PullRequest) (any, bool) { return p.SourceBranch, true })},
		"target_branch": {column: "target_branch",
			get: onRequest(func(p *model.PullRequest) (any, bool) { return p.TargetBranch, true })},
		"submitter": {column: "submitter", nullable: true, actorKey: byLogin,
			get: onRequest(func(p *model.PullRequest) (any, bool) { return optional(p.Submitter) })},
		"submitted_at": {column: "submitted_at", typ: fieldDate,
			get: onRequest(func(p *model.PullRequest) (any, bool) { return p.SubmittedAt.Unix(), true })},
	},
	model.KindCommit: {
		"hash":    {column: "hash", get: onCommit(func(c *model.Commit) (any, bool) { return c.Hash, true })},
		"branch":  {column: "branch", get: onCommit(func(c *model.Commit) (any, bool) { return c.Branch, true })},
		"message": {column: "message", get: onCommit(func(c *model.Commit) (any, bool) { return c.Message, true })},
		"author_email": {column: "author_email", nullable: true, actorKey: byEmail,
			get: onCommit(func(c *model.Commit) (any, bool) { return optional(c.AuthorEmail) })},
		"committer_email": {column: "committer_email", nullable: true, actorKey: byEmail,
			get: onCommit(func(c *model.Commit) (any, bool) { return optional(c.CommitterEmail) })},
		"committed_at": {column: "committed_at", typ: fieldDate,
			get: onCommit(func(c *model.Commit) (any, bool) { return c.CommittedAt.Unix(), true })},
	},
	model.KindIssue: {
		"number": {column: "number", typ: fieldInt, get: onIssue(func(i *model.Issue) (any, bool) { return i.Number, true })},
		"title":  {column: "title", get: onIssue(func(i *model.Issue) (any, bool) { return i.Title, true })},
		"state":  {column: "state", get: onIssue(func(i *model.Issue) (any, bool) { return string(i.State), true })},
		"milestone": {column: "milestone", nullable: true,
			get: onIssue(func(i *model.Issue) (any, bool) { return optional(i.Milestone) })},
		"submitter": {column: "submitter", nullable: true, actorKey: byLogin,
			get: onIssue(func(i *model.Issue) (any, bool) { return optional(i.Submitter) })},
		"assignee": {column: "assignee", nullable: true, actorKey: byLogin,
			get: onIssue(func(i *model.Issue) (any, bool) { return optional(i.Assignee) })},
		"submitted_at": {column: "submitted_at", typ: fieldDate,
			get: onIssue(func(i *model.Issue) (any, bool) { return i.SubmittedAt.Unix(), true })},
	},
}

// sortFields maps "order by" names to fields.
var sortFields = map[model.Kind]map[string]string{
	model.KindBuild: {
		"number":    "number",
		"job":       "job",
		"status":    "status",
		"submitted": "submitted_at",
		"finished":  "finished_at",
	},
	model.KindPullRequest: {
		"number":    "number",
		"title":     "title",
		"status":    "status",
		"submitted": "submitted_at",
	},
	model.KindCommit: {
		"committed": "committed_at",
	},
	model.KindIssue: {
		"number":    "number",
		"title":     "title",
		"state":     "state",
		"submitted": "submitted_at",
	},
}

// hop is one join step: the joined table and its ON condition, where %[1]s
// is the parent alias and %[2]s the joined alias.
type hop struct {
	table string
	on    string
}

// hops lists the relations that can be joined, keyed by source table and
// relation name. A dotted path walks them in order.
var hops = map[string]map[string]hop{
	"pull_requests": {
		"builds": {table: "pull_request_builds", on: "%[2]s.request_id = %[1]s.id"},
	},
	"pull_request_builds": {
		"build": {table: "builds", on: "%[2]s.id = %[1]s.build_id"},
	},
}

// collection is the in-memory side of a relation path.
type collection struct {
	kind  model.Kind // kind of the reachable entities
	items func(model.Entity) []model.Entity
}

var collections = map[model.Kind]map[string]collection{
	model.KindPullRequest: {
		"builds.build": {kind: model.KindBuild, items: func(e model.Entity) []model.Entity {
			p, ok := e.(*model.PullRequest)
			if !ok {
				return nil
			}
			out := make([]model.Entity, 0, len(p.Builds))
			for _, b := range p.Builds {
				if b != nil {
					out = append(out, b)
				}
			}
			return out
		}},
	},
}

// Table returns the table holding entities of kind.
func Table(kind model.Kind) string {
	return tables[kind]
}

func lookupField(kind model.Kind, field string) (fieldDef, bool) {
	def, ok := fieldDefs[kind][field]
	return def, ok
}

func optional(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}

func optionalTime(t *time.Time) (any, bool) {
	if t == nil {
		return nil, false
	}
	return t.Unix(), true
}

func onBuild(fn func(*model.Build) (any, bool)) func(model.Entity) (any, bool) {
	return on(fn)
}

func onRequest(fn func(*model.PullRequest) (any, bool)) func(model.Entity) (any, bool) {
	return on(fn)
}

func onCommit(fn func(*model.Commit) (any, bool)) func(model.Entity) (any, bool) {
	return on(fn)
}

func onIssue(fn func(*model.Issue) (any, bool)) func(model.Entity) (any, bool) {
	return on(fn)
}

func on[T model.Entity](fn func(T) (any, bool)) func(model.Entity) (any, bool) {
	return func(e model.Entity) (any, bool) {
		t, ok := e.(T)
		if !ok {
			return nil, false
		}
		return fn(t)
	}
}
