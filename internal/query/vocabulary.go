package query

import (
	"sort"
	"strings"

	"github.com/aidanlsb/herald/internal/model"
)

type operandType int

const (
	operandNone operandType = iota
	operandString
	operandInt
	operandDate
	operandEnum
)

// rule is one entry of a kind's vocabulary: a fixed phrase, optionally
// followed by a single operand, producing one leaf criterion.
type rule struct {
	phrase  string
	words   []string
	operand operandType
	values  []string // allowed values for operandEnum
	noun    string   // operand description used in errors
	actor   bool     // needs a signed-in user

	// build creates the leaf from the canonical literal and its converted value.
	build func(kind model.Kind, phrase, literal string, value any) Criterion
}

var vocabularies = map[model.Kind][]rule{
	model.KindBuild: {
		isEnum("status is", "status", "build status", enumValues(model.BuildStatuses)),
		fixed("successful", "status", string(model.BuildSucceeded)),
		fixed("failed", "status", string(model.BuildFailed)),
		fixed("running", "status", string(model.BuildRunning)),
		isString("job is", "job"),
		contains("job contains", "job"),
		isString("version is", "version"),
		isString("branch is", "branch"),
		compare("number is", "number", OpEq),
		compare("number >", "number", OpGt),
		compare("number <", "number", OpLt),
		compare("number >=", "number", OpGte),
		compare("number <=", "number", OpLte),
		before("submitted before", "submitted_at"),
		after("submitted after", "submitted_at"),
		before("finished before", "finished_at"),
		after("finished after", "finished_at"),
		actor("submitted by me", "submitter"),
		actor("cancelled by me", "canceller"),
		isString("submitted by", "submitter"),
	},
	model.KindPullRequest: {
		fixed("open", "status", string(model.PullRequestOpen)),
		fixed("merged", "status", string(model.PullRequestMerged)),
		fixed("discarded", "status", string(model.PullRequestDiscarded)),
		isEnum("status is", "status", "pull request status", enumValues(model.PullRequestStatuses)),
		compare("number is", "number", OpEq),
		compare("number >", "number", OpGt),
		compare("number <", "number", OpLt),
		compare("number >=", "number", OpGte),
		compare("number <=", "number", OpLte),
		contains("title contains", "title"),
		isString("source branch is", "source_branch"),
		isString("target branch is", "target_branch"),
		actor("submitted by me", "submitter"),
		isString("submitted by", "submitter"),
		before("submitted before", "submitted_at"),
		after("submitted after", "submitted_at"),
		hasBuilds("has failed builds", operandNone, func(string, any) *FieldCriterion {
			return buildStatusIn(model.BuildFailed, model.BuildInError, model.BuildCancelled, model.BuildTimedOut)
		}),
		hasBuilds("has pending builds", operandNone, func(string, any) *FieldCriterion {
			return buildStatusIn(model.BuildWaiting, model.BuildPending, model.BuildRunning)
		}),
		hasBuilds("has successful builds", operandNone, func(string, any) *FieldCriterion {
			return &FieldCriterion{Kind: model.KindBuild, Field: "status", Op: OpEq, Value: string(model.BuildSucceeded)}
		}),
		hasBuilds("has builds submitted after", operandDate, func(_ string, v any) *FieldCriterion {
			return &FieldCriterion{Kind: model.KindBuild, Field: "submitted_at", Op: OpGte, Value: dayAfter(v)}
		}),
	},
	model.KindCommit: {
		isString("branch is", "branch"),
		contains("message contains", "message"),
		isString("hash is", "hash"),
		actor("authored by me", "author_email"),
		actor("committed by me", "committer_email"),
		isString("author is", "author_email"),
		before("before", "committed_at"),
		after("after", "committed_at"),
	},
	model.KindIssue: {
		fixed("open", "state", string(model.IssueOpen)),
		fixed("closed", "state", string(model.IssueClosed)),
		isEnum("state is", "state", "issue state", enumValues(model.IssueStates)),
		compare("number is", "number", OpEq),
		compare("number >", "number", OpGt),
		compare("number <", "number", OpLt),
		compare("number >=", "number", OpGte),
		compare("number <=", "number", OpLte),
		contains("title contains", "title"),
		isString("milestone is", "milestone"),
		actor("submitted by me", "submitter"),
		actor("assigned to me", "assignee"),
		isString("submitted by", "submitter"),
		isString("assigned to", "assignee"),
		before("submitted before", "submitted_at"),
		after("submitted after", "submitted_at"),
	},
}

var ruleIndex = indexRules(vocabularies)

func indexRules(vocab map[model.Kind][]rule) map[model.Kind]map[string]*rule {
	index := make(map[model.Kind]map[string]*rule, len(vocab))
	for kind, rules := range vocab {
		index[kind] = make(map[string]*rule, len(rules))
		for i := range rules {
			index[kind][rules[i].phrase] = &rules[i]
		}
	}
	return index
}

func lookupRule(kind model.Kind, phrase string) (*rule, bool) {
	r, ok := ruleIndex[kind][phrase]
	return r, ok
}

// Phrases returns the vocabulary of a kind, for help output and completion.
func Phrases(kind model.Kind) []string {
	rules := vocabularies[kind]
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		switch r.operand {
		case operandNone:
			out = append(out, r.phrase)
		default:
			out = append(out, r.phrase+" <"+r.noun+">")
		}
	}
	return out
}

// SortFields returns the names accepted after "order by" for a kind.
func SortFields(kind model.Kind) []string {
	var out []string
	for name := range sortFields[kind] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RequiresActor reports whether any leaf of c refers to the current user.
func RequiresActor(c Criterion) bool {
	switch c := c.(type) {
	case *AndCriterion:
		for _, child := range c.Children {
			if RequiresActor(child) {
				return true
			}
		}
	case *OrCriterion:
		for _, child := range c.Children {
			if RequiresActor(child) {
				return true
			}
		}
	case *NotCriterion:
		return RequiresActor(c.Child)
	case *ActorCriterion:
		return true
	}
	return false
}

func newRule(phrase string, operand operandType, noun string,
	build func(kind model.Kind, phrase, literal string, value any) Criterion) rule {
	return rule{phrase: phrase, words: strings.Fields(phrase), operand: operand, noun: noun, build: build}
}

func fieldRule(phrase, field string, op CompareOp, operand operandType, noun string) rule {
	return newRule(phrase, operand, noun, func(kind model.Kind, phrase, literal string, value any) Criterion {
		return &FieldCriterion{Rule: phrase, Literal: literal, Kind: kind, Field: field, Op: op, Value: value}
	})
}

func isString(phrase, field string) rule {
	return fieldRule(phrase, field, OpEq, operandString, "text")
}

func isEnum(phrase, field, noun string, values []string) rule {
	r := fieldRule(phrase, field, OpEq, operandEnum, noun)
	r.values = values
	return r
}

func compare(phrase, field string, op CompareOp) rule {
	return fieldRule(phrase, field, op, operandInt, "number")
}

func fixed(phrase, field, value string) rule {
	return newRule(phrase, operandNone, "", func(kind model.Kind, phrase, _ string, _ any) Criterion {
		return &FieldCriterion{Rule: phrase, Kind: kind, Field: field, Op: OpEq, Value: value}
	})
}

// before matches instants strictly before the start of the given day.
func before(phrase, field string) rule {
	return fieldRule(phrase, field, OpLt, operandDate, "date")
}

// after matches instants from the start of the following day on.
func after(phrase, field string) rule {
	return newRule(phrase, operandDate, "date", func(kind model.Kind, phrase, literal string, value any) Criterion {
		return &FieldCriterion{Rule: phrase, Literal: literal, Kind: kind, Field: field, Op: OpGte, Value: dayAfter(value)}
	})
}

func contains(phrase, field string) rule {
	return newRule(phrase, operandString, "text", func(kind model.Kind, phrase, literal string, _ any) Criterion {
		return &TextCriterion{Rule: phrase, Kind: kind, Field: field, Text: literal}
	})
}

func actor(phrase, field string) rule {
	r := newRule(phrase, operandNone, "", func(kind model.Kind, phrase, _ string, _ any) Criterion {
		return &ActorCriterion{Rule: phrase, Kind: kind, Field: field}
	})
	r.actor = true
	return r
}

func hasBuilds(phrase string, operand operandType, inner func(literal string, value any) *FieldCriterion) rule {
	noun := ""
	if operand == operandDate {
		noun = "date"
	}
	return newRule(phrase, operand, noun, func(kind model.Kind, phrase, literal string, value any) Criterion {
		return &CollectionCriterion{Rule: phrase, Literal: literal, Kind: kind, Path: "builds.build", Inner: inner(literal, value)}
	})
}

func buildStatusIn(statuses ...model.BuildStatus) *FieldCriterion {
	return &FieldCriterion{Kind: model.KindBuild, Field: "status", Op: OpIn, Value: enumValues(statuses)}
}

const secondsPerDay = 24 * 60 * 60

func dayAfter(v any) int64 {
	return v.(int64) + secondsPerDay
}

func enumValues[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
