// Package model defines the domain entities the query engine evaluates.
package model

import "fmt"

// Kind identifies an entity kind that can be queried.
type Kind string

const (
	KindBuild       Kind = "build"
	KindPullRequest Kind = "pullrequest"
	KindCommit      Kind = "commit"
	KindIssue       Kind = "issue"
)

// Kinds lists every queryable kind in a stable order.
var Kinds = []Kind{KindBuild, KindPullRequest, KindCommit, KindIssue}

// ParseKind converts user input ("build", "pr", ...) into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "build", "builds":
		return KindBuild, nil
	case "pullrequest", "pullrequests", "pr", "prs":
		return KindPullRequest, nil
	case "commit", "commits":
		return KindCommit, nil
	case "issue", "issues":
		return KindIssue, nil
	}
	return "", fmt.Errorf("unknown entity kind %q (expected build, pullrequest, commit or issue)", s)
}

// Entity is any record a query can be matched against.
type Entity interface {
	EntityKind() Kind
	EntityID() int64
}

// User is an account that can own subscriptions and act in queries.
type User struct {
	Login string `json:"login" yaml:"login"`
	Name  string `json:"name,omitempty" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

// Project groups builds, pull requests, commits and issues.
type Project struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}
