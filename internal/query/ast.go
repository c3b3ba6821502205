// Package query implements the saved-query criteria language: parsing query
// text into a criteria tree, matching the tree against a loaded entity, and
// compiling the same tree into a SQL predicate for bulk search.
package query

import (
	"strings"

	"github.com/aidanlsb/herald/internal/model"
)

// Query is a parsed query: a criteria tree plus ordering.
type Query struct {
	Kind     model.Kind
	Criteria Criterion // nil matches every entity
	Sorts    []Sort

	// Strict makes current-user criteria fail instead of falling back to
	// their default when no actor is available.
	Strict bool
}

// Sort is one "order by" entry.
type Sort struct {
	Field string
	Desc  bool
}

func (s Sort) String() string {
	if s.Desc {
		return s.Field + " desc"
	}
	return s.Field
}

// String returns the canonical text of the query. Parsing it again yields
// an equal tree.
func (q *Query) String() string {
	var sb strings.Builder
	if q.Criteria != nil {
		sb.WriteString(q.Criteria.String())
	}
	if len(q.Sorts) > 0 {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("order by ")
		for i, s := range q.Sorts {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(s.String())
		}
	}
	return sb.String()
}

// Criterion is one node of a criteria tree. The set of node types is closed;
// evaluators switch over it exhaustively.
type Criterion interface {
	String() string
	criterionNode()
}

// CompareOp is the comparison a FieldCriterion applies.
type CompareOp int

const (
	OpEq  CompareOp = iota // =
	OpLt                   // <
	OpGt                   // >
	OpLte                  // <=
	OpGte                  // >=
	OpIn                   // value is one of a set
)

func (op CompareOp) String() string {
	switch op {
	case OpLt:
		return "<"
	case OpGt:
		return ">"
	case OpLte:
		return "<="
	case OpGte:
		return ">="
	case OpIn:
		return "in"
	default:
		return "="
	}
}

// AndCriterion matches when every child matches. No children matches everything.
type AndCriterion struct {
	Children []Criterion
}

func (*AndCriterion) criterionNode() {}

func (c *AndCriterion) String() string { return joinChildren(c.Children, " and ") }

// OrCriterion matches when any child matches. No children matches nothing.
type OrCriterion struct {
	Children []Criterion
}

func (*OrCriterion) criterionNode() {}

func (c *OrCriterion) String() string { return joinChildren(c.Children, " or ") }

// NotCriterion inverts its child.
type NotCriterion struct {
	Child Criterion
}

func (*NotCriterion) criterionNode() {}

func (c *NotCriterion) String() string {
	if c.Child == nil {
		return "not ()"
	}
	return "not " + wrapComposite(c.Child)
}

// FieldCriterion compares a scalar field of the entity with a constant.
// Syntax: status is failed, number > 10, submitted before 2024-01-01, failed
type FieldCriterion struct {
	Rule    string     // vocabulary phrase, e.g. "status is"
	Literal string     // operand as written in canonical form; empty for fixed rules
	Kind    model.Kind // entity kind the field belongs to
	Field   string
	Op      CompareOp
	Value   any // string, int64 (ints and unix-second dates) or []string for OpIn
}

func (*FieldCriterion) criterionNode() {}

func (c *FieldCriterion) String() string { return formatLeaf(c.Kind, c.Rule, c.Literal) }

// TextCriterion matches when a text field contains Text, ignoring ASCII case.
// Syntax: title contains "flaky test"
type TextCriterion struct {
	Rule  string
	Kind  model.Kind
	Field string
	Text  string
}

func (*TextCriterion) criterionNode() {}

func (c *TextCriterion) String() string { return formatLeaf(c.Kind, c.Rule, c.Text) }

// ActorCriterion matches when a user field of the entity refers to the
// acting user.
// Syntax: submitted by me, assigned to me
type ActorCriterion struct {
	Rule  string
	Kind  model.Kind
	Field string
}

func (*ActorCriterion) criterionNode() {}

func (c *ActorCriterion) String() string { return c.Rule }

// CollectionCriterion matches when any entity reachable through a
// one-to-many relation path satisfies Inner.
// Syntax: has failed builds, has builds submitted after 2024-01-01
type CollectionCriterion struct {
	Rule    string
	Literal string
	Kind    model.Kind // kind of the root entity
	Path    string     // dotted relation path, e.g. "builds.build"
	Inner   *FieldCriterion
}

func (*CollectionCriterion) criterionNode() {}

func (c *CollectionCriterion) String() string { return formatLeaf(c.Kind, c.Rule, c.Literal) }

func joinChildren(children []Criterion, sep string) string {
	parts := make([]string, 0, len(children))
	for _, child := range children {
		parts = append(parts, wrapComposite(child))
	}
	return strings.Join(parts, sep)
}

// wrapComposite parenthesises and/or nodes so nesting survives a reparse.
func wrapComposite(c Criterion) string {
	switch c.(type) {
	case *AndCriterion, *OrCriterion:
		return "(" + c.String() + ")"
	}
	return c.String()
}

func formatLeaf(kind model.Kind, phrase, literal string) string {
	r, ok := lookupRule(kind, phrase)
	if !ok || r.operand == operandNone {
		return phrase
	}
	if r.operand == operandString || !isBareWord(literal) {
		return phrase + " " + quoteLiteral(literal)
	}
	return phrase + " " + literal
}

// quoteLiteral is the inverse of Lexer.scanString.
func quoteLiteral(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	sb.WriteByte('"')
	return sb.String()
}

func isBareWord(s string) bool {
	if s == "" || isReserved(s) {
		return false
	}
	for _, r := range s {
		if !isWordRune(r) {
			return false
		}
	}
	return true
}
