package query

import (
	"fmt"
	"strings"

	"github.com/aidanlsb/herald/internal/model"
)

// env is the per-evaluation state shared by both evaluators. The acting
// user is passed explicitly; nothing is read from ambient state.
type env struct {
	actor  *model.User
	strict bool
}

// Match reports whether entity satisfies the query when evaluated as actor.
// A nil actor means anonymous evaluation.
func (q *Query) Match(entity model.Entity, actor *model.User) (bool, error) {
	if entity == nil {
		return false, &EvalError{Criterion: q.String(), Err: fmt.Errorf("no entity")}
	}
	if entity.EntityKind() != q.Kind {
		return false, &EvalError{Criterion: q.String(),
			Err: fmt.Errorf("%s query applied to %s", q.Kind, entity.EntityKind())}
	}
	if q.Criteria == nil {
		return true, nil
	}
	return env{actor: actor, strict: q.Strict}.match(q.Criteria, entity)
}

// Match evaluates a single criterion against entity.
func Match(c Criterion, entity model.Entity, actor *model.User, strict bool) (bool, error) {
	return env{actor: actor, strict: strict}.match(c, entity)
}

func (v env) match(c Criterion, e model.Entity) (bool, error) {
	switch c := c.(type) {
	case *AndCriterion:
		for _, child := range c.Children {
			ok, err := v.match(child, e)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case *OrCriterion:
		for _, child := range c.Children {
			ok, err := v.match(child, e)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case *NotCriterion:
		if c.Child == nil {
			return false, &EvalError{Criterion: c.String(), Err: fmt.Errorf("not without operand")}
		}
		ok, err := v.match(c.Child, e)
		return !ok && err == nil, err
	case *FieldCriterion:
		return v.matchField(c, e)
	case *TextCriterion:
		return v.matchText(c, e)
	case *ActorCriterion:
		return v.matchActor(c, e)
	case *CollectionCriterion:
		return v.matchCollection(c, e)
	case nil:
		return false, &EvalError{Err: fmt.Errorf("nil criterion")}
	default:
		return false, &EvalError{Criterion: c.String(), Err: fmt.Errorf("unsupported criterion %T", c)}
	}
}

func (v env) fieldOf(c Criterion, kind model.Kind, field string, e model.Entity) (fieldDef, error) {
	if e.EntityKind() != kind {
		return fieldDef{}, &EvalError{Criterion: c.String(),
			Err: fmt.Errorf("%s criterion applied to %s", kind, e.EntityKind())}
	}
	def, ok := lookupField(kind, field)
	if !ok {
		return fieldDef{}, &EvalError{Criterion: c.String(), Err: fmt.Errorf("unknown %s field %q", kind, field)}
	}
	return def, nil
}

func (v env) matchField(c *FieldCriterion, e model.Entity) (bool, error) {
	def, err := v.fieldOf(c, c.Kind, c.Field, e)
	if err != nil {
		return false, err
	}
	got, set := def.get(e)
	if !set {
		return false, nil
	}

	if c.Op == OpIn {
		values, ok := c.Value.([]string)
		if !ok {
			return false, &EvalError{Criterion: c.String(), Err: fmt.Errorf("set operand is %T", c.Value)}
		}
		for _, want := range values {
			if compareValues(got, want) == 0 {
				return true, nil
			}
		}
		return false, nil
	}

	cmp := compareValues(got, c.Value)
	switch c.Op {
	case OpEq:
		return cmp == 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpLte:
		return cmp <= 0, nil
	case OpGte:
		return cmp >= 0, nil
	default:
		return false, &EvalError{Criterion: c.String(), Err: fmt.Errorf("unsupported operator %v", c.Op)}
	}
}

func (v env) matchText(c *TextCriterion, e model.Entity) (bool, error) {
	def, err := v.fieldOf(c, c.Kind, c.Field, e)
	if err != nil {
		return false, err
	}
	got, set := def.get(e)
	if !set {
		return false, nil
	}
	s, ok := got.(string)
	if !ok {
		return false, &EvalError{Criterion: c.String(), Err: fmt.Errorf("field %q is not text", c.Field)}
	}
	return strings.Contains(asciiLower(s), asciiLower(c.Text)), nil
}

func (v env) matchActor(c *ActorCriterion, e model.Entity) (bool, error) {
	def, err := v.fieldOf(c, c.Kind, c.Field, e)
	if err != nil {
		return false, err
	}
	if def.actorKey == nil {
		return false, &EvalError{Criterion: c.String(), Err: fmt.Errorf("field %q does not hold a user", c.Field)}
	}
	if v.actor == nil {
		if v.strict {
			return false, &EvalError{Criterion: c.String(), Err: ErrNoActor}
		}
		return false, nil
	}
	key := def.actorKey(v.actor)
	got, set := def.get(e)
	return set && key != "" && got == key, nil
}

func (v env) matchCollection(c *CollectionCriterion, e model.Entity) (bool, error) {
	if e.EntityKind() != c.Kind {
		return false, &EvalError{Criterion: c.String(),
			Err: fmt.Errorf("%s criterion applied to %s", c.Kind, e.EntityKind())}
	}
	coll, ok := collections[c.Kind][c.Path]
	if !ok {
		return false, &EvalError{Criterion: c.String(), Err: fmt.Errorf("unknown relation %q", c.Path)}
	}
	if c.Inner == nil {
		return false, &EvalError{Criterion: c.String(), Err: fmt.Errorf("relation criterion without condition")}
	}
	for _, item := range coll.items(e) {
		ok, err := v.matchField(c.Inner, item)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
