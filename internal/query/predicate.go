package query

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/aidanlsb/herald/internal/model"
	"github.com/aidanlsb/herald/internal/sqlutil"
)

var (
	sqlTrue  = sq.Expr("1=1")
	sqlFalse = sq.Expr("1=0")
)

// Predicate compiles the query into a SQL predicate over bc. The predicate
// selects exactly the entities Match accepts for the same actor. Joins
// needed by the predicate are registered in bc, so call bc.Select only after
// Predicate.
func (q *Query) Predicate(bc *BuildContext, actor *model.User) (sq.Sqlizer, error) {
	if bc.Kind() != q.Kind {
		return nil, &PredicateError{Criterion: q.String(),
			Err: fmt.Errorf("%s query against %s context", q.Kind, bc.Kind())}
	}
	if q.Criteria == nil {
		return sqlTrue, nil
	}
	return env{actor: actor, strict: q.Strict}.predicate(q.Criteria, bc)
}

// Predicate compiles a single criterion.
func Predicate(c Criterion, bc *BuildContext, actor *model.User, strict bool) (sq.Sqlizer, error) {
	return env{actor: actor, strict: strict}.predicate(c, bc)
}

func (v env) predicate(c Criterion, bc *BuildContext) (sq.Sqlizer, error) {
	switch c := c.(type) {
	case *AndCriterion:
		and := sq.And{}
		for _, child := range c.Children {
			p, err := v.predicate(child, bc)
			if err != nil {
				return nil, err
			}
			and = append(and, p)
		}
		return and, nil
	case *OrCriterion:
		or := sq.Or{}
		for _, child := range c.Children {
			p, err := v.predicate(child, bc)
			if err != nil {
				return nil, err
			}
			or = append(or, p)
		}
		return or, nil
	case *NotCriterion:
		if c.Child == nil {
			return nil, &PredicateError{Criterion: c.String(), Err: fmt.Errorf("not without operand")}
		}
		p, err := v.predicate(c.Child, bc)
		if err != nil {
			return nil, err
		}
		return notExpr{p}, nil
	case *FieldCriterion:
		if c.Kind != bc.Kind() {
			return nil, kindMismatch(c, c.Kind, bc.Kind())
		}
		return fieldPredicate(c, bc.Root())
	case *TextCriterion:
		if c.Kind != bc.Kind() {
			return nil, kindMismatch(c, c.Kind, bc.Kind())
		}
		def, ok := lookupField(c.Kind, c.Field)
		if !ok {
			return nil, unknownField(c, c.Kind, c.Field)
		}
		col := bc.Root() + "." + def.column
		return sq.Expr(col+` LIKE ? ESCAPE '\'`, "%"+sqlutil.EscapeLikePattern(c.Text)+"%"), nil
	case *ActorCriterion:
		return v.actorPredicate(c, bc)
	case *CollectionCriterion:
		return collectionPredicate(c, bc)
	case nil:
		return nil, &PredicateError{Err: fmt.Errorf("nil criterion")}
	default:
		return nil, &PredicateError{Criterion: c.String(), Err: fmt.Errorf("unsupported criterion %T", c)}
	}
}

// fieldPredicate compiles a scalar comparison against the relation at
// alias. Nullable columns are guarded so an unset value is false under
// NOT as well, as it is in memory.
func fieldPredicate(c *FieldCriterion, alias string) (sq.Sqlizer, error) {
	def, ok := lookupField(c.Kind, c.Field)
	if !ok {
		return nil, unknownField(c, c.Kind, c.Field)
	}
	col := alias + "." + def.column

	var cond sq.Sqlizer
	switch c.Op {
	case OpEq:
		cond = sq.Eq{col: c.Value}
	case OpIn:
		values, ok := c.Value.([]string)
		if !ok {
			return nil, &PredicateError{Criterion: c.String(), Err: fmt.Errorf("set operand is %T", c.Value)}
		}
		cond = sq.Eq{col: values}
	case OpLt:
		cond = sq.Lt{col: c.Value}
	case OpGt:
		cond = sq.Gt{col: c.Value}
	case OpLte:
		cond = sq.LtOrEq{col: c.Value}
	case OpGte:
		cond = sq.GtOrEq{col: c.Value}
	default:
		return nil, &PredicateError{Criterion: c.String(), Err: fmt.Errorf("unsupported operator %v", c.Op)}
	}

	if def.nullable {
		return sq.And{sq.NotEq{col: nil}, cond}, nil
	}
	return cond, nil
}

func (v env) actorPredicate(c *ActorCriterion, bc *BuildContext) (sq.Sqlizer, error) {
	if c.Kind != bc.Kind() {
		return nil, kindMismatch(c, c.Kind, bc.Kind())
	}
	def, ok := lookupField(c.Kind, c.Field)
	if !ok {
		return nil, unknownField(c, c.Kind, c.Field)
	}
	if def.actorKey == nil {
		return nil, &PredicateError{Criterion: c.String(), Err: fmt.Errorf("field %q does not hold a user", c.Field)}
	}
	if v.actor == nil {
		if v.strict {
			return nil, &PredicateError{Criterion: c.String(), Err: ErrNoActor}
		}
		return sqlFalse, nil
	}
	key := def.actorKey(v.actor)
	if key == "" {
		return sqlFalse, nil
	}
	col := bc.Root() + "." + def.column
	return sq.And{sq.NotEq{col: nil}, sq.Eq{col: key}}, nil
}

// collectionPredicate compiles an existence test over a one-to-many path as
// an aggregate over the shared join. Rows multiplied by other joins do not
// change MAX, and a root without related rows aggregates to 0.
func collectionPredicate(c *CollectionCriterion, bc *BuildContext) (sq.Sqlizer, error) {
	if c.Kind != bc.Kind() {
		return nil, kindMismatch(c, c.Kind, bc.Kind())
	}
	coll, ok := collections[c.Kind][c.Path]
	if !ok {
		return nil, &PredicateError{Criterion: c.String(), Err: fmt.Errorf("unknown relation %q", c.Path)}
	}
	if c.Inner == nil || c.Inner.Kind != coll.kind {
		return nil, &PredicateError{Criterion: c.String(), Err: fmt.Errorf("relation condition must test a %s", coll.kind)}
	}
	alias, err := bc.Join(c.Path)
	if err != nil {
		return nil, &PredicateError{Criterion: c.String(), Err: err}
	}
	inner, err := fieldPredicate(c.Inner, alias)
	if err != nil {
		return nil, err
	}
	sql, args, err := inner.ToSql()
	if err != nil {
		return nil, &PredicateError{Criterion: c.String(), Err: err}
	}
	return sq.Expr("COALESCE(MAX(CASE WHEN "+sql+" THEN 1 ELSE 0 END), 0) = 1", args...), nil
}

// notExpr negates a predicate; squirrel has no NOT combinator.
type notExpr struct {
	pred sq.Sqlizer
}

func (n notExpr) ToSql() (string, []interface{}, error) {
	sql, args, err := n.pred.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + sql + ")", args, nil
}

func kindMismatch(c Criterion, want, got model.Kind) error {
	return &PredicateError{Criterion: c.String(), Err: fmt.Errorf("%s criterion in %s query", want, got)}
}

func unknownField(c Criterion, kind model.Kind, field string) error {
	return &PredicateError{Criterion: c.String(), Err: fmt.Errorf("unknown %s field %q", kind, field)}
}
