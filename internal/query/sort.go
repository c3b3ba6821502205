package query

import (
	"fmt"
	"sort"

	"github.com/aidanlsb/herald/internal/model"
)

// OrderBy returns the ORDER BY terms for the query's sorts, qualified
// against bc. Ties, and queries without sorts, fall back to newest id
// first.
func (q *Query) OrderBy(bc *BuildContext) ([]string, error) {
	terms := make([]string, 0, len(q.Sorts)+1)
	for _, s := range q.Sorts {
		field, ok := sortFields[q.Kind][s.Field]
		if !ok {
			return nil, fmt.Errorf("cannot order %s by %q", q.Kind, s.Field)
		}
		col, err := bc.Column(field)
		if err != nil {
			return nil, err
		}
		if s.Desc {
			col += " DESC"
		} else {
			col += " ASC"
		}
		terms = append(terms, col)
	}
	return append(terms, bc.Root()+".id DESC"), nil
}

// Sort orders entities in place the way OrderBy orders rows: unset values
// sort first ascending and last descending.
func (q *Query) Sort(entities []model.Entity) error {
	defs := make([]fieldDef, len(q.Sorts))
	for i, s := range q.Sorts {
		field, ok := sortFields[q.Kind][s.Field]
		if !ok {
			return fmt.Errorf("cannot order %s by %q", q.Kind, s.Field)
		}
		defs[i], _ = lookupField(q.Kind, field)
	}

	sort.SliceStable(entities, func(i, j int) bool {
		a, b := entities[i], entities[j]
		for k, s := range q.Sorts {
			av, _ := defs[k].get(a)
			bv, _ := defs[k].get(b)
			cmp := compareValues(av, bv)
			if s.Desc {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return a.EntityID() > b.EntityID()
	})
	return nil
}
