package query

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/aidanlsb/herald/internal/model"
)

// Source is the relation a BuildContext is rooted at: either the entity's
// table or a derived view of it (for example, one project's builds).
type Source struct {
	table string
	view  *sq.SelectBuilder
}

// TableSource roots predicate construction at the kind's table.
func TableSource(kind model.Kind) Source {
	return Source{table: tables[kind]}
}

// ViewSource roots predicate construction at a sub-select. The view must
// expose the same columns as the kind's table.
func ViewSource(view sq.SelectBuilder) Source {
	return Source{view: &view}
}

// Join is one relation joined into a BuildContext.
type Join struct {
	Path  string // dotted path from the root, e.g. "builds.build"
	Table string
	Alias string
	On    string
}

// BuildContext tracks the joins created while compiling one query into SQL,
// so a relation path referenced several times is joined once. A context
// belongs to one predicate construction and must not be shared.
type BuildContext struct {
	kind   model.Kind
	source Source
	root   string
	joins  map[string]*Join
	order  []*Join
}

// NewBuildContext creates an empty context rooted at source.
func NewBuildContext(kind model.Kind, source Source) *BuildContext {
	return &BuildContext{
		kind:   kind,
		source: source,
		root:   rootAliases[kind],
		joins:  make(map[string]*Join),
	}
}

// Kind returns the root entity kind.
func (bc *BuildContext) Kind() model.Kind { return bc.kind }

// Root returns the alias of the root relation.
func (bc *BuildContext) Root() string { return bc.root }

// Column resolves a scalar field of the root entity to a qualified column.
func (bc *BuildContext) Column(field string) (string, error) {
	def, ok := lookupField(bc.kind, field)
	if !ok {
		return "", fmt.Errorf("unknown %s field %q", bc.kind, field)
	}
	return bc.root + "." + def.column, nil
}

// Join returns the alias of the relation reached by path, creating the join
// (and the joins of every prefix of path) on first use.
func (bc *BuildContext) Join(path string) (string, error) {
	if j, ok := bc.joins[path]; ok {
		return j.Alias, nil
	}

	parentAlias, parentTable := bc.root, tables[bc.kind]
	segments := strings.Split(path, ".")
	for i, segment := range segments {
		prefix := strings.Join(segments[:i+1], ".")
		if j, ok := bc.joins[prefix]; ok {
			parentAlias, parentTable = j.Alias, j.Table
			continue
		}

		h, ok := hops[parentTable][segment]
		if !ok {
			return "", fmt.Errorf("no relation %q from %s", segment, parentTable)
		}
		j := &Join{
			Path:  prefix,
			Table: h.table,
			Alias: fmt.Sprintf("j%d", len(bc.order)+1),
		}
		j.On = fmt.Sprintf(h.on, parentAlias, j.Alias)
		bc.joins[prefix] = j
		bc.order = append(bc.order, j)
		parentAlias, parentTable = j.Alias, j.Table
	}
	return parentAlias, nil
}

// Joins returns the joins created so far, in creation order.
func (bc *BuildContext) Joins() []Join {
	out := make([]Join, len(bc.order))
	for i, j := range bc.order {
		out[i] = *j
	}
	return out
}

// Select starts a query over the root source with every cached join
// applied. Rows are grouped by root id, so predicates built against this
// context belong in HAVING.
func (bc *BuildContext) Select(columns ...string) sq.SelectBuilder {
	sb := sq.Select(columns...)
	if bc.source.view != nil {
		sb = sb.FromSelect(*bc.source.view, bc.root)
	} else {
		sb = sb.From(bc.source.table + " " + bc.root)
	}
	for _, j := range bc.order {
		sb = sb.LeftJoin(fmt.Sprintf("%s %s ON %s", j.Table, j.Alias, j.On))
	}
	return sb.GroupBy(bc.root + ".id")
}
