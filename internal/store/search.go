package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/aidanlsb/herald/internal/model"
	"github.com/aidanlsb/herald/internal/query"
	"github.com/aidanlsb/herald/internal/sqlutil"
)

// SearchOptions narrows a search.
type SearchOptions struct {
	// ProjectID restricts results to one project; 0 searches every project.
	ProjectID int64
	// Actor is the user current-user criteria refer to.
	Actor *model.User
	// Limit caps the number of results; 0 means no limit.
	Limit int
}

// Search runs q against the stored entities of q.Kind and returns the
// matches in the query's order.
func (s *Store) Search(ctx context.Context, q *query.Query, opts SearchOptions) ([]model.Entity, error) {
	ids, err := s.SearchIDs(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	out := make([]model.Entity, 0, len(ids))
	for _, id := range ids {
		e, err := s.Entity(ctx, q.Kind, id)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// SearchIDs is Search without loading the entities.
func (s *Store) SearchIDs(ctx context.Context, q *query.Query, opts SearchOptions) ([]int64, error) {
	stmt, args, err := searchSQL(q, opts)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q.Kind, err)
	}
	return sqlutil.ScanRows(rows, func(rows *sql.Rows) (int64, error) {
		var id int64
		err := rows.Scan(&id)
		return id, err
	})
}

func searchSQL(q *query.Query, opts SearchOptions) (string, []interface{}, error) {
	source := query.TableSource(q.Kind)
	if opts.ProjectID != 0 {
		source = query.ViewSource(sq.Select("*").
			From(query.Table(q.Kind)).
			Where(sq.Eq{"project_id": opts.ProjectID}))
	}

	bc := query.NewBuildContext(q.Kind, source)
	pred, err := q.Predicate(bc, opts.Actor)
	if err != nil {
		return "", nil, err
	}
	order, err := q.OrderBy(bc)
	if err != nil {
		return "", nil, err
	}

	sb := bc.Select(bc.Root() + ".id").Having(pred).OrderBy(order...)
	if opts.Limit > 0 {
		sb = sb.Limit(uint64(opts.Limit))
	}
	return sb.ToSql()
}
