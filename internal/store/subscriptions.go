package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/aidanlsb/herald/internal/model"
	"github.com/aidanlsb/herald/internal/sqlutil"
	"github.com/aidanlsb/herald/internal/subscription"
)

var (
	_ subscription.Store      = (*Store)(nil)
	_ subscription.Catalog    = (*Store)(nil)
	_ subscription.Dispatcher = (*Store)(nil)
)

// SharedQuery implements subscription.Catalog.
func (s *Store) SharedQuery(ctx context.Context, kind model.Kind, projectID int64, name string) (string, bool, error) {
	return s.namedQuery(ctx, kind, "", projectID, name)
}

// PersonalQuery implements subscription.Catalog.
func (s *Store) PersonalQuery(ctx context.Context, kind model.Kind, login string, projectID int64, name string) (string, bool, error) {
	if login == "" {
		return "", false, nil
	}
	return s.namedQuery(ctx, kind, login, projectID, name)
}

func (s *Store) namedQuery(ctx context.Context, kind model.Kind, owner string, projectID int64, name string) (string, bool, error) {
	row, err := s.queryRow(ctx, sq.Select("query").From("named_queries").Where(sq.Eq{
		"kind":       string(kind),
		"owner":      owner,
		"project_id": projectID,
		"name":       name,
	}))
	if err != nil {
		return "", false, err
	}
	var text string
	if err := row.Scan(&text); err != nil {
		if errors.Is(handleSQLError(err), ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("named query %q: %w", name, err)
	}
	return text, true, nil
}

// NamedQueries lists the named queries of kind, shared ones first.
func (s *Store) NamedQueries(ctx context.Context, kind model.Kind) ([]NamedQuery, error) {
	stmt, args, err := sq.Select("kind", "owner", "project_id", "name", "query").
		From("named_queries").
		Where(sq.Eq{"kind": string(kind)}).
		OrderBy("owner", "project_id", "name").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	return sqlutil.ScanRows(rows, func(rows *sql.Rows) (NamedQuery, error) {
		var (
			q    NamedQuery
			kind string
		)
		err := rows.Scan(&kind, &q.Owner, &q.ProjectID, &q.Name, &q.Query)
		q.Kind = model.Kind(kind)
		return q, err
	})
}

// ProjectSubscriptions implements subscription.Store.
func (s *Store) ProjectSubscriptions(ctx context.Context, kind model.Kind, projectID int64) ([]subscription.Subscription, error) {
	return s.subscriptions(ctx, sq.Eq{"qs.kind": string(kind), "qs.project_id": projectID})
}

// GlobalSubscriptions implements subscription.Store.
func (s *Store) GlobalSubscriptions(ctx context.Context, kind model.Kind) ([]subscription.Subscription, error) {
	return s.subscriptions(ctx, sq.Eq{"qs.kind": string(kind), "qs.project_id": 0})
}

func (s *Store) subscriptions(ctx context.Context, where sq.Eq) ([]subscription.Subscription, error) {
	stmt, args, err := sq.Select("u.login", "u.name", "u.email",
		"qs.project_id", "qs.kind", "qs.source", "qs.name", "qs.query").
		From("query_subscriptions qs").
		Join("users u ON u.login = qs.login").
		Where(where).
		OrderBy("qs.id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return sqlutil.ScanRows(rows, func(rows *sql.Rows) (subscription.Subscription, error) {
		var (
			sub                      subscription.Subscription
			u                        model.User
			name, email, qname, text sql.NullString
			kind, source             string
		)
		if err := rows.Scan(&u.Login, &name, &email, &sub.ProjectID, &kind, &source, &qname, &text); err != nil {
			return sub, err
		}
		u.Name, u.Email = name.String, email.String
		sub.User = &u
		sub.Kind = model.Kind(kind)
		sub.Source = subscription.Source(source)
		sub.Name, sub.Query = qname.String, text.String
		return sub, nil
	})
}

// Delivery is one recorded notification for one recipient.
type Delivery struct {
	ID          string    `json:"id"`
	Event       string    `json:"event"`
	Recipient   string    `json:"recipient"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// Dispatch implements subscription.Dispatcher by recording one delivery per
// recipient. Dispatching the same delivery id twice is idempotent.
func (s *Store) Dispatch(ctx context.Context, n subscription.Notification) error {
	if n.Event == nil {
		return subscription.ErrNilEvent
	}
	if len(n.Recipients) == 0 {
		return nil
	}
	now := time.Now().Unix()
	ins := upsert("deliveries").Columns("delivery_id", "event", "recipient", "delivered_at")
	for _, r := range n.Recipients {
		ins = ins.Values(n.DeliveryID, n.Event.String(), r, now)
	}
	if err := s.exec(ctx, ins); err != nil {
		return fmt.Errorf("record delivery %s: %w", n.DeliveryID, err)
	}
	return nil
}

// Deliveries lists recorded deliveries, newest first.
func (s *Store) Deliveries(ctx context.Context, limit int) ([]Delivery, error) {
	sb := sq.Select("delivery_id", "event", "recipient", "delivered_at").
		From("deliveries").
		OrderBy("delivered_at DESC", "rowid DESC")
	if limit > 0 {
		sb = sb.Limit(uint64(limit))
	}
	stmt, args, err := sb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	return sqlutil.ScanRows(rows, func(rows *sql.Rows) (Delivery, error) {
		var (
			d  Delivery
			at int64
		)
		err := rows.Scan(&d.ID, &d.Event, &d.Recipient, &at)
		d.DeliveredAt = sqlutil.FromUnix(at)
		return d, err
	})
}
