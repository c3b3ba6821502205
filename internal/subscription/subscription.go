// Package subscription decides who is notified about an event: it collects
// the saved queries users subscribed to, evaluates each against the event's
// subject as that user, and returns the deduplicated recipients.
package subscription

import (
	"context"
	"errors"

	"github.com/aidanlsb/herald/internal/model"
)

// Source says where a subscription's query text comes from.
type Source string

const (
	SourceShared   Source = "shared"   // named query in the project or system catalog
	SourcePersonal Source = "personal" // named query saved by the subscriber
	SourceAdhoc    Source = "adhoc"    // query text stored on the subscription
)

// Subscription ties a user to a query over one entity kind. ProjectID 0
// marks a global subscription.
type Subscription struct {
	User      *model.User
	ProjectID int64
	Kind      model.Kind
	Source    Source
	Name      string // named sources
	Query     string // SourceAdhoc
}

// Store enumerates subscriptions.
type Store interface {
	ProjectSubscriptions(ctx context.Context, kind model.Kind, projectID int64) ([]Subscription, error)
	GlobalSubscriptions(ctx context.Context, kind model.Kind) ([]Subscription, error)
}

// Catalog resolves named queries. A missing name is reported with ok=false,
// not an error.
type Catalog interface {
	// SharedQuery looks up a shared query; projectID 0 is the system catalog.
	SharedQuery(ctx context.Context, kind model.Kind, projectID int64, name string) (query string, ok bool, err error)
	// PersonalQuery looks up a user's saved query; projectID 0 is the user's
	// global set.
	PersonalQuery(ctx context.Context, kind model.Kind, login string, projectID int64, name string) (query string, ok bool, err error)
}

// Notification is handed to the Dispatcher for delivery.
type Notification struct {
	DeliveryID string
	Event      Event
	Recipients []string
}

// Dispatcher delivers notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, n Notification) error

func (f DispatcherFunc) Dispatch(ctx context.Context, n Notification) error { return f(ctx, n) }

var ErrNilEvent = errors.New("nil event")
