package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aidanlsb/herald/internal/identity"
	"github.com/aidanlsb/herald/internal/logger"
)

const defaultWorkers = 4

// Service consumes events with a fixed pool of workers, matches each and
// dispatches the resulting notification.
type Service struct {
	matcher    *Matcher
	dispatcher Dispatcher
	workers    int
	logger     logger.Logger
	newID      func() string
}

type ServiceOption func(*Service)

func WithWorkers(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithServiceLogger(l logger.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

func NewService(matcher *Matcher, dispatcher Dispatcher, opts ...ServiceOption) *Service {
	s := &Service{
		matcher:    matcher,
		dispatcher: dispatcher,
		workers:    defaultWorkers,
		logger:     logger.NewNoopLogger(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes events until the channel is closed or ctx is done. Match
// and dispatch failures are logged and the event is dropped. Cancelling ctx
// is a normal shutdown and returns nil; Run returns an error only when a
// worker's identity stack is left unbalanced or ctx's deadline passes.
func (s *Service) Run(ctx context.Context, events <-chan Event) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		worker := i
		g.Go(func() error {
			stack := identity.NewStack()
			wctx := identity.WithStack(ctx, stack)
			wctx = logger.ContextWithFields(wctx, zap.Int("worker", worker))
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					if _, err := s.Handle(wctx, ev); err != nil {
						s.logger.ErrorWithContext(wctx, "notification failed", zap.Error(err))
					}
					if depth := stack.Depth(); depth != 0 {
						return fmt.Errorf("worker %d: identity stack has %d frames after %v", worker, depth, ev)
					}
				}
			}
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle matches one event and dispatches a notification when anyone
// matched. It returns the notification sent, or nil.
func (s *Service) Handle(ctx context.Context, event Event) (*Notification, error) {
	if event == nil {
		return nil, ErrNilEvent
	}
	s.logger.DebugWithContext(ctx, "processing event", zap.String("event", event.String()))

	res, err := s.matcher.Match(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("matching %v: %w", event, err)
	}
	if len(res.Recipients) == 0 {
		return nil, nil
	}

	n := Notification{
		DeliveryID: s.newID(),
		Event:      event,
		Recipients: res.Recipients,
	}
	if err := s.dispatcher.Dispatch(ctx, n); err != nil {
		return nil, fmt.Errorf("dispatching %s: %w", n.DeliveryID, err)
	}
	s.logger.DebugWithContext(ctx, "dispatched",
		zap.String("delivery_id", n.DeliveryID),
		zap.Strings("recipients", n.Recipients))
	return &n, nil
}
