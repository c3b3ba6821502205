package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aidanlsb/herald/internal/logger"
	"github.com/aidanlsb/herald/internal/model"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, n)
	return nil
}

func TestServiceRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &fakeStore{global: []Subscription{
		adhoc(u1, 0, model.KindBuild, "failed"),
		adhoc(u2, 0, model.KindBuild, "submitted by me and successful"),
	}}
	d := &recordingDispatcher{}
	svc := NewService(NewMatcher(store, &fakeCatalog{}), d, WithWorkers(3))

	events := make(chan Event)
	go func() {
		defer close(events)
		for i := 1; i <= 20; i++ {
			status := model.BuildSucceeded
			if i%2 == 0 {
				status = model.BuildFailed
			}
			events <- &BuildEvent{Type: BuildFinished, Build: &model.Build{
				ID: int64(i), ProjectID: 1, Number: int64(i), Status: status, Submitter: "u2",
			}}
		}
	}()

	require.NoError(t, svc.Run(context.Background(), events))
	require.Len(t, d.sent, 20)

	ids := make(map[string]bool)
	for _, n := range d.sent {
		require.NotEmpty(t, n.DeliveryID)
		require.False(t, ids[n.DeliveryID], "duplicate delivery id")
		ids[n.DeliveryID] = true
		require.Len(t, n.Recipients, 1)
	}
}

func TestServiceSkipsEmptyRecipients(t *testing.T) {
	d := &recordingDispatcher{}
	svc := NewService(NewMatcher(&fakeStore{}, &fakeCatalog{}), d)

	n, err := svc.Handle(context.Background(), failedBuild())
	require.NoError(t, err)
	require.Nil(t, n)
	require.Empty(t, d.sent)
}

func TestServiceHandleStampsDeliveryID(t *testing.T) {
	store := &fakeStore{global: []Subscription{adhoc(u1, 0, model.KindBuild, "failed")}}
	d := &recordingDispatcher{}
	svc := NewService(NewMatcher(store, &fakeCatalog{}), d)
	svc.newID = func() string { return "fixed" }

	n, err := svc.Handle(context.Background(), failedBuild())
	require.NoError(t, err)
	require.Equal(t, "fixed", n.DeliveryID)
	require.Equal(t, []string{"u1@example.com"}, n.Recipients)
}

func TestServiceLogsDispatchFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &fakeStore{global: []Subscription{adhoc(u1, 0, model.KindBuild, "failed")}}
	d := &recordingDispatcher{err: errors.New("smtp down")}
	log, logs := logger.NewObserverLogger("error")
	svc := NewService(NewMatcher(store, &fakeCatalog{}), d, WithWorkers(2), WithServiceLogger(log))

	events := make(chan Event, 3)
	for i := 0; i < 3; i++ {
		events <- failedBuild()
	}
	close(events)

	require.NoError(t, svc.Run(context.Background(), events))
	require.Equal(t, 3, logs.FilterMessage("notification failed").Len())
}

func TestServiceStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewService(NewMatcher(&fakeStore{}, &fakeCatalog{}), &recordingDispatcher{}, WithWorkers(2))
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event)

	done := make(chan error)
	go func() { done <- svc.Run(ctx, events) }()
	cancel()
	require.NoError(t, <-done)
}

func TestServiceReportsDeadline(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := NewService(NewMatcher(&fakeStore{}, &fakeCatalog{}), &recordingDispatcher{}, WithWorkers(2))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := svc.Run(ctx, make(chan Event))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func ExampleService_Handle() {
	store := &fakeStore{project: map[int64][]Subscription{1: {
		adhoc(u1, 1, model.KindBuild, "status is failed"),
		adhoc(u2, 1, model.KindBuild, "status is succeeded"),
		adhoc(u3, 1, model.KindBuild, "status is >>bad<<"),
	}}}
	dispatcher := DispatcherFunc(func(_ context.Context, n Notification) error {
		fmt.Println(n.Event, n.Recipients)
		return nil
	})
	svc := NewService(NewMatcher(store, &fakeCatalog{}), dispatcher)

	_, _ = svc.Handle(context.Background(), failedBuild())
	// Output: build #42 (ci) finished [u1@example.com]
}
