package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/herald/internal/model"
	"github.com/aidanlsb/herald/internal/store"
	"github.com/aidanlsb/herald/internal/subscription"
	"github.com/aidanlsb/herald/internal/ui"
)

var (
	notifyType   string
	notifyDryRun bool
)

// defaultEventTypes is the event raised when --type is not given.
var defaultEventTypes = map[model.Kind]string{
	model.KindBuild:       string(subscription.BuildFinished),
	model.KindPullRequest: string(subscription.PullRequestOpened),
	model.KindIssue:       string(subscription.IssueOpened),
}

type outcomeView struct {
	User   string              `json:"user"`
	Phase  subscription.Phase  `json:"phase"`
	Source subscription.Source `json:"source"`
	Name   string              `json:"name,omitempty"`
	Query  string              `json:"query"`
	Status subscription.Status `json:"status"`
	Error  string              `json:"error,omitempty"`
}

type explainView struct {
	Event      string        `json:"event"`
	Recipients []string      `json:"recipients"`
	Outcomes   []outcomeView `json:"outcomes"`
}

type deliveryView struct {
	DeliveryID string   `json:"delivery_id"`
	Event      string   `json:"event"`
	Recipients []string `json:"recipients"`
}

var notifyCmd = &cobra.Command{
	Use:   "notify <kind> <id>...",
	Short: "Run subscription fan-out for stored entities",
	Long: `Raises an event for each stored entity, evaluates every subscription to
its kind as the subscribing user, and records a delivery for the users that
matched. Events are processed concurrently ([notify] workers in config).

With --dry-run nothing is recorded; every candidate subscription is listed
with its outcome instead.

Event types:
  build        submitted, started, finished (default), updated
  pullrequest  opened (default), updated, merged, discarded, build_changed
  issue        opened (default), changed, closed, touched
  commit       (type ignored; a push to the commit's branch)

Examples:
  hrld notify build 42
  hrld notify pr 7 8 --type merged
  hrld notify issue 3 --dry-run`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}
		eventType := notifyType
		if eventType == "" {
			eventType = defaultEventTypes[kind]
		}

		s, err := openStore()
		if err != nil {
			return handleError(ErrDatabaseError, err, "Run 'hrld init' to create the database")
		}
		defer s.Close()

		ctx := context.Background()
		events, err := loadEvents(ctx, s, kind, eventType, args[1:])
		if err != nil {
			return err
		}

		conf := getConfig()
		matcher := subscription.NewMatcher(s, s,
			subscription.WithLogger(log),
			subscription.WithStrict(conf.Notify.Strict))

		if notifyDryRun {
			return explainEvents(ctx, matcher, events)
		}
		return dispatchEvents(ctx, s, matcher, events, conf.Notify.Workers)
	},
}

func loadEvents(ctx context.Context, s *store.Store, kind model.Kind, eventType string, ids []string) ([]subscription.Event, error) {
	events := make([]subscription.Event, 0, len(ids))
	for _, arg := range ids {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, handleError(ErrInvalidInput, fmt.Errorf("invalid %s id %q", kind, arg), "")
		}
		entity, err := s.Entity(ctx, kind, id)
		if err != nil {
			return nil, handleError(errorCode(err), err, "")
		}
		ev, err := subscription.NewEvent(entity, eventType)
		if err != nil {
			return nil, handleError(ErrInvalidInput, err,
				fmt.Sprintf("Use one of: %s", strings.Join(subscription.EventTypes(kind), ", ")))
		}
		events = append(events, ev)
	}
	return events, nil
}

func explainEvents(ctx context.Context, matcher *subscription.Matcher, events []subscription.Event) error {
	views := make([]explainView, 0, len(events))
	var warnings []Warning
	for _, ev := range events {
		res, err := matcher.Match(ctx, ev)
		if err != nil {
			return handleError(errorCode(err), err, "")
		}
		v := explainView{Event: ev.String(), Recipients: res.Recipients}
		if v.Recipients == nil {
			v.Recipients = []string{}
		}
		for _, o := range res.Outcomes {
			ov := outcomeView{User: o.User, Phase: o.Phase, Source: o.Source, Name: o.Name, Query: o.Query, Status: o.Status}
			if o.Err != nil {
				ov.Error = o.Err.Error()
				warnings = append(warnings, Warning{Code: WarnFailedQuery,
					Message: fmt.Sprintf("%s: %s: %v", ev, o.User, o.Err)})
			}
			v.Outcomes = append(v.Outcomes, ov)
		}
		views = append(views, v)
	}

	if isJSONOutput() {
		outputSuccessWithWarnings(views, warnings, &Meta{Count: len(views)})
		return nil
	}

	for _, v := range views {
		printf("%s\n", ui.Header(v.Event))
		if len(v.Outcomes) == 0 {
			printf("  %s\n", ui.Hint("no subscriptions"))
		}
		tbl := ui.NewTable(4)
		tbl.SetStyle(2, ui.Muted)
		for _, o := range v.Outcomes {
			label := o.Query
			if o.Name != "" {
				label = o.Name + ": " + o.Query
			}
			tbl.AddRow("  "+outcomeSymbol(o)+" "+o.User, string(o.Phase), string(o.Source), label)
		}
		printf("%s", tbl.String())
		for _, o := range v.Outcomes {
			if o.Error != "" {
				printf("  %s\n", ui.Errorf("%s: %s", o.User, o.Error))
			}
		}
		if len(v.Recipients) > 0 {
			printf("  → %s\n", ui.Reference(strings.Join(v.Recipients, ", ")))
		}
	}
	return nil
}

func outcomeSymbol(o outcomeView) string {
	switch o.Status {
	case subscription.Matched:
		return ui.SymbolSuccess
	case subscription.Failed:
		return ui.SymbolError
	}
	return ui.SymbolSkipped
}

func dispatchEvents(ctx context.Context, s *store.Store, matcher *subscription.Matcher, events []subscription.Event, workers int) error {
	var (
		mu   sync.Mutex
		sent []deliveryView
	)
	dispatcher := subscription.DispatcherFunc(func(ctx context.Context, n subscription.Notification) error {
		if err := s.Dispatch(ctx, n); err != nil {
			return err
		}
		mu.Lock()
		sent = append(sent, deliveryView{DeliveryID: n.DeliveryID, Event: n.Event.String(), Recipients: n.Recipients})
		mu.Unlock()
		return nil
	})
	svc := subscription.NewService(matcher, dispatcher,
		subscription.WithWorkers(workers),
		subscription.WithServiceLogger(log))

	ch := make(chan subscription.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	if err := svc.Run(ctx, ch); err != nil {
		return handleError(ErrInternal, err, "")
	}

	sort.Slice(sent, func(i, j int) bool { return sent[i].Event < sent[j].Event })

	if isJSONOutput() {
		var warnings []Warning
		if len(sent) == 0 {
			warnings = append(warnings, Warning{Code: WarnNoRecipients, Message: "no subscription matched"})
		}
		if sent == nil {
			sent = []deliveryView{}
		}
		outputSuccessWithWarnings(sent, warnings, &Meta{Count: len(sent)})
		return nil
	}

	if len(sent) == 0 {
		printf("%s\n", ui.Hint("No subscription matched; nothing was sent"))
		return nil
	}
	for _, d := range sent {
		printf("%s\n", ui.Successf("%s → %s", d.Event, ui.Reference(strings.Join(d.Recipients, ", "))))
		printf("  %s\n", ui.Hint("delivery "+d.DeliveryID))
	}
	return nil
}

func init() {
	notifyCmd.Flags().StringVar(&notifyType, "type", "", "Event type (defaults per kind, see above)")
	notifyCmd.Flags().BoolVar(&notifyDryRun, "dry-run", false, "List candidate subscriptions and outcomes without recording deliveries")
	rootCmd.AddCommand(notifyCmd)
}
