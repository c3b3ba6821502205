package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/herald/internal/model"
	"github.com/aidanlsb/herald/internal/query"
	"github.com/aidanlsb/herald/internal/store"
	"github.com/aidanlsb/herald/internal/ui"
)

var (
	searchProject int64
	searchAs      string
	searchLimit   int
	searchStrict  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <kind> <query>...",
	Short: "Run a query against stored entities",
	Long: `Runs a query over the stored entities of one kind, in bulk, and lists
the matches in the query's order (newest first by default).

Current-user criteria such as "submitted by me" refer to the user named by
--as. Without --as they match nothing, or fail with --strict.

Examples:
  hrld search build failed and branch is main
  hrld search pr "has failed builds" --project 1
  hrld search issue assigned to me --as alice --limit 20`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()

		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}
		q, err := parseQueryArgs(kind, args[1:], query.ParseOptions{Strict: searchStrict})
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return handleError(ErrDatabaseError, err, "Run 'hrld init' to create the database")
		}
		defer s.Close()

		ctx := context.Background()
		opts := store.SearchOptions{ProjectID: searchProject, Limit: searchLimit}
		if searchAs != "" {
			opts.Actor, err = s.User(ctx, searchAs)
			if err != nil {
				return handleError(errorCode(err), err, "Import the user with 'hrld catalog import'")
			}
		}

		results, err := s.Search(ctx, q, opts)
		if err != nil {
			return handleError(errorCode(err), err, "")
		}
		elapsed := time.Since(start).Milliseconds()

		if isJSONOutput() {
			if results == nil {
				results = []model.Entity{}
			}
			outputSuccess(map[string]interface{}{
				"kind":    kind,
				"query":   q.String(),
				"results": results,
			}, &Meta{Count: len(results), QueryTimeMs: elapsed})
			return nil
		}

		if len(results) == 0 {
			printf("%s\n", ui.Hint(fmt.Sprintf("No %s matches %q", kind, q.String())))
			return nil
		}

		display := ui.NewDisplayContext()
		tbl := ui.NewTable(3)
		tbl.SetStyle(0, ui.Accent)
		tbl.SetStyle(1, ui.Muted)
		if display.IsTTY {
			tbl.SetMaxWidth(display.AvailableWidth(0))
		}
		for _, e := range results {
			ref, state, text := entityRow(e)
			tbl.AddRow(ref, state, text)
		}
		printf("%s %s\n", ui.Header(q.String()), ui.Count(len(results), "result", "results"))
		printf("%s", tbl.String())
		return nil
	},
}

func init() {
	searchCmd.Flags().Int64Var(&searchProject, "project", 0, "Restrict results to a project id")
	searchCmd.Flags().StringVar(&searchAs, "as", "", "Login of the user current-user criteria refer to")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum number of results (0 = no limit)")
	searchCmd.Flags().BoolVar(&searchStrict, "strict", false, "Fail current-user criteria when --as is not given")
	rootCmd.AddCommand(searchCmd)
}
