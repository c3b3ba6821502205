package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/herald/internal/store"
	"github.com/aidanlsb/herald/internal/ui"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage named queries, users and subscriptions",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import a YAML catalog",
	Long: `Imports projects, users, named queries, subscriptions and entities from
a YAML document. Records with an existing key are replaced. Every query text
is parsed before it is stored.

Example document:

  projects:
    - {id: 1, name: herald}
  users:
    - {login: alice, email: alice@example.com}
  queries:
    - {kind: build, name: failures, query: failed}
  subscriptions:
    - {user: alice, kind: build, project: 1, shared: failures}
  builds:
    - {id: 42, project: 1, number: 42, job: ci, status: failed, submitted: 2024-01-02}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}
		defer f.Close()

		s, err := openStore()
		if err != nil {
			return handleError(ErrDatabaseError, err, "Run 'hrld init' to create the database")
		}
		defer s.Close()

		stats, err := s.ImportCatalog(context.Background(), f)
		if err != nil {
			return handleErrorWithDetails(errorCode(err), err, "Fix the document and import it again", stats)
		}

		if isJSONOutput() {
			outputSuccess(stats, nil)
			return nil
		}
		printf("%s\n", ui.Successf("Imported %s", args[0]))
		tbl := ui.NewTable(2)
		tbl.SetStyle(1, ui.Muted)
		for _, row := range []struct {
			n    int
			name string
		}{
			{stats.Projects, "projects"},
			{stats.Users, "users"},
			{stats.Queries, "named queries"},
			{stats.Subscriptions, "subscriptions"},
			{stats.Entities, "entities"},
		} {
			tbl.AddRow(fmt.Sprintf("  %d", row.n), row.name)
		}
		printf("%s", tbl.String())
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List named queries for a kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}
		s, err := openStore()
		if err != nil {
			return handleError(ErrDatabaseError, err, "Run 'hrld init' to create the database")
		}
		defer s.Close()

		queries, err := s.NamedQueries(context.Background(), kind)
		if err != nil {
			return handleError(errorCode(err), err, "")
		}

		if isJSONOutput() {
			type namedQueryView struct {
				Owner     string `json:"owner,omitempty"`
				ProjectID int64  `json:"project_id,omitempty"`
				Name      string `json:"name"`
				Query     string `json:"query"`
			}
			views := make([]namedQueryView, 0, len(queries))
			for _, q := range queries {
				views = append(views, namedQueryView{Owner: q.Owner, ProjectID: q.ProjectID, Name: q.Name, Query: q.Query})
			}
			outputSuccess(views, &Meta{Count: len(views)})
			return nil
		}

		if len(queries) == 0 {
			printf("%s\n", ui.Hint(fmt.Sprintf("No named %s queries", kind)))
			return nil
		}
		tbl := ui.NewTable(3)
		tbl.SetStyle(0, ui.Muted)
		tbl.SetStyle(1, ui.Accent)
		for _, q := range queries {
			scope := "shared"
			if q.Owner != "" {
				scope = q.Owner
			}
			if q.ProjectID != 0 {
				scope = fmt.Sprintf("%s@%d", scope, q.ProjectID)
			}
			tbl.AddRow(scope, q.Name, q.Query)
		}
		printf("%s", tbl.String())
		return nil
	},
}

var deliveriesLimit int

var deliveriesCmd = &cobra.Command{
	Use:   "deliveries",
	Short: "List recorded notification deliveries, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return handleError(ErrDatabaseError, err, "Run 'hrld init' to create the database")
		}
		defer s.Close()

		deliveries, err := s.Deliveries(context.Background(), deliveriesLimit)
		if err != nil {
			return handleError(errorCode(err), err, "")
		}

		if isJSONOutput() {
			if deliveries == nil {
				deliveries = []store.Delivery{}
			}
			outputSuccess(deliveries, &Meta{Count: len(deliveries)})
			return nil
		}
		if len(deliveries) == 0 {
			printf("%s\n", ui.Hint("No deliveries recorded"))
			return nil
		}
		tbl := ui.NewTable(4)
		tbl.SetStyle(0, ui.Muted)
		tbl.SetStyle(2, ui.Accent)
		for _, d := range deliveries {
			tbl.AddRow(d.DeliveredAt.Format("2006-01-02 15:04:05"), d.Event, d.Recipient, d.ID)
		}
		printf("%s", tbl.String())
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogListCmd)
	rootCmd.AddCommand(catalogCmd)

	deliveriesCmd.Flags().IntVar(&deliveriesLimit, "limit", 50, "Maximum number of deliveries (0 = all)")
	rootCmd.AddCommand(deliveriesCmd)
}
