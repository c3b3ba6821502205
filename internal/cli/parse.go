package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/herald/internal/model"
	"github.com/aidanlsb/herald/internal/query"
	"github.com/aidanlsb/herald/internal/ui"
)

var (
	parseStrict    bool
	parseAnonymous bool
)

// treeNode is the JSON form of a criteria tree.
type treeNode struct {
	Type     string     `json:"type"`
	Text     string     `json:"text,omitempty"`
	Children []treeNode `json:"children,omitempty"`
}

type parseResult struct {
	Kind          model.Kind `json:"kind"`
	Canonical     string     `json:"canonical"`
	RequiresActor bool       `json:"requires_actor"`
	Tree          *treeNode  `json:"tree,omitempty"`
	Sorts         []string   `json:"sorts,omitempty"`
}

var parseCmd = &cobra.Command{
	Use:   "parse <kind> <query>...",
	Short: "Validate a query and show its canonical form",
	Long: `Parses a query for an entity kind and prints its canonical text and
criteria tree. Nothing is read from the database.

Examples:
  hrld parse build "failed and branch is main"
  hrld parse pr not has failed builds order by number desc
  hrld parse issue assigned to me --strict --anonymous`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}
		q, err := parseQueryArgs(kind, args[1:], query.ParseOptions{Strict: parseStrict, Anonymous: parseAnonymous})
		if err != nil {
			return err
		}

		res := parseResult{
			Kind:          kind,
			Canonical:     q.String(),
			RequiresActor: q.Criteria != nil && query.RequiresActor(q.Criteria),
		}
		if q.Criteria != nil {
			tree := buildTree(q.Criteria)
			res.Tree = &tree
		}
		for _, s := range q.Sorts {
			res.Sorts = append(res.Sorts, s.String())
		}

		if isJSONOutput() {
			outputSuccess(res, nil)
			return nil
		}

		printf("%s\n", ui.Successf("%s query: %s", kind, ui.Bold.Render(res.Canonical)))
		if res.Tree != nil {
			printTree(*res.Tree, 1)
		} else {
			printf("  %s\n", ui.Hint("(matches every "+string(kind)+")"))
		}
		if len(res.Sorts) > 0 {
			printf("  %s %s\n", ui.Hint("order by"), strings.Join(res.Sorts, ", "))
		}
		if res.RequiresActor {
			printf("  %s\n", ui.Hint("refers to the current user"))
		}
		return nil
	},
}

func buildTree(c query.Criterion) treeNode {
	switch c := c.(type) {
	case *query.AndCriterion:
		return treeNode{Type: "and", Children: buildChildren(c.Children)}
	case *query.OrCriterion:
		return treeNode{Type: "or", Children: buildChildren(c.Children)}
	case *query.NotCriterion:
		return treeNode{Type: "not", Children: []treeNode{buildTree(c.Child)}}
	case *query.FieldCriterion:
		return treeNode{Type: "field", Text: c.String()}
	case *query.TextCriterion:
		return treeNode{Type: "text", Text: c.String()}
	case *query.ActorCriterion:
		return treeNode{Type: "actor", Text: c.String()}
	case *query.CollectionCriterion:
		return treeNode{Type: "collection", Text: c.String()}
	}
	return treeNode{Type: "unknown", Text: c.String()}
}

func buildChildren(children []query.Criterion) []treeNode {
	out := make([]treeNode, len(children))
	for i, child := range children {
		out[i] = buildTree(child)
	}
	return out
}

func printTree(n treeNode, depth int) {
	indent := strings.Repeat("  ", depth)
	if n.Text != "" {
		printf("%s%s %s\n", indent, n.Text, ui.Hint("("+n.Type+")"))
		return
	}
	printf("%s%s\n", indent, ui.Header(n.Type))
	for _, child := range n.Children {
		printTree(child, depth+1)
	}
}

var vocabCmd = &cobra.Command{
	Use:   "vocab <kind>",
	Short: "List the phrases a query may use",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}
		phrases := query.Phrases(kind)
		sorts := query.SortFields(kind)

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"kind":        kind,
				"phrases":     phrases,
				"sort_fields": sorts,
			}, &Meta{Count: len(phrases)})
			return nil
		}

		printf("%s %s\n", ui.Header(string(kind)+" phrases"), ui.Count(len(phrases), "phrase", "phrases"))
		for _, p := range phrases {
			printf("  %s\n", p)
		}
		printf("\n%s %s\n", ui.Header("order by"), strings.Join(sorts, ", "))
		return nil
	},
}

func init() {
	parseCmd.Flags().BoolVar(&parseStrict, "strict", false, "Fail current-user criteria when no user is known")
	parseCmd.Flags().BoolVar(&parseAnonymous, "anonymous", false, "Parse as an anonymous caller (with --strict, rejects current-user criteria)")
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(vocabCmd)
}
