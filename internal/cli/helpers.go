package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aidanlsb/herald/internal/model"
	"github.com/aidanlsb/herald/internal/query"
	"github.com/aidanlsb/herald/internal/ui"
)

// joinQueryArgs joins query arguments so unquoted queries work:
// hrld search build failed and branch is main
func joinQueryArgs(args []string) string {
	return strings.Join(args, " ")
}

// parseKindArg parses an entity kind argument.
func parseKindArg(arg string) (model.Kind, error) {
	kind, err := model.ParseKind(arg)
	if err != nil {
		return "", handleError(ErrInvalidInput, err, "Use build, pullrequest, commit or issue")
	}
	return kind, nil
}

// parseQueryArgs parses the query text following the kind argument. In
// text mode a parse error is echoed with a caret under the failing token.
func parseQueryArgs(kind model.Kind, args []string, opts query.ParseOptions) (*query.Query, error) {
	input := joinQueryArgs(args)
	q, err := query.Parse(kind, input, opts)
	if err == nil {
		return q, nil
	}

	var parseErr *query.ParseError
	if errors.As(err, &parseErr) {
		if !isJSONOutput() {
			fmt.Fprintln(os.Stderr, ui.Caret(input, parseErr.Pos))
		}
		return nil, handleErrorWithDetails(ErrQueryInvalid, err, queryHint(kind), map[string]interface{}{
			"position": parseErr.Pos,
			"near":     parseErr.Near,
		})
	}
	return nil, handleError(ErrQueryInvalid, err, queryHint(kind))
}

func queryHint(kind model.Kind) string {
	return fmt.Sprintf("Run 'hrld vocab %s' to list the accepted phrases", kind)
}

// entityRow summarizes an entity for table output: reference, state and
// a descriptive text.
func entityRow(e model.Entity) (ref, state, text string) {
	switch e := e.(type) {
	case *model.Build:
		return e.Reference(), string(e.Status), e.Branch
	case *model.PullRequest:
		return e.Reference(), string(e.Status), e.Title
	case *model.Commit:
		msg, _, _ := strings.Cut(e.Message, "\n")
		return e.ShortHash(), e.Branch, msg
	case *model.Issue:
		return e.Reference(), string(e.State), e.Title
	}
	return fmt.Sprint(e.EntityID()), "", ""
}
