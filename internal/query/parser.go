package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aidanlsb/herald/internal/dates"
	"github.com/aidanlsb/herald/internal/model"
)

// ParseOptions controls how current-user criteria are treated.
type ParseOptions struct {
	// Strict rejects or fails current-user criteria when no actor is
	// available, instead of evaluating them to false.
	Strict bool

	// Anonymous declares that the query will be evaluated without an
	// acting user. Combined with Strict, current-user criteria become parse
	// errors.
	Anonymous bool
}

// Parser parses query strings into Query ASTs.
type Parser struct {
	kind   model.Kind
	opts   ParseOptions
	tokens []Token
	pos    int
	curr   Token
}

// Parse parses a query string for the given entity kind.
func Parse(kind model.Kind, input string, opts ParseOptions) (*Query, error) {
	if _, ok := vocabularies[kind]; !ok {
		return nil, fmt.Errorf("no query vocabulary for kind %q", kind)
	}

	tokens := Tokenize(input)
	if last := tokens[len(tokens)-1]; last.Type == TokenError {
		if last.Value == "unterminated string" {
			return nil, errorAt(last, "unterminated string")
		}
		return nil, errorAt(last, "unexpected character")
	}

	p := &Parser{kind: kind, opts: opts, tokens: tokens}
	p.curr = tokens[0]
	return p.parseQuery()
}

// MustParse is like Parse but panics on error. Intended for tests and
// fixed queries.
func MustParse(kind model.Kind, input string, opts ParseOptions) *Query {
	q, err := Parse(kind, input, opts)
	if err != nil {
		panic(fmt.Sprintf("query.MustParse(%q): %v", input, err))
	}
	return q
}

func (p *Parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	p.curr = p.tokens[p.pos]
}

func (p *Parser) peek(n int) Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) isWord(tok Token, word string) bool {
	return tok.Type == TokenWord && tok.Value == word
}

func (p *Parser) atOrderBy() bool {
	return p.isWord(p.curr, "order") && p.isWord(p.peek(1), "by")
}

// parseQuery parses: [criteria] [order by sorts] EOF
func (p *Parser) parseQuery() (*Query, error) {
	q := &Query{Kind: p.kind, Strict: p.opts.Strict}

	if p.curr.Type != TokenEOF && !p.atOrderBy() {
		crit, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		q.Criteria = crit
	}

	if p.atOrderBy() {
		p.advance()
		p.advance()
		sorts, err := p.parseSorts()
		if err != nil {
			return nil, err
		}
		q.Sorts = sorts
	}

	switch p.curr.Type {
	case TokenEOF:
		return q, nil
	case TokenRParen:
		return nil, errorAt(p.curr, "unbalanced parenthesis: no matching '('")
	default:
		return nil, errorAt(p.curr, "expected 'and', 'or' or 'order by'")
	}
}

// parseOr parses OR expressions (lowest precedence).
func (p *Parser) parseOr() (Criterion, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Criterion{first}
	for p.isWord(p.curr, "or") {
		p.advance()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &OrCriterion{Children: children}, nil
}

// parseAnd parses AND expressions (middle precedence).
func (p *Parser) parseAnd() (Criterion, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	children := []Criterion{first}
	for p.isWord(p.curr, "and") {
		p.advance()
		next, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &AndCriterion{Children: children}, nil
}

// parseUnary parses NOT and grouped criteria (highest precedence).
func (p *Parser) parseUnary() (Criterion, error) {
	switch {
	case p.isWord(p.curr, "not"):
		p.advance()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &NotCriterion{Child: child}, nil

	case p.curr.Type == TokenLParen:
		open := p.curr
		p.advance()
		if p.curr.Type == TokenRParen {
			return nil, errorAt(p.curr, "empty parentheses")
		}
		crit, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.curr.Type != TokenRParen {
			if p.curr.Type == TokenEOF {
				return nil, errorAt(open, "unbalanced parenthesis: missing ')'")
			}
			return nil, errorAt(p.curr, "expected ')'")
		}
		p.advance()
		return crit, nil

	case p.curr.Type == TokenEOF:
		return nil, errorAt(p.curr, "expected criterion, got end of query")

	case p.curr.Type == TokenRParen:
		return nil, errorAt(p.curr, "unbalanced parenthesis: no matching '('")
	}

	return p.parseCriterion()
}

// parseCriterion matches the longest vocabulary phrase at the current
// position and parses its operand.
func (p *Parser) parseCriterion() (Criterion, error) {
	start := p.curr
	if start.Type != TokenWord && start.Type != TokenOp {
		return nil, errorAt(start, "expected %s criterion, got %s", p.kind, start.Type)
	}

	var best *rule
	for i := range vocabularies[p.kind] {
		r := &vocabularies[p.kind][i]
		if (best == nil || len(r.words) > len(best.words)) && p.matchesPhrase(r) {
			best = r
		}
	}
	if best == nil {
		return nil, errorAt(start, "unknown %s criterion", p.kind)
	}
	for range best.words {
		p.advance()
	}

	if best.actor && p.opts.Strict && p.opts.Anonymous {
		return nil, errorAt(start, "%q requires a signed-in user", best.phrase)
	}

	if best.operand == operandNone {
		return best.build(p.kind, best.phrase, "", nil), nil
	}

	operand := p.curr
	if operand.Type != TokenWord && operand.Type != TokenString ||
		operand.Type == TokenWord && isReserved(operand.Value) {
		return nil, errorAt(operand, "expected %s after %q", best.noun, best.phrase)
	}
	literal, value, err := convertOperand(best, operand.Value)
	if err != nil {
		return nil, errorAt(operand, "%v", err)
	}
	p.advance()
	return best.build(p.kind, best.phrase, literal, value), nil
}

func (p *Parser) matchesPhrase(r *rule) bool {
	for i, word := range r.words {
		tok := p.peek(i)
		if (tok.Type != TokenWord && tok.Type != TokenOp) || tok.Value != word {
			return false
		}
	}
	return true
}

// convertOperand validates raw against the rule's operand type and returns
// its canonical literal and typed value.
func convertOperand(r *rule, raw string) (string, any, error) {
	switch r.operand {
	case operandInt:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid number %q", raw)
		}
		return strconv.FormatInt(n, 10), n, nil
	case operandDate:
		t, err := dates.ParseDate(raw)
		if err != nil {
			return "", nil, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", raw)
		}
		return t.Format(dates.DateLayout), t.Unix(), nil
	case operandEnum:
		for _, v := range r.values {
			if v == raw {
				return raw, raw, nil
			}
		}
		return "", nil, fmt.Errorf("invalid %s %q (expected one of %s)", r.noun, raw, strings.Join(r.values, ", "))
	default:
		return raw, raw, nil
	}
}

// parseSorts parses: field [asc|desc] {, field [asc|desc]}
func (p *Parser) parseSorts() ([]Sort, error) {
	var sorts []Sort
	for {
		if p.curr.Type != TokenWord {
			return nil, errorAt(p.curr, "expected sort field")
		}
		if _, ok := sortFields[p.kind][p.curr.Value]; !ok {
			return nil, errorAt(p.curr, "cannot order %s by %q (expected one of %s)",
				p.kind, p.curr.Value, strings.Join(SortFields(p.kind), ", "))
		}
		s := Sort{Field: p.curr.Value}
		p.advance()

		switch {
		case p.isWord(p.curr, "asc"):
			p.advance()
		case p.isWord(p.curr, "desc"):
			s.Desc = true
			p.advance()
		}
		sorts = append(sorts, s)

		if p.curr.Type != TokenComma {
			return sorts, nil
		}
		p.advance()
	}
}
