// Package locator turns human-facing element descriptions into concrete DOM queries.
package locator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Strategy selects how a Locator's value is interpreted.
type Strategy int

const (
	ByID Strategy = iota + 1
	ByXPath
	ByClassName
	ByDataTestID
	ByCSS
)

var (
	ErrUnknownStrategy = errors.New("unknown locator strategy")
	ErrEmptyLocator    = errors.New("locator value is empty")
)

var strategyNames = map[Strategy]string{
	ByID:         "id",
	ByXPath:      "xpath",
	ByClassName:  "class",
	ByDataTestID: "data-testid",
	ByCSS:        "css",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy accepts the names used in locator table files.
func ParseStrategy(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Locator names a single element on a page.
type Locator struct {
	Strategy Strategy
	Value    string
}

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.Strategy, l.Value)
}

func ID(value string) Locator         { return Locator{Strategy: ByID, Value: value} }
func XPath(value string) Locator      { return Locator{Strategy: ByXPath, Value: value} }
func ClassName(value string) Locator  { return Locator{Strategy: ByClassName, Value: value} }
func DataTestID(value string) Locator { return Locator{Strategy: ByDataTestID, Value: value} }
func CSS(value string) Locator        { return Locator{Strategy: ByCSS, Value: value} }

// QueryKind is the query language a browser session has to evaluate.
type QueryKind int

const (
	KindCSS QueryKind = iota
	KindXPath
)

func (k QueryKind) String() string {
	if k == KindXPath {
		return "xpath"
	}
	return "css"
}

// Query is a resolved, session-ready element query.
type Query struct {
	Kind QueryKind
	Expr string
}

func (q Query) String() string {
	return fmt.Sprintf("%s(%s)", q.Kind, q.Expr)
}

// Resolve maps a locator onto the query a browser session understands.
func Resolve(l Locator) (Query, error) {
	if l.Value == "" {
		return Query{}, fmt.Errorf("%w: %s", ErrEmptyLocator, l.Strategy)
	}
	switch l.Strategy {
	case ByID:
		return Query{Kind: KindCSS, Expr: attributeSelector("id", "=", l.Value)}, nil
	case ByXPath:
		return Query{Kind: KindXPath, Expr: l.Value}, nil
	case ByClassName:
		return Query{Kind: KindCSS, Expr: attributeSelector("class", "~=", l.Value)}, nil
	case ByDataTestID:
		return Query{Kind: KindCSS, Expr: attributeSelector("data-testid", "=", l.Value)}, nil
	case ByCSS:
		return Query{Kind: KindCSS, Expr: l.Value}, nil
	default:
		return Query{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, l.Strategy)
	}
}

func attributeSelector(attr, op, value string) string {
	return fmt.Sprintf("[%s%s%s]", attr, op, strconv.Quote(value))
}
