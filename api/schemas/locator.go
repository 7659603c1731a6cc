package schemas

import (
	"fmt"
	"sort"
	"strings"
)

// LocatorStrategy names the variant of a Locator.
type LocatorStrategy string

const (
	ByCSS         LocatorStrategy = "css"
	ByXPath       LocatorStrategy = "xpath"
	ByText        LocatorStrategy = "text"
	ByID          LocatorStrategy = "id"
	ByAria        LocatorStrategy = "aria"
	ByCoordinates LocatorStrategy = "coordinates"
)

// WildcardSelector addresses whatever element currently has focus.
const WildcardSelector = "*"

// Locator identifies an element (or a point) on the page. It is a tagged union
// keyed by By; only the fields belonging to that variant may be set.
type Locator struct {
	By       LocatorStrategy `json:"by"`
	Selector string          `json:"selector,omitempty"`
	Expr     string          `json:"expr,omitempty"`
	Pattern  string          `json:"pattern,omitempty"`
	ID       string          `json:"id,omitempty"`
	Role     string          `json:"role,omitempty"`
	Name     string          `json:"name,omitempty"`
	X        int             `json:"x,omitempty"`
	Y        int             `json:"y,omitempty"`
}

func CSS(selector string) Locator { return Locator{By: ByCSS, Selector: selector} }
func XPath(expr string) Locator { return Locator{By: ByXPath, Expr: expr} }
func Text(pattern string) Locator { return Locator{By: ByText, Pattern: pattern} }
func ElementID(id string) Locator { return Locator{By: ByID, ID: id} }
func Aria(role, name string) Locator { return Locator{By: ByAria, Role: role, Name: name} }
func Coordinates(x, y int) Locator { return Locator{By: ByCoordinates, X: x, Y: y} }
func Wildcard() Locator { return CSS(WildcardSelector) }
func (l Locator) IsWildcard() bool { return l.By == ByCSS && l.Selector == WildcardSelector }
func (l Locator) IsCoordinates() bool { return l.By == ByCoordinates }

// Validate checks that exactly the fields of the declared variant are populated.
func (l Locator) Validate() error {
	set := map[string]bool{
		"selector": l.Selector != "",
		"expr":     l.Expr != "",
		"pattern":  l.Pattern != "",
		"id":       l.ID != "",
		"role":     l.Role != "",
		"name":     l.Name != "",
		"x":        l.X != 0,
		"y":        l.Y != 0,
	}

	var own []string
	var required []string
	switch l.By {
	case ByCSS:
		own, required = []string{"selector"}, []string{"selector"}
	case ByXPath:
		own, required = []string{"expr"}, []string{"expr"}
	case ByText:
		own, required = []string{"pattern"}, []string{"pattern"}
	case ByID:
		own, required = []string{"id"}, []string{"id"}
	case ByAria:
		own, required = []string{"role", "name"}, []string{"role"}
	case ByCoordinates:
		own = []string{"x", "y"}
		if l.X < 0 || l.Y < 0 {
			return fmt.Errorf("coordinates locator must be non-negative, got (%d,%d)", l.X, l.Y)
		}
	case "":
		return fmt.Errorf("locator strategy is required")
	default:
		return fmt.Errorf("unknown locator strategy %q", l.By)
	}

	for _, f := range required {
		if !set[f] {
			return fmt.Errorf("%s locator requires %q", l.By, f)
		}
	}
	allowed := make(map[string]bool, len(own))
	for _, f := range own {
		allowed[f] = true
	}
	var foreign []string
	for f, ok := range set {
		if ok && !allowed[f] {
			foreign = append(foreign, f)
		}
	}
	if len(foreign) > 0 {
		sort.Strings(foreign)
		return fmt.Errorf("%s locator carries fields of another strategy: %s", l.By, strings.Join(foreign, ", "))
	}
	return nil
}

// String renders the locator in a compact human readable form for logs.
func (l Locator) String() string {
	switch l.By {
	case ByCSS:
		return "css=" + l.Selector
	case ByXPath:
		return "xpath=" + l.Expr
	case ByText:
		return "text=" + l.Pattern
	case ByID:
		return "id=" + l.ID
	case ByAria:
		if l.Name == "" {
			return "aria=" + l.Role
		}
		return fmt.Sprintf("aria=%s[%s]", l.Role, l.Name)
	case ByCoordinates:
		return fmt.Sprintf("xy=(%d,%d)", l.X, l.Y)
	default:
		return string(l.By)
	}
}
