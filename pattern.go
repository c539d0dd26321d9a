package switchboard

import (
	"regexp"
	"strconv"
	"strings"
)

// Pattern is the matching strategy attached to a route. A pattern reduces a
// relative request path to an optional parameter-binding map: Match reports
// whether the path is covered by this pattern and, when it is, which path
// parameters were captured.
//
// Implementations must be total: Match never panics and never fails for
// reasons other than "this path does not belong to this pattern". This lets
// the route table evaluate "does this route's pattern cover this path"
// independently of the HTTP method, which is what the 404/405 distinction
// is built on.
//
// Two strategies are provided:
//   - StaticPattern: literal segments with ":name" parameter segments
//   - RegexPattern: a compiled regular expression with positional captures
type Pattern interface {
	// Match tests path against the pattern. On success it returns the
	// captured parameters (possibly empty, never nil) and true. On failure
	// it returns nil and false.
	Match(path string) (map[string]string, bool)

	// String returns the registration-time source of the pattern, used for
	// the route table printout.
	String() string
}

// StaticPattern matches a path segment-by-segment against a template such as
// "/users/:id/posts". Segments beginning with ':' are parameters that bind
// the corresponding request segment under the name after the sigil; all
// other segments must compare equal literally.
//
// Matching walks both segment lists in lockstep:
//   - Segment counts must be equal; "/users/:id" never matches
//     "/users/42/posts".
//   - If the template segment and the request segment are textually equal,
//     matching continues without recording a binding. This holds even when
//     the template segment is a parameter: requesting the literal path
//     "/users/:id" against the template "/users/:id" succeeds with an empty
//     parameter map. Existing callers depend on this, so it is kept as-is.
//   - Otherwise a parameter segment binds its name to the request segment,
//     and a literal segment fails the match.
type StaticPattern struct {
	source   string
	segments []string
}

// NewStaticPattern builds a StaticPattern from a path template.
//
// Example:
//
//	p := switchboard.NewStaticPattern("/users/:id")
//	params, ok := p.Match("/users/42")
//	// ok == true, params == map[string]string{"id": "42"}
func NewStaticPattern(path string) *StaticPattern {
	return &StaticPattern{
		source:   path,
		segments: PathListFromString(path),
	}
}

// Match implements Pattern.
func (p *StaticPattern) Match(path string) (map[string]string, bool) {
	comps := PathListFromString(path)
	if len(comps) != len(p.segments) {
		return nil, false
	}
	params := map[string]string{}
	for i := range p.segments {
		if p.segments[i] == comps[i] {
			continue
		}
		if strings.HasPrefix(p.segments[i], ":") {
			params[p.segments[i][1:]] = comps[i]
			continue
		}
		return nil, false
	}
	return params, true
}

// String implements Pattern.
func (p *StaticPattern) String() string {
	return p.source
}

// RegexPattern matches the whole request path against a compiled regular
// expression. Capture groups are bound positionally: the first group is
// available under parameter name "0", the second under "1", and so on.
//
// The expression is applied to the entire path, so authors should anchor it
// explicitly (e.g. `^/items/(\d+)$`) when prefix matches are not intended.
type RegexPattern struct {
	source string
	re     *regexp.Regexp
}

// NewRegexPattern compiles expr into a RegexPattern. Compilation errors are
// surfaced here, at registration time; Match itself is total.
//
// Example:
//
//	p, err := switchboard.NewRegexPattern(`^/items/(\d+)$`)
//	params, ok := p.Match("/items/7")
//	// ok == true, params == map[string]string{"0": "7"}
func NewRegexPattern(expr string) (*RegexPattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &RegexPattern{source: expr, re: re}, nil
}

// MustRegexPattern is like NewRegexPattern but panics on a bad expression.
// Intended for route registration with literal expressions, which runs
// single-threaded during startup before any request is served.
func MustRegexPattern(expr string) *RegexPattern {
	p, err := NewRegexPattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Match implements Pattern.
func (p *RegexPattern) Match(path string) (map[string]string, bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	params := map[string]string{}
	for i := 1; i < len(m); i++ {
		params[strconv.Itoa(i-1)] = m[i]
	}
	return params, true
}

// String implements Pattern.
func (p *RegexPattern) String() string {
	return p.source
}
