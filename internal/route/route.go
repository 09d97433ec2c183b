// Package route compiles an Envoy v3 Route message into a (matcher, action)
// pair and evaluates it against a request URI path.
package route

import (
	"errors"
	"strings"

	routev3 "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
)

// Errors returned by Compile. The set is closed: anything not named here
// cannot occur.
var (
	ErrMissingMatch                = errors.New("route: missing match")
	ErrMissingAction               = errors.New("route: missing action")
	ErrUnsupportedMatchType        = errors.New("route: unsupported match type")
	ErrUnsupportedClusterSpecifier = errors.New("route: unsupported cluster specifier type")
)

// Match is a compiled path matcher. The two implementations below are the
// closed set named in the spec: Prefix and ExactPath.
type Match interface {
	matches(path string) bool
}

type prefixMatch struct{ prefix string }

func (m prefixMatch) matches(path string) bool { return strings.HasPrefix(path, m.prefix) }

type exactPathMatch struct{ path string }

func (m exactPathMatch) matches(path string) bool { return path == m.path }

// Action is the outcome of a matched route: the name of the cluster to
// forward to.
type Action struct {
	ClusterName string
}

// Route is a single compiled (matcher, action) pair.
type Route struct {
	Name   string
	match  Match
	action Action
}

// Matches evaluates the route's matcher against a request URI path. It
// returns the route's action and true on a hit.
func (r *Route) Matches(path string) (Action, bool) {
	if r.match.matches(path) {
		return r.action, true
	}
	return Action{}, false
}

// Compile translates a v3 Route message into a Route. A Route compiles iff
// it has both a match and a Route-variant action.
func Compile(v3route *routev3.Route) (*Route, error) {
	v3match := v3route.GetMatch()
	if v3match == nil {
		return nil, ErrMissingMatch
	}

	v3action, ok := v3route.GetAction().(*routev3.Route_Route)
	if !ok {
		return nil, ErrMissingAction
	}

	match, err := compileMatch(v3match)
	if err != nil {
		return nil, err
	}

	action, err := compileAction(v3action.Route)
	if err != nil {
		return nil, err
	}

	return &Route{Name: v3route.GetName(), match: match, action: action}, nil
}

func compileMatch(v3match *routev3.RouteMatch) (Match, error) {
	switch spec := v3match.GetPathSpecifier().(type) {
	case *routev3.RouteMatch_Prefix:
		return prefixMatch{prefix: spec.Prefix}, nil
	case *routev3.RouteMatch_Path:
		return exactPathMatch{path: spec.Path}, nil
	default:
		return nil, ErrUnsupportedMatchType
	}
}

func compileAction(v3action *routev3.RouteAction) (Action, error) {
	switch spec := v3action.GetClusterSpecifier().(type) {
	case *routev3.RouteAction_Cluster:
		return Action{ClusterName: spec.Cluster}, nil
	default:
		return Action{}, ErrUnsupportedClusterSpecifier
	}
}
