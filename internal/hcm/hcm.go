// Package hcm implements the HTTP connection manager: virtual-host domain
// matching followed by route matching, resolving a request down to a
// cluster.
package hcm

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	hcmv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/http_connection_manager/v3"

	"github.com/bpowers/ronvoy/internal/cluster"
	"github.com/bpowers/ronvoy/internal/route"
)

// ErrUnsupportedRouteConfig is returned when the HCM does not set
// route_specifier = RouteConfig (inline/dynamic discovery are not
// supported).
var ErrUnsupportedRouteConfig = errors.New("hcm: only a static route_config is supported")

// BadDomainGlobError reports a virtual host domain that is not a valid
// shell glob.
type BadDomainGlobError struct {
	Pattern string
	Err     error
}

func (e *BadDomainGlobError) Error() string {
	return fmt.Sprintf("hcm: virtual host domain %q is not a valid glob: %s", e.Pattern, e.Err)
}
func (e *BadDomainGlobError) Unwrap() error { return e.Err }

// VirtualHost groups routes behind a set of domain globs matched against
// the request's Host header.
type VirtualHost struct {
	Name    string
	Domains []string // shell-style glob patterns, verified compilable at construction
	Routes  []*route.Route
}

func (vh *VirtualHost) matchesHost(host string) bool {
	for _, pattern := range vh.Domains {
		// filepath.Match implements the same */?/[...] grammar the
		// spec calls for; errors here cannot occur because Compile
		// already validated every pattern.
		if ok, _ := filepath.Match(pattern, host); ok {
			return true
		}
	}
	return false
}

// HCM holds the compiled virtual hosts and a reference to the cluster
// table it resolves requests against. Immutable after construction; the
// cluster table it points at may change underneath it.
type HCM struct {
	VirtualHosts []*VirtualHost
	Table        *cluster.Table
}

// Compile builds an HCM from a v3 HttpConnectionManager message. Routes
// that fail to compile are silently dropped; a single bad domain glob
// fails the whole construction.
func Compile(v3hcm *hcmv3.HttpConnectionManager, table *cluster.Table) (*HCM, error) {
	routeSpec, ok := v3hcm.GetRouteSpecifier().(*hcmv3.HttpConnectionManager_RouteConfig)
	if !ok {
		return nil, ErrUnsupportedRouteConfig
	}

	var virtualHosts []*VirtualHost
	for _, v3vh := range routeSpec.RouteConfig.GetVirtualHosts() {
		for _, domain := range v3vh.GetDomains() {
			if _, err := filepath.Match(domain, ""); err != nil {
				return nil, &BadDomainGlobError{Pattern: domain, Err: err}
			}
		}

		var routes []*route.Route
		for _, v3route := range v3vh.GetRoutes() {
			r, err := route.Compile(v3route)
			if err != nil {
				continue
			}
			routes = append(routes, r)
		}

		virtualHosts = append(virtualHosts, &VirtualHost{
			Name:    v3vh.GetName(),
			Domains: v3vh.GetDomains(),
			Routes:  routes,
		})
	}

	return &HCM{VirtualHosts: virtualHosts, Table: table}, nil
}

// GetCluster resolves a request to a cluster: Host header lookup, then
// first matching virtual host (in configured order), then first matching
// route within it (in configured order). The cluster table is loaded once
// per call so a concurrent swap cannot produce a dangling reference.
func (h *HCM) GetCluster(r *http.Request) (*cluster.Cluster, bool) {
	host := r.Host
	if host == "" {
		return nil, false
	}

	for _, vh := range h.VirtualHosts {
		if !vh.matchesHost(host) {
			continue
		}
		for _, rt := range vh.Routes {
			action, ok := rt.Matches(r.URL.Path)
			if !ok {
				continue
			}
			c, ok := h.Table.Get(action.ClusterName)
			return c, ok
		}
		// Deliberate: stop at the first matching virtual host even
		// with no matching route inside it, per spec.md §4.3 step 4
		// ("on no match, return none"). The original implementation's
		// get_cluster instead falls through to the next virtual host
		// in this case; see DESIGN.md for why this proxy keeps the
		// stricter first-match policy instead.
		return nil, false
	}
	return nil, false
}
