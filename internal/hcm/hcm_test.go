package hcm

import (
	"net/http/httptest"
	"testing"

	hcmv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/http_connection_manager/v3"
	routev3 "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/ronvoy/internal/cluster"
)

func prefixRoute(prefix, clusterName string) *routev3.Route {
	return &routev3.Route{
		Match: &routev3.RouteMatch{PathSpecifier: &routev3.RouteMatch_Prefix{Prefix: prefix}},
		Action: &routev3.Route_Route{
			Route: &routev3.RouteAction{
				ClusterSpecifier: &routev3.RouteAction_Cluster{Cluster: clusterName},
			},
		},
	}
}

func TestCompileRejectsBadDomainGlob(t *testing.T) {
	v3 := &hcmv3.HttpConnectionManager{
		RouteSpecifier: &hcmv3.HttpConnectionManager_RouteConfig{
			RouteConfig: &routev3.RouteConfiguration{
				VirtualHosts: []*routev3.VirtualHost{
					{Name: "bad", Domains: []string{"[invalid"}},
				},
			},
		},
	}

	_, err := Compile(v3, cluster.NewTable(nil))
	var badGlob *BadDomainGlobError
	require.ErrorAs(t, err, &badGlob)
}

func TestCompileRejectsNonStaticRouteConfig(t *testing.T) {
	_, err := Compile(&hcmv3.HttpConnectionManager{}, cluster.NewTable(nil))
	assert.ErrorIs(t, err, ErrUnsupportedRouteConfig)
}

func TestGetClusterFirstMatchPolicy(t *testing.T) {
	svcA := cluster.New("svc_a", nil)
	table := cluster.NewTable(map[string]*cluster.Cluster{"svc_a": svcA})

	v3 := &hcmv3.HttpConnectionManager{
		RouteSpecifier: &hcmv3.HttpConnectionManager_RouteConfig{
			RouteConfig: &routev3.RouteConfiguration{
				VirtualHosts: []*routev3.VirtualHost{
					{
						Name:    "wildcard",
						Domains: []string{"*"},
						Routes:  []*routev3.Route{prefixRoute("/", "svc_a")},
					},
				},
			},
		},
	}

	h, err := Compile(v3, table)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/anything", nil)
	req.Host = "example.com"
	c, ok := h.GetCluster(req)
	require.True(t, ok)
	assert.Same(t, svcA, c)
}

func TestGetClusterNoMatchingHost(t *testing.T) {
	table := cluster.NewTable(map[string]*cluster.Cluster{"svc_a": cluster.New("svc_a", nil)})
	v3 := &hcmv3.HttpConnectionManager{
		RouteSpecifier: &hcmv3.HttpConnectionManager_RouteConfig{
			RouteConfig: &routev3.RouteConfiguration{
				VirtualHosts: []*routev3.VirtualHost{
					{Name: "only", Domains: []string{"only.example.com"}, Routes: []*routev3.Route{prefixRoute("/", "svc_a")}},
				},
			},
		},
	}
	h, err := Compile(v3, table)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Host = "nope.example"
	_, ok := h.GetCluster(req)
	assert.False(t, ok)
}

func TestDomainGlobDoesNotMatchDnsWildcardSemantics(t *testing.T) {
	table := cluster.NewTable(map[string]*cluster.Cluster{"svc_a": cluster.New("svc_a", nil)})
	v3 := &hcmv3.HttpConnectionManager{
		RouteSpecifier: &hcmv3.HttpConnectionManager_RouteConfig{
			RouteConfig: &routev3.RouteConfiguration{
				VirtualHosts: []*routev3.VirtualHost{
					{Name: "sub", Domains: []string{"*.example.com"}, Routes: []*routev3.Route{prefixRoute("/", "svc_a")}},
				},
			},
		},
	}
	h, err := Compile(v3, table)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Host = "example.com"
	_, ok := h.GetCluster(req)
	assert.False(t, ok, "a shell glob *.example.com must not match the bare domain")
}

func TestGetClusterDoesNotFallThroughToLaterVirtualHost(t *testing.T) {
	table := cluster.NewTable(map[string]*cluster.Cluster{"svc_a": cluster.New("svc_a", nil)})
	v3 := &hcmv3.HttpConnectionManager{
		RouteSpecifier: &hcmv3.HttpConnectionManager_RouteConfig{
			RouteConfig: &routev3.RouteConfiguration{
				VirtualHosts: []*routev3.VirtualHost{
					{
						Name:    "no-route",
						Domains: []string{"example.com"},
						Routes:  []*routev3.Route{prefixRoute("/only-here", "svc_a")},
					},
					{
						Name:    "also-matches",
						Domains: []string{"example.com"},
						Routes:  []*routev3.Route{prefixRoute("/", "svc_a")},
					},
				},
			},
		},
	}
	h, err := Compile(v3, table)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/elsewhere", nil)
	req.Host = "example.com"
	_, ok := h.GetCluster(req)
	assert.False(t, ok, "first matching virtual host's lack of a matching route must not fall through to a later virtual host")
}

func TestHostMatchingIsCaseSensitive(t *testing.T) {
	table := cluster.NewTable(map[string]*cluster.Cluster{"svc_a": cluster.New("svc_a", nil)})
	v3 := &hcmv3.HttpConnectionManager{
		RouteSpecifier: &hcmv3.HttpConnectionManager_RouteConfig{
			RouteConfig: &routev3.RouteConfiguration{
				VirtualHosts: []*routev3.VirtualHost{
					{Name: "vh", Domains: []string{"Example.com"}, Routes: []*routev3.Route{prefixRoute("/", "svc_a")}},
				},
			},
		},
	}
	h, err := Compile(v3, table)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Host = "example.com"
	_, ok := h.GetCluster(req)
	assert.False(t, ok, "Host matching is byte-exact, not case-insensitive")
}
