package route

import (
	"testing"

	routev3 "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withClusterAction(clusterName string) *routev3.Route_Route {
	return &routev3.Route_Route{
		Route: &routev3.RouteAction{
			ClusterSpecifier: &routev3.RouteAction_Cluster{Cluster: clusterName},
		},
	}
}

func TestCompile(t *testing.T) {
	t.Run("missing match", func(t *testing.T) {
		_, err := Compile(&routev3.Route{Action: withClusterAction("svc_a")})
		assert.ErrorIs(t, err, ErrMissingMatch)
	})

	t.Run("missing action", func(t *testing.T) {
		_, err := Compile(&routev3.Route{
			Match: &routev3.RouteMatch{PathSpecifier: &routev3.RouteMatch_Prefix{Prefix: "/"}},
		})
		assert.ErrorIs(t, err, ErrMissingAction)
	})

	t.Run("unsupported match type", func(t *testing.T) {
		_, err := Compile(&routev3.Route{
			Match:  &routev3.RouteMatch{},
			Action: withClusterAction("svc_a"),
		})
		assert.ErrorIs(t, err, ErrUnsupportedMatchType)
	})

	t.Run("unsupported cluster specifier", func(t *testing.T) {
		_, err := Compile(&routev3.Route{
			Match: &routev3.RouteMatch{PathSpecifier: &routev3.RouteMatch_Prefix{Prefix: "/"}},
			Action: &routev3.Route_Route{
				Route: &routev3.RouteAction{},
			},
		})
		assert.ErrorIs(t, err, ErrUnsupportedClusterSpecifier)
	})

	t.Run("prefix route compiles and matches", func(t *testing.T) {
		r, err := Compile(&routev3.Route{
			Match:  &routev3.RouteMatch{PathSpecifier: &routev3.RouteMatch_Prefix{Prefix: "/api"}},
			Action: withClusterAction("svc_a"),
		})
		require.NoError(t, err)

		action, ok := r.Matches("/api/v1/widgets")
		require.True(t, ok)
		assert.Equal(t, "svc_a", action.ClusterName)

		_, ok = r.Matches("/other")
		assert.False(t, ok)
	})

	t.Run("empty prefix matches everything", func(t *testing.T) {
		r, err := Compile(&routev3.Route{
			Match:  &routev3.RouteMatch{PathSpecifier: &routev3.RouteMatch_Prefix{Prefix: ""}},
			Action: withClusterAction("svc_a"),
		})
		require.NoError(t, err)

		_, ok := r.Matches("/anything/at/all")
		assert.True(t, ok)
	})

	t.Run("exact path matches only the empty path when empty", func(t *testing.T) {
		r, err := Compile(&routev3.Route{
			Match:  &routev3.RouteMatch{PathSpecifier: &routev3.RouteMatch_Path{Path: ""}},
			Action: withClusterAction("svc_a"),
		})
		require.NoError(t, err)

		_, ok := r.Matches("")
		assert.True(t, ok)

		_, ok = r.Matches("/")
		assert.False(t, ok)
	})
}
