// Package cluster owns upstream endpoint pools and the round-robin
// forwarding path, plus the atomically swappable cluster table.
package cluster

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	clusterv3 "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	endpointv3 "github.com/envoyproxy/go-control-plane/envoy/config/endpoint/v3"

	"github.com/bpowers/ronvoy/internal/httperr"
	"github.com/bpowers/ronvoy/internal/xdsaddr"
)

// Cluster owns an immutable endpoint list, a round-robin cursor, and a
// pooled HTTP/1.1 client used to forward requests to the chosen endpoint.
//
// A Cluster is safe for concurrent use: Endpoints never changes after
// construction, and cursor is only ever touched through sync/atomic.
type Cluster struct {
	Name      string
	Endpoints []xdsaddr.Address

	cursor atomic.Uint64
	client *http.Client
}

// New builds a Cluster around a fixed endpoint list and a pooled client.
func New(name string, endpoints []xdsaddr.Address) *Cluster {
	return &Cluster{
		Name:      name,
		Endpoints: endpoints,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        256,
				MaxIdleConnsPerHost: 64,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// nextEndpoint picks the next endpoint via a sequentially consistent
// fetch-and-increment, so no two concurrent dispatches in a single
// N-sized window ever observe the same index.
func (c *Cluster) nextEndpoint() (xdsaddr.Address, bool) {
	n := len(c.Endpoints)
	if n == 0 {
		return xdsaddr.Address{}, false
	}
	cursorAfter := c.cursor.Add(1)
	idx := (cursorAfter - 1) % uint64(n)
	return c.Endpoints[idx], true
}

// Forward rewrites the request's URI to point at the next round-robin
// endpoint and dispatches it via the cluster's pooled client. It never
// returns an error to the caller: upstream failures become a synthetic 503
// JSON response, and an empty endpoint list becomes a synthetic 503 before
// any dispatch is attempted.
func (c *Cluster) Forward(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := c.nextEndpoint()
	if !ok {
		httperr.JSON(w, http.StatusServiceUnavailable, "no endpoints")
		return
	}

	outReq := r.Clone(r.Context())
	outReq.RequestURI = ""
	outReq.URL.Scheme = "http"
	outReq.URL.Host = endpoint.String()
	// Host header is deliberately left untouched: see spec.md §9 open
	// question on transparent-proxy vs. rewrite semantics.

	resp, err := c.client.Do(outReq)
	if err != nil {
		httperr.JSON(w, http.StatusServiceUnavailable, fmt.Sprintf("upstream error: %s", err))
		return
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// LbPolicy enumerates the load-balancing policies this proxy understands.
// Only RoundRobin is implemented; anything else compiles down to
// RoundRobin with a logged downgrade (see ingest).
type LbPolicy int

const (
	LbRoundRobin LbPolicy = iota
)

// CompileLbPolicy maps a v3 LbPolicy onto the policy this proxy supports.
// Unsupported policies are not an error: they downgrade to RoundRobin, the
// same behavior the original implementation used (a "TODO: unsupported"
// warning, not a hard failure).
func CompileLbPolicy(v3policy clusterv3.Cluster_LbPolicy) (LbPolicy, bool) {
	if v3policy == clusterv3.Cluster_ROUND_ROBIN {
		return LbRoundRobin, true
	}
	return LbRoundRobin, false
}

// EndpointsFromLoadAssignment flattens a v3 ClusterLoadAssignment's
// locality endpoints into a compiled Address slice, dropping any endpoint
// that fails address compilation.
func EndpointsFromLoadAssignment(la *endpointv3.ClusterLoadAssignment) []xdsaddr.Address {
	if la == nil {
		return nil
	}
	var out []xdsaddr.Address
	for _, locality := range la.GetEndpoints() {
		for _, lbEndpoint := range locality.GetLbEndpoints() {
			ep, ok := lbEndpoint.GetHostIdentifier().(*endpointv3.LbEndpoint_Endpoint)
			if !ok || ep.Endpoint == nil {
				continue
			}
			addr, err := xdsaddr.Compile(ep.Endpoint.GetAddress())
			if err != nil {
				continue
			}
			out = append(out, addr)
		}
	}
	return out
}
