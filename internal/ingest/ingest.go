// Package ingest walks a parsed Envoy v3 bootstrap document and builds the
// in-memory routing model: the cluster table, the listener services, and
// the synthesized node identity.
package ingest

import (
	"log/slog"

	bootstrapv3 "github.com/envoyproxy/go-control-plane/envoy/config/bootstrap/v3"
	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"

	"github.com/bpowers/ronvoy/internal/buildinfo"
	"github.com/bpowers/ronvoy/internal/cluster"
	"github.com/bpowers/ronvoy/internal/listener"
)

// Proxy is the fully-ingested, runnable form of a bootstrap document: a
// cluster table and the listener services built against it.
type Proxy struct {
	Node      *corev3.Node
	Table     *cluster.Table
	Listeners []*listener.Service
}

// Load ingests a bootstrap document in the order spec.md §4.8 requires:
// clusters first, then the cluster table is published, then listeners are
// compiled against that table, then the node identity is synthesized.
// Per-listener compile errors are logged and the offending listener is
// dropped rather than failing the whole ingest; clusters never fail to
// compile (see BuildClusters).
func Load(log *slog.Logger, bootstrap *bootstrapv3.Bootstrap) *Proxy {
	clusters := BuildClusters(log, bootstrap)
	table := cluster.NewTable(clusters)
	listeners := BuildListeners(log, bootstrap, table)
	node := SynthesizeNode(bootstrap)

	return &Proxy{Node: node, Table: table, Listeners: listeners}
}

// BuildClusters compiles every static_resources.clusters entry. No cluster
// is dropped: an unsupported lb_policy is downgraded to round robin with a
// logged warning, and an endpoint whose address does not compile is skipped
// without a warning, leaving the cluster with the remaining endpoints.
func BuildClusters(log *slog.Logger, bootstrap *bootstrapv3.Bootstrap) map[string]*cluster.Cluster {
	out := map[string]*cluster.Cluster{}
	resources := bootstrap.GetStaticResources()
	if resources == nil {
		return out
	}

	for _, v3cluster := range resources.GetClusters() {
		if _, ok := cluster.CompileLbPolicy(v3cluster.GetLbPolicy()); !ok {
			log.Warn("cluster requests an unsupported lb_policy, downgrading to round_robin",
				"name", v3cluster.GetName(), "lb_policy", v3cluster.GetLbPolicy())
		}
		endpoints := cluster.EndpointsFromLoadAssignment(v3cluster.GetLoadAssignment())
		c := cluster.New(v3cluster.GetName(), endpoints)
		out[c.Name] = c
	}
	return out
}

// BuildListeners compiles every static_resources.listeners entry against
// the given cluster table. A listener that fails to compile is dropped
// with a logged warning.
func BuildListeners(log *slog.Logger, bootstrap *bootstrapv3.Bootstrap, table *cluster.Table) []*listener.Service {
	var out []*listener.Service
	resources := bootstrap.GetStaticResources()
	if resources == nil {
		return out
	}

	for _, v3listener := range resources.GetListeners() {
		svc, err := listener.Compile(v3listener, table)
		if err != nil {
			log.Warn("dropping listener: compile failed", "name", v3listener.GetName(), "error", err)
			continue
		}
		out = append(out, svc)
	}
	return out
}

// SynthesizeNode returns the configured node, or fabricates one, and then
// unconditionally stamps it with this binary's user agent identity,
// matching spec.md §4.8 step 4.
func SynthesizeNode(bootstrap *bootstrapv3.Bootstrap) *corev3.Node {
	node := bootstrap.GetNode()
	if node == nil {
		// No Node message at all: fabricate one wholesale, including an id.
		node = &corev3.Node{Id: "ronvoy-" + uuid.NewString()}
	} else {
		// A configured Node is left as-is, even an explicitly empty id.
		// Don't mutate the caller's bootstrap message.
		node = proto.Clone(node).(*corev3.Node)
	}

	node.UserAgentName = "ronvoy"
	node.UserAgentVersionType = &corev3.Node_UserAgentBuildVersion{
		UserAgentBuildVersion: &corev3.BuildVersion{
			Version: &typev3.SemanticVersion{
				MajorNumber: buildinfo.Major,
				MinorNumber: buildinfo.Minor,
				Patch:       buildinfo.Patch,
			},
		},
	}

	return node
}
