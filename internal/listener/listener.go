// Package listener implements the per-connection/per-request service
// factory: given a request, ask the HCM for a cluster and forward to it,
// or render a 404 on a routing miss.
package listener

import (
	"errors"
	"fmt"
	"net/http"

	listenerv3 "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"
	hcmv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/http_connection_manager/v3"

	"github.com/bpowers/ronvoy/internal/cluster"
	"github.com/bpowers/ronvoy/internal/hcm"
	"github.com/bpowers/ronvoy/internal/httperr"
	"github.com/bpowers/ronvoy/internal/xdsaddr"
)

// httpConnectionManagerFilter is the only network filter name this proxy
// understands.
const httpConnectionManagerFilter = "envoy.filters.network.http_connection_manager"

// Errors returned by Compile.
var (
	ErrNoFilterChains       = errors.New("listener: expected exactly one filter chain")
	ErrNoFilters            = errors.New("listener: filter chain has no filters")
	ErrUnexpectedFilterName = errors.New("listener: first filter is not the http connection manager")
	ErrMissingTypedConfig   = errors.New("listener: filter is missing a typed_config")
	ErrMissingAddress       = errors.New("listener: missing listener address")
)

// Service is a listener's request handler: given a request it asks the HCM
// for a cluster and forwards, or renders a 404 JSON body on a routing
// miss. Cheaply copyable — it holds only the listener name, the address it
// was bound from and a shared HCM pointer.
type Service struct {
	Name       string
	ListenAddr xdsaddr.Address
	hcm        *hcm.HCM
}

// ServeHTTP implements http.Handler: the request-level half of the
// two-level listener/connection service factory. No per-connection state
// beyond the shared HCM reference and addresses is needed, so the
// connection level collapses into this single handler per spec.md §9.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, ok := s.hcm.GetCluster(r)
	if !ok {
		httperr.JSON(w, http.StatusNotFound, "routing to upstream cluster failed")
		return
	}
	c.Forward(w, r)
}

// Compile builds a listener Service from a v3 Listener message and the
// cluster table it should route against. Any deviation from "exactly one
// filter chain, whose first filter is the http connection manager, with a
// typed_config that decodes as an HCM message" is a hard error.
func Compile(v3listener *listenerv3.Listener, table *cluster.Table) (*Service, error) {
	chains := v3listener.GetFilterChains()
	if len(chains) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrNoFilterChains, len(chains))
	}

	filters := chains[0].GetFilters()
	if len(filters) == 0 {
		return nil, ErrNoFilters
	}

	filter := filters[0]
	if filter.GetName() != httpConnectionManagerFilter {
		return nil, fmt.Errorf("%w: got %q", ErrUnexpectedFilterName, filter.GetName())
	}

	typedConfig, ok := filter.GetConfigType().(*listenerv3.Filter_TypedConfig)
	if !ok || typedConfig.TypedConfig == nil {
		return nil, ErrMissingTypedConfig
	}

	v3hcm := &hcmv3.HttpConnectionManager{}
	if err := typedConfig.TypedConfig.UnmarshalTo(v3hcm); err != nil {
		return nil, fmt.Errorf("listener: decoding http connection manager: %w", err)
	}

	compiledHCM, err := hcm.Compile(v3hcm, table)
	if err != nil {
		return nil, fmt.Errorf("listener: %w", err)
	}

	if v3listener.GetAddress() == nil {
		return nil, ErrMissingAddress
	}
	addr, err := xdsaddr.Compile(v3listener.GetAddress())
	if err != nil {
		return nil, fmt.Errorf("listener: %w", err)
	}

	return &Service{
		Name:       v3listener.GetName(),
		ListenAddr: addr,
		hcm:        compiledHCM,
	}, nil
}
