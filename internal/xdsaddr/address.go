// Package xdsaddr compiles an Envoy v3 Address message into a concrete
// socket endpoint. Only the SocketAddress variant is supported; pipe and
// envoy-internal addresses are rejected.
package xdsaddr

import (
	"errors"
	"fmt"
	"net"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
)

// Sentinel errors for the closed set of compilation failures.
var (
	ErrMissingValue = errors.New("address: missing value (possibly bad protobuf/serialization)")
	ErrMissingPort  = errors.New("address: missing port (possibly bad protobuf/serialization)")
)

// PortTooBigError reports a port value that does not fit in a uint16.
type PortTooBigError struct {
	Port uint32
}

func (e *PortTooBigError) Error() string {
	return fmt.Sprintf("address: port %d too big (max 65535)", e.Port)
}

// UnsupportedAddressError reports an address variant this proxy cannot use.
type UnsupportedAddressError struct {
	Kind string
}

func (e *UnsupportedAddressError) Error() string {
	return fmt.Sprintf("address: unsupported address %s", e.Kind)
}

// ParseError wraps a failure to parse a host string as an IP literal.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("address: parse error: %s", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// Address is a compiled socket endpoint. No DNS resolution is ever
// performed: Host is a literal IPv4/IPv6 address.
type Address struct {
	Host string
	Port uint32
}

// String renders the address as "host:port", suitable for use as an HTTP
// authority.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, fmt.Sprintf("%d", a.Port))
}

// Compile translates one v3 Address message into a socket Address.
func Compile(v3addr *corev3.Address) (Address, error) {
	if v3addr == nil || v3addr.Address == nil {
		return Address{}, ErrMissingValue
	}

	switch inner := v3addr.Address.(type) {
	case *corev3.Address_SocketAddress:
		sa := inner.SocketAddress
		portValue, ok := sa.GetPortSpecifier().(*corev3.SocketAddress_PortValue)
		if !ok {
			return Address{}, ErrMissingPort
		}
		port := portValue.PortValue
		if port > 65535 {
			return Address{}, &PortTooBigError{Port: port}
		}
		if ip := net.ParseIP(sa.GetAddress()); ip == nil {
			return Address{}, &ParseError{Err: fmt.Errorf("%q is not a valid IP literal", sa.GetAddress())}
		}
		return Address{Host: sa.GetAddress(), Port: port}, nil
	case *corev3.Address_Pipe:
		return Address{}, &UnsupportedAddressError{Kind: "pipe"}
	case *corev3.Address_EnvoyInternalAddress:
		return Address{}, &UnsupportedAddressError{Kind: "envoy_internal_address"}
	default:
		return Address{}, &UnsupportedAddressError{Kind: fmt.Sprintf("%T", inner)}
	}
}
