// Package requests models the validated request envelope enqueued by the
// API and consumed by the worker (§3.4, §9). Validation happens once, in
// the constructors below, so a request already on the queue is always
// well-formed — the worker never re-validates.
package requests

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kaiyote/envoycfgd/internal/apierr"
)

// Mode selects whether a request adds or removes an entity.
type Mode string

const (
	ModeAdd    Mode = "add"
	ModeRemove Mode = "remove"
)

func (m Mode) valid() bool { return m == ModeAdd || m == ModeRemove }

// HeaderKV is one "key"/"value" pair inside a request_headers_to_add entry.
type HeaderKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// HeaderToAdd is one entry of a route's request_headers_to_add list.
type HeaderToAdd struct {
	Header HeaderKV `json:"header"`
	Append bool     `json:"append"`
}

// RoutePayload is the "route" object nested inside an endpoints payload.
type RoutePayload struct {
	Prefix              string        `json:"prefix"`
	RequestHeadersToAdd []HeaderToAdd `json:"request_headers_to_add"`
}

// EndpointsPayload is the "endpoints" case of the request envelope (§3.4).
type EndpointsPayload struct {
	PortValue string       `json:"port_value"`
	Route     RoutePayload `json:"route"`
}

// ServersPayload is the "servers" case of the request envelope (§3.4).
type ServersPayload struct {
	Port    int    `json:"port"`
	Address string `json:"address"`
}

// Envelope is the sum type enqueued onto the request stream: exactly one
// of Endpoints or Servers is set (§9 — "sum type for requests").
type Envelope struct {
	Mode         Mode              `json:"mode"`
	EndpointUUID string            `json:"endpoint_uuid"`
	Endpoints    *EndpointsPayload `json:"endpoints,omitempty"`
	Servers      *ServersPayload   `json:"servers,omitempty"`
}

// JSON serialises the envelope for the queue.
func (e *Envelope) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEnvelope decodes a queue entry back into an Envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// NewEndpoint validates and builds an "endpoints" envelope, mirroring the
// original Endpoint request's constructor checks.
func NewEndpoint(mode Mode, portValue, prefix, hostHeader, endpointUUID string) (*Envelope, error) {
	if !mode.valid() {
		return nil, apierr.NewInvalidParameter("mode")
	}
	if portValue == "" {
		return nil, apierr.NewInvalidParameter("port_value")
	}
	if _, err := strconv.Atoi(portValue); err != nil {
		return nil, apierr.NewInvalidParameter("port_value")
	}
	if prefix == "" || !strings.Contains(prefix, "/") {
		return nil, apierr.NewInvalidParameter("route")
	}
	if hostHeader == "" || !strings.Contains(hostHeader, ".") {
		return nil, apierr.NewInvalidParameter("host_header")
	}
	if len(endpointUUID) != 32 {
		return nil, apierr.NewInvalidParameter("endpoint_uuid")
	}

	return &Envelope{
		Mode:         mode,
		EndpointUUID: endpointUUID,
		Endpoints: &EndpointsPayload{
			PortValue: portValue,
			Route: RoutePayload{
				Prefix: prefix,
				RequestHeadersToAdd: []HeaderToAdd{
					{Header: HeaderKV{Key: "Host", Value: hostHeader}, Append: false},
				},
			},
		},
	}, nil
}

// NewServer validates and builds a "servers" envelope, mirroring the
// original Server request's constructor checks.
func NewServer(mode Mode, address string, port int, endpointUUID string) (*Envelope, error) {
	if !mode.valid() {
		return nil, apierr.NewInvalidParameter("mode")
	}
	if port == 0 {
		return nil, apierr.NewInvalidParameter("port")
	}
	if address == "" || !strings.Contains(address, ".") {
		return nil, apierr.NewInvalidParameter("address")
	}
	if len(endpointUUID) != 32 {
		return nil, apierr.NewInvalidParameter("endpoint_uuid")
	}

	return &Envelope{
		Mode:         mode,
		EndpointUUID: endpointUUID,
		Servers: &ServersPayload{
			Port:    port,
			Address: address,
		},
	}, nil
}
