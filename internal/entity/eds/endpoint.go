// Package eds implements the Endpoint Discovery document: a flat list of
// cluster load assignments, each identified by cluster name (the
// endpoint_uuid), holding the backing server addresses (§3.1, §4.3.1).
package eds

import "github.com/kaiyote/envoycfgd/internal/requests"

// SocketAddressDoc is the backend server's address/port pair.
type SocketAddressDoc struct {
	Address   string `json:"address"`
	PortValue int    `json:"port_value"`
}

// EndpointDoc wraps the socket address the way Envoy's LbEndpoint nests it.
type EndpointDoc struct {
	Endpoint struct {
		Address struct {
			SocketAddress SocketAddressDoc `json:"socket_address"`
		} `json:"address"`
	} `json:"endpoint"`
}

// endpointTemplate mirrors the original source's EndpointTemplate dict
// (entity/eds/endpoint.py), rebuilt fresh on every call.
func endpointTemplate() EndpointDoc {
	var doc EndpointDoc
	doc.Endpoint.Address.SocketAddress = SocketAddressDoc{Address: "127.0.0.1", PortValue: 8080}
	return doc
}

// LbEndpoint is one backend server entry of an EDS resource.
type LbEndpoint struct {
	doc EndpointDoc

	Address string
	Port    int
}

// NewLbEndpointFromDoc decodes one endpoint's wire form.
func NewLbEndpointFromDoc(doc EndpointDoc) *LbEndpoint {
	return &LbEndpoint{
		doc:     doc,
		Address: doc.Endpoint.Address.SocketAddress.Address,
		Port:    doc.Endpoint.Address.SocketAddress.PortValue,
	}
}

// NewLbEndpointFromTemplate builds a fresh endpoint from the endpoint
// template, ready for ApplyRequest.
func NewLbEndpointFromTemplate() *LbEndpoint {
	return NewLbEndpointFromDoc(endpointTemplate())
}

// ApplyRequest sets this endpoint's address/port from a validated servers
// payload (§4.3 applyRequest).
func (e *LbEndpoint) ApplyRequest(payload requests.ServersPayload) {
	e.Address = payload.Address
	e.Port = payload.Port
}

// Doc rebuilds and returns the wire representation.
func (e *LbEndpoint) Doc() EndpointDoc {
	e.doc.Endpoint.Address.SocketAddress.Address = e.Address
	e.doc.Endpoint.Address.SocketAddress.PortValue = e.Port
	return e.doc
}

// Clone returns a deep copy safe to mutate independently of e.
func (e *LbEndpoint) Clone() *LbEndpoint {
	return &LbEndpoint{doc: e.Doc(), Address: e.Address, Port: e.Port}
}
