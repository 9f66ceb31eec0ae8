package lds

import (
	"encoding/json"

	"github.com/kaiyote/envoycfgd/internal/requests"
)

// SocketAddress is the listener's bind address.
type SocketAddress struct {
	Address   string `json:"address"`
	PortValue string `json:"port_value"`
}

// AccessLogTypedConfig is the file access logger's typed_config.
type AccessLogTypedConfig struct {
	Type string `json:"@type"`
	Path string `json:"path"`
}

// AccessLog is one entry of the HCM's access_log list.
type AccessLog struct {
	Name        string               `json:"name"`
	TypedConfig AccessLogTypedConfig `json:"typed_config"`
}

// VirtualHost groups routes under a set of matching Host domains.
type VirtualHost struct {
	Name    string     `json:"name"`
	Domains []string   `json:"domains"`
	Routes  []RouteDoc `json:"routes"`
}

// RouteConfig is the HCM's inline route_config.
type RouteConfig struct {
	Name         string        `json:"name"`
	VirtualHosts []VirtualHost `json:"virtual_hosts"`
}

// HTTPFilter is one entry of the HCM's http_filters chain.
type HTTPFilter struct {
	Name       string                 `json:"name"`
	TypedConfig map[string]any        `json:"typed_config"`
}

// HCMTypedConfig is the HttpConnectionManager's typed_config.
type HCMTypedConfig struct {
	Type        string       `json:"@type"`
	AccessLog   []AccessLog  `json:"access_log"`
	StatPrefix  string       `json:"stat_prefix"`
	CodecType   string       `json:"codec_type"`
	RouteConfig RouteConfig  `json:"route_config"`
	HTTPFilters []HTTPFilter `json:"http_filters"`
}

// Filter is one network filter in a filter chain.
type Filter struct {
	Name        string         `json:"name"`
	TypedConfig HCMTypedConfig `json:"typed_config"`
}

// FilterChain groups filters applied to accepted connections.
type FilterChain struct {
	Filters []Filter `json:"filters"`
}

// ResourceDoc is the on-the-wire shape of one LDS resource (one listener).
type ResourceDoc struct {
	Type         string        `json:"@type"`
	Address      struct {
		SocketAddress SocketAddress `json:"socket_address"`
	} `json:"address"`
	FilterChains []FilterChain `json:"filter_chains"`
}

// resourceTemplate mirrors the original source's ResourceTemplate dict
// (entity/lds/resource.py), rebuilt fresh on every call so callers never
// alias a shared template.
func resourceTemplate() ResourceDoc {
	var doc ResourceDoc
	doc.Type = "type.googleapis.com/envoy.config.listener.v3.Listener"
	doc.Address.SocketAddress = SocketAddress{Address: "0.0.0.0", PortValue: "18080"}
	doc.FilterChains = []FilterChain{
		{
			Filters: []Filter{
				{
					Name: "envoy.filters.network.http_connection_manager",
					TypedConfig: HCMTypedConfig{
						Type: "type.googleapis.com/envoy.extensions.filters.network.http_connection_manager.v3.HttpConnectionManager",
						AccessLog: []AccessLog{
							{
								Name: "envoy.access_loggers.file",
								TypedConfig: AccessLogTypedConfig{
									Type: "type.googleapis.com/envoy.extensions.access_loggers.file.v3.FileAccessLog",
									Path: "/dev/stdout",
								},
							},
						},
						StatPrefix: "ingress_http",
						CodecType:  "AUTO",
						RouteConfig: RouteConfig{
							Name: "local_route",
							VirtualHosts: []VirtualHost{
								{Name: "local_service", Domains: []string{"*"}, Routes: []RouteDoc{}},
							},
						},
						HTTPFilters: []HTTPFilter{
							{Name: "envoy.filters.http.router", TypedConfig: map[string]any{}},
						},
					},
				},
			},
		},
	}
	return doc
}

// Resource is one LDS listener resource: a port plus its ordered routes.
type Resource struct {
	doc ResourceDoc

	Port   string
	Routes []*Route
}

// NewResourceFromDoc decodes a resource's nested filter chains into a flat
// route list (mirrors entity/lds/resource.py's constructor).
func NewResourceFromDoc(doc ResourceDoc) *Resource {
	res := &Resource{doc: doc}
	res.Port = doc.Address.SocketAddress.PortValue

	var routes []*Route
	for _, fc := range doc.FilterChains {
		for _, f := range fc.Filters {
			for _, vh := range f.TypedConfig.RouteConfig.VirtualHosts {
				for _, rd := range vh.Routes {
					routes = append(routes, NewRouteFromDoc(rd))
				}
			}
		}
	}
	res.Routes = routes
	return res
}

// NewResourceFromTemplate builds a fresh resource from the listener
// template, ready for ApplyRequest.
func NewResourceFromTemplate() *Resource {
	return NewResourceFromDoc(resourceTemplate())
}

// ApplyRequest replaces this resource's port and single route from a
// validated endpoints payload (§4.1's applyRequest contract).
func (r *Resource) ApplyRequest(portValue string, route requests.RoutePayload, endpointUUID string) {
	r.Port = portValue
	rt := NewRouteFromDoc(RouteTemplate())
	rt.ApplyRequest(route, endpointUUID)
	r.Routes = []*Route{rt}
}

// Doc rebuilds and returns the wire representation.
func (r *Resource) Doc() ResourceDoc {
	r.doc.Address.SocketAddress.PortValue = r.Port

	docs := make([]RouteDoc, 0, len(r.Routes))
	for _, rt := range r.Routes {
		docs = append(docs, rt.Doc())
	}
	r.doc.FilterChains[0].Filters[0].TypedConfig.RouteConfig.VirtualHosts[0].Routes = docs
	return r.doc
}

// JSON returns the canonical serialised form.
func (r *Resource) JSON() string {
	b, _ := json.Marshal(r.Doc()) //nolint:errcheck
	return string(b)
}

// Clone returns a deep copy safe to mutate independently of r.
func (r *Resource) Clone() *Resource {
	routes := make([]*Route, len(r.Routes))
	for i, rt := range r.Routes {
		routes[i] = rt.Clone()
	}
	return &Resource{doc: r.Doc(), Port: r.Port, Routes: routes}
}
