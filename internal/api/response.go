// Package api implements the HTTP management surface: request validation,
// enqueueing, and read-only projections of the snapshot and indexes
// (§4.3, §6.3). Handlers never touch the Config or the on-disk files
// directly — only the store.
package api

import (
	"encoding/json"

	"github.com/kaiyote/envoycfgd/internal/entity/conf"
	"github.com/kaiyote/envoycfgd/internal/identity"
	"github.com/kaiyote/envoycfgd/internal/requests"
)

// routeShort is the short per-route projection used by listing endpoints:
// no backend servers, just the route's own identity (§6.3).
type routeShort struct {
	EndpointUUID        string                     `json:"endpoint_uuid"`
	Prefix              string                     `json:"prefix"`
	RequestHeadersToAdd []requests.HeaderToAdd      `json:"request_headers_to_add"`
}

// backendServer is one joined EDS endpoint in the full projection.
type backendServer struct {
	ServerUUID string `json:"server_uuid"`
	Address    struct {
		SocketAddress struct {
			Address   string `json:"address"`
			PortValue int    `json:"port_value"`
		} `json:"socket_address"`
	} `json:"address"`
}

// routeFull is the full per-route projection: identity plus the joined
// lb_policy and backend server list (§6.3).
type routeFull struct {
	EndpointUUID        string                `json:"endpoint_uuid"`
	Prefix              string                `json:"prefix"`
	RequestHeadersToAdd []requests.HeaderToAdd `json:"request_headers_to_add"`
	LbPolicy            string                `json:"lb_policy"`
	Endpoints           []backendServer        `json:"endpoints"`
}

type filterBlock[T any] struct {
	Domains []string `json:"domains"`
	Routes  []T      `json:"routes"`
}

type endpointDoc[T any] struct {
	Address   string          `json:"address"`
	PortValue string          `json:"port_value"`
	Filters   []filterBlock[T] `json:"filters"`
}

type listing[T any] struct {
	Endpoints []endpointDoc[T] `json:"endpoints"`
}

func toRouteShort(port string, rt routeView) routeShort {
	return routeShort{
		EndpointUUID:        identity.Endpoint(port, rt.Prefix),
		Prefix:              rt.Prefix,
		RequestHeadersToAdd: rt.RequestHeadersToAdd,
	}
}

// routeView is the minimal shape response building needs from an lds.Route,
// kept local so this package never imports the lds package's Route type
// directly and depends only on plain data.
type routeView struct {
	Prefix              string
	ClusterName         string
	RequestHeadersToAdd []requests.HeaderToAdd
}

func routesOf(c *conf.Config, resourceIdx int) []routeView {
	res := c.Lds.Resources()[resourceIdx]
	out := make([]routeView, 0, len(res.Routes))
	for _, rt := range res.Routes {
		headers := make([]requests.HeaderToAdd, 0, len(rt.RequestHeadersToAdd))
		for _, h := range rt.RequestHeadersToAdd {
			headers = append(headers, requests.HeaderToAdd{
				Header: requests.HeaderKV{Key: h.Header.Key, Value: h.Header.Value},
				Append: h.Append,
			})
		}
		out = append(out, routeView{Prefix: rt.Prefix, ClusterName: rt.ClusterName, RequestHeadersToAdd: headers})
	}
	return out
}

// buildShortListing projects every listener and all of its routes (§6.3
// short projection; mirrors make_response_with_routeshort).
func buildShortListing(c *conf.Config) []byte {
	var out listing[routeShort]
	for idx, res := range c.Lds.Resources() {
		var routes []routeShort
		for _, rt := range routesOf(c, idx) {
			routes = append(routes, toRouteShort(res.Port, rt))
		}
		if routes == nil {
			routes = []routeShort{}
		}
		out.Endpoints = append(out.Endpoints, endpointDoc[routeShort]{
			Address:   "0.0.0.0",
			PortValue: res.Port,
			Filters:   []filterBlock[routeShort]{{Domains: []string{"*"}, Routes: routes}},
		})
	}
	if out.Endpoints == nil {
		out.Endpoints = []endpointDoc[routeShort]{}
	}
	b, _ := json.Marshal(out) //nolint:errcheck
	return b
}

// buildShortSingle projects one listener's single indexed route (§6.3;
// mirrors make_response_with_routeshort_idx).
func buildShortSingle(c *conf.Config, resourceIdx, routeIdx int) []byte {
	res := c.Lds.Resources()[resourceIdx]
	rt := routesOf(c, resourceIdx)[routeIdx]

	out := listing[routeShort]{Endpoints: []endpointDoc[routeShort]{{
		Address:   "0.0.0.0",
		PortValue: res.Port,
		Filters:   []filterBlock[routeShort]{{Domains: []string{"*"}, Routes: []routeShort{toRouteShort(res.Port, rt)}}},
	}}}
	b, _ := json.Marshal(out) //nolint:errcheck
	return b
}

// buildFull projects one listener's single indexed route, joined with its
// backend servers via CDS service_name → EDS cluster_name (§6.3; mirrors
// make_response).
func buildFull(c *conf.Config, resourceIdx, routeIdx int) []byte {
	edsByCluster := make(map[string][]backendServer)
	for _, res := range c.Eds.Resources() {
		var servers []backendServer
		for _, ep := range res.Endpoints {
			var bs backendServer
			bs.ServerUUID = identity.Server(ep.Address, ep.Port)
			bs.Address.SocketAddress.Address = ep.Address
			bs.Address.SocketAddress.PortValue = ep.Port
			servers = append(servers, bs)
		}
		edsByCluster[res.ClusterName] = servers
	}

	type clusterInfo struct {
		serviceName string
		lbPolicy    string
	}
	cdsByName := make(map[string]clusterInfo)
	for _, res := range c.Cds.Resources() {
		cdsByName[res.ClusterName] = clusterInfo{serviceName: res.ServiceName, lbPolicy: res.LbPolicy}
	}

	ldsRes := c.Lds.Resources()[resourceIdx]
	rt := routesOf(c, resourceIdx)[routeIdx]
	info := cdsByName[rt.ClusterName]

	servers := edsByCluster[info.serviceName]
	if servers == nil {
		servers = []backendServer{}
	}

	full := routeFull{
		EndpointUUID:        identity.Endpoint(ldsRes.Port, rt.Prefix),
		Prefix:              rt.Prefix,
		RequestHeadersToAdd: rt.RequestHeadersToAdd,
		LbPolicy:            info.lbPolicy,
		Endpoints:           servers,
	}

	out := listing[routeFull]{Endpoints: []endpointDoc[routeFull]{{
		Address:   "0.0.0.0",
		PortValue: ldsRes.Port,
		Filters:   []filterBlock[routeFull]{{Domains: []string{"*"}, Routes: []routeFull{full}}},
	}}}
	b, _ := json.Marshal(out) //nolint:errcheck
	return b
}
