package lds

import (
	"encoding/json"

	"github.com/kaiyote/envoycfgd/internal/requests"
)

// HeaderToAdd mirrors the wire shape of a request_headers_to_add entry.
type HeaderToAdd struct {
	Header struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"header"`
	Append bool `json:"append"`
}

// RouteDoc is the on-the-wire shape of one LDS route (§3.1, §4.1.1).
type RouteDoc struct {
	Match struct {
		Prefix string `json:"prefix"`
	} `json:"match"`
	RequestHeadersToAdd []HeaderToAdd `json:"request_headers_to_add"`
	Route               struct {
		Cluster string `json:"cluster"`
	} `json:"route"`
}

// RouteTemplate is the skeleton a freshly applied request is built from.
func RouteTemplate() RouteDoc {
	doc := RouteDoc{}
	doc.Match.Prefix = "/"
	doc.RequestHeadersToAdd = []HeaderToAdd{}
	doc.Route.Cluster = "service1"
	return doc
}

// Route is a single route within an LDS resource, keeping a flattened view
// (Prefix, ClusterName, HostHeader) alongside the wire doc so merge logic
// never has to reach through the nested JSON shape directly.
type Route struct {
	doc RouteDoc

	Prefix              string
	ClusterName         string
	HostHeader          string
	RequestHeadersToAdd []HeaderToAdd
}

// NewRouteFromDoc builds a Route from its decoded wire form.
func NewRouteFromDoc(doc RouteDoc) *Route {
	rt := &Route{doc: doc}
	rt.Prefix = doc.Match.Prefix
	rt.ClusterName = doc.Route.Cluster
	rt.RequestHeadersToAdd = doc.RequestHeadersToAdd
	for _, h := range doc.RequestHeadersToAdd {
		if h.Header.Key == "Host" {
			rt.HostHeader = h.Header.Value
		}
	}
	return rt
}

// ApplyRequest replaces this route's identity from a validated route
// payload plus the owning endpoint_uuid, which becomes the route's
// cluster name.
func (rt *Route) ApplyRequest(payload requests.RoutePayload, endpointUUID string) {
	rt.Prefix = payload.Prefix
	rt.ClusterName = endpointUUID
	rt.RequestHeadersToAdd = toDocHeaders(payload.RequestHeadersToAdd)
	rt.HostHeader = ""
	for _, h := range rt.RequestHeadersToAdd {
		if h.Header.Key == "Host" {
			rt.HostHeader = h.Header.Value
		}
	}
}

func toDocHeaders(in []requests.HeaderToAdd) []HeaderToAdd {
	out := make([]HeaderToAdd, 0, len(in))
	for _, h := range in {
		var d HeaderToAdd
		d.Header.Key = h.Header.Key
		d.Header.Value = h.Header.Value
		d.Append = h.Append
		out = append(out, d)
	}
	return out
}

// Doc returns the up-to-date wire representation of the route.
func (rt *Route) Doc() RouteDoc {
	rt.doc.Match.Prefix = rt.Prefix
	rt.doc.RequestHeadersToAdd = rt.RequestHeadersToAdd
	rt.doc.Route.Cluster = rt.ClusterName
	return rt.doc
}

// JSON returns the canonical serialised form, used for dereference checks
// in Lds.Add (§4.1.1: "present and serialised form differs → replace").
func (rt *Route) JSON() string {
	b, _ := json.Marshal(rt.Doc()) //nolint:errcheck // RouteDoc always marshals
	return string(b)
}

// Clone returns a deep copy safe to mutate independently of rt.
func (rt *Route) Clone() *Route {
	headers := make([]HeaderToAdd, len(rt.RequestHeadersToAdd))
	copy(headers, rt.RequestHeadersToAdd)
	return &Route{
		doc:                 rt.doc,
		Prefix:              rt.Prefix,
		ClusterName:         rt.ClusterName,
		HostHeader:          rt.HostHeader,
		RequestHeadersToAdd: headers,
	}
}
