package eds

import "encoding/json"

// ResourceDoc is the on-the-wire shape of one EDS resource (one cluster
// load assignment).
type ResourceDoc struct {
	Type        string        `json:"@type"`
	ClusterName string        `json:"cluster_name"`
	Endpoints   []struct {
		LbEndpoints []EndpointDoc `json:"lb_endpoints"`
	} `json:"endpoints"`
}

// resourceTemplate mirrors the original source's ResourceTemplate dict
// (entity/eds/resource.py), rebuilt fresh on every call.
func resourceTemplate() ResourceDoc {
	var doc ResourceDoc
	doc.Type = "type.googleapis.com/envoy.config.endpoint.v3.ClusterLoadAssignment"
	doc.ClusterName = "service1"
	doc.Endpoints = []struct {
		LbEndpoints []EndpointDoc `json:"lb_endpoints"`
	}{
		{LbEndpoints: []EndpointDoc{}},
	}
	return doc
}

// Resource is one EDS cluster load assignment resource.
type Resource struct {
	doc ResourceDoc

	ClusterName string
	Endpoints   []*LbEndpoint
}

// NewResourceFromDoc decodes a resource's nested endpoints into a flat
// endpoint list (mirrors entity/eds/resource.py's constructor).
func NewResourceFromDoc(doc ResourceDoc) *Resource {
	res := &Resource{doc: doc, ClusterName: doc.ClusterName}
	var endpoints []*LbEndpoint
	for _, grp := range doc.Endpoints {
		for _, ed := range grp.LbEndpoints {
			endpoints = append(endpoints, NewLbEndpointFromDoc(ed))
		}
	}
	res.Endpoints = endpoints
	return res
}

// NewResourceFromTemplate builds a fresh resource from the cluster load
// assignment template, ready for ApplyRequest.
func NewResourceFromTemplate() *Resource {
	return NewResourceFromDoc(resourceTemplate())
}

// ApplyRequest sets this resource's cluster name from the owning
// endpoint_uuid (§4.3 applyRequest); the single backend server endpoint is
// applied by the caller onto Endpoints directly.
func (r *Resource) ApplyRequest(endpointUUID string) {
	r.ClusterName = endpointUUID
}

// Doc rebuilds and returns the wire representation.
func (r *Resource) Doc() ResourceDoc {
	r.doc.ClusterName = r.ClusterName
	docs := make([]EndpointDoc, 0, len(r.Endpoints))
	for _, e := range r.Endpoints {
		docs = append(docs, e.Doc())
	}
	r.doc.Endpoints = []struct {
		LbEndpoints []EndpointDoc `json:"lb_endpoints"`
	}{
		{LbEndpoints: docs},
	}
	return r.doc
}

// JSON returns the canonical serialised form.
func (r *Resource) JSON() string {
	b, _ := json.Marshal(r.Doc()) //nolint:errcheck
	return string(b)
}

// Clone returns a deep copy safe to mutate independently of r.
func (r *Resource) Clone() *Resource {
	endpoints := make([]*LbEndpoint, len(r.Endpoints))
	for i, e := range r.Endpoints {
		endpoints[i] = e.Clone()
	}
	return &Resource{doc: r.Doc(), ClusterName: r.ClusterName, Endpoints: endpoints}
}
