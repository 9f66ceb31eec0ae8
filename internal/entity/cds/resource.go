// Package cds implements the Cluster Discovery document: a flat list of
// cluster resources, each identified by name (the endpoint_uuid), holding
// the load-balancing policy and EDS linkage (§3.1, §4.2.1).
package cds

import "encoding/json"

// EdsClusterConfigDoc points a cluster at its EDS service_name. eds_config is
// file-based, not ADS: this system's proxy-facing transport is the three
// on-disk JSON files the proxy watches, not a gRPC xDS stream.
type EdsClusterConfigDoc struct {
	EdsConfig struct {
		Path string `json:"path"`
	} `json:"eds_config"`
	ServiceName string `json:"service_name"`
}

// ResourceDoc is the on-the-wire shape of one CDS resource (one cluster).
type ResourceDoc struct {
	Type            string              `json:"@type"`
	Name            string              `json:"name"`
	ConnectTimeout  string              `json:"connect_timeout"`
	Type_           string              `json:"type"`
	LbPolicy        string              `json:"lb_policy"`
	EdsClusterConfig EdsClusterConfigDoc `json:"eds_cluster_config"`
}

// resourceTemplate mirrors the original source's ResourceTemplate dict
// (entity/cds/resource.py), rebuilt fresh on every call so callers never
// alias a shared template.
func resourceTemplate() ResourceDoc {
	var doc ResourceDoc
	doc.Type = "type.googleapis.com/envoy.config.cluster.v3.Cluster"
	doc.Name = "service1"
	doc.ConnectTimeout = "0.25s"
	doc.Type_ = "EDS"
	doc.LbPolicy = "ROUND_ROBIN"
	doc.EdsClusterConfig.EdsConfig.Path = "/etc/envoy/eds.json"
	doc.EdsClusterConfig.ServiceName = "service1"
	return doc
}

// Resource is one CDS cluster resource.
type Resource struct {
	doc ResourceDoc

	ClusterName string
	ServiceName string
	LbPolicy    string
}

// NewResourceFromDoc decodes a resource's wire form into a Resource.
func NewResourceFromDoc(doc ResourceDoc) *Resource {
	return &Resource{
		doc:         doc,
		ClusterName: doc.Name,
		ServiceName: doc.EdsClusterConfig.ServiceName,
		LbPolicy:    doc.LbPolicy,
	}
}

// NewResourceFromTemplate builds a fresh resource from the cluster template,
// ready for ApplyRequest.
func NewResourceFromTemplate() *Resource {
	return NewResourceFromDoc(resourceTemplate())
}

// ApplyRequest sets this resource's identity from the owning endpoint_uuid,
// used as both cluster name and EDS service name (§4.2 applyRequest).
func (r *Resource) ApplyRequest(endpointUUID string) {
	r.ClusterName = endpointUUID
	r.ServiceName = endpointUUID
}

// Doc rebuilds and returns the wire representation.
func (r *Resource) Doc() ResourceDoc {
	r.doc.Name = r.ClusterName
	r.doc.LbPolicy = r.LbPolicy
	r.doc.EdsClusterConfig.ServiceName = r.ServiceName
	return r.doc
}

// JSON returns the canonical serialised form, used for dereference checks
// in Cds.Add.
func (r *Resource) JSON() string {
	b, _ := json.Marshal(r.Doc()) //nolint:errcheck
	return string(b)
}

// Clone returns a deep copy safe to mutate independently of r.
func (r *Resource) Clone() *Resource {
	return &Resource{
		doc:         r.Doc(),
		ClusterName: r.ClusterName,
		ServiceName: r.ServiceName,
		LbPolicy:    r.LbPolicy,
	}
}
