package eds

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Doc is the top-level on-disk/on-wire shape: a version plus resources.
type Doc struct {
	VersionInfo string        `json:"version_info"`
	Resources   []ResourceDoc `json:"resources"`
}

// Eds is the in-memory Endpoint Discovery document.
type Eds struct {
	version   int
	resources []*Resource
}

// New returns an empty Eds at version 0.
func New() *Eds {
	return &Eds{version: 0}
}

// Load decodes serialised JSON into the document, replacing any existing
// state. version_info must parse as a non-negative integer — a parse
// failure here is fatal (§9).
func (e *Eds) Load(data []byte) error {
	var doc Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("eds: decoding document: %w", err)
	}
	v, err := strconv.Atoi(doc.VersionInfo)
	if err != nil || v < 0 {
		return fmt.Errorf("eds: version_info %q is not a non-negative integer", doc.VersionInfo)
	}

	resources := make([]*Resource, 0, len(doc.Resources))
	for _, rd := range doc.Resources {
		resources = append(resources, NewResourceFromDoc(rd))
	}

	e.version = v
	e.resources = resources
	return nil
}

// Emit serialises the document to JSON.
func (e *Eds) Emit() []byte {
	doc := Doc{VersionInfo: strconv.Itoa(e.version)}
	for _, r := range e.resources {
		doc.Resources = append(doc.Resources, r.Doc())
	}
	if doc.Resources == nil {
		doc.Resources = []ResourceDoc{}
	}
	b, _ := json.Marshal(doc) //nolint:errcheck
	return b
}

// Clone returns a deep, independent copy via round-tripping through Emit.
func (e *Eds) Clone() *Eds {
	n := New()
	_ = n.Load(e.Emit())
	return n
}

// VersionInfo returns the current decimal version string.
func (e *Eds) VersionInfo() string { return strconv.Itoa(e.version) }

// Resources returns the resource list.
func (e *Eds) Resources() []*Resource { return e.resources }

// SetEmpty drops all resources.
func (e *Eds) SetEmpty() { e.resources = nil }

// ApplyRequest replaces the document with a single-resource, single-endpoint
// mutation tree built from one servers payload (§4.3 applyRequest).
func (e *Eds) ApplyRequest(address string, port int, endpointUUID string) {
	res := NewResourceFromTemplate()
	res.ApplyRequest(endpointUUID)
	ep := NewLbEndpointFromTemplate()
	ep.Address = address
	ep.Port = port
	res.Endpoints = []*LbEndpoint{ep}
	e.resources = []*Resource{res}
}

// ApplyRequestEmpty replaces the document with a single cluster that has no
// backend servers, used as the EDS mutation tree when an endpoint is
// created. Add skips resources with no endpoints, so merging this tree
// leaves EDS unchanged; the cluster's EDS resource appears with its first
// server.
func (e *Eds) ApplyRequestEmpty(endpointUUID string) {
	res := NewResourceFromTemplate()
	res.ApplyRequest(endpointUUID)
	res.Endpoints = nil
	e.resources = []*Resource{res}
}

// RemoveWithoutRequest projects the current document down to the single
// resource named endpointUUID and, within it, the single endpoint matching
// (address, port), dropping every other resource entirely.
func (e *Eds) RemoveWithoutRequest(endpointUUID, address string, port int) {
	var kept []*Resource
	for _, res := range e.resources {
		if res.ClusterName != endpointUUID {
			continue
		}
		var matched []*LbEndpoint
		for _, ep := range res.Endpoints {
			if ep.Address == address && ep.Port == port {
				matched = append(matched, ep)
			}
		}
		res.Endpoints = matched
		kept = append(kept, res)
		break
	}
	e.resources = kept
}

// Add merges other into e, per §4.3.1 — and deliberately preserves the
// original's asymmetric append: endpoints already present in the matching
// resource of other are deduplicated by address (last value for a given
// address wins, insertion order otherwise preserved), but the result is
// appended to self unconditionally, without checking whether self already
// holds an endpoint at that address. A repeated add of the same server
// therefore grows the endpoint list rather than staying idempotent — a
// known quirk of the source this was ported from (§9), kept rather than
// fixed since downstream consumers tolerate duplicate lb_endpoints entries.
func (e *Eds) Add(other *Eds) bool {
	changed := false

	nameIdx := make(map[string]int, len(e.resources))
	for i, r := range e.resources {
		nameIdx[r.ClusterName] = i
	}

	for _, nres := range other.resources {
		dedup := make(map[string]*LbEndpoint, len(nres.Endpoints))
		var order []string
		for _, ep := range nres.Endpoints {
			if _, ok := dedup[ep.Address]; !ok {
				order = append(order, ep.Address)
			}
			dedup[ep.Address] = ep
		}
		var toAppend []*LbEndpoint
		for _, addr := range order {
			toAppend = append(toAppend, dedup[addr])
		}
		if len(toAppend) == 0 {
			continue
		}

		idx, ok := nameIdx[nres.ClusterName]
		if !ok {
			res := &Resource{ClusterName: nres.ClusterName, Endpoints: toAppend}
			e.resources = append(e.resources, res)
			nameIdx[nres.ClusterName] = len(e.resources) - 1
			changed = true
			continue
		}

		e.resources[idx].Endpoints = append(e.resources[idx].Endpoints, toAppend...)
		changed = true
	}

	if changed {
		e.version++
	}
	return changed
}

// Remove drops, from each resource named in other, every endpoint whose
// (address, port) matches one in the corresponding other resource; a
// resource left with no endpoints is dropped entirely (I4). Deletions are
// collected and applied after the scan rather than mutating mid-iteration,
// the same stale-index fix applied to LDS and CDS's Remove (§9).
func (e *Eds) Remove(other *Eds) bool {
	changed := false

	nameIdx := make(map[string]int, len(e.resources))
	for i, r := range e.resources {
		nameIdx[r.ClusterName] = i
	}

	toDrop := make(map[int]bool)
	for _, dres := range other.resources {
		idx, ok := nameIdx[dres.ClusterName]
		if !ok {
			continue
		}

		type key struct {
			addr string
			port int
		}
		dropKeys := make(map[key]bool, len(dres.Endpoints))
		for _, ep := range dres.Endpoints {
			dropKeys[key{ep.Address, ep.Port}] = true
		}

		cur := e.resources[idx]
		var kept []*LbEndpoint
		for _, ep := range cur.Endpoints {
			if dropKeys[key{ep.Address, ep.Port}] {
				changed = true
				continue
			}
			kept = append(kept, ep)
		}
		cur.Endpoints = kept
		if len(kept) == 0 {
			toDrop[idx] = true
		}
	}

	if len(toDrop) > 0 {
		kept := make([]*Resource, 0, len(e.resources)-len(toDrop))
		for i, r := range e.resources {
			if !toDrop[i] {
				kept = append(kept, r)
			}
		}
		e.resources = kept
	}

	if changed {
		e.version++
	}
	return changed
}
