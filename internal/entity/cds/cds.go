package cds

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

// Cds is the in-memory Cluster Discovery document.
type Cds struct {
	version   int
	resources []*Resource
}

// New returns an empty Cds at version 0.
func New() *Cds {
	return &Cds{version: 0}
}

// Load decodes serialised JSON into the document, replacing any existing
// state. version_info must parse as a non-negative integer — a parse
// failure here is fatal (§9).
func (c *Cds) Load(data []byte) error {
	var doc Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("cds: decoding document: %w", err)
	}
	v, err := strconv.Atoi(doc.VersionInfo)
	if err != nil || v < 0 {
		return fmt.Errorf("cds: version_info %q is not a non-negative integer", doc.VersionInfo)
	}

	resources := make([]*Resource, 0, len(doc.Resources))
	for _, rd := range doc.Resources {
		resources = append(resources, NewResourceFromDoc(rd))
	}

	c.version = v
	c.resources = resources
	return nil
}

// Emit serialises the document to JSON.
func (c *Cds) Emit() []byte {
	doc := Doc{VersionInfo: strconv.Itoa(c.version)}
	for _, r := range c.resources {
		doc.Resources = append(doc.Resources, r.Doc())
	}
	if doc.Resources == nil {
		doc.Resources = []ResourceDoc{}
	}
	b, _ := json.Marshal(doc) //nolint:errcheck
	return b
}

// Clone returns a deep, independent copy via round-tripping through Emit.
func (c *Cds) Clone() *Cds {
	n := New()
	_ = n.Load(c.Emit())
	return n
}

// VersionInfo returns the current decimal version string.
func (c *Cds) VersionInfo() string { return strconv.Itoa(c.version) }

// Resources returns the resource list.
func (c *Cds) Resources() []*Resource { return c.resources }

// SetEmpty drops all resources.
func (c *Cds) SetEmpty() { c.resources = nil }

// ApplyRequest replaces the document with a single-resource mutation tree
// named after the owning endpoint_uuid (§4.2 applyRequest).
func (c *Cds) ApplyRequest(endpointUUID string) {
	res := NewResourceFromTemplate()
	res.ApplyRequest(endpointUUID)
	c.resources = []*Resource{res}
}

// RemoveWithoutRequest projects the current document down to the single
// resource named endpointUUID, dropping every other resource. As with LDS,
// this tree is only ever used as the "what to subtract" argument to Remove.
func (c *Cds) RemoveWithoutRequest(endpointUUID string) {
	var kept []*Resource
	for _, res := range c.resources {
		if res.ClusterName == endpointUUID {
			kept = append(kept, res)
		}
	}
	c.resources = kept
}

// Add merges other into c: a resource is replaced in place if its
// serialised form differs, or appended if its name is new (§4.2.1).
func (c *Cds) Add(other *Cds) bool {
	changed := false

	nameIdx := make(map[string]int, len(c.resources))
	for i, r := range c.resources {
		nameIdx[r.ClusterName] = i
	}

	for _, nres := range other.resources {
		if i, ok := nameIdx[nres.ClusterName]; ok {
			if c.resources[i].JSON() != nres.JSON() {
				c.resources[i] = nres
				changed = true
			}
			continue
		}
		c.resources = append(c.resources, nres)
		nameIdx[nres.ClusterName] = len(c.resources) - 1
		changed = true
	}

	if changed {
		c.version++
	}
	return changed
}

// Remove drops from c every resource whose name appears in other.
// Deletions are collected and applied after the scan to avoid mutating
// c.resources while iterating it — the same stale-index hazard LDS's
// remove has, fixed here by the same collect-then-filter pattern (§9).
func (c *Cds) Remove(other *Cds) bool {
	drop := make(map[string]bool, len(other.resources))
	for _, dres := range other.resources {
		drop[dres.ClusterName] = true
	}

	kept := make([]*Resource, 0, len(c.resources))
	changed := false
	for _, r := range c.resources {
		if drop[r.ClusterName] {
			changed = true
			continue
		}
		kept = append(kept, r)
	}
	c.resources = kept

	if changed {
		c.version++
	}
	return changed
}
