// Package lds implements the Listener Discovery document: an ordered list
// of listener resources, each keyed by port, each holding an ordered list
// of routes keyed by URL prefix (§3.1, §4.1.1).
package lds

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kaiyote/envoycfgd/internal/requests"
)

// Doc is the top-level on-disk/on-wire shape: a version plus resources.
type Doc struct {
	VersionInfo string        `json:"version_info"`
	Resources   []ResourceDoc `json:"resources"`
}

// Lds is the in-memory Listener Discovery document.
type Lds struct {
	version   int
	resources []*Resource
}

// New returns an empty Lds at version 0.
func New() *Lds {
	return &Lds{version: 0}
}

// Load decodes serialised JSON into the document, replacing any existing
// state. version_info must parse as a non-negative integer — a parse
// failure here is fatal (§9).
func (l *Lds) Load(data []byte) error {
	var doc Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("lds: decoding document: %w", err)
	}
	v, err := strconv.Atoi(doc.VersionInfo)
	if err != nil || v < 0 {
		return fmt.Errorf("lds: version_info %q is not a non-negative integer", doc.VersionInfo)
	}

	resources := make([]*Resource, 0, len(doc.Resources))
	for _, rd := range doc.Resources {
		resources = append(resources, NewResourceFromDoc(rd))
	}

	l.version = v
	l.resources = resources
	return nil
}

// Emit serialises the document to JSON.
func (l *Lds) Emit() []byte {
	doc := Doc{VersionInfo: strconv.Itoa(l.version)}
	for _, r := range l.resources {
		doc.Resources = append(doc.Resources, r.Doc())
	}
	doc.Resources = nonNilResources(doc.Resources)
	b, _ := json.Marshal(doc) //nolint:errcheck
	return b
}

func nonNilResources(r []ResourceDoc) []ResourceDoc {
	if r == nil {
		return []ResourceDoc{}
	}
	return r
}

// Clone returns a deep, independent copy via round-tripping through Emit.
func (l *Lds) Clone() *Lds {
	n := New()
	_ = n.Load(l.Emit())
	return n
}

// VersionInfo returns the current decimal version string.
func (l *Lds) VersionInfo() string { return strconv.Itoa(l.version) }

// Resources returns the ordered resource list. Callers (store index
// rebuild, response projection) may read but must not retain it across a
// mutation.
func (l *Lds) Resources() []*Resource { return l.resources }

// SetEmpty drops all resources (§4.1 setEmpty).
func (l *Lds) SetEmpty() { l.resources = nil }

// ApplyRequest replaces the document with a single-resource mutation tree
// built from one endpoints payload (§4.1 applyRequest).
func (l *Lds) ApplyRequest(payload requests.EndpointsPayload, endpointUUID string) {
	res := NewResourceFromTemplate()
	res.ApplyRequest(payload.PortValue, payload.Route, endpointUUID)
	l.resources = []*Resource{res}
}

// RemoveWithoutRequest projects the current document down to the single
// route matching endpointUUID, under whichever resource contains it, and
// drops every other resource entirely. This intentionally keeps the
// original's aggressive behaviour — a resource with no matching route is
// dropped wholesale rather than left untouched (§9, covered by S5) — since
// the result is only ever used as a "what to subtract" tree fed to Remove,
// never applied directly to the authoritative config.
func (l *Lds) RemoveWithoutRequest(endpointUUID string) {
	var kept []*Resource
	for _, res := range l.resources {
		var matched []*Route
		for _, rt := range res.Routes {
			if rt.ClusterName == endpointUUID {
				matched = append(matched, rt)
			}
		}
		if len(matched) > 0 {
			res.Routes = matched
			kept = append(kept, res)
		}
	}
	l.resources = kept
}

// Add merges other into l, per §4.1.1. Returns true iff anything changed,
// in which case the version is bumped.
func (l *Lds) Add(other *Lds) bool {
	changed := false

	portIdx := make(map[string]int, len(l.resources))
	for i, r := range l.resources {
		portIdx[r.Port] = i
	}

	for _, nres := range other.resources {
		idx, ok := portIdx[nres.Port]
		if !ok {
			l.resources = append(l.resources, nres)
			portIdx[nres.Port] = len(l.resources) - 1
			changed = true
			continue
		}

		cur := l.resources[idx]
		prefixIdx := make(map[string]int, len(cur.Routes))
		for i, rt := range cur.Routes {
			prefixIdx[rt.Prefix] = i
		}

		for _, nrt := range nres.Routes {
			if i, ok := prefixIdx[nrt.Prefix]; ok {
				if cur.Routes[i].JSON() != nrt.JSON() {
					cur.Routes[i] = nrt
					changed = true
				}
			} else {
				cur.Routes = append(cur.Routes, nrt)
				prefixIdx[nrt.Prefix] = len(cur.Routes) - 1
				changed = true
			}
		}
	}

	if changed {
		l.version++
	}
	return changed
}

// Remove subtracts other from l, per §4.1.1. A resource whose route list
// becomes empty is dropped (I4). Deletions are collected and applied after
// the scan rather than mutating self.resources mid-iteration, fixing the
// stale-index hazard the original source has here (§9's recommended safe
// reimplementation, applied to both the resource- and route-level passes).
func (l *Lds) Remove(other *Lds) bool {
	changed := false

	portIdx := make(map[string]int, len(l.resources))
	for i, r := range l.resources {
		portIdx[r.Port] = i
	}

	toDrop := make(map[int]bool)
	for _, dres := range other.resources {
		idx, ok := portIdx[dres.Port]
		if !ok {
			continue
		}

		dropPrefix := make(map[string]bool, len(dres.Routes))
		for _, rt := range dres.Routes {
			dropPrefix[rt.Prefix] = true
		}

		cur := l.resources[idx]
		var kept []*Route
		for _, rt := range cur.Routes {
			if dropPrefix[rt.Prefix] {
				changed = true
				continue
			}
			kept = append(kept, rt)
		}
		cur.Routes = kept
		if len(kept) == 0 {
			toDrop[idx] = true
		}
	}

	if len(toDrop) > 0 {
		kept := make([]*Resource, 0, len(l.resources)-len(toDrop))
		for i, r := range l.resources {
			if !toDrop[i] {
				kept = append(kept, r)
			}
		}
		l.resources = kept
	}

	if changed {
		l.version++
	}
	return changed
}
