// Package conf aggregates the three xDS documents into the single
// authoritative configuration tree the worker mutates and the filesystem
// writer serialises (§3.1, §4.4).
package conf

import (
	"encoding/json"
	"fmt"

	"github.com/kaiyote/envoycfgd/internal/entity/cds"
	"github.com/kaiyote/envoycfgd/internal/entity/eds"
	"github.com/kaiyote/envoycfgd/internal/entity/lds"
	"github.com/kaiyote/envoycfgd/internal/requests"
)

// Config is the in-memory LDS+CDS+EDS tree.
type Config struct {
	Lds *lds.Lds
	Cds *cds.Cds
	Eds *eds.Eds
}

// New returns an empty Config with all three documents at version 0.
func New() *Config {
	return &Config{Lds: lds.New(), Cds: cds.New(), Eds: eds.New()}
}

// snapshotDoc is the envelope persisted to the Redis snapshot key and used
// to round-trip the whole tree in one value (§5, DB 1).
type snapshotDoc struct {
	Lds json.RawMessage `json:"lds"`
	Cds json.RawMessage `json:"cds"`
	Eds json.RawMessage `json:"eds"`
}

// LoadFromFiles decodes the three documents from their serialised forms, as
// read off disk at worker bootstrap (§4.4, §9 — fatal on bad version_info).
func (c *Config) LoadFromFiles(ldsJSON, cdsJSON, edsJSON []byte) error {
	if err := c.Lds.Load(ldsJSON); err != nil {
		return fmt.Errorf("conf: loading lds: %w", err)
	}
	if err := c.Cds.Load(cdsJSON); err != nil {
		return fmt.Errorf("conf: loading cds: %w", err)
	}
	if err := c.Eds.Load(edsJSON); err != nil {
		return fmt.Errorf("conf: loading eds: %w", err)
	}
	return nil
}

// LoadSnapshot decodes a Redis snapshot envelope.
func (c *Config) LoadSnapshot(data []byte) error {
	var snap snapshotDoc
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("conf: decoding snapshot: %w", err)
	}
	return c.LoadFromFiles(snap.Lds, snap.Cds, snap.Eds)
}

// Snapshot serialises the tree into the Redis snapshot envelope.
func (c *Config) Snapshot() []byte {
	snap := snapshotDoc{
		Lds: c.Lds.Emit(),
		Cds: c.Cds.Emit(),
		Eds: c.Eds.Emit(),
	}
	b, _ := json.Marshal(snap) //nolint:errcheck
	return b
}

// Clone returns a deep, independent copy of the whole tree. RemoveRequest
// builds its "what to subtract" tree from a clone, so projecting it down
// never touches c itself; the worker applies requests to its config in
// place.
func (c *Config) Clone() *Config {
	return &Config{Lds: c.Lds.Clone(), Cds: c.Cds.Clone(), Eds: c.Eds.Clone()}
}

// SetEmpty drops all resources from every document.
func (c *Config) SetEmpty() {
	c.Lds.SetEmpty()
	c.Cds.SetEmpty()
	c.Eds.SetEmpty()
}

// ApplyRequest builds the single-resource mutation tree described by env
// and merges it into c (§4.1-§4.3 applyRequest + Add, dispatched by the
// envelope's payload kind).
func (c *Config) ApplyRequest(env *requests.Envelope) error {
	mutation := New()

	switch {
	case env.Endpoints != nil:
		mutation.Lds.ApplyRequest(*env.Endpoints, env.EndpointUUID)
		mutation.Cds.ApplyRequest(env.EndpointUUID)
		mutation.Eds.ApplyRequestEmpty(env.EndpointUUID)
	case env.Servers != nil:
		mutation.Eds.ApplyRequest(env.Servers.Address, env.Servers.Port, env.EndpointUUID)
	default:
		return fmt.Errorf("conf: request envelope has neither endpoints nor servers payload")
	}

	c.Lds.Add(mutation.Lds)
	c.Cds.Add(mutation.Cds)
	c.Eds.Add(mutation.Eds)
	return nil
}

// RemoveRequest builds the "what to subtract" tree described by env and
// removes it from c (§4.1-§4.3 removeWithoutRequest + Remove).
func (c *Config) RemoveRequest(env *requests.Envelope) error {
	switch {
	case env.Servers != nil:
		mutation := c.Clone()
		mutation.Eds.RemoveWithoutRequest(env.EndpointUUID, env.Servers.Address, env.Servers.Port)
		c.Eds.Remove(mutation.Eds)
	default:
		mutation := c.Clone()
		mutation.Lds.RemoveWithoutRequest(env.EndpointUUID)
		mutation.Cds.RemoveWithoutRequest(env.EndpointUUID)
		// Removing an endpoint also drops its backend servers: every
		// lb-endpoint of the endpoint's own cluster is subtracted, which
		// drops that EDS resource (I4); other clusters subtract nothing.
		for _, res := range mutation.Eds.Resources() {
			if res.ClusterName != env.EndpointUUID {
				res.Endpoints = nil
			}
		}
		c.Lds.Remove(mutation.Lds)
		c.Cds.Remove(mutation.Cds)
		c.Eds.Remove(mutation.Eds)
	}
	return nil
}
