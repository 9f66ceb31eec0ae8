// Package validate schema-checks emitted xDS documents against Envoy's own
// protobuf message definitions before they are written to disk. This never
// replaces the hand-rolled JSON structs the entity packages build — those
// exist for byte-for-byte control over the emitted shape — it only catches
// a future template edit that drifts out of step with the real xDS schema.
package validate

import (
	"encoding/json"
	"fmt"

	clusterpb "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	endpointpb "github.com/envoyproxy/go-control-plane/envoy/config/endpoint/v3"
	listenerpb "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"
	// Linked so protojson can resolve the typed_config Any payloads nested
	// in an emitted listener (HTTP connection manager, file access log).
	_ "github.com/envoyproxy/go-control-plane/envoy/extensions/access_loggers/file/v3"
	_ "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/http_connection_manager/v3"
	"google.golang.org/protobuf/encoding/protojson"
)

var unmarshalOpts = protojson.UnmarshalOptions{DiscardUnknown: true}

type resourceEnvelope struct {
	Resources []json.RawMessage `json:"resources"`
}

// LDS decodes each resource of a serialised Listener Discovery document into
// an envoy.config.listener.v3.Listener, failing if any resource does not
// conform to the schema.
func LDS(data []byte) error {
	return eachResource(data, func(raw []byte) error {
		return unmarshalOpts.Unmarshal(raw, &listenerpb.Listener{})
	})
}

// CDS decodes each resource of a serialised Cluster Discovery document into
// an envoy.config.cluster.v3.Cluster.
func CDS(data []byte) error {
	return eachResource(data, func(raw []byte) error {
		return unmarshalOpts.Unmarshal(raw, &clusterpb.Cluster{})
	})
}

// EDS decodes each resource of a serialised Endpoint Discovery document into
// an envoy.config.endpoint.v3.ClusterLoadAssignment.
func EDS(data []byte) error {
	return eachResource(data, func(raw []byte) error {
		return unmarshalOpts.Unmarshal(raw, &endpointpb.ClusterLoadAssignment{})
	})
}

func eachResource(data []byte, decode func([]byte) error) error {
	var env resourceEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("validate: decoding envelope: %w", err)
	}
	for i, raw := range env.Resources {
		if err := decode(raw); err != nil {
			return fmt.Errorf("validate: resource %d: %w", i, err)
		}
	}
	return nil
}
