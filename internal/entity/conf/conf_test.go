package conf_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kaiyote/envoycfgd/internal/entity/conf"
	"github.com/kaiyote/envoycfgd/internal/requests"
)

func emptyDoc() []byte {
	return []byte(`{"version_info":"0","resources":[]}`)
}

func newEmptyConfig(t *testing.T) *conf.Config {
	t.Helper()
	c := conf.New()
	require.NoError(t, c.LoadFromFiles(emptyDoc(), emptyDoc(), emptyDoc()))
	return c
}

func TestApplyEndpointThenAddServer(t *testing.T) {
	c := newEmptyConfig(t)

	endpointUUID := "deadbeefdeadbeefdeadbeefdeadbeef"
	env, err := requests.NewEndpoint(requests.ModeAdd, "18080", "/", "www.example.com", endpointUUID)
	require.NoError(t, err)
	require.NoError(t, c.ApplyRequest(env))

	require.Len(t, c.Lds.Resources(), 1)
	require.Len(t, c.Cds.Resources(), 1)
	require.Empty(t, c.Eds.Resources(), "a freshly created endpoint has no backend servers yet, so EDS gains no resource (I4)")
	require.Equal(t, "0", c.Eds.VersionInfo(), "creating an endpoint leaves EDS unchanged")

	srvEnv, err := requests.NewServer(requests.ModeAdd, "10.0.0.1", 8080, endpointUUID)
	require.NoError(t, err)
	require.NoError(t, c.ApplyRequest(srvEnv))

	require.Len(t, c.Eds.Resources()[0].Endpoints, 1)
	require.Equal(t, "10.0.0.1", c.Eds.Resources()[0].Endpoints[0].Address)
}

func TestRemoveServerLeavesEndpointIntact(t *testing.T) {
	c := newEmptyConfig(t)
	endpointUUID := "deadbeefdeadbeefdeadbeefdeadbeef"

	epEnv, _ := requests.NewEndpoint(requests.ModeAdd, "18080", "/", "www.example.com", endpointUUID)
	require.NoError(t, c.ApplyRequest(epEnv))
	srvEnv, _ := requests.NewServer(requests.ModeAdd, "10.0.0.1", 8080, endpointUUID)
	require.NoError(t, c.ApplyRequest(srvEnv))

	removeEnv, _ := requests.NewServer(requests.ModeRemove, "10.0.0.1", 8080, endpointUUID)
	require.NoError(t, c.RemoveRequest(removeEnv))

	require.Len(t, c.Lds.Resources(), 1, "removing a server must not touch the listener")
	require.Len(t, c.Cds.Resources(), 1, "removing a server must not touch the cluster")
	require.Empty(t, c.Eds.Resources(), "eds resource with zero endpoints is dropped per I4")
}

func TestRemoveEndpointClearsAllThreeDocs(t *testing.T) {
	c := newEmptyConfig(t)
	endpointUUID := "deadbeefdeadbeefdeadbeefdeadbeef"

	epEnv, _ := requests.NewEndpoint(requests.ModeAdd, "18080", "/", "www.example.com", endpointUUID)
	require.NoError(t, c.ApplyRequest(epEnv))
	srvEnv, _ := requests.NewServer(requests.ModeAdd, "10.0.0.1", 8080, endpointUUID)
	require.NoError(t, c.ApplyRequest(srvEnv))

	removeEnv, err := requests.NewEndpoint(requests.ModeRemove, "18080", "/", "www.example.com", endpointUUID)
	require.NoError(t, err)
	require.NoError(t, c.RemoveRequest(removeEnv))

	require.Empty(t, c.Lds.Resources())
	require.Empty(t, c.Cds.Resources())
	require.Empty(t, c.Eds.Resources(), "removing an endpoint also drops its backend servers")
}

func TestCloneIsIndependent(t *testing.T) {
	c := newEmptyConfig(t)
	endpointUUID := "deadbeefdeadbeefdeadbeefdeadbeef"
	epEnv, _ := requests.NewEndpoint(requests.ModeAdd, "18080", "/", "www.example.com", endpointUUID)
	require.NoError(t, c.ApplyRequest(epEnv))

	clone := c.Clone()
	srvEnv, _ := requests.NewServer(requests.ModeAdd, "10.0.0.1", 8080, endpointUUID)
	require.NoError(t, clone.ApplyRequest(srvEnv))

	require.Empty(t, c.Eds.Resources(), "mutating the clone must not affect the original")
	require.Len(t, clone.Eds.Resources()[0].Endpoints, 1)
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := newEmptyConfig(t)
	endpointUUID := "deadbeefdeadbeefdeadbeefdeadbeef"
	epEnv, _ := requests.NewEndpoint(requests.ModeAdd, "18080", "/", "www.example.com", endpointUUID)
	require.NoError(t, c.ApplyRequest(epEnv))

	snap := c.Snapshot()

	restored := conf.New()
	require.NoError(t, restored.LoadSnapshot(snap))
	require.Equal(t, c.Lds.Emit(), restored.Lds.Emit())
	require.Equal(t, c.Cds.Emit(), restored.Cds.Emit())
	require.Equal(t, c.Eds.Emit(), restored.Eds.Emit())
}
