package lds_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kaiyote/envoycfgd/internal/entity/lds"
	"github.com/kaiyote/envoycfgd/internal/requests"
)

func emptyDoc() []byte {
	return []byte(`{"version_info":"0","resources":[]}`)
}

func TestLoadEmitRoundTrip(t *testing.T) {
	l := lds.New()
	require.NoError(t, l.Load(emptyDoc()))
	require.Equal(t, "0", l.VersionInfo())
	require.JSONEq(t, `{"version_info":"0","resources":[]}`, string(l.Emit()))
}

func TestLoadRejectsBadVersion(t *testing.T) {
	l := lds.New()
	err := l.Load([]byte(`{"version_info":"not-a-number","resources":[]}`))
	require.Error(t, err)
}

func TestApplyRequestThenAddIsIdempotentOnRepeat(t *testing.T) {
	l := lds.New()
	require.NoError(t, l.Load(emptyDoc()))

	payload := requests.EndpointsPayload{PortValue: "18080", Route: requests.RoutePayload{Prefix: "/"}}

	mutation := lds.New()
	require.NoError(t, mutation.Load(emptyDoc()))
	mutation.ApplyRequest(payload, "deadbeefdeadbeefdeadbeefdeadbeef")

	changed := l.Add(mutation)
	require.True(t, changed)
	require.Equal(t, "1", l.VersionInfo())

	mutation2 := lds.New()
	require.NoError(t, mutation2.Load(emptyDoc()))
	mutation2.ApplyRequest(payload, "deadbeefdeadbeefdeadbeefdeadbeef")
	changed = l.Add(mutation2)
	require.False(t, changed, "identical route must not be treated as a change")
	require.Equal(t, "1", l.VersionInfo())
}

func TestAddAppendsNewPrefixUnderSamePort(t *testing.T) {
	l := lds.New()
	require.NoError(t, l.Load(emptyDoc()))

	m1 := lds.New()
	require.NoError(t, m1.Load(emptyDoc()))
	m1.ApplyRequest(requests.EndpointsPayload{PortValue: "18080", Route: requests.RoutePayload{Prefix: "/a"}}, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	require.True(t, l.Add(m1))

	m2 := lds.New()
	require.NoError(t, m2.Load(emptyDoc()))
	m2.ApplyRequest(requests.EndpointsPayload{PortValue: "18080", Route: requests.RoutePayload{Prefix: "/b"}}, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	require.True(t, l.Add(m2))

	require.Len(t, l.Resources(), 1)
	require.Len(t, l.Resources()[0].Routes, 2)
}

func TestRemoveDropsResourceWhenLastRouteGoes(t *testing.T) {
	l := lds.New()
	require.NoError(t, l.Load(emptyDoc()))

	m := lds.New()
	require.NoError(t, m.Load(emptyDoc()))
	m.ApplyRequest(requests.EndpointsPayload{PortValue: "18080", Route: requests.RoutePayload{Prefix: "/"}}, "deadbeefdeadbeefdeadbeefdeadbeef")
	require.True(t, l.Add(m))
	require.Len(t, l.Resources(), 1)

	l.RemoveWithoutRequest("deadbeefdeadbeefdeadbeefdeadbeef")
	require.Len(t, l.Resources(), 1)
	require.Len(t, l.Resources()[0].Routes, 1)

	changed := l.Remove(l)
	require.True(t, changed)
	require.Empty(t, l.Resources(), "listener with no routes left must be dropped (I4)")
}

func TestRemoveWithoutRequestDropsUnmatchedResourcesEntirely(t *testing.T) {
	l := lds.New()
	require.NoError(t, l.Load(emptyDoc()))

	m1 := lds.New()
	require.NoError(t, m1.Load(emptyDoc()))
	m1.ApplyRequest(requests.EndpointsPayload{PortValue: "18080", Route: requests.RoutePayload{Prefix: "/a"}}, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	l.Add(m1)

	m2 := lds.New()
	require.NoError(t, m2.Load(emptyDoc()))
	m2.ApplyRequest(requests.EndpointsPayload{PortValue: "19090", Route: requests.RoutePayload{Prefix: "/b"}}, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	l.Add(m2)

	require.Len(t, l.Resources(), 2)

	clone := l.Clone()
	clone.RemoveWithoutRequest("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	require.Len(t, clone.Resources(), 1, "resource with no matching route must be dropped wholesale")
	require.Equal(t, "18080", clone.Resources()[0].Port)
}
