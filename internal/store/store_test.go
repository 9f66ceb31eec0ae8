package store_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kaiyote/envoycfgd/internal/apierr"
	"github.com/kaiyote/envoycfgd/internal/entity/eds"
	"github.com/kaiyote/envoycfgd/internal/entity/lds"
	"github.com/kaiyote/envoycfgd/internal/identity"
	"github.com/kaiyote/envoycfgd/internal/requests"
	"github.com/kaiyote/envoycfgd/internal/store"
)

// newTestStore points all four namespaces at the same miniredis instance,
// using distinct DB indices the way the real deployment uses distinct
// Redis DBs on one server.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	mr := miniredis.RunT(t)

	client := func(db int) redis.Cmdable {
		return redis.NewClient(&redis.Options{Addr: mr.Addr(), DB: db})
	}
	return &store.Store{
		Queue:    client(0),
		Snapshot: client(1),
		EPIndex:  client(2),
		SVIndex:  client(3),
	}
}

func TestEnqueueDequeueAck(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	env, err := requests.NewEndpoint(requests.ModeAdd, "18080", "/", "www.example.com", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	require.NoError(t, err)

	require.NoError(t, s.Enqueue(ctx, env))

	id, got, err := s.Dequeue(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, env.EndpointUUID, got.EndpointUUID)

	require.NoError(t, s.Ack(ctx, id))
}

func TestFIFOOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i, uuid := range []string{
		"11111111111111111111111111111111",
		"22222222222222222222222222222222",
		"33333333333333333333333333333333",
	} {
		env, err := requests.NewEndpoint(requests.ModeAdd, "18080", "/", "www.example.com", uuid)
		require.NoErrorf(t, err, "building request %d", i)
		require.NoError(t, s.Enqueue(ctx, env))
	}

	var order []string
	for i := 0; i < 3; i++ {
		id, env, err := s.Dequeue(ctx)
		require.NoError(t, err)
		order = append(order, env.EndpointUUID)
		require.NoError(t, s.Ack(ctx, id))
	}

	require.Equal(t, []string{
		"11111111111111111111111111111111",
		"22222222222222222222222222222222",
		"33333333333333333333333333333333",
	}, order)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.LoadSnapshot(ctx)
	require.ErrorIs(t, err, apierr.ErrNotFound)

	require.NoError(t, s.SaveSnapshot(ctx, []byte(`{"hello":"world"}`)))
	got, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.JSONEq(t, `{"hello":"world"}`, string(got))
}

func TestEndpointIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, _, err := s.GetEndpointIndex(ctx, "missing")
	require.ErrorIs(t, err, apierr.ErrNotFound)

	l := lds.New()
	require.NoError(t, l.Load([]byte(`{"version_info":"0","resources":[]}`)))
	l.ApplyRequest(requests.EndpointsPayload{PortValue: "18080", Route: requests.RoutePayload{Prefix: "/"}}, "deadbeefdeadbeefdeadbeefdeadbeef")

	require.NoError(t, s.RebuildEndpointIndex(ctx, l))

	r, rt, err := s.GetEndpointIndex(ctx, "deadbeefdeadbeefdeadbeefdeadbeef")
	require.NoError(t, err)
	require.Equal(t, 0, r)
	require.Equal(t, 0, rt)

	require.NoError(t, s.DeleteEndpointIndex(ctx, "deadbeefdeadbeefdeadbeefdeadbeef"))
	_, _, err = s.GetEndpointIndex(ctx, "deadbeefdeadbeefdeadbeefdeadbeef")
	require.ErrorIs(t, err, apierr.ErrNotFound)
}

func TestServerIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e := eds.New()
	require.NoError(t, e.Load([]byte(`{"version_info":"0","resources":[]}`)))
	e.ApplyRequest("10.0.0.1", 9090, "deadbeefdeadbeefdeadbeefdeadbeef")

	require.NoError(t, s.RebuildServerIndex(ctx, e))

	uuid := identity.Server("10.0.0.1", 9090)
	r, ep, err := s.GetServerIndex(ctx, uuid)
	require.NoError(t, err)
	require.Equal(t, 0, r)
	require.Equal(t, 0, ep)

	require.NoError(t, s.DeleteServerIndex(ctx, uuid))
	_, _, err = s.GetServerIndex(ctx, uuid)
	require.ErrorIs(t, err, apierr.ErrNotFound)
}
