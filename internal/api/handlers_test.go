package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kaiyote/envoycfgd/internal/api"
	"github.com/kaiyote/envoycfgd/internal/entity/conf"
	"github.com/kaiyote/envoycfgd/internal/entity/lds"
	"github.com/kaiyote/envoycfgd/internal/identity"
	"github.com/kaiyote/envoycfgd/internal/requests"
	"github.com/kaiyote/envoycfgd/internal/store"
)

func emptyLDSWithRoute(t *testing.T) *lds.Lds {
	t.Helper()
	l := lds.New()
	require.NoError(t, l.Load([]byte(`{"version_info":"0","resources":[]}`)))
	l.ApplyRequest(requests.EndpointsPayload{PortValue: "18080", Route: requests.RoutePayload{Prefix: "/"}}, identity.Endpoint("18080", "/"))
	return l
}

func newTestAPI(t *testing.T) (*api.API, *store.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := func(db int) redis.Cmdable {
		return redis.NewClient(&redis.Options{Addr: mr.Addr(), DB: db})
	}
	st := &store.Store{Queue: client(0), Snapshot: client(1), EPIndex: client(2), SVIndex: client(3)}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return api.New(st, log), st
}

func seedEmptySnapshot(t *testing.T, st *store.Store) {
	t.Helper()
	c := conf.New()
	require.NoError(t, st.SaveSnapshot(context.Background(), c.Snapshot()))
}

func TestPostEndpointAccepted(t *testing.T) {
	a, st := newTestAPI(t)
	seedEmptySnapshot(t, st)

	body := bytes.NewBufferString(`{"port_value":"18080","route":"/","host_header":"www.example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/endpoints", body)
	rec := httptest.NewRecorder()

	a.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	_, _, err := st.Dequeue(context.Background())
	require.NoError(t, err)
}

func TestPostEndpointDuplicateConflicts(t *testing.T) {
	a, st := newTestAPI(t)
	seedEmptySnapshot(t, st)

	require.NoError(t, st.RebuildEndpointIndex(context.Background(), emptyLDSWithRoute(t)))

	body := bytes.NewBufferString(`{"port_value":"18080","route":"/","host_header":"www.example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/endpoints", body)
	rec := httptest.NewRecorder()

	a.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetEndpointNotFound(t *testing.T) {
	a, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/endpoints/deadbeefdeadbeefdeadbeefdeadbeef", nil)
	rec := httptest.NewRecorder()

	a.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetEndpointsListing(t *testing.T) {
	a, st := newTestAPI(t)
	seedEmptySnapshot(t, st)

	req := httptest.NewRequest(http.MethodGet, "/v1/endpoints", nil)
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Contains(t, got, "endpoints")
}

func TestPostServerNotFoundWhenEndpointMissing(t *testing.T) {
	a, _ := newTestAPI(t)

	body := bytes.NewBufferString(`{"address":"10.0.0.1","port":8080}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/endpoints/deadbeefdeadbeefdeadbeefdeadbeef/servers", body)
	rec := httptest.NewRecorder()

	a.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
