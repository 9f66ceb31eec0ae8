package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kaiyote/envoycfgd/internal/apierr"
	"github.com/kaiyote/envoycfgd/internal/entity/conf"
	"github.com/kaiyote/envoycfgd/internal/identity"
	"github.com/kaiyote/envoycfgd/internal/requests"
	"github.com/kaiyote/envoycfgd/internal/store"
)

// API holds everything a handler needs: the store (for enqueueing,
// duplicate checks, index lookups, and the snapshot read) and a logger.
type API struct {
	store *store.Store
	log   *slog.Logger
}

// New builds the API; Router returns its gorilla/mux router.
func New(st *store.Store, log *slog.Logger) *API {
	return &API{store: st, log: log}
}

// Router wires the 7 routes of §6.1.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/endpoints", a.postEndpoint).Methods(http.MethodPost)
	r.HandleFunc("/v1/endpoints", a.getEndpoints).Methods(http.MethodGet)
	r.HandleFunc("/v1/endpoints/{uuid:[A-Za-z0-9-]+}", a.getEndpoint).Methods(http.MethodGet)
	r.HandleFunc("/v1/endpoints/{uuid:[A-Za-z0-9-]+}", a.deleteEndpoint).Methods(http.MethodDelete)
	r.HandleFunc("/v1/endpoints/{uuid:[A-Za-z0-9-]+}/servers", a.postServer).Methods(http.MethodPost)
	r.HandleFunc("/v1/endpoints/{uuid:[A-Za-z0-9-]+}/servers", a.getServers).Methods(http.MethodGet)
	r.HandleFunc("/v1/endpoints/{uuid:[A-Za-z0-9-]+}/servers/{server_uuid:[A-Za-z0-9-]+}", a.deleteServer).Methods(http.MethodDelete)
	return r
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body) //nolint:errcheck
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageBody{Message: msg})
}

func (a *API) loadSnapshot(r *http.Request) (*conf.Config, error) {
	data, err := a.store.LoadSnapshot(r.Context())
	if err != nil {
		return nil, err
	}
	c := conf.New()
	if err := c.LoadSnapshot(data); err != nil {
		return nil, err
	}
	return c, nil
}

type endpointRequestBody struct {
	PortValue  string `json:"port_value"`
	Route      string `json:"route"`
	HostHeader string `json:"host_header"`
}

func (a *API) postEndpoint(w http.ResponseWriter, r *http.Request) {
	var body endpointRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "request body was not valid JSON")
		return
	}

	endpointUUID := identity.Endpoint(body.PortValue, body.Route)

	if _, _, err := a.store.GetEndpointIndex(r.Context(), endpointUUID); err == nil {
		writeMessage(w, http.StatusConflict, "Specified 'port' with 'route' is already registered.")
		return
	} else if !errors.Is(err, apierr.ErrNotFound) {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	env, err := requests.NewEndpoint(requests.ModeAdd, body.PortValue, body.Route, body.HostHeader, endpointUUID)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.store.Enqueue(r.Context(), env); err != nil {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	a.log.Info("endpoint enqueued", "mode", env.Mode, "endpoint_uuid", endpointUUID, "port_value", body.PortValue, "route", body.Route)
	writeMessage(w, http.StatusAccepted, "Operation was accepted.")
}

func (a *API) getEndpoints(w http.ResponseWriter, r *http.Request) {
	c, err := a.loadSnapshot(r)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	writeRaw(w, http.StatusOK, buildShortListing(c))
}

func (a *API) getEndpoint(w http.ResponseWriter, r *http.Request) {
	endpointUUID := mux.Vars(r)["uuid"]

	resourceIdx, routeIdx, err := a.store.GetEndpointIndex(r.Context(), endpointUUID)
	if errors.Is(err, apierr.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Target endpoint was not found.")
		return
	}
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	c, err := a.loadSnapshot(r)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	writeRaw(w, http.StatusOK, buildShortSingle(c, resourceIdx, routeIdx))
}

func (a *API) deleteEndpoint(w http.ResponseWriter, r *http.Request) {
	endpointUUID := mux.Vars(r)["uuid"]

	resourceIdx, routeIdx, err := a.store.GetEndpointIndex(r.Context(), endpointUUID)
	if errors.Is(err, apierr.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Target endpoint was not found.")
		return
	}
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	c, err := a.loadSnapshot(r)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	res := c.Lds.Resources()[resourceIdx]
	rt := res.Routes[routeIdx]

	env, err := requests.NewEndpoint(requests.ModeRemove, res.Port, rt.Prefix, rt.HostHeader, endpointUUID)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.store.Enqueue(r.Context(), env); err != nil {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	a.log.Info("endpoint removal enqueued", "endpoint_uuid", endpointUUID)
	writeMessage(w, http.StatusAccepted, "Operation was accepted.")
}

type serverRequestBody struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

func (a *API) postServer(w http.ResponseWriter, r *http.Request) {
	endpointUUID := mux.Vars(r)["uuid"]

	if _, _, err := a.store.GetEndpointIndex(r.Context(), endpointUUID); errors.Is(err, apierr.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Target endpoint was not found")
		return
	} else if err != nil {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	var body serverRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "request body was not valid JSON")
		return
	}

	serverUUID := identity.Server(body.Address, body.Port)
	if _, _, err := a.store.GetServerIndex(r.Context(), serverUUID); err == nil {
		writeMessage(w, http.StatusConflict, "Specified server 'address' with 'port' is already registered.")
		return
	} else if !errors.Is(err, apierr.ErrNotFound) {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	env, err := requests.NewServer(requests.ModeAdd, body.Address, body.Port, endpointUUID)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.store.Enqueue(r.Context(), env); err != nil {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	writeMessage(w, http.StatusAccepted, "Operation was accepted.")
}

func (a *API) getServers(w http.ResponseWriter, r *http.Request) {
	endpointUUID := mux.Vars(r)["uuid"]

	resourceIdx, routeIdx, err := a.store.GetEndpointIndex(r.Context(), endpointUUID)
	if errors.Is(err, apierr.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Target endpoint was not found")
		return
	}
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	c, err := a.loadSnapshot(r)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	writeRaw(w, http.StatusOK, buildFull(c, resourceIdx, routeIdx))
}

func (a *API) deleteServer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	endpointUUID := vars["uuid"]
	serverUUID := vars["server_uuid"]

	if _, _, err := a.store.GetEndpointIndex(r.Context(), endpointUUID); errors.Is(err, apierr.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Target endpoint was not found.")
		return
	} else if err != nil {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	resourceIdx, endpointIdx, err := a.store.GetServerIndex(r.Context(), serverUUID)
	if errors.Is(err, apierr.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Target server was not found.")
		return
	}
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	c, err := a.loadSnapshot(r)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	res := c.Eds.Resources()[resourceIdx]
	ep := res.Endpoints[endpointIdx]

	env, err := requests.NewServer(requests.ModeRemove, ep.Address, ep.Port, endpointUUID)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.store.Enqueue(r.Context(), env); err != nil {
		writeMessage(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	writeMessage(w, http.StatusAccepted, "Operation was accepted.")
}
