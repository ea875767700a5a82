package api

import (
	"encoding/json"
	"net/http"

	"github.com/rpiboot/rpibootd/internal/core"
	"github.com/rpiboot/rpibootd/internal/logs"

	"github.com/gorilla/mux"
)

// This package serves the JSON view of the boot server. The logic is
// in the core package; here the data is only formatted for the reply.

type History interface {
	History() []core.Attempt
}

type VersionInfo struct {
	Version string `json:"version"`
}

type api struct {
	history History
	version string
	logger  *logs.Logger
}

func ServeAPI(r *mux.Router, h History, v string, l *logs.Logger) {
	api := &api{
		history: h,
		version: v,
		logger:  l,
	}
	r.HandleFunc("/", api.Info)
	r.HandleFunc("/attempts", api.Attempts)
	r.HandleFunc("/attempts/last", api.LastAttempt)
}

func (a *api) Info(w http.ResponseWriter, r *http.Request) {
	a.logger.Log("version " + a.version)
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(VersionInfo{
		Version: a.version,
	})
	a.checkJSONError(w, err)
}

func (a *api) Attempts(w http.ResponseWriter, r *http.Request) {
	h := a.history.History()
	if h == nil {
		h = []core.Attempt{}
	}
	a.logger.Logf("%d attempts", len(h))
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(h)
	a.checkJSONError(w, err)
}

func (a *api) LastAttempt(w http.ResponseWriter, r *http.Request) {
	h := a.history.History()
	if len(h) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(h[len(h)-1])
	a.checkJSONError(w, err)
}

func (a *api) checkJSONError(w http.ResponseWriter, err error) {
	if err != nil {
		a.respondError(w, err)
	}
}

func (a *api) respondError(w http.ResponseWriter, err error) {
	type jsonError struct {
		Error string `json:"error"`
	}
	a.logger.Log("Returning error: " + err.Error())
	w.WriteHeader(http.StatusBadRequest)

	// if even the encoder of the error errors, just log the error
	err = json.NewEncoder(w).Encode(jsonError{
		Error: err.Error(),
	})
	if err != nil {
		a.logger.Log("Error while writing error: " + err.Error())
	}
}
