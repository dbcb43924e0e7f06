package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdlog "log"
	"net/http"
	"sync"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/mastercactapus/echem/datastore"
	"github.com/mastercactapus/echem/method"
	"github.com/mastercactapus/echem/runner"
	"github.com/mastercactapus/echem/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type api struct {
	http.Handler
	lab *lab
	log logrus.FieldLogger
	sse *sse.Server

	closeOnce sync.Once
}

type sampleEvent struct {
	RunID string  `json:"run_id"`
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

type progressEvent struct {
	RunID    string  `json:"run_id"`
	Fraction float64 `json:"fraction"`
}

type runResponse struct {
	runner.Status
	Path string `json:"path,omitempty"`
}

func newAPI(lb *lab, gatherer prometheus.Gatherer) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		lab:     lb,
		log:     lb.log,
		sse: sse.NewServer(&sse.Options{
			Logger: stdlog.New(io.Discard, "", 0),
		}),
	}

	r.HandleFunc("/api/methods", a.methods).Methods("GET")
	r.HandleFunc("/api/runs", a.startRun).Methods("POST")
	r.HandleFunc("/api/runs/current", a.currentRun).Methods("GET")
	r.HandleFunc("/api/runs/current", a.cancelRun).Methods("DELETE")
	r.HandleFunc("/api/ports", a.ports).Methods("GET")
	r.HandleFunc("/api/users", a.users).Methods("GET")
	r.HandleFunc("/api/users", a.createUser).Methods("POST")
	r.HandleFunc("/api/users/{user}/projects", a.projects).Methods("GET")
	r.HandleFunc("/api/users/{user}/projects", a.createProject).Methods("POST")

	fs := http.FileServer(http.Dir(lb.store.Dir()))
	r.PathPrefix("/data/").Handler(http.StripPrefix("/data", fs)).Methods("GET", "HEAD")
	r.PathPrefix("/events/").Handler(a.sse)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Use(a.logRequests)
	return a
}

func (a *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		a.log.WithField("remote", req.RemoteAddr).Debugf("%s %s", req.Method, req.URL.Path)
		next.ServeHTTP(w, req)
	})
}

// Close disconnects all event stream clients.
func (a *api) Close() {
	a.closeOnce.Do(a.sse.Shutdown)
}

func (a *api) send(channel string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		a.log.WithError(err).Error("marshal event")
		return
	}
	a.sse.SendMessage(channel, sse.SimpleMessage(string(data)))
}

func (a *api) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.WithError(err).Error("encode response")
	}
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var cerr *method.ConfigurationError
	switch {
	case errors.Is(err, runner.ErrRunInProgress):
		code = http.StatusConflict
	case errors.As(err, &cerr), errors.Is(err, datastore.ErrInvalidName):
		code = http.StatusBadRequest
	default:
		a.log.WithError(err).Error("request failed")
	}
	a.writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (a *api) methods(w http.ResponseWriter, req *http.Request) {
	a.writeJSON(w, http.StatusOK, a.lab.registry.Describe())
}

func (a *api) startRun(w http.ResponseWriter, req *http.Request) {
	var rr runRequest
	dec := json.NewDecoder(req.Body)
	dec.UseNumber()
	if err := dec.Decode(&rr); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request: " + err.Error()})
		return
	}

	var (
		mx    sync.Mutex
		runID string
		index int
	)
	hooks := runHooks{
		emit: func(x, y float64) {
			mx.Lock()
			ev := sampleEvent{RunID: runID, Index: index, X: x, Y: y}
			index++
			mx.Unlock()
			a.send("/events/samples", ev)
		},
		progress: func(f float64) {
			mx.Lock()
			id := runID
			mx.Unlock()
			a.send("/events/progress", progressEvent{RunID: id, Fraction: f})
		},
		done: func(s *runner.Session, rec *datastore.Recording) {
			a.send("/events/status", runResponse{Status: s.Status(), Path: a.relPath(rec)})
		},
	}

	// the run outlives the request
	mx.Lock()
	s, rec, err := a.lab.start(context.Background(), rr, hooks)
	if err != nil {
		mx.Unlock()
		a.writeError(w, err)
		return
	}
	runID = s.ID.String()
	mx.Unlock()

	resp := runResponse{Status: s.Status(), Path: a.relPath(rec)}
	a.send("/events/status", resp)
	a.writeJSON(w, http.StatusAccepted, resp)
}

func (a *api) relPath(rec *datastore.Recording) string {
	if rec == nil {
		return ""
	}
	return "/data/" + rec.Rel
}

func (a *api) currentRun(w http.ResponseWriter, req *http.Request) {
	s := a.lab.runner.Active()
	if s == nil {
		s = a.lab.runner.Last()
	}
	if s == nil {
		a.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no run"})
		return
	}
	a.writeJSON(w, http.StatusOK, runResponse{Status: s.Status()})
}

func (a *api) cancelRun(w http.ResponseWriter, req *http.Request) {
	s := a.lab.runner.Active()
	if s == nil {
		a.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active run"})
		return
	}
	s.Cancel()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
	case <-req.Context().Done():
	}
	a.writeJSON(w, http.StatusOK, runResponse{Status: s.Status()})
}

func (a *api) ports(w http.ResponseWriter, req *http.Request) {
	var filters []transport.PortFilter
	if req.FormValue("usb") == "1" {
		filters = append(filters, transport.USBOnly)
	}
	ports, err := transport.ListPorts(filters...)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, ports)
}

func (a *api) users(w http.ResponseWriter, req *http.Request) {
	users, err := a.lab.store.Users()
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, users)
}

type nameRequest struct {
	Name string `json:"name"`
}

func (a *api) createUser(w http.ResponseWriter, req *http.Request) {
	var nr nameRequest
	if err := json.NewDecoder(req.Body).Decode(&nr); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request: " + err.Error()})
		return
	}
	if err := a.lab.store.CreateUser(nr.Name); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *api) projects(w http.ResponseWriter, req *http.Request) {
	projects, err := a.lab.store.Projects(mux.Vars(req)["user"])
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, projects)
}

func (a *api) createProject(w http.ResponseWriter, req *http.Request) {
	var nr nameRequest
	if err := json.NewDecoder(req.Body).Decode(&nr); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request: " + err.Error()})
		return
	}
	if err := a.lab.store.CreateProject(mux.Vars(req)["user"], nr.Name); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}
