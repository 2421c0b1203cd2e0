// SPDX-License-Identifier: GPL-3.0-or-later

// Package web implements the REST API through which students build
// topologies and run simulations, and teachers manage scenarios,
// submissions, and grades.
//
// The API treats failed simulations as answers, not errors: a ping
// that dies at a router still returns 200 with the full trace. Error
// statuses are reserved for requests the server cannot act on at all.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ZhuChongjing/NetLabX/internal/dnslab"
	"github.com/ZhuChongjing/NetLabX/internal/metrics"
	"github.com/ZhuChongjing/NetLabX/internal/scenario"
	"github.com/ZhuChongjing/NetLabX/internal/store"
	"github.com/ZhuChongjing/NetLabX/sim"
	"github.com/ZhuChongjing/NetLabX/topo"
	"golang.org/x/crypto/bcrypt"
)

// teacherUser is the basic-auth user name for teacher-only endpoints.
const teacherUser = "teacher"

// maxBodyBytes bounds request bodies. Lab topologies are a few
// kilobytes; anything near this limit is a mistake.
const maxBodyBytes = 1 << 20

// Config carries the dependencies of a [Server]. Every field is
// optional: nil dependencies disable the endpoints they back, which
// is how tests and minimal deployments run.
type Config struct {
	// Logger receives request and error logs. Nil discards them.
	Logger *slog.Logger

	// Engine runs the simulations. Nil means a default engine
	// logging through Logger.
	Engine *sim.Engine

	// Store persists the working topology and holds submissions and
	// grades. Nil disables persistence and those endpoints.
	Store *store.Store

	// Scenarios is the scenario directory. Nil disables the
	// scenario endpoints.
	Scenarios *scenario.Store

	// Metrics observes simulations and topology size and backs the
	// /metrics endpoint. Nil disables both.
	Metrics *metrics.Collector

	// DNSLab, when set, is kept in sync with the working topology's
	// DNS records.
	DNSLab *dnslab.Server

	// TeacherPasswordHash is the bcrypt hash guarding teacher-only
	// endpoints. Empty disables authentication.
	TeacherPasswordHash string

	// StaticDir optionally names a directory of static files served
	// at the root path.
	StaticDir string
}

// Server is the HTTP API. Create one with [New] and mount
// [Server.Routes].
type Server struct {
	logger       *slog.Logger
	engine       *sim.Engine
	store        *store.Store
	scenarios    *scenario.Store
	metrics      *metrics.Collector
	dnslab       *dnslab.Server
	passwordHash string
	staticDir    string

	// mu guards current. Handlers replace the snapshot as a whole
	// and never mutate it in place, so readers may keep using a
	// snapshot after the lock is released.
	mu      sync.RWMutex
	current *topo.Snapshot
}

// New creates a [Server] from cfg. The working topology starts
// empty; seed it with [Server.SetTopology].
func New(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	engine := cfg.Engine
	if engine == nil {
		engine = &sim.Engine{Logger: logger}
	}
	return &Server{
		logger:       logger,
		engine:       engine,
		store:        cfg.Store,
		scenarios:    cfg.Scenarios,
		metrics:      cfg.Metrics,
		dnslab:       cfg.DNSLab,
		passwordHash: cfg.TeacherPasswordHash,
		staticDir:    cfg.StaticDir,
		current:      &topo.Snapshot{},
	}
}

// Routes returns the complete handler with middleware applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/topology", s.getTopology)
	mux.HandleFunc("PUT /api/topology", s.putTopology)
	mux.HandleFunc("GET /api/validate", s.validateTopology)

	mux.HandleFunc("POST /api/devices", s.createDevice)
	mux.HandleFunc("GET /api/devices/{id}", s.getDevice)
	mux.HandleFunc("DELETE /api/devices/{id}", s.deleteDevice)
	mux.HandleFunc("PUT /api/devices/{id}/routes", s.putRoutes)
	mux.HandleFunc("PUT /api/devices/{id}/dns", s.putDNSRecords)
	mux.HandleFunc("PUT /api/devices/{id}/web", s.putWebConfig)

	mux.HandleFunc("POST /api/connections", s.createConnection)
	mux.HandleFunc("DELETE /api/connections", s.deleteConnection)

	mux.HandleFunc("POST /api/simulate/ping", s.simulatePing)
	mux.HandleFunc("POST /api/simulate/dns", s.simulateDNS)
	mux.HandleFunc("POST /api/simulate/http", s.simulateHTTP)

	mux.HandleFunc("GET /api/scenarios", s.listScenarios)
	mux.HandleFunc("POST /api/scenarios/{name}/load", s.loadScenario)
	mux.HandleFunc("POST /api/scenarios/{name}", s.teacher(s.saveScenario))
	mux.HandleFunc("DELETE /api/scenarios/{name}", s.teacher(s.deleteScenario))

	mux.HandleFunc("POST /api/submissions", s.createSubmission)
	mux.HandleFunc("GET /api/submissions", s.teacher(s.listSubmissions))
	mux.HandleFunc("GET /api/submissions/{id}", s.teacher(s.getSubmission))

	mux.HandleFunc("POST /api/grades", s.teacher(s.runGrade))
	mux.HandleFunc("GET /api/grades", s.teacher(s.listGrades))
	mux.HandleFunc("GET /api/grades/export", s.teacher(s.exportGrades))

	mux.HandleFunc("GET /healthz", s.healthz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}

	return Chain(mux, s.recoverPanics, s.corsHeaders, s.logRequests)
}

// snapshot returns the current working topology.
func (s *Server) snapshot() *topo.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetTopology replaces the working topology outright and propagates
// it to the store, metrics, and the DNS lab.
func (s *Server) SetTopology(ctx context.Context, next *topo.Snapshot) {
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	s.propagate(ctx, next)
}

// edit applies fn to the working topology under the write lock and
// installs the result, so concurrent edits cannot lose updates. The
// mutation functions in [topo] copy before writing, which keeps the
// critical section small.
func (s *Server) edit(ctx context.Context, fn func(*topo.Snapshot) (*topo.Snapshot, error)) (*topo.Snapshot, error) {
	s.mu.Lock()
	next, err := fn(s.current)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.current = next
	s.mu.Unlock()
	s.propagate(ctx, next)
	return next, nil
}

// propagate pushes a freshly-installed topology to the optional
// dependencies. A store failure is logged rather than surfaced: the
// topology is already live in memory and the student's work goes on.
func (s *Server) propagate(ctx context.Context, next *topo.Snapshot) {
	if s.store != nil {
		if err := s.store.SaveTopology(ctx, next); err != nil {
			s.logger.Warn("persisting topology", slog.Any("err", err))
		}
	}
	if s.metrics != nil {
		s.metrics.SetTopologyCounts(len(next.Devices), len(next.Connections))
	}
	if s.dnslab != nil {
		s.dnslab.Update(next)
	}
}

// teacher guards a handler behind HTTP basic auth with the
// [teacherUser] name and the configured bcrypt password hash. The
// bcrypt comparison is constant-time. An empty hash disables the
// check, which is how development setups run.
func (s *Server) teacher(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.passwordHash != "" {
			user, pass, ok := r.BasicAuth()
			if !ok || user != teacherUser ||
				bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(pass)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="netlab"`)
				s.writeError(w, "unauthorized", "teacher credentials required", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeJSON writes data as a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encoding response", slog.Any("err", err))
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, message, details string, status int) {
	s.writeJSON(w, ErrorResponse{Error: message, Details: details}, status)
}

// readJSON decodes the request body into v. It reports malformed
// input to the client and returns false when the response has
// already been written.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, "invalid request body", err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// httpStatusFor maps topology editing errors onto HTTP statuses:
// missing things are 404, collisions are 409, everything else the
// client sent is 400.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, topo.ErrDeviceNotFound),
		errors.Is(err, topo.ErrNotConnected):
		return http.StatusNotFound
	case errors.Is(err, topo.ErrDuplicateName),
		errors.Is(err, topo.ErrAlreadyConnected),
		errors.Is(err, topo.ErrDuplicateAddress),
		errors.Is(err, topo.ErrSameSubnet):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
