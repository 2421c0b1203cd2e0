// SPDX-License-Identifier: GPL-3.0-or-later

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/ZhuChongjing/NetLabX/internal/grading"
	"github.com/ZhuChongjing/NetLabX/internal/scenario"
	"github.com/ZhuChongjing/NetLabX/internal/store"
	"github.com/ZhuChongjing/NetLabX/sim"
	"github.com/ZhuChongjing/NetLabX/topo"
	"golang.org/x/crypto/bcrypt"
)

// getTopology returns the working topology.
func (s *Server) getTopology(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.snapshot(), http.StatusOK)
}

// putTopology replaces the working topology outright. The new
// topology is normalized but deliberately not validated: broken
// topologies must stay buildable so students can watch them fail.
// Use GET /api/validate to see what is wrong with one.
func (s *Server) putTopology(w http.ResponseWriter, r *http.Request) {
	var snap topo.Snapshot
	if !s.readJSON(w, r, &snap) {
		return
	}
	snap.Normalize()
	s.SetTopology(r.Context(), &snap)
	s.writeJSON(w, &snap, http.StatusOK)
}

// ValidationResponse is the body of GET /api/validate.
type ValidationResponse struct {
	// Valid reports whether validation found nothing to complain
	// about.
	Valid bool `json:"valid"`

	// Problems lists one message per finding; empty when Valid.
	Problems []string `json:"problems"`
}

// validateTopology reports the problems of the working topology
// without preventing its use.
func (s *Server) validateTopology(w http.ResponseWriter, r *http.Request) {
	resp := ValidationResponse{Problems: []string{}}
	if err := s.snapshot().Validate(); err != nil {
		resp.Problems = problemList(err)
	}
	resp.Valid = len(resp.Problems) == 0
	s.writeJSON(w, resp, http.StatusOK)
}

// problemList flattens a joined validation error into its individual
// messages.
func problemList(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

// CreateDeviceRequest is the body of POST /api/devices.
type CreateDeviceRequest struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Address string `json:"address"`
}

// createDevice adds a device to the working topology.
func (s *Server) createDevice(w http.ResponseWriter, r *http.Request) {
	var req CreateDeviceRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	var created *topo.Device
	_, err := s.edit(r.Context(), func(cur *topo.Snapshot) (*topo.Snapshot, error) {
		next, d, err := topo.AddDevice(cur, req.Name, topo.DeviceKind(req.Kind), req.Address)
		created = d
		return next, err
	})
	if err != nil {
		s.writeError(w, "cannot add device", err.Error(), httpStatusFor(err))
		return
	}
	s.writeJSON(w, created, http.StatusCreated)
}

// getDevice returns one device by ID.
func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d := s.snapshot().DeviceByID(id)
	if d == nil {
		s.writeError(w, "device not found", id, http.StatusNotFound)
		return
	}
	s.writeJSON(w, d, http.StatusOK)
}

// deleteDevice removes a device and every connection touching it.
func (s *Server) deleteDevice(w http.ResponseWriter, r *http.Request) {
	_, err := s.edit(r.Context(), func(cur *topo.Snapshot) (*topo.Snapshot, error) {
		return topo.RemoveDevice(cur, r.PathValue("id"))
	})
	if err != nil {
		s.writeError(w, "cannot remove device", err.Error(), httpStatusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RoutesRequest is the body of PUT /api/devices/{id}/routes.
type RoutesRequest struct {
	Routes []topo.Route `json:"routes"`
}

// putRoutes replaces a router's routing table.
func (s *Server) putRoutes(w http.ResponseWriter, r *http.Request) {
	var req RoutesRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	next, err := s.edit(r.Context(), func(cur *topo.Snapshot) (*topo.Snapshot, error) {
		return topo.SetRoutes(cur, id, req.Routes)
	})
	if err != nil {
		s.writeError(w, "cannot set routes", err.Error(), httpStatusFor(err))
		return
	}
	s.writeJSON(w, next.DeviceByID(id), http.StatusOK)
}

// DNSRecordsRequest is the body of PUT /api/devices/{id}/dns.
type DNSRecordsRequest struct {
	Records topo.DNSRecords `json:"records"`
}

// putDNSRecords replaces a DNS server's record set.
func (s *Server) putDNSRecords(w http.ResponseWriter, r *http.Request) {
	var req DNSRecordsRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	next, err := s.edit(r.Context(), func(cur *topo.Snapshot) (*topo.Snapshot, error) {
		return topo.SetDNSRecords(cur, id, req.Records)
	})
	if err != nil {
		s.writeError(w, "cannot set DNS records", err.Error(), httpStatusFor(err))
		return
	}
	s.writeJSON(w, next.DeviceByID(id), http.StatusOK)
}

// putWebConfig replaces a web server's serving configuration. The
// body is the configuration itself: {"port": 8080, "content": "hi"}.
func (s *Server) putWebConfig(w http.ResponseWriter, r *http.Request) {
	var cfg topo.WebConfig
	if !s.readJSON(w, r, &cfg) {
		return
	}
	id := r.PathValue("id")
	next, err := s.edit(r.Context(), func(cur *topo.Snapshot) (*topo.Snapshot, error) {
		return topo.SetWebConfig(cur, id, cfg)
	})
	if err != nil {
		s.writeError(w, "cannot set web config", err.Error(), httpStatusFor(err))
		return
	}
	s.writeJSON(w, next.DeviceByID(id), http.StatusOK)
}

// ConnectionRequest is the body of POST /api/connections.
type ConnectionRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

// createConnection links two devices.
func (s *Server) createConnection(w http.ResponseWriter, r *http.Request) {
	var req ConnectionRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	next, err := s.edit(r.Context(), func(cur *topo.Snapshot) (*topo.Snapshot, error) {
		return topo.Connect(cur, req.A, req.B)
	})
	if err != nil {
		s.writeError(w, "cannot connect", err.Error(), httpStatusFor(err))
		return
	}
	s.writeJSON(w, next.ConnectionBetween(req.A, req.B), http.StatusCreated)
}

// deleteConnection removes the link between the devices named by the
// a and b query parameters.
func (s *Server) deleteConnection(w http.ResponseWriter, r *http.Request) {
	a, b := r.URL.Query().Get("a"), r.URL.Query().Get("b")
	if a == "" || b == "" {
		s.writeError(w, "missing device IDs",
			"query parameters a and b are required", http.StatusBadRequest)
		return
	}
	_, err := s.edit(r.Context(), func(cur *topo.Snapshot) (*topo.Snapshot, error) {
		return topo.Disconnect(cur, a, b)
	})
	if err != nil {
		s.writeError(w, "cannot disconnect", err.Error(), httpStatusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PingRequest is the body of POST /api/simulate/ping.
type PingRequest struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// simulatePing runs a reachability probe. A probe that dies on the
// way is still a 200: the result carries where and why.
func (s *Server) simulatePing(w http.ResponseWriter, r *http.Request) {
	var req PingRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	res := s.observe(func() *sim.Result {
		return s.engine.Ping(s.snapshot(), req.Src, req.Dst)
	})
	s.writeJSON(w, res, http.StatusOK)
}

// DNSQueryRequest is the body of POST /api/simulate/dns.
type DNSQueryRequest struct {
	Src    string `json:"src"`
	Server string `json:"server"`
	Domain string `json:"domain"`
}

// simulateDNS runs a DNS lookup against a server in the topology.
func (s *Server) simulateDNS(w http.ResponseWriter, r *http.Request) {
	var req DNSQueryRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	res := s.observe(func() *sim.Result {
		return s.engine.Query(s.snapshot(), req.Src, req.Server, req.Domain)
	})
	s.writeJSON(w, res, http.StatusOK)
}

// FetchRequest is the body of POST /api/simulate/http.
type FetchRequest struct {
	Src    string `json:"src"`
	Target string `json:"target"`
	Port   int    `json:"port"`
}

// simulateHTTP runs an HTTP GET against a web server in the
// topology, resolving the target through the lab's DNS first when it
// is a domain name.
func (s *Server) simulateHTTP(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	res := s.observe(func() *sim.Result {
		return s.engine.Fetch(s.snapshot(), req.Src, req.Target, req.Port)
	})
	s.writeJSON(w, res, http.StatusOK)
}

// observe runs one simulation and feeds its outcome to metrics.
func (s *Server) observe(run func() *sim.Result) *sim.Result {
	start := time.Now()
	res := run()
	if s.metrics != nil {
		s.metrics.ObserveSimulation(res, time.Since(start))
	}
	return res
}

// listScenarios returns the scenario directory index.
func (s *Server) listScenarios(w http.ResponseWriter, r *http.Request) {
	if s.scenarios == nil {
		s.writeError(w, "scenarios disabled",
			"no scenario directory configured", http.StatusNotFound)
		return
	}
	s.writeJSON(w, s.scenarios.List(), http.StatusOK)
}

// loadScenario installs a stored scenario as the working topology.
func (s *Server) loadScenario(w http.ResponseWriter, r *http.Request) {
	if s.scenarios == nil {
		s.writeError(w, "scenarios disabled",
			"no scenario directory configured", http.StatusNotFound)
		return
	}
	name := r.PathValue("name")
	f, err := s.scenarios.Load(name)
	if err != nil {
		status := http.StatusBadRequest
		if isNotExist(err) {
			status = http.StatusNotFound
		}
		s.writeError(w, "cannot load scenario", err.Error(), status)
		return
	}
	snap := f.Snapshot()
	s.SetTopology(r.Context(), snap)
	if s.metrics != nil {
		s.metrics.IncScenarioLoads()
	}
	s.writeJSON(w, snap, http.StatusOK)
}

// isNotExist reports whether err means a missing file.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// SaveScenarioRequest is the optional body of POST
// /api/scenarios/{name}.
type SaveScenarioRequest struct {
	Description string `json:"description"`
}

// saveScenario stores the working topology under the given name.
// Teacher-only.
func (s *Server) saveScenario(w http.ResponseWriter, r *http.Request) {
	if s.scenarios == nil {
		s.writeError(w, "scenarios disabled",
			"no scenario directory configured", http.StatusNotFound)
		return
	}
	var req SaveScenarioRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		s.writeError(w, "invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	name := r.PathValue("name")
	f := scenario.FromSnapshot(name, req.Description, s.snapshot())
	if err := s.scenarios.Save(name, f); err != nil {
		s.writeError(w, "cannot save scenario", err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, struct {
		Name string `json:"name"`
	}{name}, http.StatusCreated)
}

// deleteScenario removes a stored scenario. Teacher-only.
func (s *Server) deleteScenario(w http.ResponseWriter, r *http.Request) {
	if s.scenarios == nil {
		s.writeError(w, "scenarios disabled",
			"no scenario directory configured", http.StatusNotFound)
		return
	}
	if err := s.scenarios.Delete(r.PathValue("name")); err != nil {
		status := http.StatusBadRequest
		if isNotExist(err) {
			status = http.StatusNotFound
		}
		s.writeError(w, "cannot delete scenario", err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmissionRequest is the body of POST /api/submissions.
type SubmissionRequest struct {
	Student    string `json:"student"`
	Assignment string `json:"assignment,omitempty"`
}

// createSubmission stores the working topology as a student's
// submission.
func (s *Server) createSubmission(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, "persistence disabled",
			"no database configured", http.StatusNotFound)
		return
	}
	var req SubmissionRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.Student == "" {
		s.writeError(w, "missing student",
			"the student field is required", http.StatusBadRequest)
		return
	}
	id, err := s.store.AddSubmission(r.Context(), req.Student, req.Assignment, s.snapshot())
	if err != nil {
		s.writeError(w, "cannot store submission", err.Error(), http.StatusInternalServerError)
		return
	}
	if s.metrics != nil {
		s.metrics.IncSubmissions()
	}
	s.writeJSON(w, struct {
		ID int64 `json:"id"`
	}{id}, http.StatusCreated)
}

// listSubmissions returns submission headers, newest first.
// Teacher-only.
func (s *Server) listSubmissions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, "persistence disabled",
			"no database configured", http.StatusNotFound)
		return
	}
	subs, err := s.store.ListSubmissions(r.Context())
	if err != nil {
		s.writeError(w, "cannot list submissions", err.Error(), http.StatusInternalServerError)
		return
	}
	if subs == nil {
		subs = []store.Submission{}
	}
	s.writeJSON(w, subs, http.StatusOK)
}

// getSubmission returns one submission with its topology payload.
// Teacher-only.
func (s *Server) getSubmission(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, "persistence disabled",
			"no database configured", http.StatusNotFound)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, "invalid submission ID", err.Error(), http.StatusBadRequest)
		return
	}
	sub, err := s.store.Submission(r.Context(), id)
	if err != nil {
		s.writeError(w, "cannot load submission", err.Error(), http.StatusInternalServerError)
		return
	}
	if sub == nil {
		s.writeError(w, "submission not found",
			fmt.Sprintf("no submission with ID %d", id), http.StatusNotFound)
		return
	}
	s.writeJSON(w, sub, http.StatusOK)
}

// GradeRequest is the body of POST /api/grades. Assignment carries
// the assignment definition as YAML, the same document the CLI reads
// from disk.
type GradeRequest struct {
	SubmissionID int64  `json:"submissionId"`
	Assignment   string `json:"assignment"`
}

// runGrade grades a stored submission against an assignment and
// records the outcome. Teacher-only.
func (s *Server) runGrade(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, "persistence disabled",
			"no database configured", http.StatusNotFound)
		return
	}
	var req GradeRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	a, err := grading.ParseAssignment([]byte(req.Assignment))
	if err != nil {
		s.writeError(w, "invalid assignment", err.Error(), http.StatusBadRequest)
		return
	}
	sub, err := s.store.Submission(r.Context(), req.SubmissionID)
	if err != nil {
		s.writeError(w, "cannot load submission", err.Error(), http.StatusInternalServerError)
		return
	}
	if sub == nil {
		s.writeError(w, "submission not found",
			fmt.Sprintf("no submission with ID %d", req.SubmissionID), http.StatusNotFound)
		return
	}

	grader := &grading.Grader{Engine: s.engine}
	grade := grader.Run(sub.Topology, a, sub.Student)

	rec := &store.GradeRecord{
		SubmissionID: sub.ID,
		Assignment:   a.Name,
		Student:      sub.Student,
		Earned:       grade.Earned,
		Total:        grade.Total,
	}
	id, err := s.store.SaveGrade(r.Context(), rec, grade)
	if err != nil {
		s.writeError(w, "cannot store grade", err.Error(), http.StatusInternalServerError)
		return
	}
	rec.ID = id
	rec.Detail, _ = json.Marshal(grade)
	s.writeJSON(w, rec, http.StatusCreated)
}

// listGrades returns stored grades, optionally filtered by the
// assignment query parameter. Teacher-only.
func (s *Server) listGrades(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, "persistence disabled",
			"no database configured", http.StatusNotFound)
		return
	}
	recs, err := s.store.ListGrades(r.Context(), r.URL.Query().Get("assignment"))
	if err != nil {
		s.writeError(w, "cannot list grades", err.Error(), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []store.GradeRecord{}
	}
	s.writeJSON(w, recs, http.StatusOK)
}

// xlsxContentType is the MIME type of .xlsx workbooks.
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// exportGrades streams an XLSX grade sheet for one assignment. The
// sheet layout comes from the stored per-check results, so the
// assignment document is not needed again. Teacher-only.
func (s *Server) exportGrades(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, "persistence disabled",
			"no database configured", http.StatusNotFound)
		return
	}
	assignment := r.URL.Query().Get("assignment")
	if assignment == "" {
		s.writeError(w, "missing assignment",
			"the assignment query parameter is required", http.StatusBadRequest)
		return
	}
	recs, err := s.store.ListGrades(r.Context(), assignment)
	if err != nil {
		s.writeError(w, "cannot list grades", err.Error(), http.StatusInternalServerError)
		return
	}
	if len(recs) == 0 {
		s.writeError(w, "no grades",
			"no grades stored for "+assignment, http.StatusNotFound)
		return
	}

	grades := make([]*grading.Grade, 0, len(recs))
	for _, rec := range recs {
		var g grading.Grade
		if err := json.Unmarshal(rec.Detail, &g); err != nil {
			s.writeError(w, "corrupt grade detail", err.Error(), http.StatusInternalServerError)
			return
		}
		grades = append(grades, &g)
	}
	slices.Reverse(grades) // ListGrades is newest-first; sheets read oldest-first

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", assignment+".xlsx"))
	if err := grading.ExportXLSX(w, assignmentFromGrade(assignment, grades[0]), grades); err != nil {
		s.logger.Error("exporting grades", slog.Any("err", err))
	}
}

// assignmentFromGrade rebuilds the check layout of an assignment
// from a stored grade, which records every check's name and points.
func assignmentFromGrade(name string, g *grading.Grade) *grading.Assignment {
	a := &grading.Assignment{Name: name}
	for _, res := range g.Results {
		a.Checks = append(a.Checks, grading.Check{Name: res.Name, Points: res.Points})
	}
	return a
}

// healthz reports liveness. It deliberately checks nothing deeper:
// the process answering is the health being asked about.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, struct {
		Status string `json:"status"`
	}{"ok"}, http.StatusOK)
}

// HashPassword produces the bcrypt hash the teacher password
// configuration expects. The CLI exposes it so deployments never
// store plaintext.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
