package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	mrg63k3a "github.com/maseology/goRNG/MRG63k3a"
	"go.uber.org/zap"

	"github.com/copyleftdev/AQUIFR/internal/config"
	apperrors "github.com/copyleftdev/AQUIFR/internal/errors"
	"github.com/copyleftdev/AQUIFR/internal/hydro"
	"github.com/copyleftdev/AQUIFR/internal/hydro/allocation"
	"github.com/copyleftdev/AQUIFR/internal/hydro/aquifer"
	"github.com/copyleftdev/AQUIFR/internal/hydro/pumptest"
	"github.com/copyleftdev/AQUIFR/internal/hydro/siting"
	"github.com/copyleftdev/AQUIFR/internal/logging"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Job tracks one asynchronous computation. Drawdown evaluation is cheap and
// served synchronously; allocation, siting and pumping-test inversions run
// as jobs. The state is guarded by the server's mutex.
type Job struct {
	ID          string      `json:"id"`
	Kind        string      `json:"kind"` // "allocation", "siting", "pumptest"
	Status      string      `json:"status"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     *time.Time  `json:"end_time,omitempty"`
	Result      interface{} `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	LastUpdated time.Time   `json:"last_updated"`

	cancel context.CancelFunc
}

// Server implements the HTTP and JSON-RPC surface of the hydraulics service.
// It manages computation jobs and provides endpoints to start, monitor, and
// cancel them.
type Server struct {
	cfg    *config.Config
	logger Logger
	zlog   *zap.Logger

	alloc *allocation.Optimizer
	siter *siting.Searcher

	jobs   map[string]*Job
	jobsMu sync.RWMutex
}

// NewServer creates a new server instance with the given config and logger
// The logger parameter accepts any type that implements the Logger interface
func NewServer(cfg *config.Config, logger Logger) *Server {
	zlog := logging.NewZapLogger(logger.WithFields(map[string]interface{}{
		"component": "hydro",
	}))
	return &Server{
		cfg:    cfg,
		logger: logger,
		zlog:   zlog,
		alloc:  allocation.New(zlog),
		siter:  siting.New(zlog),
		jobs:   make(map[string]*Job),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/drawdown", s.handleDrawdown)
		r.Post("/allocate", s.handleAllocate)
		r.Post("/site", s.handleSite)
		r.Post("/pumptest", s.handlePumpTest)
		r.Get("/jobs/{id}", s.handleJobStatus)
		r.Delete("/jobs/{id}", s.handleJobCancel)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// ---- request/response bodies ----

type aquiferBody struct {
	Transmissivity float64 `json:"transmissivity"`
	Storativity    float64 `json:"storativity"`
}

func (b aquiferBody) params() (aquifer.Params, error) {
	return aquifer.NewParams(b.Transmissivity, b.Storativity)
}

type drawdownRequest struct {
	Aquifer aquiferBody   `json:"aquifer"`
	Wells   []hydro.Well  `json:"wells"`
	Points  []hydro.Point `json:"points"`
	Time    float64       `json:"time"`
	Method  string        `json:"method,omitempty"` // defaults to "theis"
}

type drawdownResponse struct {
	Drawdowns []float64 `json:"drawdowns"`
	Method    string    `json:"method"`
}

type allocateBody struct {
	Aquifer     aquiferBody             `json:"aquifer"`
	Wells       []hydro.Well            `json:"wells"`
	QMax        []float64               `json:"q_max"`
	Constraints []hydro.ConstraintPoint `json:"constraints"`
	H0          float64                 `json:"h0"`
	Time        float64                 `json:"time"`
	Method      string                  `json:"method,omitempty"` // defaults to "linear"
}

type siteBody struct {
	Aquifer     aquiferBody             `json:"aquifer"`
	NWells      int                     `json:"n_wells"`
	Region      siting.Region           `json:"region"`
	TotalDemand float64                 `json:"total_demand"`
	Constraints []hydro.ConstraintPoint `json:"constraints"`
	H0          float64                 `json:"h0"`
	Time        float64                 `json:"time"`
	MaxIter     int                     `json:"max_iterations,omitempty"`
	Method      string                  `json:"method,omitempty"` // defaults to "uniform"
	Seed        *int64                  `json:"seed,omitempty"`
}

type pumpTestBody struct {
	Distance  float64          `json:"distance"`
	Rate      float64          `json:"rate"`
	Times     []float64        `json:"times"`
	Drawdowns []float64        `json:"drawdowns"`
	TBounds   *pumptest.Bounds `json:"t_bounds,omitempty"`
	SBounds   *pumptest.Bounds `json:"s_bounds,omitempty"`
}

// ---- synchronous drawdown evaluation ----

func (s *Server) evaluateDrawdown(req *drawdownRequest) (*drawdownResponse, error) {
	p, err := req.Aquifer.params()
	if err != nil {
		return nil, err
	}
	if req.Method == "" {
		req.Method = string(hydro.MethodTheis)
	}
	method, err := hydro.ParseMethod(req.Method)
	if err != nil {
		return nil, err
	}
	dd, err := hydro.Superpose(p, req.Wells, req.Points, req.Time, method)
	if err != nil {
		return nil, err
	}
	return &drawdownResponse{Drawdowns: dd, Method: string(method)}, nil
}

func (s *Server) handleDrawdown(w http.ResponseWriter, r *http.Request) {
	var req drawdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	resp, err := s.evaluateDrawdown(&req)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// ---- asynchronous jobs ----

// startJob registers a job and runs fn in a goroutine. fn owns the context;
// cancellation flips the job to "cancelled" regardless of what fn returns
// afterwards. The goroutine mutates the job under jobsMu as soon as it is
// scheduled, so callers must not read mutable fields off the returned job;
// only the immutable ID is safe. Poll jobStatus for everything else.
func (s *Server) startJob(kind string, fn func(ctx context.Context) (interface{}, error)) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	job := &Job{
		ID:          fmt.Sprintf("%s_%d", kind, now.UnixNano()),
		Kind:        kind,
		Status:      "pending",
		StartTime:   now,
		LastUpdated: now,
		cancel:      cancel,
	}

	s.jobsMu.Lock()
	s.jobs[job.ID] = job
	s.jobsMu.Unlock()

	go func() {
		s.jobsMu.Lock()
		job.Status = "running"
		job.LastUpdated = time.Now()
		s.jobsMu.Unlock()

		result, err := fn(ctx)

		s.jobsMu.Lock()
		defer s.jobsMu.Unlock()
		if job.Status == "cancelled" {
			return
		}
		if err != nil {
			wrapped := apperrors.Wrap(err, "job failed").WithComponent(kind)
			s.logger.Error("Job failed", map[string]interface{}{
				"job_id": job.ID,
				"kind":   kind,
				"error":  wrapped.Error(),
			})
			job.Status = "failed"
			job.Error = err.Error()
		} else {
			job.Status = "completed"
			job.Result = result
		}
		end := time.Now()
		job.EndTime = &end
		job.LastUpdated = end
	}()

	return job
}

func (s *Server) startAllocation(body *allocateBody) (*Job, error) {
	p, err := body.Aquifer.params()
	if err != nil {
		return nil, err
	}
	method := body.Method
	if method == "" {
		method = string(allocation.MethodLinear)
	}
	m, err := allocation.ParseMethod(method)
	if err != nil {
		return nil, err
	}
	cfg := allocation.Config{
		Params:        p,
		Wells:         body.Wells,
		QMax:          body.QMax,
		Constraints:   body.Constraints,
		H0:            body.H0,
		Time:          body.Time,
		Method:        m,
		MaxIterations: s.cfg.Hydro.AllocationMaxIterations,
		Tolerance:     s.cfg.Hydro.AllocationTolerance,
	}
	return s.startJob("allocation", func(ctx context.Context) (interface{}, error) {
		return s.alloc.Optimize(ctx, cfg)
	}), nil
}

func (s *Server) startSiting(body *siteBody) (*Job, error) {
	p, err := body.Aquifer.params()
	if err != nil {
		return nil, err
	}
	method := body.Method
	if method == "" {
		method = string(siting.MethodUniform)
	}
	m, err := siting.ParseMethod(method)
	if err != nil {
		return nil, err
	}
	maxIter := body.MaxIter
	if maxIter <= 0 {
		maxIter = s.cfg.Hydro.SitingMaxIterations
	}
	var rng *rand.Rand
	if body.Seed != nil {
		rng = rand.New(mrg63k3a.New())
		rng.Seed(*body.Seed)
	}
	cfg := siting.Config{
		NWells:      body.NWells,
		Region:      body.Region,
		TotalDemand: body.TotalDemand,
		Params:      p,
		H0:          body.H0,
		Constraints: body.Constraints,
		Time:        body.Time,
		MaxIter:     maxIter,
		Epsilon:     s.cfg.Hydro.SitingEpsilon,
		Method:      m,
		RNG:         rng,
		Workers:     s.cfg.Hydro.Workers,
	}
	return s.startJob("siting", func(ctx context.Context) (interface{}, error) {
		return s.siter.Search(ctx, cfg)
	}), nil
}

func (s *Server) startPumpTest(body *pumpTestBody) (*Job, error) {
	cfg := pumptest.Config{
		Distance:  body.Distance,
		Rate:      body.Rate,
		Times:     body.Times,
		Drawdowns: body.Drawdowns,
		Logger:    s.zlog,
	}
	if body.TBounds != nil {
		cfg.TBounds = *body.TBounds
	}
	if body.SBounds != nil {
		cfg.SBounds = *body.SBounds
	}
	return s.startJob("pumptest", func(ctx context.Context) (interface{}, error) {
		return pumptest.Fit(ctx, cfg)
	}), nil
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var body allocateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	job, err := s.startAllocation(&body)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": "pending"})
}

func (s *Server) handleSite(w http.ResponseWriter, r *http.Request) {
	var body siteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	job, err := s.startSiting(&body)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": "pending"})
}

func (s *Server) handlePumpTest(w http.ResponseWriter, r *http.Request) {
	var body pumpTestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	job, err := s.startPumpTest(&body)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": "pending"})
}

func (s *Server) jobStatus(id string) (*Job, error) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %q not found", id)
	}
	// Shallow copy so callers never see later mutations mid-encode.
	cp := *job
	return &cp, nil
}

func (s *Server) cancelJob(id string) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %q not found", id)
	}
	switch job.Status {
	case "completed", "failed", "cancelled":
		return fmt.Errorf("cannot cancel job with status: %s", job.Status)
	}
	if job.cancel != nil {
		job.cancel()
	}
	job.Status = "cancelled"
	now := time.Now()
	job.EndTime = &now
	job.LastUpdated = now

	s.logger.Info("Job cancelled", map[string]interface{}{"job_id": id})
	return nil
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "missing job ID"})
		return
	}
	job, err := s.jobStatus(id)
	if err != nil {
		respondJSON(w, http.StatusNotFound, map[string]interface{}{"error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "missing job ID"})
		return
	}
	if err := s.cancelJob(id); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancellation requested"})
}

// Close cleans up resources
func (s *Server) Close() error {
	// Cancel all running jobs
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	for _, job := range s.jobs {
		if job.cancel != nil {
			job.cancel()
		}
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
