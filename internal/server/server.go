package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/coalesce/internal/bank"
	"github.com/agenthands/coalesce/internal/config"
	"github.com/agenthands/coalesce/internal/core"
	"github.com/agenthands/coalesce/internal/llm"
	"github.com/agenthands/coalesce/internal/staging"
)

const (
	RunStatusRunning = "running"
	RunStatusHalted  = "halted"
	RunStatusFailed  = "failed"
)

// Run is one workflow execution tracked by the server.
type Run struct {
	ID        string        `json:"id"`
	Scope     string        `json:"scope"`
	Status    string        `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Progress  core.Progress `json:"progress"`
	Error     string        `json:"error,omitempty"`

	result *core.Result
}

// runRegistry tracks in-flight and finished runs. External readers may see a
// progress snapshot that trails the engine by one iteration; they never
// mutate engine state.
type runRegistry struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]*Run)}
}

func (r *runRegistry) add(run *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
}

// get returns a copy so handlers can serialize it without holding the lock.
func (r *runRegistry) get(id string) (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

func (r *runRegistry) update(id string, fn func(*Run)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[id]; ok {
		fn(run)
	}
}

// Server wires the HTTP surface around the refinement engine. All
// collaborators are injected; nothing is read from process globals.
type Server struct {
	Bank    *bank.GraphBank
	Oracle  llm.LLMClient
	Staging *staging.Store
	Config  *config.Config
	Log     *zap.SugaredLogger

	runs *runRegistry
}

func New(b *bank.GraphBank, oracle llm.LLMClient, st *staging.Store, cfg *config.Config, log *zap.SugaredLogger) *Server {
	return &Server{
		Bank:    b,
		Oracle:  oracle,
		Staging: st,
		Config:  cfg,
		Log:     log,
		runs:    newRunRegistry(),
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.POST("/concepts", s.AddConcepts)
	r.POST("/runs", s.StartRun)
	r.GET("/runs/:id", s.GetRun)
	r.GET("/runs/:id/results", s.GetRunResults)
	r.GET("/reviews", s.ListReviews)
	r.POST("/reviews/:id", s.ReviewProposal)

	return r
}

type addConceptsRequest struct {
	Scope    string `json:"scope" binding:"required"`
	Concepts []struct {
		Name        string   `json:"name" binding:"required"`
		Definitions []string `json:"definitions"`
	} `json:"concepts" binding:"required"`
}

func (s *Server) AddConcepts(c *gin.Context) {
	var req addConceptsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	saved := 0
	for _, concept := range req.Concepts {
		if _, err := s.Bank.SaveConcept(c.Request.Context(), req.Scope, concept.Name, concept.Definitions); err != nil {
			s.Log.Errorw("failed to save concept", "scope", req.Scope, "name", concept.Name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save concepts", "saved": saved})
			return
		}
		saved++
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "saved": saved})
}

type startRunRequest struct {
	Scope         string `json:"scope" binding:"required"`
	MaxIterations int    `json:"max_iterations"`
}

func (s *Server) StartRun(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	cfg := s.Config.Workflow
	if req.MaxIterations > 0 {
		cfg.MaxIterations = req.MaxIterations
	}

	refiner, err := core.NewRefiner(s.Bank, s.Oracle, cfg, s.Log)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run := &Run{
		ID:        uuid.New().String(),
		Scope:     req.Scope,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.runs.add(run)

	refiner.OnProgress = func(p core.Progress) {
		s.runs.update(run.ID, func(r *Run) { r.Progress = p })
	}

	go s.execute(refiner, run.ID, req.Scope)

	c.JSON(http.StatusAccepted, gin.H{"run_id": run.ID})
}

// execute drives one workflow run to completion and stages its results for
// review. The run outlives the originating request on purpose.
func (s *Server) execute(refiner *core.Refiner, runID, scope string) {
	ctx := context.Background()

	result, err := refiner.Run(ctx, scope)
	if err != nil {
		s.Log.Errorw("run failed", "run_id", runID, "scope", scope, "error", err)
		s.runs.update(runID, func(r *Run) {
			r.Status = RunStatusFailed
			r.Error = err.Error()
		})
		return
	}

	if s.Staging != nil {
		if err := s.Staging.StageRun(ctx, runID, result); err != nil {
			s.Log.Errorw("failed to stage run results", "run_id", runID, "error", err)
		}
	}

	s.runs.update(runID, func(r *Run) {
		r.Status = RunStatusHalted
		r.result = result
	})
}

func (s *Server) GetRun(c *gin.Context) {
	run, ok := s.runs.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) GetRunResults(c *gin.Context) {
	run, ok := s.runs.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if run.Status == RunStatusRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "run still in progress", "status": run.Status})
		return
	}
	if run.result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": run.Error, "status": run.Status})
		return
	}
	c.JSON(http.StatusOK, run.result)
}

func (s *Server) ListReviews(c *gin.Context) {
	scope := c.Query("scope")
	if scope == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope query parameter required"})
		return
	}
	if s.Staging == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "staging store not configured"})
		return
	}

	pending, err := s.Staging.ListPending(c.Request.Context(), scope)
	if err != nil {
		s.Log.Errorw("failed to list pending proposals", "scope", scope, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list proposals"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposals": pending})
}

type reviewRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) ReviewProposal(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if s.Staging == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "staging store not configured"})
		return
	}

	if err := s.Staging.SetStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}
