// Package api serves backtest runs and results over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"options-spread-lab/internal/backtest"
	"options-spread-lab/internal/logging"
	"options-spread-lab/internal/metrics"
	"options-spread-lab/internal/observability"
	"options-spread-lab/internal/reporting"
	"options-spread-lab/internal/storage"
	"options-spread-lab/internal/verification"
)

// RunStarter starts a backtest run. Implemented by *backtest.Runner.
type RunStarter interface {
	Run(ctx context.Context, req backtest.RunRequest) (*backtest.RunResult, error)
}

// Deps holds the server's collaborators.
type Deps struct {
	Runner    RunStarter
	Store     storage.TradeStore
	Generator *reporting.Generator
	Verifier  verification.Verifier // optional
	Hub       *Hub                  // optional
	Location  *time.Location        // for request dates
	Log       logrus.FieldLogger
}

// Server handles results API endpoints.
type Server struct {
	runner     RunStarter
	store      storage.TradeStore
	generator  *reporting.Generator
	aggregator *metrics.Aggregator
	verifier   verification.Verifier
	hub        *Hub
	loc        *time.Location
	log        logrus.FieldLogger

	running sync.Mutex // one run at a time
}

// NewServer creates a new server.
func NewServer(d Deps) *Server {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Server{
		runner:     d.Runner,
		store:      d.Store,
		generator:  d.Generator,
		aggregator: metrics.NewAggregator(d.Store),
		verifier:   d.Verifier,
		hub:        d.Hub,
		loc:        loc,
		log:        logging.OrDiscard(d.Log),
	}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.HandleHealth)
	r.GET("/metrics", gin.WrapH(observability.Handler()))
	if s.hub != nil {
		r.GET("/stream", gin.WrapF(s.hub.ServeWS))
	}

	r.POST("/runs", s.HandleStartRun)
	r.GET("/runs", s.HandleListRuns)
	r.GET("/runs/:id/trades", s.HandleGetRunTrades)
	r.GET("/runs/:id/trades.csv", s.HandleGetRunTradesCSV)
	r.GET("/runs/:id/summary", s.HandleGetRunSummary)
	r.GET("/runs/:id/report.md", s.HandleGetRunReport)
	r.GET("/runs/:id/verify", s.HandleVerifyRun)
	r.GET("/trades/:id", s.HandleGetTrade)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("HTTP request")
	}
}

// HandleHealth reports liveness.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type startRunRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

// HandleStartRun runs a backtest for a date range and returns its summary.
func (s *Server) HandleStartRun(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	from, err := time.ParseInLocation("2006-01-02", req.From, s.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
		return
	}
	to, err := time.ParseInLocation("2006-01-02", req.To, s.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
		return
	}

	if !s.running.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"error": "a run is already in progress"})
		return
	}
	defer s.running.Unlock()

	result, err := s.runner.Run(c.Request.Context(), backtest.RunRequest{From: from, To: to})
	switch {
	case errors.Is(err, backtest.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, backtest.ErrNoTradingDates):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"run_id":  result.RunID,
		"trades":  len(result.Trades),
		"summary": result.Summary,
	})
}

// HandleListRuns lists stored runs.
func (s *Server) HandleListRuns(c *gin.Context) {
	runs, err := s.store.ListRuns(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(runs))
	for _, r := range runs {
		out = append(out, gin.H{
			"run_id":           r.RunID,
			"trade_count":      r.TradeCount,
			"first_entry_date": r.FirstEntryDate.Format("2006-01-02"),
			"last_entry_date":  r.LastEntryDate.Format("2006-01-02"),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  out,
		"count": len(out),
	})
}

// HandleGetRunTrades returns a run's trade records.
func (s *Server) HandleGetRunTrades(c *gin.Context) {
	records, err := s.store.GetByRunID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trades": records,
		"count":  len(records),
	})
}

// HandleGetRunTradesCSV returns a run's trade records as CSV.
func (s *Server) HandleGetRunTradesCSV(c *gin.Context) {
	records, err := s.store.GetByRunID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	body, err := reporting.RenderTradesCSV(records)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(body))
}

// HandleGetRunSummary returns a run's summary statistics.
func (s *Server) HandleGetRunSummary(c *gin.Context) {
	summary, err := s.aggregator.ComputeRun(c.Request.Context(), c.Param("id"))
	if errors.Is(err, metrics.ErrNoTrades) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// HandleGetRunReport renders a run's Markdown report.
func (s *Server) HandleGetRunReport(c *gin.Context) {
	report, err := s.generator.Generate(c.Request.Context(), c.Param("id"))
	if errors.Is(err, metrics.ErrNoTrades) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(reporting.RenderMarkdown(report)))
}

// HandleVerifyRun replays a run and reports divergences.
func (s *Server) HandleVerifyRun(c *gin.Context) {
	if s.verifier == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "verification not configured"})
		return
	}
	report, err := s.verifier.VerifyRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if report.TotalTrades == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// HandleGetTrade returns one trade record.
func (s *Server) HandleGetTrade(c *gin.Context) {
	record, err := s.store.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "trade not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}
