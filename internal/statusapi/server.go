// Package statusapi serves read-only observability endpoints plus the
// operator's rollout override over HTTP.
package statusapi

// #region imports
import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielpatrickdp/tradeflow/go-controller/internal/logging"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/provider"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/resilience"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/rollout"
)

// #endregion

// #region server
// Deps are the shared state objects the API reports on. Engine, DB and
// Gatherer are optional; their routes answer 404 when absent.
type Deps struct {
	Monitor  *resilience.Monitor
	Router   *provider.Router
	Gate     *rollout.Gate
	Engine   *rollout.PromotionEngine
	DB       *sql.DB
	Gatherer prometheus.Gatherer
}

// Server holds the routes. Build it once with New.
type Server struct {
	deps   Deps
	engine *gin.Engine
}

// New registers every route on a fresh gin engine.
func New(deps Deps) *Server {
	s := &Server{deps: deps, engine: gin.New()}
	s.engine.Use(gin.Recovery(), requestLog())

	s.engine.GET("/healthz", s.healthz)

	v1 := s.engine.Group("/v1")
	v1.GET("/stages", s.stages)
	v1.GET("/providers", s.providers)
	v1.POST("/providers/:capability/:id/reset", s.resetProvider)
	v1.GET("/rollout", s.rollout)
	v1.PUT("/rollout", s.setRollout)
	v1.DELETE("/rollout", s.clearRollout)
	v1.GET("/rollout/recommendation", s.recommendation)
	v1.GET("/decisions", s.decisions)

	if deps.Gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[API] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("[API] %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}

// #endregion server

// #region handlers
func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) stages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stages": s.deps.Monitor.Snapshot()})
}

func (s *Server) providers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": s.deps.Router.Status()})
}

func (s *Server) resetProvider(c *gin.Context) {
	capability := provider.Capability(c.Param("capability"))
	id := c.Param("id")
	if err := s.deps.Router.Reset(capability, id); err != nil {
		if errors.Is(err, provider.ErrUnknownProvider) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h, _ := s.deps.Router.Health(capability, id)
	c.JSON(http.StatusOK, h)
}

// RolloutStatus is the body of GET/PUT/DELETE /v1/rollout.
type RolloutStatus struct {
	Percentage int  `json:"percentage"`
	Configured int  `json:"configured"`
	Override   bool `json:"override"`
	ForceAllow int  `json:"force_allow_count"`
}

func (s *Server) rolloutStatus() RolloutStatus {
	pct, over := s.deps.Gate.Percentage()
	return RolloutStatus{
		Percentage: pct,
		Configured: s.deps.Gate.Configured(),
		Override:   over,
		ForceAllow: s.deps.Gate.ForceAllow(),
	}
}

func (s *Server) rollout(c *gin.Context) {
	c.JSON(http.StatusOK, s.rolloutStatus())
}

type setRolloutRequest struct {
	Percentage *int `json:"percentage" binding:"required"`
}

func (s *Server) setRollout(c *gin.Context) {
	var req setRolloutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"percentage\": <int>}"})
		return
	}
	s.deps.Gate.SetPercentage(*req.Percentage)
	c.JSON(http.StatusOK, s.rolloutStatus())
}

func (s *Server) clearRollout(c *gin.Context) {
	s.deps.Gate.ClearOverride()
	c.JSON(http.StatusOK, s.rolloutStatus())
}

func (s *Server) recommendation(c *gin.Context) {
	if s.deps.Engine == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "promotion engine not configured"})
		return
	}
	rec, err := s.deps.Engine.Evaluate()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

type decisionView struct {
	EntryID   string    `json:"entry_id"`
	Kind      string    `json:"kind"`
	Subject   string    `json:"subject"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) decisions(c *gin.Context) {
	if s.deps.DB == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "decision log not configured"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	entries, err := logging.RecentDecisions(s.deps.DB, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]decisionView, 0, len(entries))
	for _, e := range entries {
		out = append(out, decisionView{
			EntryID:   e.EntryID,
			Kind:      string(e.Kind),
			Subject:   e.Subject,
			Action:    e.Action,
			Detail:    e.DetailJSON,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"decisions": out})
}

// #endregion handlers
