package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/viktsys/bolsaingest/ingest"
	"github.com/viktsys/bolsaingest/logging"
	"github.com/viktsys/bolsaingest/models"
	"github.com/viktsys/bolsaingest/query"
)

func init() {
	// prices go out as JSON numbers, as the dashboard charts expect
	decimal.MarshalJSONWithoutQuotes = true
}

// Querier is the read side used by the handlers.
type Querier interface {
	Latest(ctx context.Context) ([]models.PriceSnapshot, error)
	History(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, error)
	Ranking(ctx context.Context, limit int) ([]models.RankEntry, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	query  Querier
	runner ingest.Runner
	db     Pinger
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewServer(q Querier, runner ingest.Runner, db Pinger, hub *Hub, log *zap.SugaredLogger) *Server {
	return &Server{query: q, runner: runner, db: db, hub: hub, log: log}
}

// GetLatest returns the latest snapshot of every symbol.
func (s *Server) GetLatest(c *gin.Context) {
	latest, err := s.query.Latest(c.Request.Context())
	if err != nil {
		s.log.Errorw("Failed to load latest snapshot", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, latest)
}

// GetHistory returns the price series of one symbol.
func (s *Server) GetHistory(c *gin.Context) {
	symbol := c.Param("symbol")
	days, err := strconv.Atoi(c.Param("days"))
	if err != nil || days < 1 {
		days = query.DefaultDays
	}

	points, err := s.query.History(c.Request.Context(), symbol, days)
	if err != nil {
		s.log.Errorw("Failed to load history", "symbol", symbol, "days", days, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, points)
}

// GetRanking returns the leaderboard by relative change.
func (s *Server) GetRanking(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(query.DefaultRankingLimit)))
	if err != nil || limit < 1 {
		limit = query.DefaultRankingLimit
	}

	entries, err := s.query.Ranking(c.Request.Context(), limit)
	if err != nil {
		s.log.Errorw("Failed to build ranking", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// ForceCycle runs an ingestion cycle immediately, ignoring market hours.
func (s *Server) ForceCycle(c *gin.Context) {
	res := s.runner.RunCycle(c.Request.Context(), true)

	status := http.StatusAccepted
	switch res.Status {
	case ingest.StatusBusy:
		status = http.StatusConflict
	case ingest.StatusFetchFailed:
		status = http.StatusBadGateway
	case ingest.StatusWriteFailed:
		status = http.StatusInternalServerError
	case ingest.StatusOK:
		s.NotifyCycle(c.Request.Context(), res)
	}
	c.JSON(status, res)
}

// NotifyCycle pushes the new board to websocket clients after a stored cycle.
func (s *Server) NotifyCycle(ctx context.Context, res ingest.CycleResult) {
	latest, err := s.query.Latest(ctx)
	if err != nil {
		s.log.Warnw("Could not load latest snapshot for broadcast", "error", err)
		return
	}
	if !s.hub.Broadcast(WSMessage{Type: "snapshot", Data: latest}) {
		s.log.Warnw("Broadcast queue full, update dropped", "inserted", res.Inserted)
	}
}

func (s *Server) health(c *gin.Context) {
	if err := s.db.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "ws_clients": s.hub.ClientCount()})
}

func (s *Server) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	// params come back percent-decoded, including encoded slashes
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(logging.RequestLogger(s.log), gin.Recovery())

	// Health check endpoint
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", s.handleWebSocket)

	bolsa := r.Group("/api/bolsa")
	{
		bolsa.GET("/actual", s.GetLatest)
		bolsa.GET("/historial/:symbol/:days", s.GetHistory)
		bolsa.GET("/ranking", s.GetRanking)
		bolsa.POST("/actualizar", s.ForceCycle)
	}

	return r
}
