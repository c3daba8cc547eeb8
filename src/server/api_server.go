package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"credit-observer/src/helpers"
	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/models"
	"credit-observer/src/query"
	"credit-observer/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ interfaces.IDataExchanger = (*APIServer)(nil)

// alerts replayed to a client when it connects
const replaySize = 50

// -----------------------------------------------------------------------------
// APIServer
// -----------------------------------------------------------------------------

// APIServer is the read-only HTTP adapter over the query service plus the
// websocket alert push.
type APIServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	Query  *query.Service
	engine *gin.Engine
	http   *http.Server

	// WebSocket clients
	clients    map[*Client]struct{}
	broadcast  chan interface{}
	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	done       chan struct{}
	hubOnce    sync.Once
	stopOnce   sync.Once

	recent *utils.RingBuffer[interface{}]

	stateMutex  sync.RWMutex
	connections int
	lastPush    int64
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *models.MConfig, q *query.Service, log *logger.Logger) *APIServer {
	if log == nil {
		log = logger.NewLogger(cfg, "APIServer")
	}
	if !strings.EqualFold(cfg.LogLevel, "DEBUG") {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:  cfg,
		Logger:  log,
		Query:   q,
		engine:  gin.New(),
		clients: make(map[*Client]struct{}),
		// Buffered so that publishers never wait on the hub
		broadcast:  make(chan interface{}, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		done:       make(chan struct{}),
		recent:     utils.NewRingBuffer[interface{}](replaySize),
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())

	// CORS for local dashboards
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	s.setupRoutes()
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *APIServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debug("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/issuers", s.listIssuers)
	api.GET("/issuers/:symbol/score", s.getLatestScore)
	api.GET("/issuers/:symbol/scores", s.getScoreHistory)
	api.GET("/issuers/:symbol/explanation", s.getExplanation)
	api.GET("/alerts", s.getAlerts)
	api.GET("/sources", s.getSources)
	api.GET("/models", s.getModels)
	api.GET("/health", s.getHealth)

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the routes for embedding and tests.
func (s *APIServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// StartHub runs the websocket hub loop. Start calls it; calling it again is a
// no-op.
func (s *APIServer) StartHub() {
	s.hubOnce.Do(func() { go s.handleWebsockets() })
}

// Start serves until Stop is called.
func (s *APIServer) Start() error {
	s.Logger.Info("Starting server on %s", s.http.Addr)

	s.StartHub()
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *APIServer) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.http.Shutdown(ctx)
	})
	return err
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

type historyQuery struct {
	Days int `form:"days" binding:"gte=0,lte=3650"`
}

type explanationQuery struct {
	Timestamp *int64 `form:"ts" binding:"omitempty,gt=0"`
}

type alertsQuery struct {
	Since int64 `form:"since" binding:"gte=0"`
}

type modelsQuery struct {
	Limit int `form:"limit" binding:"gte=0,lte=500"`
}

func symbolParam(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
}

// writeError maps read-surface errors onto status codes.
func (s *APIServer) writeError(c *gin.Context, err error) {
	var ve *helpers.ValidationError
	switch {
	case query.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.Logger.Error("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// -----------------------------------------------------------------------------

func (s *APIServer) listIssuers(c *gin.Context) {
	issuers, err := s.Query.ListIssuers(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, issuers)
}

func (s *APIServer) getLatestScore(c *gin.Context) {
	sc, err := s.Query.GetLatestScore(c.Request.Context(), symbolParam(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (s *APIServer) getScoreHistory(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	window := time.Duration(q.Days) * 24 * time.Hour
	history, err := s.Query.GetScoreHistory(c.Request.Context(), symbolParam(c), window)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (s *APIServer) getExplanation(c *gin.Context) {
	var q explanationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	ex, err := s.Query.GetExplanation(c.Request.Context(), symbolParam(c), q.Timestamp)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ex)
}

func (s *APIServer) getAlerts(c *gin.Context) {
	var q alertsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	alerts, err := s.Query.GetAlerts(c.Request.Context(), q.Since)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *APIServer) getSources(c *gin.Context) {
	st, err := s.Query.GetSourceStatus(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *APIServer) getModels(c *gin.Context) {
	var q modelsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	perf, err := s.Query.GetModelPerformance(c.Request.Context(), q.Limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, perf)
}

func (s *APIServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	connections := s.connections
	lastPush := s.lastPush
	s.stateMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": connections,
		"last_push":   lastPush,
	})
}
