package main

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	genform "github.com/Paranoid-AF/genform"
	defaults "github.com/Paranoid-AF/genform/default"
	"github.com/Paranoid-AF/genform/generate"
	"github.com/Paranoid-AF/genform/inference"
	"github.com/Paranoid-AF/genform/metrics"
	"github.com/Paranoid-AF/genform/notify"
)

const requestIDKey = "request_id"

// ModelCache hands out the process-wide model handle.
type ModelCache interface {
	Get(ctx context.Context, n notify.Notifier) *generate.Loaded
	Peek() (*generate.Loaded, bool)
	Invalidate()
	Close()
}

// Responder turns a prompt into a response using a handle.
type Responder interface {
	Respond(ctx context.Context, h inference.Handle, prompt string, n notify.Notifier) generate.Outcome
}

// Server serves the prompt form, the JSON API and metrics over HTTP.
type Server struct {
	modelID   string
	cache     ModelCache
	responder Responder
	metrics   metrics.HTTPMetrics
	router    *gin.Engine
	http      *http.Server
}

// NewServer creates a server listening on addr.
func NewServer(addr, modelID string, cache ModelCache, responder Responder, m metrics.HTTPMetrics) *Server {
	if m == nil {
		m = metrics.Noop{}
	}
	s := &Server{
		modelID:   modelID,
		cache:     cache,
		responder: responder,
		metrics:   m,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(s.requestID(), s.accessLog(), gin.Recovery())
	router.SetHTMLTemplate(template.Must(template.New("index").Parse(defaults.IndexTemplate)))

	router.GET("/", s.handleIndex)
	router.POST("/", s.handleSubmit)
	router.POST("/api/generate", s.handleGenerate)
	router.POST("/api/cache/clear", s.handleCacheClear)
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	s.router = router
	s.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Serve listens and serves until Shutdown is called.
func (s *Server) Serve() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones, and releases the cache.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.cache.Close()
	return err
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.metrics.ObserveRequest(c.Request.Method, route, strconv.Itoa(status), elapsed.Seconds())
		slog.Debug("request",
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
		)
	}
}

// notifier collects notices for the response and mirrors them to the log.
func (s *Server) notifier(c *gin.Context) (*notify.Recorder, notify.Notifier) {
	rec := &notify.Recorder{}
	logger := slog.Default().With("request_id", c.GetString(requestIDKey))
	return rec, notify.Multi{rec, notify.Log{Logger: logger}}
}

type pageData struct {
	ModelID        string
	Prompt         string
	Notices        []genform.Notice
	Answered       bool
	Response       string
	ElapsedSeconds float64
}

func (s *Server) handleIndex(c *gin.Context) {
	rec, n := s.notifier(c)
	s.cache.Get(c.Request.Context(), n)
	c.HTML(http.StatusOK, "index", pageData{
		ModelID: s.modelID,
		Notices: rec.Notices(),
	})
}

func (s *Server) handleSubmit(c *gin.Context) {
	prompt := c.PostForm("prompt")
	rec, n := s.notifier(c)

	h := handleOf(s.cache.Get(c.Request.Context(), n))
	out := s.responder.Respond(c.Request.Context(), h, prompt, n)
	text, secs := out.Pair()

	c.HTML(http.StatusOK, "index", pageData{
		ModelID:        s.modelID,
		Prompt:         prompt,
		Notices:        rec.Notices(),
		Answered:       true,
		Response:       text,
		ElapsedSeconds: secs,
	})
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req genform.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, genform.GenerateResponse{
			RequestID: c.GetString(requestIDKey),
			Notices:   []genform.Notice{},
			Error:     &genform.Error{Code: "invalid_request", Message: err.Error()},
		})
		return
	}

	rec, n := s.notifier(c)
	h := handleOf(s.cache.Get(c.Request.Context(), n))
	out := s.responder.Respond(c.Request.Context(), h, req.Prompt, n)
	text, secs := out.Pair()

	resp := genform.GenerateResponse{
		RequestID:      c.GetString(requestIDKey),
		Response:       text,
		ElapsedSeconds: secs,
		Notices:        rec.Notices(),
	}
	if out.Failure != nil {
		resp.Error = &genform.Error{Code: string(out.Failure.Kind), Message: out.Failure.Detail}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCacheClear(c *gin.Context) {
	s.cache.Invalidate()
	slog.Info("model cache cleared", "request_id", c.GetString(requestIDKey))
	c.JSON(http.StatusOK, genform.CacheResponse{OK: true})
}

func (s *Server) handleHealth(c *gin.Context) {
	loaded, ok := s.cache.Peek()
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"model":        s.modelID,
		"model_loaded": ok && handleOf(loaded) != nil,
	})
}

func handleOf(l *generate.Loaded) inference.Handle {
	if l == nil {
		return nil
	}
	return l.Handle
}
