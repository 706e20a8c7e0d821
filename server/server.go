// Package server exposes the wallet flows as a JSON HTTP API. Callers log in
// once and address their session with the X-Session-ID header afterwards.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blndgs/okto"
	"github.com/blndgs/okto/client"
	"github.com/blndgs/okto/store"
)

const (
	SessionHeader = "X-Session-ID"
	sessionKey    = "okto.session"
)

type Server struct {
	cfg          *okto.Config
	client       *client.Client
	auth         *client.Authenticator
	orchestrator *client.Orchestrator
	sessions     store.SessionStore
	jobs         store.JobStore
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
}

// New wires the flows over c. Submitted jobs are recorded in jobs.
func New(cfg *okto.Config, c *client.Client, sessions store.SessionStore, jobs store.JobStore, logger *zap.Logger) (*Server, error) {
	if err := okto.NewValidator(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:          cfg,
		client:       c,
		auth:         client.NewAuthenticator(c, cfg, client.WithAuthLogger(logger)),
		orchestrator: client.NewOrchestrator(c, cfg, client.WithJobRecorder(jobs), client.WithOrchestratorLogger(logger)),
		sessions:     sessions,
		jobs:         jobs,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}, nil
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	v1.POST("/login/google", s.loginGoogle)
	v1.POST("/login/email", s.sendEmailOTP)
	v1.POST("/login/email/verify", s.verifyEmailOTP)

	authed := v1.Group("", s.requireSession())
	authed.POST("/logout", s.logout)
	authed.GET("/session", s.session)
	authed.GET("/dashboard", s.dashboard)
	authed.GET("/wallets", s.wallets)
	authed.GET("/networks", s.networks)
	authed.GET("/tokens", s.tokens)
	authed.GET("/portfolio", s.portfolio)
	authed.GET("/activity", s.activity)
	authed.GET("/nfts", s.nfts)
	authed.GET("/orders", s.orders)
	authed.GET("/transferable-tokens", s.transferableTokens)
	authed.POST("/transfer", s.transferToken)
	authed.POST("/transfer/raw", s.transferRaw)
	authed.GET("/jobs", s.listJobs)
	authed.GET("/jobs/:jobId", s.jobStatus)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// requireSession loads the session named by X-Session-ID and rejects the
// request when it is missing or expired.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(SessionHeader)
		if id == "" {
			abortWithError(c, &okto.Error{Kind: okto.KindAuthentication, Message: "missing " + SessionHeader + " header"})
			return
		}
		rec, err := s.sessions.Get(c.Request.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			abortWithError(c, &okto.Error{Kind: okto.KindAuthentication, Message: "session not found"})
			return
		}
		if err != nil {
			s.logger.Error("failed to load session", zap.Error(err))
			abortWithError(c, &okto.Error{Kind: okto.KindConfiguration, Message: "session store unavailable", Err: err})
			return
		}
		cred, err := okto.RestoreSession(rec.AuthToken, rec.SessionPrivKey)
		if err != nil {
			abortWithError(c, okto.AsError(err, okto.KindKey))
			return
		}
		if cred.Expired(s.now()) {
			_ = s.sessions.Delete(c.Request.Context(), id)
			abortWithError(c, &okto.Error{Kind: okto.KindAuthentication, Message: "session expired"})
			return
		}
		cred.UserSWA = rec.UserSWA
		c.Set(sessionKey, &authedSession{id: id, cred: cred})
		c.Next()
	}
}

type authedSession struct {
	id   string
	cred *okto.SessionCredential
}

func currentSession(c *gin.Context) *authedSession {
	return c.MustGet(sessionKey).(*authedSession)
}

// statusFor maps an error kind to the HTTP status returned to callers.
func statusFor(kind okto.ErrorKind) int {
	switch kind {
	case okto.KindEncoding:
		return http.StatusBadRequest
	case okto.KindKey, okto.KindAuthentication:
		return http.StatusUnauthorized
	case okto.KindEstimation:
		return http.StatusUnprocessableEntity
	case okto.KindNetwork, okto.KindExecution:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	e := okto.AsError(err, okto.KindConfiguration)
	if e.Message == "" {
		e = &okto.Error{Kind: e.Kind, Message: e.Error(), Code: e.Code, Details: e.Details, Err: e.Err}
	}
	c.AbortWithStatusJSON(statusFor(e.Kind), gin.H{"error": e})
}

func bindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": &okto.Error{Kind: okto.KindEncoding, Message: err.Error()}})
}
