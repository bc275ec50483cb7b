// Package bridge is the HTTP and websocket surface the browser shell talks to.
package bridge

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/park285/cubetimer/internal/adapter/solvepresenter"
	"github.com/park285/cubetimer/internal/auth"
	"github.com/park285/cubetimer/internal/msgcat"
	"github.com/park285/cubetimer/internal/scramble"
	"github.com/park285/cubetimer/internal/session"
	"github.com/park285/cubetimer/internal/store"
	"github.com/park285/cubetimer/pkg/solvedto"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
	renderTimeout    = 5 * time.Second
)

// ControllerFactory builds the session for a verified identity. The
// identity carries the raw token for backends that enforce row-level
// security per user.
type ControllerFactory func(id *auth.Identity) *session.Controller

type Deps struct {
	Verifier      *auth.Verifier
	NewController ControllerFactory
	Presenter     *solvepresenter.Presenter
	Scrambles     *scramble.Generator
	Messages      *msgcat.Catalog
	Logger        *zap.Logger
	// Health reports backend readiness for /healthz; nil means always healthy.
	Health func(ctx context.Context) error
	// OriginPatterns are extra hosts allowed to open the websocket.
	OriginPatterns []string
	// WriteLimit caps deletes and renders per owner per minute; 0 means 60.
	WriteLimit uint
}

type Server struct {
	deps   Deps
	logger *zap.Logger
	engine *gin.Engine
	ws     wsOptions
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Presenter == nil {
		deps.Presenter = solvepresenter.NewPresenter(nil)
	}
	if deps.Scrambles == nil {
		deps.Scrambles = scramble.NewGenerator(scramble.DefaultLength, nil)
	}
	if deps.WriteLimit == 0 {
		deps.WriteLimit = 60
	}
	s := &Server{
		deps:   deps,
		logger: logger,
		ws:     defaultWSOptions(),
	}
	s.ws.originPatterns = deps.OriginPatterns
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(s.logger), SecureHeaders())

	r.GET("/healthz", s.handleHealth)

	limited := RateLimit(time.Minute, s.deps.WriteLimit)
	api := r.Group("/api", AuthRequired(s.deps.Verifier))
	api.GET("/solves", s.handleHistory)
	api.DELETE("/solves/:id", limited, s.handleDelete)
	api.GET("/stats", s.handleStats)
	api.GET("/scramble.png", limited, s.handleScramble)

	r.GET("/ws", AuthRequired(s.deps.Verifier), s.handleWS)
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) controller(c *gin.Context) *session.Controller {
	return s.deps.NewController(identityFrom(c))
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := queryInt(c, "limit", defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	offset := queryInt(c, "offset", 0)

	ctl := s.controller(c)
	defer ctl.Close()
	ctx := c.Request.Context()

	solves, err := ctl.History(ctx, limit, offset)
	if err != nil {
		s.fail(c, err)
		return
	}
	total, err := ctl.Count(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, solvepresenter.ToDTOHistory(solves, total, limit, offset))
}

func (s *Server) handleDelete(c *gin.Context) {
	ctl := s.controller(c)
	defer ctl.Close()
	if err := ctl.DeleteSolve(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStats(c *gin.Context) {
	ctl := s.controller(c)
	defer ctl.Close()
	st, err := ctl.CurrentStats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, solvepresenter.ToDTOStats(st, s.deps.Messages))
}

// handleScramble renders ?scramble=... or a fresh scramble. ?format=base64
// returns the JSON preview instead of raw PNG bytes.
func (s *Server) handleScramble(c *gin.Context) {
	text := strings.TrimSpace(c.Query("scramble"))
	if text == "" {
		text = s.deps.Scrambles.Next().String()
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), renderTimeout)
	defer cancel()

	if strings.EqualFold(c.Query("format"), "base64") {
		prev, err := s.deps.Presenter.ScramblePreview(ctx, text)
		if err != nil {
			c.JSON(http.StatusBadRequest, solvedto.ErrorBody{Code: "bad_scramble", Message: err.Error()})
			return
		}
		c.JSON(http.StatusOK, prev)
		return
	}
	png, err := s.deps.Presenter.ScramblePNG(ctx, text)
	if err != nil {
		c.JSON(http.StatusBadRequest, solvedto.ErrorBody{Code: "bad_scramble", Message: err.Error()})
		return
	}
	c.Header("X-Scramble", text)
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, solvedto.ErrorBody{Code: "not_found", Message: err.Error()})
	case errors.Is(err, session.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, solvedto.ErrorBody{Code: "unauthenticated", Message: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, solvedto.ErrorBody{Code: "timeout", Message: err.Error(), Retryable: true})
	default:
		s.logger.Error("api_request_failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadGateway, solvedto.ErrorBody{Code: "store_unavailable", Message: "storage request failed", Retryable: true})
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
