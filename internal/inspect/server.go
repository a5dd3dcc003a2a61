package inspect

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/napmirror/internal/auth"
	"github.com/danmuck/napmirror/internal/catalog"
	"github.com/danmuck/napmirror/internal/core"
	"github.com/danmuck/napmirror/internal/export"
	"github.com/danmuck/napmirror/internal/mirror"
	"github.com/danmuck/napmirror/internal/observability"
	"github.com/danmuck/napmirror/internal/protocol"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoTree         = errors.New("inspect: no object tree loaded")
	ErrObjectNotFound = errors.New("inspect: object not found")
	ErrTypeNotFound   = errors.New("inspect: type not found")
	ErrUnknownKind    = errors.New("inspect: unknown kind")
)

const (
	DefaultAddr   = "127.0.0.1:8899"
	shutdownGrace = 5 * time.Second
)

type Config struct {
	Addr        string
	CorsOrigins []string
	// Token guards the mutating routes when non-empty.
	Token string
}

type Server struct {
	core    *core.Core
	addr    string
	router  *gin.Engine
	started time.Time
}

func New(c *core.Core, cfg Config) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{core: c, addr: addr, router: r, started: time.Now()}
	s.registerRoutes(cfg.Token)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	return s.addr
}

// Serve listens until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() { errs <- srv.ListenAndServe() }()
	log.Info().Str("addr", s.addr).Msg("inspect: listening")

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes(token string) {
	r := s.router
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/tree", s.tree)
	r.GET("/objects/:ptr", s.object)
	r.GET("/types", s.types)
	r.GET("/types/:name/subtypes", s.subTypes)
	r.GET("/types/:name/bases", s.baseTypes)

	mutating := r.Group("/")
	if token != "" {
		mutating.Use(auth.Middleware(auth.StaticToken{Token: token}))
	}
	mutating.POST("/objects/:ptr/name", s.setName)
	mutating.POST("/objects/:ptr/value", s.setValue)
	mutating.DELETE("/objects/:ptr", s.removeObject)
	mutating.POST("/reload", s.reload)
}

func (s *Server) health(c *gin.Context) {
	var objects int
	var rooted bool
	if err := s.core.Do(c.Request.Context(), func(m *core.Core) {
		objects = m.Objects()
		rooted = m.Root() != nil
	}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"uptime":   time.Since(s.started).String(),
		"identity": s.core.Identity(),
		"messages": s.core.Messages(),
		"objects":  objects,
		"tree":     rooted,
	})
}

func (s *Server) tree(c *gin.Context) {
	var snap mirror.Snapshot
	var err error
	if doErr := s.core.Do(c.Request.Context(), func(m *core.Core) {
		root := m.Root()
		if root == nil {
			err = ErrNoTree
			return
		}
		snap = root.Snapshot()
	}); doErr != nil {
		err = doErr
	}
	if err != nil {
		fail(c, err)
		return
	}
	render(c, snap)
}

func (s *Server) object(c *gin.Context) {
	h, err := protocol.ParseHandle(c.Param("ptr"))
	if err != nil {
		fail(c, err)
		return
	}
	var view objectView
	found := false
	if err := s.core.Do(c.Request.Context(), func(m *core.Core) {
		if obj, ok := m.FindObject(h); ok {
			view, found = newObjectView(obj), true
		}
	}); err != nil {
		fail(c, err)
		return
	}
	if !found {
		fail(c, ErrObjectNotFound)
		return
	}
	render(c, view)
}

type objectView struct {
	Parent protocol.Handle `json:"parent" yaml:"parent"`
	Object mirror.Snapshot `json:"object" yaml:"object"`
}

func newObjectView(obj *mirror.Object) objectView {
	return objectView{Parent: obj.ParentHandle(), Object: obj.Snapshot()}
}

// types lists the catalog, or with ?kind= the instantiable type names of
// one built-in kind.
func (s *Server) types(c *gin.Context) {
	kind := c.Query("kind")
	var descs []catalog.Descriptor
	var names []string
	var err error
	doErr := s.core.Do(c.Request.Context(), func(m *core.Core) {
		switch kind {
		case "":
			descs = m.Types()
		case "components":
			names = slices.Collect(m.ComponentTypes())
		case "operators":
			names = slices.Collect(m.OperatorTypes())
		case "data":
			names = slices.Collect(m.DataTypes())
		default:
			err = ErrUnknownKind
		}
	})
	if doErr != nil {
		err = doErr
	}
	if err != nil {
		fail(c, err)
		return
	}
	if kind != "" {
		render(c, gin.H{"kind": kind, "types": nonNil(names)})
		return
	}
	if descs == nil {
		descs = []catalog.Descriptor{}
	}
	render(c, gin.H{"types": descs})
}

func (s *Server) subTypes(c *gin.Context) {
	name := c.Param("name")
	instantiable, _ := strconv.ParseBool(c.DefaultQuery("instantiable", "false"))
	var names []string
	err := s.withType(c, name, func(m *core.Core) {
		names = slices.Collect(m.SubTypes(name, instantiable))
	})
	if err != nil {
		fail(c, err)
		return
	}
	render(c, gin.H{"type": name, "subTypes": nonNil(names)})
}

func (s *Server) baseTypes(c *gin.Context) {
	name := c.Param("name")
	var names []string
	err := s.withType(c, name, func(m *core.Core) {
		names = m.BaseTypes(name)
	})
	if err != nil {
		fail(c, err)
		return
	}
	render(c, gin.H{"type": name, "baseTypes": nonNil(names)})
}

func (s *Server) withType(c *gin.Context, name string, fn func(*core.Core)) error {
	var err error
	doErr := s.core.Do(c.Request.Context(), func(m *core.Core) {
		if _, ok := m.TypeIndex(name); !ok {
			err = ErrTypeNotFound
			return
		}
		fn(m)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

type valueRequest struct {
	Value any `json:"value"`
}

func (s *Server) setName(c *gin.Context) {
	var body nameRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mutate(c, func(ctx context.Context, obj *mirror.Object) error {
		return s.core.SetName(ctx, obj, body.Name)
	})
}

func (s *Server) setValue(c *gin.Context) {
	var body valueRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
		return
	}
	s.mutate(c, func(ctx context.Context, obj *mirror.Object) error {
		return s.core.SetAttributeValue(ctx, obj, body.Value)
	})
}

func (s *Server) removeObject(c *gin.Context) {
	ctx := c.Request.Context()
	obj, err := s.lookup(ctx, c.Param("ptr"))
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.core.RemoveObjects(ctx, obj); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "removed": obj.Handle})
}

func (s *Server) reload(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.core.LoadModuleInfo(ctx); err != nil {
		fail(c, err)
		return
	}
	var objects, types int
	_ = s.core.Do(ctx, func(m *core.Core) {
		objects = m.Objects()
		types = len(m.Types())
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok", "objects": objects, "types": types})
}

// mutate resolves :ptr, runs call, and replies with the object as the echo
// left it.
func (s *Server) mutate(c *gin.Context, call func(context.Context, *mirror.Object) error) {
	ctx := c.Request.Context()
	obj, err := s.lookup(ctx, c.Param("ptr"))
	if err != nil {
		fail(c, err)
		return
	}
	if err := call(ctx, obj); err != nil {
		fail(c, err)
		return
	}
	var view objectView
	found := false
	if err := s.core.Do(ctx, func(m *core.Core) {
		if _, ok := m.FindObject(obj.Handle); ok {
			view, found = newObjectView(obj), true
		}
	}); err != nil {
		fail(c, err)
		return
	}
	if !found {
		fail(c, ErrObjectNotFound)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) lookup(ctx context.Context, raw string) (*mirror.Object, error) {
	h, err := protocol.ParseHandle(raw)
	if err != nil {
		return nil, err
	}
	var obj *mirror.Object
	if err := s.core.Do(ctx, func(m *core.Core) {
		obj, _ = m.FindObject(h)
	}); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, ErrObjectNotFound
	}
	return obj, nil
}

func render(c *gin.Context, v any) {
	format := c.DefaultQuery("format", export.FormatJSON)
	if strings.EqualFold(format, export.FormatJSON) {
		c.JSON(http.StatusOK, v)
		return
	}
	var buf bytes.Buffer
	if err := export.Encode(&buf, v, format); err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/yaml; charset=utf-8", buf.Bytes())
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Str("path", c.Request.URL.Path).Err(err).Msg("inspect: request failed")
	}
	c.JSON(status, gin.H{"error": err.Error(), "class": protocol.Classify(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoTree), errors.Is(err, ErrObjectNotFound), errors.Is(err, ErrTypeNotFound):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrInvalidHandle), errors.Is(err, ErrUnknownKind), errors.Is(err, export.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrCapabilityMismatch), errors.Is(err, core.ErrNoObject):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, protocol.ErrProtocol), errors.Is(err, core.ErrSend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
