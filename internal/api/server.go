package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/qkern/internal/backend"
	"github.com/samcharles93/qkern/internal/backend/simd"
	"github.com/samcharles93/qkern/internal/backend/tile"
	"github.com/samcharles93/qkern/internal/logger"
)

// Config configures a Server. Zero values select defaults.
type Config struct {
	Backend string
	Options backend.Options
	Logger  logger.Logger
}

// Server exposes the quantizer, the matmul dispatch and the cast kernel over
// HTTP.
type Server struct {
	store   *TensorStore
	opts    backend.Options
	defName string
	log     logger.Logger
	clock   func() time.Time

	mu       sync.Mutex
	backends map[string]backend.Backend
	engine   *tile.Engine
}

func NewServer(store *TensorStore, cfg Config) (*Server, error) {
	if store == nil {
		store = NewTensorStore()
	}
	name, err := backend.Normalize(cfg.Backend)
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		store:    store,
		opts:     cfg.Options,
		defName:  name,
		log:      log.With("component", "api"),
		clock:    time.Now,
		backends: make(map[string]backend.Backend),
	}, nil
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/tensors", s.handleCreateTensor)
	e.GET("/v1/tensors/:id", s.handleGetTensor)
	e.DELETE("/v1/tensors/:id", s.handleDeleteTensor)
	e.GET("/v1/tensors/:id/dequantize", s.handleDequantize)
	e.POST("/v1/matmul", s.handleMatMul)
	e.POST("/v1/cast", s.handleCast)
	e.GET("/v1/backends", s.handleListBackends)
}

// Close releases every backend the server created.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for name, b := range s.backends {
		if err := backend.Close(b); err != nil && first == nil {
			first = err
		}
		delete(s.backends, name)
	}
	return first
}

// backendFor returns the named backend, building it on first use.
func (s *Server) backendFor(name string) (backend.Backend, error) {
	if name == "" {
		name = s.defName
	}
	n, err := backend.Normalize(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.backends[n]; ok {
		return b, nil
	}
	b, err := backend.New(n, s.opts)
	if err != nil {
		return nil, err
	}
	s.backends[n] = b
	return b, nil
}

// tileEngine is the engine the cast endpoint launches on.
func (s *Server) tileEngine() *tile.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		s.engine = tile.NewEngine(s.opts.Tile)
	}
	return s.engine
}

func (s *Server) handleListBackends(c *echo.Context) error {
	names := []string{backend.CPU, backend.Tile, backend.CUDA, backend.WebGPU}
	def := s.defName
	if def == backend.Auto {
		def = backend.CPU
		if backend.Has(backend.CUDA) {
			def = backend.CUDA
		}
	}
	resp := BackendsResponse{
		Object:   "list",
		Data:     make([]BackendInfo, 0, len(names)),
		SIMDPath: simd.Features().Path(),
		Features: simd.Features().Map(),
	}
	for _, name := range names {
		resp.Data = append(resp.Data, BackendInfo{
			Name:      name,
			Available: backend.Has(name),
			Default:   name == def,
		})
	}
	return writeJSON(c, http.StatusOK, resp)
}
