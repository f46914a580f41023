package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"IPHForecast/pkg/http/middleware"
	"IPHForecast/pkg/logger"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerOption configures Server.
type ServerOption func(*ServerConfig)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	SlowRequest     time.Duration
	BodyLimit       string
	CORS            bool
	Logger          *logger.Logger
}

// Server is the Echo instance plus its listener lifecycle.
type Server struct {
	echo *echo.Echo
	cfg  ServerConfig
	l    *logger.Logger
	errs chan error
}

// NewServer builds the Echo instance with the standard middleware chain, the handler's routes and /metrics.
func NewServer(handler Handler, opts ...ServerOption) *Server {
	cfg := ServerConfig{
		Host:            "0.0.0.0",
		Port:            5001,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		SlowRequest:     2 * time.Second,
		BodyLimit:       "1M",
		CORS:            true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	e.HTTPErrorHandler = errorHandler(l)

	e.Use(emw.RequestID())
	e.Use(middleware.Metrics(l, cfg.SlowRequest))
	e.Use(middleware.RequestLogging(l))
	e.Use(middleware.Recover(l))
	e.Use(emw.BodyLimit(cfg.BodyLimit))
	if cfg.CORS {
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins:  []string{"*"},
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			ExposeHeaders: []string{echo.HeaderContentDisposition, echo.HeaderXRequestID},
			MaxAge:        10 * time.Minute,
		}))
	}

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{echo: e, cfg: cfg, l: l, errs: make(chan error, 1)}
}

// errorHandler renders router and middleware errors in the API envelope.
func errorHandler(l *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg := http.StatusText(he.Code)
			if s, ok := he.Message.(string); ok {
				msg = s
			}
			err = NewAppError("ERR_HTTP_"+fmt.Sprint(he.Code), msg, he.Code)
		}
		if werr := AppErrorResponse(c, err); werr != nil {
			l.Warn("write error response", logger.Error(werr))
		}
	}
}

// Start binds the listener synchronously so address errors surface here, then serves in the background.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.echo.Listener = ln

	go func() {
		s.l.Info("http server listening", logger.String("addr", ln.Addr().String()))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("http server error", logger.Error(err))
			s.errs <- err
		}
		close(s.errs)
	}()
	return nil
}

// Errors yields a fatal serve error, if any, and closes when the server stops.
func (s *Server) Errors() <-chan error { return s.errs }

// Stop drains in-flight requests within the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.l.Info("http server stopped")
	return nil
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func WithHost(host string) ServerOption {
	return func(c *ServerConfig) { c.Host = host }
}

func WithPort(port int) ServerOption {
	return func(c *ServerConfig) { c.Port = port }
}

// WithTimeouts sets read, write and shutdown timeouts; zero keeps the default.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		if read > 0 {
			c.ReadTimeout = read
		}
		if write > 0 {
			c.WriteTimeout = write
		}
		if shutdown > 0 {
			c.ShutdownTimeout = shutdown
		}
	}
}

func WithCORS(enabled bool) ServerOption {
	return func(c *ServerConfig) { c.CORS = enabled }
}

// WithSlowRequest sets the latency above which requests are logged as slow.
func WithSlowRequest(d time.Duration) ServerOption {
	return func(c *ServerConfig) { c.SlowRequest = d }
}

// WithBodyLimit caps request bodies, e.g. "512K".
func WithBodyLimit(limit string) ServerOption {
	return func(c *ServerConfig) {
		if limit != "" {
			c.BodyLimit = limit
		}
	}
}

func WithLogger(l *logger.Logger) ServerOption {
	return func(c *ServerConfig) { c.Logger = l }
}

// ClientKey identifies the caller for per-client limits.
func ClientKey(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return c.Request().RemoteAddr
}
