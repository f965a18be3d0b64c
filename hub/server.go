package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NodeClient is the subset of the node client used by the API.
type NodeClient interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	GetNextNonce(ctx context.Context, address string) uint64
	Connected() bool
}

// Server is the hub's HTTP API. It serves GraphQL operations backed by a Clutch node.
type Server struct {
	logger *zap.SugaredLogger
	node   NodeClient

	jwtSecret string
	tokenTTL  time.Duration
	now       func() time.Time

	listenAddr  string
	metricsAddr string
	gatherer    prometheus.Gatherer

	schema *graphql.Schema
}

type Option func(s *Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l.Named("hub").Sugar()
	}
}

func WithListenAddr(addr string) Option {
	return func(s *Server) {
		s.listenAddr = addr
	}
}

// WithMetricsAddr sets the address metrics are served on. An empty address disables the metrics listener.
func WithMetricsAddr(addr string) Option {
	return func(s *Server) {
		s.metricsAddr = addr
	}
}

func WithMetricsGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithTokenTTL sets how long issued tokens are valid for.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		s.tokenTTL = d
	}
}

func withNow(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer constructs the API server.
func NewServer(node NodeClient, jwtSecret string, opts ...Option) (*Server, error) {
	if jwtSecret == "" {
		return nil, errors.New("JWT secret is required")
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	s := &Server{
		logger:      logger.Named("hub").Sugar(),
		node:        node,
		jwtSecret:   jwtSecret,
		tokenTTL:    24 * time.Hour,
		now:         time.Now,
		listenAddr:  "127.0.0.1:8080",
		metricsAddr: "127.0.0.1:9090",
		gatherer:    prometheus.DefaultGatherer,
	}
	for _, o := range opts {
		o(s)
	}

	schema, err := graphql.ParseSchema(schemaSDL, &resolver{s: s})
	if err != nil {
		return nil, fmt.Errorf("parsing GraphQL schema: %w", err)
	}
	s.schema = schema
	return s, nil
}

// Handler returns the API's HTTP handler.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/health", s.health)
	router.Handler(http.MethodPost, "/graphql", s.authenticate(&relay.Handler{Schema: s.schema}))
	return router
}

// Run serves the API, and metrics if enabled, until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	apiListener, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listening TCP: %w", err)
	}
	servers := []*http.Server{{Handler: s.Handler()}}
	listeners := []net.Listener{apiListener}
	s.logger.Infow("serving API", "Addr", apiListener.Addr().String())

	if s.metricsAddr != "" {
		metricsListener, err := net.Listen("tcp", s.metricsAddr)
		if err != nil {
			apiListener.Close()
			return fmt.Errorf("listening TCP for metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		servers = append(servers, &http.Server{Handler: mux})
		listeners = append(listeners, metricsListener)
		s.logger.Infow("serving metrics", "Addr", metricsListener.Addr().String())
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := range servers {
		server, listener := servers[i], listeners[i]
		g.Go(func() error {
			err := server.Serve(listener)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, server := range servers {
			if err := server.Shutdown(shutdownCtx); err != nil {
				s.logger.Debugw("error shutting down HTTP server", "Error", err)
			}
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) health(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	response := struct {
		NodeConnected bool
	}{
		NodeConnected: s.node.Connected(),
	}
	b, err := json.Marshal(response)
	if err != nil {
		s.logger.Debugf("error marshaling health response: %s", err)
	}
	w.Header().Add("Content-Type", "application/json")
	if !response.NodeConnected {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Write(b)
}
