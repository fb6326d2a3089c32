package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/livepost/internal/platform/telemetry"
	"github.com/louisbranch/livepost/internal/platform/timeouts"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Config defines the inputs for the live post process.
//
// The push server and the posts API are the only upstreams; consumers attach
// over the HTTP/WebSocket listener.
type Config struct {
	HTTPAddr             string
	GRPCAddr             string
	PushURL              string
	PushOrigin           string
	APIBaseURL           string
	FetchTimeout         time.Duration
	PushReconnectInitial time.Duration
	PushReconnectMax     time.Duration
	ReadHeaderTimeout    time.Duration
	ShutdownTimeout      time.Duration
}

// Server hosts the push connection, the consumer HTTP/WebSocket routes and
// an optional gRPC health endpoint.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	grpcListener    net.Listener
	grpcServer      *grpc.Server
	health          *health.Server

	emitter   *telemetry.Emitter
	registry  *Registry
	transport *Transport
	live      *Live
}

// NewServer wires the registry, dispatcher, push transport and consumer
// handler from config.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	fetcher, err := NewHTTPPostFetcher(config.APIBaseURL, config.FetchTimeout)
	if err != nil {
		return nil, err
	}

	emitter := telemetry.NewEmitter()
	// The registry sends intents to the transport and the transport feeds
	// frames back through the dispatcher, so the dispatcher is bound late.
	var dispatcher *Dispatcher
	transport, err := NewTransport(TransportConfig{
		URL:              config.PushURL,
		Origin:           config.PushOrigin,
		ReconnectInitial: config.PushReconnectInitial,
		ReconnectMax:     config.PushReconnectMax,
	}, FrameHandlerFunc(func(eventName string, payload []byte) {
		dispatcher.OnFrame(eventName, payload)
	}), emitter)
	if err != nil {
		return nil, err
	}
	registry := NewRegistry(transport)
	dispatcher = NewDispatcher(registry, emitter)
	transport.SetReplay(registry.ActiveWith)

	live, err := NewLive(registry, fetcher, emitter)
	if err != nil {
		return nil, err
	}

	s := &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		emitter:         emitter,
		registry:        registry,
		transport:       transport,
		live:            live,
	}
	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           newHandler(live, emitter, transport.State),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	if grpcAddr := strings.TrimSpace(config.GRPCAddr); grpcAddr != "" {
		listener, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", grpcAddr, err)
		}
		s.grpcListener = listener
		s.grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
		s.health = newHealthServer(transport)
		grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	}
	return s, nil
}

// Run creates and serves the live post process until ctx is canceled.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return err
	}
	defer server.Close()
	return server.ListenAndServe(ctx)
}

// GRPCAddr returns the health listener address, or "" when disabled.
func (s *Server) GRPCAddr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// Live returns the consumer facade.
func (s *Server) Live() *Live {
	return s.live
}

// ListenAndServe runs every component until ctx ends or one of them fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("livepost server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.transport.Run(gctx)
	})

	log.Printf("livepost server listening on %s", s.httpAddr)
	g.Go(func() error {
		err := s.httpServer.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	if s.grpcServer != nil {
		log.Printf("livepost health listening at %v", s.grpcListener.Addr())
		g.Go(func() error {
			err := s.grpcServer.Serve(s.grpcListener)
			if err == nil || errors.Is(err, grpc.ErrServerStopped) {
				return nil
			}
			return fmt.Errorf("serve grpc: %w", err)
		})
		g.Go(func() error {
			<-gctx.Done()
			s.health.Shutdown()
			s.grpcServer.GracefulStop()
			return nil
		})
	}

	return g.Wait()
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.grpcListener != nil {
		_ = s.grpcListener.Close()
	}
}
