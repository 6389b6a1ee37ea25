// Package server wires the development backend runtime and gRPC lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/cargo.space/internal/integration/remote"
	dataservice "github.com/louisbranch/cargo.space/internal/services/devbackend/api/grpc/data"
	"github.com/louisbranch/cargo.space/internal/services/devbackend/hub"
	devsqlite "github.com/louisbranch/cargo.space/internal/services/devbackend/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Config controls one development backend.
type Config struct {
	Addr   string
	DBPath string
	// Seed loads demo data into an empty database.
	Seed bool
	// SimulateInterval advances a random booking this often; zero disables it.
	SimulateInterval time.Duration
}

// Server hosts the DataService gRPC API and storage lifecycle.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	store      *devsqlite.Store
	backend    *Backend
	simulator  *Simulator
}

// New creates a configured development backend.
func New(ctx context.Context, cfg Config) (*Server, error) {
	dbPath := strings.TrimSpace(cfg.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join("data", "devbackend.db")
	}
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	store, err := openStore(dbPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	changes := hub.New(hub.DefaultBuffer, log.Printf)
	backend := NewBackend(store, changes)
	if cfg.Seed {
		if err := Seed(ctx, backend); err != nil {
			_ = listener.Close()
			_ = store.Close()
			return nil, fmt.Errorf("seed devbackend: %w", err)
		}
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	remote.RegisterDataServiceServer(grpcServer, dataservice.NewService(store, changes))
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(remote.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
		store:      store,
		backend:    backend,
		simulator:  NewSimulator(backend, cfg.SimulateInterval),
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Backend returns the mutation side of the server.
func (s *Server) Backend() *Backend {
	if s == nil {
		return nil
	}
	return s.backend
}

// Run creates and serves a development backend until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the gRPC server and simulator until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("devbackend listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()
	simCtx, stopSim := context.WithCancel(ctx)
	defer stopSim()
	go s.simulator.Run(simCtx)

	select {
	case <-ctx.Done():
		if s.health != nil {
			s.health.Shutdown()
		}
		// Subscribe streams only end when clients leave, so bound the
		// graceful stop.
		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(gracefulStopTimeout):
			s.grpcServer.Stop()
		}
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

const gracefulStopTimeout = 2 * time.Second

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close devbackend store: %v", err)
		}
	}
}

func openStore(path string) (*devsqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := devsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open devbackend sqlite store: %w", err)
	}
	return store, nil
}
