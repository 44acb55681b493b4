// Package server wires the attendance runtime and its gRPC and HTTP lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/louisbranch/attendmark/internal/attendance/token"
	"github.com/louisbranch/attendmark/internal/platform/config"
	platformgrpc "github.com/louisbranch/attendmark/internal/platform/grpc"
	"github.com/louisbranch/attendmark/internal/platform/timeouts"
	grpcattendance "github.com/louisbranch/attendmark/internal/services/attendance/api/grpc/attendance"
	httpapi "github.com/louisbranch/attendmark/internal/services/attendance/api/http"
	"github.com/louisbranch/attendmark/internal/services/attendance/cooldown"
	"github.com/louisbranch/attendmark/internal/services/attendance/events"
	"github.com/louisbranch/attendmark/internal/services/attendance/marking"
	"github.com/louisbranch/attendmark/internal/services/attendance/operatorauth"
	"github.com/louisbranch/attendmark/internal/services/attendance/storage"
	"github.com/louisbranch/attendmark/internal/services/attendance/storage/postgres"
	"github.com/louisbranch/attendmark/internal/services/attendance/storage/sqlite"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

type serverEnv struct {
	DBPath          string        `env:"ATTENDMARK_ATTENDANCE_DB_PATH"`
	PostgresDSN     string        `env:"ATTENDMARK_ATTENDANCE_POSTGRES_DSN"`
	TokenSecret     string        `env:"ATTENDMARK_TOKEN_SECRET"`
	PreviousSecrets string        `env:"ATTENDMARK_TOKEN_PREVIOUS_SECRETS"`
	CooldownWindow  time.Duration `env:"ATTENDMARK_COOLDOWN_WINDOW" envDefault:"2s"`
	RedisAddr       string        `env:"ATTENDMARK_REDIS_ADDR"`
	AMQPURL         string        `env:"ATTENDMARK_AMQP_URL"`
	AMQPExchange    string        `env:"ATTENDMARK_AMQP_EXCHANGE"`
	OperatorSecret  string        `env:"ATTENDMARK_OPERATOR_JWT_SECRET"`
}

func loadServerEnv() (serverEnv, error) {
	var cfg serverEnv
	if err := config.ParseEnv(&cfg); err != nil {
		return serverEnv{}, err
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "attendance.db")
	}
	if err := config.RequireValue("ATTENDMARK_TOKEN_SECRET", cfg.TokenSecret); err != nil {
		return serverEnv{}, err
	}
	if err := config.RequireValue("ATTENDMARK_OPERATOR_JWT_SECRET", cfg.OperatorSecret); err != nil {
		return serverEnv{}, err
	}
	return cfg, nil
}

// Server hosts the attendance gRPC and HTTP APIs and owns their backends.
type Server struct {
	listener     net.Listener
	httpListener net.Listener
	grpcServer   *grpc.Server
	httpServer   *http.Server
	health       *health.Server
	store        storage.Store
	publisher    events.Publisher
	redis        *redis.Client
}

// New creates a configured attendance server. An empty httpAddr disables the
// HTTP API.
func New(port int, httpAddr string) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port), httpAddr)
}

// NewWithAddr creates a configured attendance server for the provided
// addresses.
func NewWithAddr(addr, httpAddr string) (*Server, error) {
	env, err := loadServerEnv()
	if err != nil {
		return nil, err
	}
	keyring, err := token.ParseKeyring(env.TokenSecret, config.SplitList(env.PreviousSecrets))
	if err != nil {
		return nil, fmt.Errorf("load credential secrets: %w", err)
	}
	auth, err := operatorauth.NewAuthenticator(env.OperatorSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("load operator secret: %w", err)
	}

	s := &Server{}
	if err := s.openBackends(env); err != nil {
		s.Close()
		return nil, err
	}

	var governor cooldown.Governor = cooldown.NewMemory(env.CooldownWindow, nil)
	if s.redis != nil {
		governor = cooldown.NewRedis(s.redis, env.CooldownWindow)
	}
	markingService := marking.NewService(s.store, keyring, governor, marking.WithPublisher(s.publisher))

	s.listener, err = net.Listen("tcp", addr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if strings.TrimSpace(httpAddr) != "" {
		s.httpListener, err = net.Listen("tcp", httpAddr)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("listen on %s: %w", httpAddr, err)
		}
		gin.SetMode(gin.ReleaseMode)
		s.httpServer = &http.Server{
			Handler:           httpapi.NewRouter(markingService, auth),
			ReadHeaderTimeout: timeouts.ReadHeader,
		}
	}

	s.grpcServer = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(operatorauth.UnaryServerInterceptor(auth, grpcattendance.Policy())),
	)
	grpcattendance.RegisterAttendanceServer(s.grpcServer, grpcattendance.NewService(markingService))
	s.health = platformgrpc.RegisterHealth(s.grpcServer, grpcattendance.ServiceName)
	return s, nil
}

func (s *Server) openBackends(env serverEnv) error {
	store, err := openAttendanceStore(env)
	if err != nil {
		return err
	}
	s.store = store

	s.publisher = events.Nop{}
	if strings.TrimSpace(env.AMQPURL) != "" {
		publisher, err := events.NewAMQPPublisher(env.AMQPURL, env.AMQPExchange)
		if err != nil {
			return err
		}
		s.publisher = publisher
		log.Printf("publishing attendance events to exchange %s", publisher.Exchange())
	}

	if strings.TrimSpace(env.RedisAddr) != "" {
		client := redis.NewClient(&redis.Options{Addr: env.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), timeouts.GRPCDial)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("connect redis %s: %w", env.RedisAddr, err)
		}
		s.redis = client
		log.Printf("cooldown backed by redis at %s", env.RedisAddr)
	}
	return nil
}

// Addr returns the gRPC listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// HTTPAddr returns the HTTP listener address, or "" when HTTP is disabled.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Run creates and serves an attendance server until context cancellation.
func Run(ctx context.Context, port int, httpAddr string) error {
	server, err := New(port, httpAddr)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve runs the gRPC and HTTP servers until context cancellation or until
// either of them fails.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	group, groupCtx := errgroup.WithContext(ctx)
	log.Printf("attendance gRPC server listening at %v", s.listener.Addr())
	group.Go(func() error {
		if err := s.grpcServer.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}
		return nil
	})
	if s.httpServer != nil {
		log.Printf("attendance HTTP server listening at %v", s.httpListener.Addr())
		group.Go(func() error {
			if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve HTTP: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		s.health.Shutdown()
		if s.httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
			defer cancel()
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("shutdown HTTP server: %v", err)
			}
		}
		s.grpcServer.GracefulStop()
		return nil
	})
	return group.Wait()
}

// Close releases attendance server resources.
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
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Printf("close event publisher: %v", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Printf("close redis client: %v", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close attendance store: %v", err)
		}
	}
}

func openAttendanceStore(env serverEnv) (storage.Store, error) {
	if dsn := strings.TrimSpace(env.PostgresDSN); dsn != "" {
		store, err := postgres.Open(context.Background(), dsn)
		if err != nil {
			return nil, fmt.Errorf("open attendance postgres store: %w", err)
		}
		return store, nil
	}
	if dir := filepath.Dir(env.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(env.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open attendance sqlite store: %w", err)
	}
	return store, nil
}
