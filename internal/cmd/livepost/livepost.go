// Package livepost parses live post command flags and composes the sync
// engine entrypoint.
package livepost

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/livepost/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/livepost/internal/platform/grpc"
	"github.com/louisbranch/livepost/internal/platform/timeouts"
	server "github.com/louisbranch/livepost/internal/services/livepost/app"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config holds live post command configuration.
type Config struct {
	HTTPAddr             string        `env:"LIVEPOST_HTTP_ADDR"              envDefault:":8090"`
	GRPCAddr             string        `env:"LIVEPOST_GRPC_ADDR"`
	PushURL              string        `env:"LIVEPOST_PUSH_URL"               envDefault:"ws://localhost:8091/push"`
	PushOrigin           string        `env:"LIVEPOST_PUSH_ORIGIN"`
	APIBaseURL           string        `env:"LIVEPOST_API_BASE_URL"           envDefault:"http://localhost:8080"`
	FetchTimeout         time.Duration `env:"LIVEPOST_FETCH_TIMEOUT"`
	PushReconnectInitial time.Duration `env:"LIVEPOST_PUSH_RECONNECT_INITIAL"`
	PushReconnectMax     time.Duration `env:"LIVEPOST_PUSH_RECONNECT_MAX"`

	// Healthcheck turns the process into a readiness check against a running
	// instance's gRPC health endpoint.
	Healthcheck bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "consumer HTTP/WebSocket listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address (disabled when empty)")
	fs.StringVar(&cfg.PushURL, "push-url", cfg.PushURL, "push server WebSocket URL")
	fs.StringVar(&cfg.PushOrigin, "push-origin", cfg.PushOrigin, "Origin header sent to the push server")
	fs.StringVar(&cfg.APIBaseURL, "api-base-url", cfg.APIBaseURL, "posts API base URL")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", cfg.FetchTimeout, "posts API request timeout")
	fs.BoolVar(&cfg.Healthcheck, "healthcheck", false, "wait until the instance at grpc-addr reports its push connection SERVING, then exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the live post app and keeps the push connection alive until ctx
// ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLivepost, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:             cfg.HTTPAddr,
			GRPCAddr:             cfg.GRPCAddr,
			PushURL:              cfg.PushURL,
			PushOrigin:           cfg.PushOrigin,
			APIBaseURL:           cfg.APIBaseURL,
			FetchTimeout:         cfg.FetchTimeout,
			PushReconnectInitial: cfg.PushReconnectInitial,
			PushReconnectMax:     cfg.PushReconnectMax,
		}); err != nil {
			return fmt.Errorf("serve livepost: %w", err)
		}
		return nil
	})
}

// Healthcheck waits until the instance at cfg.GRPCAddr reports its push
// health service SERVING, giving up after timeouts.HealthCheckWait.
func Healthcheck(ctx context.Context, cfg Config) error {
	target, err := healthTarget(cfg.GRPCAddr)
	if err != nil {
		return err
	}
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial health endpoint: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, timeouts.HealthCheckWait)
	defer cancel()
	return platformgrpc.WaitForHealth(ctx, conn, server.PushHealthService, log.Printf)
}

// healthTarget turns a listen address such as ":9090" into a dialable one.
func healthTarget(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", errors.New("grpc address is required for -healthcheck")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("parse grpc address: %w", err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port), nil
}
