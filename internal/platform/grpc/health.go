package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Health probes back off from healthRetryMin up to healthRetryMax.
const (
	healthRetryMin = 200 * time.Millisecond
	healthRetryMax = time.Second
	healthProbe    = time.Second
)

// RegisterHealth installs a health server on server. The overall status ("")
// and every named service start as SERVING; callers flip them on shutdown.
func RegisterHealth(server *gogrpc.Server, services ...string) *health.Server {
	hs := health.NewServer()
	for _, name := range append([]string{""}, services...) {
		hs.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	grpc_health_v1.RegisterHealthServer(server, hs)
	return hs
}

// WaitForHealth polls the health service on conn until service reports
// SERVING or ctx ends. logf, when set, receives one line per probe.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return errors.New("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	client := grpc_health_v1.NewHealthClient(conn)
	for delay := healthRetryMin; ; delay = min(2*delay, healthRetryMax) {
		status, err := probeHealth(ctx, client, service)
		switch {
		case err != nil:
			logf("waiting for gRPC health: %v", err)
		case status == grpc_health_v1.HealthCheckResponse_SERVING:
			logf("gRPC health check is SERVING")
			return nil
		default:
			logf("waiting for gRPC health: status %s", status)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("wait for gRPC health: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func probeHealth(ctx context.Context, client grpc_health_v1.HealthClient, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, healthProbe)
	defer cancel()
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
