// Package grpcserver runs the operational gRPC listener: standard health
// checking driven by a storage probe, and reflection in dev mode.
package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the "" overall status.
const ServiceName = "devdice.v1.DevDice"

const probeTimeout = 2 * time.Second

// Options configures the health listener.
type Options struct {
	// Ping probes storage; nil means always serving.
	Ping       func(ctx context.Context) error
	Interval   time.Duration
	Creds      credentials.TransportCredentials
	Reflection bool
}

// Health owns a gRPC server exposing grpc.health.v1.Health.
type Health struct {
	srv      *grpc.Server
	hs       *health.Server
	ping     func(ctx context.Context) error
	interval time.Duration
	log      *zap.Logger
}

// NewHealth builds the server. Status starts as NOT_SERVING until the first probe.
func NewHealth(log *zap.Logger, o Options) *Health {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
		),
	}
	if o.Creds != nil {
		opts = append(opts, grpc.Creds(o.Creds))
	}
	s := grpc.NewServer(opts...)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	if o.Reflection {
		reflection.Register(s)
	}

	if o.Interval <= 0 {
		o.Interval = 10 * time.Second
	}
	return &Health{srv: s, hs: hs, ping: o.Ping, interval: o.Interval, log: log}
}

// Probe pings storage once and publishes the result.
func (h *Health) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if h.ping != nil {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := h.ping(pctx)
		cancel()
		if err != nil {
			h.log.Warn("health probe failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
	return st
}

// Watch probes immediately and then every interval until ctx is done.
func (h *Health) Watch(ctx context.Context) {
	h.Probe(ctx)
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Probe(ctx)
		}
	}
}

// Serve blocks accepting connections on lis.
func (h *Health) Serve(lis net.Listener) error {
	return h.srv.Serve(lis)
}

// Stop marks everything NOT_SERVING and drains connections, forcing
// the close after timeout.
func (h *Health) Stop(timeout time.Duration) {
	h.hs.Shutdown()
	done := make(chan struct{})
	go func() {
		h.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		h.srv.Stop()
	}
}
