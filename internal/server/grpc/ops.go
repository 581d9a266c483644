// Package grpcserver runs the operations listener: the standard gRPC health
// service for orchestrator health checks, driven by a store readiness check.
package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for the registry API.
const ServiceName = "efiling.Registry"

// Ops owns the gRPC server and its health state.
type Ops struct {
	srv    *grpc.Server
	health *health.Server
	ready  func(ctx context.Context) error
	log    *zap.Logger
}

// NewOps builds the operations server. ready may be nil, in which case the
// service is always reported as serving.
func NewOps(log *zap.Logger, ready func(ctx context.Context) error, reflect bool) *Ops {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ops")
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if reflect {
		reflection.Register(s)
	}
	o := &Ops{srv: s, health: hs, ready: ready, log: log}
	o.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return o
}

// Server exposes the underlying gRPC server for Serve and GracefulStop.
func (o *Ops) Server() *grpc.Server { return o.srv }

func (o *Ops) set(st healthpb.HealthCheckResponse_ServingStatus) {
	o.health.SetServingStatus("", st)
	o.health.SetServingStatus(ServiceName, st)
}

// Check runs the readiness check once and publishes the result.
func (o *Ops) Check(ctx context.Context) bool {
	if o.ready != nil {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := o.ready(cctx); err != nil {
			o.log.Warn("readiness check failed", zap.Error(err))
			o.set(healthpb.HealthCheckResponse_NOT_SERVING)
			return false
		}
	}
	o.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Watch re-checks readiness every interval until ctx is done, then marks
// the service as shutting down.
func (o *Ops) Watch(ctx context.Context, interval time.Duration) {
	o.Check(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			o.health.Shutdown()
			return
		case <-t.C:
			o.Check(ctx)
		}
	}
}
