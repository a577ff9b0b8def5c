package server

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"chat-credential-engine/internal/health"
)

// ServiceName is the gRPC health service name reported alongside the overall ("") status.
const ServiceName = "chat.credentials"

// NewGRPCServer returns a gRPC server exposing grpc.health.v1 with OTel instrumentation and
// request logging. The health server starts NOT_SERVING until WatchHealth reports.
func NewGRPCServer(logger *zap.Logger) (*grpc.Server, *grpchealth.Server) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(loggingUnary(logger)),
	)
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}

// WatchHealth runs checker every interval and publishes the result to hs until ctx is done.
// On return both statuses are set to NOT_SERVING so draining clients stop routing here.
func WatchHealth(ctx context.Context, checker *health.Checker, hs *grpchealth.Server, interval time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	publish := func() {
		report := checker.Check(ctx)
		st := healthpb.HealthCheckResponse_SERVING
		if !report.Serving() {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			logger.Warn("health check failing", zap.Any("components", report.Components))
		}
		hs.SetServingStatus("", st)
		hs.SetServingStatus(ServiceName, st)
	}

	publish()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			publish()
		}
	}
}

// loggingUnary logs each RPC at debug, and failures at warn.
func loggingUnary(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil {
			logger.Warn("rpc", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("rpc", fields...)
		}
		return resp, err
	}
}
