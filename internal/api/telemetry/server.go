package telemetry

import (
	"context"

	"github.com/KevinKickass/OpenMotionCore/internal/auth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// TokenValidator checks bearer tokens from the "authorization" metadata.
type TokenValidator interface {
	ValidateToken(token string) ([]auth.Permission, error)
}

// NewServer creates a gRPC server with the Telemetry service registered.
// With a nil validator calls are not authenticated.
func NewServer(svc *Service, validator TokenValidator, logger *zap.Logger) *grpc.Server {
	var opts []grpc.ServerOption
	if validator != nil {
		opts = append(opts,
			grpc.UnaryInterceptor(func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
				if err := authorize(ctx, validator); err != nil {
					logger.Warn("gRPC call rejected", zap.String("method", info.FullMethod), zap.Error(err))
					return nil, err
				}
				return handler(ctx, req)
			}),
			grpc.StreamInterceptor(func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
				if err := authorize(ss.Context(), validator); err != nil {
					logger.Warn("gRPC stream rejected", zap.String("method", info.FullMethod), zap.Error(err))
					return err
				}
				return handler(srv, ss)
			}),
		)
	}

	s := grpc.NewServer(opts...)
	RegisterTelemetryServer(s, svc)
	return s
}

func authorize(ctx context.Context, validator TokenValidator) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return status.Error(codes.Unauthenticated, "missing authorization")
	}

	token, err := auth.BearerToken(values[0])
	if err != nil {
		return status.Error(codes.Unauthenticated, err.Error())
	}
	if _, err := validator.ValidateToken(token); err != nil {
		return status.Error(codes.Unauthenticated, "invalid or expired token")
	}
	return nil
}
