package grpc

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const serviceTokenHeader = "x-service-token"

// NewServiceTokenInterceptor admits calls whose x-service-token matches
// token. Rejections are logged with the method so a misconfigured probe
// shows up in the service log.
func NewServiceTokenInterceptor(token string, logger *slog.Logger) (grpc.UnaryServerInterceptor, error) {
	if token == "" {
		return nil, errors.New("service token required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	expected := []byte(token)
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		presented := incomingServiceToken(ctx)
		switch {
		case presented == "":
			logger.Warn("grpc call rejected", slog.String("method", info.FullMethod), slog.String("reason", "missing_service_token"))
			return nil, status.Error(codes.Unauthenticated, "missing_service_token")
		case subtle.ConstantTimeCompare([]byte(presented), expected) != 1:
			logger.Warn("grpc call rejected", slog.String("method", info.FullMethod), slog.String("reason", "invalid_service_token"))
			return nil, status.Error(codes.PermissionDenied, "invalid_service_token")
		}
		return handler(ctx, req)
	}, nil
}

func incomingServiceToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(serviceTokenHeader); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}
