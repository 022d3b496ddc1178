package api

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ReadOnlyInterceptor refuses every call that does not only read
func ReadOnlyInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !isReadOnlyMethod(info.FullMethod) {
			return nil, status.Errorf(codes.PermissionDenied,
				"%s not allowed: the status API is read-only (start the daemon with --api-writable)", info.FullMethod)
		}
		return handler(ctx, req)
	}
}

// isReadOnlyMethod checks the method name of "/service/Method"
func isReadOnlyMethod(fullMethod string) bool {
	name := fullMethod[strings.LastIndex(fullMethod, "/")+1:]
	for _, prefix := range []string{"List", "Get", "Check"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// LoggingInterceptor logs every call at debug level, and failures at warn
func LoggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn().
				Str("method", info.FullMethod).
				Str("code", status.Code(err).String()).
				Dur("took", time.Since(start)).
				Err(err).
				Msg("API call failed")
			return resp, err
		}
		logger.Debug().
			Str("method", info.FullMethod).
			Dur("took", time.Since(start)).
			Msg("API call")
		return resp, nil
	}
}
