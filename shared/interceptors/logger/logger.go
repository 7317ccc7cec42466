package logger

import (
	"context"
	"path"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

func LoggerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		request interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		method := path.Base(info.FullMethod)

		zapLogger.Debug(ctx, "started gRPC method", zap.String("method", method))
		startTime := time.Now()

		response, err := handler(ctx, request)

		duration := time.Since(startTime)

		if err != nil {
			responseStatus, _ := status.FromError(err)
			zapLogger.Warn(ctx, "finished gRPC method with error",
				zap.String("method", method),
				zap.String("code", responseStatus.Code().String()),
				zap.Duration("took", duration),
				zap.Error(err),
			)
		} else {
			zapLogger.Debug(ctx, "finished gRPC method",
				zap.String("method", method),
				zap.Duration("took", duration),
			)
		}

		return response, err
	}
}
