package recovery

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

func Unary(
	ctx context.Context,
	request interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (response interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			zapLogger.Error(ctx, "panic recovered in gRPC handler",
				zap.String("method", info.FullMethod),
				zap.String("panic", fmt.Sprintf("%v", r)),
				zap.Stack("stack"),
			)

			err = status.Errorf(codes.Internal, "internal error")
		}
	}()

	return handler(ctx, request)
}
