package xrequestid

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

const HeaderKey = "x-request-id"

// Server puts the caller's request id, or a fresh one, into the handler context.
func Server(
	ctx context.Context,
	request interface{},
	_ *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	requestID := ""

	if meta, found := metadata.FromIncomingContext(ctx); found {
		if values := meta.Get(HeaderKey); len(values) > 0 {
			requestID = values[0]
		}
	}

	if requestID == "" {
		requestID = uuid.New().String()
	}

	ctx = zapLogger.ContextWithTraceID(ctx, requestID)
	_ = grpc.SetHeader(ctx, metadata.Pairs(HeaderKey, requestID))

	return handler(ctx, request)
}

func Client(
	ctx context.Context,
	method string,
	request interface{},
	reply interface{},
	clientConn *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	options ...grpc.CallOption,
) error {
	requestID := zapLogger.TraceIDFromContext(ctx)

	if requestID == "" {
		requestID = uuid.New().String()
	}

	ctx = metadata.AppendToOutgoingContext(ctx, HeaderKey, requestID)

	return invoker(ctx, method, request, reply, clientConn, options...)
}
