package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// RPCObserver receives the outcome of every handled RPC.
type RPCObserver interface {
	ObserveRPC(procedure, code string, elapsed time.Duration)
}

// LoggingInterceptor logs every RPC call and stream.
// It logs the procedure name, user ID, duration, and any error codes/messages.
type LoggingInterceptor struct {
	observer RPCObserver
}

var _ connect.Interceptor = (*LoggingInterceptor)(nil)

// NewLoggingInterceptor returns a logging interceptor. observer may be nil.
func NewLoggingInterceptor(observer RPCObserver) *LoggingInterceptor {
	return &LoggingInterceptor{observer: observer}
}

func (i *LoggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		start := time.Now()
		resp, err := next(ctx, req)
		i.finish(ctx, req.Spec().Procedure, start, err)
		return resp, err
	}
}

func (i *LoggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *LoggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		slog.Debug("RPC stream opened",
			"procedure", conn.Spec().Procedure,
			"user_id", GetUserID(ctx),
		)
		err := next(ctx, conn)
		i.finish(ctx, conn.Spec().Procedure, start, err)
		return err
	}
}

func (i *LoggingInterceptor) finish(ctx context.Context, procedure string, start time.Time, err error) {
	elapsed := time.Since(start)
	userID := GetUserID(ctx) // empty if pre-auth
	code := "ok"

	if err != nil {
		var connectErr *connect.Error
		if errors.As(err, &connectErr) {
			code = connectErr.Code().String()
			slog.Warn("RPC error",
				"procedure", procedure,
				"code", connectErr.Code(),
				"error", connectErr.Message(),
				"user_id", userID,
				"duration_ms", elapsed.Milliseconds(),
			)
		} else {
			code = connect.CodeUnknown.String()
			slog.Error("RPC error",
				"procedure", procedure,
				"error", err,
				"user_id", userID,
				"duration_ms", elapsed.Milliseconds(),
			)
		}
	} else {
		slog.Info("RPC ok",
			"procedure", procedure,
			"user_id", userID,
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	if i.observer != nil {
		i.observer.ObserveRPC(procedure, code, elapsed)
	}
}
