package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Serve listens on listenAddr and serves console until ctx is cancelled.
func Serve(ctx context.Context, listenAddr string, console StaffConsole, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return serveListener(ctx, listener, console, logger)
}

func serveListener(ctx context.Context, listener net.Listener, console StaffConsole, logger *zap.Logger) error {
	grpcServer := grpc.NewServer()
	RegisterStaffConsoleServer(grpcServer, console)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC staff console starting", zap.String("listen_addr", listener.Addr().String()))
		errCh <- grpcServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("gRPC shutdown requested")
		grpcServer.GracefulStop()
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	case serveErr := <-errCh:
		if errors.Is(serveErr, grpc.ErrServerStopped) {
			return nil
		}
		return serveErr
	}
}
