package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/service"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/wire"
)

type Dependencies struct {
	Logger            *zap.Logger
	Addr              string
	AttendanceService *service.AttendanceService
}

type Server struct {
	server *grpc.Server
	health *health.Server
	logger *zap.Logger
	addr   string
}

func NewServer(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		server: grpc.NewServer(
			grpc.MaxRecvMsgSize(64*1024),
			grpc.ChainUnaryInterceptor(loggingInterceptor(logger)),
		),
		health: health.NewServer(),
		logger: logger,
		addr:   d.Addr,
	}

	RegisterAttendanceServer(s.server, &attendanceHandler{svc: d.AttendanceService, logger: logger})
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return s
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Stop marks the server NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

type attendanceHandler struct {
	svc    *service.AttendanceService
	logger *zap.Logger
}

func (h *attendanceHandler) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := wire.AttendanceRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	resp, err := h.svc.Submit(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidStationID),
			errors.Is(err, service.ErrInvalidStudentID),
			errors.Is(err, service.ErrInvalidToken):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		case errors.Is(err, service.ErrUnknownStation):
			return nil, status.Error(codes.PermissionDenied, resp.Reason)
		default:
			h.logger.Error("grpc submit error", zap.Error(err))
			return nil, status.Error(codes.Internal, "unexpected server error")
		}
	}

	return wire.AttendanceResponseToStruct(resp), nil
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("dur", time.Since(start)))
		return resp, err
	}
}
