package submit

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/scan"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/token"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/wire"
	"github.com/BrandonDHaskell/Attendo/server/internal/grpcapi"
)

// GRPCSubmitter submits over the Attendance gRPC service.
type GRPCSubmitter struct {
	client  *grpcapi.AttendanceClient
	timeout time.Duration
	logger  *zap.Logger
}

func NewGRPCSubmitter(cc grpc.ClientConnInterface, logger *zap.Logger) *GRPCSubmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCSubmitter{
		client:  grpcapi.NewAttendanceClient(cc),
		timeout: DefaultTimeout,
		logger:  logger,
	}
}

// Dial opens a plaintext connection to addr. Stations sit on the campus
// LAN next to the server.
func Dial(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func (g *GRPCSubmitter) Submit(ctx context.Context, tok token.AttendanceToken, sc scan.ScanContext) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.client.Submit(ctx, wire.AttendanceRequestToStruct(buildRequest(tok, sc)))
	if err != nil {
		switch status.Code(err) {
		case codes.PermissionDenied:
			return &scan.SubmissionError{Reason: types.ReasonUnknownStation, Err: err}
		case codes.InvalidArgument:
			return &scan.SubmissionError{Reason: "invalid_request", Err: err}
		default:
			return &scan.SubmissionError{Err: err}
		}
	}

	resp := wire.AttendanceResponseFromStruct(out)
	g.logger.Debug("attendance submitted",
		zap.Bool("accepted", resp.Accepted),
		zap.String("reason", resp.Reason))
	return fromResponse(resp)
}
