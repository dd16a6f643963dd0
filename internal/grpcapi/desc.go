package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName  = "attendo.v1.Attendance"
	SubmitMethod = "/" + ServiceName + "/Submit"
)

// AttendanceServer is the server API for the Attendance service. Messages
// are google.protobuf.Struct with the JSON API's field names.
type AttendanceServer interface {
	Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

func RegisterAttendanceServer(s grpc.ServiceRegistrar, srv AttendanceServer) {
	s.RegisterService(&attendanceServiceDesc, srv)
}

var attendanceServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AttendanceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "attendo/v1/attendance.proto",
}

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AttendanceServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SubmitMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AttendanceServer).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// AttendanceClient calls the Attendance service over cc.
type AttendanceClient struct {
	cc grpc.ClientConnInterface
}

func NewAttendanceClient(cc grpc.ClientConnInterface) *AttendanceClient {
	return &AttendanceClient{cc: cc}
}

func (c *AttendanceClient) Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SubmitMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
