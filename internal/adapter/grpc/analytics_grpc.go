package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// AnalyticsServiceName is the fully qualified name of the operations service
const AnalyticsServiceName = "analytics.v1.AnalyticsService"

const (
	runJobMethod     = "/" + AnalyticsServiceName + "/RunJob"
	listJobsMethod   = "/" + AnalyticsServiceName + "/ListJobs"
	getRankingMethod = "/" + AnalyticsServiceName + "/GetRanking"
)

// AnalyticsServer is the server API for the AnalyticsService.
// Messages are well-known protobuf types so no generated code is needed on either side.
type AnalyticsServer interface {
	// RunJob triggers a job immediately. Request: {"job": name, "async": bool}.
	RunJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListJobs returns the status of every registered job
	ListJobs(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// GetRanking returns the persisted ranking, best first
	GetRanking(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterAnalyticsServer registers srv on s
func RegisterAnalyticsServer(s grpc.ServiceRegistrar, srv AnalyticsServer) {
	s.RegisterService(&AnalyticsServiceDesc, srv)
}

// AnalyticsServiceDesc is the grpc.ServiceDesc for the AnalyticsService
var AnalyticsServiceDesc = grpc.ServiceDesc{
	ServiceName: AnalyticsServiceName,
	HandlerType: (*AnalyticsServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RunJob",
			Handler:    runJobHandler,
		},
		{
			MethodName: "ListJobs",
			Handler:    listJobsHandler,
		},
		{
			MethodName: "GetRanking",
			Handler:    getRankingHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "analytics/v1/analytics.proto",
}

func runJobHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyticsServer).RunJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: runJobMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AnalyticsServer).RunJob(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listJobsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyticsServer).ListJobs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: listJobsMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AnalyticsServer).ListJobs(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getRankingHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyticsServer).GetRanking(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: getRankingMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AnalyticsServer).GetRanking(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// AnalyticsClient is the client API for the AnalyticsService
type AnalyticsClient struct {
	cc grpc.ClientConnInterface
}

// NewAnalyticsClient creates a client over an established connection
func NewAnalyticsClient(cc grpc.ClientConnInterface) *AnalyticsClient {
	return &AnalyticsClient{cc: cc}
}

// RunJob triggers a job immediately
func (c *AnalyticsClient) RunJob(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, runJobMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListJobs returns the status of every registered job
func (c *AnalyticsClient) ListJobs(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listJobsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRanking returns the persisted ranking
func (c *AnalyticsClient) GetRanking(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getRankingMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
