package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// TriageEngineServiceName is the fully qualified gRPC service name.
const TriageEngineServiceName = "triage.v1.TriageEngine"

const (
	methodScoreCase = "/" + TriageEngineServiceName + "/ScoreCase"
	methodTrainCase = "/" + TriageEngineServiceName + "/TrainCase"
	methodRetrain   = "/" + TriageEngineServiceName + "/Retrain"
)

// TriageEngineServer is the server API for the triage service. Messages are
// google.protobuf.Struct documents; see handlers.go for their fields.
type TriageEngineServer interface {
	ScoreCase(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TrainCase(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Retrain(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// UnimplementedTriageEngineServer can be embedded for forward compatibility.
type UnimplementedTriageEngineServer struct{}

func (UnimplementedTriageEngineServer) ScoreCase(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ScoreCase not implemented")
}

func (UnimplementedTriageEngineServer) TrainCase(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method TrainCase not implemented")
}

func (UnimplementedTriageEngineServer) Retrain(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Retrain not implemented")
}

// RegisterTriageEngineServer attaches srv to a gRPC registrar.
func RegisterTriageEngineServer(s grpc.ServiceRegistrar, srv TriageEngineServer) {
	s.RegisterService(&TriageEngineServiceDesc, srv)
}

func scoreCaseHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TriageEngineServer).ScoreCase(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodScoreCase}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TriageEngineServer).ScoreCase(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func trainCaseHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TriageEngineServer).TrainCase(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodTrainCase}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TriageEngineServer).TrainCase(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func retrainHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TriageEngineServer).Retrain(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRetrain}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TriageEngineServer).Retrain(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// TriageEngineServiceDesc describes the triage service for grpc.Server.
var TriageEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: TriageEngineServiceName,
	HandlerType: (*TriageEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ScoreCase", Handler: scoreCaseHandler},
		{MethodName: "TrainCase", Handler: trainCaseHandler},
		{MethodName: "Retrain", Handler: retrainHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "triage/v1/triage.proto",
}

// TriageEngineClient calls the triage service.
type TriageEngineClient struct {
	cc grpc.ClientConnInterface
}

// NewTriageEngineClient wraps a client connection.
func NewTriageEngineClient(cc grpc.ClientConnInterface) *TriageEngineClient {
	return &TriageEngineClient{cc: cc}
}

func (c *TriageEngineClient) ScoreCase(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodScoreCase, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TriageEngineClient) TrainCase(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodTrainCase, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TriageEngineClient) Retrain(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodRetrain, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
